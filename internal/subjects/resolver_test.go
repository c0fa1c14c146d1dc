package subjects

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type stubConfigs struct {
	rows  map[int64][]SubjectConfig
	calls map[int64]int
}

func (s *stubConfigs) ListForOrg(_ context.Context, orgID int64) ([]SubjectConfig, error) {
	if s.calls == nil {
		s.calls = make(map[int64]int)
	}
	s.calls[orgID]++
	return s.rows[orgID], nil
}

func orgConfig(orgID int64, code Code, accountNo string) SubjectConfig {
	cfg := SubjectConfig{Code: code, AccountNo: accountNo}
	if orgID > 0 {
		cfg.OrgID = &orgID
	}
	return cfg
}

func TestResolveOrgRowShadowsGlobal(t *testing.T) {
	repo := &stubConfigs{rows: map[int64][]SubjectConfig{
		0: {orgConfig(0, CodePayableDomestic, "2202"), orgConfig(0, CodePayableTotal, "2201")},
		7: {orgConfig(7, CodePayableDomestic, "2202.07")},
	}}
	resolver := NewResolver(repo, nil)

	set, err := resolver.Resolve(context.Background(), []Code{CodePayableDomestic, CodePayableTotal}, []int64{7})
	require.NoError(t, err)

	no, ok := set.ForOrg(7).AccountNo(CodePayableDomestic)
	require.True(t, ok)
	require.Equal(t, "2202.07", no)

	no, ok = set.ForOrg(7).AccountNo(CodePayableTotal)
	require.True(t, ok)
	require.Equal(t, "2201", no)
}

func TestResolveMissingCodeIsAllOrNothing(t *testing.T) {
	repo := &stubConfigs{rows: map[int64][]SubjectConfig{
		0: {orgConfig(0, CodePayableTotal, "2201")},
		3: {orgConfig(3, CodePayableDomestic, "2202.03")},
	}}
	resolver := NewResolver(repo, nil)

	codes := []Code{CodePayableTotal, CodePayableDomestic, CodePayableForeign}
	set, err := resolver.Resolve(context.Background(), codes, []int64{3, 4})
	require.Nil(t, set)

	var missing *MissingCodesError
	require.ErrorAs(t, err, &missing)
	require.ElementsMatch(t, []Code{CodePayableForeign}, missing.Missing[3])
	require.ElementsMatch(t, []Code{CodePayableDomestic, CodePayableForeign}, missing.Missing[4])
	require.Contains(t, missing.Error(), "payable.foreign")
}

func TestResolveMetadataCodesAreOptional(t *testing.T) {
	repo := &stubConfigs{rows: map[int64][]SubjectConfig{
		0: {orgConfig(0, CodeReceivableTotal, "1122")},
	}}
	resolver := NewResolver(repo, nil)

	set, err := resolver.Resolve(context.Background(), []Code{CodeReceivableTotal, CodePreparer, CodeVoucherGroup}, []int64{9})
	require.NoError(t, err)
	require.Equal(t, DefaultPreparer, set.ForOrg(9).Preparer())
	require.Equal(t, DefaultVoucherGroup, set.ForOrg(9).VoucherGroup())
}

func TestResolveConfiguredMetadataWins(t *testing.T) {
	preparerRow := SubjectConfig{Code: CodePreparer, Preparer: "liang"}
	groupRow := SubjectConfig{Code: CodeVoucherGroup, VoucherGroup: "bank"}
	repo := &stubConfigs{rows: map[int64][]SubjectConfig{
		0: {orgConfig(0, CodeReceivableTotal, "1122"), preparerRow, groupRow},
	}}
	resolver := NewResolver(repo, nil)

	set, err := resolver.Resolve(context.Background(), []Code{CodeReceivableTotal, CodePreparer, CodeVoucherGroup}, []int64{2})
	require.NoError(t, err)
	require.Equal(t, "liang", set.ForOrg(2).Preparer())
	require.Equal(t, "bank", set.ForOrg(2).VoucherGroup())
}

func TestResolveNoCodes(t *testing.T) {
	resolver := NewResolver(&stubConfigs{}, nil)
	_, err := resolver.Resolve(context.Background(), nil, []int64{1})
	require.ErrorIs(t, err, ErrNoCodes)
}

func TestResolveThroughCacheHitsRepoOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client, time.Minute)

	repo := &stubConfigs{rows: map[int64][]SubjectConfig{
		0: {orgConfig(0, CodePayableTotal, "2201"), orgConfig(0, CodePayableDomestic, "2202")},
	}}
	resolver := NewResolver(repo, cache)

	codes := []Code{CodePayableTotal, CodePayableDomestic}
	for i := 0; i < 3; i++ {
		_, err := resolver.Resolve(context.Background(), codes, []int64{5})
		require.NoError(t, err)
	}
	require.Equal(t, 1, repo.calls[0])
	require.Equal(t, 1, repo.calls[5])
}

func TestCacheBumpInvalidates(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client, time.Minute)

	repo := &stubConfigs{rows: map[int64][]SubjectConfig{
		0: {orgConfig(0, CodePayableTotal, "2201")},
	}}
	resolver := NewResolver(repo, cache)

	_, err := resolver.Resolve(context.Background(), []Code{CodePayableTotal}, nil)
	require.NoError(t, err)
	require.NoError(t, cache.Bump(context.Background()))
	_, err = resolver.Resolve(context.Background(), []Code{CodePayableTotal}, nil)
	require.NoError(t, err)
	require.Equal(t, 2, repo.calls[0])
}
