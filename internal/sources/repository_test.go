package sources

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/seaway-erp/seaway-erp/internal/orgs"
)

func newMockRepo(t *testing.T) (pgxmock.PgxPoolIface, *Repository) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock, NewRepository(mock)
}

func TestCountScopedFees(t *testing.T) {
	mock, repo := newMockRepo(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM fees f JOIN shipment_jobs sj`).
		WithArgs("PAYABLE", []int64{3, 4}).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(7)))

	q := Query{Type: TypeFee, Direction: DirectionPayable, Scope: orgs.NewScope([]int64{3, 4})}
	count, err := repo.Count(context.Background(), q)
	require.NoError(t, err)
	require.Equal(t, int64(7), count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountUnrestrictedScopeOmitsOrgPredicate(t *testing.T) {
	mock, repo := newMockRepo(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM invoices i JOIN shipment_jobs sj`).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(2)))

	q := Query{Type: TypeInvoice, Scope: orgs.UnrestrictedScope()}
	count, err := repo.Count(context.Background(), q)
	require.NoError(t, err)
	require.Equal(t, int64(2), count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimForTaskStampsAndSorts(t *testing.T) {
	mock, repo := newMockRepo(t)
	feeDate := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{
		"id", "direction", "org_id", "job_id", "job_no", "counterparty_code", "counterparty_name",
		"amount", "currency", "exchange_rate", "is_foreign", "is_advance", "fee_date",
	}).
		AddRow(int64(12), "PAYABLE", int64(3), int64(40), "JOB-40", "CP01", "Acme Lines",
			decimal.RequireFromString("200"), "RMB", decimal.NewFromInt(1), false, false, feeDate).
		AddRow(int64(11), "PAYABLE", int64(3), int64(40), "JOB-40", "CP01", "Acme Lines",
			decimal.RequireFromString("100"), "RMB", decimal.NewFromInt(1), false, false, feeDate)
	mock.ExpectQuery(`UPDATE fees f SET export_task_id = \$1`).
		WithArgs(int64(55), "PAYABLE", []int64{3}).
		WillReturnRows(rows)

	q := Query{Type: TypeFee, Direction: DirectionPayable, Scope: orgs.NewScope([]int64{3})}
	records, err := repo.ClaimForTask(context.Background(), q, 55)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, int64(11), records[0].ID)
	require.Equal(t, int64(12), records[1].ID)
	require.True(t, records[0].BaseAmount().Equal(decimal.RequireFromString("100")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkExportedCountsRows(t *testing.T) {
	mock, repo := newMockRepo(t)
	at := time.Date(2025, 6, 2, 10, 0, 0, 0, time.UTC)
	mock.ExpectExec(`UPDATE fees SET exported_at = \$2 WHERE export_task_id = \$1 AND exported_at IS NULL`).
		WithArgs(int64(55), at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	n, err := repo.MarkExported(context.Background(), TypeFee, 55, at)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseClaimsSkipsExportedRows(t *testing.T) {
	mock, repo := newMockRepo(t)
	mock.ExpectExec(`UPDATE invoices SET export_task_id = NULL WHERE export_task_id = \$1 AND exported_at IS NULL`).
		WithArgs(int64(9)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, repo.ReleaseClaims(context.Background(), TypeInvoice, 9))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestQueryConditionsIncludeFilterPredicates(t *testing.T) {
	from := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	q := Query{
		Type:      TypeFee,
		Direction: DirectionReceivable,
		Scope:     orgs.NewScope([]int64{1}),
		Filter:    Filter{Counterparty: "CP09", JobNo: "JOB-9", Currency: "USD", DateFrom: &from},
	}
	where, args := q.conditions(nil)
	require.Contains(t, where, "f.exported_at IS NULL")
	require.Contains(t, where, "f.export_task_id IS NULL")
	require.Contains(t, where, "f.direction = $1")
	require.Contains(t, where, "sj.org_id = ANY($2)")
	require.Contains(t, where, "f.counterparty_code = $3")
	require.Contains(t, where, "sj.job_no = $4")
	require.Contains(t, where, "f.currency = $5")
	require.Contains(t, where, "f.fee_date >= $6")
	require.Len(t, args, 6)
}
