package subjects

import (
	"context"
	"fmt"
	"strings"
)

// ConfigReader is the slice of the repository the resolver needs.
type ConfigReader interface {
	ListForOrg(ctx context.Context, orgID int64) ([]SubjectConfig, error)
}

// Resolver loads the chart-of-accounts mapping required by one export kind,
// per organization actually touched by the exported records.
type Resolver struct {
	repo  ConfigReader
	cache *Cache
}

// NewResolver constructs a Resolver. The cache may be nil, in which case
// every resolution hits the repository.
func NewResolver(repo ConfigReader, cache *Cache) *Resolver {
	return &Resolver{repo: repo, cache: cache}
}

// ConfigSet holds resolved configurations for a single run. Org-specific
// rows shadow global (NULL org) rows.
type ConfigSet struct {
	global map[Code]SubjectConfig
	byOrg  map[int64]map[Code]SubjectConfig
}

// OrgView exposes the effective configuration for one organization.
type OrgView struct {
	orgID int64
	set   *ConfigSet
}

// ForOrg returns the effective view for the organization.
func (s *ConfigSet) ForOrg(orgID int64) OrgView {
	return OrgView{orgID: orgID, set: s}
}

// Lookup returns the effective configuration row for a code.
func (v OrgView) Lookup(code Code) (SubjectConfig, bool) {
	if v.set == nil {
		return SubjectConfig{}, false
	}
	if org, ok := v.set.byOrg[v.orgID]; ok {
		if cfg, ok := org[code]; ok {
			return cfg, true
		}
	}
	cfg, ok := v.set.global[code]
	return cfg, ok
}

// AccountNo returns the external account number bound to the code.
func (v OrgView) AccountNo(code Code) (string, bool) {
	cfg, ok := v.Lookup(code)
	if !ok || strings.TrimSpace(cfg.AccountNo) == "" {
		return "", false
	}
	return cfg.AccountNo, true
}

// Preparer returns the configured preparer name or the default.
func (v OrgView) Preparer() string {
	if cfg, ok := v.Lookup(CodePreparer); ok && strings.TrimSpace(cfg.Preparer) != "" {
		return cfg.Preparer
	}
	return DefaultPreparer
}

// VoucherGroup returns the configured voucher-group label or the default.
func (v OrgView) VoucherGroup() string {
	if cfg, ok := v.Lookup(CodeVoucherGroup); ok && strings.TrimSpace(cfg.VoucherGroup) != "" {
		return cfg.VoucherGroup
	}
	return DefaultVoucherGroup
}

// Resolve loads the codes for every touched organization. Resolution is
// all-or-nothing: if any non-metadata code is missing for any organization,
// the whole call fails with a MissingCodesError listing every gap, and no
// partial set is returned.
func (r *Resolver) Resolve(ctx context.Context, codes []Code, orgIDs []int64) (*ConfigSet, error) {
	if len(codes) == 0 {
		return nil, ErrNoCodes
	}
	set := &ConfigSet{
		global: make(map[Code]SubjectConfig),
		byOrg:  make(map[int64]map[Code]SubjectConfig),
	}
	globalRows, err := r.load(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("subjects: load global configs: %w", err)
	}
	for _, cfg := range globalRows {
		set.global[cfg.Code] = cfg
	}
	for _, orgID := range orgIDs {
		rows, err := r.load(ctx, orgID)
		if err != nil {
			return nil, fmt.Errorf("subjects: load configs for org %d: %w", orgID, err)
		}
		bucket := make(map[Code]SubjectConfig, len(rows))
		for _, cfg := range rows {
			bucket[cfg.Code] = cfg
		}
		set.byOrg[orgID] = bucket
	}

	missing := make(map[int64][]Code)
	targets := orgIDs
	if len(targets) == 0 {
		targets = []int64{0}
	}
	for _, orgID := range targets {
		view := set.ForOrg(orgID)
		for _, code := range codes {
			if code.IsMetadata() {
				continue
			}
			if _, ok := view.AccountNo(code); !ok {
				missing[orgID] = append(missing[orgID], code)
			}
		}
	}
	if len(missing) > 0 {
		return nil, &MissingCodesError{Missing: missing}
	}
	return set, nil
}

func (r *Resolver) load(ctx context.Context, orgID int64) ([]SubjectConfig, error) {
	loader := func(ctx context.Context) ([]SubjectConfig, error) {
		return r.repo.ListForOrg(ctx, orgID)
	}
	if r.cache != nil {
		return r.cache.FetchOrg(ctx, orgID, loader)
	}
	return loader(ctx)
}
