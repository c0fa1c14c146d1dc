package export

import (
	"fmt"
	"strconv"
	"time"

	"github.com/seaway-erp/seaway-erp/internal/orgs"
	"github.com/seaway-erp/seaway-erp/internal/shared"
	"github.com/seaway-erp/seaway-erp/internal/sources"
	"github.com/seaway-erp/seaway-erp/internal/voucher"
)

const dateLayout = "2006-01-02"

// Params is the typed form of one export request. Tasks persist params as a
// flat string map so the worker re-parses them through the same validation
// the submission endpoint used.
type Params struct {
	Kind           voucher.Kind
	AccountingDate time.Time
	FilterOrgID    int64
	Filter         sources.Filter
	Principal      shared.Principal
}

// ToMap flattens the params for storage.
func (p Params) ToMap() map[string]string {
	m := map[string]string{
		"kind":            string(p.Kind),
		"accounting_date": p.AccountingDate.Format(dateLayout),
		"principal_id":    strconv.FormatInt(p.Principal.ID, 10),
		"principal_role":  string(p.Principal.Role),
	}
	if p.Principal.MerchantID != 0 {
		m["merchant_id"] = strconv.FormatInt(p.Principal.MerchantID, 10)
	}
	if p.FilterOrgID != 0 {
		m["org_id"] = strconv.FormatInt(p.FilterOrgID, 10)
	}
	if p.Filter.Counterparty != "" {
		m["counterparty"] = p.Filter.Counterparty
	}
	if p.Filter.JobNo != "" {
		m["job_no"] = p.Filter.JobNo
	}
	if p.Filter.Currency != "" {
		m["currency"] = p.Filter.Currency
	}
	if p.Filter.DateFrom != nil {
		m["date_from"] = p.Filter.DateFrom.Format(dateLayout)
	}
	if p.Filter.DateTo != nil {
		m["date_to"] = p.Filter.DateTo.Format(dateLayout)
	}
	return m
}

// ParseParams rebuilds typed params from the stored map. Every value is
// validated; a task whose stored params no longer parse fails in the params
// step rather than running with a partial filter.
func ParseParams(m map[string]string) (Params, error) {
	var p Params
	kind, err := voucher.ParseKind(m["kind"])
	if err != nil {
		return Params{}, err
	}
	p.Kind = kind

	p.AccountingDate, err = time.Parse(dateLayout, m["accounting_date"])
	if err != nil {
		return Params{}, fmt.Errorf("export: accounting_date: %w", err)
	}

	if v, ok := m["org_id"]; ok {
		p.FilterOrgID, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Params{}, fmt.Errorf("export: org_id: %w", err)
		}
	}
	p.Filter.Counterparty = m["counterparty"]
	p.Filter.JobNo = m["job_no"]
	p.Filter.Currency = m["currency"]
	if v, ok := m["date_from"]; ok {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return Params{}, fmt.Errorf("export: date_from: %w", err)
		}
		p.Filter.DateFrom = &t
	}
	if v, ok := m["date_to"]; ok {
		t, err := time.Parse(dateLayout, v)
		if err != nil {
			return Params{}, fmt.Errorf("export: date_to: %w", err)
		}
		p.Filter.DateTo = &t
	}
	if p.Filter.DateFrom != nil && p.Filter.DateTo != nil && p.Filter.DateTo.Before(*p.Filter.DateFrom) {
		return Params{}, fmt.Errorf("export: date_to before date_from")
	}

	if v, ok := m["principal_id"]; ok {
		p.Principal.ID, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Params{}, fmt.Errorf("export: principal_id: %w", err)
		}
	}
	p.Principal.Role = shared.NormaliseRole(m["principal_role"])
	if v, ok := m["merchant_id"]; ok {
		p.Principal.MerchantID, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Params{}, fmt.Errorf("export: merchant_id: %w", err)
		}
	}
	return p, nil
}

// Query derives the record selection the params describe, bounded by the
// already-resolved scope snapshot.
func (p Params) Query(scope orgs.Scope) sources.Query {
	return sources.Query{
		Type:      p.Kind.RecordType(),
		Direction: p.Kind.Direction(),
		Scope:     scope,
		Filter:    p.Filter,
	}
}
