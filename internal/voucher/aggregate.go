package voucher

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/seaway-erp/seaway-erp/internal/sources"
)

// ErrNoRecords indicates the filter matched nothing. "Nothing to export" is
// a reported terminal condition, not a silently empty success.
var ErrNoRecords = errors.New("voucher: no records to export")

// GroupKey identifies one voucher-worthy bucket. The organization is part of
// the key because a multi-organization run may bind different account
// numbers per organization.
type GroupKey struct {
	OrgID        int64
	Counterparty string
	Foreign      bool
	Advance      bool
}

func (k GroupKey) String() string {
	return fmt.Sprintf("org=%d cp=%s foreign=%t advance=%t", k.OrgID, k.Counterparty, k.Foreign, k.Advance)
}

// Group is one aggregated bucket with its monetary totals accumulated in
// the ledger base currency.
type Group struct {
	Key              GroupKey
	Label            string
	CounterpartyName string
	Total            decimal.Decimal
	Tax              decimal.Decimal
	RecordCount      int
	RecordIDs        []int64
}

// Net returns the group total minus its tax component.
func (g Group) Net() decimal.Decimal {
	return g.Total.Sub(g.Tax)
}

// Aggregate buckets the records by the kind's grouping key and sums their
// base-currency amounts. The result ordering is deterministic for a given
// input set so voucher numbering is reproducible.
func Aggregate(kind Kind, records []sources.Record) ([]Group, error) {
	if len(records) == 0 {
		return nil, ErrNoRecords
	}
	buckets := make(map[GroupKey]*Group)
	for _, rec := range records {
		key := GroupKey{OrgID: rec.OrgID, Counterparty: rec.Counterparty}
		if kind != KindTaxInvoice {
			key.Foreign = rec.Foreign
			key.Advance = rec.Advance
		}
		g, ok := buckets[key]
		if !ok {
			g = &Group{
				Key:              key,
				Label:            groupLabel(kind, key, rec.CounterpartyName),
				CounterpartyName: rec.CounterpartyName,
				Total:            decimal.Zero,
				Tax:              decimal.Zero,
			}
			buckets[key] = g
		}
		g.Total = g.Total.Add(rec.BaseAmount())
		g.Tax = g.Tax.Add(rec.BaseTaxAmount())
		g.RecordCount++
		g.RecordIDs = append(g.RecordIDs, rec.ID)
	}
	groups := make([]Group, 0, len(buckets))
	for _, g := range buckets {
		sort.Slice(g.RecordIDs, func(i, j int) bool { return g.RecordIDs[i] < g.RecordIDs[j] })
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool {
		a, b := groups[i].Key, groups[j].Key
		if a.OrgID != b.OrgID {
			return a.OrgID < b.OrgID
		}
		if a.Counterparty != b.Counterparty {
			return a.Counterparty < b.Counterparty
		}
		if a.Foreign != b.Foreign {
			return !a.Foreign
		}
		return !a.Advance
	})
	return groups, nil
}

func groupLabel(kind Kind, key GroupKey, counterpartyName string) string {
	name := counterpartyName
	if name == "" {
		name = key.Counterparty
	}
	switch kind {
	case KindPayableFee:
		return "payable fees " + name + flagSuffix(key)
	case KindReceivableFee:
		return "receivable fees " + name + flagSuffix(key)
	default:
		return "tax invoices " + name
	}
}

func flagSuffix(key GroupKey) string {
	suffix := ""
	if key.Foreign {
		suffix += " (foreign)"
	}
	if key.Advance {
		suffix += " (advance)"
	}
	return suffix
}
