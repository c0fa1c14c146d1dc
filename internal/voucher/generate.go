package voucher

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/seaway-erp/seaway-erp/internal/subjects"
)

// ErrNoEntries indicates every group was skipped and nothing reached the
// ledger file.
var ErrNoEntries = errors.New("voucher: no ledger entries generated")

// Result carries the generated entries plus the counters surfaced in the
// task summary.
type Result struct {
	Entries       []LedgerEntry
	VoucherCount  int
	SkippedGroups int
	Total         decimal.Decimal
}

// Generator turns aggregated groups into balanced ledger entry sets.
//
// The caller guarantees the configuration set resolved for every
// organization the groups touch; the generator never runs otherwise.
type Generator struct {
	logger *slog.Logger
}

// NewGenerator constructs a Generator. The logger may be nil.
func NewGenerator(logger *slog.Logger) *Generator {
	return &Generator{logger: logger}
}

// Generate emits ledger entries for the groups. Fee kinds produce a single
// voucher: one line per mapped group plus one balancing summary line per
// organization on the opposite side, so debit and credit totals are the
// same computed sum by construction. The invoice kind produces one voucher
// per group. Unmapped or zero-amount groups are skipped and counted, never
// a hard failure.
func (g *Generator) Generate(kind Kind, groups []Group, set *subjects.ConfigSet, date time.Time) (Result, error) {
	if set == nil {
		return Result{}, errors.New("voucher: configuration set required")
	}
	if len(groups) == 0 {
		return Result{}, ErrNoRecords
	}
	switch kind {
	case KindPayableFee, KindReceivableFee:
		return g.generateFees(kind, groups, set, date)
	case KindTaxInvoice:
		return g.generateInvoices(groups, set, date)
	default:
		return Result{}, fmt.Errorf("voucher: unknown export kind %q", kind)
	}
}

func (g *Generator) generateFees(kind Kind, groups []Group, set *subjects.ConfigSet, date time.Time) (Result, error) {
	// Group lines on one side, the balancing summary on the opposite side.
	creditGroups := kind == KindReceivableFee

	res := Result{Total: decimal.Zero}
	const voucherNo = 1
	entryID := 0
	orgTotals := make(map[int64]decimal.Decimal)
	var orgOrder []int64

	for _, group := range groups {
		if group.Total.IsZero() {
			g.skip(group, "zero amount")
			res.SkippedGroups++
			continue
		}
		code, ok := feeRule(kind, group.Key)
		if !ok {
			g.skip(group, "no account mapping")
			res.SkippedGroups++
			continue
		}
		view := set.ForOrg(group.Key.OrgID)
		accountNo, ok := view.AccountNo(code)
		if !ok {
			// Resolution is checked before generation; a miss here is a defect.
			return Result{}, fmt.Errorf("voucher: account code %s unresolved for org %d", code, group.Key.OrgID)
		}
		res.Entries = append(res.Entries, LedgerEntry{
			Date:             date,
			Period:           int(date.Month()),
			VoucherGroup:     view.VoucherGroup(),
			VoucherNo:        voucherNo,
			EntryID:          entryID,
			Description:      group.Label,
			AccountCode:      accountNo,
			CounterpartyCode: group.Key.Counterparty,
			CounterpartyName: group.CounterpartyName,
			Currency:         BaseCurrency,
			ExchangeRate:     decimal.NewFromInt(1),
			Credit:           creditGroups,
			Amount:           group.Total,
			Preparer:         view.Preparer(),
			Module:           ModuleTag,
		})
		entryID++
		if _, ok := orgTotals[group.Key.OrgID]; !ok {
			orgOrder = append(orgOrder, group.Key.OrgID)
		}
		orgTotals[group.Key.OrgID] = orgTotals[group.Key.OrgID].Add(group.Total)
		res.Total = res.Total.Add(group.Total)
	}
	if len(res.Entries) == 0 {
		return Result{}, ErrNoEntries
	}
	for _, orgID := range orgOrder {
		view := set.ForOrg(orgID)
		accountNo, ok := view.AccountNo(totalCode(kind))
		if !ok {
			return Result{}, fmt.Errorf("voucher: account code %s unresolved for org %d", totalCode(kind), orgID)
		}
		res.Entries = append(res.Entries, LedgerEntry{
			Date:         date,
			Period:       int(date.Month()),
			VoucherGroup: view.VoucherGroup(),
			VoucherNo:    voucherNo,
			EntryID:      entryID,
			Description:  summaryLabel(kind),
			AccountCode:  accountNo,
			Currency:     BaseCurrency,
			ExchangeRate: decimal.NewFromInt(1),
			Credit:       !creditGroups,
			Amount:       orgTotals[orgID],
			Preparer:     view.Preparer(),
			Module:       ModuleTag,
		})
		entryID++
	}
	res.VoucherCount = 1
	return res, nil
}

func (g *Generator) generateInvoices(groups []Group, set *subjects.ConfigSet, date time.Time) (Result, error) {
	res := Result{Total: decimal.Zero}
	voucherNo := 0
	for _, group := range groups {
		if group.Total.IsZero() {
			g.skip(group, "zero amount")
			res.SkippedGroups++
			continue
		}
		view := set.ForOrg(group.Key.OrgID)
		receivableNo, ok := view.AccountNo(subjects.CodeInvoiceReceivable)
		if !ok {
			return Result{}, fmt.Errorf("voucher: account code %s unresolved for org %d", subjects.CodeInvoiceReceivable, group.Key.OrgID)
		}
		revenueNo, ok := view.AccountNo(subjects.CodeInvoiceRevenue)
		if !ok {
			return Result{}, fmt.Errorf("voucher: account code %s unresolved for org %d", subjects.CodeInvoiceRevenue, group.Key.OrgID)
		}
		taxNo, ok := view.AccountNo(subjects.CodeInvoiceTax)
		if !ok {
			return Result{}, fmt.Errorf("voucher: account code %s unresolved for org %d", subjects.CodeInvoiceTax, group.Key.OrgID)
		}
		voucherNo++
		entryID := 0
		base := LedgerEntry{
			Date:             date,
			Period:           int(date.Month()),
			VoucherGroup:     view.VoucherGroup(),
			VoucherNo:        voucherNo,
			CounterpartyCode: group.Key.Counterparty,
			CounterpartyName: group.CounterpartyName,
			Currency:         BaseCurrency,
			ExchangeRate:     decimal.NewFromInt(1),
			Preparer:         view.Preparer(),
			Module:           ModuleTag,
		}

		gross := base
		gross.EntryID = entryID
		gross.Description = group.Label
		gross.AccountCode = receivableNo
		gross.Amount = group.Total
		res.Entries = append(res.Entries, gross)
		entryID++

		revenue := base
		revenue.EntryID = entryID
		revenue.Description = group.Label + " revenue"
		revenue.AccountCode = revenueNo
		revenue.Credit = true
		revenue.Amount = group.Net()
		res.Entries = append(res.Entries, revenue)
		entryID++

		// A zero tax component is skipped rather than emitted as a
		// zero-value line.
		if !group.Tax.IsZero() {
			tax := base
			tax.EntryID = entryID
			tax.Description = group.Label + " tax"
			tax.AccountCode = taxNo
			tax.Credit = true
			tax.Amount = group.Tax
			res.Entries = append(res.Entries, tax)
		}
		res.Total = res.Total.Add(group.Total)
	}
	if len(res.Entries) == 0 {
		return Result{}, ErrNoEntries
	}
	res.VoucherCount = voucherNo
	return res, nil
}

func (g *Generator) skip(group Group, reason string) {
	if g.logger == nil {
		return
	}
	g.logger.Warn("skipping group",
		slog.String("group", group.Key.String()),
		slog.String("reason", reason),
	)
}

func summaryLabel(kind Kind) string {
	if kind == KindReceivableFee {
		return "receivable fees total"
	}
	return "payable fees total"
}
