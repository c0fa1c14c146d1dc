package subjects

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Code names a logical account role ("receivable account", "revenue
// account") that a subject configuration binds to a concrete external
// account number for one organization.
type Code string

const (
	CodePayableTotal       Code = "payable.total"
	CodePayableDomestic    Code = "payable.domestic"
	CodePayableForeign     Code = "payable.foreign"
	CodePayableAdvance     Code = "payable.advance"
	CodeReceivableTotal    Code = "receivable.total"
	CodeReceivableDomestic Code = "receivable.domestic"
	CodeReceivableForeign  Code = "receivable.foreign"
	CodeReceivableAdvance  Code = "receivable.advance"
	CodeInvoiceReceivable  Code = "invoice.receivable"
	CodeInvoiceRevenue     Code = "invoice.revenue"
	CodeInvoiceTax         Code = "invoice.tax"

	// Metadata codes are optional; the generator falls back to defaults
	// when they are absent.
	CodePreparer     Code = "meta.preparer"
	CodeVoucherGroup Code = "meta.voucher_group"
)

// DefaultPreparer and DefaultVoucherGroup apply when the optional metadata
// codes are not configured for an organization.
const (
	DefaultPreparer     = "system"
	DefaultVoucherGroup = "transfer"
)

// IsMetadata reports whether the code carries bookkeeping metadata rather
// than an account number. Metadata codes may be absent; account codes may not.
func (c Code) IsMetadata() bool {
	return strings.HasPrefix(string(c), "meta.")
}

// SubjectConfig maps one code to an external account number and bookkeeping
// metadata, scoped to an organization. A nil OrgID marks the global default
// row that applies wherever no org-specific row exists.
type SubjectConfig struct {
	ID           int64
	Code         Code
	OrgID        *int64
	AccountNo    string
	Category     string
	Preparer     string
	VoucherGroup string
	Deleted      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ErrNoCodes indicates a resolution request without any required codes.
var ErrNoCodes = errors.New("subjects: no codes requested")

// MissingCodesError reports the codes that could not be resolved, per
// organization. Resolution is all-or-nothing: any entry here aborts the run.
type MissingCodesError struct {
	// Missing maps organization id (0 for the global bucket) to the codes
	// without a usable configuration row.
	Missing map[int64][]Code
}

func (e *MissingCodesError) Error() string {
	if e == nil || len(e.Missing) == 0 {
		return "subjects: missing configuration"
	}
	orgIDs := make([]int64, 0, len(e.Missing))
	for org := range e.Missing {
		orgIDs = append(orgIDs, org)
	}
	sort.Slice(orgIDs, func(i, j int) bool { return orgIDs[i] < orgIDs[j] })
	parts := make([]string, 0, len(orgIDs))
	for _, org := range orgIDs {
		codes := make([]string, 0, len(e.Missing[org]))
		for _, c := range e.Missing[org] {
			codes = append(codes, string(c))
		}
		sort.Strings(codes)
		parts = append(parts, fmt.Sprintf("org %d: %s", org, strings.Join(codes, ", ")))
	}
	return "subjects: missing configuration (" + strings.Join(parts, "; ") + ")"
}
