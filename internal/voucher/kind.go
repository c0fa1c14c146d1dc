package voucher

import (
	"fmt"

	"github.com/seaway-erp/seaway-erp/internal/sources"
	"github.com/seaway-erp/seaway-erp/internal/subjects"
)

// Kind tags which export pipeline a task runs. Each kind fixes the source
// record selection, the grouping key, the required subject configuration
// codes, and the voucher layout.
type Kind string

const (
	KindPayableFee    Kind = "PAYABLE_FEE"
	KindReceivableFee Kind = "RECEIVABLE_FEE"
	KindTaxInvoice    Kind = "TAX_INVOICE"
)

// ParseKind validates a wire-level kind tag.
func ParseKind(v string) (Kind, error) {
	switch Kind(v) {
	case KindPayableFee, KindReceivableFee, KindTaxInvoice:
		return Kind(v), nil
	default:
		return "", fmt.Errorf("voucher: unknown export kind %q", v)
	}
}

// RecordType returns the source table the kind draws from.
func (k Kind) RecordType() sources.RecordType {
	if k == KindTaxInvoice {
		return sources.TypeInvoice
	}
	return sources.TypeFee
}

// Direction returns the fee direction the kind selects; empty for invoices.
func (k Kind) Direction() sources.Direction {
	switch k {
	case KindPayableFee:
		return sources.DirectionPayable
	case KindReceivableFee:
		return sources.DirectionReceivable
	default:
		return ""
	}
}

// RequiredCodes lists the subject configuration codes the kind needs.
// Account codes are mandatory per touched organization; the metadata codes
// at the tail are optional and default when absent.
func (k Kind) RequiredCodes() []subjects.Code {
	var codes []subjects.Code
	switch k {
	case KindPayableFee:
		codes = []subjects.Code{
			subjects.CodePayableTotal,
			subjects.CodePayableDomestic,
			subjects.CodePayableForeign,
			subjects.CodePayableAdvance,
		}
	case KindReceivableFee:
		codes = []subjects.Code{
			subjects.CodeReceivableTotal,
			subjects.CodeReceivableDomestic,
			subjects.CodeReceivableForeign,
			subjects.CodeReceivableAdvance,
		}
	case KindTaxInvoice:
		codes = []subjects.Code{
			subjects.CodeInvoiceReceivable,
			subjects.CodeInvoiceRevenue,
			subjects.CodeInvoiceTax,
		}
	}
	return append(codes, subjects.CodePreparer, subjects.CodeVoucherGroup)
}
