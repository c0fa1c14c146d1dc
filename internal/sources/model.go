package sources

import (
	"time"

	"github.com/shopspring/decimal"
)

// RecordType discriminates the two source tables feeding the export pipeline.
type RecordType string

const (
	TypeFee     RecordType = "FEE"
	TypeInvoice RecordType = "INVOICE"
)

// Direction marks whether a fee is owed to or by the counterparty.
type Direction string

const (
	DirectionPayable    Direction = "PAYABLE"
	DirectionReceivable Direction = "RECEIVABLE"
)

// Record is the unified read model for one exportable financial source row.
// A record carries no organization id of its own; OrgID is resolved through
// the shipment-job join chain at query time.
type Record struct {
	ID               int64
	Type             RecordType
	Direction        Direction
	OrgID            int64
	JobID            int64
	JobNo            string
	Counterparty     string
	CounterpartyName string
	Amount           decimal.Decimal
	TaxAmount        decimal.Decimal
	Currency         string
	ExchangeRate     decimal.Decimal
	Foreign          bool
	Advance          bool
	Date             time.Time
	ExportTaskID     *int64
	ExportedAt       *time.Time
}

// BaseAmount is the amount converted to the ledger base currency.
func (r Record) BaseAmount() decimal.Decimal {
	return r.Amount.Mul(r.ExchangeRate)
}

// BaseTaxAmount converts the tax component into the ledger base currency.
func (r Record) BaseTaxAmount() decimal.Decimal {
	return r.TaxAmount.Mul(r.ExchangeRate)
}

// Filter narrows the exportable record set. All fields are optional; the
// stringly-typed wire filter is parsed into this struct once, at the
// request/worker boundary.
type Filter struct {
	Counterparty string
	JobNo        string
	Currency     string
	DateFrom     *time.Time
	DateTo       *time.Time
}
