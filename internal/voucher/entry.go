package voucher

import (
	"time"

	"github.com/shopspring/decimal"
)

// BaseCurrency is the ledger currency every exported amount is stated in.
const BaseCurrency = "RMB"

// ModuleTag is the fixed module marker the general ledger expects on
// imported rows.
const ModuleTag = "GL"

// LedgerEntry is one accounting line. Entries sharing a voucher number must
// balance; they are generated in memory per run and exist only as rows of
// the binary output, never as persisted records.
type LedgerEntry struct {
	Date              time.Time
	Period            int
	VoucherGroup      string
	VoucherNo         int
	EntryID           int
	Description       string
	AccountCode       string
	CounterpartyClass string
	CounterpartyCode  string
	CounterpartyName  string
	TransID           string
	Currency          string
	ExchangeRate      decimal.Decimal
	Credit            bool
	Amount            decimal.Decimal
	Preparer          string
	Module            string
	Deleted           bool
}

// Debit returns the debit amount of the row; zero for credit rows.
func (e LedgerEntry) Debit() decimal.Decimal {
	if e.Credit {
		return decimal.Zero
	}
	return e.Amount
}

// CreditAmount returns the credit amount of the row; zero for debit rows.
func (e LedgerEntry) CreditAmount() decimal.Decimal {
	if e.Credit {
		return e.Amount
	}
	return decimal.Zero
}
