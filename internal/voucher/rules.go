package voucher

import "github.com/seaway-erp/seaway-erp/internal/subjects"

// feeRuleKey keys the account decision table on the group's category flags.
type feeRuleKey struct {
	Kind    Kind
	Foreign bool
	Advance bool
}

// feeRules maps category combinations to the subject code carrying the
// account number. New categories are additive rows here, not new code
// paths. Foreign advance fees have no ledger mapping; those groups are
// skipped and counted.
var feeRules = map[feeRuleKey]subjects.Code{
	{Kind: KindPayableFee, Foreign: false, Advance: false}: subjects.CodePayableDomestic,
	{Kind: KindPayableFee, Foreign: true, Advance: false}:  subjects.CodePayableForeign,
	{Kind: KindPayableFee, Foreign: false, Advance: true}:  subjects.CodePayableAdvance,

	{Kind: KindReceivableFee, Foreign: false, Advance: false}: subjects.CodeReceivableDomestic,
	{Kind: KindReceivableFee, Foreign: true, Advance: false}:  subjects.CodeReceivableForeign,
	{Kind: KindReceivableFee, Foreign: false, Advance: true}:  subjects.CodeReceivableAdvance,
}

func feeRule(kind Kind, key GroupKey) (subjects.Code, bool) {
	code, ok := feeRules[feeRuleKey{Kind: kind, Foreign: key.Foreign, Advance: key.Advance}]
	return code, ok
}

func totalCode(kind Kind) subjects.Code {
	if kind == KindReceivableFee {
		return subjects.CodeReceivableTotal
	}
	return subjects.CodePayableTotal
}
