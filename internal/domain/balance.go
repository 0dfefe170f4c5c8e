package domain

import "github.com/shopspring/decimal"

// BalanceTolerance is the band around zero inside which a balance is treated
// as settled, and the maximum acceptable reconciliation drift.
var BalanceTolerance = decimal.RequireFromString("0.01")

// NextBalance returns the signed balance after applying a movement to the
// previous balance, rounded to 2 decimal places.
//
// The result is never passed through an absolute-value transform. A negative
// balance means the account holds credit (overpayment); collapsing the sign
// here would silently corrupt credit tracking.
func NextBalance(previous, debit, credit decimal.Decimal) decimal.Decimal {
	return previous.Add(debit).Sub(credit).Round(2)
}

// ClassifyBalance maps a signed balance to its BalanceType with the
// BalanceTolerance band around zero.
func ClassifyBalance(balance decimal.Decimal) BalanceType {
	switch {
	case balance.GreaterThan(BalanceTolerance):
		return BalanceTypeDebit
	case balance.LessThan(BalanceTolerance.Neg()):
		return BalanceTypeCredit
	default:
		return BalanceTypeNil
	}
}

// ValidateMovement enforces the debit/credit mutual-exclusion invariant:
// both amounts non-negative, exactly one strictly positive.
func ValidateMovement(debit, credit decimal.Decimal) error {
	if debit.IsNegative() || credit.IsNegative() {
		return ErrNegativeAmount
	}
	if debit.IsPositive() && credit.IsPositive() {
		return ErrBothSidesSet
	}
	if debit.IsZero() && credit.IsZero() {
		return ErrZeroMovement
	}
	return nil
}

// WithinTolerance reports whether two balances agree within BalanceTolerance.
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(BalanceTolerance)
}
