package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntryType identifies the business event behind a ledger entry.
type EntryType string

const (
	EntryTypePayment    EntryType = "payment"
	EntryTypeCharge     EntryType = "charge"
	EntryTypeDiscount   EntryType = "discount"
	EntryTypeAdjustment EntryType = "adjustment"
	EntryTypeInvoice    EntryType = "invoice"
	EntryTypeReversal   EntryType = "reversal"
)

// Valid reports whether t is a known entry type.
func (t EntryType) Valid() bool {
	switch t {
	case EntryTypePayment, EntryTypeCharge, EntryTypeDiscount,
		EntryTypeAdjustment, EntryTypeInvoice, EntryTypeReversal:
		return true
	}
	return false
}

// BalanceType classifies the sign of a running balance.
type BalanceType string

const (
	BalanceTypeDebit  BalanceType = "debit"
	BalanceTypeCredit BalanceType = "credit"
	BalanceTypeNil    BalanceType = "nil"
)

// Entry is a single signed movement on an account's ledger. Immutable once
// committed except for the reversal fields, which are set once and never
// cleared. Entries are never physically deleted.
type Entry struct {
	ID          string
	AccountID   string
	TenantID    string
	Date        time.Time
	Type        EntryType
	Description string
	ReferenceID string

	// Exactly one of Debit/Credit is strictly positive, the other is zero.
	Debit  decimal.Decimal
	Credit decimal.Decimal

	// RunningBalance is the signed account balance immediately after this
	// entry (positive = owes, negative = holds credit).
	RunningBalance decimal.Decimal
	BalanceType    BalanceType

	// EntrySequence is assigned by the storage layer inside the posting
	// transaction; strictly increasing and gapless per account.
	EntrySequence int64

	IsReversed   bool
	ReversedBy   string
	ReversalDate *time.Time

	CreatedAt time.Time
}

// Delta returns the entry's signed contribution to the running balance.
func (e *Entry) Delta() decimal.Decimal {
	return e.Debit.Sub(e.Credit)
}

// Movement is a validated debit/credit pair. Construct via NewMovement so the
// mutual-exclusion invariant holds for every entry type, including future ones.
type Movement struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

// NewMovement builds a Movement, enforcing that both amounts are non-negative
// and exactly one is strictly positive.
func NewMovement(debit, credit decimal.Decimal) (Movement, error) {
	if err := ValidateMovement(debit, credit); err != nil {
		return Movement{}, err
	}
	return Movement{Debit: debit, Credit: credit}, nil
}

// DebitMovement builds a debit-side Movement.
func DebitMovement(amount decimal.Decimal) (Movement, error) {
	return NewMovement(amount, decimal.Zero)
}

// CreditMovement builds a credit-side Movement.
func CreditMovement(amount decimal.Decimal) (Movement, error) {
	return NewMovement(decimal.Zero, amount)
}

// Swapped returns the compensating movement with debit and credit exchanged.
func (m Movement) Swapped() Movement {
	return Movement{Debit: m.Credit, Credit: m.Debit}
}
