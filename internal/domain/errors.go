package domain

import "errors"

var (
	// Validation errors: rejected before any write.
	ErrNegativeAmount = errors.New("movement amounts must not be negative")
	ErrBothSidesSet   = errors.New("movement cannot carry both a debit and a credit")
	ErrZeroMovement   = errors.New("movement must carry exactly one positive amount")
	ErrInvalidType    = errors.New("unknown entry type")

	// Not-found errors.
	ErrAccountNotFound = errors.New("account not found")
	ErrEntryNotFound   = errors.New("ledger entry not found")

	// Conflict errors.
	ErrAlreadyReversed  = errors.New("entry is already reversed")
	ErrDuplicateRequest = errors.New("duplicate request for idempotency key")

	// Consistency errors.
	ErrSnapshotMismatch = errors.New("snapshot balance does not match entry history")
)
