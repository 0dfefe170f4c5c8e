package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/campusbill/ledger/internal/domain"
)

// FactoryUseCase maps business events (payment received, invoice issued,
// admin charge, discount, manual adjustment) onto canonical signed entries.
// Factories only choose the debit/credit side and build the description; all
// arithmetic and persistence go through the posting coordinator, so the
// invariants live in exactly one place.
type FactoryUseCase struct {
	posting        *PostingUseCase
	accountRepo    AccountRepository
	idempotency    IdempotencyStore
	idempotencyTTL time.Duration
}

// NewFactoryUseCase creates a new FactoryUseCase.
func NewFactoryUseCase(posting *PostingUseCase, accountRepo AccountRepository) *FactoryUseCase {
	return &FactoryUseCase{
		posting:     posting,
		accountRepo: accountRepo,
	}
}

// WithIdempotencyStore enables idempotency-key deduplication for factory
// calls. The engine never retries a failed write on its own; the store makes
// the caller's retries safe instead. A non-positive ttl falls back to
// IdempotencyKeyTTL.
func (uc *FactoryUseCase) WithIdempotencyStore(s IdempotencyStore, ttl time.Duration) *FactoryUseCase {
	if ttl <= 0 {
		ttl = IdempotencyKeyTTL
	}
	uc.idempotency = s
	uc.idempotencyTTL = ttl
	return uc
}

// PaymentInput records a received payment.
type PaymentInput struct {
	TenantID       string
	AccountID      string
	Amount         decimal.Decimal
	Method         string // e.g. "card", "bank transfer"
	ReferenceID    string
	Date           time.Time
	Actor          string
	IdempotencyKey string
}

// RecordPayment posts a credit for a received payment.
func (uc *FactoryUseCase) RecordPayment(ctx context.Context, input PaymentInput) (*domain.Entry, error) {
	movement, err := domain.CreditMovement(input.Amount)
	if err != nil {
		return nil, err
	}

	description := fmt.Sprintf("Payment received (%s)", input.Method)
	if input.Method == "" {
		description = "Payment received"
	}

	return uc.post(ctx, input.IdempotencyKey, PostEntryInput{
		TenantID:    input.TenantID,
		AccountID:   input.AccountID,
		Type:        domain.EntryTypePayment,
		Date:        input.Date,
		Description: description,
		ReferenceID: input.ReferenceID,
		Movement:    movement,
		Actor:       input.Actor,
	})
}

// InvoiceInput posts an issued invoice.
type InvoiceInput struct {
	TenantID       string
	AccountID      string
	Amount         decimal.Decimal
	InvoiceNumber  string
	ReferenceID    string
	Date           time.Time
	Actor          string
	IdempotencyKey string
}

// PostInvoice posts a debit for an issued invoice.
func (uc *FactoryUseCase) PostInvoice(ctx context.Context, input InvoiceInput) (*domain.Entry, error) {
	movement, err := domain.DebitMovement(input.Amount)
	if err != nil {
		return nil, err
	}

	return uc.post(ctx, input.IdempotencyKey, PostEntryInput{
		TenantID:    input.TenantID,
		AccountID:   input.AccountID,
		Type:        domain.EntryTypeInvoice,
		Date:        input.Date,
		Description: fmt.Sprintf("Invoice %s", input.InvoiceNumber),
		ReferenceID: input.ReferenceID,
		Movement:    movement,
		Actor:       input.Actor,
	})
}

// ChargeInput applies an administrative charge.
type ChargeInput struct {
	TenantID       string
	AccountID      string
	Amount         decimal.Decimal
	Reason         string
	ReferenceID    string
	Date           time.Time
	Actor          string
	IdempotencyKey string
}

// ApplyCharge posts a debit for an administrative charge.
func (uc *FactoryUseCase) ApplyCharge(ctx context.Context, input ChargeInput) (*domain.Entry, error) {
	movement, err := domain.DebitMovement(input.Amount)
	if err != nil {
		return nil, err
	}

	return uc.post(ctx, input.IdempotencyKey, PostEntryInput{
		TenantID:    input.TenantID,
		AccountID:   input.AccountID,
		Type:        domain.EntryTypeCharge,
		Date:        input.Date,
		Description: fmt.Sprintf("Charge: %s", input.Reason),
		ReferenceID: input.ReferenceID,
		Movement:    movement,
		Actor:       input.Actor,
	})
}

// DiscountInput applies a discount.
type DiscountInput struct {
	TenantID       string
	AccountID      string
	Amount         decimal.Decimal
	Reason         string
	ReferenceID    string
	Date           time.Time
	Actor          string
	IdempotencyKey string
}

// ApplyDiscount posts a credit for a granted discount.
func (uc *FactoryUseCase) ApplyDiscount(ctx context.Context, input DiscountInput) (*domain.Entry, error) {
	movement, err := domain.CreditMovement(input.Amount)
	if err != nil {
		return nil, err
	}

	return uc.post(ctx, input.IdempotencyKey, PostEntryInput{
		TenantID:    input.TenantID,
		AccountID:   input.AccountID,
		Type:        domain.EntryTypeDiscount,
		Date:        input.Date,
		Description: fmt.Sprintf("Discount: %s", input.Reason),
		ReferenceID: input.ReferenceID,
		Movement:    movement,
		Actor:       input.Actor,
	})
}

// AdjustmentDirection selects which side a manual adjustment moves.
type AdjustmentDirection string

const (
	AdjustmentDebit  AdjustmentDirection = "debit"
	AdjustmentCredit AdjustmentDirection = "credit"
)

// AdjustmentInput applies a manual correction in a caller-chosen direction.
type AdjustmentInput struct {
	TenantID       string
	AccountID      string
	Amount         decimal.Decimal
	Direction      AdjustmentDirection
	Reason         string
	ReferenceID    string
	Date           time.Time
	Actor          string
	IdempotencyKey string
}

// CreateAdjustment posts a manual adjustment.
func (uc *FactoryUseCase) CreateAdjustment(ctx context.Context, input AdjustmentInput) (*domain.Entry, error) {
	var (
		movement domain.Movement
		err      error
	)

	switch input.Direction {
	case AdjustmentDebit:
		movement, err = domain.DebitMovement(input.Amount)
	case AdjustmentCredit:
		movement, err = domain.CreditMovement(input.Amount)
	default:
		return nil, fmt.Errorf("%w: adjustment direction %q", domain.ErrInvalidType, input.Direction)
	}

	if err != nil {
		return nil, err
	}

	return uc.post(ctx, input.IdempotencyKey, PostEntryInput{
		TenantID:    input.TenantID,
		AccountID:   input.AccountID,
		Type:        domain.EntryTypeAdjustment,
		Date:        input.Date,
		Description: fmt.Sprintf("Manual adjustment (%s): %s", input.Direction, input.Reason),
		ReferenceID: input.ReferenceID,
		Movement:    movement,
		Actor:       input.Actor,
	})
}

// post funnels every factory through the coordinator, with optional
// idempotency-key deduplication in front.
func (uc *FactoryUseCase) post(ctx context.Context, idempotencyKey string, input PostEntryInput) (*domain.Entry, error) {
	// Factories look the account up so callers get a NotFound before the
	// coordinator takes any lock.
	if _, err := uc.accountRepo.GetByID(ctx, input.TenantID, input.AccountID); err != nil {
		return nil, err
	}

	if uc.idempotency == nil || idempotencyKey == "" {
		return uc.posting.PostEntry(ctx, input)
	}

	// Keys are tenant-scoped: the same caller-supplied key from two tenants
	// must never collide on one stored entry ID.
	key := input.TenantID + ":" + idempotencyKey

	// A nil response makes the store claim the key with a pending marker.
	exists, stored, err := uc.idempotency.CheckAndSet(ctx, key, nil, uc.idempotencyTTL)
	if err != nil {
		return nil, err
	}

	if exists {
		entryID := string(stored)
		if entryID == IdempotencyPendingMarker {
			return nil, domain.ErrDuplicateRequest
		}

		return uc.posting.entryRepo.GetByID(ctx, input.TenantID, entryID)
	}

	entry, err := uc.posting.PostEntry(ctx, input)
	if err != nil {
		// Release the key so the caller's retry can go through.
		_ = uc.idempotency.Delete(ctx, key)
		return nil, err
	}

	if err := uc.idempotency.Update(ctx, key, []byte(entry.ID), uc.idempotencyTTL); err != nil {
		return entry, nil
	}

	return entry, nil
}
