package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/campusbill/ledger/internal/domain"
)

// ReversalUseCase creates compensating entries. A reversal is a
// net-correction: the compensating entry cancels the original's contribution
// to the current balance no matter how many entries were posted in between.
// It is not a rewind to the balance that existed right after the original.
type ReversalUseCase struct {
	posting *PostingUseCase
}

// NewReversalUseCase creates a new ReversalUseCase on top of the coordinator.
func NewReversalUseCase(posting *PostingUseCase) *ReversalUseCase {
	return &ReversalUseCase{posting: posting}
}

// ReverseEntryInput represents input for reversing an entry.
type ReverseEntryInput struct {
	TenantID string
	EntryID  string
	Actor    string
	Reason   string
}

// Validate rejects the input before any write happens.
func (in *ReverseEntryInput) Validate() error {
	if err := domain.ValidateID(in.TenantID); err != nil {
		return fmt.Errorf("tenant id: %w", err)
	}
	if err := domain.ValidateID(in.EntryID); err != nil {
		return fmt.Errorf("entry id: %w", err)
	}

	return domain.ValidateDescription(in.Reason)
}

// ReverseEntry marks the original entry reversed and posts the compensating
// entry, both inside one transaction. Reversing an already-reversed entry is
// a conflict, not a no-op: a second attempt is rejected.
func (uc *ReversalUseCase) ReverseEntry(ctx context.Context, input ReverseEntryInput) (*domain.Entry, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	// Resolve the account before taking any lock; lock ordering is always
	// account row first, matching the posting path.
	original, err := uc.posting.entryRepo.GetByID(ctx, input.TenantID, input.EntryID)
	if err != nil {
		return nil, err
	}

	var reversal *domain.Entry

	op := func() error {
		e, err := uc.reverseOnce(ctx, input, original.AccountID)
		if err != nil {
			return err
		}

		reversal = e

		return nil
	}

	if uc.posting.retrier != nil {
		err = uc.posting.retrier.Retry(ctx, op)
	} else {
		err = op()
	}

	if err != nil {
		return nil, err
	}

	uc.posting.invalidateBalance(ctx, input.TenantID, original.AccountID)

	if uc.posting.metrics != nil {
		uc.posting.metrics.EntriesReversed.Inc()
	}

	return reversal, nil
}

func (uc *ReversalUseCase) reverseOnce(ctx context.Context, input ReverseEntryInput, accountID string) (*domain.Entry, error) {
	tx, err := uc.posting.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	account, err := uc.posting.accountRepo.GetByIDForUpdate(ctx, tx, input.TenantID, accountID)
	if err != nil {
		return nil, err
	}

	// Re-read under the account lock; the reversed flag only ever changes
	// while this lock is held.
	original, err := uc.posting.entryRepo.GetByIDForUpdate(ctx, tx, input.TenantID, input.EntryID)
	if err != nil {
		return nil, err
	}

	if original.IsReversed {
		return nil, domain.ErrAlreadyReversed
	}

	movement, err := domain.NewMovement(original.Credit, original.Debit)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	reversal, err := uc.posting.postLocked(ctx, tx, account, PostEntryInput{
		TenantID:    input.TenantID,
		AccountID:   account.ID,
		Type:        domain.EntryTypeReversal,
		Date:        now,
		Description: fmt.Sprintf("Reversal of %s: %s", original.Description, input.Reason),
		ReferenceID: original.ID,
		Movement:    movement,
		Actor:       input.Actor,
	}, now)
	if err != nil {
		return nil, err
	}

	if err := uc.posting.entryRepo.MarkReversed(ctx, tx, original.ID, reversal.ID, now); err != nil {
		return nil, err
	}

	if uc.posting.auditRepo != nil {
		err = uc.posting.auditRepo.CreateTx(ctx, tx, &domain.AuditLog{
			TenantID:     input.TenantID,
			Actor:        input.Actor,
			Action:       string(domain.AuditActionEntryReverse),
			ResourceType: "entry",
			ResourceID:   original.ID,
			BeforeState:  domain.MarshalState(original),
			AfterState:   domain.MarshalState(reversal),
			Status:       string(domain.AuditStatusSuccess),
			ErrorMessage: "",
			CreatedAt:    now,
		})
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return reversal, nil
}
