package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/campusbill/ledger/internal/domain"
	"github.com/campusbill/ledger/internal/infrastructure/metrics"
)

// PostingUseCase is the transaction coordinator: it creates exactly one new
// entry per call, fully serialized per account. The prior balance is read and
// the new entry written under the same account row lock, inside one
// transaction, so two concurrent writers can never both observe the same
// previous balance.
type PostingUseCase struct {
	txManager    TransactionManager
	accountRepo  AccountRepository
	entryRepo    EntryRepository
	snapshotRepo SnapshotRepository
	auditRepo    AuditRepository
	idGen        IDGenerator
	retrier      Retrier
	cache        Cache
	metrics      *metrics.Metrics
}

// NewPostingUseCase creates a new PostingUseCase.
func NewPostingUseCase(
	txManager TransactionManager,
	accountRepo AccountRepository,
	entryRepo EntryRepository,
	snapshotRepo SnapshotRepository,
	auditRepo AuditRepository,
	idGen IDGenerator,
) *PostingUseCase {
	return &PostingUseCase{
		txManager:    txManager,
		accountRepo:  accountRepo,
		entryRepo:    entryRepo,
		snapshotRepo: snapshotRepo,
		auditRepo:    auditRepo,
		idGen:        idGen,
	}
}

// WithRetrier enables bounded retry of transient storage failures.
func (uc *PostingUseCase) WithRetrier(r Retrier) *PostingUseCase {
	uc.retrier = r
	return uc
}

// WithCache enables balance-cache invalidation on writes.
func (uc *PostingUseCase) WithCache(c Cache) *PostingUseCase {
	uc.cache = c
	return uc
}

// WithMetrics enables Prometheus instrumentation.
func (uc *PostingUseCase) WithMetrics(m *metrics.Metrics) *PostingUseCase {
	uc.metrics = m
	return uc
}

// PostEntryInput represents input for creating a ledger entry.
type PostEntryInput struct {
	TenantID    string
	AccountID   string
	Type        domain.EntryType
	Date        time.Time
	Description string
	ReferenceID string
	Movement    domain.Movement
	Actor       string
}

// Validate rejects the input before any write happens.
func (in *PostEntryInput) Validate() error {
	if err := domain.ValidateID(in.TenantID); err != nil {
		return fmt.Errorf("tenant id: %w", err)
	}
	if err := domain.ValidateID(in.AccountID); err != nil {
		return fmt.Errorf("account id: %w", err)
	}
	if !in.Type.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidType, in.Type)
	}
	if err := domain.ValidateDescription(in.Description); err != nil {
		return err
	}
	if err := domain.ValidateAmount(in.Movement.Debit); err != nil {
		return err
	}
	if err := domain.ValidateAmount(in.Movement.Credit); err != nil {
		return err
	}

	// Movements are validated at construction; re-check here so the
	// invariant does not depend on callers using NewMovement.
	return domain.ValidateMovement(in.Movement.Debit, in.Movement.Credit)
}

// PostEntry creates one ledger entry, all-or-nothing.
func (uc *PostingUseCase) PostEntry(ctx context.Context, input PostEntryInput) (*domain.Entry, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()

	var entry *domain.Entry

	op := func() error {
		e, err := uc.postOnce(ctx, input)
		if err != nil {
			return err
		}

		entry = e

		return nil
	}

	var err error
	if uc.retrier != nil {
		err = uc.retrier.Retry(ctx, op)
	} else {
		err = op()
	}

	if err != nil {
		if uc.metrics != nil {
			uc.metrics.PostingErrors.WithLabelValues(errorLabel(err)).Inc()
		}

		return nil, err
	}

	uc.invalidateBalance(ctx, input.TenantID, input.AccountID)

	if uc.metrics != nil {
		uc.metrics.EntriesPosted.WithLabelValues(string(input.Type)).Inc()
		uc.metrics.PostingDuration.Observe(time.Since(start).Seconds())
	}

	return entry, nil
}

func (uc *PostingUseCase) postOnce(ctx context.Context, input PostEntryInput) (*domain.Entry, error) {
	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	account, err := uc.accountRepo.GetByIDForUpdate(ctx, tx, input.TenantID, input.AccountID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	entry, err := uc.postLocked(ctx, tx, account, input, now)
	if err != nil {
		return nil, err
	}

	if uc.auditRepo != nil {
		err = uc.auditRepo.CreateTx(ctx, tx, &domain.AuditLog{
			TenantID:     input.TenantID,
			Actor:        input.Actor,
			Action:       string(domain.AuditActionEntryPost),
			ResourceType: "entry",
			ResourceID:   entry.ID,
			AfterState:   domain.MarshalState(entry),
			Status:       string(domain.AuditStatusSuccess),
			CreatedAt:    now,
		})
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	return entry, nil
}

// postLocked writes one entry and folds it into the snapshot. The caller must
// hold the account row lock within tx.
func (uc *PostingUseCase) postLocked(
	ctx context.Context,
	tx Transaction,
	account *domain.Account,
	input PostEntryInput,
	now time.Time,
) (*domain.Entry, error) {
	last, err := uc.entryRepo.GetLastForAccount(ctx, tx, account.ID)
	if err != nil {
		return nil, err
	}

	previous := decimal.Zero
	if last != nil {
		previous = last.RunningBalance
	}

	newBalance := domain.NextBalance(previous, input.Movement.Debit, input.Movement.Credit)

	date := input.Date
	if date.IsZero() {
		date = now
	}

	entry := &domain.Entry{
		ID:             uc.idGen.Generate(),
		AccountID:      account.ID,
		TenantID:       account.TenantID,
		Date:           date,
		Type:           input.Type,
		Description:    input.Description,
		ReferenceID:    input.ReferenceID,
		Debit:          input.Movement.Debit,
		Credit:         input.Movement.Credit,
		RunningBalance: newBalance,
		BalanceType:    domain.ClassifyBalance(newBalance),
		CreatedAt:      now,
	}

	// EntrySequence is assigned by the storage layer here.
	if err := uc.entryRepo.Create(ctx, tx, entry); err != nil {
		return nil, err
	}

	snapshot, err := uc.snapshotRepo.GetTx(ctx, tx, account.ID)
	if err != nil {
		return nil, err
	}

	if snapshot == nil {
		snapshot = &domain.BalanceSnapshot{
			AccountID:    account.ID,
			TenantID:     account.TenantID,
			TotalDebits:  decimal.Zero,
			TotalCredits: decimal.Zero,
		}
	}

	snapshot.Apply(entry)

	if err := uc.snapshotRepo.Upsert(ctx, tx, snapshot); err != nil {
		return nil, err
	}

	return entry, nil
}

// errorLabel keeps the posting-error metric label set small and bounded.
func errorLabel(err error) string {
	switch {
	case errors.Is(err, domain.ErrAccountNotFound):
		return "account_not_found"
	case errors.Is(err, domain.ErrBothSidesSet), errors.Is(err, domain.ErrZeroMovement),
		errors.Is(err, domain.ErrNegativeAmount):
		return "invalid_movement"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return "timeout"
	default:
		return "storage"
	}
}

func (uc *PostingUseCase) invalidateBalance(ctx context.Context, tenantID, accountID string) {
	if uc.cache == nil {
		return
	}

	_ = uc.cache.Delete(ctx, balanceCacheKey(tenantID, accountID))
}
