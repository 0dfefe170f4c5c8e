package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/campusbill/ledger/internal/domain"
	"github.com/campusbill/ledger/internal/infrastructure/metrics"
)

// BalanceUseCase answers balance queries and entry listings. The snapshot
// (and, in front of it, the redis cache) is only ever an accelerator; when
// the snapshot is missing or fails its integrity check the balance is
// recomputed from the entry log.
type BalanceUseCase struct {
	accountRepo  AccountRepository
	entryRepo    EntryRepository
	snapshotRepo SnapshotRepository
	ledgerRepo   LedgerRepository
	cache        Cache
	metrics      *metrics.Metrics
}

// NewBalanceUseCase creates a new BalanceUseCase.
func NewBalanceUseCase(
	accountRepo AccountRepository,
	entryRepo EntryRepository,
	snapshotRepo SnapshotRepository,
	ledgerRepo LedgerRepository,
) *BalanceUseCase {
	return &BalanceUseCase{
		accountRepo:  accountRepo,
		entryRepo:    entryRepo,
		snapshotRepo: snapshotRepo,
		ledgerRepo:   ledgerRepo,
	}
}

// WithCache enables the redis read-through cache.
func (uc *BalanceUseCase) WithCache(c Cache) *BalanceUseCase {
	uc.cache = c
	return uc
}

// WithMetrics enables Prometheus instrumentation.
func (uc *BalanceUseCase) WithMetrics(m *metrics.Metrics) *BalanceUseCase {
	uc.metrics = m
	return uc
}

// BalanceSummary is the answer to a balance query.
type BalanceSummary struct {
	AccountID    string             `json:"account_id"`
	TenantID     string             `json:"tenant_id"`
	Balance      decimal.Decimal    `json:"balance"`
	BalanceType  domain.BalanceType `json:"balance_type"`
	TotalDebits  decimal.Decimal    `json:"total_debits"`
	TotalCredits decimal.Decimal    `json:"total_credits"`
	TotalEntries int64              `json:"total_entries"`
	AsOf         time.Time          `json:"as_of"`
}

// GetBalance returns the signed current balance with gross totals.
func (uc *BalanceUseCase) GetBalance(ctx context.Context, tenantID, accountID string) (*BalanceSummary, error) {
	if err := domain.ValidateID(tenantID); err != nil {
		return nil, err
	}
	if err := domain.ValidateID(accountID); err != nil {
		return nil, err
	}

	if summary := uc.fromCache(ctx, tenantID, accountID); summary != nil {
		return summary, nil
	}

	account, err := uc.accountRepo.GetByID(ctx, tenantID, accountID)
	if err != nil {
		return nil, err
	}

	summary, err := uc.summarize(ctx, account)
	if err != nil {
		return nil, err
	}

	uc.toCache(ctx, summary)

	return summary, nil
}

func (uc *BalanceUseCase) summarize(ctx context.Context, account *domain.Account) (*BalanceSummary, error) {
	snapshot, err := uc.snapshotRepo.Get(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	if snapshot != nil && snapshot.VerifyIntegrity() {
		return &BalanceSummary{
			AccountID:    account.ID,
			TenantID:     account.TenantID,
			Balance:      snapshot.CurrentBalance,
			BalanceType:  domain.ClassifyBalance(snapshot.CurrentBalance),
			TotalDebits:  snapshot.TotalDebits,
			TotalCredits: snapshot.TotalCredits,
			TotalEntries: snapshot.TotalEntries,
			AsOf:         snapshot.LastUpdated,
		}, nil
	}

	// No usable snapshot: fold the entry log.
	sums, err := uc.entryRepo.SumForAccount(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	balance := sums.TotalDebits.Sub(sums.TotalCredits).Round(2)

	return &BalanceSummary{
		AccountID:    account.ID,
		TenantID:     account.TenantID,
		Balance:      balance,
		BalanceType:  domain.ClassifyBalance(balance),
		TotalDebits:  sums.TotalDebits,
		TotalCredits: sums.TotalCredits,
		TotalEntries: sums.TotalEntries,
		AsOf:         time.Now().UTC(),
	}, nil
}

// ListEntries lists an account's entries, newest first.
func (uc *BalanceUseCase) ListEntries(ctx context.Context, filter EntryFilter) ([]*domain.Entry, error) {
	if err := domain.ValidateID(filter.TenantID); err != nil {
		return nil, err
	}
	if err := domain.ValidateID(filter.AccountID); err != nil {
		return nil, err
	}

	filter.Limit, filter.Offset = domain.ValidatePagination(filter.Limit, filter.Offset)

	return uc.entryRepo.ListByAccount(ctx, filter)
}

// GetEntry loads one entry.
func (uc *BalanceUseCase) GetEntry(ctx context.Context, tenantID, entryID string) (*domain.Entry, error) {
	return uc.entryRepo.GetByID(ctx, tenantID, entryID)
}

// Stats returns tenant-wide aggregates.
func (uc *BalanceUseCase) Stats(ctx context.Context, tenantID string) (LedgerStats, error) {
	if err := domain.ValidateID(tenantID); err != nil {
		return LedgerStats{}, err
	}

	return uc.ledgerRepo.Stats(ctx, tenantID)
}

func balanceCacheKey(tenantID, accountID string) string {
	return fmt.Sprintf("balance:%s:%s", tenantID, accountID)
}

func (uc *BalanceUseCase) fromCache(ctx context.Context, tenantID, accountID string) *BalanceSummary {
	if uc.cache == nil {
		return nil
	}

	data, err := uc.cache.Get(ctx, balanceCacheKey(tenantID, accountID))
	if err != nil || len(data) == 0 {
		if uc.metrics != nil {
			uc.metrics.BalanceCacheMisses.Inc()
		}
		return nil
	}

	var summary BalanceSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return nil
	}

	if uc.metrics != nil {
		uc.metrics.BalanceCacheHits.Inc()
	}

	return &summary
}

func (uc *BalanceUseCase) toCache(ctx context.Context, summary *BalanceSummary) {
	if uc.cache == nil {
		return
	}

	data, err := json.Marshal(summary)
	if err != nil {
		return
	}

	_ = uc.cache.Set(ctx, balanceCacheKey(summary.TenantID, summary.AccountID), data, BalanceCacheTTL)
}
