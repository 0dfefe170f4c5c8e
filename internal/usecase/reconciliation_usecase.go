package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/campusbill/ledger/internal/domain"
	"github.com/campusbill/ledger/internal/infrastructure/metrics"
)

// ReconciliationStatus is the outcome of one account reconciliation.
type ReconciliationStatus string

const (
	ReconciliationBalanced    ReconciliationStatus = "balanced"
	ReconciliationDiscrepancy ReconciliationStatus = "discrepancy_found"
	ReconciliationError       ReconciliationStatus = "error"
)

// ReconciliationResult compares the cached snapshot against a full
// recomputation from the entry log. A discrepancy is reported, never
// corrected: rewriting financial state without an audit trail is not an
// option here.
type ReconciliationResult struct {
	AccountID        string
	TenantID         string
	SnapshotBalance  decimal.Decimal
	ComputedBalance  decimal.Decimal
	Delta            decimal.Decimal
	Status           ReconciliationStatus
	Detail           string
	CheckedAt        time.Time
	SnapshotVerified bool
}

// ReconciliationReport aggregates a tenant-wide run.
type ReconciliationReport struct {
	TotalAccounts int
	Balanced      int
	Discrepancies []*ReconciliationResult
	Errors        []*ReconciliationResult
	CheckedAt     time.Time
}

// ReconciliationUseCase verifies snapshots against the entry log.
type ReconciliationUseCase struct {
	txManager    TransactionManager
	accountRepo  AccountRepository
	entryRepo    EntryRepository
	snapshotRepo SnapshotRepository
	auditRepo    AuditRepository
	metrics      *metrics.Metrics
}

// NewReconciliationUseCase creates a new ReconciliationUseCase.
func NewReconciliationUseCase(
	txManager TransactionManager,
	accountRepo AccountRepository,
	entryRepo EntryRepository,
	snapshotRepo SnapshotRepository,
	auditRepo AuditRepository,
) *ReconciliationUseCase {
	return &ReconciliationUseCase{
		txManager:    txManager,
		accountRepo:  accountRepo,
		entryRepo:    entryRepo,
		snapshotRepo: snapshotRepo,
		auditRepo:    auditRepo,
	}
}

// WithMetrics enables Prometheus instrumentation.
func (uc *ReconciliationUseCase) WithMetrics(m *metrics.Metrics) *ReconciliationUseCase {
	uc.metrics = m
	return uc
}

// ReconcileAccount recomputes one account's balance from its full entry
// history and diffs it against the snapshot, within the 0.01 tolerance.
// Reversal pairs cancel in the gross sum, so summing every entry equals the
// sum over non-reversed entries with their compensations excluded.
//
// Both reads happen in one transaction under the account row lock, so a
// posting committing mid-reconcile cannot make a healthy account look one
// entry out of balance.
func (uc *ReconciliationUseCase) ReconcileAccount(ctx context.Context, tenantID, accountID string) (*ReconciliationResult, error) {
	if err := domain.ValidateID(tenantID); err != nil {
		return nil, err
	}
	if err := domain.ValidateID(accountID); err != nil {
		return nil, err
	}

	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	// Read-only: the transaction is only a consistency boundary.
	defer tx.Rollback(ctx)

	account, err := uc.accountRepo.GetByIDForUpdate(ctx, tx, tenantID, accountID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	result := &ReconciliationResult{
		AccountID: account.ID,
		TenantID:  account.TenantID,
		CheckedAt: now,
	}

	sums, err := uc.entryRepo.SumForAccountTx(ctx, tx, account.ID)
	if err != nil {
		result.Status = ReconciliationError
		result.Detail = fmt.Sprintf("recomputation failed: %v", err)
		return result, nil
	}

	result.ComputedBalance = sums.TotalDebits.Sub(sums.TotalCredits).Round(2)

	snapshot, err := uc.snapshotRepo.GetTx(ctx, tx, account.ID)
	if err != nil {
		result.Status = ReconciliationError
		result.Detail = fmt.Sprintf("snapshot read failed: %v", err)
		return result, nil
	}

	if snapshot == nil {
		// No snapshot is only consistent with an empty history.
		if sums.TotalEntries == 0 {
			result.Status = ReconciliationBalanced
			return result, nil
		}

		result.Status = ReconciliationDiscrepancy
		result.Delta = result.ComputedBalance
		result.Detail = "entries exist but no snapshot row"
		uc.reportDiscrepancy(ctx, result)
		return result, nil
	}

	result.SnapshotBalance = snapshot.CurrentBalance
	result.SnapshotVerified = snapshot.VerifyIntegrity()
	result.Delta = snapshot.CurrentBalance.Sub(result.ComputedBalance)

	if !result.SnapshotVerified {
		result.Status = ReconciliationDiscrepancy
		result.Detail = "snapshot integrity hash mismatch"
		uc.reportDiscrepancy(ctx, result)
		return result, nil
	}

	if !domain.WithinTolerance(snapshot.CurrentBalance, result.ComputedBalance) {
		result.Status = ReconciliationDiscrepancy
		result.Detail = fmt.Sprintf("snapshot %s vs recomputed %s",
			snapshot.CurrentBalance.StringFixed(2), result.ComputedBalance.StringFixed(2))
		uc.reportDiscrepancy(ctx, result)
		return result, nil
	}

	result.Status = ReconciliationBalanced

	return result, nil
}

// ReconcileTenant reconciles every account of a tenant. Each account runs
// independently; a discrepancy in one does not stop the others.
func (uc *ReconciliationUseCase) ReconcileTenant(ctx context.Context, tenantID string) (*ReconciliationReport, error) {
	if err := domain.ValidateID(tenantID); err != nil {
		return nil, err
	}

	limit, offset := domain.ValidatePagination(1000, 0)

	report := &ReconciliationReport{CheckedAt: time.Now().UTC()}

	for {
		accounts, err := uc.accountRepo.List(ctx, tenantID, limit, offset)
		if err != nil {
			return nil, err
		}

		for _, account := range accounts {
			result, err := uc.ReconcileAccount(ctx, tenantID, account.ID)
			if err != nil {
				return nil, fmt.Errorf("reconcile account %s: %w", account.ID, err)
			}

			report.TotalAccounts++

			switch result.Status {
			case ReconciliationBalanced:
				report.Balanced++
			case ReconciliationDiscrepancy:
				report.Discrepancies = append(report.Discrepancies, result)
			case ReconciliationError:
				report.Errors = append(report.Errors, result)
			}
		}

		if len(accounts) < limit {
			break
		}

		offset += limit
	}

	if uc.metrics != nil {
		uc.metrics.ReconciliationRuns.Inc()
		uc.metrics.ReconciliationDiscrepancies.Set(float64(len(report.Discrepancies)))
	}

	return report, nil
}

// RebuildSnapshot re-derives the snapshot row from the entry log, under the
// account lock so no posting interleaves. This is an explicit operator
// action, separate from reconciliation, which never writes.
func (uc *ReconciliationUseCase) RebuildSnapshot(ctx context.Context, tenantID, accountID, actor string) (*domain.BalanceSnapshot, error) {
	if err := domain.ValidateID(tenantID); err != nil {
		return nil, err
	}
	if err := domain.ValidateID(accountID); err != nil {
		return nil, err
	}

	tx, err := uc.txManager.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	account, err := uc.accountRepo.GetByIDForUpdate(ctx, tx, tenantID, accountID)
	if err != nil {
		return nil, err
	}

	sums, err := uc.entryRepo.SumForAccountTx(ctx, tx, account.ID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	snapshot := &domain.BalanceSnapshot{
		AccountID:         account.ID,
		TenantID:          account.TenantID,
		CurrentBalance:    sums.TotalDebits.Sub(sums.TotalCredits).Round(2),
		TotalDebits:       sums.TotalDebits,
		TotalCredits:      sums.TotalCredits,
		TotalEntries:      sums.TotalEntries,
		LastEntrySequence: sums.LastSequence,
		LastUpdated:       now,
	}
	snapshot.IntegrityHash = snapshot.ComputeIntegrityHash()

	if err := uc.snapshotRepo.Upsert(ctx, tx, snapshot); err != nil {
		return nil, err
	}

	if uc.auditRepo != nil {
		err = uc.auditRepo.CreateTx(ctx, tx, &domain.AuditLog{
			TenantID:     tenantID,
			Actor:        actor,
			Action:       string(domain.AuditActionSnapshotRebuild),
			ResourceType: "snapshot",
			ResourceID:   account.ID,
			AfterState:   domain.MarshalState(snapshot),
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

	if uc.metrics != nil {
		uc.metrics.SnapshotRebuilds.Inc()
	}

	return snapshot, nil
}

// reportDiscrepancy leaves an audit trace; reconciliation itself never fixes
// anything.
func (uc *ReconciliationUseCase) reportDiscrepancy(ctx context.Context, result *ReconciliationResult) {
	if uc.auditRepo == nil {
		return
	}

	_ = uc.auditRepo.Create(ctx, &domain.AuditLog{
		TenantID:     result.TenantID,
		Action:       string(domain.AuditActionReconcile),
		ResourceType: "account",
		ResourceID:   result.AccountID,
		AfterState:   domain.MarshalState(result),
		Status:       string(domain.AuditStatusFailure),
		ErrorMessage: result.Detail,
		CreatedAt:    result.CheckedAt,
	})
}
