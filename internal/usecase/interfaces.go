package usecase

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/campusbill/ledger/internal/domain"
)

// AccountRepository defines data access for accounts.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Account, error)
	// GetByIDForUpdate locks the account row for the remainder of the
	// transaction. Every write for an account goes through this lock.
	GetByIDForUpdate(ctx context.Context, tx Transaction, tenantID, id string) (*domain.Account, error)
	List(ctx context.Context, tenantID string, limit, offset int) ([]*domain.Account, error)
}

// EntryFilter narrows entry listings.
type EntryFilter struct {
	TenantID  string
	AccountID string
	Type      domain.EntryType
	From      *time.Time
	To        *time.Time
	Limit     int
	Offset    int
}

// EntrySums are the gross aggregates over an account's full entry history.
type EntrySums struct {
	TotalDebits  decimal.Decimal
	TotalCredits decimal.Decimal
	TotalEntries int64
	LastSequence int64
}

// EntryRepository defines data access for ledger entries.
type EntryRepository interface {
	// Create persists the entry and assigns its EntrySequence in storage;
	// the assigned sequence is written back into entry.
	Create(ctx context.Context, tx Transaction, entry *domain.Entry) error
	GetByID(ctx context.Context, tenantID, id string) (*domain.Entry, error)
	GetByIDForUpdate(ctx context.Context, tx Transaction, tenantID, id string) (*domain.Entry, error)
	// GetLastForAccount returns the highest-sequence entry, or nil if the
	// account has no entries yet.
	GetLastForAccount(ctx context.Context, tx Transaction, accountID string) (*domain.Entry, error)
	MarkReversed(ctx context.Context, tx Transaction, id, reversedBy string, reversalDate time.Time) error
	ListByAccount(ctx context.Context, filter EntryFilter) ([]*domain.Entry, error)
	// SumForAccount recomputes the gross aggregates from the full history.
	SumForAccount(ctx context.Context, accountID string) (EntrySums, error)
	// SumForAccountTx recomputes the aggregates within tx, so they are
	// consistent with other reads in the same transaction.
	SumForAccountTx(ctx context.Context, tx Transaction, accountID string) (EntrySums, error)
}

// SnapshotRepository defines data access for balance snapshots.
type SnapshotRepository interface {
	// Get returns nil when the account has no snapshot yet.
	Get(ctx context.Context, accountID string) (*domain.BalanceSnapshot, error)
	// GetTx reads the snapshot within tx; nil when absent.
	GetTx(ctx context.Context, tx Transaction, accountID string) (*domain.BalanceSnapshot, error)
	Upsert(ctx context.Context, tx Transaction, snapshot *domain.BalanceSnapshot) error
}

// LedgerStats are ledger-wide aggregates for one tenant.
type LedgerStats struct {
	TotalDebits    decimal.Decimal
	TotalCredits   decimal.Decimal
	TotalEntries   int64
	ActiveAccounts int64
}

// LedgerRepository defines data access for ledger-wide aggregates.
type LedgerRepository interface {
	Stats(ctx context.Context, tenantID string) (LedgerStats, error)
}

// AuditRepository defines data access for audit logs.
type AuditRepository interface {
	CreateTx(ctx context.Context, tx Transaction, log *domain.AuditLog) error
	Create(ctx context.Context, log *domain.AuditLog) error
	ListByResource(ctx context.Context, resourceType, resourceID string) ([]*domain.AuditLog, error)
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Retrier retries an operation on transient storage failures (lock timeout,
// deadlock, serialization) with backoff.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}

// Cache defines caching operations. A failed Get is treated as a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// IdempotencyStore handles idempotency key storage.
type IdempotencyStore interface {
	// CheckAndSet atomically checks if key exists, sets if not.
	// Returns (exists, existingValue, error).
	CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error)
	// Update updates an existing key with the final response.
	Update(ctx context.Context, key string, response []byte, ttl time.Duration) error
	// Delete releases a key, allowing the caller's retry after a failure.
	Delete(ctx context.Context, key string) error
}
