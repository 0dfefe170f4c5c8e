// Package mocks provides hand-written fakes for the usecase interfaces.
// The entry mock assigns sequences the way the storage layer does, so
// coordinator tests exercise real posting semantics in memory.
package mocks

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/campusbill/ledger/internal/domain"
	"github.com/campusbill/ledger/internal/usecase"
)

// MockAccountRepository is a mock implementation of AccountRepository.
type MockAccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]*domain.Account

	CreateFunc           func(ctx context.Context, account *domain.Account) error
	GetByIDFunc          func(ctx context.Context, tenantID, id string) (*domain.Account, error)
	GetByIDForUpdateFunc func(ctx context.Context, tx usecase.Transaction, tenantID, id string) (*domain.Account, error)
	ListFunc             func(ctx context.Context, tenantID string, limit, offset int) ([]*domain.Account, error)
}

func NewMockAccountRepository() *MockAccountRepository {
	return &MockAccountRepository{
		accounts: make(map[string]*domain.Account),
	}
}

func (m *MockAccountRepository) Create(ctx context.Context, account *domain.Account) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, account)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[account.ID] = account
	return nil
}

func (m *MockAccountRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, tenantID, id)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if acc, ok := m.accounts[id]; ok && acc.TenantID == tenantID {
		return acc, nil
	}
	return nil, domain.ErrAccountNotFound
}

func (m *MockAccountRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, tenantID, id string) (*domain.Account, error) {
	if m.GetByIDForUpdateFunc != nil {
		return m.GetByIDForUpdateFunc(ctx, tx, tenantID, id)
	}
	return m.GetByID(ctx, tenantID, id)
}

func (m *MockAccountRepository) List(ctx context.Context, tenantID string, limit, offset int) ([]*domain.Account, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, tenantID, limit, offset)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var accounts []*domain.Account
	for _, acc := range m.accounts {
		if acc.TenantID == tenantID {
			accounts = append(accounts, acc)
		}
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].ID < accounts[j].ID })

	if offset >= len(accounts) {
		return nil, nil
	}
	end := offset + limit
	if end > len(accounts) {
		end = len(accounts)
	}
	return accounts[offset:end], nil
}

// MockEntryRepository is a mock implementation of EntryRepository backed by
// an in-memory log with storage-style sequence assignment.
type MockEntryRepository struct {
	mu      sync.Mutex
	entries []*domain.Entry

	CreateFunc            func(ctx context.Context, tx usecase.Transaction, entry *domain.Entry) error
	GetLastForAccountFunc func(ctx context.Context, tx usecase.Transaction, accountID string) (*domain.Entry, error)
	SumForAccountFunc     func(ctx context.Context, accountID string) (usecase.EntrySums, error)
	SumForAccountTxFunc   func(ctx context.Context, tx usecase.Transaction, accountID string) (usecase.EntrySums, error)
}

func NewMockEntryRepository() *MockEntryRepository {
	return &MockEntryRepository{}
}

func (m *MockEntryRepository) Create(ctx context.Context, tx usecase.Transaction, entry *domain.Entry) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, tx, entry)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var maxSeq int64
	for _, e := range m.entries {
		if e.AccountID == entry.AccountID && e.EntrySequence > maxSeq {
			maxSeq = e.EntrySequence
		}
	}
	entry.EntrySequence = maxSeq + 1

	clone := *entry
	m.entries = append(m.entries, &clone)
	return nil
}

func (m *MockEntryRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id && e.TenantID == tenantID {
			clone := *e
			return &clone, nil
		}
	}
	return nil, domain.ErrEntryNotFound
}

func (m *MockEntryRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, tenantID, id string) (*domain.Entry, error) {
	return m.GetByID(ctx, tenantID, id)
}

func (m *MockEntryRepository) GetLastForAccount(ctx context.Context, tx usecase.Transaction, accountID string) (*domain.Entry, error) {
	if m.GetLastForAccountFunc != nil {
		return m.GetLastForAccountFunc(ctx, tx, accountID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var last *domain.Entry
	for _, e := range m.entries {
		if e.AccountID == accountID && (last == nil || e.EntrySequence > last.EntrySequence) {
			last = e
		}
	}
	if last == nil {
		return nil, nil
	}
	clone := *last
	return &clone, nil
}

func (m *MockEntryRepository) MarkReversed(ctx context.Context, tx usecase.Transaction, id, reversedBy string, reversalDate time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.ID == id {
			if e.IsReversed {
				return domain.ErrAlreadyReversed
			}
			e.IsReversed = true
			e.ReversedBy = reversedBy
			d := reversalDate
			e.ReversalDate = &d
			return nil
		}
	}
	return domain.ErrEntryNotFound
}

func (m *MockEntryRepository) ListByAccount(ctx context.Context, filter usecase.EntryFilter) ([]*domain.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*domain.Entry
	for _, e := range m.entries {
		if e.AccountID != filter.AccountID || e.TenantID != filter.TenantID {
			continue
		}
		if filter.Type != "" && e.Type != filter.Type {
			continue
		}
		if filter.From != nil && e.Date.Before(*filter.From) {
			continue
		}
		if filter.To != nil && e.Date.After(*filter.To) {
			continue
		}
		clone := *e
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntrySequence > out[j].EntrySequence })

	if filter.Offset >= len(out) {
		return nil, nil
	}
	end := filter.Offset + filter.Limit
	if filter.Limit <= 0 || end > len(out) {
		end = len(out)
	}
	return out[filter.Offset:end], nil
}

func (m *MockEntryRepository) SumForAccount(ctx context.Context, accountID string) (usecase.EntrySums, error) {
	if m.SumForAccountFunc != nil {
		return m.SumForAccountFunc(ctx, accountID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	sums := usecase.EntrySums{
		TotalDebits:  decimal.Zero,
		TotalCredits: decimal.Zero,
	}
	for _, e := range m.entries {
		if e.AccountID != accountID {
			continue
		}
		sums.TotalDebits = sums.TotalDebits.Add(e.Debit)
		sums.TotalCredits = sums.TotalCredits.Add(e.Credit)
		sums.TotalEntries++
		if e.EntrySequence > sums.LastSequence {
			sums.LastSequence = e.EntrySequence
		}
	}
	return sums, nil
}

func (m *MockEntryRepository) SumForAccountTx(ctx context.Context, tx usecase.Transaction, accountID string) (usecase.EntrySums, error) {
	if m.SumForAccountTxFunc != nil {
		return m.SumForAccountTxFunc(ctx, tx, accountID)
	}
	return m.SumForAccount(ctx, accountID)
}

// MockSnapshotRepository is a mock implementation of SnapshotRepository.
type MockSnapshotRepository struct {
	mu        sync.RWMutex
	snapshots map[string]*domain.BalanceSnapshot

	GetFunc    func(ctx context.Context, accountID string) (*domain.BalanceSnapshot, error)
	GetTxFunc  func(ctx context.Context, tx usecase.Transaction, accountID string) (*domain.BalanceSnapshot, error)
	UpsertFunc func(ctx context.Context, tx usecase.Transaction, snapshot *domain.BalanceSnapshot) error
}

func NewMockSnapshotRepository() *MockSnapshotRepository {
	return &MockSnapshotRepository{
		snapshots: make(map[string]*domain.BalanceSnapshot),
	}
}

func (m *MockSnapshotRepository) Get(ctx context.Context, accountID string) (*domain.BalanceSnapshot, error) {
	if m.GetFunc != nil {
		return m.GetFunc(ctx, accountID)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if snap, ok := m.snapshots[accountID]; ok {
		clone := *snap
		return &clone, nil
	}
	return nil, nil
}

func (m *MockSnapshotRepository) GetTx(ctx context.Context, tx usecase.Transaction, accountID string) (*domain.BalanceSnapshot, error) {
	if m.GetTxFunc != nil {
		return m.GetTxFunc(ctx, tx, accountID)
	}
	return m.Get(ctx, accountID)
}

func (m *MockSnapshotRepository) Upsert(ctx context.Context, tx usecase.Transaction, snapshot *domain.BalanceSnapshot) error {
	if m.UpsertFunc != nil {
		return m.UpsertFunc(ctx, tx, snapshot)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *snapshot
	m.snapshots[snapshot.AccountID] = &clone
	return nil
}

// MockLedgerRepository is a mock implementation of LedgerRepository.
type MockLedgerRepository struct {
	StatsFunc func(ctx context.Context, tenantID string) (usecase.LedgerStats, error)
}

func NewMockLedgerRepository() *MockLedgerRepository {
	return &MockLedgerRepository{}
}

func (m *MockLedgerRepository) Stats(ctx context.Context, tenantID string) (usecase.LedgerStats, error) {
	if m.StatsFunc != nil {
		return m.StatsFunc(ctx, tenantID)
	}
	return usecase.LedgerStats{
		TotalDebits:  decimal.Zero,
		TotalCredits: decimal.Zero,
	}, nil
}

// MockAuditRepository is a mock implementation of AuditRepository.
type MockAuditRepository struct {
	mu   sync.Mutex
	Logs []*domain.AuditLog

	CreateFunc func(ctx context.Context, log *domain.AuditLog) error
}

func NewMockAuditRepository() *MockAuditRepository {
	return &MockAuditRepository{}
}

func (m *MockAuditRepository) Create(ctx context.Context, log *domain.AuditLog) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, log)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Logs = append(m.Logs, log)
	return nil
}

func (m *MockAuditRepository) CreateTx(ctx context.Context, tx usecase.Transaction, log *domain.AuditLog) error {
	return m.Create(ctx, log)
}

func (m *MockAuditRepository) ListByResource(ctx context.Context, resourceType, resourceID string) ([]*domain.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*domain.AuditLog
	for _, l := range m.Logs {
		if l.ResourceType == resourceType && l.ResourceID == resourceID {
			out = append(out, l)
		}
	}
	return out, nil
}

// MockTransaction is a no-op transaction.
type MockTransaction struct {
	CommitFunc   func(ctx context.Context) error
	RollbackFunc func(ctx context.Context) error
}

func (t *MockTransaction) Commit(ctx context.Context) error {
	if t.CommitFunc != nil {
		return t.CommitFunc(ctx)
	}
	return nil
}

func (t *MockTransaction) Rollback(ctx context.Context) error {
	if t.RollbackFunc != nil {
		return t.RollbackFunc(ctx)
	}
	return nil
}

// MockTransactionManager hands out no-op transactions, optionally serialized
// so concurrent posting tests mimic the per-account lock.
type MockTransactionManager struct {
	BeginFunc func(ctx context.Context) (usecase.Transaction, error)

	// Serialize makes Begin take a process-wide lock released on
	// Commit/Rollback, mimicking row-lock serialization.
	Serialize bool
	mu        sync.Mutex
}

func NewMockTransactionManager() *MockTransactionManager {
	return &MockTransactionManager{}
}

func (m *MockTransactionManager) Begin(ctx context.Context) (usecase.Transaction, error) {
	if m.BeginFunc != nil {
		return m.BeginFunc(ctx)
	}
	if !m.Serialize {
		return &MockTransaction{}, nil
	}

	m.mu.Lock()
	var once sync.Once
	release := func(context.Context) error {
		once.Do(m.mu.Unlock)
		return nil
	}
	return &MockTransaction{CommitFunc: release, RollbackFunc: release}, nil
}

// MockIDGenerator generates deterministic IDs.
type MockIDGenerator struct {
	mu           sync.Mutex
	counter      int
	GenerateFunc func() string
}

func NewMockIDGenerator() *MockIDGenerator {
	return &MockIDGenerator{}
}

func (m *MockIDGenerator) Generate() string {
	if m.GenerateFunc != nil {
		return m.GenerateFunc()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counter++
	return fmt.Sprintf("id-%04d", m.counter)
}

// MockRetrier runs the operation once.
type MockRetrier struct {
	RetryFunc func(ctx context.Context, operation func() error) error
}

func NewMockRetrier() *MockRetrier {
	return &MockRetrier{}
}

func (m *MockRetrier) Retry(ctx context.Context, operation func() error) error {
	if m.RetryFunc != nil {
		return m.RetryFunc(ctx, operation)
	}
	return operation()
}

// MockCache is an in-memory Cache.
type MockCache struct {
	mu    sync.RWMutex
	items map[string][]byte
}

func NewMockCache() *MockCache {
	return &MockCache{items: make(map[string][]byte)}
}

func (m *MockCache) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if v, ok := m.items[key]; ok {
		return v, nil
	}
	return nil, fmt.Errorf("cache miss: %s", key)
}

func (m *MockCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

func (m *MockCache) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

// MockIdempotencyStore is an in-memory IdempotencyStore.
type MockIdempotencyStore struct {
	mu    sync.Mutex
	items map[string][]byte
}

func NewMockIdempotencyStore() *MockIdempotencyStore {
	return &MockIdempotencyStore{items: make(map[string][]byte)}
}

func (m *MockIdempotencyStore) CheckAndSet(ctx context.Context, key string, response []byte, ttl time.Duration) (bool, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.items[key]; ok {
		return true, existing, nil
	}
	if response == nil {
		response = []byte(usecase.IdempotencyPendingMarker)
	}
	m.items[key] = response
	return false, nil, nil
}

func (m *MockIdempotencyStore) Update(ctx context.Context, key string, response []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = response
	return nil
}

func (m *MockIdempotencyStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}
