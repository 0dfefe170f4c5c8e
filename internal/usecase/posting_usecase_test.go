package usecase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/campusbill/ledger/internal/domain"
	"github.com/campusbill/ledger/internal/usecase"
	"github.com/campusbill/ledger/internal/usecase/mocks"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// ledgerStack bundles the mocks behind a wired coordinator.
type ledgerStack struct {
	txManager    *mocks.MockTransactionManager
	accountRepo  *mocks.MockAccountRepository
	entryRepo    *mocks.MockEntryRepository
	snapshotRepo *mocks.MockSnapshotRepository
	auditRepo    *mocks.MockAuditRepository
	idGen        *mocks.MockIDGenerator
	cache        *mocks.MockCache

	posting  *usecase.PostingUseCase
	reversal *usecase.ReversalUseCase
}

func newLedgerStack() *ledgerStack {
	s := &ledgerStack{
		txManager:    mocks.NewMockTransactionManager(),
		accountRepo:  mocks.NewMockAccountRepository(),
		entryRepo:    mocks.NewMockEntryRepository(),
		snapshotRepo: mocks.NewMockSnapshotRepository(),
		auditRepo:    mocks.NewMockAuditRepository(),
		idGen:        mocks.NewMockIDGenerator(),
		cache:        mocks.NewMockCache(),
	}
	s.txManager.Serialize = true

	s.posting = usecase.NewPostingUseCase(
		s.txManager, s.accountRepo, s.entryRepo, s.snapshotRepo, s.auditRepo, s.idGen,
	).WithCache(s.cache)
	s.reversal = usecase.NewReversalUseCase(s.posting)

	return s
}

func (s *ledgerStack) addAccount(t *testing.T, tenantID, id string) *domain.Account {
	t.Helper()

	account := &domain.Account{
		ID:       id,
		TenantID: tenantID,
		Name:     "Account " + id,
		Active:   true,
	}
	if err := s.accountRepo.Create(context.Background(), account); err != nil {
		t.Fatalf("failed to seed account: %v", err)
	}
	return account
}

func debit(t *testing.T, amount string) domain.Movement {
	t.Helper()
	m, err := domain.DebitMovement(d(amount))
	if err != nil {
		t.Fatalf("failed to build debit movement: %v", err)
	}
	return m
}

func credit(t *testing.T, amount string) domain.Movement {
	t.Helper()
	m, err := domain.CreditMovement(d(amount))
	if err != nil {
		t.Fatalf("failed to build credit movement: %v", err)
	}
	return m
}

func TestPostEntry(t *testing.T) {
	ctx := context.Background()

	t.Run("first entry starts from zero", func(t *testing.T) {
		s := newLedgerStack()
		s.addAccount(t, "tenant-1", "acc-1")

		entry, err := s.posting.PostEntry(ctx, usecase.PostEntryInput{
			TenantID:    "tenant-1",
			AccountID:   "acc-1",
			Type:        domain.EntryTypeInvoice,
			Description: "Tuition invoice",
			Movement:    debit(t, "1500"),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !entry.RunningBalance.Equal(d("1500")) {
			t.Errorf("expected running balance 1500, got %s", entry.RunningBalance)
		}
		if entry.BalanceType != domain.BalanceTypeDebit {
			t.Errorf("expected debit balance type, got %s", entry.BalanceType)
		}
		if entry.EntrySequence != 1 {
			t.Errorf("expected sequence 1, got %d", entry.EntrySequence)
		}
	})

	t.Run("running balance folds across entries", func(t *testing.T) {
		s := newLedgerStack()
		s.addAccount(t, "tenant-1", "acc-1")

		post := func(m domain.Movement) *domain.Entry {
			entry, err := s.posting.PostEntry(ctx, usecase.PostEntryInput{
				TenantID:    "tenant-1",
				AccountID:   "acc-1",
				Type:        domain.EntryTypeCharge,
				Description: "movement",
				Movement:    m,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			return entry
		}

		if e := post(debit(t, "100")); !e.RunningBalance.Equal(d("100")) {
			t.Errorf("expected 100, got %s", e.RunningBalance)
		}
		if e := post(credit(t, "250")); !e.RunningBalance.Equal(d("-150")) {
			t.Errorf("expected -150, got %s", e.RunningBalance)
		}
		if e := post(debit(t, "150")); !e.RunningBalance.Equal(d("0")) {
			t.Errorf("expected 0, got %s", e.RunningBalance)
		}
	})

	t.Run("overpayment stays a signed credit balance", func(t *testing.T) {
		s := newLedgerStack()
		s.addAccount(t, "tenant-1", "acc-1")

		entry, err := s.posting.PostEntry(ctx, usecase.PostEntryInput{
			TenantID:    "tenant-1",
			AccountID:   "acc-1",
			Type:        domain.EntryTypePayment,
			Description: "Payment received",
			Movement:    credit(t, "1000"),
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if !entry.RunningBalance.Equal(d("-1000")) {
			t.Errorf("expected -1000, got %s", entry.RunningBalance)
		}
		if entry.BalanceType != domain.BalanceTypeCredit {
			t.Errorf("expected credit balance type, got %s", entry.BalanceType)
		}
	})

	t.Run("snapshot tracks the posted entries", func(t *testing.T) {
		s := newLedgerStack()
		s.addAccount(t, "tenant-1", "acc-1")

		for _, m := range []domain.Movement{debit(t, "1500"), credit(t, "1000")} {
			_, err := s.posting.PostEntry(ctx, usecase.PostEntryInput{
				TenantID:    "tenant-1",
				AccountID:   "acc-1",
				Type:        domain.EntryTypeAdjustment,
				Description: "movement",
				Movement:    m,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}

		snap, err := s.snapshotRepo.Get(ctx, "acc-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if snap == nil {
			t.Fatal("expected snapshot row")
		}
		if !snap.CurrentBalance.Equal(d("500")) {
			t.Errorf("expected snapshot balance 500, got %s", snap.CurrentBalance)
		}
		if snap.TotalEntries != 2 || snap.LastEntrySequence != 2 {
			t.Errorf("expected totals (2, 2), got (%d, %d)", snap.TotalEntries, snap.LastEntrySequence)
		}
		if !snap.VerifyIntegrity() {
			t.Error("expected snapshot integrity hash to verify")
		}
	})

	t.Run("unknown account", func(t *testing.T) {
		s := newLedgerStack()

		_, err := s.posting.PostEntry(ctx, usecase.PostEntryInput{
			TenantID:    "tenant-1",
			AccountID:   "missing",
			Type:        domain.EntryTypeCharge,
			Description: "Charge",
			Movement:    debit(t, "10"),
		})
		if !errors.Is(err, domain.ErrAccountNotFound) {
			t.Errorf("expected ErrAccountNotFound, got %v", err)
		}
	})

	t.Run("validation failures never reach storage", func(t *testing.T) {
		s := newLedgerStack()
		s.addAccount(t, "tenant-1", "acc-1")

		begins := 0
		s.txManager.BeginFunc = func(ctx context.Context) (usecase.Transaction, error) {
			begins++
			return &mocks.MockTransaction{}, nil
		}

		tests := []struct {
			name    string
			input   usecase.PostEntryInput
			wantErr error
		}{
			{
				name: "both sides set",
				input: usecase.PostEntryInput{
					TenantID: "tenant-1", AccountID: "acc-1",
					Type: domain.EntryTypeCharge, Description: "bad",
					Movement: domain.Movement{Debit: d("10"), Credit: d("10")},
				},
				wantErr: domain.ErrBothSidesSet,
			},
			{
				name: "zero movement",
				input: usecase.PostEntryInput{
					TenantID: "tenant-1", AccountID: "acc-1",
					Type: domain.EntryTypeCharge, Description: "bad",
				},
				wantErr: domain.ErrZeroMovement,
			},
			{
				name: "negative amount",
				input: usecase.PostEntryInput{
					TenantID: "tenant-1", AccountID: "acc-1",
					Type: domain.EntryTypeCharge, Description: "bad",
					Movement: domain.Movement{Debit: d("-5")},
				},
				wantErr: domain.ErrNegativeAmount,
			},
			{
				name: "unknown type",
				input: usecase.PostEntryInput{
					TenantID: "tenant-1", AccountID: "acc-1",
					Type: domain.EntryType("refund"), Description: "bad",
					Movement: domain.Movement{Debit: d("5")},
				},
				wantErr: domain.ErrInvalidType,
			},
			{
				name: "empty description",
				input: usecase.PostEntryInput{
					TenantID: "tenant-1", AccountID: "acc-1",
					Type:     domain.EntryTypeCharge,
					Movement: domain.Movement{Debit: d("5")},
				},
				wantErr: domain.ErrInvalidDescription,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := s.posting.PostEntry(ctx, tt.input)
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
			})
		}

		if begins != 0 {
			t.Errorf("expected no transaction for invalid input, got %d begins", begins)
		}
	})

	t.Run("posting writes an audit row", func(t *testing.T) {
		s := newLedgerStack()
		s.addAccount(t, "tenant-1", "acc-1")

		entry, err := s.posting.PostEntry(ctx, usecase.PostEntryInput{
			TenantID:    "tenant-1",
			AccountID:   "acc-1",
			Type:        domain.EntryTypeCharge,
			Description: "Charge",
			Movement:    debit(t, "25"),
			Actor:       "admin@school",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		logs, _ := s.auditRepo.ListByResource(ctx, "entry", entry.ID)
		if len(logs) != 1 {
			t.Fatalf("expected 1 audit log, got %d", len(logs))
		}
		if logs[0].Actor != "admin@school" || logs[0].Action != string(domain.AuditActionEntryPost) {
			t.Errorf("unexpected audit log: %+v", logs[0])
		}
	})
}

func TestPostEntryConcurrent(t *testing.T) {
	ctx := context.Background()
	s := newLedgerStack()
	s.addAccount(t, "tenant-1", "acc-1")

	const workers = 8
	amount := "50"
	movement := credit(t, amount)

	var wg sync.WaitGroup
	errs := make(chan error, workers)

	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			_, err := s.posting.PostEntry(ctx, usecase.PostEntryInput{
				TenantID:    "tenant-1",
				AccountID:   "acc-1",
				Type:        domain.EntryTypePayment,
				Description: "Payment received",
				Movement:    movement,
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	entries, err := s.entryRepo.ListByAccount(ctx, usecase.EntryFilter{
		TenantID:  "tenant-1",
		AccountID: "acc-1",
		Limit:     100,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != workers {
		t.Fatalf("expected %d entries, got %d", workers, len(entries))
	}

	// Sequences must be distinct and gapless; the final balance must be the
	// sum of all deltas, so no update was lost.
	seen := make(map[int64]bool)
	for _, e := range entries {
		if seen[e.EntrySequence] {
			t.Errorf("duplicate sequence %d", e.EntrySequence)
		}
		seen[e.EntrySequence] = true
	}
	for seq := int64(1); seq <= int64(workers); seq++ {
		if !seen[seq] {
			t.Errorf("missing sequence %d", seq)
		}
	}

	last, err := s.entryRepo.GetLastForAccount(ctx, nil, "acc-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := d(amount).Mul(decimal.NewFromInt(workers)).Neg()
	if !last.RunningBalance.Equal(want) {
		t.Errorf("expected final balance %s, got %s", want, last.RunningBalance)
	}
}

func TestPostEntryInvalidatesBalanceCache(t *testing.T) {
	ctx := context.Background()
	s := newLedgerStack()
	s.addAccount(t, "tenant-1", "acc-1")

	key := "balance:tenant-1:acc-1"
	if err := s.cache.Set(ctx, key, []byte(`{"balance":"0"}`), time.Minute); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := s.posting.PostEntry(ctx, usecase.PostEntryInput{
		TenantID:    "tenant-1",
		AccountID:   "acc-1",
		Type:        domain.EntryTypeCharge,
		Description: "Charge",
		Movement:    debit(t, "10"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := s.cache.Get(ctx, key); err == nil {
		t.Error("expected cached balance to be invalidated after posting")
	}
}
