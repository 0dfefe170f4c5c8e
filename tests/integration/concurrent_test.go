package integration

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/campusbill/ledger/internal/usecase"
	"github.com/campusbill/ledger/tests/testutil"
)

func TestConcurrentPostings(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()

	testDB := testutil.NewTestDB(t)
	defer testDB.Cleanup()

	stack := testutil.NewStack(testDB)

	t.Run("concurrent postings serialize with gapless sequences", func(t *testing.T) {
		testDB.TruncateAll(ctx)
		account := testDB.CreateTestAccount(ctx, "tenant-1", "Student 3001")

		const workers = 20

		var (
			wg       sync.WaitGroup
			errCount atomic.Int32
		)

		wg.Add(workers)
		for range workers {
			go func() {
				defer wg.Done()

				_, err := stack.Factory.ApplyCharge(ctx, usecase.ChargeInput{
					TenantID:  "tenant-1",
					AccountID: account.ID,
					Amount:    d("10"),
					Reason:    "concurrent charge",
				})
				if err != nil {
					errCount.Add(1)
				}
			}()
		}
		wg.Wait()

		if errCount.Load() != 0 {
			t.Fatalf("expected all postings to succeed, %d failed", errCount.Load())
		}

		entries, err := stack.EntryRepo.ListByAccount(ctx, usecase.EntryFilter{
			TenantID:  "tenant-1",
			AccountID: account.ID,
			Limit:     workers * 2,
		})
		if err != nil {
			t.Fatalf("failed to list entries: %v", err)
		}
		if len(entries) != workers {
			t.Fatalf("expected %d entries, got %d", workers, len(entries))
		}

		// Sequences must be exactly 1..N with no gaps or duplicates.
		seqs := make([]int64, 0, len(entries))
		for _, e := range entries {
			seqs = append(seqs, e.EntrySequence)
		}
		sort.Slice(seqs, func(i, j int) bool { return seqs[i] < seqs[j] })
		for i, seq := range seqs {
			if seq != int64(i+1) {
				t.Fatalf("expected gapless sequences 1..%d, got %v", workers, seqs)
			}
		}

		// No lost updates: the final balance reflects every posting.
		summary, err := stack.Balance.GetBalance(ctx, "tenant-1", account.ID)
		if err != nil {
			t.Fatalf("failed to get balance: %v", err)
		}
		if !summary.Balance.Equal(d("200")) {
			t.Errorf("expected balance 200, got %s", summary.Balance)
		}

		result, err := stack.Reconciliation.ReconcileAccount(ctx, "tenant-1", account.ID)
		if err != nil {
			t.Fatalf("failed to reconcile: %v", err)
		}
		if result.Status != usecase.ReconciliationBalanced {
			t.Errorf("expected balanced after concurrent run, got %s (%s)", result.Status, result.Detail)
		}
	})
}
