package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/campusbill/ledger/internal/domain"
	"github.com/campusbill/ledger/internal/usecase"
	"github.com/campusbill/ledger/tests/testutil"
)

func TestReversalFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()

	testDB := testutil.NewTestDB(t)
	defer testDB.Cleanup()

	stack := testutil.NewStack(testDB)

	t.Run("reversal corrects the balance despite intervening entries", func(t *testing.T) {
		testDB.TruncateAll(ctx)
		account := testDB.CreateTestAccount(ctx, "tenant-1", "Student 2001")

		if _, err := stack.Factory.PostInvoice(ctx, usecase.InvoiceInput{
			TenantID: "tenant-1", AccountID: account.ID,
			Amount: d("1500"), InvoiceNumber: "INV-1",
		}); err != nil {
			t.Fatalf("failed to post invoice: %v", err)
		}
		if _, err := stack.Factory.RecordPayment(ctx, usecase.PaymentInput{
			TenantID: "tenant-1", AccountID: account.ID, Amount: d("1000"),
		}); err != nil {
			t.Fatalf("failed to record payment: %v", err)
		}
		charge, err := stack.Factory.ApplyCharge(ctx, usecase.ChargeInput{
			TenantID: "tenant-1", AccountID: account.ID,
			Amount: d("200"), Reason: "late fee",
		})
		if err != nil {
			t.Fatalf("failed to apply charge: %v", err)
		}
		if _, err := stack.Factory.ApplyDiscount(ctx, usecase.DiscountInput{
			TenantID: "tenant-1", AccountID: account.ID,
			Amount: d("100"), Reason: "sibling discount",
		}); err != nil {
			t.Fatalf("failed to apply discount: %v", err)
		}

		reversal, err := stack.Reversal.ReverseEntry(ctx, usecase.ReverseEntryInput{
			TenantID: "tenant-1",
			EntryID:  charge.ID,
			Actor:    "bursar",
			Reason:   "fee waived",
		})
		if err != nil {
			t.Fatalf("failed to reverse: %v", err)
		}

		if reversal.Type != domain.EntryTypeReversal {
			t.Errorf("expected reversal type, got %s", reversal.Type)
		}
		if !reversal.Credit.Equal(charge.Debit) || !reversal.Debit.IsZero() {
			t.Errorf("expected swapped movement, got debit=%s credit=%s", reversal.Debit, reversal.Credit)
		}
		if !reversal.RunningBalance.Equal(d("400")) {
			t.Errorf("expected balance 400 after reversal, got %s", reversal.RunningBalance)
		}
		if reversal.ReferenceID != charge.ID {
			t.Errorf("expected reversal to reference the original, got %s", reversal.ReferenceID)
		}

		original, err := stack.EntryRepo.GetByID(ctx, "tenant-1", charge.ID)
		if err != nil {
			t.Fatalf("failed to reload original: %v", err)
		}
		if !original.IsReversed || original.ReversedBy != reversal.ID || original.ReversalDate == nil {
			t.Errorf("expected original flagged and linked, got %+v", original)
		}
	})

	t.Run("second reversal conflicts and writes nothing", func(t *testing.T) {
		testDB.TruncateAll(ctx)
		account := testDB.CreateTestAccount(ctx, "tenant-1", "Student 2002")

		charge, err := stack.Factory.ApplyCharge(ctx, usecase.ChargeInput{
			TenantID: "tenant-1", AccountID: account.ID,
			Amount: d("75"), Reason: "printing",
		})
		if err != nil {
			t.Fatalf("failed to apply charge: %v", err)
		}

		if _, err := stack.Reversal.ReverseEntry(ctx, usecase.ReverseEntryInput{
			TenantID: "tenant-1", EntryID: charge.ID,
			Actor: "bursar", Reason: "duplicate",
		}); err != nil {
			t.Fatalf("first reversal failed: %v", err)
		}

		before, err := stack.EntryRepo.SumForAccount(ctx, account.ID)
		if err != nil {
			t.Fatalf("failed to sum: %v", err)
		}

		_, err = stack.Reversal.ReverseEntry(ctx, usecase.ReverseEntryInput{
			TenantID: "tenant-1", EntryID: charge.ID,
			Actor: "bursar", Reason: "again",
		})
		if !errors.Is(err, domain.ErrAlreadyReversed) {
			t.Fatalf("expected ErrAlreadyReversed, got %v", err)
		}

		after, err := stack.EntryRepo.SumForAccount(ctx, account.ID)
		if err != nil {
			t.Fatalf("failed to sum: %v", err)
		}
		if after.TotalEntries != before.TotalEntries {
			t.Errorf("expected no new entries, got %d -> %d", before.TotalEntries, after.TotalEntries)
		}
	})
}
