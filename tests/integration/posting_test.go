package integration

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/campusbill/ledger/internal/domain"
	"github.com/campusbill/ledger/internal/usecase"
	"github.com/campusbill/ledger/tests/testutil"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestPostingFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()

	testDB := testutil.NewTestDB(t)
	defer testDB.Cleanup()

	stack := testutil.NewStack(testDB)

	t.Run("running balance folds across entries", func(t *testing.T) {
		testDB.TruncateAll(ctx)
		account := testDB.CreateTestAccount(ctx, "tenant-1", "Student 1001")

		invoice, err := stack.Factory.PostInvoice(ctx, usecase.InvoiceInput{
			TenantID:      "tenant-1",
			AccountID:     account.ID,
			Amount:        d("1500"),
			InvoiceNumber: "INV-1",
		})
		if err != nil {
			t.Fatalf("failed to post invoice: %v", err)
		}
		if !invoice.RunningBalance.Equal(d("1500")) || invoice.EntrySequence != 1 {
			t.Fatalf("unexpected first entry: balance=%s seq=%d", invoice.RunningBalance, invoice.EntrySequence)
		}

		payment, err := stack.Factory.RecordPayment(ctx, usecase.PaymentInput{
			TenantID:  "tenant-1",
			AccountID: account.ID,
			Amount:    d("1000"),
		})
		if err != nil {
			t.Fatalf("failed to record payment: %v", err)
		}
		if !payment.RunningBalance.Equal(d("500")) || payment.EntrySequence != 2 {
			t.Fatalf("unexpected second entry: balance=%s seq=%d", payment.RunningBalance, payment.EntrySequence)
		}

		summary, err := stack.Balance.GetBalance(ctx, "tenant-1", account.ID)
		if err != nil {
			t.Fatalf("failed to get balance: %v", err)
		}
		if !summary.Balance.Equal(d("500")) || summary.BalanceType != domain.BalanceTypeDebit {
			t.Fatalf("unexpected summary: %+v", summary)
		}
	})

	t.Run("overpayment leaves a credit balance", func(t *testing.T) {
		testDB.TruncateAll(ctx)
		account := testDB.CreateTestAccount(ctx, "tenant-1", "Student 1002")

		payment, err := stack.Factory.RecordPayment(ctx, usecase.PaymentInput{
			TenantID:  "tenant-1",
			AccountID: account.ID,
			Amount:    d("1000"),
		})
		if err != nil {
			t.Fatalf("failed to record payment: %v", err)
		}

		if !payment.RunningBalance.Equal(d("-1000")) {
			t.Errorf("expected balance -1000, got %s", payment.RunningBalance)
		}
		if payment.BalanceType != domain.BalanceTypeCredit {
			t.Errorf("expected credit classification, got %s", payment.BalanceType)
		}
	})

	t.Run("snapshot tracks postings with a valid hash", func(t *testing.T) {
		testDB.TruncateAll(ctx)
		account := testDB.CreateTestAccount(ctx, "tenant-1", "Student 1003")

		if _, err := stack.Factory.ApplyCharge(ctx, usecase.ChargeInput{
			TenantID:  "tenant-1",
			AccountID: account.ID,
			Amount:    d("250"),
			Reason:    "lab fee",
		}); err != nil {
			t.Fatalf("failed to apply charge: %v", err)
		}

		snapshot, err := stack.SnapshotRepo.Get(ctx, account.ID)
		if err != nil {
			t.Fatalf("failed to load snapshot: %v", err)
		}
		if snapshot == nil {
			t.Fatal("expected a snapshot after the first posting")
		}
		if !snapshot.CurrentBalance.Equal(d("250")) || snapshot.TotalEntries != 1 {
			t.Errorf("unexpected snapshot: %+v", snapshot)
		}
		if !snapshot.VerifyIntegrity() {
			t.Error("expected the snapshot hash to verify")
		}
	})

	t.Run("unknown account is rejected", func(t *testing.T) {
		testDB.TruncateAll(ctx)

		_, err := stack.Factory.RecordPayment(ctx, usecase.PaymentInput{
			TenantID:  "tenant-1",
			AccountID: "missing",
			Amount:    d("10"),
		})
		if !errors.Is(err, domain.ErrAccountNotFound) {
			t.Errorf("expected ErrAccountNotFound, got %v", err)
		}
	})

	t.Run("posting writes an audit row", func(t *testing.T) {
		testDB.TruncateAll(ctx)
		account := testDB.CreateTestAccount(ctx, "tenant-1", "Student 1004")

		entry, err := stack.Factory.ApplyDiscount(ctx, usecase.DiscountInput{
			TenantID:  "tenant-1",
			AccountID: account.ID,
			Amount:    d("50"),
			Reason:    "scholarship",
			Actor:     "bursar",
		})
		if err != nil {
			t.Fatalf("failed to apply discount: %v", err)
		}

		logs, err := stack.AuditRepo.ListByResource(ctx, "entry", entry.ID)
		if err != nil {
			t.Fatalf("failed to list audit logs: %v", err)
		}
		if len(logs) != 1 || logs[0].Actor != "bursar" {
			t.Errorf("expected one audit row by bursar, got %+v", logs)
		}
	})
}
