package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	postgresRepo "github.com/campusbill/ledger/internal/adapter/repository/postgres"
	redisRepo "github.com/campusbill/ledger/internal/adapter/repository/redis"
	"github.com/campusbill/ledger/internal/domain"
	"github.com/campusbill/ledger/internal/infrastructure/config"
	"github.com/campusbill/ledger/internal/infrastructure/logger"
	"github.com/campusbill/ledger/internal/infrastructure/postgres"
	"github.com/campusbill/ledger/internal/infrastructure/redis"
	"github.com/campusbill/ledger/internal/usecase"
)

// ledgerctl drives the posting engine directly against the database. It is
// the operator's tool: manual adjustments, reversals, reconciliation and
// snapshot rebuilds all leave the same audit trail as application postings.

var (
	tenantID  string
	accountID string
	actor     string
)

type app struct {
	accounts       *usecase.AccountUseCase
	factory        *usecase.FactoryUseCase
	reversal       *usecase.ReversalUseCase
	balance        *usecase.BalanceUseCase
	reconciliation *usecase.ReconciliationUseCase
	close          func()
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "ledgerctl",
		Short: "Ledger operations tool",
		Long:  `Posts, reverses, inspects and reconciles ledger entries directly against the database.`,
	}

	rootCmd.PersistentFlags().StringVar(&tenantID, "tenant", "", "Tenant ID")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "ledgerctl", "Actor recorded in the audit trail")
	_ = rootCmd.MarkPersistentFlagRequired("tenant")

	rootCmd.AddCommand(
		createAccountCmd(),
		postCmd(),
		reverseCmd(),
		balanceCmd(),
		entriesCmd(),
		statsCmd(),
		reconcileCmd(),
		rebuildSnapshotCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func createAccountCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "create-account",
		Short: "Create a ledger account",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			account, err := a.accounts.CreateAccount(cmd.Context(), usecase.CreateAccountInput{
				TenantID: tenantID,
				Name:     name,
			})
			if err != nil {
				return err
			}

			return printJSON(account)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Account name")
	_ = cmd.MarkFlagRequired("name")

	return cmd
}

func postCmd() *cobra.Command {
	var (
		amountStr string
		reference string
		reason    string
		direction string
		method    string
		invoiceNo string
	)

	cmd := &cobra.Command{
		Use:       "post <payment|invoice|charge|discount|adjustment>",
		Short:     "Post a ledger entry",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"payment", "invoice", "charge", "discount", "adjustment"},
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := decimal.NewFromString(amountStr)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", amountStr, err)
			}

			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()

			var entry any
			switch args[0] {
			case "payment":
				entry, err = a.factory.RecordPayment(ctx, usecase.PaymentInput{
					TenantID: tenantID, AccountID: accountID, Amount: amount,
					Method: method, ReferenceID: reference, Actor: actor,
				})
			case "invoice":
				entry, err = a.factory.PostInvoice(ctx, usecase.InvoiceInput{
					TenantID: tenantID, AccountID: accountID, Amount: amount,
					InvoiceNumber: invoiceNo, ReferenceID: reference, Actor: actor,
				})
			case "charge":
				entry, err = a.factory.ApplyCharge(ctx, usecase.ChargeInput{
					TenantID: tenantID, AccountID: accountID, Amount: amount,
					Reason: reason, ReferenceID: reference, Actor: actor,
				})
			case "discount":
				entry, err = a.factory.ApplyDiscount(ctx, usecase.DiscountInput{
					TenantID: tenantID, AccountID: accountID, Amount: amount,
					Reason: reason, ReferenceID: reference, Actor: actor,
				})
			case "adjustment":
				entry, err = a.factory.CreateAdjustment(ctx, usecase.AdjustmentInput{
					TenantID: tenantID, AccountID: accountID, Amount: amount,
					Direction: usecase.AdjustmentDirection(direction),
					Reason:    reason, ReferenceID: reference, Actor: actor,
				})
			default:
				return fmt.Errorf("unknown entry kind %q", args[0])
			}
			if err != nil {
				return err
			}

			return printJSON(entry)
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Account ID")
	cmd.Flags().StringVar(&amountStr, "amount", "", "Amount (e.g. 1500.00)")
	cmd.Flags().StringVar(&reference, "reference", "", "External reference ID")
	cmd.Flags().StringVar(&reason, "reason", "", "Reason (charge, discount, adjustment)")
	cmd.Flags().StringVar(&direction, "direction", "debit", "Adjustment direction (debit|credit)")
	cmd.Flags().StringVar(&method, "method", "", "Payment method")
	cmd.Flags().StringVar(&invoiceNo, "invoice-number", "", "Invoice number")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("amount")

	return cmd
}

func reverseCmd() *cobra.Command {
	var (
		entryID string
		reason  string
	)

	cmd := &cobra.Command{
		Use:   "reverse",
		Short: "Reverse an entry with a compensating entry",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			entry, err := a.reversal.ReverseEntry(cmd.Context(), usecase.ReverseEntryInput{
				TenantID: tenantID,
				EntryID:  entryID,
				Actor:    actor,
				Reason:   reason,
			})
			if err != nil {
				return err
			}

			return printJSON(entry)
		},
	}

	cmd.Flags().StringVar(&entryID, "entry", "", "Entry ID to reverse")
	cmd.Flags().StringVar(&reason, "reason", "", "Reversal reason")
	_ = cmd.MarkFlagRequired("entry")
	_ = cmd.MarkFlagRequired("reason")

	return cmd
}

func balanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show an account's current balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			summary, err := a.balance.GetBalance(cmd.Context(), tenantID, accountID)
			if err != nil {
				return err
			}

			return printJSON(summary)
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Account ID")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func entriesCmd() *cobra.Command {
	var (
		entryType string
		limit     int
		offset    int
	)

	cmd := &cobra.Command{
		Use:   "entries",
		Short: "List an account's entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			entries, err := a.balance.ListEntries(cmd.Context(), usecase.EntryFilter{
				TenantID:  tenantID,
				AccountID: accountID,
				Type:      domain.EntryType(entryType),
				Limit:     limit,
				Offset:    offset,
			})
			if err != nil {
				return err
			}

			return printJSON(entries)
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Account ID")
	cmd.Flags().StringVar(&entryType, "type", "", "Filter by entry type")
	cmd.Flags().IntVar(&limit, "limit", 50, "Page size")
	cmd.Flags().IntVar(&offset, "offset", 0, "Page offset")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show tenant-wide ledger aggregates",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			stats, err := a.balance.Stats(cmd.Context(), tenantID)
			if err != nil {
				return err
			}

			return printJSON(stats)
		},
	}
}

func reconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Verify snapshots against the entry log",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			if accountID != "" {
				result, err := a.reconciliation.ReconcileAccount(cmd.Context(), tenantID, accountID)
				if err != nil {
					return err
				}
				return printJSON(result)
			}

			report, err := a.reconciliation.ReconcileTenant(cmd.Context(), tenantID)
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Reconcile a single account")

	return cmd
}

func rebuildSnapshotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rebuild-snapshot",
		Short: "Re-derive an account's snapshot from its entry log",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()

			snapshot, err := a.reconciliation.RebuildSnapshot(cmd.Context(), tenantID, accountID, actor)
			if err != nil {
				return err
			}

			return printJSON(snapshot)
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Account ID")
	_ = cmd.MarkFlagRequired("account")

	return cmd
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	log := logger.New(logger.Config{Level: "warn", Format: "console"})

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, cfg.DatabaseMaxConns, cfg.DatabaseMinConns, cfg.DatabaseTimeout)
	if err != nil {
		return nil, err
	}

	txManager := postgresRepo.NewTxManager(pool, cfg.LockTimeout)
	accountRepo := postgresRepo.NewAccountRepository(pool)
	entryRepo := postgresRepo.NewEntryRepository(pool)
	snapshotRepo := postgresRepo.NewSnapshotRepository(pool)
	ledgerRepo := postgresRepo.NewLedgerRepository(pool)
	auditRepo := postgresRepo.NewAuditRepository(pool)
	idGen := postgresRepo.NewULIDGenerator()
	retrier := postgresRepo.NewRetrier(log)

	posting := usecase.NewPostingUseCase(txManager, accountRepo, entryRepo, snapshotRepo, auditRepo, idGen).
		WithRetrier(retrier)
	factory := usecase.NewFactoryUseCase(posting, accountRepo)
	balance := usecase.NewBalanceUseCase(accountRepo, entryRepo, snapshotRepo, ledgerRepo)

	closers := []func(){pool.Close}

	// Redis is optional for the CLI; without it postings still work, they
	// just skip cache invalidation and idempotency keys.
	if redisClient, err := redis.NewClient(ctx, cfg.RedisURL); err == nil {
		cache := redisRepo.NewCache(redisClient)
		posting = posting.WithCache(cache)
		balance = balance.WithCache(cache)
		factory = factory.WithIdempotencyStore(redisRepo.NewIdempotencyStore(redisClient), cfg.IdempotencyTTL)
		closers = append(closers, func() { _ = redisClient.Close() })
	}

	return &app{
		accounts:       usecase.NewAccountUseCase(accountRepo, idGen),
		factory:        factory,
		reversal:       usecase.NewReversalUseCase(posting),
		balance:        balance,
		reconciliation: usecase.NewReconciliationUseCase(txManager, accountRepo, entryRepo, snapshotRepo, auditRepo),
		close: func() {
			for _, c := range closers {
				c()
			}
		},
	}, nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
