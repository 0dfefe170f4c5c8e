package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusbill/ledger/internal/domain"
	"github.com/campusbill/ledger/internal/usecase"
)

// SnapshotRepository implements usecase.SnapshotRepository.
type SnapshotRepository struct {
	pool *pgxpool.Pool
}

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(pool *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{pool: pool}
}

const snapshotColumns = `
	account_id, tenant_id, current_balance, total_debits, total_credits,
	total_entries, last_entry_sequence, last_updated, integrity_hash`

// Get retrieves an account's snapshot, or nil if none exists yet.
func (r *SnapshotRepository) Get(ctx context.Context, accountID string) (*domain.BalanceSnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM balance_snapshots WHERE account_id = $1`

	return scanSnapshot(r.pool.QueryRow(ctx, query, accountID))
}

// GetTx retrieves the snapshot inside the posting transaction.
func (r *SnapshotRepository) GetTx(ctx context.Context, tx usecase.Transaction, accountID string) (*domain.BalanceSnapshot, error) {
	pgxTx := tx.(*Tx).PgxTx()

	query := `SELECT ` + snapshotColumns + ` FROM balance_snapshots WHERE account_id = $1`

	return scanSnapshot(pgxTx.QueryRow(ctx, query, accountID))
}

// Upsert writes the snapshot row, creating it on first posting.
func (r *SnapshotRepository) Upsert(ctx context.Context, tx usecase.Transaction, snapshot *domain.BalanceSnapshot) error {
	pgxTx := tx.(*Tx).PgxTx()

	query := `
		INSERT INTO balance_snapshots (
			account_id, tenant_id, current_balance, total_debits, total_credits,
			total_entries, last_entry_sequence, last_updated, integrity_hash
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (account_id) DO UPDATE SET
			current_balance = excluded.current_balance,
			total_debits = excluded.total_debits,
			total_credits = excluded.total_credits,
			total_entries = excluded.total_entries,
			last_entry_sequence = excluded.last_entry_sequence,
			last_updated = excluded.last_updated,
			integrity_hash = excluded.integrity_hash
	`

	_, err := pgxTx.Exec(ctx, query,
		snapshot.AccountID,
		snapshot.TenantID,
		decimalToNumeric(snapshot.CurrentBalance),
		decimalToNumeric(snapshot.TotalDebits),
		decimalToNumeric(snapshot.TotalCredits),
		snapshot.TotalEntries,
		snapshot.LastEntrySequence,
		timeToPgTimestamptz(snapshot.LastUpdated),
		snapshot.IntegrityHash,
	)

	return err
}

func scanSnapshot(row pgx.Row) (*domain.BalanceSnapshot, error) {
	var (
		snapshot                 domain.BalanceSnapshot
		balance, debits, credits pgtype.Numeric
		lastUpdated              pgtype.Timestamptz
	)

	err := row.Scan(
		&snapshot.AccountID,
		&snapshot.TenantID,
		&balance,
		&debits,
		&credits,
		&snapshot.TotalEntries,
		&snapshot.LastEntrySequence,
		&lastUpdated,
		&snapshot.IntegrityHash,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	snapshot.CurrentBalance = numericToDecimal(balance)
	snapshot.TotalDebits = numericToDecimal(debits)
	snapshot.TotalCredits = numericToDecimal(credits)
	snapshot.LastUpdated = lastUpdated.Time

	return &snapshot, nil
}
