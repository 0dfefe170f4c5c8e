package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusbill/ledger/internal/domain"
	"github.com/campusbill/ledger/internal/usecase"
)

// EntryRepository implements usecase.EntryRepository.
type EntryRepository struct {
	pool *pgxpool.Pool
}

// NewEntryRepository creates a new EntryRepository.
func NewEntryRepository(pool *pgxpool.Pool) *EntryRepository {
	return &EntryRepository{pool: pool}
}

const entryColumns = `
	id, account_id, tenant_id, entry_date, type, description, reference_id,
	debit, credit, running_balance, balance_type, entry_sequence,
	is_reversed, reversed_by, reversal_date, created_at`

// Create persists the entry and assigns its sequence number. The sequence is
// computed inside the INSERT while the caller holds the account row lock, so
// it is gapless and strictly increasing per account.
func (r *EntryRepository) Create(ctx context.Context, tx usecase.Transaction, entry *domain.Entry) error {
	pgxTx := tx.(*Tx).PgxTx()

	query := `
		INSERT INTO ledger_entries (
			id, account_id, tenant_id, entry_date, type, description, reference_id,
			debit, credit, running_balance, balance_type, entry_sequence,
			is_reversed, created_at
		)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11,
		       coalesce(max(entry_sequence), 0) + 1, false, $12
		FROM ledger_entries
		WHERE account_id = $2
		RETURNING entry_sequence
	`

	return pgxTx.QueryRow(ctx, query,
		entry.ID,
		entry.AccountID,
		entry.TenantID,
		timeToPgTimestamptz(entry.Date),
		string(entry.Type),
		entry.Description,
		entry.ReferenceID,
		decimalToNumeric(entry.Debit),
		decimalToNumeric(entry.Credit),
		decimalToNumeric(entry.RunningBalance),
		string(entry.BalanceType),
		timeToPgTimestamptz(entry.CreatedAt),
	).Scan(&entry.EntrySequence)
}

// GetByID retrieves an entry by ID within a tenant.
func (r *EntryRepository) GetByID(ctx context.Context, tenantID, id string) (*domain.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE tenant_id = $1 AND id = $2`

	return scanEntry(r.pool.QueryRow(ctx, query, tenantID, id))
}

// GetByIDForUpdate retrieves an entry with a FOR UPDATE lock.
func (r *EntryRepository) GetByIDForUpdate(ctx context.Context, tx usecase.Transaction, tenantID, id string) (*domain.Entry, error) {
	pgxTx := tx.(*Tx).PgxTx()

	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE tenant_id = $1 AND id = $2 FOR UPDATE`

	return scanEntry(pgxTx.QueryRow(ctx, query, tenantID, id))
}

// GetLastForAccount returns the highest-sequence entry, or nil if the account
// has no entries.
func (r *EntryRepository) GetLastForAccount(ctx context.Context, tx usecase.Transaction, accountID string) (*domain.Entry, error) {
	pgxTx := tx.(*Tx).PgxTx()

	query := `
		SELECT ` + entryColumns + `
		FROM ledger_entries
		WHERE account_id = $1
		ORDER BY entry_sequence DESC
		LIMIT 1
	`

	entry, err := scanEntry(pgxTx.QueryRow(ctx, query, accountID))
	if errors.Is(err, domain.ErrEntryNotFound) {
		return nil, nil
	}

	return entry, err
}

// MarkReversed flags an entry as reversed and links its compensating entry.
func (r *EntryRepository) MarkReversed(ctx context.Context, tx usecase.Transaction, id, reversedBy string, reversalDate time.Time) error {
	pgxTx := tx.(*Tx).PgxTx()

	query := `
		UPDATE ledger_entries
		SET is_reversed = true, reversed_by = $2, reversal_date = $3
		WHERE id = $1 AND is_reversed = false
	`

	ct, err := pgxTx.Exec(ctx, query, id, reversedBy, timeToPgTimestamptz(reversalDate))
	if err != nil {
		return err
	}

	if ct.RowsAffected() == 0 {
		return domain.ErrAlreadyReversed
	}

	return nil
}

// ListByAccount lists entries for an account, newest first.
func (r *EntryRepository) ListByAccount(ctx context.Context, filter usecase.EntryFilter) ([]*domain.Entry, error) {
	query := `SELECT ` + entryColumns + ` FROM ledger_entries WHERE tenant_id = $1 AND account_id = $2`
	args := []any{filter.TenantID, filter.AccountID}

	if filter.Type != "" {
		args = append(args, string(filter.Type))
		query += fmt.Sprintf(" AND type = $%d", len(args))
	}
	if filter.From != nil {
		args = append(args, timeToPgTimestamptz(*filter.From))
		query += fmt.Sprintf(" AND entry_date >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, timeToPgTimestamptz(*filter.To))
		query += fmt.Sprintf(" AND entry_date <= $%d", len(args))
	}

	query += " ORDER BY entry_sequence DESC"

	args = append(args, filter.Limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	args = append(args, filter.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// SumForAccount folds the full entry history into gross aggregates. Reversal
// pairs cancel, so this sum matches the non-reversed balance.
func (r *EntryRepository) SumForAccount(ctx context.Context, accountID string) (usecase.EntrySums, error) {
	return sumForAccount(ctx, r.pool, accountID)
}

// SumForAccountTx is SumForAccount within an existing transaction, keeping
// the aggregates consistent with the transaction's other reads.
func (r *EntryRepository) SumForAccountTx(ctx context.Context, tx usecase.Transaction, accountID string) (usecase.EntrySums, error) {
	return sumForAccount(ctx, tx.(*Tx).PgxTx(), accountID)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func sumForAccount(ctx context.Context, db rowQuerier, accountID string) (usecase.EntrySums, error) {
	query := `
		SELECT coalesce(sum(debit), 0),
		       coalesce(sum(credit), 0),
		       count(*),
		       coalesce(max(entry_sequence), 0)
		FROM ledger_entries
		WHERE account_id = $1
	`

	var (
		sums           usecase.EntrySums
		debits, credit pgtype.Numeric
	)

	err := db.QueryRow(ctx, query, accountID).Scan(
		&debits,
		&credit,
		&sums.TotalEntries,
		&sums.LastSequence,
	)
	if err != nil {
		return usecase.EntrySums{}, err
	}

	sums.TotalDebits = numericToDecimal(debits)
	sums.TotalCredits = numericToDecimal(credit)

	return sums, nil
}

func scanEntry(row pgx.Row) (*domain.Entry, error) {
	var (
		entry                         domain.Entry
		entryType, balanceType        string
		debit, credit, runningBalance pgtype.Numeric
		reversedBy                    pgtype.Text
		date, reversalDate, createdAt pgtype.Timestamptz
	)

	err := row.Scan(
		&entry.ID,
		&entry.AccountID,
		&entry.TenantID,
		&date,
		&entryType,
		&entry.Description,
		&entry.ReferenceID,
		&debit,
		&credit,
		&runningBalance,
		&balanceType,
		&entry.EntrySequence,
		&entry.IsReversed,
		&reversedBy,
		&reversalDate,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEntryNotFound
		}
		return nil, err
	}

	entry.Date = date.Time
	entry.Type = domain.EntryType(entryType)
	entry.Debit = numericToDecimal(debit)
	entry.Credit = numericToDecimal(credit)
	entry.RunningBalance = numericToDecimal(runningBalance)
	entry.BalanceType = domain.BalanceType(balanceType)
	entry.ReversedBy = reversedBy.String
	entry.CreatedAt = createdAt.Time

	if reversalDate.Valid {
		t := reversalDate.Time
		entry.ReversalDate = &t
	}

	return &entry, nil
}
