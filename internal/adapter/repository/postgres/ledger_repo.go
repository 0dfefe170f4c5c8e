package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusbill/ledger/internal/usecase"
)

// LedgerRepository implements usecase.LedgerRepository.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

// NewLedgerRepository creates a new LedgerRepository.
func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

// Stats returns tenant-wide ledger aggregates. An account counts as active
// when it carries at least one non-reversed entry.
func (r *LedgerRepository) Stats(ctx context.Context, tenantID string) (usecase.LedgerStats, error) {
	query := `
		SELECT coalesce(sum(e.debit), 0),
		       coalesce(sum(e.credit), 0),
		       count(e.id),
		       count(DISTINCT e.account_id) FILTER (WHERE NOT e.is_reversed)
		FROM ledger_entries e
		WHERE e.tenant_id = $1
	`

	var (
		stats           usecase.LedgerStats
		debits, credits pgtype.Numeric
	)

	err := r.pool.QueryRow(ctx, query, tenantID).Scan(
		&debits,
		&credits,
		&stats.TotalEntries,
		&stats.ActiveAccounts,
	)
	if err != nil {
		return usecase.LedgerStats{}, err
	}

	stats.TotalDebits = numericToDecimal(debits)
	stats.TotalCredits = numericToDecimal(credits)

	return stats, nil
}
