package postgres

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campusbill/ledger/internal/domain"
	"github.com/campusbill/ledger/internal/usecase"
)

// AuditRepository implements usecase.AuditRepository.
type AuditRepository struct {
	pool *pgxpool.Pool
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

// execer is satisfied by both *pgxpool.Pool and pgx.Tx.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const auditInsert = `
	INSERT INTO audit_logs (
		id, tenant_id, actor, action, resource_type, resource_id,
		before_state, after_state, status, error_message, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
`

// CreateTx inserts an audit log inside the posting transaction, so the trail
// commits or rolls back together with the entry it describes.
func (r *AuditRepository) CreateTx(ctx context.Context, tx usecase.Transaction, log *domain.AuditLog) error {
	pgxTx := tx.(*Tx).PgxTx()
	return r.create(ctx, pgxTx, log)
}

// Create inserts an audit log outside any transaction.
func (r *AuditRepository) Create(ctx context.Context, log *domain.AuditLog) error {
	return r.create(ctx, r.pool, log)
}

func (r *AuditRepository) create(ctx context.Context, db execer, log *domain.AuditLog) error {
	if log.ID == "" {
		log.ID = uuid.New().String()
	}

	beforeJSON, err := marshalAuditState(log.BeforeState)
	if err != nil {
		return err
	}
	afterJSON, err := marshalAuditState(log.AfterState)
	if err != nil {
		return err
	}

	_, err = db.Exec(ctx, auditInsert,
		log.ID,
		log.TenantID,
		log.Actor,
		log.Action,
		log.ResourceType,
		log.ResourceID,
		beforeJSON,
		afterJSON,
		log.Status,
		log.ErrorMessage,
		timeToPgTimestamptz(log.CreatedAt),
	)

	return err
}

// ListByResource retrieves the audit trail of one resource, newest first.
func (r *AuditRepository) ListByResource(ctx context.Context, resourceType, resourceID string) ([]*domain.AuditLog, error) {
	query := `
		SELECT id, tenant_id, actor, action, resource_type, resource_id,
		       before_state, after_state, status, error_message, created_at
		FROM audit_logs
		WHERE resource_type = $1 AND resource_id = $2
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, resourceType, resourceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []*domain.AuditLog
	for rows.Next() {
		var (
			log                   domain.AuditLog
			beforeJSON, afterJSON []byte
			createdAt             pgtype.Timestamptz
		)

		err := rows.Scan(
			&log.ID,
			&log.TenantID,
			&log.Actor,
			&log.Action,
			&log.ResourceType,
			&log.ResourceID,
			&beforeJSON,
			&afterJSON,
			&log.Status,
			&log.ErrorMessage,
			&createdAt,
		)
		if err != nil {
			return nil, err
		}

		log.CreatedAt = createdAt.Time
		if beforeJSON != nil {
			_ = json.Unmarshal(beforeJSON, &log.BeforeState)
		}
		if afterJSON != nil {
			_ = json.Unmarshal(afterJSON, &log.AfterState)
		}

		logs = append(logs, &log)
	}

	return logs, rows.Err()
}

func marshalAuditState(state domain.JSON) ([]byte, error) {
	if state == nil {
		return nil, nil
	}
	return json.Marshal(state)
}
