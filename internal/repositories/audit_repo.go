package repositories

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/solana-agent/backend/internal/models"
)

const maxTrail = 200

// AuditRepo appends to the audit trail. Entries are never updated.
type AuditRepo struct {
	pool *pgxpool.Pool
}

func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

func (r *AuditRepo) Log(ctx context.Context, entry models.AuditLog) error {
	if err := entry.Validate(); err != nil {
		return fmt.Errorf("audit %s: %w", entry.Action, err)
	}
	var meta map[string]any
	if len(entry.Meta) > 0 {
		meta = entry.Meta
	}
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO audit_log (actor_user_id, actor_type, action, entity_type, entity_id, meta)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, entry.ActorUserID, entry.ActorType, entry.Action, entry.EntityType, entry.EntityID, meta); err != nil {
		return fmt.Errorf("append audit %s: %w", entry.Action, err)
	}
	return nil
}

// Trail returns the history of one entity, newest first.
func (r *AuditRepo) Trail(ctx context.Context, entity models.AuditEntity, id uuid.UUID, limit int) ([]models.AuditLog, error) {
	if limit <= 0 || limit > maxTrail {
		limit = maxTrail
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, actor_user_id, actor_type, action, entity_type, entity_id, meta, created_at
		FROM audit_log WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC, id
		LIMIT $3
	`, entity, id, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var trail []models.AuditLog
	for rows.Next() {
		var l models.AuditLog
		if err := rows.Scan(&l.ID, &l.ActorUserID, &l.ActorType, &l.Action, &l.EntityType, &l.EntityID, &l.Meta, &l.CreatedAt); err != nil {
			return nil, err
		}
		trail = append(trail, l)
	}
	return trail, rows.Err()
}
