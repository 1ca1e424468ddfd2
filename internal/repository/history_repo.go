package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couturelab/backend/internal/models"
)

type HistoryRepo struct {
	pool *pgxpool.Pool
}

func NewHistoryRepo(pool *pgxpool.Pool) *HistoryRepo {
	return &HistoryRepo{pool: pool}
}

// CreateTx persists a generation inside the gateway's debit transaction,
// so the image, the debit and the ledger entry commit or roll back as one.
func (r *HistoryRepo) CreateTx(ctx context.Context, tx pgx.Tx, h *models.HistoryRecord) error {
	return tx.QueryRow(ctx, `
		INSERT INTO generation_history (id, user_id, gen_type, prompt, blob, resolution, aspect_ratio)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, h.ID, h.UserID, h.Type, h.Prompt, h.Blob, h.Metadata.Resolution, h.Metadata.AspectRatio).Scan(&h.CreatedAt)
}

// ListByUserID returns records newest first, without blobs. genType
// filters when non-empty.
func (r *HistoryRepo) ListByUserID(ctx context.Context, userID uuid.UUID, genType string, limit int) ([]*models.HistoryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id, user_id, gen_type, prompt, resolution, aspect_ratio, created_at
		FROM generation_history
		WHERE user_id = $1 AND ($2 = '' OR gen_type = $2)
		ORDER BY created_at DESC
		LIMIT $3
	`, userID, genType, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.HistoryRecord
	for rows.Next() {
		var h models.HistoryRecord
		if err := rows.Scan(&h.ID, &h.UserID, &h.Type, &h.Prompt,
			&h.Metadata.Resolution, &h.Metadata.AspectRatio, &h.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &h)
	}
	return list, rows.Err()
}

// GetByID returns one record including its blob.
func (r *HistoryRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.HistoryRecord, error) {
	var h models.HistoryRecord
	err := r.pool.QueryRow(ctx, `
		SELECT id, user_id, gen_type, prompt, blob, resolution, aspect_ratio, created_at
		FROM generation_history WHERE id = $1
	`, id).Scan(&h.ID, &h.UserID, &h.Type, &h.Prompt, &h.Blob,
		&h.Metadata.Resolution, &h.Metadata.AspectRatio, &h.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &h, nil
}

// PruneOld deletes a user's records beyond the newest keep rows and
// returns the number removed.
func (r *HistoryRepo) PruneOld(ctx context.Context, userID uuid.UUID, keep int) (int64, error) {
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM generation_history
		WHERE user_id = $1 AND id NOT IN (
			SELECT id FROM generation_history
			WHERE user_id = $1
			ORDER BY created_at DESC
			LIMIT $2
		)
	`, userID, keep)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
