package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couturelab/backend/internal/models"
)

const usageCols = "id, user_id, action, gen_type, resolution, prompt_tokens, response_tokens, total_tokens, image_count, cost, created_at"

type UsageRepo struct {
	pool *pgxpool.Pool
}

func NewUsageRepo(pool *pgxpool.Pool) *UsageRepo {
	return &UsageRepo{pool: pool}
}

// CreateTx appends a usage record inside the gateway's debit transaction.
// Usage records are write-once.
func (r *UsageRepo) CreateTx(ctx context.Context, tx pgx.Tx, u *models.UsageLog) error {
	return tx.QueryRow(ctx, `
		INSERT INTO usage_log (id, user_id, action, gen_type, resolution, prompt_tokens, response_tokens, total_tokens, image_count, cost)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`, u.ID, u.UserID, u.Action, u.GenType, u.Resolution, u.PromptTokens, u.ResponseTokens, u.TotalTokens, u.ImageCount, u.Cost).
		Scan(&u.CreatedAt)
}

func (r *UsageRepo) ListByUserID(ctx context.Context, userID uuid.UUID, limit int) ([]*models.UsageLog, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+usageCols+` FROM usage_log WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.UsageLog
	for rows.Next() {
		var u models.UsageLog
		if err := rows.Scan(&u.ID, &u.UserID, &u.Action, &u.GenType, &u.Resolution,
			&u.PromptTokens, &u.ResponseTokens, &u.TotalTokens, &u.ImageCount, &u.Cost, &u.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &u)
	}
	return list, rows.Err()
}
