package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couturelab/backend/internal/models"
)

const creditCols = "id, user_id, generation_id, entry_type, amount, balance_after, cause, created_at"

type CreditRepo struct {
	pool *pgxpool.Pool
}

func NewCreditRepo(pool *pgxpool.Pool) *CreditRepo {
	return &CreditRepo{pool: pool}
}

// CreateTx appends a ledger entry inside the given transaction. The
// ledger is append-only: there is no update or delete path.
func (r *CreditRepo) CreateTx(ctx context.Context, tx pgx.Tx, c *models.CreditLedger) error {
	return tx.QueryRow(ctx, `
		INSERT INTO credit_ledger (id, user_id, generation_id, entry_type, amount, balance_after, cause)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`, c.ID, c.UserID, c.GenerationID, c.EntryType, c.Amount, c.BalanceAfter, c.Cause).Scan(&c.CreatedAt)
}

func (r *CreditRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.CreditLedger, error) {
	var c models.CreditLedger
	err := r.pool.QueryRow(ctx, `SELECT `+creditCols+` FROM credit_ledger WHERE id = $1`, id).
		Scan(&c.ID, &c.UserID, &c.GenerationID, &c.EntryType, &c.Amount, &c.BalanceAfter, &c.Cause, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CreditRepo) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.CreditLedger, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+creditCols+` FROM credit_ledger WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.CreditLedger
	for rows.Next() {
		var c models.CreditLedger
		if err := rows.Scan(&c.ID, &c.UserID, &c.GenerationID, &c.EntryType, &c.Amount, &c.BalanceAfter, &c.Cause, &c.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &c)
	}
	return list, rows.Err()
}

// Drift is one user whose stored balance disagrees with the sum of their
// ledger deltas.
type Drift struct {
	UserID        uuid.UUID
	CreditBalance int
	LedgerSum     int
}

// FindDrift returns every user whose credit_balance differs from the sum
// of their ledger entries. A healthy system returns an empty slice.
func (r *CreditRepo) FindDrift(ctx context.Context) ([]Drift, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT u.id, u.credit_balance, COALESCE(SUM(l.amount), 0)
		FROM users u
		LEFT JOIN credit_ledger l ON l.user_id = u.id
		GROUP BY u.id, u.credit_balance
		HAVING u.credit_balance <> COALESCE(SUM(l.amount), 0)
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var drifts []Drift
	for rows.Next() {
		var d Drift
		if err := rows.Scan(&d.UserID, &d.CreditBalance, &d.LedgerSum); err != nil {
			return nil, err
		}
		drifts = append(drifts, d)
	}
	return drifts, rows.Err()
}
