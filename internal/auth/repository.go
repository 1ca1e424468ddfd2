package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couturelab/backend/internal/models"
	"github.com/couturelab/backend/internal/repository"
)

// Repository owns the registration transaction: the user row and its
// signup-grant ledger entry commit together or not at all.
type Repository struct {
	pool    *pgxpool.Pool
	users   *repository.UserRepo
	credits *repository.CreditRepo
}

func NewRepository(pool *pgxpool.Pool, users *repository.UserRepo, credits *repository.CreditRepo) *Repository {
	return &Repository{pool: pool, users: users, credits: credits}
}

// CreateDesigner inserts a new designer with the signup grant and the
// matching ledger entry atomically. u.CreditBalance must already equal
// the grant so balance_after lines up with the ledger sum.
func (r *Repository) CreateDesigner(ctx context.Context, u *models.User) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := r.users.CreateTx(ctx, tx, u); err != nil {
		return err
	}
	entry := &models.CreditLedger{
		ID:           uuid.New(),
		UserID:       u.ID,
		EntryType:    models.CreditEntrySignupGrant,
		Amount:       u.CreditBalance,
		BalanceAfter: u.CreditBalance,
		Cause:        "signup grant",
	}
	if err := r.credits.CreateTx(ctx, tx, entry); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetByEmail returns the user for login, or pgx.ErrNoRows when unknown.
func (r *Repository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.users.GetByEmail(ctx, email)
}
