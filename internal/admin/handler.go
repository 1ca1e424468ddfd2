package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/couturelab/backend/internal/auth"
	"github.com/couturelab/backend/internal/models"
	"github.com/couturelab/backend/internal/repository"
)

// ledgerStore is the slice of the credit repository the back office uses.
type ledgerStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, entry *models.CreditLedger) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.CreditLedger, error)
	ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.CreditLedger, error)
}

// Handler is the back office under /api/v1/admin. Every endpoint
// requires a JWT whose role claim is admin.
type Handler struct {
	authSvc auth.Service
	pool    *pgxpool.Pool
	userR   *repository.UserRepo
	creditR ledgerStore
	usageR  *repository.UsageRepo
	log     *slog.Logger
}

func NewHandler(
	authSvc auth.Service,
	pool *pgxpool.Pool,
	userR *repository.UserRepo,
	creditR ledgerStore,
	usageR *repository.UsageRepo,
	log *slog.Logger,
) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{authSvc: authSvc, pool: pool, userR: userR, creditR: creditR, usageR: usageR, log: log}
}

func (h *Handler) requireAdmin(r *http.Request) (uuid.UUID, error) {
	authz := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(authz, prefix) {
		return uuid.Nil, fmt.Errorf("missing authorization")
	}
	id, role, err := h.authSvc.ValidateToken(r.Context(), strings.TrimSpace(authz[len(prefix):]))
	if err != nil {
		return uuid.Nil, err
	}
	if role != models.RoleAdmin {
		return uuid.Nil, fmt.Errorf("admin role required")
	}
	return id, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// pathUserID extracts the user ID from /api/v1/admin/users/{id}[/suffix].
func pathUserID(path string) (uuid.UUID, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, p := range parts {
		if p == "users" && i+1 < len(parts) {
			return uuid.Parse(parts[i+1])
		}
	}
	return uuid.Nil, fmt.Errorf("no user ID in path")
}

// GET /api/v1/admin/users
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	if _, err := h.requireAdmin(r); err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	users, err := h.userR.List(r.Context())
	if err != nil {
		h.log.Error("list users failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if users == nil {
		users = []*models.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

// GET /api/v1/admin/users/{id}
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	if _, err := h.requireAdmin(r); err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	userID, err := pathUserID(r.URL.Path)
	if err != nil {
		http.Error(w, "invalid user ID", http.StatusBadRequest)
		return
	}
	u, err := h.userR.GetByID(r.Context(), userID)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// PATCH /api/v1/admin/users/{id}
// Adjusts entitlements and active state. Balance is never writable here;
// credit changes go through Topup so the ledger stays complete.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	if _, err := h.requireAdmin(r); err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	userID, err := pathUserID(r.URL.Path)
	if err != nil {
		http.Error(w, "invalid user ID", http.StatusBadRequest)
		return
	}
	u, err := h.userR.GetByID(r.Context(), userID)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	var body struct {
		Resolutions *[]string `json:"resolutions"`
		Features    *[]string `json:"features"`
		IsActive    *bool     `json:"isActive"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if body.Resolutions != nil {
		for _, res := range *body.Resolutions {
			if !models.IsResolution(res) {
				http.Error(w, "unknown resolution: "+res, http.StatusBadRequest)
				return
			}
		}
		u.Resolutions = *body.Resolutions
	}
	if body.Features != nil {
		for _, f := range *body.Features {
			if !models.IsGenType(f) {
				http.Error(w, "unknown feature: "+f, http.StatusBadRequest)
				return
			}
		}
		u.Features = *body.Features
	}
	if body.IsActive != nil {
		u.IsActive = *body.IsActive
	}
	if err := h.userR.Update(r.Context(), u); err != nil {
		h.log.Error("update user failed", "user_id", userID, "error", err)
		http.Error(w, "update failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// POST /api/v1/admin/users/{id}/topup
// Credits the user and appends the matching positive ledger entry in one
// transaction. The row is locked first so balance_after is exact under
// concurrent spending.
func (h *Handler) Topup(w http.ResponseWriter, r *http.Request) {
	adminID, err := h.requireAdmin(r)
	if err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	userID, err := pathUserID(r.URL.Path)
	if err != nil {
		http.Error(w, "invalid user ID", http.StatusBadRequest)
		return
	}
	var body struct {
		Amount int    `json:"amount"`
		Note   string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if body.Amount <= 0 {
		http.Error(w, "amount must be positive", http.StatusBadRequest)
		return
	}

	tx, err := h.pool.Begin(r.Context())
	if err != nil {
		h.log.Error("begin topup tx failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback(r.Context())

	if _, err := h.userR.GetByIDForUpdate(r.Context(), tx, userID); err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	newBalance, err := h.userR.AddCredits(r.Context(), tx, userID, body.Amount)
	if err != nil {
		h.log.Error("topup add credits failed", "user_id", userID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	cause := "admin topup"
	if body.Note != "" {
		cause = "admin topup: " + body.Note
	}
	entry := &models.CreditLedger{
		ID:           uuid.New(),
		UserID:       userID,
		EntryType:    models.CreditEntryAdminTopup,
		Amount:       body.Amount,
		BalanceAfter: newBalance,
		Cause:        cause,
	}
	if err := h.creditR.CreateTx(r.Context(), tx, entry); err != nil {
		h.log.Error("topup ledger entry failed", "user_id", userID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if err := tx.Commit(r.Context()); err != nil {
		h.log.Error("commit topup failed", "user_id", userID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	h.log.Info("admin topup",
		"admin_id", adminID, "user_id", userID, "amount", body.Amount, "new_balance", newBalance)
	writeJSON(w, http.StatusOK, map[string]any{
		"userId":     userID,
		"newBalance": newBalance,
		"entry":      entry,
	})
}

// GET /api/v1/admin/credit-ledger/{id}
// Resolves a single ledger entry by ID, for tracing a disputed charge
// back to the generation that caused it.
func (h *Handler) GetLedgerEntry(w http.ResponseWriter, r *http.Request) {
	if _, err := h.requireAdmin(r); err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	entryID, err := uuid.Parse(parts[len(parts)-1])
	if err != nil {
		http.Error(w, "invalid entry ID", http.StatusBadRequest)
		return
	}
	entry, err := h.creditR.GetByID(r.Context(), entryID)
	if errors.Is(err, pgx.ErrNoRows) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error("get ledger entry failed", "entry_id", entryID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// GET /api/v1/admin/users/{id}/credit-ledger
func (h *Handler) ListUserLedger(w http.ResponseWriter, r *http.Request) {
	if _, err := h.requireAdmin(r); err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	userID, err := pathUserID(r.URL.Path)
	if err != nil {
		http.Error(w, "invalid user ID", http.StatusBadRequest)
		return
	}
	entries, err := h.creditR.ListByUserID(r.Context(), userID)
	if err != nil {
		h.log.Error("list user ledger failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*models.CreditLedger{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// GET /api/v1/admin/users/{id}/usage
func (h *Handler) ListUserUsage(w http.ResponseWriter, r *http.Request) {
	if _, err := h.requireAdmin(r); err != nil {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	userID, err := pathUserID(r.URL.Path)
	if err != nil {
		http.Error(w, "invalid user ID", http.StatusBadRequest)
		return
	}
	entries, err := h.usageR.ListByUserID(r.Context(), userID, 0)
	if err != nil {
		h.log.Error("list user usage failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*models.UsageLog{}
	}
	writeJSON(w, http.StatusOK, entries)
}
