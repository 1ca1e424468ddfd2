package admin

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/couturelab/backend/internal/models"
)

// --- stubs ---

type stubAuth struct {
	id   uuid.UUID
	role string
}

func (s *stubAuth) Register(ctx context.Context, email, password, displayName string) (*models.User, error) {
	return nil, nil
}

func (s *stubAuth) Login(ctx context.Context, email, password string) (string, error) {
	return "", nil
}

func (s *stubAuth) ValidateToken(ctx context.Context, token string) (uuid.UUID, string, error) {
	return s.id, s.role, nil
}

type memLedger struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*models.CreditLedger
}

func (m *memLedger) CreateTx(ctx context.Context, tx pgx.Tx, entry *models.CreditLedger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.ID] = entry
	return nil
}

func (m *memLedger) GetByID(ctx context.Context, id uuid.UUID) (*models.CreditLedger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return e, nil
}

func (m *memLedger) ListByUserID(ctx context.Context, userID uuid.UUID) ([]*models.CreditLedger, error) {
	return nil, nil
}

// --- tests ---

func newLedgerFixture(role string, entries ...*models.CreditLedger) *Handler {
	ledger := &memLedger{entries: make(map[uuid.UUID]*models.CreditLedger)}
	for _, e := range entries {
		ledger.entries[e.ID] = e
	}
	return NewHandler(
		&stubAuth{id: uuid.New(), role: role},
		nil, nil, ledger, nil,
		slog.New(slog.DiscardHandler),
	)
}

func getEntry(h *Handler, id string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/credit-ledger/"+id, nil)
	req.Header.Set("Authorization", "Bearer token")
	rec := httptest.NewRecorder()
	h.GetLedgerEntry(rec, req)
	return rec
}

func TestGetLedgerEntry(t *testing.T) {
	entry := &models.CreditLedger{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		EntryType:    models.CreditEntryGenerationDebit,
		Amount:       -4,
		BalanceAfter: 46,
		Cause:        "concept 1K",
	}
	h := newLedgerFixture(models.RoleAdmin, entry)

	rec := getEntry(h, entry.ID.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got models.CreditLedger
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.ID != entry.ID || got.Amount != -4 || got.BalanceAfter != 46 {
		t.Errorf("entry = %+v", got)
	}
}

func TestGetLedgerEntry_UnknownID(t *testing.T) {
	h := newLedgerFixture(models.RoleAdmin)
	if rec := getEntry(h, uuid.NewString()); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestGetLedgerEntry_InvalidID(t *testing.T) {
	h := newLedgerFixture(models.RoleAdmin)
	if rec := getEntry(h, "not-a-uuid"); rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetLedgerEntry_RequiresAdminRole(t *testing.T) {
	h := newLedgerFixture(models.RoleDesigner)
	if rec := getEntry(h, uuid.NewString()); rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}
