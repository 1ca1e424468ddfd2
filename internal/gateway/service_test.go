package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/couturelab/backend/internal/genai"
	"github.com/couturelab/backend/internal/models"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

// fakeTx satisfies pgx.Tx via embedding; only Commit and Rollback are
// exercised because the stores below are in-memory.
type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if !t.committed {
		t.rolledBack = true
	}
	return nil
}

type fakePool struct {
	mu  sync.Mutex
	txs []*fakeTx
}

func (p *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	tx := &fakeTx{}
	p.txs = append(p.txs, tx)
	return tx, nil
}

type memUsers struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

func (m *memUsers) GetByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) DeductCredits(_ context.Context, _ pgx.Tx, id uuid.UUID, amount int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.CreditBalance < amount {
		return 0, pgx.ErrNoRows
	}
	u.CreditBalance -= amount
	return u.CreditBalance, nil
}

func (m *memUsers) setBalance(id uuid.UUID, balance int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id].CreditBalance = balance
}

type memLedger struct {
	mu      sync.Mutex
	entries []*models.CreditLedger
}

func (m *memLedger) CreateTx(_ context.Context, _ pgx.Tx, c *models.CreditLedger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.entries = append(m.entries, &cp)
	return nil
}

type memUsage struct {
	mu      sync.Mutex
	entries []*models.UsageLog
}

func (m *memUsage) CreateTx(_ context.Context, _ pgx.Tx, u *models.UsageLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *u
	m.entries = append(m.entries, &cp)
	return nil
}

type memHistory struct {
	mu      sync.Mutex
	records []*models.HistoryRecord
}

func (m *memHistory) CreateTx(_ context.Context, _ pgx.Tx, h *models.HistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *h
	m.records = append(m.records, &cp)
	return nil
}

type stubModel struct {
	mu      sync.Mutex
	calls   int
	err     error
	onCall  func()
	imageB4 string
}

func (s *stubModel) GenerateImage(_ context.Context, _ models.GenerationRequest) (*genai.Result, error) {
	s.mu.Lock()
	s.calls++
	hook := s.onCall
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	if s.err != nil {
		return nil, s.err
	}
	data := s.imageB4
	if data == "" {
		data = base64.StdEncoding.EncodeToString([]byte("fake-image-bytes"))
	}
	return &genai.Result{
		Data:     data,
		MimeType: "image/png",
		Usage:    models.Usage{PromptTokens: 100, ResponseTokens: 1290, TotalTokens: 1390},
	}, nil
}

func (s *stubModel) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

type fixture struct {
	svc     *Service
	pool    *fakePool
	users   *memUsers
	ledger  *memLedger
	usage   *memUsage
	history *memHistory
	model   *stubModel
	userID  uuid.UUID
}

func newFixture(balance int) *fixture {
	userID := uuid.New()
	users := &memUsers{users: map[uuid.UUID]*models.User{
		userID: {
			ID:            userID,
			Email:         "designer@example.com",
			Role:          models.RoleDesigner,
			CreditBalance: balance,
			Resolutions:   []string{models.Resolution1K, models.Resolution2K, models.Resolution4K},
			Features:      models.AllGenTypes,
			IsActive:      true,
		},
	}}
	f := &fixture{
		pool:    &fakePool{},
		users:   users,
		ledger:  &memLedger{},
		usage:   &memUsage{},
		history: &memHistory{},
		model:   &stubModel{},
		userID:  userID,
	}
	f.svc = NewService(f.pool, f.users, f.ledger, f.usage, f.history, f.model, nil,
		slog.New(slog.DiscardHandler))
	return f
}

func validRequest(genType, resolution string) models.GenerationRequest {
	return models.GenerationRequest{
		Model: "gemini-2.5-flash-image",
		Type:  genType,
		Contents: models.Contents{Parts: []models.Part{
			{InlineData: &models.InlineData{MimeType: "image/jpeg", Data: "c2tldGNo"}},
			{Text: "an oversized wool coat"},
		}},
		Config: models.GenerationConfig{
			Count:       1,
			Resolution:  resolution,
			AspectRatio: "3:4",
		},
	}
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestGenerate_DebitsAndRecordsAtomically(t *testing.T) {
	f := newFixture(50)

	resp, err := f.svc.Generate(context.Background(), f.userID, models.ActionGeneration,
		validRequest(models.GenTypeConcept, models.Resolution1K))
	if err != nil {
		t.Fatal(err)
	}
	if resp.NewBalance != 46 {
		t.Errorf("new balance = %d, want 46", resp.NewBalance)
	}
	if resp.Data == "" {
		t.Error("response is missing the image")
	}

	if len(f.ledger.entries) != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", len(f.ledger.entries))
	}
	entry := f.ledger.entries[0]
	if entry.Amount != -4 || entry.BalanceAfter != 46 {
		t.Errorf("ledger entry amount=%d balance_after=%d, want -4/46", entry.Amount, entry.BalanceAfter)
	}
	if entry.EntryType != models.CreditEntryGenerationDebit {
		t.Errorf("entry type = %q", entry.EntryType)
	}

	if len(f.usage.entries) != 1 {
		t.Fatalf("expected 1 usage record, got %d", len(f.usage.entries))
	}
	if f.usage.entries[0].Cost != 4 || f.usage.entries[0].TotalTokens != 1390 {
		t.Errorf("usage cost=%d tokens=%d", f.usage.entries[0].Cost, f.usage.entries[0].TotalTokens)
	}

	if len(f.history.records) != 1 {
		t.Fatalf("expected 1 history record, got %d", len(f.history.records))
	}
	if entry.GenerationID == nil || *entry.GenerationID != f.history.records[0].ID {
		t.Error("ledger entry is not correlated with the history record")
	}

	if len(f.pool.txs) != 1 || !f.pool.txs[0].committed {
		t.Error("debit transaction was not committed")
	}
}

func TestGenerate_SequentialBatchSpendsExactly(t *testing.T) {
	f := newFixture(50)
	req := validRequest(models.GenTypeConcept, models.Resolution1K)

	var last int
	for i := 0; i < 3; i++ {
		resp, err := f.svc.Generate(context.Background(), f.userID, models.ActionGeneration, req)
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
		last = resp.NewBalance
	}
	if last != 38 {
		t.Errorf("balance after 3x1K concept = %d, want 38", last)
	}
	wantAfter := []int{46, 42, 38}
	for i, e := range f.ledger.entries {
		if e.Amount != -4 || e.BalanceAfter != wantAfter[i] {
			t.Errorf("entry %d: amount=%d after=%d, want -4/%d", i, e.Amount, e.BalanceAfter, wantAfter[i])
		}
	}
}

func TestGenerate_InsufficientCreditsSkipsModelCall(t *testing.T) {
	f := newFixture(3)

	_, err := f.svc.Generate(context.Background(), f.userID, models.ActionGeneration,
		validRequest(models.GenTypeSketch, models.Resolution1K))
	if !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	if f.model.callCount() != 0 {
		t.Error("model must not be called when the balance cannot cover the price")
	}
	if len(f.ledger.entries) != 0 {
		t.Error("rejected request must not create a ledger entry")
	}
}

func TestGenerate_DebitRaceAfterModelSuccess(t *testing.T) {
	f := newFixture(8)
	// A concurrent session empties the balance while the model call is in
	// flight. The conditional debit then fails and the image is discarded.
	f.model.onCall = func() { f.users.setBalance(f.userID, 0) }

	_, err := f.svc.Generate(context.Background(), f.userID, models.ActionGeneration,
		validRequest(models.GenTypeTryOn, models.Resolution1K))
	if !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	if f.model.callCount() != 1 {
		t.Error("model should have been called before the debit race")
	}
	if len(f.ledger.entries) != 0 || len(f.history.records) != 0 {
		t.Error("lost debit race must leave no ledger or history rows")
	}
	if len(f.pool.txs) != 1 || !f.pool.txs[0].rolledBack {
		t.Error("debit transaction was not rolled back")
	}
}

func TestGenerate_ModelFailureNeverDebits(t *testing.T) {
	f := newFixture(50)
	f.model.err = genai.ErrModel

	_, err := f.svc.Generate(context.Background(), f.userID, models.ActionGeneration,
		validRequest(models.GenTypeConcept, models.Resolution2K))
	if !errors.Is(err, genai.ErrModel) {
		t.Fatalf("expected ErrModel, got %v", err)
	}
	if len(f.ledger.entries) != 0 || len(f.usage.entries) != 0 {
		t.Error("failed model call must not debit or record usage")
	}
	u, _ := f.users.GetByID(context.Background(), f.userID)
	if u.CreditBalance != 50 {
		t.Errorf("balance changed to %d on model failure", u.CreditBalance)
	}
}

func TestGenerate_EntitlementAndStateChecks(t *testing.T) {
	t.Run("resolution not entitled", func(t *testing.T) {
		f := newFixture(50)
		f.users.users[f.userID].Resolutions = []string{models.Resolution1K}
		_, err := f.svc.Generate(context.Background(), f.userID, models.ActionGeneration,
			validRequest(models.GenTypeConcept, models.Resolution4K))
		if !errors.Is(err, ErrNotEntitled) {
			t.Errorf("expected ErrNotEntitled, got %v", err)
		}
	})
	t.Run("feature not entitled", func(t *testing.T) {
		f := newFixture(50)
		f.users.users[f.userID].Features = []string{models.GenTypeSketch}
		_, err := f.svc.Generate(context.Background(), f.userID, models.ActionGeneration,
			validRequest(models.GenTypeTryOn, models.Resolution1K))
		if !errors.Is(err, ErrNotEntitled) {
			t.Errorf("expected ErrNotEntitled, got %v", err)
		}
	})
	t.Run("deactivated user", func(t *testing.T) {
		f := newFixture(50)
		f.users.users[f.userID].IsActive = false
		_, err := f.svc.Generate(context.Background(), f.userID, models.ActionGeneration,
			validRequest(models.GenTypeConcept, models.Resolution1K))
		if !errors.Is(err, ErrUserInactive) {
			t.Errorf("expected ErrUserInactive, got %v", err)
		}
	})
}

func TestGenerate_RequestValidation(t *testing.T) {
	f := newFixture(50)

	cases := map[string]func(*models.GenerationRequest){
		"count != 1":          func(r *models.GenerationRequest) { r.Config.Count = 4 },
		"missing model":       func(r *models.GenerationRequest) { r.Model = "" },
		"unknown type":        func(r *models.GenerationRequest) { r.Type = "poster" },
		"unknown resolution":  func(r *models.GenerationRequest) { r.Config.Resolution = "8K" },
		"unknown aspect":      func(r *models.GenerationRequest) { r.Config.AspectRatio = "2:1" },
		"no image part":       func(r *models.GenerationRequest) { r.Contents.Parts = []models.Part{{Text: "only text"}} },
	}
	for name, mutate := range cases {
		req := validRequest(models.GenTypeConcept, models.Resolution1K)
		mutate(&req)
		_, err := f.svc.Generate(context.Background(), f.userID, models.ActionGeneration, req)
		if !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("%s: expected ErrInvalidRequest, got %v", name, err)
		}
	}
	if f.model.callCount() != 0 {
		t.Error("invalid requests must never reach the model")
	}
}

func TestGenerate_RegenerationActionIsRecorded(t *testing.T) {
	f := newFixture(50)
	_, err := f.svc.Generate(context.Background(), f.userID, models.ActionRegeneration,
		validRequest(models.GenTypeLookbook, models.Resolution2K))
	if err != nil {
		t.Fatal(err)
	}
	if f.usage.entries[0].Action != models.ActionRegeneration {
		t.Errorf("usage action = %q, want regeneration", f.usage.entries[0].Action)
	}
	// Regeneration is priced like a fresh generation.
	if f.ledger.entries[0].Amount != -5 {
		t.Errorf("regeneration debit = %d, want -5", f.ledger.entries[0].Amount)
	}
}

func TestGenerate_RetentionEnqueuedInTransaction(t *testing.T) {
	f := newFixture(50)
	enqueued := 0
	f.svc.EnqueueRetention = func(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
		if tx == nil {
			t.Error("retention must be enqueued within the debit transaction")
		}
		enqueued++
		return nil
	}
	if _, err := f.svc.Generate(context.Background(), f.userID, models.ActionGeneration,
		validRequest(models.GenTypeConcept, models.Resolution1K)); err != nil {
		t.Fatal(err)
	}
	if enqueued != 1 {
		t.Errorf("retention enqueued %d times, want 1", enqueued)
	}
}
