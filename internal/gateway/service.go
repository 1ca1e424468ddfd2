// Package gateway implements the server side of the generation
// pipeline: pricing, entitlement enforcement, the external model call,
// and the atomic debit + ledger + persistence transaction.
package gateway

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/couturelab/backend/internal/genai"
	"github.com/couturelab/backend/internal/models"
	"github.com/couturelab/backend/internal/pricing"
)

var (
	ErrInsufficientCredits = errors.New("insufficient credits")
	ErrNotEntitled         = errors.New("not entitled")
	ErrUserInactive        = errors.New("user is deactivated")
	ErrInvalidRequest      = errors.New("invalid generation request")
)

// TxBeginner abstracts transaction creation so tests don't need a
// pgxpool.Pool.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// UserStore is the minimal user repository interface for the gateway.
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	DeductCredits(ctx context.Context, tx pgx.Tx, id uuid.UUID, amount int) (int, error)
}

// LedgerStore appends credit ledger entries.
type LedgerStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, c *models.CreditLedger) error
}

// UsageStore appends usage records.
type UsageStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, u *models.UsageLog) error
}

// HistoryStore persists generated images.
type HistoryStore interface {
	CreateTx(ctx context.Context, tx pgx.Tx, h *models.HistoryRecord) error
}

// ModelClient calls the external image model.
type ModelClient interface {
	GenerateImage(ctx context.Context, req models.GenerationRequest) (*genai.Result, error)
}

// EnqueueRetentionTxFunc enqueues a history-pruning job within the given
// transaction. Provided by main using river.Client.InsertTx.
type EnqueueRetentionTxFunc func(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error

type Service struct {
	Pool             TxBeginner
	Users            UserStore
	Ledger           LedgerStore
	Usage            UsageStore
	History          HistoryStore
	Model            ModelClient
	EnqueueRetention EnqueueRetentionTxFunc
	Logger           *slog.Logger
}

func NewService(pool TxBeginner, users UserStore, ledger LedgerStore, usage UsageStore,
	history HistoryStore, model ModelClient, enqueue EnqueueRetentionTxFunc, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		Pool: pool, Users: users, Ledger: ledger, Usage: usage,
		History: history, Model: model, EnqueueRetention: enqueue, Logger: logger,
	}
}

// Generate runs one paid generation call for the given user.
// Pricing -> entitlement -> pre-flight balance check (no model call when
// insufficient) -> model call -> one transaction holding the conditional
// debit, the negative ledger entry, the usage record and the history row.
// action is ActionGeneration or ActionRegeneration.
func (s *Service) Generate(ctx context.Context, userID uuid.UUID, action string, req models.GenerationRequest) (*models.GenerationResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if action == "" {
		action = models.ActionGeneration
	}

	price, err := pricing.Cost(req.Type, req.Config.Resolution)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	user, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}
	if !user.AllowsResolution(req.Config.Resolution) {
		return nil, fmt.Errorf("%w: resolution %s", ErrNotEntitled, req.Config.Resolution)
	}
	if !user.AllowsFeature(req.Type) {
		return nil, fmt.Errorf("%w: feature %s", ErrNotEntitled, req.Type)
	}

	// Pre-flight affordability check: an unaffordable request is
	// rejected before the external model is invoked, so no cost is
	// incurred upstream. The conditional debit below is the
	// authoritative check.
	if user.CreditBalance < price {
		return nil, ErrInsufficientCredits
	}

	result, err := s.Model.GenerateImage(ctx, req)
	if err != nil {
		// Model failures never debit.
		return nil, err
	}

	blob, err := base64.StdEncoding.DecodeString(result.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: image payload is not valid base64", genai.ErrModel)
	}

	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin debit tx: %w", err)
	}
	defer tx.Rollback(ctx)

	newBalance, err := s.Users.DeductCredits(ctx, tx, userID, price)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Another session spent the balance between the pre-flight
			// check and this debit. The generated image is discarded
			// rather than handed out unpaid.
			s.Logger.Warn("debit lost race after model success",
				"user_id", userID, "price", price)
			return nil, ErrInsufficientCredits
		}
		return nil, fmt.Errorf("deduct credits: %w", err)
	}

	genID := uuid.New()
	if err := s.Ledger.CreateTx(ctx, tx, &models.CreditLedger{
		ID:           uuid.New(),
		UserID:       userID,
		GenerationID: &genID,
		EntryType:    models.CreditEntryGenerationDebit,
		Amount:       -price,
		BalanceAfter: newBalance,
		Cause:        fmt.Sprintf("%s %s %s", action, req.Type, req.Config.Resolution),
	}); err != nil {
		return nil, fmt.Errorf("append ledger entry: %w", err)
	}

	if err := s.Usage.CreateTx(ctx, tx, &models.UsageLog{
		ID:             uuid.New(),
		UserID:         userID,
		Action:         action,
		GenType:        req.Type,
		Resolution:     req.Config.Resolution,
		PromptTokens:   result.Usage.PromptTokens,
		ResponseTokens: result.Usage.ResponseTokens,
		TotalTokens:    result.Usage.TotalTokens,
		ImageCount:     1,
		Cost:           price,
	}); err != nil {
		return nil, fmt.Errorf("append usage record: %w", err)
	}

	if err := s.History.CreateTx(ctx, tx, &models.HistoryRecord{
		ID:     genID,
		UserID: userID,
		Blob:   blob,
		Type:   req.Type,
		Prompt: promptText(req),
		Metadata: models.HistoryMetadata{
			Resolution:  req.Config.Resolution,
			AspectRatio: req.Config.AspectRatio,
		},
	}); err != nil {
		return nil, fmt.Errorf("persist history: %w", err)
	}

	if s.EnqueueRetention != nil {
		if err := s.EnqueueRetention(ctx, tx, userID); err != nil {
			return nil, fmt.Errorf("enqueue retention: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit debit tx: %w", err)
	}

	s.Logger.Info("generation debited",
		"user_id", userID, "generation_id", genID, "type", req.Type,
		"resolution", req.Config.Resolution, "cost", price, "new_balance", newBalance)

	return &models.GenerationResponse{
		Data:       result.Data,
		Usage:      result.Usage,
		NewBalance: newBalance,
	}, nil
}

func validateRequest(req models.GenerationRequest) error {
	if req.Model == "" {
		return fmt.Errorf("%w: model is required", ErrInvalidRequest)
	}
	if req.Config.Count != 1 {
		return fmt.Errorf("%w: count is fixed at 1 per call", ErrInvalidRequest)
	}
	if !models.IsGenType(req.Type) {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidRequest, req.Type)
	}
	if !models.IsResolution(req.Config.Resolution) {
		return fmt.Errorf("%w: unknown resolution %q", ErrInvalidRequest, req.Config.Resolution)
	}
	if !models.IsAspectRatio(req.Config.AspectRatio) {
		return fmt.Errorf("%w: unknown aspect ratio %q", ErrInvalidRequest, req.Config.AspectRatio)
	}
	hasImage := false
	for _, p := range req.Contents.Parts {
		if p.InlineData != nil && p.InlineData.Data != "" {
			hasImage = true
			break
		}
	}
	if !hasImage {
		return fmt.Errorf("%w: at least one image part is required", ErrInvalidRequest)
	}
	return nil
}

// promptText flattens the request's text parts for the history record.
func promptText(req models.GenerationRequest) string {
	out := ""
	for _, p := range req.Contents.Parts {
		if p.Text != "" {
			if out != "" {
				out += "\n"
			}
			out += p.Text
		}
	}
	return out
}
