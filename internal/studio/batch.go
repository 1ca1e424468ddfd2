package studio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/couturelab/backend/internal/models"
	"github.com/couturelab/backend/internal/pricing"
)

// ErrAllGenerationsFailed is the terminal batch error: not one of the
// requested images was produced. Nothing was charged for failed calls.
var ErrAllGenerationsFailed = errors.New("all generation attempts failed")

// defaultConcurrency bounds in-flight generation calls. The external
// API rate-limits aggressively; an unthrottled worker-per-image fan-out
// trips it on large batches.
const defaultConcurrency = 3

// Generator is the single-call dependency of the executor; *Client
// satisfies it.
type Generator interface {
	Generate(ctx context.Context, req models.GenerationRequest, regen bool) (*models.GenerationResponse, error)
}

// GeneratedImage is one successful slot of a batch. Index is the slot
// position from the original request, stable across regeneration.
type GeneratedImage struct {
	Index int
	Data  string
	Usage models.Usage
}

// BatchResult aggregates a batch: only surviving images, usage summed
// over successes, and the authoritative balance from the last success.
type BatchResult struct {
	Images     []GeneratedImage
	Usage      models.Usage
	Succeeded  int
	Failed     int
	Total      int
	NewBalance int
	// Partial is the degraded-success signal: some, but not all,
	// requested images survived.
	Partial bool
}

// Executor issues N logically independent generation calls with bounded
// concurrency. Each call's failure is isolated: siblings are never
// cancelled, and the batch succeeds if at least one call does.
type Executor struct {
	Gen           Generator
	Balance       *BalanceCache
	MaxConcurrent int
	Logger        *slog.Logger
}

func NewExecutor(gen Generator, balance *BalanceCache, logger *slog.Logger) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{Gen: gen, Balance: balance, MaxConcurrent: defaultConcurrency, Logger: logger}
}

// Run executes a batch of count images from the single-image request
// template. The resolution tier is clamped to the user's entitlements
// before anything is sent, and the whole batch is rejected up front when
// the cached balance cannot cover count images — zero calls are issued
// in that case. The server re-validates both per call.
func (e *Executor) Run(ctx context.Context, user *models.User, req models.GenerationRequest, count int) (*BatchResult, error) {
	if count <= 0 {
		return nil, fmt.Errorf("count must be > 0")
	}
	if user != nil && !user.AllowsResolution(req.Config.Resolution) {
		corrected := user.BestAllowedResolution()
		e.Logger.Warn("resolution not in plan, auto-correcting",
			"requested", req.Config.Resolution, "corrected", corrected)
		req.Config.Resolution = corrected
	}

	total, err := pricing.BatchCost(req.Type, req.Config.Resolution, count)
	if err != nil {
		return nil, err
	}
	if balance, ok := e.cachedBalance(user); ok && balance < total {
		return nil, fmt.Errorf("%w: batch needs %d credits, have %d",
			ErrInsufficientCredits, total, balance)
	}

	maxConc := e.MaxConcurrent
	if maxConc <= 0 {
		maxConc = defaultConcurrency
	}

	images := make([]*GeneratedImage, count)
	errs := make([]error, count)
	var (
		wg          sync.WaitGroup
		mu          sync.Mutex
		lastBalance int
		haveBalance bool
	)
	sem := make(chan struct{}, maxConc)

	for i := 0; i < count; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				mu.Lock()
				errs[idx] = ctx.Err()
				mu.Unlock()
				return
			}

			resp, err := e.Gen.Generate(ctx, req, false)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				// Isolated failure: record and let siblings run.
				errs[idx] = err
				return
			}
			images[idx] = &GeneratedImage{Index: idx, Data: resp.Data, Usage: resp.Usage}
			lastBalance = resp.NewBalance
			haveBalance = true
		}(i)
	}
	wg.Wait()

	result := &BatchResult{Total: count}
	for idx, img := range images {
		if img == nil {
			result.Failed++
			e.Logger.Warn("batch slot failed", "index", idx, "error", errs[idx])
			continue
		}
		result.Images = append(result.Images, *img)
		result.Usage = result.Usage.Add(img.Usage)
		result.Succeeded++
	}

	if result.Succeeded == 0 {
		return nil, fmt.Errorf("%w: %d attempts", ErrAllGenerationsFailed, count)
	}
	if haveBalance {
		result.NewBalance = lastBalance
	}
	result.Partial = result.Failed > 0
	if result.Partial {
		e.Logger.Warn("batch degraded",
			"succeeded", result.Succeeded, "failed", result.Failed, "total", result.Total)
	}

	if e.Balance != nil {
		e.Balance.ApplyBatch(result)
	}
	return result, nil
}

// RegenerateSlot re-runs exactly one slot of a prior batch. Only that
// slot's image and cost are affected; sibling slots are untouched and
// not recharged. The prior result is updated in place.
func (e *Executor) RegenerateSlot(ctx context.Context, prior *BatchResult, req models.GenerationRequest, index int) (*GeneratedImage, error) {
	if prior == nil {
		return nil, fmt.Errorf("no prior batch result")
	}
	if index < 0 || index >= prior.Total {
		return nil, fmt.Errorf("slot index %d out of range [0,%d)", index, prior.Total)
	}

	resp, err := e.Gen.Generate(ctx, req, true)
	if err != nil {
		return nil, err
	}

	img := GeneratedImage{Index: index, Data: resp.Data, Usage: resp.Usage}
	replaced := false
	for i := range prior.Images {
		if prior.Images[i].Index == index {
			prior.Images[i] = img
			replaced = true
			break
		}
	}
	if !replaced {
		// The slot had failed originally; it now counts as a success.
		prior.Images = append(prior.Images, img)
		prior.Succeeded++
		prior.Failed--
		prior.Partial = prior.Failed > 0
	}
	prior.Usage = prior.Usage.Add(resp.Usage)
	prior.NewBalance = resp.NewBalance

	if e.Balance != nil {
		e.Balance.Set(resp.NewBalance)
	}
	return &img, nil
}

func (e *Executor) cachedBalance(user *models.User) (int, bool) {
	if e.Balance != nil {
		if b, ok := e.Balance.Balance(); ok {
			return b, true
		}
	}
	if user != nil {
		return user.CreditBalance, true
	}
	return 0, false
}
