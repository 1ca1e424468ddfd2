package maintenance

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/riverqueue/river"

	"github.com/couturelab/backend/internal/repository"
)

type stubPruner struct {
	userID  uuid.UUID
	keep    int
	removed int64
	err     error
}

func (s *stubPruner) PruneOld(_ context.Context, userID uuid.UUID, keep int) (int64, error) {
	s.userID = userID
	s.keep = keep
	return s.removed, s.err
}

type stubDriftFinder struct {
	drifts []repository.Drift
	err    error
}

func (s *stubDriftFinder) FindDrift(_ context.Context) ([]repository.Drift, error) {
	return s.drifts, s.err
}

func TestRetentionWorker_PrunesWithConfiguredKeep(t *testing.T) {
	pruner := &stubPruner{removed: 7}
	w := NewRetentionWorker(pruner, slog.New(slog.DiscardHandler))

	userID := uuid.New()
	job := &river.Job[RetentionJobArgs]{Args: RetentionJobArgs{UserID: userID}}
	if err := w.Work(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	if pruner.userID != userID {
		t.Error("pruned the wrong user")
	}
	if pruner.keep != HistoryKeep {
		t.Errorf("keep = %d, want %d", pruner.keep, HistoryKeep)
	}
}

func TestRetentionWorker_PropagatesError(t *testing.T) {
	pruner := &stubPruner{err: errors.New("db down")}
	w := NewRetentionWorker(pruner, slog.New(slog.DiscardHandler))

	job := &river.Job[RetentionJobArgs]{Args: RetentionJobArgs{UserID: uuid.New()}}
	if err := w.Work(context.Background(), job); err == nil {
		t.Error("expected the error to propagate so River retries")
	}
}

func TestReconcileWorker_CleanAndDrifting(t *testing.T) {
	w := NewReconcileWorker(&stubDriftFinder{}, slog.New(slog.DiscardHandler))
	if err := w.Work(context.Background(), &river.Job[ReconcileJobArgs]{}); err != nil {
		t.Fatalf("clean audit should succeed: %v", err)
	}

	drifting := &stubDriftFinder{drifts: []repository.Drift{
		{UserID: uuid.New(), CreditBalance: 40, LedgerSum: 44},
	}}
	w = NewReconcileWorker(drifting, slog.New(slog.DiscardHandler))
	// Drift is reported, not repaired; the job itself still succeeds.
	if err := w.Work(context.Background(), &river.Job[ReconcileJobArgs]{}); err != nil {
		t.Fatalf("drift report should not fail the job: %v", err)
	}
}
