package maintenance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

// HistoryKeep is how many generation records each user retains. Older
// records are pruned by the retention worker after every generation.
const HistoryKeep = 200

type RetentionJobArgs struct {
	UserID uuid.UUID `json:"user_id"`
}

func (RetentionJobArgs) Kind() string { return "history_retention" }

// HistoryPruner is the contract the retention worker needs.
type HistoryPruner interface {
	PruneOld(ctx context.Context, userID uuid.UUID, keep int) (int64, error)
}

type RetentionWorker struct {
	river.WorkerDefaults[RetentionJobArgs]
	history HistoryPruner
	log     *slog.Logger
}

func NewRetentionWorker(history HistoryPruner, log *slog.Logger) *RetentionWorker {
	if log == nil {
		log = slog.Default()
	}
	return &RetentionWorker{history: history, log: log}
}

func (w *RetentionWorker) Work(ctx context.Context, job *river.Job[RetentionJobArgs]) error {
	removed, err := w.history.PruneOld(ctx, job.Args.UserID, HistoryKeep)
	if err != nil {
		return fmt.Errorf("prune history for %s: %w", job.Args.UserID, err)
	}
	if removed > 0 {
		w.log.Info("pruned generation history", "user_id", job.Args.UserID, "removed", removed)
	}
	return nil
}
