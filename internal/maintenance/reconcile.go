package maintenance

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/riverqueue/river"

	"github.com/couturelab/backend/internal/repository"
)

type ReconcileJobArgs struct{}

func (ReconcileJobArgs) Kind() string { return "ledger_reconcile" }

// DriftFinder is the contract the reconcile worker needs.
type DriftFinder interface {
	FindDrift(ctx context.Context) ([]repository.Drift, error)
}

// ReconcileWorker audits every user's stored balance against the sum of
// their ledger entries. Debits and their ledger rows commit in one
// transaction, so any drift means a bug or manual database surgery;
// the worker only reports, it never repairs.
type ReconcileWorker struct {
	river.WorkerDefaults[ReconcileJobArgs]
	credits DriftFinder
	log     *slog.Logger
}

func NewReconcileWorker(credits DriftFinder, log *slog.Logger) *ReconcileWorker {
	if log == nil {
		log = slog.Default()
	}
	return &ReconcileWorker{credits: credits, log: log}
}

func (w *ReconcileWorker) Work(ctx context.Context, job *river.Job[ReconcileJobArgs]) error {
	drifts, err := w.credits.FindDrift(ctx)
	if err != nil {
		return fmt.Errorf("find ledger drift: %w", err)
	}
	for _, d := range drifts {
		w.log.Error("ledger drift detected",
			"user_id", d.UserID,
			"credit_balance", d.CreditBalance,
			"ledger_sum", d.LedgerSum,
			"delta", d.CreditBalance-d.LedgerSum)
	}
	if len(drifts) == 0 {
		w.log.Info("ledger reconcile clean")
	}
	return nil
}
