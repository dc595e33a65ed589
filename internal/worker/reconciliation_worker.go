package worker

import (
	"context"
	"time"

	"github.com/ayo6706/logistics-wallet/internal/models"
	"github.com/ayo6706/logistics-wallet/internal/observability"
	"go.uber.org/zap"
)

const reconciliationWorkerName = "reconciliation"

// LedgerChecker reports wallets whose balance diverged from their transactions.
type LedgerChecker interface {
	Run(ctx context.Context) ([]models.LedgerDiscrepancy, error)
}

// ReconciliationWorker compares every wallet balance against its transaction history,
// once at startup and then on each interval. It only reports; balances are never
// rewritten from here.
type ReconciliationWorker struct {
	*loop
	checker LedgerChecker
}

// NewReconciliationWorker constructs a worker with a default daily interval.
func NewReconciliationWorker(checker LedgerChecker) *ReconciliationWorker {
	return &ReconciliationWorker{
		loop:    newLoop(reconciliationWorkerName, 24*time.Hour, true),
		checker: checker,
	}
}

func (w *ReconciliationWorker) WithInterval(interval time.Duration) *ReconciliationWorker {
	w.setInterval(interval)
	return w
}

func (w *ReconciliationWorker) Start(ctx context.Context) {
	w.run(ctx, w.runOnce)
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *ReconciliationWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *ReconciliationWorker) runOnce(ctx context.Context) {
	discrepancies, err := w.checker.Run(ctx)
	if err != nil {
		observability.IncrementWorkerRun(reconciliationWorkerName, "failed")
		zap.L().Error("reconciliation run failed", zap.Error(err))
		return
	}
	if len(discrepancies) == 0 {
		observability.IncrementWorkerRun(reconciliationWorkerName, "success")
		return
	}
	observability.IncrementWorkerRun(reconciliationWorkerName, "imbalanced")
	zap.L().Warn("ledger reconciliation found drifted wallets", zap.Int("count", len(discrepancies)))
}
