package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/ayo6706/logistics-wallet/internal/observability"
	"go.uber.org/zap"
)

const payoutWorkerName = "payout_reconciliation"

// PendingPayoutResolver settles or releases payouts whose partner outcome was unknown.
type PendingPayoutResolver interface {
	ReconcilePending(ctx context.Context, minAge time.Duration, limit int32) (int, error)
}

// PayoutWorker polls the partner for payouts left pending after a timeout or
// transport failure. Each pending row is resolved with a conditional status update,
// so concurrent instances cannot settle the same payout twice.
type PayoutWorker struct {
	*loop
	resolver  PendingPayoutResolver
	batchSize int32
	minAge    time.Duration
}

func NewPayoutWorker(resolver PendingPayoutResolver) *PayoutWorker {
	return &PayoutWorker{
		loop:      newLoop(payoutWorkerName, time.Minute, false),
		resolver:  resolver,
		batchSize: 20,
		minAge:    2 * time.Minute,
	}
}

func (w *PayoutWorker) WithPollInterval(interval time.Duration) *PayoutWorker {
	w.setInterval(interval)
	return w
}

func (w *PayoutWorker) WithBatchSize(size int32) *PayoutWorker {
	if size > 0 {
		w.batchSize = size
	}
	return w
}

// WithMinAge skips payouts younger than age, leaving in-flight partner calls alone.
func (w *PayoutWorker) WithMinAge(age time.Duration) *PayoutWorker {
	if age >= 0 {
		w.minAge = age
	}
	return w
}

// Start blocks until Stop is called or the context is canceled.
func (w *PayoutWorker) Start(ctx context.Context) {
	w.run(ctx, w.processBatch)
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *PayoutWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

// ProcessOnce reconciles a single batch immediately.
func (w *PayoutWorker) ProcessOnce(ctx context.Context) (int, error) {
	return w.resolver.ReconcilePending(ctx, w.minAge, w.batchSize)
}

func (w *PayoutWorker) processBatch(ctx context.Context) {
	resolved, err := w.ProcessOnce(ctx)
	if err != nil {
		observability.IncrementWorkerRun(payoutWorkerName, "failed")
		zap.L().Error("payout reconciliation batch failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun(payoutWorkerName, "success")
	if resolved > 0 {
		zap.L().Info("pending payouts resolved", zap.Int("count", resolved))
	}
}

func (w *PayoutWorker) String() string {
	return fmt.Sprintf("PayoutWorker(interval=%v, batch=%d, min_age=%v)", w.interval, w.batchSize, w.minAge)
}
