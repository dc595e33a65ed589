package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	httpDurationHistogram  *prometheus.HistogramVec
	ledgerImbalanceCounter *prometheus.CounterVec
	idempotencyCounter     *prometheus.CounterVec
	partnerCallHistogram   *prometheus.HistogramVec
	ledgerOperationCounter *prometheus.CounterVec
	webhookCounter         *prometheus.CounterVec
	pendingPayoutsGauge    prometheus.Gauge
	payoutResolveCounter   *prometheus.CounterVec
	eventPublishCounter    *prometheus.CounterVec
	workerRunCounter       *prometheus.CounterVec
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		ledgerImbalanceCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_imbalance_total",
			Help: "Number of wallets whose balance diverged from their successful transactions",
		}, []string{"currency"})

		idempotencyCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "idempotency_events_total",
			Help: "Idempotency middleware outcomes",
		}, []string{"outcome"})

		partnerCallHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "partner_call_duration_seconds",
			Help:    "Banking partner call latency by operation and result",
			Buckets: prometheus.DefBuckets,
		}, []string{"op", "result"})

		ledgerOperationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Wallet ledger operations by kind and result",
		}, []string{"operation", "result"})

		webhookCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Partner webhook outcomes",
		}, []string{"event", "outcome"})

		pendingPayoutsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "payout_pending_size",
			Help: "Payouts with an unknown partner outcome awaiting reconciliation",
		})

		payoutResolveCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payout_reconciliations_total",
			Help: "Pending payout resolutions",
		}, []string{"result"})

		eventPublishCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "event_publish_total",
			Help: "Domain event publish outcomes",
		}, []string{"event", "result"})

		workerRunCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_runs_total",
			Help: "Background worker run outcomes",
		}, []string{"worker", "result"})

		prometheus.MustRegister(
			httpDurationHistogram,
			ledgerImbalanceCounter,
			idempotencyCounter,
			partnerCallHistogram,
			ledgerOperationCounter,
			webhookCounter,
			pendingPayoutsGauge,
			payoutResolveCounter,
			eventPublishCounter,
			workerRunCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func IncrementLedgerImbalance(currency string) {
	if ledgerImbalanceCounter == nil {
		return
	}
	ledgerImbalanceCounter.WithLabelValues(currency).Inc()
}

func IncrementIdempotencyEvent(outcome string) {
	if idempotencyCounter == nil {
		return
	}
	idempotencyCounter.WithLabelValues(outcome).Inc()
}

// ObservePartnerCall records one banking partner round trip. result is
// success, failed or unknown.
func ObservePartnerCall(op, result string, duration time.Duration) {
	if partnerCallHistogram == nil {
		return
	}
	partnerCallHistogram.WithLabelValues(op, result).Observe(duration.Seconds())
}

func IncrementLedgerOperation(operation, result string) {
	if ledgerOperationCounter == nil {
		return
	}
	ledgerOperationCounter.WithLabelValues(operation, result).Inc()
}

func IncrementWebhookEvent(event, outcome string) {
	if webhookCounter == nil {
		return
	}
	webhookCounter.WithLabelValues(event, outcome).Inc()
}

func SetPendingPayouts(size int) {
	if pendingPayoutsGauge == nil {
		return
	}
	pendingPayoutsGauge.Set(float64(size))
}

func IncrementPayoutResolution(result string) {
	if payoutResolveCounter == nil {
		return
	}
	payoutResolveCounter.WithLabelValues(result).Inc()
}

func IncrementEventPublish(event, result string) {
	if eventPublishCounter == nil {
		return
	}
	eventPublishCounter.WithLabelValues(event, result).Inc()
}

func IncrementWorkerRun(worker, result string) {
	if workerRunCounter == nil {
		return
	}
	workerRunCounter.WithLabelValues(worker, result).Inc()
}
