package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_http_requests_total",
			Help: "Total number of HTTP requests to the ledger service",
		},
		[]string{"method", "endpoint", "status"},
	)

	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_http_request_duration_seconds",
			Help:    "Duration of ledger HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	StockAdjustments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_stock_adjustments_total",
			Help: "Stock movements appended to the ledger by move type",
		},
		[]string{"type"},
	)

	InsufficientStock = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_insufficient_stock_total",
			Help: "Stock decrements rejected because they would oversell",
		},
		[]string{"type"},
	)

	NegativeStock = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_negative_stock_total",
			Help: "Sale deductions that drove an item below zero",
		},
	)

	LockTimeouts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_lock_timeouts_total",
			Help: "Units of work aborted by lock or serialization contention",
		},
		[]string{"operation"},
	)

	SalesProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_sales_processed_total",
			Help: "Sales ingested by outcome (new, redelivered, pending)",
		},
		[]string{"outcome"},
	)

	RegisterCloses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_register_closes_total",
			Help: "Register close attempts by outcome",
		},
		[]string{"outcome"},
	)

	WalletTransfers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_wallet_transfers_total",
			Help: "Wallet transfers recorded by direction",
		},
		[]string{"from", "to"},
	)

	CacheRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_cache_requests_total",
			Help: "Read-through cache lookups by result (hit, miss, error)",
		},
		[]string{"result"},
	)

	CacheInvalidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_cache_invalidations_total",
			Help: "Cache invalidations by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequests,
		HTTPLatency,
		StockAdjustments,
		InsufficientStock,
		NegativeStock,
		LockTimeouts,
		SalesProcessed,
		RegisterCloses,
		WalletTransfers,
		CacheRequests,
		CacheInvalidations,
	)
}
