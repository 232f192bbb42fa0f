package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Router metrics
	TenantHandlesOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stockroom_tenant_handles_open",
			Help: "Number of cached tenant database handles",
		},
	)

	TenantHandleOpens = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockroom_tenant_handle_opens_total",
			Help: "Tenant handle open attempts by result",
		},
		[]string{"result"},
	)

	TenantHandleEvictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockroom_tenant_handle_evictions_total",
			Help: "Tenant handles closed by reason (idle, capacity, explicit, shutdown)",
		},
		[]string{"reason"},
	)

	TenantHandleOpenDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stockroom_tenant_handle_open_duration_seconds",
			Help:    "Time taken to open a tenant handle, retries included",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Index metrics
	IndexSyncs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockroom_index_syncs_total",
			Help: "Global index sync calls by outcome",
		},
		[]string{"outcome"},
	)

	IndexSyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stockroom_index_sync_duration_seconds",
			Help:    "Global index sync duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	IndexEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "stockroom_index_entries",
			Help: "Number of entries in products_index at last collection",
		},
	)

	WarehouseMigrations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stockroom_warehouse_migrated_entries_total",
			Help: "Index entries rewritten by warehouse migrations",
		},
	)

	// Shipment metrics
	ShipmentTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockroom_shipment_transitions_total",
			Help: "Shipment status transitions by target status and result",
		},
		[]string{"to", "result"},
	)

	CascadeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockroom_cascade_failures_total",
			Help: "Per-product cascade steps that failed after a transition",
		},
		[]string{"to"},
	)

	// Event metrics
	EventsHandled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockroom_events_handled_total",
			Help: "Inbound events by kind and result",
		},
		[]string{"kind", "result"},
	)

	EventsDeduplicated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stockroom_events_deduplicated_total",
			Help: "Product events dropped inside the deduplication window",
		},
	)

	// Reconciler metrics
	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "stockroom_reconciliation_duration_seconds",
			Help:    "Time taken for one reconciliation cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stockroom_reconciliation_cycles_total",
			Help: "Total number of reconciliation cycles",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stockroom_api_requests_total",
			Help: "Total number of API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stockroom_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func init() {
	prometheus.MustRegister(TenantHandlesOpen)
	prometheus.MustRegister(TenantHandleOpens)
	prometheus.MustRegister(TenantHandleEvictions)
	prometheus.MustRegister(TenantHandleOpenDuration)
	prometheus.MustRegister(IndexSyncs)
	prometheus.MustRegister(IndexSyncDuration)
	prometheus.MustRegister(IndexEntries)
	prometheus.MustRegister(WarehouseMigrations)
	prometheus.MustRegister(ShipmentTransitions)
	prometheus.MustRegister(CascadeFailures)
	prometheus.MustRegister(EventsHandled)
	prometheus.MustRegister(EventsDeduplicated)
	prometheus.MustRegister(ReconciliationDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
