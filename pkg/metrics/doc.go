/*
Package metrics provides Prometheus metrics and component health for stockroom.

All collectors are package-level variables registered with the default
registry in init(), and exposed by Handler on /metrics.

# Metrics

Router:

	stockroom_tenant_handles_open                    gauge
	stockroom_tenant_handle_opens_total{result}      counter (success, failure)
	stockroom_tenant_handle_evictions_total{reason}  counter (idle, capacity, explicit, shutdown)
	stockroom_tenant_handle_open_duration_seconds    histogram, retries included

Index:

	stockroom_index_syncs_total{outcome}             counter (created, updated, unchanged, stale, removed)
	stockroom_index_sync_duration_seconds            histogram
	stockroom_index_entries                          gauge, sampled by Collector
	stockroom_warehouse_migrated_entries_total       counter

Shipments and events:

	stockroom_shipment_transitions_total{to,result}  counter (applied, rejected, error)
	stockroom_cascade_failures_total{to}             counter
	stockroom_events_handled_total{kind,result}      counter
	stockroom_events_deduplicated_total              counter

Reconciler and API:

	stockroom_reconciliation_duration_seconds        histogram
	stockroom_reconciliation_cycles_total            counter
	stockroom_api_requests_total{route,status}       counter
	stockroom_api_request_duration_seconds{route}    histogram

# Timing

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.IndexSyncDuration)

# Collector

Collector polls gauges that are cheaper to sample than to maintain on every
write: the number of cached tenant handles and the size of products_index.

# Health

The health registry records the last reported state of each component.
GetHealth reports unhealthy when any component is. GetReadiness reports
ready only when every critical component (global_store, router, api by
default) is registered and healthy. HealthHandler and ReadyHandler serve
them as JSON with 200 or 503.
*/
package metrics
