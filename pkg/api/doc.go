/*
Package api implements the stockroom HTTP API.

The API is a thin chi router over the shipment state machine, the global
index and the event bus. Handlers decode JSON, call one domain operation and
map its error to a status code; they hold no state of their own.

# Routes

	POST /shipments/status            shipment.Machine.UpdateStatus
	GET  /warehouses/{id}/metrics     index.GetWarehouseMetrics
	GET  /countries/{code}/metrics    index.GetCountryMetrics
	POST /warehouses/migrate          index.MigrateWarehouse
	POST /events                      events.Bus.Publish (202 Accepted)
	GET  /health                      last known component state
	GET  /ready                       runs readiness probes
	GET  /metrics                     Prometheus exposition

# Error Mapping

	shipment.ErrUnknownStatus, malformed body     400
	shipment.NotFoundError, storage.ErrNotFound   404
	shipment.TransitionError                      409
	router.ConnectionUnavailableError             503
	router.ErrRouterClosed, events.ErrBusStopped  503
	anything else                                 500 ("internal error")

Error bodies are {"error": "...", "requestId": "..."}. Only 5xx responses
are logged; the request id ties the log line to the response.

# Middleware

Every request gets a chi request id, panic recovery, a zerolog logger
carried in the request context, and Prometheus instrumentation labelled by
route pattern (stockroom_api_requests_total, stockroom_api_request_duration_seconds).
*/
package api
