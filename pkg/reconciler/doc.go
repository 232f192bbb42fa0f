/*
Package reconciler replays tenant stores into the global index.

Index updates are driven by shipment transitions and product events, neither
of which is transactional with the tenant write. The reconciler is the
backstop: every interval (10 minutes by default) it resyncs each tenant listed
in the global tenants collection, then rewrites the warehouse_metrics
snapshots.

	┌──────────────── every Interval ────────────────┐
	│                                                 │
	│  ListTenants ─▶ for each: ResyncTenant          │
	│                    (failures logged, continue)  │
	│             ─▶ RefreshWarehouseMetrics          │
	└─────────────────────────────────────────────────┘

Reconcile can also be called directly, which is what "stockroom index resync"
does for all tenants.
*/
package reconciler
