/*
Package events carries address and product change notifications to their
handlers.

The Bus keeps one buffered channel per Kind with a dispatcher goroutine each:

	Publish(member.address.updated)  ─▶ [queue] ─▶ dispatcher ─▶ handlers
	Publish(office.address.updated)  ─▶ [queue] ─▶ dispatcher ─▶ handlers
	Publish(tenant.address.updated)  ─▶ [queue] ─▶ dispatcher ─▶ handlers
	Publish(product.address.updated) ─▶ [queue] ─▶ dispatcher ─▶ handlers

Delivery is at most once. Handler errors are logged and counted; events
queued at Stop are dropped. The reconciler's periodic tenant resync replays
whatever a lost product event would have changed.

Deduper is a bounded-time cache keyed by (productId, time bucket) used to drop
the bursts of identical product events emitted by a single save.
*/
package events
