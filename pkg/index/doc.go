/*
Package index maintains the cross-tenant product index.

Every tenant product is mirrored twice in the global store: a compact
products_index entry keyed by (tenant, productId) used for placement metrics,
and a full global_products record. Both are written without cross-store
transactions, so the index is eventually consistent with the tenant stores:

  - SyncProduct and SyncFromProduct upsert after each product change
  - RemoveFromIndex drops a product that left its tenant
  - ResyncTenant rebuilds a tenant from scratch and removes orphans

Syncs of the same key are serialized by a striped lock. A sync whose source
timestamp is older than the stored entry is ignored, so out-of-order updates
cannot roll an entry back.

Warehouse and country metrics only count products whose location is
"FP warehouse" with warehouse status STORED.
*/
package index
