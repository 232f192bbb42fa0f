/*
Package storage provides the tenant and global document stores.

Two interfaces describe the data plane:

  - TenantStore: an open handle to one tenant database (products, members,
    offices, shipments)
  - GlobalStore: the shared database (global_products, products_index,
    warehouse_metrics, tenants, warehouses)

Handles are obtained from a Dialer by logical database name. Tenant databases
are named tenant_<name>; the shared database is named global.

# Backends

BoltDB (bbolt) is the embedded backend. Each logical database is its own file
under the data directory, so opening a tenant handle opens a file and closing
it releases the file lock:

	<dataDir>/
	  global.db           global_products, products_index, warehouse_metrics,
	                      tenants, warehouses
	  tenant_acme.db      products, members, shipments, offices
	  tenant_globex.db    ...

Values are JSON-encoded. products_index and global_products are keyed by
"<tenant>\x00<productID>", which makes (tenant, product) unique and turns a
tenant filter into a prefix scan.

MongoDB is the networked backend. One client is shared by every handle and
each logical database maps to a MongoDB database. products_index carries a
unique compound index on (tenantId, productId).

# Errors

Lookups of missing records return an error wrapping ErrNotFound; match it with
errors.Is.
*/
package storage
