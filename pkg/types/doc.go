/*
Package types defines the records shared by every stockroom component.

All tenant databases use the same record definitions: the tenant name is a
routing parameter only, never a schema variation. Records carry both json tags
(bbolt backend) and bson tags (MongoDB backend).

# Tenant records

  - Product: an asset, held standalone or embedded in a Member
  - Member: a person in the tenant, with an address and embedded products
  - Office: a tenant office
  - Shipment: moves products between two Endpoints, carries Snapshots and
    an append-only status History

# Global records

  - IndexEntry: lean denormalized product row keyed by (tenant, product id)
  - GlobalProduct: full product mirror
  - WarehouseMetricsSnapshot: periodic per-warehouse aggregate
  - Tenant, Warehouse: reference data

# Derived fields

IndexEntry.InFPWarehouse is true only when the product location is
"FP warehouse" and its warehouse status is STORED. Warehouse id, country and
name are copied into the entry only in that case. IsComputer is derived from
the "Computer" category.
*/
package types
