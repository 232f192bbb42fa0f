package types

import "time"

// ProductFields are the product attributes mirrored into the global index
type ProductFields struct {
	Name        string
	Category    string
	Status      ProductStatus
	Location    string
	FPWarehouse *FPWarehouseRef
	UpdatedAt   time.Time
}

// FieldsOf extracts the indexed fields of p
func FieldsOf(p *Product) ProductFields {
	f := ProductFields{
		Name:      p.Name,
		Category:  p.Category,
		Status:    p.Status,
		Location:  p.Location,
		UpdatedAt: p.UpdatedAt,
	}
	if p.FPWarehouse != nil {
		ref := *p.FPWarehouse
		f.FPWarehouse = &ref
	}
	return f
}

// InFPWarehouse is true iff the product sits in a fulfillment warehouse and
// is stored there (not leaving or arriving).
func (f ProductFields) InFPWarehouse() bool {
	return f.Location == LocationFPWarehouse &&
		f.FPWarehouse != nil &&
		f.FPWarehouse.Status == WarehouseStatusStored
}

// IsComputer reports whether the category counts as a computer
func (f ProductFields) IsComputer() bool {
	return f.Category == CategoryComputer
}

// IndexEntry is one product as seen by the cross-tenant index. The pair
// (Tenant, ProductID) is unique.
type IndexEntry struct {
	Tenant               string        `json:"tenantId" bson:"tenantId"`
	ProductID            string        `json:"productId" bson:"productId"`
	Name                 string        `json:"name" bson:"name"`
	Category             string        `json:"category" bson:"category"`
	Status               ProductStatus `json:"status" bson:"status"`
	Location             string        `json:"location" bson:"location"`
	InFPWarehouse        bool          `json:"inFpWarehouse" bson:"inFpWarehouse"`
	WarehouseID          string        `json:"warehouseId,omitempty" bson:"warehouseId,omitempty"`
	WarehouseCountryCode string        `json:"warehouseCountryCode,omitempty" bson:"warehouseCountryCode,omitempty"`
	WarehouseName        string        `json:"warehouseName,omitempty" bson:"warehouseName,omitempty"`
	IsComputer           bool          `json:"isComputer" bson:"isComputer"`
	SourceUpdatedAt      time.Time     `json:"sourceUpdatedAt" bson:"sourceUpdatedAt"`
	CreatedAt            time.Time     `json:"createdAt" bson:"createdAt"`
	UpdatedAt            time.Time     `json:"updatedAt" bson:"updatedAt"`
}

// NewIndexEntry derives the denormalized entry for a product. Index-side
// timestamps are left zero.
func NewIndexEntry(tenant, productID string, f ProductFields) *IndexEntry {
	e := &IndexEntry{
		Tenant:          tenant,
		ProductID:       productID,
		Name:            f.Name,
		Category:        f.Category,
		Status:          f.Status,
		Location:        f.Location,
		InFPWarehouse:   f.InFPWarehouse(),
		IsComputer:      f.IsComputer(),
		SourceUpdatedAt: f.UpdatedAt,
	}
	if e.InFPWarehouse {
		e.WarehouseID = f.FPWarehouse.WarehouseID
		e.WarehouseCountryCode = f.FPWarehouse.WarehouseCountryCode
		e.WarehouseName = f.FPWarehouse.WarehouseName
	}
	return e
}

// SameContent compares the denormalized fields, ignoring index timestamps
func (e *IndexEntry) SameContent(o *IndexEntry) bool {
	if e == nil || o == nil {
		return e == o
	}
	return e.Tenant == o.Tenant &&
		e.ProductID == o.ProductID &&
		e.Name == o.Name &&
		e.Category == o.Category &&
		e.Status == o.Status &&
		e.Location == o.Location &&
		e.InFPWarehouse == o.InFPWarehouse &&
		e.WarehouseID == o.WarehouseID &&
		e.WarehouseCountryCode == o.WarehouseCountryCode &&
		e.WarehouseName == o.WarehouseName &&
		e.IsComputer == o.IsComputer &&
		e.SourceUpdatedAt.Equal(o.SourceUpdatedAt)
}

// IndexFilter selects index entries. Empty fields match everything.
type IndexFilter struct {
	Tenant        string
	WarehouseID   string
	CountryCode   string
	InFPWarehouse *bool
}

// Matches reports whether e passes the filter
func (f IndexFilter) Matches(e *IndexEntry) bool {
	if f.Tenant != "" && e.Tenant != f.Tenant {
		return false
	}
	if f.WarehouseID != "" && e.WarehouseID != f.WarehouseID {
		return false
	}
	if f.CountryCode != "" && e.WarehouseCountryCode != f.CountryCode {
		return false
	}
	if f.InFPWarehouse != nil && e.InFPWarehouse != *f.InFPWarehouse {
		return false
	}
	return true
}

// GlobalProduct is the full product record mirrored into the shared database
type GlobalProduct struct {
	Tenant      string    `json:"tenantId" bson:"tenantId"`
	MemberEmail string    `json:"memberEmail,omitempty" bson:"memberEmail,omitempty"`
	Product     *Product  `json:"product" bson:"product"`
	SyncedAt    time.Time `json:"syncedAt" bson:"syncedAt"`
}

// PlacementMetrics aggregates indexed products stored in warehouses
type PlacementMetrics struct {
	Total           int `json:"total" bson:"total"`
	Computers       int `json:"computers" bson:"computers"`
	NonComputers    int `json:"nonComputers" bson:"nonComputers"`
	DistinctTenants int `json:"distinctTenants" bson:"distinctTenants"`
}

// TenantMetrics is the per-tenant share of a warehouse
type TenantMetrics struct {
	Tenant       string `json:"tenantId" bson:"tenantId"`
	Total        int    `json:"total" bson:"total"`
	Computers    int    `json:"computers" bson:"computers"`
	NonComputers int    `json:"nonComputers" bson:"nonComputers"`
}

// WarehouseMetricsSnapshot is the precomputed record kept in warehouse_metrics
type WarehouseMetricsSnapshot struct {
	WarehouseID   string           `json:"warehouseId" bson:"_id"`
	WarehouseName string           `json:"warehouseName" bson:"warehouseName"`
	CountryCode   string           `json:"countryCode" bson:"countryCode"`
	Metrics       PlacementMetrics `json:"metrics" bson:"metrics"`
	Tenants       []TenantMetrics  `json:"tenants" bson:"tenants"`
	ComputedAt    time.Time        `json:"computedAt" bson:"computedAt"`
}
