package types

import (
	"time"
)

// Location values a product can hold
const (
	LocationEmployee    = "Employee"
	LocationOurOffice   = "Our office"
	LocationFPWarehouse = "FP warehouse"
)

// CategoryComputer is the only category counted as a computer in metrics
const CategoryComputer = "Computer"

// ProductStatus is the lifecycle status of a product inside a tenant
type ProductStatus string

const (
	ProductStatusAvailable   ProductStatus = "Available"
	ProductStatusDelivered   ProductStatus = "Delivered"
	ProductStatusInTransit   ProductStatus = "In Transit"
	ProductStatusUnavailable ProductStatus = "Unavailable"
	ProductStatusDeprecated  ProductStatus = "Deprecated"
)

// ProductCondition describes the physical state of a product
type ProductCondition string

const (
	ConditionOptimal   ProductCondition = "Optimal"
	ConditionDefective ProductCondition = "Defective"
	ConditionUnusable  ProductCondition = "Unusable"
)

// WarehouseStatus is the sub-state of a product inside a fulfillment warehouse
type WarehouseStatus string

const (
	WarehouseStatusStored    WarehouseStatus = "STORED"
	WarehouseStatusInTransit WarehouseStatus = "IN_TRANSIT"
)

// Attribute is a free-form key/value product property (brand, model, ram...)
type Attribute struct {
	Key   string `json:"key" bson:"key"`
	Value string `json:"value" bson:"value"`
}

// Price of a product or shipment
type Price struct {
	Amount       float64 `json:"amount" bson:"amount"`
	CurrencyCode string  `json:"currencyCode" bson:"currencyCode"`
}

// FPWarehouseRef places a product inside a fulfillment-partner warehouse
type FPWarehouseRef struct {
	WarehouseID          string          `json:"warehouseId" bson:"warehouseId"`
	WarehouseCountryCode string          `json:"warehouseCountryCode" bson:"warehouseCountryCode"`
	WarehouseName        string          `json:"warehouseName" bson:"warehouseName"`
	Status               WarehouseStatus `json:"status" bson:"status"`
	AssignedAt           time.Time       `json:"assignedAt" bson:"assignedAt"`
}

// Product is a tenant-owned asset. Products live either in the tenant's
// standalone products collection or embedded in a member.
type Product struct {
	ID               string           `json:"id" bson:"_id"`
	Name             string           `json:"name" bson:"name"`
	Category         string           `json:"category" bson:"category"`
	Attributes       []Attribute      `json:"attributes,omitempty" bson:"attributes,omitempty"`
	Status           ProductStatus    `json:"status" bson:"status"`
	SerialNumber     string           `json:"serialNumber,omitempty" bson:"serialNumber,omitempty"`
	AssignedEmail    string           `json:"assignedEmail,omitempty" bson:"assignedEmail,omitempty"`
	AssignedMember   string           `json:"assignedMember,omitempty" bson:"assignedMember,omitempty"`
	Location         string           `json:"location" bson:"location"`
	Price            *Price           `json:"price,omitempty" bson:"price,omitempty"`
	ProductCondition ProductCondition `json:"productCondition,omitempty" bson:"productCondition,omitempty"`
	FPWarehouse      *FPWarehouseRef  `json:"fpWarehouse,omitempty" bson:"fpWarehouse,omitempty"`
	OfficeID         string           `json:"officeId,omitempty" bson:"officeId,omitempty"`
	IsDeleted        bool             `json:"isDeleted" bson:"isDeleted"`
	CreatedAt        time.Time        `json:"createdAt" bson:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt" bson:"updatedAt"`
}

// Clone returns a deep copy of the product
func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	c := *p
	if p.Attributes != nil {
		c.Attributes = append([]Attribute(nil), p.Attributes...)
	}
	if p.Price != nil {
		price := *p.Price
		c.Price = &price
	}
	if p.FPWarehouse != nil {
		ref := *p.FPWarehouse
		c.FPWarehouse = &ref
	}
	return &c
}

// Address is a postal address attached to members, offices and tenants
type Address struct {
	Address       string `json:"address,omitempty" bson:"address,omitempty"`
	Apartment     string `json:"apartment,omitempty" bson:"apartment,omitempty"`
	City          string `json:"city,omitempty" bson:"city,omitempty"`
	State         string `json:"state,omitempty" bson:"state,omitempty"`
	Country       string `json:"country,omitempty" bson:"country,omitempty"`
	ZipCode       string `json:"zipCode,omitempty" bson:"zipCode,omitempty"`
	Phone         string `json:"phone,omitempty" bson:"phone,omitempty"`
	PersonalEmail string `json:"personalEmail,omitempty" bson:"personalEmail,omitempty"`
}

// IsComplete reports whether the address carries enough data to ship to
func (a *Address) IsComplete() bool {
	if a == nil {
		return false
	}
	return a.Address != "" && a.City != "" && a.Country != "" && a.ZipCode != ""
}

// Member is a person in a tenant that can hold products
type Member struct {
	ID        string     `json:"id" bson:"_id"`
	Email     string     `json:"email" bson:"email"`
	FirstName string     `json:"firstName" bson:"firstName"`
	LastName  string     `json:"lastName" bson:"lastName"`
	Address   *Address   `json:"address,omitempty" bson:"address,omitempty"`
	Products  []*Product `json:"products,omitempty" bson:"products,omitempty"`
	IsDeleted bool       `json:"isDeleted" bson:"isDeleted"`
	CreatedAt time.Time  `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt" bson:"updatedAt"`
}

// FullName returns "First Last"
func (m *Member) FullName() string {
	switch {
	case m.FirstName == "":
		return m.LastName
	case m.LastName == "":
		return m.FirstName
	}
	return m.FirstName + " " + m.LastName
}

// Product returns the embedded product with the given id, if any
func (m *Member) Product(id string) (*Product, int) {
	for i, p := range m.Products {
		if p != nil && p.ID == id {
			return p, i
		}
	}
	return nil, -1
}

// Office is a tenant office location
type Office struct {
	ID        string    `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	Address   *Address  `json:"address,omitempty" bson:"address,omitempty"`
	IsDefault bool      `json:"isDefault" bson:"isDefault"`
	IsDeleted bool      `json:"isDeleted" bson:"isDeleted"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Tenant is global reference data about a customer account
type Tenant struct {
	Name      string    `json:"name" bson:"_id"`
	Address   *Address  `json:"address,omitempty" bson:"address,omitempty"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// Warehouse is a fulfillment-partner warehouse, at most one active per country
type Warehouse struct {
	ID          string `json:"id" bson:"_id"`
	Name        string `json:"name" bson:"name"`
	CountryCode string `json:"countryCode" bson:"countryCode"`
	Partner     string `json:"partner,omitempty" bson:"partner,omitempty"`
	IsActive    bool   `json:"isActive" bson:"isActive"`
}
