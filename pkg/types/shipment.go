package types

import "time"

// ShipmentStatus is the lifecycle state of a shipment
type ShipmentStatus string

const (
	ShipmentInPreparation ShipmentStatus = "In Preparation"
	ShipmentOnTheWay      ShipmentStatus = "On the Way"
	ShipmentReceived      ShipmentStatus = "Received"
	ShipmentCancelled     ShipmentStatus = "Cancelled"
	ShipmentOnHold        ShipmentStatus = "On Hold - Missing Data"
)

// ShipmentStatuses lists every known shipment status
var ShipmentStatuses = []ShipmentStatus{
	ShipmentInPreparation,
	ShipmentOnTheWay,
	ShipmentReceived,
	ShipmentCancelled,
	ShipmentOnHold,
}

// Valid reports whether s is one of the enumerated statuses
func (s ShipmentStatus) Valid() bool {
	for _, known := range ShipmentStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible from s
func (s ShipmentStatus) Terminal() bool {
	return s == ShipmentReceived || s == ShipmentCancelled
}

// EndpointKind identifies what sits at one end of a shipment
type EndpointKind string

const (
	EndpointEmployee    EndpointKind = LocationEmployee
	EndpointOurOffice   EndpointKind = LocationOurOffice
	EndpointFPWarehouse EndpointKind = LocationFPWarehouse
)

// Endpoint describes a shipment origin or destination
type Endpoint struct {
	Kind        EndpointKind `json:"kind" bson:"kind"`
	Name        string       `json:"name" bson:"name"`
	MemberEmail string       `json:"memberEmail,omitempty" bson:"memberEmail,omitempty"`
	OfficeID    string       `json:"officeId,omitempty" bson:"officeId,omitempty"`
	WarehouseID string       `json:"warehouseId,omitempty" bson:"warehouseId,omitempty"`
	CountryCode string       `json:"countryCode,omitempty" bson:"countryCode,omitempty"`
	Address     *Address     `json:"address,omitempty" bson:"address,omitempty"`
}

// ProductSnapshot is an immutable copy of a product's displayable fields
// captured when a shipment goes On the Way
type ProductSnapshot struct {
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
	CapturedAt       time.Time        `json:"capturedAt" bson:"capturedAt"`
}

// SnapshotOf copies the displayable fields of p. The result shares no memory
// with p.
func SnapshotOf(p *Product, at time.Time) ProductSnapshot {
	c := p.Clone()
	return ProductSnapshot{
		ID:               c.ID,
		Name:             c.Name,
		Category:         c.Category,
		Attributes:       c.Attributes,
		Status:           c.Status,
		SerialNumber:     c.SerialNumber,
		AssignedEmail:    c.AssignedEmail,
		AssignedMember:   c.AssignedMember,
		Location:         c.Location,
		Price:            c.Price,
		ProductCondition: c.ProductCondition,
		CapturedAt:       at,
	}
}

// StatusChange records one applied transition
type StatusChange struct {
	From   ShipmentStatus `json:"from" bson:"from"`
	To     ShipmentStatus `json:"to" bson:"to"`
	UserID string         `json:"userId,omitempty" bson:"userId,omitempty"`
	At     time.Time      `json:"at" bson:"at"`
}

// Shipment moves one or more products between two endpoints
type Shipment struct {
	ID          string            `json:"id" bson:"_id"`
	OrderID     string            `json:"orderId" bson:"orderId"`
	Status      ShipmentStatus    `json:"status" bson:"status"`
	Origin      *Endpoint         `json:"origin,omitempty" bson:"origin,omitempty"`
	Destination *Endpoint         `json:"destination,omitempty" bson:"destination,omitempty"`
	Products    []string          `json:"products" bson:"products"`
	Snapshots   []ProductSnapshot `json:"snapshots,omitempty" bson:"snapshots,omitempty"`
	Price       *Price            `json:"price,omitempty" bson:"price,omitempty"`
	History     []StatusChange    `json:"history,omitempty" bson:"history,omitempty"`
	IsDeleted   bool              `json:"isDeleted" bson:"isDeleted"`
	CreatedAt   time.Time         `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time         `json:"updatedAt" bson:"updatedAt"`
}

// Endpoints returns origin and destination, skipping nil ones
func (s *Shipment) Endpoints() []*Endpoint {
	var out []*Endpoint
	if s.Origin != nil {
		out = append(out, s.Origin)
	}
	if s.Destination != nil {
		out = append(out, s.Destination)
	}
	return out
}
