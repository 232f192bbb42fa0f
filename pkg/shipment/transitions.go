package shipment

import (
	"errors"
	"fmt"

	"github.com/cuemby/stockroom/pkg/types"
)

// ErrUnknownStatus is returned for a target status outside the enumeration
var ErrUnknownStatus = errors.New("unknown shipment status")

// NotFoundError is returned when the shipment does not exist or is deleted
type NotFoundError struct {
	Tenant     string
	ShipmentID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("shipment %s not found in tenant %s", e.ShipmentID, e.Tenant)
}

// TransitionError is returned for an edge the lifecycle does not allow
type TransitionError struct {
	ShipmentID string
	From       types.ShipmentStatus
	To         types.ShipmentStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("shipment %s cannot move from %q to %q", e.ShipmentID, e.From, e.To)
}

var transitions = map[types.ShipmentStatus][]types.ShipmentStatus{
	types.ShipmentInPreparation: {
		types.ShipmentOnTheWay,
		types.ShipmentReceived,
		types.ShipmentCancelled,
		types.ShipmentOnHold,
	},
	types.ShipmentOnHold: {
		types.ShipmentCancelled,
	},
	types.ShipmentOnTheWay: {
		types.ShipmentReceived,
		types.ShipmentCancelled,
	},
}

// Allowed returns the statuses reachable from s in one step
func Allowed(s types.ShipmentStatus) []types.ShipmentStatus {
	return append([]types.ShipmentStatus(nil), transitions[s]...)
}

// CanTransition reports whether from -> to is an edge of the lifecycle
func CanTransition(from, to types.ShipmentStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
