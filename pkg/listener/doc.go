// Package listener holds the handlers behind the event bus. Each handler takes
// one event and returns a Result describing the shipments or index entries it
// changed; none of them changes a shipment's status.
package listener
