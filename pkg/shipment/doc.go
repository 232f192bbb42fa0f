/*
Package shipment implements the shipment status lifecycle.

	In Preparation ──▶ On the Way ──▶ Received
	      │                 │
	      │                 └──────▶ Cancelled
	      ├──▶ Received
	      ├──▶ Cancelled
	      └──▶ On Hold - Missing Data ──▶ Cancelled

Received and Cancelled are terminal. A transition is validated, then the new
status is saved with a history entry (and, for On the Way, product snapshots)
before any product is touched. Product side effects run one product at a time
and are collected in a CascadeReport.
*/
package shipment
