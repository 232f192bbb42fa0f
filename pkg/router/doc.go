// Package router caches one open storage.TenantStore per tenant.
//
// Get opens a tenant's database on first use, retrying a fixed number of
// times, and serializes concurrent first requests for the same tenant so only
// one handle is ever created. Handles idle for longer than IdleTimeout are
// closed by a periodic sweep; MaxOpen optionally caps how many stay open.
package router
