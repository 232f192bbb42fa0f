/*
Package log provides structured logging for stockroom using zerolog.

The package holds one global zerolog.Logger, configured once by Init from
the logging section of the config, and helpers that derive child loggers
carrying the fields every stockroom log line is filtered by.

# Configuration

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stderr,
	})

Level is one of debug, info, warn or error; anything else means info.
JSONOutput selects JSON lines, otherwise a zerolog.ConsoleWriter with RFC3339
timestamps is used. Output defaults to stdout.

Until Init runs, Logger is a no-op logger. Components capture their child
logger when they are constructed, so Init must be called first; the CLI does
this in loadConfig before building anything.

# Child Loggers

	logger := log.WithComponent("router")              // component=router
	tl := log.WithTenant(logger, "acme")               // tenant=acme
	sl := log.WithShipment(logger, "acme", "64f1c0")   // tenant=acme shipment_id=64f1c0

Component names in use: router, index, shipment, events, listener,
reconciler, api, serve.

# Conventions

Messages are capitalized and describe what happened ("Opened tenant store",
"Shipment status updated"). Errors go in Err(), never in the message.
Per-product cascade failures are logged by the shipment machine;
failures that abort an operation are returned and logged by the caller.

The HTTP layer puts a request-scoped logger (request_id, method, path) into
the request context with zerolog's WithContext.
*/
package log
