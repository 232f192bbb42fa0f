package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/cuemby/stockroom/pkg/events"
	"github.com/cuemby/stockroom/pkg/router"
	"github.com/cuemby/stockroom/pkg/shipment"
	"github.com/cuemby/stockroom/pkg/storage"
	"github.com/go-chi/chi/v5/middleware"
)

// badRequestError marks client input the handlers reject before any call
type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequest(msg string) error {
	return &badRequestError{msg: msg}
}

type errorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"requestId,omitempty"`
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	var (
		badReq      *badRequestError
		notFound    *shipment.NotFoundError
		transition  *shipment.TransitionError
		unavailable *router.ConnectionUnavailableError
	)
	switch {
	case errors.As(err, &badReq),
		errors.Is(err, shipment.ErrUnknownStatus),
		errors.Is(err, storage.ErrInvalidTenant):
		return http.StatusBadRequest
	case errors.As(err, &notFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &transition):
		return http.StatusConflict
	case errors.As(err, &unavailable),
		errors.Is(err, router.ErrRouterClosed),
		errors.Is(err, events.ErrBusStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		msg = "internal error"
	}
	respond(w, code, errorResponse{
		Error:     msg,
		RequestID: middleware.GetReqID(r.Context()),
	})
	if code >= http.StatusInternalServerError {
		loggerFrom(r).Error().Err(err).Int("status", code).Msg("Request failed")
	}
}
