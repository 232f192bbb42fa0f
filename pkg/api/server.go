package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cuemby/stockroom/pkg/events"
	"github.com/cuemby/stockroom/pkg/log"
	"github.com/cuemby/stockroom/pkg/shipment"
	"github.com/cuemby/stockroom/pkg/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// StatusUpdater applies shipment status changes
type StatusUpdater interface {
	UpdateStatus(ctx context.Context, req shipment.Request) (*shipment.Result, error)
}

// IndexService is the part of the global index exposed over HTTP
type IndexService interface {
	GetWarehouseMetrics(ctx context.Context, warehouseID string) (types.PlacementMetrics, error)
	GetCountryMetrics(ctx context.Context, countryCode string) (types.PlacementMetrics, error)
	MigrateWarehouse(ctx context.Context, countryCode, warehouseID, warehouseName string) (int, error)
}

// Publisher queues inbound events
type Publisher interface {
	Publish(ctx context.Context, ev *events.Event) error
}

// Config holds HTTP server settings
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the stockroom HTTP API
type Server struct {
	shipments StatusUpdater
	index     IndexService
	bus       Publisher
	health    *HealthServer
	router    chi.Router
	http      *http.Server
	logger    zerolog.Logger
}

// NewServer creates the API server and registers its routes
func NewServer(cfg Config, shipments StatusUpdater, ix IndexService, bus Publisher, health *HealthServer) *Server {
	if health == nil {
		health = NewHealthServer()
	}
	s := &Server{
		shipments: shipments,
		index:     ix,
		bus:       bus,
		health:    health,
		logger:    log.WithComponent("api"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))
	r.Use(instrument)

	health.Mount(r)
	r.Post("/shipments/status", s.handleUpdateStatus)
	r.Get("/warehouses/{warehouseID}/metrics", s.handleWarehouseMetrics)
	r.Get("/countries/{countryCode}/metrics", s.handleCountryMetrics)
	r.Post("/warehouses/migrate", s.handleMigrateWarehouse)
	r.Post("/events", s.handlePublishEvent)
	s.router = r

	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler for embedding in other servers
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.http.Addr).Msg("HTTP API listening")
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req shipment.Request
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Tenant == "" || req.ShipmentID == "" {
		writeError(w, r, badRequest("tenantName and shipmentId are required"))
		return
	}

	res, err := s.shipments.UpdateStatus(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, res)
}

type metricsResponse struct {
	WarehouseID string                 `json:"warehouseId,omitempty"`
	CountryCode string                 `json:"countryCode,omitempty"`
	Metrics     types.PlacementMetrics `json:"metrics"`
}

func (s *Server) handleWarehouseMetrics(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "warehouseID")
	m, err := s.index.GetWarehouseMetrics(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, metricsResponse{WarehouseID: id, Metrics: m})
}

func (s *Server) handleCountryMetrics(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "countryCode")
	m, err := s.index.GetCountryMetrics(r.Context(), code)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, metricsResponse{CountryCode: code, Metrics: m})
}

type migrateRequest struct {
	CountryCode   string `json:"countryCode"`
	WarehouseID   string `json:"warehouseId"`
	WarehouseName string `json:"warehouseName"`
}

type migrateResponse struct {
	Updated int `json:"updated"`
}

func (s *Server) handleMigrateWarehouse(w http.ResponseWriter, r *http.Request) {
	var req migrateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.CountryCode == "" || req.WarehouseID == "" {
		writeError(w, r, badRequest("countryCode and warehouseId are required"))
		return
	}

	n, err := s.index.MigrateWarehouse(r.Context(), req.CountryCode, req.WarehouseID, req.WarehouseName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusOK, migrateResponse{Updated: n})
}

type publishResponse struct {
	ID string `json:"id"`
}

func (s *Server) handlePublishEvent(w http.ResponseWriter, r *http.Request) {
	var ev events.Event
	if err := decodeJSON(r, &ev); err != nil {
		writeError(w, r, err)
		return
	}
	if err := ev.Validate(); err != nil {
		writeError(w, r, badRequest(err.Error()))
		return
	}

	if err := s.bus.Publish(r.Context(), &ev); err != nil {
		writeError(w, r, err)
		return
	}
	respond(w, http.StatusAccepted, publishResponse{ID: ev.ID})
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return badRequest("invalid request body: " + err.Error())
	}
	return nil
}

func respond(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
