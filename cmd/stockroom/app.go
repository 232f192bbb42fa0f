package main

import (
	"context"
	"fmt"

	"github.com/cuemby/stockroom/pkg/config"
	"github.com/cuemby/stockroom/pkg/index"
	"github.com/cuemby/stockroom/pkg/router"
	"github.com/cuemby/stockroom/pkg/shipment"
	"github.com/cuemby/stockroom/pkg/storage"
	"go.uber.org/multierr"
)

// app holds the components shared by every command
type app struct {
	cfg      *config.Config
	global   storage.GlobalStore
	router   *router.Router
	index    *index.Index
	machine  *shipment.Machine
	teardown func(ctx context.Context) error
}

// openApp connects the configured backend and builds the router, index and
// shipment machine on top of it
func openApp(ctx context.Context, cfg *config.Config) (*app, error) {
	openCtx, cancel := context.WithTimeout(ctx, cfg.Storage.OpenTimeout)
	defer cancel()

	var (
		dialer   storage.Dialer
		global   storage.GlobalStore
		teardown = func(context.Context) error { return nil }
	)

	switch cfg.Storage.Backend {
	case config.BackendMongo:
		md, err := storage.NewMongoDialer(openCtx, cfg.Storage.MongoURI)
		if err != nil {
			return nil, err
		}
		gs, err := storage.NewMongoGlobalStore(openCtx, md.Client(), cfg.Storage.GlobalDatabase)
		if err != nil {
			_ = md.Close(context.Background())
			return nil, err
		}
		dialer, global = md, gs
		teardown = md.Close
	default:
		bd, err := storage.NewBoltDialer(cfg.Storage.DataDir, cfg.Storage.OpenTimeout)
		if err != nil {
			return nil, err
		}
		gs, err := storage.NewBoltGlobalStore(cfg.Storage.DataDir, cfg.Storage.OpenTimeout)
		if err != nil {
			return nil, fmt.Errorf("failed to open global store: %w", err)
		}
		dialer, global = bd, gs
	}

	rt := router.New(dialer, router.Config{
		IdleTimeout:   cfg.Router.IdleTimeout,
		SweepInterval: cfg.Router.SweepInterval,
		MaxAttempts:   cfg.Router.MaxAttempts,
		RetryInterval: cfg.Router.RetryInterval,
		MaxOpen:       cfg.Router.MaxOpen,
	}, nil)
	ix := index.New(global, rt, nil)

	return &app{
		cfg:      cfg,
		global:   global,
		router:   rt,
		index:    ix,
		machine:  shipment.New(rt, ix, nil),
		teardown: teardown,
	}, nil
}

// Close releases tenant handles, the global store and the backend client
func (a *app) Close(ctx context.Context) error {
	return multierr.Combine(
		a.router.Shutdown(),
		a.global.Close(),
		a.teardown(ctx),
	)
}
