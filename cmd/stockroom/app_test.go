package main

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/stockroom/pkg/config"
	"github.com/cuemby/stockroom/pkg/router"
	"github.com/cuemby/stockroom/pkg/shipment"
	"github.com/cuemby/stockroom/pkg/types"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boltConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = t.TempDir()
	cfg.Storage.OpenTimeout = time.Second
	return cfg
}

func TestOpenApp_Bolt(t *testing.T) {
	ctx := context.Background()
	a, err := openApp(ctx, boltConfig(t))
	require.NoError(t, err)

	store, err := a.router.Get(ctx, "acme")
	require.NoError(t, err)
	require.NoError(t, store.PutShipment(ctx, &types.Shipment{
		ID:     "sh-1",
		Status: types.ShipmentInPreparation,
	}))

	res, err := a.machine.UpdateStatus(ctx, shipment.Request{
		Tenant:     "acme",
		ShipmentID: "sh-1",
		Status:     types.ShipmentCancelled,
	})
	require.NoError(t, err)
	assert.Equal(t, types.ShipmentCancelled, res.Shipment.Status)

	require.NoError(t, a.Close(ctx))

	_, err = a.router.Get(ctx, "acme")
	assert.ErrorIs(t, err, router.ErrRouterClosed)
}

func TestOpenApp_Metrics(t *testing.T) {
	ctx := context.Background()
	a, err := openApp(ctx, boltConfig(t))
	require.NoError(t, err)
	defer a.Close(ctx)

	m, err := a.index.GetCountryMetrics(ctx, "AR")
	require.NoError(t, err)
	assert.Zero(t, m.Total)
}

func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("config", "", "")
	cmd.Flags().String("data-dir", "", "")
	cmd.Flags().String("log-level", "", "")
	cmd.Flags().Bool("log-json", false, "")
	return cmd
}

func TestLoadConfig_FlagsWin(t *testing.T) {
	t.Chdir(t.TempDir())
	dir := t.TempDir()
	t.Setenv("STOCKROOM_DATA_DIR", "/from/env")

	cmd := newFlagCommand()
	require.NoError(t, cmd.Flags().Set("data-dir", dir))
	require.NoError(t, cmd.Flags().Set("log-level", "debug"))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Storage.DataDir)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.False(t, cfg.Logging.JSON)
}

func TestLoadConfig_EnvWithoutFlags(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("STOCKROOM_DATA_DIR", "/from/env")

	cfg, err := loadConfig(newFlagCommand())
	require.NoError(t, err)
	assert.Equal(t, "/from/env", cfg.Storage.DataDir)
}
