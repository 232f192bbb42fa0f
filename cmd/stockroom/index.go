package main

import (
	"context"
	"fmt"

	"github.com/cuemby/stockroom/pkg/reconciler"
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Maintain the global product index",
	Long: `Maintain the global product index.

With the bolt backend these commands need exclusive access to the data
directory; stop "stockroom serve" first or they will time out waiting for
the file lock.`,
}

var indexResyncCmd = &cobra.Command{
	Use:   "resync",
	Short: "Replay tenant stores into the global index",
	Long: `Replay every product of a tenant (or of every tenant when --tenant is
omitted) into the global index, remove entries whose product no longer
exists, and refresh the warehouse metrics snapshots.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		ctx := cmd.Context()
		tenant, _ := cmd.Flags().GetString("tenant")
		if tenant == "" {
			report, err := reconciler.NewReconciler(a.index, a.global, 0, nil).Reconcile(ctx)
			if err != nil {
				return fmt.Errorf("failed to resync: %w", err)
			}
			for _, r := range report.Resynced {
				printResync(r.Tenant, r.Scanned, r.Changed, r.Removed, r.Failed)
			}
			fmt.Printf("✓ Resynced %d tenants (%d failed), %d warehouse snapshots stored\n",
				report.Tenants, report.TenantsFailed, report.WarehousesStored)
			return nil
		}

		r, err := a.index.ResyncTenant(ctx, tenant)
		if err != nil {
			return fmt.Errorf("failed to resync tenant %s: %w", tenant, err)
		}
		printResync(r.Tenant, r.Scanned, r.Changed, r.Removed, r.Failed)

		n, err := a.index.RefreshWarehouseMetrics(ctx)
		if err != nil {
			return fmt.Errorf("failed to refresh warehouse metrics: %w", err)
		}
		fmt.Printf("✓ %d warehouse snapshots stored\n", n)
		return nil
	},
}

func printResync(tenant string, scanned, changed, removed, failed int) {
	fmt.Printf("  %-24s scanned=%d changed=%d removed=%d failed=%d\n",
		tenant, scanned, changed, removed, failed)
}

var indexMigrateCmd = &cobra.Command{
	Use:   "migrate-warehouse",
	Short: "Point every stored product of a country at a new warehouse",
	RunE: func(cmd *cobra.Command, args []string) error {
		country, _ := cmd.Flags().GetString("country")
		warehouseID, _ := cmd.Flags().GetString("warehouse-id")
		warehouseName, _ := cmd.Flags().GetString("warehouse-name")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		n, err := a.index.MigrateWarehouse(cmd.Context(), country, warehouseID, warehouseName)
		if err != nil {
			return fmt.Errorf("failed to migrate warehouse: %w", err)
		}
		fmt.Printf("✓ %d index entries in %s now point at %s\n", n, country, warehouseID)
		return nil
	},
}

func init() {
	indexCmd.AddCommand(indexResyncCmd)
	indexCmd.AddCommand(indexMigrateCmd)

	indexResyncCmd.Flags().String("tenant", "", "Resync a single tenant")

	indexMigrateCmd.Flags().String("country", "", "Country code (required)")
	indexMigrateCmd.Flags().String("warehouse-id", "", "New warehouse ID (required)")
	indexMigrateCmd.Flags().String("warehouse-name", "", "New warehouse name")
	_ = indexMigrateCmd.MarkFlagRequired("country")
	_ = indexMigrateCmd.MarkFlagRequired("warehouse-id")
}
