package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/cuemby/stockroom/pkg/types"
	"github.com/spf13/cobra"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Show warehouse placement metrics",
}

var metricsWarehouseCmd = &cobra.Command{
	Use:   "warehouse WAREHOUSE_ID",
	Short: "Show products stored in a warehouse",
	Args:  cobra.ExactArgs(1),
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

		m, err := a.index.GetWarehouseMetrics(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get warehouse metrics: %w", err)
		}
		return printMetrics(cmd, "Warehouse", args[0], m)
	},
}

var metricsCountryCmd = &cobra.Command{
	Use:   "country COUNTRY_CODE",
	Short: "Show products stored in a country's warehouses",
	Args:  cobra.ExactArgs(1),
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

		m, err := a.index.GetCountryMetrics(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("failed to get country metrics: %w", err)
		}
		return printMetrics(cmd, "Country", args[0], m)
	},
}

func printMetrics(cmd *cobra.Command, label, key string, m types.PlacementMetrics) error {
	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	}

	fmt.Printf("%s: %s\n", label, key)
	fmt.Printf("  Total:            %d\n", m.Total)
	fmt.Printf("  Computers:        %d\n", m.Computers)
	fmt.Printf("  Non-computers:    %d\n", m.NonComputers)
	fmt.Printf("  Distinct tenants: %d\n", m.DistinctTenants)
	return nil
}

func init() {
	metricsCmd.AddCommand(metricsWarehouseCmd)
	metricsCmd.AddCommand(metricsCountryCmd)

	metricsCmd.PersistentFlags().Bool("json", false, "Print metrics as JSON")
}
