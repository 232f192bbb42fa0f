package main

import (
	"context"
	"fmt"

	"github.com/cuemby/stockroom/pkg/shipment"
	"github.com/cuemby/stockroom/pkg/types"
	"github.com/spf13/cobra"
)

var shipmentCmd = &cobra.Command{
	Use:   "shipment",
	Short: "Manage shipments",
}

var shipmentStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Move a shipment to a new status",
	Long: `Move a shipment to a new status and apply the product side effects.

Allowed transitions:
  In Preparation          -> On the Way, Received, Cancelled, On Hold - Missing Data
  On Hold - Missing Data  -> Cancelled
  On the Way              -> Received, Cancelled`,
	Example: `  stockroom shipment status --tenant acme --id 64f1c0 --status "On the Way" --user u-17`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tenant, _ := cmd.Flags().GetString("tenant")
		id, _ := cmd.Flags().GetString("id")
		status, _ := cmd.Flags().GetString("status")
		user, _ := cmd.Flags().GetString("user")

		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		a, err := openApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		res, err := a.machine.UpdateStatus(cmd.Context(), shipment.Request{
			Tenant:     tenant,
			ShipmentID: id,
			Status:     types.ShipmentStatus(status),
			UserID:     user,
		})
		if err != nil {
			return err
		}

		fmt.Printf("✓ %s\n", res.Message)
		for _, f := range res.Cascade.Failures {
			fmt.Printf("  ✗ product %s: %s\n", f.ProductID, f.Error)
		}
		return nil
	},
}

func init() {
	shipmentCmd.AddCommand(shipmentStatusCmd)

	shipmentStatusCmd.Flags().String("tenant", "", "Tenant name (required)")
	shipmentStatusCmd.Flags().String("id", "", "Shipment ID (required)")
	shipmentStatusCmd.Flags().String("status", "", "New status (required)")
	shipmentStatusCmd.Flags().String("user", "", "User making the change")
	_ = shipmentStatusCmd.MarkFlagRequired("tenant")
	_ = shipmentStatusCmd.MarkFlagRequired("id")
	_ = shipmentStatusCmd.MarkFlagRequired("status")
}
