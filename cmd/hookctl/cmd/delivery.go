package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pagemarkhq/pagehook/internal/store"
)

// deliveryCmd represents the delivery command
var deliveryCmd = &cobra.Command{
	Use:   "delivery",
	Short: "Inspect delivery records",
	Long:  `Inspect the per-destination delivery records of a fan-out event.`,
}

// listDeliveriesCmd represents the delivery list command
var listDeliveriesCmd = &cobra.Command{
	Use:   "list [event-id]",
	Short: "List all delivery records for one event",
	Long: `List the delivery record of every destination that was fanned out to
for the given event id.

Example:
  hookctl delivery list 7f9c2a31-4a8e-4a3d-9a7e-1b2c3d4e5f60`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eventID := args[0]

		pool, ctx, cleanup, err := connectPool()
		if err != nil {
			return err
		}
		defer cleanup()

		deliveries, err := store.NewDeliveries(pool).ListByEvent(ctx, eventID)
		if err != nil {
			return fmt.Errorf("failed to list deliveries: %w", err)
		}

		if outputJSON {
			printOutput(deliveries)
			return nil
		}

		if len(deliveries) == 0 {
			fmt.Printf("No delivery records for event %s\n", eventID)
			return nil
		}
		for _, d := range deliveries {
			line := fmt.Sprintf("%s  %-9s  %s", d.DestinationID, d.Status, d.EventType)
			if d.HTTPStatus != 0 {
				line += fmt.Sprintf("  http=%d", d.HTTPStatus)
			}
			if d.Attempts != 0 {
				line += fmt.Sprintf("  attempts=%d", d.Attempts)
			}
			if d.LastError != "" {
				line += fmt.Sprintf("  error=%q", d.LastError)
			}
			fmt.Println(line)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deliveryCmd)
	deliveryCmd.AddCommand(listDeliveriesCmd)
}
