package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/nsqio/go-nsq"
	"github.com/spf13/cobra"

	"github.com/pagemarkhq/pagehook/internal/dispatch"
	"github.com/pagemarkhq/pagehook/internal/event"
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send [team-id] [trigger] [json-data]",
	Short: "Publish a test trigger onto the queue",
	Long: `Publish a trigger message onto the dispatch queue, exactly as the
product's event sources would.

Example:
  hookctl send team_123 document.viewed '{"documentId":"doc_42","viewerEmail":"reader@example.com"}'`,
	Args: cobra.RangeArgs(2, 3),
	RunE: func(cmd *cobra.Command, args []string) error {
		teamID := args[0]
		trigger := args[1]

		if !event.KnownTrigger(trigger) {
			return fmt.Errorf("unknown trigger %q", trigger)
		}

		data := map[string]any{}
		if len(args) == 3 {
			if err := json.Unmarshal([]byte(args[2]), &data); err != nil {
				return fmt.Errorf("failed to parse data JSON: %w", err)
			}
		}

		topic, _ := cmd.Flags().GetString("topic")

		msg := dispatch.TriggerMessage{
			TeamID:  teamID,
			Trigger: trigger,
			Data:    data,
		}
		body, err := json.Marshal(msg)
		if err != nil {
			return err
		}

		producer, err := nsq.NewProducer(nsqdAddr, nsq.NewConfig())
		if err != nil {
			return fmt.Errorf("failed to create producer: %w", err)
		}
		defer producer.Stop()

		if err := producer.Publish(topic, body); err != nil {
			return fmt.Errorf("failed to publish trigger: %w", err)
		}

		if outputJSON {
			printOutput(msg)
		} else {
			fmt.Printf("Published %s trigger for team %s to topic %s\n", trigger, teamID, topic)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().String("topic", "hook-triggers", "NSQ topic to publish to")
}
