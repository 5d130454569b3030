package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pagemarkhq/pagehook/internal/store"
)

// destinationCmd represents the destination command
var destinationCmd = &cobra.Command{
	Use:   "destination",
	Short: "Manage webhook destinations",
	Long:  `Register, list, and toggle the destinations that receive event deliveries.`,
}

// createDestinationCmd represents the destination create command
var createDestinationCmd = &cobra.Command{
	Use:   "create [team-id] [url]",
	Short: "Register a new webhook destination",
	Long: `Register a new webhook destination for a team.

Example:
  hookctl destination create team_123 https://example.com/webhook`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		teamID := args[0]
		url := args[1]
		secret, _ := cmd.Flags().GetString("secret")

		if secret == "" {
			var err error
			secret, err = generateSecret()
			if err != nil {
				return err
			}
		}

		pool, ctx, cleanup, err := connectPool()
		if err != nil {
			return err
		}
		defer cleanup()

		id, err := store.NewDestinations(pool).Create(ctx, teamID, url, secret)
		if err != nil {
			return fmt.Errorf("failed to create destination: %w", err)
		}

		if outputJSON {
			printOutput(map[string]string{
				"id":     id,
				"teamId": teamID,
				"url":    url,
				"secret": secret,
			})
		} else {
			fmt.Printf("Created destination: %s\n", id)
			fmt.Printf("  Team ID: %s\n", teamID)
			fmt.Printf("  URL: %s\n", url)
			fmt.Printf("  Secret: %s\n", secret)
			fmt.Println("Store the secret now; hookctl only shows it masked from here on.")
		}
		return nil
	},
}

// listDestinationsCmd represents the destination list command
var listDestinationsCmd = &cobra.Command{
	Use:   "list [team-id]",
	Short: "List a team's webhook destinations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		teamID := args[0]

		pool, ctx, cleanup, err := connectPool()
		if err != nil {
			return err
		}
		defer cleanup()

		dests, err := store.NewDestinations(pool).ListByTeam(ctx, teamID)
		if err != nil {
			return fmt.Errorf("failed to list destinations: %w", err)
		}

		if outputJSON {
			out := make([]map[string]any, 0, len(dests))
			for _, d := range dests {
				out = append(out, map[string]any{
					"id":        d.ID,
					"teamId":    d.TeamID,
					"url":       d.URL,
					"secret":    maskSecret(d.Secret),
					"enabled":   d.Enabled,
					"createdAt": d.CreatedAt,
				})
			}
			printOutput(out)
			return nil
		}

		if len(dests) == 0 {
			fmt.Printf("No destinations for team %s\n", teamID)
			return nil
		}
		for _, d := range dests {
			state := "enabled"
			if !d.Enabled {
				state = "disabled"
			}
			fmt.Printf("%s  %-8s  %s  secret=%s\n", d.ID, state, d.URL, maskSecret(d.Secret))
		}
		return nil
	},
}

// enableDestinationCmd represents the destination enable command
var enableDestinationCmd = &cobra.Command{
	Use:   "enable [destination-id]",
	Short: "Enable a webhook destination",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setDestinationEnabled(args[0], true)
	},
}

// disableDestinationCmd represents the destination disable command
var disableDestinationCmd = &cobra.Command{
	Use:   "disable [destination-id]",
	Short: "Disable a webhook destination",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setDestinationEnabled(args[0], false)
	},
}

func setDestinationEnabled(id string, enabled bool) error {
	pool, ctx, cleanup, err := connectPool()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := store.NewDestinations(pool).SetEnabled(ctx, id, enabled); err != nil {
		return err
	}

	state := "enabled"
	if !enabled {
		state = "disabled"
	}
	if outputJSON {
		printOutput(map[string]any{"id": id, "enabled": enabled})
	} else {
		fmt.Printf("Destination %s is now %s\n", id, state)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(destinationCmd)
	destinationCmd.AddCommand(createDestinationCmd)
	destinationCmd.AddCommand(listDestinationsCmd)
	destinationCmd.AddCommand(enableDestinationCmd)
	destinationCmd.AddCommand(disableDestinationCmd)

	// Flags for destination create
	createDestinationCmd.Flags().String("secret", "", "signing secret (if not provided, one will be generated)")
}
