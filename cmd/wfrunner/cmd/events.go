package cmd

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/psantana5/wfrunner/internal/status"
)

var eventsRunID string

// eventsCmd represents the events command
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show the status history of a run",
	Long:  `Print every status event recorded for a run. Requires the sqlite or postgres status channel.`,
	RunE:  runEvents,
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().StringVar(&eventsRunID, "workflow-uuid", "", "workflow run id (required)")
	eventsCmd.MarkFlagRequired("workflow-uuid")
}

func runEvents(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	switch cfg.Status.Channel {
	case status.ChannelSQLite, status.ChannelPostgres:
	default:
		return fmt.Errorf("status channel %q keeps no history (use sqlite or postgres)", cfg.Status.Channel)
	}

	store, err := status.NewSQLStore(status.StoreConfig{Type: cfg.Status.Channel, DSN: cfg.Status.DSN})
	if err != nil {
		return err
	}
	defer store.Close()

	events, err := store.History(cmd.Context(), eventsRunID)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if ok, err := writeStructured(out, events); ok {
		return err
	}

	if len(events) == 0 {
		fmt.Fprintf(out, "No status events recorded for %s\n", eventsRunID)
		return nil
	}

	table := tablewriter.NewWriter(out)
	table.Header("Time", "State", "Status", "Event ID", "Logs")
	for _, e := range events {
		table.Append(
			e.Timestamp.Format("2006-01-02 15:04:05"),
			string(e.State),
			fmt.Sprintf("%d", e.Code),
			e.ID,
			e.Logs,
		)
	}
	return table.Render()
}
