package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"faceattend/internal/app"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the attendance log",
	RunE:  runHistory,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().Bool("json", false, "Print as JSON")
	historyCmd.Flags().Int("limit", 0, "Only print the last N events")
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck
	asJSON, _ := cmd.Flags().GetBool("json")
	limit, _ := cmd.Flags().GetInt("limit")

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	core, err := app.NewCore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer core.Close()

	events, err := core.Ledger.History(ctx)
	if err != nil {
		return err
	}
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}

	out := cmd.OutOrStdout()
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(events)
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tUSER ID\tNAME\tTYPE")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", e.Timestamp.Local().Format(time.DateTime), e.IdentityID, e.Name, e.Type)
	}
	return w.Flush()
}
