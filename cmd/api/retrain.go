package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"faceattend/internal/app"
)

var retrainCmd = &cobra.Command{
	Use:   "retrain",
	Short: "Rebuild the recognition model from every stored face sample",
	RunE:  runRetrain,
}

func init() {
	rootCmd.AddCommand(retrainCmd)
}

func runRetrain(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	core, err := app.NewCore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer core.Close()

	n, err := core.Retrainer().Retrain(ctx)
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No data to train.")
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Model trained on %d samples and saved to %s\n", n, cfg.ModelPath)
	return nil
}
