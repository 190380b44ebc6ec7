package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pamin/idms/internal/core/ports"
)

var batchDryRun bool

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Process every PDF in the inbox",
	Long: `Scan the inbox directory and run the pipeline for each PDF found.
Documents are processed concurrently; a failure on one document never
aborts the rest of the batch.

Examples:
  idms batch
  idms batch --dry-run`,
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().BoolVar(&batchDryRun, "dry-run", false, "simulate without side effects")
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	mode := ports.ModeLive
	if batchDryRun {
		mode = ports.ModeDryRun
	}

	results, err := app.Pipeline.ProcessInbox(ctx, mode)
	if err != nil {
		return fmt.Errorf("batch run failed: %w", err)
	}
	if err := printJSON(results); err != nil {
		return err
	}

	var failed int
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(results))
	}
	return nil
}
