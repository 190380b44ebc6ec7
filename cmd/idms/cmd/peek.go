package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var peekFile string

var peekCmd = &cobra.Command{
	Use:   "peek",
	Short: "Extract a document without processing it",
	Long: `Run extraction only and print the text, hash and telemetry. Useful
for checking what the classifier would see before committing a run.

Example:
  idms peek --file ./data/inbox/scan.pdf`,
	RunE: runPeek,
}

func init() {
	rootCmd.AddCommand(peekCmd)

	peekCmd.Flags().StringVar(&peekFile, "file", "", "path to the PDF to extract (required)")
	peekCmd.MarkFlagRequired("file")
}

func runPeek(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	extraction, err := app.Extractor.Extract(ctx, peekFile)
	if err != nil {
		// Partial telemetry is still worth showing on failure.
		_ = printJSON(extraction)
		return fmt.Errorf("extraction failed: %w", err)
	}
	return printJSON(extraction)
}
