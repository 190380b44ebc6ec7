package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pamin/idms/internal/core/domain"
	"github.com/pamin/idms/internal/core/ports"
)

var (
	processFile     string
	processDryRun   bool
	processCategory string
	processDocType  string
	processEntity   string
	processDate     string
	processDocID    string
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run the pipeline for a single PDF",
	Long: `Process one document end to end: extract, classify, route, rename
and persist. With --dry-run the run is simulated and the planned side
effects are reported without touching any store.

Override flags force the classification the way a reviewer decision
would; any override sets confidence to 1.0.

Examples:
  idms process --file ./data/inbox/scan.pdf
  idms process --file ./data/inbox/scan.pdf --dry-run
  idms process --file ./data/inbox/review/scan.pdf --category 05-financial`,
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)

	processCmd.Flags().StringVar(&processFile, "file", "", "path to the PDF to process (required)")
	processCmd.Flags().BoolVar(&processDryRun, "dry-run", false, "simulate without side effects")
	processCmd.Flags().StringVar(&processCategory, "category", "", "category override")
	processCmd.Flags().StringVar(&processDocType, "doc-type", "", "document type override")
	processCmd.Flags().StringVar(&processEntity, "entity", "", "entity override")
	processCmd.Flags().StringVar(&processDate, "date", "", "filename date override, YYYY-MM-DD")
	processCmd.Flags().StringVar(&processDocID, "doc-id", "", "reuse an existing doc_id")
	processCmd.MarkFlagRequired("file")
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	mode := ports.ModeLive
	if processDryRun {
		mode = ports.ModeDryRun
	}

	var overrides *domain.Overrides
	if processCategory != "" || processDocType != "" || processEntity != "" || processDate != "" || processDocID != "" {
		overrides = &domain.Overrides{
			Category: processCategory,
			DocType:  processDocType,
			Entity:   processEntity,
			Date:     processDate,
			DocID:    processDocID,
		}
	}

	result := app.Pipeline.Process(ctx, processFile, mode, overrides)
	if err := printJSON(result); err != nil {
		return err
	}
	if result.Failed() {
		return fmt.Errorf("processing failed: %s", result.Message)
	}
	return nil
}
