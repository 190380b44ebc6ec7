package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/pamin/idms/internal/bootstrap"
	"github.com/pamin/idms/internal/config"
	"github.com/pamin/idms/internal/observability/logging"
)

var (
	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "idms",
	Short: "idms: document ingestion and archival pipeline",
	Long: `idms extracts text from scanned PDFs, classifies them against an
entity and document-type ruleset, renames them into a canonical archive
layout and records every document in a tabular ledger, a local vector
index and an append-only audit trail. Low-confidence documents are
parked in a review folder and resolved through review sessions.

Results are printed as JSON on stdout; logs go to stderr.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(func() {
		cfg = config.Load()
		logger = logging.NewJSONLogger("idms-cli", cfg.LogLevel)
		slog.SetDefault(logger)
	})
}

func newApp(ctx context.Context) (*bootstrap.App, error) {
	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize application: %w", err)
	}
	return app, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
