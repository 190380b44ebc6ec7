package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var reviewMapping string

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Manage the human review session",
}

var reviewInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Start a fresh review session from the review folder",
	Long: `Scan the review holding directory, hash every pending PDF and
persist a new session snapshot. Any existing session is replaced.`,
	RunE: runReviewInit,
}

var reviewValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the current session against the filesystem",
	Long: `Reload the session snapshot and verify every pending document still
exists with an unchanged hash. Reports ok, corrupted, empty or
no_session together with any issues found.`,
	RunE: runReviewValidate,
}

var reviewApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply reviewer decisions and re-run the pipeline",
	Long: `Apply a filename-to-category mapping to the pending documents. Each
mapped document is re-processed live with the approved category forced
to full confidence and its session doc_id reused.

The mapping is a JSON object, given inline or as a file path:
  idms review apply --mapping '{"scan.pdf": "05-financial"}'
  idms review apply --mapping ./decisions.json`,
	RunE: runReviewApply,
}

func init() {
	rootCmd.AddCommand(reviewCmd)
	reviewCmd.AddCommand(reviewInitCmd)
	reviewCmd.AddCommand(reviewValidateCmd)
	reviewCmd.AddCommand(reviewApplyCmd)

	reviewApplyCmd.Flags().StringVar(&reviewMapping, "mapping", "", "JSON object of filename to category, inline or a file path (required)")
	reviewApplyCmd.MarkFlagRequired("mapping")
}

func runReviewInit(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	check, err := app.Review.Initialize(ctx)
	if err != nil {
		return fmt.Errorf("initialize review session: %w", err)
	}
	return printJSON(check)
}

func runReviewValidate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	check, err := app.Review.Validate(ctx)
	if err != nil {
		return fmt.Errorf("validate review session: %w", err)
	}
	return printJSON(check)
}

func runReviewApply(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mapping, err := loadMapping(reviewMapping)
	if err != nil {
		return err
	}

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	results, err := app.Review.Apply(ctx, mapping)
	if err != nil {
		return fmt.Errorf("apply review decisions: %w", err)
	}
	if err := printJSON(results); err != nil {
		return err
	}

	for _, r := range results {
		if r.Failed() {
			return fmt.Errorf("some documents failed to re-process, they remain pending")
		}
	}
	return nil
}

// loadMapping accepts either inline JSON or a path to a JSON file.
func loadMapping(arg string) (map[string]string, error) {
	raw := []byte(arg)
	if !json.Valid(raw) {
		fileRaw, err := os.ReadFile(arg)
		if err != nil {
			return nil, fmt.Errorf("mapping is neither valid JSON nor a readable file: %w", err)
		}
		raw = fileRaw
	}

	var mapping map[string]string
	if err := json.Unmarshal(raw, &mapping); err != nil {
		return nil, fmt.Errorf("parse mapping: %w", err)
	}
	return mapping, nil
}
