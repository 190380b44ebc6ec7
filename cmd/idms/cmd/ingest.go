package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Publish documents to the processing queue",
	Long: `Publish one arrival event per file to the message queue. A running
worker picks the events up and processes each document live. Use this
instead of batch when processing should happen out of process.

Example:
  idms ingest ./data/inbox/*.pdf`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	queue, err := app.OpenQueue()
	if err != nil {
		return fmt.Errorf("connect to queue: %w", err)
	}
	defer queue.Close()

	published := 0
	for _, file := range args {
		abs, err := filepath.Abs(file)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", file, err)
		}
		if err := queue.PublishDocumentArrived(ctx, abs); err != nil {
			return fmt.Errorf("publish %s after %d published: %w", file, published, err)
		}
		published++
	}
	return printJSON(map[string]int{"published": published})
}
