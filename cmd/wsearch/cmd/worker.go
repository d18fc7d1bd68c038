package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/wsearch/internal/content"
	"github.com/Aman-CERP/wsearch/internal/index"
	"github.com/Aman-CERP/wsearch/internal/worker"
)

func newWorkerCmd() *cobra.Command {
	var contentPath string
	var once bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the background indexing worker",
		Long: `Start the indexing worker: poll the task queue, resolve each task's
entity from the content source, and write chunked embeddings to the
index store. Runs until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runWorker(cmd, contentPath, once)
		},
	}

	cmd.Flags().StringVar(&contentPath, "content", "", "Path to a workspace content JSON file")
	cmd.Flags().BoolVar(&once, "once", false, "Process one batch and exit")

	return cmd
}

func runWorker(cmd *cobra.Command, contentPath string, once bool) error {
	if contentPath == "" {
		return fmt.Errorf("--content is required: the worker needs a content source")
	}
	source, err := content.LoadFixture(contentPath)
	if err != nil {
		return fmt.Errorf("failed to load content source: %w", err)
	}

	a, err := openApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return fmt.Errorf("failed to build embedder: %w", err)
	}
	defer func() { _ = embedder.Close() }()

	processor := index.NewProcessor(a.store, embedder, chunkConfig(cfg), nil)
	w := worker.New(a.queue, processor, a.store, source, worker.Config{
		PollInterval:    cfg.Worker.PollInterval,
		BatchSize:       cfg.Worker.BatchSize,
		CleanupInterval: cfg.Worker.CleanupInterval,
		Retention:       cfg.Worker.Retention,
	}, nil)

	ctx := cmd.Context()
	if once {
		n, err := w.RunOnce(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "processed %d task(s)\n", n)
		return nil
	}

	w.Start(ctx)
	fmt.Fprintln(cmd.OutOrStdout(), "worker started, press Ctrl-C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case <-ctx.Done():
	}
	w.Stop()
	fmt.Fprintln(cmd.OutOrStdout(), "worker stopped")
	return nil
}
