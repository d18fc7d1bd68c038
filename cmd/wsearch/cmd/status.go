package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/wsearch/internal/queue"
)

type statusReport struct {
	DBPath     string         `json:"db_path"`
	HasContent bool           `json:"has_content"`
	Tasks      map[string]int `json:"tasks"`
}

func newStatusCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index and queue status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := openApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			has, err := a.store.HasContent(ctx, "")
			if err != nil {
				return err
			}
			counts, err := a.queue.Counts(ctx)
			if err != nil {
				return err
			}

			report := statusReport{
				DBPath:     cfg.Store.Path,
				HasContent: has,
				Tasks:      make(map[string]int, len(counts)),
			}
			for status, n := range counts {
				report.Tasks[string(status)] = n
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "database: %s\n", report.DBPath)
			fmt.Fprintf(out, "indexed content: %v\n", report.HasContent)
			fmt.Fprintln(out, "tasks:")
			for _, status := range []queue.Status{queue.StatusPending, queue.StatusProcessing, queue.StatusCompleted, queue.StatusFailed} {
				fmt.Fprintf(out, "  %-10s %d\n", status, counts[status])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}
