package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/wsearch/internal/search"
	"github.com/Aman-CERP/wsearch/internal/store"
)

func newSearchCmd() *cobra.Command {
	var (
		workspaceID string
		pageID      string
		limit       int
		threshold   float64
		encoding    string
		jsonOutput  bool
	)

	cmd := &cobra.Command{
		Use:   "search [query...]",
		Short: "Query the index",
		Long: `Run a hybrid query: semantic vector search first, degrading to
case-insensitive text matching when embeddings are unavailable or
return nothing.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")

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

			if limit <= 0 {
				limit = cfg.Search.Limit
			}
			if !cmd.Flags().Changed("threshold") {
				threshold = cfg.Search.Threshold
			}
			if encoding == "" {
				encoding = cfg.Search.Encoding
			}

			svc := search.NewService(a.store, embedder, nil)
			resp, err := svc.Search(cmd.Context(), query, search.Options{
				WorkspaceID: workspaceID,
				PageID:      pageID,
				Limit:       limit,
				Threshold:   threshold,
				Encoding:    store.Encoding(encoding),
			})
			if err != nil {
				return err
			}

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(resp)
			}
			printResults(cmd, resp)
			return nil
		},
	}

	cmd.Flags().StringVar(&workspaceID, "workspace", "", "Restrict to one workspace")
	cmd.Flags().StringVar(&pageID, "page", "", "Restrict to one page")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum results (default from config)")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "Similarity cutoff for vector hits, exclusive")
	cmd.Flags().StringVar(&encoding, "encoding", "", "Vector encoding to query: vector, halfvec, or auto")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output results as JSON")

	return cmd
}

func printResults(cmd *cobra.Command, resp search.Response) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "mode: %s\n\n", resp.Mode)
	for i, r := range resp.Results {
		if r.SourceType == store.SourceTypeSystem {
			fmt.Fprintln(out, r.Content)
			continue
		}
		fmt.Fprintf(out, "%d. [%s] %s (score %.3f)\n", i+1, r.SourceType, r.EntityID, r.Similarity)
		fmt.Fprintf(out, "   %s\n", snippet(r.Content, 160))
	}
}

func snippet(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
