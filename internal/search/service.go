// Package search answers queries over the index. The primary path embeds
// the query and scores it against stored vectors across every content
// source in parallel; when that path fails or finds nothing, the service
// degrades to case-insensitive substring matching, and finally to a
// synthetic result explaining the empty answer.
package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/wsearch/internal/embed"
	"github.com/Aman-CERP/wsearch/internal/store"
)

const (
	DefaultLimit = 10

	// messages carried by synthetic results
	msgNothingIndexed = "No content has been indexed yet. Results will appear once indexing completes."
	msgNoMatches      = "No matches found for this query."
)

// Mode records which retrieval path produced a response.
type Mode string

const (
	ModeVector Mode = "vector"
	ModeText   Mode = "text"
	ModeEmpty  Mode = "empty"
)

// Options scopes one query.
type Options struct {
	WorkspaceID string
	PageID      string
	Limit       int
	Threshold   float64
	Encoding    store.Encoding
}

func (o Options) withDefaults() Options {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.Encoding == "" {
		o.Encoding = store.EncodingAuto
	}
	return o
}

// Response is a query answer plus which path produced it. Results is
// never empty: when neither retrieval path finds anything, it holds one
// synthetic system result.
type Response struct {
	Results []store.SearchResult `json:"results"`
	Mode    Mode                 `json:"mode"`
}

// Store is the slice of the index store the service queries.
type Store interface {
	SearchSource(ctx context.Context, st store.SourceType, query []float32, opts store.SearchOptions) ([]store.SearchResult, error)
	TextSearchSource(ctx context.Context, st store.SourceType, query string, opts store.SearchOptions) ([]store.SearchResult, error)
	HasContent(ctx context.Context, workspaceID string) (bool, error)
}

// Service runs hybrid queries.
type Service struct {
	store    Store
	embedder embed.Embedder
	logger   *slog.Logger
}

func NewService(s Store, e embed.Embedder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: s, embedder: e, logger: logger}
}

// Search answers one query. A failure anywhere on the vector path
// degrades to the text path instead of surfacing an error; only a broken
// store makes Search fail.
func (s *Service) Search(ctx context.Context, query string, opts Options) (Response, error) {
	if query == "" {
		return Response{}, fmt.Errorf("query must not be empty")
	}
	opts = opts.withDefaults()

	results, err := s.vectorSearch(ctx, query, opts)
	if err != nil {
		s.logger.Warn("vector search failed, falling back to text",
			slog.String("error", err.Error()))
	} else if len(results) > 0 {
		return Response{Results: results, Mode: ModeVector}, nil
	}

	return s.textFallback(ctx, query, opts)
}

// vectorSearch embeds the query and fans out across all content sources.
func (s *Service) vectorSearch(ctx context.Context, query string, opts Options) ([]store.SearchResult, error) {
	vec, _, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	storeOpts := store.SearchOptions{
		WorkspaceID: opts.WorkspaceID,
		PageID:      opts.PageID,
		Limit:       opts.Limit,
		Threshold:   opts.Threshold,
		Encoding:    opts.Encoding,
	}

	perSource := make([][]store.SearchResult, len(store.AllSourceTypes))
	g, gctx := errgroup.WithContext(ctx)
	for i, st := range store.AllSourceTypes {
		g.Go(func() error {
			hits, err := s.store.SearchSource(gctx, st, vec, storeOpts)
			if err != nil {
				return fmt.Errorf("%s source: %w", st, err)
			}
			perSource[i] = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var merged []store.SearchResult
	for _, hits := range perSource {
		merged = append(merged, hits...)
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Similarity > merged[j].Similarity
	})
	if len(merged) > opts.Limit {
		merged = merged[:opts.Limit]
	}
	return merged, nil
}

// textFallback substring-matches across all sources and synthesizes a
// system result when the index has nothing to say.
func (s *Service) textFallback(ctx context.Context, query string, opts Options) (Response, error) {
	storeOpts := store.SearchOptions{
		WorkspaceID: opts.WorkspaceID,
		PageID:      opts.PageID,
		Limit:       opts.Limit,
	}

	var merged []store.SearchResult
	for _, st := range store.AllSourceTypes {
		hits, err := s.store.TextSearchSource(ctx, st, query, storeOpts)
		if err != nil {
			return Response{}, fmt.Errorf("text search on %s source: %w", st, err)
		}
		merged = append(merged, hits...)
	}
	if len(merged) > opts.Limit {
		merged = merged[:opts.Limit]
	}
	if len(merged) > 0 {
		return Response{Results: merged, Mode: ModeText}, nil
	}

	has, err := s.store.HasContent(ctx, opts.WorkspaceID)
	if err != nil {
		return Response{}, fmt.Errorf("failed to probe index contents: %w", err)
	}
	msg := msgNoMatches
	if !has {
		msg = msgNothingIndexed
	}
	return Response{
		Results: []store.SearchResult{{
			SourceType: store.SourceTypeSystem,
			Content:    msg,
		}},
		Mode: ModeEmpty,
	}, nil
}
