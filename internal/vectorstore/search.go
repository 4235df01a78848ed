package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"legal-contract-review/internal/llmclient"
	"legal-contract-review/internal/metricsreg"
	"legal-contract-review/internal/textmetrics"
)

var tracer = otel.Tracer("legal-contract-review/internal/vectorstore")

// SemanticSearch embeds query and retrieves the most similar stored chunks,
// scoped to opts.DocumentID when set. If the backend's own similarity
// search fails, SemanticSearch falls back to loading every embedded chunk
// in scope and computing cosine similarity in-process.
func (s *Store) SemanticSearch(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	opts = ResolveSearchOptions(opts)

	scope := "global"
	if opts.DocumentID != "" {
		scope = "document"
	}
	ctx, span := tracer.Start(ctx, "vectorstore.semantic_search")
	span.SetAttributes(attribute.String("search.scope", scope), attribute.Int("search.count", opts.Count))
	defer span.End()

	queryEmbedding, err := s.embed.Embed(ctx, query, llmclient.TextTypeQuery)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: embed query: %w", err)
	}

	path := "backend"
	results, err := s.backend.matchDocuments(ctx, queryEmbedding, opts.Threshold, opts.Count, opts.DocumentID)
	if err != nil {
		s.logger.Warn("vectorstore.search.backend_failed_falling_back", zap.Error(err))
		path = "fallback"
		results, err = s.fallbackSearch(ctx, queryEmbedding, opts)
		if err != nil {
			s.logger.Warn("vectorstore.search.fallback_failed", zap.Error(err))
			metricsreg.RetrievalRequests.WithLabelValues(scope, path).Inc()
			return nil, nil
		}
	}
	metricsreg.RetrievalRequests.WithLabelValues(scope, path).Inc()

	if !opts.IncludeMetadata {
		for i := range results {
			results[i].Chunk.Metadata = nil
		}
	}
	return results, nil
}

// fallbackSearch loads every chunk in scope (the document, or every stored
// chunk when opts.DocumentID is empty) and computes similarity locally.
func (s *Store) fallbackSearch(ctx context.Context, queryEmbedding []float32, opts SearchOptions) ([]SearchResult, error) {
	chunks, err := s.backend.getDocumentChunks(ctx, opts.DocumentID)
	if err != nil {
		return nil, err
	}

	var results []SearchResult
	for _, c := range chunks {
		if c.Embedding == nil {
			continue
		}
		sim := CosineSimilarity(queryEmbedding, c.Embedding)
		if sim > opts.Threshold {
			results = append(results, SearchResult{Chunk: c, Similarity: sim})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if len(results) > opts.Count {
		results = results[:opts.Count]
	}
	return results, nil
}

// BuildContext retrieves up to opts.MaxChunks similar chunks for query
// scoped to documentID and greedily concatenates their content, each
// prefixed by a similarity header, stopping before the cumulative estimated
// token count would exceed opts.MaxContextTokens.
func (s *Store) BuildContext(ctx context.Context, query, documentID string, opts ContextOptions) (string, []SearchResult, error) {
	opts = ResolveContextOptions(opts)

	results, err := s.SemanticSearch(ctx, query, SearchOptions{
		DocumentID:      documentID,
		Threshold:       opts.MinSimilarity,
		Count:           opts.MaxChunks,
		IncludeMetadata: true,
	})
	if err != nil {
		return "", nil, err
	}

	var b strings.Builder
	tokens := 0
	used := make([]SearchResult, 0, len(results))
	for _, r := range results {
		piece := contextResultPrefix(r.Similarity) + r.Chunk.Content
		pieceTokens := textmetrics.EstimateTokens(piece)
		if tokens+pieceTokens > opts.MaxContextTokens {
			break
		}
		b.WriteString(piece)
		tokens += pieceTokens
		used = append(used, r)
	}
	return b.String(), used, nil
}

func formatPercent(similarity float64) string {
	return fmt.Sprintf("%.1f", similarity*100)
}
