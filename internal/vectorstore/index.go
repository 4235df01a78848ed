package vectorstore

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"legal-contract-review/internal/chunker"
	"legal-contract-review/internal/metricsreg"
)

const indexInsertBatchSize = 20

// IndexDocumentWithResult chunks text with the chunker's default
// configuration, embeds every chunk's content, and stores the result,
// returning the chunk count and the stored (embedding-less, for payload
// size) chunks. A batch embedding failure falls back to per-text
// embedding; an individual embedding failure still stores its chunk with a
// nil embedding rather than dropping it.
func (s *Store) IndexDocumentWithResult(ctx context.Context, documentID, text string, metadata map[string]any) (IndexResult, error) {
	chunks := chunker.ChunkText(text, s.chunkerCfg)
	if len(chunks) == 0 {
		return IndexResult{}, nil
	}

	contents := make([]string, len(chunks))
	for i, c := range chunks {
		contents[i] = c.Content
	}

	embeddings, err := s.embedAll(ctx, contents)
	if err != nil {
		return IndexResult{}, fmt.Errorf("vectorstore: embed chunks: %w", err)
	}

	now := clockNow().UTC().Format(time.RFC3339)
	rows := make([]StoredChunk, len(chunks))
	for i, c := range chunks {
		merged := map[string]any{}
		for k, v := range metadata {
			merged[k] = v
		}
		merged["chunkIndex"] = c.ChunkIndex
		merged["indexed_at"] = now
		merged["segments"] = c.Segments
		merged["importance"] = string(c.Importance)
		merged["hasOverlap"] = c.HasOverlap

		rows[i] = StoredChunk{
			DocumentID: documentID,
			Content:    c.Content,
			Embedding:  embeddings[i],
			Metadata:   merged,
		}
	}

	for start := 0; start < len(rows); start += indexInsertBatchSize {
		end := start + indexInsertBatchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := s.backend.insertChunks(ctx, rows[start:end]); err != nil {
			return IndexResult{}, fmt.Errorf("vectorstore: insert chunks: %w", err)
		}
	}
	metricsreg.IndexedChunks.Add(float64(len(rows)))

	for i := range rows {
		rows[i].Embedding = nil
	}

	return IndexResult{ChunkCount: len(chunks), Chunks: rows}, nil
}

// embedAll embeds every chunk's content via EmbedBatch, falling back to
// embedding chunks individually (skipping, as nil, any that still fail) if
// the batch call itself fails outright.
func (s *Store) embedAll(ctx context.Context, contents []string) ([][]float32, error) {
	vectors, err := s.embed.EmbedBatch(ctx, contents)
	if err == nil {
		return vectors, nil
	}

	s.logger.Warn("vectorstore.index.batch_embed_failed", zap.Error(err))
	out := make([][]float32, len(contents))
	for i, text := range contents {
		v, embErr := s.embed.Embed(ctx, text)
		if embErr != nil {
			s.logger.Warn("vectorstore.index.single_embed_failed", zap.Int("chunk_index", i), zap.Error(embErr))
			out[i] = nil
			continue
		}
		out[i] = v
	}
	return out, nil
}

// clockNow is overridden in tests to keep indexed_at deterministic;
// production callers get the real wall clock.
var clockNow = time.Now
