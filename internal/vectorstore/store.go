package vectorstore

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"legal-contract-review/internal/chunker"
	"legal-contract-review/internal/llmclient"
)

// Embedder is the narrow interface the store depends on for turning text
// into vectors, satisfied by *llmclient.Client in production.
type Embedder interface {
	Embed(ctx context.Context, text string, textType ...string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string, textType ...string) ([][]float32, error)
}

// Chatter is the narrow interface the store depends on for the RAG answer
// call, satisfied by *llmclient.Client.
type Chatter interface {
	Chat(ctx context.Context, req llmclient.ChatRequest) (llmclient.ChatResult, error)
}

// backend is the storage primitive every Store implementation must provide.
// Two implementations satisfy it: a Postgres/pgvector-backed one for
// production and an in-memory one for tests, so Store's RAG logic (search
// fallback, context assembly, query) never needs to know which one it's
// talking to.
type backend interface {
	insertChunks(ctx context.Context, rows []StoredChunk) error
	matchDocuments(ctx context.Context, queryEmbedding []float32, threshold float64, count int, documentID string) ([]SearchResult, error)
	getDocumentChunks(ctx context.Context, documentID string) ([]StoredChunk, error)
	deleteDocument(ctx context.Context, documentID string) error
}

// Store implements the RAG pipeline: indexing, cosine-similarity search
// (with an in-process fallback when the backend's own search fails),
// context assembly, and grounded query answering.
type Store struct {
	backend    backend
	embed      Embedder
	chat       Chatter
	chunkerCfg chunker.Config
	logger     *zap.Logger
}

func newStore(b backend, embed Embedder, chat Chatter, cfg chunker.Config, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	cache := buildEmbeddingCache(logger)
	return &Store{backend: b, embed: newCachedEmbedder(embed, cache, logger), chat: chat, chunkerCfg: cfg, logger: logger}
}

// buildEmbeddingCache wires a Redis-backed cache when EMBEDDING_CACHE_REDIS_URL
// is set, falling back to an in-process TTL cache otherwise. Either way,
// embedAll never re-embeds text it has already embedded within the TTL.
func buildEmbeddingCache(logger *zap.Logger) embeddingCache {
	if url := os.Getenv("EMBEDDING_CACHE_REDIS_URL"); url != "" {
		cache, err := newRedisEmbeddingCache(url, logger)
		if err != nil {
			logger.Warn("vectorstore.embedcache.redis_unavailable", zap.Error(err))
		} else {
			return cache
		}
	}
	return newMemEmbeddingCache()
}

// IndexDocument satisfies internal/analysis.Orchestrator's Indexer
// interface: chunk, embed, and store text under documentID, discarding the
// chunk-count detail that HTTP callers needing it should fetch via
// IndexDocumentWithResult or GetDocumentChunks instead.
func (s *Store) IndexDocument(ctx context.Context, documentID, text string) error {
	_, err := s.IndexDocumentWithResult(ctx, documentID, text, nil)
	return err
}

// DeleteDocumentVectors removes all chunks for documentID.
func (s *Store) DeleteDocumentVectors(ctx context.Context, documentID string) error {
	return s.backend.deleteDocument(ctx, documentID)
}

// GetDocumentChunks returns every stored chunk for documentID, ordered by
// chunk_index.
func (s *Store) GetDocumentChunks(ctx context.Context, documentID string) ([]StoredChunk, error) {
	return s.backend.getDocumentChunks(ctx, documentID)
}

// IndexStats reports chunk coverage for documentID.
func (s *Store) IndexStats(ctx context.Context, documentID string) (IndexStats, error) {
	chunks, err := s.backend.getDocumentChunks(ctx, documentID)
	if err != nil {
		return IndexStats{}, fmt.Errorf("vectorstore: index stats: %w", err)
	}
	indexed := 0
	for _, c := range chunks {
		if c.Embedding != nil {
			indexed++
		}
	}
	return IndexStats{
		TotalChunks:    len(chunks),
		IndexedChunks:  indexed,
		IsFullyIndexed: len(chunks) > 0 && indexed == len(chunks),
	}, nil
}
