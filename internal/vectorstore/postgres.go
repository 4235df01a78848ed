package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgvregister "github.com/pgvector/pgvector-go/pgx"
	"go.uber.org/zap"

	"legal-contract-review/internal/chunker"
)

// schemaSQL creates the chunk table and its cosine-distance HNSW index.
// The embedding column width is fixed to the embedding model's 1024
// dimensions.
const schemaSQL = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS contract_chunks (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	document_id TEXT NOT NULL,
	chunk_index INTEGER NOT NULL,
	content TEXT NOT NULL,
	embedding vector(1024),
	metadata JSONB NOT NULL DEFAULT '{}',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (document_id, chunk_index)
);

CREATE INDEX IF NOT EXISTS idx_contract_chunks_document ON contract_chunks(document_id);
CREATE INDEX IF NOT EXISTS idx_contract_chunks_embedding_hnsw ON contract_chunks
	USING hnsw (embedding vector_cosine_ops) WITH (m = 16, ef_construction = 64);
`

// pgBackend is the Postgres/pgvector-backed implementation of backend.
type pgBackend struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresStore builds a Store backed by Postgres + pgvector. pool
// should come from NewPool so every connection has the pgvector type
// registered.
func NewPostgresStore(pool *pgxpool.Pool, embed Embedder, chat Chatter, cfg chunker.Config, logger *zap.Logger) *Store {
	b := &pgBackend{pool: pool, logger: logger}
	return newStore(b, embed, chat, cfg, logger)
}

// NewPool opens a pgxpool.Pool that registers the pgvector type on every
// connection and ensures the schema exists.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: parse dsn: %w", err)
	}
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgvregister.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: open pool: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("vectorstore: init schema: %w", err)
	}
	return pool, nil
}

func (p *pgBackend) insertChunks(ctx context.Context, rows []StoredChunk) error {
	batch := &pgx.Batch{}
	for _, r := range rows {
		meta, err := sonic.Marshal(r.Metadata)
		if err != nil {
			return fmt.Errorf("vectorstore: marshal metadata: %w", err)
		}
		chunkIndex, _ := r.Metadata["chunkIndex"].(int)

		var vec any
		if r.Embedding != nil {
			v := pgvector.NewVector(r.Embedding)
			vec = &v
		}

		batch.Queue(
			`INSERT INTO contract_chunks (id, document_id, chunk_index, content, embedding, metadata)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (document_id, chunk_index)
			 DO UPDATE SET content = EXCLUDED.content, embedding = EXCLUDED.embedding, metadata = EXCLUDED.metadata`,
			uuid.NewString(), r.DocumentID, chunkIndex, r.Content, vec, meta,
		)
	}

	results := p.pool.SendBatch(ctx, batch)
	defer results.Close()
	for range rows {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("vectorstore: insert chunk: %w", err)
		}
	}
	return nil
}

func (p *pgBackend) matchDocuments(ctx context.Context, queryEmbedding []float32, threshold float64, count int, documentID string) ([]SearchResult, error) {
	vec := pgvector.NewVector(queryEmbedding)
	const query = `
		SELECT id, document_id, content, embedding, metadata, created_at,
		       1 - (embedding <=> $1) AS similarity
		FROM contract_chunks
		WHERE embedding IS NOT NULL
		  AND ($2 = '' OR document_id = $2)
		  AND 1 - (embedding <=> $1) > $3
		ORDER BY embedding <=> $1
		LIMIT $4`

	rows, err := p.pool.Query(ctx, query, vec, documentID, threshold, count)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: match_documents: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var (
			id, docID, content string
			embedding          pgvector.Vector
			metaBytes          []byte
			createdAt          time.Time
			similarity         float64
		)
		if err := rows.Scan(&id, &docID, &content, &embedding, &metaBytes, &createdAt, &similarity); err != nil {
			return nil, fmt.Errorf("vectorstore: scan match: %w", err)
		}
		var meta map[string]any
		_ = sonic.Unmarshal(metaBytes, &meta)
		out = append(out, SearchResult{
			Chunk: StoredChunk{
				ID:         id,
				DocumentID: docID,
				Content:    content,
				Embedding:  embedding.Slice(),
				Metadata:   meta,
				CreatedAt:  createdAt,
			},
			Similarity: similarity,
		})
	}
	return out, rows.Err()
}

func (p *pgBackend) getDocumentChunks(ctx context.Context, documentID string) ([]StoredChunk, error) {
	const query = `
		SELECT id, document_id, content, embedding, metadata, created_at
		FROM contract_chunks
		WHERE ($1 = '' OR document_id = $1)
		ORDER BY chunk_index ASC`

	rows, err := p.pool.Query(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("vectorstore: get_document_chunks: %w", err)
	}
	defer rows.Close()

	var out []StoredChunk
	for rows.Next() {
		var (
			id, docID, content string
			embedding          *pgvector.Vector
			metaBytes          []byte
			createdAt          time.Time
		)
		if err := rows.Scan(&id, &docID, &content, &embedding, &metaBytes, &createdAt); err != nil {
			return nil, fmt.Errorf("vectorstore: scan chunk: %w", err)
		}
		var meta map[string]any
		_ = sonic.Unmarshal(metaBytes, &meta)
		var embVec []float32
		if embedding != nil {
			embVec = embedding.Slice()
		}
		out = append(out, StoredChunk{
			ID:         id,
			DocumentID: docID,
			Content:    content,
			Embedding:  embVec,
			Metadata:   meta,
			CreatedAt:  createdAt,
		})
	}
	return out, rows.Err()
}

func (p *pgBackend) deleteDocument(ctx context.Context, documentID string) error {
	_, err := p.pool.Exec(ctx, `DELETE FROM contract_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("vectorstore: delete_document_vectors: %w", err)
	}
	return nil
}
