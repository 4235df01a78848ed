package vectorstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"legal-contract-review/internal/chunker"
)

// memoryBackend is the in-process backend implementation used in tests and
// anywhere a Postgres instance isn't available.
type memoryBackend struct {
	mu    sync.RWMutex
	rows  map[string]StoredChunk // id -> row
	byDoc map[string][]string    // document_id -> ordered ids
}

// NewMemoryStore builds a Store backed entirely by process memory.
func NewMemoryStore(embed Embedder, chat Chatter, cfg chunker.Config, logger *zap.Logger) *Store {
	b := &memoryBackend{rows: map[string]StoredChunk{}, byDoc: map[string][]string{}}
	return newStore(b, embed, chat, cfg, logger)
}

func (m *memoryBackend) insertChunks(ctx context.Context, rows []StoredChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		idx, _ := r.Metadata["chunkIndex"].(int)
		for _, existingID := range m.byDoc[r.DocumentID] {
			if m.rows[existingID].Metadata["chunkIndex"] == idx {
				return fmt.Errorf("vectorstore: duplicate (document_id, chunk_index) = (%s, %d)", r.DocumentID, idx)
			}
		}
		r.ID = uuid.NewString()
		m.rows[r.ID] = r
		m.byDoc[r.DocumentID] = append(m.byDoc[r.DocumentID], r.ID)
	}
	return nil
}

func (m *memoryBackend) matchDocuments(ctx context.Context, queryEmbedding []float32, threshold float64, count int, documentID string) ([]SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	if documentID != "" {
		ids = m.byDoc[documentID]
	} else {
		for id := range m.rows {
			ids = append(ids, id)
		}
	}

	var results []SearchResult
	for _, id := range ids {
		row := m.rows[id]
		if row.Embedding == nil {
			continue
		}
		sim := CosineSimilarity(queryEmbedding, row.Embedding)
		if sim > threshold {
			results = append(results, SearchResult{Chunk: row, Similarity: sim})
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if count > 0 && len(results) > count {
		results = results[:count]
	}
	return results, nil
}

func (m *memoryBackend) getDocumentChunks(ctx context.Context, documentID string) ([]StoredChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	if documentID != "" {
		ids = m.byDoc[documentID]
	} else {
		for id := range m.rows {
			ids = append(ids, id)
		}
	}

	out := make([]StoredChunk, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.rows[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		ci, _ := out[i].Metadata["chunkIndex"].(int)
		cj, _ := out[j].Metadata["chunkIndex"].(int)
		return ci < cj
	})
	return out, nil
}

func (m *memoryBackend) deleteDocument(ctx context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.byDoc[documentID] {
		delete(m.rows, id)
	}
	delete(m.byDoc, documentID)
	return nil
}
