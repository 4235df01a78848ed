// Package vectorstore persists (chunk, embedding, metadata) tuples and
// serves the retrieval-augmented query pipeline: cosine-similarity search
// scoped to a document or global, token-bounded context assembly, and
// delegation to the LLM client for grounded answers.
package vectorstore

import "time"

// StoredChunk is a persisted chunk. Embedding is nil when an embedding
// attempt failed but the chunk was still stored with its content.
type StoredChunk struct {
	ID         string
	DocumentID string
	Content    string
	Embedding  []float32
	Metadata   map[string]any
	CreatedAt  time.Time
}

// SearchResult is one hit from a similarity search, with the similarity
// score attached.
type SearchResult struct {
	Chunk      StoredChunk
	Similarity float64
}

// IndexResult is the outcome of indexing a document: how many chunks were
// produced and the chunks themselves (content + metadata, without
// embeddings, which stay server-side).
type IndexResult struct {
	ChunkCount int
	Chunks     []StoredChunk
}

// SearchOptions parameterizes SemanticSearch. DocumentID, when non-empty,
// scopes the search to one document; empty means a global search.
type SearchOptions struct {
	DocumentID      string
	Threshold       float64
	Count           int
	IncludeMetadata bool
}

// ResolveSearchOptions fills in the defaults (threshold=0.5, count=5) for
// zero-valued fields. IncludeMetadata is left as given, so a zero-valued
// SearchOptions returns results with their metadata removed.
func ResolveSearchOptions(o SearchOptions) SearchOptions {
	if o.Threshold <= 0 {
		o.Threshold = 0.5
	}
	if o.Count <= 0 {
		o.Count = 5
	}
	return o
}

// ContextOptions parameterizes BuildContext.
type ContextOptions struct {
	MaxChunks        int
	MinSimilarity    float64
	MaxContextTokens int
}

// ResolveContextOptions fills in the defaults (max_chunks=5,
// min_similarity=0.5, max_context_tokens=4000).
func ResolveContextOptions(o ContextOptions) ContextOptions {
	if o.MaxChunks <= 0 {
		o.MaxChunks = 5
	}
	if o.MinSimilarity <= 0 {
		o.MinSimilarity = 0.5
	}
	if o.MaxContextTokens <= 0 {
		o.MaxContextTokens = 4000
	}
	return o
}

// Source is a cited chunk surfaced alongside a RAG answer.
type Source struct {
	Excerpt    string  `json:"excerpt"`
	Similarity float64 `json:"similarity"`
}

// QueryAnswer is the result of a grounded Q&A query.
type QueryAnswer struct {
	Answer        string   `json:"answer"`
	Sources       []Source `json:"sources"`
	Confidence    float64  `json:"confidence"`
	ContextTokens int      `json:"contextTokens"`
}

// IndexStats summarizes a document's indexing coverage for
// GET /documents/index-stats/{id}.
type IndexStats struct {
	TotalChunks    int
	IndexedChunks  int
	IsFullyIndexed bool
}

const notFoundAnswer = "根据现有资料，无法找到与该问题相关的内容。"

// contextResultPrefix formats the similarity-percentage header prefixed to
// each chunk appended into an assembled context window.
func contextResultPrefix(similarity float64) string {
	return "\n\n---\n[相关度: " + formatPercent(similarity) + "%]\n"
}
