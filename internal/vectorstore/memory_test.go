package vectorstore

import (
	"context"
	"strings"
	"testing"

	"legal-contract-review/internal/chunker"
	"legal-contract-review/internal/llmclient"
)

// fakeEmbedder derives a small deterministic vector from text so that
// similar inputs score closer together, without hitting a network.
type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string, textType ...string) ([]float32, error) {
	return deterministicVector(text), nil
}

func (fakeEmbedder) EmbedBatch(ctx context.Context, texts []string, textType ...string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = deterministicVector(t)
	}
	return out, nil
}

func deterministicVector(text string) []float32 {
	var buckets [4]float32
	for i, r := range text {
		buckets[i%4] += float32(r)
	}
	return buckets[:]
}

type fakeChatter struct {
	raw string
}

func (f fakeChatter) Chat(ctx context.Context, req llmclient.ChatRequest) (llmclient.ChatResult, error) {
	return llmclient.ChatResult{Raw: f.raw}, nil
}

func newTestStore() *Store {
	return NewMemoryStore(fakeEmbedder{}, fakeChatter{raw: "测试回答"}, chunker.Config{}, nil)
}

func TestIndexAndGetDocumentChunksOrdered(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	text := strings.Repeat("第一条 保密义务，双方应当对合同内容保密。\n\n", 50)
	result, err := s.IndexDocumentWithResult(ctx, "doc-a", text, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ChunkCount == 0 {
		t.Fatalf("expected at least one chunk")
	}

	chunks, err := s.GetDocumentChunks(ctx, "doc-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != result.ChunkCount {
		t.Fatalf("expected %d stored chunks, got %d", result.ChunkCount, len(chunks))
	}
	for i, c := range chunks {
		idx, _ := c.Metadata["chunkIndex"].(int)
		if idx != i {
			t.Fatalf("chunk %d has out-of-order chunkIndex metadata %d", i, idx)
		}
		if _, ok := c.Metadata["indexed_at"]; !ok {
			t.Fatalf("chunk %d missing indexed_at metadata", i)
		}
	}
}

func TestSemanticSearchScopesToDocument(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	if _, err := s.IndexDocumentWithResult(ctx, "doc-a", "甲方的保密义务条款内容", nil); err != nil {
		t.Fatalf("index doc-a: %v", err)
	}
	if _, err := s.IndexDocumentWithResult(ctx, "doc-b", "乙方的付款条款内容", nil); err != nil {
		t.Fatalf("index doc-b: %v", err)
	}

	scoped, err := s.SemanticSearch(ctx, "保密义务", SearchOptions{DocumentID: "doc-a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, r := range scoped {
		if r.Chunk.DocumentID != "doc-a" {
			t.Fatalf("scoped search returned a chunk from %s, want only doc-a", r.Chunk.DocumentID)
		}
	}

	global, err := s.SemanticSearch(ctx, "保密义务", SearchOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	seen := map[string]bool{}
	for _, r := range global {
		seen[r.Chunk.DocumentID] = true
	}
	if len(seen) == 0 {
		t.Fatalf("expected global search to return results from at least one document")
	}
}

func TestDeleteDocumentVectorsRemovesAllChunks(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	if _, err := s.IndexDocumentWithResult(ctx, "doc-a", "第一条 内容\n\n第二条 内容", nil); err != nil {
		t.Fatalf("index: %v", err)
	}
	if err := s.DeleteDocumentVectors(ctx, "doc-a"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	chunks, err := s.GetDocumentChunks(ctx, "doc-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(chunks) != 0 {
		t.Fatalf("expected 0 chunks after delete, got %d", len(chunks))
	}
}

func TestQueryReturnsNotFoundWhenNoContext(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	answer, err := s.Query(ctx, "这份合同的付款条件是什么？", "nonexistent-doc")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer.Confidence != 0 {
		t.Fatalf("expected 0 confidence for empty context, got %v", answer.Confidence)
	}
	if answer.Answer == "" {
		t.Fatalf("expected a stock not-found answer")
	}
}

func TestQueryReturnsGroundedAnswerWithSources(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	if _, err := s.IndexDocumentWithResult(ctx, "doc-a", "第一条 保密义务，双方应当对合同内容严格保密，不得泄露给第三方。", nil); err != nil {
		t.Fatalf("index: %v", err)
	}

	answer, err := s.Query(ctx, "保密义务", "doc-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer.Answer != "测试回答" {
		t.Fatalf("expected the fake chat answer to pass through, got %q", answer.Answer)
	}
	if len(answer.Sources) == 0 {
		t.Fatalf("expected at least one source")
	}
	if answer.ContextTokens == 0 {
		t.Fatalf("expected non-zero context tokens")
	}
}

func TestIndexStatsReportsFullCoverage(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	if _, err := s.IndexDocumentWithResult(ctx, "doc-a", "第一条 内容\n\n第二条 内容", nil); err != nil {
		t.Fatalf("index: %v", err)
	}
	stats, err := s.IndexStats(ctx, "doc-a")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !stats.IsFullyIndexed || stats.TotalChunks == 0 || stats.IndexedChunks != stats.TotalChunks {
		t.Fatalf("expected full coverage, got %+v", stats)
	}
}
