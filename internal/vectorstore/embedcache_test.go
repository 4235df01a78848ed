package vectorstore

import (
	"context"
	"testing"
)

type countingEmbedder struct {
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string, textType ...string) ([]float32, error) {
	c.calls++
	return []float32{float32(len(text)), 1, 2, 3}, nil
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string, textType ...string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, _ := c.Embed(ctx, t, textType...)
		out[i] = v
	}
	return out, nil
}

func TestCachedEmbedderSkipsRepeatedEmbed(t *testing.T) {
	inner := &countingEmbedder{}
	cached := newCachedEmbedder(inner, newMemEmbeddingCache(), nil)
	ctx := context.Background()

	if _, err := cached.Embed(ctx, "合同条款一"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := cached.Embed(ctx, "合同条款一"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected the cache to absorb the repeat call, got %d underlying calls", inner.calls)
	}

	if _, err := cached.Embed(ctx, "合同条款一", "query"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("expected a distinct text type to miss the cache, got %d calls", inner.calls)
	}
}

func TestCachedEmbedderBatchPartialHit(t *testing.T) {
	inner := &countingEmbedder{}
	cached := newCachedEmbedder(inner, newMemEmbeddingCache(), nil)
	ctx := context.Background()

	if _, err := cached.Embed(ctx, "甲方义务"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	inner.calls = 0

	vecs, err := cached.EmbedBatch(ctx, []string{"甲方义务", "乙方义务"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vecs) != 2 || vecs[0] == nil || vecs[1] == nil {
		t.Fatalf("expected both vectors populated, got %+v", vecs)
	}
	if inner.calls != 1 {
		t.Fatalf("expected only the uncached text to hit the embedder, got %d calls", inner.calls)
	}
}

func TestNewCachedEmbedderPassesThroughWithoutCache(t *testing.T) {
	inner := &countingEmbedder{}
	wrapped := newCachedEmbedder(inner, nil, nil)
	if wrapped != Embedder(inner) {
		t.Fatalf("expected a nil cache to return the inner embedder unchanged")
	}
}
