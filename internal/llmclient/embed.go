package llmclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
)

const (
	embedMaxChars    = 8000
	embedMaxAttempts = 3
	embedBatchSize   = 10
	embedBatchPacing = 200 * time.Millisecond
)

type embedPayload struct {
	Model string `json:"model"`
	Input string `json:"input"`
	Type  string `json:"type,omitempty"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// TextType distinguishes the asymmetric embedding role of a call: documents
// indexed for later retrieval embed differently than queries searching
// against them, for embedding models that support the distinction.
const (
	TextTypeDocument = "document"
	TextTypeQuery    = "query"
)

// Embed returns a single embedding vector for text, truncated to 8000
// characters before being sent. textType defaults to TextTypeDocument when
// omitted; pass TextTypeQuery for search-time query embeddings.
func (c *Client) Embed(ctx context.Context, text string, textType ...string) ([]float32, error) {
	if runes := []rune(text); len(runes) > embedMaxChars {
		text = string(runes[:embedMaxChars])
	}
	tt := TextTypeDocument
	if len(textType) > 0 && textType[0] != "" {
		tt = textType[0]
	}

	body, err := sonic.Marshal(embedPayload{Model: c.cfg.EmbedModel, Input: text, Type: tt})
	if err != nil {
		return nil, fmt.Errorf("llmclient: marshal embed payload: %w", err)
	}

	var vec []float32
	attempt := func(ctx context.Context, attemptNum int) (int, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.EmbedURL, bytes.NewReader(body))
		if err != nil {
			return 0, err
		}
		c.authHeader(httpReq)

		resp, err := c.http.Do(httpReq)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return resp.StatusCode, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return resp.StatusCode, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
		}

		var parsed embedResponse
		if err := sonic.Unmarshal(respBody, &parsed); err != nil {
			return resp.StatusCode, fmt.Errorf("llmclient: decode embed response: %w", err)
		}
		if len(parsed.Embedding) == 0 {
			return resp.StatusCode, fmt.Errorf("llmclient: empty embedding returned")
		}
		vec = parsed.Embedding
		return resp.StatusCode, nil
	}

	if err := withRetry(ctx, embedMaxAttempts, attempt); err != nil {
		return nil, err
	}
	return vec, nil
}

// EmbedBatch embeds texts in groups of embedBatchSize, pacing 200ms between
// groups to avoid overwhelming the embedding backend. If a group's batch
// request fails outright, EmbedBatch falls back to embedding each text in
// that group individually; an item that still fails in the fallback gets a
// nil vector rather than sinking its neighbors. textType defaults to
// TextTypeDocument when omitted.
func (c *Client) EmbedBatch(ctx context.Context, texts []string, textType ...string) ([][]float32, error) {
	tt := TextTypeDocument
	if len(textType) > 0 && textType[0] != "" {
		tt = textType[0]
	}
	out := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		group := texts[start:end]

		vectors, err := c.embedGroup(ctx, group, tt)
		if err != nil {
			vectors = make([][]float32, len(group))
			for i, t := range group {
				v, embErr := c.Embed(ctx, t, tt)
				if embErr != nil {
					vectors[i] = nil
					continue
				}
				vectors[i] = v
			}
		}
		copy(out[start:end], vectors)

		if end < len(texts) {
			select {
			case <-time.After(embedBatchPacing):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}
	return out, nil
}

// embedGroup embeds texts as a single batched request, expecting the
// endpoint to accept an array input and return embeddings in the same
// order.
func (c *Client) embedGroup(ctx context.Context, texts []string, textType string) ([][]float32, error) {
	truncated := make([]string, len(texts))
	for i, t := range texts {
		if runes := []rune(t); len(runes) > embedMaxChars {
			t = string(runes[:embedMaxChars])
		}
		truncated[i] = t
	}

	body, err := sonic.Marshal(struct {
		Model string   `json:"model"`
		Input []string `json:"input"`
		Type  string   `json:"type,omitempty"`
	}{Model: c.cfg.EmbedModel, Input: truncated, Type: textType})
	if err != nil {
		return nil, fmt.Errorf("llmclient: marshal batch embed payload: %w", err)
	}

	var vectors [][]float32
	attempt := func(ctx context.Context, attemptNum int) (int, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.EmbedURL, bytes.NewReader(body))
		if err != nil {
			return 0, err
		}
		c.authHeader(httpReq)

		resp, err := c.http.Do(httpReq)
		if err != nil {
			return 0, err
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return resp.StatusCode, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return resp.StatusCode, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
		}

		var parsed struct {
			Embeddings [][]float32 `json:"embeddings"`
		}
		if err := sonic.Unmarshal(respBody, &parsed); err != nil {
			return resp.StatusCode, fmt.Errorf("llmclient: decode batch embed response: %w", err)
		}
		if len(parsed.Embeddings) != len(texts) {
			return resp.StatusCode, fmt.Errorf("llmclient: batch embed returned %d vectors for %d inputs", len(parsed.Embeddings), len(texts))
		}
		vectors = parsed.Embeddings
		return resp.StatusCode, nil
	}

	if err := withRetry(ctx, embedMaxAttempts, attempt); err != nil {
		return nil, err
	}
	return vectors, nil
}
