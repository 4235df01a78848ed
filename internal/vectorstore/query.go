package vectorstore

import (
	"context"

	"legal-contract-review/internal/analysis"
	"legal-contract-review/internal/llmclient"
	"legal-contract-review/internal/textmetrics"
)

const (
	ragTemperature   = 0.5
	ragContextTokens = 4000
)

func estimateContextTokens(context string) int {
	return textmetrics.EstimateTokens(context)
}

// Query answers question grounded in documentID's indexed chunks. When no
// context passes the similarity threshold, it returns the stock "not
// found" answer with zero confidence without calling the LLM.
func (s *Store) Query(ctx context.Context, question, documentID string) (QueryAnswer, error) {
	contextText, results, err := s.BuildContext(ctx, question, documentID, ContextOptions{MaxContextTokens: ragContextTokens})
	if err != nil {
		return QueryAnswer{}, err
	}
	if contextText == "" {
		return QueryAnswer{Answer: notFoundAnswer, Sources: nil, Confidence: 0, ContextTokens: 0}, nil
	}

	chatResult, err := s.chat.Chat(ctx, llmclient.ChatRequest{
		System:      analysis.RAGSystemPrompt,
		User:        analysis.BuildRAGUserPrompt(question, contextText),
		Temperature: ragTemperature,
		FreeForm:    true,
	})
	answer := notFoundAnswer
	if err == nil && chatResult.Raw != "" {
		answer = chatResult.Raw
	}

	var sources []Source
	var simSum float64
	for _, r := range results {
		sources = append(sources, Source{Excerpt: truncateRunesTo(r.Chunk.Content, 200), Similarity: r.Similarity})
		simSum += r.Similarity
	}
	confidence := 0.0
	if len(results) > 0 {
		confidence = simSum / float64(len(results))
	}

	contextTokens := estimateContextTokens(contextText)
	return QueryAnswer{
		Answer:        answer,
		Sources:       sources,
		Confidence:    confidence,
		ContextTokens: contextTokens,
	}, nil
}

func truncateRunesTo(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
