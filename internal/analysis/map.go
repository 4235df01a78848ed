package analysis

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"legal-contract-review/internal/chunker"
	"legal-contract-review/internal/llmclient"
	"legal-contract-review/internal/metricsreg"
)

const chunkCallTimeout = 90 * time.Second

type rawChunkResult struct {
	Score       int       `json:"score"`
	Summary     string    `json:"summary"`
	Risks       []rawRisk `json:"risks"`
	KeyTerms    []string  `json:"keyTerms"`
	Suggestions []string  `json:"suggestions"`
}

// mapChunks runs chat-completion risk extraction over every chunk with
// bounded concurrency, preserving input order in the returned slice. Any
// per-chunk failure (network, parse) is replaced with a neutral
// placeholder so the reduce phase never starves.
func (o *Orchestrator) mapChunks(ctx context.Context, chunks []chunker.Chunk) []ChunkOutcome {
	outcomes := make([]ChunkOutcome, len(chunks))
	sem := make(chan struct{}, o.concurrency())

	var wg sync.WaitGroup
	for i, c := range chunks {
		i, c := i, c
		wg.Add(1)
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			outcomes[i] = placeholderOutcome()
			wg.Done()
			continue
		}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			outcome := o.analyzeChunk(ctx, c)
			if outcome.Placeholder {
				metricsreg.ChunkAnalyses.WithLabelValues("placeholder").Inc()
			} else {
				metricsreg.ChunkAnalyses.WithLabelValues("ok").Inc()
			}
			outcomes[i] = outcome
		}()
	}
	wg.Wait()
	return outcomes
}

func (o *Orchestrator) analyzeChunk(ctx context.Context, c chunker.Chunk) ChunkOutcome {
	callCtx, cancel := context.WithTimeout(ctx, chunkCallTimeout)
	defer cancel()

	advisory := chunkContext(c)
	result, err := o.Chat.Chat(callCtx, llmclient.ChatRequest{
		System:      chunkSystemPrompt,
		User:        chunkUserPrompt(c, advisory),
		Temperature: 0.2,
	})
	if err != nil {
		o.log().Warn("analysis.map.chunk_failed", zap.Int("chunk_index", c.ChunkIndex), zap.Error(err))
		return placeholderOutcome()
	}
	if result.Parsed == nil {
		o.log().Warn("analysis.map.chunk_unparseable", zap.Int("chunk_index", c.ChunkIndex))
		return placeholderOutcome()
	}

	var parsed rawChunkResult
	if err := decodeInto(result.Parsed, &parsed); err != nil {
		o.log().Warn("analysis.map.chunk_decode_failed", zap.Int("chunk_index", c.ChunkIndex), zap.Error(err))
		return placeholderOutcome()
	}

	risks := make([]Risk, 0, len(parsed.Risks))
	for _, raw := range parsed.Risks {
		if risk, ok := validateRisk(raw, o.log()); ok {
			risks = append(risks, risk)
		}
	}

	return ChunkOutcome{
		Score:       clampScore(parsed.Score),
		Summary:     parsed.Summary,
		Risks:       risks,
		KeyTerms:    parsed.KeyTerms,
		Suggestions: parsed.Suggestions,
	}
}
