package analysis

import (
	"context"
	"fmt"

	"github.com/bytedance/sonic"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"legal-contract-review/internal/chunker"
	"legal-contract-review/internal/llmclient"
)

var tracer = otel.Tracer("legal-contract-review/internal/analysis")

// ChatClient is the narrow interface the orchestrator depends on, satisfied
// by *llmclient.Client in production and by a hand-written fake in tests.
type ChatClient interface {
	Chat(ctx context.Context, req llmclient.ChatRequest) (llmclient.ChatResult, error)
}

// Indexer is the narrow interface used to kick off asynchronous, non-
// blocking embedding/indexing once a report is produced. Satisfied by
// internal/vectorstore's Store.
type Indexer interface {
	IndexDocument(ctx context.Context, documentID, text string) error
}

const defaultConcurrency = 4

// Orchestrator runs the map-reduce analysis pipeline. It owns nothing the
// caller doesn't hand it (no process-wide globals), so tests construct a
// fresh one per case with a fake ChatClient.
type Orchestrator struct {
	Chat        ChatClient
	ChunkerCfg  chunker.Config
	Indexer     Indexer
	Concurrency int
	Logger      *zap.Logger
}

// New builds an Orchestrator ready to run Analyze.
func New(chat ChatClient, indexer Indexer, cfg chunker.Config, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		Chat:       chat,
		ChunkerCfg: cfg,
		Indexer:    indexer,
		Logger:     logger,
	}
}

func (o *Orchestrator) concurrency() int {
	if o.Concurrency > 0 {
		return o.Concurrency
	}
	return defaultConcurrency
}

func (o *Orchestrator) log() *zap.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return zap.NewNop()
}

// Analyze runs the full chunking -> mapping -> reducing -> (async indexing)
// pipeline for one document and returns the consolidated Report. progress,
// if non-nil, receives one ProgressEvent per state transition (used by
// internal/httpapi to stream SSE events).
func (o *Orchestrator) Analyze(ctx context.Context, documentID, text string, progress func(ProgressEvent)) (Report, error) {
	ctx, span := tracer.Start(ctx, "analysis.analyze")
	span.SetAttributes(attribute.String("document.id", documentID))
	defer span.End()

	emit := func(stage string, pct int, msg string) {
		if progress != nil {
			progress(ProgressEvent{Stage: stage, Progress: pct, Message: msg})
		}
	}

	emit(StageInit, 0, "准备开始审查")

	emit(StageChunking, 5, "正在切分合同文本")
	chunks := chunker.ChunkText(text, o.ChunkerCfg)
	if len(chunks) == 0 {
		report := emptyReport("合同文本为空或无法识别有效内容")
		emit(StageComplete, 100, "审查完成")
		return report, nil
	}

	emit(StageMapping, 20, fmt.Sprintf("正在分析 %d 个片段", len(chunks)))
	if err := ctx.Err(); err != nil {
		emit(StageError, 0, "任务已取消")
		return Report{}, err
	}
	outcomes := o.mapChunks(ctx, chunks)
	if err := ctx.Err(); err != nil {
		emit(StageError, 0, "任务已取消")
		return Report{}, err
	}

	emit(StageReducing, 70, "正在整合审查结果")
	report, degraded := o.reduce(ctx, outcomes)
	if degraded {
		emit(StageReducingDegraded, 85, "整合失败，已降级为片段聚合结果")
	}

	if o.Indexer != nil {
		emit(StageIndexing, 90, "正在后台建立检索索引")
		go func() {
			if err := o.Indexer.IndexDocument(context.Background(), documentID, text); err != nil {
				o.log().Warn("analysis.indexing_failed", zap.String("document_id", documentID), zap.Error(err))
			}
		}()
	}

	emit(StageComplete, 100, "审查完成")
	return report, nil
}

func emptyReport(summary string) Report {
	return Report{
		Score:              0,
		RiskLevel:          RiskLevelCritical,
		Summary:            summary,
		ContractProfile:    NewUnspecifiedContractProfile(),
		RiskCategories:     map[string][]string{},
		SignRecommendation: signRecommendationFromScore(0),
	}
}

// decodeInto round-trips a generic JSON map through sonic into a typed
// struct, so the loosely-typed response from llmclient.Chat can be parsed
// into our strongly typed shapes with per-field JSON tags doing the work.
func decodeInto(m map[string]any, out any) error {
	b, err := sonic.Marshal(m)
	if err != nil {
		return err
	}
	return sonic.Unmarshal(b, out)
}
