// Command server runs the contract-review API: upload, map-reduce analysis
// (sync and SSE), RAG query, re-index, index stats, export, and assist.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"legal-contract-review/internal/analysis"
	"legal-contract-review/internal/chunker"
	"legal-contract-review/internal/httpapi"
	"legal-contract-review/internal/llmclient"
	"legal-contract-review/internal/observability/tracing"
	"legal-contract-review/internal/telemetry"
	"legal-contract-review/internal/vectorstore"
)

func main() {
	logger, err := telemetry.NewLogger("contract-review-api")
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		shutdown, err := tracing.Init(context.Background(), "contract-review-api")
		if err != nil {
			logger.Warn("tracing init failed, continuing without spans", zap.Error(err))
		} else {
			defer shutdown(context.Background())
		}
	}

	chat := llmclient.New(llmclient.Config{
		ChatURL:    getenv("LLM_CHAT_URL", "https://api.openai.com/v1/chat/completions"),
		EmbedURL:   getenv("LLM_EMBED_URL", "https://api.openai.com/v1/embeddings"),
		APIKey:     os.Getenv("LLM_API_KEY"),
		ChatModel:  getenv("LLM_CHAT_MODEL", "gpt-4o-mini"),
		EmbedModel: getenv("LLM_EMBED_MODEL", "text-embedding-3-small"),
	}, logger)

	chunkerCfg := chunker.Config{}
	store := buildStore(chat, chunkerCfg, logger)

	orchestrator := &analysis.Orchestrator{
		Chat:       chat,
		ChunkerCfg: chunkerCfg,
		Indexer:    store,
		Logger:     logger,
	}

	server := httpapi.NewServer(orchestrator, store, chat, logger)
	engine := server.Routes()

	addr := ":" + getenv("PORT", "8080")
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // long-running SSE analysis streams
	}

	logger.Info("contract review api listening",
		zap.String("addr", addr),
		zap.String("env", getenv("NODE_ENV", "development")))

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server exited", zap.Error(err))
	}
}

// buildStore wires a Postgres/pgvector-backed store when DATABASE_URL is
// set, falling back to the in-memory backend for local development.
func buildStore(chat *llmclient.Client, chunkerCfg chunker.Config, logger *zap.Logger) *vectorstore.Store {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Warn("DATABASE_URL not set, using in-memory vector store")
		return vectorstore.NewMemoryStore(chat, chat, chunkerCfg, logger)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := vectorstore.NewPool(ctx, dsn)
	if err != nil {
		logger.Warn("failed to connect to postgres, falling back to in-memory vector store", zap.Error(err))
		return vectorstore.NewMemoryStore(chat, chat, chunkerCfg, logger)
	}
	return vectorstore.NewPostgresStore(pool, chat, chat, chunkerCfg, logger)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
