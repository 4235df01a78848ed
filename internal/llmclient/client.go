// Package llmclient talks to the OpenAI-compatible chat and embedding
// endpoints used for per-chunk risk extraction, report consolidation, and
// semantic search. Callers are expected to bound every call with a
// context.Context deadline; this package imposes no timeouts of its own.
package llmclient

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Config configures a Client. EmbedDims defaults to 1024 when zero.
type Config struct {
	ChatURL    string
	EmbedURL   string
	APIKey     string
	ChatModel  string
	EmbedModel string
	EmbedDims  int
}

const defaultEmbedDims = 1024

// Client is a pooled, retrying client for the chat-completions and
// embeddings endpoints.
type Client struct {
	http   *http.Client
	cfg    Config
	logger *zap.Logger
}

// New builds a Client with a connection-pooled transport sized for
// concurrent map-reduce fan-out (bounded concurrency of a handful of
// in-flight chunk requests at a time, plus embedding batches).
func New(cfg Config, logger *zap.Logger) *Client {
	if cfg.EmbedDims <= 0 {
		cfg.EmbedDims = defaultEmbedDims
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 50,
		MaxConnsPerHost:     50,
		IdleConnTimeout:     90 * time.Second,
	}
	return &Client{
		http:   &http.Client{Transport: transport},
		cfg:    cfg,
		logger: logger,
	}
}

func (c *Client) authHeader(req *http.Request) {
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")
}
