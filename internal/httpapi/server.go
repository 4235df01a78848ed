// Package httpapi exposes the analysis and retrieval pipeline over HTTP:
// upload/analyze/query/reindex/index-stats/export/assist. Document
// ingestion (PDF/DOCX text extraction), auth, and durable contract
// metadata are external collaborators this layer does not implement;
// callers pass already-extracted text and an opaque document id.
package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"legal-contract-review/internal/analysis"
	"legal-contract-review/internal/llmclient"
	"legal-contract-review/internal/metricsreg"
	"legal-contract-review/internal/vectorstore"
)

// ChatClient is the narrow interface handleAssist depends on.
type ChatClient interface {
	Chat(ctx context.Context, req llmclient.ChatRequest) (llmclient.ChatResult, error)
}

// Server wires the orchestrator and vector store into gin handlers. It owns
// no process-wide state of its own; everything it needs is constructed by
// the caller and injected.
type Server struct {
	Orchestrator *analysis.Orchestrator
	Store        *vectorstore.Store
	Chat         ChatClient
	Logger       *zap.Logger
}

// NewServer builds a Server ready to have Routes() mounted.
func NewServer(o *analysis.Orchestrator, store *vectorstore.Store, chat ChatClient, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{Orchestrator: o, Store: store, Chat: chat, Logger: logger}
}

// Routes builds the gin engine with every document endpoint mounted.
func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/metrics", gin.WrapH(metricsreg.Handler()))

	docs := r.Group("/documents")
	docs.POST("/upload", s.handleUpload)
	docs.POST("/analyze-sync/:id", s.handleAnalyzeSync)
	docs.POST("/analyze/:id", s.handleAnalyzeStream)
	docs.POST("/query", s.handleQuery)
	docs.POST("/reindex/:id", s.handleReindex)
	docs.GET("/index-stats/:id", s.handleIndexStats)
	docs.POST("/export-docx", s.handleExportDocx)
	docs.POST("/assist", s.handleAssist)
	return r
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}
