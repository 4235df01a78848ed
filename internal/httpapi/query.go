package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type queryRequest struct {
	Question   string `json:"question" binding:"required"`
	DocumentID string `json:"documentId"`
}

// handleQuery runs the RAG pipeline: semantic search, context assembly,
// grounded LLM answer.
func (s *Server) handleQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "missing question")
		return
	}

	answer, err := s.Store.Query(c.Request.Context(), req.Question, req.DocumentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, answer)
}

type reindexRequest struct {
	Text string `json:"text" binding:"required"`
}

// handleReindex deletes any previously indexed chunks for the document and
// re-indexes the given text from scratch.
func (s *Server) handleReindex(c *gin.Context) {
	documentID := c.Param("id")
	var req reindexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "missing text")
		return
	}

	ctx := c.Request.Context()
	if err := s.Store.DeleteDocumentVectors(ctx, documentID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	result, err := s.Store.IndexDocumentWithResult(ctx, documentID, req.Text, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chunkCount": result.ChunkCount})
}

// handleIndexStats reports how much of a document is indexed, for the
// frontend's "re-index" affordance.
func (s *Server) handleIndexStats(c *gin.Context) {
	documentID := c.Param("id")
	stats, err := s.Store.IndexStats(c.Request.Context(), documentID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}
