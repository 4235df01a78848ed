package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"legal-contract-review/internal/analysis"
)

type analyzeRequest struct {
	Text string `json:"text" binding:"required"`
}

// handleAnalyzeSync runs the full map-reduce pipeline and returns only the
// final report, for callers that don't want a progress stream.
func (s *Server) handleAnalyzeSync(c *gin.Context) {
	documentID := c.Param("id")
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "missing text")
		return
	}

	report, err := s.Orchestrator.Analyze(c.Request.Context(), documentID, req.Text, nil)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// handleAnalyzeStream runs the same pipeline but streams ProgressEvent
// updates over SSE as each stage completes, finishing with the Report.
func (s *Server) handleAnalyzeStream(c *gin.Context) {
	documentID := c.Param("id")
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "missing text")
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	writeEvent := func(event string, data []byte) {
		fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event, data)
		flusher.Flush()
	}

	report, err := s.Orchestrator.Analyze(c.Request.Context(), documentID, req.Text, func(ev analysis.ProgressEvent) {
		payload, mErr := sonicMarshal(ev)
		if mErr != nil {
			return
		}
		writeEvent("progress", payload)
	})
	if err != nil {
		payload, _ := sonicMarshal(gin.H{"stage": "error", "error": err.Error()})
		writeEvent("error", payload)
		return
	}

	payload, mErr := sonicMarshal(gin.H{"stage": "result", "progress": 100, "data": report})
	if mErr != nil {
		payload = []byte(`{"stage":"error","error":"failed to encode report"}`)
	}
	writeEvent("result", payload)
}
