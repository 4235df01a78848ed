package httpapi

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"legal-contract-review/internal/chunker"
	"legal-contract-review/internal/textmetrics"
)

type uploadAnalysis struct {
	Language        string `json:"language"`
	CharCount       int    `json:"charCount"`
	EstimatedTokens int    `json:"estimatedTokens"`
	ChunkCount      int    `json:"chunkCount"`
	AvgChunkTokens  int    `json:"avgChunkTokens"`
}

type uploadResponse struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Status   string         `json:"status"`
	Content  string         `json:"content"`
	Analysis uploadAnalysis `json:"analysis"`
}

// handleUpload accepts a multipart "file" field. Text extraction from
// PDF/DOCX is an external collaborator; this handler treats the uploaded
// bytes as already-extracted plain text.
func (s *Server) handleUpload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		badRequest(c, "missing file field")
		return
	}
	f, err := fileHeader.Open()
	if err != nil {
		badRequest(c, "could not open uploaded file")
		return
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		badRequest(c, "could not read uploaded file")
		return
	}
	text := string(raw)

	chunks := chunker.ChunkText(text, chunker.Config{})
	avg := 0
	if len(chunks) > 0 {
		total := 0
		for _, ch := range chunks {
			total += ch.TokenEstimate
		}
		avg = total / len(chunks)
	}

	resp := uploadResponse{
		ID:      uuid.NewString(),
		Name:    fileHeader.Filename,
		Status:  "ready",
		Content: text,
		Analysis: uploadAnalysis{
			Language:        textmetrics.DetectLanguage(text),
			CharCount:       len([]rune(text)),
			EstimatedTokens: textmetrics.EstimateTokens(text),
			ChunkCount:      len(chunks),
			AvgChunkTokens:  avg,
		},
	}
	c.JSON(http.StatusOK, resp)
}
