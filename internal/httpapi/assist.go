package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"legal-contract-review/internal/llmclient"
)

type assistRequest struct {
	Text   string `json:"text" binding:"required"`
	Action string `json:"action" binding:"required"`
}

type assistResponse struct {
	Result string `json:"result"`
}

var assistPrompts = map[string]string{
	"summary":        "请用简洁的中文总结以下合同内容的核心要点，突出关键义务、期限和金额：",
	"extract_terms":  "请从以下合同内容中提取关键条款（定义、期限、金额、违约责任），以简明列表形式输出：",
	"translate":      "请将以下合同内容翻译为对照的英文，保留法律术语的准确含义：",
	"clause_compare": "请分析以下合同内容中各条款之间是否存在冲突或不一致之处，并说明原因：",
}

// handleAssist dispatches one of the lightweight editor actions (summary,
// extract_terms, translate, clause_compare) to the chat model as a
// free-form, non-JSON prompt.
func (s *Server) handleAssist(c *gin.Context) {
	var req assistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "missing text or action")
		return
	}

	instruction, ok := assistPrompts[req.Action]
	if !ok {
		badRequest(c, "unsupported action")
		return
	}

	result, err := s.Chat.Chat(c.Request.Context(), llmclient.ChatRequest{
		System:      "你是一名专业合同审查助手，回答必须准确、简洁。",
		User:        instruction + "\n\n" + req.Text,
		Temperature: 0.3,
		FreeForm:    true,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, assistResponse{Result: result.Raw})
}
