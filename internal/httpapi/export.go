package httpapi

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"legal-contract-review/internal/analysis"
)

type exportRequest struct {
	Report      analysis.Report       `json:"report" binding:"required"`
	Content     string                `json:"content"`
	Annotations []analysis.Annotation `json:"annotations"`
	FileName    string                `json:"fileName"`
}

type exportResponse struct {
	Content  string `json:"content"`
	FileName string `json:"fileName"`
}

// handleExportDocx formats a Report into a plain structured text document
// (headings + bullet lists); office-format rendering is an external
// collaborator this layer hands the text off to.
func (s *Server) handleExportDocx(c *gin.Context) {
	var req exportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "missing report")
		return
	}

	fileName := req.FileName
	if fileName == "" {
		fileName = "contract-review-report.txt"
	}

	annotations := req.Annotations
	if len(annotations) == 0 && req.Content != "" {
		annotations = analysis.Annotate(req.Content, req.Report.Risks)
	}

	c.JSON(200, exportResponse{
		Content:  formatReportText(req.Report, annotations),
		FileName: fileName,
	})
}

func formatReportText(r analysis.Report, annotations []analysis.Annotation) string {
	var b strings.Builder

	b.WriteString("合同审查报告\n")
	b.WriteString("================\n\n")
	fmt.Fprintf(&b, "综合评分：%d\n", r.Score)
	fmt.Fprintf(&b, "风险等级：%s\n", r.RiskLevel)
	fmt.Fprintf(&b, "签署建议：%s\n\n", r.SignRecommendation)

	b.WriteString("概要\n----\n")
	b.WriteString(r.Summary)
	b.WriteString("\n\n")

	b.WriteString("合同基本信息\n------------\n")
	fmt.Fprintf(&b, "合同类型：%s\n", r.ContractProfile.ContractType)
	fmt.Fprintf(&b, "合同方：%s\n", strings.Join(r.ContractProfile.Parties, "、"))
	fmt.Fprintf(&b, "标的：%s\n", r.ContractProfile.SubjectMatter)
	fmt.Fprintf(&b, "付款条款：%s\n", r.ContractProfile.Payment)
	fmt.Fprintf(&b, "期限：%s\n\n", r.ContractProfile.Term)

	if len(r.DimensionScores) > 0 {
		b.WriteString("维度评分\n--------\n")
		for _, d := range r.DimensionScores {
			fmt.Fprintf(&b, "- %s：%d/100\n", d.Dimension, d.Score)
			for _, f := range d.Findings {
				fmt.Fprintf(&b, "  发现：%s\n", f)
			}
			for _, rec := range d.Recommendations {
				fmt.Fprintf(&b, "  建议：%s\n", rec)
			}
		}
		b.WriteString("\n")
	}

	if len(r.Risks) > 0 {
		b.WriteString("风险条款\n--------\n")
		for _, risk := range r.Risks {
			fmt.Fprintf(&b, "- [%s] %s：%s（建议：%s）\n", risk.Level, risk.Clause, risk.Description, risk.Recommendation)
		}
		b.WriteString("\n")
	}

	if len(r.MissingItems) > 0 {
		b.WriteString("缺失条款\n--------\n")
		for _, m := range r.MissingItems {
			fmt.Fprintf(&b, "- %s（%s）：%s\n", m.Item, m.WhyImportant, m.Suggestion)
		}
		b.WriteString("\n")
	}

	if len(r.ComplianceChecklist) > 0 {
		b.WriteString("合规检查\n--------\n")
		for _, item := range r.ComplianceChecklist {
			fmt.Fprintf(&b, "- %s：%s — %s\n", item.Topic, item.Status, item.Notes)
		}
		b.WriteString("\n")
	}

	if len(r.OverallSuggestions) > 0 {
		b.WriteString("总体建议\n--------\n")
		for _, s := range r.OverallSuggestions {
			fmt.Fprintf(&b, "- %s\n", s)
		}
		b.WriteString("\n")
	}

	if len(r.KeyFactsToConfirm) > 0 {
		b.WriteString("待确认事项\n----------\n")
		for _, f := range r.KeyFactsToConfirm {
			fmt.Fprintf(&b, "- %s\n", f)
		}
		b.WriteString("\n")
	}

	if len(r.NextSteps) > 0 {
		b.WriteString("后续步骤\n--------\n")
		for _, s := range r.NextSteps {
			fmt.Fprintf(&b, "- %s\n", s)
		}
		b.WriteString("\n")
	}

	if len(annotations) > 0 {
		b.WriteString("批注\n----\n")
		for _, a := range annotations {
			fmt.Fprintf(&b, "- %s：[%s] %s\n", a.Clause, a.Risk.Level, a.Risk.Description)
		}
	}

	return b.String()
}
