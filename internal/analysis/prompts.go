package analysis

import (
	"fmt"
	"strings"

	"legal-contract-review/internal/chunker"
)

const chunkSystemPrompt = `你是一名资深合同审查律师。请以严谨、专业的中文风格审查用户提供的合同片段，` +
	`只根据片段原文作出判断，不要编造条款。必须输出严格的 JSON，不要包含任何 JSON 之外的文字。`

const consolidationSystemPrompt = `你是一名资深合同审查律师，负责将多个片段的初步审查结果整合为一份完整的合同风险报告。` +
	`请基于提供的片段摘要与风险列表进行综合判断，输出严格的 JSON。`

// RAGSystemPrompt is the system turn for grounded Q&A, used by
// internal/vectorstore's Query operation.
const RAGSystemPrompt = `你是一名合同问答助手。只能根据提供的上下文回答问题，` +
	`如果上下文不足以支持回答，请明确说明无法从现有内容中得出结论，不要编造。回答中请引用相关条款原文。`

// chunkContext derives the advisory string fed into the chunk prompt from a
// chunk's detected structure, per the segment-type -> advisory mapping.
func chunkContext(c chunker.Chunk) string {
	var advisories []string
	seen := map[string]bool{}
	add := func(s string) {
		if !seen[s] {
			seen[s] = true
			advisories = append(advisories, s)
		}
	}

	for _, seg := range c.Segments {
		switch seg {
		case chunker.SegmentArticle, chunker.SegmentClause:
			add("重点关注权利义务分配")
		case chunker.SegmentHeader:
			add("关注其在合同整体结构中的地位")
		case chunker.SegmentSignature:
			add("核对签署要件是否完整")
		}
	}
	if c.Importance == chunker.ImportanceHigh {
		add("作为关键条款进行深度分析")
	}
	if c.HasOverlap {
		add("注意与上一片段的重叠内容，避免重复计分")
	}

	if len(advisories) == 0 {
		return "对本段进行全面审查"
	}
	return strings.Join(advisories, "；")
}

// chunkUserPrompt builds the user-turn content for a single chunk's
// analysis request.
func chunkUserPrompt(c chunker.Chunk, advisory string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "审查提示：%s\n\n", advisory)
	b.WriteString("请审查以下合同片段，并以如下 JSON 结构作答：\n")
	b.WriteString(`{"score": 0-100, "summary": "string", "risks": [{"level": "high|medium|low", "title": "string", "clause": "片段原文中的逐字引用，20-150字", "description": "风险说明，不少于100字", "legalBasis": "可选"}], "keyTerms": ["string"], "suggestions": ["string"]}`)
	b.WriteString("\n\n合同片段原文：\n")
	b.WriteString(c.Content)
	return b.String()
}

// consolidationUserPrompt builds the user-turn content for the reducer,
// parameterized by chunkCount.
func consolidationUserPrompt(chunkCount int, reducerInput string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "以下是对一份合同分 %d 个片段审查后的初步结果，请整合为完整的合同风险报告。\n\n", chunkCount)
	b.WriteString("请以如下 JSON 结构作答（dimensionScores 至少包含 8 个维度）：\n")
	b.WriteString(`{"score": 0-100, "riskLevel": "low|medium|high|critical", "summary": "string", ` +
		`"contractProfile": {"contractType": "string", "parties": ["string"], "term": "string", ` +
		`"subjectMatter": "string", "payment": "string", "deliveryAndAcceptance": "string", "disputeResolution": "string"}, ` +
		`"riskCategories": {"category": ["title"]}, "dimensionScores": [{"dimension": "string", "score": 0-100, ` +
		`"findings": ["string"], "recommendations": ["string"]}], "missingItems": [{"item": "string", ` +
		`"whyImportant": "string", "suggestion": "string"}], "complianceChecklist": [{"topic": "string", ` +
		`"status": "ok|risk|missing|na", "notes": "string"}], "risks": [{"level": "high|medium|low", "title": "string", ` +
		`"clause": "string", "description": "string", "legalBasis": "string", "category": "string"}], ` +
		`"overallSuggestions": ["string"], "keyFactsToConfirm": ["string"], "nextSteps": ["string"], ` +
		`"signRecommendation": "可签署|修改后签署|暂缓签署|建议拒绝|需人工复核"}`)
	b.WriteString("\n\n初步审查结果：\n")
	b.WriteString(reducerInput)
	return b.String()
}

// BuildRAGUserPrompt builds the user-turn content for a grounded Q&A call.
func BuildRAGUserPrompt(question, context string) string {
	var b strings.Builder
	b.WriteString("上下文：\n")
	b.WriteString(context)
	b.WriteString("\n\n问题：")
	b.WriteString(question)
	b.WriteString("\n\n请只根据上述上下文作答，并引用相关条款。")
	return b.String()
}
