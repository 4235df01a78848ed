package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"legal-contract-review/internal/llmclient"
	"legal-contract-review/internal/metricsreg"
)

const (
	reducerCallTimeout   = 90 * time.Second
	reducerMaxInputChars = 8000
	reducerMaxRisks      = 80
)

// rawDimensionScore/rawMissingItem/rawComplianceItem/rawContractProfile
// mirror the loosely-typed consolidation-prompt response shape before
// validation.
type rawDimensionScore struct {
	Dimension       string   `json:"dimension"`
	Score           int      `json:"score"`
	Findings        []string `json:"findings"`
	Recommendations []string `json:"recommendations"`
}

type rawMissingItem struct {
	Item         string `json:"item"`
	WhyImportant string `json:"whyImportant"`
	Suggestion   string `json:"suggestion"`
}

type rawComplianceItem struct {
	Topic  string `json:"topic"`
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

type rawContractProfile struct {
	ContractType          string   `json:"contractType"`
	Parties               []string `json:"parties"`
	Term                  string   `json:"term"`
	SubjectMatter         string   `json:"subjectMatter"`
	Payment               string   `json:"payment"`
	DeliveryAndAcceptance string   `json:"deliveryAndAcceptance"`
	DisputeResolution     string   `json:"disputeResolution"`
}

type rawReport struct {
	Score               int                 `json:"score"`
	RiskLevel           string              `json:"riskLevel"`
	Summary             string              `json:"summary"`
	ContractProfile     rawContractProfile  `json:"contractProfile"`
	RiskCategories      map[string][]string `json:"riskCategories"`
	DimensionScores     []rawDimensionScore `json:"dimensionScores"`
	MissingItems        []rawMissingItem    `json:"missingItems"`
	ComplianceChecklist []rawComplianceItem `json:"complianceChecklist"`
	Risks               []rawRisk           `json:"risks"`
	OverallSuggestions  []string            `json:"overallSuggestions"`
	KeyFactsToConfirm   []string            `json:"keyFactsToConfirm"`
	NextSteps           []string            `json:"nextSteps"`
	SignRecommendation  string              `json:"signRecommendation"`
}

// reduce consolidates per-chunk outcomes into a Report. It returns
// degraded=true when the reducer call itself failed and the purely
// aggregated fallback path ran instead; callers never see the failure as
// an error, only as reduced fidelity.
func (o *Orchestrator) reduce(ctx context.Context, outcomes []ChunkOutcome) (Report, bool) {
	chunkRisks := flattenChunkRisks(outcomes)

	callCtx, cancel := context.WithTimeout(ctx, reducerCallTimeout)
	defer cancel()

	result, err := o.Chat.Chat(callCtx, llmclient.ChatRequest{
		System:          consolidationSystemPrompt,
		User:            consolidationUserPrompt(len(outcomes), buildReducerInput(outcomes, chunkRisks)),
		Temperature:     0.3,
		MaxAttempts:     2,
		MaxContentChars: reducerMaxInputChars,
	})
	if err != nil || result.Parsed == nil {
		o.log().Warn("analysis.reduce.failed", zap.Error(err))
		metricsreg.ReducerDegradations.Inc()
		return o.degradedReport(outcomes, chunkRisks), true
	}

	var raw rawReport
	if err := decodeInto(result.Parsed, &raw); err != nil {
		o.log().Warn("analysis.reduce.decode_failed", zap.Error(err))
		metricsreg.ReducerDegradations.Inc()
		return o.degradedReport(outcomes, chunkRisks), true
	}

	report := normalizeReducedReport(raw, chunkRisks, o.log())
	return report, false
}

// flattenChunkRisks collects every validated risk across all chunk outcomes
// in chunk order (placeholders contribute none).
func flattenChunkRisks(outcomes []ChunkOutcome) []Risk {
	var risks []Risk
	for _, o := range outcomes {
		risks = append(risks, o.Risks...)
	}
	return risks
}

// buildReducerInput renders the reducer's user-turn payload: per-chunk
// summaries, up to 80 flattened risks (each truncated to a single line),
// and flattened suggestions, truncated overall to reducerMaxInputChars.
func buildReducerInput(outcomes []ChunkOutcome, risks []Risk) string {
	var b strings.Builder

	b.WriteString("片段摘要：\n")
	for i, o := range outcomes {
		fmt.Fprintf(&b, "片段%d：%s\n", i+1, o.Summary)
	}

	b.WriteString("\n风险列表：\n")
	limit := len(risks)
	if limit > reducerMaxRisks {
		limit = reducerMaxRisks
	}
	for _, r := range risks[:limit] {
		fmt.Fprintf(&b, "- [%s] %s | 条款：%s | 说明：%s | 依据：%s\n",
			r.Level, r.Title, truncateRunes(r.Clause, 120), truncateRunes(r.Description, 200), r.LegalBasis)
	}

	b.WriteString("\n建议：\n")
	for _, o := range outcomes {
		for _, s := range o.Suggestions {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}

	out := b.String()
	if len([]rune(out)) > reducerMaxInputChars {
		runes := []rune(out)
		out = string(runes[:reducerMaxInputChars])
	}
	return out
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// normalizeReducedReport applies the consolidation prompt's post-processing
// rules: clamp score, validate risk_level (deriving from score if invalid),
// fall back to the chunk-level risk union when the model's own risks are
// empty after validation, populate risk_categories, and populate
// sign_recommendation from the score band when missing.
func normalizeReducedReport(raw rawReport, chunkRisks []Risk, logger *zap.Logger) Report {
	score := clampScore(raw.Score)

	riskLevel := strings.ToLower(strings.TrimSpace(raw.RiskLevel))
	if !validRiskLevel(riskLevel) {
		riskLevel = riskLevelFromScore(score)
	}

	risks := make([]Risk, 0, len(raw.Risks))
	for _, r := range raw.Risks {
		if risk, ok := validateRisk(r, logger); ok {
			risks = append(risks, risk)
		}
	}
	if len(risks) == 0 {
		risks = append(risks, chunkRisks...)
	}
	risks = dedupAndSortRisks(risks)

	categories := raw.RiskCategories
	if len(categories) == 0 {
		categories = riskCategories(risks)
	}

	signRecommendation := strings.TrimSpace(raw.SignRecommendation)
	if signRecommendation == "" {
		signRecommendation = signRecommendationFromScore(score)
	}

	profile := ContractProfile{
		ContractType:          orUnspecified(raw.ContractProfile.ContractType),
		Parties:               raw.ContractProfile.Parties,
		Term:                  orUnspecified(raw.ContractProfile.Term),
		SubjectMatter:         orUnspecified(raw.ContractProfile.SubjectMatter),
		Payment:               orUnspecified(raw.ContractProfile.Payment),
		DeliveryAndAcceptance: orUnspecified(raw.ContractProfile.DeliveryAndAcceptance),
		DisputeResolution:     orUnspecified(raw.ContractProfile.DisputeResolution),
	}

	dimensions := make([]DimensionScore, 0, len(raw.DimensionScores))
	for _, d := range raw.DimensionScores {
		dimensions = append(dimensions, DimensionScore{
			Dimension:       d.Dimension,
			Score:           clampScore(d.Score),
			Findings:        d.Findings,
			Recommendations: d.Recommendations,
		})
	}

	missing := make([]MissingItem, 0, len(raw.MissingItems))
	for _, m := range raw.MissingItems {
		missing = append(missing, MissingItem{Item: m.Item, WhyImportant: m.WhyImportant, Suggestion: m.Suggestion})
	}

	compliance := make([]ComplianceItem, 0, len(raw.ComplianceChecklist))
	for _, c := range raw.ComplianceChecklist {
		status := strings.ToLower(strings.TrimSpace(c.Status))
		switch status {
		case ComplianceOK, ComplianceRisk, ComplianceMissing, ComplianceNA:
		default:
			status = ComplianceNA
		}
		compliance = append(compliance, ComplianceItem{Topic: c.Topic, Status: status, Notes: c.Notes})
	}

	return Report{
		Score:               score,
		RiskLevel:           riskLevel,
		Summary:             raw.Summary,
		ContractProfile:     profile,
		RiskCategories:      categories,
		DimensionScores:     dimensions,
		MissingItems:        missing,
		ComplianceChecklist: compliance,
		Risks:               risks,
		OverallSuggestions:  raw.OverallSuggestions,
		KeyFactsToConfirm:   raw.KeyFactsToConfirm,
		NextSteps:           raw.NextSteps,
		SignRecommendation:  signRecommendation,
	}
}

func orUnspecified(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return unspecified
	}
	return s
}

// degradedReport builds a purely aggregated report from chunk outcomes when
// the reducer call itself failed or returned unparseable JSON. The summary
// cites the chunk count and risk count and concatenates up to three valid
// chunk summaries so the wording signals the reduced fidelity.
func (o *Orchestrator) degradedReport(outcomes []ChunkOutcome, chunkRisks []Risk) Report {
	risks := dedupAndSortRisks(append([]Risk(nil), chunkRisks...))

	var successScores []int
	var summaries []string
	for _, out := range outcomes {
		if out.Placeholder {
			continue
		}
		successScores = append(successScores, out.Score)
		if s := strings.TrimSpace(out.Summary); s != "" {
			summaries = append(summaries, s)
		}
	}

	score := 0
	if len(successScores) > 0 {
		sum := 0
		for _, s := range successScores {
			sum += s
		}
		score = sum / len(successScores)
	}
	score = clampScore(score)

	quoted := summaries
	if len(quoted) > 3 {
		quoted = quoted[:3]
	}
	summary := fmt.Sprintf("本次审查共分析 %d 个片段，合并识别出 %d 项风险（整合步骤降级为片段聚合）。",
		len(outcomes), len(risks))
	if len(quoted) > 0 {
		summary += " " + strings.Join(quoted, "；")
	}

	return Report{
		Score:               score,
		RiskLevel:           riskLevelFromScore(score),
		Summary:             summary,
		ContractProfile:     NewUnspecifiedContractProfile(),
		RiskCategories:      riskCategories(risks),
		DimensionScores:     nil,
		MissingItems:        nil,
		ComplianceChecklist: nil,
		Risks:               risks,
		OverallSuggestions:  aggregateSuggestions(outcomes),
		KeyFactsToConfirm:   nil,
		NextSteps:           nil,
		SignRecommendation:  signRecommendationFromScore(score),
	}
}

func aggregateSuggestions(outcomes []ChunkOutcome) []string {
	seen := map[string]bool{}
	var out []string
	for _, o := range outcomes {
		for _, s := range o.Suggestions {
			s = strings.TrimSpace(s)
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
