package analysis

import (
	"sort"
	"strings"

	"go.uber.org/zap"
)

// rawRisk mirrors the loosely-typed shape an LLM returns before validation.
type rawRisk struct {
	Level          string `json:"level"`
	Title          string `json:"title"`
	Clause         string `json:"clause"`
	Description    string `json:"description"`
	Recommendation string `json:"recommendation"`
	LegalBasis     string `json:"legalBasis"`
	Category       string `json:"category"`
}

// validateRisk applies the per-field validation/defaulting rules common to
// both the map phase and the reduce phase. It returns ok=false when the
// risk must be dropped outright (clause too short).
func validateRisk(r rawRisk, logger *zap.Logger) (Risk, bool) {
	clause := strings.TrimSpace(r.Clause)
	if len([]rune(clause)) < 10 {
		return Risk{}, false
	}

	description := strings.TrimSpace(r.Description)
	if len([]rune(description)) < 30 && logger != nil {
		logger.Warn("analysis.risk.short_description",
			zap.String("title", r.Title), zap.Int("length", len([]rune(description))))
	}

	level := strings.ToLower(strings.TrimSpace(r.Level))
	switch level {
	case LevelHigh, LevelMedium, LevelLow:
	default:
		level = LevelLow
	}

	category := strings.TrimSpace(r.Category)
	if category == "" {
		category = "other"
	}

	return Risk{
		Level:          level,
		Title:          strings.TrimSpace(r.Title),
		Clause:         clause,
		Description:    description,
		Recommendation: strings.TrimSpace(r.Recommendation),
		LegalBasis:     strings.TrimSpace(r.LegalBasis),
		Category:       category,
	}, true
}

var levelRank = map[string]int{LevelHigh: 0, LevelMedium: 1, LevelLow: 2}

// dedupAndSortRisks deduplicates by (title, clause[:50]) keeping the
// first-seen risk, then sorts high > medium > low, stable on first
// occurrence within a level.
func dedupAndSortRisks(risks []Risk) []Risk {
	seen := make(map[string]bool, len(risks))
	deduped := make([]Risk, 0, len(risks))
	for _, r := range risks {
		key := dedupKey(r)
		if seen[key] {
			continue
		}
		seen[key] = true
		deduped = append(deduped, r)
	}

	sort.SliceStable(deduped, func(i, j int) bool {
		return levelRank[deduped[i].Level] < levelRank[deduped[j].Level]
	})
	return deduped
}

func dedupKey(r Risk) string {
	clausePrefix := r.Clause
	if runes := []rune(clausePrefix); len(runes) > 50 {
		clausePrefix = string(runes[:50])
	}
	return r.Title + "\x00" + clausePrefix
}

// riskCategories groups risks by category, defaulting to "other", mapping
// to the distinct titles within that category.
func riskCategories(risks []Risk) map[string][]string {
	out := map[string][]string{}
	seenTitle := map[string]map[string]bool{}
	for _, r := range risks {
		category := r.Category
		if category == "" {
			category = "other"
		}
		if seenTitle[category] == nil {
			seenTitle[category] = map[string]bool{}
		}
		if seenTitle[category][r.Title] {
			continue
		}
		seenTitle[category][r.Title] = true
		out[category] = append(out[category], r.Title)
	}
	return out
}

// signRecommendationFromScore derives a sign_recommendation from the score
// band when the model omitted one.
func signRecommendationFromScore(score int) string {
	switch {
	case score >= 70:
		return "建议人工复核后签署"
	case score >= 50:
		return "建议修改后签署"
	default:
		return "建议暂缓签署"
	}
}

// riskLevelFromScore derives the report-level risk_level from the score
// band.
func riskLevelFromScore(score int) string {
	switch {
	case score >= 80:
		return RiskLevelLow
	case score >= 60:
		return RiskLevelMedium
	case score >= 40:
		return RiskLevelHigh
	default:
		return RiskLevelCritical
	}
}

func validRiskLevel(level string) bool {
	switch level {
	case RiskLevelLow, RiskLevelMedium, RiskLevelHigh, RiskLevelCritical:
		return true
	default:
		return false
	}
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
