package analysis

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"legal-contract-review/internal/chunker"
	"legal-contract-review/internal/llmclient"
)

// scriptedChat is a hand-written ChatClient fake: each call is routed to a
// responder keyed by whether the user prompt looks like a chunk prompt or
// the consolidation prompt, so tests can script per-chunk and reducer
// behavior independently without a real network. chunkFn is keyed by the
// chunk's own content (not call order, since the map phase runs chunks
// concurrently and call order is not deterministic).
type scriptedChat struct {
	mu          sync.Mutex
	reduceCalls int
	chunkFn     func(chunkContent string) (map[string]any, error)
	reduceFn    func() (map[string]any, error)
}

func (s *scriptedChat) Chat(_ context.Context, req llmclient.ChatRequest) (llmclient.ChatResult, error) {
	if strings.Contains(req.System, "整合") {
		s.mu.Lock()
		s.reduceCalls++
		s.mu.Unlock()
		obj, err := s.reduceFn()
		if err != nil {
			return llmclient.ChatResult{}, err
		}
		return llmclient.ChatResult{Parsed: obj}, nil
	}

	obj, err := s.chunkFn(req.User)
	if err != nil {
		return llmclient.ChatResult{}, err
	}
	return llmclient.ChatResult{Parsed: obj}, nil
}

func chunkSuccess(score int, risk bool) map[string]any {
	out := map[string]any{
		"score":       score,
		"summary":     "片段分析正常完成",
		"keyTerms":    []any{},
		"suggestions": []any{},
	}
	if risk {
		out["risks"] = []any{
			map[string]any{
				"level":       "high",
				"title":       "违约责任过重",
				"clause":      "如一方违反本协议约定应支付高额违约金",
				"description": strings.Repeat("该条款约定的违约金比例明显过高，存在显著的法律与商业风险。", 2),
				"legalBasis":  "合同法",
			},
		}
	} else {
		out["risks"] = []any{}
	}
	return out
}

func threeChunks() []chunker.Chunk {
	return []chunker.Chunk{
		{Content: "第一条 保密义务", ChunkIndex: 0},
		{Content: "第二条 违约责任", ChunkIndex: 1},
		{Content: "第三条 争议解决", ChunkIndex: 2},
	}
}

// With the second of three chunks always failing, the placeholder keeps
// reduction from starving, the final risks still include the other chunks'
// contributions, and (with the reducer also disabled) the aggregate score
// is the mean of the two successful chunk scores.
func TestMapFallbackOnChunkError(t *testing.T) {
	chat := &scriptedChat{
		chunkFn: func(chunkContent string) (map[string]any, error) {
			if strings.Contains(chunkContent, "第二条") {
				return nil, errors.New("simulated upstream failure")
			}
			return chunkSuccess(80, true), nil
		},
		reduceFn: func() (map[string]any, error) {
			return nil, errors.New("reducer disabled for this test")
		},
	}

	o := New(chat, nil, chunker.Config{}, nil)
	outcomes := o.mapChunks(context.Background(), threeChunks())
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	if !outcomes[1].Placeholder {
		t.Fatalf("expected chunk 1 (index 1) to be a placeholder after its call failed")
	}
	if outcomes[0].Placeholder || outcomes[2].Placeholder {
		t.Fatalf("expected chunks 0 and 2 to succeed")
	}

	report, degraded := o.reduce(context.Background(), outcomes)
	if !degraded {
		t.Fatalf("expected reducer to degrade")
	}
	if len(report.Risks) == 0 {
		t.Fatalf("expected risks from successful chunks 0 and 2 to survive")
	}
	if strings.Contains(report.Summary, "分析失败") || strings.Contains(report.Summary, "网络连接") {
		t.Fatalf("summary must not mention failure/network strings, got %q", report.Summary)
	}
	wantScore := (80 + 80) / 2
	if report.Score != wantScore {
		t.Fatalf("expected degraded score to be mean of successful chunk scores (%d), got %d", wantScore, report.Score)
	}
}

// When the reducer call raises, the degraded aggregate still has a
// non-empty risks list, a score-derived risk_level, a score-band
// sign_recommendation, and populated risk_categories grouped from the
// surviving risks.
func TestReducerDegradation(t *testing.T) {
	chat := &scriptedChat{
		chunkFn: func(chunkContent string) (map[string]any, error) {
			return chunkSuccess(55, true), nil
		},
		reduceFn: func() (map[string]any, error) {
			return nil, errors.New("reducer always fails in this test")
		},
	}

	o := New(chat, nil, chunker.Config{}, nil)
	outcomes := o.mapChunks(context.Background(), threeChunks())
	report, degraded := o.reduce(context.Background(), outcomes)

	if !degraded {
		t.Fatalf("expected degraded=true when reducer raises")
	}
	if len(report.Risks) == 0 {
		t.Fatalf("expected non-empty risks when chunks produced valid risks")
	}
	if report.RiskLevel != riskLevelFromScore(report.Score) {
		t.Fatalf("risk_level %q inconsistent with score band for score %d", report.RiskLevel, report.Score)
	}
	if report.SignRecommendation != signRecommendationFromScore(report.Score) {
		t.Fatalf("sign_recommendation %q does not match score band mapping", report.SignRecommendation)
	}
	if len(report.RiskCategories) == 0 {
		t.Fatalf("expected risk_categories to be populated by grouping")
	}
}

// A risk whose clause is under 10 characters is dropped during validation.
func TestRiskValidationRejectsShortClause(t *testing.T) {
	raw := rawRisk{
		Level:       "high",
		Title:       "测试风险",
		Clause:      "太短",
		Description: strings.Repeat("足够长的说明文字。", 5),
	}
	_, ok := validateRisk(raw, nil)
	if ok {
		t.Fatalf("expected risk with clause shorter than 10 runes to be rejected")
	}
}

func TestValidateRiskDefaultsAndCoercion(t *testing.T) {
	raw := rawRisk{
		Level:       "extreme",
		Title:       "未分类风险",
		Clause:      "这是一个足够长的条款原文引用内容",
		Description: "短说明",
	}
	risk, ok := validateRisk(raw, nil)
	if !ok {
		t.Fatalf("expected risk with valid-length clause to be kept even with a short description")
	}
	if risk.Level != LevelLow {
		t.Fatalf("expected invalid level to coerce to low, got %q", risk.Level)
	}
	if risk.Category != "other" {
		t.Fatalf("expected empty category to default to other, got %q", risk.Category)
	}
}

func TestAnalyzeEmptyTextReturnsValidReport(t *testing.T) {
	chat := &scriptedChat{}
	o := New(chat, nil, chunker.Config{}, nil)
	report, err := o.Analyze(context.Background(), "doc-1", "", nil)
	if err != nil {
		t.Fatalf("expected no error on empty text, got %v", err)
	}
	if report.RiskLevel == "" || report.SignRecommendation == "" {
		t.Fatalf("expected a structurally valid report even for empty input, got %+v", report)
	}
}

func TestAnnotatePositionsAnchorClauses(t *testing.T) {
	source := "第一条 保密义务。如一方违反本协议约定应支付高额违约金。第二条 争议解决。"
	risks := []Risk{
		{Level: LevelHigh, Title: "违约金过高", Clause: "如一方违反本协议约定应支付高额违约金"},
		{Level: LevelLow, Title: "缺失条款", Clause: "本条款并不存在于原文之中"},
	}
	annotations := Annotate(source, risks)
	if len(annotations) != 1 {
		t.Fatalf("expected only the verbatim clause to annotate, got %d", len(annotations))
	}
	a := annotations[0]
	if source[a.Position:a.Position+len(a.Clause)] != a.Clause {
		t.Fatalf("annotation position does not anchor its clause")
	}
}

func TestDedupAndSortRisksOrdersByLevelThenFirstOccurrence(t *testing.T) {
	risks := []Risk{
		{Level: LevelLow, Title: "A", Clause: "条款一条款一条款一"},
		{Level: LevelHigh, Title: "B", Clause: "条款二条款二条款二"},
		{Level: LevelMedium, Title: "C", Clause: "条款三条款三条款三"},
		{Level: LevelHigh, Title: "B", Clause: "条款二条款二条款二"}, // duplicate, same (title, clause[:50])
	}
	got := dedupAndSortRisks(risks)
	if len(got) != 3 {
		t.Fatalf("expected duplicate to be removed, got %d risks", len(got))
	}
	if got[0].Level != LevelHigh || got[1].Level != LevelMedium || got[2].Level != LevelLow {
		t.Fatalf("expected high > medium > low ordering, got %v, %v, %v", got[0].Level, got[1].Level, got[2].Level)
	}
}
