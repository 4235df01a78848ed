package chunker

import (
	"strings"

	"legal-contract-review/internal/textmetrics"
)

// ChunkText segments text into structurally-aware, token-budgeted Chunks. The
// result is deterministic for identical input and configuration.
func ChunkText(text string, cfg Config) []Chunk {
	cfg = ResolveConfig(cfg)
	lang := textmetrics.DetectLanguage(text)
	segments := buildSegments(text, lang)
	units := flatten(segments, cfg, lang)
	return packUnits(units, cfg, lang)
}

// buildSegments walks the source line by line. A line matching a structural
// pattern starts a new segment; non-structural lines extend the current
// segment; blank lines insert a newline into the current segment.
func buildSegments(text, lang string) []segment {
	lines := strings.Split(text, "\n")
	var segments []segment
	var current *segment

	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			if current != nil {
				current.content += "\n"
			}
			continue
		}

		segType, importance, matched := classify(line, lang)
		if matched {
			if current != nil {
				segments = append(segments, *current)
			}
			current = &segment{content: line, types: []SegmentType{segType}, importance: importance}
			continue
		}

		if current == nil {
			current = &segment{content: line, types: []SegmentType{SegmentContent}, importance: ImportanceNormal}
			continue
		}
		current.content += "\n" + line
	}

	if current != nil {
		segments = append(segments, *current)
	}
	return segments
}

// unit is the finest packable piece fed to the accumulator: either a whole
// segment (the common case) or one sentence of a segment that, as a whole,
// exceeded the token budget.
type unit struct {
	content    string
	types      []SegmentType
	importance Importance
	fromSplit  bool
}

// flatten expands any segment whose estimated tokens exceed
// cfg.MaxChunkTokens into sentence-level units so the packer can greedily
// fill sub-chunks up to the budget; all other segments pass through whole.
func flatten(segments []segment, cfg Config, lang string) []unit {
	var units []unit
	for _, seg := range segments {
		if textmetrics.EstimateTokens(seg.content) <= cfg.MaxChunkTokens {
			units = append(units, unit{content: seg.content, types: seg.types, importance: seg.importance})
			continue
		}
		sentences := splitSentences(seg.content, lang)
		if len(sentences) == 0 {
			sentences = []string{seg.content}
		}
		for _, sentence := range sentences {
			units = append(units, unit{content: sentence, types: seg.types, importance: seg.importance, fromSplit: true})
		}
	}
	return units
}

// packUnits greedily packs units into chunks bounded by cfg.MaxChunkTokens,
// stitching an overlap prefix across every flushed-chunk boundary.
func packUnits(units []unit, cfg Config, lang string) []Chunk {
	var chunks []Chunk
	var acc accumulator
	accHasSplit := false

	flush := func() {
		if acc.empty() {
			return
		}
		chunks = append(chunks, Chunk{
			Content:       acc.text(),
			TokenEstimate: acc.tokenEstimate,
			Segments:      acc.types,
			Importance:    normalizeImportance(acc.importance),
			HasOverlap:    acc.hasOverlap,
		})
		acc.reset()
		accHasSplit = false
	}

	appendUnit := func(u unit) {
		if acc.empty() {
			acc.content = []string{u.content}
		} else {
			acc.content = append(acc.content, u.content)
		}
		acc.tokenEstimate = textmetrics.EstimateTokens(acc.text())
		for _, t := range u.types {
			acc.addSegmentType(t)
		}
		acc.promoteImportance(u.importance)
		if u.fromSplit {
			accHasSplit = true
		}
	}

	for _, u := range units {
		if acc.empty() {
			appendUnit(u)
			continue
		}

		trial := textmetrics.EstimateTokens(acc.text() + "\n\n" + u.content)
		if trial <= cfg.MaxChunkTokens {
			appendUnit(u)
			continue
		}

		// Doesn't fit: flush, seed the new chunk with an overlap prefix from
		// the tail of what was just flushed, then start the new unit.
		prevText := acc.text()
		flush()
		overlap := extractOverlap(prevText, cfg, lang)
		if overlap != "" && textmetrics.EstimateTokens(OverlapMarker+overlap+"\n\n"+u.content) <= cfg.MaxChunkTokens {
			acc.content = []string{OverlapMarker + overlap}
			acc.tokenEstimate = textmetrics.EstimateTokens(acc.text())
			acc.hasOverlap = true
		}
		appendUnit(u)
	}

	// Final flush: a residual holding sentences of a split oversize segment
	// is emitted as its own sub-chunk; any other residual below
	// MinChunkTokens is merged into the prior chunk when one exists,
	// otherwise emitted as-is.
	if !acc.empty() {
		if acc.tokenEstimate >= cfg.MinChunkTokens || len(chunks) == 0 || accHasSplit {
			flush()
		} else {
			mergeIntoLast(&chunks, acc)
		}
	}

	for i := range chunks {
		chunks[i].ChunkIndex = i
	}
	return chunks
}

func mergeIntoLast(chunks *[]Chunk, acc accumulator) {
	last := &(*chunks)[len(*chunks)-1]
	last.Content = last.Content + "\n\n" + acc.text()
	last.TokenEstimate = textmetrics.EstimateTokens(last.Content)
	for _, t := range acc.types {
		found := false
		for _, existing := range last.Segments {
			if existing == t {
				found = true
				break
			}
		}
		if !found {
			last.Segments = append(last.Segments, t)
		}
	}
	if acc.importance == ImportanceHigh {
		last.Importance = ImportanceHigh
	}
}

func normalizeImportance(i Importance) Importance {
	if i == "" {
		return ImportanceNormal
	}
	return i
}

// extractOverlap pulls sentences from the tail of prevText, working
// backwards, until the accumulated tail reaches cfg.OverlapTokens.
func extractOverlap(prevText string, cfg Config, lang string) string {
	sentences := splitSentences(prevText, lang)
	if len(sentences) == 0 {
		return ""
	}

	var tail string
	tokens := 0
	for i := len(sentences) - 1; i >= 0 && tokens < cfg.OverlapTokens; i-- {
		tail = sentences[i] + tail
		tokens = textmetrics.EstimateTokens(tail)
	}
	return tail
}
