package analysis

import (
	"strconv"
	"strings"
)

// Annotate anchors each risk's quoted clause back to the offset in the
// source text where it begins, skipping risks whose clause does not occur
// verbatim (the model paraphrased despite being asked to quote).
func Annotate(sourceText string, risks []Risk) []Annotation {
	var out []Annotation
	for i, r := range risks {
		pos := strings.Index(sourceText, r.Clause)
		if pos < 0 {
			continue
		}
		out = append(out, Annotation{
			ID:       "ann-" + strconv.Itoa(i+1),
			Clause:   r.Clause,
			Risk:     r,
			Position: pos,
		})
	}
	return out
}
