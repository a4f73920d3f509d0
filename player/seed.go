package player

import (
	"regexp"
	"strings"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// SeedEntry is one pre-computed analysis, keyed externally by normalized
// line text. Seeds are a swappable initial cache population, not part of
// the pipeline: the engine never consults them on its own.
type SeedEntry struct {
	Links       []Link `json:"links"`
	Stress      []Mark `json:"stress"`
	Elisions    []Mark `json:"elisions"`
	Explanation string `json:"explanation"`
	Translation string `json:"translation"`
}

// NormalizeLineText collapses runs of whitespace, the key form used to
// match seed entries against lines.
func NormalizeLineText(text string) string {
	return whitespaceRe.ReplaceAllString(strings.TrimSpace(text), " ")
}

// ApplySeed backfills analyses from seed into lines, in place. A seed entry
// applies when the line has no analysis, an empty one, or no translation.
// Returns the number of lines changed.
func ApplySeed(lines []TimedLine, seed map[string]SeedEntry) int {
	changed := 0
	for i := range lines {
		entry, ok := seed[NormalizeLineText(lines[i].Text)]
		if !ok {
			continue
		}
		if lines[i].Analysis.Empty() || lines[i].Translation == "" {
			lines[i].Analysis = &Analysis{
				Links:       entry.Links,
				Stress:      entry.Stress,
				Elisions:    entry.Elisions,
				Explanation: entry.Explanation,
			}
			lines[i].Translation = entry.Translation
			changed++
		}
	}
	return changed
}

// ExportSeed produces the inverse of ApplySeed: a seed map of every
// analyzed line, keyed by normalized text.
func ExportSeed(lines []TimedLine) map[string]SeedEntry {
	out := make(map[string]SeedEntry)
	for _, l := range lines {
		if !l.Analyzed() {
			continue
		}
		out[NormalizeLineText(l.Text)] = SeedEntry{
			Links:       l.Analysis.Links,
			Stress:      l.Analysis.Stress,
			Elisions:    l.Analysis.Elisions,
			Explanation: l.Analysis.Explanation,
			Translation: l.Translation,
		}
	}
	return out
}
