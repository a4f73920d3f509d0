package player

import (
	"sort"
	"sync"
)

// LineStore owns the authoritative lyric sequence for the current session.
// Every asynchronous continuation that wants to mutate a line goes through
// Merge/SetTranslation, which copy the *latest* snapshot immediately before
// writing — never a snapshot captured before an asynchronous gap — so two
// in-flight completions can never clobber each other's lines.
type LineStore struct {
	mu    sync.RWMutex
	lines []TimedLine
}

// NewLineStore creates a store over the given lines, sorting them ascending
// by time. Indices into the sorted sequence are the stable line identities
// for the rest of the engine.
func NewLineStore(lines []TimedLine) *LineStore {
	s := &LineStore{}
	s.Replace(lines)
	return s
}

// Replace swaps in a whole new lyric sequence, as happens when a new song
// loads. The input is copied and sorted by time.
func (s *LineStore) Replace(lines []TimedLine) {
	sorted := make([]TimedLine, len(lines))
	copy(sorted, lines)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Time < sorted[j].Time
	})
	s.mu.Lock()
	s.lines = sorted
	s.mu.Unlock()
}

// Snapshot returns a copy of the current sequence.
func (s *LineStore) Snapshot() []TimedLine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TimedLine, len(s.lines))
	copy(out, s.lines)
	return out
}

// Len returns the number of lines.
func (s *LineStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lines)
}

// Line returns the line at index.
func (s *LineStore) Line(index int) (TimedLine, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.lines) {
		return TimedLine{}, false
	}
	return s.lines[index], true
}

// Has reports whether the line at index already carries a complete
// analysis.
func (s *LineStore) Has(index int) bool {
	line, ok := s.Line(index)
	return ok && line.Analyzed()
}

// Get returns the analysis for the line at index, or nil.
func (s *LineStore) Get(index int) *Analysis {
	line, ok := s.Line(index)
	if !ok {
		return nil
	}
	return line.Analysis
}

// Merge attaches a complete analysis and translation to the line at index,
// copying the latest sequence and replacing only that line. It returns the
// new snapshot, or nil if the index is out of range.
func (s *LineStore) Merge(index int, a *Analysis, translation string) []TimedLine {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.lines) {
		return nil
	}
	next := make([]TimedLine, len(s.lines))
	copy(next, s.lines)
	next[index].Analysis = a
	next[index].Translation = translation
	s.lines = next
	out := make([]TimedLine, len(next))
	copy(out, next)
	return out
}

// SetTranslation updates only the translation of the line at index, through
// the same latest-snapshot discipline as Merge.
func (s *LineStore) SetTranslation(index int, translation string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.lines) {
		return false
	}
	next := make([]TimedLine, len(s.lines))
	copy(next, s.lines)
	next[index].Translation = translation
	s.lines = next
	return true
}

// AnalyzedCount returns how many lines carry an analysis.
func (s *LineStore) AnalyzedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, l := range s.lines {
		if l.Analyzed() {
			n++
		}
	}
	return n
}
