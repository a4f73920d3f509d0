// Package player implements the playback-synchronization and
// analysis-caching engine behind SingLingo: mapping the audio clock to the
// active lyric line, bounded A/B looping, the asynchronous per-line analysis
// pipeline, and the lifecycle of the attached audio source.
package player

import "time"

// LinkKind classifies how one word links into the next.
type LinkKind string

const (
	LinkConsonantVowel     LinkKind = "consonant-vowel"
	LinkConsonantConsonant LinkKind = "consonant-consonant"
	LinkVowelVowel         LinkKind = "vowel-vowel"
	LinkVowelConsonant     LinkKind = "vowel-consonant"
)

// Link joins a word to the one that follows it.
type Link struct {
	FromWord int      `json:"fromWordIndex"`
	ToWord   int      `json:"toWordIndex"`
	Kind     LinkKind `json:"type"`
}

// Mark points at a single character within a word of a line. Word and
// character indices address the line's whitespace-split tokens; marks never
// reference other lines.
type Mark struct {
	Word int `json:"wordIndex"`
	Char int `json:"charIndex"`
}

// Analysis is a complete linguistic analysis of one lyric line. A line
// carries either no Analysis or a complete one; partial results are never
// stored.
type Analysis struct {
	Links       []Link `json:"links"`
	Stress      []Mark `json:"stress"`
	Elisions    []Mark `json:"elisions"`
	Explanation string `json:"explanation"`
}

// Empty reports whether the analysis carries no marks at all. A seed or a
// re-run may overwrite an empty analysis but never a populated one.
func (a *Analysis) Empty() bool {
	return a == nil || (len(a.Links) == 0 && len(a.Stress) == 0 && len(a.Elisions) == 0)
}

// TimedLine is one timestamped unit of lyric text. Lines are identified by
// their index in the song's sorted sequence and are never reordered after
// load.
type TimedLine struct {
	Time        float64   `json:"time"`
	Text        string    `json:"text"`
	Translation string    `json:"translation,omitempty"`
	Analysis    *Analysis `json:"analysis,omitempty"`
}

// Analyzed reports whether the line already has a complete analysis.
func (l TimedLine) Analyzed() bool {
	return l.Analysis != nil
}

// LoopWindow is a bounded [Start, End) time range over which playback
// repeats.
type LoopWindow struct {
	Start float64
	End   float64
}

// PlaybackState is the externally observable playback position and mode.
type PlaybackState struct {
	Playing     bool
	CurrentTime float64
	Duration    float64
	Rate        float64
	Loop        *LoopWindow
}

// Song is a saved song: audio content plus the full lyric sequence. Every
// auto-save carries the entire current sequence so the persisted form is
// always a complete, consistent snapshot.
type Song struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Audio     []byte      `json:"-"`
	Lyrics    []TimedLine `json:"lyrics"`
	CreatedAt time.Time   `json:"createdAt"`
}
