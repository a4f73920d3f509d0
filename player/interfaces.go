package player

import "context"

// Analyzer produces a linguistic analysis and a translation for one lyric
// line. Implementations may be arbitrarily slow and may fail; callers must
// not assume ordering or latency bounds.
type Analyzer interface {
	Analyze(ctx context.Context, lineText string) (*Analysis, string, error)
}

// SongStore is the persistence collaborator. Save must be an upsert keyed
// by Song.ID. Implementations may become unavailable mid-session; once
// Available reports false, calls short-circuit and the engine keeps working
// in memory.
type SongStore interface {
	Save(ctx context.Context, song Song) error
	LoadAll(ctx context.Context) ([]Song, error)
	Delete(ctx context.Context, id string) error
	Available() bool
}

// Source is an opaque handle to a currently decodable audio resource. At
// most one source is live on the element at a time. Only the Broker creates
// and closes sources.
type Source interface {
	// Duration returns the decoded length in seconds, or 0 if unknown.
	Duration() float64
	// Close releases the underlying resource. Closing a source that the
	// element still references aborts any in-flight load, which is
	// exactly what the broker's grace delay exists to avoid.
	Close() error
}

// SourceFactory allocates a playable source from raw audio content.
// Allocation can fail (undecodable content, resource exhaustion); the
// broker reports such failures and keeps the previous source live.
type SourceFactory interface {
	NewSource(content []byte) (Source, error)
}

// Element is the playback element boundary. It mirrors the htmlish audio
// surface the engine was designed against: a coarse time-update stream, a
// duration that is unknown until metadata loads, and an async Play that may
// fail with a benign abort.
type Element interface {
	// CurrentTime returns the playback position in seconds.
	CurrentTime() float64
	// Seek moves the playback position. Values are clamped to
	// [0, Duration] by the implementation.
	Seek(seconds float64)
	// Duration returns the length of the attached source in seconds, or
	// 0 before metadata has loaded.
	Duration() float64
	// Play starts or resumes the clock. It may return ErrAborted when a
	// newer source swap interrupted the start; callers swallow that.
	Play() error
	// Pause stops the clock without moving the position.
	Pause()
	// Rate returns the playback rate multiplier.
	Rate() float64
	// SetRate changes the playback rate. Rate must be > 0.
	SetRate(rate float64)
	// SetSource attaches a source and reloads so metadata becomes
	// available. Attaching pauses the element.
	SetSource(src Source) error

	// Event subscriptions. Callbacks fire on the element's own cadence:
	// OnTimeUpdate is coarse (a few Hz), which is why the controller
	// runs its own smoothing ticker for display.
	OnMetadata(fn func(duration float64))
	OnTimeUpdate(fn func(seconds float64))
	OnEnded(fn func())
	OnError(fn func(err error))
}
