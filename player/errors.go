package player

import "errors"

// Common errors for the playback engine.
var (
	// ErrEmptySource is returned when a zero-length audio payload is
	// handed to the broker.
	ErrEmptySource = errors.New("audio content is empty")

	// ErrNoSource is returned when playback is requested before any
	// audio source has been attached.
	ErrNoSource = errors.New("no audio source attached")

	// ErrAborted marks the benign condition where starting playback was
	// interrupted by a newer request. Callers swallow it.
	ErrAborted = errors.New("playback start aborted")

	// ErrUnsupportedFormat marks audio content the element cannot
	// decode. The controller attempts a one-shot recovery for songs with
	// a known canonical source.
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrLineOutOfRange is returned for line indices outside the loaded
	// sequence.
	ErrLineOutOfRange = errors.New("line index out of range")

	// ErrPipelineClosed is returned when analysis is requested after the
	// pipeline shut down.
	ErrPipelineClosed = errors.New("analysis pipeline is closed")

	// ErrBrokerClosed is returned when a source swap is requested after
	// broker teardown.
	ErrBrokerClosed = errors.New("resource broker is closed")
)

// IsBenign reports whether err is an expected, swallowable playback
// condition rather than a real failure.
func IsBenign(err error) bool {
	return errors.Is(err, ErrAborted)
}
