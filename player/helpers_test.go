package player

import (
	"context"
	"fmt"
	"sync"
)

// fakeSource is a closable stand-in for a decoded audio resource.
type fakeSource struct {
	dur    float64
	mu     sync.Mutex
	closed bool
}

func (s *fakeSource) Duration() float64 { return s.dur }

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeFactory counts allocations and can be made to fail.
type fakeFactory struct {
	mu   sync.Mutex
	dur  float64
	err  error
	made []*fakeSource
}

func (f *fakeFactory) NewSource(content []byte) (Source, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	src := &fakeSource{dur: f.dur}
	f.made = append(f.made, src)
	return src, nil
}

func (f *fakeFactory) created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.made)
}

// fakeElement is a scriptable playback element. Event emission is
// synchronous so tests control the interleaving exactly.
type fakeElement struct {
	mu       sync.Mutex
	t        float64
	duration float64
	rate     float64
	playing  bool
	src      Source
	playErr  error
	attachErr error

	onMetadata func(float64)
	onTime     func(float64)
	onEnded    func()
	onError    func(error)
}

func newFakeElement() *fakeElement {
	return &fakeElement{rate: 1.0}
}

func (e *fakeElement) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.t
}

func (e *fakeElement) Seek(seconds float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if seconds < 0 {
		seconds = 0
	}
	if e.duration > 0 && seconds > e.duration {
		seconds = e.duration
	}
	e.t = seconds
}

func (e *fakeElement) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration
}

func (e *fakeElement) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.playErr != nil {
		return e.playErr
	}
	if e.src == nil {
		return ErrNoSource
	}
	e.playing = true
	return nil
}

func (e *fakeElement) Pause() {
	e.mu.Lock()
	e.playing = false
	e.mu.Unlock()
}

func (e *fakeElement) Rate() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rate
}

func (e *fakeElement) SetRate(rate float64) {
	e.mu.Lock()
	e.rate = rate
	e.mu.Unlock()
}

func (e *fakeElement) SetSource(src Source) error {
	e.mu.Lock()
	if e.attachErr != nil {
		err := e.attachErr
		e.mu.Unlock()
		return err
	}
	e.playing = false
	e.src = src
	e.duration = src.Duration()
	e.t = 0
	fn := e.onMetadata
	d := e.duration
	e.mu.Unlock()
	// Metadata becomes available on reload.
	if fn != nil {
		fn(d)
	}
	return nil
}

func (e *fakeElement) OnMetadata(fn func(float64))  { e.onMetadata = fn }
func (e *fakeElement) OnTimeUpdate(fn func(float64)) { e.onTime = fn }
func (e *fakeElement) OnEnded(fn func())             { e.onEnded = fn }
func (e *fakeElement) OnError(fn func(error))        { e.onError = fn }

func (e *fakeElement) emitTime(t float64) {
	e.mu.Lock()
	e.t = t
	fn := e.onTime
	e.mu.Unlock()
	if fn != nil {
		fn(t)
	}
}

func (e *fakeElement) emitEnded() {
	e.mu.Lock()
	e.playing = false
	fn := e.onEnded
	e.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (e *fakeElement) emitError(err error) {
	e.mu.Lock()
	fn := e.onError
	e.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (e *fakeElement) isPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

// fakeAnalyzer records calls and can block until released.
type fakeAnalyzer struct {
	mu      sync.Mutex
	calls   []string
	err     error
	release chan struct{} // non-nil: Analyze blocks until closed
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, text string) (*Analysis, string, error) {
	a.mu.Lock()
	a.calls = append(a.calls, text)
	release := a.release
	err := a.err
	a.mu.Unlock()

	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, "", ctx.Err()
		}
	}
	if err != nil {
		return nil, "", err
	}
	return &Analysis{
		Links:       []Link{{FromWord: 0, ToWord: 1, Kind: LinkConsonantVowel}},
		Explanation: fmt.Sprintf("analysis of %q", text),
	}, "译文: " + text, nil
}

func (a *fakeAnalyzer) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

// memSaver is an in-memory SongStore recording every save.
type memSaver struct {
	mu    sync.Mutex
	saved []Song
	err   error
}

func (s *memSaver) Save(ctx context.Context, song Song) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.saved = append(s.saved, song)
	return nil
}

func (s *memSaver) LoadAll(ctx context.Context) ([]Song, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Song, len(s.saved))
	copy(out, s.saved)
	return out, nil
}

func (s *memSaver) Delete(ctx context.Context, id string) error { return nil }
func (s *memSaver) Available() bool                             { return true }

func (s *memSaver) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

func (s *memSaver) lastSave() (Song, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.saved) == 0 {
		return Song{}, false
	}
	return s.saved[len(s.saved)-1], true
}

// testLines builds a sorted sequence with the given times.
func testLines(times ...float64) []TimedLine {
	lines := make([]TimedLine, len(times))
	for i, t := range times {
		lines[i] = TimedLine{Time: t, Text: fmt.Sprintf("line %d words here", i)}
	}
	return lines
}
