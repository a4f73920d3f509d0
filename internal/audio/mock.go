package audio

import (
	"sync"
	"time"

	"github.com/dgnsrekt/singlingo/player"
)

// MockElement simulates playback against the wall clock without touching
// an audio device. It accepts any source and honors rate and seeking, so
// the whole session works headless.
type MockElement struct {
	mu      sync.Mutex
	src     player.Source
	base    float64 // position when the clock last started or moved
	started time.Time
	playing bool
	rate    float64
	closed  bool
	done    chan struct{}

	onMetadata func(float64)
	onTime     func(float64)
	onEnded    func()
	onError    func(error)
}

// NewMockElement creates a silent element.
func NewMockElement() *MockElement {
	m := &MockElement{rate: 1.0, done: make(chan struct{})}
	go m.tickLoop()
	return m
}

func (m *MockElement) OnMetadata(fn func(float64))   { m.onMetadata = fn }
func (m *MockElement) OnTimeUpdate(fn func(float64)) { m.onTime = fn }
func (m *MockElement) OnEnded(fn func())             { m.onEnded = fn }
func (m *MockElement) OnError(fn func(error))        { m.onError = fn }

func (m *MockElement) SetSource(src player.Source) error {
	m.mu.Lock()
	m.src = src
	m.base = 0
	m.playing = false
	fn := m.onMetadata
	d := src.Duration()
	m.mu.Unlock()
	if fn != nil {
		fn(d)
	}
	return nil
}

func (m *MockElement) CurrentTime() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.positionLocked()
}

func (m *MockElement) positionLocked() float64 {
	pos := m.base
	if m.playing {
		pos += time.Since(m.started).Seconds() * m.rate
	}
	if m.src != nil {
		if d := m.src.Duration(); pos > d {
			pos = d
		}
	}
	return pos
}

func (m *MockElement) Seek(seconds float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if seconds < 0 {
		seconds = 0
	}
	if m.src != nil {
		if d := m.src.Duration(); seconds > d {
			seconds = d
		}
	}
	m.base = seconds
	m.started = time.Now()
}

func (m *MockElement) Duration() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.src == nil {
		return 0
	}
	return m.src.Duration()
}

func (m *MockElement) Play() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.src == nil {
		return player.ErrNoSource
	}
	if !m.playing {
		m.started = time.Now()
		m.playing = true
	}
	return nil
}

func (m *MockElement) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.playing {
		m.base = m.positionLocked()
		m.playing = false
	}
}

func (m *MockElement) Rate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rate
}

func (m *MockElement) SetRate(rate float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rate <= 0 {
		return
	}
	// Fold elapsed time in at the old rate first.
	m.base = m.positionLocked()
	m.started = time.Now()
	m.rate = rate
}

// Close stops the tick loop.
func (m *MockElement) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	close(m.done)
}

func (m *MockElement) tickLoop() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.mu.Lock()
			if !m.playing || m.src == nil {
				m.mu.Unlock()
				continue
			}
			pos := m.positionLocked()
			ended := pos >= m.src.Duration()
			if ended {
				m.base = pos
				m.playing = false
			}
			onTime := m.onTime
			onEnded := m.onEnded
			m.mu.Unlock()

			if onTime != nil {
				onTime(pos)
			}
			if ended && onEnded != nil {
				onEnded()
			}
		}
	}
}
