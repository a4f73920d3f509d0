package audio

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/dgnsrekt/singlingo/player"
)

// tickInterval is the coarse clock cadence delivered to OnTimeUpdate.
const tickInterval = 200 * time.Millisecond

// Element plays decoded sources through the system audio device. It
// implements player.Element. One oto context is created up front and
// reused across every attached source.
type Element struct {
	ctx *oto.Context

	mu     sync.Mutex
	otoP   *oto.Player
	reader *rateReader
	src    *Source
	rate   float64
	state  bool // playing
	closed bool
	done   chan struct{}

	onMetadata func(float64)
	onTime     func(float64)
	onEnded    func()
	onError    func(error)
}

// NewElement opens the audio device.
func NewElement() (*Element, error) {
	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		return nil, fmt.Errorf("audio: open device: %w", err)
	}
	<-ready

	e := &Element{
		ctx:  ctx,
		rate: 1.0,
		done: make(chan struct{}),
	}
	go e.tickLoop()
	return e, nil
}

func (e *Element) OnMetadata(fn func(float64))   { e.onMetadata = fn }
func (e *Element) OnTimeUpdate(fn func(float64)) { e.onTime = fn }
func (e *Element) OnEnded(fn func())             { e.onEnded = fn }
func (e *Element) OnError(fn func(error))        { e.onError = fn }

// SetSource attaches a decoded source, replacing any current one. The
// previous source itself stays open; its lifetime belongs to the caller.
func (e *Element) SetSource(src player.Source) error {
	decoded, ok := src.(*Source)
	if !ok {
		return fmt.Errorf("%w: foreign source type %T", player.ErrUnsupportedFormat, src)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return errors.New("audio: element closed")
	}
	if e.otoP != nil {
		e.otoP.Pause()
		e.otoP.Close()
	}
	e.reader = &rateReader{src: decoded, rate: e.rate}
	e.otoP = e.ctx.NewPlayer(e.reader)
	e.src = decoded
	e.state = false
	fn := e.onMetadata
	d := decoded.Duration()
	e.mu.Unlock()

	if fn != nil {
		fn(d)
	}
	return nil
}

// CurrentTime returns the playback position in seconds.
func (e *Element) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.reader == nil {
		return 0
	}
	return e.reader.position()
}

// Seek moves the playback position.
func (e *Element) Seek(seconds float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.reader == nil {
		return
	}
	e.reader.seek(seconds)
}

// Duration returns the attached source's length, or 0 without one.
func (e *Element) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.src == nil {
		return 0
	}
	return e.src.Duration()
}

// Play starts or resumes playback.
func (e *Element) Play() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.otoP == nil {
		return player.ErrNoSource
	}
	e.otoP.Play()
	e.state = true
	return nil
}

// Pause suspends playback, keeping the position.
func (e *Element) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.otoP != nil {
		e.otoP.Pause()
	}
	e.state = false
}

// Rate returns the playback rate.
func (e *Element) Rate() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rate
}

// SetRate changes the playback rate. Pitch is not preserved.
func (e *Element) SetRate(rate float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rate <= 0 {
		return
	}
	e.rate = rate
	if e.reader != nil {
		e.reader.setRate(rate)
	}
}

// Close stops playback and the tick loop. The oto context itself has no
// close in v3; it is dropped with the element.
func (e *Element) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	close(e.done)
	if e.otoP != nil {
		e.otoP.Pause()
		e.otoP.Close()
		e.otoP = nil
	}
	e.mu.Unlock()
}

// tickLoop drives the coarse clock and end-of-stream detection.
func (e *Element) tickLoop() {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			e.mu.Lock()
			playing := e.state
			reader := e.reader
			otoP := e.otoP
			onTime := e.onTime
			onEnded := e.onEnded
			onError := e.onError
			e.mu.Unlock()

			if !playing || reader == nil {
				continue
			}
			if err := otoP.Err(); err != nil {
				e.mu.Lock()
				e.state = false
				e.mu.Unlock()
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onTime != nil {
				onTime(reader.position())
			}
			if reader.exhausted() && otoP.BufferedSize() == 0 {
				e.mu.Lock()
				e.state = false
				e.otoP.Pause()
				e.mu.Unlock()
				if onEnded != nil {
					onEnded()
				}
			}
		}
	}
}

// rateReader feeds PCM frames to oto, advancing a fractional cursor by the
// playback rate per output frame. Seeks and rate changes move the cursor,
// so position, seeking, and speed share one mechanism.
type rateReader struct {
	src *Source

	mu     sync.Mutex
	cursor float64 // in source frames
	rate   float64
}

func (r *rateReader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	frames := len(p) / frameSize
	if frames == 0 {
		return 0, nil
	}
	total := float64(r.src.frames)
	n := 0
	for i := 0; i < frames; i++ {
		if r.cursor >= total {
			if n == 0 {
				return 0, io.EOF
			}
			break
		}
		l, right := r.src.frame(int(r.cursor))
		p[n] = byte(l)
		p[n+1] = byte(uint16(l) >> 8)
		p[n+2] = byte(right)
		p[n+3] = byte(uint16(right) >> 8)
		n += frameSize
		r.cursor += r.rate
	}
	return n, nil
}

func (r *rateReader) position() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor / sampleRate
}

func (r *rateReader) seek(seconds float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := seconds * sampleRate
	if c < 0 {
		c = 0
	}
	if max := float64(r.src.frames); c > max {
		c = max
	}
	r.cursor = c
}

func (r *rateReader) setRate(rate float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rate = rate
}

func (r *rateReader) exhausted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor >= float64(r.src.frames)
}
