package player

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// DefaultSmoothInterval is the cadence of the high-frequency display clock.
// The element's own time-update stream is too coarse for a smooth progress
// readout, so the controller samples the clock itself while playing.
const DefaultSmoothInterval = 50 * time.Millisecond

// ControllerConfig configures a session controller.
type ControllerConfig struct {
	SmoothInterval time.Duration
	Broker         BrokerConfig
	// Lookahead enables opportunistic analysis of the next line.
	Lookahead bool
	// RecoverableID names the one song id eligible for automatic
	// unsupported-format recovery via RecoverFetch.
	RecoverableID string
	// RecoverFetch re-fetches the recoverable song's audio from its
	// canonical source.
	RecoverFetch func(ctx context.Context) ([]byte, error)
}

// Status is a copy of everything the UI observes about the session.
type Status struct {
	Session    SessionState
	Playback   PlaybackState
	ActiveLine int
	SongID     string
	SongName   string
	Lines      []TimedLine
}

// Controller owns playback state and coordinates the engine: it reacts to
// element clock ticks, applies loop-seek decisions ahead of line-index
// recomputation, and triggers the analysis pipeline on line transitions and
// line clicks.
type Controller struct {
	element  Element
	broker   *Broker
	store    *LineStore
	loop     *Loop
	pipeline *Pipeline
	library  SongStore
	cfg      ControllerConfig

	mu        sync.Mutex
	machine   *StateMachine
	state     PlaybackState
	lineIndex int

	songID    string
	songName  string
	songAudio []byte
	recovered bool

	gen    atomic.Uint64
	closed bool
	done   chan struct{}

	onLineChange  func(index int)
	onStateChange func(s SessionState)
	onNotice      func(msg string)
	onAnalyzing   func(index int)
	onAnalyzed    func(index int)
	onFailed      func(index int, err error)
}

// NewController wires the engine together around one playback element.
// library may be nil for a purely in-memory session.
func NewController(element Element, factory SourceFactory, analyzer Analyzer, library SongStore, cfg ControllerConfig) *Controller {
	if cfg.SmoothInterval <= 0 {
		cfg.SmoothInterval = DefaultSmoothInterval
	}
	c := &Controller{
		element:   element,
		store:     NewLineStore(nil),
		loop:      &Loop{},
		library:   library,
		cfg:       cfg,
		machine:   NewStateMachine(),
		state:     PlaybackState{Rate: 1.0},
		lineIndex: NoActiveLine,
		done:      make(chan struct{}),
	}
	c.broker = NewBroker(factory, element, cfg.Broker)
	c.pipeline = NewPipeline(PipelineConfig{
		Store:      c.store,
		Analyzer:   analyzer,
		Saver:      library,
		Session:    c.trackedSong,
		Generation: c.gen.Load,
		Lookahead:  cfg.Lookahead,
	})
	c.pipeline.OnAnalyzing(func(i int) { c.notifyAnalyzing(i) })
	c.pipeline.OnAnalyzed(func(i int, _ []TimedLine) { c.notifyAnalyzed(i) })
	c.pipeline.OnFailed(func(i int, err error) { c.notifyFailed(i, err) })

	element.OnMetadata(c.handleMetadata)
	element.OnTimeUpdate(c.HandleTick)
	element.OnEnded(c.handleEnded)
	element.OnError(c.handleElementError)

	go c.smoothLoop()
	return c
}

// OnLineChange registers a callback fired when the active line changes.
func (c *Controller) OnLineChange(fn func(index int)) { c.onLineChange = fn }

// OnStateChange registers a callback fired on session state transitions.
func (c *Controller) OnStateChange(fn func(s SessionState)) { c.onStateChange = fn }

// OnNotice registers a callback for non-blocking user notices.
func (c *Controller) OnNotice(fn func(msg string)) { c.onNotice = fn }

// OnAnalyzing registers a callback fired when a line enters analysis.
func (c *Controller) OnAnalyzing(fn func(index int)) { c.onAnalyzing = fn }

// OnAnalyzed registers a callback fired when a line's analysis lands.
func (c *Controller) OnAnalyzed(fn func(index int)) { c.onAnalyzed = fn }

// OnAnalysisFailed registers a callback fired when a line's analysis fails.
func (c *Controller) OnAnalysisFailed(fn func(index int, err error)) { c.onFailed = fn }

// LoadSong replaces the whole session with a saved song: new generation,
// cleared pipeline and loop, new lyric sequence, new audio source. The
// session re-arms to Ready once the element reports metadata.
func (c *Controller) LoadSong(song Song) error {
	c.gen.Add(1)
	c.pipeline.Invalidate()
	c.loop.Deactivate()
	c.store.Replace(song.Lyrics)

	c.mu.Lock()
	c.songID = song.ID
	c.songName = song.Name
	c.songAudio = song.Audio
	c.recovered = false
	c.machine.Reset()
	c.state.Playing = false
	c.state.CurrentTime = 0
	c.state.Duration = 0
	c.state.Loop = nil
	c.lineIndex = NoActiveLine
	if c.store.Len() > 0 {
		c.lineIndex = 0
	}
	c.mu.Unlock()

	if err := c.broker.Swap(song.Audio); err != nil && !errors.Is(err, ErrEmptySource) {
		c.notice("Could not load audio, keeping previous track.")
		return err
	}
	log.Info("loaded song", "id", song.ID, "name", song.Name, "lines", c.store.Len())
	return nil
}

// SetAudio attaches uploaded audio content as an untracked session, keeping
// the current lyrics.
func (c *Controller) SetAudio(name string, content []byte) error {
	c.gen.Add(1)
	c.pipeline.Invalidate()
	c.loop.Deactivate()

	c.mu.Lock()
	c.songID = ""
	c.songName = name
	c.songAudio = content
	c.recovered = false
	c.machine.Reset()
	c.state.Playing = false
	c.state.CurrentTime = 0
	c.state.Duration = 0
	c.state.Loop = nil
	c.mu.Unlock()

	return c.broker.Swap(content)
}

// SetLyrics replaces the lyric sequence without touching the audio, as when
// a watched LRC file changes. A new generation discards in-flight analysis
// aimed at the old sequence.
func (c *Controller) SetLyrics(lines []TimedLine) {
	c.gen.Add(1)
	c.pipeline.Invalidate()
	c.loop.Deactivate()
	c.store.Replace(lines)

	c.mu.Lock()
	c.state.Loop = nil
	c.lineIndex = NoActiveLine
	if c.store.Len() > 0 {
		c.lineIndex = Locate(c.store.Snapshot(), c.state.CurrentTime)
	}
	c.mu.Unlock()
}

// Play starts or resumes playback. A benign abort from a superseded start
// is swallowed.
func (c *Controller) Play() {
	if err := c.element.Play(); err != nil {
		if IsBenign(err) {
			return
		}
		log.Error("playback start failed", "err", err)
		c.notice("Playback failed.")
		return
	}
	c.mu.Lock()
	moved := c.machine.Transition(StatePlaying)
	c.state.Playing = c.machine.Current() == StatePlaying
	c.mu.Unlock()
	if moved {
		c.notifyState(StatePlaying)
	}
}

// Pause stops the clock.
func (c *Controller) Pause() {
	c.element.Pause()
	c.mu.Lock()
	moved := c.machine.Transition(StatePaused)
	c.state.Playing = false
	c.mu.Unlock()
	if moved {
		c.notifyState(StatePaused)
	}
}

// TogglePlay flips between playing and paused.
func (c *Controller) TogglePlay() {
	c.mu.Lock()
	playing := c.state.Playing
	c.mu.Unlock()
	if playing {
		c.Pause()
	} else {
		c.Play()
	}
}

// Seek moves the playback position.
func (c *Controller) Seek(t float64) {
	c.element.Seek(t)
	c.mu.Lock()
	c.state.CurrentTime = c.element.CurrentTime()
	c.mu.Unlock()
}

// SetRate changes the playback rate. Rates <= 0 are ignored.
func (c *Controller) SetRate(rate float64) {
	if rate <= 0 {
		return
	}
	c.element.SetRate(rate)
	c.mu.Lock()
	c.state.Rate = rate
	c.mu.Unlock()
}

// ToggleLoop activates an A/B loop over the active line, or clears it.
func (c *Controller) ToggleLoop() {
	c.mu.Lock()
	index := c.lineIndex
	duration := c.state.Duration
	c.mu.Unlock()

	if c.loop.Active() {
		c.loop.Deactivate()
		c.mu.Lock()
		c.state.Loop = nil
		c.mu.Unlock()
		return
	}
	c.loop.Activate(index, c.store.Snapshot(), duration)
	if w, ok := c.loop.Window(); ok {
		c.mu.Lock()
		c.state.Loop = &w
		c.mu.Unlock()
	}
}

// ClickLine seeks to the given line, clears any loop, forces playback, and
// requests analysis directly, so the user never waits for the tick-driven
// detection to reach the line.
func (c *Controller) ClickLine(index int) {
	line, ok := c.store.Line(index)
	if !ok {
		return
	}
	c.loop.Deactivate()

	c.mu.Lock()
	c.state.Loop = nil
	changed := index != c.lineIndex
	c.lineIndex = index
	c.mu.Unlock()

	c.element.Seek(line.Time)
	c.Play()
	if changed {
		c.notifyLine(index)
	}
	if err := c.pipeline.Ensure(index); err != nil {
		log.Debug("analysis request dropped", "index", index, "err", err)
	}
}

// EditTranslation applies a manual translation edit through the store's
// latest-snapshot merge discipline.
func (c *Controller) EditTranslation(index int, translation string) bool {
	return c.store.SetTranslation(index, translation)
}

// HandleTick processes one coarse clock tick. Loop-seek checks take
// priority: a loop rewind is a seek, not a line transition, and never
// triggers analysis. Otherwise the active line is recomputed and, only
// while playing, a change queues analysis for the new line.
func (c *Controller) HandleTick(t float64) {
	if target, ok := c.loop.Apply(t); ok {
		c.element.Seek(target)
		return
	}

	snapshot := c.store.Snapshot()
	index := Locate(snapshot, t)

	c.mu.Lock()
	c.state.CurrentTime = t
	changed := index != NoActiveLine && index != c.lineIndex
	if changed {
		c.lineIndex = index
	}
	playing := c.machine.Current() == StatePlaying
	c.mu.Unlock()

	if !changed {
		return
	}
	c.notifyLine(index)
	if playing {
		if err := c.pipeline.Ensure(index); err != nil {
			log.Debug("analysis request dropped", "index", index, "err", err)
		}
	}
}

// SaveToLibrary persists the current session as a complete snapshot,
// assigning a fresh id for previously untracked sessions. Subsequent
// analysis merges auto-save under the same id.
func (c *Controller) SaveToLibrary(ctx context.Context) (Song, error) {
	c.mu.Lock()
	id := c.songID
	if id == "" {
		id = uuid.NewString()
	}
	song := Song{
		ID:        id,
		Name:      c.songName,
		Audio:     c.songAudio,
		CreatedAt: time.Now(),
	}
	c.mu.Unlock()
	song.Lyrics = c.store.Snapshot()

	if c.library == nil {
		return song, errors.New("no library configured")
	}
	if err := c.library.Save(ctx, song); err != nil {
		return song, err
	}
	c.mu.Lock()
	c.songID = id
	c.mu.Unlock()
	return song, nil
}

// Status returns a copy of everything observable about the session.
func (c *Controller) Status() Status {
	c.mu.Lock()
	st := Status{
		Session:    c.machine.Current(),
		Playback:   c.state,
		ActiveLine: c.lineIndex,
		SongID:     c.songID,
		SongName:   c.songName,
	}
	if c.state.Loop != nil {
		w := *c.state.Loop
		st.Playback.Loop = &w
	}
	c.mu.Unlock()
	st.Lines = c.store.Snapshot()
	return st
}

// Lines returns the current lyric snapshot.
func (c *Controller) Lines() []TimedLine {
	return c.store.Snapshot()
}

// Pipeline exposes the analysis pipeline, mainly so tests and the UI can
// wait for quiescence.
func (c *Controller) Pipeline() *Pipeline {
	return c.pipeline
}

// Close tears the session down: the pipeline stops, and the broker routes
// all still-live sources through the shorter teardown grace.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.gen.Add(1)
	close(c.done)
	c.pipeline.Close()
	c.broker.Close()
	c.element.Pause()
}

func (c *Controller) handleMetadata(duration float64) {
	c.mu.Lock()
	c.state.Duration = duration
	if c.machine.Current() == StateIdle {
		c.machine.Transition(StateReady)
	} else {
		c.machine.Rearm()
	}
	c.mu.Unlock()
	log.Debug("audio metadata loaded", "duration", duration)
	c.notifyState(StateReady)
}

func (c *Controller) handleEnded() {
	c.mu.Lock()
	moved := c.machine.Transition(StateEnded)
	c.state.Playing = false
	c.mu.Unlock()
	if moved {
		c.notifyState(StateEnded)
	}
}

// handleElementError attempts a one-shot recovery for a recognized
// unsupported-format error on the known recoverable song; anything else
// surfaces as a notice and playback stays alive.
func (c *Controller) handleElementError(err error) {
	log.Error("audio element error", "err", err)

	c.mu.Lock()
	recoverable := errors.Is(err, ErrUnsupportedFormat) &&
		c.cfg.RecoverFetch != nil &&
		c.cfg.RecoverableID != "" &&
		c.songID == c.cfg.RecoverableID &&
		!c.recovered
	if recoverable {
		c.recovered = true
	}
	c.mu.Unlock()

	if !recoverable {
		c.notice("Audio format not supported.")
		return
	}

	c.notice("Repairing demo audio...")
	gen := c.gen.Load()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		content, ferr := c.cfg.RecoverFetch(ctx)
		if ferr != nil {
			log.Error("audio recovery failed", "err", ferr)
			c.notice("Audio repair failed.")
			return
		}
		if c.gen.Load() != gen {
			return
		}
		if serr := c.broker.Swap(content); serr != nil {
			c.notice("Audio repair failed.")
			return
		}
		c.mu.Lock()
		c.songAudio = content
		id := c.songID
		c.mu.Unlock()
		if c.library != nil && id != "" {
			song := Song{ID: id, Name: c.songName, Audio: content, Lyrics: c.store.Snapshot(), CreatedAt: time.Now()}
			sctx, scancel := context.WithTimeout(context.Background(), saveTimeout)
			defer scancel()
			if err := c.library.Save(sctx, song); err != nil {
				log.Warn("saving recovered audio failed", "err", err)
			}
		}
	}()
}

// trackedSong snapshots the session identity for the pipeline's auto-save.
func (c *Controller) trackedSong() (Song, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.songID == "" {
		return Song{}, false
	}
	return Song{
		ID:        c.songID,
		Name:      c.songName,
		Audio:     c.songAudio,
		CreatedAt: time.Now(),
	}, true
}

// smoothLoop samples the element clock at a high frequency while playing,
// updating the continuous display time without re-running line detection or
// analysis triggering.
func (c *Controller) smoothLoop() {
	ticker := time.NewTicker(c.cfg.SmoothInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.state.Playing {
				c.state.CurrentTime = c.element.CurrentTime()
			}
			c.mu.Unlock()
		}
	}
}

func (c *Controller) notice(msg string) {
	if c.onNotice != nil {
		c.onNotice(msg)
	}
}

func (c *Controller) notifyLine(index int) {
	if c.onLineChange != nil {
		c.onLineChange(index)
	}
}

func (c *Controller) notifyState(s SessionState) {
	if c.onStateChange != nil {
		c.onStateChange(s)
	}
}

func (c *Controller) notifyAnalyzing(index int) {
	if c.onAnalyzing != nil {
		c.onAnalyzing(index)
	}
}

func (c *Controller) notifyAnalyzed(index int) {
	if c.onAnalyzed != nil {
		c.onAnalyzed(index)
	}
}

func (c *Controller) notifyFailed(index int, err error) {
	if c.onFailed != nil {
		c.onFailed(index, err)
	}
}
