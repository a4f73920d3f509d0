package player

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// saveTimeout bounds the fire-and-forget persistence call that follows a
// successful merge.
const saveTimeout = 15 * time.Second

// Pipeline drives per-line analysis: Unanalyzed -> Pending -> Analyzed,
// reverting to Unanalyzed on failure. Requests go through an explicit FIFO
// queue processed by a single worker, so at most one analyzer call is in
// flight per session and at most one job can ever be pending per line.
type Pipeline struct {
	store    *LineStore
	analyzer Analyzer
	saver    SongStore

	// session returns the id, name and audio of the tracked song, if
	// any. Successful merges for a tracked song are persisted as a
	// complete snapshot. Nil means untracked: analyze, never save.
	session func() (Song, bool)

	// generation returns the current session generation. Jobs carry the
	// generation they were enqueued under and abandon their results if
	// it has moved on, so a superseded song load can never be mutated by
	// a stale completion.
	generation func() uint64

	lookahead bool

	onAnalyzing func(index int)
	onAnalyzed  func(index int, snapshot []TimedLine)
	onFailed    func(index int, err error)

	mu      sync.Mutex
	cond    *sync.Cond
	pending map[int]struct{}
	queue   []job
	busy    bool
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
}

type job struct {
	index int
	gen   uint64
	// chained marks a lookahead job. Lookahead reaches exactly one line
	// past a triggered analysis; chained jobs do not chain further.
	chained bool
}

// PipelineConfig configures a Pipeline. Saver and Session may be nil for an
// untracked session; Generation may be nil when the caller never reloads.
type PipelineConfig struct {
	Store      *LineStore
	Analyzer   Analyzer
	Saver      SongStore
	Session    func() (Song, bool)
	Generation func() uint64
	// Lookahead analyzes line i+1 after a success on line i, so playback
	// rarely stalls waiting on the network.
	Lookahead bool
}

// NewPipeline creates a pipeline and starts its worker.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	gen := cfg.Generation
	if gen == nil {
		gen = func() uint64 { return 0 }
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		store:      cfg.Store,
		analyzer:   cfg.Analyzer,
		saver:      cfg.Saver,
		session:    cfg.Session,
		generation: gen,
		lookahead:  cfg.Lookahead,
		pending:    make(map[int]struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
	p.cond = sync.NewCond(&p.mu)
	go p.worker()
	return p
}

// OnAnalyzing registers a callback fired when a line enters Pending.
func (p *Pipeline) OnAnalyzing(fn func(index int)) { p.onAnalyzing = fn }

// OnAnalyzed registers a callback fired after a successful merge, with the
// merged snapshot.
func (p *Pipeline) OnAnalyzed(fn func(index int, snapshot []TimedLine)) { p.onAnalyzed = fn }

// OnFailed registers a callback fired when analysis of a line fails.
func (p *Pipeline) OnFailed(fn func(index int, err error)) { p.onFailed = fn }

// Ensure requests analysis for the line at index. Out-of-range, already
// analyzed, and already pending lines are no-ops. The actual work happens
// on the pipeline worker.
func (p *Pipeline) Ensure(index int) error {
	return p.enqueue(index, false)
}

func (p *Pipeline) enqueue(index int, chained bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPipelineClosed
	}
	if index < 0 || index >= p.store.Len() {
		return nil
	}
	if p.store.Has(index) {
		return nil
	}
	if _, exists := p.pending[index]; exists {
		return nil
	}
	p.pending[index] = struct{}{}
	p.queue = append(p.queue, job{index: index, gen: p.generation(), chained: chained})
	p.cond.Broadcast()
	return nil
}

// Pending reports whether the line at index has a job queued or in flight.
func (p *Pipeline) Pending(index int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.pending[index]
	return ok
}

// Invalidate drops every queued job and pending mark. Called when a new
// song loads; in-flight results are additionally discarded by the
// generation check.
func (p *Pipeline) Invalidate() {
	p.mu.Lock()
	p.queue = nil
	p.pending = make(map[int]struct{})
	p.mu.Unlock()
}

// WaitIdle blocks until the queue is empty and no job is in flight.
func (p *Pipeline) WaitIdle() {
	p.mu.Lock()
	for len(p.queue) > 0 || p.busy {
		p.cond.Wait()
	}
	p.mu.Unlock()
}

// Close shuts the pipeline down. Queued jobs are dropped and the in-flight
// analyzer call, if any, is canceled.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.queue = nil
	p.cond.Broadcast()
	p.mu.Unlock()
	p.cancel()
}

func (p *Pipeline) worker() {
	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.closed {
			p.cond.Wait()
		}
		if p.closed {
			p.mu.Unlock()
			return
		}
		j := p.queue[0]
		p.queue = p.queue[1:]
		p.busy = true
		p.mu.Unlock()

		p.process(j)

		p.mu.Lock()
		p.busy = false
		p.cond.Broadcast()
		p.mu.Unlock()
	}
}

func (p *Pipeline) process(j job) {
	defer p.unmark(j.index)

	if p.generation() != j.gen {
		return
	}
	line, ok := p.store.Line(j.index)
	if !ok || line.Analyzed() {
		return
	}

	if p.onAnalyzing != nil {
		p.onAnalyzing(j.index)
	}
	log.Debug("analyzing line", "index", j.index, "text", line.Text)

	analysis, translation, err := p.analyzer.Analyze(p.ctx, line.Text)
	if err != nil {
		// Revert to Unanalyzed; the next trigger may retry.
		log.Warn("line analysis failed", "index", j.index, "err", err)
		if p.onFailed != nil {
			p.onFailed(j.index, err)
		}
		return
	}

	// Re-check after the asynchronous gap: the session may have moved on
	// while the analyzer was out.
	if p.generation() != j.gen {
		log.Debug("discarding stale analysis result", "index", j.index)
		return
	}

	snapshot := p.store.Merge(j.index, analysis, translation)
	if snapshot == nil {
		return
	}
	log.Debug("merged line analysis", "index", j.index)

	p.persist(snapshot)

	if p.onAnalyzed != nil {
		p.onAnalyzed(j.index, snapshot)
	}

	if p.lookahead && !j.chained {
		next := j.index + 1
		if next < p.store.Len() && !p.store.Has(next) {
			if err := p.enqueue(next, true); err == nil {
				log.Debug("queued lookahead analysis", "index", next)
			}
		}
	}
}

// persist saves the complete current song snapshot, fire and forget.
// Persistence failure is logged, never surfaced, and does not roll back the
// in-memory merge.
func (p *Pipeline) persist(snapshot []TimedLine) {
	if p.saver == nil || p.session == nil {
		return
	}
	song, tracked := p.session()
	if !tracked {
		return
	}
	song.Lyrics = snapshot
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		defer cancel()
		if err := p.saver.Save(ctx, song); err != nil {
			log.Warn("auto-save failed", "song", song.ID, "err", err)
		}
	}()
}

func (p *Pipeline) unmark(index int) {
	p.mu.Lock()
	delete(p.pending, index)
	p.mu.Unlock()
}
