package player

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func newTestPipeline(t *testing.T, store *LineStore, analyzer Analyzer, saver SongStore, session func() (Song, bool), gen func() uint64, lookahead bool) *Pipeline {
	t.Helper()
	p := NewPipeline(PipelineConfig{
		Store:      store,
		Analyzer:   analyzer,
		Saver:      saver,
		Session:    session,
		Generation: gen,
		Lookahead:  lookahead,
	})
	t.Cleanup(p.Close)
	return p
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestPipelineAnalyzesLine(t *testing.T) {
	store := NewLineStore(testLines(0, 5))
	analyzer := &fakeAnalyzer{}
	p := newTestPipeline(t, store, analyzer, nil, nil, nil, false)

	if err := p.Ensure(0); err != nil {
		t.Fatal(err)
	}
	p.WaitIdle()

	if !store.Has(0) {
		t.Fatal("line 0 should be analyzed")
	}
	line, _ := store.Line(0)
	if line.Translation == "" {
		t.Fatal("translation was not merged")
	}
}

// Two triggers before the first resolves must produce exactly one analyzer
// call for the line.
func TestPipelineAtMostOnePendingPerLine(t *testing.T) {
	store := NewLineStore(testLines(0, 5, 10))
	analyzer := &fakeAnalyzer{release: make(chan struct{})}
	p := newTestPipeline(t, store, analyzer, nil, nil, nil, false)

	if err := p.Ensure(2); err != nil {
		t.Fatal(err)
	}
	if err := p.Ensure(2); err != nil {
		t.Fatal(err)
	}
	eventually(t, func() bool { return p.Pending(2) }, "line 2 never became pending")
	if err := p.Ensure(2); err != nil {
		t.Fatal(err)
	}

	close(analyzer.release)
	p.WaitIdle()

	if got := analyzer.callCount(); got != 1 {
		t.Fatalf("analyzer calls = %d, want 1", got)
	}
	if !store.Has(2) {
		t.Fatal("line 2 should be analyzed")
	}
}

func TestPipelineAnalyzedLineIsNoOp(t *testing.T) {
	store := NewLineStore(testLines(0))
	store.Merge(0, &Analysis{Explanation: "done"}, "")
	analyzer := &fakeAnalyzer{}
	p := newTestPipeline(t, store, analyzer, nil, nil, nil, false)

	p.Ensure(0)
	p.WaitIdle()
	if analyzer.callCount() != 0 {
		t.Fatal("analyzer called for an already analyzed line")
	}
}

func TestPipelineOutOfRangeIsNoOp(t *testing.T) {
	store := NewLineStore(testLines(0))
	analyzer := &fakeAnalyzer{}
	p := newTestPipeline(t, store, analyzer, nil, nil, nil, false)

	if err := p.Ensure(-1); err != nil {
		t.Fatal(err)
	}
	if err := p.Ensure(9); err != nil {
		t.Fatal(err)
	}
	p.WaitIdle()
	if analyzer.callCount() != 0 {
		t.Fatal("analyzer called for out-of-range index")
	}
}

func TestPipelineFailureRevertsAndAllowsRetry(t *testing.T) {
	store := NewLineStore(testLines(0))
	analyzer := &fakeAnalyzer{err: errors.New("model unavailable")}
	p := newTestPipeline(t, store, analyzer, nil, nil, nil, false)

	var failed atomic.Int32
	p.OnFailed(func(int, error) { failed.Add(1) })

	p.Ensure(0)
	p.WaitIdle()

	if store.Has(0) {
		t.Fatal("failed analysis must not be merged")
	}
	if p.Pending(0) {
		t.Fatal("failed line still pending")
	}
	if failed.Load() != 1 {
		t.Fatalf("failure callback fired %d times, want 1", failed.Load())
	}

	// The caller may re-trigger; a retry reaches the analyzer again.
	analyzer.mu.Lock()
	analyzer.err = nil
	analyzer.mu.Unlock()
	p.Ensure(0)
	p.WaitIdle()
	if !store.Has(0) {
		t.Fatal("retry should succeed")
	}
	if analyzer.callCount() != 2 {
		t.Fatalf("analyzer calls = %d, want 2", analyzer.callCount())
	}
}

// Lookahead reaches exactly one line past the triggered one.
func TestPipelineLookaheadSingleStep(t *testing.T) {
	store := NewLineStore(testLines(0, 5, 10, 15))
	analyzer := &fakeAnalyzer{}
	p := newTestPipeline(t, store, analyzer, nil, nil, nil, true)

	p.Ensure(0)
	p.WaitIdle()

	if !store.Has(0) || !store.Has(1) {
		t.Fatal("lookahead should analyze the next line")
	}
	if store.Has(2) {
		t.Fatal("lookahead must not cascade past one line")
	}
	if got := analyzer.callCount(); got != 2 {
		t.Fatalf("analyzer calls = %d, want 2", got)
	}
}

func TestPipelineLookaheadSkipsAnalyzedNext(t *testing.T) {
	store := NewLineStore(testLines(0, 5))
	store.Merge(1, &Analysis{Explanation: "already"}, "")
	analyzer := &fakeAnalyzer{}
	p := newTestPipeline(t, store, analyzer, nil, nil, nil, true)

	p.Ensure(0)
	p.WaitIdle()
	if got := analyzer.callCount(); got != 1 {
		t.Fatalf("analyzer calls = %d, want 1", got)
	}
}

// A successful merge for a tracked session persists the entire current
// lyric sequence, not a partial patch.
func TestPipelinePersistsFullSnapshot(t *testing.T) {
	store := NewLineStore(testLines(0, 5, 10))
	analyzer := &fakeAnalyzer{}
	saver := &memSaver{}
	session := func() (Song, bool) {
		return Song{ID: "song-1", Name: "Test", Audio: []byte{1, 2, 3}}, true
	}
	p := newTestPipeline(t, store, analyzer, saver, session, nil, false)

	// A concurrent edit to another line must appear in the saved
	// snapshot too.
	store.SetTranslation(2, "edited")

	p.Ensure(0)
	p.WaitIdle()
	eventually(t, func() bool { return saver.saveCount() == 1 }, "auto-save never fired")

	saved, _ := saver.lastSave()
	if saved.ID != "song-1" {
		t.Fatalf("saved id = %q", saved.ID)
	}
	if len(saved.Lyrics) != 3 {
		t.Fatalf("saved %d lines, want full sequence of 3", len(saved.Lyrics))
	}
	if saved.Lyrics[0].Analysis == nil {
		t.Fatal("saved snapshot missing the merged analysis")
	}
	if saved.Lyrics[2].Translation != "edited" {
		t.Fatal("saved snapshot missing the concurrent edit")
	}
	if len(saved.Audio) == 0 {
		t.Fatal("saved snapshot missing audio content")
	}
}

func TestPipelineUntrackedSessionNeverSaves(t *testing.T) {
	store := NewLineStore(testLines(0))
	saver := &memSaver{}
	session := func() (Song, bool) { return Song{}, false }
	p := newTestPipeline(t, store, &fakeAnalyzer{}, saver, session, nil, false)

	p.Ensure(0)
	p.WaitIdle()
	time.Sleep(20 * time.Millisecond)
	if saver.saveCount() != 0 {
		t.Fatal("untracked session must not auto-save")
	}
}

// Persistence failure is logged, not surfaced, and leaves the merge alone.
func TestPipelineSaveFailureKeepsMerge(t *testing.T) {
	store := NewLineStore(testLines(0))
	saver := &memSaver{err: errors.New("disk full")}
	session := func() (Song, bool) { return Song{ID: "s"}, true }
	p := newTestPipeline(t, store, &fakeAnalyzer{}, saver, session, nil, false)

	p.Ensure(0)
	p.WaitIdle()
	time.Sleep(20 * time.Millisecond)
	if !store.Has(0) {
		t.Fatal("merge rolled back on save failure")
	}
}

// A result arriving for a superseded generation is discarded.
func TestPipelineStaleGenerationDiscarded(t *testing.T) {
	store := NewLineStore(testLines(0, 5))
	analyzer := &fakeAnalyzer{release: make(chan struct{})}
	var gen atomic.Uint64
	p := newTestPipeline(t, store, analyzer, nil, nil, gen.Load, false)

	p.Ensure(0)
	eventually(t, func() bool { return analyzer.callCount() == 1 }, "analyzer never called")

	// New song loads while the call is in flight.
	gen.Add(1)
	p.Invalidate()
	close(analyzer.release)
	p.WaitIdle()

	if store.Has(0) {
		t.Fatal("stale result must not be merged into the new session")
	}
}

func TestPipelineInvalidateDropsQueue(t *testing.T) {
	store := NewLineStore(testLines(0, 5, 10))
	analyzer := &fakeAnalyzer{release: make(chan struct{})}
	p := newTestPipeline(t, store, analyzer, nil, nil, nil, false)

	p.Ensure(0)
	p.Ensure(1)
	p.Ensure(2)
	eventually(t, func() bool { return analyzer.callCount() == 1 }, "worker never started")

	p.Invalidate()
	close(analyzer.release)
	p.WaitIdle()

	// Only the in-flight call reached the analyzer; queued jobs dropped.
	if got := analyzer.callCount(); got != 1 {
		t.Fatalf("analyzer calls = %d, want 1", got)
	}
}

func TestPipelineClosedEnsureFails(t *testing.T) {
	store := NewLineStore(testLines(0))
	p := NewPipeline(PipelineConfig{Store: store, Analyzer: &fakeAnalyzer{}})
	p.Close()
	if err := p.Ensure(0); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("Ensure after Close = %v, want ErrPipelineClosed", err)
	}
}
