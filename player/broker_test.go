package player

import (
	"errors"
	"testing"
	"time"
)

func newTestBroker(t *testing.T, factory *fakeFactory, element *fakeElement) *Broker {
	t.Helper()
	b := NewBroker(factory, element, BrokerConfig{
		SwapGrace:     60 * time.Millisecond,
		TeardownGrace: 20 * time.Millisecond,
		SweepInterval: 5 * time.Millisecond,
	})
	t.Cleanup(b.Close)
	return b
}

func TestBrokerRejectsEmptyContent(t *testing.T) {
	factory := &fakeFactory{dur: 10}
	b := newTestBroker(t, factory, newFakeElement())

	if err := b.Swap(nil); !errors.Is(err, ErrEmptySource) {
		t.Fatalf("Swap(nil) = %v, want ErrEmptySource", err)
	}
	if err := b.Swap([]byte{}); !errors.Is(err, ErrEmptySource) {
		t.Fatalf("Swap(empty) = %v, want ErrEmptySource", err)
	}
	if factory.created() != 0 {
		t.Fatal("empty content must not allocate a source")
	}
}

// Swapping in the identical content reference twice creates exactly one
// source and schedules zero releases.
func TestBrokerSwapIdempotent(t *testing.T) {
	factory := &fakeFactory{dur: 10}
	b := newTestBroker(t, factory, newFakeElement())

	content := []byte{1, 2, 3}
	if err := b.Swap(content); err != nil {
		t.Fatal(err)
	}
	if err := b.Swap(content); err != nil {
		t.Fatal(err)
	}

	if got := factory.created(); got != 1 {
		t.Fatalf("sources created = %d, want 1", got)
	}
	if got := b.PendingReleases(); got != 0 {
		t.Fatalf("pending releases = %d, want 0", got)
	}
}

func TestBrokerSwapAttachesAndPauses(t *testing.T) {
	factory := &fakeFactory{dur: 42}
	element := newFakeElement()
	b := newTestBroker(t, factory, element)

	var metaDuration float64
	element.OnMetadata(func(d float64) { metaDuration = d })

	if err := b.Swap([]byte{1}); err != nil {
		t.Fatal(err)
	}
	if element.isPlaying() {
		t.Fatal("element should be paused after a swap")
	}
	if metaDuration != 42 {
		t.Fatalf("metadata duration = %v, want 42 (reload not forced?)", metaDuration)
	}
}

// Replacing source A with B must not close A before its grace period, and
// must not disturb B's playback when A is finally released.
func TestBrokerDelayedReleaseNeverAbortsActivePlayback(t *testing.T) {
	factory := &fakeFactory{dur: 10}
	element := newFakeElement()
	b := newTestBroker(t, factory, element)

	if err := b.Swap([]byte{1, 1}); err != nil {
		t.Fatal(err)
	}
	if err := b.Swap([]byte{2, 2}); err != nil {
		t.Fatal(err)
	}
	if err := element.Play(); err != nil {
		t.Fatal(err)
	}

	a, bSrc := factory.made[0], factory.made[1]
	if a.isClosed() {
		t.Fatal("source A closed synchronously on supersession")
	}
	if b.PendingReleases() != 1 {
		t.Fatalf("pending releases = %d, want 1", b.PendingReleases())
	}

	// After the grace period the sweep closes A; B keeps playing.
	deadline := time.Now().Add(time.Second)
	for !a.isClosed() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if !a.isClosed() {
		t.Fatal("source A never released after its grace period")
	}
	if bSrc.isClosed() {
		t.Fatal("live source B was released")
	}
	if !element.isPlaying() {
		t.Fatal("playback of B was disturbed")
	}
}

func TestBrokerAllocationFailureKeepsPrevious(t *testing.T) {
	factory := &fakeFactory{dur: 10}
	element := newFakeElement()
	b := newTestBroker(t, factory, element)

	if err := b.Swap([]byte{1}); err != nil {
		t.Fatal(err)
	}

	factory.mu.Lock()
	factory.err = errors.New("out of handles")
	factory.mu.Unlock()

	if err := b.Swap([]byte{2}); err == nil {
		t.Fatal("expected allocation failure")
	}
	if factory.made[0].isClosed() {
		t.Fatal("previous source must stay live after a failed swap")
	}

	// The previous content is still the live content: re-swapping it is
	// a no-op even though the failed swap happened in between.
	factory.mu.Lock()
	factory.err = nil
	factory.mu.Unlock()
	prev := factory.made[0]
	if b.PendingReleases() != 0 {
		t.Fatal("failed allocation should not queue releases")
	}
	_ = prev
}

func TestBrokerCloseReleasesEverything(t *testing.T) {
	factory := &fakeFactory{dur: 10}
	b := NewBroker(factory, newFakeElement(), BrokerConfig{
		SwapGrace:     time.Hour, // far longer than the test
		TeardownGrace: 10 * time.Millisecond,
		SweepInterval: 5 * time.Millisecond,
	})

	b.Swap([]byte{1})
	b.Swap([]byte{2})
	b.Close()

	if err := b.Swap([]byte{3}); !errors.Is(err, ErrBrokerClosed) {
		t.Fatalf("Swap after Close = %v, want ErrBrokerClosed", err)
	}

	// Teardown re-dues the hour-long grace to the short one.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if factory.made[0].isClosed() && factory.made[1].isClosed() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("teardown never released pending sources")
}
