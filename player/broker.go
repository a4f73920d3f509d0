package player

import (
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Broker configuration defaults.
const (
	// DefaultSwapGrace is how long a superseded source stays alive. A
	// source can still be mid-decode on the element when it is replaced;
	// closing it synchronously aborts that load.
	DefaultSwapGrace = 10 * time.Second
	// DefaultTeardownGrace is the shorter grace applied to whatever is
	// still pending when the broker shuts down.
	DefaultTeardownGrace = 5 * time.Second
	// DefaultSweepInterval is how often the release queue is swept.
	DefaultSweepInterval = 250 * time.Millisecond
)

// BrokerConfig tunes the broker's release timing. Zero values fall back to
// the defaults; tests shrink them.
type BrokerConfig struct {
	SwapGrace     time.Duration
	TeardownGrace time.Duration
	SweepInterval time.Duration
}

func (c BrokerConfig) withDefaults() BrokerConfig {
	if c.SwapGrace <= 0 {
		c.SwapGrace = DefaultSwapGrace
	}
	if c.TeardownGrace <= 0 {
		c.TeardownGrace = DefaultTeardownGrace
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	return c
}

// pendingRelease is one superseded source waiting out its grace period.
type pendingRelease struct {
	src Source
	due time.Time
}

// Broker exclusively owns the mapping from audio content to the live
// playable source. Swapping attaches the new source immediately but routes
// the old one through a deferred-release queue, destroyed by a background
// sweep only after its grace period.
type Broker struct {
	factory SourceFactory
	element Element
	cfg     BrokerConfig

	mu      sync.Mutex
	content []byte
	current Source
	queue   []pendingRelease
	closed  bool

	done chan struct{}
}

// NewBroker creates a broker bound to one element and starts its release
// sweeper.
func NewBroker(factory SourceFactory, element Element, cfg BrokerConfig) *Broker {
	b := &Broker{
		factory: factory,
		element: element,
		cfg:     cfg.withDefaults(),
		done:    make(chan struct{}),
	}
	go b.sweep()
	return b
}

// Swap makes content the live audio source. Zero-length content is rejected
// with a warning. Swapping in the content that is already live is a no-op.
// On allocation or attach failure the previous source remains live.
func (b *Broker) Swap(content []byte) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBrokerClosed
	}
	if len(content) == 0 {
		b.mu.Unlock()
		log.Warn("refusing to attach empty audio content")
		return ErrEmptySource
	}
	if sameContent(b.content, content) {
		b.mu.Unlock()
		return nil
	}
	b.mu.Unlock()

	// Stop the clock before the source goes away underneath it.
	b.element.Pause()

	src, err := b.factory.NewSource(content)
	if err != nil {
		log.Warn("audio source allocation failed, keeping previous source", "err", err)
		return fmt.Errorf("allocate source: %w", err)
	}

	if err := b.element.SetSource(src); err != nil {
		// The new source never went live; release it through the queue
		// like any other superseded source.
		b.scheduleRelease(src, b.cfg.SwapGrace)
		log.Warn("attaching audio source failed, keeping previous source", "err", err)
		return fmt.Errorf("attach source: %w", err)
	}

	b.mu.Lock()
	prev := b.current
	b.current = src
	b.content = content
	b.mu.Unlock()

	if prev != nil {
		b.scheduleRelease(prev, b.cfg.SwapGrace)
		log.Debug("scheduled previous audio source for release", "grace", b.cfg.SwapGrace)
	}
	return nil
}

// PendingReleases returns how many superseded sources are still waiting out
// their grace period.
func (b *Broker) PendingReleases() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

// Close stops accepting swaps and schedules everything still alive,
// including the live source, for release after the teardown grace. The
// sweeper drains the queue and exits; Close does not wait for it.
func (b *Broker) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	due := time.Now().Add(b.cfg.TeardownGrace)
	for i := range b.queue {
		if b.queue[i].due.After(due) {
			b.queue[i].due = due
		}
	}
	if b.current != nil {
		b.queue = append(b.queue, pendingRelease{src: b.current, due: due})
		b.current = nil
		b.content = nil
	}
	b.mu.Unlock()
}

func (b *Broker) scheduleRelease(src Source, grace time.Duration) {
	b.mu.Lock()
	b.queue = append(b.queue, pendingRelease{src: src, due: time.Now().Add(grace)})
	b.mu.Unlock()
}

// sweep closes queued sources once their grace period has elapsed. After
// Close it keeps running until the queue drains, then exits.
func (b *Broker) sweep() {
	ticker := time.NewTicker(b.cfg.SweepInterval)
	defer ticker.Stop()
	for range ticker.C {
		now := time.Now()
		var ready []Source
		b.mu.Lock()
		rest := b.queue[:0]
		for _, p := range b.queue {
			if p.due.After(now) {
				rest = append(rest, p)
			} else {
				ready = append(ready, p.src)
			}
		}
		b.queue = rest
		finished := b.closed && len(b.queue) == 0
		b.mu.Unlock()

		for _, src := range ready {
			if err := src.Close(); err != nil {
				log.Warn("closing superseded audio source", "err", err)
			}
		}
		if finished {
			return
		}
	}
}

// sameContent reports whether two payloads are the same backing memory, the
// reference-identity check that makes Swap idempotent.
func sameContent(a, b []byte) bool {
	return len(a) > 0 && len(a) == len(b) && &a[0] == &b[0]
}
