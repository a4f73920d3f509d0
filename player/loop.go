package player

import "sync"

// Loop holds an optional [start, end) window over which playback repeats.
// It only decides; seeking the clock is the caller's job.
type Loop struct {
	mu     sync.Mutex
	window *LoopWindow
}

// Activate sets the window to span the line at index: from that line's time
// to the next line's time, or to duration when index is the last line.
// Indices outside the sequence leave the loop unchanged.
func (l *Loop) Activate(index int, lines []TimedLine, duration float64) {
	if index < 0 || index >= len(lines) {
		return
	}
	w := LoopWindow{Start: lines[index].Time, End: duration}
	if index+1 < len(lines) {
		w.End = lines[index+1].Time
	}
	l.mu.Lock()
	l.window = &w
	l.mu.Unlock()
}

// Deactivate clears the window.
func (l *Loop) Deactivate() {
	l.mu.Lock()
	l.window = nil
	l.mu.Unlock()
}

// Active reports whether a window is set.
func (l *Loop) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.window != nil
}

// Window returns a copy of the current window, if any.
func (l *Loop) Window() (LoopWindow, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.window == nil {
		return LoopWindow{}, false
	}
	return *l.window, true
}

// Apply reports whether playback at time t has passed the end of an active
// window, and if so, the seek target to rewind to. A degenerate window
// (end <= start, e.g. duration still 0 before metadata loads) never fires.
func (l *Loop) Apply(t float64) (float64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.window == nil || l.window.End <= l.window.Start {
		return 0, false
	}
	if t >= l.window.End {
		return l.window.Start, true
	}
	return 0, false
}
