package player

import "testing"

func TestLocate(t *testing.T) {
	lines := testLines(0, 5, 10)

	tests := []struct {
		name string
		t    float64
		want int
	}{
		{"at first line", 0, 0},
		{"before second line", 4.9, 0},
		{"exactly at second line", 5, 1},
		{"within second line", 7.3, 1},
		{"exactly at last line", 10, 2},
		{"past last line", 10.1, 2},
		{"far past the end", 1000, 2},
		{"before first line", -1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Locate(lines, tt.t); got != tt.want {
				t.Errorf("Locate(lines, %v) = %d, want %d", tt.t, got, tt.want)
			}
		})
	}
}

func TestLocateEmpty(t *testing.T) {
	if got := Locate(nil, 3.0); got != NoActiveLine {
		t.Errorf("Locate(nil, 3.0) = %d, want %d", got, NoActiveLine)
	}
}

func TestLocateFirstLineOffsetFromZero(t *testing.T) {
	lines := testLines(2.5, 6)
	if got := Locate(lines, 1.0); got != 0 {
		t.Errorf("time before first line: got %d, want 0", got)
	}
}

// Locate must be monotonic: never move backwards for increasing times.
func TestLocateMonotonic(t *testing.T) {
	lines := testLines(0, 1.5, 3.3, 3.3, 8, 20, 21)
	prev := 0
	for step := 0; step <= 250; step++ {
		tm := float64(step) * 0.1
		got := Locate(lines, tm)
		if got < prev {
			t.Fatalf("Locate moved backwards at t=%v: %d after %d", tm, got, prev)
		}
		prev = got
	}
}
