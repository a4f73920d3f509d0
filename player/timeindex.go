package player

import "sort"

// NoActiveLine is returned by Locate for an empty line sequence.
const NoActiveLine = -1

// Locate returns the index of the active line at playback time t: the
// greatest index i with lines[i].Time <= t. Times before the first line map
// to 0 and times at or after the last line map to the last index, so for
// t1 <= t2, Locate(lines, t1) <= Locate(lines, t2).
func Locate(lines []TimedLine, t float64) int {
	if len(lines) == 0 {
		return NoActiveLine
	}
	// First index whose time is strictly greater than t; the active line
	// is the one before it.
	i := sort.Search(len(lines), func(i int) bool {
		return lines[i].Time > t
	})
	if i == 0 {
		return 0
	}
	return i - 1
}
