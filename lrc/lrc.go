// Package lrc parses LRC timed-lyric files into the player's line
// sequence.
package lrc

import (
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/dgnsrekt/singlingo/player"
)

// lineRe matches one timestamp tag and the lyric text after it. Minutes
// run up to three digits, the fractional part is optional.
var lineRe = regexp.MustCompile(`^\s*\[(\d{1,3}):(\d{2})(?:\.(\d{2,3}))?\](.*)$`)

// Parse extracts timestamped lyric lines from LRC content. Lines without
// a timestamp tag, and tagged lines with no text, are skipped. Metadata
// tags like [ar:...] never match the timestamp shape and fall out
// naturally. The result is sorted by time.
func Parse(content string) []player.TimedLine {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")

	var lines []player.TimedLine
	for _, raw := range strings.Split(content, "\n") {
		m := lineRe.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		minutes, _ := strconv.Atoi(m[1])
		seconds, _ := strconv.Atoi(m[2])
		t := float64(minutes*60 + seconds)
		if frac := m[3]; frac != "" {
			n, _ := strconv.Atoi(frac)
			// Two digits are centiseconds, three are milliseconds.
			if len(frac) == 2 {
				t += float64(n) / 100
			} else {
				t += float64(n) / 1000
			}
		}
		text := strings.TrimSpace(m[4])
		if text == "" {
			continue
		}
		lines = append(lines, player.TimedLine{Time: t, Text: text})
	}

	sort.SliceStable(lines, func(i, j int) bool { return lines[i].Time < lines[j].Time })
	return lines
}

// ParseFile reads and parses an LRC file from disk.
func ParseFile(path string) ([]player.TimedLine, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(string(content)), nil
}
