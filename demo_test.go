package main

import (
	"testing"

	"github.com/dgnsrekt/singlingo/internal/audio"
	"github.com/dgnsrekt/singlingo/lrc"
	"github.com/dgnsrekt/singlingo/player"
)

func TestSilentWAVDecodes(t *testing.T) {
	factory := &audio.Factory{}
	src, err := factory.NewSource(silentWAV(3))
	if err != nil {
		t.Fatalf("NewSource() error = %v", err)
	}
	defer src.Close()

	if d := src.Duration(); d < 2.9 || d > 3.1 {
		t.Errorf("Duration() = %v, want about 3s", d)
	}
}

func TestDemoSeedMatchesDemoLyrics(t *testing.T) {
	lines := lrc.Parse(demoLyrics)
	if len(lines) == 0 {
		t.Fatal("demo lyrics parsed to zero lines")
	}

	applied := player.ApplySeed(lines, demoSeed)
	if applied < len(demoSeed) {
		t.Errorf("ApplySeed() applied %d entries, want at least %d", applied, len(demoSeed))
	}

	for _, l := range lines {
		if _, ok := demoSeed[player.NormalizeLineText(l.Text)]; !ok {
			continue
		}
		if !l.Analyzed() || l.Translation == "" {
			t.Errorf("seeded line %q missing analysis or translation", l.Text)
		}
	}
}

func TestSiblingLRCMissing(t *testing.T) {
	if got := siblingLRC("/nonexistent/song.wav"); got != "" {
		t.Errorf("siblingLRC() = %q, want empty", got)
	}
}
