package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/singlingo/lrc"
	"github.com/dgnsrekt/singlingo/player"
	"github.com/spf13/viper"
)

const (
	demoSongID   = "demo-track"
	demoSongName = "Demo: Taylor Swift - The Fate of Ophelia"
)

const demoLyrics = `
[00:11.00]I heard you calling on the megaphone
[00:14.70]You wanna see me all alone
[00:20.50]As legend has it, you are quite the pyro
[00:24.40]You light the match to watch it blow
[00:28.50]And if you'd never come for me
[00:32.10]I might've drowned in the melancholy
[00:36.00]I swore my loyalty to me (Me), myself (Myself), and I (I)
[00:40.50]Right before you lit my sky up
[00:46.50]All that time
[00:47.80]I sat alone in my tower
[00:49.60]You were just honing your powers
[00:51.50]Now I can see it all (See it all)
[00:56.20]Late one night
[00:57.50]You dug me out of my grave and
[00:59.30]Saved my heart from the fate of
[01:01.30]Ophelia (Ophelia)
[01:05.20]Keep it one hundred on the land (Land), the sea (Sea), the sky
[01:09.30]Pledge allegiance to your hands, your team, your vibes
[01:13.10]Don't care where the hell you've been (Been) 'cause now (Now) you're mine
[01:17.10]It's 'bout to be the sleepless night you've been dreaming of
[01:21.90]The fate of Ophelia
[01:26.40]The eldest daughter of a nobleman
[01:30.20]Ophelia lived in fantasy
[01:35.40]But love was a cold bed full of scorpions
[01:39.80]The venom stole her sanity
[01:44.00]And if you'd never come for me (Come for me)
[01:47.60]I might've lingered in purgatory
[01:51.50]You wrap around me like a chain (A chain), a crown (A crown), a vine (A vine)
[01:56.10]Pulling me into the fire
[02:02.00]All that time
[02:03.30]I sat alone in my tower
[02:05.10]You were just honing your powers
[02:06.90]Now I can see it all (See it all)
[02:11.40]Late one night
[02:12.90]You dug me out of my grave and
[02:14.80]Saved my heart from the fate of
[02:16.70]Ophelia (Ophelia)
[02:20.70]Keep it one hundred on the land (Land), the sea (The sea), the sky
[02:24.90]Pledge allegiance to your hands, your team, your vibes
[02:28.60]Don't care where the hell you've been (Been) 'cause now (Now) you're mine
[02:32.40]It's 'bout to be the sleepless night you've been dreaming of
[02:37.50]The fate of Ophelia
[02:39.70]'Tis locked inside my memory
[02:41.50]And only you possess the key
[02:43.40]No longer drowning and deceived
[02:45.30]All because you came for me
[02:47.20]Locked inside my memory
[02:49.00]And only you possess the key
[02:51.00]No longer drowning and deceived
[02:53.00]All because you came for me
[02:58.20]All that time
[02:59.40]I sat alone in my tower
[03:01.10]You were just honing your powers
[03:03.10]Now I can see it all (I can see it all)
[03:07.20]Late one night
[03:09.00]You dug me out of my grave and
[03:10.90]Saved my heart from the fate of
[03:13.10]Ophelia (Ophelia)
[03:16.90]Keep it one hundred on the land (Land), the sea (The sea), the sky
[03:20.80]Pledge allegiance to your hands (Your hands), your team, your vibes
[03:24.90]Don't care where the hell you've been (You've been) 'cause now ('Cause now) you're mine
[03:28.60]It's 'bout to be the sleepless night you've been dreaming of
[03:33.90]The fate of Ophelia
[03:37.20]You saved my heart from the fate of Ophelia
`

// demoSeed pre-bakes analyses for the demo song so a first run shows the
// full experience without an API key.
var demoSeed = map[string]player.SeedEntry{
	"I heard you calling on the megaphone": {
		Translation: "我听见你拿着扩音器在呼喊",
		Links: []player.Link{
			{FromWord: 1, ToWord: 2, Kind: player.LinkConsonantVowel},
			{FromWord: 3, ToWord: 4, Kind: player.LinkConsonantVowel},
		},
		Stress: []player.Mark{
			{Word: 1, Char: 2},
			{Word: 3, Char: 1},
			{Word: 6, Char: 2},
		},
		Explanation: "'Heard you' often connects as /hɜːrdʒu/.",
	},
	"You wanna see me all alone": {
		Translation: "你想看我孤身一人",
		Links: []player.Link{
			{FromWord: 4, ToWord: 5, Kind: player.LinkConsonantVowel},
		},
		Stress: []player.Mark{
			{Word: 1, Char: 1},
			{Word: 2, Char: 1},
			{Word: 5, Char: 1},
		},
		Explanation: "'Wanna' is a reduction of 'want to'.",
	},
	"As legend has it, you are quite the pyro": {
		Translation: "传说中，你是个不折不扣的纵火狂",
		Links: []player.Link{
			{FromWord: 2, ToWord: 3, Kind: player.LinkConsonantVowel},
			{FromWord: 3, ToWord: 4, Kind: player.LinkConsonantVowel},
		},
		Stress: []player.Mark{
			{Word: 1, Char: 0},
			{Word: 7, Char: 0},
		},
		Explanation: "Pyro /pai-ro/ means someone who loves fire.",
	},
	"You light the match to watch it blow": {
		Translation: "你点燃火柴，只为看它爆炸",
		Links: []player.Link{
			{FromWord: 5, ToWord: 6, Kind: player.LinkConsonantVowel},
		},
		Stress: []player.Mark{
			{Word: 1, Char: 2},
			{Word: 3, Char: 1},
			{Word: 7, Char: 2},
		},
		Explanation: "Notice the plosive sounds in light, match, blow.",
	},
	"And if you'd never come for me": {
		Translation: "如果你从未为我而来",
		Links: []player.Link{
			{FromWord: 1, ToWord: 2, Kind: player.LinkConsonantVowel},
		},
		Stress: []player.Mark{
			{Word: 3, Char: 0},
			{Word: 4, Char: 1},
		},
		Explanation: "'And if' blends into /ənɪf/ at speed.",
	},
	"I might've drowned in the melancholy": {
		Translation: "我或许早已溺毙于忧郁之中",
		Links: []player.Link{
			{FromWord: 2, ToWord: 3, Kind: player.LinkConsonantVowel},
		},
		Stress: []player.Mark{
			{Word: 2, Char: 2},
			{Word: 5, Char: 0},
		},
		Explanation: "'Might've' is a contraction of 'might have'.",
	},
}

// demoSong builds the bundled demo. Audio comes from the canonical URL
// when configured; otherwise a silent track long enough for the lyrics
// keeps the session usable, and recovery re-fetches the real audio later.
func demoSong(store player.SongStore) player.Song {
	lines := lrc.Parse(demoLyrics)
	applied := player.ApplySeed(lines, demoSeed)
	log.Debug("seeded demo lyrics", "lines", len(lines), "applied", applied)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	content, err := fetchDemoAudio(ctx)
	if err != nil {
		log.Warn("demo audio unavailable, using a silent track", "err", err)
		end := 0.0
		if len(lines) > 0 {
			end = lines[len(lines)-1].Time
		}
		content = silentWAV(end + 5)
	}

	song := player.Song{
		ID:        demoSongID,
		Name:      demoSongName,
		Audio:     content,
		Lyrics:    lines,
		CreatedAt: time.Now(),
	}

	if store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := store.Save(ctx, song); err != nil {
			log.Warn("could not save the demo song", "err", err)
		}
	}
	return song
}

// fetchDemoAudio downloads the demo song's audio from its canonical URL.
func fetchDemoAudio(ctx context.Context) ([]byte, error) {
	url := viper.GetString("demo.audio_url")
	if url == "" {
		return nil, fmt.Errorf("no demo audio url configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to build request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to get url: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP status %d", resp.StatusCode)
	}
	content, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("unable to read response: %w", err)
	}
	return content, nil
}

// silentWAV renders the given number of seconds of mono 16-bit silence at
// a low sample rate to keep the fallback track small.
func silentWAV(seconds float64) []byte {
	const rate = 8000
	if seconds < 1 {
		seconds = 1
	}
	n := int(seconds * rate)
	data := make([]byte, 44+n*2)

	copy(data[0:4], "RIFF")
	binary.LittleEndian.PutUint32(data[4:8], uint32(36+n*2))
	copy(data[8:12], "WAVE")
	copy(data[12:16], "fmt ")
	binary.LittleEndian.PutUint32(data[16:20], 16)
	binary.LittleEndian.PutUint16(data[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(data[22:24], 1) // mono
	binary.LittleEndian.PutUint32(data[24:28], rate)
	binary.LittleEndian.PutUint32(data[28:32], rate*2)
	binary.LittleEndian.PutUint16(data[32:34], 2)
	binary.LittleEndian.PutUint16(data[34:36], 16)
	copy(data[36:40], "data")
	binary.LittleEndian.PutUint32(data[40:44], uint32(n*2))
	return data
}
