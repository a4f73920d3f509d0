// Package library persists songs, their lyrics, and their cached analyses
// in a local SQLite database.
package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/zstd"
	_ "github.com/mattn/go-sqlite3"

	"github.com/dgnsrekt/singlingo/player"
)

// ErrUnavailable is returned once the library has tripped its breaker
// after a storage failure. The session keeps working in memory.
var ErrUnavailable = errors.New("library: storage unavailable")

// compressThreshold is the smallest audio payload worth compressing.
const compressThreshold = 1024

// Library is a SQLite-backed song store. It implements player.SongStore.
// Audio blobs above the threshold are zstd compressed when that actually
// shrinks them.
type Library struct {
	db      *sql.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	broken  atomic.Bool
}

// Open opens or creates the library database at path.
func Open(path string) (*Library, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("library: create dir: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("library: open: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS songs (
			id               TEXT PRIMARY KEY,
			name             TEXT NOT NULL,
			audio            BLOB,
			audio_compressed INTEGER NOT NULL DEFAULT 0,
			lyrics           TEXT NOT NULL,
			created_at       DATETIME NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("library: init schema: %w", err)
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("library: zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("library: zstd decoder: %w", err)
	}

	log.Debug("library opened", "path", path)
	return &Library{db: db, encoder: encoder, decoder: decoder}, nil
}

// Available reports whether the breaker is still closed. Callers use it to
// hide save affordances once storage has failed.
func (l *Library) Available() bool {
	return !l.broken.Load()
}

// Save upserts a full song snapshot. The stored created_at of an existing
// row is preserved so re-saves keep their place in the library ordering.
func (l *Library) Save(ctx context.Context, song player.Song) error {
	if l.broken.Load() {
		return ErrUnavailable
	}

	lyrics, err := json.Marshal(song.Lyrics)
	if err != nil {
		return fmt.Errorf("library: encode lyrics: %w", err)
	}

	audio := song.Audio
	compressed := 0
	if len(audio) > compressThreshold {
		packed := l.encoder.EncodeAll(audio, nil)
		if len(packed) < len(audio) {
			audio = packed
			compressed = 1
		}
	}

	_, err = l.db.ExecContext(ctx, `
		INSERT INTO songs (id, name, audio, audio_compressed, lyrics, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			audio = excluded.audio,
			audio_compressed = excluded.audio_compressed,
			lyrics = excluded.lyrics
	`, song.ID, song.Name, audio, compressed, string(lyrics), song.CreatedAt)
	if err != nil {
		l.trip(err)
		return fmt.Errorf("library: save %s: %w", song.ID, err)
	}
	return nil
}

// LoadAll returns every stored song, newest first.
func (l *Library) LoadAll(ctx context.Context) ([]player.Song, error) {
	if l.broken.Load() {
		return nil, ErrUnavailable
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, name, audio, audio_compressed, lyrics, created_at
		FROM songs ORDER BY created_at DESC
	`)
	if err != nil {
		l.trip(err)
		return nil, fmt.Errorf("library: load: %w", err)
	}
	defer rows.Close()

	var songs []player.Song
	for rows.Next() {
		var song player.Song
		var audio []byte
		var compressed int
		var lyrics string
		if err := rows.Scan(&song.ID, &song.Name, &audio, &compressed, &lyrics, &song.CreatedAt); err != nil {
			return nil, fmt.Errorf("library: scan: %w", err)
		}
		if compressed == 1 {
			audio, err = l.decoder.DecodeAll(audio, nil)
			if err != nil {
				// A corrupt blob loses its audio, not the whole library.
				log.Warn("corrupt audio blob, skipping", "id", song.ID, "err", err)
				audio = nil
			}
		}
		song.Audio = audio
		if err := json.Unmarshal([]byte(lyrics), &song.Lyrics); err != nil {
			log.Warn("corrupt lyrics, skipping song", "id", song.ID, "err", err)
			continue
		}
		songs = append(songs, song)
	}
	if err := rows.Err(); err != nil {
		l.trip(err)
		return nil, fmt.Errorf("library: load: %w", err)
	}
	return songs, nil
}

// Delete removes a song by id. Deleting an unknown id is not an error.
func (l *Library) Delete(ctx context.Context, id string) error {
	if l.broken.Load() {
		return ErrUnavailable
	}
	if _, err := l.db.ExecContext(ctx, `DELETE FROM songs WHERE id = ?`, id); err != nil {
		l.trip(err)
		return fmt.Errorf("library: delete %s: %w", id, err)
	}
	return nil
}

// Close closes the database.
func (l *Library) Close() error {
	l.encoder.Close()
	l.decoder.Close()
	return l.db.Close()
}

// trip opens the breaker. Context cancellation is the caller's doing, not
// a storage fault.
func (l *Library) trip(err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	if l.broken.CompareAndSwap(false, true) {
		log.Error("library storage failed, continuing in memory only", "err", err)
	}
}
