package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"
	"github.com/muesli/reflow/truncate"
	"github.com/sahilm/fuzzy"

	"github.com/dgnsrekt/singlingo/player"
)

type filterState int

const (
	unfiltered filterState = iota
	filtering
	filterApplied
)

type libraryModel struct {
	common *commonModel

	songs    []player.Song
	visible  []int // indexes into songs, filter applied
	cursor   int
	loaded   bool
	loadErr  error
	filter   textinput.Model
	fstate   filterState
}

func newLibraryModel(common *commonModel) libraryModel {
	ti := textinput.New()
	ti.Prompt = "Filter: "
	ti.CharLimit = 60
	return libraryModel{common: common, filter: ti}
}

func (m *libraryModel) setSize(width, height int) {
	m.filter.Width = max(width-12, 10)
}

func (m libraryModel) filtering() bool { return m.fstate == filtering }

func (m libraryModel) update(msg tea.Msg) (libraryModel, tea.Cmd) {
	switch msg := msg.(type) {
	case songsLoadedMsg:
		m.loaded = true
		m.loadErr = msg.err
		m.songs = msg.songs
		m.applyFilter()
		if m.cursor >= len(m.visible) {
			m.cursor = max(len(m.visible)-1, 0)
		}
		return m, nil

	case songDeletedMsg:
		if msg.err != nil {
			return m, notify("Delete failed: " + msg.err.Error())
		}
		return m, tea.Batch(notify("Song deleted."), loadSongs(m.common.cfg.Library))

	case tea.KeyMsg:
		if m.fstate == filtering {
			return m.updateFilter(msg)
		}
		switch msg.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.visible)-1 {
				m.cursor++
			}
		case "enter":
			if song, ok := m.selected(); ok {
				return m, func() tea.Msg { return songChosenMsg(song) }
			}
		case "x", "delete":
			if song, ok := m.selected(); ok {
				return m, deleteSong(m.common.cfg.Library, song.ID)
			}
		case "/":
			m.fstate = filtering
			m.filter.Focus()
			return m, textinput.Blink
		case "r":
			return m, loadSongs(m.common.cfg.Library)
		case "esc":
			if m.fstate == filterApplied {
				m.fstate = unfiltered
				m.filter.SetValue("")
				m.applyFilter()
			}
		}
	}
	return m, nil
}

func (m libraryModel) updateFilter(msg tea.KeyMsg) (libraryModel, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.filter.Blur()
		if m.filter.Value() == "" {
			m.fstate = unfiltered
		} else {
			m.fstate = filterApplied
		}
		return m, nil
	case "esc":
		m.fstate = unfiltered
		m.filter.SetValue("")
		m.filter.Blur()
		m.applyFilter()
		return m, nil
	}
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.applyFilter()
	return m, cmd
}

// applyFilter recomputes the visible set with a fuzzy match over names.
func (m *libraryModel) applyFilter() {
	pattern := m.filter.Value()
	if pattern == "" {
		m.visible = make([]int, len(m.songs))
		for i := range m.songs {
			m.visible[i] = i
		}
		return
	}
	names := make([]string, len(m.songs))
	for i, s := range m.songs {
		names[i] = s.Name
	}
	matches := fuzzy.Find(pattern, names)
	m.visible = make([]int, len(matches))
	for i, match := range matches {
		m.visible[i] = match.Index
	}
	if m.cursor >= len(m.visible) {
		m.cursor = max(len(m.visible)-1, 0)
	}
}

func (m libraryModel) selected() (player.Song, bool) {
	if m.cursor < 0 || m.cursor >= len(m.visible) {
		return player.Song{}, false
	}
	return m.songs[m.visible[m.cursor]], true
}

func (m libraryModel) view() string {
	var b strings.Builder
	b.WriteString("  " + titleStyle.Render("Library") + "\n\n")

	if m.fstate != unfiltered {
		b.WriteString("  " + m.filter.View() + "\n\n")
	}

	switch {
	case m.loadErr != nil:
		b.WriteString("  " + subtleStyle.Render("Library unavailable: "+m.loadErr.Error()) + "\n")
	case !m.loaded:
		b.WriteString("  " + subtleStyle.Render("Loading…") + "\n")
	case len(m.visible) == 0:
		b.WriteString("  " + subtleStyle.Render("No songs. Save one from the player with s.") + "\n")
	default:
		width := max(m.common.width-6, 20)
		for row, idx := range m.visible {
			song := m.songs[idx]
			label := fmt.Sprintf("%s  %s · %d lines",
				song.Name, humanize.Time(song.CreatedAt), len(song.Lyrics))
			label = truncate.StringWithTail(label, uint(width), ellipsis)
			if row == m.cursor {
				b.WriteString("  " + selectedItemStyle.Render("> "+label) + "\n")
			} else {
				b.WriteString("    " + dimLineStyle.Render(label) + "\n")
			}
		}
	}

	b.WriteString("\n  " + statusBarStyle.Render("enter play · x delete · / filter · r reload · tab player · q quit"))
	return b.String()
}

func deleteSong(library player.SongStore, id string) tea.Cmd {
	return func() tea.Msg {
		if library == nil {
			return songDeletedMsg{id: id, err: fmt.Errorf("no library configured")}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return songDeletedMsg{id: id, err: library.Delete(ctx, id)}
	}
}
