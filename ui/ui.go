// Package ui provides the terminal interface: a library browser and the
// synchronized lyric player view.
package ui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/singlingo/player"
)

// statusInterval is how often the view re-samples the session.
const statusInterval = 100 * time.Millisecond

// noticeTimeout is how long transient notices stay in the status bar.
const noticeTimeout = 3 * time.Second

const ellipsis = "…"

// Config configures the program.
type Config struct {
	Controller *player.Controller
	Library    player.SongStore // nil when storage is unavailable
	ShowMouse  bool
}

// NewProgram returns a new Tea program. Controller notices are forwarded
// into the program as messages.
func NewProgram(cfg Config) *tea.Program {
	m := newModel(cfg)
	opts := []tea.ProgramOption{tea.WithAltScreen()}
	if cfg.ShowMouse {
		opts = append(opts, tea.WithMouseCellMotion())
	}
	p := tea.NewProgram(m, opts...)
	cfg.Controller.OnNotice(func(msg string) {
		p.Send(noticeMsg(msg))
	})
	return p
}

// state is the top-level application state.
type state int

const (
	stateShowPlayer state = iota
	stateShowLibrary
)

func (s state) String() string {
	return map[state]string{
		stateShowPlayer:  "showing player",
		stateShowLibrary: "showing library",
	}[s]
}

// Common stuff both sub-models need.
type commonModel struct {
	cfg    Config
	width  int
	height int
}

type model struct {
	common *commonModel
	state  state

	playerView  playerModel
	libraryView libraryModel

	notice   string
	noticeAt time.Time
}

func newModel(cfg Config) tea.Model {
	common := commonModel{cfg: cfg}
	return model{
		common:      &common,
		state:       stateShowPlayer,
		playerView:  newPlayerModel(&common),
		libraryView: newLibraryModel(&common),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(statusTick(), m.playerView.spinner.Tick)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit

		case "q":
			// The filter input and translation editor own their keys.
			if m.capturingInput() {
				break
			}
			return m, tea.Quit

		case "tab":
			if m.capturingInput() {
				break
			}
			if m.state == stateShowPlayer {
				m.state = stateShowLibrary
				return m, loadSongs(m.common.cfg.Library)
			}
			m.state = stateShowPlayer
			return m, nil

		case "esc":
			if m.state == stateShowLibrary && !m.libraryView.filtering() {
				m.state = stateShowPlayer
				return m, nil
			}
		}

	case tea.WindowSizeMsg:
		m.common.width = msg.Width
		m.common.height = msg.Height
		m.playerView.setSize(msg.Width, msg.Height)
		m.libraryView.setSize(msg.Width, msg.Height)

	case statusTickMsg:
		cmds = append(cmds, statusTick())

	case noticeMsg:
		m.notice = string(msg)
		m.noticeAt = time.Now()
		return m, nil

	case songChosenMsg:
		if err := m.common.cfg.Controller.LoadSong(player.Song(msg)); err != nil {
			log.Error("loading song failed", "id", msg.ID, "err", err)
		}
		m.state = stateShowPlayer
		return m, nil
	}

	if time.Since(m.noticeAt) > noticeTimeout {
		m.notice = ""
	}

	switch m.state {
	case stateShowPlayer:
		pm, cmd := m.playerView.update(msg)
		m.playerView = pm
		cmds = append(cmds, cmd)
	case stateShowLibrary:
		lm, cmd := m.libraryView.update(msg)
		m.libraryView = lm
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

func (m model) View() string {
	switch m.state {
	case stateShowLibrary:
		return m.libraryView.view()
	default:
		return m.playerView.view(m.notice)
	}
}

func (m model) capturingInput() bool {
	if m.state == stateShowLibrary && m.libraryView.filtering() {
		return true
	}
	if m.state == stateShowPlayer && m.playerView.editing {
		return true
	}
	return false
}

// COMMANDS

func statusTick() tea.Cmd {
	return tea.Tick(statusInterval, func(time.Time) tea.Msg {
		return statusTickMsg{}
	})
}

func loadSongs(library player.SongStore) tea.Cmd {
	return func() tea.Msg {
		if library == nil {
			return songsLoadedMsg{}
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		songs, err := library.LoadAll(ctx)
		if err != nil {
			log.Error("loading library failed", "err", err)
			return songsLoadedMsg{err: err}
		}
		return songsLoadedMsg{songs: songs}
	}
}
