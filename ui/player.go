package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/reflow/truncate"

	"github.com/dgnsrekt/singlingo/player"
)

// rateStep is the increment for the speed keys.
const rateStep = 0.25

type playerModel struct {
	common *commonModel

	status   player.Status
	spinner  spinner.Model
	progress progress.Model

	// Translation editing overlay.
	editing bool
	editor  textinput.Model
}

func newPlayerModel(common *commonModel) playerModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	ti := textinput.New()
	ti.Placeholder = "translation"
	ti.CharLimit = 200
	return playerModel{
		common:   common,
		spinner:  sp,
		progress: progress.New(progress.WithDefaultGradient()),
		editor:   ti,
	}
}

func (m *playerModel) setSize(width, height int) {
	m.progress.Width = max(width-20, 10)
	m.editor.Width = max(width-10, 10)
}

func (m playerModel) update(msg tea.Msg) (playerModel, tea.Cmd) {
	ctrl := m.common.cfg.Controller

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.editing {
			return m.updateEditor(msg)
		}
		switch msg.String() {
		case " ":
			ctrl.TogglePlay()
		case "left", "h":
			if i := m.status.ActiveLine; i > 0 {
				ctrl.ClickLine(i - 1)
			}
		case "right", "n":
			if i := m.status.ActiveLine; i >= 0 && i+1 < len(m.status.Lines) {
				ctrl.ClickLine(i + 1)
			}
		case "l":
			ctrl.ToggleLoop()
		case "+", "=":
			ctrl.SetRate(m.status.Playback.Rate + rateStep)
		case "-", "_":
			if r := m.status.Playback.Rate - rateStep; r > 0 {
				ctrl.SetRate(r)
			}
		case "s":
			return m, saveSong(ctrl)
		case "e":
			if line, ok := m.activeLine(); ok {
				m.editing = true
				m.editor.SetValue(line.Translation)
				m.editor.Focus()
				return m, textinput.Blink
			}
		case "c":
			if line, ok := m.activeLine(); ok {
				if err := clipboard.WriteAll(line.Text); err == nil {
					return m, notify("Copied line to clipboard.")
				}
			}
		}

	case statusTickMsg:
		m.status = ctrl.Status()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		pm, cmd := m.progress.Update(msg)
		m.progress = pm.(progress.Model)
		return m, cmd
	}

	return m, nil
}

func (m playerModel) updateEditor(msg tea.KeyMsg) (playerModel, tea.Cmd) {
	switch msg.String() {
	case "enter":
		index := m.status.ActiveLine
		value := strings.TrimSpace(m.editor.Value())
		m.editing = false
		m.editor.Blur()
		if m.common.cfg.Controller.EditTranslation(index, value) {
			return m, notify("Translation updated.")
		}
		return m, nil
	case "esc":
		m.editing = false
		m.editor.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.editor, cmd = m.editor.Update(msg)
	return m, cmd
}

func (m playerModel) activeLine() (player.TimedLine, bool) {
	i := m.status.ActiveLine
	if i < 0 || i >= len(m.status.Lines) {
		return player.TimedLine{}, false
	}
	return m.status.Lines[i], true
}

func (m playerModel) view(notice string) string {
	var b strings.Builder
	width := max(m.common.width, 20)

	name := m.status.SongName
	if name == "" {
		name = "No song loaded"
	}
	b.WriteString("  " + titleStyle.Render(truncate.StringWithTail(name, uint(width-4), ellipsis)))
	b.WriteString("\n\n")

	b.WriteString(m.lyricsView())
	b.WriteString("\n")
	b.WriteString(m.transportView())
	b.WriteString("\n")
	b.WriteString(m.statusBarView(notice))
	return b.String()
}

// lyricsView renders a window of lines around the active one. The active
// line carries its pronunciation annotations and translation.
func (m playerModel) lyricsView() string {
	lines := m.status.Lines
	if len(lines) == 0 {
		return subtleStyle.Render("  No lyrics. Load an LRC file or pick a song from the library.") + "\n"
	}

	window := max(m.common.height-10, 4)
	active := m.status.ActiveLine
	start := active - window/2
	if start < 0 {
		start = 0
	}
	end := min(start+window, len(lines))

	var b strings.Builder
	for i := start; i < end; i++ {
		line := lines[i]
		if i == active {
			b.WriteString("  " + m.annotatedLine(line) + m.lineBadge(i) + "\n")
			if line.Translation != "" {
				b.WriteString("    " + translationStyle.Render(line.Translation) + "\n")
			}
			if line.Analysis != nil && line.Analysis.Explanation != "" {
				wrapped := truncate.StringWithTail(line.Analysis.Explanation, uint(max(m.common.width-6, 10)), ellipsis)
				b.WriteString("    " + explanationStyle.Render(wrapped) + "\n")
			}
			if m.editing {
				b.WriteString("    " + m.editor.View() + "\n")
			}
		} else {
			b.WriteString("  " + dimLineStyle.Render(line.Text) + "\n")
		}
	}
	return b.String()
}

// lineBadge marks in-flight analysis on the active line.
func (m playerModel) lineBadge(index int) string {
	if m.common.cfg.Controller.Pipeline().Pending(index) {
		return " " + m.spinner.View()
	}
	return ""
}

// annotatedLine renders the line word by word: stressed characters pop,
// elided characters fade, and linked word pairs are joined with a liaison
// mark.
func (m playerModel) annotatedLine(line player.TimedLine) string {
	if line.Analysis == nil {
		return activeLineStyle.Render(line.Text)
	}

	words := strings.Fields(line.Text)
	linked := make(map[int]bool)
	for _, l := range line.Analysis.Links {
		if l.ToWord == l.FromWord+1 {
			linked[l.FromWord] = true
		}
	}
	stress := markSet(line.Analysis.Stress)
	elision := markSet(line.Analysis.Elisions)

	var b strings.Builder
	for w, word := range words {
		for c, r := range []rune(word) {
			switch {
			case stress[[2]int{w, c}]:
				b.WriteString(stressStyle.Render(string(r)))
			case elision[[2]int{w, c}]:
				b.WriteString(elisionStyle.Render(string(r)))
			default:
				b.WriteString(activeLineStyle.Render(string(r)))
			}
		}
		if w < len(words)-1 {
			if linked[w] {
				b.WriteString(linkStyle.Render("‿"))
			} else {
				b.WriteString(" ")
			}
		}
	}
	return b.String()
}

func markSet(marks []player.Mark) map[[2]int]bool {
	set := make(map[[2]int]bool, len(marks))
	for _, mk := range marks {
		set[[2]int{mk.Word, mk.Char}] = true
	}
	return set
}

func (m playerModel) transportView() string {
	d := m.status.Playback.Duration
	t := m.status.Playback.CurrentTime

	var percent float64
	if d > 0 {
		percent = t / d
	}
	icon := "⏸"
	if m.status.Playback.Playing {
		icon = "▶"
	}

	bar := m.progress.ViewAs(percent)
	clock := fmt.Sprintf("%s / %s", formatTime(t), formatTime(d))
	out := fmt.Sprintf("  %s %s %s  %.2fx", icon, bar, clock, m.status.Playback.Rate)
	if m.status.Playback.Loop != nil {
		w := m.status.Playback.Loop
		out += "  " + loopStyle.Render(fmt.Sprintf("loop %s-%s", formatTime(w.Start), formatTime(w.End)))
	}
	return out
}

func (m playerModel) statusBarView(notice string) string {
	if notice != "" {
		return "  " + noticeStyle.Render(notice)
	}
	help := "space play/pause · ←/→ lines · l loop · +/- speed · e edit · s save · tab library · q quit"
	return "  " + statusBarStyle.Render(truncate.StringWithTail(help, uint(max(m.common.width-4, 10)), ellipsis))
}

func saveSong(ctrl *player.Controller) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		song, err := ctrl.SaveToLibrary(ctx)
		if err != nil {
			return noticeMsg("Save failed: " + err.Error())
		}
		return noticeMsg(fmt.Sprintf("Saved %q to library.", song.Name))
	}
}

func notify(msg string) tea.Cmd {
	return func() tea.Msg { return noticeMsg(msg) }
}

func formatTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
