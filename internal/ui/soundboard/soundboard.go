// Package soundboard is an interactive list of a theme's event sounds.
// Enter plays the selected event; completions show up as they arrive.
package soundboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"

	"github.com/llehouerou/eventsound/internal/sounderr"
	"github.com/llehouerou/eventsound/internal/ui/styles"
)

// historySize is how many finished sounds the status panel keeps.
const historySize = 5

// Player starts and stops the board's sounds.
type Player interface {
	Play(eventID string) (uint32, error)
	Cancel(id uint32) error
}

// CompletedMsg reports the end of a sound started by the board.
type CompletedMsg struct {
	ID  uint32
	Err error
}

// EventsMsg replaces the board's events, e.g. after the theme changed on
// disk.
type EventsMsg struct {
	Events []Event
	Err    error
}

// NoticeMsg is a line some library printed to stderr while the board was
// up.
type NoticeMsg struct {
	Line string
}

type item Event

func (i item) Title() string       { return i.ID }
func (i item) FilterValue() string { return i.ID }

func (i item) Description() string {
	if i.Path == "" {
		return "unresolved"
	}
	return fmt.Sprintf("%s · %s", i.Path, humanize.IBytes(uint64(max(i.Size, 0))))
}

type voice struct {
	id      uint32
	event   string
	started time.Time
}

type finished struct {
	voice
	err error
	at  time.Time
}

// Model is the bubbletea model of the board.
type Model struct {
	list    list.Model
	player  Player
	theme   string
	voices  []voice
	history []finished
	err     error
	notice  string
	width   int
	height  int
	now     func() time.Time
}

// New returns a board listing events of the named theme.
func New(themeName string, events []Event, player Player) Model {
	l := list.New(toItems(events), list.NewDefaultDelegate(), 0, 0)
	l.SetShowTitle(false)
	l.SetShowHelp(false)
	l.SetStatusBarItemName("event", "events")
	l.DisableQuitKeybindings()
	return Model{
		list:   l,
		player: player,
		theme:  themeName,
		now:    time.Now,
	}
}

func toItems(events []Event) []list.Item {
	items := make([]list.Item, len(events))
	for i, ev := range events {
		items[i] = item(ev)
	}
	return items
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.list.SetSize(msg.Width, m.listHeight())
		return m, nil

	case CompletedMsg:
		m.complete(msg)
		m.list.SetSize(m.width, m.listHeight())
		return m, nil

	case NoticeMsg:
		m.notice = msg.Line
		m.list.SetSize(m.width, m.listHeight())
		return m, nil

	case EventsMsg:
		m.err = msg.Err
		if msg.Err != nil {
			return m, nil
		}
		return m, m.list.SetItems(toItems(msg.Events))

	case tea.KeyMsg:
		if m.list.SettingFilter() {
			break
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "enter":
			m.play()
			m.list.SetSize(m.width, m.listHeight())
			return m, nil
		case "c":
			if n := len(m.voices); n > 0 {
				m.cancel(m.voices[n-1].id)
			}
			return m, nil
		case "C":
			for _, v := range m.voices {
				m.cancel(v.id)
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *Model) play() {
	it, ok := m.list.SelectedItem().(item)
	if !ok {
		return
	}
	id, err := m.player.Play(it.ID)
	if err != nil {
		m.err = err
		return
	}
	m.err = nil
	m.voices = append(m.voices, voice{id: id, event: it.ID, started: m.now()})
}

func (m *Model) cancel(id uint32) {
	if err := m.player.Cancel(id); err != nil {
		m.err = err
	}
}

func (m *Model) complete(msg CompletedMsg) {
	for i, v := range m.voices {
		if v.id != msg.ID {
			continue
		}
		m.voices = append(m.voices[:i], m.voices[i+1:]...)
		m.history = append([]finished{{voice: v, err: msg.Err, at: m.now()}}, m.history...)
		if len(m.history) > historySize {
			m.history = m.history[:historySize]
		}
		return
	}
}

// Playing returns the ids of sounds still playing, oldest first.
func (m Model) Playing() []uint32 {
	ids := make([]uint32, len(m.voices))
	for i, v := range m.voices {
		ids[i] = v.id
	}
	return ids
}

func (m Model) statusLines() []string {
	s := styles.P().S()
	now := m.now()
	var lines []string
	for _, v := range m.voices {
		lines = append(lines, s.Voice.Render(fmt.Sprintf("▶ %s #%d", v.event, v.id))+
			s.Muted.Render(fmt.Sprintf("  %s", now.Sub(v.started).Round(100*time.Millisecond))))
	}
	for _, f := range m.history {
		mark, text := s.Success.Render("✓"), "done"
		if f.err != nil {
			mark, text = s.Error.Render("✗"), f.err.Error()
			if sounderr.CodeOf(f.err) == sounderr.Canceled {
				mark = s.Warning.Render("■")
			}
		}
		lines = append(lines, fmt.Sprintf("%s %s #%d %s", mark, f.event, f.id,
			s.Muted.Render(text+" · "+humanize.RelTime(f.at, now, "ago", "from now"))))
	}
	if m.notice != "" {
		lines = append(lines, s.Warning.Render(m.notice))
	}
	if m.err != nil {
		lines = append(lines, s.Error.Render("error: "+m.err.Error()))
	}
	return lines
}

// listHeight is what remains for the list below the header and above the
// status panel and help line.
func (m Model) listHeight() int {
	status := len(m.statusLines())
	if status > 0 {
		status += 2
	}
	return max(m.height-2-status, 1)
}

func (m Model) View() string {
	p := styles.P()
	s := p.S()
	width := max(m.width, 1)

	header := p.Title("eventsound") + s.Muted.Render(" · theme "+m.theme)
	help := s.Subtle.Render("enter play · c cancel · C cancel all · / filter · q quit")

	parts := []string{ansi.Truncate(header, width, "…"), m.list.View()}
	if lines := m.statusLines(); len(lines) > 0 {
		inner := max(width-2, 1)
		for i, l := range lines {
			lines[i] = ansi.Truncate(l, inner, "…")
		}
		parts = append(parts, s.Panel.Width(inner).Render(strings.Join(lines, "\n")))
	}
	parts = append(parts, ansi.Truncate(help, width, "…"))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}
