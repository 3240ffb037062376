// Package tui provides the Bubble Tea keying interface.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ColonelBlimp/cwkeyer/internal/cw"
	"github.com/ColonelBlimp/cwkeyer/internal/keyer"
	"github.com/ColonelBlimp/cwkeyer/internal/session"
	"github.com/ColonelBlimp/cwkeyer/internal/timing"
)

const (
	refreshInterval = 15 * time.Millisecond
	defaultWidth    = 80
	maxTextRunes    = 4096
)

var (
	titleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A")).Bold(true)
	headerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C"))
	textStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
	toneOnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A")).Bold(true)
	toneOffStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4A4A4A"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F"))
)

// Controller is the keying session driven by the UI.
type Controller interface {
	Press(line keyer.Line, down bool) error
	Release() error
	Reconfigure(cfg session.Config) error
	Status() session.Status
}

// DecodedMsg carries one decoded character into the UI.
type DecodedMsg cw.Decoded

// ConfigMsg replaces the session settings, e.g. after a config file reload.
type ConfigMsg session.Config

type tickMsg time.Time

// Model implements the Bubble Tea keying UI.
type Model struct {
	ctrl           Controller
	cfg            session.Config
	keys           KeyMap
	help           help.Model
	releaseTimeout time.Duration
	now            func() time.Time

	// last key event per held line; terminals send no key-up
	held map[keyer.Line]time.Time

	text   []rune
	status session.Status
	err    error

	width  int
	height int
}

// NewModel constructs a keying TUI model. releaseTimeout is how long a key
// counts as held after its last press or auto-repeat event.
func NewModel(ctrl Controller, cfg session.Config, keys KeyMap, releaseTimeout time.Duration) *Model {
	return &Model{
		ctrl:           ctrl,
		cfg:            cfg,
		keys:           keys,
		help:           help.New(),
		releaseTimeout: releaseTimeout,
		now:            time.Now,
		held:           make(map[keyer.Line]time.Time),
		status:         ctrl.Status(),
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tick()
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		return m, nil
	case tea.KeyMsg:
		return m, m.handleKey(msg)
	case tickMsg:
		m.releaseExpired(time.Time(msg))
		m.status = m.ctrl.Status()
		return m, tick()
	case DecodedMsg:
		m.appendDecoded(cw.Decoded(msg))
		return m, nil
	case ConfigMsg:
		m.reconfigure(session.Config(msg))
		return m, nil
	default:
		return m, nil
	}
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		_ = m.ctrl.Release()
		return tea.Quit
	case key.Matches(msg, m.keys.Dot):
		return m.hold(keyer.Dot)
	case key.Matches(msg, m.keys.Dash):
		return m.hold(keyer.Dash)
	case key.Matches(msg, m.keys.Straight):
		return m.hold(keyer.StraightKey)
	case key.Matches(msg, m.keys.Faster):
		m.cfg.WPM = timing.ClampWPM(m.cfg.WPM + 1)
		m.reconfigure(m.cfg)
	case key.Matches(msg, m.keys.Slower):
		m.cfg.WPM = timing.ClampWPM(m.cfg.WPM - 1)
		m.reconfigure(m.cfg)
	case key.Matches(msg, m.keys.Mode):
		m.cfg.Mode = nextMode(m.cfg.Mode)
		m.reconfigure(m.cfg)
	case key.Matches(msg, m.keys.Clear):
		m.text = m.text[:0]
	}
	return nil
}

func nextMode(mode keyer.Mode) keyer.Mode {
	switch mode {
	case keyer.Straight:
		return keyer.IambicA
	case keyer.IambicA:
		return keyer.IambicB
	default:
		return keyer.Straight
	}
}

// hold presses line on its first event and refreshes it on auto-repeat.
func (m *Model) hold(line keyer.Line) tea.Cmd {
	now := m.now()
	if _, ok := m.held[line]; !ok {
		if err := m.ctrl.Press(line, true); err != nil {
			m.err = err
			return tea.Quit
		}
	}
	m.held[line] = now
	return nil
}

// releaseExpired lets go of every line without an event for releaseTimeout.
func (m *Model) releaseExpired(now time.Time) {
	for line, last := range m.held {
		if now.Sub(last) <= m.releaseTimeout {
			continue
		}
		delete(m.held, line)
		if err := m.ctrl.Press(line, false); err != nil {
			m.err = err
		}
	}
}

func (m *Model) reconfigure(cfg session.Config) {
	m.cfg = cfg
	if err := m.ctrl.Reconfigure(cfg); err != nil {
		m.err = err
	}
}

func (m *Model) appendDecoded(d cw.Decoded) {
	m.text = append(m.text, d.Character)
	if len(m.text) > maxTextRunes {
		m.text = append(m.text[:0], m.text[len(m.text)-maxTextRunes:]...)
	}
}

// Text returns everything decoded so far.
func (m *Model) Text() string {
	return string(m.text)
}

// Err returns the error that stopped the UI, if any.
func (m *Model) Err() error {
	return m.err
}

// View implements tea.Model.
func (m *Model) View() string {
	width := m.width
	if width <= 0 {
		width = defaultWidth
	}

	lines := []string{
		m.renderHeader(),
		m.renderKeyer(),
		"",
		textStyle.Render(tail(string(m.text), width)),
		"",
		m.help.View(m.keys),
	}
	if m.err != nil {
		lines = append(lines, errorStyle.Render(m.err.Error()))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderHeader() string {
	segments := []string{
		fmt.Sprintf("%d WPM", m.status.Unit.WPM),
		m.status.Keyer.Mode.String(),
		fmt.Sprintf("%.0f Hz", m.cfg.ToneHz),
	}
	if m.cfg.FarnsworthWPM > 0 {
		segments = append(segments, fmt.Sprintf("Farnsworth %d", m.cfg.FarnsworthWPM))
	}
	return titleStyle.Render("cwkeyer") + "  " + headerStyle.Render(strings.Join(segments, " · "))
}

func (m *Model) renderKeyer() string {
	lamp := toneOffStyle.Render("○")
	if m.status.Keyer.Sounding {
		lamp = toneOnStyle.Render("●")
	}
	state := fmt.Sprintf("%-7s", m.status.Keyer.State.String())
	return lamp + " " + headerStyle.Render(state) + " " + pendingStyle.Render(m.status.Pending.String())
}
