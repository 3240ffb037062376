package tui

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ColonelBlimp/cwkeyer/internal/cw"
	"github.com/ColonelBlimp/cwkeyer/internal/keyer"
	"github.com/ColonelBlimp/cwkeyer/internal/session"
	"github.com/ColonelBlimp/cwkeyer/internal/timing"
)

type press struct {
	line keyer.Line
	down bool
}

type fakeController struct {
	presses  []press
	released int
	configs  []session.Config
	status   session.Status
	err      error
}

func (f *fakeController) Press(line keyer.Line, down bool) error {
	f.presses = append(f.presses, press{line, down})
	return f.err
}

func (f *fakeController) Release() error {
	f.released++
	return nil
}

func (f *fakeController) Reconfigure(cfg session.Config) error {
	f.configs = append(f.configs, cfg)
	return nil
}

func (f *fakeController) Status() session.Status {
	return f.status
}

var epoch = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func newTestModel(t *testing.T) (*Model, *fakeController, *time.Time) {
	t.Helper()
	ctrl := &fakeController{status: session.Status{Unit: timing.New(20)}}
	cfg := session.Config{WPM: 20, Mode: keyer.IambicB, ToneHz: 550}
	m := NewModel(ctrl, cfg, NewKeyMap([]string{"z"}, []string{"x"}, []string{"space"}), 120*time.Millisecond)
	now := epoch
	m.now = func() time.Time { return now }
	return m, ctrl, &now
}

func runeKey(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func TestModel_KeyPressesLine(t *testing.T) {
	m, ctrl, _ := newTestModel(t)

	m.Update(runeKey('z'))
	m.Update(runeKey('x'))

	want := []press{{keyer.Dot, true}, {keyer.Dash, true}}
	if len(ctrl.presses) != len(want) {
		t.Fatalf("presses = %+v, want %+v", ctrl.presses, want)
	}
	for i := range want {
		if ctrl.presses[i] != want[i] {
			t.Errorf("press %d = %+v, want %+v", i, ctrl.presses[i], want[i])
		}
	}
}

func TestModel_SpaceKeysStraightLine(t *testing.T) {
	m, ctrl, _ := newTestModel(t)

	m.Update(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}})

	if len(ctrl.presses) != 1 || ctrl.presses[0] != (press{keyer.StraightKey, true}) {
		t.Errorf("presses = %+v, want straight down", ctrl.presses)
	}
}

func TestModel_AutoRepeatKeepsLineHeld(t *testing.T) {
	m, ctrl, now := newTestModel(t)

	m.Update(runeKey('z'))
	for i := 1; i <= 5; i++ {
		*now = epoch.Add(time.Duration(i*50) * time.Millisecond)
		m.Update(runeKey('z'))
		m.Update(tickMsg(*now))
	}

	if len(ctrl.presses) != 1 {
		t.Errorf("presses = %+v, want a single down", ctrl.presses)
	}
}

func TestModel_ReleaseAfterTimeout(t *testing.T) {
	m, ctrl, _ := newTestModel(t)

	m.Update(runeKey('z'))

	m.Update(tickMsg(epoch.Add(120 * time.Millisecond)))
	if len(ctrl.presses) != 1 {
		t.Fatalf("released at the timeout boundary: %+v", ctrl.presses)
	}

	m.Update(tickMsg(epoch.Add(121 * time.Millisecond)))
	if len(ctrl.presses) != 2 || ctrl.presses[1] != (press{keyer.Dot, false}) {
		t.Fatalf("presses = %+v, want dot up after timeout", ctrl.presses)
	}

	// next event presses again
	m.Update(runeKey('z'))
	if len(ctrl.presses) != 3 || !ctrl.presses[2].down {
		t.Errorf("presses = %+v, want a new dot down", ctrl.presses)
	}
}

func TestModel_SpeedAndMode(t *testing.T) {
	m, ctrl, _ := newTestModel(t)

	m.Update(runeKey('+'))
	m.Update(runeKey('+'))
	m.Update(runeKey('-'))
	m.Update(tea.KeyMsg{Type: tea.KeyTab})

	if len(ctrl.configs) != 4 {
		t.Fatalf("Reconfigure calls = %d, want 4", len(ctrl.configs))
	}
	if got := ctrl.configs[2].WPM; got != 21 {
		t.Errorf("WPM after +,+,- = %d, want 21", got)
	}
	if got := ctrl.configs[3].Mode; got != keyer.Straight {
		t.Errorf("mode after tab = %v, want straight", got)
	}
}

func TestModel_SpeedClamped(t *testing.T) {
	m, ctrl, _ := newTestModel(t)
	m.cfg.WPM = timing.MinWPM

	m.Update(runeKey('-'))
	if got := ctrl.configs[0].WPM; got != timing.MinWPM {
		t.Errorf("WPM = %d, want %d", got, timing.MinWPM)
	}
}

func TestModel_ConfigMsg(t *testing.T) {
	m, ctrl, _ := newTestModel(t)

	m.Update(ConfigMsg(session.Config{WPM: 30, Mode: keyer.IambicA}))

	if m.cfg.WPM != 30 || len(ctrl.configs) != 1 {
		t.Errorf("cfg = %+v, configs = %+v", m.cfg, ctrl.configs)
	}
}

func TestModel_DecodedText(t *testing.T) {
	m, _, _ := newTestModel(t)

	for _, r := range "CQ DE" {
		m.Update(DecodedMsg(cw.Decoded{Character: r, IsWordSpace: r == ' '}))
	}
	if got := m.Text(); got != "CQ DE" {
		t.Errorf("Text() = %q, want %q", got, "CQ DE")
	}
	if !strings.Contains(m.View(), "CQ DE") {
		t.Errorf("View() missing decoded text:\n%s", m.View())
	}

	m.Update(tea.KeyMsg{Type: tea.KeyCtrlL})
	if m.Text() != "" {
		t.Errorf("Text() after clear = %q", m.Text())
	}
}

func TestModel_TextBounded(t *testing.T) {
	m, _, _ := newTestModel(t)

	for i := 0; i < maxTextRunes+10; i++ {
		m.Update(DecodedMsg(cw.Decoded{Character: 'E'}))
	}
	if len(m.text) != maxTextRunes {
		t.Errorf("len(text) = %d, want %d", len(m.text), maxTextRunes)
	}
}

func TestModel_Quit(t *testing.T) {
	m, ctrl, _ := newTestModel(t)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if cmd == nil {
		t.Fatal("esc should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("esc should quit")
	}
	if ctrl.released != 1 {
		t.Errorf("Release calls = %d, want 1", ctrl.released)
	}
}

func TestModel_TickRefreshesStatus(t *testing.T) {
	m, ctrl, _ := newTestModel(t)

	ctrl.status = session.Status{
		Keyer:   keyer.Snapshot{State: keyer.SendingDah, Mode: keyer.IambicB, Sounding: true},
		Pending: cw.Symbol{cw.Dit, cw.Dah},
		Unit:    timing.New(25),
	}
	_, cmd := m.Update(tickMsg(epoch))
	if cmd == nil {
		t.Error("tick should schedule the next tick")
	}

	view := m.View()
	for _, want := range []string{"25 WPM", "iambic-b", "550 Hz", "dah", ".-", "●"} {
		if !strings.Contains(view, want) {
			t.Errorf("View() missing %q:\n%s", want, view)
		}
	}
}

func TestModel_PressErrorQuits(t *testing.T) {
	m, ctrl, _ := newTestModel(t)
	ctrl.err = session.ErrStopped

	_, cmd := m.Update(runeKey('z'))
	if cmd == nil {
		t.Fatal("press error should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("press error should quit")
	}
	if m.Err() != session.ErrStopped {
		t.Errorf("Err() = %v, want %v", m.Err(), session.ErrStopped)
	}
}
