package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

// KeyMap holds the bindings of the keying screen.
type KeyMap struct {
	Dot      key.Binding
	Dash     key.Binding
	Straight key.Binding
	Faster   key.Binding
	Slower   key.Binding
	Mode     key.Binding
	Clear    key.Binding
	Quit     key.Binding
}

// keyAliases maps config names to the strings bubbletea reports.
var keyAliases = map[string][]string{
	"space": {" ", "space"},
}

func keyNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		if alias, ok := keyAliases[n]; ok {
			out = append(out, alias...)
			continue
		}
		out = append(out, n)
	}
	return out
}

func helpKey(names []string) string {
	return strings.Join(names, "/")
}

// NewKeyMap builds the bindings from the configured dot, dash and straight
// key names. The control keys are fixed.
func NewKeyMap(dot, dash, straight []string) KeyMap {
	km := KeyMap{
		Dot: key.NewBinding(
			key.WithKeys(keyNames(dot)...),
			key.WithHelp(helpKey(dot), "dit"),
		),
		Dash: key.NewBinding(
			key.WithKeys(keyNames(dash)...),
			key.WithHelp(helpKey(dash), "dah"),
		),
		Straight: key.NewBinding(
			key.WithKeys(keyNames(straight)...),
			key.WithHelp(helpKey(straight), "key"),
		),
		Faster: key.NewBinding(
			key.WithKeys("+", "=", "up"),
			key.WithHelp("+", "faster"),
		),
		Slower: key.NewBinding(
			key.WithKeys("-", "down"),
			key.WithHelp("-", "slower"),
		),
		Mode: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "mode"),
		),
		Clear: key.NewBinding(
			key.WithKeys("ctrl+l"),
			key.WithHelp("ctrl+l", "clear"),
		),
		Quit: key.NewBinding(
			key.WithKeys("esc", "ctrl+c"),
			key.WithHelp("esc", "quit"),
		),
	}
	if len(straight) == 0 {
		km.Straight.SetEnabled(false)
	}
	return km
}

// ShortHelp implements help.KeyMap.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Dot, k.Dash, k.Straight, k.Faster, k.Slower, k.Mode, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Dot, k.Dash, k.Straight},
		{k.Faster, k.Slower, k.Mode, k.Clear, k.Quit},
	}
}
