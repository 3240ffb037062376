package tui

import (
	"testing"

	"github.com/mattn/go-runewidth"
)

func TestTail(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		width int
		want  string
	}{
		{"fits", "CQ DE", 10, "CQ DE"},
		{"exact", "CQ DE", 5, "CQ DE"},
		{"cut", "CQ CQ DE K1ABC", 5, "K1ABC"},
		{"zero width", "CQ", 0, ""},
		{"wide runes", "ab漢字", 3, "字"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tail(tt.in, tt.width)
			if got != tt.want {
				t.Errorf("tail(%q, %d) = %q, want %q", tt.in, tt.width, got, tt.want)
			}
			if runewidth.StringWidth(got) > tt.width {
				t.Errorf("tail(%q, %d) is %d cells wide", tt.in, tt.width, runewidth.StringWidth(got))
			}
		})
	}
}

func TestNewKeyMap_Help(t *testing.T) {
	km := NewKeyMap([]string{"z", "left"}, []string{"x"}, nil)

	if km.Dot.Help().Key != "z/left" {
		t.Errorf("dot help = %q, want %q", km.Dot.Help().Key, "z/left")
	}
	if km.Straight.Enabled() {
		t.Error("straight binding should be disabled without keys")
	}
	if len(km.ShortHelp()) == 0 || len(km.FullHelp()) != 2 {
		t.Error("help lists are incomplete")
	}
}

func TestKeyNames(t *testing.T) {
	got := keyNames([]string{" Z ", "space", ""})
	want := []string{"z", " ", "space"}
	if len(got) != len(want) {
		t.Fatalf("keyNames() = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("keyNames()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
