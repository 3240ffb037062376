package tui

import (
	"github.com/mattn/go-runewidth"
)

// tail returns the end of s that fits in width terminal cells, so the most
// recently decoded text stays visible.
func tail(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= width {
		return s
	}

	runes := []rune(s)
	used := 0
	start := len(runes)
	for start > 0 {
		w := runewidth.RuneWidth(runes[start-1])
		if used+w > width {
			break
		}
		used += w
		start--
	}
	return string(runes[start:])
}
