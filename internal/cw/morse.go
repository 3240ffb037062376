// internal/cw/morse.go
// Package cw implements the Morse code table and the edge-driven CW decoder.
package cw

import (
	"strings"
)

// Element is a single Morse code element.
type Element int

const (
	Dit Element = iota
	Dah
)

func (e Element) String() string {
	if e == Dah {
		return "-"
	}
	return "."
}

// MaxSymbolLength is the longest element sequence present in the code table.
const MaxSymbolLength = 6

// Symbol is the ordered element sequence of one character.
type Symbol []Element

// String renders the symbol as dots and dashes, e.g. ".-" for A.
func (s Symbol) String() string {
	var b strings.Builder
	for _, e := range s {
		b.WriteString(e.String())
	}
	return b.String()
}

// ParseSymbol converts ".-" notation into a Symbol. Characters other than
// '.' and '-' are rejected.
func ParseSymbol(code string) (Symbol, bool) {
	s := make(Symbol, 0, len(code))
	for _, c := range code {
		switch c {
		case '.':
			s = append(s, Dit)
		case '-':
			s = append(s, Dah)
		default:
			return nil, false
		}
	}
	return s, true
}

// International Morse code, letters, digits and the common punctuation.
var codes = []struct {
	char rune
	code string
}{
	{'A', ".-"}, {'B', "-..."}, {'C', "-.-."}, {'D', "-.."}, {'E', "."},
	{'F', "..-."}, {'G', "--."}, {'H', "...."}, {'I', ".."}, {'J', ".---"},
	{'K', "-.-"}, {'L', ".-.."}, {'M', "--"}, {'N', "-."}, {'O', "---"},
	{'P', ".--."}, {'Q', "--.-"}, {'R', ".-."}, {'S', "..."}, {'T', "-"},
	{'U', "..-"}, {'V', "...-"}, {'W', ".--"}, {'X', "-..-"}, {'Y', "-.--"},
	{'Z', "--.."},

	{'0', "-----"}, {'1', ".----"}, {'2', "..---"}, {'3', "...--"}, {'4', "....-"},
	{'5', "....."}, {'6', "-...."}, {'7', "--..."}, {'8', "---.."}, {'9', "----."},

	{'.', ".-.-.-"}, {',', "--..--"}, {'?', "..--.."}, {'\'', ".----."},
	{'!', "-.-.--"}, {'/', "-..-."}, {'(', "-.--."}, {')', "-.--.-"},
	{'&', ".-..."}, {':', "---..."}, {';', "-.-.-."}, {'=', "-...-"},
	{'+', ".-.-."}, {'-', "-....-"}, {'_', "..--.-"}, {'"', ".-..-."},
	{'@', ".--.-."},
}

// morseTree is the binary tree for Morse code lookup.
// Left branch = dit, Right branch = dah.
// Index 1 is the empty sequence; parent at i, left child at 2i, right child at 2i+1.
// Six elements reach at most index 127.
var morseTree [1 << (MaxSymbolLength + 1)]rune

var reverse = make(map[rune]Symbol, len(codes))

func init() {
	for _, c := range codes {
		s, ok := ParseSymbol(c.code)
		if !ok || len(s) > MaxSymbolLength {
			panic("cw: bad code table entry for " + string(c.char))
		}
		morseTree[treeIndex(s)] = c.char
		reverse[c.char] = s
	}
}

// treeIndex walks the tree along s. It returns 0 if s is longer than the tree.
func treeIndex(s Symbol) int {
	if len(s) > MaxSymbolLength {
		return 0
	}
	idx := 1
	for _, e := range s {
		idx *= 2
		if e == Dah {
			idx++
		}
	}
	return idx
}

// Lookup returns the character for an exact element sequence.
func Lookup(s Symbol) (rune, bool) {
	if len(s) == 0 {
		return 0, false
	}
	idx := treeIndex(s)
	if idx == 0 {
		return 0, false
	}
	r := morseTree[idx]
	return r, r != 0
}

// Code returns a copy of the element sequence for r. Letters are matched
// case-insensitively.
func Code(r rune) (Symbol, bool) {
	if r >= 'a' && r <= 'z' {
		r -= 'a' - 'A'
	}
	s, ok := reverse[r]
	if !ok {
		return nil, false
	}
	return append(Symbol(nil), s...), true
}

// Entry is one row of the code table.
type Entry struct {
	Char   rune
	Symbol Symbol
}

// Table lists every known character in tree order (shorter codes first,
// dits before dahs).
func Table() []Entry {
	entries := make([]Entry, 0, len(codes))
	for idx, r := range morseTree {
		if r == 0 {
			continue
		}
		entries = append(entries, Entry{Char: r, Symbol: symbolAt(idx)})
	}
	return entries
}

// symbolAt rebuilds the path from the root to tree index idx.
func symbolAt(idx int) Symbol {
	var s Symbol
	for ; idx > 1; idx /= 2 {
		e := Dit
		if idx%2 == 1 {
			e = Dah
		}
		s = append(Symbol{e}, s...)
	}
	return s
}
