package keyer

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownMode indicates a mode name that ParseMode does not recognise
var ErrUnknownMode = errors.New("unknown keyer mode")

// Mode selects how paddle lines are turned into tone.
type Mode int

const (
	// Straight keys the tone directly while any line is held
	Straight Mode = iota
	// IambicA alternates elements while both paddles are squeezed
	IambicA
	// IambicB is IambicA plus one extra opposite element after a squeeze release
	IambicB
)

func (m Mode) String() string {
	switch m {
	case Straight:
		return "straight"
	case IambicA:
		return "iambic-a"
	case IambicB:
		return "iambic-b"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// Iambic reports whether the mode self-times elements.
func (m Mode) Iambic() bool {
	return m == IambicA || m == IambicB
}

// ParseMode accepts "straight", "iambic-a"/"iambica"/"a" and
// "iambic-b"/"iambicb"/"b", case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "straight", "straight-key", "s":
		return Straight, nil
	case "iambic-a", "iambica", "iambic_a", "a":
		return IambicA, nil
	case "iambic-b", "iambicb", "iambic_b", "b", "iambic":
		return IambicB, nil
	}
	return Straight, fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Line identifies one physical input line.
type Line int

const (
	Dot Line = iota
	Dash
	StraightKey
)

func (l Line) String() string {
	switch l {
	case Dot:
		return "dot"
	case Dash:
		return "dash"
	case StraightKey:
		return "straight"
	default:
		return fmt.Sprintf("Line(%d)", int(l))
	}
}

// ParseLine accepts "dot", "dash" and "straight" (or "key").
func ParseLine(s string) (Line, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "dot", "dit":
		return Dot, nil
	case "dash", "dah":
		return Dash, nil
	case "straight", "key":
		return StraightKey, nil
	}
	return Dot, fmt.Errorf("unknown key line %q", s)
}

// State is the keyer's sending state.
type State int

const (
	Idle State = iota
	SendingDit
	SendingDah
	// SqueezeQueued means the opposite paddle was pressed during the element in flight
	SqueezeQueued
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case SendingDit:
		return "dit"
	case SendingDah:
		return "dah"
	case SqueezeQueued:
		return "squeeze"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
