package cw

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ColonelBlimp/cwkeyer/internal/timing"
)

// Edge is a timestamped key transition, from a physical key or from the keyer.
type Edge struct {
	Timestamp time.Time
	Down      bool
}

// Classify maps a tone duration to an element using the dit/dah midpoint.
// Durations of any length are accepted: anything up to and including
// 2 dits is a dit, everything longer is a dah.
func Classify(u timing.Unit, d time.Duration) Element {
	if timing.Ms(d) <= u.DitDahThresholdMs() {
		return Dit
	}
	return Dah
}

// DecoderConfig holds configuration for the CW decoder.
type DecoderConfig struct {
	// WPM is the expected element speed (from config: wpm)
	WPM int
	// FarnsworthWPM is the effective speed for character and word spacing,
	// 0 to space at element speed (from config: farnsworth_wpm)
	FarnsworthWPM int
	// Logger receives diagnostics such as unknown sequences; nil discards them
	Logger *slog.Logger
}

// DecodedCallback is called when a character or word boundary is decoded.
// It runs with the decoder locked, so it must be fast and must not call back
// into the decoder.
type DecodedCallback func(output Decoded)

// Decoded represents decoded CW output
type Decoded struct {
	// Character is the decoded character, ' ' for a word space
	Character rune
	// IsWordSpace is true if this represents a word boundary
	IsWordSpace bool
	// Timestamp is the edge or poll time that completed the character
	Timestamp time.Time
	// WPM is the decoder speed at time of decode
	WPM int
}

// Decoder turns key edges into characters.
type Decoder struct {
	mu     sync.Mutex
	logger *slog.Logger

	// Requested speeds, kept so either can change without losing the other
	wpm           int
	farnsworthWPM int
	unit          timing.Unit

	// Key state
	keyDown  bool
	lastDown time.Time
	lastUp   time.Time
	seenUp   bool

	// Current character being built
	symbol   Symbol
	overflow bool // more elements than any code has; dropped at finalize

	// wordOpen is set once a character has been emitted since the last word space
	wordOpen bool

	callbackPtr *DecodedCallback
}

// NewDecoder creates a new CW decoder. Out of range speeds are clamped.
func NewDecoder(cfg DecoderConfig) *Decoder {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Decoder{
		logger:        logger,
		wpm:           cfg.WPM,
		farnsworthWPM: cfg.FarnsworthWPM,
		unit:          timing.NewFarnsworth(cfg.WPM, cfg.FarnsworthWPM),
		symbol:        make(Symbol, 0, MaxSymbolLength),
	}
}

// SetCallback sets the callback for decoded output.
func (d *Decoder) SetCallback(cb DecodedCallback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cb == nil {
		d.callbackPtr = nil
	} else {
		d.callbackPtr = &cb
	}
}

// SetSpeed changes the element speed. Elements already in the symbol keep
// their classification.
func (d *Decoder) SetSpeed(wpm int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.wpm = wpm
	d.unit = timing.NewFarnsworth(d.wpm, d.farnsworthWPM)
}

// SetFarnsworth changes the spacing speed; 0 disables Farnsworth spacing.
func (d *Decoder) SetFarnsworth(wpm int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.farnsworthWPM = wpm
	d.unit = timing.NewFarnsworth(d.wpm, d.farnsworthWPM)
}

// Unit returns the timing currently used for classification.
func (d *Decoder) Unit() timing.Unit {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.unit
}

// Pending returns a copy of the elements of the character being built.
func (d *Decoder) Pending() Symbol {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append(Symbol(nil), d.symbol...)
}

// OnEdge processes one key transition. Edges must arrive in time order;
// a repeated edge in the same direction is ignored.
func (d *Decoder) OnEdge(edge Edge) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if edge.Down {
		d.handleDown(edge.Timestamp)
	} else {
		d.handleUp(edge.Timestamp)
	}
}

// handleDown measures the silence that just ended and closes the character
// or word if it was long enough.
func (d *Decoder) handleDown(at time.Time) {
	if d.keyDown {
		return
	}
	if d.seenUp {
		d.handleGap(timing.Ms(at.Sub(d.lastUp)), at)
	}
	d.keyDown = true
	d.lastDown = at
}

// handleUp classifies the tone that just ended and appends it to the symbol.
func (d *Decoder) handleUp(at time.Time) {
	if !d.keyDown {
		return
	}
	d.keyDown = false
	d.lastUp = at
	d.seenUp = true

	if len(d.symbol) >= MaxSymbolLength {
		d.overflow = true
		return
	}
	d.symbol = append(d.symbol, Classify(d.unit, at.Sub(d.lastDown)))
}

func (d *Decoder) handleGap(gapMs float64, at time.Time) {
	if gapMs > d.unit.CharGapMs {
		d.finalize(at)
	}
	if gapMs > d.unit.WordGapMs && d.wordOpen {
		d.emitWordSpace(at)
	}
}

// FlushIfIdle completes the pending character once the key has been up for
// longer than a character gap, and emits the word space once it has been up
// longer than a word gap. The host calls it on its own polling cadence.
func (d *Decoder) FlushIfIdle(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.keyDown || !d.seenUp {
		return
	}
	d.handleGap(timing.Ms(now.Sub(d.lastUp)), now)
}

// Flush completes the pending character immediately, without a word space.
// Use it when input stops for good.
func (d *Decoder) Flush(now time.Time) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.keyDown {
		return
	}
	d.finalize(now)
}

// finalize resolves the pending symbol and starts a new one.
func (d *Decoder) finalize(at time.Time) {
	if len(d.symbol) == 0 && !d.overflow {
		return
	}

	char, ok := Lookup(d.symbol)
	if d.overflow || !ok {
		d.logger.Debug("unknown morse sequence",
			"symbol", d.symbol.String(),
			"overflow", d.overflow,
			"wpm", d.unit.WPM)
	} else {
		d.emit(Decoded{Character: char, Timestamp: at, WPM: d.unit.WPM})
		d.wordOpen = true
	}

	d.symbol = d.symbol[:0]
	d.overflow = false
}

func (d *Decoder) emitWordSpace(at time.Time) {
	d.wordOpen = false
	d.emit(Decoded{Character: ' ', IsWordSpace: true, Timestamp: at, WPM: d.unit.WPM})
}

func (d *Decoder) emit(out Decoded) {
	if d.callbackPtr != nil {
		(*d.callbackPtr)(out)
	}
}

// Reset clears the key and character state. Speed settings are kept.
func (d *Decoder) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.keyDown = false
	d.seenUp = false
	d.lastDown = time.Time{}
	d.lastUp = time.Time{}
	d.symbol = d.symbol[:0]
	d.overflow = false
	d.wordOpen = false
}
