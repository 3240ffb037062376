// Package keyer turns paddle and straight-key line changes into a timed
// tone/silence sequence. It never sleeps: timed work is scheduled as a wake
// time that the host delivers back through Tick.
package keyer

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ColonelBlimp/cwkeyer/internal/cw"
	"github.com/ColonelBlimp/cwkeyer/internal/timing"
)

// Sidetone defaults
const (
	DefaultToneHz = 550.0
	DefaultVolume = 0.5
)

// ToneSink sounds the sidetone. Calls must return quickly.
type ToneSink interface {
	ToneOn(freqHz, volume float64)
	ToneOff()
}

// EdgeSink receives every tone transition as a key edge; *cw.Decoder
// implements it, so keyed output is decoded locally.
type EdgeSink interface {
	OnEdge(edge cw.Edge)
}

// Config holds the keyer settings.
type Config struct {
	WPM    int
	Mode   Mode
	ToneHz float64
	Volume float64 // 0.0-1.0
	Logger *slog.Logger
}

// Snapshot is a copy of the keyer state.
type Snapshot struct {
	State    State
	Mode     Mode
	Dot      bool
	Dash     bool
	Straight bool
	Sounding bool
}

type phase int

const (
	phaseNone  phase = iota // idle, nothing scheduled
	phaseStart              // a paddle went down while idle; decide at wake
	phaseTone               // element tone is on until wake
	phaseGap                // element gap runs until wake
)

// Keyer is the iambic/straight keyer state machine.
type Keyer struct {
	mu     sync.Mutex
	logger *slog.Logger
	tone   ToneSink
	edges  EdgeSink

	mode   Mode
	unit   timing.Unit
	cur    timing.Unit // speed of the element in flight and its gap
	toneHz float64
	volume float64

	// Line state
	dot      bool
	dash     bool
	straight bool

	// Scheduler
	phase phase
	wake  time.Time
	state State

	last     cw.Element
	hasLast  bool
	squeezed bool // opposite paddle seen during the current element

	sounding bool
	manual   bool // tone is on because of straight keying
}

// New creates a keyer. tone and edges may be nil.
func New(cfg Config, tone ToneSink, edges EdgeSink) *Keyer {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Keyer{
		logger: logger,
		tone:   tone,
		edges:  edges,
		mode:   cfg.Mode,
		unit:   timing.New(cfg.WPM),
		toneHz: clampTone(cfg.ToneHz),
		volume: clampVolume(cfg.Volume),
	}
}

func clampTone(hz float64) float64 {
	if hz <= 0 {
		return DefaultToneHz
	}
	return hz
}

func clampVolume(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

// SetWPM changes the element speed from the next element. The element in
// flight and the gap after it keep the old speed.
func (k *Keyer) SetWPM(wpm int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.unit = timing.New(wpm)
	k.logger.Debug("keyer speed changed", "wpm", k.unit.WPM)
}

// SetTone changes the sidetone frequency from the next tone-on.
func (k *Keyer) SetTone(freqHz float64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.toneHz = clampTone(freqHz)
}

// SetVolume changes the sidetone volume from the next tone-on.
func (k *Keyer) SetVolume(volume float64) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.volume = clampVolume(volume)
}

// SetMode changes the keying mode. An element in flight completes; the new
// mode applies from the next element decision.
func (k *Keyer) SetMode(mode Mode) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if mode == k.mode {
		return
	}
	k.mode = mode
	k.logger.Debug("keyer mode changed", "mode", mode.String())
}

// Unit returns the timing used for the next element.
func (k *Keyer) Unit() timing.Unit {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.unit
}

// Snapshot returns the current state.
func (k *Keyer) Snapshot() Snapshot {
	k.mu.Lock()
	defer k.mu.Unlock()
	return Snapshot{
		State:    k.state,
		Mode:     k.mode,
		Dot:      k.dot,
		Dash:     k.dash,
		Straight: k.straight,
		Sounding: k.sounding,
	}
}

// NextWake returns when Tick next has work to do.
func (k *Keyer) NextWake() (time.Time, bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.wake, k.phase != phaseNone
}

// Press records a line change at now. Re-asserting a line's current state
// is a no-op. In iambic modes a press while idle schedules an element start
// at now; the host must call Tick to run it, which lets presses arriving at
// the same instant be decided together.
func (k *Keyer) Press(line Line, down bool, now time.Time) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if !k.setLine(line, down) {
		return
	}

	if k.manual || k.mode == Straight || line == StraightKey {
		k.updateManual(now)
		return
	}

	if !down {
		return
	}

	switch k.phase {
	case phaseNone:
		k.phase = phaseStart
		k.wake = now
	case phaseTone, phaseGap:
		if line != lineFor(k.last) {
			k.squeezed = true
			k.state = SqueezeQueued
		}
	}
}

// setLine stores the line state and reports whether it changed.
func (k *Keyer) setLine(line Line, down bool) bool {
	var p *bool
	switch line {
	case Dot:
		p = &k.dot
	case Dash:
		p = &k.dash
	case StraightKey:
		p = &k.straight
	default:
		return false
	}
	if *p == down {
		return false
	}
	*p = down
	return true
}

// updateManual follows the straight-key lines. Straight mode keys on any
// line; iambic modes only on the straight-key line and only while no
// element is being sent. A paddle held when the straight key lifts in an
// iambic mode starts sending after one element gap.
func (k *Keyer) updateManual(now time.Time) {
	want := k.straight
	if k.mode == Straight {
		want = k.dot || k.dash || k.straight
	}

	switch {
	case want && !k.manual && k.phase == phaseNone:
		k.manual = true
		k.toneOn(now)
	case !want && k.manual:
		k.manual = false
		k.toneOff(now)
		if k.mode.Iambic() && (k.dot || k.dash) {
			k.phase = phaseStart
			k.wake = now.Add(k.unit.ElementGap())
		}
	}
}

// Tick runs every transition scheduled at or before now. Tone and edge
// timestamps use the scheduled instants, so late ticks do not stretch the
// keyed timing.
func (k *Keyer) Tick(now time.Time) {
	k.mu.Lock()
	defer k.mu.Unlock()

	for k.phase != phaseNone && !now.Before(k.wake) {
		at := k.wake
		switch k.phase {
		case phaseStart:
			k.begin(at, true)
		case phaseGap:
			k.begin(at, false)
		case phaseTone:
			k.toneOff(at)
			k.phase = phaseGap
			k.wake = at.Add(k.cur.ElementGap())
		}
	}
}

// begin starts the next element at at, or returns to idle. Going idle
// hands any line still held to straight keying.
func (k *Keyer) begin(at time.Time, fromIdle bool) {
	elem, ok := k.nextElement(fromIdle)
	if !ok || !k.mode.Iambic() || k.manual {
		k.phase = phaseNone
		k.wake = time.Time{}
		k.state = Idle
		k.squeezed = false
		k.updateManual(at)
		return
	}

	k.last = elem
	k.hasLast = true
	k.cur = k.unit

	dur := k.cur.Dit()
	k.state = SendingDit
	k.squeezed = k.dash
	if elem == cw.Dah {
		dur = k.cur.Dah()
		k.state = SendingDah
		k.squeezed = k.dot
	}
	if k.squeezed {
		k.state = SqueezeQueued
	}

	k.toneOn(at)
	k.phase = phaseTone
	k.wake = at.Add(dur)
}

// nextElement decides what to send after the current element.
func (k *Keyer) nextElement(fromIdle bool) (cw.Element, bool) {
	if fromIdle || !k.hasLast {
		// dot wins a simultaneous press
		switch {
		case k.dot:
			return cw.Dit, true
		case k.dash:
			return cw.Dah, true
		}
		return cw.Dit, false
	}

	// Mode B remembers a squeeze even after both paddles are released
	if k.mode == IambicB && k.squeezed {
		return opposite(k.last), true
	}

	switch {
	case k.dot && k.dash:
		return opposite(k.last), true
	case k.dot:
		return cw.Dit, true
	case k.dash:
		return cw.Dah, true
	}
	return cw.Dit, false
}

func opposite(e cw.Element) cw.Element {
	if e == cw.Dit {
		return cw.Dah
	}
	return cw.Dit
}

func lineFor(e cw.Element) Line {
	if e == cw.Dah {
		return Dash
	}
	return Dot
}

// Release drops every line and silences the tone. An element in flight is
// cut short; use it when the input source goes away.
func (k *Keyer) Release(now time.Time) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.dot, k.dash, k.straight = false, false, false
	if k.sounding {
		k.toneOff(now)
	}
	k.manual = false
	k.phase = phaseNone
	k.wake = time.Time{}
	k.state = Idle
	k.squeezed = false
}

func (k *Keyer) toneOn(at time.Time) {
	k.sounding = true
	if k.tone != nil {
		k.tone.ToneOn(k.toneHz, k.volume)
	}
	if k.edges != nil {
		k.edges.OnEdge(cw.Edge{Timestamp: at, Down: true})
	}
}

func (k *Keyer) toneOff(at time.Time) {
	k.sounding = false
	if k.tone != nil {
		k.tone.ToneOff()
	}
	if k.edges != nil {
		k.edges.OnEdge(cw.Edge{Timestamp: at, Down: false})
	}
}
