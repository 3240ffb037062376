// Package session runs one keyer and its local decoder on a single goroutine.
// Input arrives as events posted from any goroutine; the loop owns every
// state change and sleeps until the keyer or the idle check has work.
package session

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ColonelBlimp/cwkeyer/internal/cw"
	"github.com/ColonelBlimp/cwkeyer/internal/keyer"
	"github.com/ColonelBlimp/cwkeyer/internal/recovery"
	"github.com/ColonelBlimp/cwkeyer/internal/timing"
)

// DefaultIdlePoll is used when Config.IdlePoll is not positive.
const DefaultIdlePoll = 20 * time.Millisecond

var (
	ErrAlreadyRunning = errors.New("session already running")
	ErrStopped        = errors.New("session stopped")
)

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Config holds everything a session can be reconfigured with.
type Config struct {
	WPM           int
	FarnsworthWPM int // decoder spacing speed, 0 for none
	Mode          keyer.Mode
	ToneHz        float64
	Volume        float64
	IdlePoll      time.Duration
	Logger        *slog.Logger
}

// Status is a copy of the session state for display.
type Status struct {
	Keyer   keyer.Snapshot
	Pending cw.Symbol
	Unit    timing.Unit
}

type eventKind int

const (
	evPress eventKind = iota
	evReconfigure
	evRelease
)

type event struct {
	kind eventKind
	line keyer.Line
	down bool
	cfg  Config
}

// Session owns one Keyer whose edges feed one Decoder.
type Session struct {
	logger  *slog.Logger
	clock   Clock
	keyer   *keyer.Keyer
	decoder *cw.Decoder

	idlePoll  time.Duration
	onDecoded func(cw.Decoded)
	out       []cw.Decoded // decoded during the current step, delivered after it
	events    chan event
	started   chan struct{}
	done      chan struct{}
}

// New creates a session. tone may be nil; clock nil means SystemClock.
// Decoded characters are delivered to onDecoded on the session goroutine
// with no keyer or decoder lock held, so it may call Status.
func New(cfg Config, tone keyer.ToneSink, clock Clock, onDecoded func(cw.Decoded)) *Session {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if clock == nil {
		clock = SystemClock{}
	}

	s := &Session{
		logger:    logger,
		clock:     clock,
		idlePoll:  idlePoll(cfg.IdlePoll),
		onDecoded: onDecoded,
		events:    make(chan event, 64),
		started:   make(chan struct{}, 1),
		done:      make(chan struct{}),
	}

	s.decoder = cw.NewDecoder(cw.DecoderConfig{
		WPM:           cfg.WPM,
		FarnsworthWPM: cfg.FarnsworthWPM,
		Logger:        logger.With("component", "decoder"),
	})
	s.decoder.SetCallback(func(d cw.Decoded) { s.out = append(s.out, d) })

	s.keyer = keyer.New(keyer.Config{
		WPM:    cfg.WPM,
		Mode:   cfg.Mode,
		ToneHz: cfg.ToneHz,
		Volume: cfg.Volume,
		Logger: logger.With("component", "keyer"),
	}, tone, s.decoder)

	return s
}

func idlePoll(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultIdlePoll
	}
	return d
}

// Press reports a line change. It is stamped when the session goroutine
// picks it up, so timestamps never run behind the keyer.
func (s *Session) Press(line keyer.Line, down bool) error {
	return s.post(event{kind: evPress, line: line, down: down})
}

// Reconfigure applies cfg from the next element. The logger is not changed.
func (s *Session) Reconfigure(cfg Config) error {
	return s.post(event{kind: evReconfigure, cfg: cfg})
}

// Release drops every line and silences the tone.
func (s *Session) Release() error {
	return s.post(event{kind: evRelease})
}

func (s *Session) post(ev event) error {
	select {
	case <-s.done:
		return ErrStopped
	default:
	}
	select {
	case s.events <- ev:
		return nil
	case <-s.done:
		return ErrStopped
	}
}

// Status returns the current keyer, decoder and timing state.
func (s *Session) Status() Status {
	return Status{
		Keyer:   s.keyer.Snapshot(),
		Pending: s.decoder.Pending(),
		Unit:    s.keyer.Unit(),
	}
}

// Run processes events until ctx is cancelled. On return the tone is off
// and the pending character has been flushed. Run may be called once.
func (s *Session) Run(ctx context.Context) error {
	select {
	case s.started <- struct{}{}:
	default:
		return ErrAlreadyRunning
	}
	defer close(s.done)
	defer recovery.Guard(s.logger, func() { s.keyer.Release(s.clock.Now()) })

	s.logger.Debug("session started", "wpm", s.keyer.Unit().WPM, "mode", s.keyer.Snapshot().Mode.String())

	timer := time.NewTimer(s.nextDelay(s.clock.Now()))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.shutdown(s.clock.Now())
			s.deliver()
			return nil
		case ev := <-s.events:
			s.handle(ev, s.clock.Now())
		case <-timer.C:
		}

		now := s.clock.Now()
		s.tick(now)
		s.deliver()
		timer.Reset(s.nextDelay(now))
	}
}

func (s *Session) handle(ev event, now time.Time) {
	// work due before the event runs first so edges stay ordered
	s.tick(now)
	switch ev.kind {
	case evPress:
		s.keyer.Press(ev.line, ev.down, now)
	case evReconfigure:
		s.apply(ev.cfg)
	case evRelease:
		s.keyer.Release(now)
	}
}

func (s *Session) apply(cfg Config) {
	s.keyer.SetWPM(cfg.WPM)
	s.keyer.SetMode(cfg.Mode)
	s.keyer.SetTone(cfg.ToneHz)
	s.keyer.SetVolume(cfg.Volume)
	s.decoder.SetSpeed(cfg.WPM)
	s.decoder.SetFarnsworth(cfg.FarnsworthWPM)
	s.idlePoll = idlePoll(cfg.IdlePoll)
	s.logger.Info("session reconfigured",
		"wpm", cfg.WPM,
		"farnsworth_wpm", cfg.FarnsworthWPM,
		"mode", cfg.Mode.String(),
		"tone_hz", cfg.ToneHz)
}

func (s *Session) tick(now time.Time) {
	s.keyer.Tick(now)
	s.decoder.FlushIfIdle(now)
}

func (s *Session) deliver() {
	out := s.out
	s.out = nil
	if s.onDecoded == nil {
		return
	}
	for _, d := range out {
		s.onDecoded(d)
	}
}

// nextDelay is the time until the keyer's next wake or the idle poll,
// whichever is sooner.
func (s *Session) nextDelay(now time.Time) time.Duration {
	d := s.idlePoll
	if wake, ok := s.keyer.NextWake(); ok {
		if w := wake.Sub(now); w < d {
			d = max(w, 0)
		}
	}
	return d
}

func (s *Session) shutdown(now time.Time) {
	s.keyer.Tick(now)
	s.keyer.Release(now)
	s.decoder.Flush(now)
	s.logger.Debug("session stopped")
}
