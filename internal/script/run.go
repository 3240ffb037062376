package script

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ColonelBlimp/cwkeyer/internal/cw"
	"github.com/ColonelBlimp/cwkeyer/internal/keyer"
	"github.com/ColonelBlimp/cwkeyer/internal/timing"
)

// ErrLinesHeld is returned when a script ends with a paddle or key down;
// an iambic keyer would repeat forever.
var ErrLinesHeld = errors.New("script ends with lines held")

var epoch = time.Unix(0, 0).UTC()

func stamp(ms float64) time.Time {
	return epoch.Add(time.Duration(ms * float64(time.Millisecond)))
}

// gapMarginMs is added to character and word gaps; a gap of exactly the
// nominal length does not close a character in the decoder.
const gapMarginMs = 1.0

// EdgesForText keys text with exact timing for u, starting at 0 ms.
// Runs of whitespace are one word gap.
func EdgesForText(text string, u timing.Unit) ([]EdgeStep, error) {
	var edges []EdgeStep
	now := 0.0
	for w, word := range strings.Fields(text) {
		for c, r := range []rune(word) {
			sym, ok := cw.Code(r)
			if !ok {
				return nil, fmt.Errorf("%w: %q", ErrUnencodable, r)
			}
			for e, el := range sym {
				switch {
				case e > 0:
					now += u.ElementGapMs
				case c > 0:
					now += u.CharGapMs + gapMarginMs
				case w > 0:
					now += u.WordGapMs + gapMarginMs
				}
				dur := u.DitMs
				if el == cw.Dah {
					dur = u.DahMs
				}
				edges = append(edges, EdgeStep{AtMs: now, Down: true}, EdgeStep{AtMs: now + dur, Down: false})
				now += dur
			}
		}
	}
	return edges, nil
}

func (s *Script) unit() timing.Unit {
	return timing.NewFarnsworth(s.WPM, s.FarnsworthWPM)
}

// edges returns the recorded edges, or Text keyed at the script speed.
func (s *Script) edges() ([]EdgeStep, error) {
	if len(s.Edges) > 0 {
		return s.Edges, nil
	}
	return EdgesForText(s.Text, s.unit())
}

// paddles returns the recorded paddle steps, or Text keyed on the straight
// key line.
func (s *Script) paddles() ([]PaddleStep, error) {
	if len(s.Paddles) > 0 {
		return s.Paddles, nil
	}
	edges, err := EdgesForText(s.Text, s.unit())
	if err != nil {
		return nil, err
	}
	steps := make([]PaddleStep, len(edges))
	for i, e := range edges {
		steps[i] = PaddleStep{AtMs: e.AtMs, Line: keyer.StraightKey.String(), Down: e.Down}
	}
	return steps, nil
}

// DecodeEdges runs the script's edges through a decoder and returns the text.
// The last character is completed by an idle flush; no trailing space is
// produced.
func DecodeEdges(s *Script, logger *slog.Logger) (string, error) {
	edges, err := s.edges()
	if err != nil {
		return "", err
	}

	var out strings.Builder
	dec := cw.NewDecoder(cw.DecoderConfig{WPM: s.WPM, FarnsworthWPM: s.FarnsworthWPM, Logger: logger})
	dec.SetCallback(func(d cw.Decoded) { out.WriteRune(d.Character) })

	var last time.Time
	for _, e := range edges {
		last = stamp(e.AtMs)
		dec.OnEdge(cw.Edge{Timestamp: last, Down: e.Down})
	}
	dec.FlushIfIdle(last.Add(dec.Unit().CharGap() + time.Millisecond))

	return strings.TrimRight(out.String(), " "), nil
}

// WaitFunc paces playback: it is called with the virtual time between
// consecutive keyer transitions.
type WaitFunc func(ctx context.Context, d time.Duration) error

// RealTime waits out d on the wall clock.
func RealTime(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Options configures RunKeyer.
type Options struct {
	Tone   keyer.ToneSink // nil for silence
	ToneHz float64
	Volume float64
	Wait   WaitFunc // nil runs in virtual time without pausing
	Logger *slog.Logger
}

// player steps a keyer through virtual time, pacing with wait.
type player struct {
	ctx  context.Context
	k    *keyer.Keyer
	dec  *cw.Decoder
	wait WaitFunc
	now  time.Time
}

func (p *player) waitUntil(t time.Time) error {
	if p.wait != nil {
		if err := p.wait(p.ctx, t.Sub(p.now)); err != nil {
			return err
		}
	} else if err := p.ctx.Err(); err != nil {
		return err
	}
	if t.After(p.now) {
		p.now = t
	}
	return nil
}

// advance runs every keyer transition due up to t.
func (p *player) advance(t time.Time) error {
	for {
		wake, ok := p.k.NextWake()
		if !ok || wake.After(t) {
			break
		}
		if err := p.waitUntil(wake); err != nil {
			return err
		}
		p.k.Tick(wake)
	}
	if err := p.waitUntil(t); err != nil {
		return err
	}
	p.dec.FlushIfIdle(t)
	return nil
}

// RunKeyer plays the script's paddle steps through a keyer whose edges are
// decoded, and returns the decoded text. With opts.Wait set to RealTime the
// tone sink sounds the keying as it happens.
func RunKeyer(ctx context.Context, s *Script, opts Options) (string, error) {
	mode, err := s.KeyerMode()
	if err != nil {
		return "", err
	}
	steps, err := s.paddles()
	if err != nil {
		return "", err
	}

	var out strings.Builder
	dec := cw.NewDecoder(cw.DecoderConfig{WPM: s.WPM, FarnsworthWPM: s.FarnsworthWPM, Logger: opts.Logger})
	dec.SetCallback(func(d cw.Decoded) { out.WriteRune(d.Character) })

	k := keyer.New(keyer.Config{
		WPM:    s.WPM,
		Mode:   mode,
		ToneHz: opts.ToneHz,
		Volume: opts.Volume,
		Logger: opts.Logger,
	}, opts.Tone, dec)

	p := &player{ctx: ctx, k: k, dec: dec, wait: opts.Wait, now: epoch}
	// silences the tone when playback is cancelled mid-element
	defer func() { k.Release(p.now) }()

	for i, st := range steps {
		line, err := keyer.ParseLine(st.Line)
		if err != nil {
			return out.String(), fmt.Errorf("paddle %d: %w", i, err)
		}
		at := stamp(st.AtMs)
		if err := p.advance(at); err != nil {
			return out.String(), err
		}
		k.Press(line, st.Down, at)
		k.Tick(at)
	}

	if snap := k.Snapshot(); snap.Dot || snap.Dash || snap.Straight {
		return out.String(), ErrLinesHeld
	}

	for {
		wake, ok := k.NextWake()
		if !ok {
			break
		}
		if err := p.advance(wake); err != nil {
			return out.String(), err
		}
	}
	dec.FlushIfIdle(p.now.Add(dec.Unit().CharGap() + time.Millisecond))

	return strings.TrimRight(out.String(), " "), nil
}
