package dsp

import (
	"errors"
	"time"

	"github.com/ColonelBlimp/cwkeyer/internal/cw"
)

var (
	ErrInvalidThreshold  = errors.New("threshold must be between 0.0 and 1.0")
	ErrInvalidHysteresis = errors.New("hysteresis must be at least 1 block")
	ErrInvalidAGCDecay   = errors.New("agc decay must be between 0.0 and 1.0")
)

const (
	DefaultBlockSize  = 256
	DefaultThreshold  = 0.4
	DefaultHysteresis = 2
	DefaultAGCDecay   = 0.995

	// minPeak is the floor of the tracked peak, so silence never reads as tone
	minPeak = 0.01
)

// DetectorConfig holds configuration for the tone detector.
type DetectorConfig struct {
	// ToneHz is the frequency to listen for (from config: tone_frequency)
	ToneHz float64
	// SampleRate of the incoming audio in Hz (from config: sample_rate)
	SampleRate float64
	// BlockSize is the number of samples per measurement, 0 for DefaultBlockSize
	BlockSize int
	// Threshold is the fraction of the tracked peak that counts as tone (from config: threshold)
	Threshold float64
	// Hysteresis is the number of consecutive blocks that confirm a change (from config: hysteresis)
	Hysteresis int
	// AGCDecay is the per-block decay of the tracked peak (from config: agc_decay)
	AGCDecay float64
	// Start is the time of the first sample
	Start time.Time
}

// Detector keys a stream of cw.Edge values from the presence of a tone.
// Time is counted in samples from Start, so edge timing does not depend on
// when the audio arrives. A Detector is not safe for concurrent use.
type Detector struct {
	cfg      DetectorConfig
	goertzel *Goertzel
	onEdge   func(cw.Edge)

	buf     []float32
	blocks  int64 // blocks measured so far
	peak    float64
	down    bool
	pending int // consecutive blocks that disagree with down
}

// NewDetector creates a detector that reports every confirmed key change
// to onEdge.
func NewDetector(cfg DetectorConfig, onEdge func(cw.Edge)) (*Detector, error) {
	if cfg.BlockSize == 0 {
		cfg.BlockSize = DefaultBlockSize
	}
	if cfg.Threshold <= 0 || cfg.Threshold >= 1 {
		return nil, ErrInvalidThreshold
	}
	if cfg.Hysteresis < 1 {
		return nil, ErrInvalidHysteresis
	}
	if cfg.AGCDecay <= 0 || cfg.AGCDecay > 1 {
		return nil, ErrInvalidAGCDecay
	}

	g, err := NewGoertzel(cfg.ToneHz, cfg.SampleRate, cfg.BlockSize)
	if err != nil {
		return nil, err
	}

	return &Detector{
		cfg:      cfg,
		goertzel: g,
		onEdge:   onEdge,
		buf:      make([]float32, 0, cfg.BlockSize),
		peak:     minPeak,
	}, nil
}

// Process consumes samples, which need not be block aligned.
func (d *Detector) Process(samples []float32) {
	for len(samples) > 0 {
		n := min(d.cfg.BlockSize-len(d.buf), len(samples))
		d.buf = append(d.buf, samples[:n]...)
		samples = samples[n:]

		if len(d.buf) == d.cfg.BlockSize {
			d.measure(d.buf)
			d.buf = d.buf[:0]
		}
	}
}

func (d *Detector) measure(block []float32) {
	level := d.goertzel.Level(block)
	if level > d.peak {
		d.peak = level
	} else {
		d.peak = max(d.peak*d.cfg.AGCDecay, minPeak)
	}
	tone := level > d.cfg.Threshold*d.peak
	d.blocks++

	if tone == d.down {
		d.pending = 0
		return
	}
	d.pending++
	if d.pending < d.cfg.Hysteresis {
		return
	}

	// the change is dated from the first block that showed it
	first := d.blocks - int64(d.pending)
	d.down = tone
	d.pending = 0
	if d.onEdge != nil {
		d.onEdge(cw.Edge{Timestamp: d.at(first * int64(d.cfg.BlockSize)), Down: tone})
	}
}

func (d *Detector) at(samples int64) time.Time {
	return d.cfg.Start.Add(time.Duration(float64(samples) / d.cfg.SampleRate * float64(time.Second)))
}

// Now returns the time just after the last sample processed.
func (d *Detector) Now() time.Time {
	return d.at(d.blocks*int64(d.cfg.BlockSize) + int64(len(d.buf)))
}

// KeyDown reports whether a tone is currently confirmed.
func (d *Detector) KeyDown() bool {
	return d.down
}

// Peak returns the tracked signal peak.
func (d *Detector) Peak() float64 {
	return d.peak
}
