package audio

import (
	"math"
	"sync"
	"time"
)

// DefaultRamp is the attack and release time applied to every tone edge.
const DefaultRamp = 5 * time.Millisecond

// Oscillator is a sine sidetone generator with a linear gain ramp on every
// on/off transition so keying does not click. ToneOn/ToneOff may be called
// from any goroutine while Render runs on the audio thread.
type Oscillator struct {
	mu sync.Mutex

	sampleRate  float64
	rampSamples float64
	master      float64

	freq   float64
	phase  float64 // radians
	gain   float64
	target float64
	step   float64 // gain change per sample
}

// NewOscillator creates a silent oscillator. master scales every volume
// passed to ToneOn and is clamped to 0.0-1.0.
func NewOscillator(sampleRate float64, ramp time.Duration, master float64) *Oscillator {
	rampSamples := math.Round(ramp.Seconds() * sampleRate)
	if rampSamples < 1 {
		rampSamples = 1
	}
	return &Oscillator{
		sampleRate:  sampleRate,
		rampSamples: rampSamples,
		master:      clamp01(master),
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// ToneOn ramps up to volume at freqHz.
func (o *Oscillator) ToneOn(freqHz, volume float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.freq = freqHz
	o.rampTo(clamp01(volume) * o.master)
}

// ToneOff ramps down to silence.
func (o *Oscillator) ToneOff() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rampTo(0)
}

func (o *Oscillator) rampTo(target float64) {
	o.target = target
	o.step = math.Abs(target-o.gain) / o.rampSamples
}

// Sounding reports whether any output is being produced, including a
// release ramp still in progress.
func (o *Oscillator) Sounding() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.gain > 0 || o.target > 0
}

// Render fills out with mono samples.
func (o *Oscillator) Render(out []float32) {
	o.mu.Lock()
	defer o.mu.Unlock()

	delta := 2 * math.Pi * o.freq / o.sampleRate
	for i := range out {
		switch {
		case o.gain < o.target:
			o.gain = math.Min(o.target, o.gain+o.step)
		case o.gain > o.target:
			o.gain = math.Max(o.target, o.gain-o.step)
		}

		if o.gain == 0 {
			out[i] = 0
			// restart at zero phase so the next attack starts on a zero crossing
			o.phase = 0
			continue
		}

		out[i] = float32(o.gain * math.Sin(o.phase))
		o.phase += delta
		if o.phase >= 2*math.Pi {
			o.phase -= 2 * math.Pi
		}
	}
}
