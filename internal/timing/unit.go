// Package timing derives Morse element and gap durations from a keying speed.
package timing

import "time"

// Morse code timing ratios (ITU standard)
const (
	// DahDitRatio is the ratio of dah duration to dit duration (ITU: 3:1)
	DahDitRatio = 3.0
	// ElementGapRatio is the silence between elements of one character (ITU: 1:1)
	ElementGapRatio = 1.0
	// CharGapRatio is the silence between characters (ITU: 3:1)
	CharGapRatio = 3.0
	// WordGapRatio is the silence between words (ITU: 7:1)
	WordGapRatio = 7.0

	// DitDahBoundary is the dit/dah decision threshold in dit units (midpoint of 1 and 3)
	DitDahBoundary = 2.0

	// MillisecondsPerMinute is used for WPM calculations
	MillisecondsPerMinute = 60000.0
	// DitsPerWord is the standard word "PARIS" = 50 dit units
	DitsPerWord = 50.0
)

// Speed limits applied when a configured speed is out of range.
const (
	MinWPM = 1
	MaxWPM = 200
)

// Unit is the set of durations for one speed setting, in milliseconds.
// It is never mutated after construction; a speed change builds a new Unit.
type Unit struct {
	WPM           int
	FarnsworthWPM int // equals WPM when spacing is not stretched

	DitMs        float64
	DahMs        float64
	ElementGapMs float64
	CharGapMs    float64
	WordGapMs    float64
}

// New returns the standard timing for wpm. Out of range speeds are clamped
// into [MinWPM, MaxWPM].
func New(wpm int) Unit {
	return NewFarnsworth(wpm, 0)
}

// NewFarnsworth returns timing where elements run at wpm and the character
// and word gaps are spaced as if sent at farnsworthWPM. A farnsworthWPM that
// is not positive or exceeds wpm disables the stretch.
func NewFarnsworth(wpm, farnsworthWPM int) Unit {
	wpm = ClampWPM(wpm)
	if farnsworthWPM <= 0 || farnsworthWPM > wpm {
		farnsworthWPM = wpm
	}

	dit := ditMs(wpm)
	spacing := ditMs(farnsworthWPM)

	return Unit{
		WPM:           wpm,
		FarnsworthWPM: farnsworthWPM,
		DitMs:         dit,
		DahMs:         dit * DahDitRatio,
		ElementGapMs:  dit * ElementGapRatio,
		CharGapMs:     spacing * CharGapRatio,
		WordGapMs:     spacing * WordGapRatio,
	}
}

// ClampWPM limits wpm to [MinWPM, MaxWPM].
func ClampWPM(wpm int) int {
	if wpm < MinWPM {
		return MinWPM
	}
	if wpm > MaxWPM {
		return MaxWPM
	}
	return wpm
}

// dit_duration_ms = 60000 / (WPM * DitsPerWord) = 1200 / WPM
func ditMs(wpm int) float64 {
	return MillisecondsPerMinute / (float64(wpm) * DitsPerWord)
}

// Farnsworth reports whether the gaps are stretched beyond element speed.
func (u Unit) Farnsworth() bool {
	return u.FarnsworthWPM < u.WPM
}

// DitDahThresholdMs is the longest tone still classified as a dit.
func (u Unit) DitDahThresholdMs() float64 {
	return u.DitMs * DitDahBoundary
}

func (u Unit) Dit() time.Duration        { return msToDuration(u.DitMs) }
func (u Unit) Dah() time.Duration        { return msToDuration(u.DahMs) }
func (u Unit) ElementGap() time.Duration { return msToDuration(u.ElementGapMs) }
func (u Unit) CharGap() time.Duration    { return msToDuration(u.CharGapMs) }
func (u Unit) WordGap() time.Duration    { return msToDuration(u.WordGapMs) }

func msToDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

// Ms converts a duration to fractional milliseconds.
func Ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
