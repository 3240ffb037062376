// Package dsp turns received audio into key edges for the decoder.
package dsp

import (
	"errors"
	"math"
)

var (
	ErrInvalidBlockSize  = errors.New("block size must be positive")
	ErrInvalidSampleRate = errors.New("sample rate must be positive")
	ErrInvalidFrequency  = errors.New("tone frequency must be positive and below the Nyquist frequency")
)

// Goertzel measures the amplitude of a single frequency over fixed-size
// blocks of samples.
type Goertzel struct {
	blockSize int
	coeff     float64 // 2*cos(omega)
	scale     float64 // 2/N, so a full-scale sine reads about 1.0
}

func NewGoertzel(toneHz, sampleRate float64, blockSize int) (*Goertzel, error) {
	if blockSize <= 0 {
		return nil, ErrInvalidBlockSize
	}
	if sampleRate <= 0 {
		return nil, ErrInvalidSampleRate
	}
	if toneHz <= 0 || toneHz >= sampleRate/2 {
		return nil, ErrInvalidFrequency
	}

	omega := 2 * math.Pi * toneHz / sampleRate
	return &Goertzel{
		blockSize: blockSize,
		coeff:     2 * math.Cos(omega),
		scale:     2 / float64(blockSize),
	}, nil
}

// BlockSize returns the number of samples Level reads.
func (g *Goertzel) BlockSize() int {
	return g.blockSize
}

// Level returns the amplitude of the tone in the first BlockSize samples of
// block. The caller guarantees len(block) >= BlockSize.
func (g *Goertzel) Level(block []float32) float64 {
	var s1, s2 float64
	for _, x := range block[:g.blockSize] {
		s0 := float64(x) + g.coeff*s1 - s2
		s2 = s1
		s1 = s0
	}

	power := s1*s1 + s2*s2 - g.coeff*s1*s2
	if power < 0 {
		// rounding on near-silent input
		power = 0
	}
	return math.Sqrt(power) * g.scale
}
