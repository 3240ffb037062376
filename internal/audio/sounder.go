// internal/audio/sounder.go
package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

var (
	ErrNotInitialized = errors.New("audio device not initialized")
	ErrAlreadyRunning = errors.New("audio device already running")
	ErrNotRunning     = errors.New("audio device not running")
)

// Config holds sidetone playback configuration
type Config struct {
	DeviceIndex int           // -1 for default device
	SampleRate  uint32        // e.g., 48000
	BufferSize  uint32        // frames per callback
	Ramp        time.Duration // attack/release per tone edge
	Volume      float64       // master volume 0.0-1.0, scales the keyer volume
}

// DefaultConfig returns sensible defaults for a low-latency sidetone
func DefaultConfig() Config {
	return Config{
		DeviceIndex: -1,
		SampleRate:  48000,
		BufferSize:  256,
		Ramp:        DefaultRamp,
		Volume:      1.0,
	}
}

// Sounder plays the keyer sidetone on an audio output device.
// It implements keyer.ToneSink.
type Sounder struct {
	config  Config
	osc     *Oscillator
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	running bool
	mu      sync.RWMutex
}

// New creates a new sounder; call Init and Start before tones are audible.
func New(cfg Config) *Sounder {
	return &Sounder{
		config: cfg,
		osc:    NewOscillator(float64(cfg.SampleRate), cfg.Ramp, cfg.Volume),
	}
}

// ToneOn starts the sidetone.
func (s *Sounder) ToneOn(freqHz, volume float64) {
	s.osc.ToneOn(freqHz, volume)
}

// ToneOff stops the sidetone.
func (s *Sounder) ToneOff() {
	s.osc.ToneOff()
}

// Init initializes the audio backend
func (s *Sounder) Init() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}
	s.ctx = ctx

	return nil
}

// ListDevices returns available playback devices
func (s *Sounder) ListDevices() ([]malgo.DeviceInfo, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.ctx == nil {
		return nil, ErrNotInitialized
	}

	infos, err := s.ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}

	return infos, nil
}

// Start opens the playback device. Playback stops when ctx is cancelled.
func (s *Sounder) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return ErrAlreadyRunning
	}
	if s.ctx == nil {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	s.mu.Unlock()

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.SampleRate = s.config.SampleRate
	deviceConfig.PeriodSizeInFrames = s.config.BufferSize
	deviceConfig.Playback.Format = malgo.FormatF32
	deviceConfig.Playback.Channels = 1

	if s.config.DeviceIndex >= 0 {
		devices, err := s.ListDevices()
		if err != nil {
			return err
		}
		if s.config.DeviceIndex >= len(devices) {
			return fmt.Errorf("device index %d out of range (have %d devices)",
				s.config.DeviceIndex, len(devices))
		}
		deviceConfig.Playback.DeviceID = devices[s.config.DeviceIndex].ID.Pointer()
	}

	var frames []float32
	onSendFrames := func(outputSamples, _ []byte, frameCount uint32) {
		if cap(frames) < int(frameCount) {
			frames = make([]float32, frameCount)
		}
		frames = frames[:frameCount]
		s.osc.Render(frames)
		float32ToBytes(frames, outputSamples)
	}

	device, err := malgo.InitDevice(s.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onSendFrames,
	})
	if err != nil {
		return fmt.Errorf("init device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start device: %w", err)
	}

	s.mu.Lock()
	s.device = device
	s.running = true
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = s.Stop()
	}()

	return nil
}

// Stop stops playback
func (s *Sounder) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return ErrNotRunning
	}

	if s.device != nil {
		_ = s.device.Stop()
		s.device.Uninit()
		s.device = nil
	}

	s.running = false
	return nil
}

// Close releases all audio resources
func (s *Sounder) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running && s.device != nil {
		_ = s.device.Stop()
		s.device.Uninit()
		s.device = nil
		s.running = false
	}

	if s.ctx != nil {
		if err := s.ctx.Uninit(); err != nil {
			return fmt.Errorf("uninit context: %w", err)
		}
		s.ctx.Free()
		s.ctx = nil
	}

	return nil
}

// IsRunning returns true if playback is active
func (s *Sounder) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// float32ToBytes writes little-endian float32 samples into dst, which the
// device sizes as frames*4 bytes.
func float32ToBytes(samples []float32, dst []byte) {
	n := len(dst) / 4
	if len(samples) < n {
		n = len(samples)
	}
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(samples[i]))
	}
}

// Silent is a ToneSink that produces no sound.
type Silent struct{}

func (Silent) ToneOn(float64, float64) {}
func (Silent) ToneOff()                {}
