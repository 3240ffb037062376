package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// MonitorConfig holds receive audio configuration
type MonitorConfig struct {
	DeviceIndex int    // -1 for default device
	SampleRate  uint32 // e.g., 48000
	BufferSize  uint32 // frames per callback
}

// Monitor captures mono audio from an input device, typically a receiver,
// for tone detection.
type Monitor struct {
	config  MonitorConfig
	ctx     *malgo.AllocatedContext
	device  *malgo.Device
	running bool
	closed  bool
	mu      sync.RWMutex

	// Samples delivers captured blocks (float32, -1.0 to 1.0). Blocks are
	// dropped when the consumer falls behind. Closed by Close.
	Samples chan []float32
}

// NewMonitor creates a capture instance; call Init and Start to receive.
func NewMonitor(cfg MonitorConfig) *Monitor {
	return &Monitor{
		config:  cfg,
		Samples: make(chan []float32, 64),
	}
}

// Init initializes the audio backend
func (m *Monitor) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("init audio context: %w", err)
	}
	m.ctx = ctx

	return nil
}

// ListDevices returns available capture devices
func (m *Monitor) ListDevices() ([]malgo.DeviceInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.ctx == nil {
		return nil, ErrNotInitialized
	}

	infos, err := m.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("enumerate devices: %w", err)
	}

	return infos, nil
}

// Start opens the capture device. Capture stops when ctx is cancelled.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	if m.ctx == nil {
		m.mu.Unlock()
		return ErrNotInitialized
	}
	m.mu.Unlock()

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.SampleRate = m.config.SampleRate
	deviceConfig.PeriodSizeInFrames = m.config.BufferSize
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = 1

	if m.config.DeviceIndex >= 0 {
		devices, err := m.ListDevices()
		if err != nil {
			return err
		}
		if m.config.DeviceIndex >= len(devices) {
			return fmt.Errorf("device index %d out of range (have %d devices)",
				m.config.DeviceIndex, len(devices))
		}
		deviceConfig.Capture.DeviceID = devices[m.config.DeviceIndex].ID.Pointer()
	}

	onRecvFrames := func(_, inputSamples []byte, _ uint32) {
		if len(inputSamples) == 0 {
			return
		}
		select {
		case m.Samples <- bytesToFloat32(inputSamples):
		default:
		}
	}

	device, err := malgo.InitDevice(m.ctx.Context, deviceConfig, malgo.DeviceCallbacks{
		Data: onRecvFrames,
	})
	if err != nil {
		return fmt.Errorf("init device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start device: %w", err)
	}

	m.mu.Lock()
	m.device = device
	m.running = true
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = m.Stop()
	}()

	return nil
}

// Stop stops capture
func (m *Monitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return ErrNotRunning
	}

	if m.device != nil {
		_ = m.device.Stop()
		m.device.Uninit()
		m.device = nil
	}

	m.running = false
	return nil
}

// Close releases all audio resources and closes Samples.
func (m *Monitor) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running && m.device != nil {
		_ = m.device.Stop()
		m.device.Uninit()
		m.device = nil
		m.running = false
	}

	if m.ctx != nil {
		if err := m.ctx.Uninit(); err != nil {
			return fmt.Errorf("uninit context: %w", err)
		}
		m.ctx.Free()
		m.ctx = nil
	}

	if !m.closed {
		close(m.Samples)
		m.closed = true
	}
	return nil
}

// IsRunning returns true if capture is active
func (m *Monitor) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// bytesToFloat32 decodes little-endian float32 samples.
func bytesToFloat32(data []byte) []float32 {
	samples := make([]float32, len(data)/4)
	for i := range samples {
		samples[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return samples
}
