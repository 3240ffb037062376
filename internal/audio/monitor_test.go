package audio

import (
	"context"
	"encoding/binary"
	"math"
	"testing"
)

func TestMonitor_NotInitialized(t *testing.T) {
	m := NewMonitor(MonitorConfig{DeviceIndex: -1, SampleRate: 48000, BufferSize: 256})

	if m.IsRunning() {
		t.Error("new monitor should not be running")
	}
	if _, err := m.ListDevices(); err != ErrNotInitialized {
		t.Errorf("ListDevices() error = %v, want %v", err, ErrNotInitialized)
	}
	if err := m.Start(context.Background()); err != ErrNotInitialized {
		t.Errorf("Start() error = %v, want %v", err, ErrNotInitialized)
	}
	if err := m.Stop(); err != ErrNotRunning {
		t.Errorf("Stop() error = %v, want %v", err, ErrNotRunning)
	}
}

func TestMonitor_CloseTwice(t *testing.T) {
	m := NewMonitor(MonitorConfig{})

	if err := m.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, ok := <-m.Samples; ok {
		t.Error("Samples should be closed")
	}
	if err := m.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestBytesToFloat32(t *testing.T) {
	want := []float32{0, 1, -1, 0.25, float32(math.Pi)}
	data := make([]byte, len(want)*4+2) // trailing partial sample is ignored
	for i, v := range want {
		binary.LittleEndian.PutUint32(data[i*4:], math.Float32bits(v))
	}

	got := bytesToFloat32(data)
	if len(got) != len(want) {
		t.Fatalf("got %d samples, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sample %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestBytesToFloat32_RoundTrip(t *testing.T) {
	samples := []float32{0.5, -0.75, 0.125}
	buf := make([]byte, len(samples)*4)
	float32ToBytes(samples, buf)

	got := bytesToFloat32(buf)
	for i := range samples {
		if got[i] != samples[i] {
			t.Errorf("sample %d = %v, want %v", i, got[i], samples[i])
		}
	}
}
