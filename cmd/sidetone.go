package cmd

import (
	"context"
	"log/slog"

	"github.com/ColonelBlimp/cwkeyer/internal/audio"
	"github.com/ColonelBlimp/cwkeyer/internal/config"
	"github.com/ColonelBlimp/cwkeyer/internal/keyer"
)

// openSidetone starts audio playback for s. When the device cannot be
// opened the keyer still runs, silently, with a warning logged. The returned
// func releases the device.
func openSidetone(ctx context.Context, s *config.Settings, mute bool, logger *slog.Logger) (keyer.ToneSink, func()) {
	if mute {
		return audio.Silent{}, func() {}
	}

	sounder := audio.New(audio.Config{
		DeviceIndex: s.DeviceIndex,
		SampleRate:  uint32(s.SampleRate),
		BufferSize:  uint32(s.BufferSize),
		Ramp:        s.Ramp(),
		Volume:      1.0,
	})

	if err := sounder.Init(); err != nil {
		logger.Warn("sidetone unavailable, continuing muted", "error", err)
		return audio.Silent{}, func() {}
	}
	if err := sounder.Start(ctx); err != nil {
		logger.Warn("sidetone unavailable, continuing muted", "error", err, "device_index", s.DeviceIndex)
		_ = sounder.Close()
		return audio.Silent{}, func() {}
	}

	logger.Debug("sidetone started",
		"device_index", s.DeviceIndex,
		"sample_rate", s.SampleRate,
		"buffer_size", s.BufferSize)

	return sounder, func() {
		if err := sounder.Close(); err != nil {
			logger.Warn("close audio", "error", err)
		}
	}
}
