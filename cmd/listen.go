package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ColonelBlimp/cwkeyer/internal/audio"
	"github.com/ColonelBlimp/cwkeyer/internal/cw"
	"github.com/ColonelBlimp/cwkeyer/internal/dsp"
)

func newListenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Decode Morse received as a tone on an audio input",
		Long: `Listen on an audio input for a tone at tone_frequency and print what it
decodes to until interrupted. threshold, hysteresis and agc_decay in the config
file tune the tone detector.`,
		Args: cobra.NoArgs,
		RunE: runListen,
	}
	cmd.Flags().IntP("input", "i", -1, "audio capture device index (-1 for default)")
	return cmd
}

func runListen(cmd *cobra.Command, _ []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(s, os.Stderr)

	input := s.InputDevice
	if cmd.Flags().Changed("input") {
		input, _ = cmd.Flags().GetInt("input")
	}

	out := cmd.OutOrStdout()
	dec := cw.NewDecoder(cw.DecoderConfig{
		WPM:           s.WPM,
		FarnsworthWPM: s.EffectiveFarnsworthWPM(),
		Logger:        logger,
	})
	dec.SetCallback(func(d cw.Decoded) {
		fmt.Fprintf(out, "%c", d.Character)
	})

	det, err := dsp.NewDetector(dsp.DetectorConfig{
		ToneHz:     s.ToneFrequency,
		SampleRate: float64(s.SampleRate),
		Threshold:  s.Threshold,
		Hysteresis: s.Hysteresis,
		AGCDecay:   s.AGCDecay,
		Start:      time.Now(),
	}, dec.OnEdge)
	if err != nil {
		return fmt.Errorf("tone detector: %w", err)
	}

	mon := audio.NewMonitor(audio.MonitorConfig{
		DeviceIndex: input,
		SampleRate:  uint32(s.SampleRate),
		BufferSize:  uint32(s.BufferSize),
	})
	if err := mon.Init(); err != nil {
		return fmt.Errorf("failed to initialize audio: %w", err)
	}
	defer func() { _ = mon.Close() }()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := mon.Start(ctx); err != nil {
		return fmt.Errorf("failed to start audio: %w", err)
	}
	logger.Info("listening",
		"tone_frequency", s.ToneFrequency,
		"wpm", s.WPM,
		"input_device_index", input)

	samples := mon.Samples
	for {
		select {
		case <-ctx.Done():
			dec.Flush(det.Now())
			fmt.Fprintln(out)
			return nil
		case block, ok := <-samples:
			if !ok {
				return nil
			}
			det.Process(block)
			dec.FlushIfIdle(det.Now())
		}
	}
}
