package cmd

import (
	"fmt"
	"io"

	"github.com/gen2brain/malgo"
	"github.com/spf13/cobra"

	"github.com/ColonelBlimp/cwkeyer/internal/audio"
)

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio devices for --device and --input",
		Args:  cobra.NoArgs,
		RunE:  runDevices,
	}
}

func runDevices(cmd *cobra.Command, _ []string) error {
	sounder := audio.New(audio.DefaultConfig())
	if err := sounder.Init(); err != nil {
		return fmt.Errorf("failed to initialize audio: %w", err)
	}
	defer func() { _ = sounder.Close() }()

	playback, err := sounder.ListDevices()
	if err != nil {
		return err
	}

	mon := audio.NewMonitor(audio.MonitorConfig{DeviceIndex: -1})
	if err := mon.Init(); err != nil {
		return fmt.Errorf("failed to initialize audio: %w", err)
	}
	defer func() { _ = mon.Close() }()

	capture, err := mon.ListDevices()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	writeDevices(out, "Playback (--device)", playback)
	writeDevices(out, "Capture (--input)", capture)
	return nil
}

func writeDevices(w io.Writer, title string, devices []malgo.DeviceInfo) {
	fmt.Fprintf(w, "%s:\n", title)
	if len(devices) == 0 {
		fmt.Fprintln(w, "  none found")
		return
	}
	for i, d := range devices {
		mark := ""
		if d.IsDefault != 0 {
			mark = " (default)"
		}
		fmt.Fprintf(w, "  [%d] %s%s\n", i, d.Name(), mark)
	}
}
