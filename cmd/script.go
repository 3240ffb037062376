package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ColonelBlimp/cwkeyer/internal/script"
)

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode FILE",
		Short: "Decode the key edges of a TOML or YAML script",
		Long: `Decode the key edges recorded in a script file. A script without edges has
its text keyed at exact timing instead. --wpm and --farnsworth override the
speeds in the file.`,
		Args: cobra.ExactArgs(1),
		RunE: runDecode,
	}
}

func newPlayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "play FILE",
		Short: "Play the paddle steps of a script through the keyer",
		Long: `Play the paddle steps of a script through the keyer in real time, sounding
the sidetone, and print what the keyed output decodes to. With --mute the
script runs instantly. --wpm, --mode and --farnsworth override the file.`,
		Args: cobra.ExactArgs(1),
		RunE: runPlay,
	}
}

// loadScript loads path and applies any speed or mode flags given
// explicitly on the command line.
func loadScript(cmd *cobra.Command, path string) (*script.Script, error) {
	sc, err := script.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("wpm") {
		sc.WPM, _ = flags.GetInt("wpm")
	}
	if flags.Changed("farnsworth") {
		sc.FarnsworthWPM, _ = flags.GetInt("farnsworth")
	}
	if flags.Changed("mode") {
		sc.Mode, _ = flags.GetString("mode")
	}
	if err := sc.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sc, nil
}

func runDecode(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(s, os.Stderr)

	sc, err := loadScript(cmd, args[0])
	if err != nil {
		return err
	}

	text, err := script.DecodeEdges(sc, logger)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}

func runPlay(cmd *cobra.Command, args []string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(s, os.Stderr)

	sc, err := loadScript(cmd, args[0])
	if err != nil {
		return err
	}

	mute := muted(cmd)
	tone, closeTone := openSidetone(cmd.Context(), s, mute, logger)
	defer closeTone()

	opts := script.Options{
		Tone:   tone,
		ToneHz: s.ToneFrequency,
		Volume: s.Volume,
		Logger: logger,
	}
	if !mute {
		opts.Wait = script.RealTime
	}

	text, err := script.RunKeyer(cmd.Context(), sc, opts)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}
