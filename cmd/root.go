// cmd/root.go
package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ColonelBlimp/cwkeyer/internal/config"
	"github.com/ColonelBlimp/cwkeyer/internal/logging"
	"github.com/ColonelBlimp/cwkeyer/internal/session"
)

var rootCmd = &cobra.Command{
	Use:   "cwkeyer",
	Short: "CW (Morse code) keyer with a live decoder",
	Long: `An iambic and straight-key Morse keyer that sounds a sidetone and decodes
what you send. Scripts of recorded key edges or paddle presses can be decoded
or played back.`,
	SilenceUsage:      true,
	PersistentPreRunE: checkConfig,
}

// configErr holds the result of loading the config file.
var configErr error

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags (override config file)
	flags := rootCmd.PersistentFlags()
	flags.IntP("wpm", "w", 20, "keying speed in words per minute")
	flags.StringP("mode", "m", "iambic-b", "keyer mode: straight, iambic-a or iambic-b")
	flags.Float64P("tone", "t", 550, "sidetone frequency in Hz")
	flags.IntP("farnsworth", "F", 0, "Farnsworth spacing speed for decoding (0 disables)")
	flags.IntP("device", "d", -1, "audio device index (-1 for default)")
	flags.Bool("mute", false, "disable the sidetone")
	flags.BoolP("debug", "D", false, "enable debug output")

	rootCmd.AddCommand(newKeyCmd(), newDecodeCmd(), newPlayCmd(), newListenCmd(), newTableCmd(), newDevicesCmd())
}

// flagKeys maps persistent flags to config keys.
var flagKeys = map[string]string{
	"wpm":        "wpm",
	"mode":       "mode",
	"tone":       "tone_frequency",
	"farnsworth": "farnsworth_wpm",
	"device":     "device_index",
	"debug":      "debug",
}

func initConfig() {
	configErr = config.Init()

	// Bind flags to viper
	for flag, key := range flagKeys {
		if err := viper.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
			configErr = err
		}
	}
}

func checkConfig(_ *cobra.Command, _ []string) error {
	if configErr != nil {
		return fmt.Errorf("config error: %w", configErr)
	}
	return nil
}

// loadSettings returns the validated settings with flag overrides applied.
func loadSettings(cmd *cobra.Command) (*config.Settings, error) {
	if cmd.Flags().Changed("farnsworth") {
		viper.Set("farnsworth_enabled", viper.GetInt("farnsworth_wpm") > 0)
	}
	return config.Get()
}

func muted(cmd *cobra.Command) bool {
	mute, err := cmd.Flags().GetBool("mute")
	return err == nil && mute
}

// newLogger builds the command logger. Interactive commands own the
// terminal, so they pass a file or io.Discard as w.
func newLogger(s *config.Settings, w io.Writer) *slog.Logger {
	format, err := logging.ParseFormat(s.LogFormat)
	if err != nil {
		format = logging.FormatText
	}
	level := slog.LevelInfo
	if s.Debug {
		level = slog.LevelDebug
	}
	return logging.New(logging.Config{
		Level:     level,
		Format:    format,
		Output:    w,
		Component: config.AppName,
	})
}

func sessionConfig(s *config.Settings, logger *slog.Logger) session.Config {
	return session.Config{
		WPM:           s.WPM,
		FarnsworthWPM: s.EffectiveFarnsworthWPM(),
		Mode:          s.KeyerMode(),
		ToneHz:        s.ToneFrequency,
		Volume:        s.Volume,
		IdlePoll:      s.IdlePoll(),
		Logger:        logger,
	}
}
