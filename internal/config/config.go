// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/ColonelBlimp/cwkeyer/internal/keyer"
	"github.com/ColonelBlimp/cwkeyer/internal/logging"
	"github.com/ColonelBlimp/cwkeyer/internal/timing"
)

const (
	AppName       = "cwkeyer"
	ConfigType    = "yaml"
	DefaultConfig = `# CW Keyer Configuration

# Keying
wpm: 20                   # Keying speed in words per minute (1-200)
mode: "iambic-b"          # straight, iambic-a or iambic-b
farnsworth_enabled: false # Stretch character and word gaps when decoding
farnsworth_wpm: 0         # Effective speed for gaps, must not exceed wpm

# Sidetone
tone_frequency: 550       # Sidetone frequency in Hz
volume: 0.5               # Sidetone volume (0.0-1.0)
ramp_ms: 5                # Attack/release ramp per tone edge, removes key clicks

# Audio device settings
device_index: -1          # -1 for default device (use 'cwkeyer devices' to list)
sample_rate: 48000        # Playback sample rate in Hz
buffer_size: 256          # Frames per audio callback, lower = less latency
input_device_index: -1    # Capture device for 'cwkeyer listen', -1 for default

# Tone detection (listen)
threshold: 0.4            # Fraction of the tracked peak that counts as tone (0.0-1.0)
hysteresis: 2             # Consecutive blocks required to confirm a key change
agc_decay: 0.995          # Per-block decay of the tracked peak (0.0-1.0)

# Host loop
idle_poll_ms: 20          # How often the decoder is checked for an idle line
release_timeout_ms: 120   # Terminal key release inferred after this long without repeat;
                          # set above the terminal's auto-repeat delay for smooth holds

# Key bindings (terminal key names)
dot_keys: ["z", "left"]
dash_keys: ["x", "right"]
straight_keys: ["space"]

# Output
log_format: "text"        # text or json
debug: false              # Enable debug output
`
)

// Settings holds all application configuration
type Settings struct {
	// Keying
	WPM               int    `mapstructure:"wpm"`
	Mode              string `mapstructure:"mode"`
	FarnsworthEnabled bool   `mapstructure:"farnsworth_enabled"`
	FarnsworthWPM     int    `mapstructure:"farnsworth_wpm"`

	// Sidetone
	ToneFrequency float64 `mapstructure:"tone_frequency"`
	Volume        float64 `mapstructure:"volume"`
	RampMs        float64 `mapstructure:"ramp_ms"`

	// Audio device settings
	DeviceIndex int `mapstructure:"device_index"`
	SampleRate  int `mapstructure:"sample_rate"`
	BufferSize  int `mapstructure:"buffer_size"`
	InputDevice int `mapstructure:"input_device_index"`

	// Tone detection
	Threshold  float64 `mapstructure:"threshold"`
	Hysteresis int     `mapstructure:"hysteresis"`
	AGCDecay   float64 `mapstructure:"agc_decay"`

	// Host loop
	IdlePollMs       int `mapstructure:"idle_poll_ms"`
	ReleaseTimeoutMs int `mapstructure:"release_timeout_ms"`

	// Key bindings
	DotKeys      []string `mapstructure:"dot_keys"`
	DashKeys     []string `mapstructure:"dash_keys"`
	StraightKeys []string `mapstructure:"straight_keys"`

	// Output
	LogFormat string `mapstructure:"log_format"`
	Debug     bool   `mapstructure:"debug"`
}

func setDefaults() {
	viper.SetDefault("wpm", 20)
	viper.SetDefault("mode", "iambic-b")
	viper.SetDefault("farnsworth_enabled", false)
	viper.SetDefault("farnsworth_wpm", 0)
	viper.SetDefault("tone_frequency", keyer.DefaultToneHz)
	viper.SetDefault("volume", keyer.DefaultVolume)
	viper.SetDefault("ramp_ms", 5)
	viper.SetDefault("device_index", -1)
	viper.SetDefault("sample_rate", 48000)
	viper.SetDefault("buffer_size", 256)
	viper.SetDefault("input_device_index", -1)
	viper.SetDefault("threshold", 0.4)
	viper.SetDefault("hysteresis", 2)
	viper.SetDefault("agc_decay", 0.995)
	viper.SetDefault("idle_poll_ms", 20)
	viper.SetDefault("release_timeout_ms", 120)
	viper.SetDefault("dot_keys", []string{"z", "left"})
	viper.SetDefault("dash_keys", []string{"x", "right"})
	viper.SetDefault("straight_keys", []string{"space"})
	viper.SetDefault("log_format", "text")
	viper.SetDefault("debug", false)
}

// Init initializes Viper with defaults and config file.
// Config file search order: current directory, then ~/.config/cwkeyer/
func Init() error {
	setDefaults()

	// Support both config.yaml and .config.yaml
	viper.SetConfigType(ConfigType)

	// Priority order: current directory first, then XDG config
	viper.AddConfigPath(".")

	configDir, err := os.UserConfigDir()
	if err != nil {
		configDir = filepath.Join(os.Getenv("HOME"), ".config")
	}
	viper.AddConfigPath(filepath.Join(configDir, AppName))

	// Try .config.yaml first (hidden file), then config.yaml
	viper.SetConfigName(".config")
	if err = viper.ReadInConfig(); err != nil {
		viper.SetConfigName("config")
		err = viper.ReadInConfig()
	}

	// Read config file - if not found, create default in XDG config dir
	if err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			xdgConfigPath := filepath.Join(configDir, AppName)
			if err = ensureConfigExists(xdgConfigPath); err != nil {
				return err
			}
			if err = viper.ReadInConfig(); err != nil {
				return fmt.Errorf("read config: %w", err)
			}
		} else {
			return fmt.Errorf("read config: %w", err)
		}
	}

	return nil
}

func ensureConfigExists(configPath string) error {
	configFile := filepath.Join(configPath, "config.yaml")

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		if err = os.MkdirAll(configPath, 0755); err != nil {
			return fmt.Errorf("create config dir: %w", err)
		}
		if err = os.WriteFile(configFile, []byte(DefaultConfig), 0644); err != nil {
			return fmt.Errorf("write default config: %w", err)
		}
	}
	return nil
}

// Get returns the current settings
func Get() (*Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &s, nil
}

// Watch re-reads the config file whenever it changes on disk. onChange gets
// every reload that validates; onError gets the rest, and the previous
// settings stay in effect.
func Watch(onChange func(*Settings), onError func(error)) {
	viper.OnConfigChange(reloadHandler(onChange, onError))
	viper.WatchConfig()
}

func reloadHandler(onChange func(*Settings), onError func(error)) func(fsnotify.Event) {
	return func(e fsnotify.Event) {
		s, err := Get()
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}
		if onChange != nil {
			onChange(s)
		}
	}
}

// Validate checks that all settings are within acceptable ranges
func (s *Settings) Validate() error {
	var errs []error

	// Keying
	if s.WPM < timing.MinWPM || s.WPM > timing.MaxWPM {
		errs = append(errs, fmt.Errorf("wpm must be between %d and %d, got %d", timing.MinWPM, timing.MaxWPM, s.WPM))
	}
	if _, err := keyer.ParseMode(s.Mode); err != nil {
		errs = append(errs, fmt.Errorf("mode: %w", err))
	}
	if s.FarnsworthEnabled && (s.FarnsworthWPM < timing.MinWPM || s.FarnsworthWPM > s.WPM) {
		errs = append(errs, fmt.Errorf("farnsworth_wpm must be between %d and wpm (%d), got %d", timing.MinWPM, s.WPM, s.FarnsworthWPM))
	}

	// Sidetone
	if s.ToneFrequency < 100 || s.ToneFrequency > 3000 {
		errs = append(errs, fmt.Errorf("tone_frequency must be between 100 and 3000 Hz, got %v", s.ToneFrequency))
	}
	if s.Volume < 0.0 || s.Volume > 1.0 {
		errs = append(errs, fmt.Errorf("volume must be between 0.0 and 1.0, got %v", s.Volume))
	}
	if s.RampMs < 0 || s.RampMs > 50 {
		errs = append(errs, fmt.Errorf("ramp_ms must be between 0 and 50, got %v", s.RampMs))
	}

	// Audio device settings
	if s.SampleRate < 8000 || s.SampleRate > 192000 {
		errs = append(errs, fmt.Errorf("sample_rate must be between 8000 and 192000 Hz, got %d", s.SampleRate))
	}
	if s.BufferSize < 32 || s.BufferSize > 8192 {
		errs = append(errs, fmt.Errorf("buffer_size must be between 32 and 8192, got %d", s.BufferSize))
	}
	if s.BufferSize&(s.BufferSize-1) != 0 {
		errs = append(errs, fmt.Errorf("buffer_size should be a power of 2, got %d", s.BufferSize))
	}

	// Tone detection
	if s.Threshold <= 0.0 || s.Threshold >= 1.0 {
		errs = append(errs, fmt.Errorf("threshold must be between 0.0 and 1.0 (exclusive), got %v", s.Threshold))
	}
	if s.Hysteresis < 1 || s.Hysteresis > 10 {
		errs = append(errs, fmt.Errorf("hysteresis must be between 1 and 10, got %d", s.Hysteresis))
	}
	if s.AGCDecay <= 0.0 || s.AGCDecay > 1.0 {
		errs = append(errs, fmt.Errorf("agc_decay must be between 0.0 (exclusive) and 1.0, got %v", s.AGCDecay))
	}

	// Host loop
	if s.IdlePollMs < 1 || s.IdlePollMs > 1000 {
		errs = append(errs, fmt.Errorf("idle_poll_ms must be between 1 and 1000, got %d", s.IdlePollMs))
	}
	if s.ReleaseTimeoutMs < 20 || s.ReleaseTimeoutMs > 2000 {
		errs = append(errs, fmt.Errorf("release_timeout_ms must be between 20 and 2000, got %d", s.ReleaseTimeoutMs))
	}

	// Key bindings
	if len(s.DotKeys) == 0 {
		errs = append(errs, errors.New("dot_keys must bind at least one key"))
	}
	if len(s.DashKeys) == 0 {
		errs = append(errs, errors.New("dash_keys must bind at least one key"))
	}
	bound := make(map[string]string)
	for name, keys := range map[string][]string{
		"dot_keys":      s.DotKeys,
		"dash_keys":     s.DashKeys,
		"straight_keys": s.StraightKeys,
	} {
		for _, k := range keys {
			k = strings.ToLower(k)
			if other, ok := bound[k]; ok && other != name {
				errs = append(errs, fmt.Errorf("key %q is bound in both %s and %s", k, other, name))
			}
			bound[k] = name
		}
	}

	// Output
	if _, err := logging.ParseFormat(s.LogFormat); err != nil {
		errs = append(errs, fmt.Errorf("log_format: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// KeyerMode returns the parsed keying mode; call after Validate.
func (s *Settings) KeyerMode() keyer.Mode {
	m, err := keyer.ParseMode(s.Mode)
	if err != nil {
		return keyer.IambicB
	}
	return m
}

// EffectiveFarnsworthWPM returns the gap speed for the decoder, 0 when
// Farnsworth spacing is off.
func (s *Settings) EffectiveFarnsworthWPM() int {
	if !s.FarnsworthEnabled {
		return 0
	}
	return s.FarnsworthWPM
}

// Ramp returns the sidetone attack/release time.
func (s *Settings) Ramp() time.Duration {
	return time.Duration(s.RampMs * float64(time.Millisecond))
}

// IdlePoll returns the decoder idle check interval.
func (s *Settings) IdlePoll() time.Duration {
	return time.Duration(s.IdlePollMs) * time.Millisecond
}

// ReleaseTimeout returns how long a terminal key counts as held without a
// repeat event.
func (s *Settings) ReleaseTimeout() time.Duration {
	return time.Duration(s.ReleaseTimeoutMs) * time.Millisecond
}
