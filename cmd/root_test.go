package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gen2brain/malgo"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/ColonelBlimp/cwkeyer/internal/config"
	"github.com/ColonelBlimp/cwkeyer/internal/cw"
	"github.com/ColonelBlimp/cwkeyer/internal/keyer"
)

// resetForTest clears viper and puts every persistent flag back to its
// default, since rootCmd is shared between tests.
func resetForTest(t *testing.T) string {
	t.Helper()
	viper.Reset()
	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	})

	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", "")
	return filepath.Join(tmpDir, ".config", config.AppName)
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("failed to create dir: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestRootCmd_HasExpectedFlags(t *testing.T) {
	flags := rootCmd.PersistentFlags()

	tests := []struct {
		name         string
		shorthand    string
		defaultValue string
	}{
		{"wpm", "w", "20"},
		{"mode", "m", "iambic-b"},
		{"tone", "t", "550"},
		{"farnsworth", "F", "0"},
		{"device", "d", "-1"},
		{"mute", "", "false"},
		{"debug", "D", "false"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag := flags.Lookup(tt.name)
			if flag == nil {
				t.Fatalf("flag %q not found", tt.name)
			}
			if flag.Shorthand != tt.shorthand {
				t.Errorf("flag %q shorthand = %q, want %q", tt.name, flag.Shorthand, tt.shorthand)
			}
			if flag.DefValue != tt.defaultValue {
				t.Errorf("flag %q default = %q, want %q", tt.name, flag.DefValue, tt.defaultValue)
			}
			if flag.Usage == "" {
				t.Errorf("flag %q has no description", tt.name)
			}
		})
	}
}

func TestRootCmd_Properties(t *testing.T) {
	if rootCmd.Use != "cwkeyer" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "cwkeyer")
	}
	if rootCmd.Short == "" {
		t.Error("rootCmd.Short is empty")
	}
	if rootCmd.Long == "" {
		t.Error("rootCmd.Long is empty")
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	for _, name := range []string{"key", "decode", "play", "listen", "table", "devices"} {
		t.Run(name, func(t *testing.T) {
			cmd, _, err := rootCmd.Find([]string{name})
			if err != nil || cmd.Name() != name {
				t.Errorf("subcommand %q not found (err = %v)", name, err)
			}
		})
	}
}

func TestRootCmd_HelpOutput(t *testing.T) {
	resetForTest(t)

	out, err := execute(t, "--help")
	if err != nil {
		t.Fatalf("Execute() with --help error = %v", err)
	}
	for _, want := range []string{"cwkeyer", "--wpm", "--mode", "decode", "play"} {
		if !strings.Contains(out, want) {
			t.Errorf("help output should contain %q", want)
		}
	}
}

func TestInitConfig(t *testing.T) {
	dir := resetForTest(t)
	writeFile(t, dir, "config.yaml", "wpm: 25")

	initConfig()
	if configErr != nil {
		t.Fatalf("initConfig() error = %v", configErr)
	}
	if viper.GetInt("wpm") != 25 {
		t.Errorf("viper.GetInt(wpm) = %d, want 25", viper.GetInt("wpm"))
	}
}

func TestKeyCmd_HelpExplainsReleaseTimeout(t *testing.T) {
	cmd, _, err := rootCmd.Find([]string{"key"})
	if err != nil {
		t.Fatalf("Find(key) error = %v", err)
	}
	for _, want := range []string{"release_timeout_ms", "auto-repeat delay"} {
		if !strings.Contains(cmd.Long, want) {
			t.Errorf("key help should mention %q", want)
		}
	}
}

func TestTableCmd(t *testing.T) {
	resetForTest(t)

	out, err := execute(t, "table")
	if err != nil {
		t.Fatalf("table error = %v", err)
	}
	for _, want := range []string{"A  .-", "0  -----", "?  ..--.."} {
		if !strings.Contains(out, want) {
			t.Errorf("table output missing %q", want)
		}
	}
}

func TestWriteTable(t *testing.T) {
	entries := cw.Table()[:5]

	var buf bytes.Buffer
	writeTable(&buf, entries)

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2:\n%s", len(lines), buf.String())
	}
	if !strings.HasPrefix(lines[0], "E  .") {
		t.Errorf("first row = %q, want it to start with E", lines[0])
	}
}

func TestDecodeCmd(t *testing.T) {
	tests := []struct {
		name   string
		file   string
		script string
		args   []string
		want   string
	}{
		{
			name:   "yaml text",
			file:   "cq.yaml",
			script: "wpm: 20\ntext: \"CQ DE K1ABC\"\n",
			want:   "CQ DE K1ABC\n",
		},
		{
			name:   "toml edges",
			file:   "i.toml",
			script: "wpm = 13\nedges = [\n  { at_ms = 0.0, down = true },\n  { at_ms = 90.0, down = false },\n  { at_ms = 180.0, down = true },\n  { at_ms = 270.0, down = false },\n]\n",
			want:   "I\n",
		},
		{
			name:   "speed override",
			file:   "fast.yaml",
			script: "wpm: 20\ntext: \"PARIS\"\n",
			args:   []string{"--wpm", "35", "--farnsworth", "15"},
			want:   "PARIS\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetForTest(t)
			path := writeFile(t, t.TempDir(), tt.file, tt.script)

			out, err := execute(t, append([]string{"decode", path}, tt.args...)...)
			if err != nil {
				t.Fatalf("decode error = %v", err)
			}
			if out != tt.want {
				t.Errorf("decode output = %q, want %q", out, tt.want)
			}
		})
	}
}

func TestDecodeCmd_Errors(t *testing.T) {
	tests := []struct {
		name   string
		file   string
		script string
	}{
		{"missing file", "", ""},
		{"bad extension", "cq.txt", "CQ"},
		{"empty script", "empty.yaml", "wpm: 20\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetForTest(t)
			path := filepath.Join(t.TempDir(), "missing.yaml")
			if tt.file != "" {
				path = writeFile(t, t.TempDir(), tt.file, tt.script)
			}

			if _, err := execute(t, "decode", path); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestDecodeCmd_InvalidConfig(t *testing.T) {
	dir := resetForTest(t)
	writeFile(t, dir, "config.yaml", "sample_rate: 1000000")
	path := writeFile(t, t.TempDir(), "e.yaml", "text: E\n")

	_, err := execute(t, "decode", path)
	if err == nil {
		t.Fatal("expected error for invalid config, got nil")
	}
	if !strings.Contains(err.Error(), "config") {
		t.Errorf("expected config error, got: %v", err)
	}
}

func TestPlayCmd_Muted(t *testing.T) {
	tests := []struct {
		name   string
		script string
		args   []string
		want   string
	}{
		{
			name:   "text on straight line",
			script: "wpm: 20\ntext: \"CQ\"\n",
			want:   "CQ\n",
		},
		{
			name:   "squeeze iambic-a",
			script: "wpm: 20\nmode: iambic-a\npaddles:\n  - {at_ms: 0, line: dot, down: true}\n  - {at_ms: 0, line: dash, down: true}\n  - {at_ms: 130, line: dot, down: false}\n  - {at_ms: 130, line: dash, down: false}\n",
			want:   "A\n",
		},
		{
			name:   "mode flag",
			script: "wpm: 20\nmode: iambic-a\npaddles:\n  - {at_ms: 0, line: dot, down: true}\n  - {at_ms: 0, line: dash, down: true}\n  - {at_ms: 130, line: dot, down: false}\n  - {at_ms: 130, line: dash, down: false}\n",
			args:   []string{"--mode", "iambic-b"},
			want:   "R\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetForTest(t)
			path := writeFile(t, t.TempDir(), "play.yaml", tt.script)

			start := time.Now()
			out, err := execute(t, append([]string{"play", "--mute", path}, tt.args...)...)
			if err != nil {
				t.Fatalf("play error = %v", err)
			}
			if out != tt.want {
				t.Errorf("play output = %q, want %q", out, tt.want)
			}
			if time.Since(start) > 2*time.Second {
				t.Error("muted play should not wait in real time")
			}
		})
	}
}

func TestKeyCmd_NeedsTerminal(t *testing.T) {
	if term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd())) {
		t.Skip("running on a terminal")
	}
	resetForTest(t)

	if _, err := execute(t, "key"); !errors.Is(err, errNotTerminal) {
		t.Errorf("key error = %v, want %v", err, errNotTerminal)
	}
}

func TestLoadSettings_FarnsworthFlag(t *testing.T) {
	resetForTest(t)
	initConfig()
	if configErr != nil {
		t.Fatalf("initConfig() error = %v", configErr)
	}

	if err := rootCmd.ParseFlags([]string{"--farnsworth", "10"}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}
	s, err := loadSettings(rootCmd)
	if err != nil {
		t.Fatalf("loadSettings() error = %v", err)
	}
	if !s.FarnsworthEnabled || s.EffectiveFarnsworthWPM() != 10 {
		t.Errorf("farnsworth = %v/%d, want enabled at 10", s.FarnsworthEnabled, s.EffectiveFarnsworthWPM())
	}
}

func TestSessionConfig(t *testing.T) {
	resetForTest(t)
	initConfig()
	if configErr != nil {
		t.Fatalf("initConfig() error = %v", configErr)
	}

	s, err := config.Get()
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	var buf bytes.Buffer
	logger := newLogger(s, &buf)
	cfg := sessionConfig(s, logger)

	if cfg.WPM != 20 || cfg.Mode != keyer.IambicB || cfg.ToneHz != 550 {
		t.Errorf("sessionConfig() = %+v", cfg)
	}
	if cfg.FarnsworthWPM != 0 {
		t.Errorf("FarnsworthWPM = %d, want 0 when disabled", cfg.FarnsworthWPM)
	}
	if cfg.IdlePoll != 20*time.Millisecond {
		t.Errorf("IdlePoll = %v, want 20ms", cfg.IdlePoll)
	}

	logger.Info("hello")
	if !strings.Contains(buf.String(), config.AppName) {
		t.Errorf("log output %q should name the component", buf.String())
	}
}

func TestListenCmd_InputFlag(t *testing.T) {
	cmd, _, err := rootCmd.Find([]string{"listen"})
	if err != nil {
		t.Fatalf("Find(listen) error = %v", err)
	}
	flag := cmd.Flags().Lookup("input")
	if flag == nil {
		t.Fatal("listen has no --input flag")
	}
	if flag.Shorthand != "i" || flag.DefValue != "-1" {
		t.Errorf("--input = -%s default %s, want -i default -1", flag.Shorthand, flag.DefValue)
	}
}

func TestWriteDevices(t *testing.T) {
	var buf bytes.Buffer
	writeDevices(&buf, "Capture (--input)", nil)
	if !strings.Contains(buf.String(), "none found") {
		t.Errorf("empty list output = %q", buf.String())
	}

	buf.Reset()
	writeDevices(&buf, "Playback (--device)", []malgo.DeviceInfo{{IsDefault: 1}, {}})
	out := buf.String()
	for _, want := range []string{"Playback (--device):", "[0]", "(default)", "[1]"} {
		if !strings.Contains(out, want) {
			t.Errorf("device output missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "(default)") != 1 {
		t.Errorf("only the first device is the default:\n%s", out)
	}
}
