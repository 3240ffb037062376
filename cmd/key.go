package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/ColonelBlimp/cwkeyer/internal/config"
	"github.com/ColonelBlimp/cwkeyer/internal/cw"
	"github.com/ColonelBlimp/cwkeyer/internal/session"
	"github.com/ColonelBlimp/cwkeyer/internal/tui"
)

var errNotTerminal = errors.New("key needs an interactive terminal")

func newKeyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "key",
		Short: "Key Morse from the keyboard with sidetone and live decoding",
		Long: `Key Morse from the keyboard. The dot, dash and straight keys are set by
dot_keys, dash_keys and straight_keys in the config file. Terminals report no
key release, so a key counts as released release_timeout_ms after its last
auto-repeat. The default of 120 ms keeps taps short but is below the usual
auto-repeat delay of 250 to 600 ms: a key held down reads as a tap, a release
and a second press at the first repeat. Set release_timeout_ms above your
terminal's repeat delay to hold lines smoothly, at the cost of every tap
lasting that long. Edits to the config file apply while keying.`,
		Args: cobra.NoArgs,
		RunE: runKey,
	}
}

func runKey(cmd *cobra.Command, _ []string) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return errNotTerminal
	}

	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	// the UI owns the terminal, so logs go to a file when debugging
	var logOut io.Writer = io.Discard
	if s.Debug {
		f, err := os.OpenFile(filepath.Join(os.TempDir(), config.AppName+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logOut = f
	}
	logger := newLogger(s, logOut)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tone, closeTone := openSidetone(ctx, s, muted(cmd), logger)
	defer closeTone()

	// transcript is written on the session goroutine and read after Run returns
	var transcript strings.Builder
	var program *tea.Program
	sess := session.New(sessionConfig(s, logger), tone, nil, func(d cw.Decoded) {
		transcript.WriteRune(d.Character)
		program.Send(tui.DecodedMsg(d))
	})
	keys := tui.NewKeyMap(s.DotKeys, s.DashKeys, s.StraightKeys)
	model := tui.NewModel(sess, sessionConfig(s, logger), keys, s.ReleaseTimeout())
	program = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	config.Watch(
		func(ns *config.Settings) {
			logger.Info("config reloaded")
			program.Send(tui.ConfigMsg(sessionConfig(ns, logger)))
		},
		func(err error) {
			logger.Warn("config reload rejected", "error", err)
		},
	)

	errc := make(chan error, 1)
	go func() { errc <- sess.Run(ctx) }()

	_, runErr := program.Run()
	cancel()
	if err := <-errc; err != nil {
		return err
	}
	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return fmt.Errorf("failed to run TUI: %w", runErr)
	}
	if err := model.Err(); err != nil {
		return err
	}

	if text := strings.TrimSpace(transcript.String()); text != "" {
		fmt.Fprintln(cmd.OutOrStdout(), text)
	}
	return nil
}
