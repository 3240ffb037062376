// Package script loads timed key and paddle sequences from TOML or YAML
// files and plays them through a decoder or keyer in virtual time.
package script

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/ColonelBlimp/cwkeyer/internal/cw"
	"github.com/ColonelBlimp/cwkeyer/internal/keyer"
)

// DefaultWPM is used when a script does not set a speed.
const DefaultWPM = 20

var (
	ErrUnsupportedFormat = errors.New("unsupported script format")
	ErrEmpty             = errors.New("script has no edges, paddles or text")
	ErrUnordered         = errors.New("script steps are not in time order")
	ErrUnencodable       = errors.New("character has no morse code")
)

// Format selects the script decoder.
type Format int

const (
	FormatTOML Format = iota
	FormatYAML
)

// EdgeStep is one key transition at AtMs after the script start.
type EdgeStep struct {
	AtMs float64 `toml:"at_ms" yaml:"at_ms"`
	Down bool    `toml:"down" yaml:"down"`
}

// PaddleStep is one line change at AtMs after the script start.
type PaddleStep struct {
	AtMs float64 `toml:"at_ms" yaml:"at_ms"`
	Line string  `toml:"line" yaml:"line"`
	Down bool    `toml:"down" yaml:"down"`
}

// Script is a keying session recorded as data. Edges drive the decoder
// directly; Paddles drive the keyer. When either list is empty, Text is
// keyed with exact timing in its place.
type Script struct {
	WPM           int          `toml:"wpm" yaml:"wpm"`
	FarnsworthWPM int          `toml:"farnsworth_wpm" yaml:"farnsworth_wpm"`
	Mode          string       `toml:"mode" yaml:"mode"`
	Text          string       `toml:"text" yaml:"text"`
	Edges         []EdgeStep   `toml:"edges" yaml:"edges"`
	Paddles       []PaddleStep `toml:"paddles" yaml:"paddles"`
}

// FormatFor picks the format from a file extension.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	}
	return FormatTOML, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
}

// Load reads and validates a script file.
func Load(path string) (*Script, error) {
	format, err := FormatFor(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	s, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Parse decodes and validates a script.
func Parse(data []byte, format Format) (*Script, error) {
	var s Script
	switch format {
	case FormatTOML:
		if _, err := toml.Decode(string(data), &s); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	case FormatYAML:
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		return nil, ErrUnsupportedFormat
	}

	if s.WPM == 0 {
		s.WPM = DefaultWPM
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the mode, the line names, step order and the text.
func (s *Script) Validate() error {
	var errs []error

	if len(s.Edges) == 0 && len(s.Paddles) == 0 && strings.TrimSpace(s.Text) == "" {
		errs = append(errs, ErrEmpty)
	}
	if _, err := s.KeyerMode(); err != nil {
		errs = append(errs, err)
	}
	for i := 1; i < len(s.Edges); i++ {
		if s.Edges[i].AtMs < s.Edges[i-1].AtMs {
			errs = append(errs, fmt.Errorf("%w: edge %d at %v ms", ErrUnordered, i, s.Edges[i].AtMs))
			break
		}
	}
	for i, p := range s.Paddles {
		if _, err := keyer.ParseLine(p.Line); err != nil {
			errs = append(errs, fmt.Errorf("paddle %d: %w", i, err))
		}
		if i > 0 && p.AtMs < s.Paddles[i-1].AtMs {
			errs = append(errs, fmt.Errorf("%w: paddle %d at %v ms", ErrUnordered, i, p.AtMs))
		}
	}
	for _, r := range s.Text {
		if unicode.IsSpace(r) {
			continue
		}
		if _, ok := cw.Code(r); !ok {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnencodable, r))
		}
	}

	return errors.Join(errs...)
}

// KeyerMode returns the parsed mode, iambic B when unset.
func (s *Script) KeyerMode() (keyer.Mode, error) {
	if strings.TrimSpace(s.Mode) == "" {
		return keyer.IambicB, nil
	}
	return keyer.ParseMode(s.Mode)
}
