package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/roach88/lockstep/internal/codec"
	"github.com/roach88/lockstep/internal/session"
)

//go:embed schema.cue
var schemaCUE string

// Config is the complete lockstep configuration. Every field has a default,
// can be set from a YAML file, and can be overridden from the environment.
type Config struct {
	Codec    CodecConfig    `yaml:"codec" json:"codec"`
	Relay    RelayConfig    `yaml:"relay" json:"relay"`
	Peer     PeerConfig     `yaml:"peer" json:"peer"`
	Sessions SessionsConfig `yaml:"sessions" json:"sessions"`
}

// CodecConfig bounds decoded lengths.
type CodecConfig struct {
	MaxString     int `yaml:"max_string" json:"max_string" env:"LOCKSTEP_MAX_STRING"`
	MaxBytes      int `yaml:"max_bytes" json:"max_bytes" env:"LOCKSTEP_MAX_BYTES"`
	MaxCollection int `yaml:"max_collection" json:"max_collection" env:"LOCKSTEP_MAX_COLLECTION"`
}

// RelayConfig configures the relay server.
type RelayConfig struct {
	Listen        string        `yaml:"listen" json:"listen" env:"LOCKSTEP_RELAY_LISTEN"`
	Database      string        `yaml:"database" json:"database" env:"LOCKSTEP_RELAY_DATABASE"`
	FrameInterval time.Duration `yaml:"frame_interval" json:"frame_interval" env:"LOCKSTEP_FRAME_INTERVAL"`
	InputDelay    uint64        `yaml:"input_delay" json:"input_delay" env:"LOCKSTEP_INPUT_DELAY"`
	// Rate is commands per second per player; 0 disables limiting.
	Rate  float64 `yaml:"rate" json:"rate" env:"LOCKSTEP_RELAY_RATE"`
	Burst int     `yaml:"burst" json:"burst" env:"LOCKSTEP_RELAY_BURST"`
}

// PeerConfig configures a connecting peer.
type PeerConfig struct {
	RelayURL string `yaml:"relay_url" json:"relay_url" env:"LOCKSTEP_RELAY_URL"`
	Player   int32  `yaml:"player" json:"player" env:"LOCKSTEP_PLAYER"`
}

// SessionsConfig overrides entries of the default conflict matrix.
type SessionsConfig struct {
	Conflicts []Conflict `yaml:"conflicts" json:"conflicts" env:"-"`
}

// Conflict sets the rule for one kind pair, by name.
type Conflict struct {
	A    string `yaml:"a" json:"a"`
	B    string `yaml:"b" json:"b"`
	Rule string `yaml:"rule" json:"rule"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	limits := codec.DefaultLimits()
	return Config{
		Codec: CodecConfig{
			MaxString:     limits.MaxString,
			MaxBytes:      limits.MaxBytes,
			MaxCollection: limits.MaxCollection,
		},
		Relay: RelayConfig{
			Listen:        "127.0.0.1:7460",
			Database:      "lockstep.db",
			FrameInterval: 50 * time.Millisecond,
			InputDelay:    1,
			Rate:          60,
			Burst:         30,
		},
		Peer: PeerConfig{
			RelayURL: "ws://127.0.0.1:7460/",
		},
		Sessions: SessionsConfig{
			Conflicts: []Conflict{},
		},
	}
}

// ValidationError lists every schema violation in a configuration.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Problems, "; ")
}

// IsValidationError reports whether err is or wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Load reads the configuration. Values come from Default, then the YAML
// file at path (skipped when path is empty), then LOCKSTEP_* environment
// variables. The result is validated before it is returned.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result. The
// environment is not consulted.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	if err := decodeYAML(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks cfg against the embedded schema and resolves the
// conflict overrides.
func (c Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	if c.Sessions.Conflicts == nil {
		// A YAML null clears the list; the schema wants a concrete one.
		c.Sessions.Conflicts = []Conflict{}
	}
	unified := def.Unify(ctx.Encode(c))
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		ve := &ValidationError{}
		for _, e := range cueerrors.Errors(err) {
			ve.Problems = append(ve.Problems, e.Error())
		}
		return ve
	}
	if _, err := c.Matrix(); err != nil {
		return &ValidationError{Problems: []string{err.Error()}}
	}
	return nil
}

// Limits returns the codec limits.
func (c Config) Limits() codec.Limits {
	return codec.Limits{
		MaxString:     c.Codec.MaxString,
		MaxBytes:      c.Codec.MaxBytes,
		MaxCollection: c.Codec.MaxCollection,
	}
}

// Matrix returns the default conflict matrix with the overrides applied
// in order.
func (c Config) Matrix() (session.ConflictMatrix, error) {
	m := session.DefaultMatrix()
	for i, o := range c.Sessions.Conflicts {
		a, err := session.ParseKind(o.A)
		if err != nil {
			return nil, fmt.Errorf("sessions.conflicts[%d]: %w", i, err)
		}
		b, err := session.ParseKind(o.B)
		if err != nil {
			return nil, fmt.Errorf("sessions.conflicts[%d]: %w", i, err)
		}
		r, err := session.ParseRule(o.Rule)
		if err != nil {
			return nil, fmt.Errorf("sessions.conflicts[%d]: %w", i, err)
		}
		m.Set(a, b, r)
	}
	return m, nil
}
