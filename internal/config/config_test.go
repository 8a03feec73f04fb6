package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lockstep/internal/codec"
	"github.com/roach88/lockstep/internal/session"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, codec.DefaultLimits(), cfg.Limits())
	assert.Equal(t, uint64(1), cfg.Relay.InputDelay)
}

func TestParse_OverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
codec:
  max_string: 4096
relay:
  listen: ":9000"
  frame_interval: 100ms
  input_delay: 3
  rate: 0
peer:
  player: 7
`))
	require.NoError(t, err)

	assert.Equal(t, 4096, cfg.Codec.MaxString)
	assert.Equal(t, codec.DefaultMaxBytes, cfg.Codec.MaxBytes, "unset keys keep their default")
	assert.Equal(t, ":9000", cfg.Relay.Listen)
	assert.Equal(t, 100*time.Millisecond, cfg.Relay.FrameInterval)
	assert.Equal(t, uint64(3), cfg.Relay.InputDelay)
	assert.Zero(t, cfg.Relay.Rate)
	assert.Equal(t, int32(7), cfg.Peer.Player)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestParse_NoConflictOverrides(t *testing.T) {
	for _, doc := range []string{"", "sessions: {}\n", "sessions:\n  conflicts: []\n", "sessions:\n  conflicts: null\n"} {
		cfg, err := Parse([]byte(doc))
		require.NoError(t, err, "%q", doc)
		m, err := cfg.Matrix()
		require.NoError(t, err)
		assert.Equal(t, session.DefaultMatrix(), m, "%q", doc)
	}
}

func TestLoad_DefaultsPassValidation(t *testing.T) {
	var cfg Config
	require.Error(t, cfg.Validate(), "zero config is not valid")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.NotNil(t, cfg.Sessions.Conflicts)
	assert.Empty(t, cfg.Sessions.Conflicts)
}

func TestParse_UnknownKey(t *testing.T) {
	_, err := Parse([]byte("relay:\n  listne: \":1\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "listne")
}

func TestParse_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"zero max string", "codec:\n  max_string: 0\n", "max_string"},
		{"zero input delay", "relay:\n  input_delay: 0\n", "input_delay"},
		{"frame interval too short", "relay:\n  frame_interval: 10us\n", "frame_interval"},
		{"negative rate", "relay:\n  rate: -1\n", "rate"},
		{"empty listen", "relay:\n  listen: \"\"\n", "listen"},
		{"unknown kind", "sessions:\n  conflicts:\n    - {a: trade, b: duel, rule: always}\n", "conflicts"},
		{"unknown rule", "sessions:\n  conflicts:\n    - {a: trade, b: ritual, rule: sometimes}\n", "conflicts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.True(t, IsValidationError(err), "got %v", err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestMatrix_AppliesOverrides(t *testing.T) {
	cfg, err := Parse([]byte(`
sessions:
  conflicts:
    - {a: ritual, b: trade, rule: always}
    - {a: caravan_form, b: caravan_split, rule: never}
`))
	require.NoError(t, err)

	m, err := cfg.Matrix()
	require.NoError(t, err)
	assert.Equal(t, session.RuleAlways, m.Rule(session.KindTrade, session.KindRitual))
	assert.Equal(t, session.RuleNever, m.Rule(session.KindCaravanSplit, session.KindCaravanForm))

	def := session.DefaultMatrix()
	assert.Equal(t, def.Rule(session.KindTrade, session.KindTrade), m.Rule(session.KindTrade, session.KindTrade))
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lockstep.yaml")
	require.NoError(t, os.WriteFile(path, []byte("relay:\n  listen: \":9000\"\n  burst: 5\n"), 0o600))

	t.Setenv("LOCKSTEP_RELAY_LISTEN", ":9100")
	t.Setenv("LOCKSTEP_INPUT_DELAY", "4")
	t.Setenv("LOCKSTEP_FRAME_INTERVAL", "20ms")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.Relay.Listen, "env wins over the file")
	assert.Equal(t, 5, cfg.Relay.Burst)
	assert.Equal(t, uint64(4), cfg.Relay.InputDelay)
	assert.Equal(t, 20*time.Millisecond, cfg.Relay.FrameInterval)
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Relay, cfg.Relay)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read config")
}

func TestLoad_BadEnv(t *testing.T) {
	t.Setenv("LOCKSTEP_MAX_STRING", "lots")
	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env")
}

func TestLoad_EnvFailsValidation(t *testing.T) {
	t.Setenv("LOCKSTEP_RELAY_BURST", "0")
	_, err := Load("")
	require.Error(t, err)
	assert.True(t, IsValidationError(err))
}
