package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/lockstep/internal/command"
	"github.com/roach88/lockstep/internal/session"
)

func TestLoadScenario_Valid(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/colony_basics.yaml")
	require.NoError(t, err)

	assert.Equal(t, "colony_basics", s.Name)
	assert.Equal(t, []int32{1, 2}, s.Players)
	assert.Equal(t, []int32{0}, s.Scopes)
	assert.True(t, s.Stagger)
	require.Len(t, s.Steps, 13)

	first := s.Steps[0]
	require.NotNil(t, first.Scope)
	assert.Equal(t, int32(0), *first.Scope)
	assert.Equal(t, "fast", first.Vote)

	assert.Equal(t, 2, s.Steps[5].Advance)
	assert.True(t, s.Steps[9].Join)
	require.NotNil(t, s.Steps[3].CreateFaction)
	assert.Equal(t, int32(7), *s.Steps[3].CreateFaction)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_UnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "typo.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: x\nplayers: [1]\nstep:\n  - advance: 1\n"), 0o600))

	_, err := LoadScenario(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseScenario_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"no name", "players: [1]\nsteps: [{advance: 1}]\n", "name is required"},
		{"no players", "name: x\nsteps: [{advance: 1}]\n", "at least one player"},
		{"duplicate player", "name: x\nplayers: [1, 1]\nsteps: [{advance: 1}]\n", "listed twice"},
		{"negative scope", "name: x\nplayers: [1]\nscopes: [-3]\nsteps: [{advance: 1}]\n", "not negative"},
		{"no steps", "name: x\nplayers: [1]\n", "at least one step"},
		{"two actions", "name: x\nplayers: [1]\nsteps: [{player: 1, vote: fast, reset_votes: true}]\n", "exactly one action"},
		{"no action", "name: x\nplayers: [1]\nsteps: [{player: 1}]\n", "exactly one action"},
		{"unloaded scope", "name: x\nplayers: [1]\nsteps: [{player: 1, scope: 4, vote: fast}]\n", "scope 4 is not loaded"},
		{"unknown player", "name: x\nplayers: [1]\nsteps: [{player: 2, vote: fast}]\n", "player 2 is not connected"},
		{"bad speed", "name: x\nplayers: [1]\nsteps: [{player: 1, vote: warp}]\n", "warp"},
		{"bad action", "name: x\nplayers: [1]\nsteps: [{player: 1, action: {kind: explode, entity: 1}}]\n", "explode"},
		{"short trade", "name: x\nplayers: [1]\nsteps: [{player: 1, open: {kind: trade, pawns: [1]}}]\n", "at least 2 pawns"},
		{"join twice", "name: x\nplayers: [1]\nsteps: [{player: 1, join: true}]\n", "already connected"},
		{"last leaves", "name: x\nplayers: [1]\nsteps: [{player: 1, leave: true}]\n", "last player"},
		{"left player acts", "name: x\nplayers: [1, 2]\nsteps: [{player: 2, leave: true}, {player: 2, vote: fast}]\n", "steps[1]"},
		{"unknown assertion", "name: x\nplayers: [1]\nsteps: [{advance: 1}]\nassertions: [{type: vibes}]\n", "unknown assertion type"},
		{"research without project", "name: x\nplayers: [1]\nsteps: [{advance: 1}]\nassertions: [{type: research}]\n", "project is required"},
		{"assertion on unloaded scope", "name: x\nplayers: [1]\nsteps: [{advance: 1}]\nassertions: [{type: tick, scope: 3}]\n", "scope 3 is not loaded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestSessionStep_Payload(t *testing.T) {
	tests := []struct {
		step SessionStep
		want session.Payload
	}{
		{SessionStep{Kind: "trade", Pawns: []int32{1, 2}}, &session.TradePayload{Trader: 1, Negotiator: 2}},
		{SessionStep{Kind: "caravan_form", Pawns: []int32{3, 4}}, &session.CaravanFormPayload{Pawns: []int32{3, 4}}},
		{SessionStep{Kind: "caravan_split", Pawns: []int32{9, 3}}, &session.CaravanSplitPayload{Caravan: 9, Pawns: []int32{3}}},
		{SessionStep{Kind: "transporter_load", Pawns: []int32{5}}, &session.TransporterLoadPayload{Transporters: []int32{5}}},
		{SessionStep{Kind: "ritual", Pawns: []int32{1, 2, 3}}, &session.RitualPayload{Target: 1, Organizer: 2, Participants: []int32{3}}},
	}
	for _, tt := range tests {
		t.Run(tt.step.Kind, func(t *testing.T) {
			got, err := tt.step.payload()
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestScopeOf(t *testing.T) {
	assert.Equal(t, command.GlobalScope, scopeOf(nil))
	zero := int32(0)
	assert.Equal(t, command.Scope(0), scopeOf(&zero))
}
