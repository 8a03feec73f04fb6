package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/roach88/lockstep/internal/command"
	"github.com/roach88/lockstep/internal/session"
	"github.com/roach88/lockstep/internal/timevote"
	"github.com/roach88/lockstep/internal/world"
)

// Scenario is a scripted multiplayer session. Every listed player runs its
// own controller; steps submit commands through one relay and release
// frames, and assertions check the resulting state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Players connect before the first step.
	Players []int32 `yaml:"players"`

	// Scopes are the local scopes every peer loads. The global scope is
	// always loaded.
	Scopes []int32 `yaml:"scopes,omitempty"`

	// InputDelay is the relay's input delay in frames. Zero means 1.
	InputDelay uint64 `yaml:"input_delay,omitempty"`

	// Stagger lets later peers fall behind between steps; every peer
	// catches up before assertions run.
	Stagger bool `yaml:"stagger,omitempty"`

	Steps []Step `yaml:"steps"`

	Assertions []Assertion `yaml:"assertions"`
}

// Step is one scripted action. Exactly one of the action fields is set.
type Step struct {
	// Player issues the command, joins or leaves.
	Player int32 `yaml:"player,omitempty"`

	// Scope the command targets; omitted means the global scope.
	Scope *int32 `yaml:"scope,omitempty"`

	Action         *ActionStep  `yaml:"action,omitempty"`
	Vote           string       `yaml:"vote,omitempty"`
	ResetVotes     bool         `yaml:"reset_votes,omitempty"`
	Open           *SessionStep `yaml:"open,omitempty"`
	Close          *int32       `yaml:"close,omitempty"`
	CreateFaction  *int32       `yaml:"create_faction,omitempty"`
	InstallFaction *int32       `yaml:"install_faction,omitempty"`

	// Advance releases this many frames and lets every peer run them.
	Advance int `yaml:"advance,omitempty"`

	// Join connects Player as a late joiner.
	Join bool `yaml:"join,omitempty"`

	// Leave disconnects Player.
	Leave bool `yaml:"leave,omitempty"`
}

// ActionStep is a world simulation action.
type ActionStep struct {
	Kind   string `yaml:"kind"`
	Entity int32  `yaml:"entity"`
	Amount int64  `yaml:"amount,omitempty"`
}

// SessionStep opens a session. Pawns fill the kind's participant fields
// in order:
//
//	trade             trader, negotiator
//	caravan_form      pawns...
//	caravan_split     caravan, pawns...
//	transporter_load  transporters...
//	ritual            target, organizer, participants...
type SessionStep struct {
	Kind  string  `yaml:"kind"`
	Pawns []int32 `yaml:"pawns"`
}

// Assertion checks the final state of the first player's peer, or for
// "converged" the state of every connected peer.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Scope is checked; omitted means the global scope.
	Scope  *int32 `yaml:"scope,omitempty"`
	Entity int32  `yaml:"entity,omitempty"`

	// Value is the expected entity value, tick or frame.
	Value int64 `yaml:"value,omitempty"`

	// Absent expects the entity not to exist.
	Absent bool `yaml:"absent,omitempty"`

	// Count is the expected number of open sessions.
	Count int `yaml:"count,omitempty"`

	// Kinds optionally lists the expected session kinds in order.
	Kinds []string `yaml:"kinds,omitempty"`

	Speed   string  `yaml:"speed,omitempty"`
	Faction *int32  `yaml:"faction,omitempty"`
	Project string  `yaml:"project,omitempty"`
	Amount  float64 `yaml:"amount,omitempty"`
}

// Assertion type constants.
const (
	AssertConverged = "converged"
	AssertEntity    = "entity"
	AssertTick      = "tick"
	AssertFrame     = "frame"
	AssertSessions  = "sessions"
	AssertSpeed     = "speed"
	AssertFaction   = "faction"
	AssertResearch  = "research"
)

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if len(s.Players) == 0 {
		return errors.New("at least one player is required")
	}
	connected := map[int32]bool{}
	for _, p := range s.Players {
		if connected[p] {
			return fmt.Errorf("player %d listed twice", p)
		}
		connected[p] = true
	}
	for _, scope := range s.Scopes {
		if scope < 0 {
			return fmt.Errorf("scope %d: local scopes are not negative", scope)
		}
	}
	if len(s.Steps) == 0 {
		return errors.New("at least one step is required")
	}

	for i, step := range s.Steps {
		if err := validateStep(s, step, connected); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	for i, a := range s.Assertions {
		if a.Scope != nil && !slices.Contains(s.Scopes, *a.Scope) {
			return fmt.Errorf("assertions[%d]: scope %d is not loaded", i, *a.Scope)
		}
		if err := validateAssertion(a); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(s *Scenario, step Step, connected map[int32]bool) error {
	set := 0
	for _, on := range []bool{
		step.Action != nil, step.Vote != "", step.ResetVotes, step.Open != nil,
		step.Close != nil, step.CreateFaction != nil, step.InstallFaction != nil,
		step.Advance != 0, step.Join, step.Leave,
	} {
		if on {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("exactly one action is required, got %d", set)
	}

	if step.Scope != nil && !slices.Contains(s.Scopes, *step.Scope) {
		return fmt.Errorf("scope %d is not loaded", *step.Scope)
	}

	switch {
	case step.Advance < 0:
		return errors.New("advance must be positive")
	case step.Advance > 0:
		return nil
	case step.Join:
		if connected[step.Player] {
			return fmt.Errorf("player %d is already connected", step.Player)
		}
		connected[step.Player] = true
		return nil
	case step.Leave:
		if !connected[step.Player] {
			return fmt.Errorf("player %d is not connected", step.Player)
		}
		delete(connected, step.Player)
		if len(connected) == 0 {
			return errors.New("the last player cannot leave")
		}
		return nil
	}

	if !connected[step.Player] {
		return fmt.Errorf("player %d is not connected", step.Player)
	}
	switch {
	case step.Action != nil:
		if _, err := world.ParseAction(step.Action.Kind); err != nil {
			return err
		}
	case step.Vote != "":
		if _, err := timevote.ParseSpeed(step.Vote); err != nil {
			return err
		}
	case step.Open != nil:
		if _, err := step.Open.payload(); err != nil {
			return err
		}
	}
	return nil
}

func validateAssertion(a Assertion) error {
	switch a.Type {
	case AssertConverged, AssertTick, AssertFrame, AssertEntity:
	case AssertSessions:
		for _, k := range a.Kinds {
			if _, err := session.ParseKind(k); err != nil {
				return err
			}
		}
	case AssertSpeed:
		if _, err := timevote.ParseSpeed(a.Speed); err != nil {
			return err
		}
	case AssertFaction:
		// A nil faction expects no active faction.
	case AssertResearch:
		if a.Project == "" {
			return errors.New("project is required for research")
		}
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// scopeOf resolves an optional scenario scope.
func scopeOf(s *int32) command.Scope {
	if s == nil {
		return command.GlobalScope
	}
	return command.Scope(*s)
}

// payload builds the session payload the step describes.
func (s *SessionStep) payload() (session.Payload, error) {
	kind, err := session.ParseKind(s.Kind)
	if err != nil {
		return nil, err
	}
	need := map[session.Kind]int{
		session.KindTrade:           2,
		session.KindCaravanForm:     1,
		session.KindCaravanSplit:    1,
		session.KindTransporterLoad: 1,
		session.KindRitual:          2,
	}[kind]
	if len(s.Pawns) < need {
		return nil, fmt.Errorf("%s needs at least %d pawns", kind, need)
	}

	p := s.Pawns
	switch kind {
	case session.KindTrade:
		return &session.TradePayload{Trader: p[0], Negotiator: p[1]}, nil
	case session.KindCaravanForm:
		return &session.CaravanFormPayload{Pawns: p}, nil
	case session.KindCaravanSplit:
		return &session.CaravanSplitPayload{Caravan: p[0], Pawns: p[1:]}, nil
	case session.KindTransporterLoad:
		return &session.TransporterLoadPayload{Transporters: p}, nil
	default:
		return &session.RitualPayload{Target: p[0], Organizer: p[1], Participants: p[2:]}, nil
	}
}
