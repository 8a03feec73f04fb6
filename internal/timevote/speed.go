package timevote

import "fmt"

// Speed is a time speed. Speeds are totally ordered with Paused lowest, and
// the effective speed of a scope is the lowest vote.
type Speed uint8

const (
	Paused Speed = iota
	Normal
	Fast
	Superfast
	Ultrafast
)

var speedNames = [...]string{"paused", "normal", "fast", "superfast", "ultrafast"}

// ticksPerFrame is how many simulation ticks each speed runs per frame.
var ticksPerFrame = [...]int{0, 1, 3, 6, 15}

// Valid reports whether s is a known speed.
func (s Speed) Valid() bool {
	return int(s) < len(speedNames)
}

// String implements fmt.Stringer.
func (s Speed) String() string {
	if s.Valid() {
		return speedNames[s]
	}
	return fmt.Sprintf("speed(%d)", uint8(s))
}

// TicksPerFrame returns how many ticks a scope advances per frame at s.
func (s Speed) TicksPerFrame() int {
	if s.Valid() {
		return ticksPerFrame[s]
	}
	return 0
}

// ParseSpeed resolves a speed from its String form.
func ParseSpeed(name string) (Speed, error) {
	for i, n := range speedNames {
		if n == name {
			return Speed(i), nil
		}
	}
	return 0, fmt.Errorf("unknown speed %q", name)
}

// ResetCause records why a scope's votes were cleared.
type ResetCause uint8

const (
	// CauseExplicit: a player asked for the reset.
	CauseExplicit ResetCause = iota + 1
	// CauseSystem: an unrelated event (a scope load, a forced pause) reset
	// the votes.
	CauseSystem
)

// String implements fmt.Stringer.
func (c ResetCause) String() string {
	switch c {
	case CauseExplicit:
		return "explicit"
	case CauseSystem:
		return "system"
	default:
		return fmt.Sprintf("cause(%d)", uint8(c))
	}
}
