package harness

// TraceEvent is one journaled command, in seq order.
type TraceEvent struct {
	Seq    uint64 `json:"seq"`
	Frame  uint64 `json:"frame"`
	Scope  string `json:"scope"`
	Player int32  `json:"player"`
	Op     string `json:"op"`
	Detail string `json:"detail,omitempty"`
}

// ScopeState summarizes one scope of a peer's final state.
type ScopeState struct {
	Scope        string          `json:"scope"`
	Tick         uint64          `json:"tick"`
	Speed        string          `json:"speed"`
	Sessions     []string        `json:"sessions"`
	Entities     map[int32]int64 `json:"entities"`
	Faction      *int32          `json:"faction,omitempty"`
	Designations int             `json:"designations,omitempty"`
}

// FinalState is the first player's state once every peer has caught up.
type FinalState struct {
	Player int32        `json:"player"`
	Frame  uint64       `json:"frame"`
	Scopes []ScopeState `json:"scopes"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace holds every journaled command in seq order.
	Trace []TraceEvent `json:"trace"`

	// Errors lists the failed assertions.
	Errors []string `json:"errors,omitempty"`

	// Hashes maps each connected player to its peer's state hash.
	Hashes map[int32]string `json:"hashes"`

	// State is the first player's final state.
	State FinalState `json:"state"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		Hashes: make(map[int32]string),
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
