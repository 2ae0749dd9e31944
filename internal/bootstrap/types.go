// Package bootstrap runs the stablecoin protocol bootstrap plan: it creates the
// Issuer, Exchange, Engine and Mover in dependency order, funds the Mover and
// the deployer, hands minting authority to the Engine and seeds the Exchange
// liquidity pool.
package bootstrap

import (
	"fmt"
	"time"

	"github.com/R3E-Network/stablecoin_bootstrap/internal/chain"
	"github.com/R3E-Network/stablecoin_bootstrap/internal/identity"
)

// Identity is the account driving a run. It is passed explicitly into every
// operation.
type Identity = identity.Identity

// ComponentKind names one of the four protocol components.
type ComponentKind string

const (
	KindIssuer   ComponentKind = "Issuer"
	KindExchange ComponentKind = "Exchange"
	KindEngine   ComponentKind = "Engine"
	KindMover    ComponentKind = "Mover"
)

// ComponentKinds lists the kinds in creation order.
var ComponentKinds = []ComponentKind{KindIssuer, KindExchange, KindEngine, KindMover}

// DefaultArtifacts maps each kind to its contract artifact name.
func DefaultArtifacts() map[ComponentKind]string {
	return map[ComponentKind]string{
		KindIssuer:   "Stablecoin",
		KindExchange: "StablecoinDEX",
		KindEngine:   "StablecoinEngine",
		KindMover:    "MovePrice",
	}
}

// ComponentSpec is a creation request. It is copied on submission and never
// mutated afterwards.
type ComponentSpec struct {
	Kind            ComponentKind   `json:"kind"`
	ConstructorArgs []chain.Address `json:"constructor_args"`
	DisplayName     string          `json:"display_name"`
}

func (s ComponentSpec) clone() ComponentSpec {
	s.ConstructorArgs = append([]chain.Address(nil), s.ConstructorArgs...)
	return s
}

// CreationOutcome is the result of a creation attempt.
type CreationOutcome string

const (
	CreationSuccess CreationOutcome = "success"
	CreationFailure CreationOutcome = "failure"
)

// ComponentHandle identifies a created component. Reused is set when the
// handle came from the ledger instead of a new creation.
type ComponentHandle struct {
	Kind            ComponentKind   `json:"kind"`
	Address         chain.Address   `json:"address,omitempty"`
	Outcome         CreationOutcome `json:"outcome"`
	ConstructorArgs []chain.Address `json:"constructor_args,omitempty"`
	Reused          bool            `json:"reused"`
	TxHash          string          `json:"tx_hash,omitempty"`
	// RunID is the run that created the component.
	RunID           string          `json:"run_id,omitempty"`
}

// Succeeded reports whether the handle may be referenced by later steps.
func (h ComponentHandle) Succeeded() bool {
	return h.Outcome == CreationSuccess && !h.Address.IsZero()
}

// StepOutcome classifies how a step ended.
type StepOutcome string

const (
	// OutcomeApplied means the step committed a new side effect.
	OutcomeApplied StepOutcome = "applied"
	// OutcomeSatisfied means the effect was already in place.
	OutcomeSatisfied StepOutcome = "satisfied"
	// OutcomeSkipped means the step does not apply to this environment.
	OutcomeSkipped StepOutcome = "skipped"
	// OutcomeNotSelected means the step was filtered out by tags.
	OutcomeNotSelected StepOutcome = "not_selected"
	OutcomeFailed      StepOutcome = "failed"
)

// StepResult is the record of one executed step.
type StepResult struct {
	Index     int           `json:"index"`
	Name      string        `json:"name"`
	Component ComponentKind `json:"component"`
	Outcome   StepOutcome   `json:"outcome"`
	TxHash    string        `json:"tx_hash,omitempty"`
	Detail    string        `json:"detail,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration_ns"`
}

// State is the orchestrator lifecycle state.
type State int32

const (
	StateNotStarted State = iota
	StateCreatingComponents
	StateFunding
	StateTransferringControl
	StateInitializingLiquidity
	StateComplete
	StateFailed
)

var stateNames = [...]string{
	StateNotStarted:            "NotStarted",
	StateCreatingComponents:    "CreatingComponents",
	StateFunding:               "Funding",
	StateTransferringControl:   "TransferringControl",
	StateInitializingLiquidity: "InitializingLiquidity",
	StateComplete:              "Complete",
	StateFailed:                "Failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int32(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool { return s == StateComplete || s == StateFailed }

// MarshalText renders the state by name.
func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText parses a state name.
func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", b)
}

// Result is the outcome of a run.
type Result struct {
	RunID      string                            `json:"run_id"`
	Network    string                            `json:"network"`
	Deployer   Identity                          `json:"deployer"`
	State      State                             `json:"state"`
	Components map[ComponentKind]ComponentHandle `json:"components"`
	Steps      []StepResult                      `json:"steps"`
	Error      string                            `json:"error,omitempty"`
	StartedAt  time.Time                         `json:"started_at"`
	FinishedAt time.Time                         `json:"finished_at"`
}

// Handle returns the handle for kind when it was created or reused
// successfully.
func (r *Result) Handle(kind ComponentKind) (ComponentHandle, bool) {
	h, ok := r.Components[kind]
	if !ok || !h.Succeeded() {
		return ComponentHandle{}, false
	}
	return h, true
}

// Step returns the recorded result for the named step.
func (r *Result) Step(name string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepResult{}, false
}
