package bootstrap

import (
	"sort"
	"strings"

	bserr "github.com/R3E-Network/stablecoin_bootstrap/internal/errors"
)

// Step names, in plan order.
const (
	StepCreateIssuer       = "create-issuer"
	StepCreateExchange     = "create-exchange"
	StepCreateEngine       = "create-engine"
	StepCreateMover        = "create-mover"
	StepFundMoverNative    = "fund-mover-native"
	StepMintMover          = "mint-mover"
	StepMintDeployer       = "mint-deployer"
	StepFundDeployerNative = "fund-deployer-native"
	StepTransferOwnership  = "transfer-ownership"
	StepApproveExchange    = "approve-exchange"
	StepInitLiquidity      = "init-liquidity"
)

// Plan tags.
const (
	TagComponents = "components"
	TagFunding    = "funding"
	TagOwnership  = "ownership"
	TagLiquidity  = "liquidity"
)

// StepKind distinguishes creation from configuration.
type StepKind int

const (
	StepKindCreate StepKind = iota
	StepKindConfigure
)

func (k StepKind) String() string {
	if k == StepKindCreate {
		return "create"
	}
	return "configure"
}

// Step is one entry of the bootstrap plan.
type Step struct {
	Index     int           `json:"index"`
	Name      string        `json:"name"`
	Kind      StepKind      `json:"-"`
	Component ComponentKind `json:"component"`
	Tags      []string      `json:"tags"`
	// Phase is the orchestrator state while the step runs.
	Phase State `json:"phase"`
}

// HasTag reports whether the step carries tag.
func (s Step) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// Plan is the ordered list of steps.
type Plan []Step

// DefaultPlan returns the fixed eleven-step bootstrap plan.
func DefaultPlan() Plan {
	return Plan{
		{Index: 1, Name: StepCreateIssuer, Kind: StepKindCreate, Component: KindIssuer, Tags: []string{TagComponents, string(KindIssuer)}, Phase: StateCreatingComponents},
		{Index: 2, Name: StepCreateExchange, Kind: StepKindCreate, Component: KindExchange, Tags: []string{TagComponents, string(KindExchange)}, Phase: StateCreatingComponents},
		{Index: 3, Name: StepCreateEngine, Kind: StepKindCreate, Component: KindEngine, Tags: []string{TagComponents, string(KindEngine)}, Phase: StateCreatingComponents},
		{Index: 4, Name: StepCreateMover, Kind: StepKindCreate, Component: KindMover, Tags: []string{TagComponents, string(KindMover)}, Phase: StateCreatingComponents},
		{Index: 5, Name: StepFundMoverNative, Kind: StepKindConfigure, Component: KindMover, Tags: []string{TagFunding}, Phase: StateFunding},
		{Index: 6, Name: StepMintMover, Kind: StepKindConfigure, Component: KindIssuer, Tags: []string{TagFunding}, Phase: StateFunding},
		{Index: 7, Name: StepMintDeployer, Kind: StepKindConfigure, Component: KindIssuer, Tags: []string{TagFunding}, Phase: StateFunding},
		{Index: 8, Name: StepFundDeployerNative, Kind: StepKindConfigure, Component: KindIssuer, Tags: []string{TagFunding}, Phase: StateFunding},
		{Index: 9, Name: StepTransferOwnership, Kind: StepKindConfigure, Component: KindIssuer, Tags: []string{TagOwnership}, Phase: StateTransferringControl},
		{Index: 10, Name: StepApproveExchange, Kind: StepKindConfigure, Component: KindIssuer, Tags: []string{TagLiquidity}, Phase: StateInitializingLiquidity},
		{Index: 11, Name: StepInitLiquidity, Kind: StepKindConfigure, Component: KindExchange, Tags: []string{TagLiquidity}, Phase: StateInitializingLiquidity},
	}
}

// Tags returns every tag used by the plan, sorted.
func (p Plan) Tags() []string {
	seen := make(map[string]struct{})
	for _, s := range p {
		for _, t := range s.Tags {
			seen[t] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Select returns the names of the steps matching any of tags. No tags selects
// the whole plan. Unknown tags are a configuration error.
func (p Plan) Select(tags []string) (map[string]bool, error) {
	selected := make(map[string]bool, len(p))
	if len(tags) == 0 {
		for _, s := range p {
			selected[s.Name] = true
		}
		return selected, nil
	}

	known := make(map[string]bool)
	for _, t := range p.Tags() {
		known[strings.ToLower(t)] = true
	}
	for _, tag := range tags {
		if !known[strings.ToLower(tag)] {
			return nil, bserr.Newf(bserr.KindInvalidConfig, "plan", "unknown tag %q (known: %s)", tag, strings.Join(p.Tags(), ", "))
		}
	}

	for _, s := range p {
		for _, tag := range tags {
			if s.HasTag(tag) {
				selected[s.Name] = true
				break
			}
		}
	}
	return selected, nil
}
