package bootstrap

import (
	"context"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/sha3"

	"github.com/R3E-Network/stablecoin_bootstrap/internal/chain"
	bserr "github.com/R3E-Network/stablecoin_bootstrap/internal/errors"
	"github.com/R3E-Network/stablecoin_bootstrap/internal/ledger"
	"github.com/R3E-Network/stablecoin_bootstrap/internal/metrics"
	"github.com/R3E-Network/stablecoin_bootstrap/pkg/logger"
)

var (
	// ErrAlreadyRan is returned by Run on an orchestrator that already ran.
	ErrAlreadyRan = stderrors.New("bootstrap: orchestrator already ran")
	// ErrRunInProgress is returned by Run while another Run is executing.
	ErrRunInProgress = stderrors.New("bootstrap: run in progress")
)

// Options configures an Orchestrator.
type Options struct {
	// Network keys ledger records and labels metrics.
	Network string
	Env     chain.Environment
	Ledger  ledger.Ledger
	Amounts Amounts
	// Artifacts maps kinds to artifact names. Missing kinds use
	// DefaultArtifacts.
	Artifacts map[ComponentKind]string
	// Tags restricts the run to matching steps.
	Tags []string
	// FastFinality asks the environment to mine immediately.
	FastFinality bool
	Logger       *logger.Logger
}

// Orchestrator executes the bootstrap plan once.
type Orchestrator struct {
	network   string
	env       chain.Environment
	ledger    ledger.Ledger
	amounts   Amounts
	artifacts map[ComponentKind]string
	plan      Plan
	selected  map[string]bool
	fast      bool
	log       *logger.Logger

	// guard is 0 before Run, 1 while running and 2 afterwards.
	guard atomic.Int32
	state atomic.Int32

	mu     sync.Mutex
	result *Result
}

// New validates opts and returns an orchestrator in NotStarted.
func New(opts Options) (*Orchestrator, error) {
	if opts.Env == nil {
		return nil, bserr.Newf(bserr.KindInvalidConfig, "bootstrap", "environment required")
	}
	if opts.Ledger == nil {
		opts.Ledger = ledger.NewMemory()
	}
	if opts.Network == "" {
		return nil, bserr.Newf(bserr.KindInvalidConfig, "bootstrap", "network name required")
	}
	if err := opts.Amounts.Validate(); err != nil {
		return nil, err
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewDefault("bootstrap")
	}

	artifacts := DefaultArtifacts()
	for k, v := range opts.Artifacts {
		if v != "" {
			artifacts[k] = v
		}
	}

	plan := DefaultPlan()
	selected, err := plan.Select(opts.Tags)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		network:   opts.Network,
		env:       opts.Env,
		ledger:    opts.Ledger,
		amounts:   opts.Amounts.Clone(),
		artifacts: artifacts,
		plan:      plan,
		selected:  selected,
		fast:      opts.FastFinality,
		log:       opts.Logger,
	}, nil
}

// Plan returns the steps this orchestrator runs.
func (o *Orchestrator) Plan() Plan { return o.plan }

// Selected reports whether the named step passes the tag filter.
func (o *Orchestrator) Selected(step string) bool { return o.selected[step] }

// State returns the current lifecycle state.
func (o *Orchestrator) State() State { return State(o.state.Load()) }

// Result returns the last result, or nil before Run finishes.
func (o *Orchestrator) Result() *Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.result
}

func (o *Orchestrator) setState(ctx context.Context, s State) {
	prev := State(o.state.Swap(int32(s)))
	if prev == s {
		return
	}
	metrics.SetState(o.network, int(s))
	o.log.WithContext(ctx).WithFields(map[string]interface{}{
		"network": o.network,
		"from":    prev.String(),
		"to":      s.String(),
	}).Info("state transition")
}

// Run executes every selected step in order as id. It stops at the first
// failure and returns a *bserr.StepError naming the step and component; the
// partial Result is returned alongside.
func (o *Orchestrator) Run(ctx context.Context, id Identity) (*Result, error) {
	if !o.guard.CompareAndSwap(0, 1) {
		if o.guard.Load() == 1 {
			return nil, ErrRunInProgress
		}
		return nil, ErrAlreadyRan
	}
	defer o.guard.Store(2)

	if id.Address.IsZero() {
		return nil, bserr.Newf(bserr.KindInvalidConfig, "bootstrap", "deployer identity has no address")
	}

	runID := uuid.NewString()
	ctx = logger.WithRunID(ctx, runID)

	r := &runner{
		o:       o,
		id:      id,
		runID:   runID,
		handles: make(map[ComponentKind]ComponentHandle),
		result: &Result{
			RunID:      runID,
			Network:    o.network,
			Deployer:   id,
			State:      StateNotStarted,
			Components: make(map[ComponentKind]ComponentHandle),
			StartedAt:  time.Now().UTC(),
		},
	}

	o.log.WithContext(ctx).WithFields(map[string]interface{}{
		"network":  o.network,
		"deployer": id.Address,
		"steps":    len(o.selected),
	}).Info("bootstrap started")

	err := r.run(ctx)

	res := r.result
	res.FinishedAt = time.Now().UTC()
	if err != nil {
		o.setState(ctx, StateFailed)
		res.Error = err.Error()
		metrics.RecordRun(o.network, StateFailed.String())
		o.log.WithContext(ctx).WithError(err).Error("bootstrap failed")
	} else {
		o.setState(ctx, StateComplete)
		metrics.RecordRun(o.network, StateComplete.String())
		o.log.WithContext(ctx).WithField("network", o.network).Info("bootstrap complete")
	}
	res.State = o.State()

	o.mu.Lock()
	o.result = res
	o.mu.Unlock()
	return res, err
}

// runner carries the per-run state. Handles only ever hold successful
// creations from this run or verified ledger records.
type runner struct {
	o       *Orchestrator
	id      Identity
	runID   string
	handles map[ComponentKind]ComponentHandle
	result  *Result
}

func (r *runner) run(ctx context.Context) error {
	for _, step := range r.o.plan {
		if err := ctx.Err(); err != nil {
			return r.fail(ctx, step, bserr.New(bserr.KindEnvironmentUnavailable, step.Name, err), 0)
		}
		r.o.setState(ctx, step.Phase)

		if !r.o.selected[step.Name] {
			if step.Kind == StepKindCreate {
				if err := r.adoptExisting(ctx, step); err != nil {
					return r.fail(ctx, step, err, 0)
				}
			}
			r.record(ctx, step, StepResult{Outcome: OutcomeNotSelected}, 0)
			continue
		}

		start := time.Now()
		var (
			res StepResult
			err error
		)
		if step.Kind == StepKindCreate {
			res, err = r.create(ctx, step)
		} else {
			res, err = r.configure(ctx, step)
		}
		if err != nil {
			return r.fail(ctx, step, err, time.Since(start))
		}
		r.record(ctx, step, res, time.Since(start))
	}
	return nil
}

func (r *runner) record(ctx context.Context, step Step, res StepResult, d time.Duration) {
	res.Index = step.Index
	res.Name = step.Name
	res.Component = step.Component
	res.Duration = d
	r.result.Steps = append(r.result.Steps, res)
	metrics.RecordStep(r.o.network, step.Name, string(res.Outcome), d)

	if res.Outcome == OutcomeNotSelected {
		return
	}
	entry := r.o.log.WithContext(ctx).WithFields(map[string]interface{}{
		"step":      step.Index,
		"name":      step.Name,
		"component": step.Component,
		"outcome":   res.Outcome,
	})
	if res.TxHash != "" {
		entry = entry.WithField("tx_hash", res.TxHash)
	}
	if res.Detail != "" {
		entry = entry.WithField("detail", res.Detail)
	}
	entry.Info("step finished")
}

func (r *runner) fail(ctx context.Context, step Step, err error, d time.Duration) error {
	stepErr := &bserr.StepError{
		Step:      step.Index,
		Name:      step.Name,
		Component: string(step.Component),
		Kind:      bserr.KindOf(err),
		Err:       err,
	}
	res := StepResult{
		Index:     step.Index,
		Name:      step.Name,
		Component: step.Component,
		Outcome:   OutcomeFailed,
		Error:     err.Error(),
		Duration:  d,
	}
	r.result.Steps = append(r.result.Steps, res)
	metrics.RecordStep(r.o.network, step.Name, string(OutcomeFailed), d)
	return stepErr
}

// =============================================================================
// Creation
// =============================================================================

// constructorArgs derives a kind's constructor args from this run's handles.
func (r *runner) constructorArgs(kind ComponentKind) ([]chain.Address, error) {
	var deps []ComponentKind
	switch kind {
	case KindIssuer:
	case KindExchange:
		deps = []ComponentKind{KindIssuer}
	case KindEngine, KindMover:
		deps = []ComponentKind{KindExchange, KindIssuer}
	default:
		return nil, bserr.Newf(bserr.KindInvalidConfig, "bootstrap", "unknown component kind %q", kind)
	}
	args := make([]chain.Address, 0, len(deps))
	for _, dep := range deps {
		h, err := r.require(dep)
		if err != nil {
			return nil, err
		}
		args = append(args, h.Address)
	}
	return args, nil
}

func (r *runner) require(kind ComponentKind) (ComponentHandle, error) {
	h, ok := r.handles[kind]
	if !ok || !h.Succeeded() {
		return ComponentHandle{}, bserr.Newf(bserr.KindDependencyMissing, "bootstrap", "%s has not been created successfully", kind)
	}
	return h, nil
}

// existing returns a ledger record for kind that is still live in the
// environment and was built from args.
func (r *runner) existing(ctx context.Context, kind ComponentKind, args []chain.Address) (ledger.ComponentRecord, bool, error) {
	rec, err := r.o.ledger.Component(ctx, r.o.network, string(kind))
	if stderrors.Is(err, ledger.ErrNotFound) {
		return ledger.ComponentRecord{}, false, nil
	}
	if err != nil {
		return ledger.ComponentRecord{}, false, ledgerErr("ledger.component", err)
	}

	log := r.o.log.WithContext(ctx).WithFields(map[string]interface{}{
		"component": kind,
		"address":   rec.Address,
	})
	if !rec.ArgsEqual(args) {
		log.WithField("recorded_args", rec.ConstructorArgs).Warn("constructor arguments changed; recreating component")
		return ledger.ComponentRecord{}, false, nil
	}
	has, err := r.o.env.HasCode(ctx, rec.Address)
	if err != nil {
		return ledger.ComponentRecord{}, false, err
	}
	if !has {
		log.Warn("recorded component not found in environment; recreating component")
		return ledger.ComponentRecord{}, false, nil
	}
	return rec, true, nil
}

func (r *runner) adopt(kind ComponentKind, rec ledger.ComponentRecord) ComponentHandle {
	h := ComponentHandle{
		Kind:            kind,
		Address:         rec.Address,
		Outcome:         CreationSuccess,
		ConstructorArgs: append([]chain.Address(nil), rec.ConstructorArgs...),
		Reused:          true,
		TxHash:          rec.TxHash,
		RunID:           rec.RunID,
	}
	r.handles[kind] = h
	r.result.Components[kind] = h
	metrics.RecordComponent(r.o.network, string(kind), true)
	return h
}

// adoptExisting resolves a creation step that was filtered out by tags. A
// missing record is not an error here; steps that need the component fail
// with DependencyMissing.
func (r *runner) adoptExisting(ctx context.Context, step Step) error {
	args, err := r.constructorArgs(step.Component)
	if bserr.Is(err, bserr.KindDependencyMissing) {
		return nil
	}
	if err != nil {
		return err
	}
	rec, ok, err := r.existing(ctx, step.Component, args)
	if err != nil || !ok {
		return err
	}
	r.adopt(step.Component, rec)
	return nil
}

func (r *runner) create(ctx context.Context, step Step) (StepResult, error) {
	kind := step.Component
	args, err := r.constructorArgs(kind)
	if err != nil {
		return StepResult{}, err
	}
	spec := ComponentSpec{Kind: kind, ConstructorArgs: args, DisplayName: r.o.artifacts[kind]}.clone()

	rec, ok, err := r.existing(ctx, kind, spec.ConstructorArgs)
	if err != nil {
		return StepResult{}, err
	}
	if ok {
		h := r.adopt(kind, rec)
		r.o.log.WithContext(ctx).WithFields(map[string]interface{}{
			"component": kind,
			"name":      spec.DisplayName,
			"address":   h.Address,
		}).Info("reusing existing component")
		return StepResult{Outcome: OutcomeSatisfied, Detail: "reused " + h.Address.String()}, nil
	}

	dep, err := r.o.env.Create(ctx, chain.CreateRequest{Name: spec.DisplayName, Args: spec.ConstructorArgs}, r.id.Address, chain.CreateOptions{FastFinality: r.o.fast})
	if err != nil {
		r.result.Components[kind] = ComponentHandle{Kind: kind, Outcome: CreationFailure, ConstructorArgs: spec.ConstructorArgs}
		return StepResult{}, err
	}

	h := ComponentHandle{
		Kind:            kind,
		Address:         dep.Address,
		Outcome:         CreationSuccess,
		ConstructorArgs: spec.ConstructorArgs,
		TxHash:          dep.TxHash,
		RunID:           r.runID,
	}
	r.handles[kind] = h
	r.result.Components[kind] = h
	metrics.RecordComponent(r.o.network, string(kind), false)

	r.o.log.WithContext(ctx).WithFields(map[string]interface{}{
		"component": kind,
		"name":      spec.DisplayName,
		"address":   dep.Address,
		"tx_hash":   dep.TxHash,
		"block":     dep.Block,
	}).Info("deployed component")

	err = r.o.ledger.PutComponent(ctx, ledger.ComponentRecord{
		Network:         r.o.network,
		Kind:            string(kind),
		Address:         dep.Address,
		ConstructorArgs: spec.ConstructorArgs,
		TxHash:          dep.TxHash,
		RunID:           r.runID,
	})
	if err != nil {
		// The component exists but the next run will not find it.
		r.o.log.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"component": kind,
			"address":   dep.Address,
			"tx_hash":   dep.TxHash,
		}).Error("deployed component was not recorded")
		return StepResult{}, bserr.New(bserr.KindLedgerUnavailable, "ledger.put_component",
			fmt.Errorf("%s created at %s (tx %s) but not recorded: %w", kind, dep.Address, dep.TxHash, err))
	}
	return StepResult{Outcome: OutcomeApplied, TxHash: dep.TxHash, Detail: "created " + dep.Address.String()}, nil
}

// =============================================================================
// Configuration
// =============================================================================

// action is a configuration step bound to this run's addresses.
type action struct {
	targets []chain.Address
	amounts []*big.Int
	// apply performs the step. It returns OutcomeSatisfied when a guard
	// finds the effect already in place.
	apply func(ctx context.Context) (StepOutcome, chain.Receipt, string, error)
}

func (r *runner) configure(ctx context.Context, step Step) (StepResult, error) {
	act, err := r.action(step)
	if err != nil {
		return StepResult{}, err
	}

	fp := fingerprint(step.Name, r.targetKeys(step, act.targets), act.amounts...)
	rec, err := r.o.ledger.Step(ctx, r.o.network, step.Name)
	switch {
	case err == nil && rec.Fingerprint == fp && (rec.Outcome == string(OutcomeApplied) || rec.Outcome == string(OutcomeSatisfied)):
		return StepResult{Outcome: OutcomeSatisfied, TxHash: rec.TxHash, Detail: "recorded by run " + rec.RunID}, nil
	case err != nil && !stderrors.Is(err, ledger.ErrNotFound):
		return StepResult{}, ledgerErr("ledger.step", err)
	}

	outcome, receipt, detail, err := act.apply(ctx)
	if err != nil {
		return StepResult{}, err
	}
	res := StepResult{Outcome: outcome, TxHash: receipt.TxHash, Detail: detail}
	if outcome == OutcomeSkipped {
		return res, nil
	}

	err = r.o.ledger.PutStep(ctx, ledger.StepRecord{
		Network:     r.o.network,
		Step:        step.Name,
		Fingerprint: fp,
		Targets:     act.targets,
		Amount:      amountString(act.amounts...),
		Outcome:     string(outcome),
		TxHash:      receipt.TxHash,
		RunID:       r.runID,
	})
	if err != nil {
		return StepResult{}, ledgerErr("ledger.put_step", err)
	}
	return res, nil
}

func (r *runner) action(step Step) (action, error) {
	a := r.o.amounts
	deployer := r.id.Address
	opts := chain.CallOptions{FastFinality: r.o.fast}

	switch step.Name {
	case StepFundMoverNative:
		mover, err := r.require(KindMover)
		if err != nil {
			return action{}, err
		}
		return r.fundNative(mover.Address, a.MoverNative), nil

	case StepMintMover, StepMintDeployer:
		issuer, err := r.require(KindIssuer)
		if err != nil {
			return action{}, err
		}
		to, amount := deployer, a.DeployerMintTotal()
		if step.Name == StepMintMover {
			mover, err := r.require(KindMover)
			if err != nil {
				return action{}, err
			}
			to, amount = mover.Address, a.MoverMint
		}
		return action{
			targets: []chain.Address{issuer.Address, to},
			amounts: []*big.Int{amount},
			apply: func(ctx context.Context) (StepOutcome, chain.Receipt, string, error) {
				if amount.Sign() == 0 {
					return OutcomeSkipped, chain.Receipt{}, "amount is zero", nil
				}
				if err := r.requireOwner(ctx, issuer.Address, "mintTo"); err != nil {
					return "", chain.Receipt{}, "", err
				}
				rc, err := r.o.env.MintTo(ctx, issuer.Address, deployer, to, amount, opts)
				return OutcomeApplied, rc, "", err
			},
		}, nil

	case StepFundDeployerNative:
		return r.fundNative(deployer, a.DeployerNative), nil

	case StepTransferOwnership:
		issuer, err := r.require(KindIssuer)
		if err != nil {
			return action{}, err
		}
		engine, err := r.require(KindEngine)
		if err != nil {
			return action{}, err
		}
		return action{
			targets: []chain.Address{issuer.Address, engine.Address},
			apply: func(ctx context.Context) (StepOutcome, chain.Receipt, string, error) {
				owner, err := r.o.env.Owner(ctx, issuer.Address)
				if err != nil {
					return "", chain.Receipt{}, "", err
				}
				if owner.Equal(engine.Address) {
					return OutcomeSatisfied, chain.Receipt{}, "engine already owns issuer", nil
				}
				if !owner.Equal(deployer) {
					return "", chain.Receipt{}, "", bserr.Newf(bserr.KindOwnershipAlreadyTransferred, "transferOwnership", "issuer is owned by %s, not the deployer or engine", owner)
				}
				rc, err := r.o.env.TransferOwnership(ctx, issuer.Address, deployer, engine.Address, opts)
				return OutcomeApplied, rc, "", err
			},
		}, nil

	case StepApproveExchange:
		issuer, err := r.require(KindIssuer)
		if err != nil {
			return action{}, err
		}
		exchange, err := r.require(KindExchange)
		if err != nil {
			return action{}, err
		}
		return action{
			targets: []chain.Address{issuer.Address, exchange.Address},
			amounts: []*big.Int{a.Approval},
			apply: func(ctx context.Context) (StepOutcome, chain.Receipt, string, error) {
				// init consumes the allowance, so an initialized pool means
				// the approval already served its purpose.
				done, err := r.o.env.LiquidityInitialized(ctx, exchange.Address)
				if err != nil {
					return "", chain.Receipt{}, "", err
				}
				if done {
					return OutcomeSatisfied, chain.Receipt{}, "pool already initialized", nil
				}
				current, err := r.o.env.Allowance(ctx, issuer.Address, deployer, exchange.Address)
				if err != nil {
					return "", chain.Receipt{}, "", err
				}
				if current.Cmp(a.Approval) >= 0 {
					return OutcomeSatisfied, chain.Receipt{}, "allowance already " + current.String(), nil
				}
				rc, err := r.o.env.Approve(ctx, issuer.Address, deployer, exchange.Address, a.Approval, opts)
				return OutcomeApplied, rc, "", err
			},
		}, nil

	case StepInitLiquidity:
		exchange, err := r.require(KindExchange)
		if err != nil {
			return action{}, err
		}
		return action{
			targets: []chain.Address{exchange.Address},
			amounts: []*big.Int{a.InitialLiquidityToken, a.InitialLiquidityNative},
			apply: func(ctx context.Context) (StepOutcome, chain.Receipt, string, error) {
				done, err := r.o.env.LiquidityInitialized(ctx, exchange.Address)
				if err != nil {
					return "", chain.Receipt{}, "", err
				}
				if done {
					return OutcomeSatisfied, chain.Receipt{}, "pool already initialized", nil
				}
				rc, err := r.o.env.InitLiquidity(ctx, exchange.Address, deployer, a.InitialLiquidityToken, a.InitialLiquidityNative, opts)
				if bserr.Is(err, bserr.KindAlreadyInitialized) {
					return OutcomeSatisfied, chain.Receipt{}, "pool already initialized", nil
				}
				return OutcomeApplied, rc, "", err
			},
		}, nil
	}
	return action{}, bserr.Newf(bserr.KindInvalidConfig, "bootstrap", "no action for step %q", step.Name)
}

// fundNative assigns a native balance on privileged environments and is
// skipped everywhere else.
func (r *runner) fundNative(to chain.Address, amount *big.Int) action {
	return action{
		targets: []chain.Address{to},
		amounts: []*big.Int{amount},
		apply: func(ctx context.Context) (StepOutcome, chain.Receipt, string, error) {
			if !r.o.env.Privileged() {
				return OutcomeSkipped, chain.Receipt{}, "environment does not allow balance assignment", nil
			}
			if err := r.o.env.SetBalance(ctx, to, amount); err != nil {
				return "", chain.Receipt{}, "", err
			}
			return OutcomeApplied, chain.Receipt{}, "", nil
		},
	}
}

// requireOwner fails with OwnershipAlreadyTransferred when the deployer no
// longer holds minting authority.
func (r *runner) requireOwner(ctx context.Context, issuer chain.Address, op string) error {
	owner, err := r.o.env.Owner(ctx, issuer)
	if err != nil {
		return err
	}
	if !owner.Equal(r.id.Address) {
		return bserr.Newf(bserr.KindOwnershipAlreadyTransferred, op, "deployer %s no longer owns issuer (owner is %s)", r.id.Address, owner)
	}
	return nil
}

// targetKeys names the step's targets. A target that is a component of this
// run carries the id of the run that created it, and so does the component
// the step belongs to. A component recreated at a recorded address therefore
// yields new keys.
func (r *runner) targetKeys(step Step, targets []chain.Address) []string {
	keys := make([]string, 0, len(targets)+1)
	for _, t := range targets {
		key := strings.ToLower(t.String())
		for _, h := range r.handles {
			if h.Address.Equal(t) {
				key += "@" + h.RunID
				break
			}
		}
		keys = append(keys, key)
	}
	if h, ok := r.handles[step.Component]; ok {
		keys = append(keys, string(step.Component)+"@"+h.RunID)
	}
	return keys
}

// fingerprint binds a step record to its target keys and amounts.
func fingerprint(step string, keys []string, amounts ...*big.Int) string {
	parts := make([]string, 0, len(keys)+2)
	parts = append(parts, step)
	parts = append(parts, keys...)
	parts = append(parts, amountString(amounts...))

	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(h.Sum(nil))
}

func amountString(amounts ...*big.Int) string {
	parts := make([]string, len(amounts))
	for i, v := range amounts {
		if v != nil {
			parts[i] = v.String()
		}
	}
	return strings.Join(parts, "|")
}

func ledgerErr(op string, err error) error {
	if bserr.KindOf(err) != "" {
		return err
	}
	return bserr.New(bserr.KindLedgerUnavailable, op, fmt.Errorf("ledger: %w", err))
}
