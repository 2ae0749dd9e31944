package bootstrap

import (
	"context"
	stderrors "errors"
	"io"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/stablecoin_bootstrap/internal/chain"
	"github.com/R3E-Network/stablecoin_bootstrap/internal/chain/memory"
	bserr "github.com/R3E-Network/stablecoin_bootstrap/internal/errors"
	"github.com/R3E-Network/stablecoin_bootstrap/internal/ledger"
	"github.com/R3E-Network/stablecoin_bootstrap/pkg/logger"
)

// =============================================================================
// Helpers
// =============================================================================

func quietLogger() *logger.Logger {
	return logger.New("bootstrap", logger.LoggingConfig{Output: io.Discard})
}

func literalAmounts() Amounts {
	return Amounts{
		MoverNative:            big.NewInt(5_000),
		MoverMint:              big.NewInt(10_000),
		DeployerMint:           big.NewInt(1_000),
		DeployerNative:         big.NewInt(1_000_000_000),
		Approval:               big.NewInt(1_000_000),
		InitialLiquidityToken:  big.NewInt(1_000_000),
		InitialLiquidityNative: big.NewInt(1_000),
	}
}

func deployerOf(t *testing.T, env chain.AccountLister) Identity {
	t.Helper()
	accounts, err := env.Accounts(context.Background())
	require.NoError(t, err)
	return Identity{Address: accounts[0], Label: "deployer"}
}

func newTestOrchestrator(t *testing.T, env chain.Environment, l ledger.Ledger, amounts Amounts, tags ...string) *Orchestrator {
	t.Helper()
	o, err := New(Options{
		Network:      "memory",
		Env:          env,
		Ledger:       l,
		Amounts:      amounts,
		Tags:         tags,
		FastFinality: true,
		Logger:       quietLogger(),
	})
	require.NoError(t, err)
	return o
}

func runOnce(t *testing.T, env *memory.Environment, l ledger.Ledger, amounts Amounts) *Result {
	t.Helper()
	res, err := newTestOrchestrator(t, env, l, amounts).Run(context.Background(), deployerOf(t, env))
	require.NoError(t, err)
	require.Equal(t, StateComplete, res.State)
	return res
}

func stepError(t *testing.T, err error) *bserr.StepError {
	t.Helper()
	var stepErr *bserr.StepError
	require.True(t, stderrors.As(err, &stepErr), "want *StepError, got %v", err)
	return stepErr
}

func handle(t *testing.T, res *Result, kind ComponentKind) ComponentHandle {
	t.Helper()
	h, ok := res.Handle(kind)
	require.True(t, ok, "no handle for %s", kind)
	return h
}

// =============================================================================
// Happy Path
// =============================================================================

func TestRun_LiteralScenario(t *testing.T) {
	env := memory.New(memory.Options{Privileged: true})
	amounts := literalAmounts()
	res := runOnce(t, env, ledger.NewMemory(), amounts)
	ctx := context.Background()

	for _, kind := range ComponentKinds {
		h := handle(t, res, kind)
		assert.Equal(t, CreationSuccess, h.Outcome)
		assert.False(t, h.Reused)
	}
	require.Len(t, res.Steps, 11)
	for i, s := range res.Steps {
		assert.Equal(t, i+1, s.Index)
		assert.Equal(t, OutcomeApplied, s.Outcome, s.Name)
	}

	exchange := handle(t, res, KindExchange)
	done, err := env.LiquidityInitialized(ctx, exchange.Address)
	require.NoError(t, err)
	assert.True(t, done)

	token, native, ok := env.Reserves(exchange.Address)
	require.True(t, ok)
	assert.Equal(t, "1000000", token.String())
	assert.Equal(t, "1000", native.String())

	supply, err := env.TotalSupply(ctx, handle(t, res, KindIssuer).Address)
	require.NoError(t, err)
	want := new(big.Int).Add(amounts.MoverMint, amounts.DeployerMint)
	want.Add(want, amounts.InitialLiquidityToken)
	assert.Equal(t, want.String(), supply.String())
}

func TestRun_OrderingInvariant(t *testing.T) {
	env := memory.New(memory.Options{Privileged: true})
	res := runOnce(t, env, ledger.NewMemory(), literalAmounts())

	issuer := handle(t, res, KindIssuer).Address
	exchange := handle(t, res, KindExchange).Address

	args, ok := env.ConstructorArgs(exchange)
	require.True(t, ok)
	assert.Equal(t, []chain.Address{issuer}, args)

	for _, kind := range []ComponentKind{KindEngine, KindMover} {
		args, ok := env.ConstructorArgs(handle(t, res, kind).Address)
		require.True(t, ok)
		assert.Equal(t, []chain.Address{exchange, issuer}, args, kind)
	}
}

func TestRun_OwnershipInvariant(t *testing.T) {
	env := memory.New(memory.Options{Privileged: true})
	res := runOnce(t, env, ledger.NewMemory(), literalAmounts())
	ctx := context.Background()

	issuer := handle(t, res, KindIssuer).Address
	owner, err := env.Owner(ctx, issuer)
	require.NoError(t, err)
	assert.Equal(t, handle(t, res, KindEngine).Address, owner)

	_, err = env.MintTo(ctx, issuer, res.Deployer.Address, res.Deployer.Address, big.NewInt(1), chain.CallOptions{})
	assert.Error(t, err, "deployer must not be able to mint after the run")
}

func TestRun_FundingInvariant(t *testing.T) {
	env := memory.New(memory.Options{Privileged: true})
	amounts := literalAmounts()
	res := runOnce(t, env, ledger.NewMemory(), amounts)
	ctx := context.Background()

	issuer := handle(t, res, KindIssuer).Address
	mover := handle(t, res, KindMover).Address

	native, err := env.NativeBalance(ctx, mover)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, native.Cmp(amounts.MoverNative), 0)

	moverTokens, err := env.BalanceOf(ctx, issuer, mover)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, moverTokens.Cmp(amounts.MoverMint), 0)

	deployerTokens, err := env.BalanceOf(ctx, issuer, res.Deployer.Address)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, deployerTokens.Cmp(amounts.DeployerMint), 0)

	report, err := Verify(ctx, env, res, amounts)
	require.NoError(t, err)
	assert.True(t, report.OK, "%+v", report.Checks)
}

func TestRun_DefaultAmounts(t *testing.T) {
	env := memory.New(memory.Options{Privileged: true})
	res := runOnce(t, env, ledger.NewMemory(), DefaultAmounts())

	report, err := Verify(context.Background(), env, res, DefaultAmounts())
	require.NoError(t, err)
	assert.True(t, report.OK, "%+v", report.Checks)
}

// =============================================================================
// Idempotency
// =============================================================================

func TestRun_SecondRunIsNoop(t *testing.T) {
	env := memory.New(memory.Options{Privileged: true})
	l := ledger.NewMemory()
	first := runOnce(t, env, l, literalAmounts())
	second := runOnce(t, env, l, literalAmounts())

	for _, kind := range ComponentKinds {
		a, b := handle(t, first, kind), handle(t, second, kind)
		assert.Equal(t, a.Address, b.Address, kind)
		assert.True(t, b.Reused, kind)
	}
	for _, s := range second.Steps {
		assert.Equal(t, OutcomeSatisfied, s.Outcome, s.Name)
	}

	assert.Equal(t, 4, env.Calls(memory.OpCreate))
	assert.Equal(t, 2, env.Calls(memory.OpMint))
	assert.Equal(t, 1, env.Calls(memory.OpTransferOwnership))
	assert.Equal(t, 1, env.Calls(memory.OpInitLiquidity))
	assert.Equal(t, 4, env.Components())
}

func TestRun_EnvironmentResetInvalidatesStepRecords(t *testing.T) {
	l := ledger.NewMemory()
	amounts := literalAmounts()
	first := runOnce(t, memory.New(memory.Options{Privileged: true}), l, amounts)

	// A fresh environment hands out the same addresses, so only the ledger
	// remembers the earlier run.
	env := memory.New(memory.Options{Privileged: true})
	second := runOnce(t, env, l, amounts)

	for _, kind := range ComponentKinds {
		a, b := handle(t, first, kind), handle(t, second, kind)
		assert.Equal(t, a.Address, b.Address, kind)
		assert.False(t, b.Reused, kind)
		assert.Equal(t, second.RunID, b.RunID, kind)
	}
	for _, s := range second.Steps {
		assert.Equal(t, OutcomeApplied, s.Outcome, s.Name)
	}
	assert.Equal(t, 2, env.Calls(memory.OpMint))
	assert.Equal(t, 1, env.Calls(memory.OpTransferOwnership))
	assert.Equal(t, 1, env.Calls(memory.OpInitLiquidity))

	report, err := Verify(context.Background(), env, second, amounts)
	require.NoError(t, err)
	assert.True(t, report.OK, "%+v", report.Checks)

	// The reset run's records are the ones a third run reuses.
	third := runOnce(t, env, l, amounts)
	for _, s := range third.Steps {
		assert.Equal(t, OutcomeSatisfied, s.Outcome, s.Name)
	}
	assert.Equal(t, second.RunID, handle(t, third, KindIssuer).RunID)
}

func TestRun_GuardsSatisfyWithoutStepRecords(t *testing.T) {
	env := memory.New(memory.Options{Privileged: true})
	l := ledger.NewMemory()
	runOnce(t, env, l, literalAmounts())

	// Component records survive but step records are gone, so ownership,
	// approval and init must be recognised from environment state alone.
	res, err := newTestOrchestrator(t, env, &stepAmnesiaLedger{Ledger: l}, literalAmounts(), TagOwnership, TagLiquidity).
		Run(context.Background(), deployerOf(t, env))
	require.NoError(t, err)

	for _, name := range []string{StepTransferOwnership, StepApproveExchange, StepInitLiquidity} {
		s, ok := res.Step(name)
		require.True(t, ok)
		assert.Equal(t, OutcomeSatisfied, s.Outcome, name)
	}
	assert.Equal(t, 1, env.Calls(memory.OpTransferOwnership))
	assert.Equal(t, 1, env.Calls(memory.OpApprove))
}

func TestRun_RecreatesWhenRecordedComponentIsGone(t *testing.T) {
	env := memory.New(memory.Options{Privileged: true})
	l := ledger.NewMemory()
	stale := chain.MustParseAddress("0x1111111111111111111111111111111111111111")
	require.NoError(t, l.PutComponent(context.Background(), ledger.ComponentRecord{Network: "memory", Kind: string(KindIssuer), Address: stale}))

	res := runOnce(t, env, l, literalAmounts())
	issuer := handle(t, res, KindIssuer)
	assert.NotEqual(t, stale, issuer.Address)
	assert.False(t, issuer.Reused)

	rec, err := l.Component(context.Background(), "memory", string(KindIssuer))
	require.NoError(t, err)
	assert.Equal(t, issuer.Address, rec.Address)
}

// =============================================================================
// Failure Handling
// =============================================================================

func TestRun_FailAndRecoverAtMintMover(t *testing.T) {
	env := memory.New(memory.Options{Privileged: true})
	l := ledger.NewMemory()
	deployer := deployerOf(t, env)
	env.InjectFault(memory.OpMint, bserr.Newf(bserr.KindEnvironmentUnavailable, "mintTo", "connection reset"))

	o := newTestOrchestrator(t, env, l, literalAmounts())
	res, err := o.Run(context.Background(), deployer)
	require.Error(t, err)

	stepErr := stepError(t, err)
	assert.Equal(t, 6, stepErr.Step)
	assert.Equal(t, StepMintMover, stepErr.Name)
	assert.Equal(t, string(KindIssuer), stepErr.Component)
	assert.Equal(t, bserr.KindEnvironmentUnavailable, stepErr.Kind)
	assert.True(t, stderrors.Is(err, bserr.ErrEnvironmentUnavailable))
	assert.Equal(t, StateFailed, o.State())
	assert.Equal(t, StateFailed, res.State)
	require.Len(t, res.Steps, 6)
	assert.Equal(t, OutcomeFailed, res.Steps[5].Outcome)

	recovered, err := newTestOrchestrator(t, env, l, literalAmounts()).Run(context.Background(), deployer)
	require.NoError(t, err)
	assert.Equal(t, StateComplete, recovered.State)
	assert.Equal(t, 4, env.Calls(memory.OpCreate), "no component is created twice")
	for _, kind := range ComponentKinds {
		assert.Equal(t, handle(t, res, kind).Address, handle(t, recovered, kind).Address)
	}
	s, _ := recovered.Step(StepFundMoverNative)
	assert.Equal(t, OutcomeSatisfied, s.Outcome)
	s, _ = recovered.Step(StepMintMover)
	assert.Equal(t, OutcomeApplied, s.Outcome)
}

func TestRun_ApprovalCeiling(t *testing.T) {
	env := memory.New(memory.Options{Privileged: true})
	amounts := literalAmounts()
	amounts.Approval = big.NewInt(999_999)

	o := newTestOrchestrator(t, env, ledger.NewMemory(), amounts)
	res, err := o.Run(context.Background(), deployerOf(t, env))
	require.Error(t, err)

	stepErr := stepError(t, err)
	assert.Equal(t, 11, stepErr.Step)
	assert.Equal(t, bserr.KindConstructorRejected, stepErr.Kind)

	done, err := env.LiquidityInitialized(context.Background(), handle(t, res, KindExchange).Address)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestRun_CreationFailureMarksHandle(t *testing.T) {
	env := memory.New(memory.Options{Privileged: true})
	env.InjectFault(memory.OpCreate, nil)
	env.InjectFault(memory.OpCreate, bserr.Newf(bserr.KindInsufficientFunds, "create", "out of gas"))

	res, err := newTestOrchestrator(t, env, ledger.NewMemory(), literalAmounts()).Run(context.Background(), deployerOf(t, env))
	stepErr := stepError(t, err)
	assert.Equal(t, 2, stepErr.Step)
	assert.Equal(t, string(KindExchange), stepErr.Component)
	assert.Equal(t, bserr.KindInsufficientFunds, stepErr.Kind)

	assert.Equal(t, CreationFailure, res.Components[KindExchange].Outcome)
	_, ok := res.Handle(KindExchange)
	assert.False(t, ok)
	_, ok = res.Handle(KindIssuer)
	assert.True(t, ok)
}

func TestRun_RerunAfterOwnershipTransferred(t *testing.T) {
	env := memory.New(memory.Options{Privileged: true})
	l := ledger.NewMemory()
	deployer := deployerOf(t, env)
	env.InjectFault(memory.OpApprove, bserr.Newf(bserr.KindEnvironmentUnavailable, "approve", "timeout"))

	_, err := newTestOrchestrator(t, env, l, literalAmounts()).Run(context.Background(), deployer)
	assert.Equal(t, 10, stepError(t, err).Step)

	// With the ledger intact the mint steps are recognised as done.
	res, err := newTestOrchestrator(t, env, l, literalAmounts()).Run(context.Background(), deployer)
	require.NoError(t, err)
	s, _ := res.Step(StepMintDeployer)
	assert.Equal(t, OutcomeSatisfied, s.Outcome)
	s, _ = res.Step(StepTransferOwnership)
	assert.Equal(t, OutcomeSatisfied, s.Outcome)
}

func TestRun_MintAfterOwnershipTransferWithoutRecord(t *testing.T) {
	env := memory.New(memory.Options{Privileged: true})
	l := ledger.NewMemory()
	deployer := deployerOf(t, env)
	runOnce(t, env, l, literalAmounts())

	_, err := newTestOrchestrator(t, env, &stepAmnesiaLedger{Ledger: l}, literalAmounts()).Run(context.Background(), deployer)
	stepErr := stepError(t, err)
	assert.Equal(t, 6, stepErr.Step)
	assert.Equal(t, bserr.KindOwnershipAlreadyTransferred, stepErr.Kind)
	assert.Equal(t, 2, env.Calls(memory.OpMint), "no mint is attempted once ownership moved")
}

func TestRun_InitReportsAlreadyInitialized(t *testing.T) {
	env := &initRaceEnv{Environment: memory.New(memory.Options{Privileged: true})}

	res, err := newTestOrchestrator(t, env, ledger.NewMemory(), literalAmounts()).Run(context.Background(), deployerOf(t, env))
	require.NoError(t, err)
	s, _ := res.Step(StepInitLiquidity)
	assert.Equal(t, OutcomeSatisfied, s.Outcome)
}

func TestRun_LedgerUnavailable(t *testing.T) {
	env := memory.New(memory.Options{Privileged: true})
	l := &brokenLedger{Ledger: ledger.NewMemory()}

	res, err := newTestOrchestrator(t, env, l, literalAmounts()).Run(context.Background(), deployerOf(t, env))
	stepErr := stepError(t, err)
	assert.Equal(t, 1, stepErr.Step)
	assert.Equal(t, bserr.KindLedgerUnavailable, stepErr.Kind)

	// The issuer exists but is unrecorded; the error names it for repair.
	require.Equal(t, 1, env.Components())
	issuer := handle(t, res, KindIssuer)
	assert.Contains(t, err.Error(), issuer.Address.String())
	assert.Contains(t, err.Error(), issuer.TxHash)
	assert.Contains(t, err.Error(), "disk full")
}

func TestRun_CancelledContext(t *testing.T) {
	env := memory.New(memory.Options{Privileged: true})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestOrchestrator(t, env, ledger.NewMemory(), literalAmounts()).Run(ctx, deployerOf(t, env))
	stepErr := stepError(t, err)
	assert.Equal(t, 1, stepErr.Step)
	assert.Equal(t, bserr.KindEnvironmentUnavailable, stepErr.Kind)
	assert.Zero(t, env.Calls(memory.OpCreate))
}

// =============================================================================
// Environment Profiles and Tags
// =============================================================================

func TestRun_NonPrivilegedSkipsBalanceAssignment(t *testing.T) {
	env := memory.New(memory.Options{Privileged: false})
	amounts := literalAmounts()
	res := runOnce(t, env, ledger.NewMemory(), amounts)

	for _, name := range []string{StepFundMoverNative, StepFundDeployerNative} {
		s, ok := res.Step(name)
		require.True(t, ok)
		assert.Equal(t, OutcomeSkipped, s.Outcome, name)
	}
	assert.Zero(t, env.Calls(memory.OpSetBalance))

	report, err := Verify(context.Background(), env, res, amounts)
	require.NoError(t, err)
	assert.True(t, report.OK, "%+v", report.Checks)
}

func TestRun_TagsSplitAcrossRuns(t *testing.T) {
	env := memory.New(memory.Options{Privileged: true})
	l := ledger.NewMemory()
	deployer := deployerOf(t, env)

	first, err := newTestOrchestrator(t, env, l, literalAmounts(), TagComponents).Run(context.Background(), deployer)
	require.NoError(t, err)
	for _, s := range first.Steps[4:] {
		assert.Equal(t, OutcomeNotSelected, s.Outcome, s.Name)
	}
	assert.Zero(t, env.Calls(memory.OpMint))

	second, err := newTestOrchestrator(t, env, l, literalAmounts(), TagFunding, TagOwnership, TagLiquidity).Run(context.Background(), deployer)
	require.NoError(t, err)
	for _, kind := range ComponentKinds {
		assert.True(t, handle(t, second, kind).Reused, kind)
	}
	assert.Equal(t, 4, env.Calls(memory.OpCreate))

	report, err := Verify(context.Background(), env, second, literalAmounts())
	require.NoError(t, err)
	assert.True(t, report.OK, "%+v", report.Checks)
}

func TestRun_UnselectedDependencyIsMissing(t *testing.T) {
	env := memory.New(memory.Options{Privileged: true})

	_, err := newTestOrchestrator(t, env, ledger.NewMemory(), literalAmounts(), TagFunding).Run(context.Background(), deployerOf(t, env))
	stepErr := stepError(t, err)
	assert.Equal(t, 5, stepErr.Step)
	assert.Equal(t, string(KindMover), stepErr.Component)
	assert.Equal(t, bserr.KindDependencyMissing, stepErr.Kind)
}

// =============================================================================
// Lifecycle
// =============================================================================

func TestRun_OnlyOnce(t *testing.T) {
	env := &gatedEnv{Environment: memory.New(memory.Options{Privileged: true}), entered: make(chan struct{}), release: make(chan struct{})}
	o := newTestOrchestrator(t, env, ledger.NewMemory(), literalAmounts())
	deployer := deployerOf(t, env)

	var (
		wg     sync.WaitGroup
		runErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, runErr = o.Run(context.Background(), deployer)
	}()

	<-env.entered
	assert.Equal(t, StateCreatingComponents, o.State())
	_, err := o.Run(context.Background(), deployer)
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(env.release)
	wg.Wait()
	require.NoError(t, runErr)
	assert.Equal(t, StateComplete, o.State())
	assert.NotNil(t, o.Result())

	_, err = o.Run(context.Background(), deployer)
	assert.ErrorIs(t, err, ErrAlreadyRan)
}

func TestNew_Validation(t *testing.T) {
	env := memory.New(memory.Options{})

	_, err := New(Options{Network: "memory", Amounts: literalAmounts()})
	assert.True(t, stderrors.Is(err, bserr.ErrInvalidConfig))

	_, err = New(Options{Env: env, Amounts: literalAmounts()})
	assert.True(t, stderrors.Is(err, bserr.ErrInvalidConfig))

	bad := literalAmounts()
	bad.Approval = big.NewInt(-1)
	_, err = New(Options{Network: "memory", Env: env, Amounts: bad})
	assert.True(t, stderrors.Is(err, bserr.ErrInvalidConfig))

	_, err = New(Options{Network: "memory", Env: env, Amounts: literalAmounts(), Tags: []string{"Oracle"}})
	assert.True(t, stderrors.Is(err, bserr.ErrInvalidConfig))

	o, err := New(Options{Network: "memory", Env: env, Amounts: literalAmounts(), Logger: quietLogger()})
	require.NoError(t, err)
	assert.Equal(t, StateNotStarted, o.State())
	_, err = o.Run(context.Background(), Identity{})
	assert.True(t, stderrors.Is(err, bserr.ErrInvalidConfig))
}

func TestDeployedHandles(t *testing.T) {
	env := memory.New(memory.Options{Privileged: true})
	l := ledger.NewMemory()
	res := runOnce(t, env, l, literalAmounts())

	handles, err := DeployedHandles(context.Background(), env, l, "memory")
	require.NoError(t, err)
	require.Len(t, handles, 4)
	for _, kind := range ComponentKinds {
		assert.Equal(t, handle(t, res, kind).Address, handles[kind].Address)
		assert.Equal(t, CreationSuccess, handles[kind].Outcome)
	}

	_, err = DeployedHandle(context.Background(), env, l, "sepolia", KindIssuer)
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	fresh := memory.New(memory.Options{})
	h, err := DeployedHandle(context.Background(), fresh, l, "memory", KindIssuer)
	require.NoError(t, err)
	assert.Equal(t, CreationFailure, h.Outcome)
}

// =============================================================================
// Test Doubles
// =============================================================================

// stepAmnesiaLedger forgets every step record.
type stepAmnesiaLedger struct {
	ledger.Ledger
}

func (l *stepAmnesiaLedger) Step(context.Context, string, string) (ledger.StepRecord, error) {
	return ledger.StepRecord{}, ledger.ErrNotFound
}

// brokenLedger cannot persist component records.
type brokenLedger struct {
	ledger.Ledger
}

func (l *brokenLedger) PutComponent(context.Context, ledger.ComponentRecord) error {
	return bserr.Newf(bserr.KindLedgerUnavailable, "ledger.put_component", "disk full")
}

// initRaceEnv loses the race to initialize the pool.
type initRaceEnv struct {
	*memory.Environment
}

func (e *initRaceEnv) InitLiquidity(context.Context, chain.Address, chain.Address, *big.Int, *big.Int, chain.CallOptions) (chain.Receipt, error) {
	return chain.Receipt{}, bserr.Newf(bserr.KindAlreadyInitialized, "init", "already initialized")
}

// gatedEnv blocks every creation until release is closed.
type gatedEnv struct {
	*memory.Environment
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (e *gatedEnv) Create(ctx context.Context, req chain.CreateRequest, from chain.Address, opts chain.CreateOptions) (chain.Deployment, error) {
	e.once.Do(func() { close(e.entered) })
	<-e.release
	return e.Environment.Create(ctx, req, from, opts)
}
