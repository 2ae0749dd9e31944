// Package memory provides an in-process execution environment. It models just
// enough issuer and exchange behaviour to drive a bootstrap end to end: owner
// gated minting, allowances, one-shot liquidity initialization and native
// balances. It backs the "memory" network and the orchestrator tests.
package memory

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/big"
	"sync"

	"golang.org/x/crypto/sha3"

	"github.com/R3E-Network/stablecoin_bootstrap/internal/chain"
	bserr "github.com/R3E-Network/stablecoin_bootstrap/internal/errors"
)

// Behavior selects which contract semantics a created component gets.
type Behavior int

const (
	// BehaviorPlain components only record their constructor arguments.
	BehaviorPlain Behavior = iota
	// BehaviorIssuer components are ownable mintable tokens.
	BehaviorIssuer
	// BehaviorExchange components hold paired liquidity against the issuer
	// passed as their first constructor argument.
	BehaviorExchange
)

// Op names an environment operation for fault injection and call counting.
type Op string

const (
	OpCreate            Op = "create"
	OpSetBalance        Op = "setBalance"
	OpMint              Op = "mintTo"
	OpApprove           Op = "approve"
	OpTransferOwnership Op = "transferOwnership"
	OpInitLiquidity     Op = "init"
)

// DefaultBehaviors maps the stablecoin protocol artifact names to behaviours.
func DefaultBehaviors() map[string]Behavior {
	return map[string]Behavior{
		"Stablecoin":    BehaviorIssuer,
		"StablecoinDEX": BehaviorExchange,
	}
}

// Options configures an Environment.
type Options struct {
	// Accounts is the number of node-managed accounts to generate.
	Accounts int
	// AccountBalance is the initial native balance of each generated account.
	AccountBalance *big.Int
	// CreationFee is charged to the creator of every component.
	CreationFee *big.Int
	// Privileged enables SetBalance.
	Privileged bool
	Behaviors  map[string]Behavior
}

type issuerState struct {
	owner      chain.Address
	supply     *big.Int
	balances   map[chain.Address]*big.Int
	allowances map[chain.Address]map[chain.Address]*big.Int
}

type exchangeState struct {
	token         chain.Address
	initialized   bool
	tokenReserve  *big.Int
	nativeReserve *big.Int
}

type component struct {
	name     string
	args     []chain.Address
	behavior Behavior
	issuer   *issuerState
	exchange *exchangeState
}

// Environment is a deterministic in-memory chain.Environment.
type Environment struct {
	mu         sync.Mutex
	opts       Options
	accounts   []chain.Address
	nonces     map[chain.Address]uint64
	native     map[chain.Address]*big.Int
	components map[chain.Address]*component
	faults     map[Op][]error
	calls      map[Op]int
	block      uint64
}

var _ chain.Environment = (*Environment)(nil)

// New creates an environment with opts applied over sensible defaults.
func New(opts Options) *Environment {
	if opts.Accounts <= 0 {
		opts.Accounts = 10
	}
	if opts.AccountBalance == nil {
		// 10,000 native units at 18 decimals, like a hardhat node.
		opts.AccountBalance = new(big.Int).Mul(big.NewInt(10000), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	}
	if opts.CreationFee == nil {
		opts.CreationFee = new(big.Int)
	}
	if opts.Behaviors == nil {
		opts.Behaviors = DefaultBehaviors()
	}

	e := &Environment{
		opts:       opts,
		nonces:     make(map[chain.Address]uint64),
		native:     make(map[chain.Address]*big.Int),
		components: make(map[chain.Address]*component),
		faults:     make(map[Op][]error),
		calls:      make(map[Op]int),
	}
	for i := 0; i < opts.Accounts; i++ {
		addr := deriveAddress([]byte("account"), uint64(i))
		e.accounts = append(e.accounts, addr)
		e.native[addr] = new(big.Int).Set(opts.AccountBalance)
	}
	return e
}

func deriveAddress(seed []byte, n uint64) chain.Address {
	h := sha3.NewLegacyKeccak256()
	h.Write(seed)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], n)
	h.Write(buf[:])
	return chain.AddressFromBytes(h.Sum(nil)[12:])
}

// InjectFault makes the next call of op fail with err before it is applied.
// Multiple injections for the same op are consumed in order.
func (e *Environment) InjectFault(op Op, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.faults[op] = append(e.faults[op], err)
}

// Calls returns how many times op was attempted, including failed attempts.
func (e *Environment) Calls(op Op) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[op]
}

// begin must be called with mu held.
func (e *Environment) begin(op Op) error {
	e.calls[op]++
	if q := e.faults[op]; len(q) > 0 {
		err := q[0]
		e.faults[op] = q[1:]
		return err
	}
	return nil
}

func (e *Environment) commit() chain.Receipt {
	e.block++
	h := sha3.NewLegacyKeccak256()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], e.block)
	h.Write(buf[:])
	return chain.Receipt{TxHash: fmt.Sprintf("0x%x", h.Sum(nil)), Block: e.block}
}

func (e *Environment) nativeOf(addr chain.Address) *big.Int {
	if b, ok := e.native[addr]; ok {
		return b
	}
	b := new(big.Int)
	e.native[addr] = b
	return b
}

// =============================================================================
// Factory and Query
// =============================================================================

// Accounts returns the generated node-managed accounts.
func (e *Environment) Accounts(_ context.Context) ([]chain.Address, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]chain.Address, len(e.accounts))
	copy(out, e.accounts)
	return out, nil
}

// Create commits a new component. Every constructor argument must be the
// address of an existing component; exchanges additionally require an issuer.
func (e *Environment) Create(_ context.Context, req chain.CreateRequest, from chain.Address, _ chain.CreateOptions) (chain.Deployment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.begin(OpCreate); err != nil {
		return chain.Deployment{}, err
	}
	if req.Name == "" {
		return chain.Deployment{}, bserr.Newf(bserr.KindConstructorRejected, "create", "component name required")
	}
	if e.nativeOf(from).Cmp(e.opts.CreationFee) < 0 {
		return chain.Deployment{}, bserr.Newf(bserr.KindInsufficientFunds, "create", "%s cannot pay creation fee %s", from, e.opts.CreationFee)
	}
	for i, arg := range req.Args {
		if _, ok := e.components[arg]; !ok {
			return chain.Deployment{}, bserr.Newf(bserr.KindConstructorRejected, "create", "%s argument %d: no component at %s", req.Name, i, arg)
		}
	}

	c := &component{
		name:     req.Name,
		args:     append([]chain.Address(nil), req.Args...),
		behavior: e.opts.Behaviors[req.Name],
	}
	switch c.behavior {
	case BehaviorIssuer:
		c.issuer = &issuerState{
			owner:      from,
			supply:     new(big.Int),
			balances:   make(map[chain.Address]*big.Int),
			allowances: make(map[chain.Address]map[chain.Address]*big.Int),
		}
	case BehaviorExchange:
		if len(req.Args) == 0 || e.components[req.Args[0]].issuer == nil {
			return chain.Deployment{}, bserr.Newf(bserr.KindConstructorRejected, "create", "%s requires an issuer as first argument", req.Name)
		}
		c.exchange = &exchangeState{token: req.Args[0], tokenReserve: new(big.Int), nativeReserve: new(big.Int)}
	}

	addr := deriveAddress(from.Bytes(), e.nonces[from])
	e.nonces[from]++
	e.nativeOf(from).Sub(e.nativeOf(from), e.opts.CreationFee)
	e.components[addr] = c

	return chain.Deployment{Address: addr, Receipt: e.commit()}, nil
}

// HasCode reports whether a component exists at addr.
func (e *Environment) HasCode(_ context.Context, addr chain.Address) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.components[addr]
	return ok, nil
}

// NativeBalance returns the native balance of addr.
func (e *Environment) NativeBalance(_ context.Context, addr chain.Address) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return new(big.Int).Set(e.nativeOf(addr)), nil
}

// ConstructorArgs returns the arguments a component was created with.
func (e *Environment) ConstructorArgs(addr chain.Address) ([]chain.Address, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.components[addr]
	if !ok {
		return nil, false
	}
	return append([]chain.Address(nil), c.args...), true
}

// Components returns the number of components created so far.
func (e *Environment) Components() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.components)
}

// =============================================================================
// Privileged
// =============================================================================

// Privileged reports whether SetBalance is enabled.
func (e *Environment) Privileged() bool { return e.opts.Privileged }

// SetBalance assigns the native balance of addr.
func (e *Environment) SetBalance(_ context.Context, addr chain.Address, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.begin(OpSetBalance); err != nil {
		return err
	}
	if !e.opts.Privileged {
		return bserr.Newf(bserr.KindConstructorRejected, "setBalance", "balance assignment is disabled on this environment")
	}
	if amount.Sign() < 0 {
		return bserr.Newf(bserr.KindConstructorRejected, "setBalance", "negative amount")
	}
	e.native[addr] = new(big.Int).Set(amount)
	e.commit()
	return nil
}
