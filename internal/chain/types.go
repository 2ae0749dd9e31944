// Package chain defines the execution environment the bootstrap runs against:
// component creation, existence queries, privileged balance assignment and the
// issuer/exchange calls the bootstrap plan needs.
package chain

import (
	"context"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// Address is a 20-byte account or component address in lowercase 0x form.
type Address string

// ZeroAddress is the all-zero address.
const ZeroAddress Address = "0x0000000000000000000000000000000000000000"

// ParseAddress validates and normalizes a hex address.
func ParseAddress(s string) (Address, error) {
	raw := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if len(raw) != 40 {
		return "", fmt.Errorf("invalid address %q: want 20 bytes", s)
	}
	if _, err := hex.DecodeString(raw); err != nil {
		return "", fmt.Errorf("invalid address %q: %w", s, err)
	}
	return Address("0x" + strings.ToLower(raw)), nil
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AddressFromBytes builds an address from the last 20 bytes of b.
func AddressFromBytes(b []byte) Address {
	if len(b) > 20 {
		b = b[len(b)-20:]
	}
	padded := make([]byte, 20)
	copy(padded[20-len(b):], b)
	return Address("0x" + hex.EncodeToString(padded))
}

// Bytes returns the 20 raw address bytes.
func (a Address) Bytes() []byte {
	b, err := hex.DecodeString(strings.TrimPrefix(string(a), "0x"))
	if err != nil {
		return make([]byte, 20)
	}
	return b
}

// Equal compares two addresses ignoring case.
func (a Address) Equal(b Address) bool {
	return strings.EqualFold(string(a), string(b))
}

// IsZero reports whether a is empty or the zero address.
func (a Address) IsZero() bool {
	return a == "" || a.Equal(ZeroAddress)
}

func (a Address) String() string { return string(a) }

// CreateRequest describes a component to create.
type CreateRequest struct {
	// Name is the artifact/contract name, e.g. "StablecoinDEX".
	Name string
	Args []Address
}

// CreateOptions are per-call hints for the factory.
type CreateOptions struct {
	// FastFinality asks dev nodes to mine immediately. Environments without
	// such a facility ignore it.
	FastFinality bool
}

// Receipt confirms a committed call.
type Receipt struct {
	TxHash string `json:"tx_hash,omitempty"`
	Block  uint64 `json:"block,omitempty"`
}

// Deployment is the committed result of a creation.
type Deployment struct {
	Address Address `json:"address"`
	Receipt
}

// CallOptions are per-call hints for configuration calls.
type CallOptions struct {
	FastFinality bool
}

// =============================================================================
// Environment Contracts
// =============================================================================

// Factory creates components.
type Factory interface {
	Create(ctx context.Context, req CreateRequest, from Address, opts CreateOptions) (Deployment, error)
}

// Query answers existence and balance questions.
type Query interface {
	// HasCode reports whether a component exists at addr.
	HasCode(ctx context.Context, addr Address) (bool, error)
	NativeBalance(ctx context.Context, addr Address) (*big.Int, error)
}

// Privileged exposes environment-level balance assignment for local and test networks.
type Privileged interface {
	// Privileged reports whether SetBalance is available.
	Privileged() bool
	SetBalance(ctx context.Context, addr Address, amount *big.Int) error
}

// IssuerOps are the stable-asset calls used during bootstrap.
type IssuerOps interface {
	MintTo(ctx context.Context, issuer, from, to Address, amount *big.Int, opts CallOptions) (Receipt, error)
	Approve(ctx context.Context, issuer, from, spender Address, amount *big.Int, opts CallOptions) (Receipt, error)
	TransferOwnership(ctx context.Context, issuer, from, newOwner Address, opts CallOptions) (Receipt, error)
	Owner(ctx context.Context, issuer Address) (Address, error)
	BalanceOf(ctx context.Context, issuer, holder Address) (*big.Int, error)
	Allowance(ctx context.Context, issuer, holder, spender Address) (*big.Int, error)
	TotalSupply(ctx context.Context, issuer Address) (*big.Int, error)
}

// ExchangeOps are the AMM calls used during bootstrap.
type ExchangeOps interface {
	// InitLiquidity seeds the pool with tokenAmount of the issuer asset pulled
	// via allowance and nativeAmount sent along with the call.
	InitLiquidity(ctx context.Context, exchange, from Address, tokenAmount, nativeAmount *big.Int, opts CallOptions) (Receipt, error)
	LiquidityInitialized(ctx context.Context, exchange Address) (bool, error)
}

// AccountLister lists node-managed accounts.
type AccountLister interface {
	Accounts(ctx context.Context) ([]Address, error)
}

// Environment is everything the orchestrator needs from a target network.
type Environment interface {
	Factory
	Query
	Privileged
	IssuerOps
	ExchangeOps
	AccountLister
}
