// Package identity resolves the deployer account a bootstrap run acts as.
package identity

import (
	"context"
	"fmt"

	"github.com/R3E-Network/stablecoin_bootstrap/internal/chain"
	bserr "github.com/R3E-Network/stablecoin_bootstrap/internal/errors"
)

// DefaultLabel names the deployer in logs and results.
const DefaultLabel = "deployer"

// Identity is an account able to pay for and authorize calls. Balances are
// always read from the environment.
type Identity struct {
	Address chain.Address `json:"address"`
	Label   string        `json:"label"`
}

func (i Identity) String() string {
	if i.Label == "" {
		return i.Address.String()
	}
	return fmt.Sprintf("%s(%s)", i.Label, i.Address)
}

// Provider resolves an Identity.
type Provider interface {
	Resolve(ctx context.Context) (Identity, error)
}

// Static always resolves to a fixed address.
type Static struct {
	id Identity
}

// NewStatic validates address and returns a Static provider.
func NewStatic(address, label string) (*Static, error) {
	addr, err := chain.ParseAddress(address)
	if err != nil {
		return nil, bserr.New(bserr.KindInvalidConfig, "identity", err)
	}
	if label == "" {
		label = DefaultLabel
	}
	return &Static{id: Identity{Address: addr, Label: label}}, nil
}

func (s *Static) Resolve(context.Context) (Identity, error) { return s.id, nil }

// NodeAccount resolves to one of the node-managed accounts, the way local dev
// nodes name their first account the deployer.
type NodeAccount struct {
	lister chain.AccountLister
	index  int
	label  string
}

// NewNodeAccount returns a provider for accounts[index].
func NewNodeAccount(lister chain.AccountLister, index int, label string) *NodeAccount {
	if label == "" {
		label = DefaultLabel
	}
	return &NodeAccount{lister: lister, index: index, label: label}
}

func (n *NodeAccount) Resolve(ctx context.Context) (Identity, error) {
	if n.index < 0 {
		return Identity{}, bserr.Newf(bserr.KindInvalidConfig, "identity", "account index %d is negative", n.index)
	}
	accounts, err := n.lister.Accounts(ctx)
	if err != nil {
		return Identity{}, err
	}
	if n.index >= len(accounts) {
		return Identity{}, bserr.Newf(bserr.KindInvalidConfig, "identity", "account index %d out of range: node manages %d accounts", n.index, len(accounts))
	}
	return Identity{Address: accounts[n.index], Label: n.label}, nil
}

// FromConfig picks Static when address is set and NodeAccount otherwise.
func FromConfig(address string, index int, label string, lister chain.AccountLister) (Provider, error) {
	if address != "" {
		s, err := NewStatic(address, label)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	if lister == nil {
		return nil, bserr.Newf(bserr.KindInvalidConfig, "identity", "no deployer address configured and environment cannot list accounts")
	}
	return NewNodeAccount(lister, index, label), nil
}
