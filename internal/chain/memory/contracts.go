package memory

import (
	"context"
	"math/big"

	"github.com/R3E-Network/stablecoin_bootstrap/internal/chain"
	bserr "github.com/R3E-Network/stablecoin_bootstrap/internal/errors"
)

func (e *Environment) issuerAt(op string, addr chain.Address) (*issuerState, error) {
	c, ok := e.components[addr]
	if !ok || c.issuer == nil {
		return nil, bserr.Newf(bserr.KindConstructorRejected, op, "no issuer at %s", addr)
	}
	return c.issuer, nil
}

func (e *Environment) exchangeAt(op string, addr chain.Address) (*exchangeState, error) {
	c, ok := e.components[addr]
	if !ok || c.exchange == nil {
		return nil, bserr.Newf(bserr.KindConstructorRejected, op, "no exchange at %s", addr)
	}
	return c.exchange, nil
}

func balanceIn(m map[chain.Address]*big.Int, addr chain.Address) *big.Int {
	if b, ok := m[addr]; ok {
		return b
	}
	b := new(big.Int)
	m[addr] = b
	return b
}

func (s *issuerState) allowance(holder, spender chain.Address) *big.Int {
	if m, ok := s.allowances[holder]; ok {
		if v, ok := m[spender]; ok {
			return v
		}
	}
	return new(big.Int)
}

// =============================================================================
// Issuer
// =============================================================================

// MintTo mints amount to `to`. Only the issuer owner may mint.
func (e *Environment) MintTo(_ context.Context, issuer, from, to chain.Address, amount *big.Int, _ chain.CallOptions) (chain.Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.begin(OpMint); err != nil {
		return chain.Receipt{}, err
	}
	s, err := e.issuerAt("mintTo", issuer)
	if err != nil {
		return chain.Receipt{}, err
	}
	if !s.owner.Equal(from) {
		return chain.Receipt{}, bserr.Newf(bserr.KindConstructorRejected, "mintTo", "caller %s is not the owner", from)
	}
	if amount.Sign() <= 0 {
		return chain.Receipt{}, bserr.Newf(bserr.KindConstructorRejected, "mintTo", "amount must be positive")
	}
	bal := balanceIn(s.balances, to)
	bal.Add(bal, amount)
	s.supply.Add(s.supply, amount)
	return e.commit(), nil
}

// Approve sets the allowance of spender over from's balance.
func (e *Environment) Approve(_ context.Context, issuer, from, spender chain.Address, amount *big.Int, _ chain.CallOptions) (chain.Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.begin(OpApprove); err != nil {
		return chain.Receipt{}, err
	}
	s, err := e.issuerAt("approve", issuer)
	if err != nil {
		return chain.Receipt{}, err
	}
	if s.allowances[from] == nil {
		s.allowances[from] = make(map[chain.Address]*big.Int)
	}
	s.allowances[from][spender] = new(big.Int).Set(amount)
	return e.commit(), nil
}

// TransferOwnership hands minting authority to newOwner.
func (e *Environment) TransferOwnership(_ context.Context, issuer, from, newOwner chain.Address, _ chain.CallOptions) (chain.Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.begin(OpTransferOwnership); err != nil {
		return chain.Receipt{}, err
	}
	s, err := e.issuerAt("transferOwnership", issuer)
	if err != nil {
		return chain.Receipt{}, err
	}
	if !s.owner.Equal(from) {
		return chain.Receipt{}, bserr.Newf(bserr.KindOwnershipAlreadyTransferred, "transferOwnership", "caller %s is not the owner (owner is %s)", from, s.owner)
	}
	if newOwner.IsZero() {
		return chain.Receipt{}, bserr.Newf(bserr.KindConstructorRejected, "transferOwnership", "new owner is the zero address")
	}
	s.owner = newOwner
	return e.commit(), nil
}

// Owner returns the account holding minting authority.
func (e *Environment) Owner(_ context.Context, issuer chain.Address) (chain.Address, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.issuerAt("owner", issuer)
	if err != nil {
		return "", err
	}
	return s.owner, nil
}

// BalanceOf returns holder's issuer-asset balance.
func (e *Environment) BalanceOf(_ context.Context, issuer, holder chain.Address) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.issuerAt("balanceOf", issuer)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(balanceIn(s.balances, holder)), nil
}

// Allowance returns how much spender may pull from holder.
func (e *Environment) Allowance(_ context.Context, issuer, holder, spender chain.Address) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.issuerAt("allowance", issuer)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(s.allowance(holder, spender)), nil
}

// TotalSupply returns the minted supply of the issuer asset.
func (e *Environment) TotalSupply(_ context.Context, issuer chain.Address) (*big.Int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, err := e.issuerAt("totalSupply", issuer)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(s.supply), nil
}

// =============================================================================
// Exchange
// =============================================================================

// InitLiquidity pulls tokenAmount from `from` through its allowance and takes
// nativeAmount from its native balance. It succeeds at most once per exchange.
func (e *Environment) InitLiquidity(_ context.Context, exchange, from chain.Address, tokenAmount, nativeAmount *big.Int, _ chain.CallOptions) (chain.Receipt, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.begin(OpInitLiquidity); err != nil {
		return chain.Receipt{}, err
	}
	x, err := e.exchangeAt("init", exchange)
	if err != nil {
		return chain.Receipt{}, err
	}
	if x.initialized {
		return chain.Receipt{}, bserr.Newf(bserr.KindAlreadyInitialized, "init", "exchange %s already has liquidity", exchange)
	}
	if tokenAmount.Sign() <= 0 || nativeAmount.Sign() <= 0 {
		return chain.Receipt{}, bserr.Newf(bserr.KindConstructorRejected, "init", "liquidity amounts must be positive")
	}

	native := e.nativeOf(from)
	if native.Cmp(nativeAmount) < 0 {
		return chain.Receipt{}, bserr.Newf(bserr.KindInsufficientFunds, "init", "%s holds %s native, needs %s", from, native, nativeAmount)
	}

	token, err := e.issuerAt("init", x.token)
	if err != nil {
		return chain.Receipt{}, err
	}
	allowed := token.allowance(from, exchange)
	if allowed.Cmp(tokenAmount) < 0 {
		return chain.Receipt{}, bserr.Newf(bserr.KindConstructorRejected, "init", "allowance %s below requested %s", allowed, tokenAmount)
	}
	bal := balanceIn(token.balances, from)
	if bal.Cmp(tokenAmount) < 0 {
		return chain.Receipt{}, bserr.Newf(bserr.KindConstructorRejected, "init", "balance %s below requested %s", bal, tokenAmount)
	}

	bal.Sub(bal, tokenAmount)
	pool := balanceIn(token.balances, exchange)
	pool.Add(pool, tokenAmount)
	token.allowances[from][exchange] = new(big.Int).Sub(allowed, tokenAmount)

	native.Sub(native, nativeAmount)
	poolNative := e.nativeOf(exchange)
	poolNative.Add(poolNative, nativeAmount)

	x.initialized = true
	x.tokenReserve = new(big.Int).Set(tokenAmount)
	x.nativeReserve = new(big.Int).Set(nativeAmount)
	return e.commit(), nil
}

// LiquidityInitialized reports whether init succeeded on exchange.
func (e *Environment) LiquidityInitialized(_ context.Context, exchange chain.Address) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	x, err := e.exchangeAt("liquidityInitialized", exchange)
	if err != nil {
		return false, err
	}
	return x.initialized, nil
}

// Reserves returns the paired amounts recorded by init.
func (e *Environment) Reserves(exchange chain.Address) (token, native *big.Int, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, found := e.components[exchange]
	if !found || c.exchange == nil {
		return nil, nil, false
	}
	return new(big.Int).Set(c.exchange.tokenReserve), new(big.Int).Set(c.exchange.nativeReserve), true
}
