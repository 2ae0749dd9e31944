package bootstrap

import (
	"math/big"

	bserr "github.com/R3E-Network/stablecoin_bootstrap/internal/errors"
)

// DefaultDecimals is the decimal precision of both the native asset and the
// issuer asset.
const DefaultDecimals = 18

// Amounts are the configured quantities of a bootstrap, in smallest units.
type Amounts struct {
	// MoverNative is the native balance assigned to the Mover.
	MoverNative *big.Int `json:"mover_native"`
	// MoverMint is the issuer asset minted to the Mover.
	MoverMint *big.Int `json:"mover_mint"`
	// DeployerMint is the issuer asset the deployer keeps after seeding
	// liquidity.
	DeployerMint *big.Int `json:"deployer_mint"`
	// DeployerNative is the native balance assigned to the deployer.
	DeployerNative *big.Int `json:"deployer_native"`
	// Approval is the Exchange allowance granted by the deployer.
	Approval *big.Int `json:"approval"`
	// InitialLiquidityToken is the issuer asset moved into the pool.
	InitialLiquidityToken *big.Int `json:"initial_liquidity_token"`
	// InitialLiquidityNative is the native asset sent with pool init.
	InitialLiquidityNative *big.Int `json:"initial_liquidity_native"`
}

func units(whole int64, decimals int) *big.Int {
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	return new(big.Int).Mul(big.NewInt(whole), scale)
}

// DefaultAmounts returns the stock bootstrap profile at 18 decimals.
func DefaultAmounts() Amounts {
	const d = DefaultDecimals
	return Amounts{
		MoverNative:            new(big.Int).Mul(units(1, d), units(1, 22)),
		MoverMint:              new(big.Int).Mul(units(1, d), units(1, 22)),
		DeployerMint:           units(1_000_000_000_000, d),
		DeployerNative:         units(100_000_000_000, d),
		Approval:               units(1_000_000_000, d),
		InitialLiquidityToken:  units(1_000_000_000, d),
		InitialLiquidityNative: units(1_000_000, d),
	}
}

// Validate checks that every amount is set and non-negative. It does not
// cross-check amounts: an approval below the liquidity amount is rejected by
// the environment at init time.
func (a Amounts) Validate() error {
	fields := []struct {
		name string
		v    *big.Int
	}{
		{"mover_native", a.MoverNative},
		{"mover_mint", a.MoverMint},
		{"deployer_mint", a.DeployerMint},
		{"deployer_native", a.DeployerNative},
		{"approval", a.Approval},
		{"initial_liquidity_token", a.InitialLiquidityToken},
		{"initial_liquidity_native", a.InitialLiquidityNative},
	}
	for _, f := range fields {
		if f.v == nil {
			return bserr.Newf(bserr.KindInvalidConfig, "amounts", "%s is not set", f.name)
		}
		if f.v.Sign() < 0 {
			return bserr.Newf(bserr.KindInvalidConfig, "amounts", "%s is negative", f.name)
		}
	}
	return nil
}

// DeployerMintTotal is what mint-deployer mints: the retained deployer amount
// plus the tokens later moved into the pool.
func (a Amounts) DeployerMintTotal() *big.Int {
	return new(big.Int).Add(a.DeployerMint, a.InitialLiquidityToken)
}

// Clone returns a deep copy.
func (a Amounts) Clone() Amounts {
	cp := func(v *big.Int) *big.Int {
		if v == nil {
			return nil
		}
		return new(big.Int).Set(v)
	}
	return Amounts{
		MoverNative:            cp(a.MoverNative),
		MoverMint:              cp(a.MoverMint),
		DeployerMint:           cp(a.DeployerMint),
		DeployerNative:         cp(a.DeployerNative),
		Approval:               cp(a.Approval),
		InitialLiquidityToken:  cp(a.InitialLiquidityToken),
		InitialLiquidityNative: cp(a.InitialLiquidityNative),
	}
}
