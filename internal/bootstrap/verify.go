package bootstrap

import (
	"context"
	"fmt"
	"math/big"

	"github.com/R3E-Network/stablecoin_bootstrap/internal/chain"
)

// Check is one post-run assertion.
type Check struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// Report collects the checks made by Verify.
type Report struct {
	OK     bool    `json:"ok"`
	Checks []Check `json:"checks"`
}

func (r *Report) add(name string, ok bool, format string, args ...interface{}) {
	r.Checks = append(r.Checks, Check{Name: name, OK: ok, Detail: fmt.Sprintf(format, args...)})
	if !ok {
		r.OK = false
	}
}

// Verify reads the environment and checks the post-bootstrap state of a
// completed run: all four components live, the Engine owning the Issuer, the
// Mover and deployer funded and the pool initialized. Native funding of the
// Mover is only checked on privileged environments. Environment errors are
// returned; failed checks are reported.
func Verify(ctx context.Context, env chain.Environment, res *Result, amounts Amounts) (Report, error) {
	report := Report{OK: true}

	handles := make(map[ComponentKind]ComponentHandle, len(ComponentKinds))
	for _, kind := range ComponentKinds {
		h, ok := res.Handle(kind)
		if !ok {
			report.add("component."+string(kind), false, "no successful handle")
			continue
		}
		has, err := env.HasCode(ctx, h.Address)
		if err != nil {
			return report, err
		}
		report.add("component."+string(kind), has, "%s", h.Address)
		handles[kind] = h
	}

	issuer, haveIssuer := handles[KindIssuer]
	engine, haveEngine := handles[KindEngine]
	exchange, haveExchange := handles[KindExchange]
	mover, haveMover := handles[KindMover]

	for _, kind := range []ComponentKind{KindEngine, KindMover} {
		h, ok := handles[kind]
		if !ok || !haveIssuer || !haveExchange {
			continue
		}
		want := []chain.Address{exchange.Address, issuer.Address}
		report.add("wiring."+string(kind), addressesEqual(h.ConstructorArgs, want), "constructor args %v", h.ConstructorArgs)
	}

	if haveIssuer && haveEngine {
		owner, err := env.Owner(ctx, issuer.Address)
		if err != nil {
			return report, err
		}
		report.add("ownership.engine", owner.Equal(engine.Address), "owner %s", owner)
		report.add("ownership.deployer_revoked", !owner.Equal(res.Deployer.Address), "owner %s", owner)
	}

	if haveMover {
		if env.Privileged() {
			native, err := env.NativeBalance(ctx, mover.Address)
			if err != nil {
				return report, err
			}
			report.add("funding.mover_native", atLeast(native, amounts.MoverNative), "%s >= %s", native, amounts.MoverNative)
		}
		if haveIssuer {
			bal, err := env.BalanceOf(ctx, issuer.Address, mover.Address)
			if err != nil {
				return report, err
			}
			report.add("funding.mover_token", atLeast(bal, amounts.MoverMint), "%s >= %s", bal, amounts.MoverMint)
		}
	}

	if haveIssuer {
		bal, err := env.BalanceOf(ctx, issuer.Address, res.Deployer.Address)
		if err != nil {
			return report, err
		}
		report.add("funding.deployer_token", atLeast(bal, amounts.DeployerMint), "%s >= %s", bal, amounts.DeployerMint)
	}

	if haveExchange {
		done, err := env.LiquidityInitialized(ctx, exchange.Address)
		if err != nil {
			return report, err
		}
		report.add("liquidity.initialized", done, "initialized=%t", done)
	}

	return report, nil
}

func atLeast(v, floor *big.Int) bool {
	if floor == nil {
		return true
	}
	return v != nil && v.Cmp(floor) >= 0
}

func addressesEqual(a, b []chain.Address) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
