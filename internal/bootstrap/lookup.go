package bootstrap

import (
	"context"
	stderrors "errors"

	"github.com/R3E-Network/stablecoin_bootstrap/internal/chain"
	"github.com/R3E-Network/stablecoin_bootstrap/internal/ledger"
)

// DeployedHandle returns the recorded handle for kind on network. A record
// whose address no longer holds code comes back with CreationFailure.
// ledger.ErrNotFound means the kind was never recorded.
func DeployedHandle(ctx context.Context, q chain.Query, l ledger.Ledger, network string, kind ComponentKind) (ComponentHandle, error) {
	rec, err := l.Component(ctx, network, string(kind))
	if err != nil {
		if stderrors.Is(err, ledger.ErrNotFound) {
			return ComponentHandle{}, err
		}
		return ComponentHandle{}, ledgerErr("ledger.component", err)
	}
	h := ComponentHandle{
		Kind:            kind,
		Address:         rec.Address,
		Outcome:         CreationFailure,
		ConstructorArgs: rec.ConstructorArgs,
		Reused:          true,
		TxHash:          rec.TxHash,
	}
	has, err := q.HasCode(ctx, rec.Address)
	if err != nil {
		return ComponentHandle{}, err
	}
	if has {
		h.Outcome = CreationSuccess
	}
	return h, nil
}

// DeployedHandles returns DeployedHandle for every recorded kind.
func DeployedHandles(ctx context.Context, q chain.Query, l ledger.Ledger, network string) (map[ComponentKind]ComponentHandle, error) {
	out := make(map[ComponentKind]ComponentHandle, len(ComponentKinds))
	for _, kind := range ComponentKinds {
		h, err := DeployedHandle(ctx, q, l, network, kind)
		if stderrors.Is(err, ledger.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[kind] = h
	}
	return out, nil
}
