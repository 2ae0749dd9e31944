package main

import (
	"context"
	"fmt"

	"github.com/R3E-Network/stablecoin_bootstrap/internal/bootstrap"
	"github.com/R3E-Network/stablecoin_bootstrap/internal/chain"
	"github.com/R3E-Network/stablecoin_bootstrap/internal/chain/evm"
	"github.com/R3E-Network/stablecoin_bootstrap/internal/chain/memory"
	"github.com/R3E-Network/stablecoin_bootstrap/internal/config"
	"github.com/R3E-Network/stablecoin_bootstrap/internal/identity"
	"github.com/R3E-Network/stablecoin_bootstrap/internal/ledger"
	"github.com/R3E-Network/stablecoin_bootstrap/pkg/logger"
)

// appContext holds the dependencies wired from configuration.
type appContext struct {
	network  string
	profile  config.NetworkConfig
	env      chain.Environment
	ledger   ledger.Ledger
	identity identity.Provider
}

func buildAppContext(ctx context.Context, cfg *config.Config, log *logger.Logger) (*appContext, error) {
	profile, err := cfg.Profile()
	if err != nil {
		return nil, err
	}

	env, err := newEnvironment(cfg, profile, log)
	if err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	l, err := ledger.Open(ctx, cfg.Ledger)
	if err != nil {
		return nil, fmt.Errorf("ledger: %w", err)
	}

	id, err := identity.FromConfig(cfg.Deployer.Address, cfg.Deployer.AccountIndex, cfg.Deployer.Label, env)
	if err != nil {
		l.Close()
		return nil, fmt.Errorf("identity: %w", err)
	}

	log.WithFields(map[string]interface{}{
		"network":    cfg.Network,
		"kind":       profile.Kind,
		"privileged": profile.Privileged,
		"ledger":     cfg.Ledger.Backend,
	}).Debug("app context ready")

	return &appContext{
		network:  cfg.Network,
		profile:  profile,
		env:      env,
		ledger:   l,
		identity: id,
	}, nil
}

func newEnvironment(cfg *config.Config, profile config.NetworkConfig, log *logger.Logger) (chain.Environment, error) {
	if profile.Kind == config.KindMemory {
		return memory.New(memory.Options{Privileged: profile.Privileged}), nil
	}

	client, err := evm.NewClient(cfg.ClientConfig(profile))
	if err != nil {
		return nil, err
	}
	env, err := evm.New(evm.Options{
		Client:         client,
		Artifacts:      evm.NewArtifacts(cfg.Artifacts.Dir),
		Privileged:     profile.Privileged,
		ConfirmTimeout: cfg.RPC.ConfirmTimeout,
		PollInterval:   cfg.RPC.PollInterval,
		Logger:         log.Named("evm"),
	})
	if err != nil {
		return nil, err
	}
	return env, nil
}

func (a *appContext) orchestrator(cfg *config.Config, tags []string, log *logger.Logger) (*bootstrap.Orchestrator, error) {
	amounts, err := cfg.ResolveAmounts()
	if err != nil {
		return nil, err
	}
	artifacts, err := cfg.ArtifactNames()
	if err != nil {
		return nil, err
	}
	return bootstrap.New(bootstrap.Options{
		Network:      a.network,
		Env:          a.env,
		Ledger:       a.ledger,
		Amounts:      amounts,
		Artifacts:    artifacts,
		Tags:         tags,
		FastFinality: a.profile.FastFinality,
		Logger:       log.Named("bootstrap"),
	})
}

func (a *appContext) Close() error {
	return a.ledger.Close()
}
