package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/R3E-Network/stablecoin_bootstrap/internal/bootstrap"
	"github.com/R3E-Network/stablecoin_bootstrap/internal/ledger"
)

type statusOutput struct {
	Network    string                                                `json:"network"`
	Components map[bootstrap.ComponentKind]bootstrap.ComponentHandle `json:"components"`
	Ledger     ledger.Snapshot                                       `json:"ledger"`
}

func (c *cli) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print recorded components and steps for the selected network",
		Long: `Status reads the ledger for the selected network and checks each recorded
component against the environment. A component whose address no longer holds
code is reported with outcome "failure".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runStatus(cmd.Context())
		},
	}
}

func (c *cli) runStatus(ctx context.Context) error {
	app, err := buildAppContext(ctx, c.cfg, c.log)
	if err != nil {
		return err
	}
	defer app.Close()

	snap, err := app.ledger.Snapshot(ctx, app.network)
	if err != nil {
		return err
	}
	handles, err := bootstrap.DeployedHandles(ctx, app.env, app.ledger, app.network)
	if err != nil {
		return err
	}

	printJSON(c.out, statusOutput{
		Network:    app.network,
		Components: handles,
		Ledger:     snap,
	})
	return nil
}
