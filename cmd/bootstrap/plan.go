package main

import (
	"fmt"
	"math/big"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/R3E-Network/stablecoin_bootstrap/internal/bootstrap"
	"github.com/R3E-Network/stablecoin_bootstrap/internal/config"
)

func (c *cli) newPlanCmd() *cobra.Command {
	var (
		tags   []string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the bootstrap steps and amounts without touching the network",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runPlan(tags, asJSON)
		},
	}
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "mark steps with these tags as selected")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

type planStep struct {
	bootstrap.Step
	Selected bool `json:"selected"`
}

type planOutput struct {
	Network string            `json:"network"`
	Steps   []planStep        `json:"steps"`
	Amounts map[string]string `json:"amounts"`
}

func (c *cli) runPlan(tags []string, asJSON bool) error {
	plan := bootstrap.DefaultPlan()
	selected, err := plan.Select(tags)
	if err != nil {
		return err
	}
	amounts, err := c.cfg.ResolveAmounts()
	if err != nil {
		return err
	}

	out := planOutput{Network: c.cfg.Network, Amounts: formatAmounts(amounts, c.cfg.Amounts.Decimals)}
	for _, s := range plan {
		out.Steps = append(out.Steps, planStep{Step: s, Selected: selected[s.Name]})
	}

	if asJSON {
		printJSON(c.out, out)
		return nil
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "network: %s\n\n", out.Network)
	fmt.Fprintln(tw, "#\tSTEP\tKIND\tCOMPONENT\tPHASE\tTAGS\tSELECTED")
	for _, s := range out.Steps {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%t\n",
			s.Index, s.Name, s.Kind, s.Component, s.Phase, strings.Join(s.Tags, ","), s.Selected)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "AMOUNT\tWHOLE UNITS")
	for _, name := range amountNames {
		fmt.Fprintf(tw, "%s\t%s\n", name, out.Amounts[name])
	}
	return tw.Flush()
}

var amountNames = []string{
	"mover_native", "mover_mint", "deployer_mint", "deployer_native",
	"approval", "initial_liquidity_token", "initial_liquidity_native",
}

func formatAmounts(a bootstrap.Amounts, decimals int) map[string]string {
	values := []*big.Int{
		a.MoverNative, a.MoverMint, a.DeployerMint, a.DeployerNative,
		a.Approval, a.InitialLiquidityToken, a.InitialLiquidityNative,
	}
	out := make(map[string]string, len(amountNames))
	for i, name := range amountNames {
		out[name] = config.FormatUnits(values[i], decimals)
	}
	return out
}
