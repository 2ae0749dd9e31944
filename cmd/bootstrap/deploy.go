package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/R3E-Network/stablecoin_bootstrap/internal/bootstrap"
)

type deployOptions struct {
	tags        []string
	metricsAddr string
	verify      bool
	timeout     time.Duration
}

type deployOutput struct {
	Result *bootstrap.Result `json:"result"`
	Verify *bootstrap.Report `json:"verify,omitempty"`
}

func (c *cli) newDeployCmd() *cobra.Command {
	var opts deployOptions
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Run the bootstrap plan against the selected network",
		Long: `Deploy runs the bootstrap plan once, prints the JSON result to stdout and
exits 0 on success or non-zero on failure. Steps already recorded in the
ledger are reused; re-running after a failure resumes at the failed step.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runDeploy(cmd.Context(), opts)
		},
	}
	flags := cmd.Flags()
	flags.StringSliceVar(&opts.tags, "tags", nil, "only run steps with these tags (comma separated)")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve /metrics and /status on this address while running")
	flags.BoolVar(&opts.verify, "verify", false, "check the post-bootstrap state after a successful run")
	flags.DurationVar(&opts.timeout, "timeout", 0, "overall deadline for the run (0 disables)")
	return cmd
}

func (c *cli) runDeploy(ctx context.Context, opts deployOptions) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	app, err := buildAppContext(ctx, c.cfg, c.log)
	if err != nil {
		return err
	}
	defer app.Close()

	orch, err := app.orchestrator(c.cfg, opts.tags, c.log)
	if err != nil {
		return err
	}

	id, err := app.identity.Resolve(ctx)
	if err != nil {
		return fmt.Errorf("resolving deployer: %w", err)
	}

	addr := opts.metricsAddr
	if addr == "" {
		addr = c.cfg.Metrics.Addr
	}
	if addr != "" {
		srvCtx, cancelSrv := context.WithCancel(context.Background())
		defer cancelSrv()
		go func() {
			if err := serve(srvCtx, addr, newRouter(app.network, orch, app.ledger, c.log), c.log); err != nil {
				c.log.WithError(err).Error("status server failed")
			}
		}()
	}

	res, runErr := orch.Run(ctx, id)
	out := deployOutput{Result: res}

	if runErr == nil && opts.verify {
		amounts, err := c.cfg.ResolveAmounts()
		if err != nil {
			return err
		}
		report, err := bootstrap.Verify(ctx, app.env, res, amounts)
		if err != nil {
			return fmt.Errorf("verify: %w", err)
		}
		out.Verify = &report
	}

	printJSON(c.out, out)

	if runErr != nil {
		return fmt.Errorf("bootstrap failed: %w", runErr)
	}
	if out.Verify != nil && !out.Verify.OK {
		return errors.New("bootstrap verification failed")
	}
	return nil
}

func printJSON(w io.Writer, v interface{}) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(w, `{"error":%q}`+"\n", err.Error())
	}
}
