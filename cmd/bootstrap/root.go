package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/R3E-Network/stablecoin_bootstrap/internal/config"
	"github.com/R3E-Network/stablecoin_bootstrap/pkg/logger"
)

// cli holds flag values and the state PersistentPreRunE builds for every
// subcommand.
type cli struct {
	cfgFile   string
	envFile   string
	logLevel  string
	logFormat string
	network   string

	out io.Writer
	cfg *config.Config
	log *logger.Logger
}

func newRootCmd(out io.Writer) *cobra.Command {
	c := &cli{out: out}

	root := &cobra.Command{
		Use:   "bootstrap",
		Short: "Deploy and wire the stablecoin protocol components",
		Long: `bootstrap creates the Issuer, Exchange, Engine and Mover components on a
target network, funds them, hands Issuer control to the Engine and seeds the
Exchange pool. Runs are idempotent: completed work recorded in the ledger is
reused.`,
		SilenceUsage: true,
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "path to config file (YAML)")
	flags.StringVar(&c.envFile, "env-file", "", "path to .env file")
	flags.StringVar(&c.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&c.logFormat, "log-format", "", "log format (json, text)")
	flags.StringVar(&c.network, "network", "", "target network profile")

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(c.cfgFile, c.envFile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		// Flags take precedence over file and environment.
		if cmd.Flags().Changed("network") {
			cfg.Network = c.network
		}
		if cmd.Flags().Changed("log-level") {
			cfg.Logging.Level = c.logLevel
		}
		if cmd.Flags().Changed("log-format") {
			cfg.Logging.Format = c.logFormat
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		c.cfg = cfg
		c.log = logger.New("bootstrap-cli", cfg.LoggerConfig())
		return nil
	}

	root.AddCommand(c.newDeployCmd(), c.newStatusCmd(), c.newPlanCmd())
	return root
}

// Execute is the entry point called by main.
func Execute() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}
