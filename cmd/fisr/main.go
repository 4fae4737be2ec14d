package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/fisr/internal/config"
	applog "github.com/sawpanic/fisr/internal/log"
)

const (
	appName = "fisr"
	version = "v1.0.0"

	// commands annotated this way run without a valid config file
	annotationConfigOptional = "config-optional"
)

type options struct {
	configPath string
	logLevel   string
	cfg        *config.Config
	cfgErr     error
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:     appName,
		Short:   "Duration-targeted fixed income rebalancer (paper trading)",
		Version: version,
		Long: `fisr keeps a small book of Treasury ETFs at a target effective duration.

Each cycle reads the kill switch and target duration from the ledger, prices
the candidate funds, solves for two-fund weights that hit the target, sizes the
orders against reference equity, and passes every order through the risk
gatekeeper before a mock fill is written to the ledger.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				if cmd.Annotations[annotationConfigOptional] == "" {
					return err
				}
				applog.Setup(applog.DefaultConfig())
				log.Debug().Err(err).Msg("Running without config")
				opts.cfgErr = err
				return nil
			}
			if opts.logLevel != "" {
				cfg.Logging.Level = opts.logLevel
			}
			applog.Setup(cfg.Logging)
			opts.cfg = cfg
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath(), "Path to YAML config file")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override logging level (debug|info|warn|error)")

	root.AddCommand(
		newInitCmd(opts),
		newRunCmd(opts),
		newScheduleCmd(opts),
		newServeCmd(opts),
		newStatusCmd(opts),
		newConfigCmd(opts),
		newTradesCmd(opts),
		newLogsCmd(opts),
		newArchiveCmd(opts),
	)

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w\nRun '%s --help' for usage", err, cmd.CommandPath())
	})
	return root
}

// defaultConfigPath prefers FISR_CONFIG, then ./config/fisr.yaml when present
func defaultConfigPath() string {
	if p := os.Getenv("FISR_CONFIG"); p != "" {
		return p
	}
	const local = "config/fisr.yaml"
	if _, err := os.Stat(local); err == nil {
		return local
	}
	return ""
}

// requireConfig is used by config-optional commands on their local path
func (o *options) requireConfig() (*config.Config, error) {
	if o.cfg == nil {
		return nil, o.cfgErr
	}
	return o.cfg, nil
}
