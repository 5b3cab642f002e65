package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/steeric1/qapper/internal/config"
	"github.com/steeric1/qapper/internal/discovery"
	qerrors "github.com/steeric1/qapper/internal/errors"
	"github.com/steeric1/qapper/internal/logging"
	"github.com/steeric1/qapper/internal/ports"
	"github.com/steeric1/qapper/internal/report"
	"github.com/steeric1/qapper/internal/scanning"
	"github.com/steeric1/qapper/internal/targets"
)

var (
	scanTimeoutMS   int
	scanConcurrency int
	scanPing        bool
)

// runScan drives one full scan: parse the port specification, resolve the
// address inputs, expand the work set, execute, and report. Input errors
// abort before any network activity.
func runScan(cmd *cobra.Command, args []string) error {
	cfg, err := loadScanConfig()
	if err != nil {
		return err
	}

	set, err := ports.Parse(args[0])
	if err != nil {
		return err
	}

	resolver := targets.NewResolver()
	addrs, err := resolver.Resolve(args[1:])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Scanning.Ping {
		engine := discovery.NewEngine()
		engine.SetTimeout(cfg.Scanning.PingTimeout)
		addrs = engine.Filter(ctx, addrs)
		if len(addrs) == 0 {
			return qerrors.NewScanError(qerrors.CodeNoTargets,
				"no hosts responded to ping")
		}
	}

	work, err := targets.Expand(addrs, set)
	if err != nil {
		return err
	}

	executor, err := scanning.NewExecutor(cfg.ScanConfig(verbose))
	if err != nil {
		return err
	}

	logging.Info("Starting scan",
		"run_id", executor.RunID().String(),
		"hosts", len(addrs),
		"ports", len(set),
		"targets", len(work))

	summary := scanning.NewSummary(executor.RunID())
	reporter := report.New(os.Stdout, verbose, summary)
	reporter.Consume(executor.Run(ctx, work))
	reporter.PrintSummary()

	if err := ctx.Err(); err != nil {
		return qerrors.WrapScanError(qerrors.CodeCanceled,
			"scan interrupted", err)
	}
	return nil
}

// loadScanConfig merges the config file with flag and environment
// overrides. Changed flags win over file values; viper carries environment
// overrides through the bound keys.
func loadScanConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath())
	if err != nil {
		return nil, err
	}

	cfg.Scanning.TimeoutMS = viper.GetInt("scanning.timeout_ms")
	cfg.Scanning.Concurrency = viper.GetInt("scanning.concurrency")
	cfg.Scanning.Ping = viper.GetBool("scanning.ping")
	if cfg.Scanning.PingTimeout <= 0 {
		cfg.Scanning.PingTimeout = 3 * time.Second
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// configPath returns the explicit config file if given, otherwise the
// default location.
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	return "qapper.yaml"
}
