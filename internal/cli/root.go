// Package cli implements the rnse command line.
//
// Every command reads the layered configuration (defaults, file, environment),
// applies its flags on top, and writes machine-readable JSON to stdout. Logs go
// to stderr.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"rnseaudit/internal/config"
	"rnseaudit/internal/ledger"
	"rnseaudit/internal/telemetry"
)

// Result is the outcome of one invocation.
type Result struct {
	ExitCode int
}

type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath  string
	logLevel    string
	logFormat   string
	ledgerDir   string
	registry    string
	metricsFile string

	cfg     config.Config
	logger  *slog.Logger
	promReg *prometheus.Registry
	metrics *telemetry.Metrics
	started bool
}

// Run parses args and executes the selected command.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) (Result, error) {
	a := &app{stdout: stdout, stderr: stderr}
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err != nil && !a.started {
		// cobra failed before any command ran: unknown command or bad flags.
		var inv *InvocationError
		if !errors.As(err, &inv) {
			err = invalidInvocationf("%v", err)
		}
	}
	if ferr := a.flushMetrics(); ferr != nil && err == nil {
		err = ferr
	}
	return Result{ExitCode: ExitCodeFor(err)}, err
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "rnse",
		Short:         "Deterministic tick generation with verifiable audit commitments",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return invalidInvocationf("%v", err)
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "YAML or JSON config file")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug|info|warn|error")
	pf.StringVar(&a.logFormat, "log-format", "", "log format: text|json")
	pf.StringVar(&a.ledgerDir, "ledger-dir", "", "directory holding runs and the commitment registry")
	pf.StringVar(&a.registry, "registry", "", "commitment registry backend: file|badger|sqlite")
	pf.StringVar(&a.metricsFile, "metrics-file", "", "write Prometheus metrics to this file on exit")

	root.AddCommand(
		a.runCommand(),
		a.verifyCommand(),
		a.commitCommand(),
		a.proveCommand(),
		a.galaxyCommand(),
		a.profileCommand(),
	)
	return root
}

// setup loads configuration and builds the ambient stack.
func (a *app) setup(cmd *cobra.Command) error {
	a.started = true
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level = a.logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = a.logFormat
	}
	if flags.Changed("ledger-dir") {
		cfg.Ledger.Dir = a.ledgerDir
	}
	if flags.Changed("registry") {
		cfg.Ledger.Registry = a.registry
	}
	if flags.Changed("metrics-file") {
		cfg.Telemetry.MetricsFile = a.metricsFile
	}
	a.cfg = cfg

	a.logger, err = telemetry.NewLogger(a.stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("%w: %w", config.ErrConfig, err)
	}
	a.promReg = prometheus.NewRegistry()
	a.metrics = telemetry.NewMetrics(a.promReg)
	return nil
}

func (a *app) flushMetrics() error {
	if a.promReg == nil || a.cfg.Telemetry.MetricsFile == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(a.cfg.Telemetry.MetricsFile, a.promReg); err != nil {
		return fmt.Errorf("write metrics: %w", err)
	}
	return nil
}

func (a *app) store() (*ledger.Store, error) {
	return ledger.NewStore(a.cfg.Ledger.Dir)
}

func (a *app) openRegistry() (ledger.Registry, error) {
	return ledger.OpenRegistry(a.cfg.Ledger.Registry, a.cfg.Ledger.Dir, a.logger, a.metrics)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
