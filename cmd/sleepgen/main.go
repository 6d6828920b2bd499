// Command sleepgen expands the sleep health table with synthetic records.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"sleepgen/internal/config"
	"sleepgen/internal/generator"
	"sleepgen/internal/logging"
	"sleepgen/internal/pipeline"

	// Link in every table store and database sink; the config picks one.
	_ "sleepgen/internal/blob/all"
	_ "sleepgen/internal/storage/all"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// runner is the pipeline surface the CLI drives.
type runner interface {
	Run(ctx context.Context, cfg *config.Config) (pipeline.Summary, error)
	Stats(ctx context.Context, cfg *config.Config) (generator.Stats, error)
}

// appDeps are the side-effecting collaborators of runMain.
type appDeps struct {
	newRunner   func(log *zap.Logger) runner
	initMetrics func(ctx context.Context, cfg config.MetricsConfig, log *zap.Logger) (func(), error)
}

func defaultDeps() appDeps {
	return appDeps{
		newRunner:   func(log *zap.Logger) runner { return pipeline.NewRunner(log) },
		initMetrics: initMetrics,
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr, defaultDeps())
	stop()
	os.Exit(code)
}

// cliError carries the exit code for an error.
type cliError struct {
	code int
	err  error
}

func (e *cliError) Error() string { return e.err.Error() }

func (e *cliError) Unwrap() error { return e.err }

func usageErr(err error) error { return &cliError{code: exitUsage, err: err} }

func usagef(format string, a ...any) error { return usageErr(fmt.Errorf(format, a...)) }

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ce *cliError
	if errors.As(err, &ce) {
		return ce.code
	}
	var cfgErr *pipeline.ConfigError
	if errors.As(err, &cfgErr) {
		return exitUsage
	}
	// cobra reports unknown subcommands as plain errors.
	if strings.HasPrefix(err.Error(), "unknown command") {
		return exitUsage
	}
	return exitFailure
}

// runMain executes the CLI with args and returns the process exit code.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	root := newRootCmd(stdout, stderr, deps)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(stderr, "sleepgen: %v\n", err)
	}
	return exitCode(err)
}

type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd(stdout, stderr io.Writer, deps appDeps) *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "sleepgen",
		Short:         "Expand the sleep health table with synthetic records",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(stderr, cmd.UsageString())
			return usagef("a command is required")
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "debug logging")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error { return usageErr(err) })

	root.AddCommand(
		newExpandCmd(opts, stdout, stderr, deps),
		newValidateCmd(opts, stdout, stderr),
		newStatsCmd(opts, stdout, stderr, deps),
		newVersionCmd(stdout),
	)
	return root
}

func noArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		return usageErr(err)
	}
	return nil
}

// addRunFlags registers the flags mapped in config.FlagKeys. Only flags the
// user sets override the config file and environment.
func addRunFlags(fs *pflag.FlagSet) {
	fs.String("input", "", "input table (path or s3://bucket/key)")
	fs.String("output", "", "output table (path or s3://bucket/key)")
	fs.Bool("in-place", false, "overwrite the input table")
	fs.Int("target", config.DefaultTargetCount, "desired total record count")
	fs.Int64("seed", 0, "random seed (default: time based)")
	addCSVFlags(fs)
	fs.String("sink", "", "database export: sqlite, postgres or mssql")
	fs.String("sink-dsn", "", "database DSN ($VAR expanded)")
	fs.String("sink-table", config.DefaultSinkTable, "database table")
	fs.String("metrics-backend", "none", "metrics backend: none, pushgateway or datadog")
	fs.String("pushgateway-url", config.DefaultPushgatewayURL, "Pushgateway base URL")
	fs.String("log-level", "info", "log level")
	fs.String("log-format", logging.FormatConsole, "log format: console or json")
}

func addCSVFlags(fs *pflag.FlagSet) {
	fs.String("comma", ",", "field delimiter")
	fs.String("charset", "utf-8", "input charset")
}

func loadConfig(cmd *cobra.Command, opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath, cmd.Flags())
	if err != nil {
		return nil, usageErr(err)
	}
	if opts.verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

// checkConfig prints every issue to w and fails when any is an error.
func checkConfig(cfg *config.Config, w io.Writer) error {
	issues := config.Validate(cfg)
	for _, iss := range issues {
		fmt.Fprintln(w, iss.String())
	}
	if config.HasErrors(issues) {
		return usagef("configuration is invalid")
	}
	return nil
}

func newExpandCmd(opts *rootOptions, stdout, stderr io.Writer, deps appDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expand",
		Short: "Generate records up to the target count and write the expanded table",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if err := checkConfig(cfg, stderr); err != nil {
				return err
			}

			log, err := logging.New(stderr, cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return usageErr(err)
			}
			defer func() { _ = log.Sync() }()

			ctx := cmd.Context()
			cleanup, err := deps.initMetrics(ctx, cfg.Metrics, log)
			if err != nil {
				log.Warn("metrics unavailable; continuing without", zap.Error(err))
			}
			defer cleanup()

			sum, err := deps.newRunner(log).Run(ctx, cfg)
			if err != nil {
				return err
			}
			return writeYAML(stdout, sum)
		},
	}
	addRunFlags(cmd.Flags())
	return cmd
}

func newValidateCmd(opts *rootOptions, stdout, stderr io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and exit",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			issues := config.Validate(cfg)
			for _, iss := range issues {
				fmt.Fprintln(stderr, iss.String())
			}
			if config.HasErrors(issues) {
				return &cliError{code: exitFailure, err: errors.New("configuration is invalid")}
			}
			fmt.Fprintln(stdout, "configuration is valid")
			return nil
		},
	}
	addRunFlags(cmd.Flags())
	return cmd
}

func newStatsCmd(opts *rootOptions, stdout, stderr io.Writer, deps appDeps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the occupation distribution and the highest person id",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if strings.TrimSpace(cfg.InputPath) == "" {
				return usagef("--input is required")
			}

			log, err := logging.New(stderr, cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return usageErr(err)
			}
			defer func() { _ = log.Sync() }()

			stats, err := deps.newRunner(log).Stats(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return writeYAML(stdout, stats)
		},
	}
	fs := cmd.Flags()
	fs.String("input", "", "input table (path or s3://bucket/key)")
	addCSVFlags(fs)
	return cmd
}

func newVersionCmd(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  noArgs,
		Run: func(*cobra.Command, []string) {
			fmt.Fprintf(stdout, "sleepgen %s\n", version)
		},
	}
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	return enc.Close()
}
