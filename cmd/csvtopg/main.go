// Command csvtopg streams a delimited text file into a relational table.
//
//	csvtopg --csv_file cars.csv --connection_string postgres://u:p@localhost/db
//	csvtopg --config csvtopg.toml validate
//	csvtopg --config csvtopg.toml config print
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"csvtopg/internal/config"
	"csvtopg/internal/logging"
	"csvtopg/internal/pipeline"
	"csvtopg/internal/storage"

	// register every backend; the config picks one.
	_ "csvtopg/internal/storage/all"
)

var version = "0.1.0"

// errReported means the failure was already printed.
var errReported = errors.New("reported")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the command line and returns the process exit code.
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// flagKeys maps command-line flags to configuration keys.
var flagKeys = map[string]string{
	"csv_file":          "input.path",
	"offset":            "input.offset",
	"encoding":          "input.encoding",
	"delimiter":         "input.delimiter",
	"connection_string": "storage.dsn",
	"storage":           "storage.kind",
	"table":             "storage.table",
	"channel_capacity":  "runtime.channel_capacity",
	"on_empty_line":     "policy.on_empty_line",
	"on_wrong_length":   "policy.on_wrong_length",
	"log_level":         "logging.level",
	"metrics_backend":   "metrics.backend",
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "csvtopg",
		Short: "Load a delimited text file into a database table",
		Long: `csvtopg reads a delimited text file line by line and bulk-loads its rows
into a table created from the header, one text column per header cell.

Settings come from a TOML file (--config), CSVTOPG_* environment variables
(e.g. CSVTOPG_STORAGE_DSN) and flags. Flags take precedence over the
environment, which takes precedence over the file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE:          runLoad,
	}

	pf := root.PersistentFlags()
	pf.String("config", "", "TOML configuration file")
	pf.String("conf_file", "", "alias of --config")
	_ = pf.MarkHidden("conf_file")
	pf.String("csv_file", "", "input CSV file path")
	pf.Int64("offset", 0, "byte offset to start reading at")
	pf.String("encoding", "", "input encoding label (default utf-8)")
	pf.String("delimiter", "", "field delimiter (default ,)")
	pf.String("connection_string", "", "database connection string")
	pf.String("storage", "", "storage backend: "+strings.Join(storage.Kinds(), ", "))
	pf.String("table", "", "target table, optionally schema-qualified")
	pf.Int("channel_capacity", 0, "rows buffered between reader and writer")
	pf.String("on_empty_line", "", "exception, skip_silently, skip_and_warn or go_for_it_anyway")
	pf.String("on_wrong_length", "", "exception, skip_silently, skip_and_warn or go_for_it_anyway")
	pf.String("log_level", "", "CRITICAL, ERROR, WARNING, INFO, DEBUG or NOTSET")
	pf.String("metrics_backend", "", "none, pushgateway or datadog")

	root.AddCommand(newValidateCmd(), newConfigCmd(), newVersionCmd())
	return root
}

// loadConfig merges defaults, the config file, the environment and the
// flags that were set.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	v := config.NewViper()
	fs := cmd.Flags()
	for name, key := range flagKeys {
		if f := fs.Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return config.Config{}, errors.Wrapf(err, "bind --%s", name)
			}
		}
	}
	path, _ := fs.GetString("config")
	if path == "" {
		path, _ = fs.GetString("conf_file")
	}
	return config.Load(v, path)
}

// checkConfig prints warnings and fails on error-severity issues.
func checkConfig(w io.Writer, cfg config.Config) error {
	issues := cfg.Validate()
	var msgs []string
	for _, iss := range issues {
		if iss.Severity == config.SeverityWarning {
			fmt.Fprintln(w, iss.Error())
			continue
		}
		msgs = append(msgs, iss.Message)
	}
	if len(msgs) > 0 {
		fmt.Fprintf(w, "Invalid configuration:\n%s\n", strings.Join(msgs, "\n"))
		return errReported
	}
	return nil
}

func runLoad(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := checkConfig(cmd.ErrOrStderr(), cfg); err != nil {
		return err
	}

	level, _ := config.ZapLevel(cfg.Logging.Level)
	if err := logging.Init(logging.Config{
		Level:       level,
		Encoding:    cfg.Logging.Encoding,
		OutputPaths: []string{"stderr"},
	}); err != nil {
		return err
	}
	defer func() { _ = logging.Sync() }()
	log := logging.Get()

	if err := setupMetrics(cfg.Metrics, cfg.Storage.Table, log); err != nil {
		log.Warn("metrics: disabled", zap.Error(err))
	}

	log.Debug("config loaded", zap.Stringer("config", cfg))
	res := pipeline.Run(cmd.Context(), cfg, pipeline.WithLogger(log))
	printSummary(cmd.OutOrStdout(), res)
	if !res.OK() {
		for _, e := range res.Errors {
			fmt.Fprintln(cmd.ErrOrStderr(), e)
		}
		return errReported
	}
	return nil
}

func printSummary(w io.Writer, res pipeline.Result) {
	m := res.Metrics
	fmt.Fprintf(w, "run %s: read %d, written %d, skipped %d rows in %d batches (%s)\n",
		res.RunID, m.RowsRead, m.RowsWritten, m.RowsSkipped, m.Batches, m.Elapsed.Round(time.Millisecond))
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := checkConfig(cmd.ErrOrStderr(), cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid")
			return nil
		},
	}
}

func newConfigCmd() *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "print",
		Short: "Print the merged configuration as TOML (password masked)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return cfg.WriteTOML(cmd.OutOrStdout())
		},
	})
	return cfgCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "csvtopg %s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
			fmt.Fprintf(out, "Storage: %s\n", strings.Join(storage.Kinds(), ", "))
		},
	}
}

