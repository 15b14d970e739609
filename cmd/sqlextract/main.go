// Command sqlextract runs a SQL query and writes the result set as a series of
// Parquet files, one per batch.
//
//	sqlextract --config config.ini          # run the extract
//	sqlextract validate --config config.ini # check the configuration only
//	sqlextract inspect output/Sales_20240501_120000_0001.parquet --rows 5
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sqlextract/internal/config"
	"sqlextract/internal/pipeline"

	// register all backends with the source registry.
	// config specifies which to use but we need to build in support for all of them.
	_ "sqlextract/internal/source/all"
)

// runPipelineFn is a test seam for the pipeline invocation.
var runPipelineFn = func(ctx context.Context, cfg config.Config, opts pipeline.Options) (pipeline.RunContext, error) {
	return pipeline.NewRunner(cfg, opts).Run(ctx)
}

type rootOptions struct {
	cfgPath        string
	verbose        bool
	metricsBackend string
	pushgatewayURL string
	statsdAddr     string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "sqlextract",
		Short:         "Extract a SQL query result to batched Parquet files",
		Long:          `Run the query in [Query] sql_file_path against the configured database and write every batch of processing.batch_size rows to its own Parquet file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExtract(cmd, opts)
		},
	}
	root.PersistentFlags().StringVar(&opts.cfgPath, "config", "config.ini", "path to the INI configuration file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logs")

	addRunFlags(root, opts)

	run := &cobra.Command{
		Use:   "run",
		Short: "Run the extract (default command)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExtract(cmd, opts)
		},
	}
	addRunFlags(run, opts)

	root.AddCommand(run, newValidateCmd(opts), newInspectCmd())
	return root
}

func addRunFlags(cmd *cobra.Command, opts *rootOptions) {
	cmd.Flags().StringVar(&opts.metricsBackend, "metrics-backend", "", "metrics backend (none, pushgateway, datadog); overrides [Metrics] backend")
	cmd.Flags().StringVar(&opts.pushgatewayURL, "pushgateway-url", "", "Pushgateway base URL; overrides [Metrics] pushgateway_url")
	cmd.Flags().StringVar(&opts.statsdAddr, "statsd-addr", "", "DogStatsD address; overrides [Metrics] statsd_addr")
}

// loadConfig loads the file, applies flag overrides and prints validation
// issues. It returns an error when the configuration cannot be used.
func loadConfig(stderr io.Writer, opts *rootOptions) (config.Config, error) {
	res, err := config.Load(opts.cfgPath)
	if err != nil {
		return config.Config{}, err
	}
	if res.Created {
		fmt.Fprintf(stderr, "warning: config file %s not found; wrote defaults to it\n", opts.cfgPath)
	}

	cfg := res.Config
	if opts.verbose {
		cfg.Logging.Level = "debug"
	}
	if opts.metricsBackend != "" {
		cfg.Metrics.Backend = opts.metricsBackend
	}
	if opts.pushgatewayURL != "" {
		cfg.Metrics.PushgatewayURL = opts.pushgatewayURL
	}
	if opts.statsdAddr != "" {
		cfg.Metrics.StatsdAddr = opts.statsdAddr
	}

	issues := config.Validate(cfg)
	for _, iss := range issues {
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if err := config.Err(issues); err != nil {
		return config.Config{}, fmt.Errorf("configuration is invalid: %s: %w", opts.cfgPath, err)
	}
	return cfg, nil
}

func runExtract(cmd *cobra.Command, opts *rootOptions) error {
	stderr := cmd.ErrOrStderr()

	cfg, err := loadConfig(stderr, opts)
	if err != nil {
		return err
	}

	flush := setupMetrics(stderr, cfg.Metrics, cfg.Output.ExtractName, opts.verbose)
	defer flush()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rc, err := runPipelineFn(ctx, cfg, pipeline.Options{Console: stderr})
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s, %d rows in %d files", rc.ExtractName, rc.State, rc.Rows, len(rc.Artifacts))
	if rc.LogPath != "" {
		fmt.Fprintf(cmd.OutOrStdout(), " (log: %s)", rc.LogPath)
	}
	fmt.Fprintln(cmd.OutOrStdout())
	return err
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fatalf("%v", err)
	}
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
