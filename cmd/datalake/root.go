package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"datalake/internal/config"
	"datalake/internal/pipeline"
	"datalake/internal/session"
)

// options holds the command-line flags shared by every subcommand.
type options struct {
	input, output     string
	songGlob, logGlob string
	credentials       string
	pipeline          string
	timezone          string
	malformed         string
	songplaysMode     string

	metricsBackend string
	pushgatewayURL string
	dogstatsdAddr  string

	warehouseKind   string
	warehouseDSN    string
	warehouseCreate bool

	verbose bool
	logJSON bool
}

// stageFunc runs one stage against a session.
type stageFunc func(ctx context.Context, s *session.Session) (pipeline.Result, error)

// newRootCmd builds the command tree. getenv is injected for tests.
func newRootCmd(getenv func(string) string) *cobra.Command {
	var o options

	all := []stageFunc{pipeline.ProcessSongData, pipeline.ProcessLogData}

	root := &cobra.Command{
		Use:   "datalake",
		Short: "Build the song-play data lake from song metadata and event logs",
		Long: `datalake reads song metadata and event logs from S3 or a local directory,
derives the songs, artists, user, time and songplays tables, and writes them
as Snappy-compressed, partitioned Parquet under the output root.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return execute(cmd, o, getenv, all...)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&o.input, "input", "", "input root: s3://bucket/prefix or a local directory (env DATALAKE_INPUT)")
	f.StringVar(&o.output, "output", "", "output root: s3://bucket/prefix or a local directory (env DATALAKE_OUTPUT)")
	f.StringVar(&o.songGlob, "song-glob", "", "song metadata glob under the input root (default "+config.DefaultSongGlob+")")
	f.StringVar(&o.logGlob, "log-glob", "", "event log glob under the input root (default "+config.DefaultLogGlob+")")
	f.StringVar(&o.credentials, "credentials", "dl.cfg", "INI credentials file with an [AWS] section")
	f.StringVar(&o.pipeline, "pipeline", "", "optional pipeline file (JSON or YAML)")
	f.StringVar(&o.timezone, "timezone", "", "IANA timezone for start_time, or Local")
	f.StringVar(&o.malformed, "malformed", "", "malformed-record policy: skip or abort")
	f.StringVar(&o.songplaysMode, "songplays-mode", "", "songplays write mode: merge, overwrite or append")
	f.StringVar(&o.metricsBackend, "metrics-backend", "", "metrics backend: pushgateway, datadog or none (env METRICS_BACKEND)")
	f.StringVar(&o.pushgatewayURL, "pushgateway-url", "", "Pushgateway base URL (env PUSHGATEWAY_URL)")
	f.StringVar(&o.dogstatsdAddr, "dogstatsd-addr", "", "DogStatsD address host:port (env DD_AGENT_ADDR)")
	f.StringVar(&o.warehouseKind, "warehouse-kind", "", "mirror the tables into a SQL warehouse: postgres, mssql or sqlite")
	f.StringVar(&o.warehouseDSN, "warehouse-dsn", "", "warehouse connection string")
	f.BoolVar(&o.warehouseCreate, "warehouse-create", false, "create missing warehouse tables")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "enable debug logs")
	f.BoolVar(&o.logJSON, "log-json", false, "log as JSON")

	root.AddCommand(
		&cobra.Command{
			Use:   "run",
			Short: "Run the catalog and activity stages (default)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return execute(cmd, o, getenv, all...)
			},
		},
		&cobra.Command{
			Use:   "catalog",
			Short: "Write the songs and artists tables only",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return execute(cmd, o, getenv, pipeline.ProcessSongData)
			},
		},
		&cobra.Command{
			Use:   "activity",
			Short: "Write the user, time and songplays tables only",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return execute(cmd, o, getenv, pipeline.ProcessLogData)
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Validate the effective configuration and exit",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return validate(cmd, o, getenv)
			},
		},
	)
	return root
}

// newLogger builds the run logger.
func newLogger(o options, w io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetLevel(logrus.InfoLevel)
	if o.verbose {
		log.SetLevel(logrus.DebugLevel)
	}
	if o.logJSON {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return log
}

// loadPipeline reads the optional pipeline file and applies flag and
// environment overrides. Precedence: flag, then file, then environment.
func loadPipeline(o options, getenv func(string) string) (config.Pipeline, error) {
	p, err := config.Load(o.pipeline)
	if err != nil {
		return p, err
	}
	set := func(dst *string, flag, env string) {
		switch {
		case flag != "":
			*dst = flag
		case *dst == "" && env != "":
			*dst = getenv(env)
		}
	}
	set(&p.Input.Root, o.input, "DATALAKE_INPUT")
	set(&p.Output.Root, o.output, "DATALAKE_OUTPUT")
	set(&p.Input.SongGlob, o.songGlob, "")
	set(&p.Input.LogGlob, o.logGlob, "")
	set(&p.Runtime.Timezone, o.timezone, "")
	set(&p.Runtime.MalformedPolicy, o.malformed, "")
	set(&p.Runtime.SongplaysMode, o.songplaysMode, "")
	set(&p.Warehouse.Kind, o.warehouseKind, "")
	set(&p.Warehouse.DSN, o.warehouseDSN, "")
	if o.warehouseCreate {
		p.Warehouse.AutoCreate = true
	}
	return p, nil
}

// validate prints every issue of the effective configuration.
func validate(cmd *cobra.Command, o options, getenv func(string) string) error {
	p, err := loadPipeline(o, getenv)
	if err != nil {
		return err
	}
	config.Defaults(&p)
	issues := config.ValidatePipeline(p)
	out := cmd.ErrOrStderr()
	for _, iss := range issues {
		fmt.Fprintln(out, iss.Error())
	}
	if config.HasErrors(issues) {
		return errors.Newf("configuration is invalid (%d issue(s))", len(issues))
	}
	fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
	return nil
}

// execute runs the given stages in order and, when configured, the warehouse
// mirror. Every stage runs even if an earlier one failed; the returned error
// combines all failures.
func execute(cmd *cobra.Command, o options, getenv func(string) string, stages ...stageFunc) error {
	log := newLogger(o, cmd.ErrOrStderr())
	start := time.Now()

	p, err := loadPipeline(o, getenv)
	if err != nil {
		return err
	}

	creds, err := config.LoadCredentials(o.credentials)
	if err != nil {
		return err
	}
	creds = creds.WithEnv(getenv)
	if session.NeedsCredentials(p) {
		if err := creds.Require(o.credentials); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := session.New(ctx, p, creds, log)
	if err != nil {
		return err
	}

	closeMetrics := setupMetrics(o, s.Job(), getenv, log)
	defer closeMetrics()

	var results []pipeline.Result
	var errs error
	for _, run := range stages {
		res, err := run(ctx, s)
		pipeline.LogSummary(s.Log, res)
		results = append(results, res)
		errs = errors.CombineErrors(errs, err)
	}

	if s.Config.Warehouse.Enabled() {
		res, err := pipeline.LoadWarehouse(ctx, s, results...)
		pipeline.LogSummary(s.Log, res)
		results = append(results, res)
		errs = errors.CombineErrors(errs, err)
	}

	pipeline.LogGlobalSummary(s.Log, results...)
	if errs != nil {
		return errs
	}
	s.Log.Debugf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	return nil
}
