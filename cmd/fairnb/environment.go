package main

import (
	"context"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"fairnb/adapters/dataset"
	"fairnb/adapters/gp"
	"fairnb/adapters/search"
	"fairnb/adapters/store"
	"fairnb/app"
	domaindata "fairnb/domain/dataset"
	"fairnb/domain/network"
	"fairnb/internal"
	"fairnb/internal/config"
	apperrors "fairnb/internal/errors"
	"fairnb/internal/metrics"
	"fairnb/internal/runlog"
	"fairnb/ports"
)

// globalOptions are the persistent flags; set flags override the environment.
type globalOptions struct {
	outDir       string
	dataDir      string
	dsn          string
	netPath      string
	tablePath    string
	logLevel     string
	metricsAddr  string
	searchBudget time.Duration
	maxIter      int
	stopAfterK   bool
}

func (o *globalOptions) bind(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&o.outDir, "outdir", "", "Output directory for result logs (env OUT_DIR)")
	f.StringVar(&o.dataDir, "data-dir", "", "Directory holding <name>_binerized.csv and <name>_binary.net.txt (env DATA_DIR)")
	f.StringVar(&o.dsn, "db", "", "Run-history store: postgres://... or sqlite3://path (env STORE_DSN)")
	f.StringVar(&o.netPath, "net", "", "Network description file, overrides the data-dir lookup")
	f.StringVar(&o.tablePath, "data", "", "Binarized dataset file (.csv or .xlsx), overrides the data-dir lookup")
	f.StringVar(&o.logLevel, "log-level", "", "ERROR|WARN|INFO|DEBUG|TRACE (env LOG_LEVEL)")
	f.StringVar(&o.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (env METRICS_ADDR)")
	f.DurationVar(&o.searchBudget, "search-budget", 0, "Wall-clock limit of one pattern search (env SEARCH_BUDGET)")
	f.IntVar(&o.maxIter, "max-iterations", 0, "Maximum constrained refits per run (env MAX_ITERATIONS)")
	f.BoolVar(&o.stopAfterK, "stop-after-k", false, "Stop each search after the first k patterns (env SEARCH_STOP_AFTER_K)")
}

// config loads the environment and applies the flags that were set.
func (o *globalOptions) config(cmd *cobra.Command) (*config.Config, error) {
	if err := config.LoadEnv(); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("outdir") {
		cfg.Paths.OutDir = o.outDir
	}
	if flags.Changed("data-dir") {
		cfg.Paths.DataDir = o.dataDir
	}
	if flags.Changed("db") {
		cfg.Store.DSN = o.dsn
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr = o.metricsAddr
	}
	if flags.Changed("search-budget") {
		cfg.Search.Budget = o.searchBudget
	}
	if flags.Changed("max-iterations") {
		cfg.Search.MaxIterations = o.maxIter
	}
	if flags.Changed("stop-after-k") {
		cfg.Search.StopAfterK = o.stopAfterK
	}
	if flags.Changed("log-level") {
		level, ok := internal.ParseLogLevel(o.logLevel)
		if !ok {
			return nil, apperrors.ConfigInvalid("unknown --log-level " + o.logLevel)
		}
		cfg.Log.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// environment holds the wired collaborators of one command.
type environment struct {
	cfg     *config.Config
	logger  *logrus.Logger
	loader  *app.Loader
	learner *app.Learner
	store   *store.Store
	closers []func()
}

func (o *globalOptions) environment(cmd *cobra.Command, stderr io.Writer) (*environment, error) {
	cfg, err := o.config(cmd)
	if err != nil {
		return nil, err
	}
	env := &environment{cfg: cfg, logger: internal.NewLogger(stderr, cfg.Log.Level)}
	ctx := cmd.Context()

	// 1. Observers: result files, metrics, optional store
	writer, err := runlog.NewWriter(cfg.Paths.OutDir, env.logger)
	if err != nil {
		return nil, err
	}
	observers := []ports.RunObserver{writer}

	reg := prometheus.NewRegistry()
	observers = append(observers, metrics.NewRecorder(reg))
	if cfg.Metrics.Addr != "" {
		mctx, cancel := context.WithCancel(ctx)
		env.closers = append(env.closers, cancel)
		go func() {
			if err := metrics.Serve(mctx, cfg.Metrics.Addr, reg, env.logger); err != nil {
				env.logger.WithError(err).Warn("[Metrics] server stopped")
			}
		}()
	}

	if cfg.Store.DSN != "" {
		env.store, err = store.Open(ctx, cfg.Store.DSN, env.logger)
		if err != nil {
			env.close()
			return nil, err
		}
		observers = append(observers, env.store)
		st := env.store
		env.closers = append(env.closers, func() { st.Close() })
	}

	// 2. Loop collaborators
	oracle := search.NewOracle(search.Options{StopAfterK: cfg.Search.StopAfterK}, env.logger)
	solver := gp.NewSolver(gp.Options{
		Tolerance:     cfg.Solver.Tolerance,
		MaxIterations: cfg.Solver.MaxIterations,
	}, env.logger)
	env.learner = app.NewLearner(oracle, solver, app.LearnerOptions{
		SearchBudget:  cfg.Search.Budget,
		MaxIterations: cfg.Search.MaxIterations,
	}, env.logger, observers...)
	env.loader = app.NewLoader(dataset.NewTableReader(env.logger), dataset.NetworkFileReader{}, env.logger)
	return env, nil
}

// load resolves the dataset files of name and reads them.
func (e *environment) load(o *globalOptions, name string) (*network.Network, *domaindata.Table, error) {
	netPath := o.netPath
	if netPath == "" {
		netPath = dataset.NetworkPath(e.cfg.Paths.DataDir, name)
	}
	tablePath := o.tablePath
	if tablePath == "" {
		tablePath = dataset.TablePath(e.cfg.Paths.DataDir, name)
	}
	return e.loader.Load(netPath, tablePath)
}

func (e *environment) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}
