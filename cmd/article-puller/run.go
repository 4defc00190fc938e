package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"article-puller/puller"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	flagDropRoot     string
	flagCategories   string
	flagWorkers      int
	flagTimeout      time.Duration
	flagFetchTimeout time.Duration
	flagMaxBody      int64
	flagRPS          float64
	flagUserAgent    string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Poll every feed once and ingest unseen articles",
	RunE:  runOnce,
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&flagDropRoot, "drop-root", "articles", "Archive root directory (overrides config.drop_root).")
	f.StringVar(&flagCategories, "categories", "categories.csv", "Category CSV: identifier,category_name,feed_url (overrides config.categories_file).")
	f.IntVar(&flagWorkers, "workers", puller.DefaultWorkers, "Concurrent article fetches per feed.")
	f.DurationVar(&flagTimeout, "timeout", 0, "Overall timeout for one run (e.g. 10m). Zero disables.")
	f.DurationVar(&flagFetchTimeout, "fetch-timeout", puller.DefaultFetchTimeout, "Timeout for a single article fetch.")
	f.Int64Var(&flagMaxBody, "max-body-bytes", puller.DefaultMaxBodyBytes, "Largest page body accepted.")
	f.Float64Var(&flagRPS, "rps", 0, "Article requests per second across the run. Zero is unlimited.")
	f.StringVar(&flagUserAgent, "user-agent", puller.DefaultUserAgent, "User-Agent header for feed and article requests.")
}

func runOnce(cmd *cobra.Command, args []string) error {
	cfg, err := loadFileConfig(cmd)
	if err != nil {
		return err
	}
	changed := cmd.Flags().Changed
	if cfg.DropRoot == "" || changed("drop-root") {
		cfg.DropRoot = flagDropRoot
	}
	if changed("categories") {
		cfg.CategoriesFile = flagCategories
		cfg.Categories = puller.CategoriesConfig{}
	} else if cfg.CategoriesFile == "" {
		cfg.CategoriesFile = flagCategories
	}
	if cfg.Workers == 0 || changed("workers") {
		cfg.Workers = flagWorkers
	}
	if changed("timeout") {
		cfg.Timeout = flagTimeout
	}
	if cfg.FetchTimeout == 0 || changed("fetch-timeout") {
		cfg.FetchTimeout = flagFetchTimeout
	}
	if cfg.MaxBodyBytes == 0 || changed("max-body-bytes") {
		cfg.MaxBodyBytes = flagMaxBody
	}
	if changed("rps") {
		cfg.RequestsPerSecond = flagRPS
	}
	if cfg.UserAgent == "" || changed("user-agent") {
		cfg.UserAgent = flagUserAgent
	}

	categories, err := cfg.ResolveCategories()
	if err != nil {
		return err
	}

	log, err := newLogger(cfg.Debug)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	runner, err := puller.NewRunner(puller.RunnerConfig{
		DBPath:            cfg.DB,
		DropRoot:          cfg.DropRoot,
		Categories:        categories,
		Workers:           cfg.Workers,
		FetchTimeout:      cfg.FetchTimeout,
		MaxBodyBytes:      cfg.MaxBodyBytes,
		RequestsPerSecond: cfg.RequestsPerSecond,
		UserAgent:         cfg.UserAgent,
		Timeout:           cfg.Timeout,
		Logger:            log,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := runner.Close(); err != nil {
			log.Warn("close store", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	_, err = runner.RunOnce(ctx)
	return err
}
