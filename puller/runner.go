package puller

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultWorkers      = 4
	DefaultFetchTimeout = 30 * time.Second
	DefaultMaxBodyBytes = 10 << 20
	DefaultUserAgent    = "article-puller/1.0"
)

type RunnerConfig struct {
	DBPath     string
	DropRoot   string
	Categories []Category
	// Workers bounds concurrent article fetches within one feed.
	Workers           int
	FetchTimeout      time.Duration
	MaxBodyBytes      int64
	RequestsPerSecond float64
	UserAgent         string
	// Timeout bounds one RunOnce. Zero means no deadline.
	Timeout time.Duration
	Logger  *zap.Logger
}

// Runner is the ingestion orchestrator. It owns the store handle for its
// whole lifetime; Close releases it.
type Runner struct {
	cfg     RunnerConfig
	log     *zap.Logger
	store   *Store
	feeds   FeedSource
	fetcher Fetcher
	archive *ArchiveWriter
	now     func() time.Time

	// runMu is held for a whole RunOnce; Close waits on it.
	runMu sync.Mutex
	// writeMu serializes PersistMetadata and ArchiveBody across workers.
	writeMu sync.Mutex
}

type RunStats struct {
	FeedsSeen      int
	FeedsSkipped   int
	ItemsFound     int
	ItemsSkipped   int
	ItemsIngested  int
	ItemsFailed    int
	ArchivesFailed int
}

type itemState int

const (
	stateCanceled itemState = iota
	stateSkipped
	stateFailed
	stateIngested
	stateIngestedNoArchive
)

func (s *RunStats) add(st itemState) {
	switch st {
	case stateSkipped:
		s.ItemsSkipped++
	case stateFailed:
		s.ItemsFailed++
	case stateIngested:
		s.ItemsIngested++
	case stateIngestedNoArchive:
		s.ItemsIngested++
		s.ArchivesFailed++
	}
}

func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if strings.TrimSpace(cfg.DBPath) == "" {
		return nil, &ConfigError{Field: "db", Reason: "is required"}
	}
	if strings.TrimSpace(cfg.DropRoot) == "" {
		return nil, &ConfigError{Field: "drop_root", Reason: "is required"}
	}
	if len(cfg.Categories) == 0 {
		return nil, &ConfigError{Field: "categories", Reason: "no categories configured"}
	}
	for i, c := range cfg.Categories {
		if err := checkPartition(c.Partition); err != nil {
			return nil, &ConfigError{Line: i + 1, Field: "category_name", Reason: err.Error()}
		}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = DefaultFetchTimeout
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	store, err := OpenStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	client := &http.Client{}
	return &Runner{
		cfg:   cfg,
		log:   cfg.Logger,
		store: store,
		feeds: NewGofeedSource(client, cfg.UserAgent, cfg.MaxBodyBytes, cfg.FetchTimeout),
		fetcher: NewHTTPFetcher(client, HTTPFetcherConfig{
			Timeout:           cfg.FetchTimeout,
			MaxBodyBytes:      cfg.MaxBodyBytes,
			UserAgent:         cfg.UserAgent,
			RequestsPerSecond: cfg.RequestsPerSecond,
		}),
		archive: NewArchiveWriter(cfg.DropRoot),
		now:     time.Now,
	}, nil
}

// Close releases the store. A run in flight finishes before the store is
// closed; RunOnce after Close returns an error.
func (r *Runner) Close() error {
	if r == nil {
		return nil
	}
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if r.store == nil {
		return nil
	}
	err := r.store.Close()
	r.store = nil
	return err
}

// RunOnce polls every configured feed once and ingests unseen items. Per-item
// failures are logged and counted; the returned error is non-nil only when the
// run was cancelled or the store failed systemically.
func (r *Runner) RunOnce(ctx context.Context) (*RunStats, error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if r.store == nil {
		return nil, fmt.Errorf("runner is closed")
	}
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}
	start := time.Now()
	log := r.log.With(zap.String("run_id", uuid.NewString()))
	stats := &RunStats{}
	log.Debug("run start",
		zap.Int("categories", len(r.cfg.Categories)),
		zap.Int("workers", r.cfg.Workers),
		zap.String("drop_root", r.archive.Root()),
	)

	var runErr error
	for _, cat := range r.cfg.Categories {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}
		if err := r.runFeed(ctx, log, cat, stats); err != nil {
			runErr = err
			break
		}
	}

	fields := []zap.Field{
		zap.Int("feeds", stats.FeedsSeen),
		zap.Int("feeds_skipped", stats.FeedsSkipped),
		zap.Int("items_found", stats.ItemsFound),
		zap.Int("items_ingested", stats.ItemsIngested),
		zap.Int("items_skipped", stats.ItemsSkipped),
		zap.Int("items_failed", stats.ItemsFailed),
		zap.Int("archives_failed", stats.ArchivesFailed),
		zap.Duration("elapsed", time.Since(start)),
	}
	if runErr != nil {
		log.Error("run aborted", append(fields, zap.Error(runErr))...)
		return stats, runErr
	}
	log.Info("run complete", fields...)
	return stats, nil
}

func (r *Runner) runFeed(ctx context.Context, log *zap.Logger, cat Category, stats *RunStats) error {
	log = log.With(zap.String("category", cat.Name), zap.String("feed", cat.FeedURL))
	stats.FeedsSeen++

	if _, err := r.archive.EnsureDir(cat.Partition); err != nil {
		log.Warn("archive directory unavailable", zap.Error(err))
	}

	feed, err := r.feeds.Parse(ctx, cat.FeedURL)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		stats.FeedsSkipped++
		log.Warn("feed unavailable, skipping", zap.Error(err))
		return nil
	}
	if feed.Malformed {
		stats.FeedsSkipped++
		log.Warn("feed is malformed, skipping", zap.Error(ErrMalformedFeed))
		return nil
	}
	stats.ItemsFound += len(feed.Items)
	log.Info("found items",
		zap.Int("items", len(feed.Items)),
		zap.String("title", feed.Title),
		zap.String("subtitle", feed.Subtitle),
	)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for _, it := range feed.Items {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			st, err := r.processItem(gctx, log, cat, it)
			mu.Lock()
			stats.add(st)
			mu.Unlock()
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// processItem runs one item to a terminal state. A non-nil error means the
// whole run must stop.
func (r *Runner) processItem(ctx context.Context, log *zap.Logger, cat Category, it Item) (itemState, error) {
	if err := ctx.Err(); err != nil {
		return stateCanceled, err
	}
	if it.Link == "" {
		log.Warn("item has no link, skipping", zap.String("title", it.Title))
		return stateFailed, nil
	}
	log = log.With(zap.String("link", it.Link))

	seen, err := r.store.Exists(ctx, it.Link)
	if err != nil {
		return r.storageFailure(ctx, log, err)
	}
	if seen {
		log.Debug("already ingested")
		return stateSkipped, nil
	}

	if err := r.store.EnsureTable(ctx, cat.Partition); err != nil {
		return r.storageFailure(ctx, log, err)
	}

	log.Debug("pulling")
	body, err := r.fetcher.Fetch(ctx, it.Link)
	if err != nil {
		if ctx.Err() != nil {
			return stateCanceled, ctx.Err()
		}
		log.Warn("fetch failed, skipping item", zap.Error(err))
		return stateFailed, nil
	}
	now := r.now()
	article := &Article{
		Link:         it.Link,
		DatePulled:   now.UTC(),
		Title:        it.Title,
		Published:    it.Published,
		Summary:      ExtractText(it.Summary),
		Language:     it.Language,
		Contributors: encodeContributors(it.Contributors),
		Publisher:    it.Publisher,
		StrippedText: ExtractText(string(body)),
	}

	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	if err := r.store.Persist(ctx, cat.Partition, article, now); err != nil {
		if errors.Is(err, ErrDuplicateLink) {
			log.Debug("ingested by another worker")
			return stateSkipped, nil
		}
		return r.storageFailure(ctx, log, err)
	}

	path, err := r.archive.Write(cat.Partition, article, body, now)
	if err != nil {
		log.Warn("archive write failed, metadata kept", zap.Error(err))
		return stateIngestedNoArchive, nil
	}
	log.Debug("ingested", zap.String("archive", path))
	return stateIngested, nil
}

func (r *Runner) storageFailure(ctx context.Context, log *zap.Logger, err error) (itemState, error) {
	if ctx.Err() != nil {
		return stateCanceled, ctx.Err()
	}
	if IsSystemic(err) {
		log.Error("store failure, aborting run", zap.Error(err))
		return stateFailed, err
	}
	log.Warn("store write failed, skipping item", zap.Error(err))
	return stateFailed, nil
}

func encodeContributors(names []string) string {
	if len(names) == 0 {
		return ""
	}
	b, err := json.Marshal(names)
	if err != nil {
		return strings.Join(names, ", ")
	}
	return string(b)
}
