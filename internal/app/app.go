// Package app initializes and holds long-lived crawler services, acting as a
// dependency injection container for the CLI.
package app

import (
	"context"
	"fmt"
	"time"

	gcsclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/prepcart/brochure-crawler/internal/assembler"
	"github.com/prepcart/brochure-crawler/internal/clock/system"
	"github.com/prepcart/brochure-crawler/internal/collector"
	"github.com/prepcart/brochure-crawler/internal/config"
	"github.com/prepcart/brochure-crawler/internal/crawler"
	"github.com/prepcart/brochure-crawler/internal/egress"
	"github.com/prepcart/brochure-crawler/internal/egress/webshare"
	collyfetcher "github.com/prepcart/brochure-crawler/internal/fetcher/colly"
	"github.com/prepcart/brochure-crawler/internal/hash/sha256"
	"github.com/prepcart/brochure-crawler/internal/id/uuid"
	"github.com/prepcart/brochure-crawler/internal/metrics"
	"github.com/prepcart/brochure-crawler/internal/pipeline"
	"github.com/prepcart/brochure-crawler/internal/policy/politeness"
	pubsubpublisher "github.com/prepcart/brochure-crawler/internal/publisher/pubsub"
	"github.com/prepcart/brochure-crawler/internal/retailers"
	"github.com/prepcart/brochure-crawler/internal/secrets"
	"github.com/prepcart/brochure-crawler/internal/storage"
	firestorestore "github.com/prepcart/brochure-crawler/internal/storage/firestore"
	"github.com/prepcart/brochure-crawler/internal/storage/gcs"
	"github.com/prepcart/brochure-crawler/internal/storage/local"
	"github.com/prepcart/brochure-crawler/internal/storage/memory"
	"github.com/prepcart/brochure-crawler/internal/storage/postgres"
)

const shutdownTimeout = 10 * time.Second

// App holds the shared services of one CLI invocation.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	clock     crawler.Clock
	records   crawler.RecordStore
	blobs     crawler.BlobStore
	publisher crawler.Publisher
	fetcher   crawler.Fetcher
	pacer     crawler.Pacer
	retailers *retailers.Client
	pipeline  *pipeline.Pipeline
	metrics   *metrics.Server
	closers   []func() error
}

// Option overrides a service New would otherwise build from configuration.
type Option func(*App)

// WithFetcher replaces the colly fetcher and skips egress resolution.
func WithFetcher(f crawler.Fetcher) Option {
	return func(a *App) {
		a.fetcher = f
	}
}

// WithPacer replaces the politeness pacer.
func WithPacer(p crawler.Pacer) Option {
	return func(a *App) {
		a.pacer = p
	}
}

// WithClock replaces the system clock.
func WithClock(c crawler.Clock) Option {
	return func(a *App) {
		a.clock = c
	}
}

// New builds every service named by cfg. It fails fast; anything already
// opened is closed before the error is returned.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()
	if a.clock == nil {
		a.clock = system.New()
	}

	metrics.Init()
	if cfg.Metrics.Addr != "" {
		srv, err := metrics.Start(cfg.Metrics.Addr, logger.Named("metrics"))
		if err != nil {
			return nil, err
		}
		a.metrics = srv
	}

	if a.records, err = a.buildRecords(ctx); err != nil {
		return nil, err
	}
	if a.blobs, err = a.buildBlobs(ctx); err != nil {
		return nil, err
	}
	if a.publisher, err = a.buildPublisher(ctx); err != nil {
		return nil, err
	}
	if a.fetcher == nil {
		if a.fetcher, err = a.buildFetcher(ctx); err != nil {
			return nil, err
		}
	}
	if a.pacer == nil {
		pacer, err := politeness.New(politeness.Config{
			DelayMin: cfg.Crawl.DelayMin,
			DelayMax: cfg.Crawl.DelayMax,
			RPS:      cfg.Crawl.RequestsPerSecond,
		})
		if err != nil {
			return nil, fmt.Errorf("init politeness: %w", err)
		}
		a.pacer = pacer
	}

	coll, err := collector.New(a.fetcher, a.pacer, crawler.NewExponentialRetryPolicy(), collector.Policy{
		MaxConsecutiveErrors: cfg.Crawl.MaxConsecutiveErrors,
		MaxPageIDs:           cfg.Crawl.MaxPageIDs,
		MinAssetBytes:        cfg.Crawl.MinAssetBytes,
	}, logger.Named("collector"))
	if err != nil {
		return nil, fmt.Errorf("init collector: %w", err)
	}
	a.retailers = retailers.NewClient(a.fetcher, a.pacer, nil, logger.Named("retailers"))

	pipelineCfg := pipeline.Config{
		Concurrency:     cfg.Crawl.Concurrency,
		BrochureTimeout: cfg.Crawl.BrochureTimeout,
		BlobPrefix:      cfg.Blobs.Prefix,
	}
	if a.publisher != nil {
		pipelineCfg.Topic = cfg.Notify.Topic
	}
	a.pipeline, err = pipeline.New(pipelineCfg, pipeline.Deps{
		Collector: coll,
		Assembler: assembler.New(logger.Named("assembler")),
		Records:   a.records,
		Blobs:     a.blobs,
		Publisher: a.publisher,
		Hasher:    sha256.New(),
		Clock:     a.clock,
		IDs:       uuid.New(),
	}, logger.Named("pipeline"))
	if err != nil {
		return nil, fmt.Errorf("init pipeline: %w", err)
	}

	logger.Info("crawler services initialized",
		zap.String("records", cfg.Records.Provider),
		zap.String("blobs", cfg.Blobs.Provider),
		zap.String("notify", cfg.Notify.Provider),
		zap.String("egress", cfg.Egress.Provider),
	)
	return a, nil
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config {
	return a.cfg
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Records exposes the crawl record store.
func (a *App) Records() crawler.RecordStore {
	return a.records
}

// RunStore crawls one retailer definition end to end.
func (a *App) RunStore(ctx context.Context, def retailers.Definition) (crawler.BatchSummary, error) {
	return a.pipeline.Process(ctx, def.Resolver(a.retailers, a.clock), def.Store())
}

// Close shuts down every service in reverse order of construction.
func (a *App) Close() {
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.metrics.Shutdown(ctx); err != nil {
			a.logger.Warn("metrics shutdown failed", zap.Error(err))
		}
		cancel()
		a.metrics = nil
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("closing service failed", zap.Error(err))
		}
	}
	a.closers = nil
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

func (a *App) buildRecords(ctx context.Context) (crawler.RecordStore, error) {
	cfg := a.cfg.Records
	switch cfg.Provider {
	case "memory":
		return memory.NewRecordStore(), nil
	case "firestore":
		fsCfg := firestorestore.Config{ProjectID: cfg.Firestore.ProjectID, Collection: cfg.Firestore.Collection}
		client, err := firestorestore.NewClient(ctx, fsCfg)
		if err != nil {
			return nil, err
		}
		a.onClose(client.Close)
		return firestorestore.New(client, fsCfg)
	case "postgres":
		store, err := postgres.NewRecordStore(ctx, postgres.RecordStoreConfig{
			DSN:      cfg.Postgres.DSN,
			Table:    cfg.Postgres.Table,
			MaxConns: cfg.Postgres.MaxConns,
		})
		if err != nil {
			return nil, err
		}
		a.onClose(func() error {
			store.Close()
			return nil
		})
		if cfg.Postgres.EnsureSchema {
			if err := store.EnsureSchema(ctx); err != nil {
				return nil, err
			}
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown records provider %q", cfg.Provider)
	}
}

func (a *App) buildBlobs(ctx context.Context) (crawler.BlobStore, error) {
	cfg := a.cfg.Blobs
	var primary crawler.BlobStore
	switch cfg.Provider {
	case "memory":
		primary = memory.NewBlobStore()
	case "local":
		store, err := local.New(local.Config{BaseDir: cfg.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("init local blobs: %w", err)
		}
		primary = store
	case "gcs":
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create storage client: %w", err)
		}
		a.onClose(client.Close)
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.Bucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs blobs: %w", err)
		}
		primary = store
	default:
		return nil, fmt.Errorf("unknown blobs provider %q", cfg.Provider)
	}

	if cfg.MirrorDir == "" {
		return primary, nil
	}
	mirror, err := local.New(local.Config{BaseDir: cfg.MirrorDir})
	if err != nil {
		return nil, fmt.Errorf("init blob mirror: %w", err)
	}
	return storage.NewMirror(primary, mirror, a.logger.Named("mirror"))
}

func (a *App) buildPublisher(ctx context.Context) (crawler.Publisher, error) {
	cfg := a.cfg.Notify
	switch cfg.Provider {
	case "none":
		return nil, nil
	case "pubsub":
		client, err := pubsubpublisher.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, err
		}
		a.onClose(client.Close)
		pub := pubsubpublisher.New(client, map[string]string{"source": "brochure-crawler"})
		a.onClose(func() error {
			pub.Stop()
			return nil
		})
		return pub, nil
	default:
		return nil, fmt.Errorf("unknown notify provider %q", cfg.Provider)
	}
}

func (a *App) buildSecrets(ctx context.Context) (secrets.Provider, error) {
	cfg := a.cfg.Secrets
	switch cfg.Provider {
	case "env":
		return secrets.NewEnv(cfg.EnvPrefix), nil
	case "gsm":
		gsm, err := secrets.NewGSM(ctx, cfg.ProjectID)
		if err != nil {
			return nil, err
		}
		a.onClose(gsm.Close)
		return gsm, nil
	default:
		return nil, fmt.Errorf("unknown secrets provider %q", cfg.Provider)
	}
}

func (a *App) buildFetcher(ctx context.Context) (crawler.Fetcher, error) {
	proxy, err := a.buildProxy(ctx)
	if err != nil {
		return nil, err
	}
	return collyfetcher.New(collyfetcher.Config{
		UserAgent:   a.cfg.Crawl.UserAgent,
		Timeout:     a.cfg.Crawl.FetchTimeout,
		MaxBodySize: a.cfg.Crawl.MaxBodyBytes,
		Proxy:       proxy,
	}, a.logger.Named("fetcher")), nil
}

// buildProxy resolves the egress pool once per run. An empty pool is fatal.
func (a *App) buildProxy(ctx context.Context) (collyfetcher.ProxyFunc, error) {
	cfg := a.cfg.Egress
	var provider egress.Provider
	switch cfg.Provider {
	case "none", "":
		return nil, nil
	case "static":
		static, err := egress.NewStatic(cfg.StaticProxies, cfg.CountryCode)
		if err != nil {
			return nil, err
		}
		provider = static
	case "webshare":
		sp, err := a.buildSecrets(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", crawler.ErrEgressInit, err)
		}
		provider = webshare.New(webshare.Config{
			BaseURL: cfg.WebshareBaseURL,
			Mode:    cfg.WebshareMode,
			Timeout: a.cfg.Crawl.FetchTimeout,
		}, func(ctx context.Context) (string, error) {
			return sp.Secret(ctx, cfg.TokenSecret)
		}, a.logger.Named("webshare"))
	default:
		return nil, fmt.Errorf("%w: unknown egress provider %q", crawler.ErrEgressInit, cfg.Provider)
	}

	fn, n, err := egress.Resolve(ctx, provider, cfg.CountryCode, egress.Rotation(cfg.Rotation))
	if err != nil {
		return nil, err
	}
	a.logger.Info("egress identities resolved",
		zap.String("provider", cfg.Provider),
		zap.String("rotation", cfg.Rotation),
		zap.Int("identities", n),
	)
	return fn, nil
}
