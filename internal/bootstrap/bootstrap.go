// Package bootstrap assembles the runtime from configuration. The API
// server and the CLI both start from Build so they share one wiring.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"paxth/internal/artifacts"
	"paxth/internal/catalog"
	"paxth/internal/config"
	"paxth/internal/contentfilter"
	"paxth/internal/extract"
	"paxth/internal/llm"
	"paxth/internal/metrics"
	"paxth/internal/migrate"
	"paxth/internal/model"
	"paxth/internal/pipeline"
	"paxth/internal/scraper"
	"paxth/internal/store"
)

// App is the assembled runtime. Store and Redis are nil when the
// corresponding connection is not configured.
type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	Catalog      *catalog.Catalog
	Filter       *contentfilter.Filter
	Artifacts    artifacts.Store
	Orchestrator *scraper.Orchestrator
	Extractor    *llm.Extractor
	Pipeline     *pipeline.Pipeline
	Store        *store.Store
	Redis        *redis.Client
}

// Options adjusts Build for callers that do not need every backing service.
type Options struct {
	// SkipDatabase leaves Store nil even when a DSN is configured.
	SkipDatabase bool
}

// Build wires every component described by cfg. Migrations run before the
// store is opened when a database DSN is set.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: nil config")
	}
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{Config: cfg, Logger: logger}

	cat, err := loadCatalog(cfg.Catalog.Path)
	if err != nil {
		return nil, err
	}
	app.Catalog = cat

	filter, err := contentfilter.New(cfg.Filter.Patterns, cfg.Filter.KeepTextLen)
	if err != nil {
		return nil, fmt.Errorf("content filter: %w", err)
	}
	app.Filter = filter.WithMinViableSize(cfg.Filter.MinViableSize)

	if cfg.Redis.URL != "" {
		opt, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		app.Redis = redis.NewClient(opt)
	}

	if app.Artifacts, err = artifactStore(cfg.Artifacts, app.Redis); err != nil {
		app.Close()
		return nil, err
	}

	if app.Orchestrator, err = NewOrchestrator(cfg, app.Filter); err != nil {
		app.Close()
		return nil, err
	}

	app.Extractor = llm.NewExtractor(cfg.LLM)
	app.Pipeline = pipeline.New(app.Orchestrator, extract.NewCoordinator(app.Extractor), cat, pipeline.Options{
		ExtractorReady: app.Extractor.Configured,
	})

	if cfg.Database.DSN != "" && !opts.SkipDatabase {
		if err := migrate.Run(cfg.Database.DSN); err != nil {
			app.Close()
			return nil, fmt.Errorf("migrations failed: %w", err)
		}
		db, err := sql.Open("pgx", cfg.Database.DSN)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("open db: %w", err)
		}
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		app.Store = store.New(db)
	}

	logger.Info("runtime assembled",
		"categories", len(cat.ListCategories()),
		"chain", app.Orchestrator.Chain(),
		"artifacts", cfg.Artifacts.Backend,
		"database", app.Store != nil,
		"redis", app.Redis != nil,
	)
	return app, nil
}

// NewOrchestrator builds the four acquisition variants from cfg and counts
// every attempt in the metrics registry.
func NewOrchestrator(cfg *config.Config, filter *contentfilter.Filter) (*scraper.Orchestrator, error) {
	timeout := cfg.ScrapeTimeout()

	httpStrategy := scraper.NewHTTPStrategy(scraper.HTTPOptions{
		Timeout:       timeout,
		MaxRetries:    cfg.Scraper.MaxRetries,
		BackoffBase:   time.Duration(cfg.Scraper.BackoffBaseMs) * time.Millisecond,
		UserAgents:    cfg.Scraper.UserAgents,
		RespectRobots: cfg.Scraper.RespectRobots,
	}, filter)

	viewports := make([]scraper.Viewport, 0, len(cfg.Browser.Viewports))
	for _, vp := range cfg.Browser.Viewports {
		viewports = append(viewports, scraper.Viewport{Width: vp.Width, Height: vp.Height})
	}
	browser, err := scraper.NewBrowserStrategy(scraper.BrowserOptions{
		Enabled:              cfg.Browser.Enabled,
		ControlURL:           cfg.Browser.ControlURL,
		Bin:                  cfg.Browser.Bin,
		NavTimeout:           timeout,
		Settle:               time.Duration(cfg.Browser.SettleMs) * time.Millisecond,
		MaxClicksPerSelector: cfg.Browser.MaxClicksPerSelector,
		MaxClicksPerText:     cfg.Browser.MaxClicksPerText,
		MaxScrollSteps:       cfg.Browser.MaxScrollSteps,
		Viewports:            viewports,
		UserAgents:           cfg.Scraper.UserAgents,
	}, filter)
	if err != nil {
		return nil, fmt.Errorf("browser strategy: %w", err)
	}

	crawl4ai := scraper.NewCrawl4AIStrategy(scraper.Crawl4AIOptions{
		Enabled:  cfg.Crawl4AI.Enabled,
		BaseURL:  cfg.Crawl4AI.BaseURL,
		APIToken: cfg.Crawl4AI.APIToken,
		Timeout:  timeout,
	}, filter)

	firecrawl := scraper.NewFirecrawlStrategy(scraper.FirecrawlOptions{
		APIKey:     cfg.Firecrawl.APIKey,
		BaseURL:    cfg.Firecrawl.BaseURL,
		Timeout:    timeout,
		MaxRetries: cfg.Scraper.MaxRetries,
	}, filter)

	o := scraper.NewOrchestrator(scraper.Set{
		HTTP:      httpStrategy,
		Browser:   browser,
		Crawl4AI:  crawl4ai,
		Firecrawl: firecrawl,
	})
	o.Observe(func(strategy string, res model.ScrapeResult) {
		metrics.RecordScrapeAttempt(strategy, res.Success)
	})
	return o, nil
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	cat, err := catalog.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	return cat, nil
}

func artifactStore(cfg config.ArtifactsConfig, rdb *redis.Client) (artifacts.Store, error) {
	switch cfg.Backend {
	case "", "file":
		fs, err := artifacts.NewFileStore(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("artifacts dir: %w", err)
		}
		return fs, nil
	case "redis":
		if rdb == nil {
			return nil, errors.New("artifacts backend redis requires redis.url")
		}
		ttl := time.Duration(cfg.TTLHours) * time.Hour
		return artifacts.NewRedisStore(rdb, cfg.RedisPrefix, ttl), nil
	case "memory":
		return artifacts.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown artifacts backend: %s", cfg.Backend)
	}
}

// Close releases the database pool and the redis client.
func (a *App) Close() error {
	var errs []error
	if a.Store != nil && a.Store.DB != nil {
		errs = append(errs, a.Store.DB.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	return errors.Join(errs...)
}
