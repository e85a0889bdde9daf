package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/courtcrawl/internal/cache"
	"github.com/ppiankov/courtcrawl/internal/discover"
	"github.com/ppiankov/courtcrawl/internal/extract"
	"github.com/ppiankov/courtcrawl/internal/model"
	"github.com/ppiankov/courtcrawl/internal/util"
	"github.com/ppiankov/courtcrawl/internal/worker"
)

// ErrDisallowed is returned when robots.txt forbids the search endpoint
var ErrDisallowed = errors.New("disallowed by robots.txt")

// Pipeline wires the fetcher, oracle, extractors and cache into the
// discovery and crawl operations.
type Pipeline struct {
	cfg       *model.Config
	fetcher   *Fetcher
	limiter   *worker.Limiter
	oracle    *SearchOracle
	search    *extract.SearchExtractor
	details   *extract.CaseExtractor
	pageCache cache.Cache
	robots    *util.RobotsChecker
	logger    *zap.Logger
	now       func() time.Time
}

// NewPipeline creates a new pipeline with the given configuration.
// A nil logger disables logging.
func NewPipeline(cfg *model.Config, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}

	limiter := worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize)
	fetcher := NewFetcherFromConfig(cfg.HTTP).WithWaiter(limiter)

	return &Pipeline{
		cfg:       cfg,
		fetcher:   fetcher,
		limiter:   limiter,
		oracle:    NewSearchOracle(fetcher, cfg.SearchURL(), cfg.Site.FormField, cfg.Site.ExistsMarker),
		search:    extract.NewSearchExtractor(),
		details:   extract.NewCaseExtractor(),
		pageCache: cache.New(cfg.Cache),
		robots:    util.NewRobotsChecker(cfg.HTTP.UserAgent, cfg.HTTP.Timeout),
		logger:    logger,
		now:       time.Now,
	}
}

// WithCache replaces the case page cache
func (p *Pipeline) WithCache(c cache.Cache) *Pipeline {
	p.pageCache = c
	return p
}

// DiscoveryConfig converts the discovery section of the config
func DiscoveryConfig(cfg model.DiscoveryConfig) discover.Config {
	chained := make([]discover.Category, len(cfg.Chained))
	for i, c := range cfg.Chained {
		chained[i] = discover.Category(c)
	}
	return discover.Config{
		Chained:     chained,
		Independent: discover.Category(cfg.Independent),
		FirstSerial: cfg.FirstSerial,
		Ceiling:     cfg.Ceiling,
	}
}

// Preflight checks robots.txt for the search endpoint and applies its
// crawl delay to the rate limiter. It is a no-op when robots are ignored.
func (p *Pipeline) Preflight(ctx context.Context) error {
	if !p.cfg.Site.RespectRobots {
		return nil
	}

	searchURL := p.cfg.SearchURL()
	allowed, delay, err := p.robots.CanFetch(ctx, searchURL)
	if err != nil {
		p.logger.Warn("robots.txt unavailable, continuing", zap.Error(err))
	}
	if !allowed {
		return fmt.Errorf("%w: %s", ErrDisallowed, searchURL)
	}

	if delay > 0 {
		parsed, err := url.Parse(searchURL)
		if err != nil {
			return fmt.Errorf("parse search url: %w", err)
		}
		if p.limiter.ApplyCrawlDelay(parsed.Host, delay) {
			p.logger.Info("applied robots.txt crawl delay", zap.String("host", parsed.Host), zap.Duration("delay", delay))
		}
	}
	return nil
}

// Discover finds the serial range of every category for year
func (p *Pipeline) Discover(ctx context.Context, year int) (*discover.Ranges, error) {
	return p.discover(ctx, year, p.logger)
}

func (p *Pipeline) discover(ctx context.Context, year int, logger *zap.Logger) (*discover.Ranges, error) {
	d := discover.NewDiscoverer(p.oracle, DiscoveryConfig(p.cfg.Discovery), logger)
	return d.Discover(ctx, year)
}

// LookupCase searches one case number and extracts a record for every
// defendant listed in the results. A case number with no results yields
// no records and no error.
func (p *Pipeline) LookupCase(ctx context.Context, key discover.CaseKey) ([]model.CaseRecord, error) {
	searchURL := p.cfg.SearchURL()
	result, err := p.fetcher.PostFormWithRetry(ctx, searchURL, url.Values{p.cfg.Site.FormField: {key.String()}})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", key, err)
	}

	hits, err := p.search.Extract(result.HTML, result.FinalURL)
	if err != nil {
		return nil, fmt.Errorf("extract search results %s: %w", key, err)
	}

	records := make([]model.CaseRecord, 0, len(hits))
	for _, hit := range hits {
		html, err := p.detailsPage(ctx, hit.DetailsURL)
		if err != nil {
			return nil, fmt.Errorf("details %s: %w", key, err)
		}

		record, err := p.details.Extract(html, hit.DetailsURL, hit)
		if err != nil {
			return nil, fmt.Errorf("extract details %s: %w", key, err)
		}
		record.ScrapedAt = p.now().UTC()
		records = append(records, *record)
	}

	return records, nil
}

// detailsPage fetches a case page, consulting the page cache first
func (p *Pipeline) detailsPage(ctx context.Context, rawURL string) (string, error) {
	key := cache.CacheKey(http.MethodGet, rawURL)
	if data, ok := p.pageCache.Get(key); ok {
		p.logger.Debug("cache hit", zap.String("url", rawURL))
		return string(data), nil
	}

	result, err := p.fetcher.FetchWithRetry(ctx, rawURL)
	if err != nil {
		return "", err
	}
	p.logger.Debug("fetched case page",
		zap.String("url", result.FinalURL),
		zap.Int("status", result.Meta.StatusCode),
		zap.String("content_type", result.Meta.ContentType),
	)

	if err := p.pageCache.Set(key, []byte(result.HTML), 0); err != nil {
		p.logger.Warn("cache write failed", zap.String("url", rawURL), zap.Error(err))
	}
	return result.HTML, nil
}

// CrawlResult summarizes one crawl
type CrawlResult struct {
	RunID   string           `json:"run_id"`
	Ranges  *discover.Ranges `json:"ranges"`
	Summary worker.Summary   `json:"summary"`
	Elapsed time.Duration    `json:"elapsed"`
}

// Crawl discovers the ranges for year and looks up every case number in
// them with the worker pool. Each record is passed to sink. A failed lookup
// is logged and counted but does not stop the crawl; a sink error does.
func (p *Pipeline) Crawl(ctx context.Context, year int, sink func(model.CaseRecord) error) (*CrawlResult, error) {
	start := p.now()
	runID := uuid.NewString()
	logger := p.logger.With(zap.String("run_id", runID), zap.Int("year", year))

	if err := p.Preflight(ctx); err != nil {
		return nil, err
	}

	logger.Info("discovering ranges")
	ranges, err := p.discover(ctx, year, logger)
	if err != nil {
		return nil, fmt.Errorf("discover: %w", err)
	}
	logger.Info("ranges discovered", zap.Int("cases", ranges.Total()))

	batch := worker.NewBatchProcessor(p, p.cfg.Concurrency.Workers, logger)
	keys := make(chan discover.CaseKey)

	var summary worker.Summary
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(keys)
		for _, key := range ranges.Keys() {
			select {
			case keys <- key:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})

	g.Go(func() error {
		var err error
		summary, err = batch.ProcessStream(gctx, keys, func(r *worker.LookupResult) error {
			for _, rec := range r.Records {
				if err := sink(rec); err != nil {
					return err
				}
			}
			return nil
		})
		return err
	})

	err = g.Wait()

	result := &CrawlResult{
		RunID:   runID,
		Ranges:  ranges,
		Summary: summary,
		Elapsed: p.now().Sub(start),
	}
	logger.Info("crawl finished",
		zap.Int("keys", summary.Keys),
		zap.Int("records", summary.Records),
		zap.Int("failed", summary.Failed),
		zap.Duration("elapsed", result.Elapsed),
	)

	if err != nil {
		return result, fmt.Errorf("crawl: %w", err)
	}
	return result, nil
}
