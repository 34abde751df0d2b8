package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ppiankov/credence/internal/cache"
	"github.com/ppiankov/credence/internal/extract"
	"github.com/ppiankov/credence/internal/fetch"
	"github.com/ppiankov/credence/internal/llm"
	"github.com/ppiankov/credence/internal/logger"
	"github.com/ppiankov/credence/internal/metrics"
	"github.com/ppiankov/credence/internal/model"
	"github.com/ppiankov/credence/internal/normalize"
	"github.com/ppiankov/credence/internal/ocr"
	"github.com/ppiankov/credence/internal/ratelimit"
	"github.com/ppiankov/credence/internal/search"
	"github.com/ppiankov/credence/internal/synth"
	"github.com/redis/go-redis/v9"
)

// Build wires a pipeline from configuration. The returned close function
// stops background work and releases connections; call it once the
// pipeline is no longer used. m may be nil.
func Build(ctx context.Context, cfg model.Config, m *metrics.Metrics, log logger.Logger) (*Pipeline, func(), error) {
	log = logger.OrNop(log)
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	bgCtx, stopBackground := context.WithCancel(context.WithoutCancel(ctx))
	var closers []func() error
	closeAll := func() {
		stopBackground()
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				log.Warn("close failed", logger.Error(err))
			}
		}
	}

	var rdb *redis.Client
	if cfg.RateLimit.Backend == "redis" || (cfg.Cache.Enabled && cfg.Cache.Backend == "redis") {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
	}

	// Admission
	var admitter ratelimit.Admitter
	limits := ratelimit.ConfigFrom(cfg.RateLimit)
	if cfg.RateLimit.Backend == "redis" {
		admitter = ratelimit.NewRedisWindow(rdb, limits)
	} else {
		window := ratelimit.NewSlidingWindow(limits)
		go window.Run(bgCtx)
		admitter = window
	}

	// Caches. Derived page and OCR text shares the report store under its
	// own key space.
	var store cache.Cache
	var reports *cache.ReportCache
	if cfg.Cache.Enabled {
		ttl := cfg.Cache.ReportTTL()
		switch cfg.Cache.Backend {
		case "redis":
			store = cache.NewRedisCache(rdb, ttl)
		case "layered":
			store = cache.NewLayeredCache(ttl, cacheDir(cfg.Cache.Dir))
		default:
			store = cache.NewMemoryCache(ttl, 10*time.Minute)
		}
		reports = cache.NewReportCache(store, ttl)
	}

	// Normalization
	fetcher := fetch.NewFetcher(fetch.Options{
		Timeout:       time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second,
		UserAgent:     cfg.HTTP.UserAgent,
		MaxBytes:      cfg.HTTP.MaxBodyBytes,
		InsecureTLS:   cfg.HTTP.InsecureTLS,
		HTTPProxy:     cfg.HTTP.HTTPProxy,
		HTTPSProxy:    cfg.HTTP.HTTPSProxy,
		NoProxy:       cfg.HTTP.NoProxy,
		RespectRobots: cfg.HTTP.RespectRobots,
	})
	var decoder ocr.Decoder
	tesseract := ocr.NewTesseractDecoder(cfg.OCR.Binary, cfg.OCR.Languages, time.Duration(cfg.OCR.TimeoutSeconds)*time.Second)
	if tesseract.Available() {
		decoder = tesseract
	} else {
		log.Warn("tesseract not found, image submissions are disabled", logger.String("binary", tesseract.Binary))
	}
	normalizer := normalize.New(normalize.Options{
		MaxChars:      cfg.Limits.MaxChars,
		MaxURLLength:  cfg.Limits.MaxURLLength,
		MaxImageBytes: cfg.Limits.MaxImageBytes,
		FetchTimeout:  time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second,
		DerivedTTL:    cfg.Cache.DerivedTTL(),
	}, fetcher, decoder, store, log)

	// Oracle
	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM, cfg.HTTP))
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("create llm provider: %w", err)
	}
	if provider == nil {
		closeAll()
		return nil, nil, errors.New("an llm provider is required")
	}
	oracleQuota := ratelimit.NewQuotaLimiter(cfg.LLM.CallsPerSecond, 1)
	oracle := llm.NewRetrying(provider, cfg.LLM.MaxAttempts, oracleQuota, log).WithObserver(m)
	oracleTimeout := time.Duration(cfg.LLM.TimeoutSeconds) * time.Second

	// Search
	searchTimeout := time.Duration(cfg.Search.TimeoutSeconds) * time.Second
	google, err := search.NewGoogleProvider(ctx, search.GoogleConfig{
		APIKey:     cfg.Search.APIKey,
		EngineID:   cfg.Search.EngineID,
		BaseURL:    cfg.Search.BaseURL,
		Timeout:    searchTimeout,
		HTTPProxy:  cfg.HTTP.HTTPProxy,
		HTTPSProxy: cfg.HTTP.HTTPSProxy,
		NoProxy:    cfg.HTTP.NoProxy,
	})
	if err != nil {
		closeAll()
		return nil, nil, fmt.Errorf("create search provider: %w", err)
	}
	searchQuota := ratelimit.NewQuotaLimiter(cfg.Search.QueriesPerSecond, cfg.Search.Burst)
	domains := model.NewDomainSets(cfg.Domains.Official, cfg.Domains.News)
	aggregator := search.NewAggregator(google, domains, searchQuota, search.Options{
		MaxResults:   cfg.Search.MaxResults,
		Recency:      cfg.Search.Recency(),
		GroupTimeout: searchTimeout,
		MaxAttempts:  cfg.Search.MaxAttempts,
		Country:      cfg.Search.Country,
		Language:     cfg.Search.Language,
	}, log).WithObserver(m)

	p := New(Components{
		Admitter:    admitter,
		Normalizer:  normalizer,
		Reports:     reports,
		Extractor:   extract.NewSourceExtractor(oracle, oracleTimeout, log),
		Keywords:    extract.NewKeywordDeriver(oracle, oracleTimeout, log),
		Gatherer:    aggregator,
		Synthesizer: synth.NewSynthesizer(oracle, model.OracleInfo{Provider: provider.Name(), Model: cfg.LLM.Model}, oracleTimeout, log),
		Metrics:     m,
	}, Options{
		RequestTimeout:    time.Duration(cfg.Pipeline.RequestTimeoutSeconds) * time.Second,
		ExtractionFailure: cfg.Pipeline.ExtractionFailure,
	}, log)

	log.Info("pipeline ready",
		logger.String("llm", provider.Name()),
		logger.String("rate_limit", cfg.RateLimit.Backend),
		logger.Bool("cache", cfg.Cache.Enabled),
		logger.Bool("ocr", decoder != nil))
	return p, closeAll, nil
}

func cacheDir(dir string) string {
	if dir != "" {
		return dir
	}
	if base, err := os.UserCacheDir(); err == nil {
		return filepath.Join(base, "credence")
	}
	return filepath.Join(os.TempDir(), "credence-cache")
}
