package model

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// Config is the complete credence configuration
type Config struct {
	Limits    LimitsConfig    `yaml:"limits" mapstructure:"limits"`
	RateLimit RateLimitConfig `yaml:"rate_limit" mapstructure:"rate_limit"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Redis     RedisConfig     `yaml:"redis" mapstructure:"redis"`
	LLM       LLMConfig       `yaml:"llm" mapstructure:"llm"`
	Search    SearchConfig    `yaml:"search" mapstructure:"search"`
	Domains   DomainsConfig   `yaml:"domains" mapstructure:"domains"`
	HTTP      HTTPConfig      `yaml:"http" mapstructure:"http"`
	OCR       OCRConfig       `yaml:"ocr" mapstructure:"ocr"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// LimitsConfig bounds accepted input
type LimitsConfig struct {
	MaxChars      int `yaml:"max_chars" mapstructure:"max_chars"`             // Normalized text bound (runes)
	MaxURLLength  int `yaml:"max_url_length" mapstructure:"max_url_length"`   // Longest accepted URL
	MaxImageBytes int `yaml:"max_image_bytes" mapstructure:"max_image_bytes"` // Largest accepted image
}

// RateLimitConfig configures per-actor admission
type RateLimitConfig struct {
	Backend           string         `yaml:"backend" mapstructure:"backend"`                         // memory or redis
	MaxRequests       int            `yaml:"max_requests" mapstructure:"max_requests"`               // Per actor per window
	WindowSeconds     int            `yaml:"window_seconds" mapstructure:"window_seconds"`           // Sliding window length
	Operations        map[string]int `yaml:"operations" mapstructure:"operations"`                   // Per input kind overrides
	VIPActors         []string       `yaml:"vip_actors" mapstructure:"vip_actors"`                   // Actors with raised limits
	VIPMultiplier     int            `yaml:"vip_multiplier" mapstructure:"vip_multiplier"`           // Limit multiplier for VIP actors
	GlobalMaxRequests int            `yaml:"global_max_requests" mapstructure:"global_max_requests"` // Across all actors, 0 disables
	IdleWindows       int            `yaml:"idle_windows" mapstructure:"idle_windows"`               // Windows of inactivity before an actor is swept
}

// Window returns the configured window as a duration.
func (c RateLimitConfig) Window() time.Duration {
	return time.Duration(c.WindowSeconds) * time.Second
}

// CacheConfig configures report and derived-text caching
type CacheConfig struct {
	Enabled           bool   `yaml:"enabled" mapstructure:"enabled"`
	Backend           string `yaml:"backend" mapstructure:"backend"` // memory, layered, or redis
	Dir               string `yaml:"dir" mapstructure:"dir"`         // Disk layer location (layered only)
	ReportTTLMinutes  int    `yaml:"report_ttl_minutes" mapstructure:"report_ttl_minutes"`
	DerivedTTLMinutes int    `yaml:"derived_ttl_minutes" mapstructure:"derived_ttl_minutes"` // Fetched page and OCR text
}

// ReportTTL returns the report time-to-live.
func (c CacheConfig) ReportTTL() time.Duration {
	return time.Duration(c.ReportTTLMinutes) * time.Minute
}

// DerivedTTL returns the derived-text time-to-live.
func (c CacheConfig) DerivedTTL() time.Duration {
	return time.Duration(c.DerivedTTLMinutes) * time.Minute
}

// RedisConfig locates the shared Redis instance
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password,omitempty" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

// LLMConfig configures the reasoning oracle
type LLMConfig struct {
	Provider       string  `yaml:"provider" mapstructure:"provider"` // openai, anthropic, ollama
	Model          string  `yaml:"model" mapstructure:"model"`       // Provider default when empty
	APIKey         string  `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL        string  `yaml:"base_url,omitempty" mapstructure:"base_url"`
	TimeoutSeconds int     `yaml:"timeout_seconds" mapstructure:"timeout_seconds"` // Per call
	MaxTokens      int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature    float32 `yaml:"temperature" mapstructure:"temperature"`
	MaxAttempts    int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	CallsPerSecond float64 `yaml:"calls_per_second" mapstructure:"calls_per_second"` // Outbound quota, 0 disables
}

// SearchConfig configures the web search provider
type SearchConfig struct {
	Provider         string  `yaml:"provider" mapstructure:"provider"` // google
	APIKey           string  `yaml:"api_key,omitempty" mapstructure:"api_key"`
	EngineID         string  `yaml:"engine_id" mapstructure:"engine_id"`
	BaseURL          string  `yaml:"base_url,omitempty" mapstructure:"base_url"`
	RecencyDays      int     `yaml:"recency_days" mapstructure:"recency_days"`
	MaxResults       int     `yaml:"max_results" mapstructure:"max_results"` // Per query
	TimeoutSeconds   int     `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	QueriesPerSecond float64 `yaml:"queries_per_second" mapstructure:"queries_per_second"`
	Burst            int     `yaml:"burst" mapstructure:"burst"`
	Country          string  `yaml:"country" mapstructure:"country"`
	Language         string  `yaml:"language" mapstructure:"language"`
}

// Recency returns the search window.
func (c SearchConfig) Recency() time.Duration {
	return time.Duration(c.RecencyDays) * 24 * time.Hour
}

// DomainsConfig holds the official and news allow-lists
type DomainsConfig struct {
	Official []string `yaml:"official" mapstructure:"official"`
	News     []string `yaml:"news" mapstructure:"news"`
}

// HTTPConfig configures page fetching
type HTTPConfig struct {
	TimeoutSeconds int    `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
	UserAgent      string `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes   int64  `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	InsecureTLS    bool   `yaml:"insecure_tls" mapstructure:"insecure_tls"`
	RespectRobots  bool   `yaml:"respect_robots" mapstructure:"respect_robots"`
	HTTPProxy      string `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy     string `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy        string `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// OCRConfig configures the image text decoder
type OCRConfig struct {
	Binary         string `yaml:"binary" mapstructure:"binary"`
	Languages      string `yaml:"languages" mapstructure:"languages"`
	TimeoutSeconds int    `yaml:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// Extraction failure policies.
const (
	ExtractionFail    = "fail"    // Oracle failure during extraction fails the request
	ExtractionDegrade = "degrade" // Continue with no claimed sources and a caveat
)

// PipelineConfig configures orchestration
type PipelineConfig struct {
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds" mapstructure:"request_timeout_seconds"`
	ExtractionFailure     string `yaml:"extraction_failure" mapstructure:"extraction_failure"` // fail or degrade
	Locale                string `yaml:"locale" mapstructure:"locale"`                         // en or az
}

// ServerConfig configures the HTTP adapter
type ServerConfig struct {
	Addr                   string `yaml:"addr" mapstructure:"addr"`
	ShutdownTimeoutSeconds int    `yaml:"shutdown_timeout_seconds" mapstructure:"shutdown_timeout_seconds"` // Grace period for in-flight checks

	// TrustedProxies lists the proxy IPs or CIDRs whose X-Forwarded-For is
	// believed. Empty means the peer address is the client.
	TrustedProxies []string `yaml:"trusted_proxies,omitempty" mapstructure:"trusted_proxies"`
	// TrustActorHeader accepts X-Actor-ID and actor_id as the rate-limit
	// identity. Enable only behind an upstream that authenticates them.
	TrustActorHeader bool `yaml:"trust_actor_header" mapstructure:"trust_actor_header"`
}

// LogConfig configures structured logging
type LogConfig struct {
	Level       string `yaml:"level" mapstructure:"level"`
	Development bool   `yaml:"development" mapstructure:"development"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() Config {
	return Config{
		Limits: LimitsConfig{
			MaxChars:      10000,
			MaxURLLength:  2048,
			MaxImageBytes: 5 << 20,
		},
		RateLimit: RateLimitConfig{
			Backend:       "memory",
			MaxRequests:   5,
			WindowSeconds: 60,
			Operations:    map[string]int{},
			VIPMultiplier: 5,
			IdleWindows:   10,
		},
		Cache: CacheConfig{
			Enabled:           true,
			Backend:           "memory",
			ReportTTLMinutes:  120,
			DerivedTTLMinutes: 60,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		LLM: LLMConfig{
			Provider:       "openai",
			TimeoutSeconds: 30,
			MaxTokens:      2000,
			Temperature:    0.3,
			MaxAttempts:    3,
		},
		Search: SearchConfig{
			Provider:         "google",
			RecencyDays:      7,
			MaxResults:       5,
			TimeoutSeconds:   10,
			MaxAttempts:      3,
			QueriesPerSecond: 5,
			Burst:            5,
			Country:          "az",
			Language:         "az",
		},
		Domains: DomainsConfig{
			Official: append([]string(nil), DefaultOfficialDomains...),
			News:     append([]string(nil), DefaultNewsDomains...),
		},
		HTTP: HTTPConfig{
			TimeoutSeconds: 15,
			UserAgent:      "credence/0.1 (+https://github.com/ppiankov/credence)",
			MaxBodyBytes:   5 << 20,
			RespectRobots:  true,
		},
		OCR: OCRConfig{
			Binary:         "tesseract",
			Languages:      "aze+eng",
			TimeoutSeconds: 30,
		},
		Pipeline: PipelineConfig{
			RequestTimeoutSeconds: 120,
			ExtractionFailure:     ExtractionFail,
			Locale:                "en",
		},
		Server: ServerConfig{
			Addr:                   ":8080",
			ShutdownTimeoutSeconds: 30,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Limits.MaxChars <= 0 {
		errs = append(errs, errors.New("limits.max_chars must be positive"))
	}
	if c.RateLimit.MaxRequests <= 0 {
		errs = append(errs, errors.New("rate_limit.max_requests must be positive"))
	}
	if c.RateLimit.WindowSeconds <= 0 {
		errs = append(errs, errors.New("rate_limit.window_seconds must be positive"))
	}
	switch c.RateLimit.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("rate_limit.backend %q: want memory or redis", c.RateLimit.Backend))
	}
	switch c.Cache.Backend {
	case "memory", "layered", "redis":
	default:
		errs = append(errs, fmt.Errorf("cache.backend %q: want memory, layered, or redis", c.Cache.Backend))
	}
	if c.Cache.Enabled && c.Cache.ReportTTLMinutes <= 0 {
		errs = append(errs, errors.New("cache.report_ttl_minutes must be positive"))
	}
	if c.Search.MaxResults <= 0 || c.Search.MaxResults > 10 {
		errs = append(errs, errors.New("search.max_results must be between 1 and 10"))
	}
	if c.Search.RecencyDays <= 0 {
		errs = append(errs, errors.New("search.recency_days must be positive"))
	}
	switch c.Pipeline.ExtractionFailure {
	case ExtractionFail, ExtractionDegrade:
	default:
		errs = append(errs, fmt.Errorf("pipeline.extraction_failure %q: want fail or degrade", c.Pipeline.ExtractionFailure))
	}
	if len(c.Domains.Official) == 0 || len(c.Domains.News) == 0 {
		errs = append(errs, errors.New("domains.official and domains.news must not be empty"))
	}
	for _, proxy := range c.Server.TrustedProxies {
		if _, err := netip.ParsePrefix(proxy); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(proxy); err != nil {
			errs = append(errs, fmt.Errorf("server.trusted_proxies %q: want an IP or CIDR", proxy))
		}
	}
	switch strings.ToLower(c.LLM.Provider) {
	case "openai", "anthropic", "claude", "ollama":
	default:
		errs = append(errs, fmt.Errorf("llm.provider %q: want openai, anthropic, or ollama", c.LLM.Provider))
	}
	return errors.Join(errs...)
}
