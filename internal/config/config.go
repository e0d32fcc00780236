package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// FetcherConfig controls the shared HTTP fetch behavior across the
// HTML, feed, and API adapters.
type FetcherConfig struct {
	UserAgent         string `yaml:"userAgent"`
	HTMLTimeoutMs     int    `yaml:"htmlTimeoutMs"`
	FeedTimeoutMs     int    `yaml:"feedTimeoutMs"`
	APITimeoutMs      int    `yaml:"apiTimeoutMs"`
	HTMLMaxBytes      int64  `yaml:"htmlMaxBytes"`
	FeedMaxBytes      int64  `yaml:"feedMaxBytes"`
	APIMaxBytes       int64  `yaml:"apiMaxBytes"`
	RetryAttempts     int    `yaml:"retryAttempts"`
	RetryBackoffMsCSV string `yaml:"retryBackoffMsCsv"` // e.g. "1000,4000"
}

// RobotsConfig controls whether robots.txt is honored and per-host
// overrides.
type RobotsConfig struct {
	Respect          bool     `yaml:"respect"`
	IgnoreForHosts   []string `yaml:"ignoreForHosts"`
}

// BrowserConfig controls the optional headless-render fetcher.
type BrowserConfig struct {
	Enabled       bool `yaml:"enabled"`
	TimeoutMs     int  `yaml:"timeoutMs"`
	NetworkIdleMs int  `yaml:"networkIdleMs"`
}

// DomainConfig controls the per-domain concurrency semaphore.
type DomainConfig struct {
	DefaultConcurrency int `yaml:"defaultConcurrency"`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

// RawStoreConfig controls the content-addressed raw-page store.
type RawStoreConfig struct {
	Backend string `yaml:"backend"` // "fs" or "object"
	Root    string `yaml:"root"`
	Bucket  string `yaml:"bucket"`
}

// SchedulerConfig controls the tick-driven dispatch loop.
type SchedulerConfig struct {
	TickIntervalSeconds int `yaml:"tickIntervalSeconds"`
	MaxDueSources       int `yaml:"maxDueSources"`
	GlobalConcurrency   int `yaml:"globalConcurrency"`
	RunTimeoutMinutes   int `yaml:"runTimeoutMinutes"`
	MaxConsecutiveFails int `yaml:"maxConsecutiveFails"`
	BaseBackoffSeconds  int `yaml:"baseBackoffSeconds"`
	MaxBackoffHours     int `yaml:"maxBackoffHours"`
	MaxNextRunDays      int `yaml:"maxNextRunDays"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL"`
	Model   string `yaml:"model"`
}

type AnthropicConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

type GoogleLLMConfig struct {
	APIKey string `yaml:"apiKey"`
	Model  string `yaml:"model"`
}

// AIConfig controls the AI fallback/normalizer capability and its
// run-scoped and per-tick cost budget.
type AIConfig struct {
	DefaultProvider    string          `yaml:"defaultProvider"`
	OpenAI             OpenAIConfig    `yaml:"openai"`
	Anthropic          AnthropicConfig `yaml:"anthropic"`
	Google             GoogleLLMConfig `yaml:"google"`
	MaxCallsPerTick    int             `yaml:"maxCallsPerTick"`
	BypassBudget       bool            `yaml:"bypassBudget"`
	CacheBackend       string          `yaml:"cacheBackend"` // "memory" or "redis"
}

// GeocoderConfig controls the enrichment geocoding capability.
type GeocoderConfig struct {
	Enabled          bool    `yaml:"enabled"`
	Provider         string  `yaml:"provider"`
	APIKey           string  `yaml:"apiKey"`
	RatePerSecond    float64 `yaml:"ratePerSecond"`
	AcquireCeilingMs int     `yaml:"acquireCeilingMs"`
	CacheSize        int     `yaml:"cacheSize"`
}

// SearchSinkConfig controls delivery of committed upserts to the
// external search index.
type SearchSinkConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Endpoint        string `yaml:"endpoint"`
	APIKey          string `yaml:"apiKey"`
	TimeoutMs       int    `yaml:"timeoutMs"`
	MaxRetries      int    `yaml:"maxRetries"`
}

// RetentionConfig controls TTL deletion of old raw pages/extraction
// logs so storage does not grow without bound.
type RetentionConfig struct {
	Enabled                bool `yaml:"enabled"`
	CleanupIntervalMinutes int  `yaml:"cleanupIntervalMinutes"`
	RawPageDays            int  `yaml:"rawPageDays"`
	ExtractionLogDays      int  `yaml:"extractionLogDays"`
}

// DetailEnrichmentConfig controls the optional one-hop detail fetch.
type DetailEnrichmentConfig struct {
	Enabled          bool `yaml:"enabled"`
	MaxPerRun        int  `yaml:"maxPerRun"`
}

type Config struct {
	Server    ServerConfig           `yaml:"server"`
	Fetcher   FetcherConfig          `yaml:"fetcher"`
	Robots    RobotsConfig           `yaml:"robots"`
	Browser   BrowserConfig          `yaml:"browser"`
	Domain    DomainConfig           `yaml:"domain"`
	Database  DatabaseConfig         `yaml:"database"`
	Redis     RedisConfig            `yaml:"redis"`
	RawStore  RawStoreConfig         `yaml:"rawStore"`
	Scheduler SchedulerConfig        `yaml:"scheduler"`
	AI        AIConfig               `yaml:"ai"`
	Geocoder  GeocoderConfig         `yaml:"geocoder"`
	SearchSink SearchSinkConfig      `yaml:"searchSink"`
	Retention RetentionConfig        `yaml:"retention"`
	Detail    DetailEnrichmentConfig `yaml:"detail"`
}

func Load(path string) *Config {
	f, err := os.Open(path)
	if err != nil {
		log.Fatalf("failed to open config file: %v", err)
	}
	defer f.Close()

	var cfg Config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		log.Fatalf("failed to decode config: %v", err)
	}

	cfg.applyDefaults()
	return &cfg
}

// applyDefaults fills the zero-value fields with the operator-facing
// defaults documented in spec.md §6.
func (cfg *Config) applyDefaults() {
	if cfg.Fetcher.HTMLTimeoutMs <= 0 {
		cfg.Fetcher.HTMLTimeoutMs = 30_000
	}
	if cfg.Fetcher.FeedTimeoutMs <= 0 {
		cfg.Fetcher.FeedTimeoutMs = 15_000
	}
	if cfg.Fetcher.APITimeoutMs <= 0 {
		cfg.Fetcher.APITimeoutMs = 20_000
	}
	if cfg.Fetcher.HTMLMaxBytes <= 0 {
		cfg.Fetcher.HTMLMaxBytes = 5 << 20
	}
	if cfg.Fetcher.FeedMaxBytes <= 0 {
		cfg.Fetcher.FeedMaxBytes = 2 << 20
	}
	if cfg.Fetcher.APIMaxBytes <= 0 {
		cfg.Fetcher.APIMaxBytes = 10 << 20
	}
	if cfg.Fetcher.RetryAttempts <= 0 {
		cfg.Fetcher.RetryAttempts = 2
	}
	if cfg.Fetcher.RetryBackoffMsCSV == "" {
		cfg.Fetcher.RetryBackoffMsCSV = "1000,4000"
	}
	if cfg.Browser.TimeoutMs <= 0 {
		cfg.Browser.TimeoutMs = 30_000
	}
	if cfg.Browser.NetworkIdleMs <= 0 {
		cfg.Browser.NetworkIdleMs = 500
	}
	if cfg.Domain.DefaultConcurrency <= 0 {
		cfg.Domain.DefaultConcurrency = 1
	}
	if cfg.Scheduler.TickIntervalSeconds <= 0 {
		cfg.Scheduler.TickIntervalSeconds = 60
	}
	if cfg.Scheduler.MaxDueSources <= 0 {
		cfg.Scheduler.MaxDueSources = 10
	}
	if cfg.Scheduler.GlobalConcurrency <= 0 {
		cfg.Scheduler.GlobalConcurrency = 8
	}
	if cfg.Scheduler.RunTimeoutMinutes <= 0 {
		cfg.Scheduler.RunTimeoutMinutes = 15
	}
	if cfg.Scheduler.MaxConsecutiveFails <= 0 {
		cfg.Scheduler.MaxConsecutiveFails = 10
	}
	if cfg.Scheduler.BaseBackoffSeconds <= 0 {
		cfg.Scheduler.BaseBackoffSeconds = 60
	}
	if cfg.Scheduler.MaxBackoffHours <= 0 {
		cfg.Scheduler.MaxBackoffHours = 24
	}
	if cfg.Scheduler.MaxNextRunDays <= 0 {
		cfg.Scheduler.MaxNextRunDays = 14
	}
	if cfg.AI.MaxCallsPerTick <= 0 {
		cfg.AI.MaxCallsPerTick = 200
	}
	if cfg.AI.CacheBackend == "" {
		cfg.AI.CacheBackend = "memory"
	}
	if cfg.Geocoder.RatePerSecond <= 0 {
		cfg.Geocoder.RatePerSecond = 1
	}
	if cfg.Geocoder.AcquireCeilingMs <= 0 {
		cfg.Geocoder.AcquireCeilingMs = 5_000
	}
	if cfg.Geocoder.CacheSize <= 0 {
		cfg.Geocoder.CacheSize = 10_000
	}
	if cfg.SearchSink.TimeoutMs <= 0 {
		cfg.SearchSink.TimeoutMs = 10_000
	}
	if cfg.SearchSink.MaxRetries <= 0 {
		cfg.SearchSink.MaxRetries = 3
	}
	if cfg.Detail.MaxPerRun <= 0 {
		cfg.Detail.MaxPerRun = 50
	}
	if cfg.RawStore.Backend == "" {
		cfg.RawStore.Backend = "fs"
	}
}

// Validate performs basic sanity checks on the loaded configuration so
// obviously misconfigured capabilities fail fast at startup rather than
// during the first run.
func (cfg *Config) Validate() error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return errors.New("database.dsn must be set")
	}

	provider := strings.TrimSpace(cfg.AI.DefaultProvider)
	if provider != "" {
		switch provider {
		case "openai":
			if cfg.AI.OpenAI.APIKey == "" || cfg.AI.OpenAI.Model == "" {
				return errors.New("ai provider openai is not fully configured")
			}
		case "anthropic":
			if cfg.AI.Anthropic.APIKey == "" || cfg.AI.Anthropic.Model == "" {
				return errors.New("ai provider anthropic is not fully configured")
			}
		case "google":
			if cfg.AI.Google.APIKey == "" || cfg.AI.Google.Model == "" {
				return errors.New("ai provider google is not fully configured")
			}
		default:
			return fmt.Errorf("unsupported ai.defaultProvider: %s", provider)
		}
	}

	if cfg.RawStore.Backend != "fs" && cfg.RawStore.Backend != "object" {
		return fmt.Errorf("unsupported rawStore.backend: %s", cfg.RawStore.Backend)
	}
	if cfg.RawStore.Backend == "fs" && strings.TrimSpace(cfg.RawStore.Root) == "" {
		return errors.New("rawStore.root must be set when backend is fs")
	}

	return nil
}
