// Package capabilities builds the one Capabilities struct each
// process constructs at startup and threads through the scheduler and
// extractor: no package-level singletons anywhere in the pipeline.
package capabilities

import (
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"jobpipe/internal/config"
	"jobpipe/internal/enrich"
	"jobpipe/internal/extract"
	"jobpipe/internal/llm"
	"jobpipe/internal/normalize"
	"jobpipe/internal/secrets"
)

// Capabilities bundles every external-facing dependency the pipeline
// needs, constructed once at startup and torn down on shutdown.
type Capabilities struct {
	AI             llm.Client
	AIProvider     llm.Provider
	AIModel        string
	AICache        *llm.ResponseCache
	Geocoder       enrich.Geocoder
	Enricher       *enrich.Enricher
	Secrets        secrets.Resolver
	GeocodeLimiter *rate.Limiter

	redisClient *redis.Client
	cfg         *config.Config
}

// Build constructs a Capabilities from config. The AI client and
// geocoder are best-effort: an unconfigured provider leaves the
// corresponding field nil rather than failing startup, since both are
// optional fallbacks per SPEC_FULL.md.
func Build(cfg *config.Config) (*Capabilities, error) {
	caps := &Capabilities{
		Secrets: secrets.EnvResolver{},
		cfg:     cfg,
	}

	if client, provider, model, err := llm.NewClientFromConfig(cfg); err == nil {
		caps.AI = client
		caps.AIProvider = provider
		caps.AIModel = model
	}

	if cfg.Redis.Enabled && cfg.AI.CacheBackend == "redis" {
		caps.redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.URL})
		caps.AICache = llm.NewRedisResponseCache(caps.redisClient, 24*time.Hour)
	} else {
		caps.AICache = llm.NewMemoryResponseCache()
	}

	if cfg.Geocoder.Enabled {
		apiKey, ok := secrets.ResolveString(caps.Secrets, cfg.Geocoder.APIKey)
		if !ok {
			apiKey = ""
		}
		geocoder := enrich.NewGoogleGeocoder(apiKey, 5*time.Second)
		caps.Geocoder = geocoder
		caps.GeocodeLimiter = rate.NewLimiter(rate.Limit(cfg.Geocoder.RatePerSecond), 1)
		caps.Enricher = enrich.NewEnricher(
			geocoder,
			cfg.Geocoder.RatePerSecond,
			cfg.Geocoder.CacheSize,
			time.Duration(cfg.Geocoder.AcquireCeilingMs)*time.Millisecond,
		)
	}

	return caps, nil
}

// NewAIBudget creates a fresh per-tick AI call budget from the
// configured ceiling, shared by every source run dispatched in that
// tick so the cumulative AI spend is bounded regardless of
// concurrency.
func (c *Capabilities) NewAIBudget() *extract.Budget {
	return extract.NewBudget(c.cfg.AI.MaxCallsPerTick, c.cfg.AI.BypassBudget)
}

// Cascade builds a fresh extraction cascade wired to this
// Capabilities' AI client and cache.
func (c *Capabilities) Cascade() *extract.Cascade {
	return extract.DefaultCascadeWithCache(c.AI, c.AICache)
}

// Normalizer builds a Normalizer wired to this Capabilities' AI client
// and cache.
func (c *Capabilities) Normalizer() *normalize.Normalizer {
	return normalize.NewNormalizerWithCache(c.AI, c.AICache)
}

// Close releases the cache/Redis connection at shutdown.
func (c *Capabilities) Close() error {
	if c.AICache != nil {
		_ = c.AICache.Close()
	}
	if c.redisClient != nil {
		return c.redisClient.Close()
	}
	return nil
}
