// Package scheduler runs the tick-driven dispatch loop: each tick it
// selects due sources, leases them, and dispatches a bounded number of
// concurrent runs subject to a global worker cap and a per-domain
// semaphore, backing off sources that keep failing and pausing them
// after too many consecutive failures. Grounded on the teacher's
// internal/jobs.Runner poll loop and buffered-channel semaphore.
package scheduler

import (
	"context"
	"log/slog"
	"math/rand"
	"net/url"
	"time"

	"jobpipe/internal/config"
	"jobpipe/internal/model"
	"jobpipe/internal/store"
)

// RunFunc executes one source end to end (fetch, extract, normalize,
// enrich, score, validate, upsert) and reports whether anything
// changed since the last successful run.
type RunFunc func(ctx context.Context, source model.Source) RunOutcome

// RunOutcome is what one source run produced, used to update the
// source's scheduling state.
type RunOutcome struct {
	Status      model.ExtractionStatus
	Changed     bool
	Retriable   bool
	Err         error
}

// Scheduler owns the tick loop and domain semaphore bookkeeping.
type Scheduler struct {
	cfg      *config.Config
	store    *store.Store
	run      RunFunc
	onTick   func()
	logger   *slog.Logger

	globalSem chan struct{}
	domainSem *domainSemaphore

	baseCtx context.Context
}

func New(cfg *config.Config, st *store.Store, run RunFunc, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cfg:       cfg,
		store:     st,
		run:       run,
		logger:    logger,
		globalSem: make(chan struct{}, cfg.Scheduler.GlobalConcurrency),
		domainSem: newDomainSemaphore(cfg.Domain.DefaultConcurrency),
		baseCtx:   context.Background(),
	}
}

// OnTick registers a hook invoked once at the start of every tick,
// before due sources are dispatched — used to refresh the shared
// per-tick AI budget (internal/capabilities.NewAIBudget) so every
// source run dispatched in that tick draws against the same ceiling.
func (s *Scheduler) OnTick(fn func()) {
	s.onTick = fn
}

// Start runs the tick loop until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.baseCtx = ctx
	interval := time.Duration(s.cfg.Scheduler.TickIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if s.onTick != nil {
		s.onTick()
	}

	due, err := s.store.ListDueSources(ctx, time.Now().UTC(), s.cfg.Scheduler.MaxDueSources)
	if err != nil {
		s.logger.Error("scheduler: list due sources failed", "error", err)
		return
	}

	for _, source := range due {
		source := source
		select {
		case s.globalSem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		go func() {
			defer func() { <-s.globalSem }()
			s.runSource(ctx, source)
		}()
	}
}

// TriggerNow dispatches one source run immediately outside the tick
// loop, through the same global/domain semaphores so an admin-forced
// run cannot exceed the configured concurrency ceilings. The run is
// scoped to the scheduler's own lifetime (the context passed to
// Start), not the caller's request context, so it keeps running after
// an admin HTTP request returns. It returns accepted=false with a
// reason when the source is not active or the global semaphore is
// already saturated, rather than blocking the caller.
func (s *Scheduler) TriggerNow(source model.Source) (accepted bool, reason string) {
	if source.Status != model.SourceStatusActive {
		return false, "source is not active"
	}

	select {
	case s.globalSem <- struct{}{}:
	default:
		return false, "scheduler is at global concurrency capacity"
	}

	go func() {
		defer func() { <-s.globalSem }()
		s.runSource(s.baseCtx, source)
	}()

	return true, ""
}

func (s *Scheduler) runSource(ctx context.Context, source model.Source) {
	domain := hostOf(source.CareersURL)
	release, ok := s.domainSem.acquire(ctx, domain)
	if !ok {
		return
	}
	defer release()

	runCtx, cancel := context.WithTimeout(ctx, time.Duration(s.cfg.Scheduler.RunTimeoutMinutes)*time.Minute)
	defer cancel()

	if err := s.store.LeaseSource(runCtx, source.ID, time.Now().Add(time.Duration(s.cfg.Scheduler.RunTimeoutMinutes)*time.Minute)); err != nil {
		s.logger.Error("scheduler: lease failed", "source_id", source.ID, "error", err)
		return
	}

	outcome := s.run(runCtx, source)
	s.finishRun(runCtx, source, outcome)
}

// finishRun applies the backoff/circuit-breaker/consecutive_nochange
// transitions from SPEC_FULL.md §4.9.
func (s *Scheduler) finishRun(ctx context.Context, source model.Source, outcome RunOutcome) {
	failures := source.ConsecutiveFailures
	noChange := source.ConsecutiveNoChange
	status := "ok"

	// PARTIAL does not count toward consecutive_failures: only
	// retriable/permanent fetch errors do.
	if outcome.Err != nil && outcome.Retriable {
		failures++
		noChange = 0
		status = "error"
	} else if outcome.Err != nil {
		failures++
		noChange = 0
		status = "error"
	} else if outcome.Changed {
		failures = 0
		noChange = 0
	} else {
		failures = 0
		noChange++
	}

	nextRun := s.nextRunAt(source, failures, noChange)

	if err := s.store.UpdateSourceAfterRun(ctx, source.ID, status, nextRun, time.Now().UTC(), failures, noChange); err != nil {
		s.logger.Error("scheduler: update after run failed", "source_id", source.ID, "error", err)
	}

	if failures >= s.cfg.Scheduler.MaxConsecutiveFails {
		if err := s.store.PauseSource(ctx, source.ID); err != nil {
			s.logger.Error("scheduler: pause failed", "source_id", source.ID, "error", err)
		}
		s.logger.Warn("scheduler: source paused after repeated failures", "source_id", source.ID, "failures", failures)
	}
}

func (s *Scheduler) nextRunAt(source model.Source, failures, noChange int) time.Time {
	base := time.Duration(source.CrawlFrequencyDays) * 24 * time.Hour
	if base <= 0 {
		base = 24 * time.Hour
	}

	if failures > 0 {
		backoff := time.Duration(s.cfg.Scheduler.BaseBackoffSeconds) * time.Second * time.Duration(1<<uint(min(failures, 10)))
		maxBackoff := time.Duration(s.cfg.Scheduler.MaxBackoffHours) * time.Hour
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		jitter := time.Duration(rand.Int63n(int64(time.Minute)))
		return time.Now().Add(backoff + jitter)
	}

	if noChange > 0 {
		scaled := base * time.Duration(1+noChange)
		maxInterval := time.Duration(s.cfg.Scheduler.MaxNextRunDays) * 24 * time.Hour
		if scaled > maxInterval {
			scaled = maxInterval
		}
		return time.Now().Add(scaled)
	}

	return time.Now().Add(base)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	return u.Host
}
