// Package pipeline wires the fetcher, extractor cascade, normalizer,
// enricher, quality scorer, validator, dedupe engine, observability
// recorder, and search sink into the single per-source RunFunc the
// scheduler dispatches: the end-to-end "run one source" operation
// described across SPEC_FULL.md §4.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"jobpipe/internal/capabilities"
	"jobpipe/internal/config"
	"jobpipe/internal/dedupe"
	"jobpipe/internal/extract"
	"jobpipe/internal/fetcher"
	"jobpipe/internal/metrics"
	"jobpipe/internal/model"
	"jobpipe/internal/observability"
	"jobpipe/internal/quality"
	"jobpipe/internal/rawstore"
	"jobpipe/internal/scheduler"
	"jobpipe/internal/searchsink"
	"jobpipe/internal/secrets"
	"jobpipe/internal/store"
	"jobpipe/internal/validate"
)

// parserHint is the decoded shape of a Source.ParserHint JSON document,
// per spec.md §6. api sources use every field; html and rss sources
// use only Selectors (see decodeDOMHints).
type parserHint struct {
	V        int                          `json:"v"`
	BaseURL  string                       `json:"base_url"`
	Path     string                       `json:"path"`
	Auth     map[string]any               `json:"auth"`
	Map      map[string]string            `json:"map"`
	Selectors map[string]string           `json:"selectors"`
}

// Runner ties every pipeline stage to one source run.
type Runner struct {
	cfg      *config.Config
	caps     *capabilities.Capabilities
	recorder *observability.Recorder
	dedupe   *dedupe.Engine
	store    *store.Store
	raw      rawstore.Store
	sink     searchsink.Sink
	robots   *fetcher.RobotsChecker
	http     *fetcher.HTTPFetcher
	feed     *fetcher.FeedFetcher
	api      *fetcher.APIFetcher

	tickMu    sync.Mutex
	tickQuota *extract.Budget
}

func NewRunner(cfg *config.Config, caps *capabilities.Capabilities, recorder *observability.Recorder, dedupeEngine *dedupe.Engine, st *store.Store, raw rawstore.Store, sink searchsink.Sink) *Runner {
	robots := fetcher.NewRobotsChecker(cfg.Fetcher.UserAgent, 5*time.Second)
	httpFetcher := fetcher.NewHTTPFetcher(time.Duration(cfg.Fetcher.HTMLTimeoutMs)*time.Millisecond, robots, cfg.Robots.Respect)

	return &Runner{
		cfg:      cfg,
		caps:     caps,
		recorder: recorder,
		dedupe:   dedupeEngine,
		store:    st,
		raw:      raw,
		sink:     sink,
		robots:   robots,
		http:     httpFetcher,
		feed:     fetcher.NewFeedFetcher(httpFetcher),
		api:      fetcher.NewAPIFetcher(httpFetcher),
	}
}

// candidate bundles an ExtractionResult with the StagePayload it came
// from and the raw page row it was persisted under, so the detail
// enrichment hop and the logging/observability step can reuse them.
type candidate struct {
	acc       *model.ExtractionResult
	sourceURL string
	rawPageID *uuid.UUID
}

// runState accumulates the counters and side effects for one source
// run, mirrored into the single extraction_logs row at the end.
type runState struct {
	discovered int
	found      int
	candidates []candidate
	tick       *extract.Budget
}

// Run executes one source end to end. It never panics: every stage
// failure downgrades the run's status rather than aborting it, since
// a single bad candidate must not sink the rest of the batch.
func (r *Runner) Run(ctx context.Context, source model.Source) scheduler.RunOutcome {
	start := time.Now()

	state := &runState{tick: r.tickBudget()}

	var (
		outcome  scheduler.RunOutcome
		notMod   bool
		fetchErr *fetcher.FetchError
	)

	switch source.SourceType {
	case model.SourceTypeHTML:
		notMod, fetchErr = r.runHTML(ctx, source, state)
	case model.SourceTypeRSS:
		notMod, fetchErr = r.runFeed(ctx, source, state)
	case model.SourceTypeAPI:
		notMod, fetchErr = r.runAPI(ctx, source, state)
	default:
		fetchErr = &fetcher.FetchError{Kind: fetcher.ErrOther, Message: "unknown source_type: " + string(source.SourceType), Retriable: false}
	}

	duration := time.Since(start)

	if fetchErr != nil {
		outcome = scheduler.RunOutcome{Status: model.StatusEmpty, Changed: false, Retriable: fetchErr.Retriable, Err: fetchErr}
		r.recordRun(ctx, source, observability.RunSummary{
			SourceID: source.ID, URL: source.CareersURL, Status: model.StatusEmpty,
			Reason: string(fetchErr.Kind), Message: fetchErr.Message, Duration: duration,
		})
		metrics.RecordRun(source.ID.String(), string(outcome.Status), duration.Milliseconds())
		return outcome
	}

	if notMod {
		outcome = scheduler.RunOutcome{Status: model.StatusOK, Changed: false}
		r.recordRun(ctx, source, observability.RunSummary{
			SourceID: source.ID, URL: source.CareersURL, Status: model.StatusOK,
			Message: "not modified", Duration: duration,
		})
		metrics.RecordRun(source.ID.String(), string(outcome.Status), duration.Milliseconds())
		return outcome
	}

	candidates, rejected := r.validateCandidates(source, state)
	report := r.dedupe.Upsert(ctx, source.ID, candidates)
	r.recordRejections(ctx, source, rejected)
	r.recordFailures(ctx, source, report)
	r.pushToSearchIndex(ctx, candidates, report)

	metrics.RecordUpsertOutcomes(source.ID.String(), report.Inserted, report.Updated, report.Skipped, len(report.Failed))

	status := model.StatusOK
	switch {
	case state.found == 0:
		status = model.StatusEmpty
	case len(rejected) > 0 || len(report.Failed) > 0:
		status = model.StatusPartial
	}

	changed := report.Inserted > 0 || report.Updated > 0
	outcome = scheduler.RunOutcome{Status: status, Changed: changed}

	r.recordRun(ctx, source, observability.RunSummary{
		SourceID: source.ID, URL: source.CareersURL, Status: status,
		Message:  fmt.Sprintf("found=%d inserted=%d updated=%d skipped=%d failed=%d", state.found, report.Inserted, report.Updated, report.Skipped, len(report.Failed)+len(rejected)),
		Found:    state.found,
		Inserted: report.Inserted,
		Updated:  report.Updated,
		Skipped:  report.Skipped,
		Failed:   len(report.Failed) + len(rejected),
		Duration: duration,
	})
	metrics.RecordRun(source.ID.String(), string(status), duration.Milliseconds())
	metrics.RecordAIBudget(source.ID.String(), r.cfg.AI.MaxCallsPerTick-state.tick.Remaining(), r.cfg.AI.MaxCallsPerTick)

	return outcome
}

// ResetBudgetForTick replaces the shared AI budget every source run
// dispatched in the current scheduler tick draws against. Wire it as
// scheduler.OnTick(runner.ResetBudgetForTick) so the ceiling is shared
// across the tick's concurrent RunFunc calls rather than reset per
// source.
func (r *Runner) ResetBudgetForTick() {
	budget := r.caps.NewAIBudget()
	r.tickMu.Lock()
	r.tickQuota = budget
	r.tickMu.Unlock()
}

// tickBudget returns the run's AI budget: the shared tick budget set
// by ResetBudgetForTick if one has been wired, or a budget scoped to
// just this one call otherwise (tests, admin simulate-extract, or any
// Runner never hooked to Scheduler.OnTick).
func (r *Runner) tickBudget() *extract.Budget {
	r.tickMu.Lock()
	budget := r.tickQuota
	r.tickMu.Unlock()
	if budget != nil {
		return budget
	}
	return r.caps.NewAIBudget()
}

func (r *Runner) recordRun(ctx context.Context, source model.Source, summary observability.RunSummary) {
	if err := r.recorder.RecordRun(ctx, summary); err != nil {
		_ = err // recording failures never abort a run; the scheduler still updates next_run_at.
	}
}

func (r *Runner) recordRejections(ctx context.Context, source model.Source, rejected []validate.Rejected) {
	for _, rej := range rejected {
		_ = r.recorder.RecordFailedInsert(ctx, model.FailedInsert{
			SourceID:  source.ID,
			SourceURL: rej.Candidate.SourceURL,
			Error:     validate.FailureReason(rej.Issues),
			Payload: map[string]any{
				"title":            rej.Candidate.Job.Title,
				"apply_url":        rej.Candidate.Job.ApplyURL,
				"validation_error": validate.FailureReason(rej.Issues),
			},
			Operation: model.OpValidation,
		})
	}
}

func (r *Runner) recordFailures(ctx context.Context, source model.Source, report dedupe.BatchReport) {
	for _, row := range report.Failed {
		_ = r.recorder.RecordFailedInsert(ctx, dedupe.FailedInsertFor(source.ID, row))
	}
}

func (r *Runner) pushToSearchIndex(ctx context.Context, candidates []validate.Candidate, report dedupe.BatchReport) {
	if r.sink == nil || len(report.JobIDs) == 0 {
		return
	}
	byHash := make(map[string]validate.Candidate, len(candidates))
	for _, c := range candidates {
		byHash[c.Job.CanonicalHash] = c
	}

	docs := make([]searchsink.Doc, 0, len(report.JobIDs))
	for i, id := range report.JobIDs {
		if i >= len(candidates) {
			break
		}
		c := candidates[i]
		docs = append(docs, searchsink.Doc{
			ID: id.String(), Title: c.Job.Title, OrgName: c.Job.OrgName,
			Location: c.Job.LocationRaw, Description: c.Job.Description,
			ApplyURL: c.Job.ApplyURL,
		})
	}
	_ = r.sink.Upsert(ctx, docs)
}

// validateCandidates runs every accumulated ExtractionResult through
// the classifier, builds a model.Job, normalizes/enriches/scores it,
// and hands the whole batch to Validate.
func (r *Runner) validateCandidates(source model.Source, state *runState) ([]validate.Candidate, []validate.Rejected) {
	normalizer := r.caps.Normalizer()

	var all []validate.Candidate
	for _, cand := range state.candidates {
		extract.ClassifyCandidate(cand.acc)
		if !cand.acc.IsJob {
			continue
		}
		state.found++

		job := buildJob(source, cand.acc)
		rawDeadline := fieldValue(cand.acc, model.FieldDeadline)
		normalizer.Apply(context.Background(), &job, rawDeadline, state.tick)
		if r.caps.Enricher != nil {
			r.caps.Enricher.Enrich(context.Background(), &job)
		}

		score := quality.ScoreJob(job)
		job.QualityScore = score.Value
		job.QualityGrade = score.Grade
		job.QualityFactors = score.Factors
		job.QualityIssues = score.Issues
		job.NeedsReview = score.NeedsReview
		now := time.Now().UTC()
		job.QualityScoredAt = &now
		job.CanonicalHash = model.CanonicalHash(job.Title, job.ApplyURL)

		var rawPageIDStr *string
		if cand.rawPageID != nil {
			s := cand.rawPageID.String()
			rawPageIDStr = &s
		}

		all = append(all, validate.Candidate{Job: job, SourceURL: cand.sourceURL, RawPageID: rawPageIDStr})
	}

	res := validate.Validate(all)
	return res.Valid, res.Invalid
}

func buildJob(source model.Source, acc *model.ExtractionResult) model.Job {
	applyURL := fieldValue(acc, model.FieldApplicationURL)
	if applyURL == "" {
		applyURL = acc.URL
	}
	return model.Job{
		SourceID:       source.ID,
		Title:          fieldValue(acc, model.FieldTitle),
		OrgName:        fieldValue(acc, model.FieldEmployer),
		ApplyURL:       applyURL,
		LocationRaw:    fieldValue(acc, model.FieldLocation),
		SalaryRaw:      fieldValue(acc, model.FieldSalary),
		Description:    fieldValue(acc, model.FieldDescription),
		EmploymentType: fieldValue(acc, model.FieldEmploymentType),
	}
}

func fieldValue(acc *model.ExtractionResult, f model.FieldName) string {
	v, ok := acc.Get(f)
	if !ok {
		return ""
	}
	return v.Value
}

// ---- html ----

func (r *Runner) runHTML(ctx context.Context, source model.Source, state *runState) (notModified bool, ferr *fetcher.FetchError) {
	state.discovered = 1

	req := fetcher.Request{URL: source.CareersURL, UserAgent: r.cfg.Fetcher.UserAgent, MaxBytes: r.cfg.Fetcher.HTMLMaxBytes}
	res, fetchErr := r.fetchWithRetry(ctx, r.http.Fetch, req)
	if fetchErr != nil {
		return false, fetchErr
	}
	if res.NotModified {
		return true, nil
	}

	if err := r.persistRawPage(ctx, source, res.Status, res.Headers, res.Body); err != nil {
		return false, &fetcher.FetchError{Kind: fetcher.ErrOther, Message: err.Error(), Retriable: true}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(res.Body)))
	if err != nil {
		return false, &fetcher.FetchError{Kind: fetcher.ErrParse, Message: err.Error(), Retriable: false}
	}

	hints := decodeDOMHints(source.ParserHint)
	payload := extract.NewHTMLPayload(doc, source.CareersURL, hints)

	acc := r.runCascade(ctx, payload, state.tick)
	r.maybeDetailEnrich(ctx, source, acc, state.tick)

	state.candidates = append(state.candidates, candidate{acc: acc, sourceURL: source.CareersURL})
	return false, nil
}

// ---- rss ----

func (r *Runner) runFeed(ctx context.Context, source model.Source, state *runState) (notModified bool, ferr *fetcher.FetchError) {
	req := fetcher.Request{URL: source.CareersURL, UserAgent: r.cfg.Fetcher.UserAgent, MaxBytes: r.cfg.Fetcher.FeedMaxBytes}

	fetchFn := func(ctx context.Context, req fetcher.Request) (*fetcher.FeedResult, *fetcher.FetchError) {
		return r.feed.FetchFeed(ctx, req)
	}
	res, fetchErr := fetchFeedWithRetry(ctx, r.backoffSchedule(), fetchFn, req)
	if fetchErr != nil {
		return false, fetchErr
	}
	if res.FinalURL == "" && len(res.Items) == 0 {
		return true, nil
	}

	state.discovered = len(res.Items)
	hints := decodeDOMHints(source.ParserHint)

	for _, item := range res.Items {
		payload := extract.NewFeedPayload(item, hints)
		acc := r.runCascade(ctx, payload, state.tick)
		state.candidates = append(state.candidates, candidate{acc: acc, sourceURL: item.Link})
	}
	return false, nil
}

// ---- api ----

func (r *Runner) runAPI(ctx context.Context, source model.Source, state *runState) (notModified bool, ferr *fetcher.FetchError) {
	hint, err := decodeParserHint(source.ParserHint)
	if err != nil {
		return false, &fetcher.FetchError{Kind: fetcher.ErrParse, Message: "invalid parser_hint: " + err.Error(), Retriable: false}
	}

	headers := map[string]string{}
	if missing := secrets.ResolveMap(r.caps.Secrets, hint.Auth); len(missing) > 0 {
		return false, &fetcher.FetchError{Kind: fetcher.ErrOther, Message: "missing secrets: " + strings.Join(missing, ","), Retriable: false}
	}
	for k, v := range hint.Auth {
		if s, ok := v.(string); ok {
			headers[k] = s
		}
	}

	url := source.CareersURL
	if hint.BaseURL != "" {
		url = strings.TrimRight(hint.BaseURL, "/") + "/" + strings.TrimLeft(hint.Path, "/")
	}

	req := fetcher.Request{URL: url, UserAgent: r.cfg.Fetcher.UserAgent, MaxBytes: r.cfg.Fetcher.APIMaxBytes, Headers: headers}

	fetchFn := func(ctx context.Context, req fetcher.Request) (*fetcher.APIResult, *fetcher.FetchError) {
		return r.api.FetchJSON(ctx, req)
	}
	res, fetchErr := fetchAPIWithRetry(ctx, r.backoffSchedule(), fetchFn, req)
	if fetchErr != nil {
		return false, fetchErr
	}
	if res.Decoded == nil {
		return true, nil
	}

	if err := r.persistRawPage(ctx, source, 200, nil, res.Raw); err != nil {
		return false, &fetcher.FetchError{Kind: fetcher.ErrOther, Message: err.Error(), Retriable: true}
	}

	items := apiItems(res.Decoded)
	state.discovered = len(items)

	selectors := fieldSelectorsFromHint(hint)
	for i, item := range items {
		payload := extract.NewAPIPayload(item, fmt.Sprintf("%s#%d", url, i), selectors)
		acc := r.runCascade(ctx, payload, state.tick)
		state.candidates = append(state.candidates, candidate{acc: acc, sourceURL: payload.SourceURL()})
	}
	return false, nil
}

// apiItems normalizes the decoded JSON document to the list of
// records the cascade should run over: an array document is used
// directly, an object document is treated as a single record.
func apiItems(decoded any) []any {
	if arr, ok := decoded.([]any); ok {
		return arr
	}
	return []any{decoded}
}

func fieldSelectorsFromHint(hint parserHint) map[model.FieldName]string {
	out := make(map[model.FieldName]string, len(hint.Map))
	for field, path := range hint.Map {
		out[model.FieldName(field)] = path
	}
	return out
}

func decodeParserHint(raw string) (parserHint, error) {
	var hint parserHint
	if strings.TrimSpace(raw) == "" {
		return hint, nil
	}
	err := json.Unmarshal([]byte(raw), &hint)
	return hint, err
}

func decodeDOMHints(raw string) map[model.FieldName]string {
	hint, err := decodeParserHint(raw)
	if err != nil {
		return nil
	}
	out := make(map[model.FieldName]string, len(hint.Selectors))
	for field, sel := range hint.Selectors {
		out[model.FieldName(field)] = sel
	}
	return out
}

// ---- shared ----

func (r *Runner) runCascade(ctx context.Context, payload extract.StagePayload, budget *extract.Budget) *model.ExtractionResult {
	acc := &model.ExtractionResult{URL: payload.SourceURL(), ExtractedAt: time.Now().UTC(), PipelineVersion: "v1"}
	cascade := r.caps.Cascade()
	cascade.Run(ctx, payload, acc, budget)
	return acc
}

// maybeDetailEnrich re-runs the non-classifier, non-jsonld stages over
// the candidate's application_url when location/deadline are still
// missing. runHTML calls it once per run, so an html run makes at most
// one detail fetch; DetailEnrichmentConfig.MaxPerRun is not consulted.
func (r *Runner) maybeDetailEnrich(ctx context.Context, source model.Source, acc *model.ExtractionResult, budget *extract.Budget) {
	if !r.cfg.Detail.Enabled {
		return
	}
	_, hasLocation := acc.Get(model.FieldLocation)
	_, hasDeadline := acc.Get(model.FieldDeadline)
	if hasLocation && hasDeadline {
		return
	}
	applyURL, ok := acc.Get(model.FieldApplicationURL)
	if !ok || applyURL.Value == "" || applyURL.Value == acc.URL {
		return
	}

	req := fetcher.Request{URL: applyURL.Value, UserAgent: r.cfg.Fetcher.UserAgent, MaxBytes: r.cfg.Fetcher.HTMLMaxBytes}
	res, fetchErr := r.http.Fetch(ctx, req)
	if fetchErr != nil || res.NotModified {
		return
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(res.Body)))
	if err != nil {
		return
	}

	payload := extract.NewHTMLPayload(doc, applyURL.Value, nil)
	detail := extract.NewCascade(
		extract.MetaStage{}, extract.DOMStage{}, extract.HeuristicStage{}, extract.RegexStage{},
		extract.NewAIStageWithCache(r.caps.AI, r.caps.AICache),
	)
	detail.Run(ctx, payload, acc, budget)
}

func (r *Runner) persistRawPage(ctx context.Context, source model.Source, status int, headers map[string][]string, body []byte) error {
	storagePath, err := r.raw.Put(ctx, body)
	if err != nil {
		return err
	}

	flat := make(map[string]string, len(headers))
	for k, v := range headers {
		if len(v) > 0 {
			flat[k] = v[0]
		}
	}

	_, err = r.store.InsertRawPage(ctx, model.RawPage{
		SourceID:      source.ID,
		URL:           source.CareersURL,
		Status:        status,
		HTTPHeaders:   flat,
		StoragePath:   storagePath,
		ContentLength: int64(len(body)),
		FetchedAt:     time.Now().UTC(),
	})
	return err
}

func (r *Runner) backoffSchedule() []time.Duration {
	parts := strings.Split(r.cfg.Fetcher.RetryBackoffMsCSV, ",")
	schedule := make([]time.Duration, 0, len(parts))
	for _, p := range parts {
		ms, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || ms <= 0 {
			continue
		}
		schedule = append(schedule, time.Duration(ms)*time.Millisecond)
	}
	return schedule
}

// fetchWithRetry retries a fetch up to len(schedule) extra times when
// the error is retriable, sleeping the configured backoff between
// attempts, per spec.md §6's "2 retries, backoff 1s/4s".
func (r *Runner) fetchWithRetry(ctx context.Context, fn func(context.Context, fetcher.Request) (*fetcher.FetchResult, *fetcher.FetchError), req fetcher.Request) (*fetcher.FetchResult, *fetcher.FetchError) {
	schedule := r.backoffSchedule()
	var res *fetcher.FetchResult
	var ferr *fetcher.FetchError

	for attempt := 0; attempt <= len(schedule); attempt++ {
		res, ferr = fn(ctx, req)
		if ferr == nil || !ferr.Retriable || attempt == len(schedule) {
			return res, ferr
		}
		select {
		case <-ctx.Done():
			return nil, &fetcher.FetchError{Kind: fetcher.ErrTimeout, Message: ctx.Err().Error(), Retriable: false}
		case <-time.After(schedule[attempt]):
		}
	}
	return res, ferr
}

func fetchFeedWithRetry(ctx context.Context, schedule []time.Duration, fn func(context.Context, fetcher.Request) (*fetcher.FeedResult, *fetcher.FetchError), req fetcher.Request) (*fetcher.FeedResult, *fetcher.FetchError) {
	var res *fetcher.FeedResult
	var ferr *fetcher.FetchError
	for attempt := 0; attempt <= len(schedule); attempt++ {
		res, ferr = fn(ctx, req)
		if ferr == nil || !ferr.Retriable || attempt == len(schedule) {
			return res, ferr
		}
		select {
		case <-ctx.Done():
			return nil, &fetcher.FetchError{Kind: fetcher.ErrTimeout, Message: ctx.Err().Error(), Retriable: false}
		case <-time.After(schedule[attempt]):
		}
	}
	return res, ferr
}

func fetchAPIWithRetry(ctx context.Context, schedule []time.Duration, fn func(context.Context, fetcher.Request) (*fetcher.APIResult, *fetcher.FetchError), req fetcher.Request) (*fetcher.APIResult, *fetcher.FetchError) {
	var res *fetcher.APIResult
	var ferr *fetcher.FetchError
	for attempt := 0; attempt <= len(schedule); attempt++ {
		res, ferr = fn(ctx, req)
		if ferr == nil || !ferr.Retriable || attempt == len(schedule) {
			return res, ferr
		}
		select {
		case <-ctx.Done():
			return nil, &fetcher.FetchError{Kind: fetcher.ErrTimeout, Message: ctx.Err().Error(), Retriable: false}
		case <-time.After(schedule[attempt]):
		}
	}
	return res, ferr
}
