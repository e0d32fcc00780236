// Package metrics holds in-memory Prometheus-style counters and
// gauges for the pipeline: runs by status, AI budget usage, upsert
// outcomes, and per-source coverage mismatch. Intentionally minimal
// and process-local, following the teacher's metrics package.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	mu sync.RWMutex

	runsTotal       = make(map[runKey]int64)
	runDurationSum  = make(map[string]int64)
	runDurationCnt  = make(map[string]int64)

	requestsTotal = make(map[requestKey]int64)

	aiCallsUsed   = make(map[string]int64)
	aiCallsBudget = make(map[string]int64)

	upsertOutcomesTotal = make(map[upsertKey]int64)
	failedInsertsTotal  = make(map[string]int64)

	coverageMismatchPct = make(map[string]float64)

	geocodeCacheHits   int64
	geocodeCacheMisses int64

	retentionRawPagesDeleted      int64
	retentionExtractionLogDeleted int64

	searchSinkFailures int64
)

type runKey struct {
	SourceID string
	Status   string
}

type upsertKey struct {
	SourceID string
	Outcome  string
}

type requestKey struct {
	Method string
	Path   string
	Status int
}

// RecordRun increments the per-source run counter keyed by terminal
// status (the pipeline passes model.ExtractionStatus values such as
// OK, PARTIAL, EMPTY) and accumulates run duration.
func RecordRun(sourceID, status string, durationMs int64) {
	mu.Lock()
	defer mu.Unlock()

	runsTotal[runKey{SourceID: sourceID, Status: status}]++
	runDurationSum[sourceID] += durationMs
	runDurationCnt[sourceID]++
}

// RecordRequest tallies one admin RPC call by method/path/status, the
// same "count every HTTP call" shape the teacher's router middleware
// feeds to this package.
func RecordRequest(method, path string, status int, durationMs int64) {
	mu.Lock()
	defer mu.Unlock()
	requestsTotal[requestKey{Method: method, Path: path, Status: status}]++
}

// RecordAIBudget records how many AI calls a run used against its
// configured ceiling, so operators can see which sources are
// saturating their budget.
func RecordAIBudget(sourceID string, used, ceiling int) {
	mu.Lock()
	defer mu.Unlock()

	aiCallsUsed[sourceID] += int64(used)
	if ceiling > int(aiCallsBudget[sourceID]) {
		aiCallsBudget[sourceID] = int64(ceiling)
	}
}

// RecordUpsertOutcomes tallies a batch's dedupe/upsert result.
func RecordUpsertOutcomes(sourceID string, inserted, updated, skipped, failed int) {
	mu.Lock()
	defer mu.Unlock()

	if inserted > 0 {
		upsertOutcomesTotal[upsertKey{SourceID: sourceID, Outcome: "inserted"}] += int64(inserted)
	}
	if updated > 0 {
		upsertOutcomesTotal[upsertKey{SourceID: sourceID, Outcome: "updated"}] += int64(updated)
	}
	if skipped > 0 {
		upsertOutcomesTotal[upsertKey{SourceID: sourceID, Outcome: "skipped"}] += int64(skipped)
	}
	if failed > 0 {
		upsertOutcomesTotal[upsertKey{SourceID: sourceID, Outcome: "failed"}] += int64(failed)
		failedInsertsTotal[sourceID] += int64(failed)
	}
}

// SetCoverageMismatch records the latest discovered-vs-inserted
// mismatch ratio for a source, as a gauge rather than a counter since
// it can move in either direction between windows.
func SetCoverageMismatch(sourceID string, pct float64) {
	mu.Lock()
	defer mu.Unlock()
	coverageMismatchPct[sourceID] = pct
}

// RecordGeocodeCache records whether a geocode lookup was served from
// the enricher's LRU cache.
func RecordGeocodeCache(hit bool) {
	mu.Lock()
	defer mu.Unlock()
	if hit {
		geocodeCacheHits++
	} else {
		geocodeCacheMisses++
	}
}

// RecordRetention increments the TTL-cleanup counters for raw pages
// and extraction logs deleted in one sweep.
func RecordRetention(rawPagesDeleted, extractionLogsDeleted int64) {
	if rawPagesDeleted <= 0 && extractionLogsDeleted <= 0 {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	retentionRawPagesDeleted += rawPagesDeleted
	retentionExtractionLogDeleted += extractionLogsDeleted
}

// RecordSearchSinkFailure increments the non-blocking counter of
// search-index deliveries that exhausted their retry budget.
func RecordSearchSinkFailure() {
	mu.Lock()
	defer mu.Unlock()
	searchSinkFailures++
}

// Export returns Prometheus-style metrics text.
func Export() string {
	mu.RLock()
	defer mu.RUnlock()

	var b strings.Builder

	b.WriteString("# HELP jobpipe_runs_total Total source runs by terminal status\n")
	b.WriteString("# TYPE jobpipe_runs_total counter\n")

	var runKeys []runKey
	for k := range runsTotal {
		runKeys = append(runKeys, k)
	}
	sort.Slice(runKeys, func(i, j int) bool {
		if runKeys[i].SourceID != runKeys[j].SourceID {
			return runKeys[i].SourceID < runKeys[j].SourceID
		}
		return runKeys[i].Status < runKeys[j].Status
	})
	for _, k := range runKeys {
		v := runsTotal[k]
		fmt.Fprintf(&b, "jobpipe_runs_total{source_id=\"%s\",status=\"%s\"} %d\n", k.SourceID, k.Status, v)
	}

	b.WriteString("# HELP jobpipe_admin_requests_total Total admin RPC calls by method/path/status\n")
	b.WriteString("# TYPE jobpipe_admin_requests_total counter\n")

	var reqKeys []requestKey
	for k := range requestsTotal {
		reqKeys = append(reqKeys, k)
	}
	sort.Slice(reqKeys, func(i, j int) bool {
		if reqKeys[i].Path != reqKeys[j].Path {
			return reqKeys[i].Path < reqKeys[j].Path
		}
		if reqKeys[i].Method != reqKeys[j].Method {
			return reqKeys[i].Method < reqKeys[j].Method
		}
		return reqKeys[i].Status < reqKeys[j].Status
	})
	for _, k := range reqKeys {
		fmt.Fprintf(&b, "jobpipe_admin_requests_total{method=\"%s\",path=\"%s\",status=\"%d\"} %d\n", k.Method, k.Path, k.Status, requestsTotal[k])
	}

	b.WriteString("# HELP jobpipe_run_duration_ms_sum Total run duration in milliseconds\n")
	b.WriteString("# TYPE jobpipe_run_duration_ms_sum counter\n")
	b.WriteString("# HELP jobpipe_run_duration_ms_count Run count for duration metric\n")
	b.WriteString("# TYPE jobpipe_run_duration_ms_count counter\n")

	var durSources []string
	for s := range runDurationSum {
		durSources = append(durSources, s)
	}
	sort.Strings(durSources)
	for _, s := range durSources {
		fmt.Fprintf(&b, "jobpipe_run_duration_ms_sum{source_id=\"%s\"} %d\n", s, runDurationSum[s])
		fmt.Fprintf(&b, "jobpipe_run_duration_ms_count{source_id=\"%s\"} %d\n", s, runDurationCnt[s])
	}

	b.WriteString("# HELP jobpipe_ai_calls_used_total Total AI fallback calls used per source\n")
	b.WriteString("# TYPE jobpipe_ai_calls_used_total counter\n")

	var aiSources []string
	for s := range aiCallsUsed {
		aiSources = append(aiSources, s)
	}
	sort.Strings(aiSources)
	for _, s := range aiSources {
		fmt.Fprintf(&b, "jobpipe_ai_calls_used_total{source_id=\"%s\"} %d\n", s, aiCallsUsed[s])
	}

	b.WriteString("# HELP jobpipe_ai_calls_budget Per-run AI call ceiling observed per source\n")
	b.WriteString("# TYPE jobpipe_ai_calls_budget gauge\n")

	var budgetSources []string
	for s := range aiCallsBudget {
		budgetSources = append(budgetSources, s)
	}
	sort.Strings(budgetSources)
	for _, s := range budgetSources {
		fmt.Fprintf(&b, "jobpipe_ai_calls_budget{source_id=\"%s\"} %d\n", s, aiCallsBudget[s])
	}

	b.WriteString("# HELP jobpipe_upsert_outcomes_total Total job rows by dedupe outcome per source\n")
	b.WriteString("# TYPE jobpipe_upsert_outcomes_total counter\n")

	var upsertKeys []upsertKey
	for k := range upsertOutcomesTotal {
		upsertKeys = append(upsertKeys, k)
	}
	sort.Slice(upsertKeys, func(i, j int) bool {
		if upsertKeys[i].SourceID != upsertKeys[j].SourceID {
			return upsertKeys[i].SourceID < upsertKeys[j].SourceID
		}
		return upsertKeys[i].Outcome < upsertKeys[j].Outcome
	})
	for _, k := range upsertKeys {
		v := upsertOutcomesTotal[k]
		fmt.Fprintf(&b, "jobpipe_upsert_outcomes_total{source_id=\"%s\",outcome=\"%s\"} %d\n", k.SourceID, k.Outcome, v)
	}

	b.WriteString("# HELP jobpipe_failed_inserts_total Total rows that failed to persist even at batch size 1\n")
	b.WriteString("# TYPE jobpipe_failed_inserts_total counter\n")

	var failSources []string
	for s := range failedInsertsTotal {
		failSources = append(failSources, s)
	}
	sort.Strings(failSources)
	for _, s := range failSources {
		fmt.Fprintf(&b, "jobpipe_failed_inserts_total{source_id=\"%s\"} %d\n", s, failedInsertsTotal[s])
	}

	b.WriteString("# HELP jobpipe_coverage_mismatch_ratio Latest discovered-vs-inserted mismatch ratio per source\n")
	b.WriteString("# TYPE jobpipe_coverage_mismatch_ratio gauge\n")

	var coverageSources []string
	for s := range coverageMismatchPct {
		coverageSources = append(coverageSources, s)
	}
	sort.Strings(coverageSources)
	for _, s := range coverageSources {
		fmt.Fprintf(&b, "jobpipe_coverage_mismatch_ratio{source_id=\"%s\"} %g\n", s, coverageMismatchPct[s])
	}

	b.WriteString("# HELP jobpipe_geocode_cache_hits_total Geocode lookups served from the LRU cache\n")
	b.WriteString("# TYPE jobpipe_geocode_cache_hits_total counter\n")
	fmt.Fprintf(&b, "jobpipe_geocode_cache_hits_total %d\n", geocodeCacheHits)

	b.WriteString("# HELP jobpipe_geocode_cache_misses_total Geocode lookups that missed the LRU cache\n")
	b.WriteString("# TYPE jobpipe_geocode_cache_misses_total counter\n")
	fmt.Fprintf(&b, "jobpipe_geocode_cache_misses_total %d\n", geocodeCacheMisses)

	b.WriteString("# HELP jobpipe_retention_raw_pages_deleted_total Total raw pages deleted by TTL cleanup\n")
	b.WriteString("# TYPE jobpipe_retention_raw_pages_deleted_total counter\n")
	fmt.Fprintf(&b, "jobpipe_retention_raw_pages_deleted_total %d\n", retentionRawPagesDeleted)

	b.WriteString("# HELP jobpipe_retention_extraction_logs_deleted_total Total extraction logs deleted by TTL cleanup\n")
	b.WriteString("# TYPE jobpipe_retention_extraction_logs_deleted_total counter\n")
	fmt.Fprintf(&b, "jobpipe_retention_extraction_logs_deleted_total %d\n", retentionExtractionLogDeleted)

	b.WriteString("# HELP jobpipe_searchsink_failures_total Total search-index deliveries that exhausted their retry budget\n")
	b.WriteString("# TYPE jobpipe_searchsink_failures_total counter\n")
	fmt.Fprintf(&b, "jobpipe_searchsink_failures_total %d\n", searchSinkFailures)

	return b.String()
}
