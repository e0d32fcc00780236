package metrics

import (
	"strings"
	"testing"
)

func TestRecordRunAndExport(t *testing.T) {
	RecordRun("src-1", "ok", 1200)

	out := Export()
	if !strings.Contains(out, `jobpipe_runs_total{source_id="src-1",status="ok"}`) {
		t.Fatalf("expected run metric for src-1/ok in export, got:\n%s", out)
	}
	if !strings.Contains(out, "jobpipe_run_duration_ms_sum") || !strings.Contains(out, "jobpipe_run_duration_ms_count") {
		t.Fatalf("expected run duration headers in export, got:\n%s", out)
	}
}

func TestRecordAIBudgetTracksCeiling(t *testing.T) {
	RecordAIBudget("src-2", 3, 10)
	RecordAIBudget("src-2", 2, 5)

	out := Export()
	if !strings.Contains(out, `jobpipe_ai_calls_used_total{source_id="src-2"} 5`) {
		t.Fatalf("expected accumulated AI calls used for src-2, got:\n%s", out)
	}
	if !strings.Contains(out, `jobpipe_ai_calls_budget{source_id="src-2"} 10`) {
		t.Fatalf("expected max observed ceiling for src-2, got:\n%s", out)
	}
}

func TestRecordUpsertOutcomes(t *testing.T) {
	RecordUpsertOutcomes("src-3", 4, 1, 2, 1)

	out := Export()
	if !strings.Contains(out, `jobpipe_upsert_outcomes_total{source_id="src-3",outcome="inserted"} 4`) {
		t.Fatalf("expected inserted outcome for src-3, got:\n%s", out)
	}
	if !strings.Contains(out, `jobpipe_upsert_outcomes_total{source_id="src-3",outcome="failed"} 1`) {
		t.Fatalf("expected failed outcome for src-3, got:\n%s", out)
	}
	if !strings.Contains(out, `jobpipe_failed_inserts_total{source_id="src-3"} 1`) {
		t.Fatalf("expected failed_inserts_total for src-3, got:\n%s", out)
	}
}

func TestSetCoverageMismatchIsAGauge(t *testing.T) {
	SetCoverageMismatch("src-4", 0.25)
	SetCoverageMismatch("src-4", 0.10)

	out := Export()
	if !strings.Contains(out, `jobpipe_coverage_mismatch_ratio{source_id="src-4"} 0.1`) {
		t.Fatalf("expected latest coverage mismatch value to overwrite prior, got:\n%s", out)
	}
}

func TestRecordGeocodeCache(t *testing.T) {
	RecordGeocodeCache(true)
	RecordGeocodeCache(false)

	out := Export()
	if !strings.Contains(out, "jobpipe_geocode_cache_hits_total") {
		t.Fatalf("expected geocode cache hit counter, got:\n%s", out)
	}
	if !strings.Contains(out, "jobpipe_geocode_cache_misses_total") {
		t.Fatalf("expected geocode cache miss counter, got:\n%s", out)
	}
}
