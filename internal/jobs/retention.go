package jobs

import (
	"context"
	"time"

	"jobpipe/internal/config"
	"jobpipe/internal/metrics"
	"jobpipe/internal/store"
)

// RetentionStats captures the number of rows deleted by one TTL
// cleanup sweep.
type RetentionStats struct {
	RawPagesDeleted      int64
	ExtractionLogsDeleted int64
}

// CleanupExpiredData deletes raw pages and extraction logs older than
// their configured TTL so the database does not grow without bound.
// Raw page blobs themselves are left in place; a row is the sole
// index of which blobs are still referenced, so deleting a row simply
// makes its blob scavengeable by the object store's own GC.
func CleanupExpiredData(ctx context.Context, cfg *config.Config, st *store.Store) RetentionStats {
	var stats RetentionStats
	if !cfg.Retention.Enabled {
		return stats
	}

	now := time.Now().UTC()

	if cfg.Retention.RawPageDays > 0 {
		cutoff := now.AddDate(0, 0, -cfg.Retention.RawPageDays)
		if n, err := st.DeleteExpiredRawPages(ctx, cutoff); err == nil {
			stats.RawPagesDeleted = n
		}
	}

	if cfg.Retention.ExtractionLogDays > 0 {
		cutoff := now.AddDate(0, 0, -cfg.Retention.ExtractionLogDays)
		if n, err := st.DeleteExpiredExtractionLogs(ctx, cutoff); err == nil {
			stats.ExtractionLogsDeleted = n
		}
	}

	metrics.RecordRetention(stats.RawPagesDeleted, stats.ExtractionLogsDeleted)
	return stats
}
