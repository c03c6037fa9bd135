package worker

import (
	"context"
	"time"

	"github.com/jwalitptl/appointment-engine/internal/repository"
	"github.com/jwalitptl/appointment-engine/pkg/logger"
)

// OutboxCleanupWorker deletes relayed events older than the retention period.
type OutboxCleanupWorker struct {
	repo      repository.OutboxRepository
	retention time.Duration
	interval  time.Duration
	logger    *logger.Logger
	now       func() time.Time
}

func NewOutboxCleanupWorker(repo repository.OutboxRepository, retention, interval time.Duration, log *logger.Logger) *OutboxCleanupWorker {
	return &OutboxCleanupWorker{
		repo:      repo,
		retention: retention,
		interval:  interval,
		logger:    log.With("outbox_cleanup"),
		now:       time.Now,
	}
}

func (w *OutboxCleanupWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

func (w *OutboxCleanupWorker) RunOnce(ctx context.Context) int64 {
	cutoff := w.now().Add(-w.retention)
	n, err := w.repo.DeleteProcessedBefore(ctx, cutoff)
	if err != nil {
		w.logger.Error(err, "Failed to delete processed outbox events")
		return 0
	}
	if n > 0 {
		w.logger.Info("Deleted processed outbox events", "count", n, "cutoff", cutoff)
	}
	return n
}
