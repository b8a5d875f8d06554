package approvals

import (
	"context"
	"log/slog"
	"time"
)

// DefaultReapInterval is how often the reaper scans for stale pending
// requests when no interval is configured.
const DefaultReapInterval = 5 * time.Minute

// Reaper periodically expires stale pending requests. The ledger also
// expires lazily on access; the reaper exists so requests whose session
// never returns still leave the pending set.
type Reaper struct {
	ledger   *Ledger
	interval time.Duration
	logger   *slog.Logger
}

// NewReaper creates a reaper over ledger. interval <= 0 selects
// DefaultReapInterval. A nil logger uses slog.Default.
func NewReaper(ledger *Ledger, interval time.Duration, logger *slog.Logger) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{ledger: ledger, interval: interval, logger: logger}
}

// Run blocks, expiring stale requests every interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.ledger.ExpireStale(); n > 0 {
				r.logger.Info("expired stale approval requests", "count", n)
			}
		}
	}
}
