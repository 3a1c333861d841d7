package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Pruner deletes audit rows older than the retention window on a cron
// schedule.
type Pruner struct {
	store     *Store
	retention time.Duration
	cron      *cron.Cron
	logger    *slog.Logger
	now       func() time.Time
}

// NewPruner schedules deletion of rows older than retentionDays. An empty
// schedule means "@daily". Nothing runs until Start.
func NewPruner(store *Store, retentionDays int, schedule string, logger *slog.Logger) (*Pruner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if retentionDays < 1 {
		return nil, fmt.Errorf("retention must be at least one day, got %d", retentionDays)
	}
	if schedule == "" {
		schedule = "@daily"
	}
	p := &Pruner{
		store:     store,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		logger:    logger,
		now:       time.Now,
	}
	p.cron = cron.New()
	if _, err := p.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := p.RunOnce(ctx); err != nil {
			p.logger.Warn("audit prune failed", "err", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}
	return p, nil
}

// RunOnce prunes immediately.
func (p *Pruner) RunOnce(ctx context.Context) (int64, error) {
	cutoff := p.now().Add(-p.retention)
	n, err := p.store.Prune(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		p.logger.Info("audit entries pruned", "deleted", n, "cutoff", cutoff.Format(time.RFC3339))
	}
	return n, nil
}

// Start prunes once and then follows the schedule until ctx is done.
func (p *Pruner) Start(ctx context.Context) {
	if _, err := p.RunOnce(ctx); err != nil {
		p.logger.Warn("audit prune failed", "err", err)
	}
	p.cron.Start()
	go func() {
		<-ctx.Done()
		<-p.cron.Stop().Done()
	}()
}
