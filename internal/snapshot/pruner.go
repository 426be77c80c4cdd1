package snapshot

import (
	"context"
	"time"

	"github.com/hospitaltm/citas-dashboard/pkg/logger"
)

// Deleter removes snapshots recorded before a cutoff.
type Deleter interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Pruner deletes snapshots past their retention on a fixed interval.
type Pruner struct {
	store     Deleter
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	logger    *logger.Logger
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewPruner creates a pruner. A zero retention disables it.
func NewPruner(store Deleter, retention, interval time.Duration, log *logger.Logger) *Pruner {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Pruner{
		store:     store,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		logger:    log.WithComponent("snapshot-pruner"),
	}
}

// Start runs a first prune immediately and then one per interval until Stop.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		p.logger.Info().Msg("snapshot retention disabled")
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		p.logger.Info().Dur("retention", p.retention).Dur("interval", p.interval).Msg("snapshot pruner started")

		p.Prune(ctx)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				p.logger.Info().Msg("snapshot pruner stopped")
				return
			case <-ticker.C:
				p.Prune(ctx)
			}
		}
	}()
}

// Stop halts the pruner and waits for it to exit.
func (p *Pruner) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	p.cancel = nil
}

// Prune deletes everything older than the retention and returns the count.
func (p *Pruner) Prune(ctx context.Context) int64 {
	cutoff := p.now().Add(-p.retention)
	n, err := p.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		p.logger.Error().Err(err).Time("cutoff", cutoff).Msg("failed to prune snapshots")
		return 0
	}
	if n > 0 {
		p.logger.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("old snapshots pruned")
	}
	return n
}
