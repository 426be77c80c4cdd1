package notifications

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/hospitaltm/citas-dashboard/pkg/logger"
)

// DefaultSchedule refreshes counters every minute.
const DefaultSchedule = "@every 1m"

// Poller refreshes every open notification counter on a cron schedule.
type Poller struct {
	schedule string
	refresh  func(ctx context.Context)
	logger   *logger.Logger

	mu        sync.Mutex
	scheduler *cron.Cron
	cancel    context.CancelFunc
}

// NewPoller creates a poller that calls refresh on schedule.
func NewPoller(schedule string, refresh func(ctx context.Context), log *logger.Logger) *Poller {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	return &Poller{schedule: schedule, refresh: refresh, logger: log.WithComponent("notification-poller")}
}

// Start registers the job and starts the scheduler. Runs do not overlap.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.scheduler != nil {
		return fmt.Errorf("poller already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := s.AddFunc(p.schedule, func() { p.Tick(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("invalid counter schedule %q: %w", p.schedule, err)
	}
	s.Start()
	p.scheduler = s
	p.cancel = cancel
	p.logger.Info().Str("schedule", p.schedule).Msg("notification poller started")
	return nil
}

// Tick runs one refresh round.
func (p *Poller) Tick(ctx context.Context) {
	start := time.Now()
	p.refresh(ctx)
	p.logger.Debug().Dur("duration", time.Since(start)).Msg("notification counters refreshed")
}

// Stop halts the scheduler and waits for a running round to finish.
func (p *Poller) Stop() {
	p.mu.Lock()
	s, cancel := p.scheduler, p.cancel
	p.scheduler, p.cancel = nil, nil
	p.mu.Unlock()
	if s == nil {
		return
	}
	<-s.Stop().Done()
	cancel()
	p.logger.Info().Msg("notification poller stopped")
}
