package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Syncer re-derives notification schedules from stored reminders.
// reminder.Service implements it.
type Syncer interface {
	Resync(ctx context.Context) (int, error)
}

// Resyncer runs a Syncer on a cron schedule, so schedules lost to a restart
// or a failed scheduling call are restored from the stored reminders.
type Resyncer struct {
	cron   *cron.Cron
	syncer Syncer
	logger *zap.SugaredLogger
}

// NewResyncer parses spec (standard five-field cron or a descriptor such as
// "@every 15m").
func NewResyncer(spec string, syncer Syncer, logger *zap.SugaredLogger) (*Resyncer, error) {
	r := &Resyncer{
		cron:   cron.New(),
		syncer: syncer,
		logger: logger,
	}
	if _, err := r.cron.AddFunc(spec, func() { r.Run(context.Background()) }); err != nil {
		return nil, fmt.Errorf("invalid resync schedule %q: %w", spec, err)
	}
	return r, nil
}

// Start runs one resync immediately and then follows the schedule.
func (r *Resyncer) Start(ctx context.Context) {
	r.Run(ctx)
	r.cron.Start()
}

// Run performs a single resync.
func (r *Resyncer) Run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	n, err := r.syncer.Resync(ctx)
	if err != nil {
		r.logger.Errorw("notification resync failed", "err", err)
		return
	}
	r.logger.Debugw("notification resync done", "scheduled", n)
}

// Stop halts the schedule and waits for a running resync to finish.
func (r *Resyncer) Stop() {
	<-r.cron.Stop().Done()
}
