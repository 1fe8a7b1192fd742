package workers

import (
	"context"
	"fmt"
	"time"

	"competition-service/services"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

type runner interface {
	RunOnce(ctx context.Context) (int, error)
}

// Job is a named periodic task.
type Job struct {
	Name     string
	Interval time.Duration
	Runner   runner
}

// NewScheduler registers jobs on a gocron scheduler driven by clock. Jobs
// never overlap with themselves; a run that is still busy when the next one
// is due skips it. With leases, a job also skips a run while another
// instance holds it. The scheduler is returned unstarted.
func NewScheduler(ctx context.Context, clock clockwork.Clock, leases *services.Leases, log *logrus.Logger, jobs ...Job) (gocron.Scheduler, error) {
	opts := []gocron.SchedulerOption{gocron.WithClock(clock)}
	if leases != nil {
		opts = append(opts, gocron.WithDistributedLocker(leaseLocker{leases: leases}))
	}
	sched, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	for _, job := range jobs {
		if job.Interval <= 0 {
			log.WithField("job", job.Name).Warn("⚠️ job disabled, interval is not positive")
			continue
		}
		_, err := sched.NewJob(
			gocron.DurationJob(job.Interval),
			gocron.NewTask(func() {
				if _, err := job.Runner.RunOnce(ctx); err != nil {
					log.WithError(err).WithField("job", job.Name).Error("[Scheduler] job failed")
				}
			}),
			gocron.WithName(job.Name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			_ = sched.Shutdown()
			return nil, fmt.Errorf("register job %s: %w", job.Name, err)
		}
	}
	return sched, nil
}
