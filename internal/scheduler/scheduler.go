package scheduler

import (
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"streakkeeper/internal/errors"
	"streakkeeper/internal/utils"
)

// DailyTicker runs one task every day at a fixed local time.
type DailyTicker struct {
	s   gocron.Scheduler
	job gocron.Job
}

// StartDaily schedules task at hh:mm in loc and starts the scheduler. task
// receives the firing time in loc. Overlapping runs are skipped.
func StartDaily(at string, loc *time.Location, clock clockwork.Clock, log *zap.Logger, task func(now time.Time)) (*DailyTicker, error) {
	hour, minute, err := utils.ParseHM(at)
	if err != nil {
		return nil, errors.NewConfigError("schedule.tick_at", at, err)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = zap.NewNop()
	}

	s, err := gocron.NewScheduler(
		gocron.WithLocation(loc),
		gocron.WithClock(clock),
		gocron.WithLogger(gocronLogger{log.Sugar()}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "creating scheduler")
	}

	job, err := s.NewJob(
		gocron.DailyJob(1, gocron.NewAtTimes(gocron.NewAtTime(uint(hour), uint(minute), 0))),
		gocron.NewTask(func() {
			task(clock.Now().In(loc))
		}),
		gocron.WithName("daily-tick"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, errors.Wrap(err, "registering daily job")
	}

	s.Start()
	return &DailyTicker{s: s, job: job}, nil
}

// NextRun is the next scheduled firing time.
func (d *DailyTicker) NextRun() (time.Time, error) {
	return d.job.NextRun()
}

// Stop waits for a running task to finish.
func (d *DailyTicker) Stop() error {
	return d.s.Shutdown()
}

// gocronLogger routes scheduler logs through zap.
type gocronLogger struct {
	l *zap.SugaredLogger
}

func (g gocronLogger) Debug(msg string, args ...any) { g.l.Debugw(msg, args...) }
func (g gocronLogger) Info(msg string, args ...any)  { g.l.Infow(msg, args...) }
func (g gocronLogger) Warn(msg string, args ...any)  { g.l.Warnw(msg, args...) }
func (g gocronLogger) Error(msg string, args ...any) { g.l.Errorw(msg, args...) }
