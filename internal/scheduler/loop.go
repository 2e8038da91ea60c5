package scheduler

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"github.com/cenkalti/backoff/v5"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"streakkeeper/internal/engine"
	"streakkeeper/internal/errors"
	"streakkeeper/internal/messages"
	"streakkeeper/internal/models"
)

const (
	initialBackoff = 5 * time.Second
	maxBackoff     = time.Minute
)

type Chat interface {
	FetchUpdates(ctx context.Context, offset int64, timeoutSeconds int) ([]models.Update, error)
	SendMessage(ctx context.Context, operatorID, text string) error
}

type Dispatcher interface {
	Handle(ctx context.Context, st *models.State, upd models.Update, now time.Time) error
}

type Store interface {
	Load() *models.State
	Update(fn func(*models.State) error) (*models.State, error)
}

// CommitChecker answers whether the repository saw a commit since t.
type CommitChecker interface {
	HasCommitSince(ctx context.Context, t time.Time) (bool, error)
}

type Recorder interface {
	Record(e models.JournalEntry) error
}

type Options struct {
	PollTimeoutSeconds int
	ReminderText       string
	ReminderChecksRepo bool
	Location           *time.Location
}

// Loop is the bot's single flow of control: poll, dispatch each new update,
// then check whether the evening reminder is due.
type Loop struct {
	chat       Chat
	dispatcher Dispatcher
	store      Store
	repo       CommitChecker
	journal    Recorder // optional
	clock      clockwork.Clock
	opts       Options
	log        *zap.Logger
}

func NewLoop(opts Options, chat Chat, dispatcher Dispatcher, store Store, repo CommitChecker, journal Recorder, clock clockwork.Clock, log *zap.Logger) *Loop {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.ReminderText == "" {
		opts.ReminderText = "Reminder: today's streak commit is not done yet."
	}
	return &Loop{
		chat:       chat,
		dispatcher: dispatcher,
		store:      store,
		repo:       repo,
		journal:    journal,
		clock:      clock,
		opts:       opts,
		log:        log,
	}
}

// Run repeats Cycle until ctx is cancelled. A failed cycle is followed by an
// exponential wait; a clean one resets it.
func (l *Loop) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = initialBackoff
	bo.MaxInterval = maxBackoff

	l.log.Info("bot loop started", zap.Int("poll_timeout_seconds", l.opts.PollTimeoutSeconds))
	for {
		if ctx.Err() != nil {
			l.log.Info("bot loop stopped")
			return nil
		}

		err := l.Cycle(ctx)
		if err == nil {
			bo.Reset()
			continue
		}
		if ctx.Err() != nil {
			l.log.Info("bot loop stopped")
			return nil
		}

		wait := bo.NextBackOff()
		l.log.Warn("cycle failed, backing off", zap.Duration("wait", wait), zap.Error(err))
		select {
		case <-ctx.Done():
			l.log.Info("bot loop stopped")
			return nil
		case <-l.clock.After(wait):
		}
	}
}

// Cycle runs Polling, Dispatching and ReminderCheck once. Every update is
// handled with the same "now", read after the poll returns.
func (l *Loop) Cycle(ctx context.Context) error {
	offset := int64(0)
	if before := l.store.Load(); before.PollCursor != nil {
		offset = before.Cursor() + 1
	}
	updates, err := l.chat.FetchUpdates(ctx, offset, l.opts.PollTimeoutSeconds)
	if err != nil {
		return err
	}

	// the poll may have blocked for the whole timeout while the schedule
	// process wrote state
	st := l.store.Load()
	now := l.clock.Now().In(l.opts.Location)
	for _, upd := range updates {
		if st.Seen(upd.ID) {
			continue
		}
		if err := l.dispatcher.Handle(ctx, st, upd, now); err != nil {
			l.log.Warn("update handled without reply", zap.Int64("update_id", upd.ID), zap.Error(err))
		}

		id := upd.ID
		fresh, err := l.store.Update(func(s *models.State) error {
			s.AdvanceCursor(id)
			return nil
		})
		if err != nil {
			return errors.Wrap(err, "persisting poll cursor")
		}
		*st = *fresh

		if ctx.Err() != nil {
			return nil
		}
	}

	return l.checkReminder(ctx, st, now)
}

// ReminderDue reports whether the reminder should go out at now, ignoring
// the repository check.
func ReminderDue(st *models.State, now time.Time) bool {
	today := civil.DateOf(now)
	switch {
	case !st.ReminderEnabled, st.BoundOperatorID == "":
		return false
	case now.Hour()*60+now.Minute() < st.ReminderHour*60+st.ReminderMinute:
		return false
	case st.ReminderSentOn(today), st.TickDoneOn(today), st.BusyFor(today):
		return false
	}
	return true
}

func (l *Loop) checkReminder(ctx context.Context, st *models.State, now time.Time) error {
	if !ReminderDue(st, now) {
		return nil
	}
	today := civil.DateOf(now)

	if l.opts.ReminderChecksRepo && l.repo != nil {
		committed, err := l.repo.HasCommitSince(ctx, engine.StartOfDay(now))
		if err != nil {
			l.log.Warn("repository check failed, sending reminder anyway", zap.Error(err))
		} else if committed {
			l.log.Debug("reminder not needed, repository has a commit today")
			return nil
		}
	}

	if err := l.chat.SendMessage(ctx, st.BoundOperatorID, messages.Reminder(l.opts.ReminderText)); err != nil {
		return errors.Wrap(err, "sending reminder")
	}

	fresh, err := l.store.Update(func(s *models.State) error {
		s.LastReminderSentDate = models.DatePtr(today)
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "saving reminder date")
	}
	*st = *fresh

	l.log.Info("reminder sent", zap.String("chat_id", st.BoundOperatorID), zap.String("date", today.String()))
	if l.journal != nil {
		if err := l.journal.Record(models.JournalEntry{
			Kind: models.JournalReminder, Day: today.String(), Outcome: "sent",
		}); err != nil {
			l.log.Warn("journal write failed", zap.Error(err))
		}
	}
	return nil
}
