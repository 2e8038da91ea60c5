package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"streakkeeper/internal/auth"
	"streakkeeper/internal/engine"
	"streakkeeper/internal/errors"
	"streakkeeper/internal/handlers"
	"streakkeeper/internal/messages"
	"streakkeeper/internal/models"
	"streakkeeper/internal/scheduler"
	"streakkeeper/internal/telegram"
)

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Run the Telegram control bot and evening reminder",
	Args:  cobra.NoArgs,
	RunE:  runBot,
}

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the daily tick at schedule.tick_at until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runSchedule,
}

func runBot(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.cfg.RequireBot(); err != nil {
		return err
	}
	logger.Info("starting bot",
		zap.String("root", a.cfg.Root),
		zap.String("token", a.cfg.MaskedToken()),
		zap.Duration("poll_timeout", a.cfg.PollTimeout()),
		zap.Bool("auto_bind", a.cfg.Telegram.AutoBindOnStart))

	chat, err := telegram.New(a.cfg.Telegram.BotToken, logger)
	if err != nil {
		return err
	}

	gate := auth.NewGate(a.store, a.cfg.Telegram.AutoBindOnStart, logger)
	if err := gate.Preconfigure(a.store.Load(), a.cfg.Telegram.AllowedChatID); err != nil {
		return err
	}

	h := &handlers.Handler{
		Chat:          chat,
		Gate:          gate,
		Actions:       a.engine,
		Store:         a.store,
		Repo:          a.repo,
		Journal:       a.journal,
		HeartbeatFile: a.cfg.Streak.HeartbeatFile,
		Log:           logger,
	}
	loop := scheduler.NewLoop(scheduler.Options{
		PollTimeoutSeconds: a.cfg.Telegram.PollTimeoutSeconds,
		ReminderText:       a.cfg.Telegram.ReminderText,
		ReminderChecksRepo: a.cfg.Telegram.ReminderChecksRepo,
		Location:           a.loc,
	}, chat, h, a.store, a.repo, a.journal, clock, logger)

	return loop.Run(ctx)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if !a.cfg.Schedule.Enabled {
		return errors.NewConfigError("schedule.enabled", false, errors.New("daily schedule is disabled"))
	}

	// results go to the bound chat when a bot token is configured
	var chat notifier
	if a.cfg.RequireBot() == nil {
		client, err := telegram.New(a.cfg.Telegram.BotToken, logger)
		if err != nil {
			logger.Warn("telegram unavailable, tick results are only logged", zap.Error(err))
		} else {
			chat = client
		}
	}

	ticker, err := scheduler.StartDaily(a.cfg.Schedule.TickAt, a.loc, clock, logger, func(now time.Time) {
		a.scheduledTick(ctx, chat, now)
	})
	if err != nil {
		return err
	}
	if next, err := ticker.NextRun(); err == nil {
		logger.Info("daily tick scheduled", zap.String("at", a.cfg.Schedule.TickAt), zap.Time("next_run", next))
	}

	<-ctx.Done()
	logger.Info("stopping scheduler")
	return ticker.Stop()
}

// notifier is the part of the chat client the daily schedule reports through.
type notifier interface {
	SendMessage(ctx context.Context, operatorID, text string) error
}

// scheduledTick runs the un-forced tick for one firing of the daily job and
// sends anything but a skip to the bound chat. chat may be nil.
func (a *app) scheduledTick(ctx context.Context, chat notifier, now time.Time) models.TickResult {
	st := a.store.Load()
	res := a.engine.Tick(ctx, st, engine.TickRequest{Now: now})
	logger.Info("scheduled tick", zap.String("outcome", string(res.Outcome)), zap.String("date", res.Date))
	if chat == nil || st.BoundOperatorID == "" || res.Outcome == models.TickSkipped {
		return res
	}
	if err := chat.SendMessage(ctx, st.BoundOperatorID, messages.Tick(res)); err != nil {
		logger.Warn("tick result not delivered", zap.Error(err))
	}
	return res
}
