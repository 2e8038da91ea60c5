package handlers

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"go.uber.org/zap"

	"streakkeeper/internal/auth"
	"streakkeeper/internal/engine"
	"streakkeeper/internal/errors"
	"streakkeeper/internal/messages"
	"streakkeeper/internal/models"
)

// Chat sends replies to the operator.
type Chat interface {
	SendMessage(ctx context.Context, operatorID, text string) error
}

type Authorizer interface {
	Authorize(st *models.State, operatorID string) (auth.Decision, error)
}

// Actions are the two commit-producing operations.
type Actions interface {
	Tick(ctx context.Context, st *models.State, req engine.TickRequest) models.TickResult
	Maintain(ctx context.Context, req engine.MaintainRequest) models.MaintainResult
}

type StateUpdater interface {
	Update(fn func(*models.State) error) (*models.State, error)
}

// RepoFacts are the read-only repository queries shown by /status.
type RepoFacts interface {
	Branch(ctx context.Context) (string, error)
	HasCommitSince(ctx context.Context, t time.Time) (bool, error)
	ChangedFiles(ctx context.Context) (int, error)
}

type Journal interface {
	Record(e models.JournalEntry) error
	Recent(limit int) ([]models.JournalEntry, error)
	TickStreak(today civil.Date) (int, error)
}

type Handler struct {
	Chat    Chat
	Gate    Authorizer
	Actions Actions
	Store   StateUpdater
	Repo    RepoFacts
	Journal Journal // optional

	HeartbeatFile string
	Log           *zap.Logger
}

// request is what a command handler sees.
type request struct {
	st  *models.State
	cmd Command
	op  string
	now time.Time
}

type commandFunc func(h *Handler, ctx context.Context, r request) (string, error)

// Handle interprets one inbound update and replies to its sender. st is the
// in-memory state of the current cycle; handlers that persist changes update
// it in place. The returned error is a reply delivery failure only.
func (h *Handler) Handle(ctx context.Context, st *models.State, upd models.Update, now time.Time) error {
	log := h.logger().With(zap.Int64("update_id", upd.ID), zap.String("chat_id", upd.OperatorID))

	cmd, ok := ParseCommand(upd.Text)
	if !ok {
		log.Debug("ignoring empty message")
		return nil
	}
	fn, known := commands[cmd.Name]
	if !known {
		log.Debug("unknown command", zap.String("command", cmd.Raw))
		return h.reply(ctx, upd.OperatorID, messages.UnknownCommand())
	}

	decision, err := h.Gate.Authorize(st, upd.OperatorID)
	if err != nil {
		log.Error("authorization failed", zap.Error(err))
		return h.reply(ctx, upd.OperatorID, messages.InternalError)
	}
	if decision == auth.Denied {
		return h.reply(ctx, upd.OperatorID, messages.Unauthorized)
	}

	prefix := ""
	if decision == auth.BindAndAllow {
		prefix = messages.Bound(upd.OperatorID)
		h.record(models.JournalEntry{
			Kind: models.JournalBind, Day: civil.DateOf(now).String(),
			Outcome: decision.String(), Detail: upd.OperatorID,
		})
	}

	log.Info("command", zap.String("command", cmd.Name), zap.Strings("args", cmd.Args))
	text, err := fn(h, ctx, request{st: st, cmd: cmd, op: upd.OperatorID, now: now})
	if err != nil {
		var verr *errors.ValidationError
		if errors.As(err, &verr) {
			text = "Usage: " + verr.Usage
			if verr.Reason != "" {
				text = verr.Reason + "\n" + text
			}
		} else {
			log.Error("command failed", zap.String("command", cmd.Name), zap.Error(err))
			text = "Error: " + err.Error()
		}
	}
	return h.reply(ctx, upd.OperatorID, prefix+text)
}

func (h *Handler) reply(ctx context.Context, operatorID, text string) error {
	if err := h.Chat.SendMessage(ctx, operatorID, text); err != nil {
		h.logger().Warn("reply not delivered", zap.String("chat_id", operatorID), zap.Error(err))
		return err
	}
	return nil
}

func (h *Handler) record(e models.JournalEntry) {
	if h.Journal == nil {
		return
	}
	if err := h.Journal.Record(e); err != nil {
		h.logger().Warn("journal write failed", zap.String("kind", string(e.Kind)), zap.Error(err))
	}
}

func (h *Handler) logger() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}
