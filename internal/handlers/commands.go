package handlers

import (
	"context"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"

	"streakkeeper/internal/engine"
	"streakkeeper/internal/errors"
	"streakkeeper/internal/messages"
	"streakkeeper/internal/models"
	"streakkeeper/internal/utils"
)

const (
	defaultHistory = 5
	maxHistory     = 20
)

// aliases maps every accepted spelling to its canonical command.
var aliases = map[string]string{
	"help": "help", "yardim": "help", "komutlar": "help",
	"start":  "start",
	"status": "status", "durum": "status",
	"busy": "busy", "mesgul": "busy",
	"off": "off", "kapat": "off",
	"tick":     "tick",
	"maintain": "maintain", "bakim": "maintain",
	"setreminder": "setreminder", "hatirlat": "setreminder",
	"chatid":  "chatid",
	"history": "history", "gecmis": "history",
}

var commands = map[string]commandFunc{
	"help":        (*Handler).help,
	"start":       (*Handler).help,
	"status":      (*Handler).status,
	"busy":        (*Handler).busy,
	"off":         (*Handler).off,
	"tick":        (*Handler).tick,
	"maintain":    (*Handler).maintain,
	"setreminder": (*Handler).setReminder,
	"chatid":      (*Handler).chatID,
	"history":     (*Handler).history,
}

func (h *Handler) help(context.Context, request) (string, error) {
	return messages.Help(), nil
}

func (h *Handler) chatID(_ context.Context, r request) (string, error) {
	return messages.ChatID(r.op), nil
}

func (h *Handler) status(ctx context.Context, r request) (string, error) {
	today := civil.DateOf(r.now)
	view := messages.StatusView{
		Today:         today,
		State:         r.st,
		HeartbeatFile: h.HeartbeatFile,
	}
	if h.Repo != nil {
		if branch, err := h.Repo.Branch(ctx); err == nil {
			view.FactsAvailable = true
			view.Branch = branch
			view.CommitToday, _ = h.Repo.HasCommitSince(ctx, engine.StartOfDay(r.now))
			view.ChangedFiles, _ = h.Repo.ChangedFiles(ctx)
		}
	}
	if h.Journal != nil {
		view.Streak, _ = h.Journal.TickStreak(today)
	}
	return messages.Status(view), nil
}

func (h *Handler) busy(_ context.Context, r request) (string, error) {
	const usage = "/busy <days> [note]"
	if len(r.cmd.Args) == 0 {
		return "", errors.NewValidationError(usage, "")
	}
	days, err := strconv.Atoi(r.cmd.Args[0])
	if err != nil {
		return "", errors.NewValidationError(usage, "days must be a whole number")
	}
	var until civil.Date
	if err := h.persist(r.st, func(s *models.State) error {
		until = s.StartBusy(civil.DateOf(r.now), days, r.cmd.Rest(1))
		return nil
	}); err != nil {
		return "", err
	}
	h.record(models.JournalEntry{
		Kind: models.JournalBusy, Day: civil.DateOf(r.now).String(),
		Outcome: "on", Detail: "until " + until.String(),
	})
	return messages.BusyOn(until.String()), nil
}

func (h *Handler) off(_ context.Context, r request) (string, error) {
	if err := h.persist(r.st, func(s *models.State) error {
		s.EndBusy()
		return nil
	}); err != nil {
		return "", err
	}
	h.record(models.JournalEntry{Kind: models.JournalBusy, Day: civil.DateOf(r.now).String(), Outcome: "off"})
	return messages.BusyOff(), nil
}

func (h *Handler) tick(ctx context.Context, r request) (string, error) {
	if err := onlyFlags(r.cmd, "/tick [--force] [--dry-run] [note]", "force", "dry-run"); err != nil {
		return "", err
	}
	res := h.Actions.Tick(ctx, r.st, engine.TickRequest{
		Now:    r.now,
		Note:   r.cmd.Rest(0),
		DryRun: r.cmd.Flag("dry-run"),
		Force:  r.cmd.Flag("force"),
	})
	return messages.Tick(res), nil
}

func (h *Handler) maintain(ctx context.Context, r request) (string, error) {
	if err := onlyFlags(r.cmd, "/maintain [--dry-run] [--no-push] [note]", "dry-run", "no-push"); err != nil {
		return "", err
	}
	res := h.Actions.Maintain(ctx, engine.MaintainRequest{
		Now:    r.now,
		Note:   r.cmd.Rest(0),
		DryRun: r.cmd.Flag("dry-run"),
		NoPush: r.cmd.Flag("no-push"),
	})
	return messages.Maintain(res), nil
}

func (h *Handler) setReminder(_ context.Context, r request) (string, error) {
	const usage = "/setreminder HH:MM | on | off"
	if len(r.cmd.Args) != 1 {
		return "", errors.NewValidationError(usage, "")
	}

	switch arg := strings.ToLower(r.cmd.Args[0]); arg {
	case "on", "off":
		enabled := arg == "on"
		if err := h.persist(r.st, func(s *models.State) error {
			s.ReminderEnabled = enabled
			return nil
		}); err != nil {
			return "", err
		}
		return messages.ReminderToggled(enabled), nil
	default:
		hour, minute, err := utils.ParseHM(arg)
		if err != nil {
			return "", errors.NewValidationError(usage, err.Error())
		}
		if err := h.persist(r.st, func(s *models.State) error {
			s.ReminderHour, s.ReminderMinute = hour, minute
			s.ReminderEnabled = true
			return nil
		}); err != nil {
			return "", err
		}
		return messages.ReminderSet(hour, minute), nil
	}
}

func (h *Handler) history(_ context.Context, r request) (string, error) {
	const usage = "/history [n]"
	n := defaultHistory
	if len(r.cmd.Args) > 0 {
		v, err := strconv.Atoi(r.cmd.Args[0])
		if err != nil || v < 1 {
			return "", errors.NewValidationError(usage, "n must be a positive number")
		}
		n = min(v, maxHistory)
	}
	if h.Journal == nil {
		return messages.History(nil), nil
	}
	entries, err := h.Journal.Recent(n)
	if err != nil {
		return "", errors.Wrap(err, "reading journal")
	}
	return messages.History(entries), nil
}

// persist applies fn to the stored state and mirrors the result into st.
func (h *Handler) persist(st *models.State, fn func(*models.State) error) error {
	fresh, err := h.Store.Update(fn)
	if err != nil {
		return errors.Wrap(err, "saving state")
	}
	*st = *fresh
	return nil
}

func onlyFlags(cmd Command, usage string, allowed ...string) error {
	for name := range cmd.Flags {
		ok := false
		for _, a := range allowed {
			ok = ok || a == name
		}
		if !ok {
			return errors.NewValidationError(usage, "unknown flag --"+name)
		}
	}
	return nil
}
