package messages

import (
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"streakkeeper/internal/models"
	"streakkeeper/internal/utils"
)

const (
	Unauthorized  = "Unauthorized chat."
	InternalError = "Something went wrong, check the bot logs."
	reminderHint  = "\nCommands: /status /tick /maintain"
)

const helpText = `Streak bot

/help  (/yardim, /komutlar)
  Show this menu.
/status  (/durum)
  Busy window, last tick, today's commit and repo state.
/busy <days> [note]  (/mesgul)
  Suspend the daily tick for N days, today included.
  Example: /mesgul 2 Meetings all day
/off  (/kapat)
  End the busy window.
/tick [--force] [--dry-run] [note]
  Make today's streak commit if it is still due.
/maintain [--dry-run] [--no-push] [note]  (/bakim)
  Commit a small repository snapshot.
/setreminder HH:MM | on | off  (/hatirlat)
  Set or toggle the evening reminder.
/history [n]  (/gecmis)
  Recent actions.
/chatid
  Show this chat's id.

Only the registered chat may issue commands.`

func Help() string { return helpText }

func UnknownCommand() string {
	return "Unknown command. Send /help (or /yardim) for the list."
}

func Bound(chatID string) string {
	return fmt.Sprintf("This chat is now registered to control the bot (chat_id=%s).\n\n", chatID)
}

func ChatID(chatID string) string {
	return fmt.Sprintf("This chat's chat_id is %s.", chatID)
}

// Reminder is the evening nudge sent to the bound operator.
func Reminder(text string) string {
	return text + reminderHint
}

// StatusView collects everything the status reply shows.
type StatusView struct {
	Today          civil.Date
	State          *models.State
	Branch         string
	CommitToday    bool
	ChangedFiles   int
	Streak         int
	HeartbeatFile  string
	FactsAvailable bool
}

func Status(v StatusView) string {
	st := v.State
	var b strings.Builder
	b.WriteString("Streak status\n")

	busy := "off"
	if st.BusyActive && st.BusyUntil != nil {
		busy = "on"
		if !st.BusyFor(v.Today) {
			busy = "expired"
		}
	}
	fmt.Fprintf(&b, "- Busy mode: %s\n", busy)
	fmt.Fprintf(&b, "- Busy until: %s\n", dateOr(st.BusyUntil))
	fmt.Fprintf(&b, "- Busy note: %s\n", orDash(st.BusyNote))
	fmt.Fprintf(&b, "- Last tick: %s\n", dateOr(st.LastTickDate))
	fmt.Fprintf(&b, "- Last tick commit: %s\n", orDash(st.LastCommitRef))
	if v.Streak > 0 {
		fmt.Fprintf(&b, "- Tick streak: %d day(s)\n", v.Streak)
	}

	reminder := "off"
	if st.ReminderEnabled {
		reminder = utils.FormatHM(st.ReminderHour, st.ReminderMinute)
	}
	fmt.Fprintf(&b, "- Reminder: %s\n", reminder)
	if v.HeartbeatFile != "" {
		fmt.Fprintf(&b, "- Heartbeat file: %s\n", v.HeartbeatFile)
	}

	if v.FactsAvailable {
		fmt.Fprintf(&b, "- Branch: %s\n", orDash(v.Branch))
		fmt.Fprintf(&b, "- Commit today: %s\n", yesNo(v.CommitToday))
		fmt.Fprintf(&b, "- Changed files: %d\n", v.ChangedFiles)
	}
	return strings.TrimRight(b.String(), "\n")
}

func BusyOn(until string) string {
	return fmt.Sprintf("Busy mode on. Ends after %s.", until)
}

func BusyOff() string { return "Busy mode off." }

func ReminderSet(hour, minute int) string {
	return fmt.Sprintf("Reminder time set to %s.", utils.FormatHM(hour, minute))
}

func ReminderToggled(enabled bool) string {
	if enabled {
		return "Reminder enabled."
	}
	return "Reminder disabled."
}

func Tick(res models.TickResult) string {
	switch res.Outcome {
	case models.TickDryRun:
		lines := []string{
			fmt.Sprintf("Dry run for %s: due=%s.", res.Date, yesNo(res.Due)),
			"Commit message: " + res.Message,
			"Push target: " + res.Target,
		}
		if !res.Due {
			lines = append(lines, "Would skip: "+skipText(res.Skip))
		}
		return strings.Join(lines, "\n")
	case models.TickSkipped:
		return "Skip: " + skipText(res.Skip)
	case models.TickCommitted:
		msg := fmt.Sprintf("Streak commit %s done for %s.", res.Ref, res.Date)
		switch {
		case res.Pushed:
			msg += " Pushed."
		case res.PushErr != nil:
			msg += fmt.Sprintf("\nPush failed: %v", res.PushErr)
		}
		if res.Err != nil {
			msg += fmt.Sprintf("\nWarning: %v", res.Err)
		}
		return msg
	default:
		return fmt.Sprintf("Tick failed: %v", res.Err)
	}
}

func Maintain(res models.MaintainResult) string {
	s := res.Snapshot
	switch res.Outcome {
	case models.MaintainDryRun:
		return strings.Join([]string{
			fmt.Sprintf("Dry run: snapshot %s on %s (%d tracked, %d changed).",
				s.ID, s.Branch, s.TrackedFiles, s.ChangedFilesBefore),
			"Commit message: " + res.Message,
			"Push target: " + res.Target,
		}, "\n")
	case models.MaintainCommitted:
		msg := fmt.Sprintf("Maintenance commit %s done (snapshot %s).", res.Ref, s.ID)
		switch {
		case res.Pushed:
			msg += " Pushed."
		case res.PushErr != nil:
			msg += fmt.Sprintf("\nPush failed: %v", res.PushErr)
		default:
			msg += " Not pushed."
		}
		return msg
	default:
		return fmt.Sprintf("Maintenance failed: %v", res.Err)
	}
}

func History(entries []models.JournalEntry) string {
	if len(entries) == 0 {
		return "No recorded actions yet."
	}
	var b strings.Builder
	b.WriteString("Recent actions")
	for _, e := range entries {
		fmt.Fprintf(&b, "\n- %s %s %s", time.Unix(e.CreatedAt, 0).Format("2006-01-02 15:04"), e.Kind, e.Outcome)
		if e.Ref != "" {
			fmt.Fprintf(&b, " %s", e.Ref)
		}
		if e.Detail != "" {
			fmt.Fprintf(&b, " (%s)", e.Detail)
		}
	}
	return b.String()
}

func skipText(r models.SkipReason) string {
	switch r {
	case models.SkipBusy:
		return "busy mode is active."
	case models.SkipDoneToday:
		return "today's streak commit is already done."
	}
	return "nothing to do."
}

func dateOr(d *civil.Date) string {
	if d == nil {
		return "-"
	}
	return d.String()
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
