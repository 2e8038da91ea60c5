package messages

import (
	"errors"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"

	"streakkeeper/internal/models"
)

func TestStatusShowsExpiredBusyWindow(t *testing.T) {
	st := models.DefaultState()
	st.BusyActive = true
	st.BusyUntil = models.DatePtr(civil.Date{Year: 2024, Month: 5, Day: 1})

	out := Status(StatusView{Today: civil.Date{Year: 2024, Month: 5, Day: 2}, State: st})
	assert.Contains(t, out, "Busy mode: expired")
	assert.Contains(t, out, "Busy until: 2024-05-01")
	assert.Contains(t, out, "Last tick: -")
	assert.NotContains(t, out, "Branch:")

	st.ReminderEnabled = false
	out = Status(StatusView{Today: civil.Date{Year: 2024, Month: 5, Day: 1}, State: st, FactsAvailable: true, Branch: "main"})
	assert.Contains(t, out, "Busy mode: on")
	assert.Contains(t, out, "Reminder: off")
	assert.Contains(t, out, "Branch: main")
}

func TestTickReplies(t *testing.T) {
	assert.Equal(t, "Skip: busy mode is active.",
		Tick(models.TickResult{Outcome: models.TickSkipped, Skip: models.SkipBusy}))

	out := Tick(models.TickResult{Outcome: models.TickCommitted, Ref: "abc", Date: "2024-05-02", PushErr: errors.New("offline")})
	assert.Contains(t, out, "Streak commit abc done for 2024-05-02.")
	assert.Contains(t, out, "Push failed: offline")

	out = Tick(models.TickResult{Outcome: models.TickDryRun, Date: "2024-05-02", Skip: models.SkipDoneToday, Message: "m", Target: "origin main"})
	assert.Contains(t, out, "due=no")
	assert.Contains(t, out, "Would skip: today's streak commit is already done.")
}

func TestReminderAppendsHint(t *testing.T) {
	assert.Equal(t, "go\nCommands: /status /tick /maintain", Reminder("go"))
}

func TestHistory(t *testing.T) {
	out := History([]models.JournalEntry{{Kind: models.JournalTick, Outcome: "committed", Ref: "abc", CreatedAt: 0}})
	assert.Contains(t, out, "tick committed abc")
}
