package models

import (
	"cloud.google.com/go/civil"
)

const (
	DefaultReminderHour   = 21
	DefaultReminderMinute = 30
)

// State is the single persisted record shared by the bot, the CLI and the
// daily scheduler. It is stored as JSON at .streakkeeper/state.json.
type State struct {
	BusyActive bool        `json:"busy_active"`
	BusyUntil  *civil.Date `json:"busy_until,omitempty"` // inclusive
	BusyNote   string      `json:"busy_note,omitempty"`

	LastTickDate  *civil.Date `json:"last_tick_date,omitempty"`
	LastCommitRef string      `json:"last_commit_ref,omitempty"`

	BoundOperatorID string `json:"bound_operator_id,omitempty"`

	ReminderHour         int         `json:"reminder_hour"`
	ReminderMinute       int         `json:"reminder_minute"`
	ReminderEnabled      bool        `json:"reminder_enabled"`
	LastReminderSentDate *civil.Date `json:"last_reminder_sent_date,omitempty"`

	PollCursor *int64 `json:"poll_cursor,omitempty"`
}

// DefaultState returns the state written by init and used whenever the
// persisted state is missing or unreadable.
func DefaultState() *State {
	return &State{
		ReminderHour:    DefaultReminderHour,
		ReminderMinute:  DefaultReminderMinute,
		ReminderEnabled: true,
	}
}

// BusyFor reports whether the busy window covers day.
func (s *State) BusyFor(day civil.Date) bool {
	if !s.BusyActive || s.BusyUntil == nil {
		return false
	}
	return !day.After(*s.BusyUntil)
}

// StartBusy opens a busy window covering today and the following days-1
// days. days below one count as one. An empty note keeps the previous one.
func (s *State) StartBusy(today civil.Date, days int, note string) civil.Date {
	if days < 1 {
		days = 1
	}
	until := today.AddDays(days - 1)
	s.BusyActive = true
	s.BusyUntil = &until
	if note != "" {
		s.BusyNote = note
	}
	return until
}

func (s *State) EndBusy() {
	s.BusyActive = false
	s.BusyUntil = nil
}

// TickDoneOn reports whether the daily marker action already ran for day.
func (s *State) TickDoneOn(day civil.Date) bool {
	return SameDate(s.LastTickDate, day)
}

// ReminderSentOn reports whether the evening reminder already fired for day.
func (s *State) ReminderSentOn(day civil.Date) bool {
	return SameDate(s.LastReminderSentDate, day)
}

// Cursor returns the poll cursor, zero when unset.
func (s *State) Cursor() int64 {
	if s.PollCursor == nil {
		return 0
	}
	return *s.PollCursor
}

// Seen reports whether an update id is at or below the persisted cursor.
func (s *State) Seen(updateID int64) bool {
	return s.PollCursor != nil && updateID <= *s.PollCursor
}

// AdvanceCursor moves the cursor forward; it never moves backwards.
func (s *State) AdvanceCursor(updateID int64) {
	if s.Seen(updateID) {
		return
	}
	s.PollCursor = &updateID
}

func SameDate(d *civil.Date, day civil.Date) bool {
	return d != nil && *d == day
}

func DatePtr(d civil.Date) *civil.Date {
	return &d
}
