package models

import "time"

// Update is one inbound chat message reduced to what the dispatcher needs.
type Update struct {
	ID         int64  `json:"update_id"`
	OperatorID string `json:"chat_id"` // telegram chat id as decimal string
	Text       string `json:"text"`
}

// TickOutcome is the result kind of a daily marker action.
type TickOutcome string

const (
	TickDryRun    TickOutcome = "dry_run"
	TickSkipped   TickOutcome = "skipped"
	TickCommitted TickOutcome = "committed"
	TickFailed    TickOutcome = "failed"
)

// SkipReason explains why an un-forced tick did nothing.
type SkipReason string

const (
	SkipNone      SkipReason = ""
	SkipBusy      SkipReason = "busy"
	SkipDoneToday SkipReason = "done_today"
)

// TickResult is returned by the engine for every tick request.
type TickResult struct {
	Outcome TickOutcome
	Due     bool
	Skip    SkipReason
	Date    string // YYYY-MM-DD the tick was evaluated for
	Message string // commit message used or that would be used
	Target  string // "<remote> <branch>" for push
	Ref     string
	Pushed  bool
	PushErr error
	Err     error
}

// MaintainOutcome is the result kind of a maintenance snapshot.
type MaintainOutcome string

const (
	MaintainDryRun    MaintainOutcome = "dry_run"
	MaintainCommitted MaintainOutcome = "committed"
	MaintainFailed    MaintainOutcome = "failed"
)

// Snapshot holds the lightweight repository facts recorded by maintenance.
type Snapshot struct {
	ID                   string
	Taken                time.Time
	Note                 string
	Branch               string
	TrackedFiles         int
	ChangedFilesBefore   int
	HadCommitTodayBefore bool
	LastCommitSubject    string
}

// MaintainResult is returned by the engine for every maintenance request.
type MaintainResult struct {
	Outcome  MaintainOutcome
	Snapshot Snapshot
	Message  string
	Target   string
	Ref      string
	Pushed   bool
	PushErr  error
	Err      error
}

// JournalKind identifies an entry in the action journal.
type JournalKind string

const (
	JournalTick     JournalKind = "tick"
	JournalMaintain JournalKind = "maintain"
	JournalReminder JournalKind = "reminder"
	JournalBind     JournalKind = "bind"
	JournalBusy     JournalKind = "busy"
)

// JournalEntry records one action taken by the system.
type JournalEntry struct {
	ID        string      `db:"id"`
	Kind      JournalKind `db:"kind"`
	Day       string      `db:"day"`     // YYYY-MM-DD
	Outcome   string      `db:"outcome"` // committed / failed / skipped / sent ...
	Ref       string      `db:"ref"`
	Detail    string      `db:"detail"`
	CreatedAt int64       `db:"created_at"`
}
