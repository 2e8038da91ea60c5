package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"streakkeeper/internal/errors"
	"streakkeeper/internal/models"
)

const (
	defaultTickNote     = "Busy mode"
	defaultMaintainNote = "Daily maintenance snapshot"
	markerTimeLayout    = "2006-01-02 15:04:05"
)

// Repo is the commit adapter plus the read-only facts used by maintenance.
type Repo interface {
	Commit(paths []string, message string) (string, error)
	Push() error
	Target(ctx context.Context) string
	Branch(ctx context.Context) (string, error)
	TrackedFiles(ctx context.Context) (int, error)
	ChangedFiles(ctx context.Context) (int, error)
	HasCommitSince(ctx context.Context, t time.Time) (bool, error)
	LastCommitSubject(ctx context.Context) (string, error)
}

type StateStore interface {
	Path() string
	Exists() bool
	Load() *models.State
	Update(fn func(*models.State) error) (*models.State, error)
}

// errNotDue aborts the locked due check without writing state.
var errNotDue = errors.New("tick not due")

// Recorder receives journal entries. Failures are logged, never returned.
type Recorder interface {
	Record(e models.JournalEntry) error
}

type Options struct {
	HeartbeatPath     string
	MaintenancePath   string
	CommitPrefix      string
	MaintenancePrefix string
	BusyNote          string
	Push              bool
}

type Engine struct {
	opts    Options
	repo    Repo
	store   StateStore
	journal Recorder
	log     *zap.Logger
}

func New(opts Options, repo Repo, store StateStore, journal Recorder, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.CommitPrefix == "" {
		opts.CommitPrefix = "chore(streak)"
	}
	if opts.MaintenancePrefix == "" {
		opts.MaintenancePrefix = "chore(maintenance)"
	}
	return &Engine{opts: opts, repo: repo, store: store, journal: journal, log: log}
}

// EvaluateTickDue reports whether the daily marker action should run on today.
func EvaluateTickDue(st *models.State, today civil.Date, force bool) bool {
	if force {
		return true
	}
	return !st.BusyFor(today) && !st.TickDoneOn(today)
}

func skipReason(st *models.State, today civil.Date) models.SkipReason {
	switch {
	case st.BusyFor(today):
		return models.SkipBusy
	case st.TickDoneOn(today):
		return models.SkipDoneToday
	}
	return models.SkipNone
}

type TickRequest struct {
	Now     time.Time // read once by the caller, already in the configured zone
	Note    string
	Message string
	DryRun  bool
	Force   bool
}

// Tick runs the daily marker action. The decision is taken on the state
// file as it is under the lock, not on st, since another process (the daily
// schedule) may have ticked since st was read. st is refreshed from disk and
// updated in place when the commit succeeds.
func (e *Engine) Tick(ctx context.Context, st *models.State, req TickRequest) models.TickResult {
	today := civil.DateOf(req.Now)

	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		msg = fmt.Sprintf("%s: keep streak %s", e.opts.CommitPrefix, today)
	}
	res := models.TickResult{
		Date:    today.String(),
		Message: msg,
	}

	if req.DryRun {
		cur := st
		if e.store.Exists() {
			cur = e.store.Load()
		}
		res.Due = EvaluateTickDue(cur, today, req.Force)
		if !req.Force {
			res.Skip = skipReason(cur, today)
		}
		res.Outcome = models.TickDryRun
		res.Target = e.repo.Target(ctx)
		return res
	}

	// a due check that passes also writes the state file, which git add needs
	var cur models.State
	_, err := e.store.Update(func(s *models.State) error {
		cur = *s
		if !EvaluateTickDue(s, today, req.Force) {
			return errNotDue
		}
		return nil
	})
	if err != nil && !errors.Is(err, errNotDue) {
		return e.tickFailed(res, errors.Wrap(err, "checking state"))
	}
	*st = cur
	res.Due = err == nil
	if !req.Force {
		res.Skip = skipReason(st, today)
	}
	if !res.Due {
		res.Outcome = models.TickSkipped
		e.record(models.JournalEntry{Kind: models.JournalTick, Day: res.Date, Outcome: string(res.Outcome), Detail: string(res.Skip)})
		return res
	}

	note := firstNonEmpty(req.Note, st.BusyNote, e.opts.BusyNote, defaultTickNote)
	restore, err := upsertMarker(e.opts.HeartbeatPath, today, markerLine(req.Now, note))
	if err != nil {
		return e.tickFailed(res, errors.Wrap(err, "writing marker file"))
	}

	ref, err := e.repo.Commit([]string{e.opts.HeartbeatPath, e.store.Path()}, msg)
	if err != nil {
		restore()
		return e.tickFailed(res, err)
	}
	res.Outcome = models.TickCommitted
	res.Ref = ref

	fresh, err := e.store.Update(func(s *models.State) error {
		s.LastTickDate = models.DatePtr(today)
		s.LastCommitRef = ref
		return nil
	})
	if err != nil {
		res.Err = errors.Wrap(err, "saving state after commit")
		e.log.Error("tick committed but state not saved", zap.String("ref", ref), zap.Error(err))
	} else {
		*st = *fresh
	}

	if e.opts.Push {
		if err := e.repo.Push(); err != nil {
			res.PushErr = err
			e.log.Warn("tick push failed", zap.String("ref", ref), zap.Error(err))
		} else {
			res.Pushed = true
		}
	}

	e.log.Info("tick committed", zap.String("date", res.Date), zap.String("ref", ref), zap.Bool("pushed", res.Pushed))
	e.record(models.JournalEntry{Kind: models.JournalTick, Day: res.Date, Outcome: string(res.Outcome), Ref: ref, Detail: note})
	return res
}

func (e *Engine) tickFailed(res models.TickResult, err error) models.TickResult {
	res.Outcome = models.TickFailed
	res.Err = err
	e.log.Error("tick failed", zap.String("date", res.Date), zap.Error(err))
	e.record(models.JournalEntry{Kind: models.JournalTick, Day: res.Date, Outcome: string(res.Outcome), Detail: err.Error()})
	return res
}

type MaintainRequest struct {
	Now     time.Time
	Note    string
	Message string
	DryRun  bool
	NoPush  bool
}

// Maintain appends a repository snapshot to the maintenance file and commits
// it. Unlike Tick it may run any number of times per day.
func (e *Engine) Maintain(ctx context.Context, req MaintainRequest) models.MaintainResult {
	today := civil.DateOf(req.Now)
	snap := e.snapshot(ctx, req)

	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		msg = fmt.Sprintf("%s: repo snapshot %s", e.opts.MaintenancePrefix, today)
	}
	res := models.MaintainResult{Snapshot: snap, Message: msg}

	if req.DryRun {
		res.Outcome = models.MaintainDryRun
		res.Target = e.repo.Target(ctx)
		return res
	}

	restore, err := appendFile(e.opts.MaintenancePath, snapshotSection(snap))
	if err != nil {
		return e.maintainFailed(res, today, errors.Wrap(err, "writing maintenance file"))
	}

	ref, err := e.repo.Commit([]string{e.opts.MaintenancePath}, msg)
	if err != nil {
		restore()
		return e.maintainFailed(res, today, err)
	}
	res.Outcome = models.MaintainCommitted
	res.Ref = ref

	if e.opts.Push && !req.NoPush {
		if err := e.repo.Push(); err != nil {
			res.PushErr = err
			e.log.Warn("maintenance push failed", zap.String("ref", ref), zap.Error(err))
		} else {
			res.Pushed = true
		}
	}

	e.log.Info("maintenance committed", zap.String("snapshot", snap.ID), zap.String("ref", ref))
	e.record(models.JournalEntry{Kind: models.JournalMaintain, Day: today.String(), Outcome: string(res.Outcome), Ref: ref, Detail: snap.Note})
	return res
}

func (e *Engine) maintainFailed(res models.MaintainResult, today civil.Date, err error) models.MaintainResult {
	res.Outcome = models.MaintainFailed
	res.Err = err
	e.log.Error("maintenance failed", zap.Error(err))
	e.record(models.JournalEntry{Kind: models.JournalMaintain, Day: today.String(), Outcome: string(res.Outcome), Detail: err.Error()})
	return res
}

func (e *Engine) snapshot(ctx context.Context, req MaintainRequest) models.Snapshot {
	snap := models.Snapshot{
		ID:                uuid.NewString()[:8],
		Taken:             req.Now,
		Note:              firstNonEmpty(req.Note, defaultMaintainNote),
		Branch:            "unknown",
		LastCommitSubject: "-",
	}
	if b, err := e.repo.Branch(ctx); err == nil && b != "" {
		snap.Branch = b
	}
	if n, err := e.repo.TrackedFiles(ctx); err == nil {
		snap.TrackedFiles = n
	}
	if n, err := e.repo.ChangedFiles(ctx); err == nil {
		snap.ChangedFilesBefore = n
	}
	if ok, err := e.repo.HasCommitSince(ctx, StartOfDay(req.Now)); err == nil {
		snap.HadCommitTodayBefore = ok
	}
	if s, err := e.repo.LastCommitSubject(ctx); err == nil && s != "" {
		snap.LastCommitSubject = s
	}
	return snap
}

func (e *Engine) record(entry models.JournalEntry) {
	if e.journal == nil {
		return
	}
	if err := e.journal.Record(entry); err != nil {
		e.log.Warn("journal write failed", zap.String("kind", string(entry.Kind)), zap.Error(err))
	}
}

// StartOfDay returns local midnight of t's calendar day.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func markerLine(now time.Time, note string) string {
	return fmt.Sprintf("- %s | %s", now.Format(markerTimeLayout), note)
}

// upsertMarker replaces the line for day or appends one. The returned
// function puts the previous content back.
func upsertMarker(path string, day civil.Date, line string) (restore func(), err error) {
	prev, existed, err := readOptional(path)
	if err != nil {
		return nil, err
	}

	prefix := "- " + day.String() + " "
	var lines []string
	replaced := false
	for _, l := range strings.Split(strings.TrimRight(string(prev), "\n"), "\n") {
		if l == "" {
			continue
		}
		if strings.HasPrefix(l, prefix) {
			if !replaced {
				lines = append(lines, line)
				replaced = true
			}
			continue
		}
		lines = append(lines, l)
	}
	if !replaced {
		lines = append(lines, line)
	}

	if err := writeFile(path, []byte(strings.Join(lines, "\n")+"\n")); err != nil {
		return nil, err
	}
	return restorer(path, prev, existed), nil
}

func appendFile(path, section string) (restore func(), err error) {
	prev, existed, err := readOptional(path)
	if err != nil {
		return nil, err
	}
	data := append([]byte{}, prev...)
	if len(data) > 0 && data[len(data)-1] != '\n' {
		data = append(data, '\n')
	}
	data = append(data, section...)
	if err := writeFile(path, data); err != nil {
		return nil, err
	}
	return restorer(path, prev, existed), nil
}

func snapshotSection(s models.Snapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s\n", s.Taken.Format(time.RFC3339))
	fmt.Fprintf(&b, "- snapshot: %s\n", s.ID)
	fmt.Fprintf(&b, "- note: %s\n", s.Note)
	fmt.Fprintf(&b, "- branch: %s\n", s.Branch)
	fmt.Fprintf(&b, "- tracked_files: %d\n", s.TrackedFiles)
	fmt.Fprintf(&b, "- changed_files_before: %d\n", s.ChangedFilesBefore)
	fmt.Fprintf(&b, "- had_commit_today_before: %t\n", s.HadCommitTodayBefore)
	fmt.Fprintf(&b, "- previous_last_commit: %s\n", s.LastCommitSubject)
	b.WriteString("\n")
	return b.String()
}

func readOptional(path string) ([]byte, bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func restorer(path string, prev []byte, existed bool) func() {
	return func() {
		if !existed {
			_ = os.Remove(path)
			return
		}
		_ = os.WriteFile(path, prev, 0o644)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
