package storage

import (
	"database/sql"
	"embed"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"streakkeeper/internal/models"
)

//go:embed schema.sql
var ddl embed.FS

// Journal is the append-only action log. It is informational only: state.json
// stays the source of truth for every decision.
type Journal struct{ *sql.DB }

func OpenJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	if err = migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Journal{db}, nil
}

func migrate(db *sql.DB) error {
	b, err := ddl.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = db.Exec(string(b))
	return err
}

// ---------- entries ---------------------------------------------------------

func (j *Journal) Record(e models.JournalEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt == 0 {
		e.CreatedAt = time.Now().Unix()
	}
	_, err := j.Exec(`
        INSERT INTO actions (id, kind, day, outcome, ref, detail, created_at)
        VALUES (?,?,?,?,?,?,?)
    `, e.ID, string(e.Kind), e.Day, e.Outcome, e.Ref, e.Detail, e.CreatedAt)
	return err
}

// Recent returns the newest entries first.
func (j *Journal) Recent(limit int) ([]models.JournalEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := j.Query(`
        SELECT id, kind, day, outcome, ref, detail, created_at
        FROM actions ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []models.JournalEntry
	for rows.Next() {
		var e models.JournalEntry
		var kind string
		if err := rows.Scan(&e.ID, &kind, &e.Day, &e.Outcome, &e.Ref, &e.Detail, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = models.JournalKind(kind)
		res = append(res, e)
	}
	return res, rows.Err()
}

// TickStreak counts consecutive days with a committed tick, ending at today
// or, when today has none yet, at yesterday.
func (j *Journal) TickStreak(today civil.Date) (int, error) {
	rows, err := j.Query(`
        SELECT DISTINCT day FROM actions
        WHERE kind = ? AND outcome = ?
        ORDER BY day DESC`, string(models.JournalTick), string(models.TickCommitted))
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	want := today
	streak := 0
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return 0, err
		}
		d, err := civil.ParseDate(s)
		if err != nil {
			continue
		}
		if d.After(today) {
			continue
		}
		if streak == 0 && d == today.AddDays(-1) {
			want = d
		}
		if d != want {
			break
		}
		streak++
		want = want.AddDays(-1)
	}
	return streak, rows.Err()
}
