package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	skerrors "streakkeeper/internal/errors"
	"streakkeeper/internal/models"
)

const (
	lockTimeout    = 5 * time.Second
	lockRetryDelay = 50 * time.Millisecond
)

// StateStore is the only writer of state.json. Writes take an exclusive
// flock on a sibling lock file and replace the file by rename, so a reader
// sees either the old or the new record and never a partial one.
type StateStore struct {
	path string
	mu   sync.Mutex // flock is re-entrant within one Flock value
	lock *flock.Flock
	log  *zap.Logger
}

func NewStateStore(path string, log *zap.Logger) *StateStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &StateStore{
		path: path,
		lock: flock.New(path + ".lock"),
		log:  log,
	}
}

func (s *StateStore) Path() string { return s.path }

func (s *StateStore) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load returns the persisted state, or defaults when the file is missing or
// unreadable. It never fails.
func (s *StateStore) Load() *models.State {
	st, err := s.read()
	if err != nil {
		s.log.Warn("state unreadable, falling back to defaults",
			zap.String("path", s.path), zap.Error(err))
		return models.DefaultState()
	}
	return st
}

// Save persists st under the state lock.
func (s *StateStore) Save(st *models.State) error {
	return s.withLock(func() error {
		return s.write(st)
	})
}

// Update runs fn against the freshest on-disk state and persists the result
// within one lock acquisition. When fn returns an error nothing is written.
func (s *StateStore) Update(fn func(*models.State) error) (*models.State, error) {
	var out *models.State
	err := s.withLock(func() error {
		st, err := s.read()
		if err != nil {
			s.log.Warn("state unreadable, updating defaults",
				zap.String("path", s.path), zap.Error(err))
			st = models.DefaultState()
		}
		if err := fn(st); err != nil {
			return err
		}
		if err := s.write(st); err != nil {
			return err
		}
		out = st
		return nil
	})
	return out, err
}

func (s *StateStore) withLock(fn func() error) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return skerrors.Wrap(err, "creating state directory")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), lockTimeout)
	defer cancel()

	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil && !skerrors.Is(err, context.DeadlineExceeded) {
		return skerrors.Wrap(err, "acquiring state lock")
	}
	if !locked {
		return skerrors.Wrapf(skerrors.ErrLockTimeout, "lock %s", s.lock.Path())
	}
	defer func() {
		if err := s.lock.Unlock(); err != nil {
			s.log.Warn("releasing state lock", zap.Error(err))
		}
	}()

	return fn()
}

func (s *StateStore) read() (*models.State, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return models.DefaultState(), nil
	}
	if err != nil {
		return nil, err
	}

	st := models.DefaultState()
	if err := json.Unmarshal(data, st); err != nil {
		return nil, skerrors.Wrap(skerrors.ErrStateCorrupted, err.Error())
	}
	if st.ReminderHour < 0 || st.ReminderHour > 23 || st.ReminderMinute < 0 || st.ReminderMinute > 59 {
		return nil, skerrors.Wrapf(skerrors.ErrStateCorrupted,
			"reminder time %d:%d out of range", st.ReminderHour, st.ReminderMinute)
	}
	return st, nil
}

func (s *StateStore) write(st *models.State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return skerrors.Wrap(err, "encoding state")
	}
	data = append(data, '\n')

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return skerrors.Wrap(err, "creating temp state file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return skerrors.Wrap(err, "writing temp state file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return skerrors.Wrap(err, "syncing temp state file")
	}
	if err := tmp.Close(); err != nil {
		return skerrors.Wrap(err, "closing temp state file")
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return skerrors.Wrap(err, "chmod temp state file")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return skerrors.Wrap(err, "replacing state file")
	}
	return nil
}
