package cli

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"streakkeeper/internal/config"
	"streakkeeper/internal/errors"
	"streakkeeper/internal/models"
)

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	out, err := exec.Command("git", append([]string{"-C", dir}, args...)...).CombinedOutput()
	require.NoError(t, err, string(out))
	return strings.TrimSpace(string(out))
}

// setupRepo creates a work tree with a bare origin and points the global
// flags at it.
func setupRepo(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	remote := filepath.Join(t.TempDir(), "remote.git")
	runGit(t, filepath.Dir(remote), "init", "--bare", "-q", remote)

	root := t.TempDir()
	runGit(t, root, "init", "-q", "-b", "main")
	runGit(t, root, "config", "user.email", "streak@example.com")
	runGit(t, root, "config", "user.name", "Streak Keeper")
	runGit(t, root, "config", "commit.gpgsign", "false")
	runGit(t, root, "remote", "add", "origin", remote)

	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("TELEGRAM_ALLOWED_CHAT_ID", "")
	logger = zap.NewNop()
	rootDir = root
	clock = clockwork.NewFakeClockAt(time.Date(2024, 5, 2, 10, 0, 0, 0, time.Local))
	t.Cleanup(func() {
		rootDir = "."
		clock = clockwork.NewRealClock()
	})
	return root
}

func run(t *testing.T, fn func(*cobra.Command, []string) error) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetContext(context.Background())
	err := fn(cmd, nil)
	return out.String(), err
}

func TestInitIsIdempotent(t *testing.T) {
	root := setupRepo(t)

	out, err := run(t, runInit)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+config.Path(root))
	assert.FileExists(t, filepath.Join(root, config.AppDir, config.StateFile))
	assert.FileExists(t, filepath.Join(root, config.AppDir, ".gitignore"))

	out, err = run(t, runInit)
	require.NoError(t, err)
	assert.Contains(t, out, "Keeping existing")
}

func TestInitOutsideRepository(t *testing.T) {
	logger = zap.NewNop()
	rootDir = t.TempDir()
	defer func() { rootDir = "." }()

	_, err := run(t, runInit)
	assert.True(t, errors.Is(err, errors.ErrNotGitRepository))
}

func TestBusyTickOffFlow(t *testing.T) {
	root := setupRepo(t)
	_, err := run(t, runInit)
	require.NoError(t, err)

	busyDays, busyNote = 2, "travel"
	out, err := run(t, runBusy)
	require.NoError(t, err)
	assert.Contains(t, out, "2024-05-03")

	out, err = run(t, runTick)
	require.NoError(t, err)
	assert.Contains(t, out, "Skip: busy mode is active.")

	_, err = run(t, runOff)
	require.NoError(t, err)

	tickNote = "back home"
	defer func() { tickNote = "" }()
	out, err = run(t, runTick)
	require.NoError(t, err)
	assert.Contains(t, out, "Streak commit")
	assert.Contains(t, out, "Pushed.")
	assert.Equal(t, "chore(streak): keep streak 2024-05-02", runGit(t, root, "log", "-1", "--pretty=%s"))

	marker, err := os.ReadFile(filepath.Join(root, config.HeartbeatFile))
	require.NoError(t, err)
	assert.Equal(t, "- 2024-05-02 10:00:00 | back home\n", string(marker))

	out, err = run(t, runTick)
	require.NoError(t, err)
	assert.Contains(t, out, "already done")

	out, err = run(t, runStatus)
	require.NoError(t, err)
	assert.Contains(t, out, "Last tick: 2024-05-02")
	assert.Contains(t, out, "Tick due today: false")
	assert.Contains(t, out, "Commit today: yes")

	historyLimit = 10
	out, err = run(t, runHistory)
	require.NoError(t, err)
	assert.Contains(t, out, "tick committed")
	assert.Contains(t, out, "busy on")
}

func TestTickDryRunDoesNotCommit(t *testing.T) {
	root := setupRepo(t)
	_, err := run(t, runInit)
	require.NoError(t, err)

	tickDryRun = true
	defer func() { tickDryRun = false }()
	out, err := run(t, runTick)
	require.NoError(t, err)
	assert.Contains(t, out, "Dry run for 2024-05-02: due=yes.")
	assert.NoFileExists(t, filepath.Join(root, config.HeartbeatFile))
}

func TestScheduleDisabled(t *testing.T) {
	root := setupRepo(t)
	cfg := config.Default()
	cfg.Root = root
	cfg.Schedule.Enabled = false
	require.NoError(t, config.Write(cfg))

	_, err := run(t, runSchedule)
	assert.True(t, errors.Is(err, errors.ErrConfig))
}

func TestBotRequiresToken(t *testing.T) {
	setupRepo(t)
	_, err := run(t, runInit)
	require.NoError(t, err)

	_, err = run(t, runBot)
	assert.True(t, errors.Is(err, errors.ErrConfig))
}

type recordedMessage struct{ to, text string }

type fakeNotifier struct{ sent []recordedMessage }

func (f *fakeNotifier) SendMessage(_ context.Context, to, text string) error {
	f.sent = append(f.sent, recordedMessage{to, text})
	return nil
}

func TestScheduledTickReportsToBoundChat(t *testing.T) {
	root := setupRepo(t)
	_, err := run(t, runInit)
	require.NoError(t, err)

	ctx := context.Background()
	a, err := openApp(ctx)
	require.NoError(t, err)
	defer a.Close()

	// nobody bound yet: the commit still happens, nothing is sent
	chat := &fakeNotifier{}
	now := clock.Now().In(a.loc)
	res := a.scheduledTick(ctx, chat, now)
	require.Equal(t, models.TickCommitted, res.Outcome, "%v", res.Err)
	assert.Empty(t, chat.sent)
	assert.Equal(t, "chore(streak): keep streak 2024-05-02", runGit(t, root, "log", "-1", "--pretty=%s"))

	_, err = a.store.Update(func(s *models.State) error {
		s.BoundOperatorID = "42"
		return nil
	})
	require.NoError(t, err)

	// second firing the same day is a silent skip
	res = a.scheduledTick(ctx, chat, now.Add(time.Hour))
	assert.Equal(t, models.TickSkipped, res.Outcome)
	assert.Empty(t, chat.sent)

	res = a.scheduledTick(ctx, chat, now.Add(24*time.Hour))
	require.Equal(t, models.TickCommitted, res.Outcome, "%v", res.Err)
	require.Len(t, chat.sent, 1)
	assert.Equal(t, "42", chat.sent[0].to)
	assert.Contains(t, chat.sent[0].text, "Streak commit")
	assert.Contains(t, chat.sent[0].text, "2024-05-03")

	res = a.scheduledTick(ctx, nil, now.Add(25*time.Hour))
	assert.Equal(t, models.TickSkipped, res.Outcome)
	assert.Equal(t, "2", runGit(t, root, "rev-list", "--count", "HEAD"))
}
