package git

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streakkeeper/internal/errors"
)

// mockExecutor records commands and answers by git subcommand.
type mockExecutor struct {
	commands [][]string
	outputs  map[string]string
	fail     map[string]error
}

func newMockExecutor() *mockExecutor {
	return &mockExecutor{outputs: map[string]string{}, fail: map[string]error{}}
}

func (m *mockExecutor) ExecuteWithOutput(cmd *exec.Cmd) (string, error) {
	args := cmd.Args[1:]
	m.commands = append(m.commands, args)
	sub := subcommand(args)
	if err, ok := m.fail[sub]; ok {
		return "", errors.NewGitError(sub, args, err, "boom")
	}
	return m.outputs[sub], nil
}

func (m *mockExecutor) joined() []string {
	var out []string
	for _, c := range m.commands {
		out = append(out, strings.Join(c, " "))
	}
	return out
}

func TestCommitStagesOnlyGivenPaths(t *testing.T) {
	root := t.TempDir()
	exe := newMockExecutor()
	exe.outputs["rev-parse"] = "abc1234"
	repo := NewWithExecutor(Options{Root: root}, exe, nil)

	ref, err := repo.Commit([]string{
		filepath.Join(root, "streak-heartbeat.md"),
		filepath.Join(root, ".streakkeeper", "state.json"),
	}, "chore(streak): keep streak 2024-05-02")
	require.NoError(t, err)
	assert.Equal(t, "abc1234", ref)

	assert.Equal(t, []string{
		"-C " + root + " add -- streak-heartbeat.md .streakkeeper/state.json",
		"-C " + root + " commit -m chore(streak): keep streak 2024-05-02 -- streak-heartbeat.md .streakkeeper/state.json",
		"-C " + root + " rev-parse --short HEAD",
	}, exe.joined())
}

func TestCommitFailureIsCommitFailed(t *testing.T) {
	exe := newMockExecutor()
	exe.fail["commit"] = errors.New("exit status 1")
	repo := NewWithExecutor(Options{Root: t.TempDir()}, exe, nil)

	_, err := repo.Commit([]string{"a.md"}, "msg")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCommitFailed))

	var gitErr *errors.GitError
	require.True(t, errors.As(err, &gitErr))
	assert.Equal(t, "commit", gitErr.Operation)

	_, err = repo.Commit(nil, "msg")
	assert.True(t, errors.Is(err, errors.ErrCommitFailed))
}

func TestPushUsesConfiguredBranch(t *testing.T) {
	exe := newMockExecutor()
	repo := NewWithExecutor(Options{Root: "/repo", Remote: "upstream", Branch: "main"}, exe, nil)

	require.NoError(t, repo.Push())
	assert.Equal(t, []string{"-C /repo push upstream main"}, exe.joined())
	assert.Equal(t, "upstream main", repo.Target(context.Background()))
}

func TestPushWithoutBranchFails(t *testing.T) {
	exe := newMockExecutor()
	exe.outputs["rev-parse"] = "HEAD"
	repo := NewWithExecutor(Options{Root: "/repo"}, exe, nil)

	err := repo.Push()
	assert.True(t, errors.Is(err, errors.ErrPushFailed))
	assert.Equal(t, "origin <unknown-branch>", repo.Target(context.Background()))
}

func TestRepoFacts(t *testing.T) {
	exe := newMockExecutor()
	exe.outputs["status"] = " M a.go\n?? b.go\n"
	exe.outputs["ls-files"] = "a.go\nc.go\nd.go"
	exe.outputs["log"] = "fix: things"
	exe.outputs["branch"] = "dev"
	repo := NewWithExecutor(Options{Root: "/repo"}, exe, nil)
	ctx := context.Background()

	changed, err := repo.ChangedFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, changed)

	tracked, err := repo.TrackedFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, tracked)

	subject, err := repo.LastCommitSubject(ctx)
	require.NoError(t, err)
	assert.Equal(t, "fix: things", subject)

	has, err := repo.HasCommitSince(ctx, time.Date(2024, 5, 2, 0, 0, 0, 0, time.Local))
	require.NoError(t, err)
	assert.True(t, has)
	assert.Contains(t, exe.joined(), "-C /repo log --since 2024-05-02 00:00:00 --pretty=format:%H")

	branch, err := repo.Branch(ctx)
	require.NoError(t, err)
	assert.Equal(t, "dev", branch)
}

func runGit(t *testing.T, dir string, args ...string) string {
	t.Helper()
	cmd := exec.Command("git", append([]string{"-C", dir}, args...)...)
	out, err := cmd.CombinedOutput()
	require.NoError(t, err, string(out))
	return strings.TrimSpace(string(out))
}

func TestRealRepositoryCommitAndPush(t *testing.T) {
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

	require.NoError(t, os.WriteFile(filepath.Join(root, "unrelated.txt"), []byte("x"), 0o644))
	marker := filepath.Join(root, "streak-heartbeat.md")
	require.NoError(t, os.WriteFile(marker, []byte("- 2024-05-02 10:00:00 | hi\n"), 0o644))

	repo := New(Options{Root: root}, nil)
	ctx := context.Background()
	require.NoError(t, repo.EnsureRepository(ctx))

	ref, err := repo.Commit([]string{marker}, "chore(streak): keep streak 2024-05-02")
	require.NoError(t, err)
	assert.Equal(t, runGit(t, root, "rev-parse", "--short", "HEAD"), ref)

	// the untracked file must not be swept into the commit
	assert.Equal(t, "streak-heartbeat.md", runGit(t, root, "show", "--name-only", "--pretty=format:", "HEAD"))

	changed, err := repo.ChangedFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	require.NoError(t, repo.Push())
	assert.Equal(t, runGit(t, root, "rev-parse", "HEAD"), runGit(t, remote, "rev-parse", "main"))

	has, err := repo.HasCommitSince(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.True(t, has)
}

func TestEnsureRepositoryOutsideWorkTree(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	repo := New(Options{Root: t.TempDir()}, nil)
	err := repo.EnsureRepository(context.Background())
	assert.True(t, errors.Is(err, errors.ErrNotGitRepository))
}
