package git

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"streakkeeper/internal/errors"
)

// Repo stages, commits and pushes inside one working tree. Commands that
// change the repository are run without a context so a shutdown signal never
// interrupts a commit halfway; read-only queries honour ctx.
type Repo struct {
	root     string
	remote   string
	branch   string
	executor CommandExecutor
	log      *zap.Logger
}

type Options struct {
	Root   string
	Remote string
	Branch string // empty: use the checked out branch
}

func New(opts Options, log *zap.Logger) *Repo {
	return NewWithExecutor(opts, NewExecExecutor(), log)
}

func NewWithExecutor(opts Options, executor CommandExecutor, log *zap.Logger) *Repo {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.Remote == "" {
		opts.Remote = "origin"
	}
	if opts.Root == "" {
		opts.Root = "."
	}
	return &Repo{
		root:     opts.Root,
		remote:   opts.Remote,
		branch:   opts.Branch,
		executor: executor,
		log:      log,
	}
}

// EnsureRepository fails with ErrNotGitRepository outside a work tree.
func (r *Repo) EnsureRepository(ctx context.Context) error {
	out, err := r.query(ctx, "rev-parse", "--is-inside-work-tree")
	if err != nil || out != "true" {
		return errors.Wrapf(errors.ErrNotGitRepository, "%s", r.root)
	}
	return nil
}

// Commit stages exactly paths and commits only them. It returns the short
// hash of the new commit.
func (r *Repo) Commit(paths []string, message string) (string, error) {
	if len(paths) == 0 {
		return "", errors.Wrap(errors.ErrCommitFailed, "no paths to commit")
	}
	rel := make([]string, 0, len(paths))
	for _, p := range paths {
		rel = append(rel, r.relative(p))
	}

	addArgs := append([]string{"add", "--"}, rel...)
	if _, err := r.mutate(addArgs...); err != nil {
		return "", fmt.Errorf("%w: %w", errors.ErrCommitFailed, err)
	}

	commitArgs := append([]string{"commit", "-m", message, "--"}, rel...)
	if _, err := r.mutate(commitArgs...); err != nil {
		return "", fmt.Errorf("%w: %w", errors.ErrCommitFailed, err)
	}

	ref, err := r.mutate("rev-parse", "--short", "HEAD")
	if err != nil {
		return "", fmt.Errorf("%w: %w", errors.ErrCommitFailed, err)
	}
	r.log.Info("commit created", zap.String("ref", ref), zap.Strings("paths", rel))
	return ref, nil
}

// Push sends the configured (or current) branch to the remote.
func (r *Repo) Push() error {
	branch, err := r.Branch(context.Background())
	if err != nil || branch == "" {
		return errors.Wrap(errors.ErrPushFailed,
			"branch could not be detected; set streak.branch or create the first commit")
	}
	if _, err := r.mutate("push", r.remote, branch); err != nil {
		return fmt.Errorf("%w: %w", errors.ErrPushFailed, err)
	}
	r.log.Info("pushed", zap.String("remote", r.remote), zap.String("branch", branch))
	return nil
}

// Target describes where Push would go, for dry runs and status.
func (r *Repo) Target(ctx context.Context) string {
	branch, _ := r.Branch(ctx)
	if branch == "" {
		branch = "<unknown-branch>"
	}
	return r.remote + " " + branch
}

// Branch returns the configured branch, else the checked out one.
func (r *Repo) Branch(ctx context.Context) (string, error) {
	if r.branch != "" {
		return r.branch, nil
	}
	if out, err := r.query(ctx, "branch", "--show-current"); err == nil && out != "" {
		return out, nil
	}
	out, err := r.query(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	if out == "HEAD" {
		return "", nil
	}
	return out, nil
}

// HasCommitSince reports whether any commit on HEAD is newer than t.
func (r *Repo) HasCommitSince(ctx context.Context, t time.Time) (bool, error) {
	out, err := r.query(ctx, "log", "--since", t.Format("2006-01-02 15:04:05"), "--pretty=format:%H")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

func (r *Repo) ChangedFiles(ctx context.Context) (int, error) {
	out, err := r.query(ctx, "status", "--porcelain")
	if err != nil {
		return 0, err
	}
	return countLines(out), nil
}

func (r *Repo) TrackedFiles(ctx context.Context) (int, error) {
	out, err := r.query(ctx, "ls-files")
	if err != nil {
		return 0, err
	}
	return countLines(out), nil
}

func (r *Repo) LastCommitSubject(ctx context.Context) (string, error) {
	return r.query(ctx, "log", "-1", "--pretty=%s")
}

func (r *Repo) query(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", r.root}, args...)...)
	return r.executor.ExecuteWithOutput(cmd)
}

func (r *Repo) mutate(args ...string) (string, error) {
	cmd := exec.Command("git", append([]string{"-C", r.root}, args...)...)
	out, err := r.executor.ExecuteWithOutput(cmd)
	if err != nil {
		r.log.Debug("git command failed", zap.Strings("args", args), zap.Error(err))
	}
	return out, err
}

func (r *Repo) relative(p string) string {
	rootAbs, err := filepath.Abs(r.root)
	if err != nil {
		return p
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return p
	}
	if rel, err := filepath.Rel(rootAbs, abs); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return abs
}

func countLines(s string) int {
	n := 0
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}
