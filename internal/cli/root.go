package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"streakkeeper/internal/config"
	"streakkeeper/internal/engine"
	"streakkeeper/internal/errors"
	"streakkeeper/internal/git"
	"streakkeeper/internal/storage"
)

var (
	// Global flags
	verbose bool
	rootDir string

	logger *zap.Logger
	clock  clockwork.Clock = clockwork.NewRealClock()
)

var rootCmd = &cobra.Command{
	Use:   "streakkeeper",
	Short: "Keep a daily commit streak alive from the terminal or a Telegram chat",
	Long: `streakkeeper makes at most one small "streak" commit per day in a git
repository, unless a busy window suppresses it. A Telegram bot lets one bound
operator drive it remotely and sends an evening reminder when nothing was
committed yet.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if logger != nil {
			return nil
		}
		cfg := zap.NewProductionConfig()
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = cfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "root", "C", ".", "Repository working tree")

	rootCmd.AddCommand(initCmd, busyCmd, offCmd, statusCmd, tickCmd, maintainCmd, historyCmd, botCmd, scheduleCmd)
}

// Execute runs the command line until it finishes or SIGINT/SIGTERM arrives.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// app holds the collaborators shared by every subcommand.
type app struct {
	cfg     config.Config
	loc     *time.Location
	store   *storage.StateStore
	journal *storage.Journal
	repo    *git.Repo
	engine  *engine.Engine
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(rootDir)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, errors.NewConfigError("streak.timezone", cfg.Streak.Timezone, err)
	}

	repo := git.New(git.Options{Root: cfg.Root, Remote: cfg.Streak.Remote, Branch: cfg.Streak.Branch}, logger)
	if err := repo.EnsureRepository(ctx); err != nil {
		return nil, err
	}

	store := storage.NewStateStore(cfg.StatePath(), logger)
	journal, err := storage.OpenJournal(cfg.JournalPath())
	if err != nil {
		return nil, errors.Wrap(err, "opening journal")
	}

	eng := engine.New(engine.Options{
		HeartbeatPath:     cfg.HeartbeatPath(),
		MaintenancePath:   cfg.MaintenancePath(),
		CommitPrefix:      cfg.Streak.CommitPrefix,
		MaintenancePrefix: cfg.Streak.MaintenancePrefix,
		BusyNote:          cfg.Streak.BusyNote,
		Push:              cfg.Streak.Push,
	}, repo, store, journal, logger)

	return &app{cfg: cfg, loc: loc, store: store, journal: journal, repo: repo, engine: eng}, nil
}

func (a *app) Close() {
	if err := a.journal.Close(); err != nil {
		logger.Warn("closing journal", zap.Error(err))
	}
}

// now is the current time in the configured zone.
func (a *app) now() time.Time {
	return clock.Now().In(a.loc)
}
