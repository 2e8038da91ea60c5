package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"cloud.google.com/go/civil"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"streakkeeper/internal/auth"
	"streakkeeper/internal/config"
	"streakkeeper/internal/engine"
	"streakkeeper/internal/errors"
	"streakkeeper/internal/git"
	"streakkeeper/internal/messages"
	"streakkeeper/internal/models"
	"streakkeeper/internal/storage"
)

// ignored keeps local runtime files out of the streak commits.
const ignored = "journal.db*\n*.lock\n.state-*.json\n"

var (
	initForce bool

	busyDays int
	busyNote string

	tickDryRun  bool
	tickForce   bool
	tickNote    string
	tickMessage string

	maintainDryRun  bool
	maintainNoPush  bool
	maintainNote    string
	maintainMessage string

	historyLimit int
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the config and state files in the repository",
	Args:  cobra.NoArgs,
	RunE:  runInit,
}

var busyCmd = &cobra.Command{
	Use:   "busy",
	Short: "Suspend the daily tick for a number of days, today included",
	Args:  cobra.NoArgs,
	RunE:  runBusy,
}

var offCmd = &cobra.Command{
	Use:   "off",
	Short: "End the busy window",
	Args:  cobra.NoArgs,
	RunE:  runOff,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show busy window, last tick and repository state",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Make today's streak commit if it is due",
	Args:  cobra.NoArgs,
	RunE:  runTick,
}

var maintainCmd = &cobra.Command{
	Use:   "maintain",
	Short: "Commit a repository snapshot to the maintenance file",
	Args:  cobra.NoArgs,
	RunE:  runMaintain,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent actions from the journal",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing config file")

	busyCmd.Flags().IntVar(&busyDays, "days", 1, "Number of days, today included")
	busyCmd.Flags().StringVar(&busyNote, "note", "", "Note written to the marker file while busy")

	tickCmd.Flags().BoolVar(&tickDryRun, "dry-run", false, "Report the decision without writing or committing")
	tickCmd.Flags().BoolVar(&tickForce, "force", false, "Commit even when busy or already done today")
	tickCmd.Flags().StringVar(&tickNote, "note", "", "Note for the marker line")
	tickCmd.Flags().StringVar(&tickMessage, "message", "", "Commit message")

	maintainCmd.Flags().BoolVar(&maintainDryRun, "dry-run", false, "Report the snapshot without writing or committing")
	maintainCmd.Flags().BoolVar(&maintainNoPush, "no-push", false, "Commit without pushing")
	maintainCmd.Flags().StringVar(&maintainNote, "note", "", "Note for the snapshot")
	maintainCmd.Flags().StringVar(&maintainMessage, "message", "", "Commit message")

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of entries")
}

func runInit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := config.Load(rootDir)
	if err != nil && !errors.Is(err, errors.ErrConfig) {
		return err
	}
	if err != nil {
		// a broken file is only replaced on request
		if !initForce {
			return err
		}
		cfg = config.Default()
		cfg.Root = rootDir
	}

	repo := git.New(git.Options{Root: cfg.Root}, logger)
	if err := repo.EnsureRepository(ctx); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	path := config.Path(cfg.Root)
	if _, statErr := os.Stat(path); os.IsNotExist(statErr) || initForce {
		if err := config.Write(cfg); err != nil {
			return errors.Wrap(err, "writing config")
		}
		fmt.Fprintf(out, "Wrote %s\n", path)
	} else {
		fmt.Fprintf(out, "Keeping existing %s\n", path)
	}

	ignore := filepath.Join(cfg.Root, config.AppDir, ".gitignore")
	if _, statErr := os.Stat(ignore); os.IsNotExist(statErr) {
		if err := os.WriteFile(ignore, []byte(ignored), 0o644); err != nil {
			return errors.Wrap(err, "writing .gitignore")
		}
	}

	store := storage.NewStateStore(cfg.StatePath(), logger)
	st := store.Load()
	if !store.Exists() {
		if err := store.Save(st); err != nil {
			return err
		}
		fmt.Fprintf(out, "Wrote %s\n", store.Path())
	}
	if err := auth.NewGate(store, cfg.Telegram.AutoBindOnStart, logger).Preconfigure(st, cfg.Telegram.AllowedChatID); err != nil {
		return err
	}
	if st.BoundOperatorID != "" {
		fmt.Fprintf(out, "Bound chat: %s\n", st.BoundOperatorID)
	}
	logger.Info("initialized", zap.String("root", cfg.Root))
	return nil
}

func runBusy(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	today := civil.DateOf(a.now())
	var until civil.Date
	if _, err := a.store.Update(func(s *models.State) error {
		until = s.StartBusy(today, busyDays, busyNote)
		return nil
	}); err != nil {
		return err
	}
	a.record(models.JournalEntry{Kind: models.JournalBusy, Day: today.String(), Outcome: "on", Detail: "until " + until.String()})
	fmt.Fprintln(cmd.OutOrStdout(), messages.BusyOn(until.String()))
	return nil
}

func runOff(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.store.Update(func(s *models.State) error {
		s.EndBusy()
		return nil
	}); err != nil {
		return err
	}
	a.record(models.JournalEntry{Kind: models.JournalBusy, Day: civil.DateOf(a.now()).String(), Outcome: "off"})
	fmt.Fprintln(cmd.OutOrStdout(), messages.BusyOff())
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	now := a.now()
	today := civil.DateOf(now)
	view := messages.StatusView{
		Today:         today,
		State:         a.store.Load(),
		HeartbeatFile: a.cfg.Streak.HeartbeatFile,
	}
	if branch, err := a.repo.Branch(ctx); err == nil {
		view.FactsAvailable = true
		view.Branch = branch
		view.CommitToday, _ = a.repo.HasCommitSince(ctx, engine.StartOfDay(now))
		view.ChangedFiles, _ = a.repo.ChangedFiles(ctx)
	}
	view.Streak, _ = a.journal.TickStreak(today)

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, messages.Status(view))
	fmt.Fprintf(out, "- Tick due today: %t\n", engine.EvaluateTickDue(view.State, today, false))
	fmt.Fprintf(out, "- State file: %s\n", a.store.Path())
	return nil
}

func runTick(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	res := a.engine.Tick(cmd.Context(), a.store.Load(), engine.TickRequest{
		Now:     a.now(),
		Note:    tickNote,
		Message: tickMessage,
		DryRun:  tickDryRun,
		Force:   tickForce,
	})
	fmt.Fprintln(cmd.OutOrStdout(), messages.Tick(res))
	if res.Outcome == models.TickFailed {
		return res.Err
	}
	return nil
}

func runMaintain(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	res := a.engine.Maintain(cmd.Context(), engine.MaintainRequest{
		Now:     a.now(),
		Note:    maintainNote,
		Message: maintainMessage,
		DryRun:  maintainDryRun,
		NoPush:  maintainNoPush,
	})
	fmt.Fprintln(cmd.OutOrStdout(), messages.Maintain(res))
	if res.Outcome == models.MaintainFailed {
		return res.Err
	}
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	if historyLimit < 1 {
		return errors.NewValidationError("history --limit N", "limit must be positive")
	}
	entries, err := a.journal.Recent(historyLimit)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), messages.History(entries))
	return nil
}

func (a *app) record(e models.JournalEntry) {
	if err := a.journal.Record(e); err != nil {
		logger.Warn("journal write failed", zap.String("kind", string(e.Kind)), zap.Error(err))
	}
}
