package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/wakamex/issuepilot/internal/agent"
	"github.com/wakamex/issuepilot/internal/config"
	"github.com/wakamex/issuepilot/internal/daemon"
	"github.com/wakamex/issuepilot/internal/git"
	"github.com/wakamex/issuepilot/internal/github"
	"github.com/wakamex/issuepilot/internal/issue"
	"github.com/wakamex/issuepilot/internal/logging"
	"github.com/wakamex/issuepilot/internal/personality"
	"github.com/wakamex/issuepilot/internal/state"
	"github.com/wakamex/issuepilot/internal/tui"
)

var (
	flagConfig       string
	flagLabels       []string
	flagPollInterval int
	flagErrorWait    int
	flagWorkDir      string
	flagModel        string
	flagStateFile    string
	flagVerbose      bool
	flagNoTUI        bool
)

var rootCmd = &cobra.Command{
	Use:   "issuepilot owner/repo",
	Short: "Daemon that turns GitHub issues into pull requests",
	Long: `issuepilot polls a repository for unhandled issues, hands each one to a
code agent in an isolated workspace, and opens a pull request with the
result. Outcomes are recorded in a local state file so every issue is
processed at most once across restarts.`,
	Args: cobra.ExactArgs(1),
	RunE: runDaemon,
}

var runCmd = &cobra.Command{
	Use:   "run owner/repo#number",
	Short: "Process a single issue and exit",
	Args:  cobra.ExactArgs(1),
	RunE:  runOnce,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "path to config file")
	pf.StringSliceVar(&flagLabels, "labels", nil, "only process issues with these labels")
	pf.IntVar(&flagPollInterval, "poll-interval", 0, "seconds between polls (default 60)")
	pf.IntVar(&flagErrorWait, "error-wait", 0, "seconds to wait after an error (default 300)")
	pf.StringVar(&flagWorkDir, "work-dir", "", "working directory for clones and state")
	pf.StringVar(&flagModel, "model", "", "model name to use")
	pf.StringVar(&flagStateFile, "state-file", "", "path to the processed-issues state file")
	pf.BoolVar(&flagVerbose, "verbose", false, "enable verbose logging")
	pf.BoolVar(&flagNoTUI, "no-tui", false, "disable TUI mode")

	rootCmd.AddCommand(runCmd)
}

func loadConfig() (*config.Config, error) {
	return config.Load(flagConfig, config.Overrides{
		Workdir:      flagWorkDir,
		StateFile:    flagStateFile,
		Model:        flagModel,
		Labels:       flagLabels,
		PollInterval: time.Duration(flagPollInterval) * time.Second,
		ErrorWait:    time.Duration(flagErrorWait) * time.Second,
		Verbose:      flagVerbose,
	})
}

// buildDaemon wires up every component for the given repository.
func buildDaemon(ctx context.Context, cfg *config.Config, owner, repo string, logger *slog.Logger) (*daemon.Daemon, error) {
	api, err := github.NewClient(ctx, github.Options{
		Token:          cfg.Token,
		MaxPerPage:     cfg.RateLimit.MaxPerPage,
		DefaultPerPage: cfg.RateLimit.DefaultPerPage,
		MaxWait:        cfg.RateLimit.MaxWait,
	}, logger)
	if err != nil {
		return nil, err
	}

	store, err := state.Open(cfg.StateFile)
	if err != nil {
		return nil, err
	}

	gitMgr := git.NewManager(cfg.Workdir, cfg.Token, logger)
	invoker := agent.NewClaudeInvoker(cfg.Model, logger)
	styler := personality.New(cfg.Personality.Enabled, invoker, logger)

	return daemon.New(cfg, owner, repo, api, gitMgr, invoker, styler, store, logger), nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	owner, repo, err := splitRepoArg(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	enableTUI := !flagNoTUI && os.Getenv("ISSUEPILOT_TUI") != "0" &&
		isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd())

	logger, closer, err := logging.Setup(cfg.Log.File, cfg.Log.Level, enableTUI)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer closeQuietly(closer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := buildDaemon(ctx, cfg, owner, repo, logger)
	if err != nil {
		return err
	}

	if !enableTUI {
		logger.Info("issuepilot starting (headless)", "repo", owner+"/"+repo)
		return d.Run(ctx)
	}

	// TUI mode: daemon in the background, TUI in the foreground.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(tui.NewModel(d, cfg.TUI.RefreshInterval), tea.WithAltScreen())

	done := make(chan error, 1)
	go func() {
		logger.Info("issuepilot daemon starting in background", "repo", owner+"/"+repo)
		err := d.Run(ctx)
		done <- err
		if err != nil {
			logger.Error("daemon error", "err", err)
			p.Quit()
		}
	}()

	if _, err := p.Run(); err != nil {
		stopAndWait(cancel, done)
		return fmt.Errorf("TUI error: %w", err)
	}
	// Quitting the TUI stops polling, but the in-flight attempt still
	// finishes its record and workspace cleanup before the process exits.
	return stopAndWait(cancel, done)
}

// stopAndWait cancels the daemon's context and blocks until its Run loop
// has fully returned, including the current issue's terminal transition.
func stopAndWait(cancel context.CancelFunc, done <-chan error) error {
	cancel()
	return <-done
}

func runOnce(cmd *cobra.Command, args []string) error {
	ref, err := issue.ParseRef(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger, closer, err := logging.Setup(cfg.Log.File, cfg.Log.Level, false)
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer closeQuietly(closer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d, err := buildDaemon(ctx, cfg, ref.Owner, ref.Repo, logger)
	if err != nil {
		return err
	}
	return d.RunOnce(ctx, ref)
}

func splitRepoArg(s string) (owner, repo string, err error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository %q (want owner/repo)", s)
	}
	return parts[0], parts[1], nil
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}
