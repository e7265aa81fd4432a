// Package daemon runs the issue automation loop: discover open issues,
// filter against the state store, and drive each candidate through the
// per-issue pipeline. One worker, strict sequence; the state store file
// needs no locking because nothing else in-process writes it.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/wakamex/issuepilot/internal/agent"
	"github.com/wakamex/issuepilot/internal/config"
	"github.com/wakamex/issuepilot/internal/git"
	"github.com/wakamex/issuepilot/internal/github"
	"github.com/wakamex/issuepilot/internal/issue"
	"github.com/wakamex/issuepilot/internal/personality"
	"github.com/wakamex/issuepilot/internal/state"
	"github.com/wakamex/issuepilot/internal/tui"
)

// Minimum in_progress age before a record is considered a crashed attempt.
const minStaleAfter = 5 * time.Minute

// APIClient is the slice of the GitHub client the daemon drives.
type APIClient interface {
	ListIssues(ctx context.Context, owner, repo string, opts github.ListOptions) iter.Seq2[*github.Issue, error]
	GetIssue(ctx context.Context, owner, repo string, number int) (*github.Issue, error)
	GetIssueComments(ctx context.Context, owner, repo string, number int) ([]*github.Comment, error)
	CreateIssueComment(ctx context.Context, owner, repo string, number int, body string) error
	CreatePullRequest(ctx context.Context, owner, repo string, req github.NewPullRequest) (*github.PullRequest, error)
	UpdatePRProgress(ctx context.Context, owner, repo string, number int, update string) error
}

// GitManager prepares and tears down per-issue workspaces.
type GitManager interface {
	Prepare(ctx context.Context, ref issue.Ref, repoURL string) (*git.Workspace, error)
	Branch(ctx context.Context, ws *git.Workspace, name string) error
	Commit(ctx context.Context, ws *git.Workspace, message string) (bool, error)
	Push(ctx context.Context, ws *git.Workspace, branch string) error
	Cleanup(ws *git.Workspace)
}

type Daemon struct {
	cfg    *config.Config
	owner  string
	repo   string
	api    APIClient
	git    GitManager
	agent  agent.Invoker
	styler *personality.Styler
	store  *state.Store
	logger *slog.Logger

	mu      sync.Mutex
	current *tui.Current
	recent  []tui.Outcome
}

func New(cfg *config.Config, owner, repo string, api APIClient, g GitManager,
	inv agent.Invoker, styler *personality.Styler, store *state.Store, logger *slog.Logger) *Daemon {
	return &Daemon{
		cfg:    cfg,
		owner:  owner,
		repo:   repo,
		api:    api,
		git:    g,
		agent:  inv,
		styler: styler,
		store:  store,
		logger: logger,
	}
}

// Run polls until ctx is cancelled. A pass that errors switches the next
// sleep to the error-wait cadence; per-issue failures never escalate out
// of a pass. Shutdown lets the in-flight issue finish its record and
// workspace cleanup.
func (d *Daemon) Run(ctx context.Context) error {
	d.logger.Info("daemon started",
		"repo", d.owner+"/"+d.repo,
		"poll_interval", d.cfg.PollInterval,
		"error_wait", d.cfg.ErrorWait,
		"labels", d.cfg.Labels)

	wait := d.cfg.PollInterval
	for {
		err := d.pass(ctx)
		switch {
		case err == nil:
			wait = d.cfg.PollInterval
		case errors.Is(err, context.Canceled):
			// Shutdown mid-listing, not a discovery failure.
			d.logger.Info("daemon stopped")
			return nil
		case isFatal(err):
			d.logger.Error("fatal error, stopping daemon", "err", err)
			return err
		default:
			d.logger.Error("discovery pass failed, backing off", "err", err, "wait", d.cfg.ErrorWait)
			wait = d.cfg.ErrorWait
		}

		select {
		case <-ctx.Done():
			d.logger.Info("daemon stopped")
			return nil
		case <-time.After(wait):
		}
	}
}

// RunOnce processes a single issue and exits, recording the outcome in
// the state store like a daemon pass would.
func (d *Daemon) RunOnce(ctx context.Context, ref issue.Ref) error {
	if d.store.IsProcessed(ref, d.staleAfter()) {
		d.logger.Info("issue already processed", "issue", ref.String())
		return nil
	}
	iss, err := d.api.GetIssue(ctx, ref.Owner, ref.Repo, ref.Number)
	if err != nil {
		return fmt.Errorf("get issue %s: %w", ref.String(), err)
	}
	return d.process(ctx, ref, iss)
}

func (d *Daemon) pass(ctx context.Context) error {
	opts := github.ListOptions{
		Labels:  d.cfg.Labels,
		PerPage: d.cfg.RateLimit.DefaultPerPage,
	}

	for iss, err := range d.api.ListIssues(ctx, d.owner, d.repo, opts) {
		if err != nil {
			return fmt.Errorf("list issues: %w", err)
		}

		ref := issue.Ref{Owner: d.owner, Repo: d.repo, Number: iss.Number}
		if d.store.IsProcessed(ref, d.staleAfter()) {
			continue
		}

		// Shutdown is only honored between issues, never mid-attempt.
		if ctx.Err() != nil {
			return nil
		}

		if err := d.process(ctx, ref, iss); err != nil {
			// Credential and state-file problems are the daemon's, not the
			// issue's; they must stop the loop, not burn attempts.
			if isFatal(err) {
				return fmt.Errorf("process %s: %w", ref.String(), err)
			}
			d.logger.Error("issue failed", "issue", ref.String(), "err", err)
		}
	}
	return nil
}

func (d *Daemon) staleAfter() time.Duration {
	stale := 3 * d.cfg.PollInterval
	if stale < minStaleAfter {
		stale = minStaleAfter
	}
	return stale
}

func isFatal(err error) bool {
	var authErr *github.AuthError
	var corrupt *state.CorruptionError
	return errors.As(err, &authErr) || errors.As(err, &corrupt)
}

// Snapshot implements the TUI's provider interface.
func (d *Daemon) Snapshot() tui.Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()

	var current *tui.Current
	if d.current != nil {
		c := *d.current
		current = &c
	}
	recent := make([]tui.Outcome, len(d.recent))
	copy(recent, d.recent)

	return tui.Snapshot{
		Timestamp: time.Now(),
		Repo:      d.owner + "/" + d.repo,
		Processed: d.store.Len(),
		Current:   current,
		Recent:    recent,
	}
}

func (d *Daemon) setCurrent(ref issue.Ref, title string) {
	d.mu.Lock()
	d.current = &tui.Current{
		Ref:     ref.String(),
		Title:   title,
		Phase:   phaseDiscovered,
		Started: time.Now(),
	}
	d.mu.Unlock()
}

func (d *Daemon) setPhase(phase string) {
	d.mu.Lock()
	if d.current != nil {
		d.current.Phase = phase
	}
	d.mu.Unlock()
}

func (d *Daemon) finish(ref issue.Ref, title string, status state.Status, prNumber int) {
	d.mu.Lock()
	d.current = nil
	d.recent = append([]tui.Outcome{{
		Ref:        ref.String(),
		Title:      title,
		Status:     string(status),
		PRNumber:   prNumber,
		FinishedAt: time.Now(),
	}}, d.recent...)
	if len(d.recent) > 20 {
		d.recent = d.recent[:20]
	}
	d.mu.Unlock()
}
