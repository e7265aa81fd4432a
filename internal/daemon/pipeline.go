package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wakamex/issuepilot/internal/git"
	"github.com/wakamex/issuepilot/internal/github"
	"github.com/wakamex/issuepilot/internal/issue"
	"github.com/wakamex/issuepilot/internal/state"
)

// Pipeline phases, in order. failed is reachable from any of them.
const (
	phaseDiscovered        = "discovered"
	phaseWorkspacePrepared = "workspace_prepared"
	phaseAgentInvoked      = "agent_invoked"
	phaseCommitted         = "committed"
	phaseNoChanges         = "no_changes"
	phasePRCreated         = "pr_created"
	phaseIssueUpdated      = "issue_updated"
)

// Failure reasons recorded in ErrorDetail.
const (
	reasonWorkspace = "workspace_error"
	reasonAgent     = "agent_error"
	reasonPR        = "pr_error"
)

// process drives one issue through the pipeline. All failures end in a
// failed record for this issue only; nothing here crashes the daemon.
func (d *Daemon) process(parent context.Context, ref issue.Ref, iss *github.Issue) error {
	// Cancellation is cooperative and only between transitions: a git push
	// or API call in flight is never aborted by shutdown.
	ctx := context.WithoutCancel(parent)

	logger := d.logger.With("issue", ref.String())
	logger.Info("processing issue", "title", iss.Title)

	d.setCurrent(ref, iss.Title)

	if err := d.store.Put(ref, state.Record{
		Status:      state.StatusInProgress,
		AttemptedAt: time.Now(),
	}); err != nil {
		d.finish(ref, iss.Title, state.StatusFailed, 0)
		return fmt.Errorf("record in_progress: %w", err)
	}

	ws, err := d.git.Prepare(ctx, ref, ref.RepoURL())
	if err != nil {
		return d.fail(ref, iss.Title, reasonWorkspace, err)
	}
	// The workspace goes away whatever happens, including agent panics
	// turned into errors further down.
	defer d.git.Cleanup(ws)

	branch := git.BranchName(ref.Number)
	if err := d.git.Branch(ctx, ws, branch); err != nil {
		return d.fail(ref, iss.Title, reasonWorkspace, err)
	}
	d.setPhase(phaseWorkspacePrepared)

	comments, err := d.api.GetIssueComments(ctx, ref.Owner, ref.Repo, ref.Number)
	if err != nil {
		// Comments enrich the problem but are not required for it.
		logger.Warn("could not fetch issue comments", "err", err)
	}
	bodies := make([]string, 0, len(comments))
	for _, c := range comments {
		bodies = append(bodies, c.Body)
	}

	problem := issue.BuildProblem(ref, issue.IssueContent{
		Title:  iss.Title,
		Body:   iss.Body,
		Labels: iss.Labels,
	}, bodies)

	result, err := d.agent.Solve(ctx, ws.RepoDir, problem)
	if err != nil {
		return d.fail(ref, iss.Title, reasonAgent, err)
	}
	if !result.Success {
		return d.fail(ref, iss.Title, reasonAgent, errors.New(firstLine(result.Summary)))
	}
	d.setPhase(phaseAgentInvoked)

	commitMsg := fmt.Sprintf("Fix issue #%d: %s\n\nFixes #%d", ref.Number, iss.Title, ref.Number)
	committed, err := d.git.Commit(ctx, ws, commitMsg)
	if err != nil {
		return d.fail(ref, iss.Title, reasonWorkspace, err)
	}

	if !committed {
		// Successful terminal branch: the agent decided nothing needed to
		// change. No PR, but not a failure either.
		d.setPhase(phaseNoChanges)
		logger.Info("agent made no changes, marking succeeded without PR")

		body := d.styler.Style(ctx, fmt.Sprintf(
			"Looked into this, but no code changes were needed.\n\n%s", result.Summary))
		if err := d.api.CreateIssueComment(ctx, ref.Owner, ref.Repo, ref.Number, body); err != nil {
			logger.Warn("could not comment on issue", "err", err)
		}

		if err := d.store.Put(ref, state.Record{
			Status:      state.StatusSucceeded,
			AttemptedAt: time.Now(),
		}); err != nil {
			return fmt.Errorf("record outcome: %w", err)
		}
		d.finish(ref, iss.Title, state.StatusSucceeded, 0)
		return nil
	}
	d.setPhase(phaseCommitted)

	if err := d.git.Push(ctx, ws, branch); err != nil {
		return d.fail(ref, iss.Title, reasonPR, err)
	}

	prBody := d.styler.Style(ctx, fmt.Sprintf("Fixes #%d\n\n%s", ref.Number, result.Summary))
	pr, err := d.api.CreatePullRequest(ctx, ref.Owner, ref.Repo, github.NewPullRequest{
		Title: fmt.Sprintf("Fix issue #%d: %s", ref.Number, iss.Title),
		Body:  prBody,
		Head:  branch,
		Base:  d.cfg.BaseBranch,
	})
	if err != nil {
		// The pushed branch and commit are left in place so a human can
		// open the PR manually.
		return d.fail(ref, iss.Title, reasonPR, err)
	}
	d.setPhase(phasePRCreated)
	logger.Info("pull request created", "pr", pr.Number, "url", pr.URL)

	rec := state.Record{
		Status:      state.StatusSucceeded,
		AttemptedAt: time.Now(),
		PRNumber:    pr.Number,
	}

	if err := d.api.UpdatePRProgress(ctx, ref.Owner, ref.Repo, pr.Number,
		fmt.Sprintf("opened from issue #%d", ref.Number)); err != nil {
		logger.Warn("could not update PR progress comment", "err", err)
	}

	// Best-effort: the PR is the primary artifact, a failure here does
	// not demote the record, only annotates it.
	comment := d.styler.Style(ctx, fmt.Sprintf("Opened %s for this issue.", pr.URL))
	if err := d.api.CreateIssueComment(ctx, ref.Owner, ref.Repo, ref.Number, comment); err != nil {
		logger.Warn("could not update issue", "err", err)
		rec.ErrorDetail = fmt.Sprintf("issue update: %v", err)
	}
	d.setPhase(phaseIssueUpdated)

	if err := d.store.Put(ref, rec); err != nil {
		return fmt.Errorf("record outcome: %w", err)
	}
	d.finish(ref, iss.Title, state.StatusSucceeded, pr.Number)
	return nil
}

func (d *Daemon) fail(ref issue.Ref, title, reason string, cause error) error {
	err := fmt.Errorf("%s: %w", reason, cause)
	rec := state.Record{
		Status:      state.StatusFailed,
		AttemptedAt: time.Now(),
		ErrorDetail: err.Error(),
	}
	// A fatal cause (revoked token mid-attempt) is not the issue's fault:
	// leave the record non-terminal so the attempt is not consumed and the
	// issue is retried once the daemon comes back with working credentials.
	if isFatal(cause) {
		rec.Status = state.StatusPending
	}
	if putErr := d.store.Put(ref, rec); putErr != nil {
		d.logger.Error("could not persist failure record", "issue", ref.String(), "err", putErr)
	}
	d.finish(ref, title, rec.Status, 0)
	return err
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i]
		}
	}
	if s == "" {
		return "agent reported failure"
	}
	return s
}
