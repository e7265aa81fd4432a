// Package git manages the ephemeral workspace one issue attempt runs in:
// a fresh shallow clone in a private temp directory, a deterministic
// branch, commit, push, and unconditional cleanup.
package git

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/wakamex/issuepilot/internal/issue"
)

// CloneError covers any failure preparing the workspace clone.
type CloneError struct {
	Err error
}

func (e *CloneError) Error() string { return fmt.Sprintf("clone: %v", e.Err) }
func (e *CloneError) Unwrap() error { return e.Err }

// PushError covers a rejected or failed push.
type PushError struct {
	Err error
}

func (e *PushError) Error() string { return fmt.Sprintf("push: %v", e.Err) }
func (e *PushError) Unwrap() error { return e.Err }

// Workspace is an exclusively-owned directory bound to one attempt. Never
// reused across issues; removed on completion regardless of outcome.
type Workspace struct {
	Root    string // temp dir owning everything below
	RepoDir string // the checkout inside Root
}

type Manager struct {
	baseDir string
	token   string
	logger  *slog.Logger
}

func NewManager(baseDir, token string, logger *slog.Logger) *Manager {
	return &Manager{baseDir: baseDir, token: token, logger: logger}
}

// BranchName derives the deterministic branch for an issue, so re-running
// the same issue recreates the same branch instead of accumulating orphans.
func BranchName(number int) string {
	return fmt.Sprintf("fix-issue-%d", number)
}

// Prepare creates a fresh workspace with a depth-1 clone of repoURL's
// default branch.
func (m *Manager) Prepare(ctx context.Context, ref issue.Ref, repoURL string) (*Workspace, error) {
	if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
		return nil, &CloneError{Err: fmt.Errorf("create work dir: %w", err)}
	}

	root, err := os.MkdirTemp(m.baseDir, fmt.Sprintf("%s-%s-%d-", ref.Owner, ref.Repo, ref.Number))
	if err != nil {
		return nil, &CloneError{Err: fmt.Errorf("create workspace: %w", err)}
	}

	ws := &Workspace{Root: root, RepoDir: filepath.Join(root, "repo")}

	m.logger.Info("cloning repository", "repo", ref.Owner+"/"+ref.Repo, "dir", ws.RepoDir)
	if err := m.run(ctx, "", "clone", "--depth=1", m.authURL(repoURL), ws.RepoDir); err != nil {
		os.RemoveAll(root)
		return nil, &CloneError{Err: err}
	}

	// Commits need an identity inside the fresh clone.
	if err := m.run(ctx, ws.RepoDir, "config", "user.name", "issuepilot[bot]"); err != nil {
		os.RemoveAll(root)
		return nil, &CloneError{Err: err}
	}
	if err := m.run(ctx, ws.RepoDir, "config", "user.email", "issuepilot[bot]@users.noreply.github.com"); err != nil {
		os.RemoveAll(root)
		return nil, &CloneError{Err: err}
	}

	return ws, nil
}

// Branch creates and checks out name, resetting it if it already exists.
func (m *Manager) Branch(ctx context.Context, ws *Workspace, name string) error {
	return m.run(ctx, ws.RepoDir, "checkout", "-B", name)
}

// Commit stages everything and commits. A clean tree is reported as
// (false, nil), not an error.
func (m *Manager) Commit(ctx context.Context, ws *Workspace, message string) (bool, error) {
	out, err := m.output(ctx, ws.RepoDir, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	if strings.TrimSpace(out) == "" {
		m.logger.Info("working tree clean, nothing to commit")
		return false, nil
	}

	if err := m.run(ctx, ws.RepoDir, "add", "-A"); err != nil {
		return false, err
	}
	if err := m.run(ctx, ws.RepoDir, "commit", "-m", message); err != nil {
		return false, err
	}
	return true, nil
}

// Push publishes branch with force-with-lease so re-runs of the same issue
// can replace their own earlier push without clobbering anyone else's.
func (m *Manager) Push(ctx context.Context, ws *Workspace, branch string) error {
	if err := m.run(ctx, ws.RepoDir, "push", "--force-with-lease", "-u", "origin", branch); err != nil {
		return &PushError{Err: err}
	}
	return nil
}

// Cleanup removes the workspace. Safe to call with nil or repeatedly.
func (m *Manager) Cleanup(ws *Workspace) {
	if ws == nil || ws.Root == "" {
		return
	}
	if err := os.RemoveAll(ws.Root); err != nil {
		m.logger.Error("failed to remove workspace", "dir", ws.Root, "err", err)
	}
}

// authURL embeds the token into an HTTPS clone URL. The token is scrubbed
// from anything that ends up in errors or logs.
func (m *Manager) authURL(repoURL string) string {
	if m.token == "" {
		return repoURL
	}
	u, err := url.Parse(repoURL)
	if err != nil || u.Scheme != "https" {
		return repoURL
	}
	u.User = url.UserPassword("x-access-token", m.token)
	return u.String()
}

func (m *Manager) run(ctx context.Context, dir string, args ...string) error {
	_, err := m.output(ctx, dir, args...)
	return err
}

func (m *Manager) output(ctx context.Context, dir string, args ...string) (string, error) {
	m.logger.Debug("exec", "cmd", "git "+strings.Join(args, " "), "dir", dir)
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %w\n%s", m.redact(strings.Join(args, " ")), err, m.redact(string(out)))
	}
	return string(out), nil
}

func (m *Manager) redact(s string) string {
	if m.token == "" {
		return s
	}
	return strings.ReplaceAll(s, m.token, "***")
}
