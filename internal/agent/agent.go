// Package agent invokes the external code-generation agent against a
// prepared workspace. How the agent produces edits is its own business;
// this package only reports success/failure and a change summary.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"

	"github.com/wakamex/issuepilot/internal/issue"
)

// Result is what the agent reports back after an attempt.
type Result struct {
	Success      bool
	Summary      string
	DurationMs   int
	NumTurns     int
	TotalCostUSD float64
}

// Invoker attempts to satisfy a problem inside workdir.
type Invoker interface {
	Solve(ctx context.Context, workdir string, problem issue.Problem) (*Result, error)
}

// ClaudeInvoker runs the Claude Code CLI non-interactively.
type ClaudeInvoker struct {
	bin    string
	model  string
	logger *slog.Logger
}

func NewClaudeInvoker(model string, logger *slog.Logger) *ClaudeInvoker {
	return &ClaudeInvoker{bin: "claude", model: model, logger: logger}
}

type jsonResponse struct {
	Result       string  `json:"result"`
	IsError      bool    `json:"is_error"`
	DurationMs   int     `json:"duration_ms"`
	NumTurns     int     `json:"num_turns"`
	TotalCostUSD float64 `json:"total_cost_usd"`
}

func (c *ClaudeInvoker) Solve(ctx context.Context, workdir string, problem issue.Problem) (*Result, error) {
	prompt := problem.Instructions()
	c.logger.Info("invoking agent", "issue", problem.Ref.String(), "workdir", workdir, "prompt_len", len(prompt))
	return c.invoke(ctx, workdir, prompt)
}

// Rewrite asks the agent to transform a piece of text. Used by the
// personality styler; runs outside any workspace.
func (c *ClaudeInvoker) Rewrite(ctx context.Context, prompt string) (string, error) {
	res, err := c.invoke(ctx, os.TempDir(), prompt)
	if err != nil {
		return "", err
	}
	if !res.Success {
		return "", fmt.Errorf("agent reported error: %s", res.Summary)
	}
	return res.Summary, nil
}

func (c *ClaudeInvoker) invoke(ctx context.Context, workdir, prompt string) (*Result, error) {
	args := []string{"-p", prompt, "--output-format", "json", "--dangerously-skip-permissions"}
	if c.model != "" {
		args = append(args, "--model", c.model)
	}

	cmd := exec.CommandContext(ctx, c.bin, args...)
	cmd.Dir = workdir
	out, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			return nil, fmt.Errorf("agent exited: %w: %s", err, string(exitErr.Stderr))
		}
		return nil, fmt.Errorf("run agent: %w", err)
	}

	var resp jsonResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return nil, fmt.Errorf("parse agent output: %w", err)
	}

	res := &Result{
		Success:      !resp.IsError,
		Summary:      resp.Result,
		DurationMs:   resp.DurationMs,
		NumTurns:     resp.NumTurns,
		TotalCostUSD: resp.TotalCostUSD,
	}
	c.logger.Info("agent finished",
		"success", res.Success,
		"duration_ms", res.DurationMs,
		"turns", res.NumTurns,
		"cost_usd", res.TotalCostUSD)
	return res, nil
}
