package tui

import "time"

type Snapshot struct {
	Timestamp time.Time
	Repo      string
	Processed int
	Current   *Current
	Recent    []Outcome
}

// Current is the issue the pipeline is working on right now.
type Current struct {
	Ref     string
	Title   string
	Phase   string // discovered|workspace_prepared|agent_invoked|committed|no_changes|pr_created|issue_updated
	Started time.Time
}

// Outcome is a finished attempt, newest first.
type Outcome struct {
	Ref        string
	Title      string
	Status     string // succeeded|failed
	PRNumber   int
	FinishedAt time.Time
}
