// SPDX-License-Identifier: AGPL-3.0-or-later

package syncer

import (
	"fmt"
	"time"

	"github.com/raibid-labs/cfgsync/internal/hosting"
)

// State is a step of a sync job.
type State string

const (
	StatePending   State = "pending"
	StatePatched   State = "patched"
	StateCommitted State = "committed"
	StatePushed    State = "pushed"
	StatePRCreated State = "pr-created"
	StateFailed    State = "failed"
	StateNoChange  State = "no-change"
	StateDryRun    State = "dry-run"
)

// Terminal reports whether no further transition is allowed from s.
func (s State) Terminal() bool {
	switch s {
	case StatePRCreated, StateFailed, StateNoChange, StateDryRun:
		return true
	}
	return false
}

// transitions lists the allowed successors of each state. Any non-terminal
// state may also move to failed.
var transitions = map[State][]State{
	StatePending:   {StatePatched, StateNoChange},
	StatePatched:   {StateCommitted, StateDryRun, StatePRCreated},
	StateCommitted: {StatePushed},
	StatePushed:    {StatePRCreated},
}

// Change is one field the sync modifies.
type Change struct {
	Field string `json:"field"`
	Old   string `json:"old,omitempty"`
	New   string `json:"new"`
}

// Job records one repository's sync.
type Job struct {
	Repo    string               `json:"repo"`
	Branch  string               `json:"branch,omitempty"`
	Changes []Change             `json:"changes,omitempty"`
	PR      *hosting.PullRequest `json:"pr,omitempty"`
	// Reused is set when an already open pull request was kept instead of opening a new one.
	Reused  bool      `json:"reused,omitempty"`
	Status  State     `json:"status"`
	History []State   `json:"history"`
	Note    string    `json:"note,omitempty"`
	Error   string    `json:"error,omitempty"`
	Started time.Time `json:"started"`
}

func newJob(repo string, now time.Time) *Job {
	return &Job{Repo: repo, Status: StatePending, History: []State{StatePending}, Started: now}
}

// advance moves the job to next, rejecting transitions the state machine does not allow.
func (j *Job) advance(next State) error {
	if j.Status.Terminal() {
		return fmt.Errorf("sync job for %s already %s", j.Repo, j.Status)
	}
	allowed := next == StateFailed
	for _, s := range transitions[j.Status] {
		if s == next {
			allowed = true
		}
	}
	if !allowed {
		return fmt.Errorf("sync job for %s: invalid transition %s -> %s", j.Repo, j.Status, next)
	}
	j.Status = next
	j.History = append(j.History, next)
	return nil
}

// fail moves the job to failed and records err.
func (j *Job) fail(err error) *Job {
	j.Error = err.Error()
	if !j.Status.Terminal() {
		j.Status = StateFailed
		j.History = append(j.History, StateFailed)
	}
	return j
}
