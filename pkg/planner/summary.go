/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package planner

import (
	"slices"
	"sync"
	"time"
)

// Mode is the kind of run.
type Mode string

const (
	// ModeSweep plans the whole backlog.
	ModeSweep Mode = "sweep"
	// ModeIssue plans a single issue from an event.
	ModeIssue Mode = "issue"
)

// Action levels.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
	LevelOK    = "ok"
)

// Action is one narrative line of a run.
type Action struct {
	Sequence int64     `json:"sequence"`
	Time     time.Time `json:"time"`
	Level    string    `json:"level"`
	Message  string    `json:"message"`
}

// Plan is a dry-run assignment.
type Plan struct {
	Login      string   `json:"login"`
	Task       TaskRef  `json:"task"`
	Similarity *float64 `json:"similarity,omitempty"`
}

// CandidateReport is a candidate as it appears in a Report.
type CandidateReport struct {
	Login             string    `json:"login"`
	Available         bool      `json:"available"`
	AssignedIssueURLs []string  `json:"assignedIssueUrls"`
	AssignedInRun     []TaskRef `json:"assignedInRun"`
}

// Report is an immutable snapshot of a RunSummary.
type Report struct {
	ID              string            `json:"id"`
	Mode            Mode              `json:"mode"`
	DryRun          bool              `json:"dryRun"`
	StartedAt       time.Time         `json:"startedAt"`
	FinishedAt      *time.Time        `json:"finishedAt,omitempty"`
	ConsideredTasks []TaskRef         `json:"consideredTasks"`
	Candidates      []CandidateReport `json:"candidates"`
	Plans           []Plan            `json:"plans"`
	Actions         []Action          `json:"actions"`
}

// RunSummary accumulates what happened during one run. It is safe for
// concurrent use; the planner only ever writes to it.
type RunSummary struct {
	mu         sync.Mutex
	id         string
	mode       Mode
	dryRun     bool
	startedAt  time.Time
	finishedAt time.Time
	considered []TaskRef
	candidates []CandidateStatus
	assigned   map[string][]TaskRef
	plans      []Plan
	actions    []Action
	listeners  []func(Action)
	now        func() time.Time
}

// NewRunSummary starts a summary for run id.
func NewRunSummary(id string, mode Mode, dryRun bool) *RunSummary {
	s := &RunSummary{
		id:       id,
		mode:     mode,
		dryRun:   dryRun,
		assigned: make(map[string][]TaskRef),
		now:      time.Now,
	}
	s.startedAt = s.now()
	return s
}

// ID returns the run id.
func (s *RunSummary) ID() string {
	return s.id
}

// OnAction registers fn to be called for every action appended after the
// call. fn runs with the summary lock held and must not block.
func (s *RunSummary) OnAction(fn func(Action)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// SetConsideredTasks records the ordered task list of the run.
func (s *RunSummary) SetConsideredTasks(tasks []Task) {
	refs := make([]TaskRef, 0, len(tasks))
	for _, t := range tasks {
		refs = append(refs, RefOf(t))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.considered = refs
}

// SetCandidates records the candidate statuses seen at the start of the run.
func (s *RunSummary) SetCandidates(statuses []CandidateStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates = slices.Clone(statuses)
}

// AddAssignment records a committed assignment.
func (s *RunSummary) AddAssignment(login string, task TaskRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assigned[login] = append(s.assigned[login], task)
}

// AddPlan records a dry-run assignment.
func (s *RunSummary) AddPlan(plan Plan) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans = append(s.plans, plan)
}

// AddAction appends a narrative line.
func (s *RunSummary) AddAction(level, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := Action{
		Sequence: int64(len(s.actions) + 1),
		Time:     s.now(),
		Level:    level,
		Message:  message,
	}
	s.actions = append(s.actions, a)
	for _, fn := range s.listeners {
		fn(a)
	}
}

// Finish stamps the end of the run.
func (s *RunSummary) Finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finishedAt.IsZero() {
		s.finishedAt = s.now()
	}
}

// Report snapshots the summary.
func (s *RunSummary) Report() Report {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := Report{
		ID:              s.id,
		Mode:            s.mode,
		DryRun:          s.dryRun,
		StartedAt:       s.startedAt,
		ConsideredTasks: slices.Clone(s.considered),
		Candidates:      make([]CandidateReport, 0, len(s.candidates)),
		Plans:           slices.Clone(s.plans),
		Actions:         slices.Clone(s.actions),
	}
	if !s.finishedAt.IsZero() {
		finished := s.finishedAt
		r.FinishedAt = &finished
	}
	if r.ConsideredTasks == nil {
		r.ConsideredTasks = []TaskRef{}
	}
	if r.Plans == nil {
		r.Plans = []Plan{}
	}
	if r.Actions == nil {
		r.Actions = []Action{}
	}
	for _, c := range s.candidates {
		urls := slices.Clone(c.AssignedIssueURLs)
		if urls == nil {
			urls = []string{}
		}
		assigned := slices.Clone(s.assigned[c.Login])
		if assigned == nil {
			assigned = []TaskRef{}
		}
		r.Candidates = append(r.Candidates, CandidateReport{
			Login:             c.Login,
			Available:         c.Available,
			AssignedIssueURLs: urls,
			AssignedInRun:     assigned,
		})
	}
	return r
}
