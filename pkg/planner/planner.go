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
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/sets"
)

// Config holds the scheduling parameters of a run.
type Config struct {
	Organizations           []string
	CandidateLogins         []string
	DailyCapacityHours      float64
	PlanningHorizonDays     float64
	ReviewBufferHours       float64
	DefaultEstimateHours    float64
	AssignedTaskLimit       int
	RecommendationThreshold float64
	DryRun                  bool
	LookupConcurrency       int
}

// Capacity is the number of hours a worker can absorb within the horizon.
func (c Config) Capacity() float64 {
	return c.DailyCapacityHours * c.PlanningHorizonDays
}

// Estimator returns the duration estimator for c.
func (c Config) Estimator() Estimator {
	return Estimator{DailyCapacityHours: c.DailyCapacityHours}
}

// Dependencies are the collaborators of a run. Recommender may be nil.
// Issues is only needed by PlanIssueNumber.
type Dependencies struct {
	Tasks       TaskRepository
	Issues      IssueGetter
	Members     MemberLister
	Status      StatusService
	Recommender Recommender
	Committer   Committer
	Metrics     Metrics
	Log         logr.Logger
}

// Planner executes a single run. It owns the run-scoped caches, so a new
// Planner must be created for every run.
type Planner struct {
	cfg         Config
	tasks       *TaskPool
	issues      IssueGetter
	candidates  *CandidatePool
	recommender Recommender
	committer   Committer
	metrics     Metrics
	summary     *RunSummary
	log         logr.Logger
}

// New creates a planner for one run recording into summary.
func New(cfg Config, deps Dependencies, summary *RunSummary) *Planner {
	m := deps.Metrics
	if m == nil {
		m = NopMetrics{}
	}
	log := deps.Log.WithValues("run", summary.ID())
	return &Planner{
		cfg:   cfg,
		tasks: NewTaskPool(deps.Tasks, cfg.Organizations, cfg.Estimator(), log.WithName("tasks"), m),
		candidates: NewCandidatePool(deps.Members, deps.Status, log.WithName("candidates"), CandidatePoolOptions{
			Organizations:     cfg.Organizations,
			CandidateLogins:   cfg.CandidateLogins,
			AssignedTaskLimit: cfg.AssignedTaskLimit,
			Concurrency:       cfg.LookupConcurrency,
			Observer:          m,
		}),
		issues:      deps.Issues,
		recommender: deps.Recommender,
		committer:   deps.Committer,
		metrics:     m,
		summary:     summary,
		log:         log,
	}
}

// Summary returns the summary the planner records into.
func (p *Planner) Summary() *RunSummary {
	return p.summary
}

// Run plans every eligible task of the configured organizations. Per-task
// failures are recorded in the summary; only cancellation of ctx is
// returned.
func (p *Planner) Run(ctx context.Context) error {
	return p.observe(ModeSweep, func() error {
		tasks, err := p.tasks.Sorted(ctx)
		if err != nil {
			return err
		}
		return p.plan(ctx, tasks)
	})
}

// PlanIssue plans a single issue, typically one that was just opened.
func (p *Planner) PlanIssue(ctx context.Context, repo RepositoryRef, issue Issue) error {
	return p.observe(ModeIssue, func() error {
		if !p.owns(repo) {
			return nil
		}
		return p.planIssue(ctx, repo, issue)
	})
}

// PlanIssueNumber reads the current labels and assignees of an issue from
// the issue source and plans it. Webhook payloads only identify the issue.
func (p *Planner) PlanIssueNumber(ctx context.Context, repo RepositoryRef, number int) error {
	return p.observe(ModeIssue, func() error {
		if !p.owns(repo) {
			return nil
		}
		if p.issues == nil {
			return errors.New("no issue source configured")
		}
		issue, err := p.issues.GetIssue(ctx, repo, number)
		if err != nil {
			return fmt.Errorf("fetching %s#%d: %w", repo, number, err)
		}
		return p.planIssue(ctx, repo, issue)
	})
}

func (p *Planner) owns(repo RepositoryRef) bool {
	if p.tasks.Owns(repo) {
		return true
	}
	p.info(fmt.Sprintf("%s is not in a configured organization", repo))
	p.summary.SetConsideredTasks(nil)
	return false
}

func (p *Planner) planIssue(ctx context.Context, repo RepositoryRef, issue Issue) error {
	task, ok := p.tasks.Evaluate(repo, issue)
	if !ok {
		p.info(fmt.Sprintf("%s is not eligible for assignment", task.Ref()))
		p.summary.SetConsideredTasks(nil)
		return nil
	}
	return p.plan(ctx, []Task{task})
}

func (p *Planner) observe(mode Mode, fn func() error) error {
	start := time.Now()
	err := fn()
	p.summary.Finish()
	p.metrics.ObserveRun(mode, p.cfg.DryRun, time.Since(start), err)
	if err != nil {
		p.log.Error(err, "run aborted")
	}
	return err
}

func (p *Planner) plan(ctx context.Context, tasks []Task) error {
	p.summary.SetConsideredTasks(tasks)
	if len(tasks) == 0 {
		p.info("No eligible tasks found")
		return nil
	}

	statuses, err := p.candidates.AllStatuses(ctx, tasks[0].URL())
	if err != nil {
		return err
	}
	p.summary.SetCandidates(statuses)

	remaining := sets.New[string]()
	for _, s := range statuses {
		if s.Available {
			remaining.Insert(s.Login)
		}
	}
	p.info(fmt.Sprintf("Planning %d task(s) with %d of %d candidate(s) available",
		len(tasks), remaining.Len(), len(statuses)))

	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if remaining.Len() == 0 {
			p.info("Stopping early (no candidates left to assign)")
			return nil
		}
		if err := p.planTask(ctx, task, remaining); err != nil {
			return err
		}
	}
	return nil
}

// planTask returns an error only when ctx is done.
func (p *Planner) planTask(ctx context.Context, task Task, remaining sets.Set[string]) error {
	if task.Issue.Number <= 0 {
		p.fail(errors.New("task has no issue number"), fmt.Sprintf("Skipping task in %s without an issue number", task.Repository))
		p.metrics.IncOutcome(OutcomeInvalid)
		return nil
	}
	if len(task.Issue.Assignees) > 0 {
		p.debug(fmt.Sprintf("Skipping %s (already assigned)", task.Ref()))
		p.metrics.IncOutcome(OutcomeAlreadyTaken)
		return nil
	}
	estimate, ok := task.Estimate.Get()
	if !ok {
		p.warn(fmt.Sprintf("Skipping %s (no time estimate)", task.Ref()))
		p.metrics.IncOutcome(OutcomeInvalid)
		return nil
	}

	members, err := p.candidates.MembersOf(ctx, task.Repository.Owner)
	if err != nil {
		return err
	}
	var allowed []string
	for _, m := range members {
		if remaining.Has(m) {
			allowed = append(allowed, m)
		}
	}
	if len(allowed) == 0 {
		p.warn(fmt.Sprintf("No candidates available for %s tasks", task.Repository.Owner))
		p.metrics.IncOutcome(OutcomeNoCandidates)
		return nil
	}

	candidates, similarity := p.rank(ctx, task, allowed)

	scores, err := p.scores(ctx, task, candidates)
	if err != nil {
		return err
	}
	chosen, ok := SelectCandidate(scores, estimate+p.cfg.ReviewBufferHours, p.cfg.Capacity())
	if !ok {
		p.warn(fmt.Sprintf("Could not assign %s to any user", task.Ref()))
		p.metrics.IncOutcome(OutcomeUnassignable)
		return nil
	}

	match := ""
	var simPtr *float64
	if sim, ok := similarity[chosen.Login]; ok {
		match = FormatMatchPercent(sim)
		simPtr = &sim
	}

	if p.cfg.DryRun {
		p.summary.AddPlan(Plan{Login: chosen.Login, Task: RefOf(task), Similarity: simPtr})
		p.info(fmt.Sprintf("Dry run: would assign %s to %s%s", task.Ref(), chosen.Login, match))
		p.metrics.IncOutcome(OutcomePlanned)
		return nil
	}

	if err := p.committer.Assign(ctx, task, chosen.Login); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.fail(err, fmt.Sprintf("Failed to assign %s to %s", task.Ref(), chosen.Login))
		p.metrics.IncOutcome(OutcomeCommitFailed)
		return nil
	}
	remaining.Delete(chosen.Login)
	p.summary.AddAssignment(chosen.Login, RefOf(task))
	p.record(LevelOK, fmt.Sprintf("Assigned %s to %s%s", task.Ref(), chosen.Login, match))
	p.metrics.IncOutcome(OutcomeAssigned)
	return nil
}

func (p *Planner) rank(ctx context.Context, task Task, allowed []string) ([]string, map[string]float64) {
	if p.recommender == nil {
		return allowed, nil
	}
	recs, err := p.recommender.Rank(ctx, task.URL(), allowed)
	if err != nil {
		p.log.Error(err, "ranking candidates failed, selecting by workload only", "task", task.Ref())
		p.metrics.IncOutcome(OutcomeRankingFailure)
		return allowed, nil
	}
	return ApplyRecommendations(allowed, recs, p.cfg.RecommendationThreshold)
}

func (p *Planner) scores(ctx context.Context, task Task, logins []string) ([]CandidateScore, error) {
	estimator := p.cfg.Estimator()
	scores := make([]CandidateScore, len(logins))

	g, gctx := errgroup.WithContext(ctx)
	if p.cfg.LookupConcurrency > 0 {
		g.SetLimit(p.cfg.LookupConcurrency)
	} else {
		g.SetLimit(DefaultLookupConcurrency)
	}
	for i, login := range logins {
		g.Go(func() error {
			status, err := p.candidates.StatusOf(gctx, login, task.URL())
			if err != nil {
				return err
			}
			scores[i] = CandidateScore{
				Login: login,
				Load:  estimator.LoadOf(status.AssignedItems, p.cfg.DefaultEstimateHours, p.cfg.ReviewBufferHours),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

func (p *Planner) record(level, msg string) {
	p.log.Info(msg, "level", level)
	p.summary.AddAction(level, msg)
}

func (p *Planner) info(msg string) { p.record(LevelInfo, msg) }
func (p *Planner) warn(msg string) { p.record(LevelWarn, msg) }

func (p *Planner) debug(msg string) {
	p.log.V(1).Info(msg)
	p.summary.AddAction(LevelDebug, msg)
}

func (p *Planner) fail(err error, msg string) {
	p.log.Error(err, msg)
	p.summary.AddAction(LevelError, msg)
}
