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
	"fmt"
	"slices"
	"strings"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/NissesSenap/daemon-planner/internal/memo"
)

// TaskPool discovers the eligible tasks of the configured organizations. The
// discovery runs at most once per pool; a pool lives for one run.
type TaskPool struct {
	repo      TaskRepository
	orgs      []string
	estimator Estimator
	log       logr.Logger
	sorted    *memo.Lazy[[]Task]
}

// NewTaskPool creates a pool over repo for orgs. observer may be nil.
func NewTaskPool(repo TaskRepository, orgs []string, estimator Estimator, log logr.Logger, observer memo.Observer) *TaskPool {
	return &TaskPool{
		repo:      repo,
		orgs:      NormalizeNames(orgs),
		estimator: estimator,
		log:       log,
		sorted:    memo.NewLazy[[]Task]("tasks", observer),
	}
}

// Sorted returns the eligible tasks in scheduling order. Concurrent callers
// share one discovery. The returned slice is owned by the caller.
func (p *TaskPool) Sorted(ctx context.Context) ([]Task, error) {
	tasks, err := p.sorted.Get(ctx, p.discover)
	if err != nil {
		return nil, err
	}
	return slices.Clone(tasks), nil
}

// Evaluate derives priority and estimate for a single issue and reports
// whether it is eligible for assignment.
func (p *TaskPool) Evaluate(repo RepositoryRef, issue Issue) (Task, bool) {
	task := Task{Repository: repo, Issue: issue}
	if issue.Number <= 0 || len(issue.Assignees) > 0 {
		return task, false
	}
	priority, ok := ParsePriority(issue.Labels)
	if !ok {
		return task, false
	}
	task.Priority = priority
	task.Estimate = p.estimator.EstimateLabels(issue.Labels)
	return task, task.Estimate.Eligible()
}

// Owns reports whether repo belongs to one of the configured organizations.
func (p *TaskPool) Owns(repo RepositoryRef) bool {
	return slices.ContainsFunc(p.orgs, func(org string) bool {
		return strings.EqualFold(org, repo.Owner)
	})
}

func (p *TaskPool) discover(ctx context.Context) ([]Task, error) {
	var tasks []Task
	seen := sets.New[string]()

	for _, org := range p.orgs {
		repos, err := p.repo.ListRepositories(ctx, org)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			p.log.Error(err, "listing repositories failed, skipping organization", "org", org)
			continue
		}

		for _, repo := range repos {
			if !strings.EqualFold(repo.Owner, org) || repo.Archived || repo.Private {
				continue
			}
			if seen.Has(strings.ToLower(repo.String())) {
				continue
			}
			seen.Insert(strings.ToLower(repo.String()))

			issues, err := p.repo.ListOpenIssues(ctx, repo.RepositoryRef)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				p.log.Error(err, "listing issues failed, skipping repository", "repository", repo.String())
				continue
			}
			for _, issue := range issues {
				if task, ok := p.Evaluate(repo.RepositoryRef, issue); ok {
					tasks = append(tasks, task)
				}
			}
		}
	}

	tasks = SortTasks(tasks)
	p.log.Info(fmt.Sprintf("Found %d tasks available for assignment", len(tasks)), "organizations", p.orgs)
	return tasks, nil
}

// NormalizeNames trims names, drops empty ones and removes case-insensitive
// duplicates while keeping first-seen order.
func NormalizeNames(names []string) []string {
	out := make([]string, 0, len(names))
	seen := sets.New[string]()
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" || seen.Has(strings.ToLower(n)) {
			continue
		}
		seen.Insert(strings.ToLower(n))
		out = append(out, n)
	}
	return out
}
