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
	"sync"
	"sync/atomic"
)

type fakeRepo struct {
	repos     map[string][]Repository
	issues    map[string][]Issue
	repoErrs  map[string]error
	issueErrs map[string]error
	listCalls atomic.Int32
}

func (f *fakeRepo) ListRepositories(_ context.Context, org string) ([]Repository, error) {
	f.listCalls.Add(1)
	if err := f.repoErrs[org]; err != nil {
		return nil, err
	}
	return f.repos[org], nil
}

func (f *fakeRepo) ListOpenIssues(_ context.Context, repo RepositoryRef) ([]Issue, error) {
	if err := f.issueErrs[repo.String()]; err != nil {
		return nil, err
	}
	return f.issues[repo.String()], nil
}

func repoOf(owner, name string) Repository {
	return Repository{RepositoryRef: RepositoryRef{Owner: owner, Name: name}}
}

type fakeMembers struct {
	members map[string][]string
	errs    map[string]error
	calls   atomic.Int32
}

func (f *fakeMembers) ListOrgMembers(_ context.Context, org string) ([]string, error) {
	f.calls.Add(1)
	if err := f.errs[org]; err != nil {
		return nil, err
	}
	return f.members[org], nil
}

type fakeStatus struct {
	mu    sync.Mutex
	items map[string][]AssignedItem
	errs  map[string]error
	calls map[string]int
}

func newFakeStatus(items map[string][]AssignedItem) *fakeStatus {
	return &fakeStatus{items: items, errs: map[string]error{}, calls: map[string]int{}}
}

func (f *fakeStatus) GetStatus(_ context.Context, login, _ string) (*WorkStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[login]++
	if err := f.errs[login]; err != nil {
		return nil, err
	}
	return &WorkStatus{AssignedItems: f.items[login]}, nil
}

func (f *fakeStatus) callsFor(login string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[login]
}

type fakeRecommender struct {
	recs  map[string][]Recommendation
	err   error
	calls atomic.Int32
}

func (f *fakeRecommender) Rank(_ context.Context, issueURL string, _ []string) ([]Recommendation, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.recs[issueURL], nil
}

type fakeCommitter struct {
	mu     sync.Mutex
	errs   map[string]error
	calls  []string
	onCall func(task Task, login string)
}

func (f *fakeCommitter) Assign(_ context.Context, task Task, login string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf("%s->%s", task.Ref(), login))
	if f.onCall != nil {
		f.onCall(task, login)
	}
	return f.errs[task.Ref()]
}

func (f *fakeCommitter) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeIssues struct {
	issues map[string]Issue
	calls  []string
}

func (f *fakeIssues) GetIssue(_ context.Context, repo RepositoryRef, number int) (Issue, error) {
	key := fmt.Sprintf("%s#%d", repo, number)
	f.calls = append(f.calls, key)
	issue, ok := f.issues[key]
	if !ok {
		return Issue{}, errors.New("not found")
	}
	return issue, nil
}

// hoursItem builds an assigned item carrying an hour estimate.
func hoursItem(url string, hours int) AssignedItem {
	return AssignedItem{URL: url, Labels: []string{fmt.Sprintf("Time: %d Hours", hours)}}
}

func taskIssue(number, priority int, time string) Issue {
	return Issue{
		Number: number,
		Labels: []string{fmt.Sprintf("Priority: %d (Normal)", priority), "Time: " + time},
	}
}

func testConfig() Config {
	return Config{
		Organizations:           []string{"org-a"},
		DailyCapacityHours:      6,
		PlanningHorizonDays:     5,
		ReviewBufferHours:       2,
		DefaultEstimateHours:    4,
		AssignedTaskLimit:       1,
		RecommendationThreshold: 20,
	}
}
