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

// Package planner implements the assignment scheduler: task discovery and
// ordering, candidate discovery and availability, and the workload matching
// that picks one worker per task.
package planner

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// ErrInvalidIssueURL is returned by ParseIssueURL for anything that is not a
// GitHub issue URL.
var ErrInvalidIssueURL = errors.New("invalid issue URL")

// RepositoryRef identifies a project.
type RepositoryRef struct {
	Owner string `json:"owner"`
	Name  string `json:"name"`
}

func (r RepositoryRef) String() string {
	return r.Owner + "/" + r.Name
}

// Repository is a repository as listed by the tracker.
type Repository struct {
	RepositoryRef
	Archived bool
	Private  bool
}

// Issue is the subset of a tracker issue the planner reads.
type Issue struct {
	Number    int
	Labels    []string
	Assignees []string
}

// Task is an issue in a repository together with its derived scheduling facts.
type Task struct {
	Repository RepositoryRef
	Issue      Issue
	Priority   int
	Estimate   Hours
}

// Ref returns "owner/repo#number".
func (t Task) Ref() string {
	return fmt.Sprintf("%s/%s#%d", t.Repository.Owner, t.Repository.Name, t.Issue.Number)
}

// URL returns the canonical html URL of the task.
func (t Task) URL() string {
	return IssueURL(t.Repository, t.Issue.Number)
}

// TaskRef is the serializable identity of a task used in reports.
type TaskRef struct {
	Owner       string `json:"owner"`
	Repo        string `json:"repo"`
	IssueNumber int    `json:"issueNumber"`
}

// RefOf returns the report identity of t.
func RefOf(t Task) TaskRef {
	return TaskRef{Owner: t.Repository.Owner, Repo: t.Repository.Name, IssueNumber: t.Issue.Number}
}

// URL returns the canonical html URL of the referenced issue.
func (r TaskRef) URL() string {
	return IssueURL(RepositoryRef{Owner: r.Owner, Name: r.Repo}, r.IssueNumber)
}

func (r TaskRef) String() string {
	return fmt.Sprintf("%s/%s#%d", r.Owner, r.Repo, r.IssueNumber)
}

// AssignedItem is an item currently assigned to a worker as reported by the
// status service.
type AssignedItem struct {
	URL    string
	Labels []string
}

// WorkStatus is the raw answer of the status service for one worker.
type WorkStatus struct {
	AssignedItems []AssignedItem
}

// CandidateStatus is the run-scoped availability of a worker.
type CandidateStatus struct {
	Login             string         `json:"login"`
	Available         bool           `json:"available"`
	AssignedIssueURLs []string       `json:"assignedIssueUrls"`
	AssignedItems     []AssignedItem `json:"-"`
}

// CandidateScore is a worker with its current load in hours.
type CandidateScore struct {
	Login string
	Load  float64
}

// Recommendation is a relevance score for a worker on a task. Similarity is
// normalized to [0,1] by the planner.
type Recommendation struct {
	Login      string
	Similarity float64
}

// TaskRepository lists repositories and their open, unassigned issues.
type TaskRepository interface {
	ListRepositories(ctx context.Context, org string) ([]Repository, error)
	ListOpenIssues(ctx context.Context, repo RepositoryRef) ([]Issue, error)
}

// MemberLister lists the members of an organization.
type MemberLister interface {
	ListOrgMembers(ctx context.Context, org string) ([]string, error)
}

// IssueGetter reads the current state of a single issue.
type IssueGetter interface {
	GetIssue(ctx context.Context, repo RepositoryRef, number int) (Issue, error)
}

// StatusService reports the items currently assigned to a worker.
type StatusService interface {
	GetStatus(ctx context.Context, login, issueURL string) (*WorkStatus, error)
}

// Recommender ranks candidates by relevance to an issue.
type Recommender interface {
	Rank(ctx context.Context, issueURL string, candidates []string) ([]Recommendation, error)
}

// Committer assigns a task to a worker. Assigning a worker who already holds
// the task must succeed without side effects.
type Committer interface {
	Assign(ctx context.Context, task Task, login string) error
}

var issueURLRegex = regexp.MustCompile(`^https://github\.com/([^/]+)/([^/]+)/issues/(\d+)$`)

// IssueURL builds the html URL of an issue.
func IssueURL(repo RepositoryRef, number int) string {
	return fmt.Sprintf("https://github.com/%s/%s/issues/%d", repo.Owner, repo.Name, number)
}

// ParseIssueURL splits an issue html URL into repository and number.
func ParseIssueURL(url string) (RepositoryRef, int, error) {
	m := issueURLRegex.FindStringSubmatch(url)
	if m == nil {
		return RepositoryRef{}, 0, fmt.Errorf("%w: %q", ErrInvalidIssueURL, url)
	}
	n, err := strconv.Atoi(m[3])
	if err != nil || n <= 0 {
		return RepositoryRef{}, 0, fmt.Errorf("%w: %q", ErrInvalidIssueURL, url)
	}
	return RepositoryRef{Owner: m[1], Name: m[2]}, n, nil
}
