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

package github

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	gh "github.com/google/go-github/v75/github"

	"github.com/NissesSenap/daemon-planner/internal/memo"
	"github.com/NissesSenap/daemon-planner/pkg/planner"
)

const perPage = 100

var (
	_ planner.TaskRepository = (*Session)(nil)
	_ planner.MemberLister   = (*Session)(nil)
	_ planner.Committer      = (*Session)(nil)
)

type installation struct {
	client *gh.Client
	// transport is nil when the client authenticates with a plain token.
	transport *ghinstallation.Transport
}

// Session is the run-scoped view of GitHub. Each organization resolves to
// its App installation once per session.
type Session struct {
	c             *Client
	installations *memo.Group[string, *installation]
	userIDs       *memo.Group[string, int64]
}

// NewSession starts a session. observer may be nil.
func (c *Client) NewSession(observer memo.Observer) *Session {
	return &Session{
		c:             c,
		installations: memo.New[string, *installation]("github_installations", observer),
		userIDs:       memo.New[string, int64]("github_user_ids", observer),
	}
}

func (s *Session) forOrg(ctx context.Context, org string) (*installation, error) {
	if s.c.apps == nil {
		return &installation{client: s.c.userClient}, nil
	}
	return s.installations.Do(ctx, strings.ToLower(org), func(ctx context.Context) (*installation, error) {
		start := time.Now()
		inst, _, err := s.c.appClient.Apps.FindOrganizationInstallation(ctx, org)
		s.c.observe("find_installation", start, err)
		if err != nil {
			return nil, fmt.Errorf("find installation for %s: %w", org, err)
		}

		itr := ghinstallation.NewFromAppsTransport(s.c.apps, inst.GetID())
		if s.c.baseURL != "" {
			itr.BaseURL = strings.TrimRight(s.c.baseURL, "/")
		}
		client, err := s.c.newGitHubClient(itr)
		if err != nil {
			return nil, err
		}
		return &installation{client: client, transport: itr}, nil
	})
}

// Token returns a bearer token valid for org: the installation token in App
// mode, the configured token otherwise.
func (s *Session) Token(ctx context.Context, org string) (string, error) {
	inst, err := s.forOrg(ctx, org)
	if err != nil {
		return "", err
	}
	if inst.transport == nil {
		return s.c.token, nil
	}
	token, err := inst.transport.Token(ctx)
	if err != nil {
		return "", fmt.Errorf("installation token for %s: %w", org, err)
	}
	return token, nil
}

// ListRepositories lists the repositories visible for org.
func (s *Session) ListRepositories(ctx context.Context, org string) ([]planner.Repository, error) {
	inst, err := s.forOrg(ctx, org)
	if err != nil {
		return nil, err
	}

	var repos []planner.Repository
	if inst.transport != nil {
		opts := &gh.ListOptions{PerPage: perPage}
		for {
			start := time.Now()
			page, resp, err := inst.client.Apps.ListRepos(ctx, opts)
			s.c.observe("list_installation_repos", start, err)
			if err != nil {
				return nil, fmt.Errorf("list installation repositories for %s: %w", org, err)
			}
			for _, r := range page.Repositories {
				repos = append(repos, toRepository(r))
			}
			if resp.NextPage == 0 {
				return repos, nil
			}
			opts.Page = resp.NextPage
		}
	}

	opts := &gh.RepositoryListByOrgOptions{Type: "all", ListOptions: gh.ListOptions{PerPage: perPage}}
	for {
		start := time.Now()
		page, resp, err := inst.client.Repositories.ListByOrg(ctx, org, opts)
		s.c.observe("list_org_repos", start, err)
		if err != nil {
			return nil, fmt.Errorf("list repositories for %s: %w", org, err)
		}
		for _, r := range page {
			repos = append(repos, toRepository(r))
		}
		if resp.NextPage == 0 {
			return repos, nil
		}
		opts.ListOptions.Page = resp.NextPage
	}
}

func toRepository(r *gh.Repository) planner.Repository {
	return planner.Repository{
		RepositoryRef: planner.RepositoryRef{Owner: r.GetOwner().GetLogin(), Name: r.GetName()},
		Archived:      r.GetArchived(),
		Private:       r.GetPrivate(),
	}
}

// ListOpenIssues lists the open issues of repo that nobody is assigned to.
// Pull requests are skipped.
func (s *Session) ListOpenIssues(ctx context.Context, repo planner.RepositoryRef) ([]planner.Issue, error) {
	inst, err := s.forOrg(ctx, repo.Owner)
	if err != nil {
		return nil, err
	}

	var issues []planner.Issue
	opts := &gh.IssueListByRepoOptions{
		State:       "open",
		Assignee:    "none",
		ListOptions: gh.ListOptions{PerPage: perPage},
	}
	for {
		start := time.Now()
		page, resp, err := inst.client.Issues.ListByRepo(ctx, repo.Owner, repo.Name, opts)
		s.c.observe("list_issues", start, err)
		if err != nil {
			return nil, fmt.Errorf("list issues for %s: %w", repo, err)
		}
		for _, issue := range page {
			if issue.IsPullRequest() {
				continue
			}
			issues = append(issues, ToIssue(issue))
		}
		if resp.NextPage == 0 {
			return issues, nil
		}
		opts.ListOptions.Page = resp.NextPage
	}
}

// GetIssue fetches a single open issue.
func (s *Session) GetIssue(ctx context.Context, repo planner.RepositoryRef, number int) (planner.Issue, error) {
	inst, err := s.forOrg(ctx, repo.Owner)
	if err != nil {
		return planner.Issue{}, err
	}
	start := time.Now()
	issue, _, err := inst.client.Issues.Get(ctx, repo.Owner, repo.Name, number)
	s.c.observe("get_issue", start, err)
	if err != nil {
		return planner.Issue{}, fmt.Errorf("get issue %s#%d: %w", repo, number, err)
	}
	switch {
	case issue.IsPullRequest():
		return planner.Issue{}, fmt.Errorf("%s#%d: %w: pull request", repo, number, ErrNotPlannable)
	case issue.GetState() != "open":
		return planner.Issue{}, fmt.Errorf("%s#%d: %w: issue is %s", repo, number, ErrNotPlannable, issue.GetState())
	}
	return ToIssue(issue), nil
}

// ToIssue converts a go-github issue.
func ToIssue(issue *gh.Issue) planner.Issue {
	out := planner.Issue{Number: issue.GetNumber()}
	for _, l := range issue.Labels {
		out.Labels = append(out.Labels, l.GetName())
	}
	for _, a := range issue.Assignees {
		out.Assignees = append(out.Assignees, a.GetLogin())
	}
	if len(out.Assignees) == 0 && issue.GetAssignee() != nil {
		out.Assignees = append(out.Assignees, issue.GetAssignee().GetLogin())
	}
	return out
}

// ListOrgMembers lists the logins of org's members.
func (s *Session) ListOrgMembers(ctx context.Context, org string) ([]string, error) {
	inst, err := s.forOrg(ctx, org)
	if err != nil {
		return nil, err
	}

	var logins []string
	opts := &gh.ListMembersOptions{ListOptions: gh.ListOptions{PerPage: perPage}}
	for {
		start := time.Now()
		page, resp, err := inst.client.Organizations.ListMembers(ctx, org, opts)
		s.c.observe("list_members", start, err)
		if err != nil {
			return nil, fmt.Errorf("list members of %s: %w", org, err)
		}
		for _, u := range page {
			logins = append(logins, u.GetLogin())
		}
		if resp.NextPage == 0 {
			return logins, nil
		}
		opts.ListOptions.Page = resp.NextPage
	}
}

// UserID resolves login to its numeric id using org's credentials.
func (s *Session) UserID(ctx context.Context, org, login string) (int64, error) {
	return s.userIDs.Do(ctx, strings.ToLower(login), func(ctx context.Context) (int64, error) {
		inst, err := s.forOrg(ctx, org)
		if err != nil {
			return 0, err
		}
		start := time.Now()
		user, _, err := inst.client.Users.Get(ctx, login)
		s.c.observe("get_user", start, err)
		if err != nil {
			return 0, fmt.Errorf("get user %s: %w", login, err)
		}
		if user.GetID() == 0 {
			return 0, fmt.Errorf("get user %s: no id in response", login)
		}
		return user.GetID(), nil
	})
}

// Assign adds login to the assignees of task. Adding an existing assignee
// is a no-op on GitHub's side.
func (s *Session) Assign(ctx context.Context, task planner.Task, login string) error {
	inst, err := s.forOrg(ctx, task.Repository.Owner)
	if err != nil {
		return err
	}
	start := time.Now()
	_, _, err = inst.client.Issues.AddAssignees(ctx, task.Repository.Owner, task.Repository.Name, task.Issue.Number, []string{login})
	s.c.observe("add_assignees", start, err)
	if err != nil {
		return fmt.Errorf("assign %s to %s: %w", task.Ref(), login, err)
	}
	return nil
}
