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
	"slices"
	"strings"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/NissesSenap/daemon-planner/internal/memo"
)

// DefaultLookupConcurrency bounds parallel status lookups.
const DefaultLookupConcurrency = 8

// CandidatePoolOptions configures a CandidatePool.
type CandidatePoolOptions struct {
	Organizations []string
	// CandidateLogins, when not empty, replaces organization membership
	// for every organization.
	CandidateLogins []string
	// AssignedTaskLimit is the number of assigned items at which a worker
	// stops being available. Values below 1 are treated as 1.
	AssignedTaskLimit int
	Concurrency       int
	Observer          memo.Observer
}

// CandidatePool answers who may work on tasks and whether they are free.
// Member lists and statuses are fetched at most once per key per pool.
type CandidatePool struct {
	members     MemberLister
	status      StatusService
	orgs        []string
	allowList   []string
	limit       int
	concurrency int
	log         logr.Logger

	memberCache *memo.Group[string, []string]
	statusCache *memo.Group[string, CandidateStatus]
}

// NewCandidatePool creates a pool. members may be nil when
// opts.CandidateLogins is set.
func NewCandidatePool(members MemberLister, status StatusService, log logr.Logger, opts CandidatePoolOptions) *CandidatePool {
	limit := opts.AssignedTaskLimit
	if limit < 1 {
		limit = 1
	}
	concurrency := opts.Concurrency
	if concurrency < 1 {
		concurrency = DefaultLookupConcurrency
	}
	return &CandidatePool{
		members:     members,
		status:      status,
		orgs:        NormalizeNames(opts.Organizations),
		allowList:   NormalizeNames(opts.CandidateLogins),
		limit:       limit,
		concurrency: concurrency,
		log:         log,
		memberCache: memo.New[string, []string]("org_members", opts.Observer),
		statusCache: memo.New[string, CandidateStatus]("candidate_status", opts.Observer),
	}
}

// MembersOf returns the candidate logins of org. A failed lookup is logged
// and yields no members.
func (c *CandidatePool) MembersOf(ctx context.Context, org string) ([]string, error) {
	org = strings.TrimSpace(org)
	if org == "" {
		return nil, nil
	}
	members, err := c.memberCache.Do(ctx, strings.ToLower(org), func(ctx context.Context) ([]string, error) {
		if len(c.allowList) > 0 {
			return c.allowList, nil
		}
		if c.members == nil {
			return nil, nil
		}
		logins, err := c.members.ListOrgMembers(ctx, org)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.log.Error(err, "listing organization members failed", "org", org)
			return nil, nil
		}
		return NormalizeNames(logins), nil
	})
	if err != nil {
		return nil, err
	}
	return slices.Clone(members), nil
}

// StatusOf returns the availability of login. issueURL is only context for
// the status service; the result is cached per login. A failed lookup marks
// the worker unavailable.
func (c *CandidatePool) StatusOf(ctx context.Context, login, issueURL string) (CandidateStatus, error) {
	login = strings.TrimSpace(login)
	if login == "" {
		return CandidateStatus{}, nil
	}
	return c.statusCache.Do(ctx, login, func(ctx context.Context) (CandidateStatus, error) {
		unavailable := CandidateStatus{Login: login, AssignedIssueURLs: []string{}}

		ws, err := c.status.GetStatus(ctx, login, issueURL)
		if err != nil {
			if ctx.Err() != nil {
				return CandidateStatus{}, ctx.Err()
			}
			c.log.Error(err, "fetching work status failed, treating candidate as unavailable", "login", login)
			return unavailable, nil
		}
		if ws == nil {
			c.log.Info("status service returned no data, treating candidate as unavailable", "login", login)
			return unavailable, nil
		}

		urls := make([]string, 0, len(ws.AssignedItems))
		for _, item := range ws.AssignedItems {
			urls = append(urls, item.URL)
		}
		return CandidateStatus{
			Login:             login,
			Available:         len(ws.AssignedItems) < c.limit,
			AssignedIssueURLs: urls,
			AssignedItems:     slices.Clone(ws.AssignedItems),
		}, nil
	})
}

// Logins returns the distinct candidate logins over all organizations.
func (c *CandidatePool) Logins(ctx context.Context) ([]string, error) {
	var logins []string
	seen := sets.New[string]()
	for _, org := range c.orgs {
		members, err := c.MembersOf(ctx, org)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			if !seen.Has(m) {
				seen.Insert(m)
				logins = append(logins, m)
			}
		}
	}
	return logins, nil
}

// AllStatuses returns the status of every candidate, sorted by login.
func (c *CandidatePool) AllStatuses(ctx context.Context, issueURL string) ([]CandidateStatus, error) {
	logins, err := c.Logins(ctx)
	if err != nil {
		return nil, err
	}
	statuses, err := c.Statuses(ctx, logins, issueURL)
	if err != nil {
		return nil, err
	}
	slices.SortFunc(statuses, func(a, b CandidateStatus) int {
		return strings.Compare(a.Login, b.Login)
	})
	return statuses, nil
}

// Statuses looks up logins concurrently and returns their statuses in the
// order of logins.
func (c *CandidatePool) Statuses(ctx context.Context, logins []string, issueURL string) ([]CandidateStatus, error) {
	statuses := make([]CandidateStatus, len(logins))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, login := range logins {
		g.Go(func() error {
			s, err := c.StatusOf(gctx, login, issueURL)
			if err != nil {
				return err
			}
			statuses[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return statuses, nil
}

// AvailableCandidates returns the members of org that are currently
// available, in membership order.
func (c *CandidatePool) AvailableCandidates(ctx context.Context, org, issueURL string) ([]string, error) {
	members, err := c.MembersOf(ctx, org)
	if err != nil {
		return nil, err
	}
	statuses, err := c.Statuses(ctx, members, issueURL)
	if err != nil {
		return nil, err
	}
	var available []string
	for _, s := range statuses {
		if s.Available {
			available = append(available, s.Login)
		}
	}
	return available, nil
}
