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

// Package startstop talks to the start/stop service, which knows what every
// contributor is currently working on and performs the actual assignment.
package startstop

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/NissesSenap/daemon-planner/internal/restclient"
	"github.com/NissesSenap/daemon-planner/pkg/planner"
)

// DefaultEndpoint is the public start/stop deployment.
const DefaultEndpoint = "https://command-start-stop-main.deno.dev"

// ErrInvalidPayload is returned when the status response lacks
// computed.assignedIssues.
var ErrInvalidPayload = restclient.ErrInvalidPayload

// Credentials resolves the GitHub identity used against the service.
type Credentials interface {
	Token(ctx context.Context, org string) (string, error)
	UserID(ctx context.Context, org, login string) (int64, error)
}

// AssignedIssue is one issue currently held by a contributor.
type AssignedIssue struct {
	HTMLURL string    `json:"html_url"`
	Labels  labelList `json:"labels"`
}

// StatusResponse is the body of GET /start.
type StatusResponse struct {
	Computed *struct {
		AssignedIssues *[]AssignedIssue `json:"assignedIssues"`
	} `json:"computed"`
}

// labelList accepts labels as plain strings or as GitHub label objects.
type labelList []string

func (l *labelList) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		r = bytes.TrimSpace(r)
		if len(r) > 0 && r[0] == '"' {
			var s string
			if err := json.Unmarshal(r, &s); err != nil {
				return err
			}
			out = append(out, s)
			continue
		}
		var obj struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(r, &obj); err != nil {
			return err
		}
		out = append(out, obj.Name)
	}
	*l = out
	return nil
}

type startRequest struct {
	IssueURL string `json:"issueUrl"`
	UserID   int64  `json:"userId"`
}

// Client is the HTTP client of the start/stop service.
type Client struct {
	rest *restclient.Client
}

// NewClient creates a client for endpoint. observer may be nil.
func NewClient(endpoint string, timeout time.Duration, observer restclient.Observer) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{rest: restclient.New("startstop", endpoint, timeout, observer)}
}

// GetStatus returns the issues userID is assigned to. issueURL gives the
// service the context of the pending assignment.
func (c *Client) GetStatus(ctx context.Context, token string, userID int64, issueURL string) ([]AssignedIssue, error) {
	var resp StatusResponse
	err := c.rest.Do(ctx, restclient.Request{
		Op:     "get_status",
		Method: http.MethodGet,
		Path:   "/start",
		Query: url.Values{
			"userId":   {strconv.FormatInt(userID, 10)},
			"issueUrl": {issueURL},
		},
		Header: bearer(token),
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("get start status: %w", err)
	}
	if resp.Computed == nil || resp.Computed.AssignedIssues == nil {
		return nil, fmt.Errorf("get start status: %w: missing computed.assignedIssues", ErrInvalidPayload)
	}
	return *resp.Computed.AssignedIssues, nil
}

// Start assigns userID to issueURL.
func (c *Client) Start(ctx context.Context, token string, userID int64, issueURL string) error {
	err := c.rest.Do(ctx, restclient.Request{
		Op:     "start",
		Method: http.MethodPost,
		Path:   "/start",
		Header: bearer(token),
		Body:   startRequest{IssueURL: issueURL, UserID: userID},
	}, nil)
	if err != nil {
		return fmt.Errorf("start %s: %w", issueURL, err)
	}
	return nil
}

func bearer(token string) http.Header {
	h := http.Header{}
	if token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return h
}

var (
	_ planner.StatusService = (*Service)(nil)
	_ planner.Committer     = (*Service)(nil)
)

// Service adapts Client to the planner, resolving logins and tokens per
// organization.
type Service struct {
	client *Client
	creds  Credentials
}

// NewService creates a Service.
func NewService(client *Client, creds Credentials) *Service {
	return &Service{client: client, creds: creds}
}

// GetStatus implements planner.StatusService.
func (s *Service) GetStatus(ctx context.Context, login, issueURL string) (*planner.WorkStatus, error) {
	repo, _, err := planner.ParseIssueURL(issueURL)
	if err != nil {
		return nil, err
	}
	token, userID, err := s.identity(ctx, repo.Owner, login)
	if err != nil {
		return nil, err
	}

	issues, err := s.client.GetStatus(ctx, token, userID, issueURL)
	if err != nil {
		return nil, err
	}
	status := &planner.WorkStatus{AssignedItems: make([]planner.AssignedItem, 0, len(issues))}
	for _, issue := range issues {
		status.AssignedItems = append(status.AssignedItems, planner.AssignedItem{
			URL:    issue.HTMLURL,
			Labels: []string(issue.Labels),
		})
	}
	return status, nil
}

// Assign implements planner.Committer.
func (s *Service) Assign(ctx context.Context, task planner.Task, login string) error {
	token, userID, err := s.identity(ctx, task.Repository.Owner, login)
	if err != nil {
		return err
	}
	return s.client.Start(ctx, token, userID, task.URL())
}

func (s *Service) identity(ctx context.Context, org, login string) (string, int64, error) {
	token, err := s.creds.Token(ctx, org)
	if err != nil {
		return "", 0, fmt.Errorf("token for %s: %w", org, err)
	}
	userID, err := s.creds.UserID(ctx, org, login)
	if err != nil {
		return "", 0, fmt.Errorf("user id of %s: %w", login, err)
	}
	return token, userID, nil
}
