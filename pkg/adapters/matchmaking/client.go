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

// Package matchmaking queries the recommendation service that ranks
// contributors by how well their past work matches an issue.
package matchmaking

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/NissesSenap/daemon-planner/internal/restclient"
	"github.com/NissesSenap/daemon-planner/pkg/planner"
)

// DefaultEndpoint is the public matchmaking deployment.
const DefaultEndpoint = "https://text-vector-embeddings-mai.deno.dev"

var _ planner.Recommender = (*Client)(nil)

type contributor struct {
	Login      string  `json:"login"`
	Similarity float64 `json:"similarity"`
}

type recommendation struct {
	SortedContributors []contributor `json:"sortedContributors"`
}

// Client is the HTTP client of the matchmaking service.
type Client struct {
	rest *restclient.Client
}

// NewClient creates a client for endpoint. observer may be nil.
func NewClient(endpoint string, timeout time.Duration, observer restclient.Observer) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return &Client{rest: restclient.New("matchmaking", endpoint, timeout, observer)}
}

// Rank returns the contributors the service recommends for issueURL, best
// first. The service ranks against its own contributor index, so candidates
// is not sent; the planner intersects the result with its own pool.
func (c *Client) Rank(ctx context.Context, issueURL string, _ []string) ([]planner.Recommendation, error) {
	var resp map[string]recommendation
	err := c.rest.Do(ctx, restclient.Request{
		Op:     "recommendations",
		Method: http.MethodGet,
		Path:   "/recommendations",
		Query:  url.Values{"issueUrls": {issueURL}},
	}, &resp)
	if err != nil {
		return nil, fmt.Errorf("get recommendations: %w", err)
	}

	rec, ok := resp[issueURL]
	if !ok {
		return nil, nil
	}
	out := make([]planner.Recommendation, 0, len(rec.SortedContributors))
	for _, contrib := range rec.SortedContributors {
		if contrib.Login == "" {
			continue
		}
		out = append(out, planner.Recommendation{Login: contrib.Login, Similarity: contrib.Similarity})
	}
	return out, nil
}
