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
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/golang-jwt/jwt/v5"
	gh "github.com/google/go-github/v75/github"
)

// ErrUnconfigured is returned when neither App credentials nor a token are
// configured.
var ErrUnconfigured = errors.New("github credentials not configured")

// ErrNotPlannable is returned by GetIssue for pull requests and closed
// issues.
var ErrNotPlannable = errors.New("not an open issue")

const serviceName = "github"

// Observer is notified after every GitHub call.
type Observer interface {
	ObserveRequest(service, op string, duration time.Duration, err error)
}

// Options configures a Client. Either AppID with PrivateKeyPath or Token
// must be set; App credentials win when both are present.
type Options struct {
	AppID          int64
	PrivateKeyPath string
	Token          string
	// BaseURL points the client at GitHub Enterprise, e.g.
	// "https://ghe.example.com/api/v3/". Empty means github.com.
	BaseURL  string
	Timeout  time.Duration
	Observer Observer
}

// Client holds the long-lived GitHub credentials. Per-run state lives in a
// Session.
type Client struct {
	apps       *ghinstallation.AppsTransport
	appClient  *gh.Client
	userClient *gh.Client
	token      string
	baseURL    string
	timeout    time.Duration
	observer   Observer
}

// NewClient creates a client from opts.
func NewClient(opts Options) (*Client, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		baseURL:  opts.BaseURL,
		timeout:  timeout,
		observer: opts.Observer,
	}

	switch {
	case opts.AppID != 0 && opts.PrivateKeyPath != "":
		pemBytes, err := os.ReadFile(opts.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key: %w", err)
		}
		key, err := jwt.ParseRSAPrivateKeyFromPEM(pemBytes)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		c.apps = ghinstallation.NewAppsTransportFromPrivateKey(http.DefaultTransport, opts.AppID, key)
		if opts.BaseURL != "" {
			c.apps.BaseURL = strings.TrimRight(opts.BaseURL, "/")
		}
		appClient, err := c.newGitHubClient(c.apps)
		if err != nil {
			return nil, err
		}
		c.appClient = appClient
	case opts.Token != "":
		userClient, err := c.newGitHubClient(http.DefaultTransport)
		if err != nil {
			return nil, err
		}
		c.token = opts.Token
		c.userClient = userClient.WithAuthToken(opts.Token)
	default:
		return nil, ErrUnconfigured
	}
	return c, nil
}

// newClientFromGH wraps an already authenticated go-github client. Used by
// tests and by callers that manage authentication themselves.
func newClientFromGH(client *gh.Client, token string) *Client {
	return &Client{userClient: client, token: token, timeout: 30 * time.Second}
}

func (c *Client) newGitHubClient(rt http.RoundTripper) (*gh.Client, error) {
	client := gh.NewClient(&http.Client{Transport: rt, Timeout: c.timeout})
	if c.baseURL == "" {
		return client, nil
	}
	client, err := client.WithEnterpriseURLs(c.baseURL, c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("configure enterprise URLs: %w", err)
	}
	return client, nil
}

func (c *Client) observe(op string, start time.Time, err error) {
	if c.observer != nil {
		c.observer.ObserveRequest(serviceName, op, time.Since(start), err)
	}
}
