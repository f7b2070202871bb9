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
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	gh "github.com/google/go-github/v75/github"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NissesSenap/daemon-planner/pkg/planner"
)

// newTestSession creates a token-authenticated Session backed by a test HTTP server.
func newTestSession(t *testing.T, handler http.Handler) (*Session, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	ghClient := gh.NewClient(nil)
	ghClient, _ = ghClient.WithEnterpriseURLs(srv.URL+"/", srv.URL+"/upload/")
	return newClientFromGH(ghClient, "user-token").NewSession(nil), srv
}

func TestNewClient(t *testing.T) {
	t.Run("unconfigured", func(t *testing.T) {
		_, err := NewClient(Options{})
		assert.ErrorIs(t, err, ErrUnconfigured)
	})

	t.Run("missing key file", func(t *testing.T) {
		_, err := NewClient(Options{AppID: 1, PrivateKeyPath: filepath.Join(t.TempDir(), "nope.pem")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read private key")
	})

	t.Run("invalid key", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "key.pem")
		require.NoError(t, os.WriteFile(path, []byte("not a key"), 0o600))
		_, err := NewClient(Options{AppID: 1, PrivateKeyPath: path})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "parse private key")
	})

	t.Run("token", func(t *testing.T) {
		c, err := NewClient(Options{Token: "tok"})
		require.NoError(t, err)
		token, err := c.NewSession(nil).Token(context.Background(), "org-a")
		require.NoError(t, err)
		assert.Equal(t, "tok", token)
	})
}

func TestSession_ListRepositories(t *testing.T) {
	var srvURL string
	session, srv := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/orgs/org-a/repos", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "2" {
			_, _ = w.Write([]byte(`[{"name":"repo-2","owner":{"login":"org-a"},"archived":true}]`))
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/api/v3/orgs/org-a/repos?page=2>; rel="next"`, srvURL))
		_, _ = w.Write([]byte(`[{"name":"repo-1","owner":{"login":"org-a"},"private":true}]`))
	}))
	defer srv.Close()
	srvURL = srv.URL

	repos, err := session.ListRepositories(context.Background(), "org-a")
	require.NoError(t, err)
	require.Len(t, repos, 2)
	assert.Equal(t, "org-a/repo-1", repos[0].String())
	assert.True(t, repos[0].Private)
	assert.True(t, repos[1].Archived)
}

func TestSession_ListOpenIssues(t *testing.T) {
	session, srv := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/repos/org-a/repo-1/issues", r.URL.Path)
		assert.Equal(t, "open", r.URL.Query().Get("state"))
		assert.Equal(t, "none", r.URL.Query().Get("assignee"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"number": 1, "labels": [{"name": "Priority: 1 (Normal)"}, {"name": "Time: <1 Hour"}]},
			{"number": 2, "pull_request": {"url": "https://api.github.com/repos/org-a/repo-1/pulls/2"}},
			{"number": 3, "assignees": [{"login": "zoe"}]}
		]`))
	}))
	defer srv.Close()

	issues, err := session.ListOpenIssues(context.Background(), planner.RepositoryRef{Owner: "org-a", Name: "repo-1"})
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, planner.Issue{Number: 1, Labels: []string{"Priority: 1 (Normal)", "Time: <1 Hour"}}, issues[0])
	assert.Equal(t, []string{"zoe"}, issues[1].Assignees)
}

func TestSession_ListOpenIssuesPaginates(t *testing.T) {
	var srvURL string
	var calls atomic.Int32
	session, srv := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("page") == "2" {
			_, _ = w.Write([]byte(`[{"number": 8}]`))
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/api/v3/repos/org-a/repo-1/issues?page=2>; rel="next"`, srvURL))
		_, _ = w.Write([]byte(`[{"number": 7}]`))
	}))
	defer srv.Close()
	srvURL = srv.URL

	issues, err := session.ListOpenIssues(context.Background(), planner.RepositoryRef{Owner: "org-a", Name: "repo-1"})
	require.NoError(t, err)
	require.Len(t, issues, 2)
	assert.Equal(t, 7, issues[0].Number)
	assert.Equal(t, 8, issues[1].Number)
	assert.Equal(t, int32(2), calls.Load())
}

func TestSession_ListOrgMembers(t *testing.T) {
	session, srv := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/orgs/org-a/members", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"login": "alice"}, {"login": "bob"}]`))
	}))
	defer srv.Close()

	members, err := session.ListOrgMembers(context.Background(), "org-a")
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, members)
}

func TestSession_ListOrgMembersError(t *testing.T) {
	session, srv := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message": "Must have admin rights"}`))
	}))
	defer srv.Close()

	_, err := session.ListOrgMembers(context.Background(), "org-a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list members of org-a")
}

func TestSession_UserIDIsMemoized(t *testing.T) {
	var calls atomic.Int32
	session, srv := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/api/v3/users/alice", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"login": "alice", "id": 1234}`))
	}))
	defer srv.Close()

	for range 3 {
		id, err := session.UserID(context.Background(), "org-a", "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(1234), id)
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestSession_Assign(t *testing.T) {
	var body map[string][]string
	session, srv := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v3/repos/org-a/repo-1/issues/3/assignees", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"number": 3}`))
	}))
	defer srv.Close()

	task := planner.Task{Repository: planner.RepositoryRef{Owner: "org-a", Name: "repo-1"}, Issue: planner.Issue{Number: 3}}
	require.NoError(t, session.Assign(context.Background(), task, "alice"))
	assert.Equal(t, []string{"alice"}, body["assignees"])
}

func writeTestKey(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "app.pem")
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	require.NoError(t, os.WriteFile(path, pemBytes, 0o600))
	return path
}

func TestSession_AppInstallationFlow(t *testing.T) {
	var installLookups, tokenExchanges atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/api/v3/orgs/org-a/installation":
			installLookups.Add(1)
			assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Bearer "), "app JWT")
			_, _ = w.Write([]byte(`{"id": 77}`))
		case r.URL.Path == "/api/v3/app/installations/77/access_tokens":
			tokenExchanges.Add(1)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"token": "inst-token", "expires_at": "2099-01-01T00:00:00Z"}`))
		case r.URL.Path == "/api/v3/installation/repositories":
			assert.Equal(t, "token inst-token", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"total_count": 1, "repositories": [{"name": "repo-1", "owner": {"login": "org-a"}}]}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c, err := NewClient(Options{AppID: 42, PrivateKeyPath: writeTestKey(t), BaseURL: srv.URL + "/api/v3/"})
	require.NoError(t, err)
	session := c.NewSession(nil)
	ctx := context.Background()

	repos, err := session.ListRepositories(ctx, "org-a")
	require.NoError(t, err)
	require.Len(t, repos, 1)
	assert.Equal(t, "org-a/repo-1", repos[0].String())

	token, err := session.Token(ctx, "ORG-A")
	require.NoError(t, err)
	assert.Equal(t, "inst-token", token)

	assert.Equal(t, int32(1), installLookups.Load(), "installation is resolved once per session")
	assert.Equal(t, int32(1), tokenExchanges.Load(), "installation token is reused until expiry")

	_, err = c.NewSession(nil).Token(ctx, "org-a")
	require.NoError(t, err)
	assert.Equal(t, int32(2), installLookups.Load(), "new sessions start with empty caches")
}

func TestSession_GetIssue(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    planner.Issue
		wantErr error
	}{
		{
			name: "open issue",
			body: `{"number": 5, "state": "open", "labels": [{"name": "Time: 2 Hours"}]}`,
			want: planner.Issue{Number: 5, Labels: []string{"Time: 2 Hours"}},
		},
		{
			name:    "closed issue",
			body:    `{"number": 5, "state": "closed"}`,
			wantErr: ErrNotPlannable,
		},
		{
			name:    "pull request",
			body:    `{"number": 5, "state": "open", "pull_request": {"url": "https://api.github.com/repos/org-a/repo-1/pulls/5"}}`,
			wantErr: ErrNotPlannable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session, srv := newTestSession(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v3/repos/org-a/repo-1/issues/5", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			issue, err := session.GetIssue(context.Background(), planner.RepositoryRef{Owner: "org-a", Name: "repo-1"}, 5)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, issue)
		})
	}
}
