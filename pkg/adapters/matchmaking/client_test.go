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

package matchmaking

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NissesSenap/daemon-planner/pkg/planner"
)

const issueURL = "https://github.com/org-a/repo-1/issues/1"

func TestClient_Rank(t *testing.T) {
	t.Run("returns contributors in service order", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/recommendations", r.URL.Path)
			assert.Equal(t, issueURL, r.URL.Query().Get("issueUrls"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"` + issueURL + `": {"sortedContributors": [
				{"login": "bob", "similarity": 0.91},
				{"login": "", "similarity": 0.5},
				{"login": "alice", "similarity": 0.2}
			]}}`))
		}))
		defer srv.Close()

		recs, err := NewClient(srv.URL, 0, nil).Rank(context.Background(), issueURL, []string{"alice", "bob"})
		require.NoError(t, err)
		assert.Equal(t, []planner.Recommendation{
			{Login: "bob", Similarity: 0.91},
			{Login: "alice", Similarity: 0.2},
		}, recs)
	})

	t.Run("unknown issue", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		recs, err := NewClient(srv.URL, 0, nil).Rank(context.Background(), issueURL, nil)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("service error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		_, err := NewClient(srv.URL, 0, nil).Rank(context.Background(), issueURL, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "API error 503")
	})
}
