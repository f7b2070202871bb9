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
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-logr/logr"
	gh "github.com/google/go-github/v75/github"

	"github.com/NissesSenap/daemon-planner/pkg/planner"
)

// IssueSink accepts newly opened issues for planning. Submit must not block
// on the planning itself; it reports whether the issue was accepted.
type IssueSink interface {
	Submit(repo planner.RepositoryRef, issue planner.Issue) bool
}

// WebhookHandler handles incoming GitHub webhooks.
type WebhookHandler struct {
	secret string
	sink   IssueSink
	log    logr.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(secret string, sink IssueSink, log logr.Logger) *WebhookHandler {
	return &WebhookHandler{
		secret: secret,
		sink:   sink,
		log:    log,
	}
}

// ServeHTTP handles webhook requests.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// Read body with 10MB limit
	body, err := io.ReadAll(io.LimitReader(r.Body, 10<<20))
	if err != nil {
		h.log.Error(err, "failed to read webhook body")
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	if !h.verifySignature(body, r.Header.Get("X-Hub-Signature-256")) {
		h.log.Info("webhook signature verification failed")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	eventType := r.Header.Get("X-GitHub-Event")
	h.log.V(1).Info("received webhook", "event", eventType)

	switch eventType {
	case "issues":
		w.WriteHeader(h.handleIssues(body))
		return
	case "ping":
		h.log.Info("received ping webhook")
	default:
		h.log.V(1).Info("ignoring event type", "event", eventType)
	}

	w.WriteHeader(http.StatusOK)
}

// verifySignature verifies the GitHub webhook signature using HMAC-SHA256.
func (h *WebhookHandler) verifySignature(body []byte, signature string) bool {
	if h.secret == "" {
		return true // No verification if no secret configured
	}

	if !strings.HasPrefix(signature, "sha256=") {
		return false
	}

	mac := hmac.New(sha256.New, []byte(h.secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// handleIssues processes issues events and returns the response status.
func (h *WebhookHandler) handleIssues(body []byte) int {
	var event gh.IssuesEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.log.Error(err, "failed to parse issues event")
		return http.StatusBadRequest
	}

	switch event.GetAction() {
	case "opened", "reopened":
	default:
		return http.StatusOK
	}

	repo := planner.RepositoryRef{
		Owner: event.GetRepo().GetOwner().GetLogin(),
		Name:  event.GetRepo().GetName(),
	}
	if repo.Owner == "" || repo.Name == "" || event.GetIssue().GetNumber() == 0 {
		h.log.Info("issues event without repository or issue number")
		return http.StatusBadRequest
	}
	if event.GetRepo().GetArchived() || event.GetRepo().GetPrivate() {
		h.log.V(1).Info("ignoring issue in archived or private repository", "repo", repo.String())
		return http.StatusOK
	}

	issue := ToIssue(event.GetIssue())
	h.log.Info("planning issue from webhook",
		"repo", repo.String(),
		"issue", issue.Number,
		"action", event.GetAction(),
	)

	if h.sink == nil || !h.sink.Submit(repo, issue) {
		return http.StatusServiceUnavailable
	}
	return http.StatusAccepted
}
