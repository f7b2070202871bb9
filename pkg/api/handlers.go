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

package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-logr/logr"

	"github.com/NissesSenap/daemon-planner/pkg/adapters/github"
	"github.com/NissesSenap/daemon-planner/pkg/planner"
)

// Runs is the part of the daemon the API drives.
type Runs interface {
	github.IssueSink
	StartSweep(dryRun bool) (string, error)
	Report(id string) (planner.Report, bool)
}

// runHandler holds dependencies for run endpoints.
type runHandler struct {
	runs          Runs
	eventHub      *EventHub
	defaultDryRun bool
	log           logr.Logger
}

// createRun handles POST /api/v1/runs.
func (h *runHandler) createRun(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	dryRun := h.defaultDryRun
	if req.DryRun != nil {
		dryRun = *req.DryRun
	}

	id, err := h.runs.StartSweep(dryRun)
	if err != nil {
		h.log.Error(err, "failed to queue sweep")
		writeError(w, http.StatusServiceUnavailable, "failed to queue run", err.Error())
		return
	}
	h.log.Info("queued sweep", "run", id, "dryRun", dryRun)
	writeJSON(w, http.StatusAccepted, CreateRunResponse{ID: id})
}

// getRun handles GET /api/v1/runs/{runID}.
func (h *runHandler) getRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	report, ok := h.runs.Report(runID)
	if !ok {
		writeError(w, http.StatusNotFound, "run not found", "")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal encoding error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(w http.ResponseWriter, status int, msg, details string) {
	writeJSON(w, status, ErrorResponse{Error: msg, Details: details})
}
