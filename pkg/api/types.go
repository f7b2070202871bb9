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

import "github.com/NissesSenap/daemon-planner/pkg/planner"

// WebSocket message types.
const (
	MessageRunAction   = "run_action"
	MessageRunComplete = "run_complete"
)

// CreateRunRequest is the optional JSON body for POST /api/v1/runs.
type CreateRunRequest struct {
	DryRun *bool `json:"dryRun,omitempty"`
}

// CreateRunResponse is returned when a run is queued.
type CreateRunResponse struct {
	ID string `json:"id"`
}

// WSMessage is one frame of the run event stream.
type WSMessage struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// RunCompleteData is the payload of the final frame.
type RunCompleteData struct {
	RunID  string          `json:"runId"`
	Report *planner.Report `json:"report,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
