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
	"net/http"
	"strconv"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

// streamEvents handles GET /api/v1/runs/{runID}/events (WebSocket upgrade).
func (h *runHandler) streamEvents(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	log := h.log.WithValues("run", runID)

	if _, ok := h.runs.Report(runID); !ok {
		writeError(w, http.StatusNotFound, "run not found", "")
		return
	}

	var after int64
	if afterParam := r.URL.Query().Get("after"); afterParam != "" {
		var err error
		after, err = strconv.ParseInt(afterParam, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid after parameter", err.Error())
			return
		}
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		log.Error(err, "failed to accept websocket")
		return
	}
	defer conn.CloseNow() //nolint:errcheck

	// Write-only: CloseRead handles the client's close frame.
	ctx := conn.CloseRead(r.Context())

	history, ch, unsubscribe := h.eventHub.Subscribe(runID, after)
	defer unsubscribe()

	send := func(msg WSMessage) bool {
		data, err := json.Marshal(msg)
		if err != nil {
			log.Error(err, "failed to marshal message")
			return false
		}
		return conn.Write(ctx, websocket.MessageText, data) == nil
	}

	for _, a := range history {
		if !send(WSMessage{Type: MessageRunAction, Data: a}) {
			return
		}
	}

	// ch is nil when the run finished before we subscribed.
	if ch != nil {
		for a := range ch {
			if !send(WSMessage{Type: MessageRunAction, Data: a}) {
				return
			}
		}
	}

	// A closed channel means either the run completed or this subscriber
	// was evicted for being too slow.
	if !h.eventHub.IsStreamDone(runID) {
		_ = conn.Close(websocket.StatusPolicyViolation, "slow consumer evicted")
		return
	}

	complete := RunCompleteData{RunID: runID}
	if report, ok := h.eventHub.FinalReport(runID); ok {
		complete.Report = &report
	}
	_ = send(WSMessage{Type: MessageRunComplete, Data: complete})
	_ = conn.Close(websocket.StatusNormalClosure, "run complete")
}
