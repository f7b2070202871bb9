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
	"sync"

	"k8s.io/apimachinery/pkg/util/rand"

	"github.com/NissesSenap/daemon-planner/pkg/planner"
)

const (
	maxEventsPerRun = 1000
	maxStreams      = 100
)

// EventHub provides in-memory per-run action fan-out for WebSocket streaming.
// It implements daemon.RunListener.
type EventHub struct {
	mu    sync.RWMutex
	runs  map[string]*runStream
	order []string
}

type runStream struct {
	mu          sync.RWMutex
	events      []planner.Action
	subscribers map[string]chan planner.Action
	report      *planner.Report
	done        bool
}

// NewEventHub creates a new EventHub.
func NewEventHub() *EventHub {
	return &EventHub{
		runs: make(map[string]*runStream),
	}
}

// RunStarted starts mirroring the actions of summary.
func (h *EventHub) RunStarted(summary *planner.RunSummary) {
	id := summary.ID()
	h.getOrCreateStream(id)
	summary.OnAction(func(a planner.Action) {
		h.Publish(id, []planner.Action{a})
	})
}

// RunFinished completes the stream of the run.
func (h *EventHub) RunFinished(report planner.Report) {
	ts := h.getOrCreateStream(report.ID)
	ts.mu.Lock()
	ts.report = &report
	ts.mu.Unlock()
	h.Complete(report.ID)
}

// getOrCreateStream returns the runStream for the given run, creating it if needed.
func (h *EventHub) getOrCreateStream(runID string) *runStream {
	h.mu.RLock()
	ts, ok := h.runs[runID]
	h.mu.RUnlock()
	if ok {
		return ts
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	// Double-check after acquiring write lock
	if ts, ok := h.runs[runID]; ok {
		return ts
	}
	ts = &runStream{
		subscribers: make(map[string]chan planner.Action),
	}
	h.runs[runID] = ts
	h.order = append(h.order, runID)
	h.evictLocked()
	return ts
}

// evictLocked drops the oldest completed streams beyond maxStreams.
func (h *EventHub) evictLocked() {
	kept := h.order[:0]
	excess := len(h.order) - maxStreams
	for _, id := range h.order {
		if excess > 0 {
			ts := h.runs[id]
			ts.mu.RLock()
			done := ts.done
			ts.mu.RUnlock()
			if done {
				delete(h.runs, id)
				excess--
				continue
			}
		}
		kept = append(kept, id)
	}
	h.order = kept
}

// Publish appends actions to the ring buffer and fans out to subscribers.
func (h *EventHub) Publish(runID string, actions []planner.Action) {
	ts := h.getOrCreateStream(runID)

	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.done {
		return
	}

	for _, a := range actions {
		if len(ts.events) >= maxEventsPerRun {
			// Ring buffer: drop oldest
			ts.events = ts.events[1:]
		}
		ts.events = append(ts.events, a)
	}

	for id, ch := range ts.subscribers {
	actions:
		for _, a := range actions {
			select {
			case ch <- a:
			default:
				// Subscriber too slow, drop and remove
				close(ch)
				delete(ts.subscribers, id)
				break actions
			}
		}
	}
}

// Subscribe returns historical actions with sequence > after, plus a channel for live actions.
// Returns nil channel if the stream is already done.
func (h *EventHub) Subscribe(runID string, after int64) (history []planner.Action, ch <-chan planner.Action, unsubscribe func()) {
	ts := h.getOrCreateStream(runID)

	ts.mu.Lock()
	defer ts.mu.Unlock()

	for _, a := range ts.events {
		if a.Sequence > after {
			history = append(history, a)
		}
	}

	if ts.done {
		return history, nil, func() {}
	}

	subCh := make(chan planner.Action, 64)
	subID := rand.String(8)
	ts.subscribers[subID] = subCh

	unsubscribe = func() {
		ts.mu.Lock()
		defer ts.mu.Unlock()
		if _, ok := ts.subscribers[subID]; ok {
			delete(ts.subscribers, subID)
			close(subCh)
		}
	}

	return history, subCh, unsubscribe
}

// Complete marks a run stream as done and closes all subscriber channels.
func (h *EventHub) Complete(runID string) {
	h.mu.RLock()
	ts, ok := h.runs[runID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	ts.mu.Lock()
	defer ts.mu.Unlock()

	if ts.done {
		return
	}
	ts.done = true

	for id, ch := range ts.subscribers {
		close(ch)
		delete(ts.subscribers, id)
	}
}

// IsStreamDone reports whether the given run stream has been completed via Complete().
// Returns false if the stream does not exist or has not been completed.
func (h *EventHub) IsStreamDone(runID string) bool {
	h.mu.RLock()
	ts, ok := h.runs[runID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.done
}

// FinalReport returns the report of a finished run.
func (h *EventHub) FinalReport(runID string) (planner.Report, bool) {
	h.mu.RLock()
	ts, ok := h.runs[runID]
	h.mu.RUnlock()
	if !ok {
		return planner.Report{}, false
	}
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	if ts.report == nil {
		return planner.Report{}, false
	}
	return *ts.report, true
}

// Cleanup removes a run stream entirely.
// It calls Complete first to close any subscriber channels so that goroutines
// blocked on "for a := range ch" are not leaked.
func (h *EventHub) Cleanup(runID string) {
	h.Complete(runID)

	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.runs, runID)
	for i, id := range h.order {
		if id == runID {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
}
