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

package planner

import "time"

// Outcome classifies what happened to a task during a run.
type Outcome string

const (
	OutcomeAssigned       Outcome = "assigned"
	OutcomePlanned        Outcome = "planned"
	OutcomeCommitFailed   Outcome = "commit_failed"
	OutcomeAlreadyTaken   Outcome = "already_assigned"
	OutcomeNoCandidates   Outcome = "no_candidates"
	OutcomeUnassignable   Outcome = "unassignable"
	OutcomeInvalid        Outcome = "invalid"
	OutcomeRankingFailure Outcome = "ranking_failed"
)

// Metrics receives planner measurements.
type Metrics interface {
	ObserveRun(mode Mode, dryRun bool, duration time.Duration, err error)
	IncOutcome(outcome Outcome)
	ObserveCacheLookup(cache string, hit bool)
}

// NopMetrics discards everything.
type NopMetrics struct{}

var _ Metrics = NopMetrics{}

func (NopMetrics) ObserveRun(Mode, bool, time.Duration, error) {}
func (NopMetrics) IncOutcome(Outcome)                          {}
func (NopMetrics) ObserveCacheLookup(string, bool)             {}
