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

import (
	"cmp"
	"slices"
)

// LoadOf sums the hours held by a worker's assigned items. Items without a
// time label count as defaultEstimate; every item carries reviewBuffer on
// top.
func (e Estimator) LoadOf(items []AssignedItem, defaultEstimate, reviewBuffer float64) float64 {
	var load float64
	for _, item := range items {
		load += e.EstimateLabels(item.Labels).Or(defaultEstimate) + reviewBuffer
	}
	return load
}

// SelectCandidate picks the least loaded candidate that can absorb estimate
// within capacity. If none can, it picks the least loaded candidate overall.
// Ties keep the input order. ok is false only when scores is empty.
func SelectCandidate(scores []CandidateScore, estimate, capacity float64) (chosen CandidateScore, ok bool) {
	if len(scores) == 0 {
		return CandidateScore{}, false
	}

	byLoad := func(a, b CandidateScore) int {
		return cmp.Compare(a.Load, b.Load)
	}

	var feasible []CandidateScore
	for _, s := range scores {
		if s.Load+estimate <= capacity {
			feasible = append(feasible, s)
		}
	}
	if len(feasible) > 0 {
		slices.SortStableFunc(feasible, byLoad)
		return feasible[0], true
	}

	fallback := slices.Clone(scores)
	slices.SortStableFunc(fallback, byLoad)
	return fallback[0], true
}
