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
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var priorityRegex = regexp.MustCompile(`(?i)^priority:\s*(\d+)\s*\(`)

// ParsePriority returns the highest "Priority: N (...)" value in labels.
// ok is false when no label carries a priority.
func ParsePriority(labels []string) (priority int, ok bool) {
	best := -1
	for _, label := range labels {
		m := priorityRegex.FindStringSubmatch(strings.TrimSpace(label))
		if m == nil {
			continue
		}
		v, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if v > best {
			best = v
		}
	}
	if best < 0 {
		return 0, false
	}
	return best, true
}

// CompareTasks orders tasks by priority descending, then owner, repository
// name and issue number ascending.
func CompareTasks(a, b Task) int {
	if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
		return c
	}
	if c := strings.Compare(a.Repository.Owner, b.Repository.Owner); c != 0 {
		return c
	}
	if c := strings.Compare(a.Repository.Name, b.Repository.Name); c != 0 {
		return c
	}
	return cmp.Compare(a.Issue.Number, b.Issue.Number)
}

// SortTasks returns a sorted copy of tasks.
func SortTasks(tasks []Task) []Task {
	sorted := slices.Clone(tasks)
	slices.SortStableFunc(sorted, CompareTasks)
	return sorted
}
