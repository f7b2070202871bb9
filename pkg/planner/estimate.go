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
	"regexp"
	"strconv"
	"strings"
	"time"
)

const (
	timeLabelPrefix    = "time:"
	workingDaysPerWeek = 5
)

var (
	fillerRegex   = regexp.MustCompile(`\b(approximately|approx|about|around|roughly)\b\.?|~`)
	durationRegex = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(weeks?|wks?|w|days?|d|hours?|hrs?|h|minutes?|mins?|m)\b`)
)

// Hours is an optional effort estimate. The zero value is NotEligible.
type Hours struct {
	value float64
	valid bool
}

// NotEligible marks a task without a usable effort estimate.
var NotEligible = Hours{}

// HoursOf wraps a known estimate.
func HoursOf(v float64) Hours {
	return Hours{value: v, valid: true}
}

// Get returns the estimate and whether one is present.
func (h Hours) Get() (float64, bool) {
	return h.value, h.valid
}

// Eligible reports whether an estimate is present.
func (h Hours) Eligible() bool {
	return h.valid
}

// Or returns the estimate, or def when none is present.
func (h Hours) Or(def float64) float64 {
	if !h.valid {
		return def
	}
	return h.value
}

func (h Hours) String() string {
	if !h.valid {
		return "n/a"
	}
	return strconv.FormatFloat(h.value, 'f', -1, 64) + "h"
}

// Estimator turns "Time: ..." labels into hours.
type Estimator struct {
	// DailyCapacityHours is the length of one working day.
	DailyCapacityHours float64
}

// EstimateLabels returns the estimate of the first time label in labels.
func (e Estimator) EstimateLabels(labels []string) Hours {
	for _, label := range labels {
		trimmed := strings.TrimSpace(label)
		if !strings.HasPrefix(strings.ToLower(trimmed), timeLabelPrefix) {
			continue
		}
		return e.ParseDuration(trimmed[len(timeLabelPrefix):])
	}
	return NotEligible
}

// ParseDuration parses a free-text duration such as "<4 Hours", "1 day",
// "about 2 weeks" or "90m".
func (e Estimator) ParseDuration(value string) Hours {
	cleaned := strings.ToLower(value)
	cleaned = strings.NewReplacer("<", "", ">", "", "=", "").Replace(cleaned)
	cleaned = strings.TrimSpace(fillerRegex.ReplaceAllString(cleaned, ""))
	if cleaned == "" {
		return NotEligible
	}

	if d, err := time.ParseDuration(strings.ReplaceAll(cleaned, " ", "")); err == nil {
		if d <= 0 {
			return NotEligible
		}
		return HoursOf(d.Hours())
	}

	m := durationRegex.FindStringSubmatch(cleaned)
	if m == nil {
		return NotEligible
	}
	amount, err := strconv.ParseFloat(m[1], 64)
	if err != nil || amount <= 0 {
		return NotEligible
	}

	switch unit := m[2]; {
	case strings.HasPrefix(unit, "w"):
		return HoursOf(amount * workingDaysPerWeek * e.DailyCapacityHours)
	case strings.HasPrefix(unit, "d"):
		return HoursOf(amount * e.DailyCapacityHours)
	case strings.HasPrefix(unit, "m"):
		return HoursOf(amount / 60)
	default:
		return HoursOf(amount)
	}
}
