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
	"fmt"
	"math"
	"slices"
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"
)

// NormalizeSimilarity maps a similarity given either as a fraction or as a
// percentage onto [0,1].
func NormalizeSimilarity(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		v /= 100
	}
	return math.Max(0, math.Min(1, v))
}

// FormatMatchPercent renders a similarity as " (NN%)".
func FormatMatchPercent(similarity float64) string {
	return fmt.Sprintf(" (%d%%)", int(math.Round(NormalizeSimilarity(similarity)*100)))
}

// ApplyRecommendations narrows allowed to the candidates the recommender
// considers relevant. Recommendations for logins outside allowed are
// ignored. When no recommendation reaches threshold, every allowed
// candidate is kept with the ranked ones first.
func ApplyRecommendations(allowed []string, recs []Recommendation, threshold float64) ([]string, map[string]float64) {
	allowedSet := sets.New(allowed...)
	similarity := make(map[string]float64, len(recs))

	var ranked []Recommendation
	for _, r := range recs {
		login := strings.TrimSpace(r.Login)
		if !allowedSet.Has(login) {
			continue
		}
		if _, dup := similarity[login]; dup {
			continue
		}
		sim := NormalizeSimilarity(r.Similarity)
		similarity[login] = sim
		ranked = append(ranked, Recommendation{Login: login, Similarity: sim})
	}
	slices.SortStableFunc(ranked, func(a, b Recommendation) int {
		switch {
		case a.Similarity > b.Similarity:
			return -1
		case a.Similarity < b.Similarity:
			return 1
		}
		return 0
	})

	t := NormalizeSimilarity(threshold)
	var relevant []string
	for _, r := range ranked {
		if r.Similarity >= t {
			relevant = append(relevant, r.Login)
		}
	}
	if len(relevant) > 0 {
		return relevant, similarity
	}

	out := make([]string, 0, len(allowed))
	for _, r := range ranked {
		out = append(out, r.Login)
	}
	for _, login := range allowed {
		if _, ok := similarity[login]; !ok {
			out = append(out, login)
		}
	}
	return out, similarity
}
