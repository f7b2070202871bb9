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
	"context"
	"errors"

	"github.com/go-logr/logr"
	"github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type world struct {
	repo        *fakeRepo
	members     *fakeMembers
	status      *fakeStatus
	recommender *fakeRecommender
	committer   *fakeCommitter
}

func newWorld() *world {
	return &world{
		repo:      &fakeRepo{repos: map[string][]Repository{}, issues: map[string][]Issue{}},
		members:   &fakeMembers{members: map[string][]string{}},
		status:    newFakeStatus(map[string][]AssignedItem{}),
		committer: &fakeCommitter{},
	}
}

func (w *world) addTask(owner, name string, issue Issue) {
	key := owner + "/" + name
	if _, ok := w.issues(key); !ok {
		w.repo.repos[owner] = append(w.repo.repos[owner], repoOf(owner, name))
	}
	w.repo.issues[key] = append(w.repo.issues[key], issue)
}

func (w *world) issues(key string) ([]Issue, bool) {
	v, ok := w.repo.issues[key]
	return v, ok
}

func (w *world) run(cfg Config) Report {
	deps := Dependencies{
		Tasks:     w.repo,
		Members:   w.members,
		Status:    w.status,
		Committer: w.committer,
		Log:       logr.Discard(),
	}
	if w.recommender != nil {
		deps.Recommender = w.recommender
	}
	summary := NewRunSummary("scenario", ModeSweep, cfg.DryRun)
	Expect(New(cfg, deps, summary).Run(context.Background())).To(Succeed())
	return summary.Report()
}

func messages(r Report) []string {
	out := make([]string, 0, len(r.Actions))
	for _, a := range r.Actions {
		out = append(out, a.Message)
	}
	return out
}

var _ = ginkgo.Describe("Planner", func() {
	var (
		w   *world
		cfg Config
	)

	ginkgo.BeforeEach(func() {
		w = newWorld()
		cfg = testConfig()
	})

	ginkgo.Context("with one task and two free candidates of different load", func() {
		ginkgo.BeforeEach(func() {
			// Holding one item each keeps both available under a limit of 2.
			cfg.AssignedTaskLimit = 2
			w.members.members["org-a"] = []string{"heavy", "light"}
			w.status.items["light"] = []AssignedItem{hoursItem("https://github.com/org-a/repo-1/issues/90", 1)}
			w.status.items["heavy"] = []AssignedItem{hoursItem("https://github.com/org-a/repo-1/issues/91", 3)}
			w.addTask("org-a", "repo-1", taskIssue(1, 1, "<1 Hour"))
		})

		ginkgo.It("assigns the task to the less loaded candidate", func() {
			r := w.run(cfg)

			Expect(w.committer.Calls()).To(Equal([]string{"org-a/repo-1#1->light"}))
			Expect(messages(r)).To(ContainElement("Assigned org-a/repo-1#1 to light"))
		})

		ginkgo.It("picks the 2h candidate over the 5h one for a 1h task", func() {
			chosen, ok := SelectCandidate(
				[]CandidateScore{{Login: "userA", Load: 5}, {Login: "userB", Load: 2}},
				1+cfg.ReviewBufferHours, cfg.Capacity())
			Expect(ok).To(BeTrue())
			Expect(chosen.Login).To(Equal("userB"))
		})
	})

	ginkgo.Context("with a recommendation service", func() {
		ginkgo.BeforeEach(func() {
			cfg.AssignedTaskLimit = 2
			cfg.RecommendationThreshold = 0.5
			w.members.members["org-a"] = []string{"userA", "userB"}
			w.status.items["userB"] = []AssignedItem{hoursItem("https://github.com/org-a/repo-1/issues/90", 8)}
			w.addTask("org-a", "repo-1", taskIssue(1, 1, "<1 Hour"))
			w.recommender = &fakeRecommender{recs: map[string][]Recommendation{
				"https://github.com/org-a/repo-1/issues/1": {
					{Login: "userA", Similarity: 0.3},
					{Login: "userB", Similarity: 0.9},
				},
			}}
		})

		ginkgo.It("only considers candidates above the threshold", func() {
			r := w.run(cfg)

			Expect(w.committer.Calls()).To(Equal([]string{"org-a/repo-1#1->userB"}))
			Expect(messages(r)).To(ContainElement("Assigned org-a/repo-1#1 to userB (90%)"))
		})

		ginkgo.It("falls back to workload when the service fails", func() {
			w.recommender.err = errors.New("unavailable")

			w.run(cfg)

			Expect(w.committer.Calls()).To(Equal([]string{"org-a/repo-1#1->userA"}))
		})
	})

	ginkgo.Context("with disjoint organizations", func() {
		ginkgo.BeforeEach(func() {
			cfg.Organizations = []string{"org1", "org2"}
			w.members.members["org1"] = []string{"u1"}
			w.members.members["org2"] = []string{"u2"}
			w.addTask("org1", "repo", taskIssue(1, 5, "2h"))
			w.addTask("org2", "repo", taskIssue(2, 9, "2h"))
		})

		ginkgo.It("never crosses organization membership", func() {
			w.run(cfg)

			Expect(w.committer.Calls()).To(Equal([]string{
				"org2/repo#2->u2",
				"org1/repo#1->u1",
			}))
		})

		ginkgo.It("leaves a task unassigned when its organization has nobody free", func() {
			w.status.items["u1"] = []AssignedItem{hoursItem("https://github.com/org1/repo/issues/7", 1)}

			r := w.run(cfg)

			Expect(w.committer.Calls()).To(Equal([]string{"org2/repo#2->u2"}))
			Expect(messages(r)).NotTo(ContainElement(ContainSubstring("org1/repo#1 to u2")))
		})
	})

	ginkgo.Context("when the candidate pool runs out", func() {
		ginkgo.BeforeEach(func() {
			w.members.members["org-a"] = []string{"solo"}
			w.addTask("org-a", "repo-1", taskIssue(1, 9, "1h"))
			w.addTask("org-a", "repo-1", taskIssue(2, 1, "1h"))
		})

		ginkgo.It("stops early without error", func() {
			r := w.run(cfg)

			Expect(w.committer.Calls()).To(Equal([]string{"org-a/repo-1#1->solo"}))
			Expect(messages(r)).To(ContainElement("Stopping early (no candidates left to assign)"))
			Expect(r.Candidates).To(HaveLen(1))
			Expect(r.Candidates[0].AssignedInRun).To(HaveLen(1))
		})

		ginkgo.It("keeps the worker in the pool when the commit fails", func() {
			w.committer.errs = map[string]error{"org-a/repo-1#1": errors.New("502")}

			r := w.run(cfg)

			Expect(w.committer.Calls()).To(Equal([]string{
				"org-a/repo-1#1->solo",
				"org-a/repo-1#2->solo",
			}))
			Expect(messages(r)).To(ContainElement("Failed to assign org-a/repo-1#1 to solo"))
		})
	})

	ginkgo.Context("in dry-run mode", func() {
		ginkgo.BeforeEach(func() {
			cfg.DryRun = true
			w.members.members["org-a"] = []string{"alice", "bob"}
			w.status.items["bob"] = nil
			w.addTask("org-a", "repo-1", taskIssue(1, 9, "1h"))
			w.addTask("org-a", "repo-1", taskIssue(2, 1, "1h"))
		})

		ginkgo.It("plans identically across runs and never commits", func() {
			first := w.run(cfg)
			second := w.run(cfg)

			Expect(w.committer.Calls()).To(BeEmpty())
			Expect(first.Plans).To(Equal(second.Plans))
			Expect(first.Plans).To(HaveLen(2))
			Expect(messages(first)).To(ContainElement("Dry run: would assign org-a/repo-1#1 to alice"))
			for _, c := range first.Candidates {
				Expect(c.AssignedInRun).To(BeEmpty())
			}
		})
	})

	ginkgo.Context("with nothing to do", func() {
		ginkgo.It("records that no tasks were found", func() {
			r := w.run(cfg)

			Expect(r.ConsideredTasks).To(BeEmpty())
			Expect(messages(r)).To(Equal([]string{"No eligible tasks found"}))
			Expect(r.FinishedAt).NotTo(BeNil())
		})
	})
})
