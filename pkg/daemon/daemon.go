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

package daemon

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"

	"github.com/NissesSenap/daemon-planner/internal/memo"
	"github.com/NissesSenap/daemon-planner/internal/restclient"
	"github.com/NissesSenap/daemon-planner/pkg/adapters/github"
	"github.com/NissesSenap/daemon-planner/pkg/adapters/matchmaking"
	"github.com/NissesSenap/daemon-planner/pkg/adapters/startstop"
	"github.com/NissesSenap/daemon-planner/pkg/planner"
	"github.com/NissesSenap/daemon-planner/pkg/report"
)

const (
	queueSize  = 32
	maxHistory = 50
)

// ErrBusy is returned when the run queue is full.
var ErrBusy = errors.New("run queue is full")

// Backend is the per-run view of GitHub the planner needs.
type Backend interface {
	planner.TaskRepository
	planner.MemberLister
	planner.Committer
	startstop.Credentials
	GetIssue(ctx context.Context, repo planner.RepositoryRef, number int) (planner.Issue, error)
}

// BackendFactory opens a Backend for one run. Caches inside the Backend
// live as long as the run.
type BackendFactory func(observer memo.Observer) Backend

// Metrics is everything the daemon reports to.
type Metrics interface {
	planner.Metrics
	restclient.Observer
}

type nopMetrics struct{ planner.NopMetrics }

func (nopMetrics) ObserveRequest(string, string, time.Duration, error) {}

// RunListener is notified about run lifecycles. RunStarted is called before
// the first action of the run is recorded.
type RunListener interface {
	RunStarted(summary *planner.RunSummary)
	RunFinished(report planner.Report)
}

// Options configures a Daemon.
type Options struct {
	Config Config
	// Backend overrides the GitHub backend built from Config.
	Backend BackendFactory
	// Recommender overrides the matchmaking client built from Config.
	Recommender planner.Recommender
	Metrics     Metrics
	Listener    RunListener
	Log         logr.Logger
}

type job struct {
	summary *planner.RunSummary
	dryRun  bool
	run     func(ctx context.Context, p *planner.Planner) error
}

// Daemon executes planner runs one at a time. It is used directly by the
// one-shot commands and as a Module in serve mode, where runs are queued
// from the webhook, the API and the sweep ticker.
type Daemon struct {
	cfg         Config
	backend     BackendFactory
	status      *startstop.Client
	recommender planner.Recommender
	metrics     Metrics
	listener    RunListener
	log         logr.Logger

	// mu serializes runs so two live runs never book the same worker.
	mu      sync.Mutex
	jobs    chan job
	history *history
}

// New creates a Daemon.
func New(opts Options) (*Daemon, error) {
	cfg := opts.Config
	m := opts.Metrics
	if m == nil {
		m = nopMetrics{}
	}

	backend := opts.Backend
	if backend == nil {
		client, err := github.NewClient(github.Options{
			AppID:          cfg.GitHub.AppID,
			PrivateKeyPath: cfg.GitHub.PrivateKeyPath,
			Token:          cfg.GitHub.Token,
			BaseURL:        cfg.GitHub.APIURL,
			Timeout:        cfg.HTTPTimeout,
			Observer:       m,
		})
		if err != nil {
			return nil, fmt.Errorf("creating github client: %w", err)
		}
		backend = func(observer memo.Observer) Backend {
			return client.NewSession(observer)
		}
	}

	d := &Daemon{
		cfg:         cfg,
		backend:     backend,
		status:      startstop.NewClient(cfg.StartStopEndpoint, cfg.HTTPTimeout, m),
		recommender: opts.Recommender,
		metrics:     m,
		listener:    opts.Listener,
		log:         opts.Log,
		jobs:        make(chan job, queueSize),
		history:     newHistory(maxHistory),
	}
	if d.recommender == nil && cfg.MatchmakingEndpoint != "" {
		d.recommender = matchmaking.NewClient(cfg.MatchmakingEndpoint, cfg.HTTPTimeout, m)
	}
	return d, nil
}

// Name implements Module.
func (d *Daemon) Name() string {
	return "planner"
}

// Run processes queued runs and, when configured, sweeps periodically. It
// returns when ctx is cancelled.
func (d *Daemon) Run(ctx context.Context) error {
	var tick <-chan time.Time
	if interval := d.cfg.Server.SweepInterval; interval > 0 {
		t := time.NewTicker(interval)
		defer t.Stop()
		tick = t.C
		d.log.Info("periodic sweep enabled", "interval", interval)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case j := <-d.jobs:
			d.execute(ctx, j)
		case <-tick:
			d.execute(ctx, d.sweepJob(d.cfg.DryRun))
		}
	}
}

// Sweep runs a full sweep and waits for it.
func (d *Daemon) Sweep(ctx context.Context, dryRun bool) (planner.Report, error) {
	return d.execute(ctx, d.sweepJob(dryRun))
}

// PlanIssue plans an issue whose state the caller already holds and waits
// for it.
func (d *Daemon) PlanIssue(ctx context.Context, repo planner.RepositoryRef, issue planner.Issue) (planner.Report, error) {
	return d.execute(ctx, d.issueJob(func(ctx context.Context, p *planner.Planner) error {
		return p.PlanIssue(ctx, repo, issue)
	}))
}

// PlanIssueURL reads the issue behind issueURL from GitHub and plans it.
func (d *Daemon) PlanIssueURL(ctx context.Context, issueURL string) (planner.Report, error) {
	repo, number, err := planner.ParseIssueURL(issueURL)
	if err != nil {
		return planner.Report{}, err
	}
	return d.execute(ctx, d.refreshJob(repo, number))
}

// StartSweep queues a sweep and returns its run id without waiting.
func (d *Daemon) StartSweep(dryRun bool) (string, error) {
	j := d.sweepJob(dryRun)
	if !d.enqueue(j) {
		return "", ErrBusy
	}
	return j.summary.ID(), nil
}

// Submit implements github.IssueSink. Only the issue number of the event is
// used; labels and assignees are read from GitHub when the run starts.
func (d *Daemon) Submit(repo planner.RepositoryRef, issue planner.Issue) bool {
	return d.enqueue(d.refreshJob(repo, issue.Number))
}

// Report returns the report of a recent run.
func (d *Daemon) Report(id string) (planner.Report, bool) {
	s, ok := d.history.get(id)
	if !ok {
		return planner.Report{}, false
	}
	return s.Report(), true
}

// Known reports whether id is a recent run.
func (d *Daemon) Known(id string) bool {
	_, ok := d.history.get(id)
	return ok
}

func (d *Daemon) enqueue(j job) bool {
	select {
	case d.jobs <- j:
		d.history.add(j.summary)
		return true
	default:
		d.log.Info("run queue full, dropping run", "run", j.summary.ID())
		return false
	}
}

func (d *Daemon) sweepJob(dryRun bool) job {
	return job{
		summary: planner.NewRunSummary(uuid.NewString(), planner.ModeSweep, dryRun),
		dryRun:  dryRun,
		run: func(ctx context.Context, p *planner.Planner) error {
			return p.Run(ctx)
		},
	}
}

func (d *Daemon) refreshJob(repo planner.RepositoryRef, number int) job {
	return d.issueJob(func(ctx context.Context, p *planner.Planner) error {
		return p.PlanIssueNumber(ctx, repo, number)
	})
}

func (d *Daemon) issueJob(run func(ctx context.Context, p *planner.Planner) error) job {
	return job{
		summary: planner.NewRunSummary(uuid.NewString(), planner.ModeIssue, d.cfg.DryRun),
		dryRun:  d.cfg.DryRun,
		run:     run,
	}
}

func (d *Daemon) execute(ctx context.Context, j job) (planner.Report, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.history.add(j.summary)
	if d.listener != nil {
		d.listener.RunStarted(j.summary)
	}

	log := d.log.WithValues("run", j.summary.ID())
	log.Info("run started", "dryRun", j.dryRun)
	p := planner.New(d.cfg.PlannerConfig(j.dryRun), d.dependencies(), j.summary)
	err := j.run(ctx, p)

	r := j.summary.Report()
	if d.listener != nil {
		d.listener.RunFinished(r)
	}
	if err == nil {
		log.Info("run finished", "actions", len(r.Actions))
	}

	if d.cfg.SummaryPath != "" {
		if werr := report.WriteStepSummary(d.cfg.SummaryPath, report.Markdown(r)); werr != nil {
			log.Error(werr, "failed to write step summary", "path", d.cfg.SummaryPath)
		}
	}
	return r, err
}

func (d *Daemon) dependencies() planner.Dependencies {
	backend := d.backend(d.metrics)
	svc := startstop.NewService(d.status, backend)
	deps := planner.Dependencies{
		Tasks:       backend,
		Issues:      backend,
		Members:     backend,
		Status:      svc,
		Recommender: d.recommender,
		Committer:   svc,
		Metrics:     d.metrics,
		Log:         d.log,
	}
	if d.cfg.CommitMode == CommitModeGitHub {
		deps.Committer = backend
	}
	return deps
}

// history keeps the most recent run summaries.
type history struct {
	mu    sync.Mutex
	limit int
	runs  map[string]*planner.RunSummary
	order []string
}

func newHistory(limit int) *history {
	return &history{limit: limit, runs: make(map[string]*planner.RunSummary)}
}

func (h *history) add(s *planner.RunSummary) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.runs[s.ID()]; ok {
		return
	}
	h.runs[s.ID()] = s
	h.order = append(h.order, s.ID())
	for len(h.order) > h.limit {
		delete(h.runs, h.order[0])
		h.order = h.order[1:]
	}
}

func (h *history) get(id string) (*planner.RunSummary, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s, ok := h.runs[id]
	return s, ok
}
