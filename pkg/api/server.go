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
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NissesSenap/daemon-planner/pkg/adapters/github"
)

const defaultWebhookRateLimit = 120

// Options configures the API server.
type Options struct {
	ListenAddr    string
	WebhookSecret string
	// DryRun is the default for runs triggered without an explicit dryRun.
	DryRun   bool
	Runs     Runs
	EventHub *EventHub
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// WebhookRateLimit is the number of webhook deliveries accepted per
	// client IP and minute.
	WebhookRateLimit int
	Log              logr.Logger
}

// Server is the serve-mode HTTP server.
type Server struct {
	opts    Options
	handler http.Handler
	ready   atomic.Bool
	log     logr.Logger
}

// contentTypeMiddleware validates Content-Type header on mutating requests
// that carry a body.
func contentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if (r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch) && r.ContentLength != 0 {
			ct := r.Header.Get("Content-Type")
			if ct == "" || !strings.HasPrefix(ct, "application/json") {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnsupportedMediaType)
				_, _ = w.Write([]byte(`{"error":"Content-Type must be application/json"}`))
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// NewServer builds the router.
func NewServer(opts Options) *Server {
	if opts.EventHub == nil {
		opts.EventHub = NewEventHub()
	}
	if opts.WebhookRateLimit <= 0 {
		opts.WebhookRateLimit = defaultWebhookRateLimit
	}
	s := &Server{opts: opts, log: opts.Log}

	handler := &runHandler{
		runs:          opts.Runs,
		eventHub:      opts.EventHub,
		defaultDryRun: opts.DryRun,
		log:           opts.Log.WithName("runs"),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if !s.ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if opts.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	webhook := github.NewWebhookHandler(opts.WebhookSecret, opts.Runs, opts.Log.WithName("webhook"))
	r.With(httprate.LimitByIP(opts.WebhookRateLimit, time.Minute)).Post("/webhook", webhook.ServeHTTP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(contentTypeMiddleware)
		r.Post("/runs", handler.createRun)
		r.Get("/runs/{runID}", handler.getRun)
		r.Get("/runs/{runID}/events", handler.streamEvents)
	})

	s.handler = r
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Name implements daemon.Module.
func (s *Server) Name() string {
	return "api"
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.opts.ListenAddr, err)
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	// No WriteTimeout: event streams last as long as a run.
	srv := &http.Server{
		Handler:     s.handler,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting API server", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.ready.Store(true)

	select {
	case <-ctx.Done():
		s.ready.Store(false)
		s.log.Info("shutting down API server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}
