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
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/pflag"

	"github.com/NissesSenap/daemon-planner/pkg/adapters/matchmaking"
	"github.com/NissesSenap/daemon-planner/pkg/adapters/startstop"
	"github.com/NissesSenap/daemon-planner/pkg/planner"
)

// Commit modes.
const (
	CommitModeStartStop = "start-stop"
	CommitModeGitHub    = "github"
)

const (
	DefaultDailyCapacityHours      = 6
	DefaultPlanningHorizonDays     = 5
	DefaultReviewBufferHours       = 2
	DefaultEstimateHours           = 4
	DefaultAssignedTaskLimit       = 1
	DefaultRecommendationThreshold = 20
	DefaultHTTPTimeout             = 30 * time.Second
	DefaultListenAddr              = ":8080"

	stepSummaryEnvKey = "GITHUB_STEP_SUMMARY"
)

// GitHubConfig holds the GitHub credentials.
type GitHubConfig struct {
	AppID          int64  `toml:"app_id"`
	PrivateKeyPath string `toml:"private_key_path"`
	Token          string `toml:"token"`
	APIURL         string `toml:"api_url"`
}

// ServerConfig configures serve mode.
type ServerConfig struct {
	ListenAddr    string        `toml:"listen_addr"`
	WebhookSecret string        `toml:"webhook_secret"`
	SweepInterval time.Duration `toml:"sweep_interval"`
}

// Config defines runtime configuration for the planner.
type Config struct {
	Organizations           []string      `toml:"organizations"`
	CandidateLogins         []string      `toml:"candidate_logins"`
	DailyCapacityHours      float64       `toml:"daily_capacity_hours"`
	PlanningHorizonDays     float64       `toml:"planning_horizon_days"`
	ReviewBufferHours       float64       `toml:"review_buffer_hours"`
	DefaultEstimateHours    float64       `toml:"default_estimate_hours"`
	AssignedTaskLimit       int           `toml:"assigned_task_limit"`
	RecommendationThreshold float64       `toml:"recommendation_threshold"`
	DryRun                  bool          `toml:"dry_run"`
	CommitMode              string        `toml:"commit_mode"`
	StartStopEndpoint       string        `toml:"start_stop_endpoint"`
	MatchmakingEndpoint     string        `toml:"matchmaking_endpoint"`
	HTTPTimeout             time.Duration `toml:"http_timeout"`
	SummaryPath             string        `toml:"summary_path"`
	GitHub                  GitHubConfig  `toml:"github"`
	Server                  ServerConfig  `toml:"server"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		DailyCapacityHours:      DefaultDailyCapacityHours,
		PlanningHorizonDays:     DefaultPlanningHorizonDays,
		ReviewBufferHours:       DefaultReviewBufferHours,
		DefaultEstimateHours:    DefaultEstimateHours,
		AssignedTaskLimit:       DefaultAssignedTaskLimit,
		RecommendationThreshold: DefaultRecommendationThreshold,
		CommitMode:              CommitModeStartStop,
		StartStopEndpoint:       startstop.DefaultEndpoint,
		MatchmakingEndpoint:     matchmaking.DefaultEndpoint,
		HTTPTimeout:             DefaultHTTPTimeout,
		Server: ServerConfig{
			ListenAddr: DefaultListenAddr,
		},
	}
}

// RegisterFlags binds the command line flags to c. Flag defaults are the
// current values of c.
func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.StringSliceVar(&c.Organizations, "organizations", c.Organizations, "Organizations whose issues are planned")
	fs.StringSliceVar(&c.CandidateLogins, "candidate-logins", c.CandidateLogins, "Fixed candidate pool used instead of organization members")
	fs.Float64Var(&c.DailyCapacityHours, "daily-capacity-hours", c.DailyCapacityHours, "Working hours per day")
	fs.Float64Var(&c.PlanningHorizonDays, "planning-horizon-days", c.PlanningHorizonDays, "Days a worker's capacity covers")
	fs.Float64Var(&c.ReviewBufferHours, "review-buffer-hours", c.ReviewBufferHours, "Hours added to every task for review")
	fs.Float64Var(&c.DefaultEstimateHours, "default-estimate-hours", c.DefaultEstimateHours, "Estimate of assigned items without a time label")
	fs.IntVar(&c.AssignedTaskLimit, "assigned-task-limit", c.AssignedTaskLimit, "Assigned items at which a worker is no longer available")
	fs.Float64Var(&c.RecommendationThreshold, "recommendation-threshold", c.RecommendationThreshold, "Minimum similarity (0-100) for recommended candidates")
	fs.BoolVar(&c.DryRun, "dry-run", c.DryRun, "Plan without assigning")
	fs.StringVar(&c.CommitMode, "commit-mode", c.CommitMode, "How assignments are made: start-stop or github")
	fs.StringVar(&c.StartStopEndpoint, "start-stop-endpoint", c.StartStopEndpoint, "Start/stop service URL")
	fs.StringVar(&c.MatchmakingEndpoint, "matchmaking-endpoint", c.MatchmakingEndpoint, "Matchmaking service URL, empty disables recommendations")
	fs.DurationVar(&c.HTTPTimeout, "http-timeout", c.HTTPTimeout, "Timeout of calls to external services")
	fs.StringVar(&c.SummaryPath, "summary-path", c.SummaryPath, "File the markdown run summary is appended to")
	fs.Int64Var(&c.GitHub.AppID, "github.app-id", c.GitHub.AppID, "GitHub App ID")
	fs.StringVar(&c.GitHub.PrivateKeyPath, "github.private-key", c.GitHub.PrivateKeyPath, "Path to GitHub App private key")
	fs.StringVar(&c.GitHub.Token, "github.token", c.GitHub.Token, "GitHub token used when no App is configured")
	fs.StringVar(&c.GitHub.APIURL, "github.api-url", c.GitHub.APIURL, "GitHub Enterprise API URL")
	fs.StringVar(&c.Server.ListenAddr, "server.listen-addr", c.Server.ListenAddr, "Serve mode listen address")
	fs.StringVar(&c.Server.WebhookSecret, "server.webhook-secret", c.Server.WebhookSecret, "GitHub webhook secret")
	fs.DurationVar(&c.Server.SweepInterval, "server.sweep-interval", c.Server.SweepInterval, "Interval of periodic sweeps in serve mode, 0 disables")
}

type setting struct {
	flag    string
	env     string
	fromEnv func(c *Config, raw string) error
	copy    func(dst, src *Config)
}

func field[T any](flag, env string, ptr func(*Config) *T, parse func(string) (T, error)) setting {
	return setting{
		flag: flag,
		env:  env,
		fromEnv: func(c *Config, raw string) error {
			v, err := parse(strings.TrimSpace(raw))
			if err != nil {
				return fmt.Errorf("invalid %s: %w", env, err)
			}
			*ptr(c) = v
			return nil
		},
		copy: func(dst, src *Config) { *ptr(dst) = *ptr(src) },
	}
}

func parseList(raw string) ([]string, error) {
	if raw == "" {
		return nil, nil
	}
	return strings.Split(raw, ","), nil
}

func parseString(raw string) (string, error) { return raw, nil }

func parseFloat(raw string) (float64, error) { return strconv.ParseFloat(raw, 64) }

func parseInt64(raw string) (int64, error) { return strconv.ParseInt(raw, 10, 64) }

var settings = []setting{
	field("organizations", "PLANNER_ORGANIZATIONS", func(c *Config) *[]string { return &c.Organizations }, parseList),
	field("candidate-logins", "PLANNER_CANDIDATE_LOGINS", func(c *Config) *[]string { return &c.CandidateLogins }, parseList),
	field("daily-capacity-hours", "PLANNER_DAILY_CAPACITY_HOURS", func(c *Config) *float64 { return &c.DailyCapacityHours }, parseFloat),
	field("planning-horizon-days", "PLANNER_PLANNING_HORIZON_DAYS", func(c *Config) *float64 { return &c.PlanningHorizonDays }, parseFloat),
	field("review-buffer-hours", "PLANNER_REVIEW_BUFFER_HOURS", func(c *Config) *float64 { return &c.ReviewBufferHours }, parseFloat),
	field("default-estimate-hours", "PLANNER_DEFAULT_ESTIMATE_HOURS", func(c *Config) *float64 { return &c.DefaultEstimateHours }, parseFloat),
	field("assigned-task-limit", "PLANNER_ASSIGNED_TASK_LIMIT", func(c *Config) *int { return &c.AssignedTaskLimit }, strconv.Atoi),
	field("recommendation-threshold", "PLANNER_RECOMMENDATION_THRESHOLD", func(c *Config) *float64 { return &c.RecommendationThreshold }, parseFloat),
	field("dry-run", "PLANNER_DRY_RUN", func(c *Config) *bool { return &c.DryRun }, strconv.ParseBool),
	field("commit-mode", "PLANNER_COMMIT_MODE", func(c *Config) *string { return &c.CommitMode }, parseString),
	field("start-stop-endpoint", "PLANNER_START_STOP_ENDPOINT", func(c *Config) *string { return &c.StartStopEndpoint }, parseString),
	field("matchmaking-endpoint", "PLANNER_MATCHMAKING_ENDPOINT", func(c *Config) *string { return &c.MatchmakingEndpoint }, parseString),
	field("http-timeout", "PLANNER_HTTP_TIMEOUT", func(c *Config) *time.Duration { return &c.HTTPTimeout }, time.ParseDuration),
	field("summary-path", "PLANNER_SUMMARY_PATH", func(c *Config) *string { return &c.SummaryPath }, parseString),
	field("github.app-id", "PLANNER_GITHUB_APP_ID", func(c *Config) *int64 { return &c.GitHub.AppID }, parseInt64),
	field("github.private-key", "PLANNER_GITHUB_PRIVATE_KEY_PATH", func(c *Config) *string { return &c.GitHub.PrivateKeyPath }, parseString),
	field("github.token", "PLANNER_GITHUB_TOKEN", func(c *Config) *string { return &c.GitHub.Token }, parseString),
	field("github.api-url", "PLANNER_GITHUB_API_URL", func(c *Config) *string { return &c.GitHub.APIURL }, parseString),
	field("server.listen-addr", "PLANNER_LISTEN_ADDR", func(c *Config) *string { return &c.Server.ListenAddr }, parseString),
	field("server.webhook-secret", "PLANNER_WEBHOOK_SECRET", func(c *Config) *string { return &c.Server.WebhookSecret }, parseString),
	field("server.sweep-interval", "PLANNER_SWEEP_INTERVAL", func(c *Config) *time.Duration { return &c.Server.SweepInterval }, time.ParseDuration),
}

// LoadFile overlays the TOML file at path onto c. An empty path is a no-op.
func (c *Config) LoadFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := toml.DecodeFile(path, c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays PLANNER_* variables found through lookup onto c.
// GITHUB_STEP_SUMMARY sets SummaryPath when nothing else did.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for _, s := range settings {
		raw, ok := lookup(s.env)
		if !ok {
			continue
		}
		if err := s.fromEnv(c, raw); err != nil {
			return err
		}
	}
	if c.SummaryPath == "" {
		if path, ok := lookup(stepSummaryEnvKey); ok {
			c.SummaryPath = strings.TrimSpace(path)
		}
	}
	return nil
}

// ApplyFlags copies the values of every flag set on the command line from
// flagged, the Config the flags were registered on, into c.
func (c *Config) ApplyFlags(fs *pflag.FlagSet, flagged *Config) {
	byFlag := make(map[string]setting, len(settings))
	for _, s := range settings {
		byFlag[s.flag] = s
	}
	fs.Visit(func(f *pflag.Flag) {
		if s, ok := byFlag[f.Name]; ok {
			s.copy(c, flagged)
		}
	})
}

// LoadConfig builds the effective configuration: defaults, then the file at path,
// then the environment, then flags set on fs.
func LoadConfig(path string, fs *pflag.FlagSet, flagged *Config) (Config, error) {
	cfg := Default()
	if err := cfg.LoadFile(path); err != nil {
		return Config{}, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if fs != nil && flagged != nil {
		cfg.ApplyFlags(fs, flagged)
	}
	cfg.Organizations = planner.NormalizeNames(cfg.Organizations)
	cfg.CandidateLogins = planner.NormalizeNames(cfg.CandidateLogins)
	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error
	if len(planner.NormalizeNames(c.Organizations)) == 0 {
		errs = append(errs, errors.New("at least one organization is required"))
	}
	if c.DailyCapacityHours <= 0 {
		errs = append(errs, errors.New("daily_capacity_hours must be positive"))
	}
	if c.PlanningHorizonDays <= 0 {
		errs = append(errs, errors.New("planning_horizon_days must be positive"))
	}
	if c.ReviewBufferHours < 0 {
		errs = append(errs, errors.New("review_buffer_hours must not be negative"))
	}
	if c.DefaultEstimateHours < 0 {
		errs = append(errs, errors.New("default_estimate_hours must not be negative"))
	}
	if c.AssignedTaskLimit < 1 {
		errs = append(errs, errors.New("assigned_task_limit must be at least 1"))
	}
	if c.RecommendationThreshold < 0 || c.RecommendationThreshold > 100 {
		errs = append(errs, errors.New("recommendation_threshold must be between 0 and 100"))
	}
	switch c.CommitMode {
	case CommitModeStartStop, CommitModeGitHub:
	default:
		errs = append(errs, fmt.Errorf("invalid commit_mode %q: must be one of %s, %s", c.CommitMode, CommitModeStartStop, CommitModeGitHub))
	}
	if (c.GitHub.AppID != 0) != (c.GitHub.PrivateKeyPath != "") {
		errs = append(errs, errors.New("github.app_id and github.private_key_path must be set together"))
	}
	if c.GitHub.AppID == 0 && c.GitHub.Token == "" {
		errs = append(errs, errors.New("either a GitHub App or github.token is required"))
	}
	if c.HTTPTimeout < 0 || c.Server.SweepInterval < 0 {
		errs = append(errs, errors.New("durations must not be negative"))
	}
	return errors.Join(errs...)
}

// ValidateServe checks the settings serve mode needs on top of Validate.
// Unsigned webhooks are only accepted while nothing is committed.
func (c *Config) ValidateServe() error {
	if c.Server.WebhookSecret == "" && !c.DryRun {
		return errors.New("server.webhook_secret is required unless dry_run is set")
	}
	return nil
}

// PlannerConfig returns the scheduling parameters for a run.
func (c *Config) PlannerConfig(dryRun bool) planner.Config {
	return planner.Config{
		Organizations:           c.Organizations,
		CandidateLogins:         c.CandidateLogins,
		DailyCapacityHours:      c.DailyCapacityHours,
		PlanningHorizonDays:     c.PlanningHorizonDays,
		ReviewBufferHours:       c.ReviewBufferHours,
		DefaultEstimateHours:    c.DefaultEstimateHours,
		AssignedTaskLimit:       c.AssignedTaskLimit,
		RecommendationThreshold: c.RecommendationThreshold,
		DryRun:                  dryRun,
	}
}
