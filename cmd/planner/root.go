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

package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/NissesSenap/daemon-planner/internal/metrics"
	"github.com/NissesSenap/daemon-planner/pkg/api"
	"github.com/NissesSenap/daemon-planner/pkg/daemon"
	"github.com/NissesSenap/daemon-planner/pkg/planner"
	"github.com/NissesSenap/daemon-planner/pkg/report"
)

const configEnvKey = "PLANNER_CONFIG"

// cli carries state shared by all commands.
type cli struct {
	configPath string
	// flagged is the Config the command line flags are bound to.
	flagged daemon.Config
	zapOpts zap.Options

	cfg daemon.Config
	log logr.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{flagged: daemon.Default()}

	cmd := &cobra.Command{
		Use:           "daemon-planner",
		Short:         "Assigns prioritized GitHub issues to available contributors",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.init(cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "Path to TOML config file (env "+configEnvKey+")")
	c.flagged.RegisterFlags(flags)

	goFlags := flag.NewFlagSet("zap", flag.ContinueOnError)
	c.zapOpts.BindFlags(goFlags)
	flags.AddGoFlagSet(goFlags)

	cmd.AddCommand(
		newSweepCmd(c),
		newPlanIssueCmd(c),
		newServeCmd(c),
	)
	return cmd
}

func (c *cli) init(cmd *cobra.Command) error {
	logf.SetLogger(zap.New(zap.UseFlagOptions(&c.zapOpts)))
	c.log = logf.Log.WithName("daemon-planner")

	path := c.configPath
	if path == "" {
		path = os.Getenv(configEnvKey)
	}
	cfg, err := daemon.LoadConfig(path, cmd.Flags(), &c.flagged)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	c.cfg = cfg
	return nil
}

func (c *cli) newDaemon(opts daemon.Options) (*daemon.Daemon, error) {
	opts.Config = c.cfg
	opts.Log = c.log
	return daemon.New(opts)
}

func printReport(w io.Writer, r planner.Report) error {
	_, err := fmt.Fprintln(w, report.Markdown(r))
	return err
}

func newSweepCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Plan every eligible issue of the configured organizations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			d, err := c.newDaemon(daemon.Options{})
			if err != nil {
				return err
			}
			r, err := d.Sweep(cmd.Context(), c.cfg.DryRun)
			if perr := printReport(cmd.OutOrStdout(), r); perr != nil && err == nil {
				err = perr
			}
			return err
		},
	}
}

func newPlanIssueCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "plan-issue <issue-url>",
		Short: "Plan a single issue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := c.newDaemon(daemon.Options{})
			if err != nil {
				return err
			}
			r, err := d.PlanIssueURL(cmd.Context(), args[0])
			if err != nil && r.ID == "" {
				return err
			}
			if perr := printReport(cmd.OutOrStdout(), r); perr != nil && err == nil {
				err = perr
			}
			return err
		},
	}
}

func newServeCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve webhooks and the run API, sweeping periodically",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.cfg.ValidateServe(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			hub := api.NewEventHub()

			d, err := c.newDaemon(daemon.Options{
				Metrics:  metrics.NewPrometheus(reg, ""),
				Listener: hub,
			})
			if err != nil {
				return err
			}

			srv := api.NewServer(api.Options{
				ListenAddr:    c.cfg.Server.ListenAddr,
				WebhookSecret: c.cfg.Server.WebhookSecret,
				DryRun:        c.cfg.DryRun,
				Runs:          d,
				EventHub:      hub,
				Gatherer:      reg,
				Log:           c.log.WithName("api"),
			})
			return daemon.RunModules(cmd.Context(), c.log, d, srv)
		},
	}
}
