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

// Package report renders run reports for humans.
package report

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/NissesSenap/daemon-planner/pkg/planner"
)

// StepSummaryEnv names the file GitHub Actions renders as the job summary.
const StepSummaryEnv = "GITHUB_STEP_SUMMARY"

func link(ref planner.TaskRef) string {
	return fmt.Sprintf("[%s](%s)", ref, ref.URL())
}

// Markdown renders r.
func Markdown(r planner.Report) string {
	var b strings.Builder

	b.WriteString("## Daemon Planner\n\n")
	fmt.Fprintf(&b, "- Dry run: %s\n", strconv.FormatBool(r.DryRun))
	fmt.Fprintf(&b, "- Mode: %s\n", r.Mode)
	if r.ID != "" {
		fmt.Fprintf(&b, "- Run: `%s`\n", r.ID)
	}

	b.WriteString("\n### Considered tasks\n\n")
	if len(r.ConsideredTasks) == 0 {
		b.WriteString("- None\n")
	}
	for _, t := range r.ConsideredTasks {
		fmt.Fprintf(&b, "- %s\n", link(t))
	}

	b.WriteString("\n### Available candidates\n\n")
	b.WriteString("| Username | Currently assigned tasks |\n")
	b.WriteString("| --- | --- |\n")
	for _, c := range r.Candidates {
		if !c.Available {
			continue
		}
		assigned := "None"
		if len(c.AssignedInRun) > 0 {
			links := make([]string, 0, len(c.AssignedInRun))
			for _, t := range c.AssignedInRun {
				links = append(links, link(t))
			}
			assigned = strings.Join(links, ", ")
		}
		fmt.Fprintf(&b, "| @%s | %s |\n", c.Login, assigned)
	}

	if len(r.Plans) > 0 {
		b.WriteString("\n### Planned assignments\n\n")
		for _, p := range r.Plans {
			match := ""
			if p.Similarity != nil {
				match = planner.FormatMatchPercent(*p.Similarity)
			}
			fmt.Fprintf(&b, "- %s to @%s%s\n", link(p.Task), p.Login, match)
		}
	}

	b.WriteString("\n### Actions\n\n")
	if len(r.Actions) == 0 {
		b.WriteString("- None\n")
	}
	for _, a := range r.Actions {
		if a.Level == planner.LevelDebug {
			continue
		}
		fmt.Fprintf(&b, "- %s\n", a.Message)
	}

	return b.String()
}

// WriteStepSummary appends markdown to the file at path.
func WriteStepSummary(path, markdown string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open step summary: %w", err)
	}
	if _, err := f.WriteString(markdown + "\n"); err != nil {
		_ = f.Close()
		return fmt.Errorf("write step summary: %w", err)
	}
	return f.Close()
}
