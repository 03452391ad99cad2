package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/atomic/internal/config"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List agent definitions",
	Long: `List the agent definitions the coordinator can dispatch.

Definitions are markdown files in the configured agents directory
(pipeline.agents_dir). Malformed definitions are listed with their error.`,
	RunE: runAgents,
}

func runAgents(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	dir, err := resolveProjectDir(projectDir)
	if err != nil {
		return err
	}

	units, failures, err := newLoader(cfg, dir).Discover()
	if err != nil {
		return fmt.Errorf("discover agents in %s: %w", cfg.AgentsPath(dir), err)
	}

	out := cmd.OutOrStdout()
	if len(units) == 0 && len(failures) == 0 {
		fmt.Fprintf(out, "No agents found in %s\n", cfg.AgentsPath(dir))
		return nil
	}

	bold := color.New(color.Bold)
	for _, u := range units {
		bold.Fprintf(out, "%s", u.Name)
		fmt.Fprintf(out, "  [%s", u.ModelTier())
		if u.Provider != "" {
			fmt.Fprintf(out, ", %s", u.Provider)
		}
		fmt.Fprintln(out, "]")
		if u.Description != "" {
			fmt.Fprintf(out, "  %s\n", u.Description)
		}
		if len(u.Capabilities) > 0 {
			fmt.Fprintf(out, "  tools: %s\n", strings.Join(u.Capabilities, ", "))
		}
	}

	names := make([]string, 0, len(failures))
	for name := range failures {
		names = append(names, name)
	}
	sort.Strings(names)
	red := color.New(color.FgRed)
	for _, name := range names {
		red.Fprintf(out, "%s  invalid: %v\n", name, failures[name])
	}
	return nil
}
