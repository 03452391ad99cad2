package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ShayCichocki/atomic/internal/config"
	"github.com/ShayCichocki/atomic/internal/state"
)

var (
	stateRunID  string
	stateOutput string
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show persisted pipeline State",
	Long: `Display the State recorded for a run.

Without --run, shows the most recent run. Output formats: table, json, yaml.`,
	RunE: runState,
}

func init() {
	stateCmd.Flags().StringVar(&stateRunID, "run", "", "Run ID (default: most recent run)")
	stateCmd.Flags().StringVarP(&stateOutput, "output", "o", "table", "Output format: table, json or yaml")
}

// stateReport is the exported view of one run.
type stateReport struct {
	Run     *state.Run        `json:"run" yaml:"run"`
	State   map[string]string `json:"state" yaml:"state"`
	Entries []state.Entry     `json:"entries,omitempty" yaml:"entries,omitempty"`
	Phases  []state.Phase     `json:"phases,omitempty" yaml:"phases,omitempty"`
}

func runState(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	dir, err := resolveProjectDir(projectDir)
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfg.StatePath(dir)); errors.Is(err, os.ErrNotExist) {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded. Run 'atomic run <task>' to start.")
		return nil
	}

	db, err := openStore(cfg, dir)
	if err != nil {
		return err
	}
	defer db.Close()

	report, err := loadReport(db, stateRunID)
	if err != nil {
		return err
	}
	if report == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded. Run 'atomic run <task>' to start.")
		return nil
	}
	return writeReport(cmd.OutOrStdout(), report, stateOutput)
}

// loadReport reads runID, or the latest run when runID is empty. It returns
// nil if there are no runs.
func loadReport(db *state.DB, runID string) (*stateReport, error) {
	var run *state.Run
	var err error
	if runID == "" {
		run, err = db.LatestRun()
	} else {
		run, err = db.GetRun(runID)
	}
	if err != nil || run == nil {
		return nil, err
	}

	entries, err := db.Entries(run.ID)
	if err != nil {
		return nil, err
	}
	phases, err := db.Phases(run.ID)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string, len(entries))
	for _, e := range entries {
		values[e.Key] = e.Value
	}
	return &stateReport{Run: run, State: values, Entries: entries, Phases: phases}, nil
}

func writeReport(w io.Writer, r *stateReport, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return err
		}
		return enc.Close()
	case "table", "":
		return writeTable(w, r)
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

func writeTable(w io.Writer, r *stateReport) error {
	fmt.Fprintf(w, "Run:    %s\n", r.Run.ID)
	fmt.Fprintf(w, "Task:   %s\n", r.Run.Task)
	fmt.Fprintf(w, "Status: %s", r.Run.Status)
	if r.Run.Reason != "" {
		fmt.Fprintf(w, " (%s)", r.Run.Reason)
	}
	fmt.Fprintf(w, "\nTurns:  %d\n\n", r.Run.Turns)

	if len(r.State) == 0 {
		fmt.Fprintln(w, "State is empty")
	} else {
		keys := make([]string, 0, len(r.State))
		for k := range r.State {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tVALUE")
		for _, k := range keys {
			fmt.Fprintf(tw, "%s\t%s\n", k, r.State[k])
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if len(r.Phases) > 0 {
		fmt.Fprintln(w, "\nPhases:")
		for _, p := range r.Phases {
			fmt.Fprintf(w, "  - %s: %s (%s)\n", p.Phase, p.Status, p.CreatedAt.Format("2006-01-02 15:04:05"))
		}
	}
	return nil
}
