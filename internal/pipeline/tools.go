package pipeline

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ShayCichocki/atomic/internal/api"
	"github.com/ShayCichocki/atomic/internal/orchestrator"
)

// ToolSpecs describes the operations offered to the coordinator.
func ToolSpecs() []api.ToolSpec {
	return []api.ToolSpec{
		{
			Name:        ToolRunOne,
			Description: "Run a single agent with input and wait for it. Returns a prefix of the agent output. REQUIRED: agent (e.g. 'git-setup'), input (the full input string for the agent).",
			Properties: map[string]interface{}{
				"agent": api.StringProp("Agent name, e.g. 'git-setup' or 'agents/git-setup.md'"),
				"input": api.StringProp("Full input string for the agent"),
			},
			Required: []string{"agent", "input"},
		},
		{
			Name:        ToolRunMany,
			Description: "Run the same agent in PARALLEL, once per input. Results come back in input order; one failure does not stop the others. REQUIRED: agent, inputs (list of input strings).",
			Properties: map[string]interface{}{
				"agent":  api.StringProp("Agent name, the same for every input"),
				"inputs": api.StringListProp("One input string per agent instance"),
			},
			Required: []string{"agent", "inputs"},
		},
		{
			Name:        ToolRunBackground,
			Description: "Run an agent in the BACKGROUND (non-blocking). Returns immediately with a handle. Its markers reach the state when it finishes. REQUIRED: agent, input.",
			Properties: map[string]interface{}{
				"agent": api.StringProp("Agent name"),
				"input": api.StringProp("Full input string for the agent"),
			},
			Required: []string{"agent", "input"},
		},
		{
			Name:        ToolGetState,
			Description: "Get current pipeline state (TESTS_FILE, PLAN_FILE, BRANCH, etc). Use this to get paths you need for other agents.",
		},
		{
			Name:        ToolReportProgress,
			Description: "Report a progress message to the operator. REQUIRED: message.",
			Properties: map[string]interface{}{
				"message": api.StringProp("Progress message"),
			},
			Required: []string{"message"},
		},
		{
			Name:        ToolUpdateProgress,
			Description: "Update pipeline progress tracking with phase information. REQUIRED: phase (e.g. 'phase-1'), status ('started'|'completed'|'failed'). OPTIONAL: details (object with extra info).",
			Properties: map[string]interface{}{
				"phase":   api.StringProp("Phase name"),
				"status":  api.StringProp("started, completed or failed"),
				"details": api.ObjectProp("Extra information about the phase"),
			},
			Required: []string{"phase", "status"},
		},
	}
}

// formatSummary renders one invocation result for the coordinator.
func formatSummary(s orchestrator.Summary) string {
	if s.Failed {
		return fmt.Sprintf("❌ Agent %s failed (%s): %s", displayName(s.Agent), s.Kind, s.Reason)
	}

	var b strings.Builder
	b.WriteString("✅ Agent completed successfully.\n\nOutput:\n")
	b.WriteString(s.Output)
	if s.Truncated {
		b.WriteString("\n[output truncated]")
	}
	if len(s.Markers) > 0 {
		b.WriteString("\n\nMarkers:\n")
		writeMapping(&b, s.Markers)
	}
	return b.String()
}

// formatBatch renders a run_many result, one line per input in input order.
func formatBatch(results []orchestrator.Summary) string {
	ok, bad := orchestrator.Outcomes(results)

	var b strings.Builder
	b.WriteString("✅ Parallel execution complete!\n\n")
	fmt.Fprintf(&b, "Total agents: %d\nSucceeded: %d\nFailed: %d\n\n", len(results), ok, bad)
	for i, s := range results {
		if s.Failed {
			fmt.Fprintf(&b, "[%d] ✗ %s: %s (%s)\n", i+1, clip(s.Input, 60), s.Reason, s.Kind)
			continue
		}
		line := firstLine(s.Output)
		if len(s.Markers) > 0 {
			keys := make([]string, 0, len(s.Markers))
			for k := range s.Markers {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			line += " [" + strings.Join(keys, ", ") + "]"
		}
		fmt.Fprintf(&b, "[%d] ✓ %s: %s\n", i+1, clip(s.Input, 60), line)
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatHandle renders a run_background result.
func formatHandle(h orchestrator.Handle) string {
	if !h.Dispatched() {
		return formatSummary(*h.Rejection)
	}
	return fmt.Sprintf("✅ Agent started in background!\n\nHandle: %s\nAgent: %s\nInput: %s\n\n"+
		"The agent is running asynchronously. You can continue with other work.",
		h.ID, h.Agent, clip(h.Input, 100))
}

// formatState renders a get_state result.
func formatState(snapshot map[string]string) string {
	if len(snapshot) == 0 {
		return "📋 State is empty (no agents have run yet)"
	}
	var b strings.Builder
	b.WriteString("📋 Current Pipeline State:\n\n")
	writeMapping(&b, snapshot)
	return strings.TrimRight(b.String(), "\n")
}

func writeMapping(b *strings.Builder, m map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(b, "• %s: %s\n", k, m[k])
	}
}

func displayName(agent string) string {
	if agent == "" {
		return "(unnamed)"
	}
	return agent
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return clip(s, 120)
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
