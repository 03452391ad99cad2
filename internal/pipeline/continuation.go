package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ShayCichocki/atomic/internal/orchestrator"
)

// ContinuationAgent is the definition that resumes an interrupted run.
const ContinuationAgent = "continuation"

// ErrNoProgress is returned by Continue when the project has no progress file.
var ErrNoProgress = errors.New("no progress.txt found; nothing to continue")

// Continue resumes an interrupted pipeline by running the continuation agent
// once with the project directory as input. The agent reads progress.txt
// itself, so the file must exist.
func Continue(ctx context.Context, orch *orchestrator.Orchestrator, projectDir string) (orchestrator.Summary, error) {
	if _, err := os.Stat(filepath.Join(projectDir, orchestrator.ProgressFileName)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return orchestrator.Summary{}, ErrNoProgress
		}
		return orchestrator.Summary{}, fmt.Errorf("check progress file: %w", err)
	}
	return orch.RunOne(ctx, ContinuationAgent, projectDir), nil
}
