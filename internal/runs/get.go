package runs

import (
	"context"
	"fmt"
	"io"

	"github.com/dyluth/flexprep/pkg/runlog"
	"github.com/google/uuid"
)

// ShowRun retrieves a single run by ID and writes it as pretty-printed JSON
// to the writer, followed by the step transcript when withSteps is set.
// Returns an error if the run ID is invalid or the run does not exist.
// Uses IsNotFound() to distinguish "not found" errors from other errors.
func ShowRun(ctx context.Context, jClient *runlog.Client, runID string, withSteps bool, w io.Writer) error {
	// Validate run ID format
	if _, err := uuid.Parse(runID); err != nil {
		return fmt.Errorf("invalid run ID format: must be a valid UUID")
	}

	record, err := jClient.GetRun(ctx, runID)
	if err != nil {
		if runlog.IsNotFound(err) {
			return &RunNotFoundError{RunID: runID}
		}
		return fmt.Errorf("failed to fetch run: %w", err)
	}

	if err := FormatSingleJSON(w, record); err != nil {
		return fmt.Errorf("failed to format run: %w", err)
	}

	if withSteps {
		steps, err := jClient.GetSteps(ctx, runID)
		if err != nil {
			return fmt.Errorf("failed to fetch steps: %w", err)
		}
		fmt.Fprintln(w)
		FormatSteps(w, steps)
	}

	return nil
}

// RunNotFoundError represents a specific "run not found" error.
// This allows callers to distinguish not-found errors from other failures.
type RunNotFoundError struct {
	RunID string
}

func (e *RunNotFoundError) Error() string {
	return fmt.Sprintf("run with ID '%s' not found", e.RunID)
}

// IsNotFound returns true if the error is a RunNotFoundError.
func IsNotFound(err error) bool {
	_, ok := err.(*RunNotFoundError)
	return ok
}
