package remotessh

import (
	"fmt"
	"os"

	"github.com/molequeue-io/molequeue/internal/jobs"
)

// stageInputFiles creates the job's local working directory and writes its
// input files into it, mirroring the local queue's staging step (spec
// §4.6 step 2, shared in spirit by §4.7's "write local launch script"
// stage, which assumes input files are already present alongside it).
func (q *Queue) stageInputFiles(data jobs.Data) error {
	dir := data.LocalWorkingDirectory
	if dir == "" {
		return fmt.Errorf("remotessh: job %d has no local working directory", data.MoleQueueID)
	}

	entries, err := os.ReadDir(dir)
	switch {
	case os.IsNotExist(err):
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("remotessh: create working directory %s: %w", dir, err)
		}
	case err != nil:
		return fmt.Errorf("remotessh: stat working directory %s: %w", dir, err)
	case len(entries) > 0:
		return fmt.Errorf("remotessh: working directory %s already exists and is non-empty", dir)
	}

	if data.InputFile.IsValid() {
		if err := data.InputFile.WriteFile(dir, ""); err != nil {
			return fmt.Errorf("remotessh: stage input file: %w", err)
		}
	}
	for _, extra := range data.AdditionalInputFiles {
		if err := extra.WriteFile(dir, ""); err != nil {
			return fmt.Errorf("remotessh: stage additional input file %s: %w", extra.Filename(), err)
		}
	}
	return nil
}
