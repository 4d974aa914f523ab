package local

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/molequeue-io/molequeue/internal/jobs"
	"github.com/molequeue-io/molequeue/internal/program"
)

// stageJob creates the job's local working directory (already assigned by
// the Server, per spec §4.10 step 3) and writes its input files into it,
// per spec §4.6 step 2. A directory that already exists and is non-empty
// fails the job, to avoid clobbering another job's files.
func (q *Queue) stageJob(id jobs.ID) error {
	data, ok := q.manager.Lookup(id)
	if !ok {
		return jobs.ErrNotFound
	}
	dir := data.LocalWorkingDirectory
	if dir == "" {
		return fmt.Errorf("local: job %d has no local working directory", id)
	}

	if err := ensureEmptyDir(dir); err != nil {
		return err
	}

	if data.InputFile.IsValid() {
		if err := data.InputFile.WriteFile(dir, ""); err != nil {
			return fmt.Errorf("local: stage input file: %w", err)
		}
	}
	for _, extra := range data.AdditionalInputFiles {
		if err := extra.WriteFile(dir, ""); err != nil {
			return fmt.Errorf("local: stage additional input file %s: %w", extra.Filename(), err)
		}
	}

	p, _ := q.lookupProgram(data.Program)
	if p.Syntax == program.Custom {
		if err := writeDriverScript(dir, q.launchTemplate(data, p)); err != nil {
			return fmt.Errorf("local: write driver script: %w", err)
		}
	}
	return nil
}

// ensureEmptyDir creates dir (and parents) if absent; if dir already
// exists it must be empty, per spec §4.6 step 2.
func ensureEmptyDir(dir string) error {
	entries, err := os.ReadDir(dir)
	switch {
	case os.IsNotExist(err):
		return os.MkdirAll(dir, 0o755)
	case err != nil:
		return fmt.Errorf("local: stat working directory %s: %w", dir, err)
	case len(entries) > 0:
		return fmt.Errorf("local: working directory %s already exists and is non-empty", dir)
	default:
		return nil
	}
}

const driverScriptName = "mq_driver.sh"

func writeDriverScript(dir, contents string) error {
	path := filepath.Join(dir, driverScriptName)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		return err
	}
	return os.Chmod(path, 0o755)
}
