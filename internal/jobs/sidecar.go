package jobs

import (
	"fmt"
	"os"
	"path/filepath"
)

// sidecarName is the per-job metadata file spec §4.3/§6 requires inside
// each job's local working directory.
const sidecarName = "mqjobinfo.json"

// writeSidecar persists d's full hash into <LocalWorkingDirectory>/
// mqjobinfo.json, if the working directory exists. Per spec §3/§7, a
// sidecar write failure is logged by the caller but never blocks state
// progress in memory — writeSidecar itself is silent on a missing
// directory (the job may not have reached the filesystem-staging step
// yet) and only returns an error for a directory that exists but the
// write failed against.
//
// Writes are atomic: data is written to a temporary file in the same
// directory and renamed into place, so a crash mid-write never leaves a
// torn sidecar behind (mirrors the teacher's saveState pattern for agent
// state persistence).
func writeSidecar(d Data) error {
	dir := d.LocalWorkingDirectory
	if dir == "" {
		return nil
	}
	if _, err := os.Stat(dir); err != nil {
		return nil
	}

	hash, err := d.ToHash()
	if err != nil {
		return fmt.Errorf("jobs: render sidecar: %w", err)
	}

	dest := filepath.Join(dir, sidecarName)
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, hash, 0o644); err != nil {
		return fmt.Errorf("jobs: write sidecar temp file: %w", err)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return fmt.Errorf("jobs: rename sidecar into place: %w", err)
	}
	return nil
}

// ReadSidecar loads a job hash previously written by writeSidecar, for
// JobManager.ReadSettings-style restoration of jobs whose working
// directories survived a restart.
func ReadSidecar(dir string) (Data, error) {
	raw, err := os.ReadFile(filepath.Join(dir, sidecarName))
	if err != nil {
		return Data{}, fmt.Errorf("jobs: read sidecar: %w", err)
	}
	return FromHash(raw)
}
