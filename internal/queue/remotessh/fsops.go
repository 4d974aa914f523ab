package remotessh

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// removeAll deletes dir and everything under it, tolerating an
// already-missing directory.
func removeAll(dir string) error {
	if dir == "" {
		return nil
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("remotessh: remove %s: %w", dir, err)
	}
	return nil
}

// copyDirectoryContents mirrors every regular file in src into dst,
// creating dst if needed, for the "mirror outputs to a custom destination"
// step of finalization (spec §3 outputDirectory, §4.7
// finalizeJobCopyToCustomDestination).
func copyDirectoryContents(src, dst string) error {
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("remotessh: create output directory %s: %w", dst, err)
	}
	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("remotessh: read %s: %w", src, err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := copyFile(filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("remotessh: open %s: %w", src, err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("remotessh: create %s: %w", dst, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("remotessh: copy %s -> %s: %w", src, dst, err)
	}
	return nil
}
