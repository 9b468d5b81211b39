package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BA-SupportII/BA-AI/internal/defaults"
)

// runInit initializes a BA-AI working directory. It creates the data
// directory and writes the bundled example config. Existing files are
// never overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing BA-AI workspace in %s\n", dir)

	for _, sub := range []string{"data", filepath.Join("data", "outputs")} {
		path := filepath.Join(dir, sub)
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
	}

	// The config may carry a search API key; keep it owner-only.
	if err := writeIfMissing(w, filepath.Join(dir, "config.yaml"), defaults.ConfigYAML, 0o600); err != nil {
		return err
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit config.yaml to point at your Ollama instance, then run: ba-ai serve")
	return nil
}

// writeIfMissing writes content to path only if the file does not
// already exist, so init never overwrites user customizations. The
// outcome is reported on w.
func writeIfMissing(w io.Writer, path string, content []byte, mode os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, mode)
	if errors.Is(err, fs.ErrExist) {
		fmt.Fprintf(w, "  %s exists, skipping\n", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Fprintf(w, "  ✓ %s\n", path)
	return nil
}
