// Package testutil provides shared test helpers for shelfscout packages.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestEnv is a sandboxed directory that is removed when the test ends.
// Every path it hands out is checked to stay inside the sandbox.
type TestEnv struct {
	t       *testing.T
	rootDir string
}

func NewTestEnv(t *testing.T) *TestEnv {
	t.Helper()
	return &TestEnv{t: t, rootDir: t.TempDir()}
}

func (e *TestEnv) RootDir() string { return e.rootDir }

// Path joins elem below the sandbox root and fails the test if the result
// escapes it.
func (e *TestEnv) Path(elem ...string) string {
	e.t.Helper()

	clean := filepath.Clean(filepath.Join(e.rootDir, filepath.Join(elem...)))
	root := filepath.Clean(e.rootDir)
	if clean != root && !strings.HasPrefix(clean, root+string(filepath.Separator)) {
		e.t.Fatalf("path %q escapes test sandbox %q", clean, e.rootDir)
	}
	return clean
}

// WriteFile writes content below the sandbox, creating parent directories.
func (e *TestEnv) WriteFile(path string, content []byte) {
	e.t.Helper()

	abs := e.Path(path)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		e.t.Fatalf("failed to create directory for %q: %v", abs, err)
	}
	if err := os.WriteFile(abs, content, 0o644); err != nil {
		e.t.Fatalf("failed to write file %q: %v", abs, err)
	}
}

func (e *TestEnv) WriteFileString(path, content string) {
	e.t.Helper()
	e.WriteFile(path, []byte(content))
}

func (e *TestEnv) ReadFile(path string) []byte {
	e.t.Helper()

	abs := e.Path(path)
	content, err := os.ReadFile(abs)
	if err != nil {
		e.t.Fatalf("failed to read file %q: %v", abs, err)
	}
	return content
}

func (e *TestEnv) ReadFileString(path string) string {
	e.t.Helper()
	return string(e.ReadFile(path))
}

func (e *TestEnv) MkdirAll(path string) {
	e.t.Helper()

	abs := e.Path(path)
	if err := os.MkdirAll(abs, 0o755); err != nil {
		e.t.Fatalf("failed to create directory %q: %v", abs, err)
	}
}

func (e *TestEnv) FileExists(path string) bool {
	e.t.Helper()
	_, err := os.Stat(e.Path(path))
	return err == nil
}

func (e *TestEnv) RequireFileExists(path string) {
	e.t.Helper()
	if !e.FileExists(path) {
		e.t.Fatalf("expected file %q to exist", e.Path(path))
	}
}

// ListFiles returns the names of the entries in a sandbox directory.
func (e *TestEnv) ListFiles(path string) []string {
	e.t.Helper()

	abs := e.Path(path)
	entries, err := os.ReadDir(abs)
	if err != nil {
		e.t.Fatalf("failed to read directory %q: %v", abs, err)
	}
	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		files = append(files, entry.Name())
	}
	return files
}

// Chdir moves the working directory into the sandbox until the test ends.
func (e *TestEnv) Chdir(path string) {
	e.t.Helper()
	e.t.Chdir(e.Path(path))
}
