package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// GoldenHelper compares output with files under a testdata directory.
// Setting UPDATE_GOLDEN=true rewrites the files instead.
type GoldenHelper struct {
	t          *testing.T
	goldenDir  string
	updateMode bool
}

func NewGoldenHelper(t *testing.T, goldenDir string) *GoldenHelper {
	t.Helper()
	return &GoldenHelper{
		t:          t,
		goldenDir:  goldenDir,
		updateMode: os.Getenv("UPDATE_GOLDEN") == "true",
	}
}

func (g *GoldenHelper) GoldenPath(name string) string {
	return filepath.Join(g.goldenDir, name)
}

// update writes actual to the golden file and reports whether it did.
func (g *GoldenHelper) update(name string, actual []byte) bool {
	if !g.updateMode {
		return false
	}
	path := g.GoldenPath(name)
	require.NoError(g.t, os.MkdirAll(filepath.Dir(path), 0o755), "failed to create golden file directory")
	require.NoError(g.t, os.WriteFile(path, actual, 0o644), "failed to update golden file")
	g.t.Logf("Updated golden file: %s", path)
	return true
}

func (g *GoldenHelper) read(name string) string {
	path := g.GoldenPath(name)
	golden, err := os.ReadFile(path)
	require.NoError(g.t, err, "failed to read golden file %s", path)
	return string(golden)
}

// AssertGolden compares actual byte for byte with the golden file.
func (g *GoldenHelper) AssertGolden(name string, actual []byte) {
	g.t.Helper()
	if g.update(name, actual) {
		return
	}
	assert.Equal(g.t, g.read(name), string(actual), "content does not match golden file %s", name)
}

// AssertGoldenJSON compares JSON documents, ignoring formatting and key order.
func (g *GoldenHelper) AssertGoldenJSON(name string, actual []byte) {
	g.t.Helper()
	if g.update(name, actual) {
		return
	}
	assert.JSONEq(g.t, g.read(name), string(actual), "JSON content does not match golden file %s", name)
}
