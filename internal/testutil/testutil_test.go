package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestEnv_Path(t *testing.T) {
	env := NewTestEnv(t)

	path := env.Path("subdir", "file.txt")
	assert.True(t, filepath.IsAbs(path))
	assert.Equal(t, filepath.Join(env.RootDir(), "subdir", "file.txt"), path)
	assert.Equal(t, env.RootDir(), env.Path())
}

func TestTestEnv_WriteReadFile(t *testing.T) {
	env := NewTestEnv(t)

	env.WriteFileString("nested/test.txt", "test content")
	assert.Equal(t, "test content", env.ReadFileString("nested/test.txt"))
	env.RequireFileExists("nested/test.txt")
	assert.False(t, env.FileExists("missing.txt"))
}

func TestTestEnv_ListFiles(t *testing.T) {
	env := NewTestEnv(t)
	env.MkdirAll("covers")
	env.WriteFileString("covers/a.jpg", "a")
	env.WriteFileString("covers/b.jpg", "b")

	assert.ElementsMatch(t, []string{"a.jpg", "b.jpg"}, env.ListFiles("covers"))
}

func TestTestEnv_Chdir(t *testing.T) {
	env := NewTestEnv(t)
	env.MkdirAll("work")
	env.Chdir("work")

	wd, err := os.Getwd()
	require.NoError(t, err)
	resolved, err := filepath.EvalSymlinks(env.Path("work"))
	require.NoError(t, err)
	wdResolved, err := filepath.EvalSymlinks(wd)
	require.NoError(t, err)
	assert.Equal(t, resolved, wdResolved)
}

func TestUseTestConfig(t *testing.T) {
	env := NewTestEnv(t)

	s := UseTestConfig(t, env, map[string]any{"gallery.workers": 2})

	assert.Equal(t, env.Path("cache", "test-cache.db"), s.CacheDBFile)
	assert.Equal(t, env.Path("covers"), s.CoverDir)
	assert.Equal(t, 24*time.Hour, s.CacheTTL)
	assert.Equal(t, 2, s.GalleryWorkers)
	assert.True(t, viper.IsSet("results.dbfile"))
	assert.True(t, env.FileExists("cache"))
}

func TestGoldenHelper(t *testing.T) {
	env := NewTestEnv(t)
	env.WriteFileString("golden/out.txt", "hello\n")
	env.WriteFileString("golden/out.json", `{"a": 1, "b": [1, 2]}`)

	g := NewGoldenHelper(t, env.Path("golden"))
	g.updateMode = false

	assert.Equal(t, env.Path("golden", "out.txt"), g.GoldenPath("out.txt"))
	g.AssertGolden("out.txt", []byte("hello\n"))
	g.AssertGoldenJSON("out.json", []byte(`{"b":[1,2],"a":1}`))
}

func TestGoldenHelper_UpdateMode(t *testing.T) {
	env := NewTestEnv(t)
	g := NewGoldenHelper(t, env.Path("golden"))
	g.updateMode = true

	g.AssertGolden("new.txt", []byte("fresh"))
	assert.Equal(t, "fresh", env.ReadFileString("golden/new.txt"))
}
