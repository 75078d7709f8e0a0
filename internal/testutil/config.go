package testutil

import (
	"testing"

	"github.com/spf13/viper"

	"github.com/lepinkainen/shelfscout/internal/config"
)

// UseTestConfig resets viper to the shelfscout defaults with every file
// path pointed into env, applies overrides, and resets viper again when
// the test ends.
func UseTestConfig(t *testing.T, env *TestEnv, overrides map[string]any) config.Settings {
	t.Helper()

	viper.Reset()
	t.Cleanup(viper.Reset)

	config.SetDefaults()
	viper.Set("cache.dbfile", env.Path("cache", "test-cache.db"))
	viper.Set("cache.ttl", "24h")
	viper.Set("gallery.cover_dir", env.Path("covers"))
	viper.Set("results.dbfile", env.Path("results.db"))
	viper.Set("providers.preferences", env.Path("providers.yaml"))
	for key, value := range overrides {
		viper.Set(key, value)
	}
	env.MkdirAll("cache")

	return config.Load()
}
