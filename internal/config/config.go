// Package config maps viper keys to the typed settings shelfscout runs with.
package config

import (
	"time"

	"github.com/spf13/viper"
)

// Settings is a snapshot of the configuration after flags, environment and
// config.yaml have been merged.
type Settings struct {
	AdapterTimeout        time.Duration
	SessionTimeout        time.Duration
	MaxConcurrentAdapters int

	GalleryWorkers    int
	GalleryQueueDepth int
	CoverDir          string

	CacheDBFile string
	CacheTTL    time.Duration

	ResultsDBFile   string
	DatasetteURL    string
	DatasetteToken  string
	PreferencesFile string

	ISBNdbAPIKey      string
	GoogleBooksAPIKey string
	HardcoverToken    string
	GoodreadsRender   string
}

// SetDefaults registers every default value with viper.
func SetDefaults() {
	viper.SetDefault("search.adapter_timeout", "20s")
	viper.SetDefault("search.session_timeout", "45s")
	viper.SetDefault("search.max_concurrent", 0)

	viper.SetDefault("gallery.workers", 4)
	viper.SetDefault("gallery.queue_depth", 8)
	viper.SetDefault("gallery.cover_dir", "./covers")

	viper.SetDefault("cache.dbfile", "./cache.db")
	viper.SetDefault("cache.ttl", "720h")

	viper.SetDefault("results.dbfile", "./shelfscout.db")
	viper.SetDefault("datasette.url", "")
	viper.SetDefault("datasette.token", "")
	viper.SetDefault("providers.preferences", "./providers.yaml")

	viper.SetDefault("isbndb.api_key", "")
	viper.SetDefault("googlebooks.api_key", "")
	viper.SetDefault("hardcover.token", "")
	viper.SetDefault("goodreads.render", "http")
}

// BindEnv maps the conventional environment variable names for secrets.
func BindEnv() error {
	viper.AutomaticEnv()
	binds := map[string]string{
		"isbndb.api_key":      "ISBNDB_API_KEY",
		"googlebooks.api_key": "GOOGLE_BOOKS_API_KEY",
		"hardcover.token":     "HARDCOVER_TOKEN",
		"datasette.token":     "DATASETTE_TOKEN",
	}
	for key, env := range binds {
		if err := viper.BindEnv(key, env); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the current viper state.
func Load() Settings {
	return Settings{
		AdapterTimeout:        viper.GetDuration("search.adapter_timeout"),
		SessionTimeout:        viper.GetDuration("search.session_timeout"),
		MaxConcurrentAdapters: viper.GetInt("search.max_concurrent"),

		GalleryWorkers:    max(1, viper.GetInt("gallery.workers")),
		GalleryQueueDepth: max(0, viper.GetInt("gallery.queue_depth")),
		CoverDir:          viper.GetString("gallery.cover_dir"),

		CacheDBFile: viper.GetString("cache.dbfile"),
		CacheTTL:    viper.GetDuration("cache.ttl"),

		ResultsDBFile:   viper.GetString("results.dbfile"),
		DatasetteURL:    viper.GetString("datasette.url"),
		DatasetteToken:  viper.GetString("datasette.token"),
		PreferencesFile: viper.GetString("providers.preferences"),

		ISBNdbAPIKey:      viper.GetString("isbndb.api_key"),
		GoogleBooksAPIKey: viper.GetString("googlebooks.api_key"),
		HardcoverToken:    viper.GetString("hardcover.token"),
		GoodreadsRender:   viper.GetString("goodreads.render"),
	}
}
