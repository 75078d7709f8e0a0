package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"

	"github.com/alecthomas/kong"
	"github.com/lepinkainen/humanlog"
	"github.com/spf13/viper"

	"github.com/lepinkainen/shelfscout/internal/cache"
	"github.com/lepinkainen/shelfscout/internal/config"
	apperrors "github.com/lepinkainen/shelfscout/internal/errors"
	"github.com/lepinkainen/shelfscout/internal/metrics"
)

var (
	newRunApp = newApp
	exit      = os.Exit
)

// CLI represents the complete command structure for the shelfscout application
type CLI struct {
	Verbose bool   `short:"v" help:"Enable debug logging"`
	Config  string `help:"Path to config file (defaults to ./config.yaml)" type:"path"`
	Metrics bool   `help:"Print a metrics summary when the command finishes"`

	// Cache flags
	CacheDBFile string `help:"Path to cache SQLite database file"`
	CacheTTL    string `help:"Cache time-to-live duration (e.g., 720h for 30 days)"`

	Search    SearchCmd    `cmd:"" help:"Look up a book across every enabled provider"`
	Covers    CoversCmd    `cmd:"" help:"Browse cover editions of a book and download one full size"`
	Providers ProvidersCmd `cmd:"" help:"Inspect and reorder providers"`
	Cache     CacheCmd     `cmd:"" help:"Manage the provider response cache"`
}

// CacheCmd groups the cache maintenance subcommands.
type CacheCmd struct {
	Invalidate cache.InvalidateCacheCmd `cmd:"" help:"Drop cached responses of one provider, or all"`
	Prune      cache.ClearExpiredCmd    `cmd:"" help:"Delete expired cache entries"`
}

func kongOptions(extra ...kong.Option) []kong.Option {
	return append([]kong.Option{
		kong.Name("shelfscout"),
		kong.Description("Search several book metadata providers at once and merge what they know."),
		kong.UsageOnError(),
	}, extra...)
}

// Execute runs the Kong-based CLI
func Execute() {
	initLogging(os.Stderr, false)

	var cli CLI
	kctx := kong.Parse(&cli, kongOptions()...)

	// results go to stdout so --json output stays parseable
	if err := run(&cli, kctx, os.Stdout, os.Stderr); err != nil {
		if apperrors.IsStopProcessingError(err) {
			slog.Info("Stopped by user", "reason", err.Error())
			return
		}
		slog.Error("Command failed", "error", err)
		exit(1)
	}
}

func run(cli *CLI, kctx *kong.Context, out, logOut io.Writer) error {
	initLogging(logOut, cli.Verbose)
	if err := initConfig(cli.Config); err != nil {
		return err
	}
	updateGlobalConfig(cli)
	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	a := newRunApp(config.Load(), out)
	defer a.Close()

	kctx.BindTo(ctx, (*context.Context)(nil))
	err := kctx.Run(a)
	if cli.Metrics {
		printMetrics(out)
	}
	return err
}

func initConfig(path string) error {
	config.SetDefaults()
	if err := config.BindEnv(); err != nil {
		return fmt.Errorf("failed to bind environment variables: %w", err)
	}

	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			slog.Debug("Config file not found, using defaults")
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	slog.Debug("Loaded config", "file", viper.ConfigFileUsed())
	return nil
}

func updateGlobalConfig(cli *CLI) {
	if cli.CacheDBFile != "" {
		viper.Set("cache.dbfile", cli.CacheDBFile)
	}
	if cli.CacheTTL != "" {
		viper.Set("cache.ttl", cli.CacheTTL)
	}
}

func initLogging(w io.Writer, verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := humanlog.NewHandler(w, &humanlog.Options{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

func printMetrics(out io.Writer) {
	snapshot, err := metrics.Snapshot()
	if err != nil {
		slog.Warn("Failed to gather metrics", "error", err)
		return
	}
	var names []string
	for name := range snapshot {
		if strings.HasPrefix(name, "shelfscout_") {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	for _, name := range names {
		_, _ = fmt.Fprintf(out, "%-48s %g\n", name, snapshot[name])
	}
}
