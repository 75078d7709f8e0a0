package cmd

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/alecthomas/assert/v2"
	"github.com/alecthomas/kong"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/lepinkainen/shelfscout/internal/config"
	apperrors "github.com/lepinkainen/shelfscout/internal/errors"
	"github.com/lepinkainen/shelfscout/internal/provider"
	"github.com/lepinkainen/shelfscout/internal/provider/providertest"
	"github.com/lepinkainen/shelfscout/internal/record"
	"github.com/lepinkainen/shelfscout/internal/search"
	"github.com/lepinkainen/shelfscout/internal/testutil"
	"github.com/lepinkainen/shelfscout/internal/tui"
)

const (
	duneISBN13 = "9780441013593"
	duneISBN10 = "0441013597"
	altEdition = "9780340960196"
)

type harness struct {
	env *testutil.TestEnv
	reg *provider.Registry
	out bytes.Buffer
}

// newHarness runs commands inside a sandbox directory against reg instead
// of the real providers.
func newHarness(t *testing.T, adapters ...provider.Adapter) *harness {
	t.Helper()

	env := testutil.NewTestEnv(t)
	env.Chdir(".")
	viper.Reset()
	t.Cleanup(viper.Reset)

	h := &harness{env: env, reg: provider.NewRegistry()}
	for i, a := range adapters {
		require.NoError(t, h.reg.Register(a, provider.Options{Priority: i, Enabled: true}))
	}

	orig := newRunApp
	newRunApp = func(s config.Settings, out io.Writer) *app {
		a := newApp(s, out)
		a.registry = h.reg
		return a
	}
	t.Cleanup(func() { newRunApp = orig })
	return h
}

func parseCLI(t *testing.T, args ...string) (*CLI, *kong.Context) {
	t.Helper()

	cli := &CLI{}
	parser, err := kong.New(cli, kongOptions(kong.Exit(func(code int) {
		t.Fatalf("unexpected Kong exit %d", code)
	}))...)
	require.NoError(t, err)
	kctx, err := parser.Parse(args)
	require.NoError(t, err)
	return cli, kctx
}

func (h *harness) run(t *testing.T, args ...string) error {
	t.Helper()
	h.out.Reset()
	cli, kctx := parseCLI(t, args...)
	return run(cli, kctx, &h.out, io.Discard)
}

func dune(source string) *providertest.Fake {
	return &providertest.Fake{
		AdapterID: source,
		Caps:      provider.SearchByISBN,
		OnISBN: providertest.Returns(record.New().
			Set(record.Title, "Dune").
			Set(record.ISBN, duneISBN13).
			Add(record.Authors, "Frank Herbert")),
	}
}

func TestSearchCommandParsing(t *testing.T) {
	cli, _ := parseCLI(t, "--verbose", "search", "isbn", duneISBN13, duneISBN10, "--json", "--save-db")

	assert.True(t, cli.Verbose)
	assert.Equal(t, []string{duneISBN13, duneISBN10}, cli.Search.ISBN.ISBNs)
	assert.True(t, cli.Search.ISBN.Output.JSON)
	assert.True(t, cli.Search.ISBN.Output.SaveDB)

	cli, _ = parseCLI(t, "search", "text", "--title", "Dune", "-a", "Herbert", "desert", "planet")
	assert.Equal(t, "Dune", cli.Search.Text.Title)
	assert.Equal(t, "Herbert", cli.Search.Text.Author)
	assert.Equal(t, []string{"desert", "planet"}, cli.Search.Text.Keywords)
}

func TestUpdateGlobalConfig(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	updateGlobalConfig(&CLI{CacheDBFile: "/tmp/cache.db", CacheTTL: "12h"})
	assert.Equal(t, "/tmp/cache.db", viper.GetString("cache.dbfile"))
	assert.Equal(t, "12h", viper.GetString("cache.ttl"))

	viper.Reset()
	updateGlobalConfig(&CLI{})
	assert.False(t, viper.IsSet("cache.dbfile"))
}

func TestInitConfigReadsFile(t *testing.T) {
	h := newHarness(t)
	h.env.WriteFileString("custom.yaml", "search:\n  adapter_timeout: 3s\ngallery:\n  workers: 7\n")

	require.NoError(t, initConfig(h.env.Path("custom.yaml")))
	s := config.Load()
	assert.Equal(t, 7, s.GalleryWorkers)
	assert.Equal(t, "3s", s.AdapterTimeout.String())
}

func TestInitConfigMissingFileUsesDefaults(t *testing.T) {
	newHarness(t)

	require.NoError(t, initConfig(""))
	assert.Equal(t, 4, config.Load().GalleryWorkers)
}

func TestSearchISBNPrintsAndSaves(t *testing.T) {
	h := newHarness(t, dune("alpha"))

	require.NoError(t, h.run(t, "search", "isbn", duneISBN10, "--save-db"))

	out := h.out.String()
	assert.Contains(t, out, "== isbn:"+duneISBN13+": success")
	assert.Contains(t, out, "Dune (alpha)")
	assert.Contains(t, out, "Frank Herbert (alpha)")

	h.env.RequireFileExists("shelfscout.db")
	db, err := sql.Open("sqlite", h.env.Path("shelfscout.db"))
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	var title, outcome string
	require.NoError(t, db.QueryRow("SELECT title, outcome FROM search_results").Scan(&title, &outcome))
	assert.Equal(t, "Dune", title)
	assert.Equal(t, "success", outcome)
}

func TestSearchJSONOutput(t *testing.T) {
	h := newHarness(t, dune("alpha"))

	require.NoError(t, h.run(t, "search", "isbn", duneISBN13, "--json"))

	var res struct {
		Query   string         `json:"query"`
		Outcome string         `json:"outcome"`
		Fields  map[string]any `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(h.out.Bytes(), &res))
	assert.Equal(t, "isbn:"+duneISBN13, res.Query)
	assert.Equal(t, "success", res.Outcome)
	assert.Equal(t, any("Dune"), res.Fields["title"])
}

func TestSearchAllProvidersFailed(t *testing.T) {
	h := newHarness(t, &providertest.Fake{
		AdapterID: "alpha",
		Caps:      provider.SearchByISBN,
		OnISBN:    providertest.Fails(errors.New("boom")),
	})

	err := h.run(t, "search", "isbn", duneISBN13)
	assert.Error(t, err)
	assert.True(t, errors.Is(err, search.ErrAllProvidersFailed))
	assert.Contains(t, h.out.String(), "Failed:")
	assert.Contains(t, h.out.String(), "alpha: boom")
}

func TestSearchInvalidISBNKeepsGoing(t *testing.T) {
	h := newHarness(t, dune("alpha"))

	err := h.run(t, "search", "isbn", "123", duneISBN13)
	assert.True(t, errors.Is(err, search.ErrInvalidQuery))
	assert.Contains(t, h.out.String(), "Dune (alpha)")
}

func TestSearchIDNoCapableProvider(t *testing.T) {
	h := newHarness(t, dune("alpha"))

	require.NoError(t, h.run(t, "search", "id", "hardcover", "123"))
	assert.Contains(t, h.out.String(), "no_capable_provider")
}

func TestProvidersCommands(t *testing.T) {
	h := newHarness(t, dune("alpha"), dune("beta"))

	require.NoError(t, h.run(t, "providers", "disable", "beta"))
	h.env.RequireFileExists("providers.yaml")
	prefs, err := provider.LoadPreferences(h.env.Path("providers.yaml"))
	require.NoError(t, err)
	assert.Equal(t, []provider.ProviderPreference{
		{ID: "alpha", Enabled: true},
		{ID: "beta", Enabled: false},
	}, prefs.Providers)

	require.NoError(t, h.run(t, "providers", "move", "beta", "0"))
	assert.Equal(t, "beta", h.reg.Entries()[0].ID)

	require.NoError(t, h.run(t, "providers", "list"))
	lines := strings.Split(strings.TrimSpace(h.out.String()), "\n")
	assert.Equal(t, 2, len(lines))
	assert.Contains(t, lines[0], "beta")
	assert.Contains(t, lines[0], "disabled")
	assert.Contains(t, lines[1], "alpha")

	assert.Error(t, h.run(t, "providers", "enable", "gamma"))
}

func TestProvidersPing(t *testing.T) {
	up := dune("alpha")
	down := dune("beta")
	down.OnPing = func(context.Context) error { return errors.New("down") }
	h := newHarness(t, up, down)

	err := h.run(t, "providers", "ping")
	assert.EqualError(t, err, "1 of 2 providers failed")
	assert.Contains(t, h.out.String(), "error: down")

	require.NoError(t, h.run(t, "providers", "ping", "alpha"))
}

func coverFake() *providertest.Fake {
	return &providertest.Fake{
		AdapterID: "covers",
		Caps:      provider.FetchCover,
		OnCoverEditions: func(context.Context, string) ([]string, error) {
			return []string{altEdition}, nil
		},
		OnCoverImage: func(_ context.Context, isbn string, tier record.SizeTier) (*record.FileReference, error) {
			switch {
			case tier == record.Small:
				return &record.FileReference{Path: "/covers/" + isbn + "-small.jpg", Width: 180, Height: 270, Tier: tier}, nil
			case tier == record.Large && isbn == duneISBN13:
				return &record.FileReference{Path: "/covers/" + isbn + "-large.jpg", Width: 1000, Height: 1500, Tier: tier}, nil
			}
			return nil, nil
		},
	}
}

func TestCoversNonInteractive(t *testing.T) {
	h := newHarness(t, coverFake())

	require.NoError(t, h.run(t, "covers", duneISBN13, "--no-interactive"))
	assert.Equal(t, duneISBN13+"\tcovers\t1000x1500\t/covers/"+duneISBN13+"-large.jpg\n", h.out.String())
}

func TestCoversSelectFallsBackToSmaller(t *testing.T) {
	h := newHarness(t, coverFake())

	require.NoError(t, h.run(t, "covers", duneISBN13, "--select", altEdition))
	assert.Contains(t, h.out.String(), altEdition+"\tcovers\t180x270")
}

func TestCoversInteractiveStop(t *testing.T) {
	h := newHarness(t, coverFake())
	orig := selectEdition
	selectEdition = func(tui.EditionSource) (tui.EditionResult, error) {
		return tui.EditionResult{Action: tui.ActionStopped}, nil
	}
	t.Cleanup(func() { selectEdition = orig })

	err := h.run(t, "covers", duneISBN13)
	assert.True(t, apperrors.IsStopProcessingError(err))
	assert.Contains(t, err.Error(), duneISBN13)
}

func TestCoversInteractiveSelect(t *testing.T) {
	h := newHarness(t, coverFake())
	orig := selectEdition
	selectEdition = func(src tui.EditionSource) (tui.EditionResult, error) {
		assert.Equal(t, duneISBN13, src.ISBN())
		return tui.EditionResult{Action: tui.ActionSelected, EditionISBN: duneISBN13}, nil
	}
	t.Cleanup(func() { selectEdition = orig })

	require.NoError(t, h.run(t, "covers", duneISBN10))
	assert.Contains(t, h.out.String(), "1000x1500")
}

func TestCoversWithoutCoverProvider(t *testing.T) {
	h := newHarness(t, dune("alpha"))

	err := h.run(t, "covers", duneISBN13, "--no-interactive")
	assert.True(t, errors.Is(err, errNoCoverProvider))
}

func TestCacheInvalidate(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.run(t, "cache", "invalidate", "all"))
	h.env.RequireFileExists("cache.db")
	assert.Error(t, h.run(t, "cache", "invalidate", "nosuch"))
	require.NoError(t, h.run(t, "cache", "prune"))
}

func TestMetricsSummary(t *testing.T) {
	h := newHarness(t, dune("alpha"))

	require.NoError(t, h.run(t, "--metrics", "search", "isbn", duneISBN13))
	assert.Contains(t, h.out.String(), "shelfscout_sessions_started_total")
}
