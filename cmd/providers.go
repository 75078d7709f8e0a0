package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lepinkainen/shelfscout/internal/provider"
)

// ProvidersCmd groups the provider management subcommands. Changes are
// written to the preferences file.
type ProvidersCmd struct {
	List    ProvidersListCmd    `cmd:"" help:"List providers in priority order"`
	Enable  ProvidersEnableCmd  `cmd:"" help:"Enable a provider"`
	Disable ProvidersDisableCmd `cmd:"" help:"Disable a provider"`
	Move    ProvidersMoveCmd    `cmd:"" help:"Move a provider to a position in the priority order"`
	Ping    ProvidersPingCmd    `cmd:"" help:"Check that providers are reachable"`
}

type ProvidersListCmd struct{}

type ProvidersEnableCmd struct {
	ID string `arg:"" help:"Provider id"`
}

type ProvidersDisableCmd struct {
	ID string `arg:"" help:"Provider id"`
}

type ProvidersMoveCmd struct {
	ID       string `arg:"" help:"Provider id"`
	Position int    `arg:"" help:"New zero-based position"`
}

type ProvidersPingCmd struct {
	IDs []string `arg:"" optional:"" name:"id" help:"Providers to check (default: all enabled)"`
}

func (ProvidersListCmd) Run(a *app) error {
	reg, err := a.Registry()
	if err != nil {
		return err
	}
	return writeProviders(a, reg.Entries())
}

func writeProviders(a *app, entries []provider.Entry) error {
	for i, e := range entries {
		state := "enabled"
		if !e.Enabled {
			state = "disabled"
		}
		if _, err := fmt.Fprintf(a.out, "%d  %-12s %-9s %s\n", i, e.ID, state, e.Capabilities); err != nil {
			return err
		}
	}
	return nil
}

func (c *ProvidersEnableCmd) Run(a *app) error  { return setEnabled(a, c.ID, true) }
func (c *ProvidersDisableCmd) Run(a *app) error { return setEnabled(a, c.ID, false) }

func setEnabled(a *app, id string, enabled bool) error {
	reg, err := a.Registry()
	if err != nil {
		return err
	}
	if err := reg.SetEnabled(id, enabled); err != nil {
		return err
	}
	slog.Info("Updated provider", "provider", id, "enabled", enabled)
	return a.SavePreferences()
}

func (c *ProvidersMoveCmd) Run(a *app) error {
	reg, err := a.Registry()
	if err != nil {
		return err
	}
	if err := reg.Move(c.ID, c.Position); err != nil {
		return err
	}
	if err := a.SavePreferences(); err != nil {
		return err
	}
	return writeProviders(a, reg.Entries())
}

func (c *ProvidersPingCmd) Run(ctx context.Context, a *app) error {
	reg, err := a.Registry()
	if err != nil {
		return err
	}

	var entries []provider.Entry
	if len(c.IDs) == 0 {
		for _, e := range reg.Entries() {
			if e.Enabled {
				entries = append(entries, e)
			}
		}
	} else {
		for _, id := range c.IDs {
			e, ok := reg.Entry(id)
			if !ok {
				return fmt.Errorf("%w: %s", provider.ErrUnknownProvider, id)
			}
			entries = append(entries, e)
		}
	}

	results := make([]error, len(entries))
	elapsed := make([]time.Duration, len(entries))
	var g errgroup.Group
	for i, e := range entries {
		g.Go(func() error {
			pingCtx, cancel := ctx, context.CancelFunc(func() {})
			if a.settings.AdapterTimeout > 0 {
				pingCtx, cancel = context.WithTimeout(ctx, a.settings.AdapterTimeout)
			}
			defer cancel()
			start := time.Now()
			results[i] = e.Adapter.Ping(pingCtx)
			elapsed[i] = time.Since(start)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for i, e := range entries {
		status := "ok"
		if results[i] != nil {
			status = "error: " + results[i].Error()
			failed++
		}
		if _, err := fmt.Fprintf(a.out, "%-12s %-8s %s\n", e.ID, elapsed[i].Round(time.Millisecond), status); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d providers failed", failed, len(entries))
	}
	return nil
}
