package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/lepinkainen/shelfscout/internal/errors"
	"github.com/lepinkainen/shelfscout/internal/gallery"
	"github.com/lepinkainen/shelfscout/internal/tui"
)

var selectEdition = tui.SelectEdition

var errNoCoverProvider = errors.New("no enabled provider can fetch covers")

type CoversCmd struct {
	ISBN          string `arg:"" help:"ISBN of the book whose covers to browse"`
	Select        string `help:"Edition ISBN to download full size without prompting"`
	NoInteractive bool   `help:"Disable the interactive edition picker (take the first edition with a cover)"`
}

func (c *CoversCmd) Run(ctx context.Context, a *app) error {
	fetcher, err := a.Fetcher()
	if err != nil {
		return err
	}
	defer fetcher.Close()

	g, err := fetcher.Open(ctx, c.ISBN)
	if err != nil {
		return err
	}
	defer g.Close()
	// the picker and waitForEditions stop reading before the feed closes
	defer g.Release()
	if term, ok := g.Terminal(); ok && term.Kind == gallery.TerminalNoCapableProvider {
		return errNoCoverProvider
	}

	var candidates []string
	switch {
	case !c.NoInteractive && c.Select == "":
		res, err := selectEdition(g)
		if err != nil {
			return fmt.Errorf("edition picker failed: %w", err)
		}
		switch res.Action {
		case tui.ActionStopped:
			return apperrors.NewStopProcessingError("cover selection stopped").At(g.ISBN())
		case tui.ActionSelected:
			candidates = []string{res.EditionISBN}
		default:
			slog.Info("No edition selected", "isbn", g.ISBN())
			return nil
		}
	default:
		if err := waitForEditions(ctx, g); err != nil {
			return err
		}
		if c.Select != "" {
			candidates = []string{c.Select}
		} else {
			for _, item := range g.Items() {
				candidates = append(candidates, item.EditionISBN)
			}
		}
	}

	var errs []error
	for _, isbn := range candidates {
		item, err := g.Select(ctx, isbn)
		if err != nil {
			slog.Debug("No full-size cover", "edition", isbn, "error", err)
			errs = append(errs, err)
			continue
		}
		file := item.File()
		_, err = fmt.Fprintf(a.out, "%s\t%s\t%dx%d\t%s\n", item.EditionISBN, item.Provider, file.Width, file.Height, file.Path)
		return err
	}
	if len(errs) == 0 {
		return fmt.Errorf("%w for %s", gallery.ErrNoCover, g.ISBN())
	}
	return errors.Join(errs...)
}

// waitForEditions blocks until the gallery has listed its editions or ended.
func waitForEditions(ctx context.Context, g *gallery.Gallery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-g.Events():
			if !ok {
				return nil
			}
			switch e := ev.(type) {
			case gallery.EditionsFound:
				slog.Info("Found editions", "isbn", g.ISBN(), "count", len(e.Editions))
				return nil
			case gallery.Terminal:
				switch e.Kind {
				case gallery.TerminalNoCapableProvider:
					return errNoCoverProvider
				case gallery.TerminalNoEditionsFound:
					return fmt.Errorf("%w for %s", gallery.ErrNoCover, g.ISBN())
				}
				return gallery.ErrClosed
			}
		}
	}
}
