// Package coverfile downloads cover images, scales them to a size tier and
// keeps them on disk.
package coverfile

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"

	shelferrors "github.com/lepinkainen/shelfscout/internal/errors"
	"github.com/lepinkainen/shelfscout/internal/record"
)

// Providers hand back tiny placeholder images instead of a 404 when they
// have no cover. Anything at or below this edge length counts as missing.
const minEdge = 10

var errStatus = errors.New("unexpected status downloading cover")

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// MaxWidth is the widest a stored image of the tier may be.
func MaxWidth(tier record.SizeTier) int {
	switch tier {
	case record.Small:
		return 180
	case record.Medium:
		return 400
	default:
		return 1000
	}
}

type Store struct {
	dir    string
	client Doer
}

func NewStore(dir string, client Doer) *Store {
	if client == nil {
		client = http.DefaultClient
	}
	return &Store{dir: dir, client: client}
}

func (s *Store) Dir() string { return s.dir }

// Path is where the cover for isbn from source is stored at tier.
func (s *Store) Path(source, isbn string, tier record.SizeTier) string {
	name := fmt.Sprintf("%s-%s.jpg", sanitize(isbn), tier)
	return filepath.Join(s.dir, sanitize(source), name)
}

// Fetch returns the stored cover, downloading it from url first if needed.
// A missing or placeholder image yields nil, nil.
func (s *Store) Fetch(ctx context.Context, source, isbn, url string, tier record.SizeTier) (*record.FileReference, error) {
	if url == "" {
		return nil, nil
	}
	path := s.Path(source, isbn, tier)

	if exists(path) {
		slog.Debug("Cover already stored, skipping download", "path", path)
		img, err := imaging.Open(path)
		if err != nil {
			return nil, fmt.Errorf("read stored cover %s: %w", path, err)
		}
		return reference(path, url, tier, img), nil
	}

	img, err := s.download(ctx, source, url)
	if err != nil || img == nil {
		return nil, err
	}
	if b := img.Bounds(); b.Dx() <= minEdge || b.Dy() <= minEdge {
		slog.Debug("Ignoring placeholder cover", "source", source, "isbn", isbn, "width", b.Dx(), "height", b.Dy())
		return nil, nil
	}

	if limit := MaxWidth(tier); img.Bounds().Dx() > limit {
		img = imaging.Resize(img, limit, 0, imaging.Lanczos)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cover directory: %w", err)
	}
	if err := imaging.Save(img, path, imaging.JPEGQuality(85)); err != nil {
		return nil, fmt.Errorf("save cover %s: %w", path, err)
	}

	slog.Info("Downloaded cover", "source", source, "isbn", isbn, "tier", tier.String(), "path", path)
	return reference(path, url, tier, img), nil
}

func (s *Store) download(ctx context.Context, source, url string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download cover: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, shelferrors.RateLimitFromResponse(source, resp)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("%w %d from %s", errStatus, resp.StatusCode, url)
	}

	img, err := imaging.Decode(resp.Body, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode cover from %s: %w", url, err)
	}
	return img, nil
}

func reference(path, url string, tier record.SizeTier, img image.Image) *record.FileReference {
	b := img.Bounds()
	return &record.FileReference{Path: path, URL: url, Width: b.Dx(), Height: b.Dy(), Tier: tier}
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// sanitize keeps path components free of separators.
func sanitize(name string) string {
	name = strings.ReplaceAll(name, ":", " -")
	name = strings.ReplaceAll(name, "/", "-")
	name = strings.ReplaceAll(name, "\\", "-")
	return name
}
