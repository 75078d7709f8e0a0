package gallery

import "github.com/lepinkainen/shelfscout/internal/record"

// Status is the lifecycle of one edition in a gallery.
type Status int

const (
	StatusPending Status = iota
	StatusLoading
	StatusDeferred
	StatusReady
	StatusRemoved
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusLoading:
		return "loading"
	case StatusDeferred:
		return "deferred"
	case StatusReady:
		return "ready"
	case StatusRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Item is one edition shown in the gallery.
type Item struct {
	EditionISBN string
	Status      Status
	Thumbnail   *record.FileReference
	Full        *record.FileReference
	// Provider that supplied the most recent image.
	Provider string
}

// File is the best image loaded so far for the edition.
func (i Item) File() *record.FileReference {
	if i.Full != nil {
		return i.Full
	}
	return i.Thumbnail
}

// TerminalKind is how a gallery ended.
type TerminalKind int

const (
	TerminalNoCapableProvider TerminalKind = iota
	TerminalNoEditionsFound
	TerminalClosed
)

func (k TerminalKind) String() string {
	switch k {
	case TerminalNoCapableProvider:
		return "no_capable_provider"
	case TerminalNoEditionsFound:
		return "no_editions_found"
	case TerminalClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type Event interface {
	Gallery() string
	event()
}

type EditionsFound struct {
	GalleryID string
	Editions  []string
}

type ThumbnailReady struct {
	GalleryID string
	Item      Item
}

// ThumbnailDeferred means the worker pool was full; call Visible to retry.
type ThumbnailDeferred struct {
	GalleryID   string
	EditionISBN string
}

type EditionRemoved struct {
	GalleryID   string
	EditionISBN string
	Err         error
}

type FullSizeReady struct {
	GalleryID string
	Item      Item
}

type Terminal struct {
	GalleryID string
	Kind      TerminalKind
}

func (e EditionsFound) Gallery() string     { return e.GalleryID }
func (e ThumbnailReady) Gallery() string    { return e.GalleryID }
func (e ThumbnailDeferred) Gallery() string { return e.GalleryID }
func (e EditionRemoved) Gallery() string    { return e.GalleryID }
func (e FullSizeReady) Gallery() string     { return e.GalleryID }
func (e Terminal) Gallery() string          { return e.GalleryID }

func (EditionsFound) event()     {}
func (ThumbnailReady) event()    {}
func (ThumbnailDeferred) event() {}
func (EditionRemoved) event()    {}
func (FullSizeReady) event()     {}
func (Terminal) event()          {}
