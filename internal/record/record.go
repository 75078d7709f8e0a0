// Package record holds the field-keyed book record produced by provider
// adapters and the rules for merging several of them into one.
package record

import (
	"cmp"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Key names a field in a Record.
type Key string

const (
	Title       Key = "title"
	Subtitle    Key = "subtitle"
	ISBN        Key = "isbn"
	Description Key = "description"
	PublishDate Key = "publishDate"
	Language    Key = "language"
	Pages       Key = "pages"
	Format      Key = "format"
	ExternalID  Key = "externalId"

	Authors         Key = "authors"
	Series          Key = "series"
	Publishers      Key = "publishers"
	Subjects        Key = "subjects"
	AlternateCovers Key = "alternateCovers"
)

var listKeys = map[Key]bool{
	Authors:         true,
	Series:          true,
	Publishers:      true,
	Subjects:        true,
	AlternateCovers: true,
}

// IsList reports whether k holds a list of values rather than a scalar.
func (k Key) IsList() bool { return listKeys[k] }

// SizeTier is the requested resolution of a cover image.
type SizeTier int

const (
	Small SizeTier = iota
	Medium
	Large
)

func (t SizeTier) String() string {
	switch t {
	case Small:
		return "small"
	case Medium:
		return "medium"
	case Large:
		return "large"
	default:
		return "tier(" + strconv.Itoa(int(t)) + ")"
	}
}

// ParseSizeTier accepts the names produced by String.
func ParseSizeTier(s string) (SizeTier, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "small", "s":
		return Small, nil
	case "medium", "m":
		return Medium, nil
	case "large", "l":
		return Large, nil
	}
	return Small, fmt.Errorf("unknown size tier %q", s)
}

// FileReference points at a downloaded image on disk.
type FileReference struct {
	Path   string   `json:"path"`
	URL    string   `json:"url,omitempty"`
	Width  int      `json:"width,omitempty"`
	Height int      `json:"height,omitempty"`
	Tier   SizeTier `json:"tier"`
}

// Value is a single field value with the ID of the adapter that supplied it.
type Value struct {
	Text     string `json:"value"`
	Source   string `json:"source,omitempty"`
	priority int
}

// Image is a cover file with provenance.
type Image struct {
	File   FileReference `json:"file"`
	Source string        `json:"source,omitempty"`
}

type imageSlot struct {
	index int
	tier  SizeTier
}

// ImageKey renders the flat field key used for cover images.
func ImageKey(index int, tier SizeTier) string {
	return fmt.Sprintf("coverImage[%d].%s", index, tier)
}

// Record is a field map. The zero value is not usable; call New.
type Record struct {
	scalars map[Key]Value
	lists   map[Key][]Value
	images  map[imageSlot]Image
}

func New() *Record {
	return &Record{
		scalars: make(map[Key]Value),
		lists:   make(map[Key][]Value),
		images:  make(map[imageSlot]Image),
	}
}

// Set stores a scalar. Blank values are ignored so adapters can set fields
// straight from decoded responses.
func (r *Record) Set(key Key, text string) *Record {
	text = strings.TrimSpace(text)
	if text == "" || key.IsList() {
		return r
	}
	r.scalars[key] = Value{Text: text}
	return r
}

// SetInt stores a positive integer scalar.
func (r *Record) SetInt(key Key, n int) *Record {
	if n <= 0 {
		return r
	}
	return r.Set(key, strconv.Itoa(n))
}

// Add appends values to a list field, skipping blanks and repeats.
func (r *Record) Add(key Key, values ...string) *Record {
	if !key.IsList() {
		return r
	}
	seen := make(map[string]bool, len(r.lists[key]))
	for _, v := range r.lists[key] {
		seen[identity(key, v.Text)] = true
	}
	for _, v := range values {
		v = strings.TrimSpace(v)
		id := identity(key, v)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		r.lists[key] = append(r.lists[key], Value{Text: v})
	}
	return r
}

// SetImage stores a cover file for the given alternate-cover index and tier.
func (r *Record) SetImage(index int, tier SizeTier, file FileReference) *Record {
	if file.Path == "" && file.URL == "" {
		return r
	}
	file.Tier = tier
	r.images[imageSlot{index: index, tier: tier}] = Image{File: file}
	return r
}

func (r *Record) Get(key Key) (Value, bool) {
	v, ok := r.scalars[key]
	return v, ok
}

// Text returns the scalar value for key, or "".
func (r *Record) Text(key Key) string {
	return r.scalars[key].Text
}

func (r *Record) List(key Key) []Value {
	return slices.Clone(r.lists[key])
}

// Strings returns the plain values of a list field.
func (r *Record) Strings(key Key) []string {
	values := r.lists[key]
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, v.Text)
	}
	return out
}

func (r *Record) Image(index int, tier SizeTier) (Image, bool) {
	img, ok := r.images[imageSlot{index: index, tier: tier}]
	return img, ok
}

// Images returns all cover images keyed by ImageKey.
func (r *Record) Images() map[string]Image {
	out := make(map[string]Image, len(r.images))
	for slot, img := range r.images {
		out[ImageKey(slot.index, slot.tier)] = img
	}
	return out
}

// IsEmpty reports whether the record holds no field at all.
func (r *Record) IsEmpty() bool {
	return r == nil || (len(r.scalars) == 0 && len(r.lists) == 0 && len(r.images) == 0)
}

// Keys lists every populated field key in sorted order.
func (r *Record) Keys() []string {
	var keys []string
	for k := range r.scalars {
		keys = append(keys, string(k))
	}
	for k, v := range r.lists {
		if len(v) > 0 {
			keys = append(keys, string(k))
		}
	}
	for slot := range r.images {
		keys = append(keys, ImageKey(slot.index, slot.tier))
	}
	slices.Sort(keys)
	return keys
}

func (r *Record) Clone() *Record {
	out := New()
	if r == nil {
		return out
	}
	maps.Copy(out.scalars, r.scalars)
	for k, v := range r.lists {
		out.lists[k] = slices.Clone(v)
	}
	maps.Copy(out.images, r.images)
	return out
}

// Stamp records source as the provenance of every value that has none yet.
func (r *Record) Stamp(source string) *Record {
	for k, v := range r.scalars {
		if v.Source == "" {
			v.Source = source
			r.scalars[k] = v
		}
	}
	for k, values := range r.lists {
		for i := range values {
			if values[i].Source == "" {
				values[i].Source = source
			}
		}
		r.lists[k] = values
	}
	for slot, img := range r.images {
		if img.Source == "" {
			img.Source = source
			r.images[slot] = img
		}
	}
	return r
}

// Sources returns the distinct adapter IDs that contributed values, sorted.
func (r *Record) Sources() []string {
	set := make(map[string]bool)
	for _, v := range r.scalars {
		set[v.Source] = true
	}
	for _, values := range r.lists {
		for _, v := range values {
			set[v.Source] = true
		}
	}
	for _, img := range r.images {
		set[img.Source] = true
	}
	delete(set, "")
	return slices.Sorted(maps.Keys(set))
}

// Equal compares field values and provenance.
func (r *Record) Equal(other *Record) bool {
	if r.IsEmpty() || other.IsEmpty() {
		return r.IsEmpty() == other.IsEmpty()
	}
	if !maps.EqualFunc(r.scalars, other.scalars, func(a, b Value) bool {
		return a.Text == b.Text && a.Source == b.Source
	}) {
		return false
	}
	nonEmpty := func(m map[Key][]Value) map[Key][]Value {
		out := make(map[Key][]Value, len(m))
		for k, v := range m {
			if len(v) > 0 {
				out[k] = v
			}
		}
		return out
	}
	if !maps.EqualFunc(nonEmpty(r.lists), nonEmpty(other.lists), func(a, b []Value) bool {
		return slices.EqualFunc(a, b, func(x, y Value) bool {
			return x.Text == y.Text && x.Source == y.Source
		})
	}) {
		return false
	}
	return maps.Equal(r.images, other.images)
}

// Fields flattens the record to plain values keyed by field name.
func (r *Record) Fields() map[string]any {
	out := make(map[string]any)
	if r == nil {
		return out
	}
	for k, v := range r.scalars {
		out[string(k)] = v.Text
	}
	for k := range r.lists {
		if values := r.Strings(k); len(values) > 0 {
			out[string(k)] = values
		}
	}
	for slot, img := range r.images {
		out[ImageKey(slot.index, slot.tier)] = cmp.Or(img.File.Path, img.File.URL)
	}
	return out
}

type recordJSON struct {
	Scalars map[Key]Value    `json:"fields,omitempty"`
	Lists   map[Key][]Value  `json:"lists,omitempty"`
	Images  map[string]Image `json:"images,omitempty"`
}

// MarshalJSON writes values together with their provenance.
func (r *Record) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}
	return json.Marshal(recordJSON{Scalars: r.scalars, Lists: r.lists, Images: r.Images()})
}
