// Package tagmap holds a listing's category → subcategory tags.
//
// Category keys are stored in their encoded form, where every "/" is
// replaced by the token "_slash_". Decoding is for display only: a raw
// category that already contains "_slash_" does not survive a round trip.
package tagmap

import (
	"slices"
	"strings"

	"github.com/rolsen/tinyclassified/internal/errors"
	"github.com/rolsen/tinyclassified/internal/jsonx"
)

// EscapedSlash replaces "/" inside encoded category keys.
const EscapedSlash = "_slash_"

// EncodeCategory returns the stored key for a raw category name.
func EncodeCategory(raw string) string {
	return strings.ReplaceAll(raw, "/", EscapedSlash)
}

// DecodeCategory returns the display name for a stored category key.
func DecodeCategory(encoded string) string {
	return strings.ReplaceAll(encoded, EscapedSlash, "/")
}

// Row is one flattened (category, subcategory) pair ready for display.
type Row struct {
	Category    string // decoded
	Key         string // encoded, as stored
	Subcategory string
}

// TagMap maps encoded categories to their subcategories in insertion order.
// A category present in the map always has at least one subcategory.
// The zero value is an empty map ready to use.
type TagMap struct {
	order []string
	subs  map[string][]string
}

// New returns an empty TagMap.
func New() *TagMap {
	return &TagMap{subs: make(map[string][]string)}
}

// FromWireFormat builds a TagMap from an unordered key → subcategories map.
// Keys are taken in sorted order since the input carries none.
func FromWireFormat(raw map[string][]string) *TagMap {
	m := New()
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		for _, sub := range raw[k] {
			m.AddSubcategory(k, sub)
		}
	}
	return m
}

// Has reports whether the encoded category is present.
func (m *TagMap) Has(category string) bool {
	_, ok := m.subs[category]
	return ok
}

// Get returns a copy of the subcategories of an encoded category.
// It fails with a NOT_FOUND error when the category is absent.
func (m *TagMap) Get(category string) ([]string, error) {
	subs, ok := m.subs[category]
	if !ok {
		return nil, errors.NotFoundf("tag category %q not found", category)
	}
	return slices.Clone(subs), nil
}

// AddSubcategory appends subcategory to the encoded category, creating the
// category when needed. Duplicates are kept.
func (m *TagMap) AddSubcategory(category, subcategory string) {
	if m.subs == nil {
		m.subs = make(map[string][]string)
	}
	if _, ok := m.subs[category]; !ok {
		m.order = append(m.order, category)
	}
	m.subs[category] = append(m.subs[category], subcategory)
}

// RemoveSubcategory removes the first occurrence of subcategory from the
// encoded category and drops the category once it is empty. Removing from an
// absent category, or removing an absent value, changes nothing.
func (m *TagMap) RemoveSubcategory(category, subcategory string) {
	subs, ok := m.subs[category]
	if !ok {
		return
	}
	i := slices.Index(subs, subcategory)
	if i < 0 {
		return
	}

	subs = slices.Delete(slices.Clone(subs), i, i+1)
	if len(subs) > 0 {
		m.subs[category] = subs
		return
	}

	delete(m.subs, category)
	m.order = slices.DeleteFunc(m.order, func(k string) bool { return k == category })
}

// Categories returns the encoded categories in insertion order.
func (m *TagMap) Categories() []string {
	return slices.Clone(m.order)
}

// Len returns the number of categories.
func (m *TagMap) Len() int {
	return len(m.order)
}

// Rows flattens the map for display, categories in insertion order and
// subcategories in append order.
func (m *TagMap) Rows() []Row {
	var rows []Row
	for _, key := range m.order {
		display := DecodeCategory(key)
		for _, sub := range m.subs[key] {
			rows = append(rows, Row{Category: display, Key: key, Subcategory: sub})
		}
	}
	return rows
}

// ToWireFormat returns the raw key → subcategories mapping for persistence.
// Keys are already encoded and are not re-encoded.
func (m *TagMap) ToWireFormat() map[string][]string {
	out := make(map[string][]string, len(m.subs))
	for k, v := range m.subs {
		out[k] = slices.Clone(v)
	}
	return out
}

// Clone returns a deep copy.
func (m *TagMap) Clone() *TagMap {
	c := New()
	c.order = slices.Clone(m.order)
	for k, v := range m.subs {
		c.subs[k] = slices.Clone(v)
	}
	return c
}

// Equal reports whether both maps hold the same categories, in the same
// order, with the same subcategories.
func (m *TagMap) Equal(other *TagMap) bool {
	if !slices.Equal(m.order, other.order) {
		return false
	}
	for _, k := range m.order {
		if !slices.Equal(m.subs[k], other.subs[k]) {
			return false
		}
	}
	return true
}

// MarshalJSON writes the wire object with categories in insertion order.
func (m TagMap) MarshalJSON() ([]byte, error) {
	return jsonx.EncodeStringLists(m.order, m.subs)
}

// UnmarshalJSON reads the wire object, keeping category order. Categories
// that arrive with no subcategories are dropped.
func (m *TagMap) UnmarshalJSON(data []byte) error {
	decoded, err := jsonx.DecodeStringLists(data)
	if err != nil {
		return errors.Wrap(err, errors.CodeInternal, "decode tags")
	}

	*m = TagMap{subs: make(map[string][]string)}
	for _, key := range decoded.Keys {
		for _, sub := range decoded.Values[key] {
			m.AddSubcategory(key, sub)
		}
	}
	return nil
}
