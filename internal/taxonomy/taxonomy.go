// Package taxonomy is the read-only category reference used for tag
// suggestions. Keys on the wire use the same "_slash_" encoding as listing
// tags.
package taxonomy

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/rolsen/tinyclassified/internal/errors"
	"github.com/rolsen/tinyclassified/internal/jsonx"
	"github.com/rolsen/tinyclassified/internal/logger"
	"github.com/rolsen/tinyclassified/internal/tagmap"
)

const resourceName = "categories"

// Getter fetches a JSON document.
type Getter interface {
	GetJSON(ctx context.Context, resource, path string, out any) error
}

// Options configures a Taxonomy.
type Options struct {
	Transport Getter
	// Path of the taxonomy document, e.g. /resources/author/categories.json.
	Path   string
	Logger *slog.Logger
}

// Taxonomy maps encoded categories to their allowed subcategories.
type Taxonomy struct {
	transport Getter
	path      string
	logger    *slog.Logger

	mu      sync.RWMutex
	fetched bool
	entries jsonx.StringLists
}

// New creates an empty taxonomy. Nothing is fetched until Fetch.
func New(opts Options) *Taxonomy {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &Taxonomy{
		transport: opts.Transport,
		path:      opts.Path,
		logger:    log,
		entries:   jsonx.StringLists{Values: map[string][]string{}},
	}
}

// Fetch loads the taxonomy. Once a fetch has succeeded later calls return
// immediately; a failed fetch may be retried.
func (t *Taxonomy) Fetch(ctx context.Context) error {
	if t.Fetched() {
		return nil
	}

	var raw json.RawMessage
	if err := t.transport.GetJSON(ctx, resourceName, t.path, &raw); err != nil {
		t.logger.Warn("taxonomy fetch failed", "error", err)
		return err
	}
	entries, err := jsonx.DecodeStringLists(raw)
	if err != nil {
		return errors.Networkf("GET %s: decode %s", t.path, resourceName).WithCause(err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.fetched {
		t.entries = entries
		t.fetched = true
	}
	return nil
}

// Fetched reports whether the taxonomy has been loaded.
func (t *Taxonomy) Fetched() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.fetched
}

// Categories returns the decoded category names in document order.
func (t *Taxonomy) Categories() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.entries.Keys))
	for _, key := range t.entries.Keys {
		out = append(out, tagmap.DecodeCategory(key))
	}
	return out
}

// Subcategories returns the subcategories allowed for a category typed in
// its display form. The name is encoded before the lookup.
func (t *Taxonomy) Subcategories(category string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return slices.Clone(t.entries.Values[tagmap.EncodeCategory(category)])
}

// MatchCategories returns the display categories containing term, ignoring
// case.
func (t *Taxonomy) MatchCategories(term string) []string {
	return match(t.Categories(), term)
}

// MatchSubcategories returns the subcategories of category containing term,
// ignoring case.
func (t *Taxonomy) MatchSubcategories(category, term string) []string {
	return match(t.Subcategories(category), term)
}

func match(candidates []string, term string) []string {
	term = strings.ToLower(term)
	var out []string
	for _, c := range candidates {
		if strings.Contains(strings.ToLower(c), term) {
			out = append(out, c)
		}
	}
	return out
}
