// Package listing holds the listing record being edited together with its
// contact collection.
//
// Every save sends the whole record, not a patch. There is no per-field
// dirty tracking, and concurrent saves are not sequenced: whichever response
// is applied last wins.
package listing

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rolsen/tinyclassified/internal/errors"
	"github.com/rolsen/tinyclassified/internal/events"
	"github.com/rolsen/tinyclassified/internal/logger"
	"github.com/rolsen/tinyclassified/internal/remote"
	"github.com/rolsen/tinyclassified/internal/resource"
	"github.com/rolsen/tinyclassified/internal/status"
	"github.com/rolsen/tinyclassified/internal/tagmap"
)

const (
	// TargetParam is the query parameter selecting the listing to edit.
	TargetParam = "target"

	resourceName = "listing"
	savedMessage = "Saved."
)

// ContactCollection is the contact sub-collection of a listing.
type ContactCollection = resource.Collection[Contact, *Contact]

// ChangeKind identifies a change to the in-memory record.
type ChangeKind string

// Record changes.
const (
	// ChangeFetch follows a successful fetch.
	ChangeFetch ChangeKind = "fetch"
	// ChangeEdit follows a local mutation, before anything is persisted.
	ChangeEdit ChangeKind = "edit"
	// ChangeSync follows a save whose response has been applied.
	ChangeSync ChangeKind = "sync"
)

// Change is published after the in-memory record changes.
type Change struct {
	Kind ChangeKind
}

// Options configures an Aggregate.
type Options struct {
	Transport resource.Transport
	// BasePath is the listing collection root, e.g. /resources/author/content.
	BasePath string
	// ContactResource names the contact sub-collection, e.g. contact.
	ContactResource string
	// ContactResponseKey unwraps contact create responses.
	ContactResponseKey string
	Notifier           status.Notifier
	Logger             *slog.Logger
}

// Aggregate is one listing plus its contact collection.
type Aggregate struct {
	transport resource.Transport
	path      string
	notifier  status.Notifier
	logger    *slog.Logger
	contacts  *ContactCollection

	mu      sync.Mutex
	record  Listing
	fetched bool
	changes events.Bus[Change]
}

// ResolveIdentifier picks the listing identifier from a raw query string.
// The decoded "target" parameter wins; without it the current principal's
// listing is edited.
func ResolveIdentifier(rawQuery string) string {
	for _, pair := range strings.Split(strings.TrimPrefix(rawQuery, "?"), "&") {
		key, value, _ := strings.Cut(pair, "=")
		if key != TargetParam {
			continue
		}
		// Path unescaping keeps '+', which plus-addressed emails rely on.
		if target, err := url.PathUnescape(value); err == nil && target != "" {
			return target
		}
		break
	}
	return CurrentIdentifier
}

// New creates an empty aggregate for identifier. The contact collection is
// scoped to the identifier, which doubles as the author email.
func New(identifier string, opts Options) *Aggregate {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	if identifier == "" {
		identifier = CurrentIdentifier
	}
	record := newListing(identifier)
	notifier := status.OrNop(opts.Notifier)

	return &Aggregate{
		transport: opts.Transport,
		path:      remote.JoinPath(opts.BasePath, remote.EscapeSegment(identifier)),
		notifier:  notifier,
		logger:    log.With("listing", identifier),
		record:    record,
		contacts: resource.New[Contact](resource.Options{
			Transport:   opts.Transport,
			BasePath:    opts.BasePath,
			Parent:      record.AuthorEmail,
			Name:        opts.ContactResource,
			ResponseKey: opts.ContactResponseKey,
			Notifier:    notifier,
			Logger:      log,
		}),
	}
}

// Identifier returns the identifier the listing is addressed by.
func (a *Aggregate) Identifier() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.record.Identifier
}

// Path returns the listing endpoint.
func (a *Aggregate) Path() string { return a.path }

// Contacts returns the contact collection.
func (a *Aggregate) Contacts() *ContactCollection { return a.contacts }

// Fetched reports whether the record has been fetched at least once.
func (a *Aggregate) Fetched() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fetched
}

// Snapshot returns a deep copy of the in-memory record.
func (a *Aggregate) Snapshot() Listing {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.record.Clone()
}

// Subscribe registers fn for record changes and returns its unsubscribe
// function.
func (a *Aggregate) Subscribe(fn func(Change)) func() {
	return a.changes.Subscribe(fn)
}

// Load fetches the record and the contact collection concurrently. A failed
// contacts fetch does not cancel the record fetch.
func (a *Aggregate) Load(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error { return a.Fetch(ctx) })
	g.Go(func() error {
		_, err := a.contacts.FetchAll(ctx)
		return err
	})
	return g.Wait()
}

// Fetch replaces the in-memory record with the server's.
func (a *Aggregate) Fetch(ctx context.Context) error {
	var fetched Listing
	if err := a.transport.GetJSON(ctx, resourceName, a.path, &fetched); err != nil {
		a.logger.Warn("fetch failed", "error", err)
		return err
	}

	a.mu.Lock()
	if !fetched.empty() {
		fetched.Identifier = a.record.Identifier
		a.record = fetched
	}
	a.fetched = true
	a.mu.Unlock()

	a.changes.Emit(Change{Kind: ChangeFetch})
	return nil
}

// Apply merges f into the in-memory record without persisting it.
func (a *Aggregate) Apply(f Fields) {
	a.Mutate(f.apply)
}

// Mutate runs fn against the in-memory record. Identifier changes made by fn
// are discarded.
func (a *Aggregate) Mutate(fn func(*Listing)) {
	a.mu.Lock()
	identifier := a.record.Identifier
	fn(&a.record)
	a.record.Identifier = identifier
	a.mu.Unlock()

	a.changes.Emit(Change{Kind: ChangeEdit})
}

// Persist sends the full in-memory record and applies the response body.
// A successful save flashes the status indicator.
func (a *Aggregate) Persist(ctx context.Context) error {
	a.mu.Lock()
	outgoing := a.record.Clone()
	a.mu.Unlock()

	var saved Listing
	if err := a.transport.SendJSON(ctx, resourceName, http.MethodPut, a.path, outgoing, &saved); err != nil {
		a.logger.Warn("save failed", "error", err)
		return err
	}

	a.mu.Lock()
	if !saved.empty() {
		saved.Identifier = a.record.Identifier
		a.record = saved
	}
	a.mu.Unlock()

	a.changes.Emit(Change{Kind: ChangeSync})
	a.notifier.Flash(savedMessage)
	return nil
}

// Save merges f into the record and persists the whole record.
func (a *Aggregate) Save(ctx context.Context, f Fields) error {
	a.Apply(f)
	return a.Persist(ctx)
}

// SaveTags replaces the tags and persists the record.
func (a *Aggregate) SaveTags(ctx context.Context, tags *tagmap.TagMap) error {
	if tags == nil {
		return errors.Validation("tags must not be nil")
	}
	return a.Save(ctx, Fields{Tags: tags})
}

// SaveAddress replaces the address and persists the record.
func (a *Aggregate) SaveAddress(ctx context.Context, address Address) error {
	return a.Save(ctx, Fields{Address: &address})
}

// SaveAbout replaces the about text and persists the record.
func (a *Aggregate) SaveAbout(ctx context.Context, markup string) error {
	return a.Save(ctx, Fields{About: &markup})
}
