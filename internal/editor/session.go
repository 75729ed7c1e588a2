// Package editor drives one listing editing session: it resolves which
// listing to edit, loads it with its contacts and the category taxonomy, and
// turns form actions into in-memory mutations followed by background saves.
//
// Actions never block on the network. Each action mutates the in-memory
// model before returning and persists in the background; failures reach the
// log and the OnError hook only.
package editor

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/rolsen/tinyclassified/internal/errors"
	"github.com/rolsen/tinyclassified/internal/listing"
	"github.com/rolsen/tinyclassified/internal/logger"
	"github.com/rolsen/tinyclassified/internal/markup"
	"github.com/rolsen/tinyclassified/internal/resource"
	"github.com/rolsen/tinyclassified/internal/status"
	"github.com/rolsen/tinyclassified/internal/tagmap"
	"github.com/rolsen/tinyclassified/internal/taxonomy"
)

// Errors returned by actions that cannot run.
var (
	ErrNotReady       = errors.Validation("editor session is not ready")
	ErrClosed         = errors.Validation("editor session is closed")
	ErrAlreadyStarted = errors.Validation("editor session already started")
)

// Options configures a Session.
type Options struct {
	// Listing configures the aggregate built once the identifier is known.
	// Its Notifier and Logger are replaced by the session's.
	Listing listing.Options
	// Taxonomy is optional; without it suggestions are empty.
	Taxonomy  *taxonomy.Taxonomy
	Converter markup.Converter
	Notifier  status.Notifier
	Logger    *slog.Logger
	Hooks     Hooks
}

// Session is one editor instance.
type Session struct {
	listingOpts listing.Options
	taxonomy    *taxonomy.Taxonomy
	converter   markup.Converter
	logger      *slog.Logger
	hooks       Hooks

	mu          sync.Mutex
	idle        *sync.Cond
	active      int
	state       State
	closed      bool
	agg         *listing.Aggregate
	bg          context.Context
	groups      map[Group]*groupState
	unsubscribe []func()

	ready      chan struct{}
	loadFailed chan struct{}
	loadErr    error
}

// New creates an uninitialized session.
func New(opts Options) *Session {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	listingOpts := opts.Listing
	listingOpts.Notifier = status.OrNop(opts.Notifier)
	listingOpts.Logger = log

	s := &Session{
		listingOpts: listingOpts,
		taxonomy:    opts.Taxonomy,
		converter:   opts.Converter,
		logger:      log.With("component", "editor"),
		hooks:       opts.Hooks,
		groups:      make(map[Group]*groupState, len(Groups)),
		ready:       make(chan struct{}),
		loadFailed:  make(chan struct{}),
	}
	s.idle = sync.NewCond(&s.mu)
	for _, g := range Groups {
		s.groups[g] = &groupState{}
	}
	return s
}

// Start resolves the listing identifier from rawQuery and begins loading.
// It returns once the fetches are issued; use WaitReady to wait for the
// listing. Background saves started later are not cancelled by ctx.
func (s *Session) Start(ctx context.Context, rawQuery string) error {
	identifier := listing.ResolveIdentifier(rawQuery)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state != StateUninitialized {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.agg = listing.New(identifier, s.listingOpts)
	s.bg = context.WithoutCancel(ctx)
	s.state = StateLoading
	s.unsubscribe = append(s.unsubscribe,
		s.agg.Subscribe(func(c listing.Change) {
			s.hooks.onChange(Event{Source: SourceListing, Kind: string(c.Kind)})
		}),
		s.agg.Contacts().Subscribe(func(c resource.Change[listing.Contact]) {
			s.hooks.onChange(Event{Source: SourceContacts, Kind: string(c.Kind)})
		}),
	)
	s.active++
	s.mu.Unlock()

	s.logger.Info("loading listing", "identifier", identifier)
	go s.load(ctx)
	return nil
}

// load fetches the listing, its contacts and the taxonomy concurrently. The
// session turns Ready as soon as the listing arrives.
func (s *Session) load(ctx context.Context) {
	defer s.done()

	var g errgroup.Group
	g.Go(func() error {
		if err := s.agg.Fetch(ctx); err != nil {
			s.mu.Lock()
			s.loadErr = err
			s.mu.Unlock()
			close(s.loadFailed)
			s.report("load listing", err)
			return err
		}

		s.mu.Lock()
		s.state = StateReady
		s.mu.Unlock()
		close(s.ready)

		s.logger.Info("listing ready", "identifier", s.agg.Identifier())
		s.hooks.afterLoad(s.agg.Snapshot())
		return nil
	})
	g.Go(func() error {
		if _, err := s.agg.Contacts().FetchAll(ctx); err != nil {
			s.report("load contacts", err)
			return err
		}
		return nil
	})
	if s.taxonomy != nil {
		g.Go(func() error {
			if err := s.taxonomy.Fetch(ctx); err != nil {
				s.report("load categories", err)
				return err
			}
			return nil
		})
	}
	_ = g.Wait()
}

// WaitReady blocks until the listing is loaded, its fetch fails, or ctx is
// done.
func (s *Session) WaitReady(ctx context.Context) error {
	s.mu.Lock()
	started := s.state != StateUninitialized
	s.mu.Unlock()
	if !started {
		return ErrNotReady
	}

	select {
	case <-s.ready:
		return nil
	case <-s.loadFailed:
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.loadErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Wait blocks until every background load and save has settled.
func (s *Session) Wait() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for s.active > 0 {
		s.idle.Wait()
	}
}

// Close releases the session's model listeners and runs BeforeClose.
// Actions after Close fail with ErrClosed. Saves already in flight are not
// cancelled.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	for _, fn := range unsubscribe {
		fn()
	}
	s.hooks.beforeClose()
	s.logger.Debug("session closed")
}

// State returns the lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Aggregate returns the listing aggregate, or nil before Start.
func (s *Session) Aggregate() *listing.Aggregate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agg
}

// Listing returns a copy of the in-memory listing.
func (s *Session) Listing() (listing.Listing, error) {
	agg, err := s.readyAggregate()
	if err != nil {
		return listing.Listing{}, err
	}
	return agg.Snapshot(), nil
}

// Rows returns the flattened tag rows for display.
func (s *Session) Rows() ([]tagmap.Row, error) {
	l, err := s.Listing()
	if err != nil {
		return nil, err
	}
	return l.Tags.Rows(), nil
}

// Contacts returns the in-memory contacts.
func (s *Session) Contacts() ([]listing.Contact, error) {
	agg, err := s.readyAggregate()
	if err != nil {
		return nil, err
	}
	return agg.Contacts().Records(), nil
}

// CategorySuggestions returns taxonomy categories matching term.
func (s *Session) CategorySuggestions(term string) []string {
	if s.taxonomy == nil {
		return nil
	}
	return s.taxonomy.MatchCategories(term)
}

// SubcategorySuggestions returns the taxonomy subcategories of a display
// category matching term.
func (s *Session) SubcategorySuggestions(category, term string) []string {
	if s.taxonomy == nil {
		return nil
	}
	return s.taxonomy.MatchSubcategories(category, term)
}

// AddTag appends subcategory under a category typed in display form.
func (s *Session) AddTag(category, subcategory string) error {
	agg, err := s.readyAggregate()
	if err != nil {
		return err
	}
	var tags *tagmap.TagMap
	agg.Mutate(func(l *listing.Listing) {
		l.Tags.AddSubcategory(tagmap.EncodeCategory(category), subcategory)
		tags = l.Tags.Clone()
	})
	s.persist(GroupTags, listing.Fields{Tags: tags})
	return nil
}

// DeleteTag removes subcategory from a category given as rendered in a tag
// row. Removing an absent tag still saves.
func (s *Session) DeleteTag(category, subcategory string) error {
	agg, err := s.readyAggregate()
	if err != nil {
		return err
	}
	var tags *tagmap.TagMap
	agg.Mutate(func(l *listing.Listing) {
		l.Tags.RemoveSubcategory(tagmap.EncodeCategory(category), subcategory)
		tags = l.Tags.Clone()
	})
	s.persist(GroupTags, listing.Fields{Tags: tags})
	return nil
}

// SaveName saves the name form: name, featured flag and thumbnail URL.
func (s *Session) SaveName(name string, featured bool, thumbnailURL string) error {
	agg, err := s.readyAggregate()
	if err != nil {
		return err
	}
	fields := listing.Fields{Name: &name, Featured: &featured, ThumbnailURL: &thumbnailURL}
	agg.Apply(fields)
	s.persist(GroupName, fields)
	return nil
}

// SaveAddress saves the address form.
func (s *Session) SaveAddress(address listing.Address) error {
	agg, err := s.readyAggregate()
	if err != nil {
		return err
	}
	fields := listing.Fields{Address: &address}
	agg.Apply(fields)
	s.persist(GroupAddress, fields)
	return nil
}

// SaveAbout converts the submitted rich text and saves it. A conversion
// failure is returned and nothing is saved.
func (s *Session) SaveAbout(ctx context.Context, html string) error {
	agg, err := s.readyAggregate()
	if err != nil {
		return err
	}
	about := html
	if s.converter != nil {
		if about, err = s.converter.Convert(ctx, html); err != nil {
			return err
		}
	}
	fields := listing.Fields{About: &about}
	agg.Apply(fields)
	s.persist(GroupAbout, fields)
	return nil
}

// AddContact appends a contact and creates it in the background. It returns
// the contact's client id.
func (s *Session) AddContact(contactType, value string) (string, error) {
	agg, err := s.readyAggregate()
	if err != nil {
		return "", err
	}
	contacts := agg.Contacts()
	cid := contacts.Add(listing.Contact{Type: contactType, Value: value})
	s.background("create contact", func(ctx context.Context) error {
		return contacts.Save(ctx, cid)
	})
	return cid, nil
}

// DeleteContact evicts the contact with the given server or client id and
// deletes it in the background.
func (s *Session) DeleteContact(key string) error {
	agg, err := s.readyAggregate()
	if err != nil {
		return err
	}
	contacts := agg.Contacts()
	removed, err := contacts.Remove(key)
	if err != nil {
		return err
	}
	s.background("delete contact", func(ctx context.Context) error {
		return contacts.DeleteRemote(ctx, removed)
	})
	return nil
}

func (s *Session) readyAggregate() (*listing.Aggregate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return nil, ErrClosed
	case s.state != StateReady:
		return nil, ErrNotReady
	default:
		return s.agg, nil
	}
}

// persist saves the whole record on behalf of group. fields holds the
// group's values after the edit. If the group already has a request in
// flight, fields becomes the single trailing persist: the in-flight response
// replaces the in-memory record, so fields are applied again before the
// trailing request is sent.
func (s *Session) persist(group Group, fields listing.Fields) {
	s.mu.Lock()
	gs := s.groups[group]
	if gs.inFlight {
		gs.pending = &fields
		s.mu.Unlock()
		return
	}
	gs.inFlight = true
	s.active++
	s.mu.Unlock()

	go func() {
		defer s.done()
		for {
			if err := s.agg.Persist(s.bg); err != nil {
				s.report("save "+string(group), err)
			}

			s.mu.Lock()
			next := gs.pending
			gs.pending = nil
			if next == nil {
				gs.inFlight = false
				s.mu.Unlock()
				return
			}
			s.mu.Unlock()

			s.agg.Apply(*next)
		}
	}()
}

// background runs fn as a tracked fire-and-forget operation.
func (s *Session) background(op string, fn func(ctx context.Context) error) {
	s.mu.Lock()
	s.active++
	ctx := s.bg
	s.mu.Unlock()

	go func() {
		defer s.done()
		if err := fn(ctx); err != nil {
			s.report(op, err)
		}
	}()
}

func (s *Session) done() {
	s.mu.Lock()
	s.active--
	if s.active == 0 {
		s.idle.Broadcast()
	}
	s.mu.Unlock()
}

func (s *Session) report(op string, err error) {
	s.logger.Error("operation failed", "op", op, "error", err)
	s.hooks.onError(op, err)
}
