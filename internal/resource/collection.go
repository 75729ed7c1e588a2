// Package resource implements child collections scoped to a parent record.
//
// A collection lives at <base>/<escaped parent id>/<name>. Creates and
// destroys are optimistic: the in-memory set changes before the request is
// issued and is not rolled back when the request fails.
package resource

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"github.com/rolsen/tinyclassified/internal/errors"
	"github.com/rolsen/tinyclassified/internal/events"
	"github.com/rolsen/tinyclassified/internal/id"
	"github.com/rolsen/tinyclassified/internal/logger"
	"github.com/rolsen/tinyclassified/internal/remote"
	"github.com/rolsen/tinyclassified/internal/status"
)

// Transport is the subset of remote.Client a collection needs.
type Transport interface {
	GetJSON(ctx context.Context, resource, path string, out any) error
	SendJSON(ctx context.Context, resource, method, path string, in, out any) error
	Delete(ctx context.Context, resource, path string) error
}

// Record is implemented by pointers to record types embedding Meta.
type Record interface {
	RecordID() string
	ClientID() string
	setClientID(string)
}

// Parented is implemented by records that remember their owner. The
// collection sets the parent on create, before the record is persisted.
type Parented interface {
	SetParent(parent string)
}

// ChangeKind identifies a collection change.
type ChangeKind string

// Collection changes.
const (
	ChangeReset  ChangeKind = "reset"
	ChangeAdd    ChangeKind = "add"
	ChangeSync   ChangeKind = "sync"
	ChangeRemove ChangeKind = "remove"
)

// Change describes one mutation of the in-memory set. Record is a copy taken
// when the change happened.
type Change[T any] struct {
	Kind   ChangeKind
	Record T
}

// Options configures a Collection.
type Options struct {
	Transport Transport
	// BasePath is the parent resource root, e.g. /resources/author/content.
	BasePath string
	// Parent is the raw (unescaped) parent identifier.
	Parent string
	// Name is the child resource name, e.g. contact.
	Name string
	// ResponseKey unwraps create responses shaped {"<key>": {...}}. Empty
	// means the response is the record itself.
	ResponseKey string
	Notifier    status.Notifier
	Logger      *slog.Logger
}

// Collection is the in-memory set of child records for one parent. T is the
// record type and P its pointer type.
type Collection[T any, P interface {
	*T
	Record
}] struct {
	transport   Transport
	path        string
	parent      string
	name        string
	responseKey string
	notifier    status.Notifier
	logger      *slog.Logger

	mu      sync.Mutex
	records []P
	changes events.Bus[Change[T]]
}

// New creates an empty collection. Nothing is fetched until FetchAll.
func New[T any, P interface {
	*T
	Record
}](opts Options) *Collection[T, P] {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &Collection[T, P]{
		transport:   opts.Transport,
		path:        remote.JoinPath(opts.BasePath, remote.EscapeSegment(opts.Parent), opts.Name),
		parent:      opts.Parent,
		name:        opts.Name,
		responseKey: opts.ResponseKey,
		notifier:    status.OrNop(opts.Notifier),
		logger:      log.With("collection", opts.Name, "parent", opts.Parent),
	}
}

// Path returns the collection endpoint.
func (c *Collection[T, P]) Path() string { return c.path }

// Parent returns the raw parent identifier.
func (c *Collection[T, P]) Parent() string { return c.parent }

// FetchAll replaces the in-memory set with the server's. A null body is an
// empty collection. On failure the current set is left untouched.
func (c *Collection[T, P]) FetchAll(ctx context.Context) ([]T, error) {
	var fetched []P
	if err := c.transport.GetJSON(ctx, c.name, c.path, &fetched); err != nil {
		c.logger.Warn("fetch failed", "error", err)
		return nil, err
	}
	fetched = slices.DeleteFunc(fetched, func(p P) bool { return p == nil })

	c.mu.Lock()
	for _, p := range fetched {
		p.setClientID(id.MustGenerate(c.name))
	}
	c.records = fetched
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	var zero T
	c.changes.Emit(Change[T]{Kind: ChangeReset, Record: zero})
	return snapshot, nil
}

// Create appends rec to the in-memory set and persists it. It returns the
// client id assigned to the record. On success the server's answer is merged
// into the record, giving it a server id. On failure the record stays in the
// set and the error is returned.
func (c *Collection[T, P]) Create(ctx context.Context, rec T) (string, error) {
	cid := c.Add(rec)
	return cid, c.Save(ctx, cid)
}

// Add appends rec to the in-memory set without persisting it and returns its
// client id. Records that implement Parented get the collection's parent.
func (c *Collection[T, P]) Add(rec T) string {
	p := P(&rec)
	if parented, ok := any(p).(Parented); ok {
		parented.SetParent(c.parent)
	}
	cid := id.MustGenerate(c.name)
	p.setClientID(cid)

	c.mu.Lock()
	c.records = append(c.records, p)
	added := *p
	c.mu.Unlock()

	c.changes.Emit(Change[T]{Kind: ChangeAdd, Record: added})
	c.notifier.Flash(c.name + " added")
	return cid
}

// Save POSTs the record with client id cid and merges the response into it.
// The merge is skipped when the record was removed in the meantime.
func (c *Collection[T, P]) Save(ctx context.Context, cid string) error {
	c.mu.Lock()
	i := slices.IndexFunc(c.records, func(p P) bool { return p.ClientID() == cid })
	if i < 0 {
		c.mu.Unlock()
		return errors.NotFoundf("%s %q not found", c.name, cid)
	}
	outgoing := *c.records[i]
	c.mu.Unlock()

	var raw json.RawMessage
	if err := c.transport.SendJSON(ctx, c.name, http.MethodPost, c.path, outgoing, &raw); err != nil {
		c.logger.Warn("create failed", "cid", cid, "error", err)
		return err
	}

	body, err := c.unwrap(raw)
	if err != nil {
		c.logger.Warn("create response unreadable", "cid", cid, "error", err)
		return err
	}
	if body == nil {
		return nil
	}

	c.mu.Lock()
	i = slices.IndexFunc(c.records, func(p P) bool { return p.ClientID() == cid })
	if i < 0 {
		c.mu.Unlock()
		return nil
	}
	updated := *c.records[i]
	if err := json.Unmarshal(body, P(&updated)); err != nil {
		c.mu.Unlock()
		return errors.Networkf("POST %s: decode %s", c.path, c.name).WithCause(err)
	}
	P(&updated).setClientID(cid)
	*c.records[i] = updated
	c.mu.Unlock()

	c.changes.Emit(Change[T]{Kind: ChangeSync, Record: updated})
	return nil
}

// Destroy evicts the record whose server id or client id equals key and, if
// it was ever persisted, deletes it remotely. The eviction is not undone when
// the request fails. Destroying an unknown key is a NOT_FOUND error.
func (c *Collection[T, P]) Destroy(ctx context.Context, key string) error {
	removed, err := c.Remove(key)
	if err != nil {
		return err
	}
	return c.DeleteRemote(ctx, removed)
}

// Remove evicts the record whose server id or client id equals key and
// returns it.
func (c *Collection[T, P]) Remove(key string) (T, error) {
	c.mu.Lock()
	i := c.indexLocked(key)
	if i < 0 {
		c.mu.Unlock()
		var zero T
		return zero, errors.NotFoundf("%s %q not found", c.name, key)
	}
	removed := *c.records[i]
	c.records = slices.Delete(c.records, i, i+1)
	c.mu.Unlock()

	c.changes.Emit(Change[T]{Kind: ChangeRemove, Record: removed})
	c.notifier.Flash(c.name + " removed")
	return removed, nil
}

// DeleteRemote issues the DELETE for a removed record. Records that never
// acquired a server id need no request.
func (c *Collection[T, P]) DeleteRemote(ctx context.Context, rec T) error {
	serverID := P(&rec).RecordID()
	if serverID == "" {
		return nil
	}
	path := remote.JoinPath(c.path, remote.EscapeSegment(serverID))
	if err := c.transport.Delete(ctx, c.name, path); err != nil {
		c.logger.Warn("destroy failed", "id", serverID, "error", err)
		return err
	}
	return nil
}

// Records returns copies of the in-memory records in collection order.
func (c *Collection[T, P]) Records() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Get returns a copy of the record whose server id or client id equals key.
func (c *Collection[T, P]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexLocked(key); i >= 0 {
		return *c.records[i], true
	}
	var zero T
	return zero, false
}

// Len returns the number of in-memory records.
func (c *Collection[T, P]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.records)
}

// Subscribe registers fn for every change and returns its unsubscribe
// function.
func (c *Collection[T, P]) Subscribe(fn func(Change[T])) func() {
	return c.changes.Subscribe(fn)
}

func (c *Collection[T, P]) indexLocked(key string) int {
	if key == "" {
		return -1
	}
	return slices.IndexFunc(c.records, func(p P) bool {
		return p.RecordID() == key || p.ClientID() == key
	})
}

func (c *Collection[T, P]) snapshotLocked() []T {
	out := make([]T, len(c.records))
	for i, p := range c.records {
		out[i] = *p
	}
	return out
}

// unwrap returns the record body of a create response, or nil when the
// server sent nothing.
func (c *Collection[T, P]) unwrap(raw json.RawMessage) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	if c.responseKey == "" {
		return raw, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, errors.Networkf("POST %s: decode %s", c.path, c.name).WithCause(err)
	}
	if inner, ok := envelope[c.responseKey]; ok {
		return inner, nil
	}
	return raw, nil
}
