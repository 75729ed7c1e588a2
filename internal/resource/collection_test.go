package resource_test

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolsen/tinyclassified/internal/errors"
	"github.com/rolsen/tinyclassified/internal/id"
	"github.com/rolsen/tinyclassified/internal/listingtest"
	"github.com/rolsen/tinyclassified/internal/remote"
	"github.com/rolsen/tinyclassified/internal/resource"
	"github.com/rolsen/tinyclassified/internal/status"
)

const owner = "a@example.com"

type entry struct {
	resource.Meta
	Type   string `json:"type"`
	Value  string `json:"value"`
	Parent string `json:"parent,omitempty"`
}

func (e *entry) SetParent(parent string) { e.Parent = parent }

type flashes struct {
	mu   sync.Mutex
	seen []string
}

func (f *flashes) Flash(message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, message)
}

func (f *flashes) all() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.seen...)
}

func newCollection(t *testing.T, srv *listingtest.Server, notifier status.Notifier) *resource.Collection[entry, *entry] {
	t.Helper()
	client, err := remote.New(remote.Options{
		BaseURL:     srv.URL,
		EmulateJSON: true,
		HTTPClient:  srv.Client(),
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return resource.New[entry](resource.Options{
		Transport:   client,
		BasePath:    listingtest.ContentPath,
		Parent:      owner,
		Name:        "contact",
		ResponseKey: "contact",
		Notifier:    notifier,
	})
}

func seeded(t *testing.T) *listingtest.Server {
	t.Helper()
	srv := listingtest.New(t)
	srv.PutListing(listingtest.Listing{AuthorEmail: owner, Name: "Ava's Bakery"})
	srv.PutContacts(owner,
		listingtest.Contact{Type: "email", Value: owner},
		listingtest.Contact{Type: "phone", Value: "555-0100"},
	)
	return srv
}

func TestCollection_PathEscapesParent(t *testing.T) {
	srv := listingtest.New(t)
	c := newCollection(t, srv, nil)

	assert.Equal(t, "/resources/author/content/a%40example.com/contact", c.Path())
	assert.Equal(t, owner, c.Parent())
}

func TestFetchAll_ScopedToParent(t *testing.T) {
	srv := seeded(t)
	c := newCollection(t, srv, nil)

	records, err := c.FetchAll(context.Background())
	require.NoError(t, err)

	require.Len(t, records, 2)
	assert.Equal(t, "0", records[0].RecordID())
	assert.Equal(t, "email", records[0].Type)
	assert.Equal(t, "1", records[1].RecordID())
	assert.True(t, id.HasPrefix(records[1].ClientID(), "contact"))

	reqs := srv.RequestsFor(http.MethodGet)
	require.Len(t, reqs, 1)
	assert.Equal(t, "/resources/author/content/a%40example.com/contact", reqs[0].Path)
}

func TestFetchAll_NullIsEmpty(t *testing.T) {
	srv := listingtest.New(t)
	srv.PutListing(listingtest.Listing{AuthorEmail: owner})
	c := newCollection(t, srv, nil)

	records, err := c.FetchAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Zero(t, c.Len())
}

func TestFetchAll_FailureKeepsCurrentSet(t *testing.T) {
	srv := seeded(t)
	c := newCollection(t, srv, nil)
	_, err := c.FetchAll(context.Background())
	require.NoError(t, err)

	srv.Fail(http.MethodGet, http.StatusBadGateway)
	_, err = c.FetchAll(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNetwork))
	assert.Equal(t, 2, c.Len())
}

func TestCreate_SetsParentBeforePersist(t *testing.T) {
	srv := seeded(t)
	notes := &flashes{}
	c := newCollection(t, srv, notes)

	cid, err := c.Create(context.Background(), entry{Type: "web", Value: "https://ava.example"})
	require.NoError(t, err)

	posts := srv.RequestsFor(http.MethodPost)
	require.Len(t, posts, 1)
	assert.Equal(t, "/resources/author/content/a%40example.com/contact", posts[0].Path)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(posts[0].Model, &sent))
	assert.Equal(t, owner, sent["parent"])
	assert.Equal(t, "web", sent["type"])
	assert.NotContains(t, sent, "_id")

	got, ok := c.Get(cid)
	require.True(t, ok)
	assert.Equal(t, "2", got.RecordID(), "server id comes from the unwrapped response")
	assert.Equal(t, owner, got.Parent)
	assert.False(t, got.IsNew())
	assert.Equal(t, []string{"contact added"}, notes.all())
}

func TestCreate_FailureKeepsOptimisticRecord(t *testing.T) {
	srv := seeded(t)
	srv.Fail(http.MethodPost, http.StatusInternalServerError)
	c := newCollection(t, srv, nil)

	cid, err := c.Create(context.Background(), entry{Type: "phone", Value: "555-0199"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNetwork))
	require.Equal(t, 1, c.Len())
	got, ok := c.Get(cid)
	require.True(t, ok)
	assert.True(t, got.IsNew())
	assert.Len(t, srv.Contacts(owner), 2)
}

func TestDestroy_EvictsAndDeletes(t *testing.T) {
	srv := seeded(t)
	notes := &flashes{}
	c := newCollection(t, srv, notes)
	_, err := c.FetchAll(context.Background())
	require.NoError(t, err)

	require.NoError(t, c.Destroy(context.Background(), "1"))

	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("1")
	assert.False(t, ok)

	deletes := srv.RequestsFor(http.MethodDelete)
	require.Len(t, deletes, 1)
	assert.Equal(t, "/resources/author/content/a%40example.com/contact/1", deletes[0].Path)
	assert.Len(t, srv.Contacts(owner), 1)
	assert.Equal(t, []string{"contact removed"}, notes.all())
}

func TestDestroy_FailureDoesNotResurrect(t *testing.T) {
	srv := seeded(t)
	c := newCollection(t, srv, nil)
	_, err := c.FetchAll(context.Background())
	require.NoError(t, err)
	srv.Fail(http.MethodDelete, http.StatusInternalServerError)

	err = c.Destroy(context.Background(), "0")

	require.Error(t, err)
	assert.Equal(t, 1, c.Len())
	_, ok := c.Get("0")
	assert.False(t, ok)
	assert.Len(t, srv.Contacts(owner), 2)
}

func TestDestroy_UnsavedRecordSkipsRequest(t *testing.T) {
	srv := seeded(t)
	srv.Fail(http.MethodPost, http.StatusInternalServerError)
	c := newCollection(t, srv, nil)

	cid, err := c.Create(context.Background(), entry{Type: "phone", Value: "555-0199"})
	require.Error(t, err)

	require.NoError(t, c.Destroy(context.Background(), cid))
	assert.Zero(t, c.Len())
	assert.Empty(t, srv.RequestsFor(http.MethodDelete))
}

func TestDestroy_UnknownKey(t *testing.T) {
	srv := seeded(t)
	c := newCollection(t, srv, nil)

	err := c.Destroy(context.Background(), "42")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))

	err = c.Destroy(context.Background(), "")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestSubscribe_ReportsEveryChange(t *testing.T) {
	srv := seeded(t)
	c := newCollection(t, srv, nil)

	var kinds []resource.ChangeKind
	unsubscribe := c.Subscribe(func(ch resource.Change[entry]) {
		kinds = append(kinds, ch.Kind)
	})

	_, err := c.FetchAll(context.Background())
	require.NoError(t, err)
	cid, err := c.Create(context.Background(), entry{Type: "fax", Value: "555-0101"})
	require.NoError(t, err)
	require.NoError(t, c.Destroy(context.Background(), cid))

	unsubscribe()
	_, err = c.FetchAll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []resource.ChangeKind{
		resource.ChangeReset,
		resource.ChangeAdd,
		resource.ChangeSync,
		resource.ChangeRemove,
	}, kinds)
}

func TestRecords_ReturnsCopies(t *testing.T) {
	srv := seeded(t)
	c := newCollection(t, srv, nil)
	_, err := c.FetchAll(context.Background())
	require.NoError(t, err)

	records := c.Records()
	records[0].Value = "changed"

	got, ok := c.Get("0")
	require.True(t, ok)
	assert.Equal(t, owner, got.Value)
}

func TestAdd_IsLocalUntilSaved(t *testing.T) {
	srv := seeded(t)
	c := newCollection(t, srv, nil)

	cid := c.Add(entry{Type: "email", Value: "b@example.com"})

	assert.Equal(t, 1, c.Len())
	assert.Empty(t, srv.RequestsFor(http.MethodPost))

	require.NoError(t, c.Save(context.Background(), cid))
	assert.Len(t, srv.RequestsFor(http.MethodPost), 1)
	got, ok := c.Get(cid)
	require.True(t, ok)
	assert.Equal(t, "2", got.RecordID())
}

func TestSave_RecordRemovedWhileInFlight(t *testing.T) {
	srv := seeded(t)
	c := newCollection(t, srv, nil)
	cid := c.Add(entry{Type: "email", Value: "b@example.com"})

	srv.Intercept(func(w http.ResponseWriter, r *http.Request) bool {
		if r.Method == http.MethodPost {
			_, err := c.Remove(cid)
			assert.NoError(t, err)
		}
		return false
	})

	require.NoError(t, c.Save(context.Background(), cid))
	assert.Zero(t, c.Len())
}

func TestSave_UnknownClientID(t *testing.T) {
	srv := seeded(t)
	c := newCollection(t, srv, nil)

	err := c.Save(context.Background(), "contact-missing")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	assert.Empty(t, srv.Requests())
}
