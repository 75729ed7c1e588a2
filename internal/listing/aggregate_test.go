package listing_test

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolsen/tinyclassified/internal/errors"
	"github.com/rolsen/tinyclassified/internal/listing"
	"github.com/rolsen/tinyclassified/internal/listingtest"
	"github.com/rolsen/tinyclassified/internal/remote"
	"github.com/rolsen/tinyclassified/internal/status"
	"github.com/rolsen/tinyclassified/internal/tagmap"
)

func ptr[T any](v T) *T { return &v }

func newAggregate(t *testing.T, srv *listingtest.Server, identifier string, notifier status.Notifier) *listing.Aggregate {
	t.Helper()
	client, err := remote.New(remote.Options{
		BaseURL:     srv.URL,
		EmulateJSON: true,
		HTTPClient:  srv.Client(),
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return listing.New(identifier, listing.Options{
		Transport:          client,
		BasePath:           listingtest.ContentPath,
		ContactResource:    "contact",
		ContactResponseKey: "contact",
		Notifier:           notifier,
	})
}

func bakery() listingtest.Listing {
	tags := tagmap.New()
	tags.AddSubcategory("Food_slash_Drink", "Bakery")
	return listingtest.Listing{
		AuthorEmail: listingtest.CurrentUser,
		Name:        "Ava's",
		About:       "Fresh bread daily.",
		Address:     map[string]string{"city": "Boulder", "state": "CO"},
		Tags:        *tags,
		Slugs:       []string{"Food_slash_Drink/Bakery/Ava's"},
	}
}

func TestResolveIdentifier(t *testing.T) {
	tests := []struct {
		name     string
		rawQuery string
		want     string
	}{
		{"no query", "", listing.CurrentIdentifier},
		{"unrelated parameter", "tab=about", listing.CurrentIdentifier},
		{"empty target", "target=", listing.CurrentIdentifier},
		{"escaped email", "target=a%40example.com", "a@example.com"},
		{"leading question mark", "?target=b%40example.com&tab=tags", "b@example.com"},
		{"plus is kept", "target=jo+ads%40example.com", "jo+ads@example.com"},
		{"malformed escape", "target=%zz", listing.CurrentIdentifier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, listing.ResolveIdentifier(tt.rawQuery))
		})
	}
}

func TestNew_DefaultsBeforeFetch(t *testing.T) {
	srv := listingtest.New(t)
	agg := newAggregate(t, srv, "a@example.com", nil)

	snap := agg.Snapshot()
	assert.Equal(t, "a@example.com", snap.Identifier)
	assert.Equal(t, "a@example.com", snap.AuthorEmail)
	assert.JSONEq(t, `"a@example.com"`, string(snap.ServerID))
	assert.Equal(t, "/resources/author/content/a%40example.com", agg.Path())
	assert.False(t, agg.Fetched())
}

func TestLoad_CurrentListingAndContacts(t *testing.T) {
	srv := listingtest.New(t)
	srv.PutListing(bakery())
	srv.PutContacts(listingtest.CurrentUser, listingtest.Contact{Type: "email", Value: listingtest.CurrentUser})
	agg := newAggregate(t, srv, listing.CurrentIdentifier, nil)

	require.NoError(t, agg.Load(context.Background()))

	snap := agg.Snapshot()
	assert.True(t, agg.Fetched())
	assert.Equal(t, listing.CurrentIdentifier, snap.Identifier)
	assert.Equal(t, listingtest.CurrentUser, snap.AuthorEmail)
	assert.Equal(t, "Ava's", snap.Name)
	assert.Equal(t, "Boulder", snap.Address.City)
	assert.Equal(t, []string{"Food_slash_Drink"}, snap.Tags.Categories())
	assert.Equal(t, 1, agg.Contacts().Len())

	var paths []string
	for _, r := range srv.RequestsFor(http.MethodGet) {
		paths = append(paths, r.Path)
	}
	assert.ElementsMatch(t, []string{
		"/resources/author/content/_current",
		"/resources/author/content/_current/contact",
	}, paths)
}

func TestLoad_FailureSurfacesNetworkError(t *testing.T) {
	srv := listingtest.New(t)
	agg := newAggregate(t, srv, "missing@example.com", nil)

	err := agg.Load(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNetwork))
	assert.False(t, agg.Fetched())
}

func TestLoad_ContactsFailureKeepsRecord(t *testing.T) {
	srv := listingtest.New(t)
	srv.PutListing(bakery())
	srv.Intercept(func(w http.ResponseWriter, r *http.Request) bool {
		if r.Method != http.MethodGet {
			return false
		}
		if strings.HasSuffix(r.URL.Path, "/contact") {
			http.Error(w, "boom", http.StatusInternalServerError)
			return true
		}
		time.Sleep(100 * time.Millisecond)
		return false
	})
	agg := newAggregate(t, srv, listing.CurrentIdentifier, nil)

	err := agg.Load(context.Background())

	require.Error(t, err)
	assert.True(t, agg.Fetched())
	assert.Equal(t, "Ava's", agg.Snapshot().Name)
}

func TestSave_TransmitsFullRecord(t *testing.T) {
	srv := listingtest.New(t)
	srv.PutListing(bakery())
	notes := &recorder{}
	agg := newAggregate(t, srv, listing.CurrentIdentifier, notes)
	require.NoError(t, agg.Fetch(context.Background()))

	require.NoError(t, agg.Save(context.Background(), listing.Fields{Name: ptr("Ava's Bakery")}))

	puts := srv.RequestsFor(http.MethodPut)
	require.Len(t, puts, 1)
	assert.Equal(t, "/resources/author/content/_current", puts[0].Path)
	assert.Equal(t, "application/x-www-form-urlencoded", puts[0].ContentType)

	var sent map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(puts[0].Model, &sent))
	assert.JSONEq(t, `"Ava's Bakery"`, string(sent["name"]))
	assert.JSONEq(t, `{"Food_slash_Drink": ["Bakery"]}`, string(sent["tags"]))
	assert.JSONEq(t, `{"address": "", "street": "", "street2": "", "city": "Boulder",
		"state": "CO", "zip": "", "country": ""}`, string(sent["address"]))
	assert.JSONEq(t, `"Fresh bread daily."`, string(sent["about"]))
	assert.JSONEq(t, `{"$oid": "000000000000000000000001"}`, string(sent["_id"]))
	assert.Contains(t, sent, "slugs")

	assert.Equal(t, []string{"Saved."}, notes.all())
}

func TestSave_AppliesResponse(t *testing.T) {
	srv := listingtest.New(t)
	srv.PutListing(bakery())
	agg := newAggregate(t, srv, listing.CurrentIdentifier, nil)
	require.NoError(t, agg.Fetch(context.Background()))

	tags := agg.Snapshot().Tags
	tags.AddSubcategory("Food_slash_Drink", "Cafe")
	require.NoError(t, agg.SaveTags(context.Background(), &tags))

	snap := agg.Snapshot()
	assert.Equal(t, []string{
		"Food_slash_Drink/Bakery/Ava's",
		"Food_slash_Drink/Cafe/Ava's",
	}, snap.Slugs, "slugs are recalculated by the server")
	assert.Equal(t, listing.CurrentIdentifier, snap.Identifier)
	assert.JSONEq(t, "true", string(snap.Extra["is_published"]))
}

func TestSave_FailureKeepsLocalEdit(t *testing.T) {
	srv := listingtest.New(t)
	srv.PutListing(bakery())
	notes := &recorder{}
	agg := newAggregate(t, srv, listing.CurrentIdentifier, notes)
	require.NoError(t, agg.Fetch(context.Background()))
	srv.Fail(http.MethodPut, http.StatusInternalServerError)

	err := agg.SaveAddress(context.Background(), listing.Address{City: "Denver"})

	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNetwork))
	assert.Equal(t, "Denver", agg.Snapshot().Address.City)
	assert.Empty(t, notes.all())

	stored, ok := srv.Listing(listingtest.CurrentUser)
	require.True(t, ok)
	assert.Equal(t, "Boulder", stored.Address["city"])
}

func TestSaveTags_RejectsNil(t *testing.T) {
	srv := listingtest.New(t)
	agg := newAggregate(t, srv, listing.CurrentIdentifier, nil)

	err := agg.SaveTags(context.Background(), nil)
	assert.True(t, errors.Is(err, errors.ErrValidation))
	assert.Empty(t, srv.Requests())
}

func TestSaveAbout(t *testing.T) {
	srv := listingtest.New(t)
	srv.PutListing(bakery())
	agg := newAggregate(t, srv, listing.CurrentIdentifier, nil)
	require.NoError(t, agg.Fetch(context.Background()))

	require.NoError(t, agg.SaveAbout(context.Background(), "**Open** daily"))

	stored, ok := srv.Listing(listingtest.CurrentUser)
	require.True(t, ok)
	assert.Equal(t, "**Open** daily", stored.About)
	assert.Equal(t, "Ava's", stored.Name)
}

// Two saves whose responses arrive out of order: the record ends up with
// whichever response was applied last, not the later-issued request.
func TestPersist_OutOfOrderResponses(t *testing.T) {
	srv := listingtest.New(t)
	srv.PutListing(bakery())
	agg := newAggregate(t, srv, listing.CurrentIdentifier, nil)
	require.NoError(t, agg.Fetch(context.Background()))

	arrived := make(chan struct{})
	release := make(chan struct{})
	var first sync.Once
	srv.Intercept(func(w http.ResponseWriter, r *http.Request) bool {
		if r.Method != http.MethodPut {
			return false
		}
		held := false
		first.Do(func() { held = true })
		if held {
			close(arrived)
			<-release
		}
		return false
	})

	agg.Apply(listing.Fields{Name: ptr("First")})
	firstDone := make(chan error, 1)
	go func() { firstDone <- agg.Persist(context.Background()) }()
	<-arrived

	require.NoError(t, agg.Save(context.Background(), listing.Fields{Name: ptr("Second")}))
	assert.Equal(t, "Second", agg.Snapshot().Name)

	close(release)
	require.NoError(t, <-firstDone)

	assert.Equal(t, "First", agg.Snapshot().Name)
	stored, ok := srv.Listing(listingtest.CurrentUser)
	require.True(t, ok)
	assert.Equal(t, "First", stored.Name)
}

func TestMutate_KeepsIdentifier(t *testing.T) {
	srv := listingtest.New(t)
	agg := newAggregate(t, srv, "a@example.com", nil)

	agg.Mutate(func(l *listing.Listing) {
		l.Identifier = "someone-else"
		l.Name = "Renamed"
	})

	snap := agg.Snapshot()
	assert.Equal(t, "a@example.com", snap.Identifier)
	assert.Equal(t, "Renamed", snap.Name)
}

func TestContacts_ScopedToIdentifier(t *testing.T) {
	srv := listingtest.New(t)
	srv.PutListing(listingtest.Listing{AuthorEmail: "a@example.com"})
	agg := newAggregate(t, srv, "a@example.com", nil)

	_, err := agg.Contacts().FetchAll(context.Background())
	require.NoError(t, err)
	cid, err := agg.Contacts().Create(context.Background(), listing.Contact{Type: "phone", Value: "555-0100"})
	require.NoError(t, err)

	contact, ok := agg.Contacts().Get(cid)
	require.True(t, ok)
	assert.Equal(t, "a@example.com", contact.Parent)
	assert.Equal(t, "0", contact.RecordID())

	reqs := srv.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "/resources/author/content/a%40example.com/contact", reqs[0].Path)
	assert.Equal(t, "/resources/author/content/a%40example.com/contact", reqs[1].Path)
}

func TestSubscribe_RecordChanges(t *testing.T) {
	srv := listingtest.New(t)
	srv.PutListing(bakery())
	agg := newAggregate(t, srv, listing.CurrentIdentifier, nil)

	var kinds []listing.ChangeKind
	unsubscribe := agg.Subscribe(func(c listing.Change) { kinds = append(kinds, c.Kind) })

	require.NoError(t, agg.Fetch(context.Background()))
	require.NoError(t, agg.Save(context.Background(), listing.Fields{Featured: ptr(true)}))
	unsubscribe()
	agg.Apply(listing.Fields{ThumbnailURL: ptr("https://img.example/ava.png")})

	assert.Equal(t, []listing.ChangeKind{
		listing.ChangeFetch,
		listing.ChangeEdit,
		listing.ChangeSync,
	}, kinds)
}

type recorder struct {
	mu   sync.Mutex
	seen []string
}

func (r *recorder) Flash(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, message)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.seen...)
}
