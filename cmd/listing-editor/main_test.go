package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rolsen/tinyclassified/internal/config"
	"github.com/rolsen/tinyclassified/internal/listingtest"
	"github.com/rolsen/tinyclassified/internal/tagmap"
)

// syncBuffer guards writes from background save indicators.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newBackend(t *testing.T) *listingtest.Server {
	t.Helper()
	for _, key := range []string{
		"ENV", "LOG_LEVEL", "LISTING_BASE_URL", "LISTING_PATH", "CONTACT_RESOURCE",
		"CATEGORIES_PATH", "EMULATE_JSON", "REQUESTS_PER_SECOND", "REQUEST_BURST",
		"USER_AGENT", "LISTING_TARGET",
	} {
		t.Setenv(key, "")
	}

	srv := listingtest.New(t, listingtest.WithCategories(`{"Pets_slash_Dogs": ["Grooming", "Walking"], "Food": ["Bakery"]}`))
	tags := tagmap.New()
	tags.AddSubcategory("Food", "Bakery")
	srv.PutListing(listingtest.Listing{
		AuthorEmail: listingtest.CurrentUser,
		Name:        "Ava's",
		Featured:    true,
		Address:     map[string]string{"city": "Boulder", "state": "CO"},
		Tags:        *tags,
	})
	srv.PutContacts(listingtest.CurrentUser, listingtest.Contact{Type: "email", Value: listingtest.CurrentUser})
	return srv
}

func execute(t *testing.T, srv *listingtest.Server, args ...string) (string, error) {
	t.Helper()
	out := &syncBuffer{}
	root := newRootCmd(out)
	root.SetErr(out)
	root.SetArgs(append([]string{
		"--base-url", srv.URL,
		"--env-file", filepath.Join(t.TempDir(), "missing.env"),
		"--log-level", "error",
	}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestShow(t *testing.T) {
	srv := newBackend(t)

	out, err := execute(t, srv, "show")
	require.NoError(t, err)

	assert.Contains(t, out, "Name:      Ava's\n")
	assert.Contains(t, out, "Featured:  true\n")
	assert.Contains(t, out, "Address:   Boulder, CO\n")
	assert.Contains(t, out, "  Food / Bakery\n")
	assert.Contains(t, out, "  0\temail\towner@example.com\n")
}

func TestTagsAdd(t *testing.T) {
	srv := newBackend(t)

	out, err := execute(t, srv, "tags", "add", "Pets/Dogs", "Walking")
	require.NoError(t, err)

	assert.Contains(t, out, "Food / Bakery\nPets/Dogs / Walking\n")
	assert.Contains(t, out, "✓ Saved.\n")
	stored, ok := srv.Listing(listingtest.CurrentUser)
	require.True(t, ok)
	assert.True(t, stored.Tags.Has("Pets_slash_Dogs"))
}

func TestTagsRemove(t *testing.T) {
	srv := newBackend(t)

	_, err := execute(t, srv, "tags", "rm", "Food", "Bakery")
	require.NoError(t, err)

	stored, ok := srv.Listing(listingtest.CurrentUser)
	require.True(t, ok)
	assert.Zero(t, stored.Tags.Len())
}

func TestContacts(t *testing.T) {
	srv := newBackend(t)

	out, err := execute(t, srv, "contacts", "add", "phone", "555-0100")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ contact added\n")
	require.Len(t, srv.Contacts(listingtest.CurrentUser), 2)

	out, err = execute(t, srv, "contacts", "list")
	require.NoError(t, err)
	assert.Equal(t, "0\temail\towner@example.com\n1\tphone\t555-0100\n", out)

	_, err = execute(t, srv, "contacts", "rm", "0")
	require.NoError(t, err)
	contacts := srv.Contacts(listingtest.CurrentUser)
	require.Len(t, contacts, 1)
	assert.Equal(t, "phone", contacts[0].Type)

	_, err = execute(t, srv, "contacts", "rm", "42")
	assert.Error(t, err)
}

func TestNameSetKeepsUnsetFields(t *testing.T) {
	srv := newBackend(t)

	_, err := execute(t, srv, "name", "set", "Ava's Bakery", "--thumbnail", "https://img.example/ava.png")
	require.NoError(t, err)

	stored, ok := srv.Listing(listingtest.CurrentUser)
	require.True(t, ok)
	assert.Equal(t, "Ava's Bakery", stored.Name)
	assert.True(t, stored.Featured)
	assert.Equal(t, "https://img.example/ava.png", stored.ThumbnailURL)
	assert.Equal(t, []string{"Food/Bakery/Ava's-Bakery"}, stored.Slugs)
}

func TestAddressSetMergesFlags(t *testing.T) {
	srv := newBackend(t)

	_, err := execute(t, srv, "address", "set", "--city", "Denver", "--zip", "80202")
	require.NoError(t, err)

	stored, ok := srv.Listing(listingtest.CurrentUser)
	require.True(t, ok)
	assert.Equal(t, "Denver", stored.Address["city"])
	assert.Equal(t, "CO", stored.Address["state"])
	assert.Equal(t, "80202", stored.Address["zip"])
}

func TestAboutSet(t *testing.T) {
	srv := newBackend(t)
	path := filepath.Join(t.TempDir(), "about.html")
	require.NoError(t, os.WriteFile(path, []byte("<p><strong>Fresh</strong> bread daily.</p>"), 0o600))

	_, err := execute(t, srv, "about", "set", path)
	require.NoError(t, err)

	stored, ok := srv.Listing(listingtest.CurrentUser)
	require.True(t, ok)
	assert.Equal(t, "**Fresh** bread daily.", stored.About)
}

func TestAboutSetMissingFile(t *testing.T) {
	srv := newBackend(t)

	_, err := execute(t, srv, "about", "set", filepath.Join(t.TempDir(), "missing.html"))
	require.Error(t, err)
	assert.Empty(t, srv.RequestsFor("PUT"))
}

func TestCategories(t *testing.T) {
	srv := newBackend(t)

	out, err := execute(t, srv, "categories")
	require.NoError(t, err)
	assert.Equal(t, "Pets/Dogs\nFood\n", out)

	out, err = execute(t, srv, "categories", "Pets/Dogs", "--match", "walk")
	require.NoError(t, err)
	assert.Equal(t, "Walking\n", out)
}

func TestTargetFlag(t *testing.T) {
	srv := newBackend(t)
	srv.PutListing(listingtest.Listing{AuthorEmail: "a@example.com", Name: "Other"})

	out, err := execute(t, srv, "--target", "a@example.com", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "Name:      Other\n")
}

func TestMissingListing(t *testing.T) {
	srv := newBackend(t)

	_, err := execute(t, srv, "--target", "nobody@example.com", "show")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load listing")
}

func TestInvalidConfig(t *testing.T) {
	srv := newBackend(t)

	_, err := execute(t, srv, "--env", "qa", "show")
	assert.Error(t, err)
}

func TestSetup_FailedBootstrapShutsDownContainer(t *testing.T) {
	newBackend(t)
	a := &app{flags: config.Flags{
		Env:     "qa",
		EnvFile: filepath.Join(t.TempDir(), "missing.env"),
	}}

	err := a.setup(&cobra.Command{})

	require.Error(t, err)
	assert.Nil(t, a.injector)
	assert.Nil(t, a.factory)
}
