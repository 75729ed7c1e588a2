// Package listingtest runs an in-memory listing backend for tests.
//
// It serves the author resources under /resources/author: the listing
// record, its contact sub-collection and the category taxonomy. PUT and POST
// bodies are accepted as JSON or as a form with a single "model" field.
package listingtest

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/rolsen/tinyclassified/internal/tagmap"
)

const (
	// Root is the path prefix of every author resource.
	Root = "/resources/author"
	// ContentPath is the listing collection root.
	ContentPath = Root + "/content"
	// CategoriesPath serves the taxonomy.
	CategoriesPath = Root + "/categories.json"
	// CurrentUser is the principal "_current" resolves to unless changed
	// with WithCurrentUser.
	CurrentUser = "owner@example.com"
	// SessionEmailKey names the email echoed next to created contacts.
	SessionEmailKey = "auth_user"
)

// Listing is the stored listing document.
type Listing struct {
	ID           json.RawMessage   `json:"_id,omitempty"`
	AuthorEmail  string            `json:"author_email"`
	Name         string            `json:"name"`
	About        string            `json:"about"`
	Address      map[string]string `json:"address,omitempty"`
	Tags         tagmap.TagMap     `json:"tags"`
	Slugs        []string          `json:"slugs"`
	Featured     bool              `json:"featured"`
	ThumbnailURL string            `json:"thumbnail_url"`
	IsPublished  bool              `json:"is_published,omitempty"`
}

// Contact is a stored contact entry.
type Contact struct {
	ID    int    `json:"_id"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Request is one request seen by the server.
type Request struct {
	Method      string
	Path        string // escaped, as sent
	ContentType string
	// Model is the JSON body, taken from the "model" form field when the
	// body was form-encoded.
	Model json.RawMessage
}

// Interceptor runs before routing. Returning true means it wrote the
// response and the route is skipped.
type Interceptor func(w http.ResponseWriter, r *http.Request) bool

// Option configures a Server.
type Option func(*Server)

// WithCurrentUser sets the email "_current" resolves to.
func WithCurrentUser(email string) Option {
	return func(s *Server) { s.currentUser = email }
}

// WithCategories sets the raw categories.json body.
func WithCategories(raw string) Option {
	return func(s *Server) { s.categories = []byte(raw) }
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// Server is the fake backend.
type Server struct {
	*httptest.Server

	logger      *slog.Logger
	currentUser string

	mu           sync.Mutex
	listings     map[string]*Listing
	contacts     map[string][]Contact
	nextContact  map[string]int
	nextObjectID int
	categories   []byte
	requests     []Request
	interceptors []Interceptor
}

// New starts a server and stops it when the test ends.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()

	s := &Server{
		logger:      slog.New(slog.DiscardHandler),
		currentUser: CurrentUser,
		listings:    make(map[string]*Listing),
		contacts:    make(map[string][]Contact),
		nextContact: make(map[string]int),
		categories:  []byte("{}"),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.Server = httptest.NewServer(s.routes())
	t.Cleanup(s.Close)
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.record)
	r.Use(s.intercept)

	r.Route(Root, func(r chi.Router) {
		r.Get("/categories.json", s.handleCategories)
		r.Route("/content/{email}", func(r chi.Router) {
			r.Get("/", s.handleReadListing)
			r.Put("/", s.handleUpdateListing)
			r.Post("/", s.handleUpdateListing)
			r.Get("/contact", s.handleIndexContacts)
			r.Post("/contact", s.handleCreateContact)
			r.Delete("/contact/{contactID}", s.handleDeleteContact)
		})
	})
	return r
}

// PutListing stores l under its author email, assigning an object id when l
// has none.
func (s *Server) PutListing(l Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(l.ID) == 0 {
		l.ID = s.newObjectIDLocked()
	}
	s.listings[strings.ToLower(l.AuthorEmail)] = &l
}

// Listing returns a copy of the stored listing.
func (s *Server) Listing(email string) (Listing, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[strings.ToLower(email)]
	if !ok {
		return Listing{}, false
	}
	out := *l
	out.Tags = *l.Tags.Clone()
	out.Slugs = slices.Clone(l.Slugs)
	return out, true
}

// PutContacts replaces the stored contacts of email, numbering them from
// zero.
func (s *Server) PutContacts(email string, contacts ...Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = strings.ToLower(email)
	stored := make([]Contact, 0, len(contacts))
	for i, c := range contacts {
		c.ID = i
		stored = append(stored, c)
	}
	s.contacts[email] = stored
	s.nextContact[email] = len(stored)
}

// Contacts returns the stored contacts of email.
func (s *Server) Contacts(email string) []Contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.contacts[strings.ToLower(email)])
}

// Requests returns every request seen so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

// RequestsFor returns the requests made with method.
func (s *Server) RequestsFor(method string) []Request {
	var out []Request
	for _, r := range s.Requests() {
		if r.Method == method {
			out = append(out, r)
		}
	}
	return out
}

// Intercept installs fn in front of every route.
func (s *Server) Intercept(fn Interceptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.interceptors = append(s.interceptors, fn)
}

// Fail makes every request with method answer status.
func (s *Server) Fail(method string, status int) {
	s.Intercept(func(w http.ResponseWriter, r *http.Request) bool {
		if r.Method != method {
			return false
		}
		writeText(w, status, http.StatusText(status))
		return true
	})
}

// record captures the request and its model before any handler runs. The
// body is restored so handlers can read it again.
func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		model, err := readModel(r)
		if err != nil {
			writeText(w, http.StatusBadRequest, err.Error())
			return
		}

		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method:      r.Method,
			Path:        r.URL.EscapedPath(),
			ContentType: r.Header.Get("Content-Type"),
			Model:       model,
		})
		s.mu.Unlock()

		next.ServeHTTP(w, r.WithContext(withModel(r.Context(), model)))
	})
}

func (s *Server) intercept(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		interceptors := slices.Clone(s.interceptors)
		s.mu.Unlock()

		for _, fn := range interceptors {
			if fn(w, r) {
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// readModel returns the JSON record carried by a PUT or POST, or nil.
func readModel(r *http.Request) (json.RawMessage, error) {
	if r.Body == nil || (r.Method != http.MethodPut && r.Method != http.MethodPost) {
		return nil, nil
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded") {
		if err := r.ParseForm(); err != nil {
			return nil, fmt.Errorf("parse form: %w", err)
		}
		model := r.PostForm.Get("model")
		if model == "" {
			return nil, nil
		}
		return json.RawMessage(model), nil
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if len(body) == 0 {
		return nil, nil
	}
	return json.RawMessage(body), nil
}

// emailParam resolves the {email} route parameter, mapping "_current" to
// the signed-in principal.
func (s *Server) emailParam(r *http.Request) string {
	raw := chi.URLParam(r, "email")
	email, err := url.PathUnescape(raw)
	if err != nil {
		email = raw
	}
	if email == "_current" {
		email = s.currentUser
	}
	return strings.ToLower(email)
}

func (s *Server) newObjectIDLocked() json.RawMessage {
	s.nextObjectID++
	return json.RawMessage(fmt.Sprintf(`{"$oid": "%024x"}`, s.nextObjectID))
}

// GET /resources/author/categories.json
func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	body := slices.Clone(s.categories)
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

// GET /resources/author/content/{email}
func (s *Server) handleReadListing(w http.ResponseWriter, r *http.Request) {
	email := s.emailParam(r)

	s.mu.Lock()
	l, ok := s.listings[email]
	var out Listing
	if ok {
		out = *l
	}
	s.mu.Unlock()

	if !ok {
		writeText(w, http.StatusNotFound, "Listing not found for author.")
		return
	}
	writeJSON(w, http.StatusOK, out, s.logger)
}

// PUT|POST /resources/author/content/{email}
//
// The route parameter is ignored: the record replaces the stored listing of
// its own author_email. Tags are sanitized and slugs recalculated before the
// record is stored and echoed back.
func (s *Server) handleUpdateListing(w http.ResponseWriter, r *http.Request) {
	var l Listing
	if err := json.Unmarshal(modelFrom(r.Context()), &l); err != nil {
		writeText(w, http.StatusBadRequest, "Invalid listing")
		return
	}
	if len(l.ID) == 0 || string(l.ID) == "null" {
		writeText(w, http.StatusInternalServerError, "Listing not yet saved to database")
		return
	}

	l.IsPublished = true
	l.Tags = sanitizeTags(l.Tags)
	l.Slugs = calculateSlugs(l.Tags, l.Name)

	s.mu.Lock()
	stored := l
	s.listings[strings.ToLower(l.AuthorEmail)] = &stored
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, l, s.logger)
}

// GET /resources/author/content/{email}/contact
func (s *Server) handleIndexContacts(w http.ResponseWriter, r *http.Request) {
	email := s.emailParam(r)

	s.mu.Lock()
	_, ok := s.listings[email]
	contacts := slices.Clone(s.contacts[email])
	s.mu.Unlock()

	if !ok {
		writeText(w, http.StatusNotFound, "Listing not found for author.")
		return
	}
	// An author without contacts has none on record, which the backend
	// serializes as null.
	if contacts == nil {
		writeJSON(w, http.StatusOK, nil, s.logger)
		return
	}
	writeJSON(w, http.StatusOK, contacts, s.logger)
}

// POST /resources/author/content/{email}/contact
func (s *Server) handleCreateContact(w http.ResponseWriter, r *http.Request) {
	email := s.emailParam(r)

	var in struct {
		Type  string `json:"type"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(modelFrom(r.Context()), &in); err != nil {
		writeText(w, http.StatusBadRequest, "Invalid contact")
		return
	}

	s.mu.Lock()
	if _, ok := s.listings[email]; !ok {
		s.listings[email] = &Listing{ID: s.newObjectIDLocked(), AuthorEmail: email}
	}
	contact := Contact{ID: s.nextContact[email], Type: in.Type, Value: in.Value}
	s.nextContact[email]++
	s.contacts[email] = append(s.contacts[email], contact)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"contact":       contact,
		SessionEmailKey: email,
	}, s.logger)
}

// DELETE /resources/author/content/{email}/contact/{contactID}
func (s *Server) handleDeleteContact(w http.ResponseWriter, r *http.Request) {
	email := s.emailParam(r)
	contactID, err := strconv.Atoi(chi.URLParam(r, "contactID"))
	if err != nil {
		writeText(w, http.StatusNotFound, "Contact not found")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	contacts := s.contacts[email]
	if len(contacts) == 0 {
		writeText(w, http.StatusNotFound, "Contact not found")
		return
	}
	s.contacts[email] = slices.DeleteFunc(contacts, func(c Contact) bool { return c.ID == contactID })
	writeText(w, http.StatusOK, "Contact deleted.")
}

// sanitizeTags encodes "/" in categories and subcategories, merging
// categories that collide once encoded.
func sanitizeTags(tags tagmap.TagMap) tagmap.TagMap {
	out := tagmap.New()
	for _, row := range tags.Rows() {
		out.AddSubcategory(tagmap.EncodeCategory(row.Key), tagmap.EncodeCategory(row.Subcategory))
	}
	return *out
}

// calculateSlugs builds one tag/subtag/name slug per subcategory.
func calculateSlugs(tags tagmap.TagMap, name string) []string {
	slugSafe := func(s string) string { return strings.ReplaceAll(s, " ", "-") }
	slugs := []string{}
	for _, row := range tags.Rows() {
		slugs = append(slugs, slugSafe(row.Key)+"/"+slugSafe(row.Subcategory)+"/"+slugSafe(name))
	}
	return slugs
}
