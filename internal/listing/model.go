package listing

import (
	"bytes"
	"encoding/json"
	"maps"
	"slices"

	"github.com/rolsen/tinyclassified/internal/resource"
	"github.com/rolsen/tinyclassified/internal/tagmap"
)

// CurrentIdentifier selects the listing owned by the signed-in principal.
const CurrentIdentifier = "_current"

// Address is the postal address of a listing. Every field is optional.
type Address struct {
	Address string `json:"address"`
	Street  string `json:"street"`
	Street2 string `json:"street2"`
	City    string `json:"city"`
	State   string `json:"state"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
}

// Listing is the record being edited.
//
// Identifier is the key the record is addressed by and never changes after
// the aggregate is created. ServerID is whatever "_id" the backend sent and
// is echoed back verbatim on save. Fields the editor does not know about are
// kept in Extra so a full-record save does not drop them.
type Listing struct {
	Identifier   string          `json:"-"`
	ServerID     json.RawMessage `json:"_id,omitempty"`
	AuthorEmail  string          `json:"author_email"`
	Name         string          `json:"name"`
	About        string          `json:"about"`
	Address      Address         `json:"address"`
	Tags         tagmap.TagMap   `json:"tags"`
	Slugs        []string        `json:"slugs"`
	Featured     bool            `json:"featured"`
	ThumbnailURL string          `json:"thumbnail_url"`

	Extra map[string]json.RawMessage `json:"-"`
}

// listingJSON has Listing's fields without its methods.
type listingJSON Listing

var knownFields = []string{
	"_id", "author_email", "name", "about", "address",
	"tags", "slugs", "featured", "thumbnail_url",
}

// newListing returns the empty record for identifier. Until the first fetch
// the identifier stands in for both the server id and the author email.
func newListing(identifier string) Listing {
	serverID, _ := json.Marshal(identifier)
	return Listing{
		Identifier:  identifier,
		ServerID:    serverID,
		AuthorEmail: identifier,
		Tags:        *tagmap.New(),
		Slugs:       []string{},
	}
}

// empty reports whether l carries nothing from the server, as when the
// backend answers null or an empty body.
func (l Listing) empty() bool {
	return len(l.ServerID) == 0 && l.AuthorEmail == ""
}

// Clone returns a deep copy.
func (l Listing) Clone() Listing {
	out := l
	out.ServerID = bytes.Clone(l.ServerID)
	out.Tags = *l.Tags.Clone()
	out.Slugs = slices.Clone(l.Slugs)
	if l.Extra != nil {
		out.Extra = maps.Clone(l.Extra)
	}
	return out
}

// MarshalJSON writes the full record, unknown fields included.
func (l Listing) MarshalJSON() ([]byte, error) {
	wire := listingJSON(l)
	if wire.Slugs == nil {
		wire.Slugs = []string{}
	}
	data, err := json.Marshal(wire)
	if err != nil || len(l.Extra) == 0 {
		return data, err
	}

	var buf bytes.Buffer
	buf.Write(data[:len(data)-1])
	for _, key := range slices.Sorted(maps.Keys(l.Extra)) {
		name, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(l.Extra[key])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON replaces every field but Identifier with the decoded record.
func (l *Listing) UnmarshalJSON(data []byte) error {
	wire := listingJSON{Tags: *tagmap.New()}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, key := range knownFields {
		delete(all, key)
	}
	wire.Extra = nil
	if len(all) > 0 {
		wire.Extra = all
	}
	if wire.Slugs == nil {
		wire.Slugs = []string{}
	}
	wire.Identifier = l.Identifier

	*l = Listing(wire)
	return nil
}

// Contact is one way of reaching a listing's author.
type Contact struct {
	resource.Meta
	Type  string `json:"type"`
	Value string `json:"value"`
	// Parent is the owning listing's author email, set when the contact is
	// created.
	Parent string `json:"parent,omitempty"`
}

// SetParent implements resource.Parented.
func (c *Contact) SetParent(parent string) { c.Parent = parent }

// Fields is a partial update. Nil fields are left unchanged.
type Fields struct {
	Name         *string
	About        *string
	Address      *Address
	Tags         *tagmap.TagMap
	Featured     *bool
	ThumbnailURL *string
}

// apply merges f into l.
func (f Fields) apply(l *Listing) {
	if f.Name != nil {
		l.Name = *f.Name
	}
	if f.About != nil {
		l.About = *f.About
	}
	if f.Address != nil {
		l.Address = *f.Address
	}
	if f.Tags != nil {
		l.Tags = *f.Tags.Clone()
	}
	if f.Featured != nil {
		l.Featured = *f.Featured
	}
	if f.ThumbnailURL != nil {
		l.ThumbnailURL = *f.ThumbnailURL
	}
}
