package resource

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/rolsen/tinyclassified/internal/errors"
)

// ID is a server-assigned record id. The backend hands out integers for
// child records, but string ids are accepted as well.
type ID string

// UnmarshalJSON accepts a JSON number, string or null.
func (i *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*i = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return errors.Wrap(err, errors.CodeInternal, "decode id")
		}
		*i = ID(s)
		return nil
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return errors.Wrap(err, errors.CodeInternal, "decode id")
		}
		*i = ID(n.String())
		return nil
	}
}

// MarshalJSON writes canonical integer ids as numbers and everything else as
// strings.
func (i ID) MarshalJSON() ([]byte, error) {
	if n, err := strconv.ParseInt(string(i), 10, 64); err == nil && strconv.FormatInt(n, 10) == string(i) {
		return []byte(i), nil
	}
	return json.Marshal(string(i))
}

// String implements fmt.Stringer.
func (i ID) String() string { return string(i) }

// Meta carries the identity of a child record. Embed it in record types to
// satisfy Record.
type Meta struct {
	ID  ID `json:"_id,omitempty"`
	cid string
}

// RecordID returns the server id, or "" until the record is persisted.
func (m *Meta) RecordID() string { return string(m.ID) }

// ClientID returns the local id assigned when the record entered a
// collection.
func (m *Meta) ClientID() string { return m.cid }

// IsNew reports whether the record has no server id yet.
func (m *Meta) IsNew() bool { return m.ID == "" }

func (m *Meta) setClientID(cid string) { m.cid = cid }
