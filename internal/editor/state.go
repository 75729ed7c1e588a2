package editor

import "github.com/rolsen/tinyclassified/internal/listing"

// State is the lifecycle state of a Session.
type State int

// Session states. A session never leaves Loading when the listing fetch
// fails, and there is no separate saving state: saves run while Ready.
const (
	StateUninitialized State = iota
	StateLoading
	StateReady
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Group is a set of fields saved together by one form.
type Group string

// Field groups.
const (
	GroupName    Group = "name" // name, featured and thumbnail
	GroupTags    Group = "tags"
	GroupAddress Group = "address"
	GroupAbout   Group = "about"
)

// Groups lists every field group.
var Groups = []Group{GroupName, GroupTags, GroupAddress, GroupAbout}

// groupState tracks the persist of one group. At most one request per group
// is in flight; saves arriving meanwhile collapse into one trailing persist
// carrying the latest values.
type groupState struct {
	inFlight bool
	pending  *listing.Fields
}
