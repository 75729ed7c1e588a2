package editor

import (
	"github.com/rolsen/tinyclassified/internal/listing"
)

// EventSource names the model an Event came from.
type EventSource string

// Event sources.
const (
	SourceListing  EventSource = "listing"
	SourceContacts EventSource = "contacts"
)

// Event is a model change forwarded to OnChange.
type Event struct {
	Source EventSource
	Kind   string
}

// Hooks are optional callbacks. Nil fields are skipped.
type Hooks struct {
	// AfterLoad runs once the listing record is available.
	AfterLoad func(listing.Listing)
	// OnChange receives listing and contact changes until Close.
	OnChange func(Event)
	// OnError receives failures of background operations, named by op.
	OnError func(op string, err error)
	// BeforeClose runs during Close, after listeners are released.
	BeforeClose func()
}

func (h Hooks) afterLoad(l listing.Listing) {
	if h.AfterLoad != nil {
		h.AfterLoad(l)
	}
}

func (h Hooks) onChange(ev Event) {
	if h.OnChange != nil {
		h.OnChange(ev)
	}
}

func (h Hooks) onError(op string, err error) {
	if h.OnError != nil {
		h.OnError(op, err)
	}
}

func (h Hooks) beforeClose() {
	if h.BeforeClose != nil {
		h.BeforeClose()
	}
}
