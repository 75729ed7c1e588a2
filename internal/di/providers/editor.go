package providers

import (
	"net/url"

	"github.com/samber/do/v2"

	"github.com/rolsen/tinyclassified/internal/config"
	"github.com/rolsen/tinyclassified/internal/editor"
	"github.com/rolsen/tinyclassified/internal/listing"
	"github.com/rolsen/tinyclassified/internal/logger"
	"github.com/rolsen/tinyclassified/internal/markup"
	"github.com/rolsen/tinyclassified/internal/status"
	"github.com/rolsen/tinyclassified/internal/taxonomy"
)

// contactResponseKey wraps the record in contact create responses.
const contactResponseKey = "contact"

// ProvideConverter provides the about-text converter.
func ProvideConverter(i do.Injector) (markup.Converter, error) {
	conv, err := markup.New(markup.DefaultOptions())
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// SessionFactory builds editor sessions for the configured listing.
type SessionFactory struct {
	opts   editor.Options
	target string
}

// New returns an unstarted session using hooks.
func (f *SessionFactory) New(hooks editor.Hooks) *editor.Session {
	opts := f.opts
	opts.Hooks = hooks
	return editor.New(opts)
}

// Query returns the raw query a session is started with.
func (f *SessionFactory) Query() string {
	if f.target == "" {
		return ""
	}
	return url.Values{listing.TargetParam: {f.target}}.Encode()
}

// ProvideSessionFactory provides the editor session factory.
func ProvideSessionFactory(i do.Injector) (*SessionFactory, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	client := do.MustInvoke[*RemoteClientHandle](i)
	notifier := do.MustInvoke[status.Notifier](i)
	tax := do.MustInvoke[*taxonomy.Taxonomy](i)
	conv := do.MustInvoke[markup.Converter](i)

	return &SessionFactory{
		opts: editor.Options{
			Listing: listing.Options{
				Transport:          client.Client,
				BasePath:           cfg.Remote.ListingPath,
				ContactResource:    cfg.Remote.ContactResource,
				ContactResponseKey: contactResponseKey,
			},
			Taxonomy:  tax,
			Converter: conv,
			Notifier:  notifier,
			Logger:    log.Logger,
		},
		target: cfg.Editor.Target,
	}, nil
}
