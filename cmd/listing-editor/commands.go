package main

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rolsen/tinyclassified/internal/editor"
	"github.com/rolsen/tinyclassified/internal/listing"
	"github.com/rolsen/tinyclassified/internal/watcher"
)

func newShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the listing, its tags and contacts",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd.Context(), func(ctx context.Context, s *editor.Session) error {
				l, err := s.Listing()
				if err != nil {
					return err
				}
				contacts, err := s.Contacts()
				if err != nil {
					return err
				}
				printListing(cmd.OutOrStdout(), l, contacts)
				return nil
			})
		}),
	}
}

func newTagsCmd(a *app) *cobra.Command {
	tags := &cobra.Command{
		Use:   "tags",
		Short: "List, add or remove tags",
	}

	tags.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List tags as category / subcategory rows",
			Args:  cobra.NoArgs,
			RunE: a.run(func(cmd *cobra.Command, args []string) error {
				return a.withSession(cmd.Context(), func(ctx context.Context, s *editor.Session) error {
					return printRows(cmd.OutOrStdout(), s)
				})
			}),
		},
		&cobra.Command{
			Use:   "add <category> <subcategory>",
			Short: "Add a subcategory under a category, e.g. \"Pets/Dogs\" Grooming",
			Args:  cobra.ExactArgs(2),
			RunE: a.run(func(cmd *cobra.Command, args []string) error {
				return a.withSession(cmd.Context(), func(ctx context.Context, s *editor.Session) error {
					if err := s.AddTag(args[0], args[1]); err != nil {
						return err
					}
					return printRows(cmd.OutOrStdout(), s)
				})
			}),
		},
		&cobra.Command{
			Use:   "rm <category> <subcategory>",
			Short: "Remove a subcategory from a category",
			Args:  cobra.ExactArgs(2),
			RunE: a.run(func(cmd *cobra.Command, args []string) error {
				return a.withSession(cmd.Context(), func(ctx context.Context, s *editor.Session) error {
					if err := s.DeleteTag(args[0], args[1]); err != nil {
						return err
					}
					return printRows(cmd.OutOrStdout(), s)
				})
			}),
		},
	)
	return tags
}

func newContactsCmd(a *app) *cobra.Command {
	contacts := &cobra.Command{
		Use:   "contacts",
		Short: "List, add or remove contacts",
	}

	contacts.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List contacts",
			Args:  cobra.NoArgs,
			RunE: a.run(func(cmd *cobra.Command, args []string) error {
				return a.withSession(cmd.Context(), func(ctx context.Context, s *editor.Session) error {
					return printContacts(cmd.OutOrStdout(), s)
				})
			}),
		},
		&cobra.Command{
			Use:   "add <type> <value>",
			Short: "Add a contact, e.g. phone 555-0100",
			Args:  cobra.ExactArgs(2),
			RunE: a.run(func(cmd *cobra.Command, args []string) error {
				return a.withSession(cmd.Context(), func(ctx context.Context, s *editor.Session) error {
					_, err := s.AddContact(args[0], args[1])
					return err
				})
			}),
		},
		&cobra.Command{
			Use:   "rm <id>",
			Short: "Remove the contact with the given id",
			Args:  cobra.ExactArgs(1),
			RunE: a.run(func(cmd *cobra.Command, args []string) error {
				return a.withSession(cmd.Context(), func(ctx context.Context, s *editor.Session) error {
					return s.DeleteContact(args[0])
				})
			}),
		},
	)
	return contacts
}

func newNameCmd(a *app) *cobra.Command {
	var (
		featured  bool
		thumbnail string
	)
	set := &cobra.Command{
		Use:   "set <name>",
		Short: "Save the listing name with its featured flag and thumbnail",
		Args:  cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd.Context(), func(ctx context.Context, s *editor.Session) error {
				current, err := s.Listing()
				if err != nil {
					return err
				}
				if !cmd.Flags().Changed("featured") {
					featured = current.Featured
				}
				if !cmd.Flags().Changed("thumbnail") {
					thumbnail = current.ThumbnailURL
				}
				return s.SaveName(args[0], featured, thumbnail)
			})
		}),
	}
	set.Flags().BoolVar(&featured, "featured", false, "mark the listing as featured")
	set.Flags().StringVar(&thumbnail, "thumbnail", "", "thumbnail image URL")

	name := &cobra.Command{Use: "name", Short: "Edit the listing name"}
	name.AddCommand(set)
	return name
}

func newAddressCmd(a *app) *cobra.Command {
	var in listing.Address
	set := &cobra.Command{
		Use:   "set",
		Short: "Save the address; fields not given keep their value",
		Args:  cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd.Context(), func(ctx context.Context, s *editor.Session) error {
				current, err := s.Listing()
				if err != nil {
					return err
				}
				address := current.Address
				for _, field := range []struct {
					flag string
					dst  *string
					src  string
				}{
					{"address", &address.Address, in.Address},
					{"street", &address.Street, in.Street},
					{"street2", &address.Street2, in.Street2},
					{"city", &address.City, in.City},
					{"state", &address.State, in.State},
					{"zip", &address.Zip, in.Zip},
					{"country", &address.Country, in.Country},
				} {
					if cmd.Flags().Changed(field.flag) {
						*field.dst = field.src
					}
				}
				return s.SaveAddress(address)
			})
		}),
	}
	f := set.Flags()
	f.StringVar(&in.Address, "address", "", "address line")
	f.StringVar(&in.Street, "street", "", "street")
	f.StringVar(&in.Street2, "street2", "", "second street line")
	f.StringVar(&in.City, "city", "", "city")
	f.StringVar(&in.State, "state", "", "state")
	f.StringVar(&in.Zip, "zip", "", "postal code")
	f.StringVar(&in.Country, "country", "", "country")

	address := &cobra.Command{Use: "address", Short: "Edit the listing address"}
	address.AddCommand(set)
	return address
}

func newAboutCmd(a *app) *cobra.Command {
	var watch bool
	set := &cobra.Command{
		Use:   "set <file.html>",
		Short: "Convert an HTML file to markdown and save it as the about text",
		Long: `Convert an HTML file to markdown and save it as the about text.

With --watch the file is saved again every time it changes, until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			path := args[0]
			return a.withSession(cmd.Context(), func(ctx context.Context, s *editor.Session) error {
				save := func(ctx context.Context) error {
					html, err := os.ReadFile(path) //#nosec G304 -- path is the command argument
					if err != nil {
						return err
					}
					return s.SaveAbout(ctx, string(html))
				}
				if err := save(ctx); err != nil {
					return err
				}
				if !watch {
					return nil
				}

				w, err := watcher.New(path, a.log.WithComponent("watcher"), watcher.Options{})
				if err != nil {
					return err
				}
				printf(cmd.OutOrStdout(), "Watching %s, press Ctrl-C to stop.\n", w.Path())
				return w.Run(ctx, save)
			})
		}),
	}
	set.Flags().BoolVar(&watch, "watch", false, "save again whenever the file changes")

	about := &cobra.Command{Use: "about", Short: "Edit the about text"}
	about.AddCommand(set)
	return about
}

func newCategoriesCmd(a *app) *cobra.Command {
	var match string
	cmd := &cobra.Command{
		Use:   "categories [category]",
		Short: "List known categories, or the subcategories of one",
		Args:  cobra.MaximumNArgs(1),
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd.Context(), func(ctx context.Context, s *editor.Session) error {
				var names []string
				if len(args) == 1 {
					names = s.SubcategorySuggestions(args[0], match)
				} else {
					names = s.CategorySuggestions(match)
				}
				for _, n := range names {
					printf(cmd.OutOrStdout(), "%s\n", n)
				}
				return nil
			})
		}),
	}
	cmd.Flags().StringVar(&match, "match", "", "only names containing this text, ignoring case")
	return cmd
}

func printRows(w io.Writer, s *editor.Session) error {
	rows, err := s.Rows()
	if err != nil {
		return err
	}
	for _, r := range rows {
		printf(w, "%s / %s\n", r.Category, r.Subcategory)
	}
	return nil
}

func printContacts(w io.Writer, s *editor.Session) error {
	contacts, err := s.Contacts()
	if err != nil {
		return err
	}
	for _, c := range contacts {
		printf(w, "%s\t%s\t%s\n", contactKey(c), c.Type, c.Value)
	}
	return nil
}

// contactKey is the id a contact can be removed by.
func contactKey(c listing.Contact) string {
	if id := c.RecordID(); id != "" {
		return id
	}
	return c.ClientID()
}

func printListing(w io.Writer, l listing.Listing, contacts []listing.Contact) {
	printf(w, "Name:      %s\n", l.Name)
	printf(w, "Author:    %s\n", l.AuthorEmail)
	printf(w, "Featured:  %t\n", l.Featured)
	if l.ThumbnailURL != "" {
		printf(w, "Thumbnail: %s\n", l.ThumbnailURL)
	}
	if line := formatAddress(l.Address); line != "" {
		printf(w, "Address:   %s\n", line)
	}
	if l.About != "" {
		printf(w, "\n%s\n", l.About)
	}

	if rows := l.Tags.Rows(); len(rows) > 0 {
		printf(w, "\nTags:\n")
		for _, r := range rows {
			printf(w, "  %s / %s\n", r.Category, r.Subcategory)
		}
	}
	if len(contacts) > 0 {
		printf(w, "\nContacts:\n")
		for _, c := range contacts {
			printf(w, "  %s\t%s\t%s\n", contactKey(c), c.Type, c.Value)
		}
	}
}

func formatAddress(a listing.Address) string {
	var parts []string
	for _, p := range []string{a.Address, a.Street, a.Street2, a.City, a.State, a.Zip, a.Country} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}
