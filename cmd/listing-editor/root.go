package main

import (
	"io"

	"github.com/spf13/cobra"
)

func newRootCmd(out io.Writer) *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "listing-editor",
		Short: "Edit a classified listing",
		Long: `listing-editor loads one listing from the backend, applies a single edit
and waits for it to be saved.

Without --target the signed-in author's own listing is edited.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.SetOut(out)

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.Env, "env", "", "environment: development, staging or production")
	pf.StringVar(&a.flags.EnvFile, "env-file", "", "path of the .env file (default .env)")
	pf.StringVar(&a.flags.LogLevel, "log-level", "", "log level: debug, info, warn or error")
	pf.StringVar(&a.flags.BaseURL, "base-url", "", "backend base URL, e.g. http://localhost:5000")
	pf.StringVar(&a.flags.Target, "target", "", "author email of the listing to edit")
	pf.StringVar(&a.flags.EmulateJSON, "emulate-json", "", "send bodies as model=<json> form posts (true or false)")

	root.AddCommand(
		newShowCmd(a),
		newTagsCmd(a),
		newContactsCmd(a),
		newNameCmd(a),
		newAddressCmd(a),
		newAboutCmd(a),
		newCategoriesCmd(a),
	)
	return root
}
