// Package commands implements the clover command line.
package commands

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/config"
)

func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	rc := &cobra.Command{
		Use:   "clover",
		Short: "Clover builds canonical microdata files from household surveys.",
		Long: `Clover turns raw survey extracts (person, household and SPM unit tables) into
one canonical microdata file per dataset year. Each file holds dense person,
household, SPM unit, tax unit and family identifiers plus the dataset's
variables as named arrays.

Generation is explicit: nothing is built until a generate command or API call
asks for a dataset year.`,
		SilenceUsage: true,
	}

	flags := rc.PersistentFlags()
	flags.String("output-folder", "", "Folder holding canonical microdata files.")
	flags.String("raw-folder", "", "Folder holding raw survey extracts.")
	flags.String("source-folder", "", "Folder holding decoded survey CSVs, laid out as <survey>/<year>/*.csv.")
	flags.String("datasets-folder", "", "Folder with extra dataset definitions (*.yaml).")
	flags.String("log-level", "", "Log level: debug, info, warn or error.")
	flags.Bool("pretty-logs", false, "Log in a human-readable console format.")
	flags.Bool("catalog", true, "Record generation runs in the catalog database.")

	rc.AddCommand(newGenerateCommand())
	rc.AddCommand(newRemoveCommand())
	rc.AddCommand(newListCommand())
	rc.AddCommand(newRawCommand())
	rc.AddCommand(newServeCommand())

	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

// withApp loads configuration from the command's flags, builds the app, runs
// fn and shuts the app down.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) (err error) {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.ShutdownTimeout())
		defer cancel()
		if closeErr := a.close(closeCtx); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	return fn(ctx, a)
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
