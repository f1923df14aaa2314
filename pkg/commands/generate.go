package commands

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newGenerateCommand() *cobra.Command {
	var (
		name  string
		years []int
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Build canonical files for dataset years",
		Long: `Build the canonical file for each requested year, replacing any prior output.
Years are generated one after another; a failed year leaves no output behind
and does not stop the remaining years.`,
		Example: "  clover generate --dataset acs --year 2019 --year 2020",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				var errs []error
				for _, year := range years {
					report, err := a.generator.Generate(ctx, name, year)
					if err != nil {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s %d: %v\n", name, year, err)
						errs = append(errs, err)
						continue
					}
					if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
						return err
					}
				}
				return stderrors.Join(errs...)
			})
		},
	}

	cmd.Flags().StringVarP(&name, "dataset", "d", "", "Dataset to generate.")
	cmd.Flags().IntSliceVarP(&years, "year", "y", nil, "Year to generate. Repeat for several years.")
	_ = cmd.MarkFlagRequired("dataset")
	_ = cmd.MarkFlagRequired("year")
	return cmd
}

func newRemoveCommand() *cobra.Command {
	var (
		name string
		year int
	)

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Delete the canonical file for a dataset year",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.generator.Remove(ctx, name, year); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s %d\n", name, year)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&name, "dataset", "d", "", "Dataset to remove from.")
	cmd.Flags().IntVarP(&year, "year", "y", 0, "Year to remove.")
	_ = cmd.MarkFlagRequired("dataset")
	_ = cmd.MarkFlagRequired("year")
	return cmd
}
