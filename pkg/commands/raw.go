package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newRawCommand() *cobra.Command {
	var (
		survey string
		year   int
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "raw",
		Short: "Build the raw extract for a survey year from its decoded source files",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if a.raw.Has(survey, year) {
					if !force {
						fmt.Fprintf(cmd.OutOrStdout(), "%s\n", a.raw.Path(survey, year))
						return nil
					}
					if err := a.raw.Remove(survey, year); err != nil {
						return err
					}
				}

				if err := a.raw.Generate(ctx, survey, year); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\n", a.raw.Path(survey, year))
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&survey, "survey", "s", "", "Survey to build, e.g. acs.")
	cmd.Flags().IntVarP(&year, "year", "y", 0, "Survey year.")
	cmd.Flags().BoolVar(&force, "force", false, "Rebuild even if the raw extract exists.")
	_ = cmd.MarkFlagRequired("survey")
	_ = cmd.MarkFlagRequired("year")
	return cmd
}
