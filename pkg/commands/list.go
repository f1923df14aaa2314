package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Ramsey-B/clover/pkg/models"
)

func newListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List datasets and the years they have output for",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				items := []models.DatasetSummary{}
				for _, ds := range a.registry.List() {
					years, err := a.generator.Years(ds.Name)
					if err != nil {
						return err
					}
					items = append(items, models.DatasetSummary{
						Name:      ds.Name,
						Label:     ds.Label,
						Survey:    ds.Survey,
						Variables: ds.Variables.IDs(),
						Years:     years,
					})
				}
				return writeJSON(cmd.OutOrStdout(), models.DatasetListResponse{
					Items:      items,
					TotalCount: len(items),
				})
			})
		},
	}
}
