// Package migrate provides the migrate command.
package migrate

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/civicwatch/alertwatch/internal/app"
	"github.com/civicwatch/alertwatch/internal/conf"
)

// Command creates the migrate command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Long:  "Migrate opens the configured database and applies the schema for alerts, votes, views and actors.",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Open(settings)
			if err != nil {
				return err
			}
			defer a.Close()

			fmt.Printf("Schema is up to date (%s)\n", a.Store.Path())
			return nil
		},
	}
}
