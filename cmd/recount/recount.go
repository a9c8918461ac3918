// Package recount provides the recount command.
package recount

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/civicwatch/alertwatch/internal/app"
	"github.com/civicwatch/alertwatch/internal/conf"
)

// Command creates the recount command.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "recount",
		Short: "Rebuild alert counters from the vote ledger",
		Long: `Recount recomputes the confirmed and rejected counts of every alert from its
recorded votes and re-applies the consensus rule. Alerts whose counts were already
correct are left untouched.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := app.Open(settings)
			if err != nil {
				return err
			}
			defer a.Close()

			svc, err := a.NewService()
			if err != nil {
				return err
			}
			changed, err := svc.Recount(cmd.Context())
			if err != nil {
				return fmt.Errorf("recount failed: %w", err)
			}
			fmt.Printf("Recount complete, %d alert(s) corrected\n", changed)
			return nil
		},
	}
}
