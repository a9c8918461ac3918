// Package actor provides commands for managing the actor directory.
package actor

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/civicwatch/alertwatch/internal/app"
	"github.com/civicwatch/alertwatch/internal/conf"
	"github.com/civicwatch/alertwatch/internal/identity"
)

// Command creates the actor command and its subcommands.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "actor",
		Short: "Manage registered actors",
	}
	cmd.AddCommand(addCommand(settings), listCommand(settings),
		adminCommand(settings, "promote", true), adminCommand(settings, "demote", false))
	return cmd
}

func withApp(settings *conf.Settings, fn func(a *app.App) error) error {
	a, err := app.Open(settings)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func addCommand(settings *conf.Settings) *cobra.Command {
	var in identity.RegisterInput
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a new actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(settings, func(a *app.App) error {
				p, err := a.Identity.Register(cmd.Context(), in)
				if err != nil {
					return err
				}
				fmt.Printf("Registered actor %s (%s)\n", p.ID, p.DisplayName)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&in.ID, "id", "", "Actor id (generated when empty)")
	cmd.Flags().StringVar(&in.DisplayName, "name", "", "Display name")
	cmd.Flags().StringVar(&in.Email, "email", "", "Contact e-mail address")
	cmd.Flags().StringVar(&in.Phone, "phone", "", "Contact phone number")
	cmd.Flags().BoolVar(&in.IsAdmin, "admin", false, "Grant administrator rights")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func listCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered actors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(settings, func(a *app.App) error {
				profiles, err := a.Identity.List(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tADMIN\tCREATED")
				for _, p := range profiles {
					fmt.Fprintf(w, "%s\t%s\t%t\t%s\n", p.ID, p.DisplayName, p.IsAdmin, p.CreatedAt.Format("2006-01-02"))
				}
				return w.Flush()
			})
		},
	}
}

func adminCommand(settings *conf.Settings, use string, isAdmin bool) *cobra.Command {
	short := "Grant administrator rights to an actor"
	if !isAdmin {
		short = "Revoke administrator rights from an actor"
	}
	return &cobra.Command{
		Use:   use + " <actor-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(settings, func(a *app.App) error {
				if err := a.Identity.SetAdmin(cmd.Context(), args[0], isAdmin); err != nil {
					return err
				}
				fmt.Printf("Actor %s admin=%t\n", args[0], isAdmin)
				return nil
			})
		},
	}
}
