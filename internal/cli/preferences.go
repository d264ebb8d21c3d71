package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/noah-isme/chronos/internal/app"
)

func newPreferencesCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "preferences",
		Aliases: []string{"prefs"},
		Short:   "Show or change stored preferences",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, a, false, func(ctx context.Context, application *app.App) error {
				prefs, err := application.Preferences.Get(ctx)
				if err != nil {
					return err
				}
				return writeOut(cmd, a, prefs)
			})
		},
	}
	cmd.AddCommand(newPreferencesSetCmd(a))
	return cmd
}

func newPreferencesSetCmd(a *App) *cobra.Command {
	var (
		providers []string
		tz        string
		duration  int
		reminder  int
	)
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change preferences; unset flags keep their current value",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseProviders(providers)
			if err != nil {
				return writeErr(cmd, err)
			}
			return withApp(cmd, a, false, func(ctx context.Context, application *app.App) error {
				prefs, err := application.Preferences.Get(ctx)
				if err != nil {
					return err
				}
				if cmd.Flags().Changed("provider") {
					prefs.Providers = ids
				}
				if cmd.Flags().Changed("timezone") {
					prefs.Timezone = tz
				}
				if cmd.Flags().Changed("duration") {
					prefs.DefaultDurationMinutes = duration
				}
				if cmd.Flags().Changed("reminder") {
					prefs.ReminderMinutes = reminder
				}
				updated, err := application.Preferences.Update(ctx, prefs)
				if err != nil {
					return err
				}
				return writeOut(cmd, a, updated)
			})
		},
	}
	cmd.Flags().StringSliceVar(&providers, "provider", nil, "Preferred calendars")
	cmd.Flags().StringVar(&tz, "timezone", "", "IANA timezone")
	cmd.Flags().IntVar(&duration, "duration", 0, "Default duration in minutes")
	cmd.Flags().IntVar(&reminder, "reminder", 0, "Reminder in minutes before start")
	return cmd
}
