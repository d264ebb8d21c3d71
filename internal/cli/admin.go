package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/chronos/internal/app"
	"github.com/noah-isme/chronos/internal/models"
	"github.com/noah-isme/chronos/internal/service"
)

func newTokenCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API bearer tokens",
	}

	var (
		subject string
		scopes  []string
		ttl     time.Duration
	)
	mint := &cobra.Command{
		Use:   "mint",
		Short: "Mint a bearer token for the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, a, false, func(ctx context.Context, application *app.App) error {
				token, expiresAt, err := application.Auth.Mint(subject, scopes, ttl)
				if err != nil {
					return err
				}
				return writeOut(cmd, a, map[string]any{"token": token, "expiresAt": expiresAt, "subject": subject})
			})
		},
	}
	mint.Flags().StringVar(&subject, "subject", "chronosctl", "Token subject")
	mint.Flags().StringSliceVar(&scopes, "scope", []string{service.ScopeCalendar}, "Granted scopes (calendar, admin)")
	mint.Flags().DurationVar(&ttl, "ttl", 0, "Lifetime (default: JWT_EXPIRATION)")
	cmd.AddCommand(mint)
	return cmd
}

func newProvidersCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "providers",
		Short: "Show calendar connection status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, a, false, func(ctx context.Context, application *app.App) error {
				statuses, err := application.Broker.Status(ctx)
				if err != nil {
					return err
				}
				return writeOut(cmd, a, statuses)
			})
		},
	}

	var (
		access  string
		refresh string
		expires time.Duration
	)
	connect := &cobra.Command{
		Use:   "connect <google|outlook>",
		Short: "Store OAuth tokens for a calendar provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, ok := models.ParseProviderID(args[0])
			if !ok {
				return writeErr(cmd, fmt.Errorf("unknown provider %q", args[0]))
			}
			return withApp(cmd, a, false, func(ctx context.Context, application *app.App) error {
				tok := models.ProviderToken{AccessToken: access, RefreshToken: refresh}
				if access != "" && expires > 0 {
					tok.Expiry = time.Now().Add(expires)
				}
				if err := application.Broker.Store(ctx, id, tok); err != nil {
					return err
				}
				statuses, err := application.Broker.Status(ctx)
				if err != nil {
					return err
				}
				return writeOut(cmd, a, statuses)
			})
		},
	}
	connect.Flags().StringVar(&access, "access-token", envOr("CHRONOS_ACCESS_TOKEN", ""), "OAuth access token")
	connect.Flags().StringVar(&refresh, "refresh-token", envOr("CHRONOS_REFRESH_TOKEN", ""), "OAuth refresh token")
	connect.Flags().DurationVar(&expires, "expires-in", time.Hour, "Access token lifetime")

	disconnect := &cobra.Command{
		Use:   "disconnect <google|outlook>",
		Short: "Forget stored tokens for a calendar provider",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, ok := models.ParseProviderID(args[0])
			if !ok {
				return writeErr(cmd, fmt.Errorf("unknown provider %q", args[0]))
			}
			return withApp(cmd, a, false, func(ctx context.Context, application *app.App) error {
				if err := application.Broker.Clear(ctx, id); err != nil {
					return err
				}
				return writeOut(cmd, a, map[string]any{"provider": id, "connected": false})
			})
		},
	}

	cmd.AddCommand(connect, disconnect)
	return cmd
}

func newHousekeepingCmd(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "housekeeping",
		Short: "Periodic maintenance",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Purge expired entries, refresh expiring tokens and remove stale exports once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, a, false, func(ctx context.Context, application *app.App) error {
				report, err := application.Housekeeping.RunOnce(ctx)
				if err != nil {
					return err
				}
				return writeOut(cmd, a, report)
			})
		},
	})
	return cmd
}
