package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/noah-isme/chronos/internal/app"
)

func newHistoryCmd(a *App) *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the undo/redo history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, a, false, func(ctx context.Context, application *app.App) error {
				if reset {
					if err := application.Ledger.Clear(ctx); err != nil {
						return err
					}
				}
				return writeOut(cmd, a, application.Ledger.State())
			})
		},
	}
	cmd.Flags().BoolVar(&reset, "clear", false, "Forget every recorded action first")
	return cmd
}

func newUndoCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "undo",
		Short: "Reverse the most recent action",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, a, false, func(ctx context.Context, application *app.App) error {
				rec, err := application.Ledger.Undo(ctx)
				if err != nil {
					return err
				}
				return writeOut(cmd, a, rec)
			})
		},
	}
}

func newRedoCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "redo",
		Short: "Re-apply the most recently undone action",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, a, false, func(ctx context.Context, application *app.App) error {
				rec, err := application.Ledger.Redo(ctx)
				if err != nil {
					return err
				}
				return writeOut(cmd, a, rec)
			})
		},
	}
}
