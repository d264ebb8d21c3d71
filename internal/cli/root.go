package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/noah-isme/chronos/internal/app"
	"github.com/noah-isme/chronos/pkg/config"
	"github.com/noah-isme/chronos/pkg/logger"
)

// App carries global flags and the hooks used to build the in-process application.
type App struct {
	Timezone   string
	PrettyJSON bool
	Verbose    bool
	Timeout    time.Duration

	loadConfig func() (*config.Config, error)
	options    []app.Option
	now        func() time.Time
}

func NewRootCmd() *cobra.Command {
	return newRootCmd(&App{loadConfig: config.Load})
}

func newRootCmd(a *App) *cobra.Command {
	if a.now == nil {
		a.now = time.Now
	}

	cmd := &cobra.Command{
		Use:          "chronosctl",
		Short:        "Chronos calendar assistant CLI",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # See how a sentence is understood
  chronosctl classify "lunch with Sara friday 1pm"

  # Create it in every preferred calendar
  chronosctl run "lunch with Sara friday 1pm"

  # Answer the follow-up questions inline
  chronosctl run "dentist tomorrow" --time 3pm --duration 45m

  # Take it back
  chronosctl undo
`),
	}

	cmd.PersistentFlags().StringVar(&a.Timezone, "tz", envOr("CHRONOS_TIMEZONE", ""), "IANA timezone (default: stored preference)")
	cmd.PersistentFlags().BoolVar(&a.PrettyJSON, "pretty", false, "Pretty-print JSON output")
	cmd.PersistentFlags().BoolVar(&a.Verbose, "verbose", false, "Log to stderr")
	cmd.PersistentFlags().DurationVar(&a.Timeout, "timeout", 2*time.Minute, "Overall command timeout")

	cmd.AddCommand(newClassifyCmd(a))
	cmd.AddCommand(newRunCmd(a))
	cmd.AddCommand(newSearchCmd(a))
	cmd.AddCommand(newAgendaCmd(a))
	cmd.AddCommand(newHistoryCmd(a))
	cmd.AddCommand(newUndoCmd(a))
	cmd.AddCommand(newRedoCmd(a))
	cmd.AddCommand(newPreferencesCmd(a))
	cmd.AddCommand(newExportCmd(a))
	cmd.AddCommand(newTokenCmd(a))
	cmd.AddCommand(newProvidersCmd(a))
	cmd.AddCommand(newHousekeepingCmd(a))

	return cmd
}

// withApp builds the application for the duration of fn. Background workers only run
// when start is set.
func withApp(cmd *cobra.Command, a *App, start bool, fn func(ctx context.Context, application *app.App) error) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return writeErr(cmd, fmt.Errorf("load config: %w", err))
	}
	cfg.Housekeeping.Enabled = false

	logr := zap.NewNop()
	if a.Verbose {
		if logr, err = logger.New(cfg); err != nil {
			return writeErr(cmd, err)
		}
		defer logr.Sync() //nolint:errcheck
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), a.Timeout)
	defer cancel()

	application, err := app.New(ctx, cfg, logr, a.options...)
	if err != nil {
		return writeErr(cmd, err)
	}
	defer application.Close()

	if start {
		if err := application.Start(ctx); err != nil {
			return writeErr(cmd, err)
		}
	}
	if err := fn(ctx, application); err != nil {
		return writeErr(cmd, err)
	}
	return nil
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func writeOut(cmd *cobra.Command, a *App, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	if a.PrettyJSON {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(map[string]any{"data": v})
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}
