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

func newExportCmd(a *App) *cobra.Command {
	var (
		format    string
		from      string
		to        string
		providers []string
		wait      bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the agenda for a date range as csv, pdf or ics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseProviders(providers)
			if err != nil {
				return writeErr(cmd, err)
			}
			start, err := parseDay(from, a.now())
			if err != nil {
				return writeErr(cmd, fmt.Errorf("--from: %w", err))
			}
			end, err := parseDay(to, start.AddDate(0, 0, 7))
			if err != nil {
				return writeErr(cmd, fmt.Errorf("--to: %w", err))
			}
			return withApp(cmd, a, wait, func(ctx context.Context, application *app.App) error {
				job, err := application.Exports.CreateJob(ctx, service.ExportRequest{
					Format:    models.ExportFormat(format),
					From:      start,
					To:        end,
					Providers: ids,
				})
				if err != nil {
					return err
				}
				if wait {
					if job, err = waitForExport(ctx, application.Exports, job.ID); err != nil {
						return err
					}
				}
				return writeOut(cmd, a, job)
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", string(models.ExportFormatICS), "csv|pdf|ics")
	cmd.Flags().StringVar(&from, "from", "", "Start date (YYYY-MM-DD or RFC3339, default: now)")
	cmd.Flags().StringVar(&to, "to", "", "End date (default: a week after --from)")
	cmd.Flags().StringSliceVar(&providers, "provider", nil, "Calendars to export")
	cmd.Flags().BoolVar(&wait, "wait", true, "Wait for the export to finish")
	cmd.AddCommand(newExportStatusCmd(a))
	return cmd
}

func newExportStatusCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show an export job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, a, false, func(ctx context.Context, application *app.App) error {
				job, err := application.Exports.GetStatus(ctx, args[0])
				if err != nil {
					return err
				}
				return writeOut(cmd, a, job)
			})
		},
	}
}

func waitForExport(ctx context.Context, exports *service.ExportJobService, id string) (*models.ExportJob, error) {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	for {
		job, err := exports.GetStatus(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status == models.ExportStatusFinished || job.Status == models.ExportStatusFailed {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

func parseDay(raw string, fallback time.Time) (time.Time, error) {
	if raw == "" {
		return fallback, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.ParseInLocation("2006-01-02", raw, time.Local)
}
