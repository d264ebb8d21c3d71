package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/chronos/internal/app"
	"github.com/noah-isme/chronos/internal/models"
	"github.com/noah-isme/chronos/internal/service"
)

func newClassifyCmd(a *App) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <text>",
		Short: "Show the intent parsed from a sentence without touching any calendar",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, a, false, func(ctx context.Context, application *app.App) error {
				intent, err := application.Classifier.Classify(ctx, strings.Join(args, " "), a.now(), timezone(ctx, a, application))
				if err != nil {
					return err
				}
				return writeOut(cmd, a, map[string]any{
					"intent":    intent,
					"nextInput": nextInput(application.Drafts, intent),
				})
			})
		},
	}
}

func newRunCmd(a *App) *cobra.Command {
	var (
		providers []string
		scope     string
		answer    string
		duration  string
		pick      int
	)
	cmd := &cobra.Command{
		Use:   "run <text>",
		Short: "Classify a sentence and carry it out",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, a, false, func(ctx context.Context, application *app.App) error {
				tz := timezone(ctx, a, application)
				intent, err := application.Classifier.Classify(ctx, strings.Join(args, " "), a.now(), tz)
				if err != nil {
					return err
				}
				intent, err = confirmDrafts(application.Drafts, intent, answer, duration)
				if err != nil {
					return err
				}
				if next := nextInput(application.Drafts, intent); next == service.DraftNeedsTime {
					return writeOut(cmd, a, map[string]any{"intent": intent, "nextInput": next})
				}

				ids, err := parseProviders(providers)
				if err != nil {
					return err
				}
				req := service.ExecuteRequest{Intent: intent, Providers: ids, Scope: models.RecurrenceScope(scope), Timezone: tz}
				result, err := application.Executor.Execute(ctx, req)
				if err != nil {
					return err
				}
				if result.Status == models.StatusNeedsSelection && pick > 0 {
					if pick > len(result.Candidates) {
						return fmt.Errorf("--pick %d out of range, %d candidates", pick, len(result.Candidates))
					}
					chosen := result.Candidates[pick-1]
					req.Target = &service.EventTarget{ProviderID: chosen.ProviderID, ID: chosen.ID}
					if result, err = application.Executor.Execute(ctx, req); err != nil {
						return err
					}
				}
				return writeOut(cmd, a, result)
			})
		},
	}
	cmd.Flags().StringSliceVar(&providers, "provider", nil, "Calendars to use (google, outlook); default: stored preference")
	cmd.Flags().StringVar(&scope, "scope", "", "Recurring event scope (this|following|all)")
	cmd.Flags().StringVar(&answer, "time", "", "Answer for a draft missing its time, e.g. 3pm")
	cmd.Flags().StringVar(&duration, "duration", "", "Answer for a draft missing its duration, e.g. 45m")
	cmd.Flags().IntVar(&pick, "pick", 0, "1-based candidate to act on when several events match")
	return cmd
}

func newSearchCmd(a *App) *cobra.Command {
	var providers []string
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search upcoming events",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseProviders(providers)
			if err != nil {
				return writeErr(cmd, err)
			}
			return withApp(cmd, a, false, func(ctx context.Context, application *app.App) error {
				events, err := application.Executor.Search(ctx, ids, strings.Join(args, " "), timezone(ctx, a, application))
				if err != nil {
					return err
				}
				return writeOut(cmd, a, events)
			})
		},
	}
	cmd.Flags().StringSliceVar(&providers, "provider", nil, "Calendars to search")
	return cmd
}

func newAgendaCmd(a *App) *cobra.Command {
	var (
		providers []string
		days      int
	)
	cmd := &cobra.Command{
		Use:   "agenda",
		Short: "List events from now for a number of days",
		RunE: func(cmd *cobra.Command, args []string) error {
			if days <= 0 {
				return writeErr(cmd, fmt.Errorf("--days must be positive"))
			}
			ids, err := parseProviders(providers)
			if err != nil {
				return writeErr(cmd, err)
			}
			return withApp(cmd, a, false, func(ctx context.Context, application *app.App) error {
				from := a.now()
				result, err := application.Executor.ListRange(ctx, ids, from, from.AddDate(0, 0, days))
				if err != nil {
					return err
				}
				return writeOut(cmd, a, result)
			})
		},
	}
	cmd.Flags().StringSliceVar(&providers, "provider", nil, "Calendars to list")
	cmd.Flags().IntVar(&days, "days", 7, "Number of days to list")
	return cmd
}

// confirmDrafts applies inline answers to every draft that still needs them.
func confirmDrafts(drafts *service.DisambiguationEngine, intent models.ParsedIntent, answer, duration string) (models.ParsedIntent, error) {
	apply := func(d models.EventDraft) (models.EventDraft, error) {
		var err error
		if answer != "" && drafts.State(d) == service.DraftNeedsTime {
			if d, err = drafts.SubmitTime(answer, d); err != nil {
				return d, err
			}
		}
		if duration != "" && drafts.State(d) == service.DraftNeedsDuration {
			if d, err = drafts.SubmitDuration(duration, d); err != nil {
				return d, err
			}
		}
		return d, nil
	}

	switch intent.Type {
	case models.IntentCreate:
		if intent.Draft != nil {
			d, err := apply(*intent.Draft)
			if err != nil {
				return intent, err
			}
			intent.Draft = &d
		}
	case models.IntentCreateMultiple:
		out := make([]models.EventDraft, 0, len(intent.Drafts))
		for _, d := range intent.Drafts {
			confirmed, err := apply(d)
			if err != nil {
				return intent, err
			}
			out = append(out, confirmed)
		}
		intent.Drafts = out
	}
	return intent, nil
}

func nextInput(drafts *service.DisambiguationEngine, intent models.ParsedIntent) service.DraftState {
	for _, d := range intent.AllDrafts() {
		if state := drafts.State(d); state != service.DraftReady {
			return state
		}
	}
	return service.DraftReady
}

func parseProviders(raw []string) ([]models.ProviderID, error) {
	var out []models.ProviderID
	for _, r := range raw {
		id, ok := models.ParseProviderID(r)
		if !ok {
			return nil, fmt.Errorf("unknown provider %q", r)
		}
		out = append(out, id)
	}
	return out, nil
}

func timezone(ctx context.Context, a *App, application *app.App) string {
	if a.Timezone != "" {
		return a.Timezone
	}
	if prefs, err := application.Preferences.Get(ctx); err == nil && prefs.Timezone != "" {
		return prefs.Timezone
	}
	return time.Local.String()
}
