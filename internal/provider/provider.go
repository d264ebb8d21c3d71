package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/noah-isme/chronos/internal/models"
	appErrors "github.com/noah-isme/chronos/pkg/errors"
	"github.com/noah-isme/chronos/pkg/middleware/requestid"
)

// Adapter is the uniform contract every calendar backend implements.
type Adapter interface {
	ID() models.ProviderID
	CreateEvent(ctx context.Context, draft models.EventDraft) (string, error)
	ListEvents(ctx context.Context, maxResults int, since time.Time) ([]models.CalendarEvent, error)
	GetEvent(ctx context.Context, id string) (models.CalendarEvent, error)
	DeleteEvent(ctx context.Context, id string, scope models.RecurrenceScope) (models.DeleteOutcome, error)
	RestoreEvent(ctx context.Context, id string) error
	// RestoreRecurrence puts back a recurrence that an earlier "following" delete truncated.
	// prior is the value the adapter returned in DeleteOutcome.PriorRecurrence.
	RestoreRecurrence(ctx context.Context, masterID, prior string) error
	ModifyEvent(ctx context.Context, id string, changes models.FieldChanges, scope models.RecurrenceScope) error
	SupportsSoftDelete() bool
}

// TokenSource hands out bearer tokens per provider.
type TokenSource interface {
	GetToken(ctx context.Context, provider models.ProviderID) (string, error)
	Invalidate(ctx context.Context, provider models.ProviderID) error
}

// withAuthRetry runs call with a bearer token. When the provider rejects the token the
// source is told to invalidate it and the call is retried exactly once.
func withAuthRetry(ctx context.Context, tokens TokenSource, id models.ProviderID, call func(token string) error) error {
	token, err := tokens.GetToken(ctx, id)
	if err != nil {
		return err
	}
	err = call(token)
	if !errors.Is(err, appErrors.ErrAuthExpired) {
		return err
	}
	if invErr := tokens.Invalidate(ctx, id); invErr != nil {
		return err
	}
	token, tokenErr := tokens.GetToken(ctx, id)
	if tokenErr != nil {
		return tokenErr
	}
	return call(token)
}

var rateLimitReasons = map[string]struct{}{
	"rateLimitExceeded":     {},
	"userRateLimitExceeded": {},
	"quotaExceeded":         {},
	"TooManyRequests":       {},
}

// statusError maps a provider HTTP failure onto the shared error taxonomy.
func statusError(id models.ProviderID, status int, message string, reasons ...string) error {
	if message == "" {
		message = http.StatusText(status)
	}
	text := fmt.Sprintf("%s: %s", id, message)
	switch {
	case status == http.StatusUnauthorized:
		return appErrors.Clone(appErrors.ErrAuthExpired, text)
	case status == http.StatusNotFound || status == http.StatusGone:
		return appErrors.Clone(appErrors.ErrNotFound, text)
	case status == http.StatusTooManyRequests:
		return appErrors.Clone(appErrors.ErrRateLimited, text)
	case status == http.StatusForbidden && hasRateLimitReason(reasons):
		return appErrors.Clone(appErrors.ErrRateLimited, text)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return appErrors.Clone(appErrors.ErrValidationRejected, text)
	default:
		return appErrors.Clone(appErrors.ErrProvider, fmt.Sprintf("%s (status %d)", text, status))
	}
}

func hasRateLimitReason(reasons []string) bool {
	for _, r := range reasons {
		if _, ok := rateLimitReasons[r]; ok {
			return true
		}
	}
	return false
}

func networkError(id models.ProviderID, err error) error {
	return appErrors.Wrap(err, appErrors.ErrNetwork.Code, appErrors.ErrNetwork.Status, fmt.Sprintf("%s unreachable", id))
}

func rejected(id models.ProviderID, format string, args ...interface{}) error {
	return appErrors.Clone(appErrors.ErrValidationRejected, fmt.Sprintf("%s: ", id)+fmt.Sprintf(format, args...))
}

// requestIDTransport copies the inbound request id onto outbound provider calls.
type requestIDTransport struct {
	header string
	base   http.RoundTripper
}

func newRequestIDTransport(header string, base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &requestIDTransport{header: header, base: base}
}

func (t *requestIDTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if id := requestid.FromContext(req.Context()); id != "" && req.Header.Get(t.header) == "" {
		req = req.Clone(req.Context())
		req.Header.Set(t.header, id)
	}
	return t.base.RoundTrip(req)
}

// Registry holds the configured adapters in a stable order.
type Registry struct {
	adapters map[models.ProviderID]Adapter
	order    []models.ProviderID
}

// NewRegistry indexes adapters by ID. Later duplicates replace earlier ones.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[models.ProviderID]Adapter)}
	for _, a := range adapters {
		if a == nil {
			continue
		}
		if _, exists := r.adapters[a.ID()]; !exists {
			r.order = append(r.order, a.ID())
		}
		r.adapters[a.ID()] = a
	}
	return r
}

// Get returns the adapter for id.
func (r *Registry) Get(id models.ProviderID) (Adapter, error) {
	if a, ok := r.adapters[id]; ok {
		return a, nil
	}
	return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("provider %q is not configured", id))
}

// IDs lists configured providers.
func (r *Registry) IDs() []models.ProviderID {
	out := make([]models.ProviderID, len(r.order))
	copy(out, r.order)
	return out
}

// Resolve returns adapters for ids, de-duplicated and in the order given.
func (r *Registry) Resolve(ids []models.ProviderID) ([]Adapter, error) {
	if len(ids) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one provider must be selected")
	}
	seen := make(map[models.ProviderID]struct{}, len(ids))
	out := make([]Adapter, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		a, err := r.Get(id)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func zoneOf(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
