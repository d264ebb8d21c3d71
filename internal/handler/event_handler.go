package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/chronos/internal/dto"
	"github.com/noah-isme/chronos/internal/models"
	"github.com/noah-isme/chronos/internal/service"
	appErrors "github.com/noah-isme/chronos/pkg/errors"
	"github.com/noah-isme/chronos/pkg/response"
)

type eventOperations interface {
	ListRange(ctx context.Context, providers []models.ProviderID, from, to time.Time) (models.AggregateResult, error)
	Search(ctx context.Context, providers []models.ProviderID, query, timezone string) ([]models.CalendarEvent, error)
	DeleteEvent(ctx context.Context, target service.EventTarget, scope models.RecurrenceScope) (models.AggregateResult, error)
	RestoreEvent(ctx context.Context, target service.EventTarget) (models.AggregateResult, error)
	ModifyEvent(ctx context.Context, target service.EventTarget, changes map[string]string, scope models.RecurrenceScope, timezone string) (models.AggregateResult, error)
}

type recentEventsReader interface {
	RecentEvents(ctx context.Context) ([]models.CalendarEvent, error)
}

// EventHandler exposes direct event operations.
type EventHandler struct {
	events   eventOperations
	recent   recentEventsReader
	validate *validator.Validate
	now      func() time.Time
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(events eventOperations, recent recentEventsReader, validate *validator.Validate) *EventHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &EventHandler{events: events, recent: recent, validate: validate, now: time.Now}
}

// List godoc
// @Summary List events starting inside a range
// @Tags Events
// @Produce json
// @Param from query string false "Range start (RFC3339), defaults to now"
// @Param to query string false "Range end (RFC3339), defaults to 7 days after from"
// @Param provider query []string false "Providers"
// @Success 200 {object} response.Envelope
// @Router /events [get]
func (h *EventHandler) List(c *gin.Context) {
	var query dto.ListEventsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid query parameters"))
		return
	}
	if !validateStruct(c, h.validate, &query) {
		return
	}
	if query.From.IsZero() {
		query.From = h.now().UTC()
	}
	if query.To.IsZero() {
		query.To = query.From.Add(7 * 24 * time.Hour)
	}
	result, err := h.events.ListRange(c.Request.Context(), query.Providers, query.From, query.To)
	if err != nil {
		response.Error(c, err)
		return
	}
	writeResult(c, result)
}

// Recent godoc
// @Summary List the most recently created events
// @Tags Events
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /events/recent [get]
func (h *EventHandler) Recent(c *gin.Context) {
	events, err := h.recent.RecentEvents(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, map[string]interface{}{"count": len(events)})
}

// Search godoc
// @Summary Search upcoming events
// @Tags Events
// @Accept json
// @Produce json
// @Param payload body dto.SearchEventsRequest true "Query"
// @Success 200 {object} response.Envelope
// @Router /events/search [post]
func (h *EventHandler) Search(c *gin.Context) {
	var req dto.SearchEventsRequest
	if !bindJSON(c, h.validate, &req, "search") {
		return
	}
	events, err := h.events.Search(c.Request.Context(), req.Providers, req.Query, req.Timezone)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, map[string]interface{}{"count": len(events)})
}

// Delete godoc
// @Summary Delete one event
// @Tags Events
// @Produce json
// @Param provider path string true "Provider" Enums(google, outlook)
// @Param id path string true "Event ID"
// @Param scope query string false "Recurrence scope" Enums(this, following, all)
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /events/{provider}/{id} [delete]
func (h *EventHandler) Delete(c *gin.Context) {
	providerID, ok := pathProvider(c)
	if !ok {
		return
	}
	var query dto.DeleteEventQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid scope"))
		return
	}
	if !validateStruct(c, h.validate, &query) {
		return
	}
	result, err := h.events.DeleteEvent(c.Request.Context(), service.EventTarget{ProviderID: providerID, ID: c.Param("id")}, query.Scope)
	if err != nil {
		response.Error(c, err)
		return
	}
	writeResult(c, result)
}

// Restore godoc
// @Summary Restore a soft-deleted event
// @Tags Events
// @Produce json
// @Param provider path string true "Provider" Enums(google, outlook)
// @Param id path string true "Event ID"
// @Success 200 {object} response.Envelope
// @Router /events/{provider}/{id}/restore [post]
func (h *EventHandler) Restore(c *gin.Context) {
	providerID, ok := pathProvider(c)
	if !ok {
		return
	}
	result, err := h.events.RestoreEvent(c.Request.Context(), service.EventTarget{ProviderID: providerID, ID: c.Param("id")})
	if err != nil {
		response.Error(c, err)
		return
	}
	writeResult(c, result)
}

// Modify godoc
// @Summary Modify one event
// @Tags Events
// @Accept json
// @Produce json
// @Param provider path string true "Provider" Enums(google, outlook)
// @Param id path string true "Event ID"
// @Param payload body dto.ModifyEventRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Router /events/{provider}/{id} [patch]
func (h *EventHandler) Modify(c *gin.Context) {
	providerID, ok := pathProvider(c)
	if !ok {
		return
	}
	var req dto.ModifyEventRequest
	if !bindJSON(c, h.validate, &req, "modify") {
		return
	}
	target := service.EventTarget{ProviderID: providerID, ID: c.Param("id")}
	result, err := h.events.ModifyEvent(c.Request.Context(), target, req.Changes, req.Scope, req.Timezone)
	if err != nil {
		response.Error(c, err)
		return
	}
	writeResult(c, result)
}
