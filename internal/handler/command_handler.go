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
	"github.com/noah-isme/chronos/pkg/response"
)

type intentClassifier interface {
	Classify(ctx context.Context, text string, now time.Time, timezone string) (models.ParsedIntent, error)
}

type commandExecutor interface {
	Execute(ctx context.Context, req service.ExecuteRequest) (models.AggregateResult, error)
}

type draftConfirmer interface {
	State(draft models.EventDraft) service.DraftState
	SubmitTime(raw string, draft models.EventDraft) (models.EventDraft, error)
	SubmitDuration(raw string, draft models.EventDraft) (models.EventDraft, error)
}

// CommandHandler exposes classification, confirmation and execution of commands.
type CommandHandler struct {
	classifier intentClassifier
	executor   commandExecutor
	drafts     draftConfirmer
	prefs      preferencesReader
	validate   *validator.Validate
	now        func() time.Time
}

// NewCommandHandler constructs a CommandHandler.
func NewCommandHandler(classifier intentClassifier, executor commandExecutor, drafts draftConfirmer, prefs preferencesReader, validate *validator.Validate) *CommandHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &CommandHandler{classifier: classifier, executor: executor, drafts: drafts, prefs: prefs, validate: validate, now: time.Now}
}

// Classify godoc
// @Summary Classify a natural-language command
// @Tags Commands
// @Accept json
// @Produce json
// @Param payload body dto.ClassifyRequest true "Command text"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /commands/classify [post]
func (h *CommandHandler) Classify(c *gin.Context) {
	var req dto.ClassifyRequest
	if !bindJSON(c, h.validate, &req, "classify") {
		return
	}
	ctx := c.Request.Context()
	intent, err := h.classifier.Classify(ctx, req.Text, h.now(), resolveTimezone(ctx, h.prefs, req.Timezone))
	if err != nil {
		response.Error(c, err)
		return
	}
	next := service.DraftReady
	for _, draft := range intent.AllDrafts() {
		if state := h.drafts.State(draft); state != service.DraftReady {
			next = state
			break
		}
	}
	response.JSON(c, http.StatusOK, dto.ClassifyResponse{Intent: intent, NextInput: string(next)})
}

// Execute godoc
// @Summary Execute a resolved intent against the selected providers
// @Tags Commands
// @Accept json
// @Produce json
// @Param payload body dto.ExecuteRequest true "Intent and choices"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /commands/execute [post]
func (h *CommandHandler) Execute(c *gin.Context) {
	var req dto.ExecuteRequest
	if !bindJSON(c, h.validate, &req, "execute") {
		return
	}
	execReq := service.ExecuteRequest{
		Intent:    req.Intent,
		Providers: req.Providers,
		Scope:     req.Scope,
		Timezone:  req.Timezone,
	}
	if req.Target != nil {
		execReq.Target = &service.EventTarget{ProviderID: req.Target.ProviderID, ID: req.Target.ID}
	}
	result, err := h.executor.Execute(c.Request.Context(), execReq)
	if err != nil {
		response.Error(c, err)
		return
	}
	writeResult(c, result)
}

// ConfirmTime godoc
// @Summary Answer a time confirmation prompt
// @Tags Commands
// @Accept json
// @Produce json
// @Param payload body dto.TimeConfirmationRequest true "Draft and time"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /drafts/time [post]
func (h *CommandHandler) ConfirmTime(c *gin.Context) {
	var req dto.TimeConfirmationRequest
	if !bindJSON(c, h.validate, &req, "time confirmation") {
		return
	}
	draft, err := h.drafts.SubmitTime(req.Time, req.Draft)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.DraftResponse{Draft: draft, NextInput: string(h.drafts.State(draft))})
}

// ConfirmDuration godoc
// @Summary Answer a duration confirmation prompt
// @Tags Commands
// @Accept json
// @Produce json
// @Param payload body dto.DurationConfirmationRequest true "Draft and duration"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /drafts/duration [post]
func (h *CommandHandler) ConfirmDuration(c *gin.Context) {
	var req dto.DurationConfirmationRequest
	if !bindJSON(c, h.validate, &req, "duration confirmation") {
		return
	}
	draft, err := h.drafts.SubmitDuration(req.Duration, req.Draft)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.DraftResponse{Draft: draft, NextInput: string(h.drafts.State(draft))})
}
