package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/chronos/internal/dto"
	"github.com/noah-isme/chronos/internal/models"
	"github.com/noah-isme/chronos/pkg/response"
)

type preferencesStore interface {
	Get(ctx context.Context) (models.Preferences, error)
	Update(ctx context.Context, prefs models.Preferences) (models.Preferences, error)
}

// PreferencesHandler reads and updates the stored defaults.
type PreferencesHandler struct {
	prefs    preferencesStore
	validate *validator.Validate
}

// NewPreferencesHandler constructs a PreferencesHandler.
func NewPreferencesHandler(prefs preferencesStore, validate *validator.Validate) *PreferencesHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &PreferencesHandler{prefs: prefs, validate: validate}
}

// Get godoc
// @Summary Get stored defaults
// @Tags Preferences
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /preferences [get]
func (h *PreferencesHandler) Get(c *gin.Context) {
	prefs, err := h.prefs.Get(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, prefs)
}

// Update godoc
// @Summary Update stored defaults
// @Tags Preferences
// @Accept json
// @Produce json
// @Param payload body dto.UpdatePreferencesRequest true "Preferences"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /preferences [put]
func (h *PreferencesHandler) Update(c *gin.Context) {
	var req dto.UpdatePreferencesRequest
	if !bindJSON(c, h.validate, &req, "preferences") {
		return
	}
	prefs, err := h.prefs.Update(c.Request.Context(), models.Preferences{
		Providers:              providerIDs(req.Providers),
		Timezone:               req.Timezone,
		DefaultDurationMinutes: req.DefaultDurationMinutes,
		ReminderMinutes:        req.ReminderMinutes,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, prefs)
}
