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

type tokenBroker interface {
	Store(ctx context.Context, id models.ProviderID, tok models.ProviderToken) error
	Clear(ctx context.Context, id models.ProviderID) error
	Status(ctx context.Context) ([]models.TokenStatus, error)
}

// ProviderAuthHandler accepts provider credentials obtained by an external OAuth flow.
type ProviderAuthHandler struct {
	broker   tokenBroker
	validate *validator.Validate
}

// NewProviderAuthHandler constructs a ProviderAuthHandler.
func NewProviderAuthHandler(broker tokenBroker, validate *validator.Validate) *ProviderAuthHandler {
	if validate == nil {
		validate = validator.New()
	}
	return &ProviderAuthHandler{broker: broker, validate: validate}
}

// Status godoc
// @Summary Report which providers have stored credentials
// @Tags Auth
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /auth/status [get]
func (h *ProviderAuthHandler) Status(c *gin.Context) {
	statuses, err := h.broker.Status(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, statuses)
}

// StoreToken godoc
// @Summary Store provider credentials
// @Tags Auth
// @Accept json
// @Param provider path string true "Provider" Enums(google, outlook)
// @Param payload body dto.StoreTokenRequest true "Credentials"
// @Success 204
// @Failure 400 {object} response.Envelope
// @Router /auth/{provider}/token [put]
func (h *ProviderAuthHandler) StoreToken(c *gin.Context) {
	providerID, ok := pathProvider(c)
	if !ok {
		return
	}
	var req dto.StoreTokenRequest
	if !bindJSON(c, h.validate, &req, "token") {
		return
	}
	err := h.broker.Store(c.Request.Context(), providerID, models.ProviderToken{
		AccessToken:  req.AccessToken,
		RefreshToken: req.RefreshToken,
		TokenType:    req.TokenType,
		Expiry:       req.Expiry,
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ClearToken godoc
// @Summary Disconnect a provider
// @Tags Auth
// @Param provider path string true "Provider" Enums(google, outlook)
// @Success 204
// @Router /auth/{provider}/token [delete]
func (h *ProviderAuthHandler) ClearToken(c *gin.Context) {
	providerID, ok := pathProvider(c)
	if !ok {
		return
	}
	if err := h.broker.Clear(c.Request.Context(), providerID); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
