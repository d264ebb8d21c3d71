package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/chronos/internal/middleware"
	"github.com/noah-isme/chronos/internal/models"
	appErrors "github.com/noah-isme/chronos/pkg/errors"
	"github.com/noah-isme/chronos/pkg/response"
)

type preferencesReader interface {
	Get(ctx context.Context) (models.Preferences, error)
}

// bindJSON decodes the body into dest and runs struct validation. It writes the error
// response itself and reports whether the handler may continue.
func bindJSON(c *gin.Context, validate *validator.Validate, dest interface{}, what string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid "+what+" payload"))
		return false
	}
	return validateStruct(c, validate, dest)
}

func validateStruct(c *gin.Context, validate *validator.Validate, dest interface{}) bool {
	if validate == nil {
		return true
	}
	if err := validate.Struct(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, err.Error()))
		return false
	}
	return true
}

func providerIDs(raw []string) []models.ProviderID {
	if len(raw) == 0 {
		return nil
	}
	out := make([]models.ProviderID, 0, len(raw))
	for _, r := range raw {
		if r = strings.TrimSpace(strings.ToLower(r)); r != "" {
			out = append(out, models.ProviderID(r))
		}
	}
	return out
}

func pathProvider(c *gin.Context) (models.ProviderID, bool) {
	id := models.ProviderID(strings.ToLower(c.Param("provider")))
	if id != models.ProviderGoogle && id != models.ProviderOutlook {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "unknown provider "+c.Param("provider")))
		return "", false
	}
	return id, true
}

// resolveTimezone prefers the request value, then the stored preference.
func resolveTimezone(ctx context.Context, prefs preferencesReader, requested string) string {
	if requested != "" || prefs == nil {
		return requested
	}
	if p, err := prefs.Get(ctx); err == nil {
		return p.Timezone
	}
	return ""
}

// writeResult maps an aggregate result onto the envelope. Failed results keep their body
// so callers can read per-provider outcomes.
func writeResult(c *gin.Context, result models.AggregateResult) {
	middleware.SetMeta(c, "status", result.Status)
	if len(result.RetryProviders) > 0 {
		middleware.SetMeta(c, "retryProviders", result.RetryProviders)
	}
	status := http.StatusOK
	if result.Status == models.StatusFailure {
		status = http.StatusBadGateway
	}
	response.JSON(c, status, result, middleware.ExtractMeta(c))
}
