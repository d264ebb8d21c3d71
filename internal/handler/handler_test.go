package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/chronos/internal/middleware"
	"github.com/noah-isme/chronos/internal/models"
)

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta map[string]interface{} `json:"meta"`
}

func newTestRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.WithResponseMeta())
	return router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	switch v := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(v))
	default:
		raw, err := json.Marshal(v)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" && bytes.HasPrefix(bytes.TrimSpace(w.Body.Bytes()), []byte("{")) {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

type preferencesStub struct {
	prefs   models.Preferences
	updated *models.Preferences
}

func (s *preferencesStub) Get(ctx context.Context) (models.Preferences, error) {
	return s.prefs, nil
}

func (s *preferencesStub) Update(ctx context.Context, prefs models.Preferences) (models.Preferences, error) {
	s.updated = &prefs
	return prefs, nil
}

func draftAt(title string, start time.Time, minutes int) models.EventDraft {
	return models.EventDraft{
		Title:               title,
		Start:               start,
		End:                 start.Add(time.Duration(minutes) * time.Minute),
		Timezone:            "UTC",
		ReminderLeadMinutes: 60,
	}
}
