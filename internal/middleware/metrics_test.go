package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

type observation struct {
	method string
	route  string
	status int
}

type observerStub struct {
	mu  sync.Mutex
	got []observation
}

func (o *observerStub) ObserveHTTPRequest(method, path string, status int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.got = append(o.got, observation{method, path, status})
}

func TestMetricsLabelsByRouteTemplate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	observer := &observerStub{}
	router := gin.New()
	router.Use(Metrics(observer))
	router.DELETE("/events/:provider/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })
	router.GET("/metrics", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, target := range []string{"/events/google/abc", "/events/outlook/AAMk=", "/nowhere", "/metrics"} {
		method := http.MethodDelete
		if target == "/metrics" {
			method = http.MethodGet
		}
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(method, target, nil))
	}

	assert.Equal(t, []observation{
		{http.MethodDelete, "/events/:provider/:id", http.StatusNoContent},
		{http.MethodDelete, "/events/:provider/:id", http.StatusNoContent},
		{http.MethodDelete, unmatchedRoute, http.StatusNotFound},
	}, observer.got)
}
