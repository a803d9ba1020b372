package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newTestEngine(captured *string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	engine.Use(RequestID())
	engine.GET("/ping", func(c *gin.Context) {
		*captured = RequestIDFrom(c)
		c.Status(http.StatusOK)
	})
	return engine
}

func TestRequestIDGenerated(t *testing.T) {
	var seen string
	engine := newTestEngine(&seen)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	engine.ServeHTTP(w, req)

	rid := w.Header().Get(HeaderXRequestID)
	assert.NotEmpty(t, rid)
	assert.Equal(t, rid, seen)

	// each request gets its own correlation id
	w2 := httptest.NewRecorder()
	engine.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.NotEqual(t, rid, w2.Header().Get(HeaderXRequestID))
}

func TestRequestIDPropagatesIncomingHeader(t *testing.T) {
	var seen string
	engine := newTestEngine(&seen)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderXRequestID, "upstream-42")
	engine.ServeHTTP(w, req)

	assert.Equal(t, "upstream-42", w.Header().Get(HeaderXRequestID))
	assert.Equal(t, "upstream-42", seen)
}

func TestRequestIDFromWithoutMiddleware(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Empty(t, RequestIDFrom(c))
}
