package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	serveropts "github.com/kart-io/learning-rag/pkg/options/server"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	opts := serveropts.NewOptions()
	opts.Addr = "127.0.0.1:0"
	return NewServer(opts, nil)
}

func TestServer_NoRouteJSON(t *testing.T) {
	s := newTestServer(t)

	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/missing", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"request_id"`)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestServer_PanicRecovered(t *testing.T) {
	s := newTestServer(t)
	s.Engine().GET("/boom", func(*gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	s.Engine().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestServer_StartStop(t *testing.T) {
	s := newTestServer(t)
	s.Engine().GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	require.NoError(t, s.Start(context.Background()))
	defer func() { _ = s.Stop(context.Background()) }()

	resp, err := http.Get("http://" + s.Addr() + "/ping")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "pong", string(body))
}
