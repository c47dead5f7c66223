package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gauge(t *testing.T, reg *Registry, name string) float64 {
	mf := find(t, reg, name)
	require.NotNil(t, mf)
	return mf.GetMetric()[0].GetGauge().GetValue()
}

func TestHTTPMiddleware_CapturesStatusCode(t *testing.T) {
	reg := NewRegistry()
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	w := httptest.NewRecorder()
	HTTPMiddleware(reg)(handler).ServeHTTP(w, httptest.NewRequest("GET", "/not-found", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, 1.0, counter(t, reg, "http_requests_total", map[string]string{"status": "4xx", "path": "/not-found"}))
}

func TestHTTPMiddleware_TracksInFlight(t *testing.T) {
	reg := NewRegistry()

	during := -1.0
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = gauge(t, reg, "http_requests_in_flight")
		w.WriteHeader(http.StatusOK)
	})

	HTTPMiddleware(reg)(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, 1.0, during)
	assert.Equal(t, 0.0, gauge(t, reg, "http_requests_in_flight"))
}

func TestHTTPMiddleware_UsesRouteTemplate(t *testing.T) {
	reg := NewRegistry()
	r := mux.NewRouter()
	r.Use(HTTPMiddleware(reg))
	r.HandleFunc("/api/v1/symbols/{symbol}/bars", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, s := range []string{"a", "b"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/v1/symbols/"+s+"/bars", nil))
	}

	assert.Equal(t, 2.0, counter(t, reg, "http_requests_total",
		map[string]string{"path": "/api/v1/symbols/{symbol}/bars"}))
}
