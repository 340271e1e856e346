package health

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(statuses map[string]Status) *gin.Engine {
	gin.SetMode(gin.TestMode)
	agg := NewAggregator(AggregatorConfig{})
	for name, s := range statuses {
		agg.Register(name, fixed(name, s))
	}
	r := gin.New()
	Register(r, agg)
	return r
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestLiveness(t *testing.T) {
	w := get(newRouter(map[string]Status{"store": StatusUnhealthy}), "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestReadiness(t *testing.T) {
	tests := []struct {
		name     string
		status   Status
		wantCode int
		wantBody string
	}{
		{"healthy", StatusHealthy, http.StatusOK, "OK"},
		{"degraded", StatusDegraded, http.StatusOK, "DEGRADED"},
		{"unhealthy", StatusUnhealthy, http.StatusServiceUnavailable, "UNHEALTHY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(newRouter(map[string]Status{"store": tt.status}), "/readyz")
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestDetailed(t *testing.T) {
	w := get(newRouter(map[string]Status{"store": StatusHealthy, "sqlite": StatusUnhealthy}), "/health")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp.Status)
	assert.NotEmpty(t, resp.Timestamp)
	require.Len(t, resp.Checks, 2)
	assert.Equal(t, "healthy", resp.Checks["store"].Status)
	assert.Equal(t, "unhealthy", resp.Checks["sqlite"].Status)
}
