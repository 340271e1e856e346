package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Response is the JSON body of the detailed health endpoint.
type Response struct {
	Status    string                   `json:"status"`
	Timestamp string                   `json:"timestamp"`
	Checks    map[string]CheckResponse `json:"checks,omitempty"`
}

// CheckResponse is the JSON form of a single Result.
type CheckResponse struct {
	Status   string         `json:"status"`
	Message  string         `json:"message,omitempty"`
	Duration string         `json:"duration,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// Liveness answers 200 while the process serves requests.
func Liveness() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	}
}

// Readiness answers 200 while every check is healthy or degraded, and 503
// otherwise.
func Readiness(agg *Aggregator) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch OverallStatus(agg.CheckAll(c.Request.Context())) {
		case StatusHealthy:
			c.String(http.StatusOK, "OK")
		case StatusDegraded:
			c.String(http.StatusOK, "DEGRADED")
		default:
			c.String(http.StatusServiceUnavailable, "UNHEALTHY")
		}
	}
}

// Detailed answers with every check result as JSON.
func Detailed(agg *Aggregator) gin.HandlerFunc {
	return func(c *gin.Context) {
		results := agg.CheckAll(c.Request.Context())
		status := OverallStatus(results)

		resp := Response{
			Status:    status.String(),
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    make(map[string]CheckResponse, len(results)),
		}
		for name, r := range results {
			cr := CheckResponse{
				Status:   r.Status.String(),
				Message:  r.Message,
				Duration: r.Duration.String(),
				Details:  r.Details,
			}
			if r.Error != nil {
				cr.Error = r.Error.Error()
			}
			resp.Checks[name] = cr
		}

		code := http.StatusOK
		if status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, resp)
	}
}

// Register mounts /healthz, /readyz and /health on r.
func Register(r gin.IRouter, agg *Aggregator) {
	r.GET("/healthz", Liveness())
	r.GET("/readyz", Readiness(agg))
	r.GET("/health", Detailed(agg))
}
