package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonwraymond/rendercache/observe"
	"github.com/jonwraymond/rendercache/scope"
)

const (
	callerKey    = "caller_id"
	apiKeyHeader = "X-API-Key"
)

// authenticate resolves the caller and requires role. An X-API-Key header is
// checked against keys; otherwise the session token comes from the
// Authorization header, or from the token query parameter for browsers that
// cannot set headers on a websocket upgrade.
func authenticate(sessions *scope.SessionResolver, keys *scope.KeyStore, role string, logger observe.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		var (
			caller *scope.Caller
			err    error
		)
		switch {
		case keys != nil && c.GetHeader(apiKeyHeader) != "":
			caller, err = keys.Authenticate(ctx, c.GetHeader(apiKeyHeader))
		case c.GetHeader("Authorization") != "":
			caller, err = sessions.FromHeader(ctx, c.GetHeader("Authorization"))
		default:
			caller, err = sessions.Resolve(ctx, c.Query("token"))
		}
		if err != nil {
			logger.Warn(ctx, "admin request rejected", observe.F("path", c.FullPath()), observe.F("error", err.Error()))
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or missing credentials"})
			return
		}

		if err := scope.Authorize(caller, role); err != nil {
			status := http.StatusForbidden
			if errors.Is(err, scope.ErrNoCaller) {
				status = http.StatusUnauthorized
			}
			c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
			return
		}

		c.Set(callerKey, caller.ID)
		c.Request = c.Request.WithContext(scope.WithCaller(ctx, caller))
		c.Next()
	}
}

// requestLog logs every request once it completes.
func requestLog(logger observe.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		fields := []observe.Field{
			observe.F("method", c.Request.Method),
			observe.F("path", c.FullPath()),
			observe.F("status", c.Writer.Status()),
		}
		if id := c.GetString(callerKey); id != "" {
			fields = append(fields, observe.F("caller", id))
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			logger.Error(c.Request.Context(), "request failed", fields...)
			return
		}
		logger.Debug(c.Request.Context(), "request", fields...)
	}
}
