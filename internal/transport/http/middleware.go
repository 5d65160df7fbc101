package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"learnloop-service/internal/domain"
)

const contextKeyCaller = "caller"

// TokenParser turns a bearer token into the caller it identifies.
type TokenParser interface {
	Parse(token string) (domain.Caller, error)
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(contextKeyRequestID, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func requestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := log.Info()
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		}
		if err := c.Errors.Last(); err != nil {
			event = event.Err(err.Err)
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("request_id", c.GetString(contextKeyRequestID)).
			Msg("request")
	}
}

// requireAuth reads "Authorization: Bearer <token>". When allowQuery is set
// a ?token= parameter is accepted too, for websocket upgrades that cannot
// carry headers.
func requireAuth(tokens TokenParser, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := ""
		if header := c.GetHeader("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
				token = strings.TrimSpace(parts[1])
			}
		}
		if token == "" && allowQuery {
			token = c.Query("token")
		}
		if token == "" {
			abortFail(c, http.StatusUnauthorized, CodeTokenRequired, "authentication token required")
			return
		}
		caller, err := tokens.Parse(token)
		if err != nil {
			abortFail(c, http.StatusUnauthorized, CodeTokenInvalid, "authentication token invalid")
			return
		}
		c.Set(contextKeyCaller, caller)
		c.Next()
	}
}

// requireAdmin rejects callers without admin capability. It must run after
// requireAuth.
func requireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := callerFrom(c)
		if caller.UserID == "" {
			abortFail(c, http.StatusUnauthorized, CodeTokenRequired, "authentication token required")
			return
		}
		if !caller.IsAdmin() {
			abortFail(c, http.StatusForbidden, CodePermissionDenied, domain.ErrAdminRequired.Error())
			return
		}
		c.Next()
	}
}

func callerFrom(c *gin.Context) domain.Caller {
	v, ok := c.Get(contextKeyCaller)
	if !ok {
		return domain.Caller{}
	}
	caller, _ := v.(domain.Caller)
	return caller
}
