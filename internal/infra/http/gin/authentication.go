package ginserver

import (
	"errors"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"rentme-realtime/internal/app/dto"
	"rentme-realtime/internal/auth"
)

const principalContextKey = "rentme.principal"

// AuthMiddleware resolves the bearer token, when present, into a
// principal stored on the gin context.
type AuthMiddleware struct {
	Resolver auth.Resolver
	Logger   *slog.Logger
}

func (m AuthMiddleware) Handle(c *gin.Context) {
	token := auth.BearerToken(c.GetHeader("Authorization"))
	if token == "" || m.Resolver == nil {
		c.Next()
		return
	}
	p, err := m.Resolver.Resolve(c.Request.Context(), token)
	switch {
	case err == nil:
		c.Set(principalContextKey, p)
		c.Set("user_id", p.UserID)
	case errors.Is(err, auth.ErrUnavailable):
		if m.Logger != nil {
			m.Logger.Warn("identity service unavailable", "error", err)
		}
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, dto.Error{Error: "identity service unavailable"})
		return
	default:
		if m.Logger != nil {
			m.Logger.Debug("token validation failed", "error", err)
		}
	}
	c.Next()
}

func currentPrincipal(c *gin.Context) (auth.Principal, bool) {
	val, exists := c.Get(principalContextKey)
	if !exists {
		return auth.Principal{}, false
	}
	p, ok := val.(auth.Principal)
	return p, ok
}

// requireUser writes 401 and returns false when the request carries no
// valid credential.
func requireUser(c *gin.Context) (auth.Principal, bool) {
	p, ok := currentPrincipal(c)
	if !ok || p.UserID == "" {
		c.JSON(http.StatusUnauthorized, dto.Error{Error: "auth required"})
		return auth.Principal{}, false
	}
	return p, true
}
