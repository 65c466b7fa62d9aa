package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MiddlewareConfig controls auth enforcement behavior.
type MiddlewareConfig struct {
	PublicPaths map[string]bool
	DisableAuth bool
	Logger      *zap.Logger
	// OnAuthenticated runs after verification; an error rejects the request.
	OnAuthenticated func(c *gin.Context, claims *Claims) error
}

// LocalDevClaims are injected when auth is disabled.
func LocalDevClaims() *Claims {
	return &Claims{
		Subject: "local-dev",
		Email:   "local-dev@localhost",
		Issuer:  "local",
		Raw:     map[string]any{"sub": "local-dev"},
	}
}

// Middleware enforces bearer token auth and injects claims into the request context.
func Middleware(verifier TokenVerifier, cfg MiddlewareConfig) gin.HandlerFunc {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return func(c *gin.Context) {
		if cfg.DisableAuth || AuthDisabled() {
			ctx := WithClaims(c.Request.Context(), LocalDevClaims())
			c.Request = c.Request.WithContext(ctx)
			c.Next()
			return
		}

		if cfg.PublicPaths != nil && cfg.PublicPaths[c.FullPath()] {
			c.Next()
			return
		}

		if verifier == nil {
			respondUnauthorized(c, "auth verifier not configured")
			return
		}

		token, ok := ExtractBearerToken(c.GetHeader("Authorization"))
		if !ok {
			log.Warn("auth failure: missing or malformed Authorization header", zap.String("path", c.Request.URL.Path))
			respondUnauthorized(c, "missing authorization header")
			return
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			log.Warn("auth failure: token invalid", zap.String("path", c.Request.URL.Path), zap.Error(err))
			respondUnauthorized(c, "invalid token")
			return
		}

		if cfg.OnAuthenticated != nil {
			if err := cfg.OnAuthenticated(c, claims); err != nil {
				log.Warn("auth failure: post-auth hook rejected", zap.String("sub", claims.Subject), zap.Error(err))
				respondUnauthorized(c, "identity rejected")
				return
			}
		}

		ctx := WithClaims(c.Request.Context(), claims)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// ExtractBearerToken returns the token of a "Bearer <token>" header value.
func ExtractBearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", false
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}

func respondUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error": message,
	})
}
