package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/persona/backend/internal/infrastructure/auth"
	"github.com/persona/backend/internal/infrastructure/logger"
	"github.com/persona/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// Auth context keys
const (
	JWTClaimsKey  = "jwt_claims"
	ActorKey      = "actor"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// AuthConfig holds configuration for the authentication middleware
type AuthConfig struct {
	// Enabled requires a valid bearer token on every request not skipped
	Enabled bool
	// JWTService validates tokens; required when Enabled
	JWTService *auth.JWTService
	// DefaultActor is recorded when authentication is disabled
	DefaultActor string
	// SkipPaths are paths that don't require authentication
	SkipPaths []string
	// Logger for middleware logging
	Logger *zap.Logger
}

// DefaultAuthConfig returns default authentication configuration
func DefaultAuthConfig(jwtService *auth.JWTService) AuthConfig {
	return AuthConfig{
		Enabled:      jwtService != nil,
		JWTService:   jwtService,
		DefaultActor: "anonymous",
		SkipPaths: []string{
			"/health",
			"/api/v1/system/health",
		},
		Logger: zap.NewNop(),
	}
}

// Authenticate resolves the actor of each request. With authentication
// enabled it requires a valid bearer token and records the token's actor;
// otherwise every request acts as DefaultActor. The actor is put on the
// request context where the command service picks it up.
func Authenticate(cfg AuthConfig) gin.HandlerFunc {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		if !cfg.Enabled {
			setActor(c, cfg.DefaultActor)
			c.Next()
			return
		}

		path := c.Request.URL.Path
		for _, skipPath := range cfg.SkipPaths {
			if path == skipPath {
				c.Next()
				return
			}
		}

		authHeader := c.GetHeader(AuthHeaderKey)
		if authHeader == "" {
			handleAuthError(c, cfg, auth.ErrInvalidToken, "Missing authorization header")
			return
		}
		if !strings.HasPrefix(authHeader, BearerPrefix) {
			handleAuthError(c, cfg, auth.ErrInvalidToken, "Invalid authorization header format")
			return
		}
		tokenString := strings.TrimPrefix(authHeader, BearerPrefix)
		if tokenString == "" {
			handleAuthError(c, cfg, auth.ErrInvalidToken, "Missing token")
			return
		}

		claims, err := cfg.JWTService.ValidateToken(tokenString)
		if err != nil {
			handleAuthError(c, cfg, err, "Token validation failed")
			return
		}

		c.Set(JWTClaimsKey, claims)
		setActor(c, claims.Actor())

		cfg.Logger.Debug("JWT authentication successful",
			zap.String("subject", claims.Subject),
			zap.String("actor", claims.Actor()),
		)
		c.Next()
	}
}

func setActor(c *gin.Context, actor string) {
	if actor == "" {
		return
	}
	c.Set(ActorKey, actor)
	c.Request = c.Request.WithContext(logger.WithActor(c.Request.Context(), actor))
}

// handleAuthError aborts with 401 and the standard error envelope
func handleAuthError(c *gin.Context, cfg AuthConfig, err error, message string) {
	cfg.Logger.Warn("JWT authentication failed",
		zap.Error(err),
		zap.String("message", message),
		zap.String("path", c.Request.URL.Path),
	)

	code := dto.ErrCodeUnauthorized
	msg := "Authentication required"
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		code = dto.ErrCodeTokenExpired
		msg = "Token has expired"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrInvalidClaims),
		errors.Is(err, auth.ErrMissingSubject),
		errors.Is(err, auth.ErrTokenNotYetValid):
		code = dto.ErrCodeTokenInvalid
		msg = "Invalid token"
	}

	c.AbortWithStatusJSON(http.StatusUnauthorized, dto.NewErrorResponseWithRequestID(code, msg, c.GetString(RequestIDKey)))
}

// RequireRole rejects requests whose token lacks role. It is a no-op when
// authentication is disabled.
func RequireRole(enabled bool, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			c.Next()
			return
		}
		claims := GetJWTClaims(c)
		if claims == nil || !claims.HasRole(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeForbidden,
				"Role "+role+" required",
				c.GetString(RequestIDKey),
			))
			return
		}
		c.Next()
	}
}

// GetJWTClaims retrieves JWT claims from gin.Context
func GetJWTClaims(c *gin.Context) *auth.Claims {
	if claims, exists := c.Get(JWTClaimsKey); exists {
		if jwtClaims, ok := claims.(*auth.Claims); ok {
			return jwtClaims
		}
	}
	return nil
}

// GetActor returns the actor resolved for the request
func GetActor(c *gin.Context) string {
	return c.GetString(ActorKey)
}
