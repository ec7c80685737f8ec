package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/irfndi/gatekeeper/internal/authority"
	"github.com/irfndi/gatekeeper/internal/utils"
	"go.uber.org/zap"
)

// UserIDKey is the gin context key holding the authenticated user id.
const UserIDKey = "user_id"

const tokenLeeway = 2 * time.Minute

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	Secret []byte
	// Issuer, when set, must match the token's iss claim.
	Issuer string
	// Public paths skip authentication.
	Public []string
}

// Auth verifies an HS256 bearer token and stores its subject as the user id.
// The raw token is attached to the request context so calls to the remote
// authority are made on the user's behalf.
func Auth(cfg AuthConfig, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(tokenLeeway),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions || isPublicPath(cfg.Public, c.Request.URL.Path) {
			c.Next()
			return
		}

		tokenStr, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing or invalid Authorization header"})
			return
		}

		claims := &jwt.RegisteredClaims{}
		_, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (any, error) {
			return cfg.Secret, nil
		})
		if err != nil {
			if !errors.Is(err, jwt.ErrTokenExpired) {
				logger.Debug("Rejected bearer token", zap.String("token", utils.MaskToken(tokenStr)), zap.Error(err))
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		if claims.Subject == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token has no subject"})
			return
		}

		c.Set(UserIDKey, claims.Subject)
		c.Request = c.Request.WithContext(authority.WithToken(c.Request.Context(), tokenStr))
		c.Next()
	}
}

// UserID returns the authenticated user id, or "" on public routes.
func UserID(c *gin.Context) string {
	return c.GetString(UserIDKey)
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

func isPublicPath(public []string, path string) bool {
	for _, p := range public {
		if path == p || (strings.HasSuffix(p, "/") && strings.HasPrefix(path, p)) {
			return true
		}
	}
	return false
}
