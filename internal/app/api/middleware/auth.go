package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/samber/lo"

	"github.com/whattoeat/kitchenbot/pkg/response"
)

type Role string

const (
	RoleBot   Role = "bot"
	RoleAdmin Role = "admin"
)

// Claims identify a caller: the chat front-end or an operator.
type Claims struct {
	Role Role `json:"role"`
	jwt.StandardClaims
}

const claimsKey = "claims"

// IssueToken signs an HS256 token for role. A zero ttl means no expiry.
func IssueToken(secret string, role Role, subject string, ttl time.Duration, now time.Time) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	claims := Claims{
		Role: role,
		StandardClaims: jwt.StandardClaims{
			Subject:  subject,
			IssuedAt: now.Unix(),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = now.Add(ttl).Unix()
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken verifies an HS256 token and returns its claims.
func ParseToken(secret, token string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// AuthMiddleware accepts bearer tokens whose role is one of allowed. With an
// empty secret every request is rejected.
func AuthMiddleware(secret string, allowed ...Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			unauthorized(c, "auth is not configured")
			return
		}
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			unauthorized(c, "missing bearer token")
			return
		}
		claims, err := ParseToken(secret, token)
		if err != nil {
			requestLogger(c).Warnw("auth_rejected", "error", err)
			unauthorized(c, "invalid token")
			return
		}
		if !lo.Contains(allowed, claims.Role) {
			requestLogger(c).Warnw("auth_forbidden", "role", claims.Role, "path", c.FullPath())
			unauthorized(c, "role not allowed")
			return
		}

		c.Set(claimsKey, claims)
		setRequestLogger(c, requestLogger(c).With("role", claims.Role, "sub", claims.Subject))
		c.Next()
	}
}

// ClaimsFrom returns the claims set by AuthMiddleware.
func ClaimsFrom(c *gin.Context) *Claims {
	if v, ok := c.Get(claimsKey); ok {
		if cl, ok := v.(*Claims); ok {
			return cl
		}
	}
	return nil
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorT[any](response.APIResponseCodeUnauthorized, msg))
}
