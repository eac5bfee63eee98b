package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/smada/genius-backend/internal/response"
	"github.com/smada/genius-backend/internal/service"
)

const (
	// ContextKeyClaims is the Gin context key for JWT claims.
	ContextKeyClaims = "claims"
)

var errTokenMissing = errors.New("authorization header or token query required")

// TokenValidator parses a bearer token into claims.
type TokenValidator interface {
	ValidateToken(token string) (*service.Claims, error)
}

// RequireStudentJWT validates a student JWT from the Authorization header.
func RequireStudentJWT(auth TokenValidator) gin.HandlerFunc {
	return requireJWT(auth, service.TokenTypeStudent, response.ErrStudentAccessOnly, false)
}

// RequireTeacherJWT validates a teacher JWT from the Authorization header.
// The token query parameter is accepted too, for EventSource clients.
func RequireTeacherJWT(auth TokenValidator) gin.HandlerFunc {
	return requireJWT(auth, service.TokenTypeTeacher, response.ErrTeacherAccessOnly, true)
}

// RequireStudentWSAuth validates a student JWT from the query param ?token=...
// Used for WebSocket upgrade requests.
func RequireStudentWSAuth(auth TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := c.Query("token")
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := auth.ValidateToken(tokenStr)
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, tokenError(err))
			return
		}

		if claims.TokenType != service.TokenTypeStudent {
			response.AbortFail(c, http.StatusForbidden, response.ErrStudentAccessOnly)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

func requireJWT(auth TokenValidator, want service.TokenType, forbidden response.ErrCode, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, err := extractAndValidateClaims(c, auth, allowQuery)
		if err != nil {
			if errors.Is(err, errTokenMissing) {
				response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
				return
			}
			response.AbortFail(c, http.StatusUnauthorized, tokenError(err))
			return
		}

		if claims.TokenType != want {
			response.AbortFail(c, http.StatusForbidden, forbidden)
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// GetClaims retrieves the JWT claims from the Gin context.
func GetClaims(c *gin.Context) *service.Claims {
	val, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	claims, ok := val.(*service.Claims)
	if !ok {
		return nil
	}
	return claims
}

func extractAndValidateClaims(c *gin.Context, auth TokenValidator, allowQuery bool) (*service.Claims, error) {
	tokenStr := ""

	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			tokenStr = parts[1]
		}
	}

	// Fallback for EventSource (SSE) which cannot send headers
	if tokenStr == "" && allowQuery {
		tokenStr = c.Query("token")
	}

	if tokenStr == "" {
		return nil, errTokenMissing
	}

	return auth.ValidateToken(tokenStr)
}

func tokenError(err error) response.ErrCode {
	if errors.Is(err, jwt.ErrTokenExpired) {
		return response.ErrTokenExpired
	}
	return response.ErrTokenInvalid
}
