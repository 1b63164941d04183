package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/smallbiznis/inkwell-auth/internal/domain"
	"github.com/smallbiznis/inkwell-auth/internal/token"
)

const principalKey = "authPrincipal"

// Principal is the authenticated caller attached to the request context.
type Principal struct {
	MemberID    uuid.UUID
	Email       string
	Nickname    string
	Role        domain.Role
	IsActivated bool
}

// Security authenticates bearer tokens. Requests without an Authorization
// header pass through anonymously; requests that present a token must
// present a valid one or are rejected outright.
type Security struct {
	Tokens *token.Service
}

// Authenticate resolves the caller. A missing header means anonymous; a
// present but invalid token is a hard 401, never a silent downgrade.
func (m *Security) Authenticate(c *gin.Context) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		c.Next()
		return
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		abortUnauthorized(c, "Bearer token required.")
		return
	}

	claims, err := m.Tokens.VerifyAccess(strings.TrimSpace(parts[1]))
	if err != nil {
		abortUnauthorized(c, "Invalid access token.")
		return
	}

	memberID, err := uuid.Parse(claims.Subject)
	if err != nil {
		abortUnauthorized(c, "Invalid access token.")
		return
	}

	c.Set(principalKey, Principal{
		MemberID:    memberID,
		Email:       claims.Email,
		Nickname:    claims.Nickname,
		Role:        claims.Role,
		IsActivated: claims.IsActivated,
	})
	c.Next()
}

// RequireRole gates a route on a minimum role. Anonymous callers get 401,
// authenticated callers below the bar get 403.
func RequireRole(min domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := GetPrincipal(c)
		if !ok {
			abortUnauthorized(c, "Authentication required.")
			return
		}
		if !principal.Role.AtLeast(min) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":             "forbidden",
				"error_description": "Insufficient role.",
			})
			return
		}
		c.Next()
	}
}

// GetPrincipal exposes the authenticated caller to handlers.
func GetPrincipal(c *gin.Context) (Principal, bool) {
	value, ok := c.Get(principalKey)
	if !ok {
		return Principal{}, false
	}
	principal, ok := value.(Principal)
	return principal, ok
}

func abortUnauthorized(c *gin.Context, description string) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":             "invalid_token",
		"error_description": description,
	})
}
