package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	headerName = "X-API-Key"
	roleKey    = "auth.role"
)

// Role is the access tier of a caller. Admin can do everything a kiosk can.
type Role string

const (
	RoleKiosk Role = "kiosk"
	RoleAdmin Role = "admin"
)

func (r Role) allows(want Role) bool {
	return r == RoleAdmin || r == want
}

// Middleware authenticates a request by X-API-Key (admin) or by a bearer
// JWT carrying a role claim. With neither apiKey nor jwtSecret set,
// authentication is disabled and every caller is admin.
func Middleware(apiKey, jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" && jwtSecret == "" {
			c.Set(roleKey, RoleAdmin)
			c.Next()
			return
		}

		if provided := c.GetHeader(headerName); provided != "" {
			if apiKey == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
					"error": "invalid API key",
				})
				return
			}
			c.Set(roleKey, RoleAdmin)
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if jwtSecret == "" || !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing credentials",
			})
			return
		}

		claims, err := ParseToken(jwtSecret, strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid token",
			})
			return
		}
		c.Set(roleKey, claims.Role)
		c.Set("auth.subject", claims.Subject)
		c.Next()
	}
}

// Require rejects callers whose role does not cover role.
func Require(role Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !RoleOf(c).allows(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "requires " + string(role) + " role",
			})
			return
		}
		c.Next()
	}
}

// RoleOf returns the role set by Middleware, or "" for anonymous callers.
func RoleOf(c *gin.Context) Role {
	v, ok := c.Get(roleKey)
	if !ok {
		return ""
	}
	r, _ := v.(Role)
	return r
}
