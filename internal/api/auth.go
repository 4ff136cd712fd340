package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Context keys set by StaffAuth
const (
	ContextStaffID = "staff_id"
	ContextRole    = "role"
)

var staffRoles = map[string]bool{
	"host":    true,
	"staff":   true,
	"manager": true,
	"admin":   true,
}

// StaffAuth accepts HS256 bearer tokens whose role claim is a staff role
func StaffAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		raw := strings.TrimPrefix(auth, "Bearer ")

		claims := jwt.MapClaims{}
		tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
			return []byte(secret), nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !tok.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		role, _ := claims["role"].(string)
		if !staffRoles[role] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "staff role required"})
			return
		}

		sub, _ := claims.GetSubject()
		c.Set(ContextStaffID, sub)
		c.Set(ContextRole, role)
		c.Next()
	}
}
