package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"panicdesk/internal/utils"
)

// Context keys set by AuthRequired.
const (
	ContextOperatorID = "operator_id"
	ContextRole       = "role"
	ContextDistrictID = "district_id"
	ContextAuthToken  = "auth_token"
)

// AuthRequired validates the operator JWT and sets the operator context. Browsers
// cannot set headers on websocket upgrades, so a token query parameter is also
// accepted.
func AuthRequired(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			utils.ErrorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", "Bearer token required")
			c.Abort()
			return
		}

		claims, err := utils.ValidateToken(tokenString, secret)
		if err != nil {
			utils.ErrorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", utils.ErrInvalidToken)
			c.Abort()
			return
		}

		c.Set(ContextOperatorID, claims.OperatorID)
		c.Set(ContextRole, claims.Role)
		c.Set(ContextDistrictID, claims.DistrictID)
		c.Set(ContextAuthToken, tokenString)

		c.Next()
	}
}

// RoleRequired rejects operators whose role is not in roles.
func RoleRequired(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(ContextRole)
		if role == "" {
			utils.UnauthorizedResponse(c)
			c.Abort()
			return
		}

		if !utils.Contains(roles, role) {
			utils.ErrorResponse(c, http.StatusForbidden, "FORBIDDEN", "role "+role+" may not use this console")
			c.Abort()
			return
		}

		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			return ""
		}
		return strings.TrimSpace(tokenString)
	}
	return c.Query("token")
}
