package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"careconnect-server/internal/models"
	"careconnect-server/internal/utils"
)

const (
	contextUserID      = "userID"
	contextAccountType = "accountType"
)

// TokenValidator verifies access tokens.
type TokenValidator interface {
	ValidateAccessToken(token string) (*utils.Claims, error)
}

// AuthMiddleware creates a middleware for JWT authentication.
func AuthMiddleware(tokens TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			utils.Unauthorized(c, "Authorization header required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			utils.Unauthorized(c, "Invalid authorization header format")
			return
		}

		claims, err := tokens.ValidateAccessToken(parts[1])
		if err != nil {
			utils.Unauthorized(c, "Invalid token: "+err.Error())
			return
		}

		// Set user information in context for downstream handlers
		c.Set(contextUserID, claims.UserID)
		if claims.AccountType != "" {
			c.Set(contextAccountType, models.AccountType(claims.AccountType))
		}

		c.Next()
	}
}

// RequireAccountType rejects callers whose token does not carry one of
// the allowed account types. It should be used *after* AuthMiddleware.
// Tokens issued before the account type was chosen carry none.
func RequireAccountType(allowed ...models.AccountType) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountType, ok := GetAccountTypeFromContext(c)
		if !ok {
			utils.Unauthorized(c, "Choose an account type first")
			return
		}
		for _, t := range allowed {
			if accountType == t {
				c.Next()
				return
			}
		}
		utils.Unauthorized(c, "You do not have permission to access this resource.")
	}
}

// GetUserIDFromContext returns the authenticated user id.
func GetUserIDFromContext(c *gin.Context) (string, bool) {
	userID, exists := c.Get(contextUserID)
	if !exists {
		return "", false
	}
	idStr, ok := userID.(string)
	return idStr, ok
}

// GetAccountTypeFromContext returns the account type carried by the token.
func GetAccountTypeFromContext(c *gin.Context) (models.AccountType, bool) {
	value, exists := c.Get(contextAccountType)
	if !exists {
		return "", false
	}
	accountType, ok := value.(models.AccountType)
	return accountType, ok
}
