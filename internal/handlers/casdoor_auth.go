package handlers

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/test-access-service/internal/config"
	"github.com/SAP-F-2025/test-access-service/internal/models"
	"github.com/SAP-F-2025/test-access-service/internal/repositories"
	"github.com/SAP-F-2025/test-access-service/internal/repositories/casdoor"
)

const principalContextKey = "principal"

// TokenParser verifies a bearer token and returns its claims
type TokenParser interface {
	ParseJwtToken(token string) (*casdoorsdk.Claims, error)
}

// CasdoorAuthMiddleware provides authentication using Casdoor SDK
type CasdoorAuthMiddleware struct {
	parser   TokenParser
	userRepo repositories.UserRepository
}

// NewCasdoorAuthMiddleware creates a new Casdoor authentication middleware
func NewCasdoorAuthMiddleware(cfg config.CasdoorConfig, userRepo repositories.UserRepository) *CasdoorAuthMiddleware {
	client := casdoor.NewClient(casdoor.CasdoorConfig{
		Endpoint:         cfg.Endpoint,
		ClientID:         cfg.ClientID,
		ClientSecret:     cfg.ClientSecret,
		Certificate:      cfg.Cert,
		OrganizationName: cfg.Organization,
		ApplicationName:  cfg.Application,
	})
	return NewAuthMiddleware(client, userRepo)
}

// NewAuthMiddleware builds the middleware around any token parser
func NewAuthMiddleware(parser TokenParser, userRepo repositories.UserRepository) *CasdoorAuthMiddleware {
	return &CasdoorAuthMiddleware{
		parser:   parser,
		userRepo: userRepo,
	}
}

// AuthMiddleware returns a Gin middleware function for Casdoor authentication
func (cam *CasdoorAuthMiddleware) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "authorization header missing")
			return
		}

		// "Bearer <token>"
		tokenParts := strings.Fields(authHeader)
		if len(tokenParts) != 2 || strings.ToLower(tokenParts[0]) != "bearer" {
			abortUnauthorized(c, "invalid authorization header format")
			return
		}

		claims, err := cam.parser.ParseJwtToken(tokenParts[1])
		if err != nil {
			abortUnauthorized(c, fmt.Sprintf("invalid token: %v", err))
			return
		}

		principal, err := cam.principalFromClaims(c.Request.Context(), claims)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
				Message: "Access denied",
				Code:    "unknown_role",
				Details: err.Error(),
			})
			return
		}

		c.Set(principalContextKey, principal)
		c.Set("user_id", principal.UserID)
		c.Set("user_role", principal.Role)
		c.Set("user_email", principal.Email)

		c.Next()
	}
}

// RequireRoleMiddleware checks if user has required role
func (cam *CasdoorAuthMiddleware) RequireRoleMiddleware(requiredRoles ...models.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole, exists := c.Get("user_role")
		role, ok := userRole.(models.UserRole)
		if !exists || !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
				Message: "user role not found in context",
				Code:    "not_authorized",
			})
			return
		}

		if !slices.Contains(requiredRoles, role) {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{
				Message: fmt.Sprintf("insufficient permissions, required role: %v", requiredRoles),
				Code:    "not_authorized",
			})
			return
		}

		c.Next()
	}
}

// principalFromClaims prefers the user directory's view of the caller and
// falls back to the token claims when the directory cannot be reached. A
// role that maps to nothing is refused rather than defaulted.
func (cam *CasdoorAuthMiddleware) principalFromClaims(ctx context.Context, claims *casdoorsdk.Claims) (models.Principal, error) {
	userID := claims.User.Id
	if userID == "" {
		return models.Principal{}, fmt.Errorf("invalid user ID in token")
	}

	user, err := cam.userRepo.GetByID(ctx, userID)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return models.Principal{}, fmt.Errorf("user %s is not known to the directory", userID)
		}
		user = &models.User{
			ID:       userID,
			FullName: claims.User.DisplayName,
			Email:    claims.User.Email,
			Role:     casdoor.ResolveRole(&claims.User),
		}
	}

	return user.Principal()
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
		Message: message,
		Code:    "unauthenticated",
	})
}
