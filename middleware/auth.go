package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cppla/challengehub/utils"
)

const (
	// ContextUserIDKey is the key used to store authenticated user ID in Gin context.
	ContextUserIDKey = "user_id"
	// ContextUsernameKey stores the username inside Gin context.
	ContextUsernameKey = "username"
)

// AuthRequired ensures the request is authenticated via JWT. Tokens are issued by the identity service.
func AuthRequired() gin.HandlerFunc {
	return AuthWithVerifier(utils.NewTokenVerifierFromConfig())
}

// AuthWithVerifier is AuthRequired with an explicit token verifier.
func AuthWithVerifier(verifier *utils.TokenVerifier) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		authHeader := ctx.GetHeader("Authorization")
		if authHeader == "" {
			utils.Error(ctx, http.StatusUnauthorized, 40101, "authorization header missing")
			ctx.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			utils.Error(ctx, http.StatusUnauthorized, 40102, "invalid authorization header format")
			ctx.Abort()
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			utils.Error(ctx, http.StatusUnauthorized, 40103, "empty bearer token")
			ctx.Abort()
			return
		}

		claims, err := verifier.Verify(tokenString)
		if err != nil {
			utils.Error(ctx, http.StatusUnauthorized, 40105, "invalid token")
			ctx.Abort()
			return
		}

		ctx.Set(ContextUserIDKey, claims.UserID)
		ctx.Set(ContextUsernameKey, claims.Username)
		ctx.Next()
	}
}

// AdminRequired allows only the configured admin usernames. Must run after AuthRequired.
func AdminRequired(admins []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(admins))
	for _, a := range admins {
		allowed[strings.ToLower(strings.TrimSpace(a))] = struct{}{}
	}
	return func(ctx *gin.Context) {
		username := strings.ToLower(ctx.GetString(ContextUsernameKey))
		if _, ok := allowed[username]; !ok || username == "" {
			utils.Error(ctx, http.StatusForbidden, 40301, "admin only")
			ctx.Abort()
			return
		}
		ctx.Next()
	}
}
