package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"postsync/internal/shared/response"
	"postsync/pkg/jwt"
)

// ReplicaIDKey is the context key holding the authenticated replica id.
const ReplicaIDKey = "replica_id"

// PeerAuth verifies the replica's bearer token on peer endpoints.
func PeerAuth(manager *jwt.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. Read the Authorization header
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.AbortWithError(c, http.StatusUnauthorized, "AUTH_001", "missing authorization header")
			return
		}

		// 2. Extract the token from "Bearer <token>"
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			response.AbortWithError(c, http.StatusUnauthorized, "AUTH_002", "invalid authorization header format")
			return
		}

		// 3. Verify the peer token
		claims, err := manager.ValidatePeerToken(parts[1])
		if err != nil {
			log.Warn().
				Err(err).
				Str("request_id", c.GetString(RequestIDKey)).
				Str("ip", c.ClientIP()).
				Msg("Peer token rejected")
			response.AbortWithError(c, http.StatusUnauthorized, "AUTH_003", "invalid token")
			return
		}

		c.Set(ReplicaIDKey, claims.ReplicaID)
		c.Next()
	}
}
