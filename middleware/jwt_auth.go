package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// OwnerClaims are the claims carried by alert-route tokens. The subject
// is the numeric owner id; nothing else is trusted.
type OwnerClaims struct {
	jwt.RegisteredClaims
}

// OwnerAuthMiddleware validates the bearer token on alert routes and
// sets the owner id in the request context.
func OwnerAuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Authorization header is required",
			})
			c.Abort()
			return
		}

		// Extract token from "Bearer <token>" format
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid authorization header format. Use: Bearer <token>",
			})
			c.Abort()
			return
		}

		ownerID, err := validateOwnerToken(tokenString, jwtSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": fmt.Sprintf("Invalid token: %v", err),
			})
			c.Abort()
			return
		}

		c.Set("owner_id", ownerID)
		c.Next()
	}
}

func validateOwnerToken(tokenString, jwtSecret string) (uint, error) {
	if jwtSecret == "" {
		return 0, errors.New("JWT_SECRET not configured")
	}

	token, err := jwt.ParseWithClaims(tokenString, &OwnerClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*OwnerClaims)
	if !ok || !token.Valid {
		return 0, errors.New("invalid token claims")
	}

	if claims.ExpiresAt != nil && claims.ExpiresAt.Before(time.Now()) {
		return 0, errors.New("token has expired")
	}

	ownerID, err := strconv.ParseUint(claims.Subject, 10, 32)
	if err != nil {
		return 0, errors.New("subject is not a valid owner id")
	}
	return uint(ownerID), nil
}

// OwnerFromContext returns the owner id set by OwnerAuthMiddleware.
func OwnerFromContext(c *gin.Context) (uint, error) {
	value, exists := c.Get("owner_id")
	if !exists {
		return 0, errors.New("owner not authenticated")
	}
	ownerID, ok := value.(uint)
	if !ok {
		return 0, errors.New("owner id has unexpected type")
	}
	return ownerID, nil
}
