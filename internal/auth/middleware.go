package auth

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const identityKey = "identity"

// Claims carries the caller's wallet address
type Claims struct {
	Address string `json:"addr"`
	jwt.RegisteredClaims
}

// Middleware resolves the caller's wallet identity from a bearer token.
// Requests without a token proceed anonymously; read endpoints stay open
// and write endpoints gate on RequireIdentity.
func Middleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		tokenStr := strings.TrimPrefix(header, "Bearer ")
		if tokenStr == header {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "malformed authorization header"})
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid || claims.Address == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(identityKey, claims.Address)
		c.Next()
	}
}

// RequireIdentity rejects requests that did not present a wallet identity
func RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if Identity(c) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "wallet identity required"})
			return
		}
		c.Next()
	}
}

// Identity returns the caller's wallet address, or "" when anonymous
func Identity(c *gin.Context) string {
	return c.GetString(identityKey)
}

// IssueToken signs a token for the given wallet address
func IssueToken(secret, address string, ttl time.Duration) (string, error) {
	claims := Claims{
		Address: address,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
