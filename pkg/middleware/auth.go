package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// SessionCookie is the cookie holding the raw session token issued by the
// identity provider.
const SessionCookie = "__session"

// Token is minimal interface for a verified token that can expose claims
type Token interface {
	Claims(v interface{}) error
}

// Verifier is the minimal interface the middleware depends on
type Verifier interface {
	Verify(ctx context.Context, raw string) (Token, error)
}

// RevocationChecker reports tokens revoked by sign-out.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, token string) (bool, error)
}

// ClaimsToken is a Token backed by an already decoded claims map.
type ClaimsToken map[string]interface{}

func (t ClaimsToken) Claims(v interface{}) error {
	if mm, ok := v.(*map[string]interface{}); ok {
		*mm = map[string]interface{}(t)
		return nil
	}
	b, err := json.Marshal(map[string]interface{}(t))
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

// BearerToken returns the token of an "Authorization: Bearer <token>" header.
func BearerToken(r *http.Request) (string, bool) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(auth[7:])
	return tok, tok != ""
}

// SessionToken returns the session token from the session cookie, falling
// back to the Authorization header.
func SessionToken(r *http.Request) string {
	if c, err := r.Cookie(SessionCookie); err == nil && c.Value != "" {
		return c.Value
	}
	tok, _ := BearerToken(r)
	return tok
}

// VerifyClaims verifies raw and decodes its claims map.
func VerifyClaims(ctx context.Context, ver Verifier, raw string) (map[string]interface{}, error) {
	tok, err := ver.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	var claims map[string]interface{}
	if err := tok.Claims(&claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// AuthMiddleware returns a Gin middleware that verifies Bearer tokens using the provided verifier.
// Used by the mutation API; pages go through the route gate instead.
func AuthMiddleware(ver Verifier, revoked RevocationChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("Authorization") == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
			return
		}
		token, ok := BearerToken(c.Request)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header"})
			return
		}
		authenticate(c, ver, revoked, token)
	}
}

// SessionAuthMiddleware accepts the session cookie or a Bearer session token.
func SessionAuthMiddleware(ver Verifier, revoked RevocationChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := SessionToken(c.Request)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing session"})
			return
		}
		authenticate(c, ver, revoked, token)
	}
}

func authenticate(c *gin.Context, ver Verifier, revoked RevocationChecker, token string) {
	if revoked != nil {
		if r, err := revoked.IsRevoked(c.Request.Context(), token); err != nil || r {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token revoked"})
			return
		}
	}

	claims, err := VerifyClaims(c.Request.Context(), ver, token)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token", "details": err.Error()})
		return
	}
	setIdentity(c, claims)
	c.Next()
}
