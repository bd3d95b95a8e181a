package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
)

type contextKey string

const (
	claimsKey  contextKey = "claims"
	subjectKey contextKey = "sub"
)

// setIdentity stores the verified identity both on the gin context (for
// handlers) and on the request context (for services that only see ctx).
func setIdentity(c *gin.Context, claims map[string]interface{}) {
	c.Set("claims", claims)
	ctx := WithClaims(c.Request.Context(), claims)
	c.Request = c.Request.WithContext(ctx)
}

// WithClaims returns a context carrying verified claims and their subject.
func WithClaims(ctx context.Context, claims map[string]interface{}) context.Context {
	ctx = context.WithValue(ctx, claimsKey, claims)
	return context.WithValue(ctx, subjectKey, SubjectFromClaims(claims))
}

// SubjectFromContext returns the authenticated external id, or "".
func SubjectFromContext(ctx context.Context) string {
	s, _ := ctx.Value(subjectKey).(string)
	return s
}

// ClaimsFromContext returns the verified session claims, or nil.
func ClaimsFromContext(ctx context.Context) map[string]interface{} {
	m, _ := ctx.Value(claimsKey).(map[string]interface{})
	return m
}

// SubjectFromClaims reads the "sub" claim.
func SubjectFromClaims(claims map[string]interface{}) string {
	s, _ := claims["sub"].(string)
	return s
}

// SessionMetadata returns the public metadata mirrored into the token under
// the "metadata" claim.
func SessionMetadata(claims map[string]interface{}) map[string]interface{} {
	m, _ := claims["metadata"].(map[string]interface{})
	return m
}

// OnboardingComplete reports whether the claims carry metadata.onboardingComplete == true.
// Anything other than a JSON boolean true counts as incomplete.
func OnboardingComplete(claims map[string]interface{}) bool {
	done, _ := SessionMetadata(claims)["onboardingComplete"].(bool)
	return done
}
