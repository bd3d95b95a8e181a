package tokens

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/seguralta/portal/pkg/logger"
	"github.com/seguralta/portal/pkg/middleware"
)

// MutationAudience is the audience of tokens that authorise a single
// onboarding write against the user store.
const MutationAudience = "portal:user-mutation"

// Issuer signs and verifies short-lived HS256 mutation tokens. It satisfies
// middleware.Verifier so the store client can re-derive the caller from the
// token instead of trusting a caller-supplied id.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer returns an Issuer. An empty secret is replaced by a random
// process-local key, which is enough because tokens never leave the process.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate mutation key: %w", err)
		}
		logger.Warn("JWT_SECRET empty; using a random mutation token key")
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Issuer{secret: key, ttl: ttl, now: time.Now}, nil
}

// Issue returns a signed token for subject.
func (i *Issuer) Issue(subject string) (string, error) {
	if subject == "" {
		return "", errors.New("tokens: empty subject")
	}
	now := i.now()
	claims := jwt.MapClaims{
		"sub": subject,
		"aud": MutationAudience,
		"iat": now.Unix(),
		"exp": now.Add(i.ttl).Unix(),
	}
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return jt.SignedString(i.secret)
}

// Verify parses raw, checking signature, algorithm, audience and expiry.
func (i *Issuer) Verify(_ context.Context, raw string) (middleware.Token, error) {
	parsed, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(MutationAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return nil, err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, errors.New("tokens: invalid claims")
	}
	return middleware.ClaimsToken(claims), nil
}
