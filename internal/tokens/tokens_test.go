package tokens

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/seguralta/portal/pkg/middleware"
)

func TestIssueAndVerify_RoundTripsSubject(t *testing.T) {
	iss, err := NewIssuer("test-secret-32-bytes-should-be-long-enough", 2*time.Minute)
	if err != nil {
		t.Fatalf("NewIssuer error: %v", err)
	}
	tokenStr, err := iss.Issue("user_123")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	claims, err := middleware.VerifyClaims(context.Background(), iss, tokenStr)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if got := middleware.SubjectFromClaims(claims); got != "user_123" {
		t.Fatalf("unexpected sub claim: got=%v", got)
	}
}

func TestIssue_EmptySubjectRejected(t *testing.T) {
	iss, _ := NewIssuer("s", time.Minute)
	if _, err := iss.Issue(""); err == nil {
		t.Fatalf("expected error for empty subject")
	}
}

func TestVerify_Expired(t *testing.T) {
	iss, _ := NewIssuer("another-secret-32-bytes-longgggg", time.Second)
	base := time.Now()
	iss.now = func() time.Time { return base }
	tokenStr, err := iss.Issue("u2")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	iss.now = func() time.Time { return base.Add(5 * time.Second) }
	if _, err := iss.Verify(context.Background(), tokenStr); err == nil {
		t.Fatalf("expected verify to fail after expiry")
	}
}

func TestVerify_WrongSecretFails(t *testing.T) {
	a, _ := NewIssuer("secret-one-32-bytes-xxxxxxxxxxxxxxxx", time.Minute)
	b, _ := NewIssuer("different-secret-xxxxxxxxxxxxxxxx", time.Minute)
	tokenStr, _ := a.Issue("u3")
	if _, err := b.Verify(context.Background(), tokenStr); err == nil {
		t.Fatalf("expected verify to fail with wrong secret")
	}
}

func TestVerify_RandomKeyWhenSecretEmpty(t *testing.T) {
	a, _ := NewIssuer("", time.Minute)
	b, _ := NewIssuer("", time.Minute)
	tokenStr, _ := a.Issue("u4")
	if _, err := a.Verify(context.Background(), tokenStr); err != nil {
		t.Fatalf("issuer should verify its own token: %v", err)
	}
	if _, err := b.Verify(context.Background(), tokenStr); err == nil {
		t.Fatalf("independent random keys must not verify each other's tokens")
	}
}

func TestVerify_WrongAudienceRejected(t *testing.T) {
	secret := "aud-secret-32-bytes-xxxxxxxxxxxxxx"
	iss, _ := NewIssuer(secret, time.Minute)
	claims := jwt.MapClaims{"sub": "u5", "aud": "someone-else", "exp": time.Now().Add(time.Minute).Unix()}
	tokenStr, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if _, err := iss.Verify(context.Background(), tokenStr); err == nil {
		t.Fatalf("expected audience mismatch to fail")
	}
}

func TestVerify_Malformed(t *testing.T) {
	iss, _ := NewIssuer("x", time.Minute)
	if _, err := iss.Verify(context.Background(), "not.a.jwt"); err == nil {
		t.Fatalf("expected verify to fail for malformed token")
	}
}

func seg(b []byte) string { return base64.RawURLEncoding.EncodeToString(b) }

// Rejected when alg=none (unsigned token)
func TestVerify_AlgNoneRejected(t *testing.T) {
	iss, _ := NewIssuer("x", time.Minute)
	payload := `{"sub":"u-none","aud":"portal:user-mutation","exp":9999999999}`
	headerEnc := seg([]byte(`{"alg":"none"}`))
	payloadEnc := seg([]byte(payload))
	tok := headerEnc + "." + payloadEnc + "."
	if _, err := iss.Verify(context.Background(), tok); err == nil {
		t.Fatalf("expected verify to reject alg=none token")
	}
}

// Tampering with payload must fail signature verification
func TestVerify_TamperedPayload(t *testing.T) {
	iss, _ := NewIssuer("tamper-test-secret-32-bytes-xxxxxxx", 5*time.Minute)
	tokenStr, err := iss.Issue("user-t")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	parts := strings.Split(tokenStr, ".")
	if len(parts) != 3 {
		t.Fatalf("unexpected token parts")
	}
	payloadBytes, _ := base64.RawURLEncoding.DecodeString(parts[1])
	payloadStr := strings.Replace(string(payloadBytes), "user-t", "attacker", 1)
	parts[1] = seg([]byte(payloadStr))
	if _, err := iss.Verify(context.Background(), strings.Join(parts, ".")); err == nil {
		t.Fatalf("expected signature verification to fail for tampered token")
	}
}
