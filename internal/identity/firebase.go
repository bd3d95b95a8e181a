package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/seguralta/portal/pkg/middleware"
)

// metadataClaim is the custom claim that carries PublicMetadata, so Firebase
// ID tokens expose it exactly where the route gate looks for it.
const metadataClaim = "metadata"

// firebaseAuth is the part of *auth.Client the provider uses.
type firebaseAuth interface {
	GetUser(ctx context.Context, uid string) (*auth.UserRecord, error)
	SetCustomUserClaims(ctx context.Context, uid string, customClaims map[string]interface{}) error
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// FirebaseProvider stores public metadata as Firebase custom claims and
// verifies Firebase ID tokens as session tokens.
type FirebaseProvider struct {
	client firebaseAuth
}

// NewFirebaseProvider builds the Admin SDK client from a service account JSON.
// Escaped newlines in credentials (as found in env files) are restored.
func NewFirebaseProvider(ctx context.Context, projectID, credentials string) (*FirebaseProvider, error) {
	if credentials == "" {
		return nil, errors.New("FIREBASE_CREDENTIALS is not set")
	}
	credentials = strings.ReplaceAll(credentials, `\n`, "\n")

	var conf *firebase.Config
	if projectID != "" {
		conf = &firebase.Config{ProjectID: projectID}
	}
	app, err := firebase.NewApp(ctx, conf, option.WithCredentialsJSON([]byte(credentials)))
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth: %w", err)
	}
	return &FirebaseProvider{client: client}, nil
}

func (p *FirebaseProvider) UpdatePublicMetadata(ctx context.Context, externalID string, md PublicMetadata) error {
	rec, err := p.client.GetUser(ctx, externalID)
	if err != nil {
		if auth.IsUserNotFound(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("firebase get user: %w", err)
	}
	// other custom claims survive; only the metadata claim is overwritten
	claims := make(map[string]interface{}, len(rec.CustomClaims)+1)
	for k, v := range rec.CustomClaims {
		claims[k] = v
	}
	claims[metadataClaim] = md.Map()
	if err := p.client.SetCustomUserClaims(ctx, externalID, claims); err != nil {
		return fmt.Errorf("firebase set claims: %w", err)
	}
	return nil
}

func (p *FirebaseProvider) GetPublicMetadata(ctx context.Context, externalID string) (PublicMetadata, error) {
	rec, err := p.client.GetUser(ctx, externalID)
	if err != nil {
		if auth.IsUserNotFound(err) {
			return PublicMetadata{}, ErrUserNotFound
		}
		return PublicMetadata{}, fmt.Errorf("firebase get user: %w", err)
	}
	raw, _ := rec.CustomClaims[metadataClaim].(map[string]interface{})
	return MetadataFromMap(raw), nil
}

// Verify checks a Firebase ID token. The uid is exposed as "sub".
func (p *FirebaseProvider) Verify(ctx context.Context, raw string) (middleware.Token, error) {
	tok, err := p.client.VerifyIDToken(ctx, raw)
	if err != nil {
		return nil, err
	}
	claims := make(middleware.ClaimsToken, len(tok.Claims)+3)
	for k, v := range tok.Claims {
		claims[k] = v
	}
	claims["sub"] = tok.UID
	claims["exp"] = tok.Expires
	claims["iss"] = tok.Issuer
	return claims, nil
}
