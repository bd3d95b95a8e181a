// Package identity talks to the external identity provider: it reads and
// overwrites the public metadata mirrored into session tokens and decodes the
// user payloads the provider pushes through webhooks.
package identity

import (
	"context"
	"errors"
	"strings"

	"github.com/seguralta/portal/internal/models"
)

// ErrUserNotFound is returned when the provider has no user with the given id.
var ErrUserNotFound = errors.New("identity: user not found")

// PublicMetadata is the provider-side profile copied into every freshly
// issued session token under the "metadata" claim.
type PublicMetadata struct {
	OnboardingComplete bool
	Name               string
	Phone              string
	CPF                string
	Role               string
}

// Map renders the metadata in the shape stored at the provider.
func (m PublicMetadata) Map() map[string]interface{} {
	out := map[string]interface{}{"onboardingComplete": m.OnboardingComplete}
	if m.Name != "" {
		out["name"] = m.Name
	}
	if m.Phone != "" {
		out["phone"] = m.Phone
	}
	if m.CPF != "" {
		out["cpf"] = m.CPF
	}
	if m.Role != "" {
		out["role"] = m.Role
	}
	return out
}

// MetadataFromMap decodes provider metadata. onboardingComplete is only true
// for a JSON boolean true; strings such as "true" do not count.
func MetadataFromMap(raw map[string]interface{}) PublicMetadata {
	var m PublicMetadata
	m.OnboardingComplete, _ = raw["onboardingComplete"].(bool)
	m.Name = stringField(raw, "name")
	m.Phone = stringField(raw, "phone")
	m.CPF = stringField(raw, "cpf")
	m.Role = stringField(raw, "role")
	return m
}

func stringField(raw map[string]interface{}, key string) string {
	s, _ := raw[key].(string)
	return strings.TrimSpace(s)
}

// Provider is the subset of the identity provider's admin API the portal uses.
type Provider interface {
	// UpdatePublicMetadata overwrites the user's public metadata.
	UpdatePublicMetadata(ctx context.Context, externalID string, md PublicMetadata) error
	// GetPublicMetadata returns ErrUserNotFound for unknown users.
	GetPublicMetadata(ctx context.Context, externalID string) (PublicMetadata, error)
}

// UserPayload is the user object carried by user.* webhook events.
type UserPayload struct {
	ID             string                 `json:"id"`
	FirstName      *string                `json:"first_name"`
	LastName       *string                `json:"last_name"`
	PublicMetadata map[string]interface{} `json:"public_metadata"`
}

// Event is a provider webhook envelope.
type Event struct {
	Type string      `json:"type"`
	Data UserPayload `json:"data"`
}

// Profile is what the store derives from a webhook payload. Phone and CPF
// are empty when the payload does not carry them.
type Profile struct {
	ExternalID          string
	Name                string
	Phone               string
	CPF                 string
	Role                models.Role
	OnboardingCompleted bool
}

// Profile derives store fields from the payload: metadata name first, then
// first and last name joined by a space.
func (p UserPayload) Profile() Profile {
	md := MetadataFromMap(p.PublicMetadata)
	name := md.Name
	if name == "" {
		var parts []string
		for _, s := range []*string{p.FirstName, p.LastName} {
			if s != nil && strings.TrimSpace(*s) != "" {
				parts = append(parts, strings.TrimSpace(*s))
			}
		}
		name = strings.Join(parts, " ")
	}
	return Profile{
		ExternalID:          p.ID,
		Name:                name,
		Phone:               md.Phone,
		CPF:                 md.CPF,
		Role:                models.ParseRole(md.Role),
		OnboardingCompleted: md.OnboardingComplete,
	}
}
