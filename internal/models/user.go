package models

import "time"

// Role is the authorization level of a portal user.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// ParseRole maps free text to a Role, defaulting to RoleUser.
func ParseRole(s string) Role {
	if Role(s) == RoleAdmin {
		return RoleAdmin
	}
	return RoleUser
}

// User is the thin profile stored in the document database, keyed by the
// identity provider's external id.
type User struct {
	ID                  string    `bson:"_id,omitempty" json:"id"`
	ExternalID          string    `bson:"externalId" json:"externalId"`
	Name                string    `bson:"name" json:"name"`
	Phone               string    `bson:"phone,omitempty" json:"phone,omitempty"`
	CPF                 string    `bson:"cpf,omitempty" json:"cpf,omitempty"`
	Role                Role      `bson:"role" json:"role"`
	OnboardingCompleted bool      `bson:"onboardingCompleted" json:"onboardingCompleted"`
	CreatedAt           time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt           time.Time `bson:"updatedAt" json:"updatedAt"`
}

// IsAdmin reports whether the stored role grants admin pages.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// UserPatch lists the fields a partial update may set. Nil pointers are left
// untouched in the stored record.
type UserPatch struct {
	Name                *string
	Phone               *string
	CPF                 *string
	Role                *Role
	OnboardingCompleted *bool
}

// Apply copies the non-nil fields of p onto u.
func (p UserPatch) Apply(u *User) {
	if p.Name != nil {
		u.Name = *p.Name
	}
	if p.Phone != nil {
		u.Phone = *p.Phone
	}
	if p.CPF != nil {
		u.CPF = *p.CPF
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.OnboardingCompleted != nil {
		u.OnboardingCompleted = *p.OnboardingCompleted
	}
}
