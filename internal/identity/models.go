package identity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role determines which capabilities a user holds. Immutable after
// registration.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleNGO        Role = "ngo"
	RolePanchayat  Role = "panchayat"
	RoleGovernment Role = "government"
	RoleVerifier   Role = "verifier"
)

// OrgType scopes data access and display
type OrgType string

const (
	OrgTypeNGO        OrgType = "NGO"
	OrgTypeGovernment OrgType = "government"
	OrgTypePanchayat  OrgType = "panchayat"
	OrgTypePrivate    OrgType = "private"
	OrgTypeCommunity  OrgType = "community"
	OrgTypeVerifier   OrgType = "verifier"
)

// User represents a registered platform actor
type User struct {
	ID             uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name           string         `gorm:"not null" json:"name"`
	Email          string         `gorm:"uniqueIndex;not null" json:"email"`
	Role           Role           `gorm:"not null" json:"role"`
	OrganizationID uuid.UUID      `gorm:"type:uuid;not null;index" json:"organization_id"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}

// Organization groups users and scopes project visibility
type Organization struct {
	ID                 uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name               string         `gorm:"not null" json:"name"`
	Type               OrgType        `gorm:"not null" json:"type"`
	RegistrationNumber string         `gorm:"uniqueIndex" json:"registration_number"`
	Location           string         `json:"location"`
	ContactEmail       string         `json:"contact_email"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
}

// Credential stores the bcrypt hash for a user. Plaintext is never kept.
type Credential struct {
	UserID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	PasswordHash []byte    `gorm:"not null" json:"-"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Session is a resolved login. Token is the signed JWT handed to the client;
// the store keeps it so logout can revoke before expiry.
type Session struct {
	Token     string    `gorm:"primaryKey" json:"token"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Expired reports whether the session is past its expiry
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
