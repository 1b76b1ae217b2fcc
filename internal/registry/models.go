package registry

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// EcosystemType enumerates supported blue-carbon ecosystems
type EcosystemType string

const (
	EcosystemMangrove     EcosystemType = "mangrove"
	EcosystemSeagrass     EcosystemType = "seagrass"
	EcosystemSaltmarsh    EcosystemType = "saltmarsh"
	EcosystemTidalWetland EcosystemType = "tidal_wetland"
)

// ValidEcosystemType reports whether t is one of the enumerated ecosystems
func ValidEcosystemType(t EcosystemType) bool {
	switch t {
	case EcosystemMangrove, EcosystemSeagrass, EcosystemSaltmarsh, EcosystemTidalWetland:
		return true
	}
	return false
}

// ProjectStatus is the project lifecycle state
type ProjectStatus string

const (
	StatusPending          ProjectStatus = "pending"
	StatusActive           ProjectStatus = "active"
	StatusVerified         ProjectStatus = "verified"
	StatusRejected         ProjectStatus = "rejected"
	StatusRequiresMoreData ProjectStatus = "requires_additional_data"
)

// Location pins a project site
type Location struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	State    string  `json:"state"`
	District string  `json:"district"`
}

// Project represents a blue-carbon restoration project. The registry is the
// single writer of Status, TotalCreditsIssued, and AvailableCredits; the
// verification workflow and the ledger mutate them only through granted
// registry operations.
type Project struct {
	ID                 uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name               string         `gorm:"not null" json:"name"`
	Description        string         `json:"description"`
	EcosystemType      EcosystemType  `gorm:"not null" json:"ecosystem_type"`
	Location           Location       `gorm:"embedded;embeddedPrefix:location_" json:"location"`
	Area               float64        `gorm:"not null" json:"area"` // hectares
	Methodology        string         `json:"methodology"`
	StartDate          time.Time      `json:"start_date"`
	Status             ProjectStatus  `gorm:"not null;default:'pending';index" json:"status"`
	TotalCreditsIssued float64        `gorm:"not null;default:0" json:"total_credits_issued"`
	AvailableCredits   float64        `gorm:"not null;default:0" json:"available_credits"`
	Boundary           datatypes.JSON `json:"boundary,omitempty"` // GeoJSON
	CreatedBy          uuid.UUID      `gorm:"type:uuid;not null;index" json:"created_by"`
	OrganizationID     uuid.UUID      `gorm:"type:uuid;not null;index" json:"organization_id"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
	DeletedAt          gorm.DeletedAt `gorm:"index" json:"-"`
}

// ProjectStatusHistory tracks status changes
type ProjectStatusHistory struct {
	ID        uuid.UUID     `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProjectID uuid.UUID     `gorm:"type:uuid;not null;index" json:"project_id"`
	Status    ProjectStatus `gorm:"not null" json:"status"`
	ChangedAt time.Time     `json:"changed_at"`
	ChangedBy uuid.UUID     `gorm:"type:uuid" json:"changed_by"`
}

// ProjectActivity logs activities on the project
type ProjectActivity struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProjectID    uuid.UUID `gorm:"type:uuid;not null;index" json:"project_id"`
	ActivityType string    `gorm:"not null" json:"activity_type"`
	Description  string    `json:"description"`
	CreatedAt    time.Time `json:"created_at"`
	UserID       uuid.UUID `gorm:"type:uuid" json:"user_id"`
}
