package verification

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Method is how the verifier gathered evidence
type Method string

const (
	MethodFieldVisit       Method = "field_visit"
	MethodDroneSurvey      Method = "drone_survey"
	MethodSatelliteImagery Method = "satellite_imagery"
	MethodMobileData       Method = "mobile_data"
	MethodHybrid           Method = "hybrid"
)

// ValidMethod reports whether m is one of the enumerated methods
func ValidMethod(m Method) bool {
	switch m {
	case MethodFieldVisit, MethodDroneSurvey, MethodSatelliteImagery, MethodMobileData, MethodHybrid:
		return true
	}
	return false
}

// Status is the verification record lifecycle state
type Status string

const (
	StatusPending          Status = "pending"
	StatusInProgress       Status = "in_progress"
	StatusVerified         Status = "verified"
	StatusRejected         Status = "rejected"
	StatusRequiresMoreData Status = "requires_additional_data"
)

// EvidenceItem is one piece of submitted evidence
type EvidenceItem struct {
	ID          uuid.UUID `json:"id"`
	Description string    `json:"description"`
	Ref         string    `json:"ref"` // measurement id, image key, report URL
	Verified    bool      `json:"verified"`
}

// Findings holds the verifier's measured outcomes
type Findings struct {
	CarbonSequestrationRate float64  `json:"carbon_sequestration_rate"` // tCO2e/ha/yr
	AreaVerified            float64  `json:"area_verified"`             // hectares
	BiomassEstimate         float64  `json:"biomass_estimate"`          // tonnes
	ComplianceIssues        []string `json:"compliance_issues"`
}

// VerificationRecord is one verification run over a project. Once verified
// it is frozen: findings and the credit recommendation never change again,
// and RecordHash anchors the frozen content.
type VerificationRecord struct {
	ID                       uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID                uuid.UUID      `gorm:"type:uuid;not null;index" json:"project_id"`
	Verifier                 uuid.UUID      `gorm:"type:uuid;not null" json:"verifier"`
	Method                   Method         `gorm:"not null" json:"verification_method"`
	EvidenceItems            []EvidenceItem `gorm:"serializer:json" json:"evidence_items"`
	Status                   Status         `gorm:"not null;default:'pending';index" json:"status"`
	ConfidenceScore          float64        `json:"confidence_score"` // [0,100]
	Findings                 Findings       `gorm:"serializer:json" json:"findings"`
	MonitoringPeriodYears    float64        `json:"monitoring_period_years"`
	CarbonCreditsRecommended float64        `json:"carbon_credits_recommended"`
	ImmutableRecord          bool           `json:"immutable_record"`
	RecordHash               string         `json:"record_hash,omitempty"`
	CreatedAt                time.Time      `json:"created_at"`
	UpdatedAt                time.Time      `json:"updated_at"`
	DecidedAt                *time.Time     `json:"decided_at,omitempty"`
}

// Terminal reports whether no further edits or transitions apply
func (r *VerificationRecord) Terminal() bool {
	return r.Status == StatusVerified || r.Status == StatusRejected
}

// MintRequest is emitted to the ledger when an approval recommends credits
type MintRequest struct {
	ProjectID      uuid.UUID `json:"project_id"`
	VerificationID uuid.UUID `json:"verification_id"`
	Amount         float64   `json:"amount"`
	Vintage        int       `json:"vintage"`
	EcosystemType  string    `json:"ecosystem_type"`
	Methodology    string    `json:"methodology"`
	Verifier       string    `json:"verifier"`
	GPSCoordinates string    `json:"gps_coordinates"`
	EvidenceHash   string    `json:"evidence_hash"`
}

// Minter accepts mint requests. The ledger implements it; tests use fakes.
type Minter interface {
	Mint(ctx context.Context, req MintRequest) error
}
