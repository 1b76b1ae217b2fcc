package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TokenStatus is the carbon credit token lifecycle state
type TokenStatus string

const (
	TokenActive      TokenStatus = "active"
	TokenTransferred TokenStatus = "transferred"
	TokenRetired     TokenStatus = "retired"
)

// TransactionType classifies ledger transactions
type TransactionType string

const (
	TxMint     TransactionType = "mint"
	TxTransfer TransactionType = "transfer"
	TxRetire   TransactionType = "retire"
)

// TokenMetadata carries the provenance of a minted token. It is written
// once at mint time and never changes.
type TokenMetadata struct {
	VerificationID uuid.UUID `json:"verification_id"`
	EcosystemType  string    `json:"ecosystem_type"`
	Methodology    string    `json:"methodology"`
	Verifier       string    `json:"verifier"`
	GPSCoordinates string    `json:"gps_coordinates"`
	EvidenceHash   string    `json:"evidence_hash"`
}

// CarbonCreditToken is one issuance of verified carbon credits. Tokens are
// whole units of ownership: they change hands and retire in full, never in
// fractions. IssuerHeld marks a token still sitting in the project's issuer
// pool; the first movement out of the pool releases the project's available
// credit counter.
type CarbonCreditToken struct {
	ID               uuid.UUID     `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	SerialNumber     string        `gorm:"not null;uniqueIndex" db:"serial_number" json:"serial_number"`
	ProjectID        uuid.UUID     `gorm:"type:uuid;not null;index" db:"project_id" json:"project_id"`
	OwnerID          uuid.UUID     `gorm:"type:uuid;not null;index" db:"owner_id" json:"owner_id"`
	IssuerHeld       bool          `gorm:"not null;default:false" db:"issuer_held" json:"issuer_held"`
	Amount           float64       `gorm:"not null" db:"amount" json:"amount"` // tCO2e
	Vintage          int           `gorm:"not null" db:"vintage" json:"vintage"`
	Status           TokenStatus   `gorm:"not null;default:'active';index" db:"status" json:"status"`
	Metadata         TokenMetadata `gorm:"column:metadata;serializer:json" db:"-" json:"metadata"`
	RetiredAt        *time.Time    `db:"retired_at" json:"retired_at,omitempty"`
	RetirementReason string        `db:"retirement_reason" json:"retirement_reason,omitempty"`
	Beneficiary      string        `db:"beneficiary" json:"beneficiary,omitempty"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
}

// Retired reports whether the token has left circulation
func (t *CarbonCreditToken) Retired() bool {
	return t.Status == TokenRetired
}

// TransactionRecord is one append-only ledger entry for a token
type TransactionRecord struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	TokenID   uuid.UUID       `gorm:"type:uuid;not null;index" db:"token_id" json:"token_id"`
	Type      TransactionType `gorm:"not null" db:"type" json:"type"`
	FromOwner *uuid.UUID      `gorm:"type:uuid" db:"from_owner" json:"from_owner,omitempty"`
	ToOwner   *uuid.UUID      `gorm:"type:uuid" db:"to_owner" json:"to_owner,omitempty"`
	Amount    float64         `gorm:"not null" db:"amount" json:"amount"`
	Actor     uuid.UUID       `gorm:"type:uuid;not null" db:"actor" json:"actor"`
	Note      string          `db:"note" json:"note,omitempty"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// TableName keeps the ledger entries in the table the transaction queries use.
func (TransactionRecord) TableName() string { return "ledger_transactions" }

// RetirementCertificate is the numbered record issued when a token retires
type RetirementCertificate struct {
	ID                uuid.UUID `gorm:"type:uuid;primaryKey" db:"id" json:"id"`
	CertificateNumber string    `gorm:"not null;uniqueIndex" db:"certificate_number" json:"certificate_number"`
	TokenID           uuid.UUID `gorm:"type:uuid;not null;index" db:"token_id" json:"token_id"`
	ProjectID         uuid.UUID `gorm:"type:uuid;not null;index" db:"project_id" json:"project_id"`
	OwnerID           uuid.UUID `gorm:"type:uuid;not null;index" db:"owner_id" json:"owner_id"`
	Amount            float64   `gorm:"not null" db:"amount" json:"amount"`
	Vintage           int       `gorm:"not null" db:"vintage" json:"vintage"`
	Reason            string    `db:"reason" json:"reason,omitempty"`
	Beneficiary       string    `db:"beneficiary" json:"beneficiary,omitempty"`
	RetiredAt         time.Time `gorm:"not null" db:"retired_at" json:"retired_at"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// Balance is an owner's holdings split by circulation state
type Balance struct {
	OwnerID uuid.UUID `json:"owner_id"`
	Active  float64   `json:"active"`  // tCO2e in active tokens
	Retired float64   `json:"retired"` // tCO2e permanently retired
	Tokens  int       `json:"tokens"`  // active token count
}

// newSerialNumber derives a unique token serial from a fresh uuid:
// BC-<vintage>-<12 hex chars>.
func newSerialNumber(vintage int) string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("BC-%d-%s", vintage, strings.ToUpper(raw[:12]))
}

// newCertificateNumber derives a unique certificate number: RET-<year>-<12 hex chars>
func newCertificateNumber(year int) string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return fmt.Sprintf("RET-%d-%s", year, strings.ToUpper(raw[:12]))
}
