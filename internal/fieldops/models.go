package fieldops

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// MeasurementType identifies the field activity recorded
type MeasurementType string

const (
	TypePlantation  MeasurementType = "plantation"
	TypeMonitoring  MeasurementType = "monitoring"
	TypeRestoration MeasurementType = "restoration"
)

// ValidMeasurementType reports whether t is an enumerated measurement type
func ValidMeasurementType(t MeasurementType) bool {
	switch t {
	case TypePlantation, TypeMonitoring, TypeRestoration:
		return true
	}
	return false
}

// SyncStatus tracks a measurement through the offline queue
type SyncStatus string

const (
	SyncOffline SyncStatus = "offline"
	SyncSyncing SyncStatus = "syncing"
	SyncSynced  SyncStatus = "synced"
	SyncError   SyncStatus = "error"
)

// GPS is the captured device fix
type GPS struct {
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
	Accuracy float64 `json:"accuracy"` // meters
}

// FieldMeasurement is a time-stamped measurement batch captured on a field
// device. Once synced it is append-only evidentiary record and is never
// deleted.
type FieldMeasurement struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	Type           MeasurementType `gorm:"not null;index" json:"type"`
	ProjectID      uuid.UUID       `gorm:"type:uuid;not null;index" json:"project_id"`
	Timestamp      time.Time       `gorm:"not null" json:"timestamp"`
	GPS            GPS             `gorm:"embedded;embeddedPrefix:gps_" json:"gps"`
	Payload        datatypes.JSON  `json:"payload"`     // type-dependent measurements
	Photographs    datatypes.JSON  `json:"photographs"` // evidence refs
	FieldOfficer   uuid.UUID       `gorm:"type:uuid;not null" json:"field_officer"`
	OrganizationID uuid.UUID       `gorm:"type:uuid;not null;index" json:"organization_id"`
	DeviceID       string          `gorm:"not null;index" json:"device_id"`
	SyncStatus     SyncStatus      `gorm:"not null;default:'offline'" json:"sync_status"`
	SyncedAt       *time.Time      `json:"synced_at,omitempty"`
	LastError      string          `json:"last_error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// SyncReport summarizes one syncPending run
type SyncReport struct {
	Synced []uuid.UUID `json:"synced"`
	Failed []uuid.UUID `json:"failed"`
}
