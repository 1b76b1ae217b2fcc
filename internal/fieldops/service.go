package fieldops

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"

	"blue-carbon/mrv-portal/mrv-portal-backend/internal/identity"
	"blue-carbon/mrv-portal/mrv-portal-backend/internal/notifications"
	"blue-carbon/mrv-portal/mrv-portal-backend/internal/registry"
	"blue-carbon/mrv-portal/mrv-portal-backend/pkg/domain"
	"blue-carbon/mrv-portal/mrv-portal-backend/pkg/geospatial"
)

// SaveMeasurementRequest carries the saveOffline command input
type SaveMeasurementRequest struct {
	Type        MeasurementType        `json:"type"`
	ProjectID   uuid.UUID              `json:"project_id"`
	Timestamp   time.Time              `json:"timestamp"`
	GPS         GPS                    `json:"gps"`
	Payload     map[string]interface{} `json:"payload"`
	Photographs []string               `json:"photographs"`
	DeviceID    string                 `json:"device_id"`
}

// Service is the field/monitoring record store
type Service struct {
	queue       OfflineQueue
	store       MeasurementStore
	projects    *registry.Service
	statusGrant registry.Grant
	events      notifications.Publisher
	logger      *zap.Logger
	batchSize   int

	// serializes concurrent syncs per device
	syncGroup singleflight.Group
}

// NewService creates the record store service. The status grant lets the
// first synced record activate a pending project.
func NewService(
	queue OfflineQueue,
	store MeasurementStore,
	projects *registry.Service,
	statusGrant registry.Grant,
	events notifications.Publisher,
	batchSize int,
	logger *zap.Logger,
) *Service {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Service{
		queue:       queue,
		store:       store,
		projects:    projects,
		statusGrant: statusGrant,
		events:      events,
		logger:      logger,
		batchSize:   batchSize,
	}
}

// SaveOffline validates and appends a measurement to the device queue. It
// always succeeds locally once validation passes; connectivity is not
// required.
func (s *Service) SaveOffline(ctx context.Context, actor *identity.User, req SaveMeasurementRequest) (uuid.UUID, error) {
	if !actor.Role.Can(identity.CapMeasurementSubmit) {
		return uuid.Nil, &domain.AuthorizationError{Capability: string(identity.CapMeasurementSubmit)}
	}

	verrs := &domain.ValidationErrors{}
	if !ValidMeasurementType(req.Type) {
		verrs.Add("type", fmt.Sprintf("%q is not a supported measurement type", req.Type))
	}
	if req.ProjectID == uuid.Nil {
		verrs.Add("project_id", "is required")
	}
	if !geospatial.ValidCoordinates(req.GPS.Lat, req.GPS.Lng) {
		verrs.Add("gps", "coordinates out of range")
	}
	if req.DeviceID == "" {
		verrs.Add("device_id", "is required")
	}
	if !verrs.Empty() {
		return uuid.Nil, verrs
	}

	timestamp := req.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	payload, err := jsonBlob(req.Payload)
	if err != nil {
		return uuid.Nil, err
	}
	photos, err := jsonBlob(req.Photographs)
	if err != nil {
		return uuid.Nil, err
	}

	m := &FieldMeasurement{
		ID:             uuid.New(),
		Type:           req.Type,
		ProjectID:      req.ProjectID,
		Timestamp:      timestamp,
		GPS:            req.GPS,
		Payload:        payload,
		Photographs:    photos,
		FieldOfficer:   actor.ID,
		OrganizationID: actor.OrganizationID,
		DeviceID:       req.DeviceID,
		SyncStatus:     SyncOffline,
		CreatedAt:      time.Now(),
	}

	if err := s.queue.Enqueue(ctx, m); err != nil {
		return uuid.Nil, err
	}

	s.logger.Info("Measurement saved offline",
		zap.String("measurement_id", m.ID.String()),
		zap.String("device_id", m.DeviceID),
		zap.String("type", string(m.Type)))

	return m.ID, nil
}

// SyncPending drains the device queue oldest-first. Concurrent calls for the
// same device collapse into one run. Each measurement ends up either fully
// synced or still offline/error; an errored one stays queued for the next
// attempt (at-least-once).
func (s *Service) SyncPending(ctx context.Context, actor *identity.User, deviceID string) (*SyncReport, error) {
	if !actor.Role.Can(identity.CapMeasurementSync) {
		return nil, &domain.AuthorizationError{Capability: string(identity.CapMeasurementSync)}
	}
	if deviceID == "" {
		return nil, (&domain.ValidationErrors{}).Add("device_id", "is required")
	}

	result, err, _ := s.syncGroup.Do(deviceID, func() (interface{}, error) {
		return s.drainQueue(ctx, deviceID)
	})
	if result == nil {
		return nil, err
	}
	return result.(*SyncReport), err
}

// SyncAll drains every device queue in turn. It is the unattended variant of
// SyncPending used by the background sync worker, so it carries no actor; callers
// must not expose it on an interactive surface.
func (s *Service) SyncAll(ctx context.Context) (map[string]*SyncReport, error) {
	devices, err := s.queue.Devices(ctx)
	if err != nil {
		return nil, err
	}

	reports := make(map[string]*SyncReport, len(devices))
	for _, deviceID := range devices {
		if ctx.Err() != nil {
			return reports, ctx.Err()
		}
		result, err, _ := s.syncGroup.Do(deviceID, func() (interface{}, error) {
			return s.drainQueue(ctx, deviceID)
		})
		if err != nil {
			s.logger.Warn("Device sync failed",
				zap.String("device_id", deviceID),
				zap.Error(err))
			continue
		}
		reports[deviceID] = result.(*SyncReport)
	}
	return reports, nil
}

func (s *Service) drainQueue(ctx context.Context, deviceID string) (*SyncReport, error) {
	pending, err := s.queue.Pending(ctx, deviceID, s.batchSize)
	if err != nil {
		return nil, err
	}

	report := &SyncReport{}
	for _, m := range pending {
		// a cancelled sync leaves the remaining records untouched
		if ctx.Err() != nil {
			return report, ctx.Err()
		}

		if err := s.syncOne(ctx, deviceID, m); err != nil {
			report.Failed = append(report.Failed, m.ID)
			continue
		}
		report.Synced = append(report.Synced, m.ID)
	}
	return report, nil
}

// syncOne pushes a single measurement through offline -> syncing ->
// (synced | error). The measurement id is the idempotency key: a record
// already present in the store is acked without a second submission.
func (s *Service) syncOne(ctx context.Context, deviceID string, m *FieldMeasurement) error {
	exists, err := s.store.Exists(ctx, m.ID)
	if err != nil {
		return s.markFailed(ctx, m, err)
	}
	if exists {
		return s.queue.Ack(ctx, deviceID, m.ID)
	}

	m.SyncStatus = SyncSyncing
	if err := s.queue.Update(ctx, m); err != nil {
		return err
	}

	now := time.Now()
	m.SyncStatus = SyncSynced
	m.SyncedAt = &now
	m.LastError = ""
	if err := s.store.Save(ctx, m); err != nil {
		return s.markFailed(ctx, m, err)
	}
	if err := s.queue.Ack(ctx, deviceID, m.ID); err != nil {
		// the record is stored; the next sync will find it via the
		// idempotency check and ack without resubmitting
		s.logger.Warn("Failed to ack synced measurement", zap.Error(err))
	}

	s.activateIfFirst(ctx, m)

	s.events.Publish(notifications.Event{
		Type:      notifications.EventMeasurementSynced,
		ProjectID: m.ProjectID,
		Payload:   map[string]interface{}{"measurement_id": m.ID.String(), "type": string(m.Type)},
	})

	return nil
}

func (s *Service) markFailed(ctx context.Context, m *FieldMeasurement, cause error) error {
	m.SyncStatus = SyncError
	m.SyncedAt = nil
	m.LastError = cause.Error()
	if err := s.queue.Update(ctx, m); err != nil {
		s.logger.Warn("Failed to record sync error", zap.Error(err))
	}
	s.logger.Warn("Measurement sync failed",
		zap.String("measurement_id", m.ID.String()),
		zap.Error(cause))
	return &domain.TransientSyncError{Cause: cause}
}

// activateIfFirst moves a pending project to active once it has a synced
// record. A project already past pending is left alone.
func (s *Service) activateIfFirst(ctx context.Context, m *FieldMeasurement) {
	err := s.projects.TransitionStatus(ctx, s.statusGrant, m.ProjectID, registry.StatusActive, m.FieldOfficer)
	if err != nil {
		var stateErr *domain.StateConflictError
		if errors.As(err, &stateErr) || errors.Is(err, domain.ErrNotFound) {
			return
		}
		s.logger.Warn("Failed to activate project", zap.Error(err))
	}
}

// GetMeasurement returns a synced measurement. Visibility follows the
// measurement's project: a record on a project the actor cannot see reads
// as not found.
func (s *Service) GetMeasurement(ctx context.Context, actor *identity.User, id uuid.UUID) (*FieldMeasurement, error) {
	m, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.projects.GetProjectVisibleTo(ctx, actor, m.ProjectID); err != nil {
		return nil, err
	}
	return m, nil
}

// ListByProject returns the synced measurements for a project the actor can
// see, oldest first
func (s *Service) ListByProject(ctx context.Context, actor *identity.User, projectID uuid.UUID) ([]*FieldMeasurement, error) {
	if _, err := s.projects.GetProjectVisibleTo(ctx, actor, projectID); err != nil {
		return nil, err
	}
	return s.store.ListByProject(ctx, projectID)
}

// CountByProject returns the number of synced measurements for a project
func (s *Service) CountByProject(ctx context.Context, projectID uuid.UUID) (int64, error) {
	return s.store.CountByProject(ctx, projectID)
}

func jsonBlob(v interface{}) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	blob, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return datatypes.JSON(blob), nil
}
