package fieldops

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"blue-carbon/mrv-portal/mrv-portal-backend/pkg/domain"
)

// MeasurementStore is the synced, append-only measurement record store
type MeasurementStore interface {
	Save(ctx context.Context, m *FieldMeasurement) error
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*FieldMeasurement, error)
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*FieldMeasurement, error)
	CountByProject(ctx context.Context, projectID uuid.UUID) (int64, error)
}

// GormMeasurementStore implements MeasurementStore on PostgreSQL
type GormMeasurementStore struct {
	db *gorm.DB
}

func NewGormMeasurementStore(db *gorm.DB) *GormMeasurementStore {
	return &GormMeasurementStore{db: db}
}

func (s *GormMeasurementStore) Save(ctx context.Context, m *FieldMeasurement) error {
	return s.db.WithContext(ctx).Create(m).Error
}

func (s *GormMeasurementStore) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&FieldMeasurement{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

func (s *GormMeasurementStore) GetByID(ctx context.Context, id uuid.UUID) (*FieldMeasurement, error) {
	var m FieldMeasurement
	if err := s.db.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *GormMeasurementStore) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*FieldMeasurement, error) {
	var measurements []*FieldMeasurement
	err := s.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("timestamp").
		Find(&measurements).Error
	return measurements, err
}

func (s *GormMeasurementStore) CountByProject(ctx context.Context, projectID uuid.UUID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&FieldMeasurement{}).Where("project_id = ?", projectID).Count(&count).Error
	return count, err
}

// InMemoryMeasurementStore backs the test suites
type InMemoryMeasurementStore struct {
	mu       sync.RWMutex
	records  map[uuid.UUID]FieldMeasurement
	failNext error // test hook: next Save returns this error once
}

func NewInMemoryMeasurementStore() *InMemoryMeasurementStore {
	return &InMemoryMeasurementStore{records: make(map[uuid.UUID]FieldMeasurement)}
}

// FailNextSave makes the next Save call fail with err. Tests use it to
// simulate an unreachable backend mid-sync.
func (s *InMemoryMeasurementStore) FailNextSave(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = err
}

func (s *InMemoryMeasurementStore) Save(_ context.Context, m *FieldMeasurement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}
	s.records[m.ID] = *m
	return nil
}

func (s *InMemoryMeasurementStore) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[id]
	return ok, nil
}

func (s *InMemoryMeasurementStore) GetByID(_ context.Context, id uuid.UUID) (*FieldMeasurement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.records[id]; ok {
		record := m
		return &record, nil
	}
	return nil, domain.ErrNotFound
}

func (s *InMemoryMeasurementStore) ListByProject(_ context.Context, projectID uuid.UUID) ([]*FieldMeasurement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var measurements []*FieldMeasurement
	for _, m := range s.records {
		if m.ProjectID == projectID {
			record := m
			measurements = append(measurements, &record)
		}
	}
	sort.Slice(measurements, func(i, j int) bool {
		return measurements[i].Timestamp.Before(measurements[j].Timestamp)
	})
	return measurements, nil
}

func (s *InMemoryMeasurementStore) CountByProject(_ context.Context, projectID uuid.UUID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, m := range s.records {
		if m.ProjectID == projectID {
			count++
		}
	}
	return count, nil
}
