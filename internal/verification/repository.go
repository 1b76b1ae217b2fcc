package verification

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"blue-carbon/mrv-portal/mrv-portal-backend/pkg/domain"
)

// QueueFilter narrows the verification queue listing
type QueueFilter struct {
	Status    Status
	ProjectID uuid.UUID
	Verifier  uuid.UUID
}

// Repository is the verification record data access interface
type Repository interface {
	Create(ctx context.Context, record *VerificationRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*VerificationRecord, error)
	Update(ctx context.Context, record *VerificationRecord) error
	List(ctx context.Context, filter QueueFilter) ([]*VerificationRecord, error)
}

// GormRepository implements Repository on PostgreSQL
type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Create(ctx context.Context, record *VerificationRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *GormRepository) GetByID(ctx context.Context, id uuid.UUID) (*VerificationRecord, error) {
	var record VerificationRecord
	if err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

func (r *GormRepository) Update(ctx context.Context, record *VerificationRecord) error {
	return r.db.WithContext(ctx).Save(record).Error
}

func (r *GormRepository) List(ctx context.Context, filter QueueFilter) ([]*VerificationRecord, error) {
	q := r.db.WithContext(ctx).Model(&VerificationRecord{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.ProjectID != uuid.Nil {
		q = q.Where("project_id = ?", filter.ProjectID)
	}
	if filter.Verifier != uuid.Nil {
		q = q.Where("verifier = ?", filter.Verifier)
	}
	var records []*VerificationRecord
	if err := q.Order("created_at").Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// InMemoryRepository backs the test suites
type InMemoryRepository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]VerificationRecord
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{records: make(map[uuid.UUID]VerificationRecord)}
}

func (r *InMemoryRepository) Create(_ context.Context, record *VerificationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	r.records[record.ID] = *record
	return nil
}

func (r *InMemoryRepository) GetByID(_ context.Context, id uuid.UUID) (*VerificationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if record, ok := r.records[id]; ok {
		rec := record
		return &rec, nil
	}
	return nil, domain.ErrNotFound
}

func (r *InMemoryRepository) Update(_ context.Context, record *VerificationRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[record.ID]; !ok {
		return domain.ErrNotFound
	}
	r.records[record.ID] = *record
	return nil
}

func (r *InMemoryRepository) List(_ context.Context, filter QueueFilter) ([]*VerificationRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var records []*VerificationRecord
	for _, record := range r.records {
		if filter.Status != "" && record.Status != filter.Status {
			continue
		}
		if filter.ProjectID != uuid.Nil && record.ProjectID != filter.ProjectID {
			continue
		}
		if filter.Verifier != uuid.Nil && record.Verifier != filter.Verifier {
			continue
		}
		rec := record
		records = append(records, &rec)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}
