package registry

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"blue-carbon/mrv-portal/mrv-portal-backend/pkg/domain"
)

// ProjectFilter narrows a project listing. All and the scoping fields are
// mutually exclusive: All short-circuits the organization/creator match.
type ProjectFilter struct {
	All            bool
	OrganizationID uuid.UUID
	CreatedBy      uuid.UUID
	Status         ProjectStatus
}

// ProjectRepository is the project data access interface
type ProjectRepository interface {
	Create(ctx context.Context, project *Project) error
	GetByID(ctx context.Context, id uuid.UUID) (*Project, error)
	Update(ctx context.Context, project *Project) error
	List(ctx context.Context, filter ProjectFilter) ([]*Project, error)
}

// StatusHistoryRepository records lifecycle transitions
type StatusHistoryRepository interface {
	Create(ctx context.Context, history *ProjectStatusHistory) error
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*ProjectStatusHistory, error)
}

// ActivityRepository records the project activity feed
type ActivityRepository interface {
	Create(ctx context.Context, activity *ProjectActivity) error
	ListByProject(ctx context.Context, projectID uuid.UUID) ([]*ProjectActivity, error)
}

// GormProjectRepository implements ProjectRepository on PostgreSQL
type GormProjectRepository struct {
	db *gorm.DB
}

func NewGormProjectRepository(db *gorm.DB) *GormProjectRepository {
	return &GormProjectRepository{db: db}
}

func (r *GormProjectRepository) Create(ctx context.Context, project *Project) error {
	return r.db.WithContext(ctx).Create(project).Error
}

func (r *GormProjectRepository) GetByID(ctx context.Context, id uuid.UUID) (*Project, error) {
	var project Project
	if err := r.db.WithContext(ctx).First(&project, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &project, nil
}

func (r *GormProjectRepository) Update(ctx context.Context, project *Project) error {
	return r.db.WithContext(ctx).Save(project).Error
}

func (r *GormProjectRepository) List(ctx context.Context, filter ProjectFilter) ([]*Project, error) {
	q := r.db.WithContext(ctx).Model(&Project{})
	if !filter.All {
		q = q.Where("organization_id = ? OR created_by = ?", filter.OrganizationID, filter.CreatedBy)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	var projects []*Project
	if err := q.Order("created_at DESC").Find(&projects).Error; err != nil {
		return nil, err
	}
	return projects, nil
}

// GormStatusHistoryRepository implements StatusHistoryRepository
type GormStatusHistoryRepository struct {
	db *gorm.DB
}

func NewGormStatusHistoryRepository(db *gorm.DB) *GormStatusHistoryRepository {
	return &GormStatusHistoryRepository{db: db}
}

func (r *GormStatusHistoryRepository) Create(ctx context.Context, history *ProjectStatusHistory) error {
	return r.db.WithContext(ctx).Create(history).Error
}

func (r *GormStatusHistoryRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*ProjectStatusHistory, error) {
	var history []*ProjectStatusHistory
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("changed_at").
		Find(&history).Error
	return history, err
}

// GormActivityRepository implements ActivityRepository
type GormActivityRepository struct {
	db *gorm.DB
}

func NewGormActivityRepository(db *gorm.DB) *GormActivityRepository {
	return &GormActivityRepository{db: db}
}

func (r *GormActivityRepository) Create(ctx context.Context, activity *ProjectActivity) error {
	return r.db.WithContext(ctx).Create(activity).Error
}

func (r *GormActivityRepository) ListByProject(ctx context.Context, projectID uuid.UUID) ([]*ProjectActivity, error) {
	var activities []*ProjectActivity
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("created_at DESC").
		Find(&activities).Error
	return activities, err
}
