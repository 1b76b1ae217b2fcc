package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"blue-carbon/mrv-portal/mrv-portal-backend/pkg/domain"
)

// In-memory repositories back the test suites.

type InMemoryProjectRepository struct {
	mu       sync.RWMutex
	projects map[uuid.UUID]Project
}

func NewInMemoryProjectRepository() *InMemoryProjectRepository {
	return &InMemoryProjectRepository{projects: make(map[uuid.UUID]Project)}
}

func (r *InMemoryProjectRepository) Create(_ context.Context, project *Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if project.ID == uuid.Nil {
		project.ID = uuid.New()
	}
	r.projects[project.ID] = *project
	return nil
}

func (r *InMemoryProjectRepository) GetByID(_ context.Context, id uuid.UUID) (*Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if project, ok := r.projects[id]; ok {
		p := project
		return &p, nil
	}
	return nil, domain.ErrNotFound
}

func (r *InMemoryProjectRepository) Update(_ context.Context, project *Project) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.projects[project.ID]; !ok {
		return domain.ErrNotFound
	}
	r.projects[project.ID] = *project
	return nil
}

func (r *InMemoryProjectRepository) List(_ context.Context, filter ProjectFilter) ([]*Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var projects []*Project
	for _, project := range r.projects {
		if !filter.All &&
			project.OrganizationID != filter.OrganizationID &&
			project.CreatedBy != filter.CreatedBy {
			continue
		}
		if filter.Status != "" && project.Status != filter.Status {
			continue
		}
		p := project
		projects = append(projects, &p)
	}
	sort.Slice(projects, func(i, j int) bool {
		return projects[i].CreatedAt.After(projects[j].CreatedAt)
	})
	return projects, nil
}

type InMemoryStatusHistoryRepository struct {
	mu      sync.RWMutex
	entries []ProjectStatusHistory
}

func NewInMemoryStatusHistoryRepository() *InMemoryStatusHistoryRepository {
	return &InMemoryStatusHistoryRepository{}
}

func (r *InMemoryStatusHistoryRepository) Create(_ context.Context, history *ProjectStatusHistory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if history.ID == uuid.Nil {
		history.ID = uuid.New()
	}
	r.entries = append(r.entries, *history)
	return nil
}

func (r *InMemoryStatusHistoryRepository) ListByProject(_ context.Context, projectID uuid.UUID) ([]*ProjectStatusHistory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var history []*ProjectStatusHistory
	for i := range r.entries {
		if r.entries[i].ProjectID == projectID {
			entry := r.entries[i]
			history = append(history, &entry)
		}
	}
	return history, nil
}

type InMemoryActivityRepository struct {
	mu      sync.RWMutex
	entries []ProjectActivity
}

func NewInMemoryActivityRepository() *InMemoryActivityRepository {
	return &InMemoryActivityRepository{}
}

func (r *InMemoryActivityRepository) Create(_ context.Context, activity *ProjectActivity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if activity.ID == uuid.Nil {
		activity.ID = uuid.New()
	}
	r.entries = append(r.entries, *activity)
	return nil
}

func (r *InMemoryActivityRepository) ListByProject(_ context.Context, projectID uuid.UUID) ([]*ProjectActivity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var activities []*ProjectActivity
	for i := range r.entries {
		if r.entries[i].ProjectID == projectID {
			entry := r.entries[i]
			activities = append(activities, &entry)
		}
	}
	return activities, nil
}
