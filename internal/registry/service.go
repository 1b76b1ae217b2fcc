package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"blue-carbon/mrv-portal/mrv-portal-backend/internal/identity"
	"blue-carbon/mrv-portal/mrv-portal-backend/internal/notifications"
	"blue-carbon/mrv-portal/mrv-portal-backend/pkg/domain"
	"blue-carbon/mrv-portal/mrv-portal-backend/pkg/geospatial"
	"blue-carbon/mrv-portal/mrv-portal-backend/pkg/workflows"
)

// Grant authorizes a component to mutate registry-owned project fields.
// Grants are minted once by NewService and handed out at the composition
// root; no other package can forge one.
type Grant struct {
	capability identity.Capability
}

// CreateProjectRequest carries the createProject command input
type CreateProjectRequest struct {
	Name          string        `json:"name"`
	Description   string        `json:"description"`
	EcosystemType EcosystemType `json:"ecosystem_type"`
	Lat           float64       `json:"lat"`
	Lng           float64       `json:"lng"`
	State         string        `json:"state"`
	District      string        `json:"district"`
	Area          float64       `json:"area"`
	Methodology   string        `json:"methodology"`
	StartDate     time.Time     `json:"start_date"`
	Boundary      string        `json:"boundary"` // optional GeoJSON
}

// UpdateProjectRequest patches the freely mutable fields. Status and the
// credit counters are not patchable here.
type UpdateProjectRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Methodology *string `json:"methodology"`
}

// Service is the authoritative project registry
type Service struct {
	repo         ProjectRepository
	statusRepo   StatusHistoryRepository
	activityRepo ActivityRepository
	stateMachine *workflows.StateMachine
	events       notifications.Publisher
	logger       *zap.Logger

	// serializes read-modify-write on a project's owned fields
	locksMu sync.Mutex
	locks   map[uuid.UUID]*sync.Mutex
}

// NewService creates the registry service. The returned grants authorize
// lifecycle transitions and credit-counter mutations respectively; hand them
// to the verification workflow, the record store, and the ledger only.
func NewService(
	repo ProjectRepository,
	statusRepo StatusHistoryRepository,
	activityRepo ActivityRepository,
	events notifications.Publisher,
	logger *zap.Logger,
) (*Service, Grant, Grant) {
	svc := &Service{
		repo:         repo,
		statusRepo:   statusRepo,
		activityRepo: activityRepo,
		stateMachine: workflows.NewProjectStateMachine(),
		events:       events,
		logger:       logger,
		locks:        make(map[uuid.UUID]*sync.Mutex),
	}
	statusGrant := Grant{capability: identity.CapProjectStatus}
	creditGrant := Grant{capability: identity.CapLedgerMint}
	return svc, statusGrant, creditGrant
}

func (s *Service) projectLock(id uuid.UUID) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.locks[id]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[id] = lock
	}
	return lock
}

// CreateProject validates every constraint and reports all violations
// together, then registers the project in pending state.
func (s *Service) CreateProject(ctx context.Context, actor *identity.User, req CreateProjectRequest) (*Project, error) {
	if !actor.Role.Can(identity.CapProjectCreate) {
		return nil, &domain.AuthorizationError{Capability: string(identity.CapProjectCreate)}
	}

	area := req.Area
	var boundary []byte
	verrs := &domain.ValidationErrors{}

	if req.Name == "" {
		verrs.Add("name", "is required")
	}
	if !ValidEcosystemType(req.EcosystemType) {
		verrs.Add("ecosystem_type", fmt.Sprintf("%q is not a supported ecosystem", req.EcosystemType))
	}
	if !geospatial.ValidCoordinates(req.Lat, req.Lng) {
		verrs.Add("location", "coordinates out of range")
	}
	if req.Boundary != "" {
		geom, err := geospatial.ValidateGeoJSON(req.Boundary)
		if err != nil {
			verrs.Add("boundary", fmt.Sprintf("invalid GeoJSON: %v", err))
		} else {
			boundary = []byte(req.Boundary)
			if area == 0 {
				area = geospatial.ConvertToHectares(geospatial.CalculateArea(geom))
			}
		}
	}
	if area <= 0 {
		verrs.Add("area", "must be greater than zero")
	}
	if !verrs.Empty() {
		return nil, verrs
	}

	now := time.Now()
	project := &Project{
		Name:          req.Name,
		Description:   req.Description,
		EcosystemType: req.EcosystemType,
		Location: Location{
			Lat:      req.Lat,
			Lng:      req.Lng,
			State:    req.State,
			District: req.District,
		},
		Area:               area,
		Methodology:        req.Methodology,
		StartDate:          req.StartDate,
		Status:             StatusPending,
		TotalCreditsIssued: 0,
		AvailableCredits:   0,
		Boundary:           boundary,
		CreatedBy:          actor.ID,
		OrganizationID:     actor.OrganizationID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.repo.Create(ctx, project); err != nil {
		return nil, err
	}

	s.recordStatus(ctx, project.ID, StatusPending, actor.ID)
	s.recordActivity(ctx, project.ID, "CREATED", fmt.Sprintf("Project %s created", project.Name), actor.ID)

	s.events.Publish(notifications.Event{
		Type:      notifications.EventProjectCreated,
		ProjectID: project.ID,
		Payload:   map[string]interface{}{"name": project.Name, "status": string(project.Status)},
	})

	s.logger.Info("Project created",
		zap.String("project_id", project.ID.String()),
		zap.String("ecosystem", string(project.EcosystemType)),
		zap.Float64("area_ha", project.Area))

	return project, nil
}

// GetProject retrieves a project by ID without a visibility check; it is for
// internal callers that already hold a scoped reference. Anything serving a
// user request goes through GetProjectVisibleTo.
func (s *Service) GetProject(ctx context.Context, id uuid.UUID) (*Project, error) {
	return s.repo.GetByID(ctx, id)
}

// GetProjectVisibleTo retrieves a single project under the same role filter
// as GetProjectsVisibleTo. A scope miss reads as ErrNotFound so callers
// cannot probe for another organization's project ids.
func (s *Service) GetProjectVisibleTo(ctx context.Context, user *identity.User, id uuid.UUID) (*Project, error) {
	project, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user.Role.SeesAllProjects() || project.OrganizationID == user.OrganizationID || project.CreatedBy == user.ID {
		return project, nil
	}
	return nil, domain.ErrNotFound
}

// UpdateProject patches the freely mutable fields. Only the owning
// organization (or an admin) may update.
func (s *Service) UpdateProject(ctx context.Context, actor *identity.User, id uuid.UUID, req UpdateProjectRequest) (*Project, error) {
	if !actor.Role.Can(identity.CapProjectUpdate) {
		return nil, &domain.AuthorizationError{Capability: string(identity.CapProjectUpdate)}
	}

	lock := s.projectLock(id)
	lock.Lock()
	defer lock.Unlock()

	project, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != identity.RoleAdmin && actor.OrganizationID != project.OrganizationID {
		return nil, &domain.AuthorizationError{Capability: string(identity.CapProjectUpdate)}
	}

	if req.Name != nil {
		project.Name = *req.Name
	}
	if req.Description != nil {
		project.Description = *req.Description
	}
	if req.Methodology != nil {
		project.Methodology = *req.Methodology
	}
	project.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, project); err != nil {
		return nil, err
	}

	s.recordActivity(ctx, id, "UPDATED", fmt.Sprintf("Project %s updated", project.Name), actor.ID)

	return project, nil
}

// GetProjectsVisibleTo applies the shared role filter: admin, government,
// and verifier see everything; ngo and panchayat see projects belonging to
// their organization or created by them. Every dashboard consumer goes
// through this method.
func (s *Service) GetProjectsVisibleTo(ctx context.Context, user *identity.User) ([]*Project, error) {
	filter := ProjectFilter{All: user.Role.SeesAllProjects()}
	if !filter.All {
		filter.OrganizationID = user.OrganizationID
		filter.CreatedBy = user.ID
	}
	return s.repo.List(ctx, filter)
}

// StatusHistory returns the recorded lifecycle transitions
func (s *Service) StatusHistory(ctx context.Context, projectID uuid.UUID) ([]*ProjectStatusHistory, error) {
	return s.statusRepo.ListByProject(ctx, projectID)
}

// Activity returns the project activity feed
func (s *Service) Activity(ctx context.Context, projectID uuid.UUID) ([]*ProjectActivity, error) {
	return s.activityRepo.ListByProject(ctx, projectID)
}

// TransitionStatus moves a project through its lifecycle. Callers need the
// status grant; transitions outside the state machine fail with
// StateConflictError.
func (s *Service) TransitionStatus(ctx context.Context, grant Grant, projectID uuid.UUID, to ProjectStatus, changedBy uuid.UUID) error {
	if grant.capability != identity.CapProjectStatus {
		return &domain.AuthorizationError{Capability: string(identity.CapProjectStatus)}
	}

	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	project, err := s.repo.GetByID(ctx, projectID)
	if err != nil {
		return err
	}
	if !s.stateMachine.CanTransition(string(project.Status), string(to)) {
		return &domain.StateConflictError{
			Expected: fmt.Sprintf("one of %v", s.stateMachine.GetAllowedTransitions(string(project.Status))),
			Actual:   string(project.Status),
		}
	}

	oldStatus := project.Status
	project.Status = to
	project.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, project); err != nil {
		return err
	}

	s.recordStatus(ctx, projectID, to, changedBy)
	s.recordActivity(ctx, projectID, "STATUS_CHANGED",
		fmt.Sprintf("Status changed from %s to %s", oldStatus, to), changedBy)

	s.events.Publish(notifications.Event{
		Type:      notifications.EventProjectStatusChanged,
		ProjectID: projectID,
		Payload:   map[string]interface{}{"from": string(oldStatus), "to": string(to)},
	})

	return nil
}

// IssueCredits bumps both credit counters by amount. Requires the credit
// grant. TotalCreditsIssued only ever increases, and only through here.
func (s *Service) IssueCredits(ctx context.Context, grant Grant, projectID uuid.UUID, amount float64) error {
	if grant.capability != identity.CapLedgerMint {
		return &domain.AuthorizationError{Capability: string(identity.CapLedgerMint)}
	}
	if amount <= 0 {
		return (&domain.ValidationErrors{}).Add("amount", "must be greater than zero")
	}

	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	project, err := s.repo.GetByID(ctx, projectID)
	if err != nil {
		return err
	}

	project.TotalCreditsIssued += amount
	project.AvailableCredits += amount
	project.UpdatedAt = time.Now()

	return s.repo.Update(ctx, project)
}

// ReleaseCredits removes amount from the available (issuer) pool when
// credits leave it through a market sale. Conservation: available never
// exceeds total issued and never goes negative.
func (s *Service) ReleaseCredits(ctx context.Context, grant Grant, projectID uuid.UUID, amount float64) error {
	if grant.capability != identity.CapLedgerMint {
		return &domain.AuthorizationError{Capability: string(identity.CapLedgerMint)}
	}

	lock := s.projectLock(projectID)
	lock.Lock()
	defer lock.Unlock()

	project, err := s.repo.GetByID(ctx, projectID)
	if err != nil {
		return err
	}
	if amount <= 0 || amount > project.AvailableCredits {
		return domain.ErrInsufficientBalance
	}

	project.AvailableCredits -= amount
	project.UpdatedAt = time.Now()

	return s.repo.Update(ctx, project)
}

func (s *Service) recordStatus(ctx context.Context, projectID uuid.UUID, status ProjectStatus, by uuid.UUID) {
	history := &ProjectStatusHistory{
		ProjectID: projectID,
		Status:    status,
		ChangedAt: time.Now(),
		ChangedBy: by,
	}
	if err := s.statusRepo.Create(ctx, history); err != nil {
		s.logger.Warn("Failed to record status history", zap.Error(err))
	}
}

func (s *Service) recordActivity(ctx context.Context, projectID uuid.UUID, activityType, description string, by uuid.UUID) {
	activity := &ProjectActivity{
		ProjectID:    projectID,
		ActivityType: activityType,
		Description:  description,
		CreatedAt:    time.Now(),
		UserID:       by,
	}
	if err := s.activityRepo.Create(ctx, activity); err != nil {
		s.logger.Warn("Failed to record activity", zap.Error(err))
	}
}
