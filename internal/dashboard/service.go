package dashboard

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"blue-carbon/mrv-portal/mrv-portal-backend/internal/fieldops"
	"blue-carbon/mrv-portal/mrv-portal-backend/internal/identity"
	"blue-carbon/mrv-portal/mrv-portal-backend/internal/ledger"
	"blue-carbon/mrv-portal/mrv-portal-backend/internal/registry"
	"blue-carbon/mrv-portal/mrv-portal-backend/internal/verification"
)

// Overview is the role-shaped landing summary. Every number in it derives
// from data the user could also reach through the underlying list
// endpoints; the dashboard adds no access of its own.
type Overview struct {
	Role               identity.Role                  `json:"role"`
	TotalProjects      int                            `json:"total_projects"`
	ProjectsByStatus   map[registry.ProjectStatus]int `json:"projects_by_status"`
	TotalCreditsIssued float64                        `json:"total_credits_issued"`
	AvailableCredits   float64                        `json:"available_credits"`
	OpenVerifications  int                            `json:"open_verifications,omitempty"`
	Balance            *ledger.Balance                `json:"balance,omitempty"`
}

// ProjectSummary is the per-project drill-down card
type ProjectSummary struct {
	ProjectID          uuid.UUID                   `json:"project_id"`
	Name               string                      `json:"name"`
	Status             registry.ProjectStatus      `json:"status"`
	EcosystemType      registry.EcosystemType      `json:"ecosystem_type"`
	AreaHectares       float64                     `json:"area_hectares"`
	TotalCreditsIssued float64                     `json:"total_credits_issued"`
	AvailableCredits   float64                     `json:"available_credits"`
	RetiredCredits     float64                     `json:"retired_credits"`
	MeasurementCount   int64                       `json:"measurement_count"`
	Verifications      map[verification.Status]int `json:"verifications"`
}

// Service is the read side of the portal: queries and exports only, no
// mutations.
type Service struct {
	projects      *registry.Service
	measurements  *fieldops.Service
	verifications *verification.Service
	credits       *ledger.Service
	logger        *zap.Logger
}

// NewService creates the dashboard query service
func NewService(
	projects *registry.Service,
	measurements *fieldops.Service,
	verifications *verification.Service,
	credits *ledger.Service,
	logger *zap.Logger,
) *Service {
	return &Service{
		projects:      projects,
		measurements:  measurements,
		verifications: verifications,
		credits:       credits,
		logger:        logger,
	}
}

// Overview builds the role-specific landing summary from the projects the
// user can see.
func (s *Service) Overview(ctx context.Context, user *identity.User) (*Overview, error) {
	visible, err := s.projects.GetProjectsVisibleTo(ctx, user)
	if err != nil {
		return nil, err
	}

	overview := &Overview{
		Role:             user.Role,
		TotalProjects:    len(visible),
		ProjectsByStatus: make(map[registry.ProjectStatus]int),
	}
	for _, project := range visible {
		overview.ProjectsByStatus[project.Status]++
		overview.TotalCreditsIssued += project.TotalCreditsIssued
		overview.AvailableCredits += project.AvailableCredits
	}

	if user.Role == identity.RoleVerifier {
		queue, err := s.verifications.Queue(ctx, verification.QueueFilter{Status: verification.StatusInProgress})
		if err != nil {
			return nil, err
		}
		overview.OpenVerifications = len(queue)
	} else {
		balance, err := s.credits.OwnerBalance(ctx, user.OrganizationID)
		if err != nil {
			return nil, err
		}
		overview.Balance = balance
	}

	return overview, nil
}

// ProjectSummary aggregates a project's credits, measurements, and
// verification runs into one card.
func (s *Service) ProjectSummary(ctx context.Context, user *identity.User, projectID uuid.UUID) (*ProjectSummary, error) {
	project, err := s.visibleProject(ctx, user, projectID)
	if err != nil {
		return nil, err
	}

	measurementCount, err := s.measurements.CountByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	records, err := s.verifications.Queue(ctx, verification.QueueFilter{ProjectID: projectID})
	if err != nil {
		return nil, err
	}
	byStatus := make(map[verification.Status]int)
	for _, record := range records {
		byStatus[record.Status]++
	}

	tokens, err := s.credits.TokensForProject(ctx, user, projectID)
	if err != nil {
		return nil, err
	}
	var retired float64
	for _, token := range tokens {
		if token.Retired() {
			retired += token.Amount
		}
	}

	return &ProjectSummary{
		ProjectID:          project.ID,
		Name:               project.Name,
		Status:             project.Status,
		EcosystemType:      project.EcosystemType,
		AreaHectares:       project.Area,
		TotalCreditsIssued: project.TotalCreditsIssued,
		AvailableCredits:   project.AvailableCredits,
		RetiredCredits:     retired,
		MeasurementCount:   measurementCount,
		Verifications:      byStatus,
	}, nil
}

// VerificationQueue lists verification records matching the filter
func (s *Service) VerificationQueue(ctx context.Context, filter verification.QueueFilter) ([]*verification.VerificationRecord, error) {
	return s.verifications.Queue(ctx, filter)
}

// CreditBalance returns the caller's organization holdings
func (s *Service) CreditBalance(ctx context.Context, user *identity.User) (*ledger.Balance, error) {
	return s.credits.OwnerBalance(ctx, user.OrganizationID)
}

// ExportLedger renders a project's token ledger as an xlsx workbook
func (s *Service) ExportLedger(ctx context.Context, user *identity.User, projectID uuid.UUID) ([]byte, error) {
	project, err := s.visibleProject(ctx, user, projectID)
	if err != nil {
		return nil, err
	}

	tokens, err := s.credits.TokensForProject(ctx, user, projectID)
	if err != nil {
		return nil, err
	}

	return exportLedgerWorkbook(project, tokens)
}

// visibleProject applies the registry's visibility rule to a single lookup
func (s *Service) visibleProject(ctx context.Context, user *identity.User, projectID uuid.UUID) (*registry.Project, error) {
	return s.projects.GetProjectVisibleTo(ctx, user, projectID)
}
