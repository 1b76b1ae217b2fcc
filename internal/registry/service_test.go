package registry

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"blue-carbon/mrv-portal/mrv-portal-backend/internal/identity"
	"blue-carbon/mrv-portal/mrv-portal-backend/internal/notifications"
	"blue-carbon/mrv-portal/mrv-portal-backend/pkg/domain"
)

func newTestRegistry() (*Service, Grant, Grant) {
	return NewService(
		NewInMemoryProjectRepository(),
		NewInMemoryStatusHistoryRepository(),
		NewInMemoryActivityRepository(),
		notifications.NopPublisher{},
		zap.NewNop(),
	)
}

func ngoUser(orgID uuid.UUID) *identity.User {
	return &identity.User{
		ID:             uuid.New(),
		Name:           "Field Coordinator",
		Email:          "coordinator@example.org",
		Role:           identity.RoleNGO,
		OrganizationID: orgID,
	}
}

func validCreateRequest() CreateProjectRequest {
	return CreateProjectRequest{
		Name:          "Pichavaram Mangrove Restoration",
		EcosystemType: EcosystemMangrove,
		Lat:           11.4500,
		Lng:           79.7730,
		State:         "Tamil Nadu",
		District:      "Cuddalore",
		Area:          450.2,
		Methodology:   "VM0033",
		StartDate:     time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestCreateProjectDefaults(t *testing.T) {
	svc, _, _ := newTestRegistry()
	actor := ngoUser(uuid.New())

	project, err := svc.CreateProject(context.Background(), actor, validCreateRequest())
	require.NoError(t, err)

	assert.Equal(t, StatusPending, project.Status)
	assert.Zero(t, project.TotalCreditsIssued)
	assert.Zero(t, project.AvailableCredits)
	assert.Equal(t, actor.ID, project.CreatedBy)
	assert.Equal(t, actor.OrganizationID, project.OrganizationID)
}

func TestCreateProjectReportsAllViolations(t *testing.T) {
	svc, _, _ := newTestRegistry()
	actor := ngoUser(uuid.New())

	req := CreateProjectRequest{
		EcosystemType: EcosystemType("rainforest"),
		Lat:           120, // out of range
		Lng:           200, // out of range
		Area:          -1,
	}
	_, err := svc.CreateProject(context.Background(), actor, req)

	var verrs *domain.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	fields := make(map[string]bool)
	for _, v := range verrs.Violations {
		fields[v.Field] = true
	}
	assert.True(t, fields["name"])
	assert.True(t, fields["ecosystem_type"])
	assert.True(t, fields["location"])
	assert.True(t, fields["area"])
}

func TestCreateProjectRequiresCapability(t *testing.T) {
	svc, _, _ := newTestRegistry()
	verifier := &identity.User{
		ID:             uuid.New(),
		Role:           identity.RoleVerifier,
		OrganizationID: uuid.New(),
	}

	_, err := svc.CreateProject(context.Background(), verifier, validCreateRequest())

	var authErr *domain.AuthorizationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, string(identity.CapProjectCreate), authErr.Capability)
}

func TestUpdateProjectScopedToOwningOrg(t *testing.T) {
	svc, _, _ := newTestRegistry()
	owner := ngoUser(uuid.New())
	project, err := svc.CreateProject(context.Background(), owner, validCreateRequest())
	require.NoError(t, err)

	outsider := ngoUser(uuid.New())
	name := "Renamed"
	_, err = svc.UpdateProject(context.Background(), outsider, project.ID, UpdateProjectRequest{Name: &name})

	var authErr *domain.AuthorizationError
	require.ErrorAs(t, err, &authErr)

	updated, err := svc.UpdateProject(context.Background(), owner, project.ID, UpdateProjectRequest{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
}

func TestVisibilityFilter(t *testing.T) {
	svc, _, _ := newTestRegistry()
	orgX := uuid.New()
	orgY := uuid.New()

	ngoX := ngoUser(orgX)
	ngoY := ngoUser(orgY)

	px, err := svc.CreateProject(context.Background(), ngoX, validCreateRequest())
	require.NoError(t, err)
	py, err := svc.CreateProject(context.Background(), ngoY, validCreateRequest())
	require.NoError(t, err)

	// NGO at org X sees only org X's projects
	visible, err := svc.GetProjectsVisibleTo(context.Background(), ngoX)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, px.ID, visible[0].ID)

	// a creator who changed organization still sees their own project
	moved := &identity.User{
		ID:             ngoY.ID,
		Role:           identity.RoleNGO,
		OrganizationID: uuid.New(),
	}
	visible, err = svc.GetProjectsVisibleTo(context.Background(), moved)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, py.ID, visible[0].ID)

	// government sees everything
	gov := &identity.User{ID: uuid.New(), Role: identity.RoleGovernment, OrganizationID: uuid.New()}
	visible, err = svc.GetProjectsVisibleTo(context.Background(), gov)
	require.NoError(t, err)
	assert.Len(t, visible, 2)
}

func TestGetProjectVisibleToScopesDirectFetch(t *testing.T) {
	svc, _, _ := newTestRegistry()

	ngoX := ngoUser(uuid.New())
	ngoY := ngoUser(uuid.New())

	px, err := svc.CreateProject(context.Background(), ngoX, validCreateRequest())
	require.NoError(t, err)

	// knowing the id is not enough to read another organization's project
	_, err = svc.GetProjectVisibleTo(context.Background(), ngoY, px.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, err := svc.GetProjectVisibleTo(context.Background(), ngoX, px.ID)
	require.NoError(t, err)
	assert.Equal(t, px.ID, got.ID)

	gov := &identity.User{ID: uuid.New(), Role: identity.RoleGovernment, OrganizationID: uuid.New()}
	got, err = svc.GetProjectVisibleTo(context.Background(), gov, px.ID)
	require.NoError(t, err)
	assert.Equal(t, px.ID, got.ID)
}

func TestTransitionStatusEnforcesStateMachine(t *testing.T) {
	svc, statusGrant, _ := newTestRegistry()
	actor := ngoUser(uuid.New())
	project, err := svc.CreateProject(context.Background(), actor, validCreateRequest())
	require.NoError(t, err)

	// pending -> verified skips active
	err = svc.TransitionStatus(context.Background(), statusGrant, project.ID, StatusVerified, actor.ID)
	var stateErr *domain.StateConflictError
	require.ErrorAs(t, err, &stateErr)

	require.NoError(t, svc.TransitionStatus(context.Background(), statusGrant, project.ID, StatusActive, actor.ID))
	require.NoError(t, svc.TransitionStatus(context.Background(), statusGrant, project.ID, StatusVerified, actor.ID))

	// verified is terminal
	err = svc.TransitionStatus(context.Background(), statusGrant, project.ID, StatusPending, actor.ID)
	require.ErrorAs(t, err, &stateErr)

	history, err := svc.StatusHistory(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Len(t, history, 3) // pending, active, verified
}

func TestTransitionStatusRejectsForgedGrant(t *testing.T) {
	svc, _, creditGrant := newTestRegistry()
	actor := ngoUser(uuid.New())
	project, err := svc.CreateProject(context.Background(), actor, validCreateRequest())
	require.NoError(t, err)

	// the credit grant does not authorize status writes
	err = svc.TransitionStatus(context.Background(), creditGrant, project.ID, StatusActive, actor.ID)
	var authErr *domain.AuthorizationError
	require.ErrorAs(t, err, &authErr)

	// a zero-value grant holds no capability at all
	err = svc.IssueCredits(context.Background(), Grant{}, project.ID, 10)
	require.ErrorAs(t, err, &authErr)
}

func TestCreditCountersConservation(t *testing.T) {
	svc, _, creditGrant := newTestRegistry()
	actor := ngoUser(uuid.New())
	project, err := svc.CreateProject(context.Background(), actor, validCreateRequest())
	require.NoError(t, err)

	require.NoError(t, svc.IssueCredits(context.Background(), creditGrant, project.ID, 120.5))

	got, err := svc.GetProject(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, 120.5, got.TotalCreditsIssued)
	assert.Equal(t, 120.5, got.AvailableCredits)

	require.NoError(t, svc.ReleaseCredits(context.Background(), creditGrant, project.ID, 50))
	got, err = svc.GetProject(context.Background(), project.ID)
	require.NoError(t, err)
	assert.Equal(t, 120.5, got.TotalCreditsIssued)
	assert.Equal(t, 70.5, got.AvailableCredits)
	assert.LessOrEqual(t, got.AvailableCredits, got.TotalCreditsIssued)

	// releasing more than available is refused
	err = svc.ReleaseCredits(context.Background(), creditGrant, project.ID, 1000)
	assert.ErrorIs(t, err, domain.ErrInsufficientBalance)
}
