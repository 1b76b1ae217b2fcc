package integration

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"blue-carbon/mrv-portal/mrv-portal-backend/internal/fieldops"
	"blue-carbon/mrv-portal/mrv-portal-backend/internal/identity"
	"blue-carbon/mrv-portal/mrv-portal-backend/internal/ledger"
	"blue-carbon/mrv-portal/mrv-portal-backend/internal/notifications"
	"blue-carbon/mrv-portal/mrv-portal-backend/internal/registry"
	"blue-carbon/mrv-portal/mrv-portal-backend/internal/verification"
	"blue-carbon/mrv-portal/mrv-portal-backend/pkg/domain"
)

// platform wires every service over in-memory stores, the same way the
// composition root does over Postgres and Redis.
type platform struct {
	accounts      *identity.Service
	projects      *registry.Service
	measurements  *fieldops.Service
	verifications *verification.Service
	credits       *ledger.Service
}

func newPlatform(t *testing.T) *platform {
	t.Helper()
	logger := zap.NewNop()
	bus := notifications.NewBus()

	users := identity.NewInMemoryUserStore()
	orgs := identity.NewInMemoryOrganizationStore()
	accounts := identity.NewService(
		users,
		orgs,
		identity.NewInMemoryCredentialStore(),
		identity.NewInMemorySessionStore(),
		[]byte("integration-secret"),
		time.Hour,
		logger,
	)

	projects, statusGrant, creditGrant := registry.NewService(
		registry.NewInMemoryProjectRepository(),
		registry.NewInMemoryStatusHistoryRepository(),
		registry.NewInMemoryActivityRepository(),
		bus,
		logger,
	)

	measurements := fieldops.NewService(
		fieldops.NewInMemoryQueue(),
		fieldops.NewInMemoryMeasurementStore(),
		projects,
		statusGrant,
		bus,
		100,
		logger,
	)

	credits := ledger.NewService(ledger.NewInMemoryRepository(), projects, creditGrant, bus, logger)

	verifications := verification.NewService(
		verification.NewInMemoryRepository(),
		projects,
		statusGrant,
		credits,
		bus,
		logger,
	)

	return &platform{
		accounts:      accounts,
		projects:      projects,
		measurements:  measurements,
		verifications: verifications,
		credits:       credits,
	}
}

// registerUser creates an organization and registers a user in it through the
// identity service, then logs in to prove the credential round-trips.
func (p *platform) registerUser(t *testing.T, name string, role identity.Role, orgName string) *identity.User {
	t.Helper()
	ctx := context.Background()

	orgType := identity.OrgTypeNGO
	switch role {
	case identity.RoleGovernment:
		orgType = identity.OrgTypeGovernment
	case identity.RoleVerifier:
		orgType = identity.OrgTypeVerifier
	case identity.RolePanchayat:
		orgType = identity.OrgTypePanchayat
	}

	org, err := p.accounts.CreateOrganization(ctx, &identity.Organization{
		ID:   uuid.New(),
		Name: orgName,
		Type: orgType,
	})
	require.NoError(t, err)

	email := uuid.New().String() + "@example.org"
	user, err := p.accounts.RegisterUser(ctx, &identity.User{
		ID:             uuid.New(),
		Name:           name,
		Email:          email,
		Role:           role,
		OrganizationID: org.ID,
	}, "tide-and-root")
	require.NoError(t, err)

	session, err := p.accounts.Login(ctx, email, "tide-and-root")
	require.NoError(t, err)
	resolved, err := p.accounts.Resolve(ctx, session.Token)
	require.NoError(t, err)
	require.Equal(t, user.ID, resolved.ID)

	return user
}

// activeProject creates a project and walks it to active via its first synced
// field measurement.
func (p *platform) activeProject(t *testing.T, owner *identity.User, name string, area float64) *registry.Project {
	t.Helper()
	ctx := context.Background()

	project, err := p.projects.CreateProject(ctx, owner, registry.CreateProjectRequest{
		Name:          name,
		EcosystemType: registry.EcosystemMangrove,
		Lat:           21.95,
		Lng:           88.85,
		State:         "West Bengal",
		District:      "South 24 Parganas",
		Area:          area,
		Methodology:   "VM0033",
		StartDate:     time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.Equal(t, registry.StatusPending, project.Status)

	_, err = p.measurements.SaveOffline(ctx, owner, fieldops.SaveMeasurementRequest{
		Type:      fieldops.TypeMonitoring,
		ProjectID: project.ID,
		GPS:       fieldops.GPS{Lat: 21.95, Lng: 88.85, Accuracy: 3.1},
		Payload:   map[string]interface{}{"seedling_survival_pct": 91.0},
		DeviceID:  "tablet-" + project.ID.String()[:8],
	})
	require.NoError(t, err)

	_, err = p.measurements.SyncPending(ctx, owner, "tablet-"+project.ID.String()[:8])
	require.NoError(t, err)

	project, err = p.projects.GetProject(ctx, project.ID)
	require.NoError(t, err)
	require.Equal(t, registry.StatusActive, project.Status)
	return project
}

func verifiedEvidence(n int) []verification.EvidenceItem {
	items := make([]verification.EvidenceItem, n)
	for i := range items {
		items[i] = verification.EvidenceItem{
			Description: "drone transect",
			Ref:         uuid.New().String(),
			Verified:    true,
		}
	}
	return items
}

func TestApprovedVerificationMintsRecommendedCredits(t *testing.T) {
	p := newPlatform(t)
	ctx := context.Background()

	ngo := p.registerUser(t, "Sundarbans Trust", identity.RoleNGO, "Sundarbans Trust")
	auditor := p.registerUser(t, "Coastal Auditor", identity.RoleVerifier, "Coastal Audit Bureau")
	project := p.activeProject(t, ngo, "Sundarbans Mangrove Restoration", 450.2)

	record, err := p.verifications.OpenReview(ctx, auditor, verification.OpenReviewRequest{
		ProjectID:             project.ID,
		Method:                verification.MethodHybrid,
		Evidence:              verifiedEvidence(3),
		MonitoringPeriodYears: 1,
	})
	require.NoError(t, err)

	record, err = p.verifications.RecordFindings(ctx, auditor, record.ID, verification.Findings{
		CarbonSequestrationRate: 6.5,
		AreaVerified:            450.2,
		BiomassEstimate:         12000,
	})
	require.NoError(t, err)

	record, err = p.verifications.Approve(ctx, auditor, record.ID)
	require.NoError(t, err)
	assert.Equal(t, verification.StatusVerified, record.Status)
	assert.True(t, record.ImmutableRecord)

	project, err = p.projects.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, registry.StatusVerified, project.Status)
	assert.Equal(t, record.CarbonCreditsRecommended, project.TotalCreditsIssued)
	assert.Equal(t, record.CarbonCreditsRecommended, project.AvailableCredits)

	tokens, err := p.credits.TokensForProject(ctx, ngo, project.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, record.CarbonCreditsRecommended, tokens[0].Amount)
	assert.Equal(t, ngo.OrganizationID, tokens[0].OwnerID)
	assert.Equal(t, record.ID, tokens[0].Metadata.VerificationID)
}

func TestUnverifiedEvidenceBlocksApproval(t *testing.T) {
	p := newPlatform(t)
	ctx := context.Background()

	ngo := p.registerUser(t, "Palk Bay Collective", identity.RoleNGO, "Palk Bay Collective")
	auditor := p.registerUser(t, "Reef Auditor", identity.RoleVerifier, "Reef Audit Bureau")
	project := p.activeProject(t, ngo, "Palk Bay Seagrass Recovery", 120)

	evidence := verifiedEvidence(3)
	evidence[2].Verified = false

	record, err := p.verifications.OpenReview(ctx, auditor, verification.OpenReviewRequest{
		ProjectID: project.ID,
		Method:    verification.MethodDroneSurvey,
		Evidence:  evidence,
	})
	require.NoError(t, err)

	_, err = p.verifications.RecordFindings(ctx, auditor, record.ID, verification.Findings{
		CarbonSequestrationRate: 4.2,
		AreaVerified:            120,
	})
	require.NoError(t, err)

	_, err = p.verifications.Approve(ctx, auditor, record.ID)
	require.ErrorIs(t, err, domain.ErrIncompleteEvidence)

	project, err = p.projects.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, registry.StatusActive, project.Status)
	assert.Zero(t, project.TotalCreditsIssued)

	tokens, err := p.credits.TokensForProject(ctx, ngo, project.ID)
	require.NoError(t, err)
	assert.Empty(t, tokens)
}

func TestRetiredTokenCannotBeTransferred(t *testing.T) {
	p := newPlatform(t)
	ctx := context.Background()

	ngo := p.registerUser(t, "Kutch Wetland Trust", identity.RoleNGO, "Kutch Wetland Trust")
	auditor := p.registerUser(t, "Gulf Auditor", identity.RoleVerifier, "Gulf Audit Bureau")
	buyer := p.registerUser(t, "Offset Buyer", identity.RoleNGO, "Offset Buyer Ltd")
	project := p.activeProject(t, ngo, "Kutch Saltmarsh Revival", 80)

	record, err := p.verifications.OpenReview(ctx, auditor, verification.OpenReviewRequest{
		ProjectID: project.ID,
		Method:    verification.MethodFieldVisit,
		Evidence:  verifiedEvidence(3),
	})
	require.NoError(t, err)
	_, err = p.verifications.RecordFindings(ctx, auditor, record.ID, verification.Findings{
		CarbonSequestrationRate: 3.0,
		AreaVerified:            80,
	})
	require.NoError(t, err)
	_, err = p.verifications.Approve(ctx, auditor, record.ID)
	require.NoError(t, err)

	tokens, err := p.credits.TokensForProject(ctx, ngo, project.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	token := tokens[0]

	cert, err := p.credits.Retire(ctx, ngo, token.ID, ledger.RetireRequest{
		Amount: token.Amount,
		Reason: "voluntary offset",
	})
	require.NoError(t, err)
	assert.Equal(t, token.Amount, cert.Amount)

	token, err = p.credits.GetToken(ctx, ngo, token.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.TokenRetired, token.Status)

	_, err = p.credits.Transfer(ctx, ngo, token.ID, ledger.TransferRequest{To: buyer.OrganizationID})
	var conflict *domain.StateConflictError
	require.ErrorAs(t, err, &conflict)

	// retiring released the issuer pool
	project, err = p.projects.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Zero(t, project.AvailableCredits)
	assert.Equal(t, cert.Amount, project.TotalCreditsIssued)
}

func TestProjectVisibilityScopedToOrganization(t *testing.T) {
	p := newPlatform(t)
	ctx := context.Background()

	orgX := p.registerUser(t, "Org X Officer", identity.RoleNGO, "Org X")
	orgY := p.registerUser(t, "Org Y Officer", identity.RoleNGO, "Org Y")
	government := p.registerUser(t, "State Forest Dept", identity.RoleGovernment, "Forest Department")

	mine, err := p.projects.CreateProject(ctx, orgX, registry.CreateProjectRequest{
		Name:          "Org X Mangroves",
		EcosystemType: registry.EcosystemMangrove,
		Lat:           12.9,
		Lng:           80.2,
		Area:          40,
	})
	require.NoError(t, err)

	theirs, err := p.projects.CreateProject(ctx, orgY, registry.CreateProjectRequest{
		Name:          "Org Y Tidal Flats",
		EcosystemType: registry.EcosystemTidalWetland,
		Lat:           13.1,
		Lng:           80.3,
		Area:          55,
	})
	require.NoError(t, err)

	visible, err := p.projects.GetProjectsVisibleTo(ctx, orgX)
	require.NoError(t, err)
	require.Len(t, visible, 1)
	assert.Equal(t, mine.ID, visible[0].ID)

	everything, err := p.projects.GetProjectsVisibleTo(ctx, government)
	require.NoError(t, err)
	ids := make(map[uuid.UUID]bool, len(everything))
	for _, pr := range everything {
		ids[pr.ID] = true
	}
	assert.True(t, ids[mine.ID])
	assert.True(t, ids[theirs.ID])

	// fetching another organization's project by id reads as not found
	_, err = p.projects.GetProjectVisibleTo(ctx, orgY, mine.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, err := p.projects.GetProjectVisibleTo(ctx, government, theirs.ID)
	require.NoError(t, err)
	assert.Equal(t, theirs.ID, got.ID)
}

func TestTransferChainConservesIssuedCredits(t *testing.T) {
	p := newPlatform(t)
	ctx := context.Background()

	ngo := p.registerUser(t, "Godavari Delta Trust", identity.RoleNGO, "Godavari Delta Trust")
	auditor := p.registerUser(t, "Delta Auditor", identity.RoleVerifier, "Delta Audit Bureau")
	buyer := p.registerUser(t, "Corporate Buyer", identity.RoleNGO, "Corporate Buyer Inc")
	project := p.activeProject(t, ngo, "Godavari Mangrove Belt", 300)

	record, err := p.verifications.OpenReview(ctx, auditor, verification.OpenReviewRequest{
		ProjectID:             project.ID,
		Method:                verification.MethodHybrid,
		Evidence:              verifiedEvidence(4),
		MonitoringPeriodYears: 2,
	})
	require.NoError(t, err)
	_, err = p.verifications.RecordFindings(ctx, auditor, record.ID, verification.Findings{
		CarbonSequestrationRate: 5.0,
		AreaVerified:            300,
	})
	require.NoError(t, err)
	record, err = p.verifications.Approve(ctx, auditor, record.ID)
	require.NoError(t, err)

	tokens, err := p.credits.TokensForProject(ctx, ngo, project.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	token := tokens[0]

	// first hop leaves the issuer pool and releases availability
	moved, err := p.credits.Transfer(ctx, ngo, token.ID, ledger.TransferRequest{
		To:   buyer.OrganizationID,
		Note: "forward purchase settlement",
	})
	require.NoError(t, err)
	assert.Equal(t, buyer.OrganizationID, moved.OwnerID)
	assert.False(t, moved.IssuerHeld)

	project, err = p.projects.GetProject(ctx, project.ID)
	require.NoError(t, err)
	assert.Zero(t, project.AvailableCredits)
	assert.Equal(t, record.CarbonCreditsRecommended, project.TotalCreditsIssued)
	assert.LessOrEqual(t, project.AvailableCredits, project.TotalCreditsIssued)

	// the seller cannot move the token again
	_, err = p.credits.Transfer(ctx, ngo, token.ID, ledger.TransferRequest{To: ngo.OrganizationID})
	var authErr *domain.AuthorizationError
	require.ErrorAs(t, err, &authErr)

	balance, err := p.credits.OwnerBalance(ctx, buyer.OrganizationID)
	require.NoError(t, err)
	assert.Equal(t, record.CarbonCreditsRecommended, balance.Active)
}
