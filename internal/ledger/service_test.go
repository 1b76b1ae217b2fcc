package ledger

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"blue-carbon/mrv-portal/mrv-portal-backend/internal/identity"
	"blue-carbon/mrv-portal/mrv-portal-backend/internal/notifications"
	"blue-carbon/mrv-portal/mrv-portal-backend/internal/registry"
	"blue-carbon/mrv-portal/mrv-portal-backend/internal/verification"
	"blue-carbon/mrv-portal/mrv-portal-backend/pkg/domain"
)

type ledgerFixture struct {
	svc      *Service
	repo     *InMemoryRepository
	projects *registry.Service
	project  *registry.Project
	owner    *identity.User // belongs to the project's organization
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()

	projects, _, creditGrant := registry.NewService(
		registry.NewInMemoryProjectRepository(),
		registry.NewInMemoryStatusHistoryRepository(),
		registry.NewInMemoryActivityRepository(),
		notifications.NopPublisher{},
		zap.NewNop(),
	)

	owner := &identity.User{ID: uuid.New(), Role: identity.RoleNGO, OrganizationID: uuid.New()}
	project, err := projects.CreateProject(context.Background(), owner, registry.CreateProjectRequest{
		Name:          "Chilika Saltmarsh Restoration",
		EcosystemType: registry.EcosystemSaltmarsh,
		Lat:           19.70,
		Lng:           85.32,
		State:         "Odisha",
		District:      "Puri",
		Area:          300,
		Methodology:   "VM0033",
		StartDate:     time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	repo := NewInMemoryRepository()
	svc := NewService(repo, projects, creditGrant, notifications.NopPublisher{}, zap.NewNop())

	return &ledgerFixture{svc: svc, repo: repo, projects: projects, project: project, owner: owner}
}

func (f *ledgerFixture) mintRequest(amount float64) verification.MintRequest {
	return verification.MintRequest{
		ProjectID:      f.project.ID,
		VerificationID: uuid.New(),
		Amount:         amount,
		Vintage:        2026,
		EcosystemType:  "saltmarsh",
		Methodology:    "VM0033",
		Verifier:       uuid.New().String(),
		EvidenceHash:   "deadbeef",
	}
}

func (f *ledgerFixture) mintToken(t *testing.T, amount float64) *CarbonCreditToken {
	t.Helper()
	require.NoError(t, f.svc.Mint(context.Background(), f.mintRequest(amount)))
	tokens, err := f.svc.TokensForProject(context.Background(), f.owner, f.project.ID)
	require.NoError(t, err)
	return tokens[len(tokens)-1]
}

func TestMintCreatesIssuerHeldToken(t *testing.T) {
	f := newLedgerFixture(t)

	token := f.mintToken(t, 500)

	assert.Equal(t, f.project.OrganizationID, token.OwnerID)
	assert.True(t, token.IssuerHeld)
	assert.Equal(t, TokenActive, token.Status)
	assert.Equal(t, 2026, token.Vintage)
	assert.True(t, strings.HasPrefix(token.SerialNumber, "BC-2026-"))

	project, err := f.projects.GetProject(context.Background(), f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, 500.0, project.TotalCreditsIssued)
	assert.Equal(t, 500.0, project.AvailableCredits)

	history, err := f.svc.History(context.Background(), f.owner, token.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, TxMint, history[0].Type)
}

func TestMintValidation(t *testing.T) {
	f := newLedgerFixture(t)

	err := f.svc.Mint(context.Background(), verification.MintRequest{Amount: -5})

	var verrs *domain.ValidationErrors
	require.ErrorAs(t, err, &verrs)
}

func TestMintLeavesCountersAloneOnStorageFailure(t *testing.T) {
	f := newLedgerFixture(t)
	f.repo.FailNextCreateToken(errors.New("disk full"))

	err := f.svc.Mint(context.Background(), f.mintRequest(100))
	require.Error(t, err)

	project, err := f.projects.GetProject(context.Background(), f.project.ID)
	require.NoError(t, err)
	assert.Zero(t, project.TotalCreditsIssued)
	assert.Zero(t, project.AvailableCredits)
}

func TestTransferOutOfIssuerPoolReleasesAvailable(t *testing.T) {
	f := newLedgerFixture(t)
	token := f.mintToken(t, 200)
	buyerOrg := uuid.New()

	moved, err := f.svc.Transfer(context.Background(), f.owner, token.ID, TransferRequest{To: buyerOrg})
	require.NoError(t, err)
	assert.Equal(t, buyerOrg, moved.OwnerID)
	assert.False(t, moved.IssuerHeld)
	assert.Equal(t, TokenTransferred, moved.Status)

	project, err := f.projects.GetProject(context.Background(), f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, 200.0, project.TotalCreditsIssued)
	assert.Zero(t, project.AvailableCredits)

	// a later peer transfer does not touch the counters
	buyer := &identity.User{ID: uuid.New(), Role: identity.RoleNGO, OrganizationID: buyerOrg}
	_, err = f.svc.Transfer(context.Background(), buyer, token.ID, TransferRequest{To: uuid.New()})
	require.NoError(t, err)

	project, err = f.projects.GetProject(context.Background(), f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, 200.0, project.TotalCreditsIssued)
	assert.Zero(t, project.AvailableCredits)
}

func TestTransferRequiresOwnership(t *testing.T) {
	f := newLedgerFixture(t)
	token := f.mintToken(t, 50)

	// transfer capability alone is not enough
	outsider := &identity.User{ID: uuid.New(), Role: identity.RoleNGO, OrganizationID: uuid.New()}
	_, err := f.svc.Transfer(context.Background(), outsider, token.ID, TransferRequest{To: uuid.New()})
	var authErr *domain.AuthorizationError
	require.ErrorAs(t, err, &authErr)

	// a verifier holds no transfer capability at all
	verifier := &identity.User{ID: uuid.New(), Role: identity.RoleVerifier, OrganizationID: f.project.OrganizationID}
	_, err = f.svc.Transfer(context.Background(), verifier, token.ID, TransferRequest{To: uuid.New()})
	require.ErrorAs(t, err, &authErr)
}

func TestTransferPartialAmountRejected(t *testing.T) {
	f := newLedgerFixture(t)
	token := f.mintToken(t, 150)

	_, err := f.svc.Transfer(context.Background(), f.owner, token.ID, TransferRequest{To: uuid.New(), Amount: 50})
	assert.ErrorIs(t, err, domain.ErrPartialRetirementUnsupported)

	// the explicit full amount is accepted
	moved, err := f.svc.Transfer(context.Background(), f.owner, token.ID, TransferRequest{To: uuid.New(), Amount: 150})
	require.NoError(t, err)
	assert.Equal(t, TokenTransferred, moved.Status)
}

func TestTokenReadsScopedToVisibleProjects(t *testing.T) {
	f := newLedgerFixture(t)
	token := f.mintToken(t, 90)

	outsider := &identity.User{ID: uuid.New(), Role: identity.RoleNGO, OrganizationID: uuid.New()}

	_, err := f.svc.GetToken(context.Background(), outsider, token.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.History(context.Background(), outsider, token.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.TokensForProject(context.Background(), outsider, f.project.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// auditing roles see every project's tokens
	auditor := &identity.User{ID: uuid.New(), Role: identity.RoleGovernment, OrganizationID: uuid.New()}
	got, err := f.svc.GetToken(context.Background(), auditor, token.ID)
	require.NoError(t, err)
	assert.Equal(t, token.ID, got.ID)
}

func TestTransferredTokenVisibleToNewOwner(t *testing.T) {
	f := newLedgerFixture(t)
	token := f.mintToken(t, 40)

	buyerOrg := uuid.New()
	_, err := f.svc.Transfer(context.Background(), f.owner, token.ID, TransferRequest{To: buyerOrg})
	require.NoError(t, err)

	// the buyer cannot see the project, but owns the token now
	buyer := &identity.User{ID: uuid.New(), Role: identity.RoleNGO, OrganizationID: buyerOrg}
	got, err := f.svc.GetToken(context.Background(), buyer, token.ID)
	require.NoError(t, err)
	assert.Equal(t, buyerOrg, got.OwnerID)
}

func TestRetireFullBalanceIssuesCertificate(t *testing.T) {
	f := newLedgerFixture(t)
	token := f.mintToken(t, 300)

	cert, err := f.svc.Retire(context.Background(), f.owner, token.ID, RetireRequest{
		Reason:      "2026 corporate offset",
		Beneficiary: "Acme Shipping Ltd",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(cert.CertificateNumber, "RET-"))
	assert.Equal(t, 300.0, cert.Amount)
	assert.Equal(t, "Acme Shipping Ltd", cert.Beneficiary)

	retired, err := f.svc.GetToken(context.Background(), f.owner, token.ID)
	require.NoError(t, err)
	assert.Equal(t, TokenRetired, retired.Status)
	assert.NotNil(t, retired.RetiredAt)

	// retiring from the issuer pool also releases availability
	project, err := f.projects.GetProject(context.Background(), f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, 300.0, project.TotalCreditsIssued)
	assert.Zero(t, project.AvailableCredits)

	pdf, err := f.svc.CertificatePDF(context.Background(), cert.ID)
	require.NoError(t, err)
	assert.True(t, len(pdf) > 0)
	assert.Equal(t, "%PDF", string(pdf[:4]))
}

func TestRetirePartialAmountRejected(t *testing.T) {
	f := newLedgerFixture(t)
	token := f.mintToken(t, 100)

	_, err := f.svc.Retire(context.Background(), f.owner, token.ID, RetireRequest{Amount: 40})
	assert.ErrorIs(t, err, domain.ErrPartialRetirementUnsupported)

	// the explicit full amount is accepted
	_, err = f.svc.Retire(context.Background(), f.owner, token.ID, RetireRequest{Amount: 100})
	require.NoError(t, err)
}

func TestRetiredTokenIsImmutable(t *testing.T) {
	f := newLedgerFixture(t)
	token := f.mintToken(t, 75)

	_, err := f.svc.Retire(context.Background(), f.owner, token.ID, RetireRequest{})
	require.NoError(t, err)

	var stateErr *domain.StateConflictError
	_, err = f.svc.Transfer(context.Background(), f.owner, token.ID, TransferRequest{To: uuid.New()})
	require.ErrorAs(t, err, &stateErr)

	_, err = f.svc.Retire(context.Background(), f.owner, token.ID, RetireRequest{})
	require.ErrorAs(t, err, &stateErr)
}

func TestOwnerBalanceSplitsActiveAndRetired(t *testing.T) {
	f := newLedgerFixture(t)
	first := f.mintToken(t, 120)
	f.mintToken(t, 80)

	_, err := f.svc.Retire(context.Background(), f.owner, first.ID, RetireRequest{})
	require.NoError(t, err)

	balance, err := f.svc.OwnerBalance(context.Background(), f.project.OrganizationID)
	require.NoError(t, err)
	assert.Equal(t, 80.0, balance.Active)
	assert.Equal(t, 120.0, balance.Retired)
	assert.Equal(t, 1, balance.Tokens)
}

func TestAvailableNeverExceedsIssued(t *testing.T) {
	f := newLedgerFixture(t)

	f.mintToken(t, 100)
	second := f.mintToken(t, 60)

	_, err := f.svc.Transfer(context.Background(), f.owner, second.ID, TransferRequest{To: uuid.New()})
	require.NoError(t, err)

	project, err := f.projects.GetProject(context.Background(), f.project.ID)
	require.NoError(t, err)
	assert.Equal(t, 160.0, project.TotalCreditsIssued)
	assert.Equal(t, 100.0, project.AvailableCredits)
	assert.LessOrEqual(t, project.AvailableCredits, project.TotalCreditsIssued)
}
