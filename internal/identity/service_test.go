package identity

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"blue-carbon/mrv-portal/mrv-portal-backend/pkg/domain"
)

func newTestService(t *testing.T) (*Service, *Organization) {
	t.Helper()
	svc := NewService(
		NewInMemoryUserStore(),
		NewInMemoryOrganizationStore(),
		NewInMemoryCredentialStore(),
		NewInMemorySessionStore(),
		[]byte("test-secret"),
		time.Hour,
		zap.NewNop(),
	)
	org, err := svc.CreateOrganization(context.Background(), &Organization{
		Name: "Sundarbans Restoration Trust",
		Type: OrgTypeNGO,
	})
	require.NoError(t, err)
	return svc, org
}

func registerTestUser(t *testing.T, svc *Service, org *Organization, role Role) *User {
	t.Helper()
	user, err := svc.RegisterUser(context.Background(), &User{
		Name:           "Asha Nair",
		Email:          string(role) + "@example.org",
		Role:           role,
		OrganizationID: org.ID,
	}, "correct horse battery")
	require.NoError(t, err)
	return user
}

func TestLoginSuccess(t *testing.T) {
	svc, org := newTestService(t)
	user := registerTestUser(t, svc, org, RoleNGO)

	session, err := svc.Login(context.Background(), user.Email, "correct horse battery")
	require.NoError(t, err)
	assert.Equal(t, user.ID, session.UserID)
	assert.NotEmpty(t, session.Token)
	assert.True(t, session.ExpiresAt.After(time.Now()))
}

func TestLoginUnknownAccount(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Login(context.Background(), "nobody@example.org", "whatever")
	assert.ErrorIs(t, err, domain.ErrUnknownAccount)
}

func TestLoginInvalidCredential(t *testing.T) {
	svc, org := newTestService(t)
	user := registerTestUser(t, svc, org, RoleNGO)

	_, err := svc.Login(context.Background(), user.Email, "wrong password")
	assert.ErrorIs(t, err, domain.ErrInvalidCredential)
}

func TestResolveRoundTrip(t *testing.T) {
	svc, org := newTestService(t)
	user := registerTestUser(t, svc, org, RoleVerifier)

	session, err := svc.Login(context.Background(), user.Email, "correct horse battery")
	require.NoError(t, err)

	resolved, err := svc.Resolve(context.Background(), session.Token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, resolved.ID)
	assert.Equal(t, RoleVerifier, resolved.Role)
}

func TestLogoutRevokesSession(t *testing.T) {
	svc, org := newTestService(t)
	user := registerTestUser(t, svc, org, RoleNGO)

	session, err := svc.Login(context.Background(), user.Email, "correct horse battery")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(context.Background(), session.Token))

	_, err = svc.Resolve(context.Background(), session.Token)
	assert.ErrorIs(t, err, domain.ErrInvalidCredential)
}

func TestRegisterUserValidation(t *testing.T) {
	svc, org := newTestService(t)

	_, err := svc.RegisterUser(context.Background(), &User{
		Role:           Role("superuser"),
		OrganizationID: org.ID,
	}, "short")

	var verrs *domain.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	// email, name, role, and password are all reported together
	fields := make(map[string]bool)
	for _, v := range verrs.Violations {
		fields[v.Field] = true
	}
	assert.True(t, fields["email"])
	assert.True(t, fields["name"])
	assert.True(t, fields["role"])
	assert.True(t, fields["password"])
}

func TestRoleCapabilities(t *testing.T) {
	assert.True(t, RoleNGO.Can(CapProjectCreate))
	assert.True(t, RoleNGO.Can(CapMeasurementSubmit))
	assert.False(t, RoleNGO.Can(CapVerificationClose))
	assert.False(t, RoleNGO.SeesAllProjects())

	assert.True(t, RoleVerifier.Can(CapVerificationClose))
	assert.False(t, RoleVerifier.Can(CapProjectCreate))
	assert.True(t, RoleVerifier.SeesAllProjects())

	assert.True(t, RoleAdmin.SeesAllProjects())
	assert.True(t, RoleGovernment.SeesAllProjects())
	assert.False(t, RolePanchayat.SeesAllProjects())

	// mint is never granted to an interactive role
	for _, role := range []Role{RoleAdmin, RoleNGO, RolePanchayat, RoleGovernment, RoleVerifier} {
		assert.False(t, role.Can(CapLedgerMint), string(role))
	}
}
