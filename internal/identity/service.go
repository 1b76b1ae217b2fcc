package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"blue-carbon/mrv-portal/mrv-portal-backend/pkg/domain"
)

// Service resolves credentials to sessions and serves the organization
// directory.
type Service struct {
	users     UserStore
	orgs      OrganizationStore
	creds     CredentialStore
	sessions  SessionStore
	jwtSecret []byte
	ttl       time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a new identity service
func NewService(
	users UserStore,
	orgs OrganizationStore,
	creds CredentialStore,
	sessions SessionStore,
	jwtSecret []byte,
	ttl time.Duration,
	logger *zap.Logger,
) *Service {
	return &Service{
		users:     users,
		orgs:      orgs,
		creds:     creds,
		sessions:  sessions,
		jwtSecret: jwtSecret,
		ttl:       ttl,
		logger:    logger,
		now:       time.Now,
	}
}

// RegisterUser creates a user plus its bcrypt credential. Role is fixed at
// registration time.
func (s *Service) RegisterUser(ctx context.Context, user *User, password string) (*User, error) {
	verrs := &domain.ValidationErrors{}
	if user.Email == "" {
		verrs.Add("email", "is required")
	}
	if user.Name == "" {
		verrs.Add("name", "is required")
	}
	switch user.Role {
	case RoleAdmin, RoleNGO, RolePanchayat, RoleGovernment, RoleVerifier:
	default:
		verrs.Add("role", fmt.Sprintf("unknown role %q", user.Role))
	}
	if user.OrganizationID == uuid.Nil {
		verrs.Add("organization_id", "is required")
	}
	if len(password) < 8 {
		verrs.Add("password", "must be at least 8 characters")
	}
	if !verrs.Empty() {
		return nil, verrs
	}

	if _, err := s.orgs.FindByID(ctx, user.OrganizationID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, (&domain.ValidationErrors{}).Add("organization_id", "organization does not exist")
		}
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash credential: %w", err)
	}

	user.CreatedAt = s.now()
	user.UpdatedAt = user.CreatedAt
	if err := s.users.Save(ctx, user); err != nil {
		return nil, err
	}
	if err := s.creds.SaveHash(ctx, user.ID, hash); err != nil {
		return nil, err
	}

	s.logger.Info("User registered",
		zap.String("user_id", user.ID.String()),
		zap.String("role", string(user.Role)))

	return user, nil
}

// Login resolves an email/credential pair to a persisted session.
func (s *Service) Login(ctx context.Context, email, credential string) (*Session, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnknownAccount
		}
		return nil, err
	}

	hash, err := s.creds.HashFor(ctx, user.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnknownAccount
		}
		return nil, err
	}
	if bcrypt.CompareHashAndPassword(hash, []byte(credential)) != nil {
		return nil, domain.ErrInvalidCredential
	}

	expiresAt := s.now().Add(s.ttl)
	claims := jwt.MapClaims{
		"sub":  user.ID.String(),
		"role": string(user.Role),
		"org":  user.OrganizationID.String(),
		"exp":  expiresAt.Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to sign session token: %w", err)
	}

	session := &Session{
		Token:     token,
		UserID:    user.ID,
		ExpiresAt: expiresAt,
		CreatedAt: s.now(),
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Info("User logged in", zap.String("user_id", user.ID.String()))

	return session, nil
}

// Logout revokes the session unconditionally; an unknown token is not an
// error.
func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Delete(ctx, token)
}

// Resolve validates a session token and returns its user. Expired or revoked
// sessions resolve to ErrInvalidCredential.
func (s *Service) Resolve(ctx context.Context, token string) (*User, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, domain.ErrInvalidCredential
	}

	session, err := s.sessions.FindByToken(ctx, token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidCredential
		}
		return nil, err
	}
	if session.Expired(s.now()) {
		return nil, domain.ErrInvalidCredential
	}

	return s.users.FindByID(ctx, session.UserID)
}

// GetOrganization looks up an organization by id
func (s *Service) GetOrganization(ctx context.Context, id uuid.UUID) (*Organization, error) {
	return s.orgs.FindByID(ctx, id)
}

// ListOrganizations returns the full directory
func (s *Service) ListOrganizations(ctx context.Context) ([]*Organization, error) {
	return s.orgs.List(ctx)
}

// CreateOrganization registers an organization in the directory
func (s *Service) CreateOrganization(ctx context.Context, org *Organization) (*Organization, error) {
	verrs := &domain.ValidationErrors{}
	if org.Name == "" {
		verrs.Add("name", "is required")
	}
	switch org.Type {
	case OrgTypeNGO, OrgTypeGovernment, OrgTypePanchayat, OrgTypePrivate, OrgTypeCommunity, OrgTypeVerifier:
	default:
		verrs.Add("type", fmt.Sprintf("unknown organization type %q", org.Type))
	}
	if !verrs.Empty() {
		return nil, verrs
	}

	org.CreatedAt = s.now()
	org.UpdatedAt = org.CreatedAt
	if err := s.orgs.Save(ctx, org); err != nil {
		return nil, err
	}
	return org, nil
}
