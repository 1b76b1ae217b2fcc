package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"blue-carbon/mrv-portal/mrv-portal-backend/pkg/domain"
)

// UserStore provides user lookup and persistence
type UserStore interface {
	Save(ctx context.Context, user *User) error
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// OrganizationStore is the organization directory
type OrganizationStore interface {
	Save(ctx context.Context, org *Organization) error
	FindByID(ctx context.Context, id uuid.UUID) (*Organization, error)
	List(ctx context.Context) ([]*Organization, error)
}

// CredentialStore holds bcrypt hashes keyed by user
type CredentialStore interface {
	SaveHash(ctx context.Context, userID uuid.UUID, hash []byte) error
	HashFor(ctx context.Context, userID uuid.UUID) ([]byte, error)
}

// SessionStore persists sessions across reloads
type SessionStore interface {
	Save(ctx context.Context, session *Session) error
	FindByToken(ctx context.Context, token string) (*Session, error)
	Delete(ctx context.Context, token string) error
}

// GormStore implements all identity stores on PostgreSQL
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates the PostgreSQL-backed identity store
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Save(ctx context.Context, user *User) error {
	return s.db.WithContext(ctx).Save(user).Error
}

func (s *GormStore) FindByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *GormStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	if err := s.db.WithContext(ctx).First(&user, "email = ?", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &user, nil
}

// OrgStore returns the organization directory view of the store
func (s *GormStore) OrgStore() OrganizationStore { return &gormOrgStore{db: s.db} }

// Credentials returns the credential view of the store
func (s *GormStore) Credentials() CredentialStore { return &gormCredentialStore{db: s.db} }

// Sessions returns the session view of the store
func (s *GormStore) Sessions() SessionStore { return &gormSessionStore{db: s.db} }

type gormOrgStore struct{ db *gorm.DB }

func (s *gormOrgStore) Save(ctx context.Context, org *Organization) error {
	return s.db.WithContext(ctx).Save(org).Error
}

func (s *gormOrgStore) FindByID(ctx context.Context, id uuid.UUID) (*Organization, error) {
	var org Organization
	if err := s.db.WithContext(ctx).First(&org, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &org, nil
}

func (s *gormOrgStore) List(ctx context.Context) ([]*Organization, error) {
	var orgs []*Organization
	if err := s.db.WithContext(ctx).Order("name").Find(&orgs).Error; err != nil {
		return nil, err
	}
	return orgs, nil
}

type gormCredentialStore struct{ db *gorm.DB }

func (s *gormCredentialStore) SaveHash(ctx context.Context, userID uuid.UUID, hash []byte) error {
	cred := Credential{UserID: userID, PasswordHash: hash}
	return s.db.WithContext(ctx).Save(&cred).Error
}

func (s *gormCredentialStore) HashFor(ctx context.Context, userID uuid.UUID) ([]byte, error) {
	var cred Credential
	if err := s.db.WithContext(ctx).First(&cred, "user_id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return cred.PasswordHash, nil
}

type gormSessionStore struct{ db *gorm.DB }

func (s *gormSessionStore) Save(ctx context.Context, session *Session) error {
	return s.db.WithContext(ctx).Save(session).Error
}

func (s *gormSessionStore) FindByToken(ctx context.Context, token string) (*Session, error) {
	var session Session
	if err := s.db.WithContext(ctx).First(&session, "token = ?", token).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &session, nil
}

func (s *gormSessionStore) Delete(ctx context.Context, token string) error {
	return s.db.WithContext(ctx).Delete(&Session{}, "token = ?", token).Error
}
