package identity

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"blue-carbon/mrv-portal/mrv-portal-backend/pkg/domain"
)

// In-memory stores back the test suites and local development. They
// intentionally favor clarity over performance.

type InMemoryUserStore struct {
	mu    sync.RWMutex
	users map[uuid.UUID]User
}

func NewInMemoryUserStore() *InMemoryUserStore {
	return &InMemoryUserStore{users: make(map[uuid.UUID]User)}
}

func (s *InMemoryUserStore) Save(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	s.users[user.ID] = *user
	return nil
}

func (s *InMemoryUserStore) FindByID(_ context.Context, id uuid.UUID) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if user, ok := s.users[id]; ok {
		return &user, nil
	}
	return nil, domain.ErrNotFound
}

func (s *InMemoryUserStore) FindByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, user := range s.users {
		if user.Email == email {
			u := user
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}

type InMemoryOrganizationStore struct {
	mu   sync.RWMutex
	orgs map[uuid.UUID]Organization
}

func NewInMemoryOrganizationStore() *InMemoryOrganizationStore {
	return &InMemoryOrganizationStore{orgs: make(map[uuid.UUID]Organization)}
}

func (s *InMemoryOrganizationStore) Save(_ context.Context, org *Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if org.ID == uuid.Nil {
		org.ID = uuid.New()
	}
	s.orgs[org.ID] = *org
	return nil
}

func (s *InMemoryOrganizationStore) FindByID(_ context.Context, id uuid.UUID) (*Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if org, ok := s.orgs[id]; ok {
		o := org
		return &o, nil
	}
	return nil, domain.ErrNotFound
}

func (s *InMemoryOrganizationStore) List(_ context.Context) ([]*Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	orgs := make([]*Organization, 0, len(s.orgs))
	for _, org := range s.orgs {
		o := org
		orgs = append(orgs, &o)
	}
	return orgs, nil
}

type InMemoryCredentialStore struct {
	mu     sync.RWMutex
	hashes map[uuid.UUID][]byte
}

func NewInMemoryCredentialStore() *InMemoryCredentialStore {
	return &InMemoryCredentialStore{hashes: make(map[uuid.UUID][]byte)}
}

func (s *InMemoryCredentialStore) SaveHash(_ context.Context, userID uuid.UUID, hash []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hashes[userID] = hash
	return nil
}

func (s *InMemoryCredentialStore) HashFor(_ context.Context, userID uuid.UUID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if hash, ok := s.hashes[userID]; ok {
		return hash, nil
	}
	return nil, domain.ErrNotFound
}

type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

func NewInMemorySessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{sessions: make(map[string]Session)}
}

func (s *InMemorySessionStore) Save(_ context.Context, session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.Token] = *session
	return nil
}

func (s *InMemorySessionStore) FindByToken(_ context.Context, token string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if session, ok := s.sessions[token]; ok {
		sess := session
		return &sess, nil
	}
	return nil, domain.ErrNotFound
}

func (s *InMemorySessionStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}
