package ledger

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"blue-carbon/mrv-portal/mrv-portal-backend/pkg/domain"
)

// InMemoryRepository is a map-backed Repository for tests and local runs
type InMemoryRepository struct {
	mu           sync.RWMutex
	tokens       map[uuid.UUID]*CarbonCreditToken
	transactions map[uuid.UUID][]*TransactionRecord
	certificates map[uuid.UUID]*RetirementCertificate

	failNextCreate error
}

// NewInMemoryRepository creates an empty in-memory ledger repository
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		tokens:       make(map[uuid.UUID]*CarbonCreditToken),
		transactions: make(map[uuid.UUID][]*TransactionRecord),
		certificates: make(map[uuid.UUID]*RetirementCertificate),
	}
}

// FailNextCreateToken makes the next CreateToken call return err
func (r *InMemoryRepository) FailNextCreateToken(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNextCreate = err
}

func (r *InMemoryRepository) CreateToken(_ context.Context, token *CarbonCreditToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failNextCreate != nil {
		err := r.failNextCreate
		r.failNextCreate = nil
		return err
	}
	clone := *token
	r.tokens[token.ID] = &clone
	return nil
}

func (r *InMemoryRepository) GetToken(_ context.Context, id uuid.UUID) (*CarbonCreditToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	token, ok := r.tokens[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *token
	return &clone, nil
}

func (r *InMemoryRepository) UpdateToken(_ context.Context, token *CarbonCreditToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[token.ID]; !ok {
		return domain.ErrNotFound
	}
	clone := *token
	r.tokens[token.ID] = &clone
	return nil
}

func (r *InMemoryRepository) DeleteToken(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tokens[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.tokens, id)
	return nil
}

func (r *InMemoryRepository) ListTokensByProject(_ context.Context, projectID uuid.UUID) ([]*CarbonCreditToken, error) {
	return r.listTokens(func(t *CarbonCreditToken) bool { return t.ProjectID == projectID })
}

func (r *InMemoryRepository) ListTokensByOwner(_ context.Context, ownerID uuid.UUID) ([]*CarbonCreditToken, error) {
	return r.listTokens(func(t *CarbonCreditToken) bool { return t.OwnerID == ownerID })
}

func (r *InMemoryRepository) listTokens(match func(*CarbonCreditToken) bool) ([]*CarbonCreditToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var tokens []*CarbonCreditToken
	for _, token := range r.tokens {
		if match(token) {
			clone := *token
			tokens = append(tokens, &clone)
		}
	}
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].CreatedAt.Before(tokens[j].CreatedAt) })
	return tokens, nil
}

func (r *InMemoryRepository) AppendTransaction(_ context.Context, tx *TransactionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *tx
	r.transactions[tx.TokenID] = append(r.transactions[tx.TokenID], &clone)
	return nil
}

func (r *InMemoryRepository) ListTransactions(_ context.Context, tokenID uuid.UUID) ([]*TransactionRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	txs := make([]*TransactionRecord, 0, len(r.transactions[tokenID]))
	for _, tx := range r.transactions[tokenID] {
		clone := *tx
		txs = append(txs, &clone)
	}
	return txs, nil
}

func (r *InMemoryRepository) CreateCertificate(_ context.Context, cert *RetirementCertificate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	clone := *cert
	r.certificates[cert.ID] = &clone
	return nil
}

func (r *InMemoryRepository) GetCertificate(_ context.Context, id uuid.UUID) (*RetirementCertificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cert, ok := r.certificates[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := *cert
	return &clone, nil
}

func (r *InMemoryRepository) ListCertificatesByOwner(_ context.Context, ownerID uuid.UUID) ([]*RetirementCertificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var certs []*RetirementCertificate
	for _, cert := range r.certificates {
		if cert.OwnerID == ownerID {
			clone := *cert
			certs = append(certs, &clone)
		}
	}
	sort.Slice(certs, func(i, j int) bool { return certs[i].RetiredAt.After(certs[j].RetiredAt) })
	return certs, nil
}
