package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"blue-carbon/mrv-portal/mrv-portal-backend/internal/identity"
	"blue-carbon/mrv-portal/mrv-portal-backend/internal/notifications"
	"blue-carbon/mrv-portal/mrv-portal-backend/internal/registry"
	"blue-carbon/mrv-portal/mrv-portal-backend/internal/verification"
	"blue-carbon/mrv-portal/mrv-portal-backend/pkg/domain"
)

// TransferRequest moves a whole token to a new owning organization. Amount
// is optional; when set it must equal the token's full amount.
type TransferRequest struct {
	To     uuid.UUID `json:"to"`
	Amount float64   `json:"amount"`
	Note   string    `json:"note"`
}

// RetireRequest permanently removes a token from circulation. Amount is
// optional; when set it must equal the token's full amount.
type RetireRequest struct {
	Amount      float64 `json:"amount"`
	Reason      string  `json:"reason"`
	Beneficiary string  `json:"beneficiary"`
}

// Service is the carbon credit ledger. Minting is not reachable from any
// HTTP surface: it runs only off approved verification records, through the
// credit grant handed over at composition time.
type Service struct {
	repo        Repository
	projects    *registry.Service
	creditGrant registry.Grant
	events      notifications.Publisher
	logger      *zap.Logger

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewService creates the ledger service
func NewService(
	repo Repository,
	projects *registry.Service,
	creditGrant registry.Grant,
	events notifications.Publisher,
	logger *zap.Logger,
) *Service {
	return &Service{
		repo:        repo,
		projects:    projects,
		creditGrant: creditGrant,
		events:      events,
		logger:      logger,
		locks:       make(map[uuid.UUID]*sync.Mutex),
	}
}

// projectLock serializes ledger mutations per project. All balance math for
// one project happens under its lock, so the conservation of issued versus
// available credits never races.
func (s *Service) projectLock(projectID uuid.UUID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[projectID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[projectID] = lock
	}
	return lock
}

// Mint creates a token for an approved verification and bumps the project's
// credit counters. The token lands in the project's issuer pool, owned by
// the project's organization. If the counter update fails the token is
// removed again, so issuance and counters move together.
func (s *Service) Mint(ctx context.Context, req verification.MintRequest) error {
	verrs := &domain.ValidationErrors{}
	if req.ProjectID == uuid.Nil {
		verrs.Add("project_id", "is required")
	}
	if req.Amount <= 0 {
		verrs.Add("amount", "must be positive")
	}
	if !verrs.Empty() {
		return verrs
	}

	project, err := s.projects.GetProject(ctx, req.ProjectID)
	if err != nil {
		return err
	}

	lock := s.projectLock(req.ProjectID)
	lock.Lock()
	defer lock.Unlock()

	now := time.Now()
	token := &CarbonCreditToken{
		ID:           uuid.New(),
		SerialNumber: newSerialNumber(req.Vintage),
		ProjectID:    req.ProjectID,
		OwnerID:      project.OrganizationID,
		IssuerHeld:   true,
		Amount:       req.Amount,
		Vintage:      req.Vintage,
		Status:       TokenActive,
		Metadata: TokenMetadata{
			VerificationID: req.VerificationID,
			EcosystemType:  req.EcosystemType,
			Methodology:    req.Methodology,
			Verifier:       req.Verifier,
			GPSCoordinates: req.GPSCoordinates,
			EvidenceHash:   req.EvidenceHash,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.CreateToken(ctx, token); err != nil {
		return fmt.Errorf("failed to mint token: %w", err)
	}

	if err := s.projects.IssueCredits(ctx, s.creditGrant, req.ProjectID, req.Amount); err != nil {
		if delErr := s.repo.DeleteToken(ctx, token.ID); delErr != nil {
			s.logger.Error("Failed to roll back token after counter failure",
				zap.String("token_id", token.ID.String()),
				zap.Error(delErr))
		}
		return fmt.Errorf("failed to issue credits: %w", err)
	}

	verifierID, _ := uuid.Parse(req.Verifier)
	if err := s.repo.AppendTransaction(ctx, &TransactionRecord{
		ID:        uuid.New(),
		TokenID:   token.ID,
		Type:      TxMint,
		ToOwner:   &token.OwnerID,
		Amount:    token.Amount,
		Actor:     verifierID,
		Note:      "minted from verification " + req.VerificationID.String(),
		CreatedAt: now,
	}); err != nil {
		s.logger.Error("Failed to record mint transaction",
			zap.String("token_id", token.ID.String()),
			zap.Error(err))
	}

	s.events.Publish(notifications.Event{
		Type:      notifications.EventCreditsMinted,
		ProjectID: token.ProjectID,
		Payload: map[string]interface{}{
			"token_id": token.ID.String(),
			"serial":   token.SerialNumber,
			"amount":   token.Amount,
			"vintage":  token.Vintage,
		},
	})

	s.logger.Info("Credits minted",
		zap.String("token_id", token.ID.String()),
		zap.String("serial", token.SerialNumber),
		zap.Float64("amount", token.Amount))

	return nil
}

// Transfer moves a token to a new owning organization. The first transfer
// out of the issuer pool releases the project's available credit counter;
// later transfers between holders leave the counters alone.
func (s *Service) Transfer(ctx context.Context, actor *identity.User, tokenID uuid.UUID, req TransferRequest) (*CarbonCreditToken, error) {
	if !actor.Role.Can(identity.CapLedgerTransfer) {
		return nil, &domain.AuthorizationError{Capability: string(identity.CapLedgerTransfer)}
	}

	token, err := s.repo.GetToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	verrs := &domain.ValidationErrors{}
	if req.To == uuid.Nil {
		verrs.Add("to", "is required")
	} else if req.To == token.OwnerID {
		verrs.Add("to", "already owns this token")
	}
	if !verrs.Empty() {
		return nil, verrs
	}

	lock := s.projectLock(token.ProjectID)
	lock.Lock()
	defer lock.Unlock()

	// reload under the lock; another transfer may have won the race
	token, err = s.repo.GetToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if token.Retired() {
		return nil, &domain.StateConflictError{Expected: string(TokenActive), Actual: string(token.Status)}
	}
	if err := s.requireOwnership(actor, token); err != nil {
		return nil, err
	}
	if req.Amount != 0 && req.Amount != token.Amount {
		return nil, domain.ErrPartialRetirementUnsupported
	}

	if token.IssuerHeld {
		if err := s.projects.ReleaseCredits(ctx, s.creditGrant, token.ProjectID, token.Amount); err != nil {
			return nil, err
		}
		token.IssuerHeld = false
	}

	from := token.OwnerID
	token.OwnerID = req.To
	token.Status = TokenTransferred
	token.UpdatedAt = time.Now()

	if err := s.repo.UpdateToken(ctx, token); err != nil {
		return nil, err
	}

	if err := s.repo.AppendTransaction(ctx, &TransactionRecord{
		ID:        uuid.New(),
		TokenID:   token.ID,
		Type:      TxTransfer,
		FromOwner: &from,
		ToOwner:   &req.To,
		Amount:    token.Amount,
		Actor:     actor.ID,
		Note:      req.Note,
		CreatedAt: token.UpdatedAt,
	}); err != nil {
		s.logger.Error("Failed to record transfer transaction",
			zap.String("token_id", token.ID.String()),
			zap.Error(err))
	}

	s.events.Publish(notifications.Event{
		Type:      notifications.EventCreditsTransferred,
		ProjectID: token.ProjectID,
		Payload: map[string]interface{}{
			"token_id": token.ID.String(),
			"from":     from.String(),
			"to":       req.To.String(),
			"amount":   token.Amount,
		},
	})

	return token, nil
}

// Retire permanently removes a token from circulation and issues a numbered
// retirement certificate. Tokens retire whole: a partial amount is refused
// rather than splitting the token.
func (s *Service) Retire(ctx context.Context, actor *identity.User, tokenID uuid.UUID, req RetireRequest) (*RetirementCertificate, error) {
	if !actor.Role.Can(identity.CapLedgerRetire) {
		return nil, &domain.AuthorizationError{Capability: string(identity.CapLedgerRetire)}
	}

	token, err := s.repo.GetToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	lock := s.projectLock(token.ProjectID)
	lock.Lock()
	defer lock.Unlock()

	token, err = s.repo.GetToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if token.Retired() {
		return nil, &domain.StateConflictError{Expected: string(TokenActive), Actual: string(token.Status)}
	}
	if err := s.requireOwnership(actor, token); err != nil {
		return nil, err
	}
	if req.Amount != 0 && req.Amount != token.Amount {
		return nil, domain.ErrPartialRetirementUnsupported
	}

	if token.IssuerHeld {
		if err := s.projects.ReleaseCredits(ctx, s.creditGrant, token.ProjectID, token.Amount); err != nil {
			return nil, err
		}
		token.IssuerHeld = false
	}

	now := time.Now()
	token.Status = TokenRetired
	token.RetiredAt = &now
	token.RetirementReason = req.Reason
	token.Beneficiary = req.Beneficiary
	token.UpdatedAt = now

	if err := s.repo.UpdateToken(ctx, token); err != nil {
		return nil, err
	}

	cert := &RetirementCertificate{
		ID:                uuid.New(),
		CertificateNumber: newCertificateNumber(now.Year()),
		TokenID:           token.ID,
		ProjectID:         token.ProjectID,
		OwnerID:           token.OwnerID,
		Amount:            token.Amount,
		Vintage:           token.Vintage,
		Reason:            req.Reason,
		Beneficiary:       req.Beneficiary,
		RetiredAt:         now,
		CreatedAt:         now,
	}
	if err := s.repo.CreateCertificate(ctx, cert); err != nil {
		return nil, fmt.Errorf("failed to issue retirement certificate: %w", err)
	}

	if err := s.repo.AppendTransaction(ctx, &TransactionRecord{
		ID:        uuid.New(),
		TokenID:   token.ID,
		Type:      TxRetire,
		FromOwner: &token.OwnerID,
		Amount:    token.Amount,
		Actor:     actor.ID,
		Note:      req.Reason,
		CreatedAt: now,
	}); err != nil {
		s.logger.Error("Failed to record retirement transaction",
			zap.String("token_id", token.ID.String()),
			zap.Error(err))
	}

	s.events.Publish(notifications.Event{
		Type:      notifications.EventCreditsRetired,
		ProjectID: token.ProjectID,
		Payload: map[string]interface{}{
			"token_id":    token.ID.String(),
			"certificate": cert.CertificateNumber,
			"amount":      token.Amount,
			"beneficiary": req.Beneficiary,
		},
	})

	s.logger.Info("Credits retired",
		zap.String("token_id", token.ID.String()),
		zap.String("certificate", cert.CertificateNumber),
		zap.Float64("amount", token.Amount))

	return cert, nil
}

// GetToken retrieves a token the actor is allowed to see
func (s *Service) GetToken(ctx context.Context, actor *identity.User, id uuid.UUID) (*CarbonCreditToken, error) {
	token, err := s.repo.GetToken(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requireVisibility(ctx, actor, token); err != nil {
		return nil, err
	}
	return token, nil
}

// History returns a token's transaction records, oldest first
func (s *Service) History(ctx context.Context, actor *identity.User, tokenID uuid.UUID) ([]*TransactionRecord, error) {
	token, err := s.repo.GetToken(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if err := s.requireVisibility(ctx, actor, token); err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, tokenID)
}

// TokensForProject lists every token minted against a project the actor can
// see
func (s *Service) TokensForProject(ctx context.Context, actor *identity.User, projectID uuid.UUID) ([]*CarbonCreditToken, error) {
	if _, err := s.projects.GetProjectVisibleTo(ctx, actor, projectID); err != nil {
		return nil, err
	}
	return s.repo.ListTokensByProject(ctx, projectID)
}

// TokensOwnedBy lists tokens currently held by an organization
func (s *Service) TokensOwnedBy(ctx context.Context, ownerID uuid.UUID) ([]*CarbonCreditToken, error) {
	return s.repo.ListTokensByOwner(ctx, ownerID)
}

// OwnerBalance sums an organization's holdings
func (s *Service) OwnerBalance(ctx context.Context, ownerID uuid.UUID) (*Balance, error) {
	tokens, err := s.repo.ListTokensByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	balance := &Balance{OwnerID: ownerID}
	for _, token := range tokens {
		if token.Retired() {
			balance.Retired += token.Amount
			continue
		}
		balance.Active += token.Amount
		balance.Tokens++
	}
	return balance, nil
}

// GetCertificate retrieves a retirement certificate
func (s *Service) GetCertificate(ctx context.Context, id uuid.UUID) (*RetirementCertificate, error) {
	return s.repo.GetCertificate(ctx, id)
}

// CertificatesForOwner lists an organization's retirement certificates
func (s *Service) CertificatesForOwner(ctx context.Context, ownerID uuid.UUID) ([]*RetirementCertificate, error) {
	return s.repo.ListCertificatesByOwner(ctx, ownerID)
}

// CertificatePDF renders a retirement certificate as a PDF document
func (s *Service) CertificatePDF(ctx context.Context, id uuid.UUID) ([]byte, error) {
	cert, err := s.repo.GetCertificate(ctx, id)
	if err != nil {
		return nil, err
	}

	project, err := s.projects.GetProject(ctx, cert.ProjectID)
	if err != nil {
		return nil, err
	}

	return renderCertificate(cert, project.Name)
}

// requireVisibility scopes token reads: the holding organization and anyone
// who can see the issuing project may read the token; everyone else gets a
// not-found, the same way scoped project lookups behave.
func (s *Service) requireVisibility(ctx context.Context, actor *identity.User, token *CarbonCreditToken) error {
	if actor.Role.SeesAllProjects() || actor.OrganizationID == token.OwnerID {
		return nil
	}
	if _, err := s.projects.GetProjectVisibleTo(ctx, actor, token.ProjectID); err != nil {
		return err
	}
	return nil
}

// requireOwnership lets the holding organization, or an admin, move the
// token. Holding a transfer capability is not enough to move someone
// else's credits.
func (s *Service) requireOwnership(actor *identity.User, token *CarbonCreditToken) error {
	if actor.Role == identity.RoleAdmin {
		return nil
	}
	if actor.OrganizationID != token.OwnerID {
		return &domain.AuthorizationError{Capability: string(identity.CapLedgerTransfer)}
	}
	return nil
}
