package verification

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"blue-carbon/mrv-portal/mrv-portal-backend/internal/identity"
	"blue-carbon/mrv-portal/mrv-portal-backend/internal/notifications"
	"blue-carbon/mrv-portal/mrv-portal-backend/internal/registry"
	"blue-carbon/mrv-portal/mrv-portal-backend/pkg/domain"
	"blue-carbon/mrv-portal/mrv-portal-backend/pkg/workflows"
)

// OpenReviewRequest carries the openReview command input
type OpenReviewRequest struct {
	ProjectID             uuid.UUID      `json:"project_id"`
	Method                Method         `json:"method"`
	Evidence              []EvidenceItem `json:"evidence"`
	MonitoringPeriodYears float64        `json:"monitoring_period_years"`
}

// Service runs the verification workflow
type Service struct {
	repo         Repository
	projects     *registry.Service
	statusGrant  registry.Grant
	minter       Minter
	stateMachine *workflows.StateMachine
	events       notifications.Publisher
	logger       *zap.Logger
}

// NewService creates the verification workflow service
func NewService(
	repo Repository,
	projects *registry.Service,
	statusGrant registry.Grant,
	minter Minter,
	events notifications.Publisher,
	logger *zap.Logger,
) *Service {
	return &Service{
		repo:         repo,
		projects:     projects,
		statusGrant:  statusGrant,
		minter:       minter,
		stateMachine: workflows.NewVerificationStateMachine(),
		events:       events,
		logger:       logger,
	}
}

// OpenReview creates a verification record in progress for the project
func (s *Service) OpenReview(ctx context.Context, actor *identity.User, req OpenReviewRequest) (*VerificationRecord, error) {
	if !actor.Role.Can(identity.CapVerificationOpen) {
		return nil, &domain.AuthorizationError{Capability: string(identity.CapVerificationOpen)}
	}

	verrs := &domain.ValidationErrors{}
	if req.ProjectID == uuid.Nil {
		verrs.Add("project_id", "is required")
	}
	if !ValidMethod(req.Method) {
		verrs.Add("method", fmt.Sprintf("%q is not a supported verification method", req.Method))
	}
	if !verrs.Empty() {
		return nil, verrs
	}

	if _, err := s.projects.GetProject(ctx, req.ProjectID); err != nil {
		return nil, err
	}

	evidence := make([]EvidenceItem, len(req.Evidence))
	copy(evidence, req.Evidence)
	for i := range evidence {
		if evidence[i].ID == uuid.Nil {
			evidence[i].ID = uuid.New()
		}
	}

	periodYears := req.MonitoringPeriodYears
	if periodYears <= 0 {
		periodYears = 1
	}

	now := time.Now()
	record := &VerificationRecord{
		ID:                    uuid.New(),
		ProjectID:             req.ProjectID,
		Verifier:              actor.ID,
		Method:                req.Method,
		EvidenceItems:         evidence,
		Status:                StatusInProgress,
		MonitoringPeriodYears: periodYears,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	record.ConfidenceScore = ComputeConfidence(record)

	if err := s.repo.Create(ctx, record); err != nil {
		return nil, err
	}

	s.events.Publish(notifications.Event{
		Type:      notifications.EventVerificationOpened,
		ProjectID: record.ProjectID,
		Payload:   map[string]interface{}{"verification_id": record.ID.String(), "method": string(record.Method)},
	})

	s.logger.Info("Verification review opened",
		zap.String("verification_id", record.ID.String()),
		zap.String("project_id", record.ProjectID.String()),
		zap.String("method", string(record.Method)))

	return record, nil
}

// GetRecord retrieves a verification record
func (s *Service) GetRecord(ctx context.Context, id uuid.UUID) (*VerificationRecord, error) {
	return s.repo.GetByID(ctx, id)
}

// Queue lists verification records matching the filter, oldest first
func (s *Service) Queue(ctx context.Context, filter QueueFilter) ([]*VerificationRecord, error) {
	return s.repo.List(ctx, filter)
}

// RecordFindings updates the findings of an in-progress record and refreshes
// the confidence score and credit recommendation. Frozen records refuse
// edits.
func (s *Service) RecordFindings(ctx context.Context, actor *identity.User, recordID uuid.UUID, findings Findings) (*VerificationRecord, error) {
	record, err := s.editableRecord(ctx, actor, recordID)
	if err != nil {
		return nil, err
	}

	record.Findings = findings
	record.ConfidenceScore = ComputeConfidence(record)
	record.CarbonCreditsRecommended = RecommendCredits(record.Findings, record.MonitoringPeriodYears)
	record.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// VerifyEvidence marks one evidence item as verified
func (s *Service) VerifyEvidence(ctx context.Context, actor *identity.User, recordID, evidenceID uuid.UUID) (*VerificationRecord, error) {
	record, err := s.editableRecord(ctx, actor, recordID)
	if err != nil {
		return nil, err
	}

	found := false
	for i := range record.EvidenceItems {
		if record.EvidenceItems[i].ID == evidenceID {
			record.EvidenceItems[i].Verified = true
			found = true
			break
		}
	}
	if !found {
		return nil, domain.ErrNotFound
	}

	record.ConfidenceScore = ComputeConfidence(record)
	record.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// AddEvidence appends evidence items, typically ahead of a resubmission
func (s *Service) AddEvidence(ctx context.Context, actor *identity.User, recordID uuid.UUID, items []EvidenceItem) (*VerificationRecord, error) {
	if !actor.Role.Can(identity.CapVerificationOpen) {
		return nil, &domain.AuthorizationError{Capability: string(identity.CapVerificationOpen)}
	}

	record, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record.Terminal() || record.ImmutableRecord {
		return nil, &domain.StateConflictError{Expected: string(StatusInProgress), Actual: string(record.Status)}
	}

	for _, item := range items {
		if item.ID == uuid.Nil {
			item.ID = uuid.New()
		}
		record.EvidenceItems = append(record.EvidenceItems, item)
	}
	record.ConfidenceScore = ComputeConfidence(record)
	record.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// Resubmit moves a requires_additional_data record back into review, the
// only backward edge in the workflow.
func (s *Service) Resubmit(ctx context.Context, actor *identity.User, recordID uuid.UUID) (*VerificationRecord, error) {
	if !actor.Role.Can(identity.CapVerificationOpen) {
		return nil, &domain.AuthorizationError{Capability: string(identity.CapVerificationOpen)}
	}

	record, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if !s.stateMachine.CanTransition(string(record.Status), string(StatusInProgress)) {
		return nil, &domain.StateConflictError{Expected: string(StatusRequiresMoreData), Actual: string(record.Status)}
	}

	record.Status = StatusInProgress
	record.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, record); err != nil {
		return nil, err
	}

	if err := s.projects.TransitionStatus(ctx, s.statusGrant, record.ProjectID, registry.StatusActive, actor.ID); err != nil {
		var stateErr *domain.StateConflictError
		if !errors.As(err, &stateErr) {
			return nil, err
		}
	}

	return record, nil
}

// Approve closes the review as verified, freezes the record, and emits a
// mint request when credits are recommended. Every evidence item must be
// verified and no compliance issue may be outstanding.
func (s *Service) Approve(ctx context.Context, actor *identity.User, recordID uuid.UUID) (*VerificationRecord, error) {
	if !actor.Role.Can(identity.CapVerificationClose) {
		return nil, &domain.AuthorizationError{Capability: string(identity.CapVerificationClose)}
	}

	record, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if !s.stateMachine.CanTransition(string(record.Status), string(StatusVerified)) {
		return nil, &domain.StateConflictError{Expected: string(StatusInProgress), Actual: string(record.Status)}
	}

	for _, item := range record.EvidenceItems {
		if !item.Verified {
			return nil, domain.ErrIncompleteEvidence
		}
	}
	if len(record.EvidenceItems) == 0 {
		return nil, domain.ErrIncompleteEvidence
	}
	if len(record.Findings.ComplianceIssues) > 0 {
		return nil, domain.ErrOutstandingCompliance
	}

	now := time.Now()
	record.Status = StatusVerified
	record.ConfidenceScore = ComputeConfidence(record)
	record.CarbonCreditsRecommended = RecommendCredits(record.Findings, record.MonitoringPeriodYears)
	record.ImmutableRecord = true
	record.DecidedAt = &now
	record.UpdatedAt = now

	hash, err := recordHash(record)
	if err != nil {
		return nil, err
	}
	record.RecordHash = hash

	if err := s.repo.Update(ctx, record); err != nil {
		return nil, err
	}

	if err := s.projects.TransitionStatus(ctx, s.statusGrant, record.ProjectID, registry.StatusVerified, actor.ID); err != nil {
		return nil, err
	}

	if record.CarbonCreditsRecommended > 0 {
		project, err := s.projects.GetProject(ctx, record.ProjectID)
		if err != nil {
			return nil, err
		}
		req := MintRequest{
			ProjectID:      record.ProjectID,
			VerificationID: record.ID,
			Amount:         record.CarbonCreditsRecommended,
			Vintage:        now.Year(),
			EcosystemType:  string(project.EcosystemType),
			Methodology:    project.Methodology,
			Verifier:       record.Verifier.String(),
			GPSCoordinates: fmt.Sprintf("%.5f,%.5f", project.Location.Lat, project.Location.Lng),
			EvidenceHash:   record.RecordHash,
		}
		if err := s.minter.Mint(ctx, req); err != nil {
			return nil, fmt.Errorf("mint request failed: %w", err)
		}
	}

	s.events.Publish(notifications.Event{
		Type:      notifications.EventVerificationClosed,
		ProjectID: record.ProjectID,
		Payload: map[string]interface{}{
			"verification_id": record.ID.String(),
			"status":          string(record.Status),
			"credits":         record.CarbonCreditsRecommended,
		},
	})

	s.logger.Info("Verification approved",
		zap.String("verification_id", record.ID.String()),
		zap.Float64("confidence", record.ConfidenceScore),
		zap.Float64("credits_recommended", record.CarbonCreditsRecommended))

	return record, nil
}

// Reject closes the review as rejected, appending the reason to the
// compliance issues. The record is terminal afterwards; resubmission means
// opening a new record for the same project.
func (s *Service) Reject(ctx context.Context, actor *identity.User, recordID uuid.UUID, reason string) (*VerificationRecord, error) {
	return s.close(ctx, actor, recordID, StatusRejected, registry.StatusRejected, reason)
}

// RequestAdditionalData pauses the review pending more evidence
func (s *Service) RequestAdditionalData(ctx context.Context, actor *identity.User, recordID uuid.UUID, reason string) (*VerificationRecord, error) {
	return s.close(ctx, actor, recordID, StatusRequiresMoreData, registry.StatusRequiresMoreData, reason)
}

func (s *Service) close(ctx context.Context, actor *identity.User, recordID uuid.UUID, to Status, projectTo registry.ProjectStatus, reason string) (*VerificationRecord, error) {
	if !actor.Role.Can(identity.CapVerificationClose) {
		return nil, &domain.AuthorizationError{Capability: string(identity.CapVerificationClose)}
	}

	record, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if !s.stateMachine.CanTransition(string(record.Status), string(to)) {
		return nil, &domain.StateConflictError{Expected: string(StatusInProgress), Actual: string(record.Status)}
	}

	now := time.Now()
	record.Status = to
	if reason != "" {
		record.Findings.ComplianceIssues = append(record.Findings.ComplianceIssues, reason)
	}
	record.ConfidenceScore = ComputeConfidence(record)
	record.DecidedAt = &now
	record.UpdatedAt = now

	if err := s.repo.Update(ctx, record); err != nil {
		return nil, err
	}

	if err := s.projects.TransitionStatus(ctx, s.statusGrant, record.ProjectID, projectTo, actor.ID); err != nil {
		var stateErr *domain.StateConflictError
		if !errors.As(err, &stateErr) {
			return nil, err
		}
	}

	s.events.Publish(notifications.Event{
		Type:      notifications.EventVerificationClosed,
		ProjectID: record.ProjectID,
		Payload: map[string]interface{}{
			"verification_id": record.ID.String(),
			"status":          string(record.Status),
		},
	})

	return record, nil
}

func (s *Service) editableRecord(ctx context.Context, actor *identity.User, recordID uuid.UUID) (*VerificationRecord, error) {
	if !actor.Role.Can(identity.CapVerificationOpen) {
		return nil, &domain.AuthorizationError{Capability: string(identity.CapVerificationOpen)}
	}

	record, err := s.repo.GetByID(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if record.Terminal() || record.ImmutableRecord {
		return nil, &domain.StateConflictError{Expected: string(StatusInProgress), Actual: string(record.Status)}
	}
	return record, nil
}

// recordHash anchors the frozen record content: a sha256 over the canonical
// JSON of the decision-relevant fields.
func recordHash(record *VerificationRecord) (string, error) {
	frozen := struct {
		ID              uuid.UUID `json:"id"`
		ProjectID       uuid.UUID `json:"project_id"`
		Verifier        uuid.UUID `json:"verifier"`
		Method          Method    `json:"method"`
		Findings        Findings  `json:"findings"`
		ConfidenceScore float64   `json:"confidence_score"`
		Credits         float64   `json:"credits"`
	}{
		ID:              record.ID,
		ProjectID:       record.ProjectID,
		Verifier:        record.Verifier,
		Method:          record.Method,
		Findings:        record.Findings,
		ConfidenceScore: record.ConfidenceScore,
		Credits:         record.CarbonCreditsRecommended,
	}
	blob, err := json.Marshal(frozen)
	if err != nil {
		return "", fmt.Errorf("failed to hash record: %w", err)
	}
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:]), nil
}
