package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"blue-carbon/mrv-portal/mrv-portal-backend/pkg/domain"
)

// Repository defines the interface for ledger data access
type Repository interface {
	CreateToken(ctx context.Context, token *CarbonCreditToken) error
	GetToken(ctx context.Context, id uuid.UUID) (*CarbonCreditToken, error)
	UpdateToken(ctx context.Context, token *CarbonCreditToken) error
	DeleteToken(ctx context.Context, id uuid.UUID) error
	ListTokensByProject(ctx context.Context, projectID uuid.UUID) ([]*CarbonCreditToken, error)
	ListTokensByOwner(ctx context.Context, ownerID uuid.UUID) ([]*CarbonCreditToken, error)

	AppendTransaction(ctx context.Context, tx *TransactionRecord) error
	ListTransactions(ctx context.Context, tokenID uuid.UUID) ([]*TransactionRecord, error)

	CreateCertificate(ctx context.Context, cert *RetirementCertificate) error
	GetCertificate(ctx context.Context, id uuid.UUID) (*RetirementCertificate, error)
	ListCertificatesByOwner(ctx context.Context, ownerID uuid.UUID) ([]*RetirementCertificate, error)
}

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL ledger repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) CreateToken(ctx context.Context, token *CarbonCreditToken) error {
	metadataJSON, err := json.Marshal(token.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal token metadata: %w", err)
	}

	query := `
		INSERT INTO carbon_credit_tokens (
			id, serial_number, project_id, owner_id, issuer_held, amount, vintage,
			status, metadata, retired_at, retirement_reason, beneficiary,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
	`

	_, err = r.db.ExecContext(ctx, query,
		token.ID, token.SerialNumber, token.ProjectID, token.OwnerID, token.IssuerHeld,
		token.Amount, token.Vintage, token.Status, metadataJSON,
		token.RetiredAt, token.RetirementReason, token.Beneficiary,
		token.CreatedAt, token.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}

	return nil
}

const tokenColumns = `
	id, serial_number, project_id, owner_id, issuer_held, amount, vintage,
	status, metadata, retired_at, retirement_reason, beneficiary,
	created_at, updated_at
`

func (r *PostgresRepository) GetToken(ctx context.Context, id uuid.UUID) (*CarbonCreditToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM carbon_credit_tokens WHERE id = $1`

	token, err := scanToken(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return token, nil
}

func (r *PostgresRepository) UpdateToken(ctx context.Context, token *CarbonCreditToken) error {
	query := `
		UPDATE carbon_credit_tokens SET
			owner_id = $2, issuer_held = $3, status = $4, retired_at = $5,
			retirement_reason = $6, beneficiary = $7, updated_at = $8
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		token.ID, token.OwnerID, token.IssuerHeld, token.Status, token.RetiredAt,
		token.RetirementReason, token.Beneficiary, token.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update token: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}

	return nil
}

func (r *PostgresRepository) DeleteToken(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM carbon_credit_tokens WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrNotFound
	}

	return nil
}

func (r *PostgresRepository) ListTokensByProject(ctx context.Context, projectID uuid.UUID) ([]*CarbonCreditToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM carbon_credit_tokens WHERE project_id = $1 ORDER BY created_at ASC`
	return r.listTokens(ctx, query, projectID)
}

func (r *PostgresRepository) ListTokensByOwner(ctx context.Context, ownerID uuid.UUID) ([]*CarbonCreditToken, error) {
	query := `SELECT ` + tokenColumns + ` FROM carbon_credit_tokens WHERE owner_id = $1 ORDER BY created_at ASC`
	return r.listTokens(ctx, query, ownerID)
}

func (r *PostgresRepository) listTokens(ctx context.Context, query string, arg interface{}) ([]*CarbonCreditToken, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*CarbonCreditToken
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		tokens = append(tokens, token)
	}

	return tokens, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanToken(row rowScanner) (*CarbonCreditToken, error) {
	var token CarbonCreditToken
	var metadataJSON []byte

	err := row.Scan(
		&token.ID, &token.SerialNumber, &token.ProjectID, &token.OwnerID, &token.IssuerHeld,
		&token.Amount, &token.Vintage, &token.Status, &metadataJSON,
		&token.RetiredAt, &token.RetirementReason, &token.Beneficiary,
		&token.CreatedAt, &token.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &token.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal token metadata: %w", err)
		}
	}

	return &token, nil
}

func (r *PostgresRepository) AppendTransaction(ctx context.Context, tx *TransactionRecord) error {
	query := `
		INSERT INTO ledger_transactions (
			id, token_id, type, from_owner, to_owner, amount, actor, note, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		tx.ID, tx.TokenID, tx.Type, tx.FromOwner, tx.ToOwner,
		tx.Amount, tx.Actor, tx.Note, tx.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append transaction: %w", err)
	}

	return nil
}

func (r *PostgresRepository) ListTransactions(ctx context.Context, tokenID uuid.UUID) ([]*TransactionRecord, error) {
	query := `
		SELECT id, token_id, type, from_owner, to_owner, amount, actor, note, created_at
		FROM ledger_transactions
		WHERE token_id = $1
		ORDER BY created_at ASC
	`

	var txs []*TransactionRecord
	if err := r.db.SelectContext(ctx, &txs, query, tokenID); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	return txs, nil
}

func (r *PostgresRepository) CreateCertificate(ctx context.Context, cert *RetirementCertificate) error {
	query := `
		INSERT INTO retirement_certificates (
			id, certificate_number, token_id, project_id, owner_id, amount, vintage,
			reason, beneficiary, retired_at, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		cert.ID, cert.CertificateNumber, cert.TokenID, cert.ProjectID, cert.OwnerID,
		cert.Amount, cert.Vintage, cert.Reason, cert.Beneficiary, cert.RetiredAt, cert.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create certificate: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetCertificate(ctx context.Context, id uuid.UUID) (*RetirementCertificate, error) {
	query := `
		SELECT id, certificate_number, token_id, project_id, owner_id, amount, vintage,
			   reason, beneficiary, retired_at, created_at
		FROM retirement_certificates
		WHERE id = $1
	`

	var cert RetirementCertificate
	if err := r.db.GetContext(ctx, &cert, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get certificate: %w", err)
	}

	return &cert, nil
}

func (r *PostgresRepository) ListCertificatesByOwner(ctx context.Context, ownerID uuid.UUID) ([]*RetirementCertificate, error) {
	query := `
		SELECT id, certificate_number, token_id, project_id, owner_id, amount, vintage,
			   reason, beneficiary, retired_at, created_at
		FROM retirement_certificates
		WHERE owner_id = $1
		ORDER BY retired_at DESC
	`

	var certs []*RetirementCertificate
	if err := r.db.SelectContext(ctx, &certs, query, ownerID); err != nil {
		return nil, fmt.Errorf("failed to list certificates: %w", err)
	}

	return certs, nil
}
