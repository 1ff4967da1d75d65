package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"glrssign/internal/agreement"
)

// changeChannel carries the tenant id of every committed agreement write.
const changeChannel = "agreements_changed"

// ErrConflict is returned when a new agreement collides with an existing id or token.
var ErrConflict = errors.New("database: agreement id or signing token already exists")

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAgreement(row rowScanner) (*agreement.Agreement, error) {
	var (
		doc     []byte
		version int
	)
	if err := row.Scan(&doc, &version); err != nil {
		return nil, err
	}
	var a agreement.Agreement
	if err := json.Unmarshal(doc, &a); err != nil {
		return nil, fmt.Errorf("database: decode agreement document: %w", err)
	}
	a.Version = version
	return &a, nil
}

// storageErr marks err as a retryable persistence failure.
func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", agreement.ErrPersistence, op, err)
}

func (s *service) CreateAgreement(ctx context.Context, a *agreement.Agreement) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	doc, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("database: encode agreement: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO agreements (id, tenant_id, template_id, status, sent_at, expires_at, completed_at, document, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 1)`,
		a.ID, a.TenantID, a.TemplateID, string(a.Status), a.SentAt, a.ExpiresAt, a.CompletedAt, doc)
	if err != nil {
		return insertErr("insert agreement", err)
	}

	for _, signer := range a.Signers {
		if signer.Token == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO signer_tokens (token, agreement_id, role) VALUES ($1, $2, $3)`,
			signer.Token, a.ID, string(signer.Role)); err != nil {
			return insertErr("insert signer token", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, changeChannel, a.TenantID); err != nil {
		return storageErr("notify", err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit", err)
	}
	a.Version = 1
	return nil
}

func insertErr(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrConflict
	}
	return storageErr(op, err)
}

func (s *service) GetAgreement(ctx context.Context, id string) (*agreement.Agreement, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	a, err := scanAgreement(s.db.QueryRowContext(ctx,
		`SELECT document, version FROM agreements WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, agreement.ErrNotFound
	}
	if err != nil {
		return nil, storageErr("get agreement", err)
	}
	return a, nil
}

func (s *service) GetAgreementByToken(ctx context.Context, token string) (*agreement.Agreement, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	a, err := scanAgreement(s.db.QueryRowContext(ctx, `
		SELECT a.document, a.version
		FROM signer_tokens t
		JOIN agreements a ON a.id = t.agreement_id
		WHERE t.token = $1`, token))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, agreement.ErrNotFound
	}
	if err != nil {
		return nil, storageErr("resolve token", err)
	}
	return a, nil
}

// UpdateAgreement locks the agreement row, reserves opID, applies fn and
// writes the result back in a single transaction. Errors returned by fn are
// passed through untouched and roll back the operation reservation, so the
// same opID can be retried.
func (s *service) UpdateAgreement(ctx context.Context, id, opID string, fn agreement.MutateFunc) (*agreement.Agreement, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, storageErr("begin", err)
	}
	defer tx.Rollback()

	current, err := scanAgreement(tx.QueryRowContext(ctx,
		`SELECT document, version FROM agreements WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, agreement.ErrNotFound
	}
	if err != nil {
		return nil, false, storageErr("lock agreement", err)
	}

	if opID != "" {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO agreement_operations (agreement_id, operation_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING`, id, opID)
		if err != nil {
			return nil, false, storageErr("reserve operation", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, false, storageErr("reserve operation", err)
		}
		if n == 0 {
			return current, true, nil
		}
	}

	next, err := fn(current)
	if err != nil {
		return nil, false, err
	}
	next.Version = current.Version + 1

	doc, err := json.Marshal(next)
	if err != nil {
		return nil, false, fmt.Errorf("database: encode agreement: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE agreements
		SET status = $2,
			expires_at = $3,
			completed_at = $4,
			document = $5,
			version = $6,
			updated_at = NOW()
		WHERE id = $1`,
		id, string(next.Status), next.ExpiresAt, next.CompletedAt, doc, next.Version); err != nil {
		return nil, false, storageErr("update agreement", err)
	}

	if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, changeChannel, next.TenantID); err != nil {
		return nil, false, storageErr("notify", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, storageErr("commit", err)
	}
	return next, false, nil
}

// ListAgreements returns the tenant's most recently sent agreements.
func (s *service) ListAgreements(ctx context.Context, tenantID string, limit int) ([]*agreement.Agreement, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT document, version
		FROM agreements
		WHERE tenant_id = $1
		ORDER BY sent_at DESC
		LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, storageErr("list agreements", err)
	}
	return collect(rows)
}

// ListOpenAgreements returns every agreement whose stored status is not terminal.
func (s *service) ListOpenAgreements(ctx context.Context) ([]*agreement.Agreement, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, `
		SELECT document, version
		FROM agreements
		WHERE status IN ($1, $2)
		ORDER BY sent_at ASC`,
		string(agreement.StatusSent), string(agreement.StatusPartiallySigned))
	if err != nil {
		return nil, storageErr("list open agreements", err)
	}
	return collect(rows)
}

func collect(rows *sql.Rows) ([]*agreement.Agreement, error) {
	defer rows.Close()
	var out []*agreement.Agreement
	for rows.Next() {
		a, err := scanAgreement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("scan agreements", err)
	}
	return out, nil
}
