package database

import (
	"context"
	"database/sql"
	"time"

	"glrssign/internal/document"
	"glrssign/internal/notify"
)

// EnqueueMail appends m to the outbound mail queue and fills in its id.
func (s *service) EnqueueMail(ctx context.Context, m *notify.Message) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	createdAt := sql.NullTime{Time: m.CreatedAt, Valid: !m.CreatedAt.IsZero()}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO mail ("to", subject, html, agreement_id, role, kind, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))
		RETURNING id::text, created_at`,
		m.To, m.Subject, m.HTML, m.AgreementID, string(m.Role), string(m.Kind), createdAt,
	).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return storageErr("enqueue mail", err)
	}
	return nil
}

// LastMailed reports when mail for the agreement's signer was last queued.
func (s *service) LastMailed(ctx context.Context, agreementID string, role document.SignerRole) (time.Time, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var last sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM mail WHERE agreement_id = $1 AND role = $2`,
		agreementID, string(role)).Scan(&last)
	if err != nil {
		return time.Time{}, false, storageErr("last mailed", err)
	}
	return last.Time, last.Valid, nil
}
