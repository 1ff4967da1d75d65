package database

import (
	"context"
	"database/sql"
	"errors"

	"glrssign/internal/export"
)

func (s *service) SaveExport(ctx context.Context, a *export.Artifact) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agreement_exports (agreement_id, s3_key, file_hash, file_size, exported_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (agreement_id) DO UPDATE SET
			s3_key = EXCLUDED.s3_key,
			file_hash = EXCLUDED.file_hash,
			file_size = EXCLUDED.file_size,
			exported_at = EXCLUDED.exported_at`,
		a.AgreementID, a.Key, a.Hash, a.Size, a.ExportedAt)
	if err != nil {
		return storageErr("save export", err)
	}
	return nil
}

func (s *service) GetExport(ctx context.Context, agreementID string) (*export.Artifact, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	a := &export.Artifact{AgreementID: agreementID}
	err := s.db.QueryRowContext(ctx, `
		SELECT s3_key, file_hash, file_size, exported_at
		FROM agreement_exports
		WHERE agreement_id = $1`, agreementID).
		Scan(&a.Key, &a.Hash, &a.Size, &a.ExportedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, export.ErrNoArtifact
	}
	if err != nil {
		return nil, storageErr("get export", err)
	}
	return a, nil
}
