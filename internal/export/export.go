// Package export turns completed agreements into stored PDF artifacts using an
// external renderer.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"glrssign/internal/agreement"
	"glrssign/internal/storage"
)

var (
	// ErrNotCompleted is returned for agreements that are not completed.
	ErrNotCompleted = errors.New("export: only completed agreements can be exported")
	// ErrNoArtifact is returned when an agreement has not been exported yet.
	ErrNoArtifact = errors.New("export: agreement has not been exported yet")
)

// Renderer produces a PDF for a completed agreement.
type Renderer interface {
	Render(ctx context.Context, a *agreement.Agreement) ([]byte, error)
}

// Sink stores rendered artifacts.
type Sink interface {
	UploadSignedAgreement(ctx context.Context, data []byte, tenantID, agreementID string) (*storage.UploadResult, error)
	DownloadFile(ctx context.Context, key string) (*storage.DownloadResult, error)
	CheckFileExists(ctx context.Context, key string) (bool, error)
}

// Artifact records where an export lives and what it hashed to.
type Artifact struct {
	AgreementID string    `json:"agreementId"`
	Key         string    `json:"key"`
	Hash        string    `json:"hash"`
	Size        int64     `json:"size"`
	ExportedAt  time.Time `json:"exportedAt"`
}

// Records persists artifact metadata. GetExport returns ErrNoArtifact when absent.
type Records interface {
	SaveExport(ctx context.Context, a *Artifact) error
	GetExport(ctx context.Context, agreementID string) (*Artifact, error)
}

type Exporter struct {
	renderer Renderer
	sink     Sink
	records  Records
}

func NewExporter(renderer Renderer, sink Sink, records Records) *Exporter {
	return &Exporter{renderer: renderer, sink: sink, records: records}
}

// Export renders and stores a, unless an artifact already exists.
func (e *Exporter) Export(ctx context.Context, a *agreement.Agreement) (*Artifact, error) {
	if a.Status != agreement.StatusCompleted {
		return nil, ErrNotCompleted
	}

	existing, err := e.records.GetExport(ctx, a.ID)
	switch {
	case err == nil:
		ok, err := e.sink.CheckFileExists(ctx, existing.Key)
		if err != nil {
			return nil, fmt.Errorf("export: check artifact: %w", err)
		}
		if ok {
			return existing, nil
		}
	case !errors.Is(err, ErrNoArtifact):
		return nil, fmt.Errorf("export: load artifact record: %w", err)
	}

	pdf, err := e.renderer.Render(ctx, a)
	if err != nil {
		return nil, fmt.Errorf("export: render %s: %w", a.ID, err)
	}
	res, err := e.sink.UploadSignedAgreement(ctx, pdf, a.TenantID, a.ID)
	if err != nil {
		return nil, fmt.Errorf("export: store %s: %w", a.ID, err)
	}
	art := &Artifact{
		AgreementID: a.ID,
		Key:         res.S3Key,
		Hash:        res.FileHash,
		Size:        res.FileSize,
		ExportedAt:  res.UploadedAt,
	}
	if err := e.records.SaveExport(ctx, art); err != nil {
		return nil, fmt.Errorf("export: save artifact record: %w", err)
	}
	log.Printf("agreement %s exported to %s (%d bytes)", a.ID, art.Key, art.Size)
	return art, nil
}

// Finalize exports a freshly completed agreement.
func (e *Exporter) Finalize(ctx context.Context, a *agreement.Agreement) error {
	_, err := e.Export(ctx, a)
	return err
}

// Download returns the decrypted PDF after checking it against the recorded hash.
func (e *Exporter) Download(ctx context.Context, agreementID string) ([]byte, *Artifact, error) {
	art, err := e.records.GetExport(ctx, agreementID)
	if err != nil {
		return nil, nil, err
	}
	res, err := e.sink.DownloadFile(ctx, art.Key)
	if err != nil {
		return nil, nil, fmt.Errorf("export: download %s: %w", agreementID, err)
	}
	if err := storage.ValidateFileIntegrity(res.Data, art.Hash); err != nil {
		return nil, nil, fmt.Errorf("export: %s: %w", agreementID, err)
	}
	return res.Data, art, nil
}

// HTTPRenderer posts the agreement as JSON to an external rendering service.
type HTTPRenderer struct {
	url    string
	client *http.Client
}

func NewHTTPRenderer(url string, timeout time.Duration) *HTTPRenderer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPRenderer{url: url, client: &http.Client{Timeout: timeout}}
}

func (r *HTTPRenderer) Render(ctx context.Context, a *agreement.Agreement) ([]byte, error) {
	if r.url == "" {
		return nil, errors.New("export: RENDERER_URL is not configured")
	}
	// Tokens are bearer secrets and never leave the service.
	payload := a.Clone()
	for i := range payload.Signers {
		payload.Signers[i].Token = ""
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("export: encode agreement: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/pdf")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("export: renderer unavailable: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("export: read renderer response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("export: renderer returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}
	if len(data) == 0 {
		return nil, errors.New("export: renderer returned an empty document")
	}
	return data, nil
}
