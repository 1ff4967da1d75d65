package export

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"glrssign/internal/agreement"
	"glrssign/internal/document"
	"glrssign/internal/storage"
)

var t0 = time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)

func completed(t *testing.T) *agreement.Agreement {
	t.Helper()
	a, err := agreement.BuildDraft(agreement.DraftParams{
		ID:            "agr-1",
		TenantID:      "tenant-1",
		DocumentTitle: "Intake",
		Blocks: document.Blocks{
			document.SignatureField{ID: "pir_sig", Field: document.Field{Role: document.RolePIR, Required: true}},
		},
		Signers: map[document.SignerRole]agreement.SignerFormData{
			document.RolePIR: {Name: "Jamie", Email: "jamie@example.com"},
		},
		Now: t0,
	})
	if err != nil {
		t.Fatalf("build draft: %v", err)
	}
	a, err = agreement.Sign(a, document.RolePIR, agreement.SignInput{Values: map[string]any{"pir_sig": "Jamie"}}, t0)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return a
}

type fakeRenderer struct {
	calls int
	err   error
}

func (f *fakeRenderer) Render(ctx context.Context, a *agreement.Agreement) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte("%PDF " + a.ID), nil
}

type memSink struct {
	objects map[string][]byte
}

func (m *memSink) UploadSignedAgreement(ctx context.Context, data []byte, tenantID, agreementID string) (*storage.UploadResult, error) {
	key := storage.SignedAgreementKey(tenantID, agreementID)
	m.objects[key] = data
	sum := sha256.Sum256(data)
	return &storage.UploadResult{S3Key: key, FileHash: hex.EncodeToString(sum[:]), FileSize: int64(len(data)), UploadedAt: t0}, nil
}

func (m *memSink) DownloadFile(ctx context.Context, key string) (*storage.DownloadResult, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return &storage.DownloadResult{Data: data}, nil
}

func (m *memSink) CheckFileExists(ctx context.Context, key string) (bool, error) {
	_, ok := m.objects[key]
	return ok, nil
}

type memRecords map[string]*Artifact

func (m memRecords) SaveExport(ctx context.Context, a *Artifact) error {
	m[a.AgreementID] = a
	return nil
}

func (m memRecords) GetExport(ctx context.Context, id string) (*Artifact, error) {
	a, ok := m[id]
	if !ok {
		return nil, ErrNoArtifact
	}
	return a, nil
}

func TestExportRejectsOpenAgreements(t *testing.T) {
	r := &fakeRenderer{}
	e := NewExporter(r, &memSink{objects: map[string][]byte{}}, memRecords{})
	a := completed(t)
	a.Status = agreement.StatusPartiallySigned
	if _, err := e.Export(context.Background(), a); !errors.Is(err, ErrNotCompleted) {
		t.Fatalf("expected ErrNotCompleted, got %v", err)
	}
	if r.calls != 0 {
		t.Fatalf("renderer must not be called for open agreements")
	}
}

func TestExportStoresOnceAndDownloads(t *testing.T) {
	r := &fakeRenderer{}
	sink := &memSink{objects: map[string][]byte{}}
	e := NewExporter(r, sink, memRecords{})
	a := completed(t)
	ctx := context.Background()

	art, err := e.Export(ctx, a)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if art.Key != "agreements/tenant-1/agr-1-signed.pdf" {
		t.Fatalf("unexpected key %s", art.Key)
	}
	if _, err := e.Export(ctx, a); err != nil {
		t.Fatalf("re-export: %v", err)
	}
	if r.calls != 1 {
		t.Fatalf("expected a single render, got %d", r.calls)
	}

	data, _, err := e.Download(ctx, a.ID)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if string(data) != "%PDF agr-1" {
		t.Fatalf("unexpected data %q", data)
	}

	sink.objects[art.Key] = []byte("tampered")
	if _, _, err := e.Download(ctx, a.ID); err == nil || !strings.Contains(err.Error(), "integrity") {
		t.Fatalf("expected integrity failure, got %v", err)
	}
	if _, _, err := e.Download(ctx, "other"); !errors.Is(err, ErrNoArtifact) {
		t.Fatalf("expected ErrNoArtifact, got %v", err)
	}
}

func TestHTTPRendererStripsTokens(t *testing.T) {
	a := completed(t)
	pir, _ := a.Signer(document.RolePIR)
	var received agreement.Agreement
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if strings.Contains(string(body), pir.Token) {
			http.Error(w, "token leaked", http.StatusBadRequest)
			return
		}
		if err := json.Unmarshal(body, &received); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF-1.7"))
	}))
	defer srv.Close()

	pdf, err := NewHTTPRenderer(srv.URL, time.Second).Render(context.Background(), a)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if string(pdf) != "%PDF-1.7" || received.ID != a.ID {
		t.Fatalf("unexpected render result %q for %q", pdf, received.ID)
	}
	if a.Signers[0].Token == "" {
		t.Fatalf("render must not strip tokens from the caller's agreement")
	}
}

func TestHTTPRendererReportsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()
	if _, err := NewHTTPRenderer(srv.URL, time.Second).Render(context.Background(), completed(t)); err == nil || !strings.Contains(err.Error(), "500") {
		t.Fatalf("expected renderer status in error, got %v", err)
	}
}
