package database

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"

	"glrssign/internal/agreement"
	"glrssign/internal/document"
	"glrssign/internal/export"
	"glrssign/internal/models"
	"glrssign/internal/notify"
)

// skipReason is set when no container runtime is available.
var skipReason string

// mustStartPostgresContainer starts a postgres container and returns a teardown function,
// a connection string, and an error.
func mustStartPostgresContainer() (func(context.Context) error, string, error) {
	var (
		dbName = "test_db"
		dbPwd  = "password"
		dbUser = "user"
	)

	dbContainer, err := postgres.Run(
		context.Background(),
		"postgres:16-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPwd),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	host, err := dbContainer.Host(context.Background())
	if err != nil {
		return dbContainer.Terminate, "", fmt.Errorf("failed to get container host: %w", err)
	}

	port, err := dbContainer.MappedPort(context.Background(), "5432/tcp")
	if err != nil {
		return dbContainer.Terminate, "", fmt.Errorf("failed to get container mapped port: %w", err)
	}

	connStr := fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=disable", dbUser, dbPwd, host, port.Port(), dbName)

	return dbContainer.Terminate, connStr, nil
}

func TestMain(m *testing.M) {
	teardown, testDbString, err := mustStartPostgresContainer()
	if err != nil {
		skipReason = err.Error()
		os.Exit(m.Run())
	}

	originalDbString := os.Getenv("DB_STRING")
	if err := os.Setenv("DB_STRING", testDbString); err != nil {
		log.Fatalf("failed to set DB_STRING for tests: %v", err)
	}
	dbInstance = nil

	if err := models.RunMigrations(New().DB()); err != nil {
		log.Fatalf("could not migrate test database: %v", err)
	}

	exitCode := m.Run()

	if originalDbString == "" {
		os.Unsetenv("DB_STRING")
	} else if err := os.Setenv("DB_STRING", originalDbString); err != nil {
		log.Printf("warning: failed to restore original DB_STRING: %v", err)
	}

	if teardown != nil {
		if err := teardown(context.Background()); err != nil {
			log.Fatalf("could not teardown postgres container: %v", err)
		}
	}
	os.Exit(exitCode)
}

func requireDB(t *testing.T) Service {
	t.Helper()
	if skipReason != "" {
		t.Skipf("postgres unavailable: %s", skipReason)
	}
	return New()
}

func newDraft(t *testing.T, tenantID string) *agreement.Agreement {
	t.Helper()
	a, err := agreement.BuildDraft(agreement.DraftParams{
		TenantID:      tenantID,
		TemplateID:    "tpl-intake",
		DocumentTitle: "Resident intake",
		Blocks: document.Blocks{
			document.SignatureField{ID: "pir_sig", Field: document.Field{Role: document.RolePIR, Required: true}},
			document.SignatureField{ID: "family_sig", Field: document.Field{Role: document.RoleFamily, Required: true}},
			document.SignatureField{ID: "glrs_sig", Field: document.Field{Role: document.RoleGLRS, Required: true}},
		},
		Signers: map[document.SignerRole]agreement.SignerFormData{
			document.RolePIR:    {Name: "Jamie", Email: "jamie@example.com", Order: 0},
			document.RoleFamily: {Name: "Alex", Email: "alex@example.com", Order: 1},
			document.RoleGLRS:   {Name: "Morgan", Order: 2},
		},
		SentBy: "Morgan",
		Now:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("build draft: %v", err)
	}
	return a
}

func TestHealth(t *testing.T) {
	srv := requireDB(t)

	stats := srv.Health()

	if stats["status"] != "up" {
		t.Fatalf("expected status to be up, got %s (error: %s)", stats["status"], stats["error"])
	}
	if errMsg, ok := stats["error"]; ok {
		t.Fatalf("expected error not to be present, got: %s", errMsg)
	}
}

func TestMigrationVersion(t *testing.T) {
	srv := requireDB(t)
	version, dirty, err := models.MigrationVersion(srv.DB())
	if err != nil {
		t.Fatalf("migration version: %v", err)
	}
	if version != 1 || dirty {
		t.Fatalf("expected clean version 1, got %d dirty=%v", version, dirty)
	}
}

func TestAgreementRoundTrip(t *testing.T) {
	srv := requireDB(t)
	ctx := context.Background()
	tenant := uuid.NewString()
	a := newDraft(t, tenant)

	if err := srv.CreateAgreement(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := srv.CreateAgreement(ctx, a); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for a duplicate id, got %v", err)
	}

	got, err := srv.GetAgreement(ctx, a.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Version != 1 || got.DocumentTitle != a.DocumentTitle || len(got.Content.Blocks) != 3 {
		t.Fatalf("unexpected round trip %+v", got)
	}

	pir, _ := a.Signer(document.RolePIR)
	byToken, err := srv.GetAgreementByToken(ctx, pir.Token)
	if err != nil || byToken.ID != a.ID {
		t.Fatalf("token lookup: %v %v", byToken, err)
	}
	if _, err := srv.GetAgreementByToken(ctx, "no-such-token"); !errors.Is(err, agreement.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := srv.GetAgreement(ctx, uuid.NewString()); !errors.Is(err, agreement.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	list, err := srv.ListAgreements(ctx, tenant, 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("expected one agreement for tenant, got %d (%v)", len(list), err)
	}
}

func TestUpdateAgreementReplaysOperation(t *testing.T) {
	srv := requireDB(t)
	ctx := context.Background()
	a := newDraft(t, uuid.NewString())
	if err := srv.CreateAgreement(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}

	calls := 0
	view := func(cur *agreement.Agreement) (*agreement.Agreement, error) {
		calls++
		return agreement.RecordView(cur, document.RolePIR, time.Now().UTC())
	}
	first, replayed, err := srv.UpdateAgreement(ctx, a.ID, "op-1", view)
	if err != nil || replayed {
		t.Fatalf("first update: replayed=%v err=%v", replayed, err)
	}
	second, replayed, err := srv.UpdateAgreement(ctx, a.ID, "op-1", view)
	if err != nil || !replayed {
		t.Fatalf("expected replay, got replayed=%v err=%v", replayed, err)
	}
	if calls != 1 || second.Version != first.Version || len(second.AuditTrail) != 2 {
		t.Fatalf("replay must not re-apply: calls=%d versions %d/%d audit=%d", calls, first.Version, second.Version, len(second.AuditTrail))
	}

	// a failed mutation releases the operation id
	boom := errors.New("boom")
	if _, _, err := srv.UpdateAgreement(ctx, a.ID, "op-2", func(*agreement.Agreement) (*agreement.Agreement, error) {
		return nil, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected mutation error to pass through, got %v", err)
	}
	if _, replayed, err := srv.UpdateAgreement(ctx, a.ID, "op-2", view); err != nil || replayed {
		t.Fatalf("expected op-2 to apply after failure, replayed=%v err=%v", replayed, err)
	}
}

func TestConcurrentSignsApplyOnce(t *testing.T) {
	srv := requireDB(t)
	ctx := context.Background()
	svc := agreement.NewService(srv)

	out, err := svc.Send(ctx, agreement.DraftParams{
		TenantID:      uuid.NewString(),
		DocumentTitle: "Race",
		Blocks: document.Blocks{
			document.SignatureField{ID: "pir_sig", Field: document.Field{Role: document.RolePIR, Required: true}},
			document.SignatureField{ID: "glrs_sig", Field: document.Field{Role: document.RoleGLRS, Required: true}},
		},
		Signers: map[document.SignerRole]agreement.SignerFormData{
			document.RolePIR:  {Name: "Jamie", Email: "jamie@example.com", Order: 0},
			document.RoleGLRS: {Name: "Morgan", Order: 1},
		},
		SentBy: "Morgan",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	id := out.Agreement.ID

	var applied, rejected atomic.Int32
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		opID := fmt.Sprintf("sign-%d", i)
		g.Go(func() error {
			_, err := svc.Sign(ctx, id, opID, document.RolePIR, agreement.SignInput{Values: map[string]any{"pir_sig": "Jamie"}})
			var turn *agreement.NotYourTurnError
			switch {
			case err == nil:
				applied.Add(1)
			case errors.As(err, &turn):
				rejected.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if applied.Load() != 1 || rejected.Load() != 7 {
		t.Fatalf("expected exactly one sign to apply, applied=%d rejected=%d", applied.Load(), rejected.Load())
	}

	final, err := srv.GetAgreement(ctx, id)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	signed := 0
	for _, e := range final.AuditTrail {
		if e.Action == agreement.ActionSigned {
			signed++
		}
	}
	if signed != 1 || final.Status != agreement.StatusPartiallySigned {
		t.Fatalf("expected one signed entry and partially_signed, got %d %s", signed, final.Status)
	}
}

func TestMailQueue(t *testing.T) {
	srv := requireDB(t)
	ctx := context.Background()
	id := uuid.NewString()

	if _, ok, err := srv.LastMailed(ctx, id, document.RolePIR); err != nil || ok {
		t.Fatalf("expected no mail yet, ok=%v err=%v", ok, err)
	}
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	m := &notify.Message{
		To:          "jamie@example.com",
		Subject:     "Please sign: Intake",
		HTML:        "<p>hi</p>",
		AgreementID: id,
		Role:        document.RolePIR,
		Kind:        notify.KindTurn,
		CreatedAt:   at,
	}
	if err := srv.EnqueueMail(ctx, m); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if m.ID == "" {
		t.Fatal("expected mail id to be filled in")
	}
	last, ok, err := srv.LastMailed(ctx, id, document.RolePIR)
	if err != nil || !ok || !last.Equal(at) {
		t.Fatalf("expected last mailed %s, got %s ok=%v err=%v", at, last, ok, err)
	}
}

func TestExportRecords(t *testing.T) {
	srv := requireDB(t)
	ctx := context.Background()
	a := newDraft(t, uuid.NewString())
	if err := srv.CreateAgreement(ctx, a); err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := srv.GetExport(ctx, a.ID); !errors.Is(err, export.ErrNoArtifact) {
		t.Fatalf("expected ErrNoArtifact, got %v", err)
	}
	art := &export.Artifact{AgreementID: a.ID, Key: "agreements/x/y-signed.pdf", Hash: "abc", Size: 42, ExportedAt: time.Now().UTC().Truncate(time.Microsecond)}
	if err := srv.SaveExport(ctx, art); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := srv.GetExport(ctx, a.ID)
	if err != nil || got.Key != art.Key || got.Size != 42 || !got.ExportedAt.Equal(art.ExportedAt) {
		t.Fatalf("unexpected artifact %+v (%v)", got, err)
	}
}

func TestChangeFeed(t *testing.T) {
	srv := requireDB(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	tenant := uuid.NewString()

	seen := make(chan string, 16)
	go srv.Listen(ctx, func(tenantID string) {
		select {
		case seen <- tenantID:
		default:
		}
	})

	// LISTEN registers asynchronously, so keep writing until one lands.
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case got := <-seen:
			if got == tenant {
				return
			}
		case <-tick.C:
			if err := srv.CreateAgreement(ctx, newDraft(t, tenant)); err != nil {
				t.Fatalf("create: %v", err)
			}
		case <-ctx.Done():
			t.Fatal("no change notification received")
		}
	}
}

func TestTemplatesAndMemberships(t *testing.T) {
	srv := requireDB(t)
	db, err := models.NewDB(srv.DB())
	if err != nil {
		t.Fatalf("gorm: %v", err)
	}

	user := &models.User{Provider: "google", ProviderID: uuid.NewString(), Email: uuid.NewString() + "@example.com", Name: "Morgan"}
	if _, err := db.Users.UpsertFromProvider(user); err != nil {
		t.Fatalf("upsert user: %v", err)
	}
	tenant := &models.Tenant{Name: "Harbor House", IsActive: true}
	if err := db.Tenants.Create(tenant); err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	if tenant.Slug == "" {
		t.Fatal("expected slug to be generated")
	}
	if _, err := db.Tenants.AddMember(tenant, user, models.RoleStaff); err != nil {
		t.Fatalf("add member: %v", err)
	}
	membership, err := db.Memberships.GetByUserAndTenant(user.ID, tenant.ID)
	if err != nil || !membership.CanManageAgreements() {
		t.Fatalf("expected active staff membership, got %+v (%v)", membership, err)
	}
	tenants, err := db.Users.ActiveTenants(user.ID)
	if err != nil || len(tenants) != 1 || tenants[0].TenantSlug != tenant.Slug {
		t.Fatalf("unexpected tenants %+v (%v)", tenants, err)
	}

	def := document.Definition{
		Name: "Resident intake",
		Blocks: document.Blocks{
			document.SignatureField{ID: "pir_sig", Field: document.Field{Role: document.RolePIR, Required: true}},
		},
	}
	tpl, created, err := db.Templates.UpsertDefinition(tenant.ID, def, &user.ID)
	if err != nil || !created || tpl.Version != 1 {
		t.Fatalf("first upsert: %+v created=%v err=%v", tpl, created, err)
	}
	def.Blocks = append(def.Blocks, document.SignatureField{ID: "glrs_sig", Field: document.Field{Role: document.RoleGLRS, Required: true}})
	tpl, created, err = db.Templates.UpsertDefinition(tenant.ID, def, &user.ID)
	if err != nil || created || tpl.Version != 2 {
		t.Fatalf("second upsert: %+v created=%v err=%v", tpl, created, err)
	}

	stored, err := db.Templates.Get(tenant.ID, tpl.ID)
	if err != nil || len(stored.Roles()) != 2 {
		t.Fatalf("unexpected stored template %+v (%v)", stored, err)
	}
	if _, err := db.Templates.Get(uuid.New(), tpl.ID); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected other tenants not to see the template, got %v", err)
	}
	if err := db.Templates.Deactivate(tenant.ID, tpl.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	active, err := db.Templates.ListActive(tenant.ID)
	if err != nil || len(active) != 0 {
		t.Fatalf("expected no active templates, got %d (%v)", len(active), err)
	}
}

// TestClose runs last: it closes the shared connection.
func TestClose(t *testing.T) {
	srv := requireDB(t)

	if err := srv.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := dbInstance.db.Ping(); err == nil {
		t.Error("Expected ping to fail on a closed connection, but it succeeded.")
	}
	dbInstance = nil
}
