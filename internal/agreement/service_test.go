package agreement

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"glrssign/internal/document"
)

type fakeStore struct {
	mu         sync.Mutex
	agreements map[string]*Agreement
	ops        map[string]bool
	updateErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{agreements: map[string]*Agreement{}, ops: map[string]bool{}}
}

func (f *fakeStore) CreateAgreement(ctx context.Context, a *Agreement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.agreements[a.ID] = a.Clone()
	return nil
}

func (f *fakeStore) GetAgreement(ctx context.Context, id string) (*Agreement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.agreements[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a.Clone(), nil
}

func (f *fakeStore) GetAgreementByToken(ctx context.Context, token string) (*Agreement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.agreements {
		if _, ok := a.SignerByToken(token); ok {
			return a.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeStore) UpdateAgreement(ctx context.Context, id, opID string, fn MutateFunc) (*Agreement, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return nil, false, f.updateErr
	}
	current, ok := f.agreements[id]
	if !ok {
		return nil, false, ErrNotFound
	}
	if opID != "" && f.ops[id+"/"+opID] {
		return current.Clone(), true, nil
	}
	next, err := fn(current.Clone())
	if err != nil {
		return nil, false, err
	}
	next.Version = current.Version + 1
	f.agreements[id] = next.Clone()
	if opID != "" {
		f.ops[id+"/"+opID] = true
	}
	return next, false, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []document.SignerRole
	err  error
}

func (f *fakeNotifier) QueueTurnNotice(ctx context.Context, a *Agreement, s Signer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if s.Token == "" {
		return errors.New("no signing link for " + string(s.Role))
	}
	f.sent = append(f.sent, s.Role)
	return nil
}

type fakeFinalizer struct {
	calls int
	err   error
}

func (f *fakeFinalizer) Finalize(ctx context.Context, a *Agreement) error {
	f.calls++
	return f.err
}

func newTestService(t *testing.T, opts ...Option) (*Service, *fakeStore, *fakeNotifier, *fakeFinalizer) {
	t.Helper()
	store := newFakeStore()
	notifier := &fakeNotifier{}
	finalizer := &fakeFinalizer{}
	opts = append([]Option{
		WithNotifier(notifier),
		WithFinalizer(finalizer),
		WithClock(func() time.Time { return t0 }),
	}, opts...)
	return NewService(store, opts...), store, notifier, finalizer
}

func sendFamilyAgreement(t *testing.T, svc *Service) *Agreement {
	t.Helper()
	out, err := svc.Send(context.Background(), DraftParams{
		TenantID:      "tenant-1",
		DocumentTitle: "Family Agreement",
		Blocks:        threeRoleBlocks(),
		Signers:       formData(),
		SentBy:        "Morgan Lee",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	return out.Agreement
}

func TestServiceSendNotifiesFirstSigner(t *testing.T) {
	svc, store, notifier, _ := newTestService(t, WithTTL(48*time.Hour))
	a := sendFamilyAgreement(t, svc)

	if _, err := store.GetAgreement(context.Background(), a.ID); err != nil {
		t.Fatalf("expected agreement to be stored: %v", err)
	}
	if !a.ExpiresAt.Equal(t0.Add(48 * time.Hour)) {
		t.Errorf("expected configured ttl, got %v", a.ExpiresAt)
	}
	if len(notifier.sent) != 1 || notifier.sent[0] != document.RolePIR {
		t.Fatalf("expected pir to be notified, got %v", notifier.sent)
	}
}

func TestServiceSignHandsOffAndFinalizes(t *testing.T) {
	svc, _, notifier, finalizer := newTestService(t)
	a := sendFamilyAgreement(t, svc)
	ctx := context.Background()

	steps := []struct {
		role   document.SignerRole
		values map[string]any
	}{
		{document.RolePIR, map[string]any{"pir_sig": "Jamie"}},
		{document.RoleFamily, map[string]any{"family_sig": "Pat"}},
		{document.RoleGLRS, map[string]any{"glrs_sig": "Morgan"}},
	}
	var out Outcome
	var err error
	for i, step := range steps {
		out, err = svc.Sign(ctx, a.ID, "op-"+string(step.role), step.role, SignInput{Values: step.values})
		if err != nil {
			t.Fatalf("step %d sign %s: %v", i, step.role, err)
		}
	}
	if out.Agreement.Status != StatusCompleted {
		t.Fatalf("expected completed, got %s", out.Agreement.Status)
	}
	if finalizer.calls != 1 {
		t.Errorf("expected one finalize call, got %d", finalizer.calls)
	}
	// glrs has no email so only pir (on send) and family (after pir) get mail.
	if want := []document.SignerRole{document.RolePIR, document.RoleFamily}; len(notifier.sent) != 2 || notifier.sent[1] != want[1] {
		t.Errorf("expected notices %v, got %v", want, notifier.sent)
	}
}

func TestServiceHandOffSkipsInPortalSignerWithEmail(t *testing.T) {
	svc, _, notifier, _ := newTestService(t)
	ctx := context.Background()
	signers := formData()
	glrs := signers[document.RoleGLRS]
	glrs.Email = "morgan@glrs.example"
	signers[document.RoleGLRS] = glrs

	sent, err := svc.Send(ctx, DraftParams{
		TenantID:      "tenant-1",
		DocumentTitle: "Family Agreement",
		Blocks:        threeRoleBlocks(),
		Signers:       signers,
		SentBy:        "Morgan Lee",
	})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	a := sent.Agreement
	if s, _ := a.Signer(document.RoleGLRS); s.Token != "" || s.Mailable() {
		t.Fatalf("expected in-portal signer to have no link, got %+v", s)
	}

	if _, err := svc.Sign(ctx, a.ID, "op-pir", document.RolePIR, SignInput{Values: map[string]any{"pir_sig": "Jamie"}}); err != nil {
		t.Fatalf("sign pir: %v", err)
	}
	out, err := svc.Sign(ctx, a.ID, "op-family", document.RoleFamily, SignInput{Values: map[string]any{"family_sig": "Pat"}})
	if err != nil {
		t.Fatalf("sign family: %v", err)
	}
	if out.FollowUp != nil {
		t.Fatalf("expected no follow-up warning, got %v", out.FollowUp)
	}
	for _, role := range notifier.sent {
		if role == document.RoleGLRS {
			t.Fatalf("in-portal signer must not be mailed, got %v", notifier.sent)
		}
	}
}

func TestServiceSignReplayDoesNotReapply(t *testing.T) {
	svc, store, notifier, _ := newTestService(t)
	a := sendFamilyAgreement(t, svc)
	ctx := context.Background()

	first, err := svc.Sign(ctx, a.ID, "op-1", document.RolePIR, SignInput{Values: map[string]any{"pir_sig": "Jamie"}})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	second, err := svc.Sign(ctx, a.ID, "op-1", document.RolePIR, SignInput{Values: map[string]any{"pir_sig": "Jamie"}})
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !second.Replayed {
		t.Fatalf("expected replay to be reported")
	}
	stored, _ := store.GetAgreement(ctx, a.ID)
	if len(stored.AuditTrail) != len(first.Agreement.AuditTrail) {
		t.Fatalf("replay appended audit entries: %d vs %d", len(stored.AuditTrail), len(first.Agreement.AuditTrail))
	}
	if len(notifier.sent) != 2 {
		t.Errorf("expected replay to skip notifications, got %v", notifier.sent)
	}
}

func TestServiceConcurrentSignsApplyOnce(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	a := sendFamilyAgreement(t, svc)
	ctx := context.Background()

	var mu sync.Mutex
	var succeeded, rejected int
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 8; i++ {
		opID := "op-" + string(rune('a'+i))
		g.Go(func() error {
			_, err := svc.Sign(gctx, a.ID, opID, document.RolePIR, SignInput{Values: map[string]any{"pir_sig": "Jamie"}})
			mu.Lock()
			defer mu.Unlock()
			var turn *NotYourTurnError
			switch {
			case err == nil:
				succeeded++
			case errors.As(err, &turn):
				rejected++
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if succeeded != 1 || rejected != 7 {
		t.Fatalf("expected 1 success and 7 rejections, got %d and %d", succeeded, rejected)
	}
	stored, _ := store.GetAgreement(ctx, a.ID)
	signed := 0
	for _, e := range stored.AuditTrail {
		if e.Action == ActionSigned {
			signed++
		}
	}
	if signed != 1 {
		t.Fatalf("expected exactly one signed entry, got %d", signed)
	}
}

func TestServicePersistenceFailureKeepsState(t *testing.T) {
	svc, store, _, _ := newTestService(t)
	a := sendFamilyAgreement(t, svc)
	ctx := context.Background()

	store.updateErr = ErrPersistence
	if _, err := svc.Void(ctx, a.ID, "op-void", "Morgan"); !errors.Is(err, ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	stored, _ := store.GetAgreement(ctx, a.ID)
	if stored.Status != StatusSent || len(stored.AuditTrail) != 1 {
		t.Fatalf("failed write changed the agreement: %s, %d entries", stored.Status, len(stored.AuditTrail))
	}

	store.updateErr = nil
	out, err := svc.Void(ctx, a.ID, "op-void", "Morgan")
	if err != nil || out.Agreement.Status != StatusVoided {
		t.Fatalf("expected retry to void, got %v", err)
	}
}

func TestServiceFollowUpFailureDoesNotRollBack(t *testing.T) {
	svc, store, notifier, _ := newTestService(t)
	a := sendFamilyAgreement(t, svc)
	ctx := context.Background()

	notifier.err = errors.New("mail queue down")
	out, err := svc.Sign(ctx, a.ID, "op-1", document.RolePIR, SignInput{Values: map[string]any{"pir_sig": "Jamie"}})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if out.FollowUp == nil {
		t.Fatalf("expected follow-up error to be reported")
	}
	stored, _ := store.GetAgreement(ctx, a.ID)
	if stored.Status != StatusPartiallySigned {
		t.Fatalf("expected transition to stay committed, got %s", stored.Status)
	}
}

func TestServiceResolveToken(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	a := sendFamilyAgreement(t, svc)
	ctx := context.Background()
	pir, _ := a.Signer(document.RolePIR)

	got, signer, err := svc.ResolveToken(ctx, pir.Token)
	if err != nil || got.ID != a.ID || signer.Role != document.RolePIR {
		t.Fatalf("unexpected resolve result %v %v %v", got, signer, err)
	}
	if _, _, err := svc.ResolveToken(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := svc.Sign(ctx, a.ID, "op-1", document.RolePIR, SignInput{Values: map[string]any{"pir_sig": "Jamie"}}); err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, _, err := svc.ResolveToken(ctx, pir.Token); !errors.Is(err, ErrTokenRedeemed) {
		t.Fatalf("expected ErrTokenRedeemed, got %v", err)
	}

	fam, _ := a.Signer(document.RoleFamily)
	if _, err := svc.Void(ctx, a.ID, "op-2", "Morgan"); err != nil {
		t.Fatalf("void: %v", err)
	}
	if _, _, err := svc.ResolveToken(ctx, fam.Token); !errors.Is(err, ErrTokenRedeemed) {
		t.Fatalf("expected voided link to be redeemed, got %v", err)
	}
}
