package query

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"glrssign/internal/agreement"
	"glrssign/internal/document"
)

var t0 = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func draft(t *testing.T, id string, sentAt time.Time) *agreement.Agreement {
	t.Helper()
	a, err := agreement.BuildDraft(agreement.DraftParams{
		ID:            id,
		TenantID:      "tenant-1",
		DocumentTitle: "Agreement " + id,
		Blocks: document.Blocks{
			document.SignatureField{ID: "pir_sig", Field: document.Field{Role: document.RolePIR, Required: true}},
			document.SignatureField{ID: "glrs_sig", Field: document.Field{Role: document.RoleGLRS, Required: true}},
		},
		Signers: map[document.SignerRole]agreement.SignerFormData{
			document.RolePIR:  {Name: "Jamie", Email: "jamie@example.com", Order: 0},
			document.RoleGLRS: {Name: "Morgan", Order: 1},
		},
		Now: sentAt,
		TTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("build draft: %v", err)
	}
	return a
}

func fixtures(t *testing.T) []*agreement.Agreement {
	t.Helper()
	sent := draft(t, "sent", t0)
	partial, err := agreement.Sign(draft(t, "partial", t0), document.RolePIR,
		agreement.SignInput{Values: map[string]any{"pir_sig": "Jamie"}}, t0)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	expired := draft(t, "expired", t0.Add(-48*time.Hour))
	voided, err := agreement.Void(draft(t, "voided", t0.Add(-48*time.Hour)), "Morgan", t0)
	if err != nil {
		t.Fatalf("void: %v", err)
	}
	return []*agreement.Agreement{sent, partial, expired, voided}
}

func TestComputeCountsEffectiveStatus(t *testing.T) {
	snap := Compute(fixtures(t), Filter{}, t0.Add(time.Hour))
	if snap.All != 4 || len(snap.Agreements) != 4 {
		t.Fatalf("expected 4 agreements, got all=%d listed=%d", snap.All, len(snap.Agreements))
	}
	want := map[agreement.Status]int{
		agreement.StatusSent:            1,
		agreement.StatusPartiallySigned: 1,
		agreement.StatusCompleted:       0,
		agreement.StatusExpired:         1,
		agreement.StatusVoided:          1,
	}
	for st, n := range want {
		if snap.Counts[st] != n {
			t.Errorf("expected %d %s, got %d", n, st, snap.Counts[st])
		}
	}
}

func TestComputeRecomputesAsTimePasses(t *testing.T) {
	list := fixtures(t)
	later := Compute(list, Filter{Status: agreement.StatusExpired}, t0.Add(25*time.Hour))
	if len(later.Agreements) != 3 {
		t.Fatalf("expected sent, partial and expired to all be expired a day later, got %d", len(later.Agreements))
	}
	for _, v := range later.Agreements {
		if v.EffectiveStatus != agreement.StatusExpired || v.Status == agreement.StatusExpired {
			t.Fatalf("expired must be derived, got stored %s effective %s", v.Status, v.EffectiveStatus)
		}
	}
}

func TestViewHidesTokens(t *testing.T) {
	a := draft(t, "a", t0)
	pir, _ := a.Signer(document.RolePIR)
	data, err := json.Marshal(NewDetail(a, t0))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), pir.Token) {
		t.Fatalf("view leaked a signing token")
	}
	v := NewView(a, t0)
	if v.Awaiting != document.RolePIR || !v.Signers[0].IsTheirTurn || v.Signers[1].IsTheirTurn {
		t.Fatalf("unexpected turn data %+v", v)
	}
}

func TestFilterLimit(t *testing.T) {
	cases := map[int]int{0: DefaultPageSize, -1: DefaultPageSize, 20: 20, 500: MaxPageSize}
	for in, want := range cases {
		if got := (Filter{Limit: in}).limit(); got != want {
			t.Errorf("limit %d: expected %d, got %d", in, want, got)
		}
	}
}

func TestDebounceCoalescesBursts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	in := make(chan int)
	out := Debounce(ctx, in, 100*time.Millisecond)

	for i := 1; i <= 5; i++ {
		in <- i
	}
	select {
	case v := <-out:
		if v != 5 {
			t.Fatalf("expected last value 5, got %d", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for debounced value")
	}

	in <- 6
	close(in)
	select {
	case v, ok := <-out:
		if !ok || v != 6 {
			t.Fatalf("expected pending value to be flushed on close, got %d %v", v, ok)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for flush")
	}
	if _, ok := <-out; ok {
		t.Fatal("expected output to close")
	}
}

type memSource struct {
	mu   sync.Mutex
	list []*agreement.Agreement
}

func (m *memSource) ListAgreements(ctx context.Context, tenantID string, limit int) ([]*agreement.Agreement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.list) > limit {
		return m.list[:limit], nil
	}
	return append([]*agreement.Agreement(nil), m.list...), nil
}

func (m *memSource) set(list []*agreement.Agreement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.list = list
}

func TestSubscribeReflectsChanges(t *testing.T) {
	src := &memSource{list: fixtures(t)[:1]}
	hub := NewHub()
	svc := NewService(src, hub, time.Hour, 0)
	svc.debounce = 5 * time.Millisecond
	svc.now = func() time.Time { return t0 }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	snaps := svc.Subscribe(ctx, "tenant-1", Filter{})

	next := func() Snapshot {
		t.Helper()
		select {
		case s, ok := <-snaps:
			if !ok {
				t.Fatal("subscription closed early")
			}
			return s
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for snapshot")
		}
		return Snapshot{}
	}

	if got := next(); got.All != 1 {
		t.Fatalf("expected initial snapshot with 1 agreement, got %d", got.All)
	}

	src.set(fixtures(t))
	hub.Publish("tenant-2")
	hub.Publish("tenant-1")
	if got := next(); got.All != 4 {
		t.Fatalf("expected updated snapshot with 4 agreements, got %d", got.All)
	}

	cancel()
	for range snaps {
	}
}
