package models

import (
	"testing"
	"time"

	"glrssign/internal/document"
)

func TestTenantAgreementTTL(t *testing.T) {
	fallback := 30 * 24 * time.Hour
	cases := []struct {
		name     string
		settings JSONB
		want     time.Duration
	}{
		{"unset", nil, fallback},
		{"days from json", JSONB{"agreement_ttl_days": float64(14)}, 14 * 24 * time.Hour},
		{"int", JSONB{"agreement_ttl_days": 7}, 7 * 24 * time.Hour},
		{"zero", JSONB{"agreement_ttl_days": float64(0)}, fallback},
		{"wrong type", JSONB{"agreement_ttl_days": "ten"}, fallback},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tenant := &Tenant{Settings: tc.settings}
			if got := tenant.AgreementTTL(fallback); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestJSONBScan(t *testing.T) {
	var j JSONB
	if err := j.Scan([]byte(`{"agreement_ttl_days": 10}`)); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if j["agreement_ttl_days"] != float64(10) {
		t.Fatalf("unexpected settings %v", j)
	}
	if err := j.Scan(nil); err != nil || len(j) != 0 {
		t.Fatalf("expected nil to scan as empty settings, got %v %v", j, err)
	}
	if err := j.Scan(42); err == nil {
		t.Fatal("expected unsupported type error")
	}
}

func TestMembershipPermissions(t *testing.T) {
	cases := []struct {
		role   MembershipRole
		status MembershipStatus
		want   bool
	}{
		{RoleAdmin, StatusActive, true},
		{RoleStaff, StatusActive, true},
		{RoleViewer, StatusActive, false},
		{RoleStaff, StatusSuspended, false},
	}
	for _, tc := range cases {
		m := &TenantMembership{Role: tc.role, Status: tc.status}
		if got := m.CanManageAgreements(); got != tc.want {
			t.Errorf("%s/%s: expected %v, got %v", tc.role, tc.status, tc.want, got)
		}
	}
	if MembershipRole("owner").Valid() {
		t.Error("owner is not a tenant role")
	}
}

func TestTemplateToDefinition(t *testing.T) {
	tpl := &Template{
		Name:        "Resident intake",
		Description: "Intake packet",
		Blocks: document.Blocks{
			document.SignatureField{ID: "pir_sig", Field: document.Field{Role: document.RolePIR, Required: true}},
			document.SignatureField{ID: "glrs_sig", Field: document.Field{Role: document.RoleGLRS, Required: true}},
		},
	}
	def := tpl.ToDefinition()
	if err := def.Validate(); err != nil {
		t.Fatalf("expected valid definition: %v", err)
	}
	if roles := tpl.Roles(); len(roles) != 2 {
		t.Fatalf("expected two roles, got %v", roles)
	}
}

func TestUserDisplayName(t *testing.T) {
	if got := (&User{Name: "Morgan Lee", Email: "morgan@example.com"}).DisplayName(); got != "Morgan Lee" {
		t.Fatalf("unexpected display name %q", got)
	}
	if got := (&User{Email: "morgan@example.com"}).DisplayName(); got != "morgan@example.com" {
		t.Fatalf("expected email fallback, got %q", got)
	}
}
