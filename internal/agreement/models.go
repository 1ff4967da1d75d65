package agreement

import (
	"strings"
	"time"

	"glrssign/internal/document"
)

// Status is the stored lifecycle state of an agreement. StatusExpired is only
// ever produced by EffectiveStatus and is never persisted.
type Status string

const (
	StatusSent            Status = "sent"
	StatusPartiallySigned Status = "partially_signed"
	StatusCompleted       Status = "completed"
	StatusVoided          Status = "voided"
	StatusExpired         Status = "expired"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusVoided
}

type SignerStatus string

const (
	SignerPending SignerStatus = "pending"
	SignerSigned  SignerStatus = "signed"
)

type Action string

const (
	ActionSent        Action = "sent"
	ActionViewed      Action = "viewed"
	ActionSigned      Action = "signed"
	ActionFieldSigned Action = "field_signed"
	ActionVoided      Action = "voided"
	ActionDeclined    Action = "declined"
	ActionProlonged   Action = "prolonged"
)

// Signer is one participant in an agreement.
type Signer struct {
	Role         document.SignerRole `json:"role"`
	Order        int                 `json:"order"`
	Name         string              `json:"name"`
	Email        string              `json:"email,omitempty"`
	Status       SignerStatus        `json:"status"`
	Token        string              `json:"token,omitempty"`
	SignedAt     *time.Time          `json:"signedAt,omitempty"`
	SignedFields []string            `json:"signedFields,omitempty"`
}

// AuditEntry is an immutable record in an agreement's trail.
type AuditEntry struct {
	Timestamp time.Time           `json:"timestamp"`
	Action    Action              `json:"action"`
	Actor     string              `json:"actor"`
	ActorRole document.SignerRole `json:"actorRole,omitempty"`
	Fields    []string            `json:"fields,omitempty"`
	Note      string              `json:"note,omitempty"`
}

type Content struct {
	Blocks document.Blocks `json:"blocks"`
}

// Agreement is the aggregate root of the signing workflow.
type Agreement struct {
	ID            string         `json:"id"`
	TemplateID    string         `json:"templateId,omitempty"`
	TenantID      string         `json:"tenantId"`
	DocumentTitle string         `json:"documentTitle"`
	Content       Content        `json:"content"`
	Signers       []Signer       `json:"signers"`
	FieldValues   map[string]any `json:"fieldValues"`
	Status        Status         `json:"status"`
	SentBy        string         `json:"sentBy,omitempty"`
	SentAt        time.Time      `json:"sentAt"`
	ExpiresAt     time.Time      `json:"expiresAt"`
	CompletedAt   *time.Time     `json:"completedAt,omitempty"`
	AuditTrail    []AuditEntry   `json:"auditTrail"`

	// Version is the persistence revision, bumped by the store on every write.
	Version int `json:"-"`
}

// Signer returns the signer holding role.
func (a *Agreement) Signer(role document.SignerRole) (*Signer, bool) {
	for i := range a.Signers {
		if a.Signers[i].Role == role {
			return &a.Signers[i], true
		}
	}
	return nil, false
}

// Mailable reports whether s can be sent a signing link by email. In-portal
// signers have no link even when staff recorded an address for them.
func (s Signer) Mailable() bool {
	return s.Token != "" && strings.TrimSpace(s.Email) != ""
}

// SignerByToken returns the external signer presenting token.
func (a *Agreement) SignerByToken(token string) (*Signer, bool) {
	if token == "" {
		return nil, false
	}
	for i := range a.Signers {
		if a.Signers[i].Token == token {
			return &a.Signers[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy; transitions work on clones so a failed call never
// touches the caller's value.
func (a *Agreement) Clone() *Agreement {
	c := *a
	c.Signers = make([]Signer, len(a.Signers))
	for i, s := range a.Signers {
		s.SignedFields = append([]string(nil), s.SignedFields...)
		if s.SignedAt != nil {
			t := *s.SignedAt
			s.SignedAt = &t
		}
		c.Signers[i] = s
	}
	c.FieldValues = make(map[string]any, len(a.FieldValues))
	for k, v := range a.FieldValues {
		c.FieldValues[k] = v
	}
	c.AuditTrail = make([]AuditEntry, len(a.AuditTrail))
	for i, e := range a.AuditTrail {
		e.Fields = append([]string(nil), e.Fields...)
		c.AuditTrail[i] = e
	}
	if a.CompletedAt != nil {
		t := *a.CompletedAt
		c.CompletedAt = &t
	}
	// Blocks are immutable once the agreement is sent and are shared.
	return &c
}

// IsFilled reports whether v counts as an answer: present and not an empty string.
func IsFilled(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return x != ""
	default:
		return true
	}
}
