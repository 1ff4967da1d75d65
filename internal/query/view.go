// Package query serves tenant-scoped agreement lists filtered and counted by
// effective status, as one-shot reads or live snapshots.
package query

import (
	"time"

	"glrssign/internal/agreement"
	"glrssign/internal/document"
)

// SignerView is a signer without its bearer token.
type SignerView struct {
	Role        document.SignerRole    `json:"role"`
	Label       string                 `json:"label"`
	Color       string                 `json:"color"`
	Order       int                    `json:"order"`
	Name        string                 `json:"name"`
	Email       string                 `json:"email,omitempty"`
	Status      agreement.SignerStatus `json:"status"`
	SignedAt    *time.Time             `json:"signedAt,omitempty"`
	IsTheirTurn bool                   `json:"isTheirTurn"`
}

// View is the list representation of an agreement.
type View struct {
	ID              string              `json:"id"`
	TemplateID      string              `json:"templateId,omitempty"`
	DocumentTitle   string              `json:"documentTitle"`
	Status          agreement.Status    `json:"status"`
	EffectiveStatus agreement.Status    `json:"effectiveStatus"`
	SentBy          string              `json:"sentBy,omitempty"`
	SentAt          time.Time           `json:"sentAt"`
	ExpiresAt       time.Time           `json:"expiresAt"`
	CompletedAt     *time.Time          `json:"completedAt,omitempty"`
	Awaiting        document.SignerRole `json:"awaiting,omitempty"`
	SignedCount     int                 `json:"signedCount"`
	Signers         []SignerView        `json:"signers"`
}

// Detail adds the document, values and audit trail to a View.
type Detail struct {
	View
	Content     agreement.Content      `json:"content"`
	FieldValues map[string]any         `json:"fieldValues"`
	AuditTrail  []agreement.AuditEntry `json:"auditTrail"`
}

func NewView(a *agreement.Agreement, now time.Time) View {
	v := View{
		ID:              a.ID,
		TemplateID:      a.TemplateID,
		DocumentTitle:   a.DocumentTitle,
		Status:          a.Status,
		EffectiveStatus: agreement.EffectiveStatus(a, now),
		SentBy:          a.SentBy,
		SentAt:          a.SentAt,
		ExpiresAt:       a.ExpiresAt,
		CompletedAt:     a.CompletedAt,
		Signers:         make([]SignerView, 0, len(a.Signers)),
	}
	current, hasTurn := agreement.CurrentTurn(a, now)
	if hasTurn {
		v.Awaiting = current.Role
	}
	for _, s := range a.Signers {
		if s.Status == agreement.SignerSigned {
			v.SignedCount++
		}
		v.Signers = append(v.Signers, SignerView{
			Role:        s.Role,
			Label:       s.Role.Label(),
			Color:       s.Role.Color(),
			Order:       s.Order,
			Name:        s.Name,
			Email:       s.Email,
			Status:      s.Status,
			SignedAt:    s.SignedAt,
			IsTheirTurn: hasTurn && current.Role == s.Role,
		})
	}
	return v
}

func NewDetail(a *agreement.Agreement, now time.Time) Detail {
	return Detail{
		View:        NewView(a, now),
		Content:     a.Content,
		FieldValues: a.FieldValues,
		AuditTrail:  a.AuditTrail,
	}
}
