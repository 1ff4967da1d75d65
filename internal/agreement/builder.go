package agreement

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"glrssign/internal/document"
)

// DefaultTTL applies when no expiry policy is configured.
const DefaultTTL = 30 * 24 * time.Hour

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// SignerFormData is what staff enter per role before sending.
type SignerFormData struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Order int    `json:"order"`
}

// DraftParams is the input of BuildDraft.
type DraftParams struct {
	ID            string
	TenantID      string
	TemplateID    string
	DocumentTitle string
	Blocks        document.Blocks
	Signers       map[document.SignerRole]SignerFormData
	SentBy        string
	Now           time.Time
	TTL           time.Duration
}

// ParticipatingRoles returns the roles that own at least one signable block.
func ParticipatingRoles(blocks document.Blocks) []document.SignerRole {
	return blocks.Roles()
}

// ConventionalOrder returns the pir → family → glrs order for the roles that
// participate in blocks.
func ConventionalOrder(blocks document.Blocks) map[document.SignerRole]int {
	out := make(map[document.SignerRole]int)
	for i, r := range ParticipatingRoles(blocks) {
		out[r] = i
	}
	return out
}

// BuildDraft validates the signer form data against the template blocks and
// returns a ready-to-persist agreement in the sent state. Roles without blocks
// are dropped even when form data was supplied for them.
func BuildDraft(p DraftParams) (*Agreement, error) {
	roles := ParticipatingRoles(p.Blocks)
	errs := make(ValidationErrors)

	if strings.TrimSpace(p.DocumentTitle) == "" {
		errs["document_title"] = "Document title is required"
	}
	if len(roles) == 0 {
		errs["document_blocks"] = "Template has no signable fields"
	}

	signers := make([]Signer, 0, len(roles))
	orders := make(map[int]document.SignerRole)
	for _, role := range roles {
		form := p.Signers[role]
		name := strings.TrimSpace(form.Name)
		email := strings.TrimSpace(form.Email)

		if name == "" {
			errs.add(role, "name", fmt.Sprintf("%s name is required", role.Label()))
		}
		if role.RequiresEmail() {
			switch {
			case email == "":
				errs.add(role, "email", fmt.Sprintf("%s email is required", role.Label()))
			case !emailPattern.MatchString(email):
				errs.add(role, "email", fmt.Sprintf("%s email is not a valid address", role.Label()))
			}
		}
		if form.Order < 0 {
			errs.add(role, "order", "Signing order cannot be negative")
		} else if other, taken := orders[form.Order]; taken {
			errs.add(role, "order", fmt.Sprintf("Signing order %d is already used by %s", form.Order, other.Label()))
		} else {
			orders[form.Order] = role
		}

		signers = append(signers, Signer{
			Role:   role,
			Order:  form.Order,
			Name:   name,
			Email:  email,
			Status: SignerPending,
		})
	}
	if len(errs) > 0 {
		return nil, errs
	}

	sort.Slice(signers, func(i, j int) bool { return signers[i].Order < signers[j].Order })
	if err := assignTokens(signers); err != nil {
		return nil, err
	}

	now := p.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	ttl := p.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}

	return &Agreement{
		ID:            id,
		TemplateID:    p.TemplateID,
		TenantID:      p.TenantID,
		DocumentTitle: strings.TrimSpace(p.DocumentTitle),
		Content:       Content{Blocks: p.Blocks},
		Signers:       signers,
		FieldValues:   map[string]any{},
		Status:        StatusSent,
		SentBy:        p.SentBy,
		SentAt:        now,
		ExpiresAt:     now.Add(ttl),
		AuditTrail: []AuditEntry{{
			Timestamp: now,
			Action:    ActionSent,
			Actor:     p.SentBy,
		}},
	}, nil
}

func assignTokens(signers []Signer) error {
	used := make(map[string]bool)
	for i := range signers {
		if !signers[i].Role.RequiresEmail() {
			continue
		}
		for {
			tok, err := NewToken()
			if err != nil {
				return err
			}
			if !used[tok] {
				used[tok] = true
				signers[i].Token = tok
				break
			}
		}
	}
	return nil
}

// NewToken returns a URL-safe bearer token carrying 256 bits of entropy.
func NewToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("agreement: generate token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
