package agreement

import (
	"errors"
	"sort"
	"time"

	"glrssign/internal/document"
)

// ErrAlreadySigned is returned when a signer who has signed tries to decline.
var ErrAlreadySigned = errors.New("agreement: signer has already signed")

// Turn is the result of DetermineTurn.
type Turn struct {
	Pending     bool `json:"pending"`
	IsTheirTurn bool `json:"isTheirTurn"`
}

// DetermineTurn reports whether role may act: its signer is pending and every
// signer with a lower order has signed. It is pure and must not be cached.
func DetermineTurn(a *Agreement, role document.SignerRole) Turn {
	s, ok := a.Signer(role)
	if !ok {
		return Turn{}
	}
	t := Turn{Pending: s.Status == SignerPending}
	if !t.Pending {
		return t
	}
	for _, other := range a.Signers {
		if other.Order < s.Order && other.Status != SignerSigned {
			return t
		}
	}
	t.IsTheirTurn = true
	return t
}

// CurrentTurn returns the signer allowed to act now, if the agreement is open.
func CurrentTurn(a *Agreement, now time.Time) (*Signer, bool) {
	if EffectiveStatus(a, now) != StatusSent && EffectiveStatus(a, now) != StatusPartiallySigned {
		return nil, false
	}
	for i := range a.Signers {
		if DetermineTurn(a, a.Signers[i].Role).IsTheirTurn {
			return &a.Signers[i], true
		}
	}
	return nil, false
}

func awaiting(a *Agreement) document.SignerRole {
	var next *Signer
	for i := range a.Signers {
		s := &a.Signers[i]
		if s.Status == SignerPending && (next == nil || s.Order < next.Order) {
			next = s
		}
	}
	if next == nil {
		return ""
	}
	return next.Role
}

// guardTurn runs every check shared by SubmitFields and Sign, in order:
// terminal, expired, unknown signer, turn.
func guardTurn(a *Agreement, role document.SignerRole, now time.Time) error {
	if a.Status.IsTerminal() {
		return &AlreadyTerminalError{Status: a.Status}
	}
	if IsExpired(a, now) {
		return ErrExpired
	}
	if _, ok := a.Signer(role); !ok {
		return ErrUnknownSigner
	}
	if !DetermineTurn(a, role).IsTheirTurn {
		return &NotYourTurnError{Role: role, Awaiting: awaiting(a)}
	}
	return nil
}

func checkOwnership(owned map[string]document.Field, role document.SignerRole, ids []string) error {
	var unknown []string
	for _, id := range ids {
		if _, ok := owned[id]; !ok {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return &UnknownFieldError{Role: role, Fields: unknown}
	}
	return nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SubmitFields merges values into the agreement's field values, last write
// wins. It does not change any signer status.
func SubmitFields(a *Agreement, role document.SignerRole, values map[string]any, now time.Time) (*Agreement, error) {
	if err := guardTurn(a, role, now); err != nil {
		return nil, err
	}
	keys := sortedKeys(values)
	if len(keys) == 0 {
		v := make(ValidationErrors)
		v.add(role, "fields", "No field values were submitted")
		return nil, v
	}
	if err := checkOwnership(a.Content.Blocks.FieldsFor(role), role, keys); err != nil {
		return nil, err
	}

	out := a.Clone()
	for _, k := range keys {
		out.FieldValues[k] = values[k]
	}
	signer, _ := out.Signer(role)
	out.AuditTrail = append(out.AuditTrail, AuditEntry{
		Timestamp: now,
		Action:    ActionFieldSigned,
		Actor:     signer.Name,
		ActorRole: role,
		Fields:    keys,
	})
	return out, nil
}

// SignInput carries a signing round. Values are merged before the required
// check. A nil SignedFields records every filled field the role owns.
type SignInput struct {
	SignedFields []string       `json:"signedFields"`
	Values       map[string]any `json:"values"`
}

// Sign marks role's signer as signed and recomputes the aggregate status.
func Sign(a *Agreement, role document.SignerRole, in SignInput, now time.Time) (*Agreement, error) {
	if err := guardTurn(a, role, now); err != nil {
		return nil, err
	}
	owned := a.Content.Blocks.FieldsFor(role)
	valueKeys := sortedKeys(in.Values)
	if err := checkOwnership(owned, role, valueKeys); err != nil {
		return nil, err
	}
	if err := checkOwnership(owned, role, in.SignedFields); err != nil {
		return nil, err
	}

	merged := make(map[string]any, len(a.FieldValues)+len(in.Values))
	for k, v := range a.FieldValues {
		merged[k] = v
	}
	for _, k := range valueKeys {
		merged[k] = in.Values[k]
	}
	for id := range owned {
		b, _ := a.Content.Blocks.Find(id)
		if d, ok := b.(document.DateField); ok && d.AutoFill && !IsFilled(merged[id]) {
			merged[id] = now.Format("2006-01-02")
		}
	}

	var missing []string
	for id, f := range owned {
		if f.Required && !IsFilled(merged[id]) {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &IncompleteRequiredFieldsError{Role: role, Fields: missing}
	}

	signed := in.SignedFields
	if signed == nil {
		for id := range owned {
			if IsFilled(merged[id]) {
				signed = append(signed, id)
			}
		}
		sort.Strings(signed)
	}

	out := a.Clone()
	out.FieldValues = merged
	signer, _ := out.Signer(role)
	ts := now
	signer.Status = SignerSigned
	signer.SignedAt = &ts
	signer.SignedFields = append([]string(nil), signed...)
	out.AuditTrail = append(out.AuditTrail, AuditEntry{
		Timestamp: now,
		Action:    ActionSigned,
		Actor:     signer.Name,
		ActorRole: role,
		Fields:    append([]string(nil), signed...),
	})

	out.Status = aggregateStatus(out.Signers)
	if out.Status == StatusCompleted {
		done := now
		out.CompletedAt = &done
	}
	return out, nil
}

// Void cancels an open agreement permanently. Expired agreements can be voided.
func Void(a *Agreement, actor string, now time.Time) (*Agreement, error) {
	if a.Status.IsTerminal() {
		return nil, &AlreadyTerminalError{Status: a.Status}
	}
	out := a.Clone()
	out.Status = StatusVoided
	out.AuditTrail = append(out.AuditTrail, AuditEntry{
		Timestamp: now,
		Action:    ActionVoided,
		Actor:     actor,
		ActorRole: document.RoleGLRS,
	})
	return out, nil
}

// Decline lets a pending signer refuse to sign. The agreement is voided.
func Decline(a *Agreement, role document.SignerRole, reason string, now time.Time) (*Agreement, error) {
	if a.Status.IsTerminal() {
		return nil, &AlreadyTerminalError{Status: a.Status}
	}
	if IsExpired(a, now) {
		return nil, ErrExpired
	}
	s, ok := a.Signer(role)
	if !ok {
		return nil, ErrUnknownSigner
	}
	if s.Status == SignerSigned {
		return nil, ErrAlreadySigned
	}
	out := a.Clone()
	out.Status = StatusVoided
	out.AuditTrail = append(out.AuditTrail, AuditEntry{
		Timestamp: now,
		Action:    ActionDeclined,
		Actor:     s.Name,
		ActorRole: role,
		Note:      reason,
	})
	return out, nil
}

// RecordView appends a viewed entry. Status is unchanged.
func RecordView(a *Agreement, role document.SignerRole, now time.Time) (*Agreement, error) {
	if a.Status.IsTerminal() {
		return nil, &AlreadyTerminalError{Status: a.Status}
	}
	s, ok := a.Signer(role)
	if !ok {
		return nil, ErrUnknownSigner
	}
	out := a.Clone()
	out.AuditTrail = append(out.AuditTrail, AuditEntry{
		Timestamp: now,
		Action:    ActionViewed,
		Actor:     s.Name,
		ActorRole: role,
	})
	return out, nil
}

// Prolong moves the expiry of an open agreement, including one that has
// already expired.
func Prolong(a *Agreement, until time.Time, actor string, now time.Time) (*Agreement, error) {
	if a.Status.IsTerminal() {
		return nil, &AlreadyTerminalError{Status: a.Status}
	}
	if !until.After(now) {
		return nil, ErrInvalidExpiry
	}
	out := a.Clone()
	out.ExpiresAt = until
	out.AuditTrail = append(out.AuditTrail, AuditEntry{
		Timestamp: now,
		Action:    ActionProlonged,
		Actor:     actor,
		ActorRole: document.RoleGLRS,
		Note:      "expires " + until.UTC().Format(time.RFC3339),
	})
	return out, nil
}
