package agreement

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"glrssign/internal/document"
)

var (
	// ErrNotFound is returned when no agreement exists for the identifier or token.
	ErrNotFound = errors.New("agreement: not found")
	// ErrExpired is returned when a signer acts on an agreement past its expiry.
	ErrExpired = errors.New("agreement: this agreement has expired")
	// ErrUnknownSigner is returned when the role has no signer on the agreement.
	ErrUnknownSigner = errors.New("agreement: no signer with that role on this agreement")
	// ErrTokenRedeemed is returned when a signing link is presented after its signer is done.
	ErrTokenRedeemed = errors.New("agreement: this signing link has already been used")
	// ErrInvalidExpiry is returned when an agreement is prolonged to a time not after now.
	ErrInvalidExpiry = errors.New("agreement: new expiry must be in the future")
)

// NotYourTurnError means the role is not the one currently allowed to act.
type NotYourTurnError struct {
	Role document.SignerRole
	// Awaiting is the signer whose turn it is, empty when nobody is pending ahead.
	Awaiting document.SignerRole
}

func (e *NotYourTurnError) Error() string {
	if e.Awaiting != "" {
		return fmt.Sprintf("agreement: not %s's turn, awaiting %s", e.Role.Label(), e.Awaiting.Label())
	}
	return fmt.Sprintf("agreement: not %s's turn", e.Role.Label())
}

// UnknownFieldError is an integration error: the submission named blocks the
// role does not own.
type UnknownFieldError struct {
	Role   document.SignerRole
	Fields []string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("agreement: fields not owned by %s: %s", e.Role, strings.Join(e.Fields, ", "))
}

// IncompleteRequiredFieldsError lists required blocks still without a value.
type IncompleteRequiredFieldsError struct {
	Role   document.SignerRole
	Fields []string
}

func (e *IncompleteRequiredFieldsError) Error() string {
	return fmt.Sprintf("agreement: required fields missing for %s: %s", e.Role.Label(), strings.Join(e.Fields, ", "))
}

// AlreadyTerminalError means the agreement is completed or voided.
type AlreadyTerminalError struct {
	Status Status
}

func (e *AlreadyTerminalError) Error() string {
	return fmt.Sprintf("agreement: agreement is already %s", e.Status)
}

// ValidationErrors maps "<role>_<field>" to a human-readable message.
type ValidationErrors map[string]string

func (v ValidationErrors) Error() string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+v[k])
	}
	return "agreement: invalid signer data: " + strings.Join(parts, "; ")
}

func (v ValidationErrors) add(role document.SignerRole, field, msg string) {
	v[string(role)+"_"+field] = msg
}
