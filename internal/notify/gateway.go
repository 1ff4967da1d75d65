// Package notify builds signing links and writes reminder and turn
// notifications to the outbound mail queue.
package notify

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"glrssign/internal/agreement"
	"glrssign/internal/document"
)

var (
	// ErrNoEmail is returned when a signer cannot be reached by mail.
	ErrNoEmail = errors.New("notify: signer has no email address")
	// ErrNoToken is returned for signers who sign in-portal and have no link.
	ErrNoToken = errors.New("notify: signer has no signing link")
)

// QueueError wraps a failed mail-queue write. The agreement is never touched
// and the write can be retried.
type QueueError struct {
	Err error
}

func (e *QueueError) Error() string {
	return fmt.Sprintf("notify: could not queue email, please try again: %v", e.Err)
}

func (e *QueueError) Unwrap() error { return e.Err }

// Kind tags a queued message.
type Kind string

const (
	KindReminder Kind = "reminder"
	KindTurn     Kind = "turn"
)

// Message is one row of the outbound mail queue.
type Message struct {
	ID          string              `json:"id"`
	To          string              `json:"to"`
	Subject     string              `json:"subject"`
	HTML        string              `json:"html"`
	AgreementID string              `json:"agreementId"`
	Role        document.SignerRole `json:"role"`
	Kind        Kind                `json:"kind"`
	CreatedAt   time.Time           `json:"createdAt"`
}

// Queue is the write side of the mail queue consumed by the external mailer.
type Queue interface {
	EnqueueMail(ctx context.Context, m *Message) error
}

//go:embed templates/*.html
var templateFS embed.FS

var emails = template.Must(template.ParseFS(templateFS, "templates/*.html"))

type emailData struct {
	SignerName    string
	DocumentTitle string
	SentBy        string
	Link          string
	ExpiresOn     string
}

type Gateway struct {
	baseURL string
	queue   Queue
	now     func() time.Time
}

// NewGateway returns a gateway producing links of the form baseURL#token.
func NewGateway(baseURL string, queue Queue) *Gateway {
	return &Gateway{
		baseURL: strings.TrimRight(baseURL, "#"),
		queue:   queue,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// LinkFor returns the shareable signing link. The token travels in the URL
// fragment so browsers never send it to a server.
func (g *Gateway) LinkFor(s agreement.Signer) (string, error) {
	if s.Token == "" {
		return "", ErrNoToken
	}
	return g.baseURL + "#" + s.Token, nil
}

// QueueReminder writes a reminder for s to the mail queue.
func (g *Gateway) QueueReminder(ctx context.Context, a *agreement.Agreement, s agreement.Signer) error {
	return g.queueMail(ctx, a, s, KindReminder, "reminder.html",
		fmt.Sprintf("Reminder: %s is waiting for your signature", a.DocumentTitle))
}

// QueueTurnNotice tells s it is their turn to sign.
func (g *Gateway) QueueTurnNotice(ctx context.Context, a *agreement.Agreement, s agreement.Signer) error {
	return g.queueMail(ctx, a, s, KindTurn, "turn.html",
		fmt.Sprintf("Please sign: %s", a.DocumentTitle))
}

func (g *Gateway) queueMail(ctx context.Context, a *agreement.Agreement, s agreement.Signer, kind Kind, tmpl, subject string) error {
	if strings.TrimSpace(s.Email) == "" {
		return ErrNoEmail
	}
	link, err := g.LinkFor(s)
	if err != nil {
		return err
	}

	var body bytes.Buffer
	err = emails.ExecuteTemplate(&body, tmpl, emailData{
		SignerName:    s.Name,
		DocumentTitle: a.DocumentTitle,
		SentBy:        a.SentBy,
		Link:          link,
		ExpiresOn:     a.ExpiresAt.Format("January 2, 2006"),
	})
	if err != nil {
		return fmt.Errorf("notify: render %s: %w", tmpl, err)
	}

	msg := &Message{
		To:          s.Email,
		Subject:     subject,
		HTML:        body.String(),
		AgreementID: a.ID,
		Role:        s.Role,
		Kind:        kind,
		CreatedAt:   g.now(),
	}
	if err := g.queue.EnqueueMail(ctx, msg); err != nil {
		return &QueueError{Err: err}
	}
	return nil
}
