package agreement

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"glrssign/internal/document"
)

// ErrPersistence marks a storage failure. The agreement keeps its last
// committed state and the call can be retried with the same operation id.
var ErrPersistence = errors.New("agreement: storage unavailable, please retry")

// MutateFunc computes the next state from the locked current state.
type MutateFunc func(current *Agreement) (*Agreement, error)

// Store is the persistence the service needs.
type Store interface {
	CreateAgreement(ctx context.Context, a *Agreement) error
	GetAgreement(ctx context.Context, id string) (*Agreement, error)
	GetAgreementByToken(ctx context.Context, token string) (*Agreement, error)
	// UpdateAgreement runs fn under a per-agreement lock and commits its result
	// in one unit. A non-empty opID already recorded for the agreement skips fn
	// and returns the current state with replayed set.
	UpdateAgreement(ctx context.Context, id, opID string, fn MutateFunc) (updated *Agreement, replayed bool, err error)
}

// Notifier queues mail to a signer whose turn has come.
type Notifier interface {
	QueueTurnNotice(ctx context.Context, a *Agreement, s Signer) error
}

// Finalizer runs once an agreement reaches completed.
type Finalizer interface {
	Finalize(ctx context.Context, a *Agreement) error
}

// Outcome is the result of a mutating call. FollowUp holds a notification or
// export failure that happened after the transition committed.
type Outcome struct {
	Agreement *Agreement
	Replayed  bool
	FollowUp  error
}

type Service struct {
	store     Store
	notifier  Notifier
	finalizer Finalizer
	ttl       time.Duration
	now       func() time.Time
}

type Option func(*Service)

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithFinalizer(f Finalizer) Option { return func(s *Service) { s.finalizer = f } }

// WithTTL sets how long a sent agreement stays open.
func WithTTL(ttl time.Duration) Option { return func(s *Service) { s.ttl = ttl } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store: store,
		ttl:   DefaultTTL,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now is the service clock.
func (s *Service) Now() time.Time {
	return s.now()
}

// Send builds and persists a new agreement, then tells the first signer.
func (s *Service) Send(ctx context.Context, p DraftParams) (Outcome, error) {
	p.Now = s.now()
	if p.TTL <= 0 {
		p.TTL = s.ttl
	}
	a, err := BuildDraft(p)
	if err != nil {
		return Outcome{}, err
	}
	if err := s.store.CreateAgreement(ctx, a); err != nil {
		return Outcome{}, fmt.Errorf("agreement: create: %w", err)
	}
	log.Printf("agreement %s sent by %s with %d signers", a.ID, a.SentBy, len(a.Signers))
	return Outcome{Agreement: a, FollowUp: s.notifyTurn(ctx, a)}, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Agreement, error) {
	return s.store.GetAgreement(ctx, id)
}

// ResolveToken maps a signing link to its agreement and signer. A link stops
// working once its signer has signed or the agreement is voided.
func (s *Service) ResolveToken(ctx context.Context, token string) (*Agreement, *Signer, error) {
	if token == "" {
		return nil, nil, ErrNotFound
	}
	a, err := s.store.GetAgreementByToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	signer, ok := a.SignerByToken(token)
	if !ok {
		return nil, nil, ErrNotFound
	}
	if signer.Status == SignerSigned || a.Status == StatusVoided {
		return a, signer, ErrTokenRedeemed
	}
	if IsExpired(a, s.now()) {
		return a, signer, ErrExpired
	}
	return a, signer, nil
}

func (s *Service) mutate(ctx context.Context, id, opID string, fn func(a *Agreement, now time.Time) (*Agreement, error)) (Outcome, error) {
	updated, replayed, err := s.store.UpdateAgreement(ctx, id, opID, func(current *Agreement) (*Agreement, error) {
		return fn(current, s.now())
	})
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Agreement: updated, Replayed: replayed}, nil
}

func (s *Service) SubmitFields(ctx context.Context, id, opID string, role document.SignerRole, values map[string]any) (Outcome, error) {
	out, err := s.mutate(ctx, id, opID, func(a *Agreement, now time.Time) (*Agreement, error) {
		return SubmitFields(a, role, values, now)
	})
	s.logIntegrationError(id, role, err)
	return out, err
}

// Sign applies a signing round and hands the turn to the next signer, or
// finalizes the agreement when it was the last signature.
func (s *Service) Sign(ctx context.Context, id, opID string, role document.SignerRole, in SignInput) (Outcome, error) {
	out, err := s.mutate(ctx, id, opID, func(a *Agreement, now time.Time) (*Agreement, error) {
		return Sign(a, role, in, now)
	})
	if err != nil {
		s.logIntegrationError(id, role, err)
		return out, err
	}
	if out.Replayed {
		return out, nil
	}
	log.Printf("agreement %s signed by %s, status %s", id, role, out.Agreement.Status)

	if out.Agreement.Status == StatusCompleted {
		if s.finalizer != nil {
			if err := s.finalizer.Finalize(ctx, out.Agreement); err != nil {
				log.Printf("agreement %s: finalize failed: %v", id, err)
				out.FollowUp = err
			}
		}
		return out, nil
	}
	out.FollowUp = s.notifyTurn(ctx, out.Agreement)
	return out, nil
}

func (s *Service) Void(ctx context.Context, id, opID, actor string) (Outcome, error) {
	out, err := s.mutate(ctx, id, opID, func(a *Agreement, now time.Time) (*Agreement, error) {
		return Void(a, actor, now)
	})
	if err == nil && !out.Replayed {
		log.Printf("agreement %s voided by %s", id, actor)
	}
	return out, err
}

func (s *Service) Decline(ctx context.Context, id, opID string, role document.SignerRole, reason string) (Outcome, error) {
	out, err := s.mutate(ctx, id, opID, func(a *Agreement, now time.Time) (*Agreement, error) {
		return Decline(a, role, reason, now)
	})
	if err == nil && !out.Replayed {
		log.Printf("agreement %s declined by %s", id, role)
	}
	return out, err
}

func (s *Service) RecordView(ctx context.Context, id string, role document.SignerRole) (Outcome, error) {
	return s.mutate(ctx, id, "", func(a *Agreement, now time.Time) (*Agreement, error) {
		return RecordView(a, role, now)
	})
}

func (s *Service) Prolong(ctx context.Context, id, opID string, until time.Time, actor string) (Outcome, error) {
	return s.mutate(ctx, id, opID, func(a *Agreement, now time.Time) (*Agreement, error) {
		return Prolong(a, until, actor, now)
	})
}

func (s *Service) notifyTurn(ctx context.Context, a *Agreement) error {
	if s.notifier == nil {
		return nil
	}
	next, ok := CurrentTurn(a, s.now())
	if !ok || !next.Mailable() {
		return nil
	}
	if err := s.notifier.QueueTurnNotice(ctx, a, *next); err != nil {
		log.Printf("agreement %s: turn notice for %s not queued: %v", a.ID, next.Role, err)
		return err
	}
	return nil
}

func (s *Service) logIntegrationError(id string, role document.SignerRole, err error) {
	var unknown *UnknownFieldError
	if errors.As(err, &unknown) {
		log.Printf("ERROR agreement %s: %s submitted fields it does not own: %v", id, role, unknown.Fields)
	}
}
