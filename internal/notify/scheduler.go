package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"glrssign/internal/agreement"
	"glrssign/internal/document"
)

const (
	DefaultReminderSchedule = "0 9 * * *"
	DefaultReminderInterval = 72 * time.Hour
)

// SweepStore is what the reminder sweep reads.
type SweepStore interface {
	// ListOpenAgreements returns agreements whose stored status is not terminal.
	ListOpenAgreements(ctx context.Context) ([]*agreement.Agreement, error)
	// LastMailed returns when mail for the signer was last queued.
	LastMailed(ctx context.Context, agreementID string, role document.SignerRole) (time.Time, bool, error)
}

// SweepResult summarizes one sweep.
type SweepResult struct {
	Checked int
	Queued  int
	Skipped int
	Failed  int
}

// Scheduler periodically reminds the signer whose turn it is.
type Scheduler struct {
	cron     *cron.Cron
	gateway  *Gateway
	store    SweepStore
	interval time.Duration
	now      func() time.Time
}

func NewScheduler(spec string, interval time.Duration, gateway *Gateway, store SweepStore) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultReminderSchedule
	}
	if interval <= 0 {
		interval = DefaultReminderInterval
	}
	s := &Scheduler{
		cron:     cron.New(),
		gateway:  gateway,
		store:    store,
		interval: interval,
		now:      func() time.Time { return time.Now().UTC() },
	}
	_, err := s.cron.AddFunc(spec, func() {
		res, err := s.Sweep(context.Background())
		if err != nil {
			log.Printf("[reminders] sweep failed: %v", err)
			return
		}
		log.Printf("[reminders] checked %d agreements, queued %d, skipped %d, failed %d",
			res.Checked, res.Queued, res.Skipped, res.Failed)
	})
	if err != nil {
		return nil, fmt.Errorf("notify: invalid reminder schedule %q: %w", spec, err)
	}
	return s, nil
}

// Run starts the cron loop and blocks until ctx is done and running jobs finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.cron.Start()
	<-ctx.Done()
	<-s.cron.Stop().Done()
	return nil
}

// Sweep queues a reminder for every open, unexpired agreement whose current
// signer has not been mailed within the interval.
func (s *Scheduler) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	list, err := s.store.ListOpenAgreements(ctx)
	if err != nil {
		return res, fmt.Errorf("notify: list open agreements: %w", err)
	}
	now := s.now()
	for _, a := range list {
		res.Checked++
		signer, ok := agreement.CurrentTurn(a, now)
		if !ok || !signer.Mailable() {
			res.Skipped++
			continue
		}

		last, mailed, err := s.store.LastMailed(ctx, a.ID, signer.Role)
		if err != nil {
			return res, fmt.Errorf("notify: last mail for %s: %w", a.ID, err)
		}
		if !mailed {
			last = a.SentAt
		}
		if now.Sub(last) < s.interval {
			res.Skipped++
			continue
		}

		// One agreement that cannot be reminded never holds up the rest.
		if err := s.gateway.QueueReminder(ctx, a, *signer); err != nil {
			log.Printf("[reminders] agreement %s (%s): %v", a.ID, signer.Role, err)
			res.Failed++
			continue
		}
		res.Queued++
	}
	return res, nil
}
