package query

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"glrssign/internal/agreement"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
	DefaultRefresh  = time.Minute
	DefaultDebounce = 250 * time.Millisecond
)

// Source loads a tenant's most recent agreements, newest first.
type Source interface {
	ListAgreements(ctx context.Context, tenantID string, limit int) ([]*agreement.Agreement, error)
}

// Feed delivers the tenant id of every changed agreement until ctx is done.
type Feed interface {
	Listen(ctx context.Context, fn func(tenantID string)) error
}

// Filter narrows a list. An empty Status means all.
type Filter struct {
	Status agreement.Status
	Limit  int
}

func (f Filter) limit() int {
	switch {
	case f.Limit <= 0:
		return DefaultPageSize
	case f.Limit > MaxPageSize:
		return MaxPageSize
	default:
		return f.Limit
	}
}

// Snapshot is one evaluation of a tenant's list at At.
type Snapshot struct {
	Agreements []View                   `json:"agreements"`
	Counts     map[agreement.Status]int `json:"counts"`
	All        int                      `json:"all"`
	At         time.Time                `json:"at"`
}

// Compute filters and counts list by effective status at now.
func Compute(list []*agreement.Agreement, f Filter, now time.Time) Snapshot {
	snap := Snapshot{
		Agreements: []View{},
		Counts:     make(map[agreement.Status]int),
		All:        len(list),
		At:         now,
	}
	for _, st := range agreement.EffectiveStatuses() {
		snap.Counts[st] = 0
	}
	for _, a := range list {
		st := agreement.EffectiveStatus(a, now)
		snap.Counts[st]++
		if f.Status == "" || f.Status == st {
			snap.Agreements = append(snap.Agreements, NewView(a, now))
		}
	}
	return snap
}

// Hub fans change notifications out to live subscribers per tenant.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan struct{}]struct{})}
}

// Publish wakes every subscriber of tenantID without blocking.
func (h *Hub) Publish(tenantID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[tenantID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (h *Hub) subscribe(tenantID string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	h.mu.Lock()
	if h.subs[tenantID] == nil {
		h.subs[tenantID] = make(map[chan struct{}]struct{})
	}
	h.subs[tenantID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[tenantID], ch)
			if len(h.subs[tenantID]) == 0 {
				delete(h.subs, tenantID)
			}
			close(ch)
		})
	}
}

// Run pumps feed into the hub until ctx is done.
func (h *Hub) Run(ctx context.Context, feed Feed) error {
	return feed.Listen(ctx, h.Publish)
}

type Service struct {
	source   Source
	hub      *Hub
	refresh  time.Duration
	debounce time.Duration
	pageSize int
	now      func() time.Time
}

func NewService(source Source, hub *Hub, refresh time.Duration, pageSize int) *Service {
	if refresh <= 0 {
		refresh = DefaultRefresh
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Service{
		source:   source,
		hub:      hub,
		refresh:  refresh,
		debounce: DefaultDebounce,
		pageSize: pageSize,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// List evaluates the tenant's list once.
func (s *Service) List(ctx context.Context, tenantID string, f Filter) (Snapshot, error) {
	if f.Limit <= 0 {
		f.Limit = s.pageSize
	}
	list, err := s.source.ListAgreements(ctx, tenantID, f.limit())
	if err != nil {
		return Snapshot{}, fmt.Errorf("query: list agreements: %w", err)
	}
	return Compute(list, f, s.now()), nil
}

// Subscribe emits a snapshot immediately, after every burst of changes for the
// tenant, and on every refresh tick since expiry depends on the clock alone.
// The channel closes when ctx is done.
func (s *Service) Subscribe(ctx context.Context, tenantID string, f Filter) <-chan Snapshot {
	out := make(chan Snapshot)
	changes, cancel := s.hub.subscribe(tenantID)
	debounced := Debounce(ctx, changes, s.debounce)

	go func() {
		defer close(out)
		defer cancel()
		ticker := time.NewTicker(s.refresh)
		defer ticker.Stop()

		emit := func() bool {
			snap, err := s.List(ctx, tenantID, f)
			if err != nil {
				if ctx.Err() != nil {
					return false
				}
				log.Printf("[query] tenant %s: %v", tenantID, err)
				return true
			}
			select {
			case out <- snap:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-debounced:
				if !ok {
					return
				}
			case <-ticker.C:
			}
			if !emit() {
				return
			}
		}
	}()
	return out
}
