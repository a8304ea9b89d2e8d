// Package presence projects the presence table into an in-memory user-id to
// status map, kept current by a whole-table change-feed subscription.
package presence

import (
	"context"
	"log"
	"sync"

	"teamchat/api/internal/feed"
	"teamchat/api/internal/store"
)

type PresenceStore interface {
	GetPresences(ctx context.Context, userIDs []string) ([]store.Presence, error)
}

// Subscriber opens change-feed subscriptions. *feed.Client satisfies it.
type Subscriber interface {
	Subscribe(ctx context.Context, table string, filter *feed.Filter, handlers feed.Handlers) *feed.Subscription
}

type Tracker struct {
	store      PresenceStore
	subscriber Subscriber

	mu       sync.Mutex
	statuses map[string]store.Presence
	seeded   map[string]struct{}
	sub      *feed.Subscription
}

func NewTracker(presenceStore PresenceStore, subscriber Subscriber) *Tracker {
	return &Tracker{
		store:      presenceStore,
		subscriber: subscriber,
		statuses:   make(map[string]store.Presence),
		seeded:     make(map[string]struct{}),
	}
}

// Start opens the table-wide subscription. Presence has no conversation scope
// so no equality filter applies.
func (t *Tracker) Start(ctx context.Context) {
	handlers := feed.Handlers{
		OnInsert: t.apply,
		OnUpdate: t.apply,
		OnDelete: func(e feed.Event) {
			var row feed.PresenceRow
			if err := feed.DecodeRow(e.Row(), &row); err != nil {
				return
			}
			t.mu.Lock()
			delete(t.statuses, row.UserID)
			t.mu.Unlock()
		},
		// The feed carries no backfill, so rows changed while the
		// subscription was down must be refetched.
		OnReconnect: func() {
			if err := t.reseed(ctx); err != nil {
				log.Printf("presence: reseed after reconnect: %v", err)
			}
		},
	}

	t.mu.Lock()
	t.sub = t.subscriber.Subscribe(ctx, "presence", nil, handlers)
	t.mu.Unlock()
}

func (t *Tracker) Stop() {
	t.mu.Lock()
	sub := t.sub
	t.sub = nil
	t.mu.Unlock()
	sub.Close()
}

// Seed loads current rows for a set of users, e.g. everyone visible in a
// sidebar, so the map is warm before any event arrives. The ids are remembered
// so a reconnect can refresh the same set.
func (t *Tracker) Seed(ctx context.Context, userIDs []string) error {
	rows, err := t.store.GetPresences(ctx, userIDs)
	if err != nil {
		return err
	}
	t.mu.Lock()
	for _, id := range userIDs {
		t.seeded[id] = struct{}{}
	}
	for _, p := range rows {
		t.statuses[p.UserID] = p
	}
	t.mu.Unlock()
	return nil
}

// reseed refetches every previously seeded user. Entries are cleared before
// the fresh rows land so users whose presence row disappeared during the drop
// fall back to offline.
func (t *Tracker) reseed(ctx context.Context) error {
	t.mu.Lock()
	ids := make([]string, 0, len(t.seeded))
	for id := range t.seeded {
		ids = append(ids, id)
	}
	t.mu.Unlock()
	if len(ids) == 0 {
		return nil
	}

	rows, err := t.store.GetPresences(ctx, ids)
	if err != nil {
		return err
	}
	t.mu.Lock()
	for _, id := range ids {
		delete(t.statuses, id)
	}
	for _, p := range rows {
		t.statuses[p.UserID] = p
	}
	t.mu.Unlock()
	return nil
}

func (t *Tracker) apply(e feed.Event) {
	var row feed.PresenceRow
	if err := feed.DecodeRow(e.Row(), &row); err != nil {
		log.Printf("presence: malformed row: %v", err)
		return
	}
	t.mu.Lock()
	t.statuses[row.UserID] = row.Presence()
	t.mu.Unlock()
}

// Status returns one user's presence, defaulting to offline when unknown.
func (t *Tracker) Status(userID string) store.Presence {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p, ok := t.statuses[userID]; ok {
		return p
	}
	return store.Presence{UserID: userID, Status: "offline"}
}

// Snapshot copies the whole projection.
func (t *Tracker) Snapshot() map[string]store.Presence {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]store.Presence, len(t.statuses))
	for id, p := range t.statuses {
		out[id] = p
	}
	return out
}
