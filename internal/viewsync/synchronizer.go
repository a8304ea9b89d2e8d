// Package viewsync keeps an open conversation view consistent with the shared
// store: snapshot first, then merge change-feed events into the in-memory
// ordered list, resolving authors through the shared user cache.
package viewsync

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"teamchat/api/internal/feed"
	"teamchat/api/internal/store"
	"teamchat/api/internal/usercache"
)

type State int

const (
	Loading State = iota
	Populated
)

// SnapshotLimit caps the initial top-level fetch; thread replies load
// unbounded.
const SnapshotLimit = 50

// Codec adapts one conversation flavor (channel messages, direct messages) to
// the generic view logic.
type Codec[T any] struct {
	ID        func(T) string
	ParentID  func(T) *string
	AuthorID  func(T) string
	CreatedAt func(T) time.Time
	Decode    func(feed.Event) (T, bool)
}

// View is the per-open-conversation synchronizer. Loading until the snapshot
// lands, Populated afterwards; feed events merge into the ordered list.
type View[T any] struct {
	codec     Codec[T]
	users     *usercache.Cache
	snapshot  func(context.Context) ([]T, error)
	subscribe func(context.Context, feed.Handlers) *feed.Subscription
	// parentID set means this is a thread panel view: only replies under
	// that parent belong. Unset means top-level only.
	parentID string
	onAppend func()

	mu      sync.Mutex
	state   State
	items   []T
	authors map[string]store.User
	sub     *feed.Subscription
}

func NewView[T any](
	codec Codec[T],
	users *usercache.Cache,
	snapshot func(context.Context) ([]T, error),
	subscribe func(context.Context, feed.Handlers) *feed.Subscription,
	parentID string,
	onAppend func(),
) *View[T] {
	return &View[T]{
		codec:     codec,
		users:     users,
		snapshot:  snapshot,
		subscribe: subscribe,
		parentID:  parentID,
		onAppend:  onAppend,
		state:     Loading,
		authors:   make(map[string]store.User),
	}
}

// Start loads the snapshot and opens the feed subscription. The subscription
// lives until Stop or ctx cancellation.
func (v *View[T]) Start(ctx context.Context) error {
	if err := v.load(ctx); err != nil {
		return err
	}

	handlers := feed.Handlers{
		OnInsert: func(e feed.Event) { v.applyInsert(ctx, e) },
		OnUpdate: func(e feed.Event) { v.applyUpdate(e) },
		OnDelete: func(e feed.Event) { v.applyDelete(e) },
		// The feed has no backfill; a dropped subscription means missed
		// events, so the snapshot is re-run from scratch.
		OnReconnect: func() {
			if err := v.load(ctx); err != nil {
				log.Printf("sync: re-snapshot after reconnect failed: %v", err)
			}
		},
	}

	v.mu.Lock()
	v.sub = v.subscribe(ctx, handlers)
	v.mu.Unlock()
	return nil
}

func (v *View[T]) Stop() {
	v.mu.Lock()
	sub := v.sub
	v.sub = nil
	v.mu.Unlock()
	sub.Close()
}

func (v *View[T]) load(ctx context.Context) error {
	items, err := v.snapshot(ctx)
	if err != nil {
		return err
	}
	sort.SliceStable(items, func(i, j int) bool {
		return v.codec.CreatedAt(items[i]).Before(v.codec.CreatedAt(items[j]))
	})

	v.mu.Lock()
	v.items = items
	v.state = Populated
	v.mu.Unlock()

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, v.codec.AuthorID(item))
	}
	return v.resolveAuthors(ctx, ids)
}

func (v *View[T]) applyInsert(ctx context.Context, event feed.Event) {
	item, ok := v.codec.Decode(event)
	if !ok {
		return
	}
	if !v.belongs(item) {
		return
	}

	v.mu.Lock()
	if v.state != Populated {
		v.mu.Unlock()
		return
	}
	// The snapshot and the feed can overlap; replaying a row already present
	// must not produce a visible duplicate.
	id := v.codec.ID(item)
	for i := range v.items {
		if v.codec.ID(v.items[i]) == id {
			v.items[i] = item
			v.mu.Unlock()
			return
		}
	}
	v.items = append(v.items, item)
	v.mu.Unlock()

	if err := v.resolveAuthors(ctx, []string{v.codec.AuthorID(item)}); err != nil {
		log.Printf("sync: resolve author: %v", err)
	}
	if v.onAppend != nil {
		v.onAppend()
	}
}

func (v *View[T]) applyUpdate(event feed.Event) {
	item, ok := v.codec.Decode(event)
	if !ok {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	id := v.codec.ID(item)
	for i := range v.items {
		if v.codec.ID(v.items[i]) == id {
			v.items[i] = item
			return
		}
	}
}

func (v *View[T]) applyDelete(event feed.Event) {
	id := event.RowID()
	if id == "" {
		return
	}

	v.mu.Lock()
	defer v.mu.Unlock()
	for i := range v.items {
		if v.codec.ID(v.items[i]) == id {
			v.items = append(v.items[:i], v.items[i+1:]...)
			return
		}
	}
}

// belongs applies the view's thread filter: a top-level list ignores replies,
// a thread panel only accepts replies under its parent.
func (v *View[T]) belongs(item T) bool {
	parent := v.codec.ParentID(item)
	if v.parentID == "" {
		return parent == nil
	}
	return parent != nil && *parent == v.parentID
}

func (v *View[T]) resolveAuthors(ctx context.Context, ids []string) error {
	resolved, err := v.users.ResolveMany(ctx, ids)
	if err != nil {
		return err
	}
	v.mu.Lock()
	for id, user := range resolved {
		v.authors[id] = user
	}
	v.mu.Unlock()
	return nil
}

// Items returns a copy of the current ordered list.
func (v *View[T]) Items() []T {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]T, len(v.items))
	copy(out, v.items)
	return out
}

func (v *View[T]) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Author returns the resolved user record for an author id, if cached.
func (v *View[T]) Author(userID string) (store.User, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	user, ok := v.authors[userID]
	return user, ok
}
