package viewsync

import (
	"context"
	"sync"
	"testing"
	"time"

	"teamchat/api/internal/feed"
	"teamchat/api/internal/store"
	"teamchat/api/internal/usercache"
)

type fakeUsers struct {
	users map[string]store.User
}

func (f *fakeUsers) GetUsersByID(ctx context.Context, userIDs []string) ([]store.User, error) {
	var out []store.User
	for _, id := range userIDs {
		if user, ok := f.users[id]; ok {
			out = append(out, user)
		}
	}
	return out, nil
}

// capturedFeed stands in for a live subscription: the test drives handlers
// directly.
type capturedFeed struct {
	mu       sync.Mutex
	handlers feed.Handlers
}

func (c *capturedFeed) subscribe(_ context.Context, handlers feed.Handlers) *feed.Subscription {
	c.mu.Lock()
	c.handlers = handlers
	c.mu.Unlock()
	return &feed.Subscription{}
}

func (c *capturedFeed) insert(e feed.Event) { c.current().OnInsert(e) }
func (c *capturedFeed) update(e feed.Event) { c.current().OnUpdate(e) }
func (c *capturedFeed) delete(e feed.Event) { c.current().OnDelete(e) }
func (c *capturedFeed) reconnect()          { c.current().OnReconnect() }

func (c *capturedFeed) current() feed.Handlers {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers
}

func messageEvent(eventType string, msg store.Message) feed.Event {
	event := feed.Event{Type: eventType, Table: "messages"}
	row := feed.MustRow(feed.NewMessageRow(msg))
	if eventType == feed.EventDelete {
		event.Old = row
	} else {
		event.New = row
	}
	return event
}

func newTestView(t *testing.T, snapshot func(context.Context) ([]store.Message, error), parentID string) (*View[store.Message], *capturedFeed) {
	t.Helper()
	users := usercache.New(&fakeUsers{users: map[string]store.User{
		"u1": {ID: "u1", Username: "avery"},
		"u2": {ID: "u2", Username: "blair"},
	}}, time.Minute)
	captured := &capturedFeed{}
	view := NewView(MessageCodec(), users, snapshot, captured.subscribe, parentID, nil)
	if err := view.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(view.Stop)
	return view, captured
}

func TestSnapshotThenPopulated(t *testing.T) {
	base := time.Now()
	snapshot := func(context.Context) ([]store.Message, error) {
		return []store.Message{
			{ID: "m2", UserID: "u2", Content: "second", CreatedAt: base.Add(time.Second)},
			{ID: "m1", UserID: "u1", Content: "first", CreatedAt: base},
		}, nil
	}
	view, _ := newTestView(t, snapshot, "")

	if view.State() != Populated {
		t.Fatal("expected Populated after Start")
	}
	items := view.Items()
	if len(items) != 2 || items[0].ID != "m1" || items[1].ID != "m2" {
		t.Fatalf("expected snapshot sorted ascending, got %+v", items)
	}
	if _, ok := view.Author("u1"); !ok {
		t.Fatal("expected snapshot authors to be resolved")
	}
}

func TestInsertAppendsAndDeduplicates(t *testing.T) {
	snapshot := func(context.Context) ([]store.Message, error) {
		return []store.Message{{ID: "m1", UserID: "u1", CreatedAt: time.Now()}}, nil
	}
	view, captured := newTestView(t, snapshot, "")

	captured.insert(messageEvent(feed.EventInsert, store.Message{ID: "m2", UserID: "u2", Content: "hello"}))
	if len(view.Items()) != 2 {
		t.Fatalf("expected insert to append, got %d items", len(view.Items()))
	}

	// Snapshot/feed overlap: replaying m2 must not duplicate it.
	captured.insert(messageEvent(feed.EventInsert, store.Message{ID: "m2", UserID: "u2", Content: "hello again"}))
	items := view.Items()
	if len(items) != 2 {
		t.Fatalf("expected replayed insert to dedupe, got %d items", len(items))
	}
	if items[1].Content != "hello again" {
		t.Fatal("expected replayed insert to refresh the row in place")
	}
}

func TestTopLevelViewIgnoresReplies(t *testing.T) {
	snapshot := func(context.Context) ([]store.Message, error) { return nil, nil }
	view, captured := newTestView(t, snapshot, "")

	parent := "m1"
	captured.insert(messageEvent(feed.EventInsert, store.Message{ID: "r1", UserID: "u1", ParentID: &parent}))
	if len(view.Items()) != 0 {
		t.Fatal("expected top-level view to ignore thread replies")
	}
}

func TestThreadViewAcceptsOnlyItsReplies(t *testing.T) {
	snapshot := func(context.Context) ([]store.Message, error) { return nil, nil }
	view, captured := newTestView(t, snapshot, "m1")

	mine, other := "m1", "m9"
	captured.insert(messageEvent(feed.EventInsert, store.Message{ID: "r1", UserID: "u1", ParentID: &mine}))
	captured.insert(messageEvent(feed.EventInsert, store.Message{ID: "r2", UserID: "u1", ParentID: &other}))
	captured.insert(messageEvent(feed.EventInsert, store.Message{ID: "m2", UserID: "u1"}))

	items := view.Items()
	if len(items) != 1 || items[0].ID != "r1" {
		t.Fatalf("expected only replies under m1, got %+v", items)
	}
}

func TestUpdateReplacesAndDeleteRemoves(t *testing.T) {
	snapshot := func(context.Context) ([]store.Message, error) {
		return []store.Message{{ID: "m1", UserID: "u1", Content: "old", CreatedAt: time.Now()}}, nil
	}
	view, captured := newTestView(t, snapshot, "")

	captured.update(messageEvent(feed.EventUpdate, store.Message{ID: "m1", UserID: "u1", Content: "new"}))
	if items := view.Items(); items[0].Content != "new" {
		t.Fatalf("expected update to replace content, got %q", items[0].Content)
	}

	captured.delete(messageEvent(feed.EventDelete, store.Message{ID: "m1", UserID: "u1"}))
	if len(view.Items()) != 0 {
		t.Fatal("expected delete to remove the row")
	}
}

func TestReconnectReloadsSnapshot(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	snapshot := func(context.Context) ([]store.Message, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		if calls == 1 {
			return nil, nil
		}
		return []store.Message{{ID: "missed", UserID: "u1", CreatedAt: time.Now()}}, nil
	}
	view, captured := newTestView(t, snapshot, "")

	// A dropped subscription means missed events; the reconnect notification
	// must trigger a fresh snapshot.
	captured.reconnect()

	items := view.Items()
	if len(items) != 1 || items[0].ID != "missed" {
		t.Fatalf("expected re-snapshot to recover missed rows, got %+v", items)
	}
}
