package usercache

import (
	"context"
	"testing"
	"time"

	"teamchat/api/internal/store"
)

type fakeUserStore struct {
	calls   int
	fetched [][]string
	users   map[string]store.User
}

func (f *fakeUserStore) GetUsersByID(ctx context.Context, userIDs []string) ([]store.User, error) {
	f.calls++
	f.fetched = append(f.fetched, userIDs)
	var out []store.User
	for _, id := range userIDs {
		if user, ok := f.users[id]; ok {
			out = append(out, user)
		}
	}
	return out, nil
}

func TestResolveManyBatchesMissingIDs(t *testing.T) {
	fs := &fakeUserStore{users: map[string]store.User{
		"u1": {ID: "u1", Username: "avery"},
		"u2": {ID: "u2", Username: "blair"},
	}}
	cache := New(fs, time.Minute)

	result, err := cache.ResolveMany(context.Background(), []string{"u1", "u2", "u1"})
	if err != nil {
		t.Fatalf("ResolveMany() error = %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("expected 2 users, got %d", len(result))
	}
	if fs.calls != 1 {
		t.Fatalf("expected one batched fetch, got %d", fs.calls)
	}
	if len(fs.fetched[0]) != 2 {
		t.Fatalf("expected deduplicated fetch of 2 ids, got %v", fs.fetched[0])
	}

	// Second resolve is fully served from cache.
	if _, err := cache.ResolveMany(context.Background(), []string{"u1", "u2"}); err != nil {
		t.Fatalf("ResolveMany() error = %v", err)
	}
	if fs.calls != 1 {
		t.Fatalf("expected cached resolve to skip the store, got %d calls", fs.calls)
	}
}

func TestResolveManyFetchesOnlyMissing(t *testing.T) {
	fs := &fakeUserStore{users: map[string]store.User{
		"u1": {ID: "u1"}, "u2": {ID: "u2"},
	}}
	cache := New(fs, time.Minute)

	if _, err := cache.ResolveMany(context.Background(), []string{"u1"}); err != nil {
		t.Fatal(err)
	}
	if _, err := cache.ResolveMany(context.Background(), []string{"u1", "u2"}); err != nil {
		t.Fatal(err)
	}
	if fs.calls != 2 {
		t.Fatalf("expected 2 fetches, got %d", fs.calls)
	}
	if len(fs.fetched[1]) != 1 || fs.fetched[1][0] != "u2" {
		t.Fatalf("expected second fetch to request only u2, got %v", fs.fetched[1])
	}
}

func TestEntriesExpire(t *testing.T) {
	fs := &fakeUserStore{users: map[string]store.User{"u1": {ID: "u1"}}}
	cache := New(fs, time.Millisecond)

	if _, err := cache.ResolveMany(context.Background(), []string{"u1"}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, ok := cache.Get("u1"); ok {
		t.Fatal("expected entry to expire")
	}
	if _, err := cache.ResolveMany(context.Background(), []string{"u1"}); err != nil {
		t.Fatal(err)
	}
	if fs.calls != 2 {
		t.Fatalf("expected expired entry to be refetched, got %d calls", fs.calls)
	}
}

func TestInvalidate(t *testing.T) {
	fs := &fakeUserStore{users: map[string]store.User{"u1": {ID: "u1"}}}
	cache := New(fs, time.Minute)

	if _, err := cache.ResolveMany(context.Background(), []string{"u1"}); err != nil {
		t.Fatal(err)
	}
	cache.Invalidate("u1")
	if _, ok := cache.Get("u1"); ok {
		t.Fatal("expected invalidated entry to be gone")
	}
}

func TestUnknownIDsAbsentFromResult(t *testing.T) {
	fs := &fakeUserStore{users: map[string]store.User{}}
	cache := New(fs, time.Minute)

	result, err := cache.ResolveMany(context.Background(), []string{"ghost"})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := result["ghost"]; ok {
		t.Fatal("expected unknown id to be absent")
	}
}
