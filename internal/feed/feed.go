// Package feed is the change-data-capture layer: every committed mutation is
// published as a row-level event on a per-table Redis pub/sub channel, and
// views subscribe with an optional single equality filter.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	EventDelete = "DELETE"

	channelPrefix = "feed:"
)

// Event carries one row-level change. New and Old hold the full row in the
// storage column naming (snake_case); consumers translate via the row types
// in this package before use.
type Event struct {
	Type   string          `json:"type"`
	Schema string          `json:"schema"`
	Table  string          `json:"table"`
	New    json.RawMessage `json:"new,omitempty"`
	Old    json.RawMessage `json:"old,omitempty"`
}

// Row returns the payload row: the new row, except for deletes where only the
// old row exists.
func (e Event) Row() json.RawMessage {
	if e.Type == EventDelete {
		return e.Old
	}
	return e.New
}

// RowID extracts the row's primary key without a full decode. Presence rows
// key on user_id instead of id.
func (e Event) RowID() string {
	var partial struct {
		ID     string `json:"id"`
		UserID string `json:"user_id"`
	}
	if err := json.Unmarshal(e.Row(), &partial); err != nil {
		return ""
	}
	if partial.ID != "" {
		return partial.ID
	}
	return partial.UserID
}

// Filter is a single equality predicate on one storage column.
type Filter struct {
	Column string
	Value  string
}

// Handlers receives matching events. OnReconnect fires after the underlying
// subscription drops and is re-established; the feed never backfills missed
// events, so consumers must re-run their snapshot fetch when it fires.
type Handlers struct {
	OnInsert    func(Event)
	OnUpdate    func(Event)
	OnDelete    func(Event)
	OnReconnect func()
}

// Publisher emits change events after the mutation layer commits.
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Publish(ctx context.Context, event Event) error {
	if event.Schema == "" {
		event.Schema = "public"
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal feed event: %w", err)
	}
	if err := p.client.Publish(ctx, channelPrefix+event.Table, payload).Err(); err != nil {
		return fmt.Errorf("publish feed event: %w", err)
	}
	return nil
}

// Client subscribes views to per-table change streams.
type Client struct {
	client *redis.Client
}

func NewClient(client *redis.Client) *Client {
	return &Client{client: client}
}

// Subscription is a live feed listener. Close tears it down and waits for the
// receive loop to stop; closing twice is safe.
type Subscription struct {
	closeOnce sync.Once
	closeFn   func()
}

func (s *Subscription) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		if s.closeFn != nil {
			s.closeFn()
		}
	})
}

// Subscribe listens to one table. A nil filter matches every row. A non-nil
// filter with an empty value suppresses the subscription entirely - the guard
// against accidentally streaming a whole table when the caller meant to scope
// to one conversation.
func (c *Client) Subscribe(ctx context.Context, table string, filter *Filter, handlers Handlers) *Subscription {
	if filter != nil && strings.TrimSpace(filter.Value) == "" {
		return &Subscription{}
	}

	subCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go c.run(subCtx, table, filter, handlers, done)

	return &Subscription{closeFn: func() {
		cancel()
		<-done
	}}
}

// SubscribeEach opens one subscription per filter over the same table and
// dedupes rows that match more than one predicate. This is how an OR of two
// column predicates (direct chats where I am user1 or user2) is covered while
// each underlying subscription stays a single equality match.
func (c *Client) SubscribeEach(ctx context.Context, table string, filters []Filter, handlers Handlers) *Subscription {
	dedupe := newDeduper(256)
	wrapped := Handlers{OnReconnect: handlers.OnReconnect}
	if handlers.OnInsert != nil {
		wrapped.OnInsert = func(e Event) {
			if !dedupe.seen(e) {
				handlers.OnInsert(e)
			}
		}
	}
	if handlers.OnUpdate != nil {
		wrapped.OnUpdate = func(e Event) {
			if !dedupe.seen(e) {
				handlers.OnUpdate(e)
			}
		}
	}
	if handlers.OnDelete != nil {
		wrapped.OnDelete = func(e Event) {
			if !dedupe.seen(e) {
				handlers.OnDelete(e)
			}
		}
	}

	subs := make([]*Subscription, 0, len(filters))
	for i := range filters {
		filter := filters[i]
		subs = append(subs, c.Subscribe(ctx, table, &filter, wrapped))
	}

	return &Subscription{closeFn: func() {
		for _, sub := range subs {
			sub.Close()
		}
	}}
}

func (c *Client) run(ctx context.Context, table string, filter *Filter, handlers Handlers, done chan struct{}) {
	defer close(done)

	pubsub := c.client.Subscribe(ctx, channelPrefix+table)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			// Connection dropped. Re-establish and tell the consumer to
			// re-snapshot; anything published meanwhile is gone.
			log.Printf("feed: subscription to %s dropped, resubscribing: %v", table, err)
			_ = pubsub.Close()
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			pubsub = c.client.Subscribe(ctx, channelPrefix+table)
			if handlers.OnReconnect != nil {
				handlers.OnReconnect()
			}
			continue
		}

		var event Event
		if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
			log.Printf("feed: malformed event on %s: %v", table, err)
			continue
		}
		if !matches(event, filter) {
			continue
		}
		dispatch(event, handlers)
	}
}

func matches(event Event, filter *Filter) bool {
	if filter == nil {
		return true
	}
	var row map[string]any
	if err := json.Unmarshal(event.Row(), &row); err != nil {
		return false
	}
	value, ok := row[filter.Column]
	if !ok {
		return false
	}
	text, ok := value.(string)
	return ok && text == filter.Value
}

func dispatch(event Event, handlers Handlers) {
	switch event.Type {
	case EventInsert:
		if handlers.OnInsert != nil {
			handlers.OnInsert(event)
		}
	case EventUpdate:
		if handlers.OnUpdate != nil {
			handlers.OnUpdate(event)
		}
	case EventDelete:
		if handlers.OnDelete != nil {
			handlers.OnDelete(event)
		}
	}
}

// rowStamp pulls the row's update timestamp so distinct writes to the same
// row are never collapsed, only the same event arriving twice.
func rowStamp(event Event) string {
	var partial struct {
		UpdatedAt string `json:"updated_at"`
		LastSeen  string `json:"last_seen"`
	}
	if err := json.Unmarshal(event.Row(), &partial); err != nil {
		return ""
	}
	if partial.UpdatedAt != "" {
		return partial.UpdatedAt
	}
	return partial.LastSeen
}

// deduper remembers recently seen events across the sibling subscriptions of
// a SubscribeEach group.
type deduper struct {
	mu    sync.Mutex
	keys  map[string]struct{}
	order []string
	limit int
}

func newDeduper(limit int) *deduper {
	return &deduper{keys: make(map[string]struct{}), limit: limit}
}

func (d *deduper) seen(event Event) bool {
	key := event.Type + "|" + event.RowID() + "|" + rowStamp(event)
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.keys[key]; ok {
		return true
	}
	d.keys[key] = struct{}{}
	d.order = append(d.order, key)
	if len(d.order) > d.limit {
		oldest := d.order[0]
		d.order = d.order[1:]
		delete(d.keys, oldest)
	}
	return false
}
