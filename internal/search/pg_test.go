package search

import (
	"strings"
	"testing"
)

func TestDirectMessageOnlyQueryResolvesUserID(t *testing.T) {
	q := Query{
		Text:       "deploy",
		ChatIDs:    []string{"chat-1", "chat-2"},
		FilterType: ResultDirectMessage,
	}
	countSQL, dataSQL, args, ok := buildSearchSQL(q, 20, 0)
	if !ok {
		t.Fatal("expected a buildable query for a chat-scoped search")
	}
	if strings.Contains(dataSQL, "channel_message") {
		t.Fatal("direct-message filter must not include the channel branch")
	}
	// The outer select names user_id, so the lone subquery has to alias the
	// sender column to match or Postgres rejects the statement.
	if !strings.Contains(dataSQL, "dm.sender_id AS user_id") {
		t.Fatalf("direct-message branch must alias sender_id as user_id:\n%s", dataSQL)
	}
	if !strings.Contains(countSQL, "dm.sender_id AS user_id") {
		t.Fatalf("count query must use the same aliased branch:\n%s", countSQL)
	}
	if len(args) != 2 {
		t.Fatalf("args = %d, want pattern + chat ids", len(args))
	}
	if args[0] != "%deploy%" {
		t.Fatalf("pattern arg = %v", args[0])
	}
}

func TestChannelOnlyQuerySkipsDirectMessages(t *testing.T) {
	q := Query{
		Text:       "deploy",
		ChannelIDs: []string{"ch-1"},
		ChatIDs:    []string{"chat-1"},
		FilterType: ResultChannelMessage,
	}
	_, dataSQL, args, ok := buildSearchSQL(q, 20, 0)
	if !ok {
		t.Fatal("expected a buildable query for a channel-scoped search")
	}
	if strings.Contains(dataSQL, "direct_messages") {
		t.Fatal("channel filter must not include the direct-message branch")
	}
	if len(args) != 2 {
		t.Fatalf("args = %d, want pattern + channel ids", len(args))
	}
}

func TestBothBranchesExposeMatchingColumns(t *testing.T) {
	q := Query{
		Text:       "deploy",
		ChannelIDs: []string{"ch-1"},
		ChatIDs:    []string{"chat-1"},
	}
	_, dataSQL, args, ok := buildSearchSQL(q, 20, 0)
	if !ok {
		t.Fatal("expected a buildable query")
	}
	if !strings.Contains(dataSQL, "UNION ALL") {
		t.Fatal("expected both branches in the union")
	}
	for _, alias := range []string{"m.user_id AS user_id", "dm.sender_id AS user_id"} {
		if !strings.Contains(dataSQL, alias) {
			t.Fatalf("missing %q in:\n%s", alias, dataSQL)
		}
	}
	if len(args) != 3 {
		t.Fatalf("args = %d, want pattern + channel ids + chat ids", len(args))
	}
}

func TestUnscopedQueryIsNotBuildable(t *testing.T) {
	if _, _, _, ok := buildSearchSQL(Query{Text: "deploy"}, 20, 0); ok {
		t.Fatal("a caller with no visible conversations must produce no query")
	}
}
