package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Pg implements Searcher with ILIKE matching as the fallback when
// Meilisearch is absent or unhealthy.
type Pg struct {
	db *sql.DB
}

func NewPg(db *sql.DB) *Pg {
	return &Pg{db: db}
}

// Healthy always returns true. If Postgres is down the whole app is down.
func (p *Pg) Healthy() bool {
	return true
}

// buildSearchSQL assembles the UNION ALL over channel and direct messages.
// Every subquery exposes the same column names (type, id, conversation_id,
// user_id, snippet, created_at) so the outer select resolves no matter which
// branches are present. ok is false when nothing is searchable.
func buildSearchSQL(q Query, limit, offset int) (countSQL, dataSQL string, args []any, ok bool) {
	pattern := "%" + q.Text + "%"
	args = []any{pattern}
	argN := 2

	var subQueries []string

	if (q.FilterType == "" || q.FilterType == ResultChannelMessage) && len(q.ChannelIDs) > 0 {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'channel_message'::text AS type, m.id, m.channel_id AS conversation_id,
				m.user_id AS user_id, m.content AS snippet, m.created_at
			FROM messages m
			WHERE m.content ILIKE $1 AND m.channel_id = ANY($%d)`, argN))
		args = append(args, q.ChannelIDs)
		argN++
	}

	if (q.FilterType == "" || q.FilterType == ResultDirectMessage) && len(q.ChatIDs) > 0 {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'direct_message'::text AS type, dm.id, dm.chat_id AS conversation_id,
				dm.sender_id AS user_id, dm.content AS snippet, dm.created_at
			FROM direct_messages dm
			WHERE dm.content ILIKE $1 AND dm.chat_id = ANY($%d)`, argN))
		args = append(args, q.ChatIDs)
		argN++
	}

	if len(subQueries) == 0 {
		return "", "", nil, false
	}

	union := strings.Join(subQueries, " UNION ALL ")

	countSQL = fmt.Sprintf("SELECT count(*) FROM (%s) sub", union)
	dataSQL = fmt.Sprintf(`SELECT type, id, conversation_id, user_id, snippet, created_at
		FROM (%s) sub
		ORDER BY created_at DESC
		LIMIT %d OFFSET %d`, union, limit, offset)
	return countSQL, dataSQL, args, true
}

// Search runs a UNION ALL over channel messages and direct messages, each
// limited to the caller's conversation ids carried in the query.
func (p *Pg) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	countSQL, dataSQL, args, ok := buildSearchSQL(q, limit, offset)
	if !ok {
		return nil, 0, nil
	}

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("search count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ, conversationID string
		if err := rows.Scan(&typ, &r.ID, &conversationID, &r.AuthorID, &r.Snippet, &r.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan search result: %w", err)
		}
		r.Type = ResultType(typ)
		if r.Type == ResultChannelMessage {
			r.ChannelID = conversationID
		} else {
			r.ChatID = conversationID
		}
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate search results: %w", err)
	}
	return results, total, nil
}
