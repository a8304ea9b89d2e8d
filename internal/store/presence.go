package store

import (
	"context"
	"fmt"
)

// UpsertPresence creates the row as online on first write, updates in place
// afterwards. Status fields left empty keep their stored values.
func (s *PostgresStore) UpsertPresence(ctx context.Context, p Presence) (Presence, error) {
	status := p.Status
	if status == "" {
		status = "online"
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO presence (user_id, status, status_text, status_emoji, last_seen)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET status = CASE WHEN $5 THEN EXCLUDED.status ELSE presence.status END,
		    status_text = COALESCE(EXCLUDED.status_text, presence.status_text),
		    status_emoji = COALESCE(EXCLUDED.status_emoji, presence.status_emoji),
		    last_seen = NOW(),
		    updated_at = NOW()
		RETURNING user_id, status, COALESCE(status_text, ''), COALESCE(status_emoji, ''), last_seen, updated_at
	`, p.UserID, status, nullable(p.StatusText), nullable(p.StatusEmoji), p.Status != "").Scan(
		&p.UserID, &p.Status, &p.StatusText, &p.StatusEmoji, &p.LastSeen, &p.UpdatedAt,
	)
	if err != nil {
		return Presence{}, fmt.Errorf("upsert presence: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) GetPresence(ctx context.Context, userID string) (Presence, error) {
	var p Presence
	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, status, COALESCE(status_text, ''), COALESCE(status_emoji, ''), last_seen, updated_at
		FROM presence WHERE user_id=$1
	`, userID).Scan(&p.UserID, &p.Status, &p.StatusText, &p.StatusEmoji, &p.LastSeen, &p.UpdatedAt)
	if err != nil {
		return Presence{}, err
	}
	return p, nil
}

func (s *PostgresStore) GetPresences(ctx context.Context, userIDs []string) ([]Presence, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT user_id, status, COALESCE(status_text, ''), COALESCE(status_emoji, ''), last_seen, updated_at
		FROM presence WHERE user_id = ANY($1)
	`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("batch presence: %w", err)
	}
	defer rows.Close()

	items := make([]Presence, 0, len(userIDs))
	for rows.Next() {
		var p Presence
		if err := rows.Scan(&p.UserID, &p.Status, &p.StatusText, &p.StatusEmoji, &p.LastSeen, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan presence: %w", err)
		}
		items = append(items, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate presence: %w", err)
	}
	return items, nil
}
