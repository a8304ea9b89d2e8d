package store

import (
	"context"
	"database/sql"
	"fmt"
)

func (s *PostgresStore) InsertDirectMessage(ctx context.Context, msg DirectMessage, attachment *Attachment) (DirectMessage, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return DirectMessage{}, fmt.Errorf("begin insert direct message: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted, err := insertDirectMessageTx(ctx, tx, msg)
	if err != nil {
		return DirectMessage{}, err
	}

	if attachment != nil {
		attachment.DirectMessageID = &inserted.ID
		if err := insertAttachmentTx(ctx, tx, *attachment); err != nil {
			return DirectMessage{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return DirectMessage{}, fmt.Errorf("commit insert direct message: %w", err)
	}
	inserted.Reactions = Reactions{}
	return inserted, nil
}

func (s *PostgresStore) InsertDirectThreadMessage(ctx context.Context, msg DirectMessage, attachment *Attachment) (DirectMessage, error) {
	if msg.ParentID == nil {
		return DirectMessage{}, fmt.Errorf("thread message requires parent id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return DirectMessage{}, fmt.Errorf("begin insert direct reply: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted, err := insertDirectMessageTx(ctx, tx, msg)
	if err != nil {
		return DirectMessage{}, err
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE direct_messages SET reply_count = reply_count + 1, updated_at = NOW() WHERE id=$1
	`, *msg.ParentID)
	if err != nil {
		return DirectMessage{}, fmt.Errorf("increment reply count: %w", err)
	}
	if affected, err := result.RowsAffected(); err != nil {
		return DirectMessage{}, fmt.Errorf("increment reply count rows: %w", err)
	} else if affected == 0 {
		return DirectMessage{}, sql.ErrNoRows
	}

	if attachment != nil {
		attachment.DirectMessageID = &inserted.ID
		if err := insertAttachmentTx(ctx, tx, *attachment); err != nil {
			return DirectMessage{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return DirectMessage{}, fmt.Errorf("commit insert direct reply: %w", err)
	}
	inserted.Reactions = Reactions{}
	return inserted, nil
}

func insertDirectMessageTx(ctx context.Context, tx *sql.Tx, msg DirectMessage) (DirectMessage, error) {
	err := tx.QueryRowContext(ctx, `
		INSERT INTO direct_messages (id, chat_id, sender_id, content, file_name, file_url, parent_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, chat_id, sender_id, content, COALESCE(file_name, ''), COALESCE(file_url, ''),
		          parent_id, reply_count, created_at, updated_at
	`, msg.ID, msg.ChatID, msg.SenderID, msg.Content, nullable(msg.FileName), nullable(msg.FileURL), msg.ParentID).Scan(
		&msg.ID, &msg.ChatID, &msg.SenderID, &msg.Content, &msg.FileName, &msg.FileURL,
		&msg.ParentID, &msg.ReplyCount, &msg.CreatedAt, &msg.UpdatedAt,
	)
	if err != nil {
		return DirectMessage{}, fmt.Errorf("insert direct message: %w", err)
	}

	if err := tx.QueryRowContext(ctx, `SELECT username FROM users WHERE id=$1`, msg.SenderID).Scan(&msg.Username); err != nil {
		return DirectMessage{}, fmt.Errorf("resolve sender: %w", err)
	}
	return msg, nil
}

func (s *PostgresStore) ListChatMessages(ctx context.Context, chatID string, limit int) ([]DirectMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT dm.id, dm.chat_id, dm.sender_id, u.username, dm.content,
		       COALESCE(dm.file_name, ''), COALESCE(dm.file_url, ''),
		       dm.parent_id, dm.reply_count, dm.created_at, dm.updated_at
		FROM direct_messages dm
		JOIN users u ON u.id = dm.sender_id
		WHERE dm.chat_id=$1 AND dm.parent_id IS NULL
		ORDER BY dm.created_at ASC
		LIMIT $2
	`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("list chat messages: %w", err)
	}
	defer rows.Close()
	return s.scanDirectMessagesWithReactions(ctx, rows)
}

func (s *PostgresStore) ListDirectThreadMessages(ctx context.Context, parentID string) ([]DirectMessage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT dm.id, dm.chat_id, dm.sender_id, u.username, dm.content,
		       COALESCE(dm.file_name, ''), COALESCE(dm.file_url, ''),
		       dm.parent_id, dm.reply_count, dm.created_at, dm.updated_at
		FROM direct_messages dm
		JOIN users u ON u.id = dm.sender_id
		WHERE dm.parent_id=$1
		ORDER BY dm.created_at ASC
	`, parentID)
	if err != nil {
		return nil, fmt.Errorf("list direct thread messages: %w", err)
	}
	defer rows.Close()
	return s.scanDirectMessagesWithReactions(ctx, rows)
}

func (s *PostgresStore) GetDirectMessage(ctx context.Context, messageID string) (DirectMessage, error) {
	var msg DirectMessage
	err := s.db.QueryRowContext(ctx, `
		SELECT dm.id, dm.chat_id, dm.sender_id, u.username, dm.content,
		       COALESCE(dm.file_name, ''), COALESCE(dm.file_url, ''),
		       dm.parent_id, dm.reply_count, dm.created_at, dm.updated_at
		FROM direct_messages dm
		JOIN users u ON u.id = dm.sender_id
		WHERE dm.id=$1
	`, messageID).Scan(
		&msg.ID, &msg.ChatID, &msg.SenderID, &msg.Username, &msg.Content, &msg.FileName, &msg.FileURL,
		&msg.ParentID, &msg.ReplyCount, &msg.CreatedAt, &msg.UpdatedAt,
	)
	if err != nil {
		return DirectMessage{}, err
	}
	reactions, err := s.messageReactions(ctx, "direct_message_reactions", "direct_message_id", []string{msg.ID})
	if err != nil {
		return DirectMessage{}, err
	}
	msg.Reactions = reactions[msg.ID]
	if msg.Reactions == nil {
		msg.Reactions = Reactions{}
	}
	return msg, nil
}

func (s *PostgresStore) DeleteDirectMessage(ctx context.Context, messageID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM direct_messages WHERE id=$1`, messageID)
	if err != nil {
		return fmt.Errorf("delete direct message: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) ToggleDirectMessageReaction(ctx context.Context, messageID, userID, emoji string) (DirectMessage, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM direct_message_reactions
		WHERE direct_message_id=$1 AND user_id=$2 AND emoji=$3
	`, messageID, userID, emoji)
	if err != nil {
		return DirectMessage{}, fmt.Errorf("delete direct message reaction: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return DirectMessage{}, fmt.Errorf("delete direct message reaction rows: %w", err)
	}
	if affected == 0 {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO direct_message_reactions (direct_message_id, user_id, emoji)
			VALUES ($1, $2, $3)
			ON CONFLICT (direct_message_id, user_id, emoji) DO NOTHING
		`, messageID, userID, emoji); err != nil {
			return DirectMessage{}, fmt.Errorf("insert direct message reaction: %w", err)
		}
	}
	return s.GetDirectMessage(ctx, messageID)
}

func (s *PostgresStore) scanDirectMessagesWithReactions(ctx context.Context, rows *sql.Rows) ([]DirectMessage, error) {
	messages := make([]DirectMessage, 0)
	ids := make([]string, 0)
	for rows.Next() {
		var msg DirectMessage
		if err := rows.Scan(
			&msg.ID, &msg.ChatID, &msg.SenderID, &msg.Username, &msg.Content, &msg.FileName, &msg.FileURL,
			&msg.ParentID, &msg.ReplyCount, &msg.CreatedAt, &msg.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan direct message: %w", err)
		}
		msg.Reactions = Reactions{}
		messages = append(messages, msg)
		ids = append(ids, msg.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate direct messages: %w", err)
	}

	reactions, err := s.messageReactions(ctx, "direct_message_reactions", "direct_message_id", ids)
	if err != nil {
		return nil, err
	}
	for i := range messages {
		if r, ok := reactions[messages[i].ID]; ok {
			messages[i].Reactions = r
		}
	}
	return messages, nil
}
