package store

import (
	"context"
	"database/sql"
	"fmt"
)

// InsertMessage writes a channel message. When attachment metadata is supplied
// the attachment row is linked in the same transaction, so a failed link never
// leaves a message silently missing its file.
func (s *PostgresStore) InsertMessage(ctx context.Context, msg Message, attachment *Attachment) (Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, fmt.Errorf("begin insert message: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted, err := insertMessageTx(ctx, tx, msg)
	if err != nil {
		return Message{}, err
	}

	if attachment != nil {
		attachment.MessageID = &inserted.ID
		if err := insertAttachmentTx(ctx, tx, *attachment); err != nil {
			return Message{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return Message{}, fmt.Errorf("commit insert message: %w", err)
	}
	inserted.Reactions = Reactions{}
	return inserted, nil
}

// InsertThreadMessage writes a reply and bumps the parent's reply_count by one
// atomic column increment inside the same transaction.
func (s *PostgresStore) InsertThreadMessage(ctx context.Context, msg Message, attachment *Attachment) (Message, error) {
	if msg.ParentID == nil {
		return Message{}, fmt.Errorf("thread message requires parent id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, fmt.Errorf("begin insert reply: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted, err := insertMessageTx(ctx, tx, msg)
	if err != nil {
		return Message{}, err
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE messages SET reply_count = reply_count + 1, updated_at = NOW() WHERE id=$1
	`, *msg.ParentID)
	if err != nil {
		return Message{}, fmt.Errorf("increment reply count: %w", err)
	}
	if affected, err := result.RowsAffected(); err != nil {
		return Message{}, fmt.Errorf("increment reply count rows: %w", err)
	} else if affected == 0 {
		return Message{}, sql.ErrNoRows
	}

	if attachment != nil {
		attachment.MessageID = &inserted.ID
		if err := insertAttachmentTx(ctx, tx, *attachment); err != nil {
			return Message{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return Message{}, fmt.Errorf("commit insert reply: %w", err)
	}
	inserted.Reactions = Reactions{}
	return inserted, nil
}

func insertMessageTx(ctx context.Context, tx *sql.Tx, msg Message) (Message, error) {
	err := tx.QueryRowContext(ctx, `
		INSERT INTO messages (id, channel_id, user_id, content, file_name, file_url, parent_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, channel_id, user_id, content, COALESCE(file_name, ''), COALESCE(file_url, ''),
		          parent_id, reply_count, created_at, updated_at
	`, msg.ID, msg.ChannelID, msg.UserID, msg.Content, nullable(msg.FileName), nullable(msg.FileURL), msg.ParentID).Scan(
		&msg.ID, &msg.ChannelID, &msg.UserID, &msg.Content, &msg.FileName, &msg.FileURL,
		&msg.ParentID, &msg.ReplyCount, &msg.CreatedAt, &msg.UpdatedAt,
	)
	if err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}

	if err := tx.QueryRowContext(ctx, `SELECT username FROM users WHERE id=$1`, msg.UserID).Scan(&msg.Username); err != nil {
		return Message{}, fmt.Errorf("resolve author: %w", err)
	}
	return msg, nil
}

// ListChannelMessages returns the top-level snapshot for a channel: ascending
// by creation time, capped by limit, with the author's username joined in.
func (s *PostgresStore) ListChannelMessages(ctx context.Context, channelID string, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.channel_id, m.user_id, u.username, m.content,
		       COALESCE(m.file_name, ''), COALESCE(m.file_url, ''),
		       m.parent_id, m.reply_count, m.created_at, m.updated_at
		FROM messages m
		JOIN users u ON u.id = m.user_id
		WHERE m.channel_id=$1 AND m.parent_id IS NULL
		ORDER BY m.created_at ASC
		LIMIT $2
	`, channelID, limit)
	if err != nil {
		return nil, fmt.Errorf("list channel messages: %w", err)
	}
	defer rows.Close()
	return s.scanMessagesWithReactions(ctx, rows)
}

// ListThreadMessages returns every reply under a parent, oldest first.
func (s *PostgresStore) ListThreadMessages(ctx context.Context, parentID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT m.id, m.channel_id, m.user_id, u.username, m.content,
		       COALESCE(m.file_name, ''), COALESCE(m.file_url, ''),
		       m.parent_id, m.reply_count, m.created_at, m.updated_at
		FROM messages m
		JOIN users u ON u.id = m.user_id
		WHERE m.parent_id=$1
		ORDER BY m.created_at ASC
	`, parentID)
	if err != nil {
		return nil, fmt.Errorf("list thread messages: %w", err)
	}
	defer rows.Close()
	return s.scanMessagesWithReactions(ctx, rows)
}

func (s *PostgresStore) GetMessage(ctx context.Context, messageID string) (Message, error) {
	var msg Message
	err := s.db.QueryRowContext(ctx, `
		SELECT m.id, m.channel_id, m.user_id, u.username, m.content,
		       COALESCE(m.file_name, ''), COALESCE(m.file_url, ''),
		       m.parent_id, m.reply_count, m.created_at, m.updated_at
		FROM messages m
		JOIN users u ON u.id = m.user_id
		WHERE m.id=$1
	`, messageID).Scan(
		&msg.ID, &msg.ChannelID, &msg.UserID, &msg.Username, &msg.Content, &msg.FileName, &msg.FileURL,
		&msg.ParentID, &msg.ReplyCount, &msg.CreatedAt, &msg.UpdatedAt,
	)
	if err != nil {
		return Message{}, err
	}
	reactions, err := s.messageReactions(ctx, "message_reactions", "message_id", []string{msg.ID})
	if err != nil {
		return Message{}, err
	}
	msg.Reactions = reactions[msg.ID]
	if msg.Reactions == nil {
		msg.Reactions = Reactions{}
	}
	return msg, nil
}

func (s *PostgresStore) DeleteMessage(ctx context.Context, messageID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id=$1`, messageID)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ToggleMessageReaction removes the reaction row if present, inserts it
// otherwise. The unique primary key makes concurrent toggles converge instead
// of losing updates the way a read-modify-write map would.
func (s *PostgresStore) ToggleMessageReaction(ctx context.Context, messageID, userID, emoji string) (Message, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM message_reactions
		WHERE message_id=$1 AND user_id=$2 AND emoji=$3
	`, messageID, userID, emoji)
	if err != nil {
		return Message{}, fmt.Errorf("delete message reaction: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return Message{}, fmt.Errorf("delete message reaction rows: %w", err)
	}
	if affected == 0 {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO message_reactions (message_id, user_id, emoji)
			VALUES ($1, $2, $3)
			ON CONFLICT (message_id, user_id, emoji) DO NOTHING
		`, messageID, userID, emoji); err != nil {
			return Message{}, fmt.Errorf("insert message reaction: %w", err)
		}
	}
	return s.GetMessage(ctx, messageID)
}

func (s *PostgresStore) scanMessagesWithReactions(ctx context.Context, rows *sql.Rows) ([]Message, error) {
	messages := make([]Message, 0)
	ids := make([]string, 0)
	for rows.Next() {
		var msg Message
		if err := rows.Scan(
			&msg.ID, &msg.ChannelID, &msg.UserID, &msg.Username, &msg.Content, &msg.FileName, &msg.FileURL,
			&msg.ParentID, &msg.ReplyCount, &msg.CreatedAt, &msg.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Reactions = Reactions{}
		messages = append(messages, msg)
		ids = append(ids, msg.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	reactions, err := s.messageReactions(ctx, "message_reactions", "message_id", ids)
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

// messageReactions aggregates reaction rows back into the emoji -> user ids
// map shape the API exposes. Emoji keys never appear with empty lists because
// rows are deleted outright.
func (s *PostgresStore) messageReactions(ctx context.Context, table, column string, ids []string) (map[string]Reactions, error) {
	byMessage := make(map[string]Reactions)
	if len(ids) == 0 {
		return byMessage, nil
	}

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s, emoji, user_id
		FROM %s
		WHERE %s = ANY($1)
		ORDER BY created_at ASC
	`, column, table, column), ids)
	if err != nil {
		return nil, fmt.Errorf("list reactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var messageID, emoji, userID string
		if err := rows.Scan(&messageID, &emoji, &userID); err != nil {
			return nil, fmt.Errorf("scan reaction: %w", err)
		}
		if byMessage[messageID] == nil {
			byMessage[messageID] = Reactions{}
		}
		byMessage[messageID][emoji] = append(byMessage[messageID][emoji], userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reactions: %w", err)
	}
	return byMessage, nil
}

func insertAttachmentTx(ctx context.Context, tx *sql.Tx, attachment Attachment) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO attachments (id, message_id, direct_message_id, user_id, name, object_key, size, mime_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, attachment.ID, attachment.MessageID, attachment.DirectMessageID, attachment.UserID,
		attachment.Name, attachment.ObjectKey, attachment.Size, attachment.MimeType)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAttachment(ctx context.Context, attachmentID string) (Attachment, error) {
	var att Attachment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, message_id, direct_message_id, user_id, name, object_key, size, mime_type, created_at
		FROM attachments WHERE id=$1
	`, attachmentID).Scan(
		&att.ID, &att.MessageID, &att.DirectMessageID, &att.UserID, &att.Name, &att.ObjectKey, &att.Size, &att.MimeType, &att.CreatedAt,
	)
	if err != nil {
		return Attachment{}, err
	}
	return att, nil
}

func (s *PostgresStore) ListMessageAttachments(ctx context.Context, messageID string) ([]Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, direct_message_id, user_id, name, object_key, size, mime_type, created_at
		FROM attachments WHERE message_id=$1 ORDER BY created_at ASC
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	items := make([]Attachment, 0)
	for rows.Next() {
		var att Attachment
		if err := rows.Scan(&att.ID, &att.MessageID, &att.DirectMessageID, &att.UserID, &att.Name, &att.ObjectKey, &att.Size, &att.MimeType, &att.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		items = append(items, att)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attachments: %w", err)
	}
	return items, nil
}
