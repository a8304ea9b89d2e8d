package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// UpsertUser inserts a user or refreshes the mutable profile fields in place.
func (s *PostgresStore) UpsertUser(ctx context.Context, user User) (User, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (id, username, email, full_name, image_url, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET username=EXCLUDED.username, email=EXCLUDED.email, full_name=EXCLUDED.full_name,
		    image_url=EXCLUDED.image_url, updated_at=NOW()
		RETURNING id, username, email, full_name, COALESCE(image_url, ''), created_at, updated_at
	`, user.ID, user.Username, user.Email, user.FullName, nullable(user.ImageURL), user.PasswordHash).Scan(
		&user.ID, &user.Username, &user.Email, &user.FullName, &user.ImageURL, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return User{}, fmt.Errorf("upsert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, full_name, COALESCE(image_url, ''), password_hash, created_at, updated_at
		FROM users WHERE id=$1
	`, userID).Scan(&user.ID, &user.Username, &user.Email, &user.FullName, &user.ImageURL, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, username, email, full_name, COALESCE(image_url, ''), password_hash, created_at, updated_at
		FROM users WHERE email=$1
	`, email).Scan(&user.ID, &user.Username, &user.Email, &user.FullName, &user.ImageURL, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// GetUsersByID batch-fetches users for the view synchronizer's author lookups.
func (s *PostgresStore) GetUsersByID(ctx context.Context, userIDs []string) ([]User, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, email, full_name, COALESCE(image_url, ''), created_at, updated_at
		FROM users WHERE id = ANY($1)
	`, userIDs)
	if err != nil {
		return nil, fmt.Errorf("batch users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0, len(userIDs))
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Username, &user.Email, &user.FullName, &user.ImageURL, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

// SearchUsers matches username, full name, or email by substring.
func (s *PostgresStore) SearchUsers(ctx context.Context, query string, limit int) ([]User, error) {
	pattern := "%" + query + "%"
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, username, email, full_name, COALESCE(image_url, ''), created_at, updated_at
		FROM users
		WHERE username ILIKE $1 OR full_name ILIKE $1 OR email ILIKE $1
		ORDER BY username
		LIMIT $2
	`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Username, &user.Email, &user.FullName, &user.ImageURL, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return users, nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, userID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id=$1`, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateWorkspace(ctx context.Context, ws Workspace, memberIDs []string) (Workspace, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Workspace{}, fmt.Errorf("begin create workspace: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO workspaces (id, name, description, type, creator_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, name, COALESCE(description, ''), type, creator_id, created_at, updated_at
	`, ws.ID, ws.Name, nullable(ws.Description), ws.Type, ws.CreatorID).Scan(
		&ws.ID, &ws.Name, &ws.Description, &ws.Type, &ws.CreatorID, &ws.CreatedAt, &ws.UpdatedAt,
	)
	if err != nil {
		return Workspace{}, fmt.Errorf("insert workspace: %w", err)
	}

	for _, userID := range memberIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO workspace_members (workspace_id, user_id)
			VALUES ($1, $2)
			ON CONFLICT (workspace_id, user_id) DO NOTHING
		`, ws.ID, userID); err != nil {
			return Workspace{}, fmt.Errorf("insert workspace member: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Workspace{}, fmt.Errorf("commit create workspace: %w", err)
	}
	return ws, nil
}

func (s *PostgresStore) GetWorkspace(ctx context.Context, workspaceID string) (Workspace, error) {
	var ws Workspace
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(description, ''), type, creator_id, created_at, updated_at
		FROM workspaces WHERE id=$1
	`, workspaceID).Scan(&ws.ID, &ws.Name, &ws.Description, &ws.Type, &ws.CreatorID, &ws.CreatedAt, &ws.UpdatedAt)
	if err != nil {
		return Workspace{}, err
	}
	return ws, nil
}

// ListUserWorkspaces returns public workspaces plus any the user belongs to.
func (s *PostgresStore) ListUserWorkspaces(ctx context.Context, userID string) ([]Workspace, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT w.id, w.name, COALESCE(w.description, ''), w.type, w.creator_id, w.created_at, w.updated_at
		FROM workspaces w
		LEFT JOIN workspace_members wm ON wm.workspace_id = w.id AND wm.user_id = $1
		WHERE w.type = 'public' OR wm.user_id = $1
		ORDER BY w.name
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list workspaces: %w", err)
	}
	defer rows.Close()
	return scanWorkspaces(rows)
}

func (s *PostgresStore) JoinWorkspace(ctx context.Context, workspaceID, userID string) (WorkspaceMember, error) {
	var member WorkspaceMember
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO workspace_members (workspace_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (workspace_id, user_id) DO UPDATE SET user_id=EXCLUDED.user_id
		RETURNING id, workspace_id, user_id, created_at
	`, workspaceID, userID).Scan(&member.ID, &member.WorkspaceID, &member.UserID, &member.CreatedAt)
	if err != nil {
		return WorkspaceMember{}, fmt.Errorf("join workspace: %w", err)
	}
	return member, nil
}

func (s *PostgresStore) IsWorkspaceMember(ctx context.Context, workspaceID, userID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM workspace_members WHERE workspace_id=$1 AND user_id=$2)
	`, workspaceID, userID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check workspace member: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM workspaces WHERE id=$1`, workspaceID); err != nil {
		return fmt.Errorf("delete workspace: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateChannel(ctx context.Context, channel Channel, memberIDs []string) (Channel, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Channel{}, fmt.Errorf("begin create channel: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO channels (id, workspace_id, name, description, type, creator_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, workspace_id, name, COALESCE(description, ''), type, creator_id, created_at, updated_at
	`, channel.ID, channel.WorkspaceID, channel.Name, nullable(channel.Description), channel.Type, channel.CreatorID).Scan(
		&channel.ID, &channel.WorkspaceID, &channel.Name, &channel.Description, &channel.Type, &channel.CreatorID, &channel.CreatedAt, &channel.UpdatedAt,
	)
	if err != nil {
		return Channel{}, fmt.Errorf("insert channel: %w", err)
	}

	for _, userID := range memberIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO channel_members (channel_id, user_id)
			VALUES ($1, $2)
			ON CONFLICT (channel_id, user_id) DO NOTHING
		`, channel.ID, userID); err != nil {
			return Channel{}, fmt.Errorf("insert channel member: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Channel{}, fmt.Errorf("commit create channel: %w", err)
	}
	return channel, nil
}

func (s *PostgresStore) GetChannel(ctx context.Context, channelID string) (Channel, error) {
	var channel Channel
	err := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, name, COALESCE(description, ''), type, creator_id, created_at, updated_at
		FROM channels WHERE id=$1
	`, channelID).Scan(&channel.ID, &channel.WorkspaceID, &channel.Name, &channel.Description, &channel.Type, &channel.CreatorID, &channel.CreatedAt, &channel.UpdatedAt)
	if err != nil {
		return Channel{}, err
	}
	return channel, nil
}

// ListUserChannels returns the channels visible to a user in one workspace:
// every public channel plus private channels the user is a member of.
func (s *PostgresStore) ListUserChannels(ctx context.Context, workspaceID, userID string) ([]Channel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT c.id, c.workspace_id, c.name, COALESCE(c.description, ''), c.type, c.creator_id, c.created_at, c.updated_at
		FROM channels c
		LEFT JOIN channel_members cm ON cm.channel_id = c.id AND cm.user_id = $2
		WHERE c.workspace_id = $1 AND (c.type = 'public' OR cm.user_id = $2)
		ORDER BY c.name
	`, workspaceID, userID)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	defer rows.Close()

	channels := make([]Channel, 0)
	for rows.Next() {
		var channel Channel
		if err := rows.Scan(&channel.ID, &channel.WorkspaceID, &channel.Name, &channel.Description, &channel.Type, &channel.CreatorID, &channel.CreatedAt, &channel.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		channels = append(channels, channel)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channels: %w", err)
	}
	return channels, nil
}

func (s *PostgresStore) AddChannelMember(ctx context.Context, channelID, userID string) (ChannelMember, error) {
	var member ChannelMember
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO channel_members (channel_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (channel_id, user_id) DO UPDATE SET user_id=EXCLUDED.user_id
		RETURNING id, channel_id, user_id, created_at
	`, channelID, userID).Scan(&member.ID, &member.ChannelID, &member.UserID, &member.CreatedAt)
	if err != nil {
		return ChannelMember{}, fmt.Errorf("add channel member: %w", err)
	}
	return member, nil
}

func (s *PostgresStore) IsChannelVisible(ctx context.Context, channelID, userID string) (bool, error) {
	var visible bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM channels c
			LEFT JOIN channel_members cm ON cm.channel_id = c.id AND cm.user_id = $2
			WHERE c.id = $1 AND (c.type = 'public' OR cm.user_id = $2)
		)
	`, channelID, userID).Scan(&visible)
	if err != nil {
		return false, fmt.Errorf("check channel visibility: %w", err)
	}
	return visible, nil
}

func (s *PostgresStore) DeleteChannel(ctx context.Context, channelID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE id=$1`, channelID); err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	return nil
}

// FindDirectChat checks both orderings of the user pair.
func (s *PostgresStore) FindDirectChat(ctx context.Context, workspaceID, user1ID, user2ID string) (*DirectChat, error) {
	var chat DirectChat
	err := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, user1_id, user2_id, created_at, updated_at
		FROM direct_chats
		WHERE workspace_id=$1
		  AND ((user1_id=$2 AND user2_id=$3) OR (user1_id=$3 AND user2_id=$2))
	`, workspaceID, user1ID, user2ID).Scan(&chat.ID, &chat.WorkspaceID, &chat.User1ID, &chat.User2ID, &chat.CreatedAt, &chat.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find direct chat: %w", err)
	}
	return &chat, nil
}

func (s *PostgresStore) InsertDirectChat(ctx context.Context, chat DirectChat) (DirectChat, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO direct_chats (id, workspace_id, user1_id, user2_id)
		VALUES ($1, $2, $3, $4)
		RETURNING id, workspace_id, user1_id, user2_id, created_at, updated_at
	`, chat.ID, chat.WorkspaceID, chat.User1ID, chat.User2ID).Scan(
		&chat.ID, &chat.WorkspaceID, &chat.User1ID, &chat.User2ID, &chat.CreatedAt, &chat.UpdatedAt,
	)
	if err != nil {
		return DirectChat{}, fmt.Errorf("insert direct chat: %w", err)
	}
	return chat, nil
}

func (s *PostgresStore) GetDirectChat(ctx context.Context, chatID string) (DirectChat, error) {
	var chat DirectChat
	err := s.db.QueryRowContext(ctx, `
		SELECT id, workspace_id, user1_id, user2_id, created_at, updated_at
		FROM direct_chats WHERE id=$1
	`, chatID).Scan(&chat.ID, &chat.WorkspaceID, &chat.User1ID, &chat.User2ID, &chat.CreatedAt, &chat.UpdatedAt)
	if err != nil {
		return DirectChat{}, err
	}
	return chat, nil
}

func (s *PostgresStore) ListUserDirectChats(ctx context.Context, workspaceID, userID string) ([]DirectChat, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, workspace_id, user1_id, user2_id, created_at, updated_at
		FROM direct_chats
		WHERE workspace_id=$1 AND (user1_id=$2 OR user2_id=$2)
		ORDER BY updated_at DESC
	`, workspaceID, userID)
	if err != nil {
		return nil, fmt.Errorf("list direct chats: %w", err)
	}
	defer rows.Close()

	chats := make([]DirectChat, 0)
	for rows.Next() {
		var chat DirectChat
		if err := rows.Scan(&chat.ID, &chat.WorkspaceID, &chat.User1ID, &chat.User2ID, &chat.CreatedAt, &chat.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan direct chat: %w", err)
		}
		chats = append(chats, chat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate direct chats: %w", err)
	}
	return chats, nil
}

func scanWorkspaces(rows *sql.Rows) ([]Workspace, error) {
	items := make([]Workspace, 0)
	for rows.Next() {
		var ws Workspace
		if err := rows.Scan(&ws.ID, &ws.Name, &ws.Description, &ws.Type, &ws.CreatorID, &ws.CreatedAt, &ws.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan workspace: %w", err)
		}
		items = append(items, ws)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate workspaces: %w", err)
	}
	return items, nil
}

func nullable(value string) any {
	if value == "" {
		return nil
	}
	return value
}
