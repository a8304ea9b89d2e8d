package feed

import (
	"encoding/json"
	"time"

	"teamchat/api/internal/store"
)

// Wire rows use the storage column naming; converting to and from them is the
// naming translation the consumers rely on.

type MessageRow struct {
	ID         string          `json:"id"`
	ChannelID  string          `json:"channel_id"`
	UserID     string          `json:"user_id"`
	Username   string          `json:"username,omitempty"`
	Content    string          `json:"content"`
	FileName   string          `json:"file_name,omitempty"`
	FileURL    string          `json:"file_url,omitempty"`
	Reactions  store.Reactions `json:"reactions"`
	ParentID   *string         `json:"parent_id"`
	ReplyCount int             `json:"reply_count"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func NewMessageRow(m store.Message) MessageRow {
	return MessageRow{
		ID: m.ID, ChannelID: m.ChannelID, UserID: m.UserID, Username: m.Username,
		Content: m.Content, FileName: m.FileName, FileURL: m.FileURL,
		Reactions: m.Reactions, ParentID: m.ParentID, ReplyCount: m.ReplyCount,
		CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

func (r MessageRow) Message() store.Message {
	reactions := r.Reactions
	if reactions == nil {
		reactions = store.Reactions{}
	}
	return store.Message{
		ID: r.ID, ChannelID: r.ChannelID, UserID: r.UserID, Username: r.Username,
		Content: r.Content, FileName: r.FileName, FileURL: r.FileURL,
		Reactions: reactions, ParentID: r.ParentID, ReplyCount: r.ReplyCount,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

type DirectMessageRow struct {
	ID         string          `json:"id"`
	ChatID     string          `json:"chat_id"`
	SenderID   string          `json:"sender_id"`
	Username   string          `json:"username,omitempty"`
	Content    string          `json:"content"`
	FileName   string          `json:"file_name,omitempty"`
	FileURL    string          `json:"file_url,omitempty"`
	Reactions  store.Reactions `json:"reactions"`
	ParentID   *string         `json:"parent_id"`
	ReplyCount int             `json:"reply_count"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

func NewDirectMessageRow(m store.DirectMessage) DirectMessageRow {
	return DirectMessageRow{
		ID: m.ID, ChatID: m.ChatID, SenderID: m.SenderID, Username: m.Username,
		Content: m.Content, FileName: m.FileName, FileURL: m.FileURL,
		Reactions: m.Reactions, ParentID: m.ParentID, ReplyCount: m.ReplyCount,
		CreatedAt: m.CreatedAt, UpdatedAt: m.UpdatedAt,
	}
}

func (r DirectMessageRow) DirectMessage() store.DirectMessage {
	reactions := r.Reactions
	if reactions == nil {
		reactions = store.Reactions{}
	}
	return store.DirectMessage{
		ID: r.ID, ChatID: r.ChatID, SenderID: r.SenderID, Username: r.Username,
		Content: r.Content, FileName: r.FileName, FileURL: r.FileURL,
		Reactions: reactions, ParentID: r.ParentID, ReplyCount: r.ReplyCount,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

type ChannelRow struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Type        string    `json:"type"`
	CreatorID   string    `json:"creator_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func NewChannelRow(c store.Channel) ChannelRow {
	return ChannelRow{
		ID: c.ID, WorkspaceID: c.WorkspaceID, Name: c.Name, Description: c.Description,
		Type: c.Type, CreatorID: c.CreatorID, CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
	}
}

func (r ChannelRow) Channel() store.Channel {
	return store.Channel{
		ID: r.ID, WorkspaceID: r.WorkspaceID, Name: r.Name, Description: r.Description,
		Type: r.Type, CreatorID: r.CreatorID, CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

type DirectChatRow struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspace_id"`
	User1ID     string    `json:"user1_id"`
	User2ID     string    `json:"user2_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func NewDirectChatRow(c store.DirectChat) DirectChatRow {
	return DirectChatRow{
		ID: c.ID, WorkspaceID: c.WorkspaceID, User1ID: c.User1ID, User2ID: c.User2ID,
		CreatedAt: c.CreatedAt, UpdatedAt: c.UpdatedAt,
	}
}

func (r DirectChatRow) DirectChat() store.DirectChat {
	return store.DirectChat{
		ID: r.ID, WorkspaceID: r.WorkspaceID, User1ID: r.User1ID, User2ID: r.User2ID,
		CreatedAt: r.CreatedAt, UpdatedAt: r.UpdatedAt,
	}
}

type PresenceRow struct {
	UserID      string    `json:"user_id"`
	Status      string    `json:"status"`
	StatusText  string    `json:"status_text,omitempty"`
	StatusEmoji string    `json:"status_emoji,omitempty"`
	LastSeen    time.Time `json:"last_seen"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func NewPresenceRow(p store.Presence) PresenceRow {
	return PresenceRow{
		UserID: p.UserID, Status: p.Status, StatusText: p.StatusText,
		StatusEmoji: p.StatusEmoji, LastSeen: p.LastSeen, UpdatedAt: p.UpdatedAt,
	}
}

func (r PresenceRow) Presence() store.Presence {
	return store.Presence{
		UserID: r.UserID, Status: r.Status, StatusText: r.StatusText,
		StatusEmoji: r.StatusEmoji, LastSeen: r.LastSeen, UpdatedAt: r.UpdatedAt,
	}
}

// MustRow marshals a wire row for publishing; rows are plain structs so a
// marshal failure is a programming error.
func MustRow(row any) json.RawMessage {
	payload, err := json.Marshal(row)
	if err != nil {
		panic(err)
	}
	return payload
}

// DecodeRow unmarshals an event payload row into a wire row type.
func DecodeRow(raw json.RawMessage, target any) error {
	return json.Unmarshal(raw, target)
}
