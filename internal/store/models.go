package store

import "time"

type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullName,omitempty"`
	ImageURL     string    `json:"imageUrl,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type Workspace struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Type        string    `json:"type"`
	CreatorID   string    `json:"creatorId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type WorkspaceMember struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	UserID      string    `json:"userId"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Channel struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Type        string    `json:"type"`
	CreatorID   string    `json:"creatorId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type ChannelMember struct {
	ID        string    `json:"id"`
	ChannelID string    `json:"channelId"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

type DirectChat struct {
	ID          string    `json:"id"`
	WorkspaceID string    `json:"workspaceId"`
	User1ID     string    `json:"user1Id"`
	User2ID     string    `json:"user2Id"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Reactions maps an emoji to the ids of users who reacted with it. Keys with
// no reactors are never present.
type Reactions map[string][]string

// Message is a channel message. ParentID is set on thread replies; ReplyCount
// is the denormalized count of rows whose ParentID points here.
type Message struct {
	ID         string    `json:"id"`
	ChannelID  string    `json:"channelId"`
	UserID     string    `json:"userId"`
	Username   string    `json:"username,omitempty"`
	Content    string    `json:"content"`
	FileName   string    `json:"fileName,omitempty"`
	FileURL    string    `json:"fileUrl,omitempty"`
	Reactions  Reactions `json:"reactions"`
	ParentID   *string   `json:"parentId"`
	ReplyCount int       `json:"replyCount"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// DirectMessage mirrors Message for one-to-one chats.
type DirectMessage struct {
	ID         string    `json:"id"`
	ChatID     string    `json:"chatId"`
	SenderID   string    `json:"senderId"`
	Username   string    `json:"username,omitempty"`
	Content    string    `json:"content"`
	FileName   string    `json:"fileName,omitempty"`
	FileURL    string    `json:"fileUrl,omitempty"`
	Reactions  Reactions `json:"reactions"`
	ParentID   *string   `json:"parentId"`
	ReplyCount int       `json:"replyCount"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Attachment references exactly one of MessageID / DirectMessageID.
type Attachment struct {
	ID              string    `json:"id"`
	MessageID       *string   `json:"messageId"`
	DirectMessageID *string   `json:"directMessageId"`
	UserID          string    `json:"userId"`
	Name            string    `json:"name"`
	ObjectKey       string    `json:"objectKey"`
	Size            int64     `json:"size"`
	MimeType        string    `json:"mimeType"`
	CreatedAt       time.Time `json:"createdAt"`
}

type Presence struct {
	UserID      string    `json:"userId"`
	Status      string    `json:"status"`
	StatusText  string    `json:"statusText,omitempty"`
	StatusEmoji string    `json:"statusEmoji,omitempty"`
	LastSeen    time.Time `json:"lastSeen"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
