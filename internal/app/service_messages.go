package app

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"teamchat/api/internal/blob"
	"teamchat/api/internal/feed"
	"teamchat/api/internal/search"
	"teamchat/api/internal/store"
	"teamchat/api/internal/util"
)

// AttachmentInput carries file metadata supplied alongside a message. The
// object itself is uploaded first; the attachment row is written in the same
// transaction as its message.
type AttachmentInput struct {
	Name      string `json:"name"`
	ObjectKey string `json:"objectKey"`
	Size      int64  `json:"size"`
	MimeType  string `json:"mimeType"`
}

type SendMessageInput struct {
	Content    string           `json:"content"`
	Attachment *AttachmentInput `json:"attachment"`
}

// Channel messages

func (s *Service) SendMessage(ctx context.Context, sess Session, channelID string, input SendMessageInput) (store.Message, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" && input.Attachment == nil {
		return store.Message{}, validationError("message content is required")
	}
	if err := s.requireChannel(ctx, sess, channelID); err != nil {
		return store.Message{}, err
	}

	msg := store.Message{
		ID:        util.NewID(),
		ChannelID: channelID,
		UserID:    sess.UserID,
		Content:   content,
	}
	attachment, err := s.attachmentRow(sess, input.Attachment, &msg.FileName, &msg.FileURL)
	if err != nil {
		return store.Message{}, err
	}
	if attachment != nil {
		attachment.MessageID = &msg.ID
	}

	created, err := s.store.InsertMessage(ctx, msg, attachment)
	if err != nil {
		return store.Message{}, err
	}

	s.publish(ctx, feed.EventInsert, "messages", feed.NewMessageRow(created), nil)
	s.indexMessage(created)
	return created, nil
}

// SendThreadReply inserts a reply and bumps the parent's reply count in one
// transaction, then announces both rows on the feed.
func (s *Service) SendThreadReply(ctx context.Context, sess Session, parentID string, input SendMessageInput) (store.Message, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" && input.Attachment == nil {
		return store.Message{}, validationError("message content is required")
	}
	parent, err := s.store.GetMessage(ctx, parentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Message{}, notFoundError("Thread not found")
		}
		return store.Message{}, err
	}
	if parent.ParentID != nil {
		return store.Message{}, validationError("cannot reply to a thread reply")
	}
	if err := s.requireChannel(ctx, sess, parent.ChannelID); err != nil {
		return store.Message{}, err
	}

	msg := store.Message{
		ID:        util.NewID(),
		ChannelID: parent.ChannelID,
		UserID:    sess.UserID,
		Content:   content,
		ParentID:  &parentID,
	}
	attachment, err := s.attachmentRow(sess, input.Attachment, &msg.FileName, &msg.FileURL)
	if err != nil {
		return store.Message{}, err
	}
	if attachment != nil {
		attachment.MessageID = &msg.ID
	}

	reply, err := s.store.InsertThreadMessage(ctx, msg, attachment)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Message{}, notFoundError("Thread not found")
		}
		return store.Message{}, err
	}

	s.publish(ctx, feed.EventInsert, "messages", feed.NewMessageRow(reply), nil)
	if updatedParent, err := s.store.GetMessage(ctx, parentID); err == nil {
		s.publish(ctx, feed.EventUpdate, "messages", feed.NewMessageRow(updatedParent), feed.NewMessageRow(parent))
	}
	s.indexMessage(reply)
	return reply, nil
}

func (s *Service) ListMessages(ctx context.Context, sess Session, channelID string) ([]store.Message, error) {
	if err := s.requireChannel(ctx, sess, channelID); err != nil {
		return nil, err
	}
	return s.store.ListChannelMessages(ctx, channelID, topLevelLimit)
}

func (s *Service) ListThreadReplies(ctx context.Context, sess Session, parentID string) ([]store.Message, error) {
	parent, err := s.store.GetMessage(ctx, parentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFoundError("Thread not found")
		}
		return nil, err
	}
	if err := s.requireChannel(ctx, sess, parent.ChannelID); err != nil {
		return nil, err
	}
	return s.store.ListThreadMessages(ctx, parentID)
}

// DeleteMessage removes a message; replies, reactions, and attachment rows
// cascade in storage.
func (s *Service) DeleteMessage(ctx context.Context, sess Session, messageID string) error {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notFoundError("Message not found")
		}
		return err
	}
	if msg.UserID != sess.UserID {
		return forbiddenError("Only the author can delete a message")
	}
	if err := s.store.DeleteMessage(ctx, messageID); err != nil {
		return err
	}
	s.publish(ctx, feed.EventDelete, "messages", nil, feed.NewMessageRow(msg))
	if s.search != nil {
		s.search.DeleteMessage(messageID)
	}
	return nil
}

// ToggleReaction adds the caller's reaction if absent and removes it if
// present. The updated message carries the full reaction map; an emoji whose
// last reactor left is no longer a key.
func (s *Service) ToggleReaction(ctx context.Context, sess Session, messageID, emoji string) (store.Message, error) {
	if strings.TrimSpace(emoji) == "" {
		return store.Message{}, validationError("emoji is required")
	}
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Message{}, notFoundError("Message not found")
		}
		return store.Message{}, err
	}
	if err := s.requireChannel(ctx, sess, msg.ChannelID); err != nil {
		return store.Message{}, err
	}

	updated, err := s.store.ToggleMessageReaction(ctx, messageID, sess.UserID, emoji)
	if err != nil {
		return store.Message{}, err
	}
	s.publish(ctx, feed.EventUpdate, "messages", feed.NewMessageRow(updated), feed.NewMessageRow(msg))
	return updated, nil
}

// Direct messages

func (s *Service) SendDirectMessage(ctx context.Context, sess Session, chatID string, input SendMessageInput) (store.DirectMessage, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" && input.Attachment == nil {
		return store.DirectMessage{}, validationError("message content is required")
	}
	if _, err := s.getVisibleChat(ctx, sess, chatID); err != nil {
		return store.DirectMessage{}, err
	}

	msg := store.DirectMessage{
		ID:       util.NewID(),
		ChatID:   chatID,
		SenderID: sess.UserID,
		Content:  content,
	}
	attachment, err := s.attachmentRow(sess, input.Attachment, &msg.FileName, &msg.FileURL)
	if err != nil {
		return store.DirectMessage{}, err
	}
	if attachment != nil {
		attachment.DirectMessageID = &msg.ID
	}

	created, err := s.store.InsertDirectMessage(ctx, msg, attachment)
	if err != nil {
		return store.DirectMessage{}, err
	}

	s.publish(ctx, feed.EventInsert, "direct_messages", feed.NewDirectMessageRow(created), nil)
	s.indexDirectMessage(created)
	return created, nil
}

func (s *Service) SendDirectThreadReply(ctx context.Context, sess Session, parentID string, input SendMessageInput) (store.DirectMessage, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" && input.Attachment == nil {
		return store.DirectMessage{}, validationError("message content is required")
	}
	parent, err := s.store.GetDirectMessage(ctx, parentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.DirectMessage{}, notFoundError("Thread not found")
		}
		return store.DirectMessage{}, err
	}
	if parent.ParentID != nil {
		return store.DirectMessage{}, validationError("cannot reply to a thread reply")
	}
	if _, err := s.getVisibleChat(ctx, sess, parent.ChatID); err != nil {
		return store.DirectMessage{}, err
	}

	msg := store.DirectMessage{
		ID:       util.NewID(),
		ChatID:   parent.ChatID,
		SenderID: sess.UserID,
		Content:  content,
		ParentID: &parentID,
	}
	attachment, err := s.attachmentRow(sess, input.Attachment, &msg.FileName, &msg.FileURL)
	if err != nil {
		return store.DirectMessage{}, err
	}
	if attachment != nil {
		attachment.DirectMessageID = &msg.ID
	}

	reply, err := s.store.InsertDirectThreadMessage(ctx, msg, attachment)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.DirectMessage{}, notFoundError("Thread not found")
		}
		return store.DirectMessage{}, err
	}

	s.publish(ctx, feed.EventInsert, "direct_messages", feed.NewDirectMessageRow(reply), nil)
	if updatedParent, err := s.store.GetDirectMessage(ctx, parentID); err == nil {
		s.publish(ctx, feed.EventUpdate, "direct_messages", feed.NewDirectMessageRow(updatedParent), feed.NewDirectMessageRow(parent))
	}
	s.indexDirectMessage(reply)
	return reply, nil
}

func (s *Service) ListDirectMessages(ctx context.Context, sess Session, chatID string) ([]store.DirectMessage, error) {
	if _, err := s.getVisibleChat(ctx, sess, chatID); err != nil {
		return nil, err
	}
	return s.store.ListChatMessages(ctx, chatID, topLevelLimit)
}

func (s *Service) ListDirectThreadReplies(ctx context.Context, sess Session, parentID string) ([]store.DirectMessage, error) {
	parent, err := s.store.GetDirectMessage(ctx, parentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFoundError("Thread not found")
		}
		return nil, err
	}
	if _, err := s.getVisibleChat(ctx, sess, parent.ChatID); err != nil {
		return nil, err
	}
	return s.store.ListDirectThreadMessages(ctx, parentID)
}

func (s *Service) DeleteDirectMessage(ctx context.Context, sess Session, messageID string) error {
	msg, err := s.store.GetDirectMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notFoundError("Message not found")
		}
		return err
	}
	if msg.SenderID != sess.UserID {
		return forbiddenError("Only the author can delete a message")
	}
	if err := s.store.DeleteDirectMessage(ctx, messageID); err != nil {
		return err
	}
	s.publish(ctx, feed.EventDelete, "direct_messages", nil, feed.NewDirectMessageRow(msg))
	if s.search != nil {
		s.search.DeleteMessage(messageID)
	}
	return nil
}

func (s *Service) ToggleDirectReaction(ctx context.Context, sess Session, messageID, emoji string) (store.DirectMessage, error) {
	if strings.TrimSpace(emoji) == "" {
		return store.DirectMessage{}, validationError("emoji is required")
	}
	msg, err := s.store.GetDirectMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.DirectMessage{}, notFoundError("Message not found")
		}
		return store.DirectMessage{}, err
	}
	if _, err := s.getVisibleChat(ctx, sess, msg.ChatID); err != nil {
		return store.DirectMessage{}, err
	}

	updated, err := s.store.ToggleDirectMessageReaction(ctx, messageID, sess.UserID, emoji)
	if err != nil {
		return store.DirectMessage{}, err
	}
	s.publish(ctx, feed.EventUpdate, "direct_messages", feed.NewDirectMessageRow(updated), feed.NewDirectMessageRow(msg))
	return updated, nil
}

// Attachments

type UploadResult struct {
	ObjectKey string `json:"objectKey"`
	Name      string `json:"name"`
	URL       string `json:"url"`
}

// Upload stores a file object and returns the key to reference from a
// message, plus a signed URL for immediate display.
func (s *Service) Upload(ctx context.Context, sess Session, fileName, contentType string, size int64, reader io.Reader) (UploadResult, error) {
	if s.blob == nil {
		return UploadResult{}, domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "File storage not configured", nil)
	}
	if strings.TrimSpace(fileName) == "" {
		return UploadResult{}, validationError("file name is required")
	}

	key := blob.ObjectKey(sess.UserID, fileName)
	if err := s.blob.Upload(ctx, key, reader, size, contentType); err != nil {
		return UploadResult{}, err
	}
	url, err := s.blob.SignedURL(ctx, key)
	if err != nil {
		return UploadResult{}, err
	}
	return UploadResult{ObjectKey: key, Name: fileName, URL: url}, nil
}

// AttachmentURL re-signs a download URL for an attachment the caller can see.
// Links expire after an hour, so clients call this again as needed.
func (s *Service) AttachmentURL(ctx context.Context, sess Session, attachmentID string) (string, error) {
	if s.blob == nil {
		return "", domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "File storage not configured", nil)
	}
	attachment, err := s.store.GetAttachment(ctx, attachmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", notFoundError("Attachment not found")
		}
		return "", err
	}

	switch {
	case attachment.MessageID != nil:
		msg, err := s.store.GetMessage(ctx, *attachment.MessageID)
		if err != nil {
			return "", err
		}
		if err := s.requireChannel(ctx, sess, msg.ChannelID); err != nil {
			return "", err
		}
	case attachment.DirectMessageID != nil:
		msg, err := s.store.GetDirectMessage(ctx, *attachment.DirectMessageID)
		if err != nil {
			return "", err
		}
		if _, err := s.getVisibleChat(ctx, sess, msg.ChatID); err != nil {
			return "", err
		}
	default:
		return "", notFoundError("Attachment not found")
	}

	return s.blob.SignedURL(ctx, attachment.ObjectKey)
}

func (s *Service) ListAttachments(ctx context.Context, sess Session, messageID string) ([]store.Attachment, error) {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFoundError("Message not found")
		}
		return nil, err
	}
	if err := s.requireChannel(ctx, sess, msg.ChannelID); err != nil {
		return nil, err
	}
	return s.store.ListMessageAttachments(ctx, messageID)
}

// helpers

func (s *Service) requireChannel(ctx context.Context, sess Session, channelID string) error {
	visible, err := s.store.IsChannelVisible(ctx, channelID, sess.UserID)
	if err != nil {
		return err
	}
	if !visible {
		return forbiddenError("Not a channel member")
	}
	return nil
}

func (s *Service) attachmentRow(sess Session, input *AttachmentInput, fileName, fileURL *string) (*store.Attachment, error) {
	if input == nil {
		return nil, nil
	}
	if input.ObjectKey == "" || input.Name == "" {
		return nil, validationError("attachment name and objectKey are required")
	}
	*fileName = input.Name
	*fileURL = ""
	return &store.Attachment{
		ID:        util.NewID(),
		UserID:    sess.UserID,
		Name:      input.Name,
		ObjectKey: input.ObjectKey,
		Size:      input.Size,
		MimeType:  input.MimeType,
	}, nil
}

func (s *Service) indexMessage(msg store.Message) {
	if s.search == nil {
		return
	}
	s.search.IndexMessage(search.MessageRecord{
		ID:        msg.ID,
		Kind:      string(search.ResultChannelMessage),
		ChannelID: msg.ChannelID,
		AuthorID:  msg.UserID,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt.Format(time.RFC3339),
	})
}

func (s *Service) indexDirectMessage(msg store.DirectMessage) {
	if s.search == nil {
		return
	}
	s.search.IndexMessage(search.MessageRecord{
		ID:        msg.ID,
		Kind:      string(search.ResultDirectMessage),
		ChatID:    msg.ChatID,
		AuthorID:  msg.SenderID,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt.Format(time.RFC3339),
	})
}
