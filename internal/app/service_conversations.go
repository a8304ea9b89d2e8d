package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"teamchat/api/internal/feed"
	"teamchat/api/internal/store"
	"teamchat/api/internal/util"
)

// Workspaces

type CreateWorkspaceInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	MemberIDs   []string `json:"memberIds"`
}

func (s *Service) CreateWorkspace(ctx context.Context, sess Session, input CreateWorkspaceInput) (store.Workspace, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return store.Workspace{}, validationError("workspace name is required")
	}
	wsType := input.Type
	if wsType == "" {
		wsType = "public"
	}
	if _, ok := allowedWorkspaceTypes[wsType]; !ok {
		return store.Workspace{}, validationError("workspace type must be public or private")
	}

	workspace := store.Workspace{
		ID:          util.NewID(),
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		Type:        wsType,
		CreatorID:   sess.UserID,
	}
	return s.store.CreateWorkspace(ctx, workspace, withCreator(input.MemberIDs, sess.UserID))
}

func (s *Service) GetWorkspace(ctx context.Context, sess Session, workspaceID string) (store.Workspace, error) {
	workspace, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Workspace{}, notFoundError("Workspace not found")
		}
		return store.Workspace{}, err
	}
	member, err := s.store.IsWorkspaceMember(ctx, workspaceID, sess.UserID)
	if err != nil {
		return store.Workspace{}, err
	}
	if !member && workspace.Type != "public" {
		return store.Workspace{}, forbiddenError("Not a workspace member")
	}
	return workspace, nil
}

// ListWorkspaces returns the workspaces visible to the caller: every public
// workspace plus private ones they belong to.
func (s *Service) ListWorkspaces(ctx context.Context, sess Session) ([]store.Workspace, error) {
	return s.store.ListUserWorkspaces(ctx, sess.UserID)
}

func (s *Service) JoinWorkspace(ctx context.Context, sess Session, workspaceID string) (store.WorkspaceMember, error) {
	workspace, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.WorkspaceMember{}, notFoundError("Workspace not found")
		}
		return store.WorkspaceMember{}, err
	}
	if workspace.Type != "public" {
		member, err := s.store.IsWorkspaceMember(ctx, workspaceID, sess.UserID)
		if err != nil {
			return store.WorkspaceMember{}, err
		}
		if !member {
			return store.WorkspaceMember{}, forbiddenError("Workspace is private")
		}
	}
	return s.store.JoinWorkspace(ctx, workspaceID, sess.UserID)
}

func (s *Service) DeleteWorkspace(ctx context.Context, sess Session, workspaceID string) error {
	workspace, err := s.store.GetWorkspace(ctx, workspaceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notFoundError("Workspace not found")
		}
		return err
	}
	if workspace.CreatorID != sess.UserID {
		return forbiddenError("Only the creator can delete a workspace")
	}
	return s.store.DeleteWorkspace(ctx, workspaceID)
}

// Channels

type CreateChannelInput struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	MemberIDs   []string `json:"memberIds"`
}

func (s *Service) CreateChannel(ctx context.Context, sess Session, workspaceID string, input CreateChannelInput) (store.Channel, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return store.Channel{}, validationError("channel name is required")
	}
	chType := input.Type
	if chType == "" {
		chType = "public"
	}
	if _, ok := allowedChannelTypes[chType]; !ok {
		return store.Channel{}, validationError("channel type must be public or private")
	}
	member, err := s.store.IsWorkspaceMember(ctx, workspaceID, sess.UserID)
	if err != nil {
		return store.Channel{}, err
	}
	if !member {
		return store.Channel{}, forbiddenError("Not a workspace member")
	}

	channel, err := s.store.CreateChannel(ctx, store.Channel{
		ID:          util.NewID(),
		WorkspaceID: workspaceID,
		Name:        name,
		Description: strings.TrimSpace(input.Description),
		Type:        chType,
		CreatorID:   sess.UserID,
	}, withCreator(input.MemberIDs, sess.UserID))
	if err != nil {
		return store.Channel{}, err
	}

	s.publish(ctx, feed.EventInsert, "channels", feed.NewChannelRow(channel), nil)
	return channel, nil
}

func (s *Service) GetChannel(ctx context.Context, sess Session, channelID string) (store.Channel, error) {
	channel, err := s.store.GetChannel(ctx, channelID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Channel{}, notFoundError("Channel not found")
		}
		return store.Channel{}, err
	}
	visible, err := s.store.IsChannelVisible(ctx, channelID, sess.UserID)
	if err != nil {
		return store.Channel{}, err
	}
	if !visible {
		return store.Channel{}, forbiddenError("Not a channel member")
	}
	return channel, nil
}

// ListChannels returns the channels the caller can see in a workspace: every
// public channel plus private ones they belong to.
func (s *Service) ListChannels(ctx context.Context, sess Session, workspaceID string) ([]store.Channel, error) {
	member, err := s.store.IsWorkspaceMember(ctx, workspaceID, sess.UserID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, forbiddenError("Not a workspace member")
	}
	return s.store.ListUserChannels(ctx, workspaceID, sess.UserID)
}

// JoinChannel adds the caller to a channel. Public channels are open to any
// workspace member; private channels require an existing member to add you.
func (s *Service) JoinChannel(ctx context.Context, sess Session, channelID string) (store.ChannelMember, error) {
	channel, err := s.store.GetChannel(ctx, channelID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ChannelMember{}, notFoundError("Channel not found")
		}
		return store.ChannelMember{}, err
	}
	member, err := s.store.IsWorkspaceMember(ctx, channel.WorkspaceID, sess.UserID)
	if err != nil {
		return store.ChannelMember{}, err
	}
	if !member {
		return store.ChannelMember{}, forbiddenError("Not a workspace member")
	}
	if channel.Type != "public" {
		return store.ChannelMember{}, forbiddenError("Channel is private")
	}
	return s.store.AddChannelMember(ctx, channelID, sess.UserID)
}

// AddChannelMember lets an existing channel member bring someone else in.
func (s *Service) AddChannelMember(ctx context.Context, sess Session, channelID, userID string) (store.ChannelMember, error) {
	if userID == "" {
		return store.ChannelMember{}, validationError("userId is required")
	}
	visible, err := s.store.IsChannelVisible(ctx, channelID, sess.UserID)
	if err != nil {
		return store.ChannelMember{}, err
	}
	if !visible {
		return store.ChannelMember{}, forbiddenError("Not a channel member")
	}
	channel, err := s.store.GetChannel(ctx, channelID)
	if err != nil {
		return store.ChannelMember{}, err
	}
	member, err := s.store.IsWorkspaceMember(ctx, channel.WorkspaceID, userID)
	if err != nil {
		return store.ChannelMember{}, err
	}
	if !member {
		return store.ChannelMember{}, validationError("user is not a workspace member")
	}
	return s.store.AddChannelMember(ctx, channelID, userID)
}

func (s *Service) DeleteChannel(ctx context.Context, sess Session, channelID string) error {
	channel, err := s.store.GetChannel(ctx, channelID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return notFoundError("Channel not found")
		}
		return err
	}
	if channel.CreatorID != sess.UserID {
		return forbiddenError("Only the creator can delete a channel")
	}
	if err := s.store.DeleteChannel(ctx, channelID); err != nil {
		return err
	}
	s.publish(ctx, feed.EventDelete, "channels", nil, feed.NewChannelRow(channel))
	return nil
}

// Direct chats

// CreateDirectChat returns the existing chat for the pair when one exists,
// regardless of which side asks.
func (s *Service) CreateDirectChat(ctx context.Context, sess Session, workspaceID, otherUserID string) (store.DirectChat, error) {
	if otherUserID == "" {
		return store.DirectChat{}, validationError("userId is required")
	}
	for _, userID := range []string{sess.UserID, otherUserID} {
		member, err := s.store.IsWorkspaceMember(ctx, workspaceID, userID)
		if err != nil {
			return store.DirectChat{}, err
		}
		if !member {
			return store.DirectChat{}, validationError("both users must be workspace members")
		}
	}

	existing, err := s.store.FindDirectChat(ctx, workspaceID, sess.UserID, otherUserID)
	if err != nil {
		return store.DirectChat{}, err
	}
	if existing != nil {
		return *existing, nil
	}

	chat, err := s.store.InsertDirectChat(ctx, store.DirectChat{
		ID:          util.NewID(),
		WorkspaceID: workspaceID,
		User1ID:     sess.UserID,
		User2ID:     otherUserID,
	})
	if err != nil {
		return store.DirectChat{}, err
	}

	s.publish(ctx, feed.EventInsert, "direct_chats", feed.NewDirectChatRow(chat), nil)
	return chat, nil
}

func (s *Service) ListDirectChats(ctx context.Context, sess Session, workspaceID string) ([]store.DirectChat, error) {
	member, err := s.store.IsWorkspaceMember(ctx, workspaceID, sess.UserID)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, forbiddenError("Not a workspace member")
	}
	return s.store.ListUserDirectChats(ctx, workspaceID, sess.UserID)
}

func (s *Service) getVisibleChat(ctx context.Context, sess Session, chatID string) (store.DirectChat, error) {
	chat, err := s.store.GetDirectChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.DirectChat{}, notFoundError("Chat not found")
		}
		return store.DirectChat{}, err
	}
	if chat.User1ID != sess.UserID && chat.User2ID != sess.UserID {
		return store.DirectChat{}, forbiddenError("Not a chat member")
	}
	return chat, nil
}

// withCreator guarantees the creator appears in the member list exactly once.
func withCreator(memberIDs []string, creatorID string) []string {
	out := make([]string, 0, len(memberIDs)+1)
	out = append(out, creatorID)
	for _, id := range memberIDs {
		if id != creatorID && id != "" {
			out = append(out, id)
		}
	}
	return out
}
