package app

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"teamchat/api/internal/auth"
	"teamchat/api/internal/authpw"
	"teamchat/api/internal/blob"
	"teamchat/api/internal/config"
	"teamchat/api/internal/feed"
	"teamchat/api/internal/search"
	"teamchat/api/internal/session"
	"teamchat/api/internal/store"
	"teamchat/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	Username     string
	JTI          string
	ExpiresAt    time.Time
}

// topLevelLimit caps conversation snapshots; thread replies are unbounded.
const topLevelLimit = 50

var allowedWorkspaceTypes = map[string]struct{}{
	"public":  {},
	"private": {},
}

var allowedChannelTypes = map[string]struct{}{
	"public":  {},
	"private": {},
}

var allowedPresenceStatuses = map[string]struct{}{
	"online":  {},
	"away":    {},
	"offline": {},
}

type dataStore interface {
	Ping(ctx context.Context) error

	UpsertUser(context.Context, store.User) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	GetUsersByID(context.Context, []string) ([]store.User, error)
	SearchUsers(context.Context, string, int) ([]store.User, error)
	DeleteUser(context.Context, string) error

	CreateWorkspace(context.Context, store.Workspace, []string) (store.Workspace, error)
	GetWorkspace(context.Context, string) (store.Workspace, error)
	ListUserWorkspaces(context.Context, string) ([]store.Workspace, error)
	JoinWorkspace(context.Context, string, string) (store.WorkspaceMember, error)
	IsWorkspaceMember(context.Context, string, string) (bool, error)
	DeleteWorkspace(context.Context, string) error

	CreateChannel(context.Context, store.Channel, []string) (store.Channel, error)
	GetChannel(context.Context, string) (store.Channel, error)
	ListUserChannels(context.Context, string, string) ([]store.Channel, error)
	AddChannelMember(context.Context, string, string) (store.ChannelMember, error)
	IsChannelVisible(context.Context, string, string) (bool, error)
	DeleteChannel(context.Context, string) error

	FindDirectChat(context.Context, string, string, string) (*store.DirectChat, error)
	InsertDirectChat(context.Context, store.DirectChat) (store.DirectChat, error)
	GetDirectChat(context.Context, string) (store.DirectChat, error)
	ListUserDirectChats(context.Context, string, string) ([]store.DirectChat, error)

	InsertMessage(context.Context, store.Message, *store.Attachment) (store.Message, error)
	InsertThreadMessage(context.Context, store.Message, *store.Attachment) (store.Message, error)
	ListChannelMessages(context.Context, string, int) ([]store.Message, error)
	ListThreadMessages(context.Context, string) ([]store.Message, error)
	GetMessage(context.Context, string) (store.Message, error)
	DeleteMessage(context.Context, string) error
	ToggleMessageReaction(context.Context, string, string, string) (store.Message, error)

	InsertDirectMessage(context.Context, store.DirectMessage, *store.Attachment) (store.DirectMessage, error)
	InsertDirectThreadMessage(context.Context, store.DirectMessage, *store.Attachment) (store.DirectMessage, error)
	ListChatMessages(context.Context, string, int) ([]store.DirectMessage, error)
	ListDirectThreadMessages(context.Context, string) ([]store.DirectMessage, error)
	GetDirectMessage(context.Context, string) (store.DirectMessage, error)
	DeleteDirectMessage(context.Context, string) error
	ToggleDirectMessageReaction(context.Context, string, string, string) (store.DirectMessage, error)

	GetAttachment(context.Context, string) (store.Attachment, error)
	ListMessageAttachments(context.Context, string) ([]store.Attachment, error)

	UpsertPresence(context.Context, store.Presence) (store.Presence, error)
	GetPresence(context.Context, string) (store.Presence, error)
	GetPresences(context.Context, []string) ([]store.Presence, error)
}

type sessionStore interface {
	SaveRefreshSession(ctx context.Context, tokenHash string, data session.TokenData, expiresAt time.Time) error
	LookupRefreshSession(ctx context.Context, tokenHash string) (session.TokenData, error)
	RevokeRefreshSession(ctx context.Context, tokenHash string) error
	Ping(ctx context.Context) error
}

type eventPublisher interface {
	Publish(ctx context.Context, event feed.Event) error
}

type messageSearch interface {
	Search(q search.Query) search.Response
	IndexMessage(record search.MessageRecord)
	DeleteMessage(id string)
}

type blobStore interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	SignedURL(ctx context.Context, key string) (string, error)
	Remove(ctx context.Context, key string) error
}

type Service struct {
	cfg       config.Config
	store     dataStore
	sessions  sessionStore
	passwords *authpw.Service
	feed      eventPublisher
	search    messageSearch
	blob      blobStore
}

func New(cfg config.Config, dataStore *store.PostgresStore, sessions *session.RedisStore, passwords *authpw.Service, publisher *feed.Publisher, searchSvc *search.Service, blobStore *blob.Store) *Service {
	svc := &Service{
		cfg:       cfg,
		store:     dataStore,
		sessions:  sessions,
		passwords: passwords,
	}
	if publisher != nil {
		svc.feed = publisher
	}
	if searchSvc != nil {
		svc.search = searchSvc
	}
	if blobStore != nil {
		svc.blob = blobStore
	}
	return svc
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// PingSessions checks the Redis side of the readiness probe.
func (s *Service) PingSessions(ctx context.Context) error {
	if s.sessions == nil {
		return nil
	}
	return s.sessions.Ping(ctx)
}

// publish emits a change-feed event after a committed mutation. Delivery is
// best effort: a publish failure never rolls the mutation back, subscribers
// recover through their reconnect re-snapshot.
func (s *Service) publish(ctx context.Context, eventType, table string, newRow, oldRow any) {
	if s.feed == nil {
		return
	}
	event := feed.Event{Type: eventType, Table: table}
	if newRow != nil {
		event.New = feed.MustRow(newRow)
	}
	if oldRow != nil {
		event.Old = feed.MustRow(oldRow)
	}
	if err := s.feed.Publish(ctx, event); err != nil {
		log.Printf("app: publish %s on %s: %v", eventType, table, err)
	}
}

// Authentication and sessions

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (Session, error) {
	if s.passwords == nil {
		return Session{}, domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication not configured", nil)
	}
	user, err := s.passwords.SignUp(ctx, req)
	if err != nil {
		if err.Error() == "email already registered" {
			return Session{}, domainError(http.StatusConflict, "EMAIL_EXISTS", "Email already registered", nil)
		}
		return Session{}, validationError(err.Error())
	}
	return s.issueSession(ctx, user)
}

func (s *Service) SignIn(ctx context.Context, req authpw.SignInRequest) (Session, error) {
	if s.passwords == nil {
		return Session{}, domainError(http.StatusServiceUnavailable, "AUTH_UNAVAILABLE", "Authentication not configured", nil)
	}
	user, err := s.passwords.SignIn(ctx, req)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil)
	}
	return s.issueSession(ctx, user)
}

// Refresh rotates the refresh token: the presented token is revoked and a new
// pair is issued.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	data, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		return Session{}, domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Refresh token invalid", nil)
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, store.User{ID: data.UserID, Username: data.Username})
}

func (s *Service) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken))
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID()

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:      user.ID,
		Username: user.Username,
		JTI:      jti,
		Exp:      expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID() + util.NewID()
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), session.TokenData{
		UserID:   user.ID,
		Username: user.Username,
	}, refreshExpires); err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Username:     user.Username,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    claims.Sub,
		Username:  claims.Username,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

// Users

type ProfileInput struct {
	Username string `json:"username"`
	FullName string `json:"fullName"`
	ImageURL string `json:"imageUrl"`
}

func (s *Service) UpdateProfile(ctx context.Context, sess Session, input ProfileInput) (store.User, error) {
	if strings.TrimSpace(input.Username) == "" {
		return store.User{}, validationError("username is required")
	}
	current, err := s.store.GetUserByID(ctx, sess.UserID)
	if err != nil {
		return store.User{}, err
	}
	current.Username = strings.TrimSpace(input.Username)
	current.FullName = strings.TrimSpace(input.FullName)
	current.ImageURL = strings.TrimSpace(input.ImageURL)
	return s.store.UpsertUser(ctx, current)
}

func (s *Service) GetUser(ctx context.Context, userID string) (store.User, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.User{}, notFoundError("User not found")
		}
		return store.User{}, err
	}
	user.PasswordHash = ""
	return user, nil
}

func (s *Service) GetUsers(ctx context.Context, userIDs []string) ([]store.User, error) {
	users, err := s.store.GetUsersByID(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}

// SearchUsers finds accounts to invite or message by name or email fragment.
func (s *Service) SearchUsers(ctx context.Context, query string) ([]store.User, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []store.User{}, nil
	}
	users, err := s.store.SearchUsers(ctx, query, topLevelLimit)
	if err != nil {
		return nil, err
	}
	for i := range users {
		users[i].PasswordHash = ""
	}
	return users, nil
}

// DeleteAccount removes the caller's account. Memberships, messages, and
// presence rows cascade in storage.
func (s *Service) DeleteAccount(ctx context.Context, sess Session) error {
	return s.store.DeleteUser(ctx, sess.UserID)
}

// Presence

type HeartbeatInput struct {
	Status      string `json:"status"`
	StatusText  string `json:"statusText"`
	StatusEmoji string `json:"statusEmoji"`
}

// Heartbeat upserts the caller's presence row. The first heartbeat creates
// the row online; later heartbeats bump last_seen and optionally change the
// status or custom status text.
func (s *Service) Heartbeat(ctx context.Context, sess Session, input HeartbeatInput) (store.Presence, error) {
	if input.Status != "" {
		if _, ok := allowedPresenceStatuses[input.Status]; !ok {
			return store.Presence{}, validationError("status must be online, away, or offline")
		}
	}

	eventType := feed.EventUpdate
	if _, err := s.store.GetPresence(ctx, sess.UserID); errors.Is(err, sql.ErrNoRows) {
		eventType = feed.EventInsert
	}

	presence, err := s.store.UpsertPresence(ctx, store.Presence{
		UserID:      sess.UserID,
		Status:      input.Status,
		StatusText:  input.StatusText,
		StatusEmoji: input.StatusEmoji,
	})
	if err != nil {
		return store.Presence{}, err
	}

	s.publish(ctx, eventType, "presence", feed.NewPresenceRow(presence), nil)
	return presence, nil
}

func (s *Service) GetPresence(ctx context.Context, userID string) (store.Presence, error) {
	presence, err := s.store.GetPresence(ctx, userID)
	if errors.Is(err, sql.ErrNoRows) {
		// Users who never sent a heartbeat read as offline.
		return store.Presence{UserID: userID, Status: "offline"}, nil
	}
	return presence, err
}

func (s *Service) GetPresences(ctx context.Context, userIDs []string) ([]store.Presence, error) {
	return s.store.GetPresences(ctx, userIDs)
}

// Search

func (s *Service) SearchMessages(ctx context.Context, sess Session, workspaceID, text, filterType string, limit, offset int) (search.Response, error) {
	if strings.TrimSpace(text) == "" {
		return search.Response{Results: []search.Result{}}, nil
	}
	if workspaceID == "" {
		return search.Response{}, validationError("workspaceId is required")
	}
	member, err := s.store.IsWorkspaceMember(ctx, workspaceID, sess.UserID)
	if err != nil {
		return search.Response{}, err
	}
	if !member {
		return search.Response{}, forbiddenError("Not a workspace member")
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: text}, nil
	}

	channels, err := s.store.ListUserChannels(ctx, workspaceID, sess.UserID)
	if err != nil {
		return search.Response{}, err
	}
	chats, err := s.store.ListUserDirectChats(ctx, workspaceID, sess.UserID)
	if err != nil {
		return search.Response{}, err
	}

	channelIDs := make([]string, 0, len(channels))
	for _, channel := range channels {
		channelIDs = append(channelIDs, channel.ID)
	}
	chatIDs := make([]string, 0, len(chats))
	for _, chat := range chats {
		chatIDs = append(chatIDs, chat.ID)
	}

	return s.search.Search(search.Query{
		Text:        text,
		WorkspaceID: workspaceID,
		ChannelIDs:  channelIDs,
		ChatIDs:     chatIDs,
		FilterType:  search.ResultType(filterType),
		Limit:       limit,
		Offset:      offset,
	}), nil
}
