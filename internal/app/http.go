package app

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"teamchat/api/internal/authpw"
)

// maxUploadBytes caps multipart attachment uploads at 25 MiB.
const maxUploadBytes = 25 << 20

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		s.handleReady(w, r)
		return
	}

	// Auth routes (no session required)
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		s.handleSignUp(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signin" {
		s.handleSignIn(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/refresh" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeFailure(w, http.StatusBadRequest, err.Error())
			return
		}
		sess, err := s.service.Refresh(r.Context(), body.RefreshToken)
		if err != nil {
			failWith(w, err)
			return
		}
		writeResult(w, http.StatusOK, "Session refreshed", sessionPayload(sess))
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/logout" {
		var body struct {
			RefreshToken string `json:"refreshToken"`
		}
		_ = decodeBody(r, &body)
		_ = s.service.Logout(r.Context(), body.RefreshToken)
		writeResult(w, http.StatusOK, "Signed out", nil)
		return
	}

	session, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	// Fixed-path routes
	if r.URL.Path == "/api/me" {
		s.handleMe(w, r, session)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/users" {
		if q := strings.TrimSpace(r.URL.Query().Get("q")); q != "" {
			users, err := s.service.SearchUsers(r.Context(), q)
			if err != nil {
				failWith(w, err)
				return
			}
			writeResult(w, http.StatusOK, "", map[string]any{"users": users})
			return
		}
		ids := splitIDs(r.URL.Query().Get("ids"))
		if len(ids) == 0 {
			writeFailure(w, http.StatusUnprocessableEntity, "ids or q query parameter is required")
			return
		}
		users, err := s.service.GetUsers(r.Context(), ids)
		if err != nil {
			failWith(w, err)
			return
		}
		writeResult(w, http.StatusOK, "", map[string]any{"users": users})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/workspaces" {
		items, err := s.service.ListWorkspaces(r.Context(), session)
		if err != nil {
			failWith(w, err)
			return
		}
		writeResult(w, http.StatusOK, "", map[string]any{"workspaces": items})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/workspaces" {
		var body CreateWorkspaceInput
		if err := decodeBody(r, &body); err != nil {
			writeFailure(w, http.StatusBadRequest, err.Error())
			return
		}
		workspace, err := s.service.CreateWorkspace(r.Context(), session, body)
		if err != nil {
			failWith(w, err)
			return
		}
		writeResult(w, http.StatusCreated, "Workspace created", map[string]any{"workspace": workspace})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/presence/heartbeat" {
		var body HeartbeatInput
		if err := decodeBody(r, &body); err != nil {
			writeFailure(w, http.StatusBadRequest, err.Error())
			return
		}
		presence, err := s.service.Heartbeat(r.Context(), session, body)
		if err != nil {
			failWith(w, err)
			return
		}
		writeResult(w, http.StatusOK, "", map[string]any{"presence": presence})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/presence" {
		ids := splitIDs(r.URL.Query().Get("ids"))
		if len(ids) == 0 {
			writeFailure(w, http.StatusUnprocessableEntity, "ids query parameter is required")
			return
		}
		presences, err := s.service.GetPresences(r.Context(), ids)
		if err != nil {
			failWith(w, err)
			return
		}
		writeResult(w, http.StatusOK, "", map[string]any{"presences": presences})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/uploads" {
		s.handleUpload(w, r, session)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 3 || parts[0] != "api" {
		writeFailure(w, http.StatusNotFound, "Not found")
		return
	}

	switch parts[1] {
	case "users":
		if r.Method == http.MethodGet && len(parts) == 3 {
			user, err := s.service.GetUser(r.Context(), parts[2])
			if err != nil {
				failWith(w, err)
				return
			}
			writeResult(w, http.StatusOK, "", map[string]any{"user": user})
			return
		}
	case "workspaces":
		s.handleWorkspace(w, r, session, parts[2], parts[3:])
		return
	case "channels":
		s.handleChannel(w, r, session, parts[2], parts[3:])
		return
	case "messages":
		s.handleMessage(w, r, session, parts[2], parts[3:])
		return
	case "chats":
		s.handleChat(w, r, session, parts[2], parts[3:])
		return
	case "direct-messages":
		s.handleDirectMessage(w, r, session, parts[2], parts[3:])
		return
	case "presence":
		if r.Method == http.MethodGet && len(parts) == 3 {
			presence, err := s.service.GetPresence(r.Context(), parts[2])
			if err != nil {
				failWith(w, err)
				return
			}
			writeResult(w, http.StatusOK, "", map[string]any{"presence": presence})
			return
		}
	case "attachments":
		if r.Method == http.MethodGet && len(parts) == 4 && parts[3] == "url" {
			url, err := s.service.AttachmentURL(r.Context(), session, parts[2])
			if err != nil {
				failWith(w, err)
				return
			}
			writeResult(w, http.StatusOK, "", map[string]any{"url": url})
			return
		}
	}

	writeFailure(w, http.StatusNotFound, "Not found")
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
		"redis":    map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{"status": "error", "error": err.Error()}
	}
	if err := s.service.PingSessions(ctx); err != nil {
		statusCode = http.StatusServiceUnavailable
		checks["redis"] = map[string]any{"status": "error", "error": err.Error()}
	}
	writeJSON(w, statusCode, map[string]any{"ok": statusCode == http.StatusOK, "checks": checks})
}

func (s *HTTPServer) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Username string `json:"username"`
		FullName string `json:"fullName"`
		ImageURL string `json:"imageUrl"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	sess, err := s.service.SignUp(r.Context(), authpw.SignUpRequest{
		Email:    body.Email,
		Password: body.Password,
		Username: body.Username,
		FullName: body.FullName,
		ImageURL: body.ImageURL,
	})
	if err != nil {
		failWith(w, err)
		return
	}
	writeResult(w, http.StatusCreated, "Account created", sessionPayload(sess))
}

func (s *HTTPServer) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error())
		return
	}
	sess, err := s.service.SignIn(r.Context(), authpw.SignInRequest{
		Email:    body.Email,
		Password: body.Password,
	})
	if err != nil {
		failWith(w, err)
		return
	}
	writeResult(w, http.StatusOK, "Signed in", sessionPayload(sess))
}

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request, session Session) {
	switch r.Method {
	case http.MethodGet:
		user, err := s.service.GetUser(r.Context(), session.UserID)
		if err != nil {
			failWith(w, err)
			return
		}
		writeResult(w, http.StatusOK, "", map[string]any{"user": user})
	case http.MethodPut:
		var body ProfileInput
		if err := decodeBody(r, &body); err != nil {
			writeFailure(w, http.StatusBadRequest, err.Error())
			return
		}
		user, err := s.service.UpdateProfile(r.Context(), session, body)
		if err != nil {
			failWith(w, err)
			return
		}
		user.PasswordHash = ""
		writeResult(w, http.StatusOK, "Profile updated", map[string]any{"user": user})
	case http.MethodDelete:
		if err := s.service.DeleteAccount(r.Context(), session); err != nil {
			failWith(w, err)
			return
		}
		writeResult(w, http.StatusOK, "Account deleted", nil)
	default:
		writeFailure(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *HTTPServer) handleWorkspace(w http.ResponseWriter, r *http.Request, session Session, workspaceID string, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			workspace, err := s.service.GetWorkspace(r.Context(), session, workspaceID)
			if err != nil {
				failWith(w, err)
				return
			}
			writeResult(w, http.StatusOK, "", map[string]any{"workspace": workspace})
		case http.MethodDelete:
			if err := s.service.DeleteWorkspace(r.Context(), session, workspaceID); err != nil {
				failWith(w, err)
				return
			}
			writeResult(w, http.StatusOK, "Workspace deleted", nil)
		default:
			writeFailure(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	if len(rest) == 1 {
		switch {
		case r.Method == http.MethodPost && rest[0] == "join":
			member, err := s.service.JoinWorkspace(r.Context(), session, workspaceID)
			if err != nil {
				failWith(w, err)
				return
			}
			writeResult(w, http.StatusOK, "Joined workspace", map[string]any{"member": member})
			return
		case r.Method == http.MethodGet && rest[0] == "channels":
			channels, err := s.service.ListChannels(r.Context(), session, workspaceID)
			if err != nil {
				failWith(w, err)
				return
			}
			writeResult(w, http.StatusOK, "", map[string]any{"channels": channels})
			return
		case r.Method == http.MethodPost && rest[0] == "channels":
			var body CreateChannelInput
			if err := decodeBody(r, &body); err != nil {
				writeFailure(w, http.StatusBadRequest, err.Error())
				return
			}
			channel, err := s.service.CreateChannel(r.Context(), session, workspaceID, body)
			if err != nil {
				failWith(w, err)
				return
			}
			writeResult(w, http.StatusCreated, "Channel created", map[string]any{"channel": channel})
			return
		case r.Method == http.MethodGet && rest[0] == "chats":
			chats, err := s.service.ListDirectChats(r.Context(), session, workspaceID)
			if err != nil {
				failWith(w, err)
				return
			}
			writeResult(w, http.StatusOK, "", map[string]any{"chats": chats})
			return
		case r.Method == http.MethodPost && rest[0] == "chats":
			var body struct {
				UserID string `json:"userId"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeFailure(w, http.StatusBadRequest, err.Error())
				return
			}
			chat, err := s.service.CreateDirectChat(r.Context(), session, workspaceID, body.UserID)
			if err != nil {
				failWith(w, err)
				return
			}
			writeResult(w, http.StatusOK, "", map[string]any{"chat": chat})
			return
		case r.Method == http.MethodGet && rest[0] == "search":
			s.handleSearch(w, r, session, workspaceID)
			return
		}
	}

	writeFailure(w, http.StatusNotFound, "Not found")
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request, session Session, workspaceID string) {
	query := r.URL.Query()
	limit, err := intParam(query.Get("limit"), 20)
	if err != nil {
		writeFailure(w, http.StatusUnprocessableEntity, "limit must be an integer")
		return
	}
	offset, err := intParam(query.Get("offset"), 0)
	if err != nil {
		writeFailure(w, http.StatusUnprocessableEntity, "offset must be an integer")
		return
	}
	resp, err := s.service.SearchMessages(r.Context(), session, workspaceID,
		strings.TrimSpace(query.Get("q")), strings.TrimSpace(query.Get("type")), limit, offset)
	if err != nil {
		failWith(w, err)
		return
	}
	writeResult(w, http.StatusOK, "", resp)
}

func (s *HTTPServer) handleChannel(w http.ResponseWriter, r *http.Request, session Session, channelID string, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			channel, err := s.service.GetChannel(r.Context(), session, channelID)
			if err != nil {
				failWith(w, err)
				return
			}
			writeResult(w, http.StatusOK, "", map[string]any{"channel": channel})
		case http.MethodDelete:
			if err := s.service.DeleteChannel(r.Context(), session, channelID); err != nil {
				failWith(w, err)
				return
			}
			writeResult(w, http.StatusOK, "Channel deleted", nil)
		default:
			writeFailure(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	if len(rest) == 1 {
		switch {
		case r.Method == http.MethodPost && rest[0] == "join":
			member, err := s.service.JoinChannel(r.Context(), session, channelID)
			if err != nil {
				failWith(w, err)
				return
			}
			writeResult(w, http.StatusOK, "Joined channel", map[string]any{"member": member})
			return
		case r.Method == http.MethodPost && rest[0] == "members":
			var body struct {
				UserID string `json:"userId"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeFailure(w, http.StatusBadRequest, err.Error())
				return
			}
			member, err := s.service.AddChannelMember(r.Context(), session, channelID, body.UserID)
			if err != nil {
				failWith(w, err)
				return
			}
			writeResult(w, http.StatusCreated, "Member added", map[string]any{"member": member})
			return
		case r.Method == http.MethodGet && rest[0] == "messages":
			messages, err := s.service.ListMessages(r.Context(), session, channelID)
			if err != nil {
				failWith(w, err)
				return
			}
			writeResult(w, http.StatusOK, "", map[string]any{"messages": messages})
			return
		case r.Method == http.MethodPost && rest[0] == "messages":
			var body SendMessageInput
			if err := decodeBody(r, &body); err != nil {
				writeFailure(w, http.StatusBadRequest, err.Error())
				return
			}
			msg, err := s.service.SendMessage(r.Context(), session, channelID, body)
			if err != nil {
				failWith(w, err)
				return
			}
			writeResult(w, http.StatusCreated, "Message sent", map[string]any{"message": msg})
			return
		}
	}

	writeFailure(w, http.StatusNotFound, "Not found")
}

func (s *HTTPServer) handleMessage(w http.ResponseWriter, r *http.Request, session Session, messageID string, rest []string) {
	if len(rest) == 0 && r.Method == http.MethodDelete {
		if err := s.service.DeleteMessage(r.Context(), session, messageID); err != nil {
			failWith(w, err)
			return
		}
		writeResult(w, http.StatusOK, "Message deleted", nil)
		return
	}

	if len(rest) == 1 {
		switch {
		case r.Method == http.MethodGet && rest[0] == "thread":
			replies, err := s.service.ListThreadReplies(r.Context(), session, messageID)
			if err != nil {
				failWith(w, err)
				return
			}
			writeResult(w, http.StatusOK, "", map[string]any{"messages": replies})
			return
		case r.Method == http.MethodPost && rest[0] == "thread":
			var body SendMessageInput
			if err := decodeBody(r, &body); err != nil {
				writeFailure(w, http.StatusBadRequest, err.Error())
				return
			}
			reply, err := s.service.SendThreadReply(r.Context(), session, messageID, body)
			if err != nil {
				failWith(w, err)
				return
			}
			writeResult(w, http.StatusCreated, "Reply sent", map[string]any{"message": reply})
			return
		case r.Method == http.MethodPost && rest[0] == "reactions":
			var body struct {
				Emoji string `json:"emoji"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeFailure(w, http.StatusBadRequest, err.Error())
				return
			}
			msg, err := s.service.ToggleReaction(r.Context(), session, messageID, body.Emoji)
			if err != nil {
				failWith(w, err)
				return
			}
			writeResult(w, http.StatusOK, "", map[string]any{"message": msg})
			return
		case r.Method == http.MethodGet && rest[0] == "attachments":
			attachments, err := s.service.ListAttachments(r.Context(), session, messageID)
			if err != nil {
				failWith(w, err)
				return
			}
			writeResult(w, http.StatusOK, "", map[string]any{"attachments": attachments})
			return
		}
	}

	writeFailure(w, http.StatusNotFound, "Not found")
}

func (s *HTTPServer) handleChat(w http.ResponseWriter, r *http.Request, session Session, chatID string, rest []string) {
	if len(rest) == 1 && rest[0] == "messages" {
		switch r.Method {
		case http.MethodGet:
			messages, err := s.service.ListDirectMessages(r.Context(), session, chatID)
			if err != nil {
				failWith(w, err)
				return
			}
			writeResult(w, http.StatusOK, "", map[string]any{"messages": messages})
			return
		case http.MethodPost:
			var body SendMessageInput
			if err := decodeBody(r, &body); err != nil {
				writeFailure(w, http.StatusBadRequest, err.Error())
				return
			}
			msg, err := s.service.SendDirectMessage(r.Context(), session, chatID, body)
			if err != nil {
				failWith(w, err)
				return
			}
			writeResult(w, http.StatusCreated, "Message sent", map[string]any{"message": msg})
			return
		}
	}

	writeFailure(w, http.StatusNotFound, "Not found")
}

func (s *HTTPServer) handleDirectMessage(w http.ResponseWriter, r *http.Request, session Session, messageID string, rest []string) {
	if len(rest) == 0 && r.Method == http.MethodDelete {
		if err := s.service.DeleteDirectMessage(r.Context(), session, messageID); err != nil {
			failWith(w, err)
			return
		}
		writeResult(w, http.StatusOK, "Message deleted", nil)
		return
	}

	if len(rest) == 1 {
		switch {
		case r.Method == http.MethodGet && rest[0] == "thread":
			replies, err := s.service.ListDirectThreadReplies(r.Context(), session, messageID)
			if err != nil {
				failWith(w, err)
				return
			}
			writeResult(w, http.StatusOK, "", map[string]any{"messages": replies})
			return
		case r.Method == http.MethodPost && rest[0] == "thread":
			var body SendMessageInput
			if err := decodeBody(r, &body); err != nil {
				writeFailure(w, http.StatusBadRequest, err.Error())
				return
			}
			reply, err := s.service.SendDirectThreadReply(r.Context(), session, messageID, body)
			if err != nil {
				failWith(w, err)
				return
			}
			writeResult(w, http.StatusCreated, "Reply sent", map[string]any{"message": reply})
			return
		case r.Method == http.MethodPost && rest[0] == "reactions":
			var body struct {
				Emoji string `json:"emoji"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeFailure(w, http.StatusBadRequest, err.Error())
				return
			}
			msg, err := s.service.ToggleDirectReaction(r.Context(), session, messageID, body.Emoji)
			if err != nil {
				failWith(w, err)
				return
			}
			writeResult(w, http.StatusOK, "", map[string]any{"message": msg})
			return
		}
	}

	writeFailure(w, http.StatusNotFound, "Not found")
}

func (s *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request, session Session) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeFailure(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeFailure(w, http.StatusUnprocessableEntity, "file field is required")
		return
	}
	defer file.Close()

	result, err := s.service.Upload(r.Context(), session, header.Filename,
		header.Header.Get("Content-Type"), header.Size, file)
	if err != nil {
		failWith(w, err)
		return
	}
	writeResult(w, http.StatusCreated, "File uploaded", map[string]any{"upload": result})
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (Session, bool) {
	token := bearerToken(r)
	if token == "" {
		writeFailure(w, http.StatusUnauthorized, "Unauthorized")
		return Session{}, false
	}
	session, err := s.service.SessionFromToken(token)
	if err != nil {
		writeFailure(w, http.StatusUnauthorized, "Unauthorized")
		return Session{}, false
	}
	return session, true
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeResult wraps every successful operation in the uniform envelope.
func writeResult(w http.ResponseWriter, status int, message string, data any) {
	response := map[string]any{"success": true}
	if message != "" {
		response["message"] = message
	}
	if data != nil {
		response["data"] = data
	}
	writeJSON(w, status, response)
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"success": false, "message": message})
}

func failWith(w http.ResponseWriter, err error) {
	status, _, message, _ := mapError(err)
	writeFailure(w, status, message)
}

func sessionPayload(sess Session) map[string]any {
	return map[string]any{
		"accessToken":  sess.Token,
		"refreshToken": sess.RefreshToken,
		"userId":       sess.UserID,
		"username":     sess.Username,
		"expiresAt":    sess.ExpiresAt.Unix(),
	}
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func splitIDs(raw string) []string {
	var ids []string
	for _, id := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(id); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	return ids
}

func intParam(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
