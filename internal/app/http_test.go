package app

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"teamchat/api/internal/authpw"
	"teamchat/api/internal/store"
)

func newTestServer(fs *fakeStore) (*httptest.Server, *capturePublisher) {
	pub := &capturePublisher{}
	svc := &Service{
		cfg:       testConfig(),
		store:     fs,
		sessions:  newFakeSessions(),
		passwords: authpw.NewService(fs),
		feed:      pub,
	}
	server := httptest.NewServer(NewHTTPServer(svc, "*").Handler())
	return server, pub
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func doJSON(t *testing.T, method, url, token string, body any) (int, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return resp.StatusCode, env
}

func signUpForToken(t *testing.T, baseURL string) string {
	t.Helper()
	status, env := doJSON(t, http.MethodPost, baseURL+"/api/auth/signup", "", map[string]string{
		"email": "avery@example.com", "password": "hunter22!", "username": "avery",
	})
	if status != http.StatusCreated || !env.Success {
		t.Fatalf("signup status = %d, envelope = %+v", status, env)
	}
	var data struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.AccessToken == "" {
		t.Fatal("signup must return an access token")
	}
	return data.AccessToken
}

// signupCapableStore backs the auth flow with an in-memory user map.
func signupCapableStore() *fakeStore {
	users := map[string]store.User{}
	fs := &fakeStore{}
	fs.upsertUserFn = func(_ context.Context, u store.User) (store.User, error) {
		users[u.Email] = u
		return u, nil
	}
	fs.getUserByEmailFn = func(_ context.Context, email string) (store.User, error) {
		u, ok := users[email]
		if !ok {
			return store.User{}, sql.ErrNoRows
		}
		return u, nil
	}
	return fs
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(&fakeStore{})
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["ok"] != true {
		t.Fatalf("body = %+v", body)
	}
}

func TestReadyReportsFailingDatabase(t *testing.T) {
	server, _ := newTestServer(&fakeStore{
		pingFn: func(context.Context) error { return errors.New("connection refused") },
	})
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/ready")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	var body struct {
		OK     bool `json:"ok"`
		Checks map[string]struct {
			Status string `json:"status"`
		} `json:"checks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.OK || body.Checks["database"].Status != "error" || body.Checks["redis"].Status != "ok" {
		t.Fatalf("body = %+v", body)
	}
}

func TestProtectedRoutesRejectMissingToken(t *testing.T) {
	server, _ := newTestServer(&fakeStore{})
	defer server.Close()

	status, env := doJSON(t, http.MethodGet, server.URL+"/api/workspaces", "", nil)
	if status != http.StatusUnauthorized || env.Success {
		t.Fatalf("status = %d, envelope = %+v", status, env)
	}
}

func TestProtectedRoutesRejectGarbageToken(t *testing.T) {
	server, _ := newTestServer(&fakeStore{})
	defer server.Close()

	status, _ := doJSON(t, http.MethodGet, server.URL+"/api/workspaces", "not-a-token", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", status)
	}
}

func TestSignUpThenCreateWorkspaceFlow(t *testing.T) {
	fs := signupCapableStore()
	server, _ := newTestServer(fs)
	defer server.Close()

	token := signUpForToken(t, server.URL)

	status, env := doJSON(t, http.MethodPost, server.URL+"/api/workspaces", token, map[string]string{
		"name": "engineering", "description": "all things eng",
	})
	if status != http.StatusCreated || !env.Success {
		t.Fatalf("status = %d, envelope = %+v", status, env)
	}
	var data struct {
		Workspace store.Workspace `json:"workspace"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Workspace.Name != "engineering" || data.Workspace.Type != "public" {
		t.Fatalf("workspace = %+v", data.Workspace)
	}
	if data.Workspace.CreatorID == "" {
		t.Fatal("creator must be set from the session")
	}
}

func TestValidationFailureUsesEnvelope(t *testing.T) {
	fs := signupCapableStore()
	server, _ := newTestServer(fs)
	defer server.Close()

	token := signUpForToken(t, server.URL)

	status, env := doJSON(t, http.MethodPost, server.URL+"/api/workspaces", token, map[string]string{
		"name": "   ",
	})
	if status != http.StatusUnprocessableEntity || env.Success {
		t.Fatalf("status = %d, envelope = %+v", status, env)
	}
	if !strings.Contains(env.Message, "name") {
		t.Fatalf("message = %q", env.Message)
	}
}

func TestUnknownRouteReturnsEnvelope404(t *testing.T) {
	fs := signupCapableStore()
	server, _ := newTestServer(fs)
	defer server.Close()

	token := signUpForToken(t, server.URL)

	status, env := doJSON(t, http.MethodGet, server.URL+"/api/nope/123", token, nil)
	if status != http.StatusNotFound || env.Success {
		t.Fatalf("status = %d, envelope = %+v", status, env)
	}
}

func TestInternalErrorsNeverLeakCause(t *testing.T) {
	fs := signupCapableStore()
	fs.listUserWorkspacesFn = func(context.Context, string) ([]store.Workspace, error) {
		return nil, errors.New("pq: relation workspaces does not exist")
	}
	server, _ := newTestServer(fs)
	defer server.Close()

	token := signUpForToken(t, server.URL)

	status, env := doJSON(t, http.MethodGet, server.URL+"/api/workspaces", token, nil)
	if status != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", status)
	}
	if strings.Contains(env.Message, "pq:") || strings.Contains(env.Message, "relation") {
		t.Fatalf("backend cause leaked: %q", env.Message)
	}
}

func TestSendMessageOverHTTP(t *testing.T) {
	fs := signupCapableStore()
	fs.isChannelVisibleFn = func(context.Context, string, string) (bool, error) { return true, nil }
	server, pub := newTestServer(fs)
	defer server.Close()

	token := signUpForToken(t, server.URL)

	status, env := doJSON(t, http.MethodPost, server.URL+"/api/channels/ch-1/messages", token, map[string]any{
		"content": "hello team",
	})
	if status != http.StatusCreated || !env.Success {
		t.Fatalf("status = %d, envelope = %+v", status, env)
	}
	var data struct {
		Message store.Message `json:"message"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Message.Content != "hello team" || data.Message.ChannelID != "ch-1" {
		t.Fatalf("message = %+v", data.Message)
	}
	if len(pub.all()) != 1 {
		t.Fatalf("events = %+v", pub.all())
	}
}

func TestRefreshRotationOverHTTP(t *testing.T) {
	fs := signupCapableStore()
	server, _ := newTestServer(fs)
	defer server.Close()

	status, env := doJSON(t, http.MethodPost, server.URL+"/api/auth/signup", "", map[string]string{
		"email": "blair@example.com", "password": "hunter22!", "username": "blair",
	})
	if status != http.StatusCreated {
		t.Fatalf("signup status = %d", status)
	}
	var sess struct {
		RefreshToken string `json:"refreshToken"`
	}
	if err := json.Unmarshal(env.Data, &sess); err != nil {
		t.Fatal(err)
	}

	status, env = doJSON(t, http.MethodPost, server.URL+"/api/auth/refresh", "", map[string]string{
		"refreshToken": sess.RefreshToken,
	})
	if status != http.StatusOK || !env.Success {
		t.Fatalf("refresh status = %d, envelope = %+v", status, env)
	}

	// The first refresh consumed the token.
	status, _ = doJSON(t, http.MethodPost, server.URL+"/api/auth/refresh", "", map[string]string{
		"refreshToken": sess.RefreshToken,
	})
	if status != http.StatusUnauthorized {
		t.Fatalf("replay status = %d, want 401", status)
	}
}

func TestGetUsersRequiresIDs(t *testing.T) {
	fs := signupCapableStore()
	server, _ := newTestServer(fs)
	defer server.Close()

	token := signUpForToken(t, server.URL)

	status, _ := doJSON(t, http.MethodGet, server.URL+"/api/users", token, nil)
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", status)
	}
}

func TestCORSAndRequestIDHeaders(t *testing.T) {
	server, _ := newTestServer(&fakeStore{})
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing CORS origin header")
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("missing request id header")
	}
}
