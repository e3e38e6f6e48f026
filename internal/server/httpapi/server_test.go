package httpapi

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/openchat-im/openchat/internal/logging"
	"github.com/openchat-im/openchat/internal/server/accounts"
	"github.com/openchat-im/openchat/internal/server/directory"
	"github.com/openchat-im/openchat/internal/server/files"
	"github.com/openchat-im/openchat/internal/server/groups"
	"github.com/openchat-im/openchat/internal/server/linking"
	"github.com/openchat-im/openchat/internal/server/messaging"
	"github.com/openchat-im/openchat/internal/server/migrations"
	"github.com/openchat-im/openchat/internal/server/notify"
	"github.com/openchat-im/openchat/internal/server/presence"
	"github.com/openchat-im/openchat/internal/server/push"
	"github.com/openchat-im/openchat/internal/server/repositories/records"
	"github.com/openchat-im/openchat/internal/server/storepool"
	"github.com/openchat-im/openchat/internal/server/ws"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// newTestServer wires the full stack over sqlite stores in a temp dir.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	dirDB, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "directory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { dirDB.Close() })
	_, err = dirDB.Exec(`CREATE TABLE directory_records (
		authenticator TEXT NOT NULL,
		username TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		store_location TEXT NOT NULL,
		UNIQUE (authenticator),
		UNIQUE (username)
	)`)
	require.NoError(t, err)

	log := testLogger()
	pool := storepool.NewPool(log, migrations.Personal())
	t.Cleanup(pool.CloseAll)

	storeBase := "sqlite://" + t.TempDir()
	dirSvc := directory.NewService(records.NewSQLRepository(dirDB), log, storeBase, "")

	linkSvc := linking.NewService(dirSvc, pool, log)
	accountSvc := accounts.NewService(dirSvc, pool, linkSvc, log, []byte("test-secret"), time.Hour)

	tracker := presence.NewTracker()
	hub := ws.NewHub(log, tracker, nil)
	pusher := push.NewLogPusher(log)

	msgSvc := messaging.NewService(dirSvc, pool, hub, pusher, log)
	groupSvc := groups.NewService(dirSvc, pool, hub, log)

	server := NewServer(log, accountSvc, linkSvc, msgSvc, groupSvc, files.NewService(nil), hub, []byte("test-secret"))
	srv := httptest.NewServer(server.Router())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url, token string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func getJSON(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func signUp(t *testing.T, srv *httptest.Server, username, password string) sessionResponse {
	t.Helper()
	resp := postJSON(t, srv.URL+"/api/signup", "", credentials{Username: username, Password: password})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[sessionResponse](t, resp)
}

func TestSignUpAndLogin(t *testing.T) {
	srv := newTestServer(t)

	session := signUp(t, srv, "alice", "sekret99")
	assert.Equal(t, "alice", session.Username)
	assert.Len(t, session.Authenticator, 8)
	assert.NotEmpty(t, session.Token)

	// Duplicate signup conflicts.
	resp := postJSON(t, srv.URL+"/api/signup", "", credentials{Username: "alice", Password: "sekret99"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// Weak password.
	resp = postJSON(t, srv.URL+"/api/signup", "", credentials{Username: "bob", Password: "x"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/login", "", credentials{Username: "alice", Password: "sekret99"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	login := decode[sessionResponse](t, resp)
	assert.Equal(t, session.Authenticator, login.Authenticator)

	resp = postJSON(t, srv.URL+"/api/login", "", credentials{Username: "alice", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t)

	resp := getJSON(t, srv.URL+"/api/contacts", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = getJSON(t, srv.URL+"/api/contacts", "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestLinkAndMessageFlow(t *testing.T) {
	srv := newTestServer(t)

	alice := signUp(t, srv, "alice", "sekret99")
	bob := signUp(t, srv, "bob", "sekret99")

	// Alice links to bob using his authenticator.
	resp := postJSON(t, srv.URL+"/api/link", alice.Token, map[string]string{"authenticator": bob.Authenticator})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	linked := decode[map[string]string](t, resp)
	assert.Equal(t, "bob", linked["username"])

	// Linking again conflicts.
	resp = postJSON(t, srv.URL+"/api/link", alice.Token, map[string]string{"authenticator": bob.Authenticator})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// Self-link is rejected.
	resp = postJSON(t, srv.URL+"/api/link", alice.Token, map[string]string{"authenticator": alice.Authenticator})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()

	// Unknown authenticator.
	resp = postJSON(t, srv.URL+"/api/link", alice.Token, map[string]string{"authenticator": "ZZZZZZZZ"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	// Both sides see the contact.
	resp = getJSON(t, srv.URL+"/api/contacts", bob.Token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	contacts := decode[[]map[string]any](t, resp)
	require.Len(t, contacts, 1)
	assert.Equal(t, "alice", contacts[0]["username"])

	// Alice messages bob and both read the same plaintext history.
	resp = postJSON(t, srv.URL+"/api/messages", alice.Token, map[string]any{"to": "bob", "body": "hello bob"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sent := decode[messageResponse](t, resp)
	assert.Equal(t, "hello bob", sent.Body)

	for _, tok := range []string{alice.Token, bob.Token} {
		peer := "bob"
		if tok == bob.Token {
			peer = "alice"
		}
		resp = getJSON(t, srv.URL+"/api/messages/"+peer, tok)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		history := decode[[]messageResponse](t, resp)
		require.Len(t, history, 1)
		assert.Equal(t, "hello bob", history[0].Body)
	}

	// Messaging an unlinked user still succeeds: the sender keeps an
	// archival copy even though nothing can be delivered.
	resp = postJSON(t, srv.URL+"/api/messages", bob.Token, map[string]any{"to": "carol", "body": "hi"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = getJSON(t, srv.URL+"/api/messages/carol", bob.Token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	archived := decode[[]messageResponse](t, resp)
	require.Len(t, archived, 1)
	assert.Equal(t, "hi", archived[0].Body)
}

func TestGroupFlow(t *testing.T) {
	srv := newTestServer(t)

	alice := signUp(t, srv, "alice", "sekret99")
	bob := signUp(t, srv, "bob", "sekret99")

	resp := postJSON(t, srv.URL+"/api/link", alice.Token, map[string]string{"authenticator": bob.Authenticator})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, srv.URL+"/api/groups", alice.Token, map[string]any{"name": "team", "members": []string{"bob"}})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	g := decode[groupResponse](t, resp)
	assert.ElementsMatch(t, []string{"alice", "bob"}, g.Members)
	assert.False(t, g.Partial)

	resp = postJSON(t, srv.URL+fmt.Sprintf("/api/groups/%s/messages", g.ID), alice.Token, map[string]any{"body": "standup in 5"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	// Bob sees the group and the message from his own store.
	resp = getJSON(t, srv.URL+"/api/groups", bob.Token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	bobGroups := decode[[]groupResponse](t, resp)
	require.Len(t, bobGroups, 1)

	resp = getJSON(t, srv.URL+fmt.Sprintf("/api/groups/%s/messages", g.ID), bob.Token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	msgs := decode[[]groupMessageResponse](t, resp)
	require.Len(t, msgs, 1)
	assert.Equal(t, "standup in 5", msgs[0].Body)

	// Only the creator can delete.
	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/groups/"+g.ID, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+bob.Token)
	dresp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, dresp.StatusCode)
	dresp.Body.Close()

	req.Header.Set("Authorization", "Bearer "+alice.Token)
	dresp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, dresp.StatusCode)
	dresp.Body.Close()
}

func TestWebsocketDelivery(t *testing.T) {
	srv := newTestServer(t)

	alice := signUp(t, srv, "alice", "sekret99")
	bob := signUp(t, srv, "bob", "sekret99")

	resp := postJSON(t, srv.URL+"/api/link", alice.Token, map[string]string{"authenticator": bob.Authenticator})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=" + bob.Token
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Wait for the registration before sending.
	time.Sleep(50 * time.Millisecond)

	resp = postJSON(t, srv.URL+"/api/messages", alice.Token, map[string]any{"to": "bob", "body": "ping"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev notify.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, notify.KindMessage, ev.Kind)
	assert.Equal(t, "alice", ev.From)
	assert.Equal(t, "ping", ev.Body)
}

func TestDownloadURL_MissingKey(t *testing.T) {
	srv := newTestServer(t)
	alice := signUp(t, srv, "alice", "sekret99")

	resp := getJSON(t, srv.URL+"/api/files/download-url", alice.Token)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}
