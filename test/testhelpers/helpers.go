// Package testhelpers provides common utilities and helper functions for
// testing the RelayChat server.
//
// It contains reusable utilities shared across unit and integration tests:
// spinning up a fully wired chat server, connecting WebSocket clients,
// sending chat payloads, and asserting on received events and HTTP
// responses.
package testhelpers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/relaychat/internal/server"
	"github.com/gorilla/websocket"
)

// NewTestConfig returns a configuration suitable for tests: every origin is
// allowed, the rate limit is generous enough not to interfere, and history
// persists into a per-test temporary directory.
func NewTestConfig(t *testing.T) server.Config {
	t.Helper()
	return server.Config{
		AllowedOrigins: []string{"*"},
		MaxMessageSize: 4096,
		RateLimit: server.RateLimitConfig{
			Burst:          100,
			RefillInterval: time.Second,
		},
		HistoryFile:  filepath.Join(t.TempDir(), "chat_history.json"),
		HistoryLimit: 1000,
	}
}

// StartChatServer starts a fully wired chat server (history store, hub,
// router) on an httptest listener. Cleanup of the listener and the hub is
// registered on t.
func StartChatServer(t *testing.T) (*httptest.Server, *server.Hub) {
	t.Helper()
	return StartChatServerWithConfig(t, NewTestConfig(t))
}

// StartChatServerWithConfig is StartChatServer with a caller-supplied
// configuration.
func StartChatServerWithConfig(t *testing.T, cfg server.Config) (*httptest.Server, *server.Hub) {
	t.Helper()

	history := server.NewHistoryStore(cfg.HistoryFile, cfg.HistoryLimit)
	history.Load()

	hub := server.NewHub(cfg, history)
	go hub.Run()

	ts := httptest.NewServer(server.SetupRoutes(hub))
	t.Cleanup(func() {
		ts.Close()
		_ = hub.Shutdown(2 * time.Second)
	})

	return ts, hub
}

// WebSocketURL converts an httptest server URL into the ws:// address of the
// chat endpoint.
func WebSocketURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

// ConnectWebSocket creates a WebSocket connection to the specified URL.
// It returns the connection or an error if connection fails.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	headers.Set("Origin", "http://localhost:8080")

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// MustConnect connects to the chat endpoint and fails the test on error. The
// connection is closed during test cleanup.
func MustConnect(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	conn, err := ConnectWebSocket(WebSocketURL(ts))
	if err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendChat sends a well-formed chat payload over the connection.
func SendChat(conn *websocket.Conn, username, content string) error {
	message := map[string]string{
		"type":     "chat",
		"username": username,
		"content":  content,
	}
	return conn.WriteJSON(message)
}

// SendRawMessage sends a raw byte message over the WebSocket connection.
func SendRawMessage(conn *websocket.Conn, messageType int, data []byte) error {
	return conn.WriteMessage(messageType, data)
}

// ReceiveEvent reads the next chat event from the connection, waiting at
// most timeout.
func ReceiveEvent(conn *websocket.Conn, timeout time.Duration) (server.ChatEvent, error) {
	var event server.ChatEvent
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return event, err
	}
	err := conn.ReadJSON(&event)
	return event, err
}

// ExpectEvent reads the next event and fails the test unless it has the
// expected type.
func ExpectEvent(t *testing.T, conn *websocket.Conn, eventType string) server.ChatEvent {
	t.Helper()

	event, err := ReceiveEvent(conn, 2*time.Second)
	if err != nil {
		t.Fatalf("Expected %s event, got read error: %v", eventType, err)
	}
	if event.Type != eventType {
		t.Fatalf("Expected %s event, got %s (%+v)", eventType, event.Type, event)
	}
	return event
}

// ExpectNoEvent asserts that nothing arrives on the connection within the
// window. The read deadline it sets leaves the connection unusable, so call
// it only as the last operation on a connection.
func ExpectNoEvent(t *testing.T, conn *websocket.Conn, window time.Duration) {
	t.Helper()

	if err := conn.SetReadDeadline(time.Now().Add(window)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	if _, payload, err := conn.ReadMessage(); err == nil {
		t.Errorf("Expected no event, received: %s", payload)
	}
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	if err != nil {
		t.Fatalf("Failed to create request: %v", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}

	return resp
}

// AssertStatusCode checks if the HTTP response has the expected status code.
// It fails the test with a descriptive error message if the status codes don't match.
func AssertStatusCode(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("Expected status code %d, got %d", expected, resp.StatusCode)
	}
}

// AssertContentType checks if the HTTP response has the expected Content-Type header.
// It fails the test with a descriptive error message if the content types don't match.
func AssertContentType(t *testing.T, resp *http.Response, expected string) {
	t.Helper()
	contentType := resp.Header.Get("Content-Type")
	if contentType != expected {
		t.Errorf("Expected content type %s, got %s", expected, contentType)
	}
}

// DecodeJSONBody decodes the response body into dst and closes it.
func DecodeJSONBody(t *testing.T, resp *http.Response, dst interface{}) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		t.Fatalf("Failed to decode response body: %v", err)
	}
}
