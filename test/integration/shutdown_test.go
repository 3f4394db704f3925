package integration

import (
	"testing"
	"time"

	"github.com/Tyrowin/relaychat/internal/server"
	"github.com/Tyrowin/relaychat/test/testhelpers"
	"github.com/gorilla/websocket"
)

// TestHubShutdownClosesActiveConnections verifies graceful shutdown
// terminates live client connections within the timeout.
func TestHubShutdownClosesActiveConnections(t *testing.T) {
	ts, hub := testhelpers.StartChatServer(t)

	conn := testhelpers.MustConnect(t, ts)
	testhelpers.ExpectEvent(t, conn, server.EventWelcome)
	waitForClientCount(t, hub, 1)

	if err := hub.Shutdown(2 * time.Second); err != nil {
		t.Errorf("Shutdown returned error: %v", err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("Expected read to fail after hub shutdown")
	}
}

// TestHubShutdownWithConnectedClientCompletesPromptly verifies the pump
// goroutines of a live connection wind down inside the shutdown timeout
// instead of forcing Shutdown into its deadline.
func TestHubShutdownWithConnectedClientCompletesPromptly(t *testing.T) {
	ts, hub := testhelpers.StartChatServer(t)

	conn := testhelpers.MustConnect(t, ts)
	testhelpers.ExpectEvent(t, conn, server.EventWelcome)
	waitForClientCount(t, hub, 1)

	start := time.Now()
	err := hub.Shutdown(3 * time.Second)
	elapsed := time.Since(start)

	if err != nil {
		t.Errorf("Shutdown returned error with a connected client: %v", err)
	}
	if elapsed > 2*time.Second {
		t.Errorf("Shutdown took %v with a connected client", elapsed)
	}
}

// TestUpgradeAfterHubShutdownDoesNotHang verifies an upgrade arriving after
// the hub stopped is closed instead of blocking the handler on a dead
// registration channel.
func TestUpgradeAfterHubShutdownDoesNotHang(t *testing.T) {
	ts, hub := testhelpers.StartChatServer(t)

	if err := hub.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("Shutdown returned error: %v", err)
	}

	conn, err := testhelpers.ConnectWebSocket(testhelpers.WebSocketURL(ts))
	if err != nil {
		// The handshake failing outright is fine too.
		return
	}
	defer func() { _ = conn.Close() }()

	// The server side must close the connection promptly; it never joins
	// the registry, so no welcome arrives.
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("Failed to set read deadline: %v", err)
	}
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("Expected no events on a connection upgraded after shutdown")
	}
}

// TestHubShutdownIsIdempotent verifies a second shutdown call completes
// without error.
func TestHubShutdownIsIdempotent(t *testing.T) {
	_, hub := testhelpers.StartChatServer(t)

	if err := hub.Shutdown(2 * time.Second); err != nil {
		t.Errorf("First shutdown returned error: %v", err)
	}
	if err := hub.Shutdown(2 * time.Second); err != nil {
		t.Errorf("Second shutdown returned error: %v", err)
	}
}

// TestShutdownPersistsHistory verifies messages accepted before shutdown
// remain on disk for the next process.
func TestShutdownPersistsHistory(t *testing.T) {
	cfg := testhelpers.NewTestConfig(t)
	ts, hub := testhelpers.StartChatServerWithConfig(t, cfg)

	conn := testhelpers.MustConnect(t, ts)
	testhelpers.ExpectEvent(t, conn, server.EventWelcome)
	waitForClientCount(t, hub, 1)

	if err := testhelpers.SendChat(conn, "alice", "durable"); err != nil {
		t.Fatalf("Failed to send chat message: %v", err)
	}
	waitForHistoryLen(t, hub, 1)

	if err := hub.Shutdown(2 * time.Second); err != nil {
		t.Errorf("Shutdown returned error: %v", err)
	}

	reloaded := server.NewHistoryStore(cfg.HistoryFile, cfg.HistoryLimit)
	reloaded.Load()
	if reloaded.Len() != 1 {
		t.Fatalf("Expected 1 persisted message, got %d", reloaded.Len())
	}
	if got := reloaded.Snapshot()[0].Content; got != "durable" {
		t.Errorf("Unexpected persisted content: %q", got)
	}
}

// TestNewConnectionsAfterClientErrors verifies the process keeps accepting
// connections after an individual connection failed.
func TestNewConnectionsAfterClientErrors(t *testing.T) {
	cfg := testhelpers.NewTestConfig(t)
	cfg.MaxMessageSize = 64
	ts, hub := testhelpers.StartChatServerWithConfig(t, cfg)

	bad := testhelpers.MustConnect(t, ts)
	testhelpers.ExpectEvent(t, bad, server.EventWelcome)
	waitForClientCount(t, hub, 1)

	// Kill the first connection with an oversized frame.
	payload := make([]byte, 256)
	for i := range payload {
		payload[i] = 'x'
	}
	if err := testhelpers.SendRawMessage(bad, websocket.TextMessage, payload); err != nil {
		t.Fatalf("Failed to send oversized frame: %v", err)
	}
	waitForClientCount(t, hub, 0)

	good := testhelpers.MustConnect(t, ts)
	testhelpers.ExpectEvent(t, good, server.EventWelcome)
	waitForClientCount(t, hub, 1)
}
