// Package server defines the chat event types exchanged between clients and
// the relay, shared across hub, client, and handler logic.
package server

import (
	"strings"
	"time"
)

// Event type values carried in the "type" field of every server-to-client
// message.
const (
	EventWelcome     = "welcome"
	EventHistory     = "history"
	EventUserJoined  = "userJoined"
	EventUserLeft    = "userLeft"
	EventChatMessage = "chatMessage"
	EventError       = "error"
)

// AnonymousUsername is substituted when a chat message arrives without a
// username.
const AnonymousUsername = "Anonymous"

// WelcomeText is the greeting sent to every connection right after the
// history replay.
const WelcomeText = "Connected to chat server!"

// ChatEvent is one record in the chat stream. The Type field discriminates
// which of the remaining fields are populated: chatMessage carries Username
// and Content, the system kinds carry Message, and history carries Messages.
// Error events carry no timestamp.
type ChatEvent struct {
	Type      string      `json:"type"`
	Username  string      `json:"username,omitempty"`
	Content   string      `json:"content,omitempty"`
	Message   string      `json:"message,omitempty"`
	Messages  []ChatEvent `json:"messages,omitempty"`
	Timestamp time.Time   `json:"timestamp,omitzero"`
}

// NewChatMessage builds a chatMessage event with the server-assigned
// timestamp. Content is carried verbatim; escaping is the display layer's
// job.
func NewChatMessage(username, content string) ChatEvent {
	if username == "" {
		username = AnonymousUsername
	}
	return ChatEvent{
		Type:      EventChatMessage,
		Username:  username,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewSystemEvent builds a broadcast-only notice such as userJoined or
// userLeft.
func NewSystemEvent(eventType, message string) ChatEvent {
	return ChatEvent{
		Type:      eventType,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewErrorEvent builds an error reply for the offending sender. Error events
// carry no timestamp.
func NewErrorEvent(message string) ChatEvent {
	return ChatEvent{
		Type:    EventError,
		Message: message,
	}
}

// InboundMessage is the client-to-server payload format. Type and Content
// are required; Username is optional and defaults to AnonymousUsername.
type InboundMessage struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	Content  string `json:"content"`
}

// inboundEnvelope couples a raw payload with the client it came from so the
// hub can validate, persist, and fan out on its own goroutine.
type inboundEnvelope struct {
	sender  *Client
	payload []byte
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
