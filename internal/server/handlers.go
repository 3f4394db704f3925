// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, the history API, and the built-in chat page.
package server

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// HealthResponse is the JSON body returned by the health endpoint.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// WebSocketHandler returns the handler for WebSocket upgrade requests. It
// validates the request method, enforces the origin allow-list, upgrades the
// connection, and registers the new client with the hub, which starts the
// client's read/write pumps.
func WebSocketHandler(hub *Hub) http.HandlerFunc {
	policy := newOriginPolicy(hub.cfg.AllowedOrigins)
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     policy.checkOrigin,
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WebSocket upgrade failed: %v", err)
			return
		}

		client := NewClient(conn, hub, r.RemoteAddr)

		// Register the client with the hub; the hub will launch the pump
		// goroutines and replay history. A hub that has already shut down
		// no longer drains this channel, so close the connection instead
		// of blocking the handler.
		select {
		case hub.register <- client:
		case <-hub.ctx.Done():
			if err := conn.Close(); err != nil && !isExpectedCloseError(err) {
				log.Printf("Error closing connection after hub shutdown: %v", err)
			}
		}
	}
}

// HealthHandler provides a simple liveness endpoint returning the server
// status and current time as JSON.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	response := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.Printf("Error writing health response: %v", err)
	}
}

// HistoryHandler returns the handler serving the current chat history
// snapshot as a JSON array. It reports the same sequence a new WebSocket
// connection would receive in its history replay.
func HistoryHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(hub.History().Snapshot()); err != nil {
			log.Printf("Error writing history response: %v", err)
		}
	}
}

// ChatPageHandler serves the built-in HTML chat page. The page renders each
// event kind, escapes user-supplied text before injecting it into the DOM,
// echoes sent messages locally, and reconnects on a fixed delay after a
// dropped connection.
func ChatPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := w.Write([]byte(chatPageHTML)); err != nil {
		log.Printf("Error writing HTML response: %v", err)
	}
}

const chatPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>RelayChat</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
        }
        input[type="text"] { padding: 5px; margin-right: 10px; }
        #usernameInput { width: 120px; }
        #messageInput { width: 300px; }
        .system { color: gray; font-style: italic; }
        .chat .user { font-weight: bold; }
        .own { color: blue; }
        .error { color: red; }
    </style>
</head>
<body>
    <h1>RelayChat</h1>

    <div id="status" class="system">Connecting...</div>

    <div>
        <input type="text" id="usernameInput" placeholder="Name">
        <input type="text" id="messageInput" placeholder="Type a message...">
        <button id="sendButton" onclick="sendMessage()">Send</button>
    </div>

    <div id="messages"></div>

    <script>
        let ws = null;
        const messagesDiv = document.getElementById('messages');
        const messageInput = document.getElementById('messageInput');
        const usernameInput = document.getElementById('usernameInput');
        const statusDiv = document.getElementById('status');

        function escapeHtml(text) {
            const div = document.createElement('div');
            div.textContent = text;
            return div.innerHTML;
        }

        function addLine(html, cls) {
            const el = document.createElement('div');
            el.className = cls;
            el.innerHTML = html;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function renderEvent(event) {
            switch (event.type) {
                case 'chatMessage':
                    addLine('<span class="user">' + escapeHtml(event.username) + ':</span> ' + escapeHtml(event.content), 'chat');
                    break;
                case 'history':
                    (event.messages || []).forEach(renderEvent);
                    break;
                case 'error':
                    addLine(escapeHtml(event.message), 'error');
                    break;
                default:
                    addLine(escapeHtml(event.message), 'system');
            }
        }

        function connect() {
            ws = new WebSocket('ws://' + location.host + '/ws');

            ws.onopen = function() {
                statusDiv.textContent = 'Connected';
            };

            ws.onmessage = function(e) {
                renderEvent(JSON.parse(e.data));
            };

            ws.onclose = function() {
                statusDiv.textContent = 'Disconnected, reconnecting...';
                ws = null;
                setTimeout(connect, 3000);
            };
        }

        function sendMessage() {
            const content = messageInput.value.trim();
            if (!content || !ws || ws.readyState !== WebSocket.OPEN) {
                return;
            }
            const username = usernameInput.value.trim();
            ws.send(JSON.stringify({ type: 'chat', username: username, content: content }));
            // Local echo: the server never sends our own message back.
            addLine('<span class="user">' + escapeHtml(username || 'Anonymous') + ':</span> ' + escapeHtml(content), 'chat own');
            messageInput.value = '';
        }

        messageInput.addEventListener('keypress', function(e) {
            if (e.key === 'Enter') {
                sendMessage();
            }
        });

        connect();
    </script>
</body>
</html>`
