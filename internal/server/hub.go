// Package server coordinates client registration, message validation, history
// persistence, and broadcast fan-out for the relay via the Hub type.
package server

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Hub owns the set of live client connections and the chat history. All
// registry and history mutation happens on the single Run goroutine; clients
// and handlers communicate with it over channels, so no two mutations ever
// interleave.
type Hub struct {
	cfg        Config
	history    *HistoryStore
	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client
	inbound    chan inboundEnvelope
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a Hub bound to the given configuration and history store.
// The returned Hub is ready to manage connections once Run is started.
func NewHub(cfg Config, history *HistoryStore) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:        cfg.Sanitize(),
		history:    history,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inboundEnvelope),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// History returns the history store backing this hub.
func (h *Hub) History() *HistoryStore {
	return h.history
}

// GetRegisterChan returns the channel used for registering new clients to the hub.
// This channel is write-only from the caller's perspective.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// GetUnregisterChan returns the channel used for unregistering clients from the hub.
// This channel is write-only from the caller's perspective.
func (h *Hub) GetUnregisterChan() chan<- *Client {
	return h.unregister
}

// ClientCount reports the number of currently registered clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Run starts the hub's main event loop, handling client registration,
// unregistration, and inbound chat messages. This method should be called in
// a separate goroutine as it runs indefinitely.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			h.handleRegister(client)

		case client := <-h.unregister:
			h.dropClient(client, "disconnected")

		case envelope := <-h.inbound:
			h.handleInbound(envelope)
		}
	}
}

// handleRegister adds a client to the live set, starts its pumps, replays
// history, greets it, and announces the join to everyone else.
func (h *Hub) handleRegister(client *Client) {
	if client == nil {
		log.Printf("Received nil client registration; skipping")
		return
	}

	h.mutex.Lock()
	client.closed = false
	h.clients[client] = true
	clientCount := len(h.clients)
	h.mutex.Unlock()
	log.Printf("Client %s registered from %s. Total clients: %d", client.id, client.addr, clientCount)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()

	if snapshot := h.history.Snapshot(); len(snapshot) > 0 {
		h.sendEvent(client, ChatEvent{Type: EventHistory, Messages: snapshot})
	}
	h.sendEvent(client, ChatEvent{Type: EventWelcome, Message: WelcomeText, Timestamp: time.Now()})

	h.broadcastEvent(NewSystemEvent(EventUserJoined, "A new user joined the chat"), client)
}

// handleInbound validates one raw payload from a client, persists the
// resulting chat message, and fans it out to every other connection. Invalid
// payloads produce an error event for the sender only and touch no state.
func (h *Hub) handleInbound(envelope inboundEnvelope) {
	sender := envelope.sender

	var msg InboundMessage
	if err := json.Unmarshal(envelope.payload, &msg); err != nil {
		log.Printf("Unparseable message from client %s: %v", sender.id, err)
		h.sendEvent(sender, NewErrorEvent("Invalid JSON format"))
		return
	}

	if msg.Type == "" || msg.Content == "" {
		log.Printf("Message from client %s missing required fields", sender.id)
		h.sendEvent(sender, NewErrorEvent("Invalid message format"))
		return
	}

	event := NewChatMessage(msg.Username, msg.Content)
	h.history.Append(event)
	h.broadcastEvent(event, sender)
}

// broadcastEvent serializes event and delivers it to every registered client
// except exclude. A failed recipient is dropped without affecting delivery
// to the others.
func (h *Hub) broadcastEvent(event ChatEvent, exclude *Client) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("Failed to serialize %s event: %v", event.Type, err)
		return
	}

	clients := h.clientSnapshot()

	var failed []*Client
	for _, client := range clients {
		if client == exclude {
			continue
		}
		if !h.safeSend(client, payload) {
			failed = append(failed, client)
		}
	}

	for _, client := range failed {
		h.dropClient(client, "removed due to full send buffer")
	}
}

// sendEvent serializes event and delivers it to a single client.
func (h *Hub) sendEvent(client *Client, event ChatEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("Failed to serialize %s event: %v", event.Type, err)
		return
	}
	if !h.safeSend(client, payload) {
		log.Printf("Failed to deliver %s event to client %s", event.Type, client.id)
	}
}

func (h *Hub) safeSend(client *Client, payload []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in safeSend: %v", r)
		}
	}()

	// Hold the lock during the entire send so the channel cannot be closed
	// out from under us by a concurrent unregister.
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	_, exists := h.clients[client]
	if !exists || client.closed {
		return false
	}

	select {
	case client.send <- payload:
		return true
	default:
		return false
	}
}

// clientSnapshot returns the registered clients as a slice safe to iterate
// while removals happen.
func (h *Hub) clientSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

// dropClient removes a client from the live set and announces the departure
// to the remaining clients. The membership check makes this path exactly-once
// regardless of whether the closure was clean, error-triggered, or forced by
// a full send buffer.
func (h *Hub) dropClient(client *Client, reason string) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client)
	client.closed = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	// Close the channel after releasing the lock.
	close(client.send)
	log.Printf("Client %s from %s %s. Total clients: %d", client.id, client.addr, reason, clientCount)

	h.broadcastEvent(NewSystemEvent(EventUserLeft, "A user left the chat"), client)
}

// shutdownClients closes all active client connections.
func (h *Hub) shutdownClients() {
	log.Println("Shutting down all client connections...")

	clients := h.clientSnapshot()
	for _, client := range clients {
		if client.conn != nil {
			if err := client.conn.Close(); err != nil {
				if !isExpectedCloseError(err) {
					log.Printf("Error closing client connection from %s: %v", client.addr, err)
				}
			}
		}
	}

	log.Printf("Closed %d client connections", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all pump
// goroutines to complete, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	log.Println("Initiating hub shutdown...")

	h.cancel()

	// Wait for Run() to complete.
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
