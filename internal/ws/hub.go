package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shared-canvas/backend/internal/model"
	"github.com/shared-canvas/backend/internal/store"
)

// sendBufferSize is the per-client queue length. A client that falls this
// far behind is disconnected and has to reconnect and replay.
const sendBufferSize = 256

const (
	// Accepted events waiting for the sinks. Events beyond this are not
	// published.
	sinkQueueSize = 1024

	// Time allowed for one sink to publish one event.
	sinkTimeout = 5 * time.Second
)

// EventSink receives every event after it has been appended to the log.
type EventSink interface {
	Publish(ctx context.Context, ev model.BoardEvent) error
}

// Client represents a WebSocket client connection.
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	clientID    string
	connectedAt time.Time
	send        chan []byte
	mu          sync.Mutex
	closed      bool
}

// NewClient creates a new WebSocket client.
func NewClient(hub *Hub, conn *websocket.Conn, clientID string) *Client {
	return &Client{
		hub:         hub,
		conn:        conn,
		clientID:    clientID,
		connectedAt: time.Now(),
		send:        make(chan []byte, sendBufferSize),
	}
}

// Send queues a message to be sent to the client.
func (c *Client) Send(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- data:
	default:
		// Buffer full, close the client
		log.Printf("Client %s is too slow, closing", c.clientID)
		c.closeLocked()
	}
}

// SendMessage marshals msg and queues it.
func (c *Client) SendMessage(msg *Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Failed to marshal %s message: %v", msg.Type, err)
		return
	}
	c.Send(data)
}

// Close closes the client connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed returns true if the client is closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ClientID returns the participant id of this connection.
func (c *Client) ClientID() string {
	return c.clientID
}

// Hub returns the hub this client belongs to.
func (c *Client) Hub() *Hub {
	return c.hub
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// SendChan returns the send channel for the client.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}

type session struct {
	client *Client
	info   model.ClientSession
}

// Hub relays the events of one board. It owns the board's store and the set
// of connected clients; one mutex serializes connects, submits and
// disconnects so every client observes the same order.
type Hub struct {
	board  *model.Board
	bounds model.Bounds
	store  *store.Store

	mu       sync.Mutex
	sessions map[string]*session
	closed   bool
	onClose  func()

	// Sinks are fed in log order by one goroutine, outside mu.
	sinksMu    sync.Mutex
	sinks      []EventSink
	queueMu    sync.RWMutex
	queue      chan sinkItem
	queueShut  bool
	sinkerDone chan struct{}
}

// sinkItem is an accepted event, or a flush marker when flushed is set.
type sinkItem struct {
	ev      model.BoardEvent
	flushed chan struct{}
}

// NewHub creates a Hub for board backed by st. maxStrokeWidth bounds the
// width of accepted strokes; zero means model.DefaultMaxStrokeWidth.
func NewHub(board *model.Board, st *store.Store, maxStrokeWidth float64) *Hub {
	bounds := board.Bounds()
	bounds.MaxStrokeWidth = maxStrokeWidth
	h := &Hub{
		board:      board,
		bounds:     bounds,
		store:      st,
		sessions:   make(map[string]*session),
		queue:      make(chan sinkItem, sinkQueueSize),
		sinkerDone: make(chan struct{}),
	}
	go h.runSinks()
	return h
}

// BoardID returns the board ID for this hub.
func (h *Hub) BoardID() string {
	return h.board.ID
}

// Board returns the board this hub relays.
func (h *Hub) Board() *model.Board {
	return h.board
}

// AddSink registers a sink for accepted events.
func (h *Hub) AddSink(sink EventSink) {
	h.sinksMu.Lock()
	defer h.sinksMu.Unlock()
	h.sinks = append(h.sinks, sink)
}

// Flush waits until every event accepted so far has been offered to the
// sinks.
func (h *Hub) Flush(ctx context.Context) error {
	done := make(chan struct{})

	h.queueMu.RLock()
	if h.queueShut {
		h.queueMu.RUnlock()
		return nil
	}
	select {
	case h.queue <- sinkItem{flushed: done}:
	case <-ctx.Done():
		h.queueMu.RUnlock()
		return ctx.Err()
	}
	h.queueMu.RUnlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueueSinks hands an accepted event to the sink goroutine without
// blocking the board.
func (h *Hub) enqueueSinks(ev model.BoardEvent) {
	h.queueMu.RLock()
	defer h.queueMu.RUnlock()
	if h.queueShut {
		return
	}
	select {
	case h.queue <- sinkItem{ev: ev}:
	default:
		log.Printf("Sink queue full on board %s, event %d not published", h.board.ID, ev.SequenceID)
	}
}

func (h *Hub) runSinks() {
	defer close(h.sinkerDone)

	for item := range h.queue {
		if item.flushed != nil {
			close(item.flushed)
			continue
		}

		h.sinksMu.Lock()
		sinks := append([]EventSink(nil), h.sinks...)
		h.sinksMu.Unlock()

		for _, sink := range sinks {
			ctx, cancel := context.WithTimeout(context.Background(), sinkTimeout)
			if err := sink.Publish(ctx, item.ev); err != nil {
				log.Printf("Failed to publish event %d of board %s: %v", item.ev.SequenceID, h.board.ID, err)
			}
			cancel()
		}
	}
}

// SetOnClose sets the callback for when the last client disconnects.
func (h *Hub) SetOnClose(callback func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.onClose = callback
}

// Connect registers client and queues the replay of the effective history
// as its first message. Both happen under the hub lock, so the client sees
// every later event exactly once. A session with the same client id is
// replaced and its connection closed.
func (h *Hub) Connect(client *Client) ([]model.BoardEvent, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, model.ErrHubClosed
	}

	if old, ok := h.sessions[client.clientID]; ok && old.client != client {
		log.Printf("Client %s reconnected to board %s, closing stale connection", client.clientID, h.board.ID)
		old.client.Close()
	}

	events := h.store.SnapshotSince(model.NoCursor)
	h.sessions[client.clientID] = &session{
		client: client,
		info: model.ClientSession{
			ClientID:    client.clientID,
			ConnectedAt: client.connectedAt,
		},
	}
	client.SendMessage(ReplayMessage(client.clientID, h.board, events))

	return events, nil
}

// Submit validates ev, appends it to the log and broadcasts it to every
// client except the sender. The sender gets an accepted receipt carrying the
// sequence id, or a rejected message with the reason.
func (h *Hub) Submit(ctx context.Context, clientID string, ev model.BoardEvent) (model.BoardEvent, error) {
	return h.submit(ctx, clientID, nil, ev)
}

// submit is Submit for a specific connection. A connection that has been
// replaced by a newer one for the same client id can no longer submit.
func (h *Hub) submit(ctx context.Context, clientID string, from *Client, ev model.BoardEvent) (model.BoardEvent, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return model.BoardEvent{}, model.ErrHubClosed
	}

	origin, ok := h.sessions[clientID]
	if !ok || (from != nil && origin.client != from) {
		return model.BoardEvent{}, fmt.Errorf("%w: %s", model.ErrUnknownClient, clientID)
	}

	ev.SourceClientID = clientID
	ev.SequenceID = 0
	if err := ev.Validate(h.bounds); err != nil {
		origin.client.SendMessage(&Message{Type: MessageTypeRejected, Error: err.Error()})
		return model.BoardEvent{}, err
	}

	stored, err := h.store.Append(ctx, ev)
	if err != nil {
		log.Printf("Failed to append event on board %s: %v", h.board.ID, err)
		origin.client.SendMessage(&Message{Type: MessageTypeRejected, Error: "failed to store event"})
		return model.BoardEvent{}, fmt.Errorf("failed to append event: %w", err)
	}

	data, err := json.Marshal(EventMessage(stored))
	if err != nil {
		return stored, fmt.Errorf("failed to marshal event: %w", err)
	}
	for id, s := range h.sessions {
		if id == clientID {
			continue
		}
		s.client.Send(data)
	}
	origin.client.SendMessage(&Message{Type: MessageTypeAccepted, SequenceID: stored.SequenceID})
	h.enqueueSinks(stored)

	return stored, nil
}

// Ack records the highest sequence id a client has applied.
func (h *Hub) Ack(clientID string, seq uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.sessions[clientID]
	if !ok {
		return
	}
	if seq > s.info.LastAckedSequenceID && seq <= h.store.LastSequenceID() {
		s.info.LastAckedSequenceID = seq
	}
}

// Disconnect removes the client's session and closes its queue. The log is
// not touched. A client that was already replaced by a newer connection
// leaves the newer session in place.
func (h *Hub) Disconnect(client *Client) {
	h.mu.Lock()
	if s, ok := h.sessions[client.clientID]; ok && s.client == client {
		delete(h.sessions, client.clientID)
	}
	clientCount := len(h.sessions)
	onClose := h.onClose
	closed := h.closed
	h.mu.Unlock()

	client.Close()

	// Call onClose callback if no clients remain
	if clientCount == 0 && onClose != nil && !closed {
		onClose()
	}
}

// Sessions returns the connected clients ordered by connect time.
func (h *Hub) Sessions() []model.ClientSession {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]model.ClientSession, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s.info)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ClientID < out[j].ClientID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// HasClients returns true if there are connected clients.
func (h *Hub) HasClients() bool {
	return h.ClientCount() > 0
}

// LastSequenceID returns the id of the newest accepted event.
func (h *Hub) LastSequenceID() uint64 {
	return h.store.LastSequenceID()
}

// SnapshotSince returns the accepted events after cursor.
func (h *Hub) SnapshotSince(cursor uint64) []model.BoardEvent {
	return h.store.SnapshotSince(cursor)
}

// Compact drops the events hidden by the latest clear.
func (h *Hub) Compact(ctx context.Context) (int, error) {
	return h.store.Compact(ctx)
}

// Close closes all client connections and the hub, then waits for the
// sinks to publish what was already accepted.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.sessions))
	for _, s := range h.sessions {
		clients = append(clients, s.client)
	}
	h.sessions = make(map[string]*session)
	h.mu.Unlock()

	for _, client := range clients {
		client.Close()
	}

	h.queueMu.Lock()
	if !h.queueShut {
		h.queueShut = true
		close(h.queue)
	}
	h.queueMu.Unlock()
	<-h.sinkerDone
}

// HubManager manages the hubs of all open boards.
type HubManager struct {
	hubs map[string]*Hub
	mu   sync.RWMutex
}

// NewHubManager creates a new HubManager.
func NewHubManager() *HubManager {
	return &HubManager{
		hubs: make(map[string]*Hub),
	}
}

// GetOrCreate returns the board's hub, calling create to build it the first
// time. Concurrent callers for the same board get the same hub.
func (m *HubManager) GetOrCreate(boardID string, create func() (*Hub, error)) (*Hub, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hub, ok := m.hubs[boardID]; ok {
		return hub, nil
	}

	hub, err := create()
	if err != nil {
		return nil, err
	}
	m.hubs[boardID] = hub
	return hub, nil
}

// Get returns the hub for the board, or nil if not found.
func (m *HubManager) Get(boardID string) *Hub {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hubs[boardID]
}

// Remove closes and removes the hub for the board.
func (m *HubManager) Remove(boardID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if hub, ok := m.hubs[boardID]; ok {
		hub.Close()
		delete(m.hubs, boardID)
	}
}

// Count returns the number of open hubs.
func (m *HubManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.hubs)
}

// Close closes all hubs.
func (m *HubManager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, hub := range m.hubs {
		hub.Close()
	}
	m.hubs = make(map[string]*Hub)
}
