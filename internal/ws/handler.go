package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shared-canvas/backend/internal/model"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Handler runs WebSocket connections against board hubs.
type Handler struct {
	hubManager *HubManager
}

// NewHandler creates a new WebSocket handler.
func NewHandler(hubManager *HubManager) *Handler {
	return &Handler{hubManager: hubManager}
}

// HandleConnection upgrades the request and attaches the connection to hub
// as clientID. The replay is the first frame the client receives.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request, hub *Hub, clientID string) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	client := NewClient(hub, conn, clientID)
	if _, err := hub.Connect(client); err != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, err.Error()),
			time.Now().Add(writeWait))
		conn.Close()
		return err
	}
	log.Printf("Client %s joined board %s", clientID, hub.BoardID())

	go h.writePump(client)
	go h.readPump(client)

	return nil
}

// HandleMessage processes one message from a client.
func (h *Handler) HandleMessage(ctx context.Context, client *Client, msg *Message) {
	hub := client.hub
	switch {
	case msg.IsEvent():
		_, err := hub.submit(ctx, client.clientID, client, msg.Event())
		if err != nil && !errors.Is(err, model.ErrMalformedEvent) {
			log.Printf("Failed to submit event from %s: %v", client.clientID, err)
		}
	case msg.Type == MessageTypeAck:
		hub.Ack(client.clientID, msg.SequenceID)
	case msg.Type == MessageTypePing:
		client.SendMessage(&Message{Type: MessageTypePong})
	default:
		client.SendMessage(&Message{Type: MessageTypeError, Error: "unknown message type: " + string(msg.Type)})
	}
}

// readPump pumps messages from the WebSocket connection to the hub.
func (h *Handler) readPump(client *Client) {
	defer func() {
		client.hub.Disconnect(client)
		client.Conn().Close()
		log.Printf("Client %s left board %s", client.clientID, client.hub.BoardID())
	}()

	client.Conn().SetReadLimit(maxMessageSize)
	client.Conn().SetReadDeadline(time.Now().Add(pongWait))
	client.Conn().SetPongHandler(func(string) error {
		client.Conn().SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	ctx := context.Background()
	for {
		_, message, err := client.Conn().ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			client.SendMessage(&Message{Type: MessageTypeRejected, Error: model.ErrMalformedEvent.Error()})
			continue
		}

		h.HandleMessage(ctx, client, &msg)
	}
}

// writePump pumps messages from the hub to the WebSocket connection.
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn().Close()
	}()

	for {
		select {
		case message, ok := <-client.SendChan():
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				client.Conn().WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One message per frame
			if err := client.Conn().WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			n := len(client.SendChan())
			for i := 0; i < n; i++ {
				queuedMsg, ok := <-client.SendChan()
				if !ok {
					client.Conn().WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.Conn().WriteMessage(websocket.TextMessage, queuedMsg); err != nil {
					return
				}
			}
		case <-ticker.C:
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn().WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// GetUpgrader returns the WebSocket upgrader for custom configuration.
func GetUpgrader() *websocket.Upgrader {
	return &upgrader
}

// SetCheckOrigin sets a custom origin checker for the WebSocket upgrader.
func SetCheckOrigin(fn func(r *http.Request) bool) {
	upgrader.CheckOrigin = fn
}
