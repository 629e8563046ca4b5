package handlers

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/shared-canvas/backend/internal/auth"
	"github.com/shared-canvas/backend/internal/board"
	"github.com/shared-canvas/backend/internal/model"
	"github.com/shared-canvas/backend/internal/ws"
)

// WebSocketHandler handles WebSocket connections to boards.
type WebSocketHandler struct {
	boardManager *board.Manager
	wsHandler    *ws.Handler
	issuer       *auth.Issuer
}

// NewWebSocketHandler creates a new WebSocketHandler. A nil issuer turns
// join tokens off.
func NewWebSocketHandler(boardManager *board.Manager, wsHandler *ws.Handler, issuer *auth.Issuer) *WebSocketHandler {
	return &WebSocketHandler{
		boardManager: boardManager,
		wsHandler:    wsHandler,
		issuer:       issuer,
	}
}

// clientID resolves who is connecting. With tokens on, the token subject
// is the identity and a conflicting clientId is refused. Otherwise the
// clientId query parameter is used, or a fresh id.
func (h *WebSocketHandler) clientID(c *gin.Context) (string, error) {
	requested := c.Query("clientId")

	if h.issuer == nil {
		if requested != "" {
			return requested, nil
		}
		return uuid.New().String(), nil
	}

	token := c.Query("token")
	if token == "" {
		token = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
	}
	if token == "" {
		return "", fmt.Errorf("%w: token required", model.ErrInvalidToken)
	}

	subject, err := h.issuer.Verify(token)
	if err != nil {
		return "", err
	}
	if requested != "" && requested != subject {
		return "", fmt.Errorf("%w: token was issued to another client", model.ErrInvalidToken)
	}
	return subject, nil
}

// Attach handles WS /api/boards/:id/attach - joins a board via WebSocket.
func (h *WebSocketHandler) Attach(c *gin.Context) {
	boardID := c.Param("id")

	clientID, err := h.clientID(c)
	if err != nil {
		sendManagerError(c, boardID, "authenticate", err)
		return
	}

	hub, err := h.boardManager.Hub(c.Request.Context(), boardID)
	if err != nil {
		sendManagerError(c, boardID, "open board", err)
		return
	}

	if err := h.wsHandler.HandleConnection(c.Writer, c.Request, hub, clientID); err != nil {
		// The upgrader has already answered the request
		return
	}
}

// RegisterRoutes registers the WebSocket handler routes on a Gin router group.
func (h *WebSocketHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/boards/:id/attach", h.Attach)
}
