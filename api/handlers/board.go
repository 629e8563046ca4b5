// Package handlers provides HTTP API request handlers.
package handlers

import (
	"bytes"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/shared-canvas/backend/internal/board"
	"github.com/shared-canvas/backend/internal/model"
	"github.com/shared-canvas/backend/internal/render"
	"github.com/shared-canvas/backend/internal/snapshot"
)

// BoardHandler handles HTTP requests for board management.
type BoardHandler struct {
	boardManager *board.Manager
}

// NewBoardHandler creates a new BoardHandler.
func NewBoardHandler(boardManager *board.Manager) *BoardHandler {
	return &BoardHandler{
		boardManager: boardManager,
	}
}

// CreateBoardRequest represents the request body for creating a board.
type CreateBoardRequest struct {
	Name   string `json:"name" binding:"required"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// BoardResponse represents a board in API responses.
type BoardResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	LogFilePath    string `json:"logFilePath"`
	ClientCount    int    `json:"clientCount"`
	LastSequenceID uint64 `json:"lastSequenceId"`
	Age            string `json:"age"`
	CreatedAt      string `json:"createdAt"`
	UpdatedAt      string `json:"updatedAt"`
}

// EventsResponse is a snapshot of a board's log.
type EventsResponse struct {
	BoardID        string             `json:"boardId"`
	LastSequenceID uint64             `json:"lastSequenceId"`
	Events         []model.BoardEvent `json:"events"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// headerLastSequenceID carries the log position on binary snapshots.
const headerLastSequenceID = "X-Last-Sequence-Id"

// toBoardResponse converts a model.Board to BoardResponse.
func toBoardResponse(b *model.Board, clientCount int, lastSeq uint64) *BoardResponse {
	return &BoardResponse{
		ID:             b.ID,
		Name:           b.Name,
		Width:          b.Width,
		Height:         b.Height,
		LogFilePath:    b.LogFilePath,
		ClientCount:    clientCount,
		LastSequenceID: lastSeq,
		Age:            formatDuration(b.Age()),
		CreatedAt:      b.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      b.UpdatedAt.Format(time.RFC3339),
	}
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return time.Duration(h*time.Hour + m*time.Minute + s*time.Second).String()
	}
	if m > 0 {
		return time.Duration(m*time.Minute + s*time.Second).String()
	}
	return time.Duration(s * time.Second).String()
}

// sendError sends an error response with the appropriate status code.
func sendError(c *gin.Context, statusCode int, code, message string) {
	c.JSON(statusCode, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// sendManagerError maps a board manager error to a response. action names
// what failed for unexpected errors.
func sendManagerError(c *gin.Context, boardID, action string, err error) {
	switch {
	case errors.Is(err, model.ErrBoardNotFound):
		sendError(c, http.StatusNotFound, "BOARD_NOT_FOUND", "Board "+boardID+" not found")
	case errors.Is(err, model.ErrNameRequired), errors.Is(err, model.ErrInvalidDimensions):
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, model.ErrBoardLimit):
		sendError(c, http.StatusTooManyRequests, "LIMIT_EXCEEDED", err.Error())
	case errors.Is(err, model.ErrInvalidToken):
		sendError(c, http.StatusUnauthorized, "UNAUTHORIZED", err.Error())
	case errors.Is(err, model.ErrHubClosed):
		sendError(c, http.StatusServiceUnavailable, "BOARD_CLOSED", err.Error())
	default:
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to "+action+": "+err.Error())
	}
}

// Health handles GET /health.
func (h *BoardHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Create handles POST /api/boards - creates a new board.
func (h *BoardHandler) Create(c *gin.Context) {
	var req CreateBoardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body: "+err.Error())
		return
	}

	b, err := h.boardManager.Create(c.Request.Context(), &model.CreateBoardRequest{
		Name:   req.Name,
		Width:  req.Width,
		Height: req.Height,
	})
	if err != nil {
		sendManagerError(c, "", "create board", err)
		return
	}

	c.JSON(http.StatusCreated, toBoardResponse(b, 0, 0))
}

// List handles GET /api/boards - lists all boards. Boards that are not
// open report no sequence position.
func (h *BoardHandler) List(c *gin.Context) {
	boards, err := h.boardManager.List(c.Request.Context())
	if err != nil {
		sendManagerError(c, "", "list boards", err)
		return
	}

	response := make([]*BoardResponse, len(boards))
	for i, b := range boards {
		clients, lastSeq := h.boardManager.Activity(b.ID)
		response[i] = toBoardResponse(b, clients, lastSeq)
	}

	c.JSON(http.StatusOK, response)
}

// Get handles GET /api/boards/:id - gets a specific board.
func (h *BoardHandler) Get(c *gin.Context) {
	boardID := c.Param("id")

	hub, err := h.boardManager.Hub(c.Request.Context(), boardID)
	if err != nil {
		sendManagerError(c, boardID, "get board", err)
		return
	}

	c.JSON(http.StatusOK, toBoardResponse(hub.Board(), hub.ClientCount(), hub.LastSequenceID()))
}

// Delete handles DELETE /api/boards/:id - closes a board's connections and
// deletes it.
func (h *BoardHandler) Delete(c *gin.Context) {
	boardID := c.Param("id")

	if err := h.boardManager.Delete(c.Request.Context(), boardID); err != nil {
		sendManagerError(c, boardID, "delete board", err)
		return
	}

	c.Status(http.StatusNoContent)
}

// Events handles GET /api/boards/:id/events?since=N - the events after
// sequence N, or the effective history when since is absent or 0. With
// encoding=lz4 the JSON array is returned as an LZ4 frame.
func (h *BoardHandler) Events(c *gin.Context) {
	boardID := c.Param("id")

	since := model.NoCursor
	if raw := c.Query("since"); raw != "" {
		v, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "since must be a sequence id")
			return
		}
		since = v
	}

	encoding := c.Query("encoding")
	if encoding != "" && encoding != "lz4" && encoding != "json" {
		sendError(c, http.StatusBadRequest, "VALIDATION_ERROR", "Unsupported encoding "+encoding)
		return
	}

	hub, err := h.boardManager.Hub(c.Request.Context(), boardID)
	if err != nil {
		sendManagerError(c, boardID, "load events", err)
		return
	}

	lastSeq := hub.LastSequenceID()
	events := hub.SnapshotSince(since)

	if encoding == "lz4" {
		data, err := snapshot.Encode(events)
		if err != nil {
			sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
			return
		}
		c.Header(headerLastSequenceID, strconv.FormatUint(lastSeq, 10))
		c.Data(http.StatusOK, snapshot.ContentTypeLZ4, data)
		return
	}

	if events == nil {
		events = []model.BoardEvent{}
	}
	c.JSON(http.StatusOK, EventsResponse{
		BoardID:        boardID,
		LastSequenceID: lastSeq,
		Events:         events,
	})
}

// Clients handles GET /api/boards/:id/clients - lists live connections.
func (h *BoardHandler) Clients(c *gin.Context) {
	boardID := c.Param("id")

	hub, err := h.boardManager.Hub(c.Request.Context(), boardID)
	if err != nil {
		sendManagerError(c, boardID, "list clients", err)
		return
	}

	c.JSON(http.StatusOK, hub.Sessions())
}

// Compact handles POST /api/boards/:id/compact - drops events hidden by the
// latest clear.
func (h *BoardHandler) Compact(c *gin.Context) {
	boardID := c.Param("id")

	removed, err := h.boardManager.Compact(c.Request.Context(), boardID)
	if err != nil {
		sendManagerError(c, boardID, "compact board", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// ExportPNG handles GET /api/boards/:id/export.png - renders the board.
func (h *BoardHandler) ExportPNG(c *gin.Context) {
	boardID := c.Param("id")

	hub, err := h.boardManager.Hub(c.Request.Context(), boardID)
	if err != nil {
		sendManagerError(c, boardID, "export board", err)
		return
	}

	b := hub.Board()
	raster := render.Render(b.Width, b.Height, hub.SnapshotSince(model.NoCursor))

	var buf bytes.Buffer
	if err := raster.EncodePNG(&buf); err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to encode image: "+err.Error())
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+boardID+".png")
	c.Data(http.StatusOK, "image/png", buf.Bytes())
}

// ExportPDF handles GET /api/boards/:id/export.pdf - the board as a one page
// vector document.
func (h *BoardHandler) ExportPDF(c *gin.Context) {
	boardID := c.Param("id")

	hub, err := h.boardManager.Hub(c.Request.Context(), boardID)
	if err != nil {
		sendManagerError(c, boardID, "export board", err)
		return
	}

	b := hub.Board()
	var buf bytes.Buffer
	if err := render.WritePDF(&buf, b.Width, b.Height, hub.SnapshotSince(model.NoCursor)); err != nil {
		sendError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to write PDF: "+err.Error())
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+boardID+".pdf")
	c.Data(http.StatusOK, "application/pdf", buf.Bytes())
}

// GetLogs handles GET /api/boards/:id/logs - downloads the board journal.
func (h *BoardHandler) GetLogs(c *gin.Context) {
	boardID := c.Param("id")

	b, err := h.boardManager.Get(c.Request.Context(), boardID)
	if err != nil {
		sendManagerError(c, boardID, "get board", err)
		return
	}

	if b.LogFilePath == "" {
		sendError(c, http.StatusNotFound, "LOG_NOT_FOUND", "Log file not found for board "+boardID)
		return
	}
	if err := h.boardManager.Flush(c.Request.Context(), boardID); err != nil {
		log.Printf("Failed to flush journal of board %s: %v", boardID, err)
	}
	if _, err := os.Stat(b.LogFilePath); err != nil {
		sendError(c, http.StatusNotFound, "LOG_NOT_FOUND", "Log file not found for board "+boardID)
		return
	}

	// Set headers for file download
	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Content-Disposition", "attachment; filename="+boardID+".jsonl")

	// Stream the file
	c.File(b.LogFilePath)
}

// RegisterRoutes registers the board handler routes on a Gin router group.
func (h *BoardHandler) RegisterRoutes(rg *gin.RouterGroup) {
	boards := rg.Group("/boards")
	{
		boards.POST("", h.Create)
		boards.GET("", h.List)
		boards.GET("/:id", h.Get)
		boards.DELETE("/:id", h.Delete)
		boards.GET("/:id/events", h.Events)
		boards.GET("/:id/clients", h.Clients)
		boards.POST("/:id/compact", h.Compact)
		boards.GET("/:id/export.png", h.ExportPNG)
		boards.GET("/:id/export.pdf", h.ExportPDF)
		boards.GET("/:id/logs", h.GetLogs)
	}
}
