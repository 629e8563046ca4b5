package ws

import (
	"log"
	"sync"

	"github.com/shared-canvas/backend/internal/model"
	"github.com/shared-canvas/backend/internal/store"
)

// Service ties board lifecycle to the hub manager and the connection
// handler. Boards stay open when every client has left; the log is kept.
type Service struct {
	hubManager *HubManager
	handler    *Handler

	// Called when the last client leaves a board
	onIdle func(boardID string)

	mu sync.RWMutex
}

// NewService creates a new WebSocket service.
func NewService() *Service {
	hubManager := NewHubManager()
	return &Service{
		hubManager: hubManager,
		handler:    NewHandler(hubManager),
	}
}

// SetOnIdle sets the callback for when the last client leaves a board.
func (s *Service) SetOnIdle(callback func(boardID string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onIdle = callback
}

// Handler returns the WebSocket handler.
func (s *Service) Handler() *Handler {
	return s.handler
}

// HubManager returns the hub manager.
func (s *Service) HubManager() *HubManager {
	return s.hubManager
}

// AttachBoard returns the hub of board, creating it over st with the given
// sinks if the board is not open yet. st and sinks are ignored when the hub
// already exists.
func (s *Service) AttachBoard(board *model.Board, st *store.Store, maxStrokeWidth float64, sinks ...EventSink) (*Hub, error) {
	boardID := board.ID
	return s.hubManager.GetOrCreate(boardID, func() (*Hub, error) {
		hub := NewHub(board, st, maxStrokeWidth)
		for _, sink := range sinks {
			hub.AddSink(sink)
		}
		hub.SetOnClose(func() {
			log.Printf("All clients left board %s, log is kept", boardID)

			s.mu.RLock()
			callback := s.onIdle
			s.mu.RUnlock()
			if callback != nil {
				callback(boardID)
			}
		})
		return hub, nil
	})
}

// DetachBoard closes every connection of a board and drops its hub.
func (s *Service) DetachBoard(boardID string) {
	s.hubManager.Remove(boardID)
}

// GetBoardClientCount returns the number of connected clients for a board.
func (s *Service) GetBoardClientCount(boardID string) int {
	hub := s.hubManager.Get(boardID)
	if hub == nil {
		return 0
	}
	return hub.ClientCount()
}

// IsBoardConnected returns true if any client is connected to the board.
func (s *Service) IsBoardConnected(boardID string) bool {
	return s.GetBoardClientCount(boardID) > 0
}

// Close closes all WebSocket connections and cleans up resources.
func (s *Service) Close() {
	s.hubManager.Close()
}
