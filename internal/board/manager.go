// Package board manages the lifecycle of boards: their records, their event
// logs and the relay hubs that serve them.
package board

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shared-canvas/backend/internal/logger"
	"github.com/shared-canvas/backend/internal/model"
	"github.com/shared-canvas/backend/internal/repository"
	"github.com/shared-canvas/backend/internal/store"
	"github.com/shared-canvas/backend/internal/ws"
)

// SinkFactory builds an extra event sink for a board when its hub opens.
type SinkFactory func(board *model.Board) ws.EventSink

// Manager manages boards.
type Manager struct {
	boards    *repository.BoardRepository
	events    *repository.EventRepository
	wsService *ws.Service
	logDir    string

	// Configuration
	maxBoards        int
	maxBoardWidth    int
	maxBoardHeight   int
	maxStrokeWidth   float64
	compactThreshold int

	mu       sync.Mutex
	journals map[string]*logger.Journal
	sinks    []SinkFactory
}

// Config holds configuration for the board manager.
type Config struct {
	LogDir           string
	MaxBoards        int
	MaxBoardWidth    int
	MaxBoardHeight   int
	MaxStrokeWidth   float64
	CompactThreshold int
}

// NewManager creates a new board manager.
func NewManager(boards *repository.BoardRepository, events *repository.EventRepository, wsService *ws.Service, config Config) *Manager {
	if config.MaxBoards == 0 {
		config.MaxBoards = 100 // Default limit
	}
	if config.MaxBoardWidth == 0 {
		config.MaxBoardWidth = model.MaxBoardWidth
	}
	if config.MaxBoardHeight == 0 {
		config.MaxBoardHeight = model.MaxBoardHeight
	}
	if config.MaxStrokeWidth == 0 {
		config.MaxStrokeWidth = model.DefaultMaxStrokeWidth
	}

	m := &Manager{
		boards:           boards,
		events:           events,
		wsService:        wsService,
		logDir:           config.LogDir,
		maxBoards:        config.MaxBoards,
		maxBoardWidth:    config.MaxBoardWidth,
		maxBoardHeight:   config.MaxBoardHeight,
		maxStrokeWidth:   config.MaxStrokeWidth,
		compactThreshold: config.CompactThreshold,
		journals:         make(map[string]*logger.Journal),
	}

	wsService.SetOnIdle(func(boardID string) {
		if err := boards.Touch(context.Background(), boardID); err != nil {
			log.Printf("Failed to touch board %s: %v", boardID, err)
		}
	})

	return m
}

// AddSinkFactory registers a sink that is attached to every hub opened
// from now on.
func (m *Manager) AddSinkFactory(f SinkFactory) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sinks = append(m.sinks, f)
}

// MaxStrokeWidth returns the widest stroke the hubs accept.
func (m *Manager) MaxStrokeWidth() float64 {
	return m.maxStrokeWidth
}

// Create creates a new board.
func (m *Manager) Create(ctx context.Context, req *model.CreateBoardRequest) (*model.Board, error) {
	// Validate request
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := model.CheckDimensions(req.Width, req.Height, m.maxBoardWidth, m.maxBoardHeight); err != nil {
		return nil, err
	}

	// Check board limit
	count, err := m.boards.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count boards: %w", err)
	}
	if count >= m.maxBoards {
		return nil, fmt.Errorf("%w: maximum boards (%d) reached", model.ErrBoardLimit, m.maxBoards)
	}

	boardID := req.ID
	if boardID == "" {
		boardID = uuid.New().String()
	}

	now := time.Now()
	board := &model.Board{
		ID:          boardID,
		Name:        req.Name,
		Width:       req.Width,
		Height:      req.Height,
		LogFilePath: filepath.Join(m.logDir, fmt.Sprintf("%s.jsonl", boardID)),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	// Persist to database
	if err := m.boards.Create(ctx, board); err != nil {
		return nil, fmt.Errorf("failed to persist board: %w", err)
	}

	return board, nil
}

// EnsureDefault creates the board with the given id unless it exists.
func (m *Manager) EnsureDefault(ctx context.Context, id, name string, width, height int) (*model.Board, error) {
	board, err := m.boards.GetByID(ctx, id)
	if err == nil {
		return board, nil
	}
	if !errors.Is(err, model.ErrBoardNotFound) {
		return nil, err
	}

	return m.Create(ctx, &model.CreateBoardRequest{ID: id, Name: name, Width: width, Height: height})
}

// Get retrieves a board by ID.
func (m *Manager) Get(ctx context.Context, id string) (*model.Board, error) {
	if hub := m.wsService.HubManager().Get(id); hub != nil {
		return hub.Board(), nil
	}
	return m.boards.GetByID(ctx, id)
}

// List retrieves all boards.
func (m *Manager) List(ctx context.Context) ([]*model.Board, error) {
	return m.boards.List(ctx)
}

// Hub returns the relay hub of a board, opening it on first use. Opening
// hydrates the store from the database and attaches the journal and any
// registered sinks.
func (m *Manager) Hub(ctx context.Context, id string) (*ws.Hub, error) {
	if hub := m.wsService.HubManager().Get(id); hub != nil {
		return hub, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another caller may have opened it while we waited
	if hub := m.wsService.HubManager().Get(id); hub != nil {
		return hub, nil
	}

	board, err := m.boards.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, board.ID,
		store.WithBackend(m.events),
		store.WithCompactThreshold(m.compactThreshold),
	)
	if err != nil {
		return nil, err
	}

	sinks := make([]ws.EventSink, 0, len(m.sinks)+1)
	journal, err := logger.OpenJournal(board.LogFilePath, board)
	if err != nil {
		// The board still works without its journal
		log.Printf("Failed to open journal for board %s: %v", board.ID, err)
	} else {
		m.journals[board.ID] = journal
		sinks = append(sinks, journal)
	}
	for _, f := range m.sinks {
		if sink := f(board); sink != nil {
			sinks = append(sinks, sink)
		}
	}

	hub, err := m.wsService.AttachBoard(board, st, m.maxStrokeWidth, sinks...)
	if err != nil {
		return nil, err
	}
	log.Printf("Opened board %s with %d events, next sequence %d", board.ID, st.Len(), st.LastSequenceID()+1)
	return hub, nil
}

// Compact drops the events hidden by a board's latest clear.
func (m *Manager) Compact(ctx context.Context, id string) (int, error) {
	hub, err := m.Hub(ctx, id)
	if err != nil {
		return 0, err
	}
	return hub.Compact(ctx)
}

// Delete closes a board's connections and removes it with its events and
// journal.
func (m *Manager) Delete(ctx context.Context, id string) error {
	board, err := m.boards.GetByID(ctx, id)
	if err != nil {
		return err
	}

	m.wsService.DetachBoard(id)

	m.mu.Lock()
	if journal, ok := m.journals[id]; ok {
		if err := journal.Close(); err != nil {
			log.Printf("Failed to close journal for board %s: %v", id, err)
		}
		delete(m.journals, id)
	}
	m.mu.Unlock()

	// Delete from database
	if err := m.boards.Delete(ctx, id); err != nil {
		return err
	}

	if err := os.Remove(board.LogFilePath); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to remove journal %s: %v", board.LogFilePath, err)
	}

	return nil
}

// Flush waits until an open board's sinks, its journal included, have
// caught up with the log.
func (m *Manager) Flush(ctx context.Context, id string) error {
	hub := m.wsService.HubManager().Get(id)
	if hub == nil {
		return nil
	}
	return hub.Flush(ctx)
}

// Activity reports the client count and last sequence id of a board whose
// hub is open. Closed boards report zeros.
func (m *Manager) Activity(id string) (int, uint64) {
	hub := m.wsService.HubManager().Get(id)
	if hub == nil {
		return 0, 0
	}
	return hub.ClientCount(), hub.LastSequenceID()
}

// Close closes all hubs and journals.
func (m *Manager) Close() error {
	m.wsService.Close()

	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for id, journal := range m.journals {
		if err := journal.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.journals, id)
	}

	return firstErr
}
