package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shared-canvas/backend/internal/model"
)

// BoardRepository provides data access for boards.
type BoardRepository struct {
	db *sql.DB
}

// NewBoardRepository creates a new BoardRepository.
func NewBoardRepository(db *sql.DB) *BoardRepository {
	return &BoardRepository{db: db}
}

// Create inserts a new board into the database.
func (r *BoardRepository) Create(ctx context.Context, board *model.Board) error {
	query := `
		INSERT INTO boards (id, name, width, height, log_file_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		board.ID,
		board.Name,
		board.Width,
		board.Height,
		board.LogFilePath,
		board.CreatedAt,
		board.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create board: %w", err)
	}

	return nil
}

// GetByID retrieves a board by its ID.
func (r *BoardRepository) GetByID(ctx context.Context, id string) (*model.Board, error) {
	query := `
		SELECT id, name, width, height, log_file_path, created_at, updated_at
		FROM boards
		WHERE id = ?
	`

	board := &model.Board{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&board.ID,
		&board.Name,
		&board.Width,
		&board.Height,
		&board.LogFilePath,
		&board.CreatedAt,
		&board.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, model.ErrBoardNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get board: %w", err)
	}

	return board, nil
}

// List retrieves all boards, newest first.
func (r *BoardRepository) List(ctx context.Context) ([]*model.Board, error) {
	query := `
		SELECT id, name, width, height, log_file_path, created_at, updated_at
		FROM boards
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list boards: %w", err)
	}
	defer rows.Close()

	var boards []*model.Board
	for rows.Next() {
		board := &model.Board{}
		err := rows.Scan(
			&board.ID,
			&board.Name,
			&board.Width,
			&board.Height,
			&board.LogFilePath,
			&board.CreatedAt,
			&board.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan board: %w", err)
		}
		boards = append(boards, board)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating boards: %w", err)
	}

	return boards, nil
}

// Delete removes a board and, through the foreign key, its events.
func (r *BoardRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM boards WHERE id = ?`

	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete board: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return model.ErrBoardNotFound
	}

	return nil
}

// Touch bumps the board's updated_at timestamp.
func (r *BoardRepository) Touch(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE boards SET updated_at = ? WHERE id = ?`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to touch board: %w", err)
	}
	return nil
}

// Count returns the number of boards.
func (r *BoardRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM boards`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count boards: %w", err)
	}
	return count, nil
}

// Exists checks if a board exists.
func (r *BoardRepository) Exists(ctx context.Context, id string) (bool, error) {
	query := `SELECT 1 FROM boards WHERE id = ? LIMIT 1`

	var exists int
	err := r.db.QueryRowContext(ctx, query, id).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check board existence: %w", err)
	}

	return true, nil
}
