package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shared-canvas/backend/internal/model"
)

// EventRepository persists accepted board events. It is the durable backend
// of the session store.
type EventRepository struct {
	db *sql.DB
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(db *sql.DB) *EventRepository {
	return &EventRepository{db: db}
}

// Insert stores one sequenced event.
func (r *EventRepository) Insert(ctx context.Context, boardID string, ev model.BoardEvent) error {
	query := `
		INSERT INTO board_events (board_id, sequence_id, type, source_client_id, x1, y1, x2, y2, color, width, accepted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var x1, y1, x2, y2, width sql.NullFloat64
	var color sql.NullString
	if seg := ev.StrokeSegment; seg != nil {
		x1 = sql.NullFloat64{Float64: seg.X1, Valid: true}
		y1 = sql.NullFloat64{Float64: seg.Y1, Valid: true}
		x2 = sql.NullFloat64{Float64: seg.X2, Valid: true}
		y2 = sql.NullFloat64{Float64: seg.Y2, Valid: true}
		width = sql.NullFloat64{Float64: seg.Width, Valid: true}
		color = sql.NullString{String: seg.Color, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		boardID,
		ev.SequenceID,
		string(ev.Type),
		ev.SourceClientID,
		x1, y1, x2, y2,
		color,
		width,
		ev.AcceptedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert event %d: %w", ev.SequenceID, err)
	}

	return nil
}

// Load returns the effective history of a board (from its latest clear
// onward) and the highest sequence id ever assigned on it.
func (r *EventRepository) Load(ctx context.Context, boardID string) ([]model.BoardEvent, uint64, error) {
	var lastSeq, lastClear sql.NullInt64
	err := r.db.QueryRowContext(ctx, `
		SELECT MAX(sequence_id), MAX(CASE WHEN type = ? THEN sequence_id END)
		FROM board_events
		WHERE board_id = ?
	`, string(model.EventTypeClear), boardID).Scan(&lastSeq, &lastClear)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read board cursor: %w", err)
	}
	if !lastSeq.Valid {
		return nil, 0, nil
	}

	from := int64(0)
	if lastClear.Valid {
		from = lastClear.Int64
	}
	events, err := r.ListSince(ctx, boardID, from)
	if err != nil {
		return nil, 0, err
	}
	return events, uint64(lastSeq.Int64), nil
}

// ListSince returns events with a sequence id >= from, in order.
func (r *EventRepository) ListSince(ctx context.Context, boardID string, from int64) ([]model.BoardEvent, error) {
	query := `
		SELECT sequence_id, type, source_client_id, x1, y1, x2, y2, color, width, accepted_at
		FROM board_events
		WHERE board_id = ? AND sequence_id >= ?
		ORDER BY sequence_id ASC
	`

	rows, err := r.db.QueryContext(ctx, query, boardID, from)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []model.BoardEvent
	for rows.Next() {
		var ev model.BoardEvent
		var evType string
		var x1, y1, x2, y2, width sql.NullFloat64
		var color sql.NullString

		err := rows.Scan(
			&ev.SequenceID,
			&evType,
			&ev.SourceClientID,
			&x1, &y1, &x2, &y2,
			&color,
			&width,
			&ev.AcceptedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}

		ev.Type = model.EventType(evType)
		if ev.Type == model.EventTypeDraw {
			ev.StrokeSegment = &model.StrokeSegment{
				X1:    x1.Float64,
				Y1:    y1.Float64,
				X2:    x2.Float64,
				Y2:    y2.Float64,
				Color: color.String,
				Width: width.Float64,
			}
		}
		events = append(events, ev)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	return events, nil
}

// DeleteBefore removes every event with a sequence id lower than seq.
func (r *EventRepository) DeleteBefore(ctx context.Context, boardID string, seq uint64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM board_events WHERE board_id = ? AND sequence_id < ?`, boardID, seq)
	if err != nil {
		return fmt.Errorf("failed to compact events: %w", err)
	}
	return nil
}

// Count returns the number of stored events for a board.
func (r *EventRepository) Count(ctx context.Context, boardID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM board_events WHERE board_id = ?`, boardID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}
