// Package logger records the accepted events of a board as a JSON-lines
// journal that can be downloaded and read back.
package logger

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/shared-canvas/backend/internal/model"
)

const journalVersion = 1

// Entry kinds.
const (
	KindDraw  = "d"
	KindClear = "c"
)

// JournalHeader is the first line of a journal.
type JournalHeader struct {
	Version   int    `json:"version"`
	BoardID   string `json:"boardId"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	Timestamp int64  `json:"timestamp"`
}

// JournalEntry is one accepted event.
// Format: [time_offset, kind, event]
type JournalEntry struct {
	TimeOffset float64
	Kind       string
	Event      model.BoardEvent
}

// MarshalJSON implements custom JSON marshaling for JournalEntry.
func (e JournalEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([]any{e.TimeOffset, e.Kind, e.Event})
}

// UnmarshalJSON implements custom JSON unmarshaling for JournalEntry.
func (e *JournalEntry) UnmarshalJSON(data []byte) error {
	var arr []json.RawMessage
	if err := json.Unmarshal(data, &arr); err != nil {
		return err
	}
	if len(arr) != 3 {
		return fmt.Errorf("invalid entry format: expected 3 elements, got %d", len(arr))
	}

	if err := json.Unmarshal(arr[0], &e.TimeOffset); err != nil {
		return fmt.Errorf("invalid time offset: %w", err)
	}
	if err := json.Unmarshal(arr[1], &e.Kind); err != nil {
		return fmt.Errorf("invalid entry kind: %w", err)
	}
	if e.Kind != KindDraw && e.Kind != KindClear {
		return fmt.Errorf("invalid entry kind %q", e.Kind)
	}
	if err := json.Unmarshal(arr[2], &e.Event); err != nil {
		return fmt.Errorf("invalid entry event: %w", err)
	}

	return nil
}

// Journal appends accepted events of one board to a JSON-lines file. It is
// registered as an event sink on the board's hub.
type Journal struct {
	writer    io.Writer
	file      *os.File // only set if we own the file
	startTime time.Time
	mu        sync.Mutex
}

// OpenJournal opens the journal at filePath for appending. A header is
// written when the file is new or empty.
func OpenJournal(filePath string, board *model.Board) (*Journal, error) {
	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat journal: %w", err)
	}

	j := &Journal{
		writer:    file,
		file:      file,
		startTime: time.Now(),
	}
	if info.Size() == 0 {
		if err := j.WriteHeader(board); err != nil {
			file.Close()
			return nil, err
		}
	}
	return j, nil
}

// NewJournalWithWriter creates a Journal that writes to w.
// This is useful for testing.
func NewJournalWithWriter(w io.Writer) *Journal {
	return &Journal{
		writer:    w,
		startTime: time.Now(),
	}
}

// WriteHeader writes the journal header line.
func (j *Journal) WriteHeader(board *model.Board) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	header := JournalHeader{
		Version:   journalVersion,
		BoardID:   board.ID,
		Width:     board.Width,
		Height:    board.Height,
		Timestamp: j.startTime.Unix(),
	}

	data, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}

	if _, err := j.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	return nil
}

// Publish records an accepted event.
func (j *Journal) Publish(ctx context.Context, ev model.BoardEvent) error {
	kind := KindDraw
	if ev.IsClear() {
		kind = KindClear
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	entry := JournalEntry{
		TimeOffset: time.Since(j.startTime).Seconds(),
		Kind:       kind,
		Event:      ev,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}

	if _, err := j.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write entry: %w", err)
	}

	return nil
}

// Close closes the journal file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file != nil {
		return j.file.Close()
	}
	return nil
}

// StartTime returns when the journal was opened.
func (j *Journal) StartTime() time.Time {
	return j.startTime
}

// ReadJournal parses a journal. A journal reopened after a restart has
// offsets that restart at zero; entries keep file order.
func ReadJournal(r io.Reader) (*JournalHeader, []JournalEntry, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, nil, fmt.Errorf("failed to read header: %w", err)
		}
		return nil, nil, fmt.Errorf("empty journal")
	}

	var header JournalHeader
	if err := json.Unmarshal(scanner.Bytes(), &header); err != nil {
		return nil, nil, fmt.Errorf("failed to parse header: %w", err)
	}

	var entries []JournalEntry
	for line := 2; scanner.Scan(); line++ {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var entry JournalEntry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return nil, nil, fmt.Errorf("line %d: %w", line, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read journal: %w", err)
	}

	return &header, entries, nil
}
