package logger

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shared-canvas/backend/internal/model"
)

func testBoard() *model.Board {
	return &model.Board{ID: "board-1", Name: "Test", Width: 800, Height: 600}
}

func TestJournal_WriteAndRead(t *testing.T) {
	var buf bytes.Buffer
	j := NewJournalWithWriter(&buf)
	ctx := context.Background()

	if err := j.WriteHeader(testBoard()); err != nil {
		t.Fatalf("failed to write header: %v", err)
	}

	stroke := model.NewStrokeEvent(model.StrokeSegment{X1: 1, Y1: 2, X2: 3, Y2: 4, Color: "#123456", Width: 3})
	stroke.SequenceID = 1
	stroke.SourceClientID = "a"
	clear := model.NewClearEvent()
	clear.SequenceID = 2
	clear.SourceClientID = "b"

	if err := j.Publish(ctx, stroke); err != nil {
		t.Fatalf("failed to publish stroke: %v", err)
	}
	if err := j.Publish(ctx, clear); err != nil {
		t.Fatalf("failed to publish clear: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if !strings.HasPrefix(lines[2], "[") || !strings.Contains(lines[2], `"c"`) {
		t.Errorf("unexpected clear entry: %s", lines[2])
	}

	header, entries, err := ReadJournal(&buf)
	if err != nil {
		t.Fatalf("failed to read journal: %v", err)
	}
	if header.BoardID != "board-1" || header.Width != 800 || header.Height != 600 {
		t.Errorf("unexpected header: %+v", header)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Kind != KindDraw || entries[0].Event.Color != "#123456" || entries[0].Event.SequenceID != 1 {
		t.Errorf("unexpected draw entry: %+v", entries[0])
	}
	if entries[1].Kind != KindClear || !entries[1].Event.IsClear() {
		t.Errorf("unexpected clear entry: %+v", entries[1])
	}
	if entries[1].TimeOffset < entries[0].TimeOffset {
		t.Errorf("time offsets went backwards: %f < %f", entries[1].TimeOffset, entries[0].TimeOffset)
	}
}

func TestJournalEntry_UnmarshalRejectsBadShape(t *testing.T) {
	cases := []string{
		`[0.1, "d"]`,
		`["x", "d", {"type":"clear"}]`,
		`[0.1, "o", {"type":"clear"}]`,
		`{"kind":"d"}`,
	}
	for _, c := range cases {
		var e JournalEntry
		if err := e.UnmarshalJSON([]byte(c)); err == nil {
			t.Errorf("expected error for %s", c)
		}
	}
}

func TestOpenJournal_HeaderOnlyOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "board-1.jsonl")

	j, err := OpenJournal(path, testBoard())
	if err != nil {
		t.Fatalf("failed to open journal: %v", err)
	}
	if err := j.Publish(context.Background(), model.NewClearEvent()); err != nil {
		t.Fatalf("failed to publish: %v", err)
	}
	j.Close()

	// Reopening appends without a second header
	j, err = OpenJournal(path, testBoard())
	if err != nil {
		t.Fatalf("failed to reopen journal: %v", err)
	}
	if time.Since(j.StartTime()) > time.Minute {
		t.Errorf("unexpected start time %v", j.StartTime())
	}
	if err := j.Publish(context.Background(), model.NewClearEvent()); err != nil {
		t.Fatalf("failed to publish: %v", err)
	}
	j.Close()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("failed to open file: %v", err)
	}
	defer f.Close()

	_, entries, err := ReadJournal(f)
	if err != nil {
		t.Fatalf("failed to read journal: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("expected 2 entries across reopen, got %d", len(entries))
	}
}

func TestReadJournal_Empty(t *testing.T) {
	if _, _, err := ReadJournal(strings.NewReader("")); err == nil {
		t.Error("expected error for empty journal")
	}
}
