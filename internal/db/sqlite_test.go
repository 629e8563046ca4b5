package db

import (
	"path/filepath"
	"testing"
)

func TestInitDB(t *testing.T) {
	ResetDB()
	t.Cleanup(ResetDB)

	path := filepath.Join(t.TempDir(), "boards.db")
	database, err := InitDB(path)
	if err != nil {
		t.Fatalf("Failed to initialize database: %v", err)
	}
	if GetDB() != database {
		t.Error("GetDB should return the initialized connection")
	}

	again, err := InitDB(filepath.Join(t.TempDir(), "other.db"))
	if err != nil || again != database {
		t.Error("InitDB should only open the database once")
	}

	// Deleting a board removes its events on every pooled connection
	database.SetMaxOpenConns(4)
	if _, err := database.Exec(`INSERT INTO boards (id, name, width, height, log_file_path) VALUES ('b', 'B', 10, 10, '')`); err != nil {
		t.Fatalf("Failed to insert board: %v", err)
	}
	if _, err := database.Exec(`INSERT INTO board_events (board_id, sequence_id, type, source_client_id, accepted_at) VALUES ('b', 1, 'clear', 'a', CURRENT_TIMESTAMP)`); err != nil {
		t.Fatalf("Failed to insert event: %v", err)
	}
	if _, err := database.Exec(`DELETE FROM boards WHERE id = 'b'`); err != nil {
		t.Fatalf("Failed to delete board: %v", err)
	}

	var count int
	if err := database.QueryRow(`SELECT COUNT(*) FROM board_events`).Scan(&count); err != nil {
		t.Fatalf("Failed to count events: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected events to cascade, %d left", count)
	}

	ResetDB()
	if GetDB() != nil {
		t.Error("ResetDB should drop the connection")
	}
}

func TestNewTestDB(t *testing.T) {
	first, err := NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer first.Close()

	second, err := NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	defer second.Close()

	if _, err := first.Exec(`INSERT INTO boards (id, name, width, height, log_file_path) VALUES ('x', 'X', 1, 1, '')`); err != nil {
		t.Fatalf("Failed to insert board: %v", err)
	}

	var count int
	if err := second.QueryRow(`SELECT COUNT(*) FROM boards`).Scan(&count); err != nil {
		t.Fatalf("Failed to count boards: %v", err)
	}
	if count != 0 {
		t.Error("Test databases should be independent")
	}
}
