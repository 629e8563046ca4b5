package repository

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shared-canvas/backend/internal/db"
	"github.com/shared-canvas/backend/internal/model"
)

// generateID generates a unique ID for testing.
func generateID() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// A created board can be read back unchanged and disappears on delete.
func TestBoardCreationIntegrityProperty(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "board_test_*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	dbPath := filepath.Join(tmpDir, "test.db")
	db.ResetDB()
	testDB, err := db.InitDB(dbPath)
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	defer db.CloseDB()

	repo := NewBoardRepository(testDB)
	ctx := context.Background()

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	nonEmptyString := gen.AlphaString().SuchThat(func(s string) bool {
		return len(s) > 0 && len(s) <= 100
	})

	properties.Property("board creation persists to database and can be retrieved", prop.ForAll(
		func(name string, width, height int) bool {
			boardID := generateID()
			board := &model.Board{
				ID:          boardID,
				Name:        name,
				Width:       width,
				Height:      height,
				LogFilePath: filepath.Join(tmpDir, boardID+".jsonl"),
				CreatedAt:   time.Now(),
				UpdatedAt:   time.Now(),
			}

			if err := repo.Create(ctx, board); err != nil {
				t.Logf("failed to create board: %v", err)
				return false
			}

			retrieved, err := repo.GetByID(ctx, boardID)
			if err != nil {
				t.Logf("failed to retrieve board: %v", err)
				return false
			}

			if retrieved.ID != board.ID ||
				retrieved.Name != board.Name ||
				retrieved.Width != board.Width ||
				retrieved.Height != board.Height ||
				retrieved.LogFilePath != board.LogFilePath {
				t.Logf("retrieved board does not match created board")
				return false
			}

			if err := repo.Delete(ctx, boardID); err != nil {
				t.Logf("failed to delete board: %v", err)
				return false
			}

			_, err = repo.GetByID(ctx, boardID)
			return err == model.ErrBoardNotFound
		},
		nonEmptyString,
		gen.IntRange(1, 8000),
		gen.IntRange(1, 8000),
	))

	properties.TestingRun(t)
}
