package model

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultBoardWidth     = 1920
	DefaultBoardHeight    = 1080
	DefaultMaxStrokeWidth = 50

	// Largest board a relay or agent will allocate a canvas for.
	MaxBoardWidth  = 8192
	MaxBoardHeight = 8192
)

// Board is one independent drawing session with its own event log.
type Board struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	LogFilePath string    `json:"logFilePath"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Bounds returns the logical coordinate space events are validated against.
func (b *Board) Bounds() Bounds {
	return Bounds{Width: float64(b.Width), Height: float64(b.Height)}
}

// Age returns how long the board has existed.
func (b *Board) Age() time.Duration {
	return time.Since(b.CreatedAt)
}

// CreateBoardRequest represents a request to create a new board.
type CreateBoardRequest struct {
	ID     string `json:"-"`
	Name   string `json:"name" binding:"required"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Validate fills in default dimensions and checks the request.
func (r *CreateBoardRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return ErrNameRequired
	}
	if r.Width == 0 {
		r.Width = DefaultBoardWidth
	}
	if r.Height == 0 {
		r.Height = DefaultBoardHeight
	}
	return CheckDimensions(r.Width, r.Height, MaxBoardWidth, MaxBoardHeight)
}

// CheckDimensions reports whether a board of width×height is positive and
// within the given limits.
func CheckDimensions(width, height, maxWidth, maxHeight int) error {
	if width <= 0 || height <= 0 {
		return ErrInvalidDimensions
	}
	if width > maxWidth || height > maxHeight {
		return fmt.Errorf("%w: %dx%d exceeds %dx%d", ErrInvalidDimensions, width, height, maxWidth, maxHeight)
	}
	return nil
}

// ClientSession represents one live connection to a board.
type ClientSession struct {
	ClientID            string    `json:"clientId"`
	ConnectedAt         time.Time `json:"connectedAt"`
	LastAckedSequenceID uint64    `json:"lastAckedSequenceId"`
}
