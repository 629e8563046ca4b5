package model

import "errors"

var (
	// ErrNameRequired is returned when a board creation request has no name.
	ErrNameRequired = errors.New("board name is required")

	// ErrInvalidDimensions is returned when a board size is not positive or
	// too large.
	ErrInvalidDimensions = errors.New("invalid board dimensions")

	// ErrBoardNotFound is returned when a board is not found.
	ErrBoardNotFound = errors.New("board not found")

	// ErrBoardLimit is returned when the maximum number of boards is reached.
	ErrBoardLimit = errors.New("board limit exceeded")

	// ErrMalformedEvent is returned when an event fails validation. It is
	// wrapped with the concrete reason.
	ErrMalformedEvent = errors.New("malformed event")

	// ErrUnknownClient is returned when an event arrives from a client that is
	// not connected to the board.
	ErrUnknownClient = errors.New("unknown client")

	// ErrHubClosed is returned when a board's hub has been shut down.
	ErrHubClosed = errors.New("hub closed")

	// ErrAgentClosed is returned when a sync agent is used after it stopped.
	ErrAgentClosed = errors.New("sync agent closed")

	// ErrInvalidToken is returned when a join token cannot be verified.
	ErrInvalidToken = errors.New("invalid join token")
)
