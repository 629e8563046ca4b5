// Package client exposes the board sync agent for programs outside this
// module, such as a desktop or browser bridge that owns the drawing surface.
package client

import (
	"github.com/shared-canvas/backend/internal/agent"
	"github.com/shared-canvas/backend/internal/model"
	"github.com/shared-canvas/backend/internal/render"
)

// Re-export types from the internal packages for external use
type (
	Agent         = agent.Agent
	Options       = agent.Options
	State         = agent.State
	Renderer      = render.Renderer
	Raster        = render.Raster
	BoardEvent    = model.BoardEvent
	StrokeSegment = model.StrokeSegment
)

// ErrClosed is returned by an agent that has stopped.
var ErrClosed = model.ErrAgentClosed

// New creates a sync agent. Call Run to connect it.
func New(opts Options) (*Agent, error) {
	return agent.New(opts)
}

// Connect creates an agent for a board on the relay at server, for example
// "http://localhost:8080". The agent draws into renderer, or into its own
// Raster when renderer is nil.
func Connect(server, boardID, clientID, token string, renderer Renderer) (*Agent, error) {
	u, err := agent.AttachURL(server, boardID, clientID, token)
	if err != nil {
		return nil, err
	}
	return agent.New(Options{URL: u, Renderer: renderer})
}

// NewRaster creates an in-memory renderer.
func NewRaster(width, height int) *Raster {
	return render.NewRaster(width, height)
}
