package client

import (
	"errors"
	"testing"

	"github.com/shared-canvas/backend/internal/model"
)

func TestConnect(t *testing.T) {
	a, err := Connect("http://localhost:8080", "default", "me", "", NewRaster(10, 10))
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if a.Raster() != nil {
		t.Error("Expected the supplied renderer to be used")
	}
	if s := a.State(); s.Connected {
		t.Error("Agent should not connect before Run")
	}

	if _, err := Connect("gopher://x", "default", "", "", nil); err == nil {
		t.Error("Expected error for unsupported scheme")
	}
}

func TestErrClosed(t *testing.T) {
	if !errors.Is(ErrClosed, model.ErrAgentClosed) {
		t.Error("ErrClosed should match the agent's sentinel")
	}
}
