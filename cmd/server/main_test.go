package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shared-canvas/backend/internal/agent"
	"github.com/shared-canvas/backend/internal/auth"
	"github.com/shared-canvas/backend/internal/model"
	"github.com/shared-canvas/backend/internal/store"
	"github.com/shared-canvas/backend/internal/ws"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Chdir(t.TempDir())

	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestConfigCmd(t *testing.T) {
	t.Setenv("DRAWBOARD_PORT", "9090")
	t.Setenv("DRAWBOARD_AUTH_SECRET", "hidden")

	out, err := execute(t, "config")
	require.NoError(t, err)
	assert.Contains(t, out, "port = 9090")
	assert.Contains(t, out, "default_board")
	assert.NotContains(t, out, "hidden")
}

func TestTokenCmd(t *testing.T) {
	t.Setenv("DRAWBOARD_AUTH_SECRET", "s3cret")

	out, err := execute(t, "token", "--client", "bob")
	require.NoError(t, err)

	issuer, err := auth.NewIssuer("s3cret", 0)
	require.NoError(t, err)
	clientID, err := issuer.Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "bob", clientID)
}

func TestTokenCmdRequiresSecret(t *testing.T) {
	_, err := execute(t, "token", "--client", "bob")
	assert.Error(t, err)
}

func TestLoadScript(t *testing.T) {
	events, err := loadScript(strings.NewReader(`[
		{"type":"draw","x1":0,"y1":0,"x2":10,"y2":10,"color":"#000000","width":5},
		{"type":"clear"}
	]`))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, float64(5), events[0].Width)
	assert.True(t, events[1].IsClear())

	_, err = loadScript(strings.NewReader(`[{"type":"draw"}]`))
	assert.ErrorIs(t, err, model.ErrMalformedEvent)

	_, err = loadScript(strings.NewReader(`{`))
	assert.Error(t, err)
}

func TestRunClient(t *testing.T) {
	svc := ws.NewService()
	b := &model.Board{ID: "default", Name: "Shared canvas", Width: 64, Height: 48}
	hub, err := svc.AttachBoard(b, store.New(b.ID), 0)
	require.NoError(t, err)
	defer svc.Close()

	mux := http.NewServeMux()
	mux.HandleFunc("/api/boards/default/attach", func(w http.ResponseWriter, r *http.Request) {
		svc.Handler().HandleConnection(w, r, hub, r.URL.Query().Get("clientId"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	dir := t.TempDir()
	script := filepath.Join(dir, "script.json")
	require.NoError(t, os.WriteFile(script, []byte(`[
		{"type":"draw","x1":1,"y1":1,"x2":30,"y2":20,"color":"#ff0000","width":3},
		{"type":"draw","x1":5,"y1":40,"x2":60,"y2":2,"color":"#0000ff","width":2}
	]`), 0o644))
	png := filepath.Join(dir, "out.png")

	var out bytes.Buffer
	err = runClient(context.Background(), &out, clientOptions{
		server:   server.URL,
		boardID:  "default",
		clientID: "cli",
		script:   script,
		out:      png,
		timeout:  5 * time.Second,
	})
	require.NoError(t, err)

	var state agent.State
	require.NoError(t, json.Unmarshal(out.Bytes(), &state))
	assert.Equal(t, uint64(2), state.LastSequenceID)
	assert.Equal(t, "cli", state.ClientID)
	assert.Equal(t, 2, state.Submitted)

	_, err = os.Stat(png)
	assert.NoError(t, err)
	assert.Equal(t, uint64(2), hub.LastSequenceID())
}
