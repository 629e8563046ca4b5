package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shared-canvas/backend/internal/agent"
	"github.com/shared-canvas/backend/internal/model"
)

type clientOptions struct {
	server   string
	boardID  string
	clientID string
	token    string
	script   string
	out      string
	timeout  time.Duration
	follow   bool
}

func newClientCmd() *cobra.Command {
	opts := clientOptions{}

	cmd := &cobra.Command{
		Use:   "client",
		Short: "Join a board as a headless participant",
		Long:  "client joins a board, optionally draws the events of a script file (a JSON array of draw and clear events), waits until they are confirmed and writes what it sees to a PNG file.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runClient(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.server, "server", "http://localhost:8080", "relay address")
	cmd.Flags().StringVar(&opts.boardID, "board", "default", "board to join")
	cmd.Flags().StringVar(&opts.clientID, "client-id", "", "client id (default: assigned by the relay)")
	cmd.Flags().StringVar(&opts.token, "token", "", "join token")
	cmd.Flags().StringVar(&opts.script, "script", "", "JSON file of events to draw")
	cmd.Flags().StringVar(&opts.out, "out", "", "write the final picture to this PNG file")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "how long to wait for the relay")
	cmd.Flags().BoolVar(&opts.follow, "follow", false, "stay connected until interrupted")

	return cmd
}

func runClient(ctx context.Context, out io.Writer, opts clientOptions) error {
	var script []model.BoardEvent
	if opts.script != "" {
		f, err := os.Open(opts.script)
		if err != nil {
			return fmt.Errorf("open script: %w", err)
		}
		script, err = loadScript(f)
		f.Close()
		if err != nil {
			return err
		}
	}

	u, err := agent.AttachURL(opts.server, opts.boardID, opts.clientID, opts.token)
	if err != nil {
		return err
	}
	a, err := agent.New(agent.Options{URL: u})
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- a.Run(runCtx) }()

	if err := waitUntil(ctx, opts.timeout, func() bool { return a.State().Connected }); err != nil {
		cancel()
		<-done
		return fmt.Errorf("join board %s: %w", opts.boardID, err)
	}
	log.Printf("Joined board %s as %s", opts.boardID, a.State().ClientID)

	for _, ev := range script {
		if ev.IsClear() {
			err = a.SubmitClear()
		} else {
			err = a.SubmitStroke(*ev.StrokeSegment)
		}
		if err != nil {
			return err
		}
	}

	settleErr := waitUntil(ctx, opts.timeout, func() bool {
		s := a.State()
		return s.Submitted == len(script) && s.Settled()
	})

	if opts.follow && settleErr == nil {
		<-ctx.Done()
	}

	cancel()
	if err := <-done; err != nil {
		return err
	}

	if opts.out != "" {
		if err := a.Raster().SavePNG(opts.out); err != nil {
			return fmt.Errorf("save picture: %w", err)
		}
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(a.State()); err != nil {
		return err
	}
	return settleErr
}

// loadScript reads a JSON array of events. Every event must be a draw with
// a segment or a clear.
func loadScript(r io.Reader) ([]model.BoardEvent, error) {
	var events []model.BoardEvent
	if err := json.NewDecoder(r).Decode(&events); err != nil {
		return nil, fmt.Errorf("parse script: %w", err)
	}
	for i, ev := range events {
		switch {
		case ev.IsClear():
		case ev.Type == model.EventTypeDraw && ev.StrokeSegment != nil:
		default:
			return nil, fmt.Errorf("parse script: event %d: %w", i, model.ErrMalformedEvent)
		}
	}
	return events, nil
}

// waitUntil polls cond until it holds, ctx ends or timeout passes.
func waitUntil(ctx context.Context, timeout time.Duration, cond func() bool) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(timeout)

	for !cond() {
		select {
		case <-ticker.C:
		case <-deadline:
			return fmt.Errorf("timed out after %s", timeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
