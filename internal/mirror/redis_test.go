package mirror

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shared-canvas/backend/internal/model"
)

func TestChannelName(t *testing.T) {
	m := &Mirror{prefix: "drawboard"}
	assert.Equal(t, "drawboard:board:abc:events", m.Channel("abc"))
	assert.Equal(t, "drawboard:board:abc:events", m.ForBoard("abc").channel)
}

func TestNewFailsWithoutServer(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := New(ctx, &redis.Options{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond}, "")
	assert.Error(t, err)
}

// Needs a running server: REDIS_ADDR=localhost:6379 go test ./internal/mirror
func TestPublishSubscribe(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	m, err := New(ctx, &redis.Options{Addr: addr}, "drawboard-test")
	require.NoError(t, err)
	defer m.Close()

	events, err := m.Subscribe(ctx, "board-1")
	require.NoError(t, err)

	ev := model.NewStrokeEvent(model.StrokeSegment{X1: 1, Y1: 2, X2: 3, Y2: 4, Color: "#fff", Width: 1})
	ev.SequenceID = 9
	require.NoError(t, m.ForBoard("board-1").Publish(ctx, ev))

	select {
	case got := <-events:
		assert.Equal(t, uint64(9), got.SequenceID)
		assert.Equal(t, "#fff", got.Color)
	case <-ctx.Done():
		t.Fatal("timed out waiting for mirrored event")
	}
}
