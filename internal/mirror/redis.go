// Package mirror publishes accepted board events to Redis so other
// processes can follow a board without joining it.
package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"github.com/shared-canvas/backend/internal/model"
)

// Mirror holds the Redis connection shared by all boards.
type Mirror struct {
	redis  *redis.Client
	prefix string
}

// New connects to Redis and checks the connection.
func New(ctx context.Context, opts *redis.Options, prefix string) (*Mirror, error) {
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	if prefix == "" {
		prefix = "drawboard"
	}
	return &Mirror{redis: rdb, prefix: prefix}, nil
}

// Channel returns the pub/sub channel of a board.
func (m *Mirror) Channel(boardID string) string {
	return fmt.Sprintf("%s:board:%s:events", m.prefix, boardID)
}

// ForBoard returns the event sink of one board.
func (m *Mirror) ForBoard(boardID string) *BoardPublisher {
	return &BoardPublisher{mirror: m, channel: m.Channel(boardID)}
}

// Subscribe follows a board's events until ctx is done. The returned
// channel is closed when the subscription ends.
func (m *Mirror) Subscribe(ctx context.Context, boardID string) (<-chan model.BoardEvent, error) {
	pubsub := m.redis.Subscribe(ctx, m.Channel(boardID))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	out := make(chan model.BoardEvent, 64)
	go func() {
		defer close(out)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var ev model.BoardEvent
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					log.Printf("Failed to unmarshal mirrored event: %v", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close closes the Redis connection.
func (m *Mirror) Close() error {
	return m.redis.Close()
}

// BoardPublisher publishes the events of one board.
type BoardPublisher struct {
	mirror  *Mirror
	channel string
}

// Publish sends an accepted event to the board's channel.
func (p *BoardPublisher) Publish(ctx context.Context, ev model.BoardEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.mirror.redis.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event %d: %w", ev.SequenceID, err)
	}
	return nil
}
