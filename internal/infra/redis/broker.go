package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/domain"
)

const defaultBrokerBuffer = 16

// Broker fans snapshots out through Redis pub/sub so subscribers attached to
// any instance see commits made on every other instance.
// Channel per session: quiz:session:{id}:events
type Broker struct {
	client *redis.Client
	buffer int
	log    *slog.Logger
}

func NewBroker(client *redis.Client, buffer int, log *slog.Logger) *Broker {
	if buffer <= 0 {
		buffer = defaultBrokerBuffer
	}
	if log == nil {
		log = slog.Default()
	}
	return &Broker{client: client, buffer: buffer, log: log}
}

func channelName(sessionID string) string {
	return "quiz:session:" + sessionID + ":events"
}

func (b *Broker) Publish(ctx context.Context, snapshot domain.Snapshot) error {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return b.client.Publish(ctx, channelName(snapshot.Session.ID), payload).Err()
}

// Subscribe returns once Redis has confirmed the subscription, so a publish
// that happens after it returns is never missed. A subscriber that falls
// behind by more than the buffer is dropped and its channel closed.
func (b *Broker) Subscribe(ctx context.Context, sessionID string) (<-chan domain.Snapshot, func(), error) {
	pubsub := b.client.Subscribe(ctx, channelName(sessionID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, fmt.Errorf("subscribe session %s: %w", sessionID, err)
	}

	out := make(chan domain.Snapshot, b.buffer)
	done := make(chan struct{})
	msgs := pubsub.Channel()

	go func() {
		defer close(out)
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var snap domain.Snapshot
				if err := json.Unmarshal([]byte(msg.Payload), &snap); err != nil {
					b.log.Warn("dropping malformed snapshot", "session_id", sessionID, "error", err)
					continue
				}
				select {
				case out <- snap:
				default:
					b.log.Warn("evicting slow subscriber", "session_id", sessionID, "version", snap.Session.Version)
					_ = pubsub.Close()
					return
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}
	return out, cancel, nil
}
