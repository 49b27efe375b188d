package memory

import (
	"context"
	"log/slog"
	"sync"

	"live-quiz-service/internal/domain"
)

const defaultBrokerBuffer = 16

// Broker fans snapshots out to subscribers within this process.
type Broker struct {
	buffer int
	log    *slog.Logger

	mu     sync.Mutex
	topics map[string]map[chan domain.Snapshot]struct{}
}

func NewBroker(buffer int, log *slog.Logger) *Broker {
	if buffer <= 0 {
		buffer = defaultBrokerBuffer
	}
	if log == nil {
		log = slog.Default()
	}
	return &Broker{
		buffer: buffer,
		log:    log,
		topics: make(map[string]map[chan domain.Snapshot]struct{}),
	}
}

func (b *Broker) Subscribe(_ context.Context, sessionID string) (<-chan domain.Snapshot, func(), error) {
	ch := make(chan domain.Snapshot, b.buffer)

	b.mu.Lock()
	subs, ok := b.topics[sessionID]
	if !ok {
		subs = make(map[chan domain.Snapshot]struct{})
		b.topics[sessionID] = subs
	}
	subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.removeLocked(sessionID, ch)
	}
	return ch, cancel, nil
}

// Publish never blocks. A subscriber whose buffer is full is evicted: its
// channel is closed and it must resubscribe to catch up.
func (b *Broker) Publish(_ context.Context, snapshot domain.Snapshot) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	sessionID := snapshot.Session.ID
	for ch := range b.topics[sessionID] {
		select {
		case ch <- snapshot:
		default:
			b.log.Warn("evicting slow subscriber", "session_id", sessionID, "version", snapshot.Session.Version)
			b.removeLocked(sessionID, ch)
		}
	}
	return nil
}

// Subscribers returns the number of open subscriptions for a session.
func (b *Broker) Subscribers(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[sessionID])
}

func (b *Broker) removeLocked(sessionID string, ch chan domain.Snapshot) {
	subs := b.topics[sessionID]
	if _, ok := subs[ch]; !ok {
		return
	}
	delete(subs, ch)
	close(ch)
	if len(subs) == 0 {
		delete(b.topics, sessionID)
	}
}
