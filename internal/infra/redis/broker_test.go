package redis

import (
	"context"
	"testing"
	"time"

	"live-quiz-service/internal/domain"
)

func TestBrokerFansOutAcrossClients(t *testing.T) {
	_, client := newMiniredis(t)

	// Two brokers model two service instances sharing one Redis.
	publisher := NewBroker(client, 4, nil)
	subscriber := NewBroker(client, 4, nil)

	ch, cancel, err := subscriber.Subscribe(context.Background(), "s1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	for v := int64(1); v <= 3; v++ {
		snap := domain.Snapshot{Session: domain.Session{ID: "s1", Status: domain.StatusActive, Version: v}, QuestionCount: 2}
		if err := publisher.Publish(context.Background(), snap); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	for want := int64(1); want <= 3; want++ {
		select {
		case got := <-ch:
			if got.Session.Version != want || got.QuestionCount != 2 {
				t.Fatalf("expected version %d, got %+v", want, got)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for version %d", want)
		}
	}
}

func TestBrokerCancelClosesChannel(t *testing.T) {
	_, client := newMiniredis(t)
	broker := NewBroker(client, 1, nil)

	ch, cancel, err := broker.Subscribe(context.Background(), "s1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	cancel()
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("channel not closed after cancel")
	}
}
