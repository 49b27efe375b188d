package memory

import (
	"context"
	"testing"
	"time"

	"live-quiz-service/internal/domain"
)

func snapshot(sessionID string, version int64) domain.Snapshot {
	return domain.Snapshot{Session: domain.Session{ID: sessionID, Version: version}}
}

func TestBrokerDeliversInOrder(t *testing.T) {
	broker := NewBroker(8, nil)
	ch, cancel, err := broker.Subscribe(context.Background(), "s1")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	for v := int64(1); v <= 3; v++ {
		if err := broker.Publish(context.Background(), snapshot("s1", v)); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	_ = broker.Publish(context.Background(), snapshot("other", 9))

	for want := int64(1); want <= 3; want++ {
		select {
		case got := <-ch:
			if got.Session.Version != want {
				t.Fatalf("expected version %d, got %d", want, got.Session.Version)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for version %d", want)
		}
	}
	select {
	case got := <-ch:
		t.Fatalf("unexpected snapshot for another session: %+v", got)
	default:
	}
}

func TestBrokerEvictsSlowSubscriber(t *testing.T) {
	broker := NewBroker(2, nil)
	slow, cancelSlow, _ := broker.Subscribe(context.Background(), "s1")
	defer cancelSlow()
	fast, cancelFast, _ := broker.Subscribe(context.Background(), "s1")
	defer cancelFast()

	for v := int64(1); v <= 3; v++ {
		_ = broker.Publish(context.Background(), snapshot("s1", v))
		<-fast
	}

	if broker.Subscribers("s1") != 1 {
		t.Fatalf("expected slow subscriber evicted, have %d subscribers", broker.Subscribers("s1"))
	}
	drained := 0
	for range slow {
		drained++
	}
	if drained != 2 {
		t.Fatalf("expected buffered snapshots before close, got %d", drained)
	}
}

func TestBrokerCancelIsIdempotent(t *testing.T) {
	broker := NewBroker(1, nil)
	ch, cancel, _ := broker.Subscribe(context.Background(), "s1")
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("expected closed channel")
	}
	if broker.Subscribers("s1") != 0 {
		t.Fatalf("expected no subscribers")
	}
	if err := broker.Publish(context.Background(), snapshot("s1", 1)); err != nil {
		t.Fatalf("publish without subscribers: %v", err)
	}
}
