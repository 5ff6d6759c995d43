package realtime

import (
	"context"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestDispatcherPublishesToSubscriber(t *testing.T) {
	dispatcher := NewDispatcher(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, TiresTopic("mes-1"))
	defer cleanup()

	dispatcher.Publish(Message{
		Topic:     TiresTopic("mes-1"),
		EventType: EventTiresChanged,
		IDs:       []string{"pneu-a", "pneu-b"},
	})

	select {
	case received := <-stream:
		if received.EventType != EventTiresChanged {
			t.Fatalf("expected event type %s, got %s", EventTiresChanged, received.EventType)
		}
		if len(received.IDs) != 2 {
			t.Fatalf("expected 2 ids, got %d", len(received.IDs))
		}
		if received.Timestamp.IsZero() {
			t.Fatalf("expected publish to stamp the message")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected realtime message within deadline")
	}
}

func TestDispatcherIsolatesTopics(t *testing.T) {
	dispatcher := NewDispatcher(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monthStream, cleanup := dispatcher.Subscribe(ctx, TiresTopic("mes-1"))
	defer cleanup()
	otherStream, otherCleanup := dispatcher.Subscribe(ctx, TiresTopic("mes-2"))
	defer otherCleanup()

	dispatcher.Publish(Message{Topic: TiresTopic("mes-2"), EventType: EventTiresChanged})

	select {
	case <-monthStream:
		t.Fatal("did not expect a message for an unrelated month")
	case <-time.After(100 * time.Millisecond):
	}

	select {
	case message := <-otherStream:
		if message.Topic != TiresTopic("mes-2") {
			t.Fatalf("unexpected topic %s", message.Topic)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected message for subscribed topic")
	}
}

func TestDispatcherDropsWhenSubscriberIsFull(t *testing.T) {
	dispatcher := NewDispatcher(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := dispatcher.Subscribe(ctx, MonthsTopic())
	defer cleanup()

	for index := 0; index < 3; index++ {
		dispatcher.Publish(Message{Topic: MonthsTopic(), EventType: EventMonthsChanged})
	}
	if len(stream) != 1 {
		t.Fatalf("expected buffered stream to hold one message, got %d", len(stream))
	}
}

func TestDispatcherUnsubscribesOnContextCancel(t *testing.T) {
	dispatcher := NewDispatcher(0)
	ctx, cancel := context.WithCancel(context.Background())

	_, cleanup := dispatcher.Subscribe(ctx, MonthsTopic())
	defer cleanup()
	if dispatcher.SubscriberCount() != 1 {
		t.Fatalf("expected one subscriber")
	}

	cancel()
	deadline := time.Now().Add(time.Second)
	for dispatcher.SubscriberCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("expected subscriber to be removed after cancel")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestDispatcherCleanupIsIdempotent(t *testing.T) {
	dispatcher := NewDispatcher(0)
	_, cleanup := dispatcher.Subscribe(context.Background(), MonthsTopic())
	cleanup()
	cleanup()
	if dispatcher.SubscriberCount() != 0 {
		t.Fatalf("expected no subscribers after cleanup")
	}
}

func TestSubscribeWithoutTopicReturnsClosedStream(t *testing.T) {
	dispatcher := NewDispatcher(0)
	stream, cleanup := dispatcher.Subscribe(context.Background(), "")
	defer cleanup()
	if _, ok := <-stream; ok {
		t.Fatalf("expected closed stream")
	}
}
