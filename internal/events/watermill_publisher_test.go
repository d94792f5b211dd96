package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestWatermillEventPublisher_PublishToGoChannel(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pubSub := NewGoChannelPubSub(logger)
	defer pubSub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	messages, err := pubSub.Subscribe(ctx, Topic("test-access", AttemptSubmitted))
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	publisher := NewWatermillEventPublisher(pubSub, "test-access", logger)
	at := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	event := NewEvent(AttemptSubmitted, at, map[string]interface{}{"test_id": 3, "student_id": "s1"})

	if err := publisher.Publish(ctx, event); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-messages:
		msg.Ack()
		if msg.UUID != event.ID {
			t.Errorf("message uuid = %s, want %s", msg.UUID, event.ID)
		}
		if msg.Metadata.Get("event_type") != string(AttemptSubmitted) {
			t.Errorf("event_type metadata = %q", msg.Metadata.Get("event_type"))
		}
		var got Event
		if err := json.Unmarshal(msg.Payload, &got); err != nil {
			t.Fatalf("payload decode error = %v", err)
		}
		if got.Type != AttemptSubmitted || got.Source != "test-access-service" || got.Version != "1.0" {
			t.Errorf("decoded event = %+v", got)
		}
		if got.Data["student_id"] != "s1" {
			t.Errorf("data = %v", got.Data)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}
}

func TestTopic(t *testing.T) {
	if got := Topic("", TestPublished); got != "test.published" {
		t.Errorf("Topic() = %q", got)
	}
	if got := Topic("school", TestPublished); got != "school.test.published" {
		t.Errorf("Topic() = %q", got)
	}
}

func TestMockEventPublisher(t *testing.T) {
	mock := NewMockEventPublisher(nil)
	ctx := context.Background()

	_ = mock.Publish(ctx, NewEvent(TestPublished, time.Now(), nil))
	_ = mock.Publish(ctx, NewEvent(AttemptStarted, time.Now(), nil))

	if len(mock.GetPublishedEvents()) != 2 || len(mock.EventsOfType(TestPublished)) != 1 {
		t.Fatalf("events = %+v", mock.GetPublishedEvents())
	}

	boom := errors.New("broker down")
	mock.FailWith(boom)
	if err := mock.Publish(ctx, NewEvent(TestUnpublished, time.Now(), nil)); !errors.Is(err, boom) {
		t.Errorf("Publish() error = %v, want boom", err)
	}

	mock.ClearEvents()
	if len(mock.GetPublishedEvents()) != 0 {
		t.Error("ClearEvents() left events behind")
	}
}
