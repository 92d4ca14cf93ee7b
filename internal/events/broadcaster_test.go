package events

import (
	"encoding/json"
	"log/slog"
	"testing"
)

func newTestBroadcaster() *Broadcaster {
	return NewBroadcaster(slog.Default())
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	b := newTestBroadcaster()
	ch, cancel := b.Subscribe("p1")
	defer cancel()

	b.Publish("p1", EventEntryCreated, map[string]string{"entry_id": "e1"})

	select {
	case ev := <-ch:
		if ev.Type != EventEntryCreated {
			t.Fatalf("expected %s, got %s", EventEntryCreated, ev.Type)
		}
		if ev.ProjectID != "p1" {
			t.Fatalf("expected project p1, got %s", ev.ProjectID)
		}
		var payload map[string]string
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			t.Fatalf("unmarshal payload: %v", err)
		}
		if payload["entry_id"] != "e1" {
			t.Fatalf("unexpected payload: %v", payload)
		}
	default:
		t.Fatal("expected event on channel")
	}
}

func TestPublishScopedToProject(t *testing.T) {
	b := newTestBroadcaster()
	ch1, cancel1 := b.Subscribe("p1")
	defer cancel1()
	ch2, cancel2 := b.Subscribe("p2")
	defer cancel2()

	b.Publish("p1", EventJobStatusUpdate, nil)

	if len(ch1) != 1 {
		t.Fatalf("expected 1 event for p1, got %d", len(ch1))
	}
	if len(ch2) != 0 {
		t.Fatalf("expected no events for p2, got %d", len(ch2))
	}
}

func TestPublishDropsWhenBufferFull(t *testing.T) {
	b := newTestBroadcaster()
	ch, cancel := b.Subscribe("p1")
	defer cancel()

	for i := 0; i < subscriberBuffer+10; i++ {
		b.Publish("p1", EventLinkUpdated, nil)
	}
	if len(ch) != subscriberBuffer {
		t.Fatalf("expected buffer of %d events, got %d", subscriberBuffer, len(ch))
	}
}

func TestCancelRemovesSubscriber(t *testing.T) {
	b := newTestBroadcaster()
	_, cancel := b.Subscribe("p1")
	if got := b.SubscriberCount("p1"); got != 1 {
		t.Fatalf("expected 1 subscriber, got %d", got)
	}
	cancel()
	if got := b.SubscriberCount("p1"); got != 0 {
		t.Fatalf("expected 0 subscribers after cancel, got %d", got)
	}

	// Publishing after cancel must not panic or deliver.
	b.Publish("p1", EventPing, nil)
}

func TestMultipleSubscribersEachReceive(t *testing.T) {
	b := newTestBroadcaster()
	ch1, cancel1 := b.Subscribe("p1")
	defer cancel1()
	ch2, cancel2 := b.Subscribe("p1")
	defer cancel2()

	b.Publish("p1", EventLinksCreated, map[string]int{"count": 3})

	if len(ch1) != 1 || len(ch2) != 1 {
		t.Fatalf("expected both subscribers to receive, got %d and %d", len(ch1), len(ch2))
	}
}

func TestPublishStampsProjectID(t *testing.T) {
	b := newTestBroadcaster()
	ch, cancel := b.Subscribe("p1")
	defer cancel()

	b.Publish("p1", EventJobStatusUpdate, map[string]any{
		"job_id": "j1",
		"status": "pending",
	})
	b.Publish("p1", EventLinksCreated, map[string]any{"count": 2})

	for i := 0; i < 2; i++ {
		select {
		case ev := <-ch:
			var payload map[string]any
			if err := json.Unmarshal(ev.Payload, &payload); err != nil {
				t.Fatalf("unmarshal payload: %v", err)
			}
			if payload["project_id"] != "p1" {
				t.Errorf("%s payload project_id = %v, want p1", ev.Type, payload["project_id"])
			}
		default:
			t.Fatal("expected event on channel")
		}
	}
}

func TestPublishStampOverwritesStalePID(t *testing.T) {
	b := newTestBroadcaster()
	ch, cancel := b.Subscribe("p1")
	defer cancel()

	b.Publish("p1", EventLinkUpdated, map[string]any{"project_id": "stale", "link_id": "l1"})

	ev := <-ch
	var payload map[string]any
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload["project_id"] != "p1" {
		t.Errorf("project_id = %v, want the publish argument to win", payload["project_id"])
	}
}

func TestPublishNonObjectPayloadUntouched(t *testing.T) {
	b := newTestBroadcaster()
	ch, cancel := b.Subscribe("p1")
	defer cancel()

	b.Publish("p1", EventPing, []string{"a", "b"})

	ev := <-ch
	if string(ev.Payload) != `["a","b"]` {
		t.Errorf("payload = %s, want the array unchanged", ev.Payload)
	}
}
