// Package events fans project updates out to SSE subscribers. Publishing
// never blocks the pipeline; a slow subscriber drops events instead.
package events

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Event types sent over the project SSE stream.
const (
	EventOpen            = "open"
	EventPing            = "ping"
	EventJobStatusUpdate = "job_status_update"
	EventEntryCreated    = "entry_created"
	EventLinkUpdated     = "link_updated"
	EventLinksCreated    = "links_created"
)

// subscriberBuffer is the per-subscriber channel capacity. Events beyond it
// are dropped rather than stalling publishers.
const subscriberBuffer = 64

// Event is one SSE message scoped to a project.
type Event struct {
	Type      string          `json:"type"`
	ProjectID string          `json:"project_id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Broadcaster distributes events to per-project subscribers.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[string]map[chan Event]struct{}
	logger *slog.Logger
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		subs:   make(map[string]map[chan Event]struct{}),
		logger: logger,
	}
}

// Subscribe registers a listener for one project's events. The returned
// cancel function must be called when the subscriber goes away.
func (b *Broadcaster) Subscribe(projectID string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	b.mu.Lock()
	set, ok := b.subs[projectID]
	if !ok {
		set = make(map[chan Event]struct{})
		b.subs[projectID] = set
	}
	set[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if set, ok := b.subs[projectID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(b.subs, projectID)
			}
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish sends an event to every subscriber of the project. Payload is
// marshalled once; marshal failures are logged and the event is dropped.
// Object payloads get the project id stamped in so every event's data
// identifies its project without each publisher repeating the field.
func (b *Broadcaster) Publish(projectID, eventType string, payload any) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			b.logger.Error("failed to marshal event payload",
				"event_type", eventType, "project_id", projectID, "error", err)
			return
		}
		raw = stampProjectID(data, projectID)
	}
	ev := Event{Type: eventType, ProjectID: projectID, Payload: raw}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs[projectID] {
		select {
		case ch <- ev:
		default:
			b.logger.Warn("dropping event for slow subscriber",
				"event_type", eventType, "project_id", projectID)
		}
	}
}

// stampProjectID sets project_id on an object payload, overwriting whatever
// the publisher put there. Non-object payloads pass through untouched.
func stampProjectID(data []byte, projectID string) json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil || obj == nil {
		return data
	}
	id, err := json.Marshal(projectID)
	if err != nil {
		return data
	}
	obj["project_id"] = id
	out, err := json.Marshal(obj)
	if err != nil {
		return data
	}
	return out
}

// SubscriberCount reports active subscribers for a project.
func (b *Broadcaster) SubscriberCount(projectID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[projectID])
}
