package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventInserted EventType = "INSERT"
	EventUpdated  EventType = "UPDATE"
	EventDeleted  EventType = "DELETE"
)

func (e EventType) IsValid() bool {
	switch e {
	case EventInserted, EventUpdated, EventDeleted:
		return true
	}
	return false
}

// Collections that publish change events.
const (
	CollectionMessages      = "messages"
	CollectionConversations = "conversations"
)

// Filter fields a subscription may scope on.
const (
	FieldConversationID = "conversation_id"
	FieldParticipantID  = "participant_id"
)

// ChangeEvent is one row-level change pushed to subscribers.
type ChangeEvent struct {
	Collection string          `json:"collection"`
	Type       EventType       `json:"type"`
	Row        json.RawMessage `json:"row"`
	Timestamp  int64           `json:"timestamp"`

	// Keys are the filter values this event can be matched on.
	Keys map[string][]string `json:"-"`
}

func NewChangeEvent(collection string, eventType EventType, row interface{}, keys map[string][]string) (ChangeEvent, error) {
	data, err := json.Marshal(row)
	if err != nil {
		return ChangeEvent{}, err
	}
	return ChangeEvent{
		Collection: collection,
		Type:       eventType,
		Row:        data,
		Timestamp:  time.Now().UnixMilli(),
		Keys:       keys,
	}, nil
}

// Filter is an equality predicate on one key.
type Filter struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

// Topic scopes a subscription: a collection, an optional filter and the
// event types to deliver (all when empty).
type Topic struct {
	Collection string      `json:"collection"`
	Filter     Filter      `json:"filter"`
	Events     []EventType `json:"events,omitempty"`
}

// Matches reports whether ev should be delivered to a subscriber of t.
func (t Topic) Matches(ev ChangeEvent) bool {
	if t.Collection != ev.Collection {
		return false
	}
	if len(t.Events) > 0 {
		found := false
		for _, e := range t.Events {
			if e == ev.Type {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if t.Filter.Field == "" {
		return true
	}
	for _, v := range ev.Keys[t.Filter.Field] {
		if v == t.Filter.Value {
			return true
		}
	}
	return false
}

// Publisher fans change events out to subscribers.
type Publisher interface {
	Publish(ev ChangeEvent)
}

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) Publish(ChangeEvent) {}

// Authorizer decides whether userID may subscribe to topic.
type Authorizer interface {
	AuthorizeSubscription(ctx context.Context, userID uuid.UUID, topic Topic) error
}
