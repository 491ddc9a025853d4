package client

import (
	"context"
	"encoding/json"
	"log"
	"sync"

	"github.com/dom/car-marketplace/internal/domain"
	"github.com/dom/car-marketplace/internal/websocket"
	"github.com/google/uuid"
)

// Messages is the message list of one conversation, kept live by a
// subscription on inserts into that conversation.
type Messages struct {
	gw            MessageGateway
	conversations ConversationGateway
	sub           Subscriber
	session       *Store
	l             *loader[[]*domain.Message]

	mu             sync.Mutex
	conversationID *uuid.UUID
	feed           *liveFeed
}

func NewMessages(gw MessageGateway, conversations ConversationGateway, sub Subscriber, session *Store) *Messages {
	return &Messages{
		gw:            gw,
		conversations: conversations,
		sub:           sub,
		session:       session,
		l:             newLoader[[]*domain.Message](),
	}
}

// ConversationID returns the active conversation, if any.
func (m *Messages) ConversationID() (uuid.UUID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conversationID == nil {
		return uuid.Nil, false
	}
	return *m.conversationID, true
}

// Open scopes the model to conversationID: the previous subscription is
// torn down, a new one opened, and the list fetched.
func (m *Messages) Open(ctx context.Context, conversationID uuid.UUID) error {
	m.Unmount()

	m.mu.Lock()
	id := conversationID
	m.conversationID = &id
	m.mu.Unlock()

	subscribe := func(ctx context.Context) (Subscription, error) {
		return m.sub.Subscribe(ctx, websocket.Topic{
			Collection: websocket.CollectionMessages,
			Filter:     websocket.Filter{Field: websocket.FieldConversationID, Value: conversationID.String()},
			Events:     []websocket.EventType{websocket.EventInserted},
		})
	}
	sub, err := subscribe(ctx)
	if err != nil {
		m.Fetch(ctx)
		return err
	}

	m.mu.Lock()
	old := m.feed
	m.feed = startFeed(ctx, sub, feedHandlers{
		subscribe: subscribe,
		handle:    func(_ context.Context, ev websocket.ChangeEvent) { m.receive(conversationID, ev) },
		resync:    func(ctx context.Context) { m.resync(ctx, conversationID) },
		lost:      m.l.fail,
	})
	m.mu.Unlock()
	old.stop()

	m.Fetch(ctx)
	return nil
}

func (m *Messages) receive(scope uuid.UUID, ev websocket.ChangeEvent) {
	if ev.Type != websocket.EventInserted {
		return
	}
	var msg domain.Message
	if err := json.Unmarshal(ev.Row, &msg); err != nil {
		log.Printf("WARN [client.Messages] decode pushed message: %v", err)
		return
	}
	if msg.ConversationID != scope {
		return
	}
	if current, ok := m.ConversationID(); !ok || current != scope {
		return
	}
	m.add(&msg)
}

// resync reloads scope's messages after the feed was replaced; inserts
// pushed while it was down are otherwise missing.
func (m *Messages) resync(ctx context.Context, scope uuid.UUID) {
	if current, ok := m.ConversationID(); !ok || current != scope {
		return
	}
	m.l.runLive(ctx, func() ([]*domain.Message, error) {
		return m.gw.ListMessages(ctx, scope)
	})
}

// add appends msg unless a message with the same id is cached.
func (m *Messages) add(msg *domain.Message) {
	m.l.mutate(func(messages *[]*domain.Message) {
		*messages = appendUnique(*messages, msg)
	})
}

func appendUnique(messages []*domain.Message, msg *domain.Message) []*domain.Message {
	for _, existing := range messages {
		if existing.ID == msg.ID {
			return messages
		}
	}
	next := make([]*domain.Message, len(messages), len(messages)+1)
	copy(next, messages)
	return append(next, msg)
}

// Fetch reloads the active conversation's messages and marks the other
// participant's messages read.
func (m *Messages) Fetch(ctx context.Context) State[[]*domain.Message] {
	conversationID, ok := m.ConversationID()
	if !ok {
		return m.l.run(func() ([]*domain.Message, error) { return nil, nil })
	}

	state := m.l.run(func() ([]*domain.Message, error) {
		return m.gw.ListMessages(ctx, conversationID)
	})

	if _, signedIn := m.session.UserID(); signedIn && state.Ready() {
		if _, err := m.gw.MarkRead(ctx, conversationID); err != nil {
			log.Printf("WARN [client.Messages] mark read %s: %v", conversationID, err)
		}
	}
	return state
}

func (m *Messages) State() State[[]*domain.Message] { return m.l.snapshot() }

// OnChange registers fn to run after every cache change.
func (m *Messages) OnChange(fn func()) {
	m.l.mu.Lock()
	m.l.changed = fn
	m.l.mu.Unlock()
}

// Send posts content to the active conversation, then bumps the
// conversation's activity time. A failed bump is logged and does not undo
// the message.
func (m *Messages) Send(ctx context.Context, content string) (*domain.Message, error) {
	conversationID, ok := m.ConversationID()
	if !ok {
		return nil, domain.ValidationFailed("conversation", "no conversation selected")
	}
	if _, ok := m.session.UserID(); !ok {
		return nil, domain.ErrUnauthenticated
	}
	if err := domain.ValidateMessageContent(content); err != nil {
		return nil, err
	}

	msg, err := m.gw.SendMessage(ctx, conversationID, content)
	if err != nil {
		return nil, err
	}
	if current, ok := m.ConversationID(); ok && current == conversationID {
		m.add(msg)
	}

	if err := m.conversations.TouchConversation(ctx, conversationID); err != nil {
		log.Printf("WARN [client.Messages] touch conversation %s: %v", conversationID, err)
	}
	return msg, nil
}

// Unmount stops live updates. It returns after the last event was handled.
func (m *Messages) Unmount() {
	m.mu.Lock()
	feed := m.feed
	m.feed = nil
	m.mu.Unlock()
	feed.stop()
}

func (m *Messages) Close() {
	m.Unmount()
	m.mu.Lock()
	m.conversationID = nil
	m.mu.Unlock()
	m.l.close()
}
