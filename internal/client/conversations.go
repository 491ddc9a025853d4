package client

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dom/car-marketplace/internal/domain"
	"github.com/dom/car-marketplace/internal/websocket"
	"github.com/google/uuid"
)

// Resubscribing after a lost feed backs off from resubscribeBackoff and
// gives up after resubscribeAttempts tries.
var (
	resubscribeAttempts = 5
	resubscribeBackoff  = 200 * time.Millisecond
)

// feedHandlers wires a liveFeed to its read model.
type feedHandlers struct {
	subscribe func(ctx context.Context) (Subscription, error)
	handle    func(ctx context.Context, ev websocket.ChangeEvent)
	// resync reloads the model once a lost feed was replaced.
	resync func(ctx context.Context)
	// lost runs when the feed could not be replaced.
	lost func(err error)
}

// liveFeed owns one subscription and the goroutine draining it. When the
// subscription ends without stop, the feed subscribes again.
type liveFeed struct {
	h      feedHandlers
	cancel context.CancelFunc
	done   chan struct{}

	mu  sync.Mutex
	sub Subscription
}

// startFeed drains sub on a new goroutine until stop is called.
func startFeed(parent context.Context, sub Subscription, h feedHandlers) *liveFeed {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	f := &liveFeed{h: h, cancel: cancel, done: make(chan struct{}), sub: sub}
	go f.run(ctx)
	return f
}

func (f *liveFeed) run(ctx context.Context) {
	defer close(f.done)
	for {
		if !f.drain(ctx) {
			return
		}
		log.Printf("WARN [client.liveFeed] subscription ended; resubscribing")
		next, err := f.resubscribe(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("ERROR [client.liveFeed] resubscribe: %v", err)
				f.h.lost(err)
			}
			return
		}

		f.mu.Lock()
		prev := f.sub
		f.sub = next
		f.mu.Unlock()
		if err := prev.Close(); err != nil {
			log.Printf("WARN [client.liveFeed] close ended subscription: %v", err)
		}
		f.h.resync(ctx)
	}
}

// drain handles events until the subscription ends, reporting true, or ctx
// is cancelled, reporting false.
func (f *liveFeed) drain(ctx context.Context) bool {
	f.mu.Lock()
	events := f.sub.Events()
	f.mu.Unlock()
	for {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-events:
			if !ok {
				return ctx.Err() == nil
			}
			f.h.handle(ctx, ev)
		}
	}
}

func (f *liveFeed) resubscribe(ctx context.Context) (Subscription, error) {
	delay := resubscribeBackoff
	var err error
	for attempt := 0; attempt < resubscribeAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		var sub Subscription
		sub, err = f.h.subscribe(ctx)
		if err == nil {
			return sub, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, domain.ErrTransient) {
			break
		}
	}
	return nil, fmt.Errorf("live updates lost: %w", err)
}

// stop tears the subscription down and returns once no more events will
// be handled.
func (f *liveFeed) stop() {
	if f == nil {
		return
	}
	f.cancel()
	<-f.done
	if err := f.sub.Close(); err != nil {
		log.Printf("WARN [client.liveFeed] close subscription: %v", err)
	}
}

// Conversations lists the signed-in user's conversations with per-viewer
// unread counts and refetches the whole list on any conversation change.
type Conversations struct {
	gw      ConversationGateway
	sub     Subscriber
	session *Store
	l       *loader[[]*domain.Conversation]

	mu   sync.Mutex
	feed *liveFeed
}

func NewConversations(gw ConversationGateway, sub Subscriber, session *Store) *Conversations {
	return &Conversations{gw: gw, sub: sub, session: session, l: newLoader[[]*domain.Conversation]()}
}

// Fetch reloads the list, then counts unread messages once per
// conversation.
func (c *Conversations) Fetch(ctx context.Context) State[[]*domain.Conversation] {
	if _, ok := c.session.UserID(); !ok {
		return c.l.run(func() ([]*domain.Conversation, error) { return nil, nil })
	}
	return c.l.run(func() ([]*domain.Conversation, error) { return c.list(ctx) })
}

func (c *Conversations) list(ctx context.Context) ([]*domain.Conversation, error) {
	convs, err := c.gw.ListConversations(ctx)
	if err != nil {
		return nil, err
	}
	for _, conv := range convs {
		n, err := c.gw.CountUnread(ctx, conv.ID)
		if err != nil {
			log.Printf("WARN [client.Conversations] count unread for %s: %v", conv.ID, err)
			continue
		}
		conv.UnreadCount = int(n)
	}
	return convs, nil
}

func (c *Conversations) State() State[[]*domain.Conversation] { return c.l.snapshot() }

// OnChange registers fn to run after every cache change.
func (c *Conversations) OnChange(fn func()) {
	c.l.mu.Lock()
	c.l.changed = fn
	c.l.mu.Unlock()
}

// Mount fetches the list and subscribes to changes of any conversation
// the user takes part in. A previous subscription is torn down first. A
// lost subscription is replaced and the list refetched; when that fails
// the model moves to the error state.
func (c *Conversations) Mount(ctx context.Context) error {
	c.Unmount()

	userID, ok := c.session.UserID()
	if !ok {
		c.Fetch(ctx)
		return domain.ErrUnauthenticated
	}

	subscribe := func(ctx context.Context) (Subscription, error) {
		return c.sub.Subscribe(ctx, websocket.Topic{
			Collection: websocket.CollectionConversations,
			Filter:     websocket.Filter{Field: websocket.FieldParticipantID, Value: userID.String()},
		})
	}
	sub, err := subscribe(ctx)
	if err != nil {
		c.Fetch(ctx)
		return err
	}

	refetch := func(ctx context.Context) {
		c.l.runLive(ctx, func() ([]*domain.Conversation, error) { return c.list(ctx) })
	}
	c.mu.Lock()
	old := c.feed
	c.feed = startFeed(ctx, sub, feedHandlers{
		subscribe: subscribe,
		handle:    func(ctx context.Context, _ websocket.ChangeEvent) { refetch(ctx) },
		resync:    refetch,
		lost:      c.l.fail,
	})
	c.mu.Unlock()
	old.stop()

	c.Fetch(ctx)
	return nil
}

// Unmount stops live updates. It returns after the last event was handled.
func (c *Conversations) Unmount() {
	c.mu.Lock()
	feed := c.feed
	c.feed = nil
	c.mu.Unlock()
	feed.stop()
}

func (c *Conversations) Close() {
	c.Unmount()
	c.l.close()
}

// Start returns the id of the caller's conversation with the seller about
// the car, creating it only when the lookup misses. A create that loses a
// race against a concurrent one re-reads the winner.
func (c *Conversations) Start(ctx context.Context, sellerID uuid.UUID, carID *uuid.UUID) (uuid.UUID, error) {
	if _, ok := c.session.UserID(); !ok {
		return uuid.Nil, domain.ErrUnauthenticated
	}

	existing, err := c.gw.FindConversation(ctx, sellerID, carID)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return uuid.Nil, err
	}

	created, err := c.gw.CreateConversation(ctx, sellerID, carID)
	if err == nil {
		return created.ID, nil
	}
	if !errors.Is(err, domain.ErrConflict) {
		return uuid.Nil, err
	}

	existing, err = c.gw.FindConversation(ctx, sellerID, carID)
	if err != nil {
		return uuid.Nil, err
	}
	return existing.ID, nil
}
