package websocket

import (
	"log"
	"sync"
)

// Hub owns every connected client and its subscriptions. All subscription
// state is touched only from Run.
type Hub struct {
	clients     map[*Client]map[string]Topic
	register    chan *Client
	unregister  chan *Client
	subscribe   chan *subscribeRequest
	unsubscribe chan *unsubscribeRequest
	publish     chan ChangeEvent
	stop        chan struct{}
	done        chan struct{} // closed when Run() exits
	stopped     bool
	authorizer  Authorizer
	mu          sync.RWMutex
}

type subscribeRequest struct {
	client *Client
	id     string
	topic  Topic
}

type unsubscribeRequest struct {
	client *Client
	id     string
}

func NewHub(authorizer Authorizer) *Hub {
	return &Hub{
		clients:     make(map[*Client]map[string]Topic),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subscribe:   make(chan *subscribeRequest),
		unsubscribe: make(chan *unsubscribeRequest),
		publish:     make(chan ChangeEvent, 256),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		authorizer:  authorizer,
	}
}

func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.stop:
			h.mu.Lock()
			h.stopped = true
			for client := range h.clients {
				client.Close()
			}
			h.clients = make(map[*Client]map[string]Topic)
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.clients[client] = make(map[string]Topic)

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}

		case req := <-h.subscribe:
			h.handleSubscribe(req)

		case req := <-h.unsubscribe:
			subs, ok := h.clients[req.client]
			if !ok {
				continue
			}
			delete(subs, req.id)
			req.client.sendPayload(MessageTypeUnsubscribed, SubscribedPayload{SubscriptionID: req.id})

		case ev := <-h.publish:
			h.fanOut(ev)
		}
	}
}

func (h *Hub) handleSubscribe(req *subscribeRequest) {
	subs, ok := h.clients[req.client]
	if !ok {
		return
	}
	if _, exists := subs[req.id]; exists {
		req.client.sendError(req.id, ErrCodeDuplicateID, "Subscription id already in use")
		return
	}
	subs[req.id] = req.topic
	req.client.sendPayload(MessageTypeSubscribed, SubscribedPayload{SubscriptionID: req.id})
}

func (h *Hub) fanOut(ev ChangeEvent) {
	for client, subs := range h.clients {
		for id, topic := range subs {
			if !topic.Matches(ev) {
				continue
			}
			if !client.sendPayload(MessageTypeChange, ChangePayload{SubscriptionID: id, Event: ev}) {
				log.Printf("WARN [websocket.Hub] dropping slow client %s", client.userID)
				delete(h.clients, client)
				client.Close()
				break
			}
		}
	}
}

// Stop gracefully shuts down the hub and closes every client.
// It blocks until Run has returned.
func (h *Hub) Stop() {
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	h.mu.Unlock()

	close(h.stop)
	<-h.done
}

func (h *Hub) isStopped() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stopped
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister safely unregisters a client, handling the case where the hub may be stopped.
func (h *Hub) Unregister(client *Client) {
	if h.isStopped() {
		return
	}
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish queues ev for delivery. It never blocks request handlers on
// slow sockets; events published after Stop are dropped.
func (h *Hub) Publish(ev ChangeEvent) {
	if h.isStopped() {
		return
	}
	select {
	case h.publish <- ev:
	case <-h.done:
	default:
		log.Printf("WARN [websocket.Hub] publish queue full, dropping %s %s event", ev.Collection, ev.Type)
	}
}

func (h *Hub) addSubscription(req *subscribeRequest) {
	select {
	case h.subscribe <- req:
	case <-h.done:
	}
}

func (h *Hub) removeSubscription(req *unsubscribeRequest) {
	select {
	case h.unsubscribe <- req:
	case <-h.done:
	}
}
