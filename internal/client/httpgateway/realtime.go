package httpgateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dom/car-marketplace/internal/client"
	"github.com/dom/car-marketplace/internal/domain"
	"github.com/dom/car-marketplace/internal/websocket"
	gorillaWS "github.com/gorilla/websocket"
	"github.com/rs/xid"
)

const (
	subscribeWait = 10 * time.Second
	writeWait     = 10 * time.Second
	eventBuffer   = 64
)

// socket multiplexes every subscription of one gateway over a single
// websocket. The connection is dialed on the first Subscribe.
type socket struct {
	gw *Gateway

	mu      sync.Mutex
	conn    *gorillaWS.Conn
	subs    map[string]*subscription
	pending map[string]chan error

	dialMu  sync.Mutex
	writeMu sync.Mutex
}

func newSocket(gw *Gateway) *socket {
	return &socket{
		gw:      gw,
		subs:    make(map[string]*subscription),
		pending: make(map[string]chan error),
	}
}

// subscription is one live topic. events is closed when the connection
// drops or the consumer lets the buffer fill; it is left open after Close.
type subscription struct {
	id     string
	socket *socket
	conn   *gorillaWS.Conn
	events chan websocket.ChangeEvent
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) Events() <-chan websocket.ChangeEvent { return s.events }

func (s *subscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.socket.unsubscribe(s)
	})
	return err
}

// Subscribe registers topic and returns once the backend acknowledged it.
// A topic the caller may not read fails with a forbidden error.
func (g *Gateway) Subscribe(ctx context.Context, topic websocket.Topic) (client.Subscription, error) {
	return g.socket.subscribe(ctx, topic)
}

func (s *socket) subscribe(ctx context.Context, topic websocket.Topic) (*subscription, error) {
	conn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}

	sub := &subscription{
		id:     xid.New().String(),
		socket: s,
		conn:   conn,
		events: make(chan websocket.ChangeEvent, eventBuffer),
		done:   make(chan struct{}),
	}
	ack := make(chan error, 1)

	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: connection closed", domain.ErrTransient)
	}
	s.subs[sub.id] = sub
	s.pending[sub.id] = ack
	s.mu.Unlock()

	fail := func(err error) (*subscription, error) {
		s.mu.Lock()
		delete(s.subs, sub.id)
		delete(s.pending, sub.id)
		s.mu.Unlock()
		sub.once.Do(func() { close(sub.done) })
		return nil, err
	}

	err = s.write(conn, websocket.MessageTypeSubscribe, websocket.SubscribePayload{SubscriptionID: sub.id, Topic: topic})
	if err != nil {
		return fail(err)
	}

	timer := time.NewTimer(subscribeWait)
	defer timer.Stop()
	select {
	case err := <-ack:
		if err != nil {
			return fail(err)
		}
		return sub, nil
	case <-ctx.Done():
		return fail(ctx.Err())
	case <-timer.C:
		return fail(fmt.Errorf("%w: subscription %s not acknowledged", domain.ErrTransient, sub.id))
	}
}

func (s *socket) unsubscribe(sub *subscription) error {
	s.mu.Lock()
	registered := s.subs[sub.id] == sub
	if registered {
		delete(s.subs, sub.id)
	}
	live := registered && s.conn == sub.conn
	s.mu.Unlock()

	if !live {
		return nil
	}
	return s.write(sub.conn, websocket.MessageTypeUnsubscribe, websocket.UnsubscribePayload{SubscriptionID: sub.id})
}

// connect returns the open connection, dialing it when there is none.
func (s *socket) connect(ctx context.Context) (*gorillaWS.Conn, error) {
	s.dialMu.Lock()
	defer s.dialMu.Unlock()

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		return conn, nil
	}

	conn, err := s.dial(ctx, true)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	go s.readLoop(conn)
	return conn, nil
}

func (s *socket) dial(ctx context.Context, retry bool) (*gorillaWS.Conn, error) {
	id := s.gw.current()
	if id == nil {
		return nil, domain.ErrUnauthenticated
	}

	target := "ws" + strings.TrimPrefix(s.gw.apiURL, "http") + "/ws?token=" + url.QueryEscape(id.AccessToken)
	dialer := *gorillaWS.DefaultDialer
	dialer.HandshakeTimeout = 5 * time.Second

	conn, resp, err := dialer.DialContext(ctx, target, nil)
	if err == nil {
		return conn, nil
	}
	if resp == nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: dial websocket: %v", domain.ErrTransient, err)
	}

	apiErr := decodeError(resp)
	if resp.StatusCode == http.StatusUnauthorized && errors.Is(apiErr, domain.ErrSessionExpired) && retry {
		if err := s.gw.refresh(ctx, id.AccessToken); err != nil {
			return nil, err
		}
		return s.dial(ctx, false)
	}
	return nil, apiErr
}

func (s *socket) write(conn *gorillaWS.Conn, msgType websocket.MessageType, payload interface{}) error {
	msg, err := websocket.NewMessage(msgType, payload)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("%w: send %s: %v", domain.ErrTransient, msgType, err)
	}
	return nil
}

func (s *socket) readLoop(conn *gorillaWS.Conn) {
	defer s.drop(conn)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if gorillaWS.IsUnexpectedCloseError(err, gorillaWS.CloseNormalClosure, gorillaWS.CloseGoingAway) {
				log.Printf("WARN [httpgateway.socket] connection lost: %v", err)
			}
			return
		}

		var msg websocket.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("ERROR [httpgateway.socket] decode message: %v", err)
			continue
		}
		s.handle(&msg)
	}
}

func (s *socket) handle(msg *websocket.Message) {
	switch msg.Type {
	case websocket.MessageTypeSubscribed:
		var payload websocket.SubscribedPayload
		if err := json.Unmarshal(msg.Payload, &payload); err == nil {
			s.resolve(payload.SubscriptionID, nil)
		}

	case websocket.MessageTypeError:
		var payload websocket.ErrorPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return
		}
		if !s.resolve(payload.SubscriptionID, subscribeError(payload)) {
			log.Printf("WARN [httpgateway.socket] server error %s: %s", payload.Code, payload.Message)
		}

	case websocket.MessageTypeChange:
		var payload websocket.ChangePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			log.Printf("ERROR [httpgateway.socket] decode change: %v", err)
			return
		}
		s.mu.Lock()
		sub := s.subs[payload.SubscriptionID]
		s.mu.Unlock()
		if sub == nil {
			return
		}
		select {
		case sub.events <- payload.Event:
		case <-sub.done:
		default:
			s.evict(sub)
		}
	}
}

// evict ends a subscription whose consumer fell a full buffer behind so
// the read loop never waits on it. The closed events channel tells the
// owner to resubscribe and reload.
func (s *socket) evict(sub *subscription) {
	s.mu.Lock()
	registered := s.subs[sub.id] == sub
	if registered {
		delete(s.subs, sub.id)
	}
	s.mu.Unlock()
	if !registered {
		return
	}

	log.Printf("WARN [httpgateway.socket] subscription %s overflowed; closing", sub.id)
	close(sub.events)
	go func() {
		if err := s.write(sub.conn, websocket.MessageTypeUnsubscribe, websocket.UnsubscribePayload{SubscriptionID: sub.id}); err != nil {
			log.Printf("WARN [httpgateway.socket] unsubscribe %s: %v", sub.id, err)
		}
	}()
}

func (s *socket) resolve(id string, err error) bool {
	s.mu.Lock()
	ack, ok := s.pending[id]
	delete(s.pending, id)
	s.mu.Unlock()
	if ok {
		ack <- err
	}
	return ok
}

func subscribeError(p websocket.ErrorPayload) error {
	if p.Code == websocket.ErrCodeForbidden {
		return domain.Forbidden(p.Message)
	}
	return domain.ValidationFailed("topic", p.Message)
}

// drop forgets conn and ends every subscription that was carried on it.
func (s *socket) drop(conn *gorillaWS.Conn) {
	s.mu.Lock()
	if s.conn == conn {
		s.conn = nil
	}
	var ended []*subscription
	for id, sub := range s.subs {
		if sub.conn != conn {
			continue
		}
		delete(s.subs, id)
		if ack, ok := s.pending[id]; ok {
			delete(s.pending, id)
			ack <- fmt.Errorf("%w: connection closed", domain.ErrTransient)
		}
		ended = append(ended, sub)
	}
	s.mu.Unlock()

	conn.Close()
	for _, sub := range ended {
		close(sub.events)
	}
}

func (s *socket) close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn == nil {
		return nil
	}

	s.writeMu.Lock()
	conn.SetWriteDeadline(time.Now().Add(time.Second))
	conn.WriteMessage(gorillaWS.CloseMessage, gorillaWS.FormatCloseMessage(gorillaWS.CloseNormalClosure, ""))
	s.writeMu.Unlock()
	return conn.Close()
}
