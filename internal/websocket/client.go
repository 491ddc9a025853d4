package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	authorizeWait  = 5 * time.Second
)

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	userID uuid.UUID
	closed bool
	mu     sync.RWMutex
}

func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, 256),
		userID: userID,
	}
}

// UserID returns the authenticated user behind the connection.
func (c *Client) UserID() uuid.UUID {
	return c.userID
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("websocket error: %v", err)
			}
			break
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("failed to unmarshal message: %v", err)
			c.sendError("", ErrCodeInvalidPayload, "Invalid message")
			continue
		}

		c.handleMessage(&msg)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(msg *Message) {
	switch msg.Type {
	case MessageTypeSubscribe:
		var payload SubscribePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.SubscriptionID == "" || payload.Collection == "" {
			c.sendError(payload.SubscriptionID, ErrCodeInvalidPayload, "Invalid subscribe payload")
			return
		}
		for _, e := range payload.Events {
			if !e.IsValid() {
				c.sendError(payload.SubscriptionID, ErrCodeInvalidPayload, "Unknown event type "+string(e))
				return
			}
		}

		if c.hub.authorizer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), authorizeWait)
			err := c.hub.authorizer.AuthorizeSubscription(ctx, c.userID, payload.Topic)
			cancel()
			if err != nil {
				log.Printf("ERROR [websocket.Client] subscription %s denied for user %s: %v", payload.SubscriptionID, c.userID, err)
				c.sendError(payload.SubscriptionID, ErrCodeForbidden, err.Error())
				return
			}
		}

		c.hub.addSubscription(&subscribeRequest{
			client: c,
			id:     payload.SubscriptionID,
			topic:  payload.Topic,
		})

	case MessageTypeUnsubscribe:
		var payload UnsubscribePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.SubscriptionID == "" {
			c.sendError("", ErrCodeInvalidPayload, "Invalid unsubscribe payload")
			return
		}
		c.hub.removeSubscription(&unsubscribeRequest{client: c, id: payload.SubscriptionID})

	default:
		c.sendError("", ErrCodeUnknownType, "Unknown message type "+string(msg.Type))
	}
}

func (c *Client) sendError(subscriptionID, code, message string) {
	c.sendPayload(MessageTypeError, ErrorPayload{
		SubscriptionID: subscriptionID,
		Code:           code,
		Message:        message,
	})
}

// sendPayload reports false only when the send buffer is full.
func (c *Client) sendPayload(msgType MessageType, payload interface{}) bool {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		log.Printf("failed to marshal %s payload: %v", msgType, err)
		return true
	}
	return c.Send(msg)
}

// Send queues msg without blocking. It reports false when the buffer is full.
func (c *Client) Send(msg *Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("failed to marshal message: %v", err)
		return true
	}
	return c.trySend(data)
}

func (c *Client) trySend(data []byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return true
	}

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Close marks the client as closed and closes its send channel
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
