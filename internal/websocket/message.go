package websocket

import (
	"encoding/json"
	"time"
)

type MessageType string

const (
	// Client to Server
	MessageTypeSubscribe   MessageType = "SUBSCRIBE"
	MessageTypeUnsubscribe MessageType = "UNSUBSCRIBE"

	// Server to Client
	MessageTypeSubscribed   MessageType = "SUBSCRIBED"
	MessageTypeUnsubscribed MessageType = "UNSUBSCRIBED"
	MessageTypeChange       MessageType = "CHANGE"
	MessageTypeError        MessageType = "ERROR"
)

type Message struct {
	Type      MessageType     `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

func NewMessage(msgType MessageType, payload interface{}) (*Message, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      msgType,
		Payload:   payloadBytes,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

// Client to Server payloads

type SubscribePayload struct {
	SubscriptionID string `json:"subscriptionId"`
	Topic
}

type UnsubscribePayload struct {
	SubscriptionID string `json:"subscriptionId"`
}

// Server to Client payloads

type SubscribedPayload struct {
	SubscriptionID string `json:"subscriptionId"`
}

type ChangePayload struct {
	SubscriptionID string      `json:"subscriptionId"`
	Event          ChangeEvent `json:"event"`
}

type ErrorPayload struct {
	SubscriptionID string `json:"subscriptionId,omitempty"`
	Code           string `json:"code"`
	Message        string `json:"message"`
}

// Error codes
const (
	ErrCodeInvalidPayload = "INVALID_PAYLOAD"
	ErrCodeForbidden      = "FORBIDDEN"
	ErrCodeUnknownType    = "UNKNOWN_TYPE"
	ErrCodeDuplicateID    = "DUPLICATE_SUBSCRIPTION"
)
