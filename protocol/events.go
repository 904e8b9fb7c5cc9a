package protocol

import (
	"encoding/json"
	"errors"
	"strings"
)

var (
	ErrMalformedEvent = errors.New("malformed event")
	ErrUnknownEvent   = errors.New("unknown event")
)

// EventKind classifies an inbound channel payload.
type EventKind int

const (
	EventMessage EventKind = iota
	EventTyping
)

const eventTyping = "typing"

// Event is a classified inbound channel payload.
type Event struct {
	Kind    EventKind
	Payload WireMessage
}

// ChatMessage is the outbound body of chat.sendMessage and POST /messages.
type ChatMessage struct {
	Content    string `json:"content"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	Type       string `json:"type"`
	ChatID     string `json:"chatId"`
}

// TypingNotice is the outbound body of chat.typing.
type TypingNotice struct {
	Event      string `json:"event"`
	SenderID   string `json:"senderId"`
	ReceiverID string `json:"receiverId"`
	ChatID     string `json:"chatId,omitempty"`
}

// NewTypingNotice fills the event discriminator.
func NewTypingNotice(senderID, receiverID, chatID string) TypingNotice {
	return TypingNotice{Event: eventTyping, SenderID: senderID, ReceiverID: receiverID, ChatID: chatID}
}

// DecodeEvent classifies a JSON frame body by its "event" field.
// A missing discriminator or "message" is a chat message.
func DecodeEvent(body []byte) (Event, error) {
	var w WireMessage
	if err := json.Unmarshal(body, &w); err != nil {
		return Event{}, ErrMalformedEvent
	}

	switch strings.ToLower(w.Event) {
	case eventTyping:
		if w.SenderID == "" {
			return Event{}, ErrMalformedEvent
		}
		return Event{Kind: EventTyping, Payload: w}, nil
	case "", "message":
		if w.SenderID == "" {
			return Event{}, ErrMalformedEvent
		}
		return Event{Kind: EventMessage, Payload: w}, nil
	default:
		return Event{}, ErrUnknownEvent
	}
}
