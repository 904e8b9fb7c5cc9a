package models

import (
	"strings"
	"time"
)

// Session is the authenticated identity of the local user.
type Session struct {
	UserID string
	Token  string
}

// Valid reports whether both halves of the credential pair are present.
func (s *Session) Valid() bool {
	return s != nil && s.UserID != "" && s.Token != ""
}

// Contact is a potential conversation peer from the directory.
type Contact struct {
	ID       string
	Name     string
	Email    string
	Avatar   string
	Online   bool
	LastSeen time.Time
	Unread   int
}

// Conversation is the logical channel between exactly two participants.
type Conversation struct {
	ID     string
	SelfID string
	PeerID string
}

// Kind is the payload type of a message.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
	KindFile  Kind = "file"
)

// ParseKind maps any casing of a backend type to a Kind. Unknown values are text.
func ParseKind(s string) Kind {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindImage:
		return KindImage
	case KindFile:
		return KindFile
	default:
		return KindText
	}
}

// Status is the delivery state of a message: sent -> delivered -> seen.
type Status int

const (
	StatusSent Status = iota
	StatusDelivered
	StatusSeen
)

func (s Status) String() string {
	switch s {
	case StatusDelivered:
		return "delivered"
	case StatusSeen:
		return "seen"
	default:
		return "sent"
	}
}

// ParseStatus maps any casing of a backend state to a Status. Unknown values are sent.
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "delivered":
		return StatusDelivered
	case "seen", "read":
		return StatusSeen
	default:
		return StatusSent
	}
}

// Advance returns the later of the two statuses. Status never regresses.
func (s Status) Advance(next Status) Status {
	if next > s {
		return next
	}
	return s
}

// Message is a single entry of a conversation timeline.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Body           string
	MediaURL       string
	Kind           Kind
	Status         Status
	CreatedAt      time.Time
	Label          string // display timestamp, see timeline.Formatter
	Local          bool   // optimistic entry not yet confirmed by the backend
	Mine           bool
}

// TypingSignal is an ephemeral "peer is composing" marker.
type TypingSignal struct {
	PeerID     string
	ReceivedAt time.Time
}

// NotificationEvent lives only for the duration of one alert.
type NotificationEvent struct {
	ID        string
	Contact   Contact
	Excerpt   string
	Hidden    bool
	CreatedAt time.Time
}
