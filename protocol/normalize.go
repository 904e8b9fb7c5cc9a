package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"chatsync/models"
)

// Every backend shape the client accepts is mapped to a models entity here and nowhere else.

// PlaceholderAvatar replaces missing or generated placeholder avatars.
const PlaceholderAvatar = "/placeholder-user.jpg"

var ErrInvalidTimestamp = errors.New("invalid timestamp")

// FlexString accepts a JSON string or number.
type FlexString string

func (f *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}

func (f FlexString) String() string { return string(f) }

// WireMessage is a message as sent by the history endpoint or pushed on the channel.
type WireMessage struct {
	Event      string     `json:"event,omitempty"`
	ID         FlexString `json:"id,omitempty"`
	ChatID     FlexString `json:"chatId,omitempty"`
	SenderID   FlexString `json:"senderId,omitempty"`
	ReceiverID FlexString `json:"receiverId,omitempty"`
	Content    string     `json:"content,omitempty"`
	FileName   string     `json:"fileName,omitempty"`
	Type       string     `json:"type,omitempty"`
	MediaURL   string     `json:"mediaUrl,omitempty"`
	State      string     `json:"state,omitempty"`
	CreatedAt  string     `json:"createdAt,omitempty"`
}

// ToMessage normalizes a wire message. Attribution always comes from comparing
// senderId with selfID. A missing state falls back to def; a missing or
// unparseable createdAt falls back to now.
func (w WireMessage) ToMessage(selfID string, def models.Status, now time.Time) models.Message {
	kind := models.ParseKind(w.Type)
	msg := models.Message{
		ID:             string(w.ID),
		ConversationID: string(w.ChatID),
		SenderID:       string(w.SenderID),
		Body:           w.Content,
		Kind:           kind,
		Status:         def,
		Mine:           selfID != "" && string(w.SenderID) == selfID,
	}
	if msg.Body == "" {
		msg.Body = w.FileName
	}
	if (kind == models.KindImage || kind == models.KindFile) && w.MediaURL != "" {
		msg.MediaURL = w.MediaURL
	}
	if w.State != "" {
		msg.Status = models.ParseStatus(w.State)
	}
	if t, err := ParseTimestamp(w.CreatedAt); err == nil {
		msg.CreatedAt = t
	} else {
		msg.CreatedAt = now
	}
	return msg
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTimestamp accepts RFC 3339 and the zone-less forms some backends emit
// ("2006-01-02 15:04:05.123456", "2006-01-02T15:04:05"). Zone-less values are UTC.
// Precision is truncated to milliseconds.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, ErrInvalidTimestamp
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Truncate(time.Millisecond), nil
		}
	}
	return time.Time{}, ErrInvalidTimestamp
}

// WireUser is a directory entry.
type WireUser struct {
	ID        FlexString `json:"id"`
	FirstName string     `json:"firstName"`
	LastName  string     `json:"lastName"`
	Email     string     `json:"email"`
	Avatar    string     `json:"avatar"`
	Online    *bool      `json:"online,omitempty"`
	IsOnline  *bool      `json:"isOnline,omitempty"`
	LastSeen  string     `json:"lastSeen,omitempty"`
}

// ToContact normalizes a directory entry.
func (u WireUser) ToContact() models.Contact {
	c := models.Contact{
		ID:     string(u.ID),
		Email:  u.Email,
		Avatar: u.Avatar,
	}
	if c.ID == "" {
		c.ID = u.Email
	}

	first, last := strings.TrimSpace(u.FirstName), strings.TrimSpace(u.LastName)
	switch {
	case first != "" && last != "":
		c.Name = first + " " + last
	case first != "":
		c.Name = first
	case last != "":
		c.Name = last
	default:
		c.Name = u.Email
	}

	if c.Avatar == "" || strings.Contains(c.Avatar, "placeholder.svg") {
		c.Avatar = PlaceholderAvatar
	}

	switch {
	case u.Online != nil:
		c.Online = *u.Online
	case u.IsOnline != nil:
		c.Online = *u.IsOnline
	}

	if t, err := ParseTimestamp(u.LastSeen); err == nil {
		c.LastSeen = t
	}
	return c
}

// AuthResponse is returned by login and register.
type AuthResponse struct {
	Token  string     `json:"token"`
	UserID FlexString `json:"userId"`
}

// ChatResponse is returned by the create-or-fetch conversation endpoint.
type ChatResponse struct {
	Response FlexString `json:"response"`
}

// ErrorBody is a backend error payload; either field may carry the detail.
type ErrorBody struct {
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// Detail returns the first non-empty description.
func (e ErrorBody) Detail() string {
	if e.Error != "" {
		return e.Error
	}
	return e.Message
}
