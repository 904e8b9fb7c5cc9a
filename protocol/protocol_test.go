package protocol

import (
	"errors"
	"strings"
	"testing"
	"time"

	"chatsync/models"
)

func TestFormatParseFrame(t *testing.T) {
	f := NewFrame(CmdSend, []byte(`{"content":"hi"}`),
		"destination", DestSendMessage,
		"content-type", "application/json",
		"note", "a:b\nc",
	)
	parsed, err := ParseFrame(FormatFrame(f))
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if parsed.Command != CmdSend {
		t.Errorf("Command = %q", parsed.Command)
	}
	if parsed.Header("destination") != DestSendMessage {
		t.Errorf("destination = %q", parsed.Header("destination"))
	}
	if parsed.Header("note") != "a:b\nc" {
		t.Errorf("escaped header not restored: %q", parsed.Header("note"))
	}
	if string(parsed.Body) != `{"content":"hi"}` {
		t.Errorf("Body = %q", parsed.Body)
	}
}

func TestParseFrameWithoutContentLength(t *testing.T) {
	raw := "MESSAGE\ndestination:/user/u1/queue/messages\nsubscription:sub-0\n\n{\"senderId\":\"u2\"}\x00\n"
	f, err := ParseFrame([]byte(raw))
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if string(f.Body) != `{"senderId":"u2"}` {
		t.Errorf("Body = %q", f.Body)
	}
	if f.Header("subscription") != "sub-0" {
		t.Errorf("subscription = %q", f.Header("subscription"))
	}
}

func TestParseFrameCRLF(t *testing.T) {
	raw := "CONNECTED\r\nversion:1.2\r\n\r\n\x00"
	f, err := ParseFrame([]byte(raw))
	if err != nil {
		t.Fatalf("ParseFrame: %v", err)
	}
	if f.Command != CmdConnected || f.Header("version") != "1.2" {
		t.Errorf("unexpected frame %+v", f)
	}
}

func TestParseFrameErrors(t *testing.T) {
	if _, err := ParseFrame([]byte("\n")); !errors.Is(err, ErrHeartbeat) {
		t.Errorf("heartbeat: got %v", err)
	}
	if _, err := ParseFrame([]byte("MESSAGE\nno-separator")); !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("missing separator: got %v", err)
	}
	if _, err := ParseFrame([]byte("MESSAGE\nbroken\n\n\x00")); !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("bad header: got %v", err)
	}
	if _, err := ParseFrame([]byte("MESSAGE\ncontent-length:99\n\nabc\x00")); !errors.Is(err, ErrInvalidFrame) {
		t.Errorf("short body: got %v", err)
	}
}

func TestDecodeEvent(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		kind    EventKind
		wantErr error
	}{
		{"typing", `{"event":"typing","senderId":"u2","receiverId":"u1"}`, EventTyping, nil},
		{"message without discriminator", `{"id":7,"content":"hi","senderId":"u2","chatId":"c1"}`, EventMessage, nil},
		{"explicit message", `{"event":"message","content":"hi","senderId":5}`, EventMessage, nil},
		{"unknown event", `{"event":"presence","senderId":"u2"}`, 0, ErrUnknownEvent},
		{"not json", `hello`, 0, ErrMalformedEvent},
		{"typing without sender", `{"event":"typing"}`, 0, ErrMalformedEvent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := DecodeEvent([]byte(tt.body))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeEvent: %v", err)
			}
			if ev.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", ev.Kind, tt.kind)
			}
		})
	}
}

func TestWireMessageToMessage(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)
	ev, err := DecodeEvent([]byte(`{"id":42,"chatId":"c1","senderId":"u1","type":"IMAGE","mediaUrl":"/media/a.png","fileName":"a.png","state":"SEEN","createdAt":"2026-10-14 09:30:00.123456"}`))
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}
	msg := ev.Payload.ToMessage("u1", models.StatusDelivered, now)
	if msg.ID != "42" || msg.ConversationID != "c1" {
		t.Errorf("ids = %q/%q", msg.ID, msg.ConversationID)
	}
	if !msg.Mine {
		t.Error("sender equals self, expected Mine")
	}
	if msg.Kind != models.KindImage || msg.MediaURL != "/media/a.png" || msg.Body != "a.png" {
		t.Errorf("unexpected media fields %+v", msg)
	}
	if msg.Status != models.StatusSeen {
		t.Errorf("Status = %v", msg.Status)
	}
	want := time.Date(2026, 10, 14, 9, 30, 0, 123000000, time.UTC)
	if !msg.CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", msg.CreatedAt, want)
	}

	text := WireMessage{SenderID: "u2", Content: "yo", MediaURL: "/ignored"}.ToMessage("u1", models.StatusDelivered, now)
	if text.Mine || text.MediaURL != "" || text.Status != models.StatusDelivered || !text.CreatedAt.Equal(now) {
		t.Errorf("unexpected text message %+v", text)
	}
}

func TestParseTimestamp(t *testing.T) {
	inputs := []string{
		"2026-10-14T09:30:00Z",
		"2026-10-14T09:30:00",
		"2026-10-14 09:30:00",
		"2026-10-14T11:30:00+02:00",
		"2026-10-14T09:30:00.000999Z",
	}
	want := time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)
	for _, in := range inputs {
		got, err := ParseTimestamp(in)
		if err != nil {
			t.Errorf("ParseTimestamp(%q): %v", in, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseTimestamp(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseTimestamp("yesterday"); !errors.Is(err, ErrInvalidTimestamp) {
		t.Errorf("expected ErrInvalidTimestamp, got %v", err)
	}
}

func TestWireUserToContact(t *testing.T) {
	online := true
	c := WireUser{ID: "7", FirstName: "Alex", LastName: "Doe", Email: "a@x.io", IsOnline: &online}.ToContact()
	if c.Name != "Alex Doe" || !c.Online || c.Avatar != PlaceholderAvatar {
		t.Errorf("unexpected contact %+v", c)
	}

	c = WireUser{Email: "b@x.io", Avatar: "/placeholder.svg?height=40"}.ToContact()
	if c.ID != "b@x.io" || c.Name != "b@x.io" || c.Avatar != PlaceholderAvatar || c.Online {
		t.Errorf("unexpected fallback contact %+v", c)
	}
}

func TestInboxRoute(t *testing.T) {
	if got := InboxRoute("u1"); !strings.HasPrefix(got, "/user/u1/") {
		t.Errorf("InboxRoute = %q", got)
	}
}
