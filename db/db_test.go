package db

import (
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func TestUsers(t *testing.T) {
	database := setupTestDB(t)

	u, err := database.CreateUser("Alex", "Doe", " Alex@Example.com ", "secret1")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if u.Email != "alex@example.com" || u.ID == "" {
		t.Errorf("unexpected user %+v", u)
	}
	if _, err := database.CreateUser("A", "B", "alex@example.com", "secret1"); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("duplicate email err = %v", err)
	}

	got, err := database.AuthenticateUser("ALEX@example.com", "secret1")
	if err != nil || got.ID != u.ID {
		t.Fatalf("AuthenticateUser = %+v, %v", got, err)
	}
	if _, err := database.AuthenticateUser("alex@example.com", "wrong"); !errors.Is(err, ErrNoRows) {
		t.Errorf("wrong password err = %v", err)
	}
	if _, err := database.GetUser("missing"); !errors.Is(err, ErrNoRows) {
		t.Errorf("GetUser(missing) err = %v", err)
	}

	seen := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := database.UpdateLastSeen(u.ID, seen); err != nil {
		t.Fatalf("UpdateLastSeen: %v", err)
	}
	users, err := database.ListUsers()
	if err != nil || len(users) != 1 {
		t.Fatalf("ListUsers = %v, %v", users, err)
	}
	if !users[0].LastSeen.Equal(seen) {
		t.Errorf("last seen = %v", users[0].LastSeen)
	}
}

func TestChatPerPair(t *testing.T) {
	database := setupTestDB(t)
	a, _ := database.CreateUser("A", "A", "a@x.io", "secret1")
	b, _ := database.CreateUser("B", "B", "b@x.io", "secret1")

	first, err := database.GetOrCreateChat(a.ID, b.ID)
	if err != nil {
		t.Fatalf("GetOrCreateChat: %v", err)
	}
	second, _ := database.GetOrCreateChat(b.ID, a.ID)
	if first != second {
		t.Errorf("pair produced two chats: %s, %s", first, second)
	}

	x, y, err := database.ChatParticipants(first)
	if err != nil {
		t.Fatalf("ChatParticipants: %v", err)
	}
	if (x != a.ID || y != b.ID) && (x != b.ID || y != a.ID) {
		t.Errorf("participants = %s, %s", x, y)
	}
	if _, _, err := database.ChatParticipants("nope"); !errors.Is(err, ErrNoRows) {
		t.Errorf("unknown chat err = %v", err)
	}
}

func TestMessages(t *testing.T) {
	database := setupTestDB(t)
	a, _ := database.CreateUser("A", "A", "a@x.io", "secret1")
	b, _ := database.CreateUser("B", "B", "b@x.io", "secret1")
	chat, _ := database.GetOrCreateChat(a.ID, b.ID)

	base := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	// Inserted out of order, with timestamps that sort wrongly as variable-width text.
	for _, m := range []Message{
		{ChatID: chat, SenderID: a.ID, ReceiverID: b.ID, Content: "second", CreatedAt: base.Add(120 * time.Millisecond)},
		{ChatID: chat, SenderID: b.ID, ReceiverID: a.ID, Content: "first", CreatedAt: base.Add(100 * time.Millisecond)},
		{ChatID: chat, SenderID: b.ID, ReceiverID: a.ID, Content: "third", CreatedAt: base.Add(time.Second)},
	} {
		saved, err := database.SaveMessage(m)
		if err != nil {
			t.Fatalf("SaveMessage: %v", err)
		}
		if saved.ID == 0 || saved.State != StateSent || saved.Type != "TEXT" {
			t.Errorf("defaults not applied: %+v", saved)
		}
	}

	msgs, err := database.GetMessages(chat)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(msgs) != 3 || msgs[0].Content != "first" || msgs[1].Content != "second" || msgs[2].Content != "third" {
		t.Fatalf("order = %+v", msgs)
	}

	n, err := database.MarkSeen(chat, a.ID)
	if err != nil || n != 2 {
		t.Fatalf("MarkSeen = %d, %v", n, err)
	}
	msgs, _ = database.GetMessages(chat)
	for _, m := range msgs {
		want := StateSent
		if m.ReceiverID == a.ID {
			want = StateSeen
		}
		if m.State != want {
			t.Errorf("%q state = %s, want %s", m.Content, m.State, want)
		}
	}
	if n, _ := database.MarkSeen(chat, a.ID); n != 0 {
		t.Errorf("second MarkSeen changed %d rows", n)
	}
}
