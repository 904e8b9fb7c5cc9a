package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"chatsync/models"
	"chatsync/protocol"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL, 5*time.Second)
}

func TestLogin(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/auth/login" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var creds Credentials
		json.NewDecoder(r.Body).Decode(&creds)
		if creds.Email != "alex@example.com" {
			t.Errorf("email = %q", creds.Email)
		}
		w.Write([]byte(`{"token":"tok","userId":12}`))
	})

	sess, err := c.Login(context.Background(), Credentials{Email: "alex@example.com", Password: "secret1"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.UserID != "12" || sess.Token != "tok" {
		t.Errorf("unexpected session %+v", sess)
	}
}

func TestErrorDetailAndUnauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"Bad credentials"}`))
	})

	_, err := c.Login(context.Background(), Credentials{Email: "a@b.c", Password: "x"})
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.Detail != "Bad credentials" {
		t.Errorf("Detail = %q", apiErr.Detail)
	}
	if !errors.Is(err, models.ErrUnauthorized) {
		t.Error("expected ErrUnauthorized")
	}
}

func TestResolveChatSendsParticipants(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("sender_id") != "u1" || r.URL.Query().Get("receiver_id") != "u2" {
			t.Errorf("unexpected query %q", r.URL.RawQuery)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token")
		}
		w.Write([]byte(`{"response":"c-9"}`))
	})

	id, err := c.ResolveChat(context.Background(), "tok", "u1", "u2")
	if err != nil || id != "c-9" {
		t.Fatalf("ResolveChat = %q, %v", id, err)
	}
}

func TestResolveChatEmptyResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	if _, err := c.ResolveChat(context.Background(), "tok", "u1", "u2"); err == nil {
		t.Fatal("expected error for empty response")
	}
}

func TestUsersNormalizesShapes(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":"u2","firstName":"Alex","lastName":"Doe","online":true},{"email":"b@x.io","isOnline":true}]`))
	})
	contacts, err := c.Users(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Users: %v", err)
	}
	if len(contacts) != 2 || contacts[0].Name != "Alex Doe" || !contacts[1].Online || contacts[1].ID != "b@x.io" {
		t.Errorf("unexpected contacts %+v", contacts)
	}
}

func TestUploadMediaMultipart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm: %v", err)
		}
		if r.FormValue("chat-id") != "c1" {
			t.Errorf("chat-id = %q", r.FormValue("chat-id"))
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile: %v", err)
		}
		data, _ := io.ReadAll(f)
		if hdr.Filename != "note.txt" || string(data) != "content" {
			t.Errorf("unexpected file %q %q", hdr.Filename, data)
		}
	})
	if err := c.UploadMedia(context.Background(), "tok", "c1", "note.txt", strings.NewReader("content")); err != nil {
		t.Fatalf("UploadMedia: %v", err)
	}
}

func TestHistoryAndMarkSeen(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/messages/chat/c1":
			w.Write([]byte(`[{"id":1,"content":"hi","senderId":"u2","createdAt":"2026-10-15T08:00:00Z","state":"DELIVERED","type":"TEXT"}]`))
		case r.Method == http.MethodPatch && r.URL.Query().Get("chat-id") == "c1":
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL)
		}
	})

	msgs, err := c.History(context.Background(), "tok", "c1")
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != protocol.FlexString("1") {
		t.Errorf("unexpected history %+v", msgs)
	}
	if err := c.MarkSeen(context.Background(), "tok", "c1"); err != nil {
		t.Fatalf("MarkSeen: %v", err)
	}
}

func TestRegistrationValidate(t *testing.T) {
	problems := Registration{Email: "nope", Password: "123"}.Validate()
	for _, field := range []string{"firstName", "lastName", "email", "password"} {
		if _, ok := problems[field]; !ok {
			t.Errorf("expected problem for %s", field)
		}
	}
	ok := Registration{FirstName: "A", LastName: "B", Email: "a@b.io", Password: "secret"}.Validate()
	if len(ok) != 0 {
		t.Errorf("unexpected problems %v", ok)
	}
}
