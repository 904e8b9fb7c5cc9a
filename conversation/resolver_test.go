package conversation

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"chatsync/models"
)

// pairBackend hands out one id per unordered pair, like the real backend.
type pairBackend struct {
	mu    sync.Mutex
	ids   map[string]string
	calls int
	fail  error
}

func (b *pairBackend) ResolveChat(ctx context.Context, token, senderID, receiverID string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.fail != nil {
		return "", b.fail
	}
	pair := []string{senderID, receiverID}
	sort.Strings(pair)
	key := strings.Join(pair, "|")
	if id, ok := b.ids[key]; ok {
		return id, nil
	}
	id := "chat-" + key
	b.ids[key] = id
	return id, nil
}

func TestResolveIsIdempotent(t *testing.T) {
	backend := &pairBackend{ids: make(map[string]string)}
	r := NewResolver(backend)
	self := &models.Session{UserID: "u1", Token: "tok"}

	first, err := r.Resolve(context.Background(), self, "u2")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := r.Resolve(context.Background(), self, "u2")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if again.ID != first.ID {
			t.Fatalf("resolution changed: %q != %q", again.ID, first.ID)
		}
	}

	reverse, _ := r.Resolve(context.Background(), &models.Session{UserID: "u2", Token: "tok"}, "u1")
	if reverse.ID != first.ID {
		t.Errorf("reverse pair got %q, want %q", reverse.ID, first.ID)
	}
	if len(backend.ids) != 1 {
		t.Errorf("backend created %d conversations, want 1", len(backend.ids))
	}
	if backend.calls != 7 {
		t.Errorf("backend calls = %d, want 7 (no caching)", backend.calls)
	}
}

func TestResolveInvalidParticipants(t *testing.T) {
	backend := &pairBackend{ids: make(map[string]string)}
	r := NewResolver(backend)

	cases := []struct {
		session *models.Session
		peer    string
	}{
		{nil, "u2"},
		{&models.Session{UserID: "", Token: "tok"}, "u2"},
		{&models.Session{UserID: "u1", Token: "tok"}, ""},
		{&models.Session{UserID: "u1", Token: "tok"}, "   "},
	}
	for _, c := range cases {
		if _, err := r.Resolve(context.Background(), c.session, c.peer); !errors.Is(err, models.ErrInvalidParticipants) {
			t.Errorf("Resolve(%+v, %q) err = %v", c.session, c.peer, err)
		}
	}
	if backend.calls != 0 {
		t.Errorf("backend called %d times for invalid input", backend.calls)
	}
}

func TestResolveFailureCarriesDetail(t *testing.T) {
	detail := errors.New("backend returned 500: db down")
	r := NewResolver(&pairBackend{ids: make(map[string]string), fail: detail})

	_, err := r.Resolve(context.Background(), &models.Session{UserID: "u1", Token: "tok"}, "u2")
	if !errors.Is(err, models.ErrConversationResolutionFailed) {
		t.Fatalf("err = %v, want ErrConversationResolutionFailed", err)
	}
	if !errors.Is(err, detail) || !strings.Contains(err.Error(), "db down") {
		t.Errorf("backend detail lost: %v", err)
	}
	if _, ok := r.Current(); ok {
		t.Error("failed resolution must not become current")
	}
}

func TestCurrentAndClear(t *testing.T) {
	r := NewResolver(&pairBackend{ids: make(map[string]string)})
	conv, _ := r.Resolve(context.Background(), &models.Session{UserID: "u1", Token: "tok"}, "u2")
	cur, ok := r.Current()
	if !ok || cur != conv {
		t.Fatalf("Current = %+v, %v", cur, ok)
	}
	r.Clear()
	if _, ok := r.Current(); ok {
		t.Error("expected no current conversation after Clear")
	}
}
