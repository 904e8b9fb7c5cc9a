package channel

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"chatsync/models"
	"chatsync/protocol"
)

// fakeBroker is a minimal STOMP endpoint: it answers CONNECT, records frames
// and lets the test push MESSAGE frames or drop the connection.
type fakeBroker struct {
	t        *testing.T
	upgrader websocket.Upgrader

	mu       sync.Mutex
	conns    []*websocket.Conn
	frames   []*protocol.Frame
	connects int
	subs     map[string]string
	ready    chan struct{}
}

func newFakeBroker(t *testing.T) (*fakeBroker, string) {
	b := &fakeBroker{t: t, subs: make(map[string]string), ready: make(chan struct{}, 16)}
	srv := httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(srv.Close)
	return b, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func (b *fakeBroker) serve(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	b.mu.Lock()
	b.conns = append(b.conns, conn)
	b.mu.Unlock()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		f, err := protocol.ParseFrame(data)
		if err != nil {
			continue
		}
		b.mu.Lock()
		b.frames = append(b.frames, f)
		switch f.Command {
		case protocol.CmdConnect:
			b.connects++
		case protocol.CmdSubscribe:
			b.subs[f.Header("id")] = f.Header("destination")
		case protocol.CmdUnsubscribe:
			delete(b.subs, f.Header("id"))
		}
		b.mu.Unlock()

		switch f.Command {
		case protocol.CmdConnect:
			conn.WriteMessage(websocket.TextMessage, protocol.FormatFrame(protocol.NewFrame(protocol.CmdConnected, nil, "version", "1.2")))
		case protocol.CmdSubscribe:
			b.ready <- struct{}{}
		}
	}
}

func (b *fakeBroker) push(t *testing.T, subID, body string) {
	t.Helper()
	b.mu.Lock()
	conn := b.conns[len(b.conns)-1]
	b.mu.Unlock()
	f := protocol.NewFrame(protocol.CmdMessage, []byte(body), "subscription", subID, "destination", "/user/u1/queue/messages")
	if err := conn.WriteMessage(websocket.TextMessage, protocol.FormatFrame(f)); err != nil {
		t.Fatalf("push: %v", err)
	}
}

func (b *fakeBroker) pushRaw(t *testing.T, raw string) {
	t.Helper()
	b.mu.Lock()
	conn := b.conns[len(b.conns)-1]
	b.mu.Unlock()
	conn.WriteMessage(websocket.TextMessage, []byte(raw))
}

func (b *fakeBroker) dropAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.conns {
		c.Close()
	}
}

func (b *fakeBroker) count(cmd string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, f := range b.frames {
		if f.Command == cmd {
			n++
		}
	}
	return n
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func recvEvent(t *testing.T, m *Manager) protocol.Event {
	t.Helper()
	select {
	case ev := <-m.Events():
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return protocol.Event{}
}

var session = &models.Session{UserID: "u1", Token: "tok"}

func TestConnectIsSingleton(t *testing.T) {
	b, url := newFakeBroker(t)
	m := New(url, WithReconnectDelay(50*time.Millisecond))
	defer m.Disconnect()

	m.Connect(session)
	m.Connect(session)
	m.Connect(session)

	waitFor(t, "connected", m.IsConnected)
	time.Sleep(100 * time.Millisecond)
	if got := b.count(protocol.CmdConnect); got != 1 {
		t.Errorf("CONNECT frames = %d, want 1", got)
	}
}

func TestInboxDeliveryAndFiltering(t *testing.T) {
	b, url := newFakeBroker(t)
	m := New(url)
	defer m.Disconnect()

	m.Connect(session)
	waitFor(t, "connected", m.IsConnected)
	sub, err := m.SubscribeInbox()
	if err != nil {
		t.Fatalf("SubscribeInbox: %v", err)
	}
	<-b.ready

	// Malformed and unknown payloads are dropped without breaking the loop.
	b.push(t, sub.id, `not json`)
	b.push(t, sub.id, `{"event":"presence","senderId":"u2"}`)
	b.pushRaw(t, "garbage-without-headers")
	b.push(t, "sub-unknown", `{"content":"other","senderId":"u2"}`)
	b.push(t, sub.id, `{"event":"typing","senderId":"u2"}`)
	b.push(t, sub.id, `{"id":1,"content":"hi","senderId":"u2","chatId":"c1"}`)

	ev := recvEvent(t, m)
	if ev.Kind != protocol.EventTyping {
		t.Fatalf("first event kind = %v, want typing", ev.Kind)
	}
	ev = recvEvent(t, m)
	if ev.Kind != protocol.EventMessage || ev.Payload.Content != "hi" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if !m.IsConnected() {
		t.Error("channel must survive bad frames")
	}
}

func TestUnsubscribeKeepsTransport(t *testing.T) {
	b, url := newFakeBroker(t)
	m := New(url)
	defer m.Disconnect()

	m.Connect(session)
	waitFor(t, "connected", m.IsConnected)
	sub, _ := m.SubscribeInbox()
	<-b.ready

	sub.Unsubscribe()
	sub.Unsubscribe()
	waitFor(t, "unsubscribe frame", func() bool { return b.count(protocol.CmdUnsubscribe) == 1 })

	b.push(t, sub.id, `{"content":"late","senderId":"u2"}`)
	select {
	case ev := <-m.Events():
		t.Fatalf("unexpected event after unsubscribe: %+v", ev)
	case <-time.After(150 * time.Millisecond):
	}
	if !m.IsConnected() {
		t.Error("unsubscribe must not tear down the channel")
	}
}

func TestReconnectsAfterDropAndResubscribes(t *testing.T) {
	b, url := newFakeBroker(t)
	var mu sync.Mutex
	var states []bool
	m := New(url,
		WithReconnectDelay(50*time.Millisecond),
		WithStateHandler(func(c bool) {
			mu.Lock()
			states = append(states, c)
			mu.Unlock()
		}),
	)
	defer m.Disconnect()

	m.Connect(session)
	waitFor(t, "connected", m.IsConnected)
	if _, err := m.SubscribeInbox(); err != nil {
		t.Fatalf("SubscribeInbox: %v", err)
	}
	<-b.ready

	b.dropAll()
	waitFor(t, "second connect", func() bool { return b.count(protocol.CmdConnect) == 2 })
	<-b.ready
	waitFor(t, "reconnected", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(states) >= 3
	})

	mu.Lock()
	defer mu.Unlock()
	if len(states) < 3 || !states[0] || states[1] || !states[2] {
		t.Errorf("state transitions = %v, want [true false true ...]", states)
	}
}

func TestPublishWhileDisconnectedIsNoop(t *testing.T) {
	m := New("ws://127.0.0.1:1/ws")
	err := m.Publish(protocol.DestSendMessage, protocol.ChatMessage{Content: "hello"})
	if !errors.Is(err, models.ErrChannelUnavailable) {
		t.Fatalf("Publish err = %v, want ErrChannelUnavailable", err)
	}
	if _, err := m.SubscribeInbox(); !errors.Is(err, models.ErrChannelUnavailable) {
		t.Fatalf("SubscribeInbox err = %v, want ErrChannelUnavailable", err)
	}
	m.Disconnect()
	m.Disconnect()
}

func TestPublishSendsFrame(t *testing.T) {
	b, url := newFakeBroker(t)
	m := New(url)
	defer m.Disconnect()

	m.Connect(session)
	waitFor(t, "connected", m.IsConnected)
	if err := m.Publish(protocol.DestTyping, protocol.NewTypingNotice("u1", "u2", "c1")); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	waitFor(t, "send frame", func() bool { return b.count(protocol.CmdSend) == 1 })

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, f := range b.frames {
		if f.Command == protocol.CmdSend {
			if f.Header("destination") != protocol.DestTyping || !strings.Contains(string(f.Body), `"event":"typing"`) {
				t.Errorf("unexpected SEND frame %+v", f)
			}
		}
	}
}

func TestDisconnectIsIdempotentAndStopsRetry(t *testing.T) {
	b, url := newFakeBroker(t)
	m := New(url, WithReconnectDelay(20*time.Millisecond))

	m.Connect(session)
	waitFor(t, "connected", m.IsConnected)
	m.Disconnect()
	m.Disconnect()

	if m.IsConnected() {
		t.Error("expected disconnected")
	}
	connects := b.count(protocol.CmdConnect)
	time.Sleep(100 * time.Millisecond)
	if b.count(protocol.CmdConnect) != connects {
		t.Error("manager reconnected after Disconnect")
	}
}
