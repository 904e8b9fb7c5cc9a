package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/op/go-logging"

	"chatsync/models"
	"chatsync/protocol"
)

var log = logging.MustGetLogger("channel")

const (
	DefaultReconnectDelay = 5 * time.Second
	handshakeTimeout      = 10 * time.Second
	writeTimeout          = 10 * time.Second
	eventBuffer           = 256
)

// Option configures a Manager.
type Option func(*Manager)

// WithReconnectDelay sets the fixed delay between reconnect attempts.
func WithReconnectDelay(d time.Duration) Option {
	return func(m *Manager) { m.delay = d }
}

// WithStateHandler registers a callback for connected/disconnected transitions.
func WithStateHandler(fn func(connected bool)) Option {
	return func(m *Manager) { m.onState = fn }
}

// WithDialer replaces the websocket dialer.
func WithDialer(d *websocket.Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// Manager owns the single live channel of a session. It reconnects on its own
// after unexpected drops and never surfaces transport failures to callers.
type Manager struct {
	url     string
	delay   time.Duration
	dialer  *websocket.Dialer
	onState func(bool)
	events  chan protocol.Event

	mu      sync.Mutex
	session *models.Session
	cancel  context.CancelFunc
	done    chan struct{}
	conn    *websocket.Conn
	subs    map[string]string // subscription id -> destination
	nextSub int

	connected atomic.Bool
	writeMu   sync.Mutex
}

// New creates a manager for the websocket endpoint at wsURL.
func New(wsURL string, opts ...Option) *Manager {
	m := &Manager{
		url:    wsURL,
		delay:  DefaultReconnectDelay,
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		events: make(chan protocol.Event, eventBuffer),
		subs:   make(map[string]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Events delivers classified inbound payloads of active subscriptions.
func (m *Manager) Events() <-chan protocol.Event {
	return m.events
}

// IsConnected reports whether the transport is currently up.
func (m *Manager) IsConnected() bool {
	return m.connected.Load()
}

// Connect starts the transport loop for session. It is a no-op while a loop is
// already running.
func (m *Manager) Connect(session *models.Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return
	}
	if !session.Valid() {
		log.Warning("connect skipped: no credentials")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.session = session
	m.cancel = cancel
	m.done = make(chan struct{})
	go m.run(ctx, session, m.done)
}

// Disconnect tears the transport down and forgets all subscriptions. Safe to call repeatedly.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	cancel, done, conn := m.cancel, m.done, m.conn
	m.cancel = nil
	m.done = nil
	m.session = nil
	m.subs = make(map[string]string)
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	if conn != nil {
		m.writeFrame(conn, protocol.NewFrame(protocol.CmdDisconnect, nil))
	}
	cancel()
	<-done
}

// Subscription is a registered interest in the personal inbound route.
type Subscription struct {
	m  *Manager
	id string
}

// SubscribeInbox registers the session's personal inbound route. The route is
// (re)subscribed whenever the transport comes up.
func (m *Manager) SubscribeInbox() (*Subscription, error) {
	m.mu.Lock()
	if m.session == nil {
		m.mu.Unlock()
		return nil, models.ErrChannelUnavailable
	}
	id := fmt.Sprintf("sub-%d", m.nextSub)
	m.nextSub++
	dest := protocol.InboxRoute(m.session.UserID)
	m.subs[id] = dest
	conn := m.conn
	m.mu.Unlock()

	if conn != nil {
		if err := m.writeFrame(conn, subscribeFrame(id, dest)); err != nil {
			log.Debugf("subscribe %s deferred: %v", dest, err)
		}
	}
	return &Subscription{m: m, id: id}, nil
}

// Unsubscribe stops delivery for this subscription; the transport stays up.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	m := s.m
	m.mu.Lock()
	if _, ok := m.subs[s.id]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.subs, s.id)
	conn := m.conn
	m.mu.Unlock()

	if conn != nil {
		m.writeFrame(conn, protocol.NewFrame(protocol.CmdUnsubscribe, nil, "id", s.id))
	}
}

// Publish sends payload as JSON to an application destination. When the
// transport is down it returns ErrChannelUnavailable and does nothing else.
func (m *Manager) Publish(destination string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()
	if conn == nil || !m.IsConnected() {
		return models.ErrChannelUnavailable
	}

	f := protocol.NewFrame(protocol.CmdSend, body,
		"destination", destination,
		"content-type", "application/json",
	)
	if err := m.writeFrame(conn, f); err != nil {
		return fmt.Errorf("%w: %v", models.ErrChannelUnavailable, err)
	}
	return nil
}

func (m *Manager) run(ctx context.Context, session *models.Session, done chan struct{}) {
	defer close(done)

	policy := backoff.WithContext(backoff.NewConstantBackOff(m.delay), ctx)
	op := func() error {
		err := m.serve(ctx, session)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Warningf("channel down: %v, retrying in %s", err, wait)
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("channel loop stopped: %v", err)
	}
	log.Info("channel closed")
}

// serve runs one connection until it drops. It always returns a non-nil error.
func (m *Manager) serve(ctx context.Context, session *models.Session) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+session.Token)

	conn, _, err := m.dialer.DialContext(ctx, m.url, header)
	if err != nil {
		return err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := m.handshake(conn, session); err != nil {
		return err
	}

	m.mu.Lock()
	if ctx.Err() != nil {
		m.mu.Unlock()
		return ctx.Err()
	}
	m.conn = conn
	subs := make(map[string]string, len(m.subs))
	for id, dest := range m.subs {
		subs[id] = dest
	}
	m.mu.Unlock()

	for id, dest := range subs {
		if err := m.writeFrame(conn, subscribeFrame(id, dest)); err != nil {
			m.detach(conn)
			return err
		}
	}

	m.setConnected(true)
	log.Infof("channel connected to %s", m.url)
	defer m.detach(conn)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		m.handle(ctx, data)
	}
}

func (m *Manager) handshake(conn *websocket.Conn, session *models.Session) error {
	host := ""
	if u, err := url.Parse(m.url); err == nil {
		host = u.Hostname()
	}
	connect := protocol.NewFrame(protocol.CmdConnect, nil,
		"accept-version", "1.2",
		"host", host,
		"heart-beat", "0,0",
		"Authorization", "Bearer "+session.Token,
	)
	if err := m.writeFrame(conn, connect); err != nil {
		return err
	}

	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	defer conn.SetReadDeadline(time.Time{})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f, err := protocol.ParseFrame(data)
		if errors.Is(err, protocol.ErrHeartbeat) {
			continue
		}
		if err != nil {
			return err
		}
		switch f.Command {
		case protocol.CmdConnected:
			return nil
		case protocol.CmdError:
			return fmt.Errorf("stomp error: %s", f.Header("message"))
		default:
			return fmt.Errorf("unexpected %s frame during handshake", f.Command)
		}
	}
}

// handle parses one inbound payload. Anything that is not a MESSAGE of an active
// subscription carrying a recognised event is dropped.
func (m *Manager) handle(ctx context.Context, data []byte) {
	f, err := protocol.ParseFrame(data)
	if err != nil {
		if !errors.Is(err, protocol.ErrHeartbeat) {
			log.Debugf("dropping frame: %v", err)
		}
		return
	}

	switch f.Command {
	case protocol.CmdMessage:
	case protocol.CmdError:
		log.Warningf("broker error: %s", f.Header("message"))
		return
	default:
		return
	}

	m.mu.Lock()
	_, active := m.subs[f.Header("subscription")]
	m.mu.Unlock()
	if !active {
		return
	}

	ev, err := protocol.DecodeEvent(f.Body)
	if err != nil {
		log.Debugf("dropping payload: %v", err)
		return
	}
	select {
	case m.events <- ev:
	case <-ctx.Done():
	}
}

func (m *Manager) detach(conn *websocket.Conn) {
	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
	}
	m.mu.Unlock()
	m.setConnected(false)
}

func (m *Manager) setConnected(v bool) {
	if m.connected.Swap(v) != v && m.onState != nil {
		m.onState(v)
	}
}

func (m *Manager) writeFrame(conn *websocket.Conn, f *protocol.Frame) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, protocol.FormatFrame(f))
}

func subscribeFrame(id, dest string) *protocol.Frame {
	return protocol.NewFrame(protocol.CmdSubscribe, nil, "id", id, "destination", dest, "ack", "auto")
}
