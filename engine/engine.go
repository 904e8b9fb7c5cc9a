package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/op/go-logging"

	"chatsync/api"
	"chatsync/channel"
	"chatsync/config"
	"chatsync/conversation"
	"chatsync/media"
	"chatsync/models"
	"chatsync/notify"
	"chatsync/presence"
	"chatsync/protocol"
	"chatsync/timeline"
)

var log = logging.MustGetLogger("engine")

var ErrEmptyMessage = errors.New("empty message")

const (
	updateBuffer  = 128
	excerptLength = 60
)

// UpdateKind tells the UI which part of the state to re-read.
type UpdateKind int

const (
	UpdateTimeline UpdateKind = iota
	UpdateContacts
	UpdatePresence
	UpdateConnection
	UpdateNotice
	UpdateSession
)

// Update is a change hint. The UI reads the actual state through the Engine.
type Update struct {
	Kind           UpdateKind
	ConversationID string
	PeerID         string
	Connected      bool
	Notice         string
	Err            error
}

// ContactView is a directory entry with the live overlay.
type ContactView struct {
	models.Contact
	Typing bool
	Active bool
}

// ValidationError lists per-field problems of a registration form.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, e.Fields[k])
	}
	return strings.Join(parts, "; ")
}

// Engine wires the synchronization components to one session and exposes the
// surface the UI works with.
type Engine struct {
	cfg      *config.Config
	api      *api.Client
	channel  *channel.Manager
	resolver *conversation.Resolver
	timeline *timeline.Store
	presence *presence.Handler
	arbiter  *notify.Arbiter
	uploads  *media.Coordinator
	updates  chan Update
	cancel   context.CancelFunc
	done     chan struct{}

	mu        sync.Mutex
	session   *models.Session
	contacts  []models.Contact
	unread    map[string]int
	active    models.Conversation
	selectSeq uint64
	inbox     *channel.Subscription
	closed    bool
}

// New builds an engine from cfg. alerter receives notification effects.
func New(cfg *config.Config, alerter notify.Alerter) *Engine {
	e := &Engine{
		cfg:     cfg,
		api:     api.New(cfg.BackendURL, cfg.RequestTimeout),
		updates: make(chan Update, updateBuffer),
		unread:  make(map[string]int),
		done:    make(chan struct{}),
	}
	e.channel = channel.New(cfg.WebsocketURL,
		channel.WithReconnectDelay(cfg.ReconnectDelay),
		channel.WithStateHandler(e.onConnection),
	)
	e.resolver = conversation.NewResolver(e.api)
	e.timeline = timeline.NewStore(timeline.NewFormatter(cfg.Location(), time.Now), time.Now)
	e.presence = presence.New(cfg.TypingTTL, e.onTyping)
	e.arbiter = notify.New(alerter, cfg.AppName,
		notify.WithDismissAfter(cfg.NotifyDismiss),
		notify.WithEnabled(!cfg.NotificationsOff),
	)
	e.uploads = media.NewCoordinator(e.api)

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	go e.dispatch(ctx)
	return e
}

// Updates streams change hints. Hints are dropped when the consumer lags.
func (e *Engine) Updates() <-chan Update {
	return e.updates
}

// Close ends the session and stops background work.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.mu.Unlock()

	e.Logout()
	e.cancel()
	<-e.done
	e.presence.Stop()
	e.arbiter.Stop()
}

// Login authenticates and starts the session.
func (e *Engine) Login(ctx context.Context, email, password string) error {
	s, err := e.api.Login(ctx, api.Credentials{Email: strings.TrimSpace(email), Password: password})
	if err != nil {
		return err
	}
	if !s.Valid() {
		return fmt.Errorf("%w: incomplete credentials", models.ErrUnauthorized)
	}
	e.start(s)
	return nil
}

// Register creates an account and starts the session. Invalid forms return a
// *ValidationError without contacting the backend.
func (e *Engine) Register(ctx context.Context, reg api.Registration) error {
	reg.Email = strings.TrimSpace(reg.Email)
	if problems := reg.Validate(); len(problems) > 0 {
		return &ValidationError{Fields: problems}
	}
	s, err := e.api.Register(ctx, reg)
	if err != nil {
		return err
	}
	if !s.Valid() {
		return e.Login(ctx, reg.Email, reg.Password)
	}
	e.start(s)
	return nil
}

// Resume starts a session from stored credentials.
func (e *Engine) Resume(s *models.Session) error {
	if !s.Valid() {
		return models.ErrMissingContext
	}
	e.start(s)
	return nil
}

func (e *Engine) start(s *models.Session) {
	e.Logout()

	e.mu.Lock()
	e.session = s
	e.unread = make(map[string]int)
	e.mu.Unlock()

	e.timeline.Reset(s.UserID)
	e.channel.Connect(s)
	if err := e.AttachInbox(); err != nil {
		log.Warningf("inbox not attached: %v", err)
	}
	log.Infof("session started for %s", s.UserID)
	e.post(Update{Kind: UpdateSession})
}

// Logout tears down the channel and forgets all session state.
func (e *Engine) Logout() {
	e.mu.Lock()
	had := e.session != nil
	e.session = nil
	e.contacts = nil
	e.unread = make(map[string]int)
	e.active = models.Conversation{}
	e.selectSeq++
	e.mu.Unlock()

	e.DetachInbox()
	e.channel.Disconnect()
	e.resolver.Clear()
	e.timeline.Reset("")
	e.presence.Clear()
	e.arbiter.SetVisible(true)
	if had {
		log.Info("session ended")
		e.post(Update{Kind: UpdateSession})
	}
}

// Session returns the current credentials or nil.
func (e *Engine) Session() *models.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session
}

// AttachInbox subscribes to the personal route. Idempotent.
func (e *Engine) AttachInbox() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inbox != nil {
		return nil
	}
	sub, err := e.channel.SubscribeInbox()
	if err != nil {
		return err
	}
	e.inbox = sub
	return nil
}

// DetachInbox stops inbound delivery while keeping the channel up.
func (e *Engine) DetachInbox() {
	e.mu.Lock()
	sub := e.inbox
	e.inbox = nil
	e.mu.Unlock()
	sub.Unsubscribe()
}

// Connected reports the live channel state.
func (e *Engine) Connected() bool {
	return e.channel.IsConnected()
}

// LoadContacts refreshes the directory, excluding self.
func (e *Engine) LoadContacts(ctx context.Context) error {
	s := e.Session()
	if !s.Valid() {
		return models.ErrMissingContext
	}
	all, err := e.api.Users(ctx, s.Token)
	if err != nil {
		e.notice("Could not load contacts", err)
		return err
	}
	contacts := make([]models.Contact, 0, len(all))
	for _, c := range all {
		if c.ID != s.UserID {
			contacts = append(contacts, c)
		}
	}
	e.mu.Lock()
	e.contacts = contacts
	e.mu.Unlock()
	e.post(Update{Kind: UpdateContacts})
	return nil
}

// Contacts returns the directory with unread and typing overlay.
func (e *Engine) Contacts() []ContactView {
	e.mu.Lock()
	views := make([]ContactView, 0, len(e.contacts))
	for _, c := range e.contacts {
		c.Unread = e.unread[c.ID]
		views = append(views, ContactView{Contact: c, Active: c.ID == e.active.PeerID})
	}
	e.mu.Unlock()
	for i := range views {
		views[i].Typing = e.presence.IsTyping(views[i].ID)
	}
	return views
}

// Active returns the selected conversation.
func (e *Engine) Active() (models.Conversation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active, e.active.ID != ""
}

// Timeline returns the messages of the selected conversation.
func (e *Engine) Timeline() []models.Message {
	conv, ok := e.Active()
	if !ok {
		return nil
	}
	return e.timeline.Messages(conv.ID)
}

// Select resolves the conversation with peerID, makes it active and loads its
// history. A later Select supersedes an earlier one still in flight.
func (e *Engine) Select(ctx context.Context, peerID string) error {
	e.mu.Lock()
	e.selectSeq++
	seq := e.selectSeq
	s := e.session
	e.mu.Unlock()

	conv, err := e.resolver.Resolve(ctx, s, peerID)
	if err != nil {
		e.notice("Could not open conversation", err)
		return err
	}

	e.mu.Lock()
	if seq != e.selectSeq {
		e.mu.Unlock()
		log.Debugf("selection of %s superseded", peerID)
		return nil
	}
	e.active = conv
	delete(e.unread, peerID)
	e.mu.Unlock()
	e.post(Update{Kind: UpdateContacts})

	gen := e.timeline.BeginLoad(conv.ID)
	e.post(Update{Kind: UpdateTimeline, ConversationID: conv.ID})

	wire, err := e.api.History(ctx, s.Token, conv.ID)
	if err != nil {
		e.timeline.AbortLoad(conv.ID, gen)
		err = fmt.Errorf("%w: %w", models.ErrHistoryFetchFailed, err)
		e.notice("Could not load messages", err)
		return err
	}
	now := time.Now()
	history := make([]models.Message, 0, len(wire))
	for _, w := range wire {
		history = append(history, w.ToMessage(s.UserID, models.StatusSent, now))
	}
	if !e.timeline.CompleteLoad(conv.ID, gen, history) {
		return nil
	}
	e.post(Update{Kind: UpdateTimeline, ConversationID: conv.ID})

	if e.isActive(conv.ID, seq) {
		e.markSeen(ctx, s, conv.ID)
	}
	return nil
}

// Deselect closes the active conversation. Pending selections are abandoned.
func (e *Engine) Deselect() {
	e.mu.Lock()
	e.active = models.Conversation{}
	e.selectSeq++
	e.mu.Unlock()
	e.post(Update{Kind: UpdateContacts})
}

func (e *Engine) isActive(convID string, seq uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active.ID == convID && e.selectSeq == seq
}

func (e *Engine) markSeen(ctx context.Context, s *models.Session, convID string) {
	if e.timeline.MarkSeen(convID) > 0 {
		e.post(Update{Kind: UpdateTimeline, ConversationID: convID})
	}
	if err := e.api.MarkSeen(ctx, s.Token, convID); err != nil {
		log.Warningf("mark seen %s: %v", convID, err)
	}
}

// Send appends an optimistic message to the active conversation and hands it
// to the channel and the backend without waiting for either.
func (e *Engine) Send(body string) (models.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return models.Message{}, ErrEmptyMessage
	}
	e.mu.Lock()
	s, conv := e.session, e.active
	e.mu.Unlock()
	if !s.Valid() || conv.ID == "" {
		return models.Message{}, models.ErrMissingContext
	}

	msg := e.timeline.AppendLocal(conv.ID, body)
	e.post(Update{Kind: UpdateTimeline, ConversationID: conv.ID})

	out := protocol.ChatMessage{
		Content:    body,
		SenderID:   s.UserID,
		ReceiverID: conv.PeerID,
		Type:       string(models.KindText),
		ChatID:     conv.ID,
	}
	go func() {
		if err := e.channel.Publish(protocol.DestSendMessage, out); err != nil {
			log.Debugf("live publish skipped: %v", err)
		}
	}()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.RequestTimeout)
		defer cancel()
		if err := e.api.PostMessage(ctx, s.Token, out); err != nil {
			e.notice("Message not saved", fmt.Errorf("%w: %w", models.ErrSendFailed, err))
		}
	}()
	return msg, nil
}

// InputChanged announces local typing to the active peer.
func (e *Engine) InputChanged() {
	conv, ok := e.Active()
	if !ok {
		return
	}
	presence.Announce(e.channel, conv)
}

// Upload sends a file to the active conversation. The resulting message
// arrives through the channel.
func (e *Engine) Upload(ctx context.Context, name string, r io.Reader) error {
	e.mu.Lock()
	s, conv := e.session, e.active
	e.mu.Unlock()
	if err := e.uploads.Upload(ctx, s, conv.ID, name, r); err != nil {
		e.notice("Upload failed", err)
		return err
	}
	return nil
}

// SetVisible forwards window visibility. Becoming visible marks the active
// conversation seen and clears its unread count.
func (e *Engine) SetVisible(visible bool) {
	e.arbiter.SetVisible(visible)
	if !visible {
		return
	}
	e.mu.Lock()
	s, conv := e.session, e.active
	_, hadUnread := e.unread[conv.PeerID]
	if conv.ID != "" {
		delete(e.unread, conv.PeerID)
	}
	e.mu.Unlock()
	if conv.ID != "" && hadUnread {
		e.post(Update{Kind: UpdateContacts, PeerID: conv.PeerID})
	}
	if s.Valid() && conv.ID != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), e.cfg.RequestTimeout)
			defer cancel()
			e.markSeen(ctx, s, conv.ID)
		}()
	}
}

func (e *Engine) Visible() bool { return e.arbiter.Visible() }

// ToggleNotifications flips the notification switch.
func (e *Engine) ToggleNotifications() bool { return e.arbiter.Toggle() }

func (e *Engine) NotificationsEnabled() bool { return e.arbiter.Enabled() }

// DismissNotification closes a notification on user interaction.
func (e *Engine) DismissNotification(id string) { e.arbiter.Dismiss(id) }

// Title is the window title including the unread badge.
func (e *Engine) Title() string { return e.arbiter.Title() }

func (e *Engine) Unread() int { return e.arbiter.Unread() }

func (e *Engine) dispatch(ctx context.Context) {
	defer close(e.done)
	events := e.channel.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			switch ev.Kind {
			case protocol.EventTyping:
				e.handleTyping(ev.Payload)
			case protocol.EventMessage:
				e.handleMessage(ev.Payload)
			}
		}
	}
}

func (e *Engine) handleTyping(w protocol.WireMessage) {
	peer := w.SenderID.String()
	e.mu.Lock()
	self := ""
	if e.session != nil {
		self = e.session.UserID
	}
	e.mu.Unlock()
	if peer == "" || peer == self {
		return
	}
	e.presence.Receive(peer)
}

func (e *Engine) handleMessage(w protocol.WireMessage) {
	e.mu.Lock()
	s, active := e.session, e.active
	e.mu.Unlock()
	if !s.Valid() {
		return
	}

	msg := w.ToMessage(s.UserID, models.StatusDelivered, time.Now())
	if msg.ConversationID == "" {
		peer := msg.SenderID
		if msg.Mine {
			peer = w.ReceiverID.String()
		}
		if active.ID == "" || peer != active.PeerID {
			log.Debugf("dropping push without conversation from %s", msg.SenderID)
			return
		}
		msg.ConversationID = active.ID
	}

	e.timeline.AppendPushed(msg)
	e.post(Update{Kind: UpdateTimeline, ConversationID: msg.ConversationID})
	if msg.Mine {
		return
	}

	isActive := msg.ConversationID == active.ID
	if isActive && e.arbiter.Visible() {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), e.cfg.RequestTimeout)
			defer cancel()
			e.markSeen(ctx, s, msg.ConversationID)
		}()
	} else {
		e.mu.Lock()
		e.unread[msg.SenderID]++
		e.mu.Unlock()
		e.post(Update{Kind: UpdateContacts, PeerID: msg.SenderID})
	}

	e.arbiter.Notify(e.contact(msg.SenderID), excerpt(msg))
}

func (e *Engine) contact(id string) models.Contact {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.contacts {
		if c.ID == id {
			return c
		}
	}
	return models.Contact{ID: id, Name: id}
}

func (e *Engine) onTyping(peerID string, typing bool) {
	e.post(Update{Kind: UpdatePresence, PeerID: peerID})
}

func (e *Engine) onConnection(connected bool) {
	e.post(Update{Kind: UpdateConnection, Connected: connected})
}

func (e *Engine) notice(text string, err error) {
	log.Warningf("%s: %v", text, err)
	e.post(Update{Kind: UpdateNotice, Notice: text, Err: err})
}

func (e *Engine) post(u Update) {
	select {
	case e.updates <- u:
	default:
		log.Debugf("update %d dropped", u.Kind)
	}
}

func excerpt(m models.Message) string {
	text := m.Body
	switch m.Kind {
	case models.KindImage:
		text = "Photo: " + text
	case models.KindFile:
		text = "File: " + text
	}
	if utf8.RuneCountInString(text) <= excerptLength {
		return text
	}
	runes := []rune(text)
	return string(runes[:excerptLength-1]) + "…"
}
