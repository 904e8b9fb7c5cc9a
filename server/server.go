package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/op/go-logging"

	"chatsync/config"
	"chatsync/db"
	"chatsync/protocol"
)

var log = logging.MustGetLogger("server")

// Server is the reference chat backend: REST endpoints plus a STOMP broker
// over WebSocket that routes messages to personal inboxes.
type Server struct {
	db       *db.DB
	config   *config.ServerConfig
	upgrader websocket.Upgrader
	http     *http.Server

	mu       sync.RWMutex
	sessions map[string]map[*Session]struct{} // user id -> live sessions
}

// Session is one authenticated WebSocket connection.
type Session struct {
	UserID string
	Conn   *websocket.Conn

	mu   sync.Mutex
	subs map[string]string // subscription id -> destination
}

func New(database *db.DB, cfg *config.ServerConfig) *Server {
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.MaxUpload == 0 {
		cfg.MaxUpload = 10 << 20
	}
	return &Server{
		db:     database,
		config: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin:  func(*http.Request) bool { return true },
			Subprotocols: []string{"v12.stomp"},
		},
		sessions: make(map[string]map[*Session]struct{}),
	}
}

// Handler returns the HTTP routes of the backend.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("POST /api/auth/register", s.handleRegister)
	mux.HandleFunc("GET /api/v1/users", s.authenticated(s.handleUsers))
	mux.HandleFunc("POST /api/v1/chats", s.authenticated(s.handleChat))
	mux.HandleFunc("GET /api/v1/messages/chat/{id}", s.authenticated(s.handleHistory))
	mux.HandleFunc("POST /api/v1/messages", s.authenticated(s.handlePostMessage))
	mux.HandleFunc("PATCH /api/v1/messages", s.authenticated(s.handleMarkSeen))
	mux.HandleFunc("POST /api/v1/messages/upload-media", s.authenticated(s.handleUpload))
	mux.Handle("GET /media/", http.StripPrefix("/media/", http.FileServer(http.Dir(s.config.MediaDir))))
	mux.HandleFunc("GET /ws", s.handleWebsocket)
	return mux
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.http = &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.http.Shutdown(shutdownCtx)
	})
	defer stop()

	log.Infof("chat backend listening on %s", s.config.Addr)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) addSession(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.sessions[session.UserID]
	if !ok {
		set = make(map[*Session]struct{})
		s.sessions[session.UserID] = set
	}
	set[session] = struct{}{}
}

func (s *Server) removeSession(session *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := s.sessions[session.UserID]
	delete(set, session)
	if len(set) == 0 {
		delete(s.sessions, session.UserID)
	}
}

func (s *Server) isOnline(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions[userID]) > 0
}

func (s *Server) userSessions(userID string) []*Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Session, 0, len(s.sessions[userID]))
	for session := range s.sessions[userID] {
		out = append(out, session)
	}
	return out
}

// deliver pushes payload to every inbox subscription of userID.
func (s *Server) deliver(userID string, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("encode push for %s: %v", userID, err)
		return
	}
	inbox := protocol.InboxRoute(userID)
	for _, session := range s.userSessions(userID) {
		for _, id := range session.subscriptions(inbox) {
			f := protocol.NewFrame(protocol.CmdMessage, body,
				"subscription", id,
				"destination", inbox,
				"message-id", "m-"+id,
				"content-type", "application/json",
			)
			if err := s.sendFrame(session, f); err != nil {
				log.Debugf("push to %s failed: %v", userID, err)
			}
		}
	}
}

func (s *Server) sendFrame(session *Session, f *protocol.Frame) error {
	session.mu.Lock()
	defer session.mu.Unlock()
	session.Conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	return session.Conn.WriteMessage(websocket.TextMessage, protocol.FormatFrame(f))
}

func (session *Session) subscriptions(dest string) []string {
	session.mu.Lock()
	defer session.mu.Unlock()
	var ids []string
	for id, d := range session.subs {
		if d == dest {
			ids = append(ids, id)
		}
	}
	return ids
}

// GetStats summarizes live connections.
func (s *Server) GetStats() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]string, 0, len(s.sessions))
	conns := 0
	for id, set := range s.sessions {
		users = append(users, id)
		conns += len(set)
	}
	return "connections=" + strconv.Itoa(conns) + ",users=" + strings.Join(users, ";")
}
