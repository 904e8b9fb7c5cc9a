package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"chatsync/protocol"
)

// handleWebsocket runs the STOMP session of one connection.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debugf("upgrade from %s: %v", r.RemoteAddr, err)
		return
	}
	defer conn.Close()

	session := &Session{Conn: conn, subs: make(map[string]string)}
	remoteAddr := r.RemoteAddr
	upgradeToken := bearer(r.Header.Get("Authorization"))

	defer func() {
		if session.UserID == "" {
			log.Debugf("client disconnected from %s", remoteAddr)
			return
		}
		s.removeSession(session)
		if err := s.db.UpdateLastSeen(session.UserID, nowUTC()); err != nil {
			log.Warningf("update last seen for %s: %v", session.UserID, err)
		}
		log.Infof("client %s disconnected from %s", session.UserID, remoteAddr)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		f, err := protocol.ParseFrame(data)
		if errors.Is(err, protocol.ErrHeartbeat) {
			continue
		}
		if err != nil {
			s.sendFrame(session, protocol.NewFrame(protocol.CmdError, nil, "message", "malformed frame"))
			continue
		}
		if !s.handleFrame(session, f, upgradeToken) {
			return
		}
	}
}

// handleFrame processes one client frame and reports whether the connection
// stays open.
func (s *Server) handleFrame(session *Session, f *protocol.Frame, upgradeToken string) bool {
	if f.Command != protocol.CmdConnect && f.Command != protocol.CmdStomp && session.UserID == "" {
		s.sendFrame(session, protocol.NewFrame(protocol.CmdError, nil, "message", "not connected"))
		return false
	}

	switch f.Command {
	case protocol.CmdConnect, protocol.CmdStomp:
		return s.handleConnect(session, f, upgradeToken)
	case protocol.CmdSubscribe:
		s.handleSubscribe(session, f)
	case protocol.CmdUnsubscribe:
		session.mu.Lock()
		delete(session.subs, f.Header("id"))
		session.mu.Unlock()
	case protocol.CmdSend:
		s.handleSend(session, f)
	case protocol.CmdDisconnect:
		if receipt := f.Header("receipt"); receipt != "" {
			s.sendFrame(session, protocol.NewFrame(protocol.CmdReceipt, nil, "receipt-id", receipt))
		}
		return false
	default:
		s.sendFrame(session, protocol.NewFrame(protocol.CmdError, nil, "message", "unsupported command "+f.Command))
	}
	return true
}

func (s *Server) handleConnect(session *Session, f *protocol.Frame, upgradeToken string) bool {
	if session.UserID != "" {
		s.sendFrame(session, protocol.NewFrame(protocol.CmdConnected, nil, "version", "1.2"))
		return true
	}
	token := bearer(f.Header("Authorization"))
	if token == "" {
		token = upgradeToken
	}
	userID, err := s.verifyToken(token)
	if err != nil {
		s.sendFrame(session, protocol.NewFrame(protocol.CmdError, nil, "message", "Unauthorized"))
		return false
	}

	session.UserID = userID
	s.addSession(session)
	if err := s.db.UpdateLastSeen(userID, nowUTC()); err != nil {
		log.Warningf("update last seen for %s: %v", userID, err)
	}
	log.Infof("client %s connected", userID)
	return s.sendFrame(session, protocol.NewFrame(protocol.CmdConnected, nil,
		"version", "1.2",
		"heart-beat", "0,0",
		"user-name", userID,
	)) == nil
}

// handleSubscribe accepts only the caller's own inbox.
func (s *Server) handleSubscribe(session *Session, f *protocol.Frame) {
	id, dest := f.Header("id"), f.Header("destination")
	if id == "" || dest != protocol.InboxRoute(session.UserID) {
		s.sendFrame(session, protocol.NewFrame(protocol.CmdError, nil, "message", "forbidden destination "+dest))
		return
	}
	session.mu.Lock()
	session.subs[id] = dest
	session.mu.Unlock()
}

// handleSend relays chat and typing events to the receiver's inbox. Relayed
// chat messages are not stored; clients persist them over REST.
func (s *Server) handleSend(session *Session, f *protocol.Frame) {
	var in protocol.WireMessage
	if err := json.Unmarshal(f.Body, &in); err != nil {
		log.Debugf("dropping SEND from %s: %v", session.UserID, err)
		return
	}
	receiver := in.ReceiverID.String()
	if receiver == "" || receiver == session.UserID {
		return
	}

	switch f.Header("destination") {
	case protocol.DestTyping:
		s.deliver(receiver, protocol.NewTypingNotice(session.UserID, receiver, in.ChatID.String()))
	case protocol.DestSendMessage:
		if strings.TrimSpace(in.Content) == "" {
			return
		}
		s.deliver(receiver, protocol.WireMessage{
			ChatID:     in.ChatID,
			SenderID:   protocol.FlexString(session.UserID),
			ReceiverID: in.ReceiverID,
			Content:    in.Content,
			Type:       strings.ToUpper(in.Type),
			State:      "DELIVERED",
			CreatedAt:  nowUTC().Format(wireTimeLayout),
		})
	default:
		log.Debugf("unknown destination %q from %s", f.Header("destination"), session.UserID)
	}
}
