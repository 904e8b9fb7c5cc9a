package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"chatsync/db"
	"chatsync/protocol"
)

const wireTimeLayout = "2006-01-02T15:04:05.000000"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debugf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, protocol.ErrorBody{Error: detail})
}

// writeMessage is used by the auth endpoints, whose error shape differs.
func writeMessage(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, protocol.ErrorBody{Message: detail})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Password == "" {
		writeMessage(w, http.StatusBadRequest, "Invalid credentials")
		return
	}

	user, err := s.db.AuthenticateUser(req.Email, req.Password)
	if errors.Is(err, db.ErrNoRows) {
		writeMessage(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		log.Errorf("login: %v", err)
		writeMessage(w, http.StatusInternalServerError, "Internal error")
		return
	}
	s.respondWithToken(w, http.StatusOK, user.ID)
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid data")
		return
	}
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if req.FirstName == "" || req.LastName == "" || len(req.Password) < 6 {
		writeMessage(w, http.StatusBadRequest, "Invalid data")
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		writeMessage(w, http.StatusBadRequest, "Email is invalid")
		return
	}

	user, err := s.db.CreateUser(req.FirstName, req.LastName, req.Email, req.Password)
	if errors.Is(err, db.ErrEmailTaken) {
		writeMessage(w, http.StatusConflict, "User already exists")
		return
	}
	if err != nil {
		log.Errorf("register: %v", err)
		writeMessage(w, http.StatusInternalServerError, "Internal error")
		return
	}
	log.Infof("registered %s", user.ID)
	s.respondWithToken(w, http.StatusCreated, user.ID)
}

func (s *Server) respondWithToken(w http.ResponseWriter, status int, userID string) {
	token, err := s.issueToken(userID)
	if err != nil {
		log.Errorf("issue token: %v", err)
		writeMessage(w, http.StatusInternalServerError, "Internal error")
		return
	}
	writeJSON(w, status, protocol.AuthResponse{Token: token, UserID: protocol.FlexString(userID)})
}

func (s *Server) handleUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.db.ListUsers()
	if err != nil {
		log.Errorf("list users: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	out := make([]protocol.WireUser, 0, len(users))
	for _, u := range users {
		online := s.isOnline(u.ID)
		wu := protocol.WireUser{
			ID:        protocol.FlexString(u.ID),
			FirstName: u.FirstName,
			LastName:  u.LastName,
			Email:     u.Email,
			Avatar:    u.Avatar,
			IsOnline:  &online,
		}
		if !u.LastSeen.IsZero() {
			wu.LastSeen = u.LastSeen.UTC().Format(wireTimeLayout)
		}
		out = append(out, wu)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	sender := r.URL.Query().Get("sender_id")
	receiver := r.URL.Query().Get("receiver_id")
	caller := callerID(r)
	if sender == "" || receiver == "" || sender == receiver {
		writeError(w, http.StatusBadRequest, "sender_id and receiver_id must name two users")
		return
	}
	if caller != sender && caller != receiver {
		writeError(w, http.StatusForbidden, "Not a participant")
		return
	}
	for _, id := range []string{sender, receiver} {
		if _, err := s.db.GetUser(id); err != nil {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
	}

	chatID, err := s.db.GetOrCreateChat(sender, receiver)
	if err != nil {
		log.Errorf("resolve chat: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	writeJSON(w, http.StatusOK, protocol.ChatResponse{Response: protocol.FlexString(chatID)})
}

// participant checks that caller belongs to chatID and returns the other side.
func (s *Server) participant(w http.ResponseWriter, chatID, caller string) (string, bool) {
	a, b, err := s.db.ChatParticipants(chatID)
	if errors.Is(err, db.ErrNoRows) {
		writeError(w, http.StatusNotFound, "Chat not found")
		return "", false
	}
	if err != nil {
		log.Errorf("chat %s: %v", chatID, err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return "", false
	}
	switch caller {
	case a:
		return b, true
	case b:
		return a, true
	}
	writeError(w, http.StatusForbidden, "Not a participant")
	return "", false
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("id")
	if _, ok := s.participant(w, chatID, callerID(r)); !ok {
		return
	}
	messages, err := s.db.GetMessages(chatID)
	if err != nil {
		log.Errorf("history %s: %v", chatID, err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	out := make([]protocol.WireMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, toWire(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	var req protocol.ChatMessage
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid message")
		return
	}
	caller := callerID(r)
	if req.SenderID != "" && req.SenderID != caller {
		writeError(w, http.StatusForbidden, "Sender mismatch")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "Message text required")
		return
	}
	peer, ok := s.participant(w, req.ChatID, caller)
	if !ok {
		return
	}

	saved, err := s.db.SaveMessage(db.Message{
		ChatID:     req.ChatID,
		SenderID:   caller,
		ReceiverID: peer,
		Content:    req.Content,
		Type:       strings.ToUpper(req.Type),
	})
	if err != nil {
		log.Errorf("save message: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	writeJSON(w, http.StatusCreated, toWire(saved))
}

func (s *Server) handleMarkSeen(w http.ResponseWriter, r *http.Request) {
	chatID := r.URL.Query().Get("chat-id")
	caller := callerID(r)
	if _, ok := s.participant(w, chatID, caller); !ok {
		return
	}
	n, err := s.db.MarkSeen(chatID, caller)
	if err != nil {
		log.Errorf("mark seen %s: %v", chatID, err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"updated": strconv.FormatInt(n, 10)})
}

func toWire(m db.Message) protocol.WireMessage {
	return protocol.WireMessage{
		ID:         protocol.FlexString(strconv.FormatInt(m.ID, 10)),
		ChatID:     protocol.FlexString(m.ChatID),
		SenderID:   protocol.FlexString(m.SenderID),
		ReceiverID: protocol.FlexString(m.ReceiverID),
		Content:    m.Content,
		Type:       m.Type,
		MediaURL:   m.MediaURL,
		State:      m.State,
		CreatedAt:  m.CreatedAt.UTC().Format(wireTimeLayout),
	}
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
