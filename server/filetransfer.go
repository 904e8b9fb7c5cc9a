package server

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"chatsync/db"
)

// handleUpload stores one multipart file (fields chat-id and file) and pushes
// the resulting message to both participants.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUpload)
	if err := r.ParseMultipartForm(s.config.MaxUpload); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "Upload too large or malformed")
		return
	}
	defer r.MultipartForm.RemoveAll()

	caller := callerID(r)
	chatID := r.FormValue("chat-id")
	peer, ok := s.participant(w, chatID, caller)
	if !ok {
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "File required")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	stored, err := s.storeFile(name, file)
	if err != nil {
		log.Errorf("store upload %s: %v", name, err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	saved, err := s.db.SaveMessage(db.Message{
		ChatID:     chatID,
		SenderID:   caller,
		ReceiverID: peer,
		Content:    name,
		Type:       mediaType(name, header.Header.Get("Content-Type")),
		MediaURL:   "/media/" + stored,
		State:      db.StateDelivered,
	})
	if err != nil {
		log.Errorf("save upload message: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal error")
		return
	}

	log.Infof("stored %s (%d bytes) for chat %s", stored, header.Size, chatID)
	wire := toWire(saved)
	s.deliver(caller, wire)
	s.deliver(peer, wire)
	writeJSON(w, http.StatusCreated, wire)
}

// storeFile writes r under a fresh name in the media directory.
func (s *Server) storeFile(name string, r io.Reader) (string, error) {
	if err := os.MkdirAll(s.config.MediaDir, 0o755); err != nil {
		return "", err
	}
	stored := uuid.NewString() + strings.ToLower(filepath.Ext(name))
	f, err := os.Create(filepath.Join(s.config.MediaDir, stored))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write %s: %w", stored, err)
	}
	return stored, f.Close()
}

func mediaType(name, contentType string) string {
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = mime.TypeByExtension(filepath.Ext(name))
	}
	if strings.HasPrefix(contentType, "image/") {
		return "IMAGE"
	}
	return "FILE"
}
