package conversation

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/op/go-logging"

	"chatsync/models"
)

var log = logging.MustGetLogger("conversation")

// Backend creates or fetches the conversation of a participant pair.
type Backend interface {
	ResolveChat(ctx context.Context, token, senderID, receiverID string) (string, error)
}

// Resolver maps (self, peer) to a conversation id. It remembers only the
// current selection; every call goes to the backend, which is idempotent per pair.
type Resolver struct {
	backend Backend

	mu      sync.RWMutex
	current models.Conversation
}

func NewResolver(backend Backend) *Resolver {
	return &Resolver{backend: backend}
}

// Resolve returns the conversation id for the pair and makes it current.
func (r *Resolver) Resolve(ctx context.Context, session *models.Session, peerID string) (models.Conversation, error) {
	selfID := ""
	token := ""
	if session != nil {
		selfID, token = session.UserID, session.Token
	}
	selfID, peerID = strings.TrimSpace(selfID), strings.TrimSpace(peerID)
	if selfID == "" || peerID == "" {
		return models.Conversation{}, models.ErrInvalidParticipants
	}

	id, err := r.backend.ResolveChat(ctx, token, selfID, peerID)
	if err != nil {
		log.Warningf("resolve %s/%s: %v", selfID, peerID, err)
		return models.Conversation{}, fmt.Errorf("%w: %w", models.ErrConversationResolutionFailed, err)
	}

	conv := models.Conversation{ID: id, SelfID: selfID, PeerID: peerID}
	r.mu.Lock()
	r.current = conv
	r.mu.Unlock()
	return conv, nil
}

// Current returns the most recently resolved conversation, if any.
func (r *Resolver) Current() (models.Conversation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current, r.current.ID != ""
}

// Clear forgets the current selection.
func (r *Resolver) Clear() {
	r.mu.Lock()
	r.current = models.Conversation{}
	r.mu.Unlock()
}
