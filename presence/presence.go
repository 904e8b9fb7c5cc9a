package presence

import (
	"sort"
	"sync"
	"time"

	"github.com/op/go-logging"

	"chatsync/models"
	"chatsync/protocol"
)

var log = logging.MustGetLogger("presence")

const DefaultTTL = 2 * time.Second

// Publisher is the slice of the live channel the handler needs to announce
// local typing.
type Publisher interface {
	IsConnected() bool
	Publish(destination string, payload any) error
}

type slot struct {
	signal models.TypingSignal
	timer  *time.Timer
	seq    uint64
}

// Handler tracks which peers are typing. Each peer has a single expiry slot:
// a new signal re-arms it instead of stacking timers.
type Handler struct {
	ttl      time.Duration
	onChange func(peerID string, typing bool)
	now      func() time.Time

	mu      sync.Mutex
	slots   map[string]*slot
	seq     uint64
	stopped bool
}

// New returns a handler whose signals expire after ttl. onChange, if set, is
// called outside the handler lock whenever a peer starts or stops typing.
func New(ttl time.Duration, onChange func(peerID string, typing bool)) *Handler {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Handler{
		ttl:      ttl,
		onChange: onChange,
		now:      time.Now,
		slots:    make(map[string]*slot),
	}
}

// Receive records a typing signal from peerID and (re)arms its expiry.
func (h *Handler) Receive(peerID string) {
	if peerID == "" {
		return
	}
	h.mu.Lock()
	if h.stopped {
		h.mu.Unlock()
		return
	}
	h.seq++
	seq := h.seq
	s, existed := h.slots[peerID]
	if existed {
		s.timer.Stop()
	} else {
		s = &slot{}
		h.slots[peerID] = s
	}
	s.seq = seq
	s.signal = models.TypingSignal{PeerID: peerID, ReceivedAt: h.now()}
	s.timer = time.AfterFunc(h.ttl, func() { h.expire(peerID, seq) })
	h.mu.Unlock()

	if !existed {
		h.notify(peerID, true)
	}
}

func (h *Handler) expire(peerID string, seq uint64) {
	h.mu.Lock()
	s, ok := h.slots[peerID]
	if !ok || s.seq != seq {
		// re-armed or cleared since this timer was scheduled
		h.mu.Unlock()
		return
	}
	delete(h.slots, peerID)
	h.mu.Unlock()
	h.notify(peerID, false)
}

func (h *Handler) notify(peerID string, typing bool) {
	if h.onChange != nil {
		h.onChange(peerID, typing)
	}
}

// IsTyping reports whether peerID has an unexpired signal.
func (h *Handler) IsTyping(peerID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.slots[peerID]
	return ok
}

// Active returns the peers currently typing, sorted.
func (h *Handler) Active() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	peers := make([]string, 0, len(h.slots))
	for id := range h.slots {
		peers = append(peers, id)
	}
	sort.Strings(peers)
	return peers
}

// Clear drops every signal without firing callbacks.
func (h *Handler) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.slots {
		s.timer.Stop()
		delete(h.slots, id)
	}
}

// Stop clears all signals and ignores further ones.
func (h *Handler) Stop() {
	h.Clear()
	h.mu.Lock()
	h.stopped = true
	h.mu.Unlock()
}

// Announce tells the peer that self is typing in conv. It is best effort:
// nothing is sent while the channel is down and failures are not retried.
func Announce(p Publisher, conv models.Conversation) bool {
	if conv.ID == "" || conv.SelfID == "" || conv.PeerID == "" || !p.IsConnected() {
		return false
	}
	notice := protocol.NewTypingNotice(conv.SelfID, conv.PeerID, conv.ID)
	if err := p.Publish(protocol.DestTyping, notice); err != nil {
		log.Debugf("typing announce to %s dropped: %v", conv.PeerID, err)
		return false
	}
	return true
}
