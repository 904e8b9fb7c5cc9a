package timeline

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/op/go-logging"

	"chatsync/models"
)

var log = logging.MustGetLogger("timeline")

// ReconcileWindow bounds how far apart an optimistic entry and its confirmed
// echo may be for the two to be treated as the same message.
const ReconcileWindow = 2 * time.Minute

const (
	localPrefix = "local-"
	pushPrefix  = "push-"
)

type timeline struct {
	messages []models.Message
	gen      uint64
	loading  bool
	pending  []models.Message
}

// Store is the per-conversation message log. It merges optimistic sends,
// history loads and pushed messages into one ordered sequence.
type Store struct {
	format Formatter
	now    func() time.Time

	mu     sync.Mutex
	selfID string
	convs  map[string]*timeline
}

func NewStore(format Formatter, now func() time.Time) *Store {
	if now == nil {
		now = time.Now
	}
	return &Store{
		format: format,
		now:    now,
		convs:  make(map[string]*timeline),
	}
}

// Reset drops all timelines and binds the store to a new self id.
func (s *Store) Reset(selfID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selfID = selfID
	s.convs = make(map[string]*timeline)
}

// BeginLoad starts a history load for a conversation. Pushes that arrive until
// the load completes are buffered. The returned generation identifies the load.
func (s *Store) BeginLoad(convID string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	tl := s.get(convID)
	tl.gen++
	tl.loading = true
	return tl.gen
}

// CompleteLoad replaces the conversation with history and replays buffered
// pushes. It reports false and changes nothing when gen is stale.
func (s *Store) CompleteLoad(convID string, gen uint64, history []models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	tl := s.get(convID)
	if tl.gen != gen || !tl.loading {
		log.Debugf("discarding stale history for %s (gen %d, current %d)", convID, gen, tl.gen)
		return false
	}

	// Unconfirmed optimistic entries survive the replacement; history may confirm them.
	var kept []models.Message
	for _, m := range tl.messages {
		if m.Local {
			kept = append(kept, m)
		}
	}
	tl.messages = kept

	ordered := append([]models.Message(nil), history...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].CreatedAt.Before(ordered[j].CreatedAt) })
	for _, m := range ordered {
		m.ConversationID = convID
		s.merge(tl, m)
	}
	s.flush(tl)
	return true
}

// AbortLoad ends a failed load, keeping the current state and replaying
// buffered pushes into it.
func (s *Store) AbortLoad(convID string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tl := s.get(convID)
	if tl.gen != gen || !tl.loading {
		return
	}
	s.flush(tl)
}

// Loading reports whether a history load is in flight for the conversation.
func (s *Store) Loading(convID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	tl, ok := s.convs[convID]
	return ok && tl.loading
}

// AppendLocal adds an optimistic text message authored by self.
func (s *Store) AppendLocal(convID, body string) models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg := models.Message{
		ID:             localPrefix + uuid.NewString(),
		ConversationID: convID,
		SenderID:       s.selfID,
		Body:           body,
		Kind:           models.KindText,
		Status:         models.StatusSent,
		CreatedAt:      s.now(),
		Local:          true,
		Mine:           true,
	}
	tl := s.get(convID)
	insert(tl, msg)
	msg.Label = s.format.Label(msg.CreatedAt)
	return msg
}

// AppendPushed adds a message received on the live channel. It reports
// whether the message was applied now (false while a load is buffering it).
func (s *Store) AppendPushed(msg models.Message) bool {
	if msg.ConversationID == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.ID == "" {
		msg.ID = pushPrefix + uuid.NewString()
	}
	tl := s.get(msg.ConversationID)
	if tl.loading {
		tl.pending = append(tl.pending, msg)
		return false
	}
	s.merge(tl, msg)
	return true
}

// Advance moves one message forward to status. It never regresses.
func (s *Store) Advance(convID, msgID string, status models.Status) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	tl, ok := s.convs[convID]
	if !ok {
		return false
	}
	for i := range tl.messages {
		if tl.messages[i].ID == msgID {
			before := tl.messages[i].Status
			tl.messages[i].Status = before.Advance(status)
			return tl.messages[i].Status != before
		}
	}
	return false
}

// MarkSeen advances every message received from the peer to seen and returns
// how many changed.
func (s *Store) MarkSeen(convID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	tl, ok := s.convs[convID]
	if !ok {
		return 0
	}
	changed := 0
	for i := range tl.messages {
		m := &tl.messages[i]
		if !m.Mine && m.Status != models.StatusSeen {
			m.Status = models.StatusSeen
			changed++
		}
	}
	return changed
}

// Messages returns a labelled copy of the conversation timeline.
func (s *Store) Messages(convID string) []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	tl, ok := s.convs[convID]
	if !ok {
		return nil
	}
	out := make([]models.Message, len(tl.messages))
	copy(out, tl.messages)
	for i := range out {
		out[i].Label = s.format.Label(out[i].CreatedAt)
	}
	return out
}

func (s *Store) get(convID string) *timeline {
	tl, ok := s.convs[convID]
	if !ok {
		tl = &timeline{}
		s.convs[convID] = tl
	}
	return tl
}

func (s *Store) flush(tl *timeline) {
	pending := tl.pending
	tl.pending = nil
	tl.loading = false
	for _, m := range pending {
		s.merge(tl, m)
	}
}

// merge applies a confirmed message: a known durable id only advances status,
// an echo of an optimistic entry confirms it in place, anything else is inserted.
func (s *Store) merge(tl *timeline, msg models.Message) {
	msg.Mine = s.selfID != "" && msg.SenderID == s.selfID
	msg.Local = false

	for i := range tl.messages {
		if tl.messages[i].ID == msg.ID {
			tl.messages[i].Status = tl.messages[i].Status.Advance(msg.Status)
			return
		}
	}

	if msg.Mine {
		if i := findEcho(tl.messages, msg); i >= 0 {
			local := &tl.messages[i]
			local.ID = msg.ID
			local.Local = false
			local.Status = local.Status.Advance(msg.Status)
			if msg.MediaURL != "" {
				local.MediaURL = msg.MediaURL
			}
			return
		}
	}
	insert(tl, msg)
}

// findEcho returns the oldest optimistic entry with the same content created
// within ReconcileWindow of msg, or -1.
func findEcho(msgs []models.Message, msg models.Message) int {
	for i, m := range msgs {
		if !m.Local || m.Body != msg.Body || m.Kind != msg.Kind {
			continue
		}
		d := msg.CreatedAt.Sub(m.CreatedAt)
		if d < 0 {
			d = -d
		}
		if d <= ReconcileWindow {
			return i
		}
	}
	return -1
}

// insert keeps messages ordered by CreatedAt; equal timestamps keep arrival order.
func insert(tl *timeline, msg models.Message) {
	idx := sort.Search(len(tl.messages), func(i int) bool {
		return tl.messages[i].CreatedAt.After(msg.CreatedAt)
	})
	tl.messages = append(tl.messages, models.Message{})
	copy(tl.messages[idx+1:], tl.messages[idx:])
	tl.messages[idx] = msg
}
