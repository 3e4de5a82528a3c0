package conversation

import (
	"container/list"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// record is the store-private session state. The element field links into
// the LRU list, whose front holds the most recently accessed session.
type record struct {
	sessionID    string
	messages     []Message
	createdAt    time.Time
	lastAccessed time.Time
	elem         *list.Element
}

// Store is the bounded session index. One mutex guards both the map and the
// LRU list; it is never held across I/O other than the archive append, which
// writes to a local file.
//
// Concurrent mutations to the same session id are a caller-responsibility
// concern: the store serializes map access but does not order interleaved
// Append calls on one session beyond that.
type Store struct {
	mu      sync.Mutex
	cfg     Config
	records map[string]*record
	lru     *list.List
	archive *Archive

	// now is replaceable in tests to drive TTL expiry deterministically.
	now func() time.Time
}

// NewStore creates a bounded store. The archive may be nil.
func NewStore(cfg Config, archive *Archive) *Store {
	if cfg.MaxConversations <= 0 {
		cfg.MaxConversations = 50
	}
	if cfg.MaxMessagesPerConversation <= 0 {
		cfg.MaxMessagesPerConversation = 20
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}
	if cfg.SummaryWindow <= 0 {
		cfg.SummaryWindow = 10
	}
	return &Store{
		cfg:     cfg,
		records: make(map[string]*record),
		lru:     list.New(),
		archive: archive,
		now:     time.Now,
	}
}

// TouchOrCreate runs the TTL sweep, then returns the existing record's
// message count after refreshing its access time, or creates the session.
// The sweep runs before any eviction so an expired record is reclaimed in
// preference to evicting a live one.
func (s *Store) TouchOrCreate(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)

	if rec, ok := s.records[sessionID]; ok {
		s.touchLocked(rec, now)
		return
	}
	if len(s.records) >= s.cfg.MaxConversations {
		s.evictOldestLocked()
	}
	rec := &record{
		sessionID:    sessionID,
		createdAt:    now,
		lastAccessed: now,
	}
	rec.elem = s.lru.PushFront(rec)
	s.records[sessionID] = rec
}

// Append records one user/assistant exchange, creating the session if
// needed, then trims from the front until the per-session cap holds.
func (s *Store) Append(sessionID string, userMsg, assistantMsg Message) {
	s.TouchOrCreate(sessionID)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[sessionID]
	if !ok {
		// TouchOrCreate always inserts; this is unreachable unless another
		// goroutine evicted the session in between, which the caller contract
		// excludes. Recreate defensively anyway.
		now := s.now()
		rec = &record{sessionID: sessionID, createdAt: now, lastAccessed: now}
		rec.elem = s.lru.PushFront(rec)
		s.records[sessionID] = rec
	}

	now := s.now()
	s.touchLocked(rec, now)
	rec.messages = append(rec.messages, userMsg, assistantMsg)
	s.trimLocked(rec)
}

// History returns up to the last n messages and refreshes the session's
// access time. A missing session yields nil.
func (s *Store) History(sessionID string, n int) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[sessionID]
	if !ok {
		return nil
	}
	s.touchLocked(rec, s.now())
	return lastN(rec.messages, n)
}

// Summarize returns the most recent SummaryWindow messages for context
// transfer. It does not mutate the record or its access time.
func (s *Store) Summarize(sessionID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[sessionID]
	if !ok {
		return nil
	}
	return lastN(rec.messages, s.cfg.SummaryWindow)
}

// Len returns the current number of tracked sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Has reports whether a session is currently tracked, without touching it.
func (s *Store) Has(sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[sessionID]
	return ok
}

func (s *Store) touchLocked(rec *record, now time.Time) {
	rec.lastAccessed = now
	s.lru.MoveToFront(rec.elem)
}

// sweepLocked removes every record whose idle time exceeds the TTL.
func (s *Store) sweepLocked(now time.Time) {
	for id, rec := range s.records {
		if now.Sub(rec.lastAccessed) > s.cfg.TTL {
			s.removeLocked(rec, "expired")
			log.Debugf("conversation %s expired after %s idle", id, now.Sub(rec.lastAccessed))
		}
	}
}

// evictOldestLocked drops the least recently accessed session.
func (s *Store) evictOldestLocked() {
	back := s.lru.Back()
	if back == nil {
		return
	}
	rec := back.Value.(*record)
	s.removeLocked(rec, "evicted")
	log.Debugf("conversation %s evicted at capacity", rec.sessionID)
}

func (s *Store) removeLocked(rec *record, reason string) {
	s.lru.Remove(rec.elem)
	delete(s.records, rec.sessionID)
	if s.archive != nil {
		if err := s.archive.Write(ArchivedConversation{
			SessionID:    rec.sessionID,
			Messages:     rec.messages,
			CreatedAt:    rec.createdAt,
			LastAccessed: rec.lastAccessed,
			Reason:       reason,
			ArchivedAt:   s.now(),
		}); err != nil {
			log.Warnf("conversation archive write failed for %s: %v", rec.sessionID, err)
		}
	}
}

// trimLocked drops messages from the front, oldest unpinned first, until the
// per-session cap holds. If every remaining message is pinned the oldest
// pinned one goes, so the cap always wins.
func (s *Store) trimLocked(rec *record) {
	for len(rec.messages) > s.cfg.MaxMessagesPerConversation {
		idx := -1
		for i, m := range rec.messages {
			if !m.Pinned {
				idx = i
				break
			}
		}
		if idx < 0 {
			idx = 0
		}
		rec.messages = append(rec.messages[:idx], rec.messages[idx+1:]...)
	}
}

func lastN(msgs []Message, n int) []Message {
	if n <= 0 || len(msgs) == 0 {
		return nil
	}
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}
