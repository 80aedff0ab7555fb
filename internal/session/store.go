package session

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"
	"time"
)

// Backend is the byte-level key/value contract our storage backends need;
// it is structurally identical to fiber.Storage so
// github.com/gofiber/storage/memory/v2 and .../bbolt/v2 satisfy it without
// this package importing fiber itself (spec's "orchestrator never imports
// fiber/v2/middleware/session directly" extends to this package too).
type Backend interface {
	Get(key string) ([]byte, error)
	Set(key string, val []byte, exp time.Duration) error
	Delete(key string) error
	Reset() error
	Close() error
}

// Lease is the RAII-style handle spec §3/§6 describes: "The orchestrator
// holds sessions only via short GetSession/put lease pairs." A Lease wraps
// one in-memory Session; callers mutate it and must call Store.Put to
// persist, or simply drop it to discard the working copy.
type Lease struct {
	Session *Session
}

// Store implements the §6 "Persisted state" contract
// (get/put/new/delete/purge_score) over an injected Backend, keeping a
// small in-process index of last-access times so PurgeScore can scan
// without the backend needing enumeration support (grounded on the
// teacher's internal/web/ratelimit.go bounded scan-and-evict shape, reused
// in internal/httpengine's connection registry for the same reason).
type Store struct {
	backend Backend
	ttl     time.Duration

	mu    sync.Mutex
	index map[ID]time.Time
}

func NewStore(backend Backend, ttl time.Duration) *Store {
	return &Store{
		backend: backend,
		ttl:     ttl,
		index:   make(map[ID]time.Time),
	}
}

func sessionKey(id ID) string {
	return fmt.Sprintf("sess:%016x", uint64(id))
}

// Get returns a lease for an existing session, or ok=false if none is
// stored (spec "get(id) → Option<SessionLease>").
func (s *Store) Get(id ID) (*Lease, bool, error) {
	raw, err := s.backend.Get(sessionKey(id))
	if err != nil {
		return nil, false, err
	}

	if len(raw) == 0 {
		return nil, false, nil
	}

	sess, err := decodeSession(raw)
	if err != nil {
		return nil, false, err
	}

	sess.lastAccess = time.Now()

	s.mu.Lock()
	s.index[id] = sess.lastAccess
	s.mu.Unlock()

	return &Lease{Session: sess}, true, nil
}

// Put persists the lease's current Session state (spec "put(lease)").
func (s *Store) Put(lease *Lease) error {
	lease.Session.lastAccess = time.Now()

	raw, err := encodeSession(lease.Session)
	if err != nil {
		return err
	}

	if err := s.backend.Set(sessionKey(lease.Session.ID), raw, s.ttl); err != nil {
		return err
	}

	s.mu.Lock()
	s.index[lease.Session.ID] = lease.Session.lastAccess
	s.mu.Unlock()

	return nil
}

// New mints a fresh session for the given realm and persists it (spec
// "new(realm) → SessionLease").
func (s *Store) New(clusterTag byte, realm string) (*Lease, error) {
	id, err := NewID(clusterTag)
	if err != nil {
		return nil, err
	}

	lease := &Lease{Session: newSession(id, realm)}

	if err := s.Put(lease); err != nil {
		return nil, err
	}

	return lease, nil
}

// Delete removes a session (spec "delete(id)").
func (s *Store) Delete(id ID) error {
	if err := s.backend.Delete(sessionKey(id)); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.index, id)
	s.mu.Unlock()

	return nil
}

// PurgeScore evicts every tracked session whose idle time is at least
// score seconds, returning the count removed (spec "purge_score(s) → u32").
func (s *Store) PurgeScore(score int) (uint32, error) {
	threshold := time.Duration(score) * time.Second
	now := time.Now()

	s.mu.Lock()
	var stale []ID
	for id, last := range s.index {
		if now.Sub(last) >= threshold {
			stale = append(stale, id)
		}
	}
	s.mu.Unlock()

	var removed uint32
	for _, id := range stale {
		if err := s.Delete(id); err != nil {
			return removed, err
		}
		removed++
	}

	return removed, nil
}

func encodeSession(sess *Session) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(sessionWire{
		ID:            sess.ID,
		Realm:         sess.Realm,
		User:          sess.User,
		UserExpiry:    sess.UserExpiry,
		Language:      sess.Language,
		TranslateBlob: sess.TranslateBlob,
		WidgetState:   sess.WidgetState,
	}); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodeSession(raw []byte) (*Session, error) {
	var w sessionWire
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&w); err != nil {
		return nil, err
	}

	sess := newSession(w.ID, w.Realm)
	sess.User = w.User
	sess.UserExpiry = w.UserExpiry
	sess.Language = w.Language
	sess.TranslateBlob = w.TranslateBlob

	if w.WidgetState != nil {
		sess.WidgetState = w.WidgetState
	}

	return sess, nil
}

// sessionWire is the gob-encoded wire shape; CookieJar is rebuilt empty on
// decode since cookies are request-scoped working state, not durable
// identity (only realm/user/language/translate-blob/widget-state survive a
// restart, matching spec §3's session fields that matter across requests).
type sessionWire struct {
	ID            ID
	Realm         string
	User          string
	UserExpiry    time.Time
	Language      string
	TranslateBlob []byte
	WidgetState   map[string]string
}
