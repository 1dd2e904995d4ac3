package core

import (
	"net/http"
	"sync"
)

// SessionStore is the single session slot of one browsing context.
// Read never fails: missing or undecodable data is reported as absent.
// Clear on an empty slot is not an error.
type SessionStore interface {
	Write(record SessionRecord) error
	Read() (SessionRecord, bool)
	Clear() error
}

// SlotOpener binds a SessionStore to the browsing context behind one request.
type SlotOpener interface {
	Open(w http.ResponseWriter, r *http.Request) (SessionStore, error)
}

// MemorySessionStore keeps the slot in process memory.
type MemorySessionStore struct {
	mu  sync.Mutex
	raw []byte
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{}
}

func (s *MemorySessionStore) Write(record SessionRecord) error {
	data, err := encodeSessionRecord(record)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.raw = data
	s.mu.Unlock()
	return nil
}

func (s *MemorySessionStore) Read() (SessionRecord, bool) {
	s.mu.Lock()
	raw := s.raw
	s.mu.Unlock()
	if raw == nil {
		return SessionRecord{}, false
	}
	rec, err := decodeSessionRecord(raw)
	if err != nil {
		return SessionRecord{}, false
	}
	return rec, true
}

func (s *MemorySessionStore) Clear() error {
	s.mu.Lock()
	s.raw = nil
	s.mu.Unlock()
	return nil
}

// SetRaw stores data in the slot verbatim, bypassing encoding.
func (s *MemorySessionStore) SetRaw(data string) {
	s.mu.Lock()
	s.raw = []byte(data)
	s.mu.Unlock()
}

// Raw returns the slot contents and whether the slot is occupied.
func (s *MemorySessionStore) Raw() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return string(s.raw), s.raw != nil
}
