package ledger

import "sync"

// Store is the ledger collaborator contract: load the whole collection,
// save the whole collection. SaveEntries has full-replace semantics — the
// persisted state after a save is exactly the given slice.
type Store interface {
	LoadEntries() ([]Entry, error)
	SaveEntries(entries []Entry) error
}

// MemoryStore is an in-memory Store used by tests and as a scratch target
// for dry runs. Safe for concurrent use.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// LoadEntries returns a copy of the stored collection.
func (s *MemoryStore) LoadEntries() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out, nil
}

// SaveEntries replaces the stored collection.
func (s *MemoryStore) SaveEntries(entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make([]Entry, len(entries))
	copy(s.entries, entries)
	return nil
}
