package store

import (
	"context"
	"sync"

	"github.com/collabtext/realtime-docs/internal/apperr"
	"github.com/collabtext/realtime-docs/internal/document"
)

// MemoryStore is an in-process Adapter implementation used by tests and by
// internal/clientsim's fixtures. It is not used in production.
type MemoryStore struct {
	mu   sync.Mutex
	docs map[string]*document.Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*document.Record)}
}

// Put seeds or overwrites a document record directly, for test setup.
func (s *MemoryStore) Put(rec *document.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.docs[rec.ID] = &cp
}

func (s *MemoryStore) GetByID(_ context.Context, id string) (*document.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.docs[id]
	if !ok {
		return nil, apperr.NotFound
	}
	cp := *rec
	cp.Shares = map[string]document.Role{}
	for k, v := range rec.Shares {
		cp.Shares[k] = v
	}
	cp.History = append([]document.VersionEntry(nil), rec.History...)
	return &cp, nil
}

func (s *MemoryStore) Save(_ context.Context, rec *document.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *rec
	s.docs[rec.ID] = &cp
	return nil
}

func (s *MemoryStore) FindSharedOrOwned(_ context.Context, userID string) ([]*document.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*document.Record
	for _, rec := range s.docs {
		if rec.Owner == userID {
			out = append(out, rec)
			continue
		}
		if _, ok := rec.Shares[userID]; ok {
			out = append(out, rec)
		}
	}
	return out, nil
}
