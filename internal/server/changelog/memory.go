package changelog

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/offsync/internal/server/models"
)

type MemoryStore struct {
	mu      sync.RWMutex
	changes []*models.Change
	byID    map[string]int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]int64)}
}

func (s *MemoryStore) Append(_ context.Context, changes []*models.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range changes {
		if seq, ok := s.byID[c.ChangeID]; ok {
			c.Seq = seq
			continue
		}
		stored := *c
		stored.Seq = int64(len(s.changes)) + 1
		s.changes = append(s.changes, &stored)
		s.byID[c.ChangeID] = stored.Seq
		c.Seq = stored.Seq
	}
	return nil
}

func (s *MemoryStore) Since(_ context.Context, since int64, limit int) ([]*models.Change, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if since < 0 {
		since = 0
	}
	// seq == index+1
	if since >= int64(len(s.changes)) {
		return []*models.Change{}, false, nil
	}
	rest := s.changes[since:]
	hasMore := len(rest) > limit
	if hasMore {
		rest = rest[:limit]
	}

	out := make([]*models.Change, len(rest))
	for i, c := range rest {
		cp := *c
		out[i] = &cp
	}
	return out, hasMore, nil
}

func (s *MemoryStore) Close() error { return nil }
