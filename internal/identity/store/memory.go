package store

import (
	"context"
	"strings"
	"sync"

	"presence/internal/identity/models"
	id "presence/pkg/domain"
	"presence/pkg/platform/sentinel"
)

// InMemory keeps principals in memory for tests and development. It mirrors
// the postgres store's uniqueness semantics: email and badge code are unique,
// email case-insensitively.
type InMemory struct {
	mu         sync.RWMutex
	principals map[id.PrincipalID]*models.Principal
	byEmail    map[string]id.PrincipalID
	byBadge    map[string]id.PrincipalID
}

func NewInMemory() *InMemory {
	return &InMemory{
		principals: make(map[id.PrincipalID]*models.Principal),
		byEmail:    make(map[string]id.PrincipalID),
		byBadge:    make(map[string]id.PrincipalID),
	}
}

func (s *InMemory) Create(_ context.Context, p *models.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	emailKey := strings.ToLower(p.Email)
	if _, taken := s.byEmail[emailKey]; taken {
		return sentinel.ErrConflict
	}
	if _, taken := s.byBadge[p.BadgeCode]; taken {
		return sentinel.ErrConflict
	}

	copied := *p
	s.principals[p.ID] = &copied
	s.byEmail[emailKey] = p.ID
	s.byBadge[p.BadgeCode] = p.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, pid id.PrincipalID) (*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.principals[pid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (s *InMemory) FindByEmail(_ context.Context, email string) (*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pid, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *s.principals[pid]
	return &copied, nil
}

func (s *InMemory) SetEnrolled(_ context.Context, pid id.PrincipalID) (*models.Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[pid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	p.MarkEnrolled()
	copied := *p
	return &copied, nil
}

func (s *InMemory) List(_ context.Context) ([]*models.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Principal, 0, len(s.principals))
	for _, p := range s.principals {
		copied := *p
		out = append(out, &copied)
	}
	return out, nil
}
