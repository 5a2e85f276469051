package store

import (
	"context"
	"sort"
	"sync"

	"github.com/gyaneshwarpardhi/tierflow/internal/tier"
)

// Memory is an in-memory implementation of every store interface, used in
// tests and for running without a database.
type Memory struct {
	mu        sync.RWMutex
	posts     map[string]TrackedPost
	members   map[string]TrackedMember
	mappings  map[string]TierMapping // keyed by tier id
	templates map[string]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		posts:     make(map[string]TrackedPost),
		members:   make(map[string]TrackedMember),
		mappings:  make(map[string]TierMapping),
		templates: make(map[string]string),
	}
}

// Posts returns the PostStore view of the same state.
func (s *Memory) Posts() PostStore { return (*memoryPosts)(s) }

// Members returns the MemberStore view of the same state.
func (s *Memory) Members() MemberStore { return (*memoryMembers)(s) }

// Mappings returns the MappingStore view of the same state.
func (s *Memory) Mappings() MappingStore { return (*memoryMappings)(s) }

// Templates returns the TemplateStore view of the same state.
func (s *Memory) Templates() TemplateStore { return (*memoryTemplates)(s) }

type memoryPosts Memory

func (s *memoryPosts) Get(ctx context.Context, postID string) (TrackedPost, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[postID]
	if !ok {
		return TrackedPost{}, ErrNotFound
	}
	return p, nil
}

func (s *memoryPosts) Upsert(ctx context.Context, p TrackedPost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[p.PostID] = p
	return nil
}

func (s *memoryPosts) Delete(ctx context.Context, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.posts, postID)
	return nil
}

type memoryMembers Memory

func (s *memoryMembers) Get(ctx context.Context, memberID string) (TrackedMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.members[memberID]
	if !ok {
		return TrackedMember{}, ErrNotFound
	}
	return m, nil
}

func (s *memoryMembers) Upsert(ctx context.Context, m TrackedMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.members[m.MemberID]; ok {
		m.JoinedAt = prev.JoinedAt // first-seen wins
		if m.Email == "" {
			m.Email = prev.Email
		}
	}
	s.members[m.MemberID] = m
	return nil
}

type memoryMappings Memory

func (s *memoryMappings) GetByID(ctx context.Context, tierID string) (TierMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mappings[tierID]
	if !ok {
		return TierMapping{}, ErrNotFound
	}
	return m, nil
}

func (s *memoryMappings) GetByName(ctx context.Context, tierName string) (TierMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	norm := tier.Normalize(tierName)
	for _, m := range s.mappings {
		if tier.Normalize(m.TierName) == norm {
			return m, nil
		}
	}
	return TierMapping{}, ErrNotFound
}

func (s *memoryMappings) List(ctx context.Context) ([]TierMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TierMapping, 0, len(s.mappings))
	for _, m := range s.mappings {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TierRank < out[j].TierRank })
	return out, nil
}

func (s *memoryMappings) Upsert(ctx context.Context, m TierMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings[m.TierID] = m
	return nil
}

type memoryTemplates Memory

func (s *memoryTemplates) Get(ctx context.Context, kind string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[kind]
	if !ok {
		return "", ErrNotFound
	}
	return t, nil
}

func (s *memoryTemplates) Set(ctx context.Context, kind, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[kind] = text
	return nil
}
