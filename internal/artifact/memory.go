package artifact

import (
	"context"
	"strings"
	"sync"
	"time"

	"docbridge.org/internal/ids"
)

// InMemory implements Registry with in-process concurrency safety. It
// backs the test suites and local development; production uses the
// remote store adapter.
type InMemory struct {
	mu      sync.RWMutex
	order   []string
	items   map[string]Artifact // remote name -> artifact
	content map[string][]byte   // remote name -> raw bytes
}

// NewInMemory creates an empty registry.
func NewInMemory() *InMemory {
	return &InMemory{
		items:   make(map[string]Artifact),
		content: make(map[string][]byte),
	}
}

func (s *InMemory) Store(ctx context.Context, displayName string, content []byte, mimeType string) (Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.items {
		if a.DisplayName == displayName {
			return Artifact{}, ErrDuplicate
		}
	}

	now := time.Now().UTC()
	name := "files/" + strings.ToLower(ids.New())
	a := Artifact{
		Name:        name,
		URI:         "mem://" + name,
		DisplayName: displayName,
		MIMEType:    mimeType,
		State:       "ACTIVE",
		CreatedAt:   now,
		UpdatedAt:   now,
		ExpiresAt:   now.Add(RetentionWindow),
	}
	s.items[name] = a
	s.content[name] = append([]byte(nil), content...)
	s.order = append(s.order, name)
	return a, nil
}

func (s *InMemory) Fetch(ctx context.Context, uri string) ([]byte, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for name, a := range s.items {
		if a.URI == uri {
			return append([]byte(nil), s.content[name]...), a.MIMEType, nil
		}
	}
	return nil, "", ErrNotFound
}

func (s *InMemory) Info(ctx context.Context, name string) (Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.items[name]
	if !ok {
		return Artifact{}, ErrNotFound
	}
	return a, nil
}

func (s *InMemory) Delete(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[name]; !ok {
		return ErrNotFound
	}
	delete(s.items, name)
	delete(s.content, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

func (s *InMemory) All(ctx context.Context) ([]Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Artifact, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.items[name])
	}
	return out, nil
}

func (s *InMemory) List(ctx context.Context, pageSize int) ([]Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if pageSize <= 0 || pageSize > 1000 {
		pageSize = 100
	}
	out := make([]Artifact, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.items[name])
		if len(out) >= pageSize {
			break
		}
	}
	return out, nil
}
