// Package credential provides the bearer credential used to call the
// dashboard API. Absence is a normal outcome, not an error: callers treat
// a missing credential as a failed fetch.
package credential

import (
	"context"
	"strings"
	"sync"
)

// Store yields the current credential.
type Store interface {
	Get(ctx context.Context) (string, bool)
}

// Invalidator is implemented by stores that memoize the credential.
type Invalidator interface {
	Invalidate()
}

// Invalidate drops any credential s has memoized. Stores that keep
// nothing are left alone.
func Invalidate(s Store) {
	if inv, ok := s.(Invalidator); ok {
		inv.Invalidate()
	}
}

// StoreFunc adapts a function to Store.
type StoreFunc func(ctx context.Context) (string, bool)

func (f StoreFunc) Get(ctx context.Context) (string, bool) {
	return f(ctx)
}

// Static holds a fixed credential that can be replaced at runtime.
type Static struct {
	mu    sync.RWMutex
	token string
}

func NewStatic(token string) *Static {
	return &Static{token: strings.TrimSpace(token)}
}

func (s *Static) Get(_ context.Context) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// Set replaces the credential. An empty token clears it.
func (s *Static) Set(token string) {
	s.mu.Lock()
	s.token = strings.TrimSpace(token)
	s.mu.Unlock()
}
