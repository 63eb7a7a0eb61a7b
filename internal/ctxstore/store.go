// Package ctxstore holds the process-wide context accumulated across tool
// calls. The store only grows or overwrites keys; nothing removes a key, and
// its contents live until the process exits.
package ctxstore

import (
	"reflect"
	"sync"

	"toolcall/internal/domain"
)

// Merge returns a new context holding every key of base and overlay.
// Keys present in both take the overlay value. Neither input is modified.
func Merge(base, overlay domain.Context) domain.Context {
	out := make(domain.Context, len(base)+len(overlay))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overlay {
		out[k] = v
	}
	return out
}

// Changes returns the keys of returned whose value is absent from base or
// differs from it. A tool hands back its whole effective context, so folding
// only the changes keeps a slow call from replaying stale values over writes
// that landed while it ran.
func Changes(base, returned domain.Context) domain.Context {
	out := make(domain.Context)
	for k, v := range returned {
		if old, ok := base[k]; ok && reflect.DeepEqual(old, v) {
			continue
		}
		out[k] = v
	}
	return out
}

// Store is the global context. The zero value is ready to use.
//
// Copies handed out are shallow: nested maps and slices are shared with the
// store, so tools should replace values rather than mutate them in place.
type Store struct {
	mu   sync.Mutex
	data domain.Context
}

// New returns an empty store.
func New() *Store {
	return &Store{data: make(domain.Context)}
}

// Effective computes the context a call runs with: the global context with
// the client-supplied values layered on top. It also returns the global
// snapshot the effective context was built from, for use with Changes.
// The global context is not touched.
func (s *Store) Effective(client domain.Context) (effective, base domain.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	base = s.data.Clone()
	return Merge(base, client), base
}

// Fold merges returned into the global context and returns a snapshot of the
// result.
func (s *Store) Fold(returned domain.Context) domain.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		s.data = make(domain.Context, len(returned))
	}
	for k, v := range returned {
		s.data[k] = v
	}
	return s.data.Clone()
}

// Snapshot returns a copy of the global context.
func (s *Store) Snapshot() domain.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.Clone()
}

// Len reports the number of keys held.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}
