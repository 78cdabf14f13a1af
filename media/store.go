// Package media holds playable audio resources for the lifetime of a
// session.
//
// It is the server-side counterpart of browser blob URLs: a handle is
// created when a resource is produced, served under /media/{id}, and
// released when the owning session resets. Nothing survives the process.
package media

import (
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrNotFound indicates the handle does not exist or was released.
var ErrNotFound = errors.New("media resource not found")

// urlPrefix is the path under which resources are served.
const urlPrefix = "/media/"

// Handle references a stored playable resource.
type Handle struct {
	// ID is the unique resource identifier.
	ID string `json:"id"`

	// URL is the path the resource is served under.
	URL string `json:"url"`

	// MIMEType is the resource content type.
	MIMEType string `json:"mimeType"`

	// Size is the resource length in bytes.
	Size int `json:"size"`
}

type entry struct {
	data     []byte
	mimeType string
}

// Store is an in-memory resource store. Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[string]entry)}
}

// Put stores a resource and returns its handle. The store takes ownership
// of data; callers must not mutate it afterwards.
func (s *Store) Put(data []byte, mimeType string) Handle {
	id := uuid.NewString()

	s.mu.Lock()
	s.entries[id] = entry{data: data, mimeType: mimeType}
	s.mu.Unlock()

	return Handle{
		ID:       id,
		URL:      urlPrefix + id,
		MIMEType: mimeType,
		Size:     len(data),
	}
}

// Get returns the resource bytes and content type for a handle ID.
func (s *Store) Get(id string) ([]byte, string, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()

	if !ok {
		return nil, "", ErrNotFound
	}
	return e.data, e.mimeType, nil
}

// Release drops the resource for a handle ID, freeing its memory. Releasing
// an unknown or already-released ID is a no-op.
func (s *Store) Release(id string) {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
}

// Len returns the number of stored resources.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
