// Package uploads defines the avatar blob-storage capability. Type and size
// validation of uploads happens in the calling layer, not here.
package uploads

import (
	"context"
	"sync"

	"github.com/gofrs/uuid/v5"
)

// Store is the avatar upload capability.
type Store interface {
	// UploadAvatar stores the image bytes for the user and returns a
	// reference usable as the user's image field.
	UploadAvatar(ctx context.Context, userID uuid.UUID, contentType string, data []byte) (string, error)
	// DeleteAvatar removes the user's stored avatar; absent avatars are a no-op.
	DeleteAvatar(ctx context.Context, userID uuid.UUID) error
}

// MemoryStore holds avatars in process memory, for tests and development.
type MemoryStore struct {
	mu    sync.Mutex
	blobs map[uuid.UUID][]byte
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore constructs an empty avatar store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[uuid.UUID][]byte)}
}

func (s *MemoryStore) UploadAvatar(_ context.Context, userID uuid.UUID, _ string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[userID] = append([]byte(nil), data...)
	return "/avatars/" + userID.String(), nil
}

func (s *MemoryStore) DeleteAvatar(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, userID)
	return nil
}
