// Package storage keeps user avatar images in object storage.
package storage

import (
	"context"
	"io"
)

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Bucket() string
}

// AvatarStore wraps an ObjectStorage backend with avatar-keyed
// operations. One object is kept per user.
type AvatarStore struct {
	backend ObjectStorage
}

// NewAvatarStore constructs an AvatarStore for the provided backend.
func NewAvatarStore(backend ObjectStorage) *AvatarStore {
	return &AvatarStore{backend: backend}
}

// EnsureBucket ensures the configured bucket exists.
func (s *AvatarStore) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// Put stores the avatar image for userID, replacing any previous one.
func (s *AvatarStore) Put(ctx context.Context, userID string, r io.Reader, size int64, contentType string) error {
	return s.backend.Put(ctx, avatarKey(userID), r, size, contentType)
}

// Get opens a reader for the avatar image of userID.
func (s *AvatarStore) Get(ctx context.Context, userID string) (io.ReadCloser, error) {
	return s.backend.Get(ctx, avatarKey(userID))
}

// Delete removes the avatar image of userID.
func (s *AvatarStore) Delete(ctx context.Context, userID string) error {
	return s.backend.Delete(ctx, avatarKey(userID))
}

// Bucket returns the configured bucket name.
func (s *AvatarStore) Bucket() string {
	return s.backend.Bucket()
}

func avatarKey(userID string) string {
	return "avatars/" + userID
}
