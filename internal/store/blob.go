package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileBlobStore keeps uploaded blobs on the local filesystem under a root
// directory. Keys are slash-separated relative paths.
type FileBlobStore struct {
	root string
}

// NewFileBlobStore creates the root directory if needed.
func NewFileBlobStore(root string) (*FileBlobStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, &PersistenceError{Op: "blob root", Err: err}
	}
	return &FileBlobStore{root: root}, nil
}

func (s *FileBlobStore) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", &PersistenceError{Op: "blob key", Err: errors.New("key escapes the blob root")}
	}
	return filepath.Join(s.root, clean), nil
}

// Put streams the blob to disk, returning its size and SHA-256.
func (s *FileBlobStore) Put(ctx context.Context, key string, r io.Reader) (int64, string, error) {
	p, err := s.path(key)
	if err != nil {
		return 0, "", err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return 0, "", &PersistenceError{Op: "blob mkdir", Err: err}
	}

	f, err := os.Create(p)
	if err != nil {
		return 0, "", &PersistenceError{Op: "blob create", Err: err}
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(io.MultiWriter(f, h), r)
	if err != nil {
		os.Remove(p)
		return 0, "", &PersistenceError{Op: "blob write", Err: err, Transient: true}
	}
	return size, hex.EncodeToString(h.Sum(nil)), nil
}

// Read opens the blob for streaming.
func (s *FileBlobStore) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &PersistenceError{Op: "blob read", Err: ErrNotFound}
		}
		return nil, &PersistenceError{Op: "blob read", Err: err, Transient: true}
	}
	return f, nil
}

// Delete removes the blob; deleting an absent key is not an error.
func (s *FileBlobStore) Delete(ctx context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return &PersistenceError{Op: "blob delete", Err: err}
	}
	return nil
}
