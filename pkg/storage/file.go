package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileStore is a persistent Store: one file per stored fragment, named
// "<uuid>.bundle", under a per-channel subdirectory of Dir.
type FileStore struct {
	Dir string

	mu      sync.Mutex
	byCID   map[any]map[uint64]string
	nextCID map[any]uint64
}

// NewFileStore returns a FileStore rooted at dir, creating it if absent.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create %s: %w", dir, err)
	}
	return &FileStore{
		Dir:     dir,
		byCID:   make(map[any]map[uint64]string),
		nextCID: make(map[any]uint64),
	}, nil
}

func (s *FileStore) channelDir(parm any) string {
	return filepath.Join(s.Dir, fmt.Sprintf("%v", parm))
}

// Create spills payload to "<channelDir>/<uuid>.bundle". timeout is unused:
// filesystem writes are not expected to block on capacity the way the RAM
// queue's semaphore does.
func (s *FileStore) Create(parm any, isRecord bool, payload []byte, timeout time.Duration) error {
	dir := s.channelDir(parm)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: create channel dir: %w", err)
	}

	name := uuid.NewString() + ".bundle"
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("storage: write %s: %w", path, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	cid := s.nextCID[parm]
	s.nextCID[parm] = cid + 1
	if s.byCID[parm] == nil {
		s.byCID[parm] = make(map[uint64]string)
	}
	s.byCID[parm][cid] = path
	return nil
}

// Delete removes the file stored under cid for channel parm.
func (s *FileStore) Delete(parm any, cid uint64, flags uint32) error {
	s.mu.Lock()
	path, ok := s.byCID[parm][cid]
	if ok {
		delete(s.byCID[parm], cid)
	}
	s.mu.Unlock()

	if !ok {
		return ErrNotFound
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: remove %s: %w", path, err)
	}
	return nil
}
