package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "calbot/pkg/logx"
)

// fileStore is a dependency-free persistence backend. The whole key space is
// kept in memory and flushed to a JSON snapshot (temp file + rename) on every
// mutation. Intended for small state (markers, seen sets), not bulk data.
type fileStore struct {
	log logx.Logger

	mu     sync.Mutex
	path   string
	data   map[string]fileRecord
	closed bool
}

type fileRecord struct {
	Value   []byte `json:"value"`
	Expires int64  `json:"expires,omitempty"` // unix milli; 0 = never
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	data := map[string]fileRecord{}
	if b, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(b, &data); err != nil {
			log.Warn("state snapshot unreadable; starting empty", logx.String("path", path), logx.Err(err))
			data = map[string]fileRecord{}
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	pruneExpiredRecords(data)

	return &fileStore{log: log, path: path, data: data}, nil
}

func pruneExpiredRecords(data map[string]fileRecord) {
	now := time.Now().UnixMilli()
	for k, r := range data {
		if r.Expires != 0 && r.Expires <= now {
			delete(data, k)
		}
	}
}

func (s *fileStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	r, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	if r.Expires != 0 && r.Expires <= time.Now().UnixMilli() {
		delete(s.data, key)
		return nil, false, nil
	}
	return r.Value, true, nil
}

func (s *fileStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_ = ctx
	if key == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	r := fileRecord{Value: value}
	if ttl > 0 {
		r.Expires = time.Now().Add(ttl).UnixMilli()
	}
	s.data[key] = r
	return s.flushLocked()
}

func (s *fileStore) Delete(ctx context.Context, key string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.data[key]; !ok {
		return nil
	}
	delete(s.data, key)
	return s.flushLocked()
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.flushLocked()
}

func (s *fileStore) flushLocked() error {
	pruneExpiredRecords(s.data)
	b, err := json.Marshal(s.data)
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}
