// Package store persists receipt bundles. Receipts are the only durable
// state of the pipeline; they are keyed by the hex combined digest and never
// rewritten once stored.
package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	axiom "github.com/BackendStack21/axiom-go"
	"github.com/BackendStack21/axiom-go/receipt"
)

// ErrNotFound is returned for an unknown receipt key.
var ErrNotFound = errors.New("receipt not found")

// DefaultCacheSize is the number of receipts kept in memory.
const DefaultCacheSize = 128

const fileExt = ".json"

// Store persists receipts.
type Store interface {
	Put(r *axiom.ReceiptBundle) (string, error)
	Get(key string) (*axiom.ReceiptBundle, error)
	Keys() ([]string, error)
}

// Key returns the storage key of a receipt.
func Key(r *axiom.ReceiptBundle) string {
	return r.CombinedDigest.String()
}

// clone deep-copies r so that stored receipts cannot be changed through a
// caller's pointer.
func clone(r *axiom.ReceiptBundle) *axiom.ReceiptBundle {
	c := *r
	c.ConstraintSetDigest = bytes.Clone(r.ConstraintSetDigest)
	c.InputDigest = bytes.Clone(r.InputDigest)
	c.OutputDigest = bytes.Clone(r.OutputDigest)
	c.CombinedDigest = bytes.Clone(r.CombinedDigest)
	c.Signature = bytes.Clone(r.Signature)
	return &c
}

// FileStore keeps one JSON document per receipt in a directory, with an LRU
// cache in front of it. It is safe for concurrent use.
type FileStore struct {
	dir   string
	mu    sync.Mutex
	cache *lru.Cache[string, *axiom.ReceiptBundle]
}

// NewFileStore opens (and creates) dir.
func NewFileStore(dir string, cacheSize int) (*FileStore, error) {
	if dir == "" {
		return nil, errors.New("store directory not set")
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	cache, err := lru.New[string, *axiom.ReceiptBundle](cacheSize)
	if err != nil {
		return nil, err
	}
	return &FileStore{dir: dir, cache: cache}, nil
}

// Dir returns the store directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(key string) string {
	return filepath.Join(s.dir, key+fileExt)
}

func validKey(key string) bool {
	if key == "" {
		return false
	}
	for _, c := range key {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

// Put stores a receipt after checking its combined digest. Storing the same
// receipt twice is a no-op; a different receipt under an existing key is
// refused.
func (s *FileStore) Put(r *axiom.ReceiptBundle) (string, error) {
	if err := receipt.CheckCombined(r); err != nil {
		return "", err
	}
	key := Key(r)
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	existing, err := os.ReadFile(s.path(key))
	switch {
	case err == nil:
		if string(existing) != string(data) {
			return "", fmt.Errorf("receipt %s already stored with different content", key)
		}
		return key, nil
	case !errors.Is(err, fs.ErrNotExist):
		return "", err
	}

	tmp, err := os.CreateTemp(s.dir, key+".tmp-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), s.path(key)); err != nil {
		return "", err
	}
	s.cache.Add(key, clone(r))
	return key, nil
}

// Get loads a receipt. Loaded receipts are rechecked against their digest.
// Every call returns a fresh copy.
func (s *FileStore) Get(key string) (*axiom.ReceiptBundle, error) {
	key = strings.ToLower(key)
	if !validKey(key) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	if r, ok := s.cache.Get(key); ok {
		return clone(r), nil
	}
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	var r axiom.ReceiptBundle
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decoding receipt %s: %w", key, err)
	}
	if err := receipt.CheckCombined(&r); err != nil {
		return nil, err
	}
	if Key(&r) != key {
		return nil, fmt.Errorf("%w: stored under %s", receipt.ErrReceiptTampered, key)
	}
	s.cache.Add(key, clone(&r))
	return &r, nil
}

// Keys lists stored receipt keys in lexical order.
func (s *FileStore) Keys() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var keys []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, fileExt) {
			continue
		}
		if key := strings.TrimSuffix(name, fileExt); validKey(key) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// MemStore is an in-memory Store for tests and short-lived pipelines.
type MemStore struct {
	mu       sync.RWMutex
	receipts map[string]*axiom.ReceiptBundle
}

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{receipts: make(map[string]*axiom.ReceiptBundle)}
}

// Put stores a receipt after checking its combined digest.
func (s *MemStore) Put(r *axiom.ReceiptBundle) (string, error) {
	if err := receipt.CheckCombined(r); err != nil {
		return "", err
	}
	key := Key(r)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.receipts[key]; !ok {
		s.receipts[key] = clone(r)
	}
	return key, nil
}

// Get returns a copy of a stored receipt.
func (s *MemStore) Get(key string) (*axiom.ReceiptBundle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.receipts[strings.ToLower(key)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return clone(r), nil
}

// Keys lists stored receipt keys in lexical order.
func (s *MemStore) Keys() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.receipts))
	for k := range s.receipts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
