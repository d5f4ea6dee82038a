package kvstore

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"audiio/coreerr"
	"audiio/types"
)

// File is a KVStore backed by a single JSON document on disk. Writes are
// buffered in memory and only written out on Persist, matching the
// debounced-backend contract KVStore.Persist exists for (§4.2, §5).
type File struct {
	mu   sync.Mutex
	path string
	data map[string]string
	dirty bool
}

var _ types.KVStore = (*File)(nil)

// NewFile opens (or creates) a JSON-backed store at path.
func NewFile(path string) (*File, error) {
	f := &File{path: path, data: make(map[string]string)}
	if err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) load() error {
	b, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return coreerr.New(coreerr.KindStoreFailure, "read kvstore file", err)
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, &f.data)
}

func (f *File) Get(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok, nil
}

func (f *File) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	f.dirty = true
	return nil
}

func (f *File) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	f.dirty = true
	return nil
}

func (f *File) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data = make(map[string]string)
	f.dirty = true
	return nil
}

// Persist flushes buffered writes to disk immediately, regardless of any
// debounce window upstream (§5: "persist() makes them durable
// immediately").
func (f *File) Persist(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.dirty {
		return nil
	}
	b, err := json.Marshal(f.data)
	if err != nil {
		return coreerr.New(coreerr.KindStoreFailure, "marshal kvstore", err)
	}
	if err := os.WriteFile(f.path, b, 0o600); err != nil {
		return coreerr.New(coreerr.KindStoreFailure, "write kvstore file", err)
	}
	f.dirty = false
	return nil
}
