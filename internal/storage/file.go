package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
)

// File keeps every key in one msgpack-encoded map on disk. The map is read
// once and rewritten atomically on each change.
type File struct {
	path string

	mu     sync.Mutex
	data   map[string][]byte
	loaded bool
}

// NewFile creates a file store at path. The file is created on first write.
func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("file storage requires a path")
	}

	return &File{path: filepath.Clean(path)}, nil
}

// Path returns the backing file.
func (f *File) Path() string { return f.path }

func (f *File) load() error {
	if f.loaded {
		return nil
	}
	raw, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		f.data = make(map[string][]byte)
		f.loaded = true
		return nil
	}
	if err != nil {
		return err
	}

	data := make(map[string][]byte)
	if len(raw) > 0 {
		if err := msgpack.Unmarshal(raw, &data); err != nil {
			return fmt.Errorf("decoding %s: %w", f.path, err)
		}
	}
	f.data = data
	f.loaded = true

	return nil
}

func (f *File) flush() error {
	packed, err := msgpack.Marshal(f.data)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".payload-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(packed); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}

	return os.Rename(tmp.Name(), f.path)
}

func (f *File) Get(_ context.Context, key string) ([]byte, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.load(); err != nil {
		return nil, false, err
	}
	v, ok := f.data[key]
	if !ok {
		return nil, false, nil
	}

	return append([]byte(nil), v...), true, nil
}

func (f *File) Set(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.load(); err != nil {
		return err
	}
	f.data[key] = append([]byte(nil), value...)

	return f.flush()
}

func (f *File) Remove(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.load(); err != nil {
		return err
	}
	if _, ok := f.data[key]; !ok {
		return nil
	}
	delete(f.data, key)

	return f.flush()
}

func (f *File) Close() error { return nil }
