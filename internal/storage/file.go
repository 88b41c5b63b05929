package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"mev-alerts/internal/model"
)

// fileDocument is the on-disk layout: subscriber ID to record.
type fileDocument struct {
	Subscribers map[string]model.Subscriber `json:"subscribers"`
}

// FileBackend keeps subscribers in a single JSON document that is rewritten
// atomically on every change.
type FileBackend struct {
	path string

	mu   sync.Mutex
	subs map[string]model.Subscriber
}

// NewFileBackend returns a backend rooted at path. The file is created on the
// first write.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path, subs: make(map[string]model.Subscriber)}
}

// Load reads the document. A missing file yields an empty set.
func (b *FileBackend) Load(ctx context.Context) ([]model.Subscriber, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			b.subs = make(map[string]model.Subscriber)
			return []model.Subscriber{}, nil
		}
		return nil, fmt.Errorf("read subscriber file: %w", err)
	}

	var doc fileDocument
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode subscriber file %s: %w", b.path, err)
		}
	}

	b.subs = make(map[string]model.Subscriber, len(doc.Subscribers))
	out := make([]model.Subscriber, 0, len(doc.Subscribers))
	for id, sub := range doc.Subscribers {
		sub.ID = id
		b.subs[id] = sub
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Put stores sub and rewrites the document. On failure the backend's view is
// left as it was before the call.
func (b *FileBackend) Put(ctx context.Context, sub model.Subscriber) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	next := make(map[string]model.Subscriber, len(b.subs)+1)
	for id, s := range b.subs {
		next[id] = s
	}
	next[sub.ID] = sub

	if err := b.write(next); err != nil {
		return err
	}
	b.subs = next
	return nil
}

// Close is a no-op; every Put is already durable.
func (b *FileBackend) Close() error {
	return nil
}

func (b *FileBackend) write(subs map[string]model.Subscriber) error {
	data, err := json.MarshalIndent(fileDocument{Subscribers: subs}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode subscriber file: %w", err)
	}

	dir := filepath.Dir(b.path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create store dir: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		return fmt.Errorf("replace subscriber file: %w", err)
	}
	return nil
}
