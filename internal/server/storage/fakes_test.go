package storage

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

// memStore is an in-memory ObjectStore.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	opts    map[string]PutOptions
	deleted []string

	failKind  string
	deleteErr error
	block     chan struct{}

	deriver Deriver
	derives []DeriveRequest
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, opts: map[string]PutOptions{}}
}

func (m *memStore) Put(ctx context.Context, data []byte, opts PutOptions) (*PutResult, error) {
	if opts.ResourceKind == m.failKind {
		return nil, errors.New("SlowDown: please reduce your request rate")
	}
	if m.block != nil && opts.ResourceKind == KindMain {
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	body := newProgressReader(data, opts.Progress)
	buf, _ := io.ReadAll(body)

	key := objectKey(opts.Folder, opts.ObjectID)
	m.mu.Lock()
	m.objects[key] = buf
	m.opts[key] = opts
	m.mu.Unlock()
	return &PutResult{URL: "mem://" + key, ObjectID: key, Bytes: int64(len(buf)), Format: formatOf(opts)}, nil
}

func (m *memStore) Derive(ctx context.Context, req DeriveRequest) ([]DerivedObject, error) {
	m.mu.Lock()
	m.derives = append(m.derives, req)
	d := m.deriver
	m.mu.Unlock()
	if d == nil {
		return nil, nil
	}
	keys, err := d.Derive(ctx, req)
	if err != nil {
		return nil, err
	}
	var out []DerivedObject
	for _, k := range keys {
		out = append(out, DerivedObject{ObjectID: k, URL: "mem://" + k})
	}
	return out, nil
}

func (m *memStore) Delete(ctx context.Context, objectID string) error {
	if d, ok := m.deriver.(Discarder); ok {
		d.Discard(objectID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, objectID)
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.objects, objectID)
	return nil
}

func (m *memStore) PresignGet(ctx context.Context, objectID string, ttl time.Duration) (string, error) {
	return "mem://" + objectID + "?ttl=" + ttl.String(), nil
}

func (m *memStore) deriveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.derives)
}

func (m *memStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

type countingRecorder struct {
	mu    sync.Mutex
	bytes map[string]int64
}

func (c *countingRecorder) AddUploadedBytes(kind string, n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bytes == nil {
		c.bytes = map[string]int64{}
	}
	c.bytes[kind] += n
}
