package syncproto

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/pgserver/storagesync/internal/objstore"
	"github.com/pgserver/storagesync/internal/remoteindex"
	"github.com/pgserver/storagesync/internal/syncid"
)

// memStore is an in-memory objstore.Store fake for protocol tests.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut map[string]bool
	failGet map[string]bool
	failDel map[string]bool
}

func newMemStore() *memStore {
	return &memStore{objects: make(map[string][]byte)}
}

func (s *memStore) Put(ctx context.Context, path string, body io.Reader, size int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPut[path] {
		return errors.New("injected put failure")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.objects[path] = data
	return nil
}

func (s *memStore) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet[path] {
		return nil, errors.New("injected get failure")
	}
	data, ok := s.objects[path]
	if !ok {
		return nil, objstore.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memStore) Delete(ctx context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDel[path] {
		return errors.New("injected delete failure")
	}
	delete(s.objects, path)
	return nil
}

// memMetadata is an in-memory LocalMetadata fake.
type memMetadata struct {
	mu   sync.Mutex
	data map[syncid.SyncID]remoteindex.Metadata
}

func newMemMetadata() *memMetadata {
	return &memMetadata{data: make(map[syncid.SyncID]remoteindex.Metadata)}
}

func (m *memMetadata) Read(id syncid.SyncID) (*remoteindex.Metadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta, ok := m.data[id]
	if !ok {
		return nil, nil
	}
	return &meta, nil
}

func (m *memMetadata) WriteDurable(id syncid.SyncID, meta remoteindex.Metadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[id] = meta
	return nil
}

// memLayers is an in-memory LocalLayers fake.
type memLayers struct {
	mu    sync.Mutex
	files map[syncid.SyncID]map[string][]byte
}

func newMemLayers() *memLayers {
	return &memLayers{files: make(map[syncid.SyncID]map[string][]byte)}
}

func (l *memLayers) put(id syncid.SyncID, layer string, body []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.files[id] == nil {
		l.files[id] = make(map[string][]byte)
	}
	l.files[id][layer] = body
}

func (l *memLayers) Open(id syncid.SyncID, layer string) (ReadSeekCloser, int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	body, ok := l.files[id][layer]
	if !ok {
		return nil, 0, errors.New("no such local layer")
	}
	return io.NopCloser(bytes.NewReader(body)), int64(len(body)), nil
}

func (l *memLayers) WriteDurable(id syncid.SyncID, layer string, body []byte) error {
	l.put(id, layer, body)
	return nil
}

func (l *memLayers) has(id syncid.SyncID, layer string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.files[id][layer]
	return ok
}

func newTestDeps() (Deps, *memStore, *memMetadata, *memLayers) {
	store := newMemStore()
	meta := newMemMetadata()
	layers := newMemLayers()
	return Deps{
		Store:    store,
		Index:    remoteindex.New(),
		Metadata: meta,
		Layers:   layers,
	}, store, meta, layers
}
