package ingest_test

import (
	"context"
	"errors"
	"sync"

	"bitbucket.org/mmdatafocus/ingest_backend/ingest"
)

// memStore is the in-memory ObjectStore used across the pipeline tests.
type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	copyErr     error
	uploadErr   error
	downloadErr error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}}
}

func (m *memStore) key(bucket, objectName string) string {
	return bucket + "/" + objectName
}

func (m *memStore) put(bucket, objectName string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[m.key(bucket, objectName)] = data
}

func (m *memStore) Download(ctx context.Context, bucket, objectName string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.downloadErr != nil {
		return nil, m.downloadErr
	}
	data, ok := m.objects[m.key(bucket, objectName)]
	if !ok {
		return nil, ingest.ErrObjectNotFound
	}
	return data, nil
}

func (m *memStore) Upload(ctx context.Context, bucket, objectName string, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.uploadErr != nil {
		return m.uploadErr
	}
	m.objects[m.key(bucket, objectName)] = data
	return nil
}

func (m *memStore) Copy(ctx context.Context, bucket, fromObject, toObject string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.copyErr != nil {
		return m.copyErr
	}
	data, ok := m.objects[m.key(bucket, fromObject)]
	if !ok {
		return errors.New("copy source missing")
	}
	m.objects[m.key(bucket, toObject)] = data
	return nil
}

func (m *memStore) Exists(ctx context.Context, bucket, objectName string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[m.key(bucket, objectName)]
	return ok, nil
}
