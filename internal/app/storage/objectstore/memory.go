package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store for local runs and tests.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]memoryObject

	// FailPut and FailDelete, when set, are consulted before every write
	// or delete; a non-nil result is returned instead.
	FailPut    func(bucket, key string) error
	FailDelete func(bucket, key string) error
}

type memoryObject struct {
	data        []byte
	contentType string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{objects: make(map[string]memoryObject)}
}

func memoryKey(bucket, key string) string {
	return bucket + "/" + key
}

// Get implements Store.
func (m *Memory) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[memoryKey(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", bucket, key, ErrObjectNotFound)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// Put implements Store.
func (m *Memory) Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.FailPut != nil {
		if err := m.FailPut(bucket, key); err != nil {
			return "", err
		}
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	m.mu.Lock()
	m.objects[memoryKey(bucket, key)] = memoryObject{data: data, contentType: contentType}
	m.mu.Unlock()
	return m.URL(bucket, key), nil
}

// Delete implements Store.
func (m *Memory) Delete(ctx context.Context, bucket, key string) error {
	if m.FailDelete != nil {
		if err := m.FailDelete(bucket, key); err != nil {
			return err
		}
	}
	m.mu.Lock()
	delete(m.objects, memoryKey(bucket, key))
	m.mu.Unlock()
	return nil
}

// PresignPut implements Store.
func (m *Memory) PresignPut(ctx context.Context, bucket, key, contentType string, expires time.Duration) (string, error) {
	return m.signed(bucket, key, expires), nil
}

// PresignGet implements Store.
func (m *Memory) PresignGet(ctx context.Context, bucket, key string, expires time.Duration) (string, error) {
	return m.signed(bucket, key, expires), nil
}

func (m *Memory) signed(bucket, key string, expires time.Duration) string {
	return m.URL(bucket, key) + "?" + url.Values{
		"expires": {time.Now().Add(expires).UTC().Format(time.RFC3339)},
	}.Encode()
}

// URL implements Store.
func (m *Memory) URL(bucket, key string) string {
	return fmt.Sprintf("memory://%s/%s", bucket, key)
}

// Keys lists the stored keys of bucket in lexical order.
func (m *Memory) Keys(bucket string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	prefix := bucket + "/"
	var keys []string
	for k := range m.objects {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k[len(prefix):])
		}
	}
	sort.Strings(keys)
	return keys
}

// ContentType returns the content type recorded for key.
func (m *Memory) ContentType(bucket, key string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.objects[memoryKey(bucket, key)].contentType
}
