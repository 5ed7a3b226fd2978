package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrNotFound is returned by Store.Get for unknown or expired sessions.
var ErrNotFound = errors.New("session: not found")

// Store persists session data by id.
type Store interface {
	Get(ctx context.Context, id string) (map[string]any, error)
	Set(ctx context.Context, id string, data map[string]any, ttl time.Duration) error
	Destroy(ctx context.Context, id string) error
}

func encode(data map[string]any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("session: marshal: %w", err)
	}
	return raw, nil
}

func decode(raw []byte) (map[string]any, error) {
	data := map[string]any{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("session: unmarshal: %w", err)
	}
	return data, nil
}

// MemoryStore keeps sessions in process memory. Data is stored encoded so
// handlers never share maps across requests.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	raw     []byte
	expires time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry), now: time.Now}
}

func (m *MemoryStore) Get(_ context.Context, id string) (map[string]any, error) {
	m.mu.Lock()
	e, ok := m.entries[id]
	if ok && !e.expires.After(m.now()) {
		delete(m.entries, id)
		ok = false
	}
	m.mu.Unlock()

	if !ok {
		return nil, ErrNotFound
	}
	return decode(e.raw)
}

func (m *MemoryStore) Set(_ context.Context, id string, data map[string]any, ttl time.Duration) error {
	raw, err := encode(data)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for k, e := range m.entries {
		if !e.expires.After(now) {
			delete(m.entries, k)
		}
	}
	m.entries[id] = memoryEntry{raw: raw, expires: now.Add(ttl)}
	return nil
}

func (m *MemoryStore) Destroy(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

// Len returns the number of stored sessions, expired ones included.
func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
