package kvstore

import (
	"strings"
	"sync"

	"github.com/wordpot/engine/pkg/infra"
)

// MemoryStore keeps pairs in a map. Used for tests and single-shot CLI runs
// where a badger directory would be overkill.
type MemoryStore struct {
	mu    sync.RWMutex
	data  map[string]string
	codec infra.Codec
}

func NewMemoryStore(codec infra.Codec) *MemoryStore {
	return &MemoryStore{
		data:  make(map[string]string),
		codec: codec,
	}
}

func (m *MemoryStore) GetName() string {
	return string(TypeMemory)
}

func (m *MemoryStore) Get(key string) (string, error) {
	if key == "" {
		return "", infra.ErrKeyEmpty
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return "", infra.ErrKeyNotFound
	}
	return v, nil
}

func (m *MemoryStore) Set(key string, value string) error {
	if key == "" {
		return infra.ErrKeyEmpty
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *MemoryStore) GetAny(key string, value any) (bool, error) {
	raw, err := m.Get(key)
	if err != nil {
		if err == infra.ErrKeyNotFound {
			return false, nil
		}
		return false, err
	}
	return true, m.codec.Unmarshal([]byte(raw), value)
}

func (m *MemoryStore) SetAny(key string, value any) error {
	data, err := m.codec.Marshal(value)
	if err != nil {
		return err
	}
	return m.Set(key, string(data))
}

func (m *MemoryStore) List(prefix string) ([]*infra.KVPair, error) {
	if prefix == "" {
		return nil, infra.ErrKeyEmpty
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*infra.KVPair, 0)
	for k, v := range m.data {
		if strings.HasPrefix(k, prefix) {
			result = append(result, &infra.KVPair{Key: k, Value: []byte(v)})
		}
	}
	return result, nil
}

func (m *MemoryStore) Delete(key string) error {
	if key == "" {
		return infra.ErrKeyEmpty
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}
