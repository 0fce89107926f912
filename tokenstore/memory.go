package tokenstore

import (
	"sync"

	"github.com/awnumar/memguard"
)

// MemoryStore keeps tokens in process memory, each value sealed in a
// memguard enclave so it is encrypted at rest in RAM. It does not survive a
// restart.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memguard.Enclave
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memguard.Enclave)}
}

func (s *MemoryStore) Get(key string) (string, error) {
	s.mu.RLock()
	enclave, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}
	if enclave == nil {
		// memguard refuses empty enclaves
		return "", nil
	}

	buf, err := enclave.Open()
	if err != nil {
		return "", &StoreError{Op: "get", Key: key, Err: err}
	}
	defer buf.Destroy()
	return string(buf.Bytes()), nil
}

func (s *MemoryStore) Set(key, value string) error {
	var enclave *memguard.Enclave
	if value != "" {
		// NewEnclave wipes its argument, so hand it a private copy.
		enclave = memguard.NewEnclave([]byte(value))
	}

	s.mu.Lock()
	s.entries[key] = enclave
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Remove(key string) error {
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
	return nil
}
