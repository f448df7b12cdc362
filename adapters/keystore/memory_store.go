package keystore

import (
	"context"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/clearview/core"
)

// MemoryStore keeps session keys in a map. Keys do not survive a restart.
type MemoryStore struct {
	keys map[string]string
	mu   sync.RWMutex
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		keys: make(map[string]string),
	}
}

// LoadSessionKey returns the key stored for wallet
func (s *MemoryStore) LoadSessionKey(ctx context.Context, wallet common.Address) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.keys[slot(wallet)]
	if !ok {
		return "", core.ErrSessionKeyNotFound
	}
	return key, nil
}

// SaveSessionKey stores key in wallet's slot, replacing any previous key
func (s *MemoryStore) SaveSessionKey(ctx context.Context, wallet common.Address, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.keys[slot(wallet)] = key
	return nil
}

// slot normalizes the address so checksum casing never splits a slot
func slot(wallet common.Address) string {
	return strings.ToLower(wallet.Hex())
}
