package guest

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Key identifies an anonymous shopper's cart until it is merged.
type Key string

var ErrNoKey = errors.New("no guest session key")

// KeyStore persists the key on this client.
type KeyStore interface {
	LoadGuestKey(ctx context.Context) (string, error)
	SaveGuestKey(ctx context.Context, key string) error
	DeleteGuestKey(ctx context.Context) error
}

type Store struct {
	mu      sync.Mutex
	backend KeyStore
	newKey  func() string
}

func NewStore(backend KeyStore) *Store {
	return &Store{
		backend: backend,
		newKey:  func() string { return uuid.NewString() },
	}
}

// Ensure returns the current key, generating and persisting one if none exists.
func (s *Store) Ensure(ctx context.Context) (Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.backend.LoadGuestKey(ctx)
	if err == nil && existing != "" {
		return Key(existing), nil
	}
	if err != nil && !errors.Is(err, ErrNoKey) {
		return "", fmt.Errorf("load guest key: %w", err)
	}

	key := s.newKey()
	if err := s.backend.SaveGuestKey(ctx, key); err != nil {
		return "", fmt.Errorf("save guest key: %w", err)
	}
	return Key(key), nil
}

// Current returns the stored key without creating one.
func (s *Store) Current(ctx context.Context) (Key, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.backend.LoadGuestKey(ctx)
	if err != nil || key == "" {
		return "", false
	}
	return Key(key), true
}

func (s *Store) Discard(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.backend.DeleteGuestKey(ctx); err != nil && !errors.Is(err, ErrNoKey) {
		return fmt.Errorf("delete guest key: %w", err)
	}
	return nil
}

type MemoryKeyStore struct {
	mu  sync.RWMutex
	key string
}

func (m *MemoryKeyStore) LoadGuestKey(context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.key == "" {
		return "", ErrNoKey
	}
	return m.key, nil
}

func (m *MemoryKeyStore) SaveGuestKey(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.key = key
	return nil
}

func (m *MemoryKeyStore) DeleteGuestKey(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.key = ""
	return nil
}
