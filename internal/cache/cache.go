package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// View names a cached read model shown to the shopper.
type View string

const (
	ViewCart   View = "cart"
	ViewOrders View = "orders"
)

type ViewCache interface {
	Get(ctx context.Context, view View) ([]byte, error)
	Set(ctx context.Context, view View, data []byte) error
	Invalidate(ctx context.Context, views ...View) error
}

var ErrCacheMiss = errors.New("cache miss")

func GetJSON[T any](ctx context.Context, c ViewCache, view View) (T, error) {
	var out T
	data, err := c.Get(ctx, view)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("unmarshal %s view failed: %w", view, err)
	}
	return out, nil
}

func SetJSON(ctx context.Context, c ViewCache, view View, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s view failed: %w", view, err)
	}
	return c.Set(ctx, view, data)
}

type MemoryViewCache struct {
	mu    sync.RWMutex
	views map[View][]byte
}

func NewMemoryViewCache() *MemoryViewCache {
	return &MemoryViewCache{views: make(map[View][]byte)}
}

func (m *MemoryViewCache) Get(_ context.Context, view View) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.views[view]
	if !ok {
		return nil, ErrCacheMiss
	}
	return data, nil
}

func (m *MemoryViewCache) Set(_ context.Context, view View, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.views[view] = data
	return nil
}

func (m *MemoryViewCache) Invalidate(_ context.Context, views ...View) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range views {
		delete(m.views, v)
	}
	return nil
}

// NopViewCache never holds anything.
type NopViewCache struct{}

func (NopViewCache) Get(context.Context, View) ([]byte, error) { return nil, ErrCacheMiss }
func (NopViewCache) Set(context.Context, View, []byte) error { return nil }
func (NopViewCache) Invalidate(context.Context, ...View) error { return nil }
