package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache кеш в памяти процесса для одиночного инстанса и тестов
type MemoryCache struct {
	store *gocache.Cache
}

// NewMemoryCache создаёт кеш; defaultTTL применяется, если в Set передан нулевой срок
func NewMemoryCache(defaultTTL, cleanupInterval time.Duration) *MemoryCache {
	return &MemoryCache{store: gocache.New(defaultTTL, cleanupInterval)}
}

// Set сохраняет копию value под ключом key
func (m *MemoryCache) Set(_ context.Context, key string, value []byte, expiration time.Duration) error {
	if expiration == 0 {
		expiration = gocache.DefaultExpiration
	}
	cpy := make([]byte, len(value))
	copy(cpy, value)
	m.store.Set(key, cpy, expiration)
	return nil
}

// Get возвращает значение по ключу или ErrCacheMiss
func (m *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	v, ok := m.store.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	data, ok := v.([]byte)
	if !ok {
		return nil, ErrCacheMiss
	}
	return data, nil
}

// Invalidate удаляет ключ из кеша
func (m *MemoryCache) Invalidate(_ context.Context, key string) error {
	m.store.Delete(key)
	return nil
}

// Ping всегда успешен
func (m *MemoryCache) Ping(context.Context) error {
	return nil
}

// Close очищает кеш
func (m *MemoryCache) Close() error {
	m.store.Flush()
	return nil
}
