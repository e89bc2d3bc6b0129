/*
   NTVbot - News Truthfulness Verification bot
   Copyright (C) 2025  Unbewohnte (Kasyanov Nikolay Alexeevich)

   This program is free software: you can redistribute it and/or modify
   it under the terms of the GNU General Public License as published by
   the Free Software Foundation, either version 3 of the License, or
   (at your option) any later version.

   This program is distributed in the hope that it will be useful,
   but WITHOUT ANY WARRANTY; without even the implied warranty of
   MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
   GNU General Public License for more details.

   You should have received a copy of the GNU General Public License
   along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package headlines

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"Unbewohnte/NTVbot/internal/article"

	"github.com/redis/go-redis/v9"
)

// Cache keeps the last successful fetch per key for a limited time.
type Cache interface {
	Get(ctx context.Context, key string) ([]article.Raw, bool, error)
	Set(ctx context.Context, key string, articles []article.Raw, ttl time.Duration) error
}

type memoryEntry struct {
	articles []article.Raw
	expires  time.Time
}

type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]article.Raw, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(entry.expires) {
		delete(c.entries, key)
		return nil, false, nil
	}

	return append([]article.Raw(nil), entry.articles...), true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, articles []article.Raw, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = memoryEntry{
		articles: append([]article.Raw(nil), articles...),
		expires:  c.now().Add(ttl),
	}
	return nil
}

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// ConnectRedis opens a client to addr and verifies it with a ping.
func ConnectRedis(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return client, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]article.Raw, bool, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var articles []article.Raw
	if err := json.Unmarshal(data, &articles); err != nil {
		return nil, false, fmt.Errorf("decode cached headlines: %w", err)
	}

	return articles, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, articles []article.Raw, ttl time.Duration) error {
	data, err := json.Marshal(articles)
	if err != nil {
		return fmt.Errorf("encode headlines: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
