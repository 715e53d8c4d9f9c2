// Package cache keeps rendered tool observations for a while so identical
// tool calls within a session do not hit the backends again.
package cache

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Store is a TTL bound key/value store for rendered observations.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// Key builds the cache key for a tool call. Queries are compared case and
// whitespace insensitively.
func Key(tool string, maxResults int, query string) string {
	q := strings.ToLower(strings.Join(strings.Fields(query), " "))
	return tool + "|" + strconv.Itoa(maxResults) + "|" + q
}

// Memory is an in-process LRU with per-entry expiry.
type Memory struct {
	lru *expirable.LRU[string, string]
}

var _ Store = (*Memory)(nil)

// NewMemory creates a Memory cache holding at most size entries for ttl.
func NewMemory(size int, ttl time.Duration) *Memory {
	if size <= 0 {
		size = 256
	}
	return &Memory{lru: expirable.NewLRU[string, string](size, nil, ttl)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m.lru.Get(key)
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.lru.Add(key, value)
	return nil
}

// Len reports the number of live entries.
func (m *Memory) Len() int { return m.lru.Len() }

func (m *Memory) Close() error {
	m.lru.Purge()
	return nil
}
