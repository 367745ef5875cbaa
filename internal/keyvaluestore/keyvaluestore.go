package keyvaluestore

import (
	"sync"

	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/shared"
)

// KeyValueStore is a concurrency safe store keyed by shared.Key.
type KeyValueStore[V any] interface {
	Set(key shared.Key, value V)
	Get(key shared.Key) (V, bool)
	Delete(key shared.Key)
	Len() int
}

type keyValueStore[V any] struct {
	store sync.Map
}

// NewKeyValueStore creates an empty store.
func NewKeyValueStore[V any]() KeyValueStore[V] {
	return &keyValueStore[V]{}
}

func (c *keyValueStore[V]) Set(key shared.Key, value V) {
	c.store.Store(key.ToString(), value)
}

// Get returns the zero value and false when the key is missing.
func (c *keyValueStore[V]) Get(key shared.Key) (V, bool) {
	result, exists := c.store.Load(key.ToString())
	if !exists {
		var zero V
		return zero, false
	}
	return result.(V), true
}

func (c *keyValueStore[V]) Delete(key shared.Key) {
	c.store.Delete(key.ToString())
}

func (c *keyValueStore[V]) Len() int {
	n := 0
	c.store.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
