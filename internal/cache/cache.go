package cache

import (
	"sync/atomic"

	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/keyvaluestore"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/shared"
)

// ResourceDetailsCache holds resolved resource details so a resource flagged
// by several rules is only looked up once.
type ResourceDetailsCache interface {
	Get(key ResourceDetailsCacheKey) (ResourceDetails, bool)
	Set(key ResourceDetailsCacheKey, value ResourceDetails)
	Delete(key ResourceDetailsCacheKey)
	GetCacheHits() int32
	GetCacheMisses() int32
}

type _ResourceDetailsCache struct {
	cache       keyvaluestore.KeyValueStore[ResourceDetails] // key value store for resolved details
	cacheHits   atomic.Int32
	cacheMisses atomic.Int32
}

// ResourceDetailsCacheKey identifies a resource by account, type and name.
// Names are only unique within an account.
type ResourceDetailsCacheKey struct {
	AccountId    string
	ResourceType string
	ResourceName string
}

// ResourceDetails are the type specific facts shown next to a resource in the report.
type ResourceDetails struct {
	Users []string // members of a group
}

func NewResourceDetailsCache() ResourceDetailsCache {
	return &_ResourceDetailsCache{
		cache: keyvaluestore.NewKeyValueStore[ResourceDetails](),
	}
}

func (k ResourceDetailsCacheKey) toKey() shared.Key {
	return shared.Key{
		PrimaryKey: k.AccountId + "/" + k.ResourceType,
		SortKey:    k.ResourceName,
	}
}

func (c *_ResourceDetailsCache) Get(key ResourceDetailsCacheKey) (ResourceDetails, bool) {
	result, ok := c.cache.Get(key.toKey())
	if ok {
		c.cacheHits.Add(1)
		return result, true
	}
	c.cacheMisses.Add(1)
	return ResourceDetails{}, false
}

func (c *_ResourceDetailsCache) Set(key ResourceDetailsCacheKey, value ResourceDetails) {
	c.cache.Set(key.toKey(), value)
}

func (c *_ResourceDetailsCache) Delete(key ResourceDetailsCacheKey) {
	c.cache.Delete(key.toKey())
}

func (c *_ResourceDetailsCache) GetCacheHits() int32 {
	return c.cacheHits.Load()
}

func (c *_ResourceDetailsCache) GetCacheMisses() int32 {
	return c.cacheMisses.Load()
}
