package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCache(t *testing.T) {
	assertion := assert.New(t)

	detailsCache := NewResourceDetailsCache()
	assertion.NotNil(detailsCache)
	assertion.Equal(int32(0), detailsCache.GetCacheHits())
	assertion.Equal(int32(0), detailsCache.GetCacheMisses())
}

func TestCache(t *testing.T) {
	assertion := assert.New(t)

	detailsCache := NewResourceDetailsCache()
	key := ResourceDetailsCacheKey{
		AccountId:    "111111111111",
		ResourceType: "AWS::IAM::Group",
		ResourceName: "test-group-name",
	}

	detailsCache.Set(key, ResourceDetails{Users: []string{"alice", "bob"}})

	details, ok := detailsCache.Get(key)
	assertion.True(ok)
	assertion.Equal([]string{"alice", "bob"}, details.Users)
	assertion.Equal(int32(1), detailsCache.GetCacheHits())

	// same name under another type is a different entry
	_, ok = detailsCache.Get(ResourceDetailsCacheKey{AccountId: "111111111111", ResourceType: "AWS::IAM::Role", ResourceName: "test-group-name"})
	assertion.False(ok)
	assertion.Equal(int32(1), detailsCache.GetCacheMisses())

	// same group name in another account
	_, ok = detailsCache.Get(ResourceDetailsCacheKey{AccountId: "222222222222", ResourceType: "AWS::IAM::Group", ResourceName: "test-group-name"})
	assertion.False(ok)
	assertion.Equal(int32(2), detailsCache.GetCacheMisses())

	detailsCache.Delete(key)
	details, ok = detailsCache.Get(key)
	assertion.False(ok)
	assertion.Empty(details.Users)
	assertion.Equal(int32(1), detailsCache.GetCacheHits())
	assertion.Equal(int32(3), detailsCache.GetCacheMisses())
}
