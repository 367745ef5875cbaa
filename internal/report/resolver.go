package report

import (
	"context"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/cache"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/iamapi"
	"github.com/outofoffice3/aws-samples/iam-unused-services/internal/shared"
	"github.com/rs/zerolog"
)

type ResourceDetails = cache.ResourceDetails

// DetailResolver looks up the report details of one resource type.
type DetailResolver interface {
	Resolve(ctx context.Context, resourceName string) (ResourceDetails, error)
}

// DetailResolverFunc adapts a function to DetailResolver.
type DetailResolverFunc func(ctx context.Context, resourceName string) (ResourceDetails, error)

func (f DetailResolverFunc) Resolve(ctx context.Context, resourceName string) (ResourceDetails, error) {
	return f(ctx, resourceName)
}

// ResolverRegistry dispatches detail lookups by resource type. Unregistered
// types and failed lookups resolve to empty details.
type ResolverRegistry struct {
	mu        sync.RWMutex
	resolvers map[string]DetailResolver
	cache     cache.ResourceDetailsCache
}

func NewResolverRegistry(detailsCache cache.ResourceDetailsCache) *ResolverRegistry {
	if detailsCache == nil {
		detailsCache = cache.NewResourceDetailsCache()
	}
	return &ResolverRegistry{
		resolvers: map[string]DetailResolver{},
		cache:     detailsCache,
	}
}

// NewDefaultResolverRegistry registers the group member resolver.
func NewDefaultResolverRegistry(api iamapi.IamApi, detailsCache cache.ResourceDetailsCache) *ResolverRegistry {
	registry := NewResolverRegistry(detailsCache)
	registry.Register(shared.AwsIamGroup, &GroupResolver{IamApi: api})
	return registry
}

func (r *ResolverRegistry) Register(resourceType string, resolver DetailResolver) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolvers[resourceType] = resolver
}

// Resolve returns the details of a resource of accountId, looked up once per
// account, type and name.
func (r *ResolverRegistry) Resolve(ctx context.Context, accountId string, resourceType string, resourceName string) ResourceDetails {
	r.mu.RLock()
	resolver, ok := r.resolvers[resourceType]
	r.mu.RUnlock()
	if !ok {
		return ResourceDetails{}
	}

	key := cache.ResourceDetailsCacheKey{AccountId: accountId, ResourceType: resourceType, ResourceName: resourceName}
	if details, ok := r.cache.Get(key); ok {
		return details
	}

	details, err := resolver.Resolve(ctx, resourceName)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Str("resourceType", resourceType).Str("resourceName", resourceName).Err(err).Msg("unable to resolve resource details")
		return ResourceDetails{}
	}
	r.cache.Set(key, details)
	return details
}

// GroupResolver lists the members of an iam group.
type GroupResolver struct {
	IamApi iamapi.IamApi
}

func (g *GroupResolver) Resolve(ctx context.Context, groupName string) (ResourceDetails, error) {
	users := []string{}
	var marker *string
	for {
		out, err := g.IamApi.GetGroup(ctx, &iam.GetGroupInput{
			GroupName: aws.String(groupName),
			Marker:    marker,
		})
		if err != nil {
			return ResourceDetails{}, err
		}
		for _, user := range out.Users {
			users = append(users, aws.ToString(user.UserName))
		}
		if !out.IsTruncated || aws.ToString(out.Marker) == "" {
			break
		}
		marker = out.Marker
	}
	return ResourceDetails{Users: users}, nil
}
