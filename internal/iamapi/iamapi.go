package iamapi

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/service/iam"
)

// IamApi is the slice of the iam client used to audit service access.
type IamApi interface {
	// start an access advisor job for a user, group or role
	GenerateServiceLastAccessedDetails(ctx context.Context, params *iam.GenerateServiceLastAccessedDetailsInput, optFns ...func(*iam.Options)) (*iam.GenerateServiceLastAccessedDetailsOutput, error)
	// poll an access advisor job and page through its results
	GetServiceLastAccessedDetails(ctx context.Context, params *iam.GetServiceLastAccessedDetailsInput, optFns ...func(*iam.Options)) (*iam.GetServiceLastAccessedDetailsOutput, error)
	// list policies granting a principal access to service namespaces
	ListPoliciesGrantingServiceAccess(ctx context.Context, params *iam.ListPoliciesGrantingServiceAccessInput, optFns ...func(*iam.Options)) (*iam.ListPoliciesGrantingServiceAccessOutput, error)
	// get group and its members
	GetGroup(ctx context.Context, params *iam.GetGroupInput, optFns ...func(*iam.Options)) (*iam.GetGroupOutput, error)
	// list roles
	ListRoles(ctx context.Context, params *iam.ListRolesInput, optFns ...func(*iam.Options)) (*iam.ListRolesOutput, error)
	// list users
	ListUsers(ctx context.Context, params *iam.ListUsersInput, optFns ...func(*iam.Options)) (*iam.ListUsersOutput, error)
	// list groups
	ListGroups(ctx context.Context, params *iam.ListGroupsInput, optFns ...func(*iam.Options)) (*iam.ListGroupsOutput, error)
}

type _IamApi struct {
	client *iam.Client
}

func NewIamApi(client *iam.Client) IamApi {
	return &_IamApi{
		client: client,
	}
}

func (api *_IamApi) GenerateServiceLastAccessedDetails(ctx context.Context, params *iam.GenerateServiceLastAccessedDetailsInput, optFns ...func(*iam.Options)) (*iam.GenerateServiceLastAccessedDetailsOutput, error) {
	return api.client.GenerateServiceLastAccessedDetails(ctx, params, optFns...)
}

func (api *_IamApi) GetServiceLastAccessedDetails(ctx context.Context, params *iam.GetServiceLastAccessedDetailsInput, optFns ...func(*iam.Options)) (*iam.GetServiceLastAccessedDetailsOutput, error) {
	return api.client.GetServiceLastAccessedDetails(ctx, params, optFns...)
}

func (api *_IamApi) ListPoliciesGrantingServiceAccess(ctx context.Context, params *iam.ListPoliciesGrantingServiceAccessInput, optFns ...func(*iam.Options)) (*iam.ListPoliciesGrantingServiceAccessOutput, error) {
	return api.client.ListPoliciesGrantingServiceAccess(ctx, params, optFns...)
}

func (api *_IamApi) GetGroup(ctx context.Context, params *iam.GetGroupInput, optFns ...func(*iam.Options)) (*iam.GetGroupOutput, error) {
	return api.client.GetGroup(ctx, params, optFns...)
}

// list roles
func (api *_IamApi) ListRoles(ctx context.Context, params *iam.ListRolesInput, optFns ...func(*iam.Options)) (*iam.ListRolesOutput, error) {
	return api.client.ListRoles(ctx, params, optFns...)
}

// list users
func (api *_IamApi) ListUsers(ctx context.Context, params *iam.ListUsersInput, optFns ...func(*iam.Options)) (*iam.ListUsersOutput, error) {
	return api.client.ListUsers(ctx, params, optFns...)
}

// list groups
func (api *_IamApi) ListGroups(ctx context.Context, params *iam.ListGroupsInput, optFns ...func(*iam.Options)) (*iam.ListGroupsOutput, error) {
	return api.client.ListGroups(ctx, params, optFns...)
}
