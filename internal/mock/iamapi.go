package mock

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/iam"
	iamTypes "github.com/aws/aws-sdk-go-v2/service/iam/types"
	"github.com/aws/smithy-go"
)

const (
	OpGenerateServiceLastAccessedDetails = "GenerateServiceLastAccessedDetails"
	OpGetJobStatus                       = "GetServiceLastAccessedDetails"
	OpGetJobPage                         = "GetServiceLastAccessedDetails+Marker"
	OpListPoliciesGrantingServiceAccess  = "ListPoliciesGrantingServiceAccess"
	OpGetGroup                           = "GetGroup"
	OpListRoles                          = "ListRoles"
	OpListUsers                          = "ListUsers"
	OpListGroups                         = "ListGroups"

	jobIdPrefix = "job||"
)

var (
	TestAccountId       = "111111111111"
	TestMemberAccountId = "222222222222"

	TestRoleName     = "test-role-name"
	TestRoleId       = "AROATESTROLEID"
	TestRoleArn      = "arn:aws:iam::111111111111:role/test-role-name"
	TestErrorRoleArn = "arn:aws:iam::111111111111:role/test-error-role-name"

	TestUserName         = "test-user-name"
	TestUserId           = "AIDATESTUSERID"
	TestUserArn          = "arn:aws:iam::111111111111:user/test-user-name"
	TestFailedJobUserArn = "arn:aws:iam::111111111111:user/test-failed-job-user-name"

	TestGroupName = "test-group-name"
	TestGroupId   = "AGPATESTGROUPID"
	TestGroupArn  = "arn:aws:iam::111111111111:group/test-group-name"

	TestReadOnlyPolicyName = "ReadOnlyAccess"
	TestReadOnlyPolicyArn  = "arn:aws:iam::aws:policy/ReadOnlyAccess"
	TestLambdaPolicyName   = "AWSLambda_FullAccess"
	TestLambdaPolicyArn    = "arn:aws:iam::aws:policy/AWSLambda_FullAccess"

	TestJobErrorCode    = "ServiceFailure"
	TestJobErrorMessage = "access advisor job failed"
)

// ServiceLastAccessed builds a report entry. daysAgo is ignored when accessed is false.
func ServiceLastAccessed(namespace string, accessed bool, daysAgo int) iamTypes.ServiceLastAccessed {
	s := iamTypes.ServiceLastAccessed{
		ServiceName:                aws.String(strings.ToUpper(namespace)),
		ServiceNamespace:           aws.String(namespace),
		TotalAuthenticatedEntities: aws.Int32(0),
	}
	if accessed {
		s.LastAuthenticated = aws.Time(time.Now().UTC().AddDate(0, 0, -daysAgo))
		s.LastAuthenticatedRegion = aws.String("us-east-1")
		s.TotalAuthenticatedEntities = aws.Int32(1)
	}
	return s
}

// MockIamApi serves access advisor jobs, granting policies and principal listings
// from in memory data and counts every call.
type MockIamApi struct {
	// pages of the access advisor report, keyed by principal arn
	Reports map[string][][]iamTypes.ServiceLastAccessed
	// statuses returned by successive status polls of a job, the last one repeats
	JobStatuses []iamTypes.JobStatusType
	// leading calls that fail with a retryable error
	GenerateFailures int
	StatusFailures   int
	// granting policies keyed by service namespace
	GrantingPolicies map[string][]iamTypes.PolicyGrantingServiceAccess
	GrantingPageSize int
	GroupMembers     map[string][]iamTypes.User
	GroupPageSize    int
	Roles            []iamTypes.Role
	Users            []iamTypes.User
	Groups           []iamTypes.Group

	mu               sync.Mutex
	calls            map[string]int
	polls            map[string]int
	grantingRequests [][]string
}

// NewMockIamApi returns a mock loaded with one role, one user and one group.
//
// The role used s3 recently and never used lambda, the user used s3, the group
// never used ec2 which only ReadOnlyAccess grants.
func NewMockIamApi() *MockIamApi {
	return &MockIamApi{
		Reports: map[string][][]iamTypes.ServiceLastAccessed{
			TestRoleArn: {{
				ServiceLastAccessed("s3", true, 5),
				ServiceLastAccessed("lambda", false, 0),
			}},
			TestUserArn: {{
				ServiceLastAccessed("s3", true, 1),
			}},
			TestGroupArn: {{
				ServiceLastAccessed("ec2", false, 0),
			}},
		},
		GrantingPolicies: map[string][]iamTypes.PolicyGrantingServiceAccess{
			"lambda": {{
				PolicyName: aws.String(TestLambdaPolicyName),
				PolicyArn:  aws.String(TestLambdaPolicyArn),
				PolicyType: iamTypes.PolicyTypeManaged,
			}},
			"ec2": {{
				PolicyName: aws.String(TestReadOnlyPolicyName),
				PolicyArn:  aws.String(TestReadOnlyPolicyArn),
				PolicyType: iamTypes.PolicyTypeManaged,
			}},
		},
		GroupMembers: map[string][]iamTypes.User{
			TestGroupName: {{
				UserName: aws.String(TestUserName),
				UserId:   aws.String(TestUserId),
				Arn:      aws.String(TestUserArn),
			}},
		},
		Roles: []iamTypes.Role{{
			RoleName: aws.String(TestRoleName),
			RoleId:   aws.String(TestRoleId),
			Arn:      aws.String(TestRoleArn),
		}},
		Users: []iamTypes.User{{
			UserName: aws.String(TestUserName),
			UserId:   aws.String(TestUserId),
			Arn:      aws.String(TestUserArn),
		}},
		Groups: []iamTypes.Group{{
			GroupName: aws.String(TestGroupName),
			GroupId:   aws.String(TestGroupId),
			Arn:       aws.String(TestGroupArn),
		}},
	}
}

// CallCount returns how many times op was invoked.
func (m *MockIamApi) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// GrantingRequests returns the namespaces sent with each ListPoliciesGrantingServiceAccess call.
func (m *MockIamApi) GrantingRequests() [][]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]string{}, m.grantingRequests...)
}

// count increments the counter of op and returns the new value
func (m *MockIamApi) count(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = map[string]int{}
	}
	m.calls[op]++
	return m.calls[op]
}

func noSuchEntity(arn string) error {
	return &smithy.GenericAPIError{
		Code:    "NoSuchEntity",
		Message: "The principal with arn " + arn + " cannot be found.",
		Fault:   smithy.FaultClient,
	}
}

func (m *MockIamApi) GenerateServiceLastAccessedDetails(ctx context.Context, params *iam.GenerateServiceLastAccessedDetailsInput, optFns ...func(*iam.Options)) (*iam.GenerateServiceLastAccessedDetailsOutput, error) {
	n := m.count(OpGenerateServiceLastAccessedDetails)
	if n <= m.GenerateFailures {
		return nil, errors.New("generate service last accessed details error")
	}
	arn := aws.ToString(params.Arn)
	if arn == TestErrorRoleArn {
		return nil, noSuchEntity(arn)
	}
	return &iam.GenerateServiceLastAccessedDetailsOutput{
		JobId: aws.String(jobIdPrefix + arn),
	}, nil
}

func (m *MockIamApi) GetServiceLastAccessedDetails(ctx context.Context, params *iam.GetServiceLastAccessedDetailsInput, optFns ...func(*iam.Options)) (*iam.GetServiceLastAccessedDetailsOutput, error) {
	jobId := aws.ToString(params.JobId)
	if !strings.HasPrefix(jobId, jobIdPrefix) {
		return nil, &smithy.GenericAPIError{Code: "NoSuchEntity", Message: "unknown job " + jobId}
	}
	arn := strings.TrimPrefix(jobId, jobIdPrefix)
	pages := m.Reports[arn]

	// continuation page
	if params.Marker != nil {
		m.count(OpGetJobPage)
		idx, err := strconv.Atoi(aws.ToString(params.Marker))
		if err != nil || idx <= 0 || idx >= len(pages) {
			return nil, &smithy.GenericAPIError{Code: "InvalidInput", Message: "invalid marker"}
		}
		return m.reportPage(pages, idx), nil
	}

	n := m.count(OpGetJobStatus)
	if n <= m.StatusFailures {
		return nil, errors.New("get service last accessed details error")
	}

	m.mu.Lock()
	if m.polls == nil {
		m.polls = map[string]int{}
	}
	poll := m.polls[jobId]
	m.polls[jobId]++
	m.mu.Unlock()

	status := iamTypes.JobStatusTypeCompleted
	if len(m.JobStatuses) > 0 {
		if poll >= len(m.JobStatuses) {
			poll = len(m.JobStatuses) - 1
		}
		status = m.JobStatuses[poll]
	}
	if arn == TestFailedJobUserArn {
		status = iamTypes.JobStatusTypeFailed
	}

	switch status {
	case iamTypes.JobStatusTypeInProgress:
		return &iam.GetServiceLastAccessedDetailsOutput{
			JobStatus: status,
		}, nil
	case iamTypes.JobStatusTypeFailed:
		return &iam.GetServiceLastAccessedDetailsOutput{
			JobStatus: status,
			Error: &iamTypes.ErrorDetails{
				Code:    aws.String(TestJobErrorCode),
				Message: aws.String(TestJobErrorMessage),
			},
		}, nil
	}
	return m.reportPage(pages, 0), nil
}

func (m *MockIamApi) reportPage(pages [][]iamTypes.ServiceLastAccessed, idx int) *iam.GetServiceLastAccessedDetailsOutput {
	out := &iam.GetServiceLastAccessedDetailsOutput{
		JobStatus:         iamTypes.JobStatusTypeCompleted,
		JobCompletionDate: aws.Time(time.Now()),
	}
	if idx < len(pages) {
		out.ServicesLastAccessed = pages[idx]
	}
	if idx+1 < len(pages) {
		out.IsTruncated = true
		out.Marker = aws.String(strconv.Itoa(idx + 1))
	}
	return out
}

func (m *MockIamApi) ListPoliciesGrantingServiceAccess(ctx context.Context, params *iam.ListPoliciesGrantingServiceAccessInput, optFns ...func(*iam.Options)) (*iam.ListPoliciesGrantingServiceAccessOutput, error) {
	m.count(OpListPoliciesGrantingServiceAccess)
	m.mu.Lock()
	m.grantingRequests = append(m.grantingRequests, append([]string{}, params.ServiceNamespaces...))
	m.mu.Unlock()

	if len(params.ServiceNamespaces) == 0 || len(params.ServiceNamespaces) > 10 {
		return nil, &smithy.GenericAPIError{Code: "InvalidInput", Message: "between 1 and 10 service namespaces are required"}
	}
	if aws.ToString(params.Arn) == TestErrorRoleArn {
		return nil, noSuchEntity(aws.ToString(params.Arn))
	}

	entries := []iamTypes.ListPoliciesGrantingServiceAccessEntry{}
	for _, namespace := range params.ServiceNamespaces {
		entries = append(entries, iamTypes.ListPoliciesGrantingServiceAccessEntry{
			ServiceNamespace: aws.String(namespace),
			Policies:         m.GrantingPolicies[namespace],
		})
	}

	start, end, next := page(len(entries), m.GrantingPageSize, params.Marker)
	out := &iam.ListPoliciesGrantingServiceAccessOutput{
		PoliciesGrantingServiceAccess: entries[start:end],
	}
	if next != "" {
		out.IsTruncated = true
		out.Marker = aws.String(next)
	}
	return out, nil
}

func (m *MockIamApi) GetGroup(ctx context.Context, params *iam.GetGroupInput, optFns ...func(*iam.Options)) (*iam.GetGroupOutput, error) {
	m.count(OpGetGroup)
	name := aws.ToString(params.GroupName)
	members, ok := m.GroupMembers[name]
	if !ok {
		return nil, noSuchEntity(name)
	}

	start, end, next := page(len(members), m.GroupPageSize, params.Marker)
	out := &iam.GetGroupOutput{
		Group: &iamTypes.Group{GroupName: aws.String(name)},
		Users: members[start:end],
	}
	if next != "" {
		out.IsTruncated = true
		out.Marker = aws.String(next)
	}
	return out, nil
}

// list roles
func (m *MockIamApi) ListRoles(ctx context.Context, params *iam.ListRolesInput, optFns ...func(*iam.Options)) (*iam.ListRolesOutput, error) {
	m.count(OpListRoles)
	return &iam.ListRolesOutput{Roles: m.Roles}, nil
}

// list users
func (m *MockIamApi) ListUsers(ctx context.Context, params *iam.ListUsersInput, optFns ...func(*iam.Options)) (*iam.ListUsersOutput, error) {
	m.count(OpListUsers)
	return &iam.ListUsersOutput{Users: m.Users}, nil
}

// list groups
func (m *MockIamApi) ListGroups(ctx context.Context, params *iam.ListGroupsInput, optFns ...func(*iam.Options)) (*iam.ListGroupsOutput, error) {
	m.count(OpListGroups)
	return &iam.ListGroupsOutput{Groups: m.Groups}, nil
}

// page returns the bounds of the page starting at marker and the marker of the next page, if any
func page(total, size int, marker *string) (int, int, string) {
	start := 0
	if marker != nil {
		start, _ = strconv.Atoi(aws.ToString(marker))
	}
	if start > total {
		start = total
	}
	if size <= 0 {
		return start, total, ""
	}
	end := start + size
	if end >= total {
		return start, total, ""
	}
	return start, end, strconv.Itoa(end)
}
